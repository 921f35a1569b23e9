package client

import (
	"errors"
	"fmt"

	"github.com/thehansentribe/honorsfest/internal/model"
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ConflictError is returned when a registration collides with one the user
// already holds in the same timeslot.
type ConflictError struct {
	model.Conflict
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("timeslot conflict with %q (registration %d)", e.ConflictClassName, e.ConflictRegistrationID)
}

// PartialFailureError is returned when conflict resolution withdrew the old
// registration but could not place the new one.
type PartialFailureError struct {
	WithdrawnRegistrationID model.RegistrationID
	Message                 string
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("registration %d withdrawn but new registration failed: %s", e.WithdrawnRegistrationID, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsCode reports whether err is an HTTPError carrying the given error code,
// such as "class_inactive".
func IsCode(err error, code string) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == code
	}
	return false
}
