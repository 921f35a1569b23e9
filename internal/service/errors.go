package service

import (
	"errors"
	"fmt"

	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
)

// ValidationCode identifies why a request was refused.
type ValidationCode string

const (
	CodeEventClosed            ValidationCode = "event_closed"
	CodeNoClub                 ValidationCode = "no_club"
	CodeLevelTooLow            ValidationCode = "level_too_low"
	CodeClassInactive          ValidationCode = "class_inactive"
	CodeAlreadyRegistered      ValidationCode = "already_registered"
	CodeUserInactive           ValidationCode = "user_inactive"
	CodeIncompleteSessionGroup ValidationCode = "incomplete_session_group"
	CodeInvalidInput           ValidationCode = "invalid_input"
)

// ValidationError is a refused precondition. It is never retried.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code ValidationCode, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing resource. It unwraps to
// repository.ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return repository.ErrNotFound
}

// notFound converts repository.ErrNotFound into a NotFoundError and wraps
// anything else.
func notFound[T ~int64](kind string, id T, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: int64(id)}
	}
	return fmt.Errorf("get %s %d: %w", kind, id, err)
}

// CapacityRaceError means a seat transaction would have broken a ledger
// invariant. Nothing was committed.
type CapacityRaceError struct {
	ClassID model.ClassID
	Err     error
}

func (e *CapacityRaceError) Error() string {
	return fmt.Sprintf("capacity race on class %d: %v", e.ClassID, e.Err)
}

func (e *CapacityRaceError) Unwrap() error {
	return e.Err
}

// PartialFailureError is returned by ResolveConflict when the conflicting
// registration was withdrawn but the new one could not be placed. The student
// now holds neither; the caller must re-add one of them.
type PartialFailureError struct {
	Withdrawn []model.Registration
	Cause     error
}

func (e *PartialFailureError) Error() string {
	ids := make([]model.RegistrationID, len(e.Withdrawn))
	for i, r := range e.Withdrawn {
		ids[i] = r.ID
	}
	return fmt.Sprintf("conflict resolution incomplete: withdrew registrations %v but new registration failed: %v", ids, e.Cause)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether err is a ValidationError with one of codes,
// or any ValidationError when no codes are given.
func IsValidation(err error, codes ...ValidationCode) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if ve.Code == c {
			return true
		}
	}
	return false
}
