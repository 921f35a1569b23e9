// Package client is a Go client for the registration HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/thehansentribe/honorsfest/internal/model"
)

// WithdrawResult lists the registrations a withdrawal removed.
type WithdrawResult struct {
	Withdrawn []model.Registration `json:"withdrawn"`
}

// Client is the registration API client.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithLanguage sets the Accept-Language header sent with every request.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

// WithHTTPClient replaces the default 30 second timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new API client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	if err := c.get(ctx, "/health", nil); err != nil {
		return fmt.Errorf("client.Health: %w", err)
	}
	return nil
}

// Counts returns the enrolled/waitlisted/capacity triple of a class.
func (c *Client) Counts(ctx context.Context, classID model.ClassID) (*model.Counts, error) {
	var counts model.Counts
	if err := c.get(ctx, classPath(classID, "counts"), &counts); err != nil {
		return nil, fmt.Errorf("client.Counts: %w", err)
	}
	return &counts, nil
}

// Roster returns the seats of a class.
func (c *Client) Roster(ctx context.Context, classID model.ClassID) (*model.Roster, error) {
	var roster model.Roster
	if err := c.get(ctx, classPath(classID, "roster"), &roster); err != nil {
		return nil, fmt.Errorf("client.Roster: %w", err)
	}
	return &roster, nil
}

// EventClasses lists the active classes of an event.
func (c *Client) EventClasses(ctx context.Context, eventID model.EventID) ([]model.ClassListing, error) {
	var listing []model.ClassListing
	path := "/events/" + strconv.FormatInt(int64(eventID), 10) + "/classes"
	if err := c.get(ctx, path, &listing); err != nil {
		return nil, fmt.Errorf("client.EventClasses: %w", err)
	}
	return listing, nil
}

// Schedule returns a user's registrations with class and timeslot.
func (c *Client) Schedule(ctx context.Context, userID model.UserID) ([]model.ScheduleEntry, error) {
	var schedule []model.ScheduleEntry
	path := "/users/" + strconv.FormatInt(int64(userID), 10) + "/schedule"
	if err := c.get(ctx, path, &schedule); err != nil {
		return nil, fmt.Errorf("client.Schedule: %w", err)
	}
	return schedule, nil
}

// Register registers a user for a class. With admin set the administrative
// policy applies. A timeslot collision returns *ConflictError.
func (c *Client) Register(ctx context.Context, userID model.UserID, classID model.ClassID, admin bool) (*model.RegisterResult, error) {
	path := classPath(classID, "register")
	if admin {
		path = "/admin" + classPath(classID, "registrations")
	}
	var res model.RegisterResult
	if err := c.post(ctx, path, model.RegisterRequest{UserID: userID}, &res); err != nil {
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	return &res, nil
}

// ResolveConflict withdraws conflictID and registers the user for classID.
func (c *Client) ResolveConflict(ctx context.Context, userID model.UserID, classID model.ClassID, conflictID model.RegistrationID, admin bool) (*model.RegisterResult, error) {
	path := classPath(classID, "resolve")
	if admin {
		path = "/admin" + path
	}
	req := model.ResolveConflictRequest{UserID: userID, ConflictRegistrationID: conflictID}
	var res model.RegisterResult
	if err := c.post(ctx, path, req, &res); err != nil {
		return nil, fmt.Errorf("client.ResolveConflict: %w", err)
	}
	return &res, nil
}

// Withdraw removes a registration. With admin set it uses the staff route.
func (c *Client) Withdraw(ctx context.Context, id model.RegistrationID, admin bool) ([]model.Registration, error) {
	path := "/registrations/" + strconv.FormatInt(int64(id), 10)
	if admin {
		path = "/admin" + path
	}
	var res WithdrawResult
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, &res); err != nil {
		return nil, fmt.Errorf("client.Withdraw: %w", err)
	}
	return res.Withdrawn, nil
}

func classPath(id model.ClassID, suffix string) string {
	return "/classes/" + strconv.FormatInt(int64(id), 10) + "/" + suffix
}

// --- HTTP helpers ---

type errorBody struct {
	Error                   string               `json:"error"`
	Code                    string               `json:"code"`
	Conflict                bool                 `json:"conflict"`
	PartialFailure          bool                 `json:"partialFailure"`
	WithdrawnRegistrationID model.RegistrationID `json:"withdrawnRegistrationId"`
	Message                 string               `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		return readError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func readError(resp *http.Response) error {
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
	if err != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", err)}
	}
	var apiErr errorBody
	if json.Unmarshal(respBody, &apiErr) != nil {
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode == http.StatusConflict {
		switch {
		case apiErr.PartialFailure:
			return &PartialFailureError{WithdrawnRegistrationID: apiErr.WithdrawnRegistrationID, Message: apiErr.Error}
		case apiErr.Conflict:
			var conflict model.Conflict
			if json.Unmarshal(respBody, &conflict) == nil {
				return &ConflictError{Conflict: conflict, Message: apiErr.Message}
			}
		}
	}
	if apiErr.Error != "" {
		return &HTTPError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}
