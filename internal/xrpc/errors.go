package xrpc

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated means an authenticated call was attempted
	// with no usable session. Terminal for that call only.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired means a 401 survived the bounded refresh-retry
	// policy. It is the one condition every caller maps to a forced
	// logout, checked with errors.Is rather than by HTTP status.
	ErrSessionExpired = errors.New("session expired")
)

// APIError is any non-2xx response other than a recoverable 401.
// Message is a best-effort extraction from the JSON or text body.
type APIError struct {
	StatusCode int
	Code       string // structured "error" field when the body carried one
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d (%s)", e.StatusCode, e.Code)
}

// IsUnauthorized reports whether err is an HTTP 401 API error.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
