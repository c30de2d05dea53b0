// Package errors defines the closed taxonomy of deferred resolution failures
// and the classification of HTTP outcomes into it.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind categorizes resolution failures so callers can choose a retry policy.
//
//nolint:godot // linter incorrectly flags properly capitalized comment
type Kind string

const (
	// KindMissingAuthToken indicates no auth token could be obtained; the request was never sent.
	KindMissingAuthToken Kind = "missing_auth_token"

	// KindTemporaryRedirect indicates the server redirected the request (retryable at the new location).
	KindTemporaryRedirect Kind = "temporary_redirect"

	// KindTooManyRequests indicates rate limiting (retryable after RetryAfter).
	KindTooManyRequests Kind = "too_many_requests"

	// KindRequestConflict indicates a state conflict; the same payload will not succeed.
	KindRequestConflict Kind = "request_conflict"

	// KindNetworkFailure indicates a transport failure or an unexpected status (retryable).
	KindNetworkFailure Kind = "network_failure"

	// KindInvalidResponse indicates a success status with an unparseable body.
	KindInvalidResponse Kind = "invalid_response"
)

// Sentinel errors, one per Kind, usable with errors.Is against a *ResolutionError.
var (
	ErrMissingAuthToken  = errors.New("auth token unavailable")
	ErrTemporaryRedirect = errors.New("temporary redirect")
	ErrTooManyRequests   = errors.New("too many requests")
	ErrRequestConflict   = errors.New("request conflict")
	ErrNetworkFailure    = errors.New("network failure")
	ErrInvalidResponse   = errors.New("invalid response")
)

var sentinels = map[Kind]error{
	KindMissingAuthToken:  ErrMissingAuthToken,
	KindTemporaryRedirect: ErrTemporaryRedirect,
	KindTooManyRequests:   ErrTooManyRequests,
	KindRequestConflict:   ErrRequestConflict,
	KindNetworkFailure:    ErrNetworkFailure,
	KindInvalidResponse:   ErrInvalidResponse,
}

// Kinds returns every kind in the taxonomy.
func Kinds() []Kind {
	return []Kind{
		KindMissingAuthToken,
		KindTemporaryRedirect,
		KindTooManyRequests,
		KindRequestConflict,
		KindNetworkFailure,
		KindInvalidResponse,
	}
}

// ResolutionError is the typed failure outcome of one resolution.
// StatusCode is zero when no HTTP response was received.
type ResolutionError struct {
	Kind       Kind          `json:"kind"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // Server hint, zero when absent
	Location   string        `json:"location,omitempty"`    // Redirect target for KindTemporaryRedirect
	Cause      error         `json:"-"`
}

// New returns a ResolutionError of kind with message.
func New(kind Kind, message string) *ResolutionError {
	return &ResolutionError{Kind: kind, Message: message}
}

// Wrap returns a ResolutionError of kind caused by err.
func Wrap(kind Kind, err error) *ResolutionError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ResolutionError{Kind: kind, Message: msg, Cause: err}
}

// Error returns the kind, status and message.
func (e *ResolutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deferred resolution %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("deferred resolution %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ResolutionError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// IsRetryable reports whether re-resolving the same payload may succeed.
func (e *ResolutionError) IsRetryable() bool {
	switch e.Kind {
	case KindMissingAuthToken, KindTemporaryRedirect, KindTooManyRequests, KindNetworkFailure:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns the server supplied delay, or zero.
func (e *ResolutionError) GetRetryAfter() time.Duration {
	return e.RetryAfter
}
