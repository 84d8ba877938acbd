// Package errors provides domain-specific error types and sentinel errors
// for the chat pipeline and its collaborators.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStateBusy indicates the session's dialogue state is locked by another request.
	ErrStateBusy = errors.New("dialogue state busy")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// UpstreamError is a non-2xx answer from the Tuition API.
type UpstreamError struct {
	Op      string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: upstream status %d", e.Op, e.Status)
}

// TransportError is a network-level failure calling the Tuition API.
// It is reported to callers the same way as an upstream error.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: fetch failed (url=%s): %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error.
func NewTransportError(op, url string, err error) *TransportError {
	return &TransportError{Op: op, URL: url, Err: err}
}

// AuthError is a failed admin login. It is fatal to any admin-scoped operation.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	// An upstream cause is already summarized by the status.
	var upstream *UpstreamError
	if e.Err != nil && !errors.As(e.Err, &upstream) {
		return fmt.Sprintf("Auth/login failed (%d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("Auth/login failed (%d)", e.Status)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsRateLimitExceeded reports whether err is or wraps ErrRateLimitExceeded.
func IsRateLimitExceeded(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

// IsStateBusy reports whether err is or wraps ErrStateBusy.
func IsStateBusy(err error) bool {
	return errors.Is(err, ErrStateBusy)
}

// IsInvalidInput reports whether err is or wraps ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsUpstream reports whether err came from the Tuition API, either as a
// non-2xx status or as a transport failure.
func IsUpstream(err error) bool {
	var upstream *UpstreamError
	var transport *TransportError
	return errors.As(err, &upstream) || errors.As(err, &transport)
}

// IsAuth reports whether err is an admin login failure.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Error kinds reported by Kind.
const (
	KindAuth         = "auth"
	KindUpstream     = "upstream"
	KindInvalidInput = "invalid_input"
	KindStateBusy    = "state_busy"
	KindRateLimited  = "rate_limited"
	KindInternal     = "internal"
)

// Kind classifies err for logs and error tracking. A login failure wrapping
// an upstream answer is KindAuth.
func Kind(err error) string {
	switch {
	case IsAuth(err):
		return KindAuth
	case IsUpstream(err):
		return KindUpstream
	case IsInvalidInput(err):
		return KindInvalidInput
	case IsStateBusy(err):
		return KindStateBusy
	case IsRateLimitExceeded(err):
		return KindRateLimited
	default:
		return KindInternal
	}
}
