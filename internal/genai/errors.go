package genai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ErrorAction defines the action to take based on error type.
type ErrorAction int

const (
	// ActionRetry marks a transient failure; another provider may succeed.
	ActionRetry ErrorAction = iota
	// ActionFallback marks an exhausted provider (quota, billing).
	ActionFallback
	// ActionFail marks a permanent failure; the chain stops.
	ActionFail
)

// String returns a human-readable string for the error action.
func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// LLMError wraps a provider error with its HTTP status.
type LLMError struct {
	Err        error
	StatusCode int
	Provider   string
}

// Error implements the error interface.
func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return e.Provider + ": " + e.Err.Error() + " (status: " + strconv.Itoa(e.StatusCode) + ")"
	}
	return e.Provider + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *LLMError) Unwrap() error {
	return e.Err
}

// wrapError attaches the provider and the SDK's HTTP status, if any.
func wrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &LLMError{Err: err, StatusCode: statusOf(err), Provider: provider}
}

func statusOf(err error) int {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return gErrPtr.Code
	}
	return 0
}

// ClassifyError decides what the provider chain does after err:
//   - invalid output, cancellation, 4xx client errors → fail
//   - quota or billing exhaustion → fallback
//   - 429, 5xx, timeouts, network errors → retry (on the next provider)
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFail
	}
	if errors.Is(err, ErrInvalidOutput) || errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, "quota", "billing", "insufficient_quota", "daily limit") {
		return ActionFallback
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode > 0 {
		return classifyStatusCode(llmErr.StatusCode)
	}

	if containsAny(msg, "rate limit", "too many requests", "resource_exhausted",
		"unavailable", "overloaded", "timeout", "deadline", "connection", "eof") {
		return ActionRetry
	}
	if containsAny(msg, "invalid api key", "unauthorized", "permission denied", "forbidden", "not found") {
		return ActionFail
	}

	return ActionRetry
}

func classifyStatusCode(statusCode int) ErrorAction {
	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusConflict,
		statusCode >= 500:
		return ActionRetry
	case statusCode == http.StatusPaymentRequired:
		return ActionFallback
	case statusCode >= 400:
		return ActionFail
	default:
		return ActionRetry
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
