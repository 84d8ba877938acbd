package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestSessionIDContext(t *testing.T) {
	t.Parallel()

	t.Run("empty context", func(t *testing.T) {
		t.Parallel()
		if sessionID := GetSessionID(context.Background()); sessionID != "" {
			t.Errorf("Expected empty string, got %s", sessionID)
		}
	})

	t.Run("with session ID", func(t *testing.T) {
		t.Parallel()
		ctx := WithSessionID(context.Background(), "session_1700000000_abc")
		if got := GetSessionID(ctx); got != "session_1700000000_abc" {
			t.Errorf("Expected session ID session_1700000000_abc, got %s", got)
		}
	})

	t.Run("empty value is treated as missing", func(t *testing.T) {
		t.Parallel()
		ctx := WithSessionID(context.Background(), "")
		if got := GetSessionID(ctx); got != "" {
			t.Errorf("Expected empty string, got %s", got)
		}
	})
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	if _, ok := GetRequestID(context.Background()); ok {
		t.Error("Expected no request ID in empty context")
	}

	ctx := WithRequestID(context.Background(), "req-123")
	requestID, ok := GetRequestID(ctx)
	if !ok || requestID != "req-123" {
		t.Errorf("GetRequestID() = %q, %v; want req-123, true", requestID, ok)
	}
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithSessionID(parent, "s1")
	parent = WithRequestID(parent, "r1")
	cancel()

	detached := PreserveTracing(parent)

	if detached.Err() != nil {
		t.Errorf("detached context should not be canceled, got %v", detached.Err())
	}
	if _, hasDeadline := detached.Deadline(); hasDeadline {
		t.Error("detached context should not carry a deadline")
	}
	if got := GetSessionID(detached); got != "s1" {
		t.Errorf("session ID = %q, want s1", got)
	}
	if got, _ := GetRequestID(detached); got != "r1" {
		t.Errorf("request ID = %q, want r1", got)
	}
}
