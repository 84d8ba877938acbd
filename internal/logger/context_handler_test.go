package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/tuitionchat/tuition-chat-go/internal/ctxutil"
)

func TestContextHandler_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		setupContext func(context.Context) context.Context
		wantFields   []string
		absentFields []string
	}{
		{
			name: "extracts all context values",
			setupContext: func(ctx context.Context) context.Context {
				ctx = ctxutil.WithSessionID(ctx, "session_1")
				return ctxutil.WithRequestID(ctx, "req-abc-123")
			},
			wantFields: []string{`"session_id":"session_1"`, `"request_id":"req-abc-123"`},
		},
		{
			name: "extracts partial context values",
			setupContext: func(ctx context.Context) context.Context {
				return ctxutil.WithSessionID(ctx, "session_2")
			},
			wantFields:   []string{`"session_id":"session_2"`},
			absentFields: []string{"request_id"},
		},
		{
			name:         "handles empty context",
			setupContext: func(ctx context.Context) context.Context { return ctx },
			absentFields: []string{"session_id", "request_id"},
		},
		{
			name: "skips empty request ID",
			setupContext: func(ctx context.Context) context.Context {
				return ctxutil.WithRequestID(ctx, "")
			},
			absentFields: []string{"request_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))
			log.InfoContext(tt.setupContext(context.Background()), "test")

			out := buf.String()
			for _, f := range tt.wantFields {
				if !strings.Contains(out, f) {
					t.Errorf("expected %s in %s", f, out)
				}
			}
			for _, f := range tt.absentFields {
				if strings.Contains(out, f) {
					t.Errorf("did not expect %s in %s", f, out)
				}
			}
		})
	}
}

func TestContextHandler_WithAttrsAndGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewContextHandler(slog.NewJSONHandler(&buf, nil))
	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "tuition-chat")}).WithGroup("g"))

	log.InfoContext(ctxutil.WithSessionID(context.Background(), "s"), "msg", "k", "v")

	out := buf.String()
	if !strings.Contains(out, `"service":"tuition-chat"`) {
		t.Errorf("missing service attr: %s", out)
	}
	if !strings.Contains(out, `"g":{`) {
		t.Errorf("missing group: %s", out)
	}
}
