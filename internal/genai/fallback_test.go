package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/intent"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

type stubClassifier struct {
	provider string
	result   *intent.ParsedIntent
	err      error
	calls    int
	closeErr error
}

func (s *stubClassifier) Classify(context.Context, string) (*intent.ParsedIntent, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubClassifier) Provider() string { return s.provider }
func (s *stubClassifier) Close() error     { return s.closeErr }

func TestFallbackClassifier_PrimarySuccess(t *testing.T) {
	t.Parallel()
	primary := &stubClassifier{provider: "openai", result: &intent.ParsedIntent{Intent: intent.PayTuition}}
	secondary := &stubClassifier{provider: "gemini"}
	m := metrics.New(prometheus.NewRegistry())

	f := NewFallbackClassifier(nil, m, primary, secondary)
	got, err := f.Classify(context.Background(), "x")
	if err != nil || got.Intent != intent.PayTuition {
		t.Fatalf("Classify() = %+v, %v", got, err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary called %d times", secondary.calls)
	}
	if v := testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("openai", "success")); v != 1 {
		t.Errorf("success count = %v, want 1", v)
	}
}

func TestFallbackClassifier_MovesOnTransientError(t *testing.T) {
	t.Parallel()
	primary := &stubClassifier{provider: "openai", err: &LLMError{Err: errors.New("busy"), StatusCode: http.StatusServiceUnavailable}}
	secondary := &stubClassifier{provider: "gemini", result: &intent.ParsedIntent{Intent: intent.UnpaidTuition}}
	m := metrics.New(prometheus.NewRegistry())

	f := NewFallbackClassifier(nil, m, primary, secondary)
	got, err := f.Classify(context.Background(), "x")
	if err != nil || got.Intent != intent.UnpaidTuition {
		t.Fatalf("Classify() = %+v, %v", got, err)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times, want exactly 1", primary.calls)
	}
	if v := testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("openai", "error")); v != 1 {
		t.Errorf("error count = %v, want 1", v)
	}
}

func TestFallbackClassifier_StopsOnInvalidOutput(t *testing.T) {
	t.Parallel()
	primary := &stubClassifier{provider: "openai", err: fmt.Errorf("%w: prose", ErrInvalidOutput)}
	secondary := &stubClassifier{provider: "gemini", result: &intent.ParsedIntent{Intent: intent.Unknown}}
	m := metrics.New(prometheus.NewRegistry())

	f := NewFallbackClassifier(nil, m, primary, secondary)
	_, err := f.Classify(context.Background(), "x")
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("error = %v, want ErrInvalidOutput", err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary called %d times", secondary.calls)
	}
	if v := testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("openai", "invalid")); v != 1 {
		t.Errorf("invalid count = %v, want 1", v)
	}
}

func TestFallbackClassifier_AllFail(t *testing.T) {
	t.Parallel()
	busy := &LLMError{Err: errors.New("busy"), StatusCode: http.StatusTooManyRequests}
	f := NewFallbackClassifier(nil, nil,
		&stubClassifier{provider: "openai", err: busy},
		&stubClassifier{provider: "gemini", err: busy},
	)
	_, err := f.Classify(context.Background(), "x")
	if err == nil || !errors.Is(err, busy) {
		t.Fatalf("error = %v, want wrapped busy error", err)
	}
}

func TestFallbackClassifier_EmptyAndNil(t *testing.T) {
	t.Parallel()
	f := NewFallbackClassifier(nil, nil, nil, nil)
	if len(f.chain) != 0 || f.Provider() != "" {
		t.Errorf("empty chain: len=%d Provider=%q", len(f.chain), f.Provider())
	}
	if _, err := f.Classify(context.Background(), "x"); err == nil {
		t.Error("expected error from empty chain")
	}

	var nilChain *FallbackClassifier
	if err := nilChain.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
}

func TestFallbackClassifier_CanceledContext(t *testing.T) {
	t.Parallel()
	primary := &stubClassifier{provider: "openai"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFallbackClassifier(nil, nil, primary).Classify(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if primary.calls != 0 {
		t.Error("classifier should not run on a canceled context")
	}
}

func TestFallbackClassifier_CloseJoinsErrors(t *testing.T) {
	t.Parallel()
	e1, e2 := errors.New("a"), errors.New("b")
	f := NewFallbackClassifier(nil, nil,
		&stubClassifier{provider: "openai", closeErr: e1},
		&stubClassifier{provider: "gemini", closeErr: e2},
	)
	err := f.Close()
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("Close() = %v, want both errors", err)
	}
}

func TestNewClassifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		cfg       config.LLMConfig
		wantNil   bool
		wantLen   int
		wantFirst string
	}{
		{name: "no keys", cfg: config.LLMConfig{Providers: []string{"openai", "gemini"}}, wantNil: true},
		{
			name:      "openai only",
			cfg:       config.LLMConfig{Providers: []string{"openai", "gemini"}, OpenAIAPIKey: "k"},
			wantLen:   1,
			wantFirst: "openai",
		},
		{
			name:      "order follows config",
			cfg:       config.LLMConfig{Providers: []string{"gemini", "openai"}, OpenAIAPIKey: "k", GeminiAPIKey: "g"},
			wantLen:   2,
			wantFirst: "gemini",
		},
		{
			name:      "duplicates collapse",
			cfg:       config.LLMConfig{Providers: []string{"openai", "openai"}, OpenAIAPIKey: "k"},
			wantLen:   1,
			wantFirst: "openai",
		},
		{name: "key without provider listed", cfg: config.LLMConfig{Providers: []string{"gemini"}, OpenAIAPIKey: "k"}, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewClassifier(context.Background(), tt.cfg, nil, nil)
			if tt.wantNil {
				if c != nil {
					t.Fatalf("NewClassifier() = %v, want nil", c)
				}
				return
			}
			f, ok := c.(*FallbackClassifier)
			if !ok {
				t.Fatalf("NewClassifier() type = %T", c)
			}
			if len(f.chain) != tt.wantLen {
				t.Errorf("chain length = %d, want %d", len(f.chain), tt.wantLen)
			}
			if f.Provider() != tt.wantFirst {
				t.Errorf("Provider() = %q, want %q", f.Provider(), tt.wantFirst)
			}
		})
	}
}
