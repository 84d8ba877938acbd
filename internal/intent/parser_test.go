package intent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tuitionchat/tuition-chat-go/internal/ctxutil"
)

type stubClassifier struct {
	calls  atomic.Int32
	result *ParsedIntent
	err    error
	delay  time.Duration
}

func (s *stubClassifier) Classify(ctx context.Context, _ string) (*ParsedIntent, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubClassifier) Provider() string { return "stub" }

type denyList map[string]bool

func (d denyList) Allow(key string) bool { return !d[key] }

func TestParser_KeywordSkipsClassifier(t *testing.T) {
	t.Parallel()

	c := &stubClassifier{result: &ParsedIntent{Intent: UnpaidTuition}}
	p := NewParser(WithClassifier(c))

	got := p.Parse(context.Background(), "harç öde 1234")
	if got.Intent != PayTuition || got.StudentNo != "1234" {
		t.Errorf("Parse() = %+v, want PAY/1234", got)
	}
	if c.calls.Load() != 0 {
		t.Error("classifier must not be called when a keyword matches")
	}
}

func TestParser_NoClassifier(t *testing.T) {
	t.Parallel()

	got := NewParser().Parse(context.Background(), "hello there")
	if got.Intent != Unknown || len(got.MissingFields) != 0 {
		t.Errorf("Parse() = %+v, want UNKNOWN with no missing fields", got)
	}
}

func TestParser_ClassifierFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		classifier *stubClassifier
		limiter    Limiter
		want       Intent
		wantNo     string
		missing    bool
		calls      int32
	}{
		{
			name:       "classifier result is normalized",
			classifier: &stubClassifier{result: &ParsedIntent{Intent: PayTuition, MissingFields: []string{}}},
			want:       PayTuition,
			missing:    true,
			calls:      1,
		},
		{
			name:       "classifier with id",
			classifier: &stubClassifier{result: &ParsedIntent{Intent: QueryTuition, StudentNo: "1001"}},
			want:       QueryTuition,
			wantNo:     "1001",
			calls:      1,
		},
		{
			name:       "classifier error degrades to unknown",
			classifier: &stubClassifier{err: errors.New("invalid output")},
			want:       Unknown,
			calls:      1,
		},
		{
			name:       "nil result degrades to unknown",
			classifier: &stubClassifier{},
			want:       Unknown,
			calls:      1,
		},
		{
			name:       "rate limited session skips classifier",
			classifier: &stubClassifier{result: &ParsedIntent{Intent: QueryTuition, StudentNo: "1"}},
			limiter:    denyList{"s-1": true},
			want:       Unknown,
			calls:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := []ParserOption{WithClassifier(tt.classifier)}
			if tt.limiter != nil {
				opts = append(opts, WithLimiter(tt.limiter))
			}
			p := NewParser(opts...)

			ctx := ctxutil.WithSessionID(context.Background(), "s-1")
			got := p.Parse(ctx, "can you help me")
			if got.Intent != tt.want {
				t.Errorf("Intent = %s, want %s", got.Intent, tt.want)
			}
			if got.StudentNo != tt.wantNo {
				t.Errorf("StudentNo = %q, want %q", got.StudentNo, tt.wantNo)
			}
			if got.Missing(FieldStudentNo) != tt.missing {
				t.Errorf("Missing = %v, want %v", got.Missing(FieldStudentNo), tt.missing)
			}
			if n := tt.classifier.calls.Load(); n != tt.calls {
				t.Errorf("classifier calls = %d, want %d", n, tt.calls)
			}
		})
	}
}

func TestParser_ClassifierTimeout(t *testing.T) {
	t.Parallel()

	c := &stubClassifier{result: &ParsedIntent{Intent: QueryTuition}, delay: time.Second}
	p := NewParser(WithClassifier(c), WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := p.Parse(context.Background(), "something else")
	if got.Intent != Unknown {
		t.Errorf("Intent = %s, want UNKNOWN on timeout", got.Intent)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("classifier timeout was not applied")
	}
}
