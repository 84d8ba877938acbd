package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tuitionchat/tuition-chat-go/internal/intent"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// FallbackClassifier tries each classifier in order.
// It moves to the next one on transient or quota errors and stops on
// permanent ones. Every attempt is recorded in the LLM metrics.
type FallbackClassifier struct {
	chain   []Classifier
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewFallbackClassifier builds a chain, skipping nil entries.
func NewFallbackClassifier(log *logger.Logger, m *metrics.Metrics, classifiers ...Classifier) *FallbackClassifier {
	chain := make([]Classifier, 0, len(classifiers))
	for _, c := range classifiers {
		if c != nil {
			chain = append(chain, c)
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FallbackClassifier{
		chain:   chain,
		logger:  log.WithModule("genai"),
		metrics: m,
	}
}

// Classify returns the first valid verdict in the chain.
func (f *FallbackClassifier) Classify(ctx context.Context, text string) (*intent.ParsedIntent, error) {
	if f == nil || len(f.chain) == 0 {
		return nil, errors.New("intent classifier not configured")
	}

	var lastErr error
	for i, c := range f.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		result, err := c.Classify(ctx, text)
		elapsed := time.Since(start).Seconds()
		if err == nil {
			f.metrics.RecordLLM(c.Provider(), "success", elapsed)
			return result, nil
		}

		f.metrics.RecordLLM(c.Provider(), resultLabel(err), elapsed)
		lastErr = err

		action := ClassifyError(err)
		f.logger.WarnContext(ctx, "intent classifier failed",
			"provider", c.Provider(),
			"position", i,
			"action", action.String(),
			"error", err)

		if action == ActionFail {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// Provider names the head of the chain.
func (f *FallbackClassifier) Provider() string {
	if f == nil || len(f.chain) == 0 {
		return ""
	}
	return f.chain[0].Provider()
}

// Close closes every classifier and joins their errors.
func (f *FallbackClassifier) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, c := range f.chain {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resultLabel maps an error to a metric result label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOutput):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.StatusCode == 429 {
		return "rate_limit"
	}
	return "error"
}
