package intent

import (
	"context"
	"time"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/ctxutil"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// Classifier is a fallback for messages without keywords.
// Its output must already be validated; the parser recomputes the
// missing-field bookkeeping itself.
type Classifier interface {
	Classify(ctx context.Context, text string) (*ParsedIntent, error)
	Provider() string
}

// Limiter gates classifier calls per session.
type Limiter interface {
	Allow(key string) bool
}

// Parser runs the keyword parser and, for unmatched text, the optional
// classifier.
type Parser struct {
	keywords   *KeywordParser
	classifier Classifier
	limiter    Limiter
	timeout    time.Duration
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// ParserOption customizes a Parser.
type ParserOption func(*Parser)

// WithClassifier enables the fallback. A nil classifier is ignored.
func WithClassifier(c Classifier) ParserOption {
	return func(p *Parser) { p.classifier = c }
}

// WithLimiter rate-limits classifier calls by session ID.
func WithLimiter(l Limiter) ParserOption {
	return func(p *Parser) { p.limiter = l }
}

// WithTimeout bounds a classifier call.
func WithTimeout(d time.Duration) ParserOption {
	return func(p *Parser) { p.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ParserOption {
	return func(p *Parser) { p.logger = l.WithModule("intent") }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) ParserOption {
	return func(p *Parser) { p.metrics = m }
}

// NewParser creates a Parser. Without WithClassifier it is keyword-only.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		keywords: NewKeywordParser(),
		timeout:  config.LLMRequest,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse classifies text. It never fails: classifier problems degrade to
// UNKNOWN and are logged.
func (p *Parser) Parse(ctx context.Context, text string) ParsedIntent {
	if parsed, ok := p.keywords.Match(text); ok {
		return parsed
	}

	unknown := Normalize(ParsedIntent{Intent: Unknown})
	if p.classifier == nil {
		return unknown
	}

	sessionID := ctxutil.GetSessionID(ctx)
	if p.limiter != nil && !p.limiter.Allow(sessionID) {
		p.metrics.RecordLLM(p.classifier.Provider(), "rate_limited", 0)
		p.logger.InfoContext(ctx, "Classifier skipped: rate limited")
		return unknown
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	got, err := p.classifier.Classify(cctx, text)
	if err != nil || got == nil {
		p.logger.WithError(err).WarnContext(ctx, "Classifier failed, treating message as unknown",
			"provider", p.classifier.Provider())
		return unknown
	}

	parsed := Normalize(*got)
	p.logger.DebugContext(ctx, "Classifier result",
		"intent", parsed.Intent,
		"has_student_no", parsed.StudentNo != "",
	)
	return parsed
}
