// Package genai classifies chat messages that carry no intent keyword by
// asking an LLM for a small JSON verdict.
//
// Providers:
//   - OpenAI: github.com/openai/openai-go/v3 (any OpenAI-compatible endpoint)
//   - Gemini: google.golang.org/genai (official SDK)
//
// Providers are tried in the configured order. The chain moves on only for
// transient or quota errors; nothing is retried on the same provider.
package genai

import (
	"context"

	"github.com/tuitionchat/tuition-chat-go/internal/intent"
)

// Default models, used when the configuration leaves the model empty.
const (
	DefaultOpenAIModel = "gpt-4.1-mini"
	DefaultGeminiModel = "gemini-2.5-flash-lite"
)

// maxOutputTokens is plenty for the four-field verdict.
const maxOutputTokens = 128

// Classifier maps free text to a validated intent.
// It satisfies intent.Classifier.
type Classifier interface {
	Classify(ctx context.Context, text string) (*intent.ParsedIntent, error)
	Provider() string
	Close() error
}
