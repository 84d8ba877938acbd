package genai

import (
	"context"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// NewClassifier builds the provider chain in cfg.Providers order.
// Providers without an API key are skipped. It returns nil when no
// provider is usable, which disables the LLM fallback.
func NewClassifier(ctx context.Context, cfg config.LLMConfig, log *logger.Logger, m *metrics.Metrics) Classifier {
	if log == nil {
		log = logger.Nop()
	}

	var chain []Classifier
	seen := make(map[string]bool, len(cfg.Providers))
	for _, name := range cfg.Providers {
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case config.ProviderOpenAI:
			if c := newOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel); c != nil {
				chain = append(chain, c)
			}
		case config.ProviderGemini:
			c, err := newGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
			if err != nil {
				log.WithError(err).WarnContext(ctx, "failed to create gemini classifier")
				continue
			}
			if c != nil {
				chain = append(chain, c)
			}
		}
	}

	if len(chain) == 0 {
		log.InfoContext(ctx, "no LLM provider configured for intent classification")
		return nil
	}

	log.InfoContext(ctx, "intent classifier configured",
		"primary", chain[0].Provider(),
		"chainSize", len(chain))
	return NewFallbackClassifier(log, m, chain...)
}
