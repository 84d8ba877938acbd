package genai

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/intent"
)

type geminiClassifier struct {
	client *genai.Client
	model  string
}

// newGeminiClassifier returns nil, nil when apiKey is empty.
// baseURL overrides the API host (tests only).
func newGeminiClassifier(ctx context.Context, apiKey, model, baseURL string) (*geminiClassifier, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // disabled without a key
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiClassifier{client: client, model: model}, nil
}

func (c *geminiClassifier) Classify(ctx context.Context, text string) (*intent.ParsedIntent, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(ClassifierSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   maxOutputTokens,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(text), cfg)
	if err != nil {
		return nil, wrapError(config.ProviderGemini, fmt.Errorf("generate content failed: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: empty response from model", ErrInvalidOutput)
	}
	return decodeOutput(resp.Text())
}

func (c *geminiClassifier) Provider() string { return config.ProviderGemini }

// Close releases resources. genai.Client needs no explicit cleanup.
func (c *geminiClassifier) Close() error { return nil }
