package genai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	"github.com/tuitionchat/tuition-chat-go/internal/intent"
)

// openaiClassifier uses chat completions in JSON-object mode.
type openaiClassifier struct {
	client openai.Client
	model  string
}

// newOpenAIClassifier returns nil when apiKey is empty.
// An empty baseURL uses the SDK default endpoint.
func newOpenAIClassifier(apiKey, baseURL, model string) *openaiClassifier {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &openaiClassifier{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *openaiClassifier) Classify(ctx context.Context, text string) (*intent.ParsedIntent, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(ClassifierSystemPrompt),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(maxOutputTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(config.ProviderOpenAI, fmt.Errorf("chat completion failed: %w", err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from model", ErrInvalidOutput)
	}

	parsed, err := decodeOutput(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func (c *openaiClassifier) Provider() string { return config.ProviderOpenAI }

// Close is a no-op; the SDK client holds no resources.
func (c *openaiClassifier) Close() error { return nil }
