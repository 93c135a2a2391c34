package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/outreachly/outreachly-backend/internal/config"
)

// OpenAIBackend generates text through the OpenAI chat completions API.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAIBackend creates the backend, failing with ErrNotConfigured
// when no API key is set.
func NewOpenAIBackend(cfg config.AIConfig) (*OpenAIBackend, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrNotConfigured)
	}
	return &OpenAIBackend{client: openai.NewClient(cfg.OpenAIAPIKey)}, nil
}

// Generate implements TextBackend.
func (b *OpenAIBackend) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError("openai", "api.openai.com", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrBackendRejected)
	}
	return resp.Choices[0].Message.Content, nil
}
