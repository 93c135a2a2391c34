package ai

import (
	"context"
	"errors"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/outreachly/outreachly-backend/internal/config"
)

// AnthropicBackend generates text through the Anthropic messages API.
type AnthropicBackend struct {
	client *anthropic.Client
}

// NewAnthropicBackend creates the backend, failing with ErrNotConfigured
// when no API key is set.
func NewAnthropicBackend(cfg config.AIConfig) (*AnthropicBackend, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrNotConfigured)
	}
	return &AnthropicBackend{client: anthropic.NewClient(cfg.AnthropicAPIKey)}, nil
}

// Generate implements TextBackend.
func (b *AnthropicBackend) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	temperature := req.Temperature
	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(req.Model),
		System:      req.SystemPrompt,
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(req.UserPrompt),
		},
	})
	if err != nil {
		return "", classifyAnthropicError(err)
	}
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: anthropic returned no text content", ErrBackendRejected)
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsInvalidRequestErr() || apiErr.IsNotFoundErr() || apiErr.IsAuthenticationErr() || apiErr.IsPermissionErr() {
			return fmt.Errorf("%w: anthropic: %s", ErrBackendRejected, apiErr.Message)
		}
		return fmt.Errorf("%w: anthropic: %s", ErrBackendUnavailable, apiErr.Message)
	}
	return fmt.Errorf("%w: cannot reach anthropic: %v", ErrBackendUnavailable, err)
}
