package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/outreachly/outreachly-backend/internal/config"
)

// OllamaBackend talks to a local Ollama server through its
// OpenAI-compatible chat endpoint.
type OllamaBackend struct {
	client  *openai.Client
	baseURL string
}

// NewOllamaBackend creates a client against the configured Ollama base
// URL. No API key is required for a local server.
func NewOllamaBackend(cfg config.AIConfig) *OllamaBackend {
	clientCfg := openai.DefaultConfig("ollama")
	clientCfg.BaseURL = cfg.OllamaBaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.OllamaTimeout}
	return &OllamaBackend{
		client:  openai.NewClientWithConfig(clientCfg),
		baseURL: cfg.OllamaBaseURL,
	}
}

// Generate implements TextBackend.
func (b *OllamaBackend) Generate(ctx context.Context, req GenerateRequest) (string, error) {
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
		return "", classifyOpenAIError("ollama", b.baseURL, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: ollama returned no choices", ErrBackendRejected)
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels returns the model names the local server has pulled.
// Surfaced on the status endpoint so operators can see what a campaign
// may select.
func (b *OllamaBackend) ListModels(ctx context.Context) ([]string, error) {
	list, err := b.client.ListModels(ctx)
	if err != nil {
		return nil, classifyOpenAIError("ollama", b.baseURL, err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// Available reports whether the local server answers at all.
func (b *OllamaBackend) Available(ctx context.Context) bool {
	_, err := b.client.ListModels(ctx)
	if err != nil {
		logrus.Warnf("Ollama server not reachable at %s: %v", b.baseURL, err)
		return false
	}
	return true
}

// classifyOpenAIError maps go-openai errors onto the package sentinels.
// An HTTP status from the backend means the request reached it and was
// rejected; anything else is a connectivity failure.
func classifyOpenAIError(backend, endpoint string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
			return fmt.Errorf("%w: %s: %s", ErrBackendRejected, backend, apiErr.Message)
		}
		return fmt.Errorf("%w: %s: %s", ErrBackendUnavailable, backend, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 400 && reqErr.HTTPStatusCode < 500 {
			return fmt.Errorf("%w: %s: %v", ErrBackendRejected, backend, reqErr)
		}
	}
	return fmt.Errorf("%w: cannot reach %s at %s: %v", ErrBackendUnavailable, backend, endpoint, err)
}
