// Package ai provides a uniform interface over the text generation
// backends a campaign can select: a local Ollama server, OpenAI, or
// Anthropic. The adapter is stateless; all campaign context must be
// pre-baked into the prompt strings by the caller, and retry policy
// belongs to the caller.
package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/models"
)

var (
	// ErrBackendUnavailable means the backend could not be reached
	// (connection refused, timeout, upstream outage). A retry may help.
	ErrBackendUnavailable = errors.New("ai backend unavailable")

	// ErrBackendRejected means the backend refused the request (unknown
	// model, bad parameters). Retrying the same request will not help.
	ErrBackendRejected = errors.New("ai backend rejected request")

	// ErrNotConfigured means the selected backend lacks credentials.
	// Fatal for the entire run that was about to start.
	ErrNotConfigured = errors.New("ai backend not configured")
)

// GenerateRequest is a single text generation call.
type GenerateRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

// TextBackend turns a prompt pair into raw text.
type TextBackend interface {
	// Generate performs one completion call. Errors wrap one of the
	// package sentinels so callers can decide whether a retry is
	// worthwhile.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// NewBackend returns the backend for the stored model type enum. This
// factory is the only place that branches on the enum.
func NewBackend(modelType models.AIModelType, cfg config.AIConfig) (TextBackend, error) {
	switch modelType {
	case models.ModelTypeLocalLLM:
		return NewOllamaBackend(cfg), nil
	case models.ModelTypeOpenAI:
		backend, err := NewOpenAIBackend(cfg)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case models.ModelTypeAnthropic:
		backend, err := NewAnthropicBackend(cfg)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("%w: unsupported model type %q", ErrBackendRejected, modelType)
	}
}
