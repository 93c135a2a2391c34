package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/services/ai"
)

// AIHandler reports which generation backends are usable and what models
// the local Ollama server has pulled, so a campaign picks a model that
// actually exists.
type AIHandler struct {
	cfg    config.AIConfig
	ollama *ai.OllamaBackend
}

func NewAIHandler(cfg config.AIConfig) *AIHandler {
	return &AIHandler{cfg: cfg, ollama: ai.NewOllamaBackend(cfg)}
}

// GetBackendStatus godoc
// @Summary AI backend status
// @Description Report which generation backends carry credentials and whether the local Ollama server answers
// @Tags ai
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/ai/status [get]
func (h *AIHandler) GetBackendStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ollama": gin.H{
			"base_url":  h.cfg.OllamaBaseURL,
			"available": h.ollama.Available(c.Request.Context()),
		},
		"openai":    gin.H{"configured": h.cfg.OpenAIAPIKey != ""},
		"anthropic": gin.H{"configured": h.cfg.AnthropicAPIKey != ""},
	})
}

// ListModels godoc
// @Summary List local Ollama models
// @Description List the model names the configured Ollama server has pulled
// @Tags ai
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/ai/models [get]
func (h *AIHandler) ListModels(c *gin.Context) {
	models, err := h.ollama.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ollama server unavailable", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
