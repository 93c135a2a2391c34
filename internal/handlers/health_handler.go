package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/outreachly/outreachly-backend/internal/config"
)

// HealthHandler reports service liveness and which outbound integrations
// carry credentials.
type HealthHandler struct {
	smtpCfg config.SMTPConfig
	waCfg   config.WhatsAppConfig
	aiCfg   config.AIConfig
}

func NewHealthHandler(smtpCfg config.SMTPConfig, waCfg config.WhatsAppConfig, aiCfg config.AIConfig) *HealthHandler {
	return &HealthHandler{smtpCfg: smtpCfg, waCfg: waCfg, aiCfg: aiCfg}
}

// Health godoc
// @Summary Service health
// @Description Liveness plus configured-integration flags
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
		"integrations": gin.H{
			"smtp":           h.smtpCfg.Configured(),
			"whatsapp":       h.waCfg.Configured(),
			"openai":         h.aiCfg.OpenAIAPIKey != "",
			"anthropic":      h.aiCfg.AnthropicAPIKey != "",
			"ollama_baseurl": h.aiCfg.OllamaBaseURL,
		},
	})
}
