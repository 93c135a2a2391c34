package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/services/delivery"
)

// WhatsAppHandler exposes message-template management against the Meta
// business account, plus the configured provider status.
type WhatsAppHandler struct {
	cfg  config.WhatsAppConfig
	meta *delivery.MetaCloudSender
}

func NewWhatsAppHandler(cfg config.WhatsAppConfig) *WhatsAppHandler {
	return &WhatsAppHandler{
		cfg:  cfg,
		meta: delivery.NewMetaCloudSender(cfg),
	}
}

// GetProviderStatus godoc
// @Summary WhatsApp provider status
// @Description Report which WhatsApp upstream is configured
// @Tags whatsapp
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/whatsapp/status [get]
func (h *WhatsAppHandler) GetProviderStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"configured": h.cfg.Configured(),
		"provider":   h.cfg.Provider,
	})
}

// CreateTemplate godoc
// @Summary Submit a WhatsApp message template
// @Description Submit a template to the Meta business account for review
// @Tags whatsapp
// @Accept json
// @Produce json
// @Param request body delivery.Template true "Template definition"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/whatsapp/templates [post]
func (h *WhatsAppHandler) CreateTemplate(c *gin.Context) {
	if h.cfg.Provider != config.ProviderMetaCloud {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Template management requires the Meta Cloud API provider"})
		return
	}

	var tmpl delivery.Template
	if err := c.ShouldBindJSON(&tmpl); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if tmpl.Name == "" || tmpl.Language == "" || len(tmpl.Components) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Template name, language and components are required"})
		return
	}

	if err := h.meta.CreateTemplate(c.Request.Context(), tmpl); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to submit template", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"name": tmpl.Name, "status": "PENDING"})
}

// GetTemplateStatus godoc
// @Summary WhatsApp template review status
// @Tags whatsapp
// @Produce json
// @Param name path string true "Template name"
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/whatsapp/templates/{name} [get]
func (h *WhatsAppHandler) GetTemplateStatus(c *gin.Context) {
	if h.cfg.Provider != config.ProviderMetaCloud {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Template management requires the Meta Cloud API provider"})
		return
	}

	name := c.Param("name")
	status, err := h.meta.TemplateStatus(c.Request.Context(), name)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch template status", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": name, "status": status})
}
