package handlers

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/services/delivery"
	"github.com/outreachly/outreachly-backend/internal/services/tracking"
)

// trackingPixel is a 1x1 transparent GIF served by the open endpoint.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type WebhookHandler struct {
	tracker *tracking.Tracker
	waCfg   config.WhatsAppConfig
}

func NewWebhookHandler(db *gorm.DB, waCfg config.WhatsAppConfig) *WebhookHandler {
	tracker := tracking.NewTracker(
		repository.NewCampaignRepository(db),
		repository.NewContactRepository(db),
		repository.NewCampaignContactRepository(db),
		repository.NewDeliveryEventRepository(db),
	)
	return &WebhookHandler{tracker: tracker, waCfg: waCfg}
}

// VerifyWhatsAppWebhook godoc
// @Summary Meta webhook verification handshake
// @Description Echo hub.challenge when the verify token matches
// @Tags webhooks
// @Produce plain
// @Success 200 {string} string
// @Failure 403 {object} map[string]interface{}
// @Router /webhooks/whatsapp [get]
func (h *WebhookHandler) VerifyWhatsAppWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.waCfg.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Verification failed"})
}

// HandleWhatsAppWebhook godoc
// @Summary WhatsApp provider callbacks
// @Description Process Meta status/message webhooks or Twilio status callbacks
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Router /webhooks/whatsapp [post]
func (h *WebhookHandler) HandleWhatsAppWebhook(c *gin.Context) {
	// Twilio posts form-encoded status callbacks; Meta posts signed JSON.
	if h.waCfg.Provider == config.ProviderTwilio {
		err := h.tracker.HandleTwilioStatus(c.Request.Context(),
			c.PostForm("MessageSid"), c.PostForm("MessageStatus"), c.PostForm("ErrorCode"))
		if err != nil {
			logrus.Errorf("Failed to process Twilio callback: %v", err)
		}
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	signature := c.GetHeader("X-Hub-Signature-256")
	if !delivery.VerifyMetaSignature(h.waCfg.AppSecret, signature, body) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid signature"})
		return
	}

	if err := h.tracker.HandleMetaWebhook(c.Request.Context(), body); err != nil {
		logrus.Errorf("Failed to process Meta webhook: %v", err)
	}

	// Always ack so the provider does not keep retrying a payload we
	// cannot use.
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// HandleEmailWebhook godoc
// @Summary Email provider delivery events
// @Description Process a batch of email delivery events (delivered, opened, clicked, bounced, unsubscribed, failed)
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /webhooks/email [post]
func (h *WebhookHandler) HandleEmailWebhook(c *gin.Context) {
	var events []tracking.EmailEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	if err := h.tracker.HandleEmailEvents(c.Request.Context(), events); err != nil {
		logrus.Errorf("Failed to process email events: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "received", "events": len(events)})
}

// TrackOpen godoc
// @Summary Email open tracking pixel
// @Tags tracking
// @Produce gif
// @Param linkID path string true "Campaign contact link ID"
// @Success 200 {string} binary
// @Router /t/open/{linkID} [get]
func (h *WebhookHandler) TrackOpen(c *gin.Context) {
	if err := h.tracker.HandleLinkEvent(c.Request.Context(), c.Param("linkID"), tracking.EventOpened); err != nil {
		logrus.Errorf("Failed to record open: %v", err)
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/gif", trackingPixel)
}

// TrackClick godoc
// @Summary Email click tracking redirect
// @Tags tracking
// @Param linkID path string true "Campaign contact link ID"
// @Param url query string true "Destination URL"
// @Success 302 {string} string
// @Router /t/click/{linkID} [get]
func (h *WebhookHandler) TrackClick(c *gin.Context) {
	if err := h.tracker.HandleLinkEvent(c.Request.Context(), c.Param("linkID"), tracking.EventClicked); err != nil {
		logrus.Errorf("Failed to record click: %v", err)
	}

	target, err := parseRedirectTarget(c.Query("url"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid url parameter"})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// parseRedirectTarget accepts only absolute http(s) URLs so the click
// endpoint cannot be abused to redirect into javascript:, data: or
// scheme-relative destinations.
func parseRedirectTarget(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("url parameter is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("unsupported redirect target %q", raw)
	}
	return parsed.String(), nil
}
