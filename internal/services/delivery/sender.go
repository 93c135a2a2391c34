// Package delivery sends generated campaign content over a concrete
// channel: SMTP for email, Meta Cloud API or Twilio for WhatsApp. Every
// transport reports the same canonical outcomes so the dispatch loop never
// branches on provider-specific errors.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/outreachly/outreachly-backend/internal/config"
)

var (
	// ErrRejected means the provider permanently refused the message (bad
	// address or number, malformed payload). Retrying will not help.
	ErrRejected = errors.New("message rejected by provider")

	// ErrThrottled means the provider rate limited us. Retry later.
	ErrThrottled = errors.New("provider rate limit exceeded")

	// ErrTransportError means the provider could not be reached or failed
	// upstream. Retry may help.
	ErrTransportError = errors.New("delivery transport error")

	// ErrTemplateRequired means a WhatsApp free-text message was attempted
	// outside a customer-initiated session window.
	ErrTemplateRequired = errors.New("whatsapp template required outside session window")

	// ErrNotConfigured means the channel has no credentials.
	ErrNotConfigured = errors.New("delivery channel not configured")
)

// Message is one outbound send, channel-agnostic. Email senders use
// Subject/TextBody/HTMLBody; WhatsApp senders use TextBody for session
// messages and the Template fields otherwise.
type Message struct {
	// To is an email address or an E.164 phone number.
	To string

	Subject  string
	TextBody string
	HTMLBody string

	// CampaignContactID threads the link through provider callbacks.
	CampaignContactID string

	// WhatsApp template fields. TemplateName is a Meta template name or a
	// Twilio Content SID depending on the provider.
	TemplateName      string
	TemplateLanguage  string
	TemplateVariables map[string]string

	MediaURL string

	// SessionOpen marks a recipient inside the 24-hour customer service
	// window, where free-form text is allowed.
	SessionOpen bool
}

// Sender delivers one message and returns the provider's message ID, which
// later keys delivery events back onto the campaign link.
type Sender interface {
	Send(ctx context.Context, msg Message) (providerMessageID string, err error)
}

// NewWhatsAppSender returns the sender for the configured WhatsApp
// upstream. One dispatch run always uses a single provider.
func NewWhatsAppSender(cfg config.WhatsAppConfig) (Sender, error) {
	switch cfg.Provider {
	case config.ProviderMetaCloud:
		return NewMetaCloudSender(cfg), nil
	case config.ProviderTwilio:
		return NewTwilioSender(cfg), nil
	default:
		return nil, fmt.Errorf("%w: no whatsapp provider credentials", ErrNotConfigured)
	}
}
