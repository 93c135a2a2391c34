package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/outreachly/outreachly-backend/internal/config"
)

// TwilioSender delivers WhatsApp messages through the Twilio Messaging API.
// Template sends use a Twilio Content SID in Message.TemplateName.
type TwilioSender struct {
	cfg    config.WhatsAppConfig
	client *twilio.RestClient
}

func NewTwilioSender(cfg config.WhatsAppConfig) *TwilioSender {
	return &TwilioSender{
		cfg: cfg,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
	}
}

// Send delivers one WhatsApp message and returns the Twilio message SID.
func (s *TwilioSender) Send(ctx context.Context, msg Message) (string, error) {
	if !s.cfg.Configured() {
		return "", fmt.Errorf("%w: missing Twilio credentials", ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetFrom("whatsapp:" + s.cfg.WhatsAppFrom)
	params.SetTo("whatsapp:" + msg.To)

	switch {
	case msg.TemplateName != "":
		params.SetContentSid(msg.TemplateName)
		if len(msg.TemplateVariables) > 0 {
			vars, err := json.Marshal(msg.TemplateVariables)
			if err != nil {
				return "", fmt.Errorf("%w: encoding content variables: %v", ErrRejected, err)
			}
			params.SetContentVariables(string(vars))
		}
	case msg.TextBody != "":
		if !msg.SessionOpen {
			return "", fmt.Errorf("%w: recipient %s has no open session", ErrTemplateRequired, msg.To)
		}
		params.SetBody(msg.TextBody)
	default:
		return "", fmt.Errorf("%w: message has no template or text", ErrRejected)
	}

	if msg.MediaURL != "" {
		params.SetMediaUrl([]string{msg.MediaURL})
	}

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", classifyTwilioError(err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", fmt.Errorf("%w: no message SID in Twilio response", ErrTransportError)
	}

	logrus.Infof("WhatsApp message sent via Twilio: %s", *resp.Sid)
	return *resp.Sid, nil
}

// classifyTwilioError maps Twilio REST errors to the canonical sentinels.
func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		switch {
		case restErr.Status == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrThrottled, err)
		case restErr.Status >= 400 && restErr.Status < 500:
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrTransportError, err)
}
