package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"github.com/outreachly/outreachly-backend/internal/config"
)

// headerCampaignContact carries the link ID on outbound mail so bounce
// processing can correlate without parsing Message-IDs.
const headerCampaignContact = "X-Campaign-Contact-ID"

// EmailSender delivers campaign email over SMTP submission.
type EmailSender struct {
	cfg config.SMTPConfig
}

func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Send submits one message. The returned provider message ID is the
// Message-ID header we stamped on the mail, since SMTP gives us nothing
// better to correlate on.
func (s *EmailSender) Send(ctx context.Context, msg Message) (string, error) {
	if !s.cfg.Configured() {
		return "", fmt.Errorf("%w: missing SMTP credentials", ErrNotConfigured)
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return "", fmt.Errorf("%w: invalid sender address %q: %v", ErrRejected, s.cfg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return "", fmt.Errorf("%w: invalid recipient address %q: %v", ErrRejected, msg.To, err)
	}

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), s.cfg.Host)
	m.SetMessageIDWithValue(messageID)
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}
	if msg.CampaignContactID != "" {
		m.SetGenHeader(mail.Header(headerCampaignContact), msg.CampaignContactID)
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	// Port 465 speaks implicit TLS rather than STARTTLS.
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransportError, err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return "", fmt.Errorf("%w: %v", ErrTransportError, err)
	}

	logrus.Infof("Email sent to %s (message-id %s)", msg.To, messageID)
	return messageID, nil
}
