package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/outreachly/outreachly-backend/internal/config"
)

const defaultGraphBaseURL = "https://graph.facebook.com"

// MetaCloudSender delivers WhatsApp messages through the Meta Cloud API.
type MetaCloudSender struct {
	cfg        config.WhatsAppConfig
	baseURL    string
	httpClient *http.Client
}

func NewMetaCloudSender(cfg config.WhatsAppConfig) *MetaCloudSender {
	return &MetaCloudSender{
		cfg:        cfg,
		baseURL:    defaultGraphBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL points the sender at a different Graph API host. Used by
// tests to target a local server.
func (s *MetaCloudSender) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimRight(baseURL, "/")
}

type metaTextPayload struct {
	Body string `json:"body"`
}

type metaParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type metaComponent struct {
	Type       string          `json:"type"`
	Parameters []metaParameter `json:"parameters"`
}

type metaTemplatePayload struct {
	Name       string          `json:"name"`
	Language   metaLanguage    `json:"language"`
	Components []metaComponent `json:"components,omitempty"`
}

type metaLanguage struct {
	Code string `json:"code"`
}

type metaMessageRequest struct {
	MessagingProduct string               `json:"messaging_product"`
	To               string               `json:"to"`
	Type             string               `json:"type"`
	Text             *metaTextPayload     `json:"text,omitempty"`
	Template         *metaTemplatePayload `json:"template,omitempty"`
	Image            *metaMediaPayload    `json:"image,omitempty"`
	Video            *metaMediaPayload    `json:"video,omitempty"`
	Document         *metaMediaPayload    `json:"document,omitempty"`
}

type metaMediaPayload struct {
	Link string `json:"link"`
}

type metaMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers one WhatsApp message. Template messages are always
// allowed; free text and media only inside an open session window.
func (s *MetaCloudSender) Send(ctx context.Context, msg Message) (string, error) {
	if !s.cfg.Configured() {
		return "", fmt.Errorf("%w: missing Meta Cloud API credentials", ErrNotConfigured)
	}

	req := metaMessageRequest{
		MessagingProduct: "whatsapp",
		To:               msg.To,
	}

	switch {
	case msg.TemplateName != "":
		lang := msg.TemplateLanguage
		if lang == "" {
			lang = "en"
		}
		tmpl := &metaTemplatePayload{
			Name:     msg.TemplateName,
			Language: metaLanguage{Code: lang},
		}
		if len(msg.TemplateVariables) > 0 {
			params := make([]metaParameter, 0, len(msg.TemplateVariables))
			for _, key := range sortedKeys(msg.TemplateVariables) {
				params = append(params, metaParameter{Type: "text", Text: msg.TemplateVariables[key]})
			}
			tmpl.Components = []metaComponent{{Type: "body", Parameters: params}}
		}
		req.Type = "template"
		req.Template = tmpl

	case msg.TextBody != "":
		if !msg.SessionOpen {
			return "", fmt.Errorf("%w: recipient %s has no open session", ErrTemplateRequired, msg.To)
		}
		req.Type = "text"
		req.Text = &metaTextPayload{Body: msg.TextBody}

	case msg.MediaURL != "":
		if !msg.SessionOpen {
			return "", fmt.Errorf("%w: recipient %s has no open session", ErrTemplateRequired, msg.To)
		}
		media := &metaMediaPayload{Link: msg.MediaURL}
		req.Type = mediaTypeFromURL(msg.MediaURL)
		switch req.Type {
		case "image":
			req.Image = media
		case "video":
			req.Video = media
		default:
			req.Document = media
		}

	default:
		return "", fmt.Errorf("%w: message has no template, text or media", ErrRejected)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", s.baseURL, s.cfg.APIVersion, s.cfg.PhoneNumberID)
	var resp metaMessageResponse
	if err := s.post(ctx, endpoint, req, &resp); err != nil {
		return "", err
	}

	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return "", fmt.Errorf("%w: no message ID in Graph API response", ErrTransportError)
	}

	logrus.Infof("WhatsApp message sent via Meta Cloud API: %s", resp.Messages[0].ID)
	return resp.Messages[0].ID, nil
}

// TemplateComponent is one section of a Meta message template definition.
type TemplateComponent struct {
	Type    string   `json:"type"`
	Format  string   `json:"format,omitempty"`
	Text    string   `json:"text,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Button is a template button definition.
type Button struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Template is a Meta message template submitted for approval.
type Template struct {
	Name       string              `json:"name"`
	Language   string              `json:"language"`
	Category   string              `json:"category"`
	Components []TemplateComponent `json:"components"`
}

// CreateTemplate submits a template to the business account for review.
func (s *MetaCloudSender) CreateTemplate(ctx context.Context, tmpl Template) error {
	if !s.cfg.Configured() || s.cfg.BusinessAccountID == "" {
		return fmt.Errorf("%w: missing business account credentials", ErrNotConfigured)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/message_templates", s.baseURL, s.cfg.APIVersion, s.cfg.BusinessAccountID)
	if err := s.post(ctx, endpoint, tmpl, &struct{}{}); err != nil {
		return err
	}

	logrus.Infof("WhatsApp template submitted: %s", tmpl.Name)
	return nil
}

// TemplateStatus fetches the review status of a named template
// (APPROVED, PENDING, REJECTED). Returns "UNKNOWN" when Meta has no
// record of the template.
func (s *MetaCloudSender) TemplateStatus(ctx context.Context, name string) (string, error) {
	if !s.cfg.Configured() || s.cfg.BusinessAccountID == "" {
		return "", fmt.Errorf("%w: missing business account credentials", ErrNotConfigured)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/message_templates?name=%s",
		s.baseURL, s.cfg.APIVersion, s.cfg.BusinessAccountID, url.QueryEscape(name))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	defer httpResp.Body.Close()

	if err := classifyStatus(httpResp); err != nil {
		return "", err
	}

	var body struct {
		Data []struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding template status: %v", ErrTransportError, err)
	}
	if len(body.Data) == 0 || body.Data[0].Status == "" {
		return "UNKNOWN", nil
	}
	return body.Data[0].Status, nil
}

// VerifyWebhookSignature checks the X-Hub-Signature-256 header against the
// raw request body. With no app secret configured verification is skipped.
func (s *MetaCloudSender) VerifyWebhookSignature(signature string, body []byte) bool {
	return VerifyMetaSignature(s.cfg.AppSecret, signature, body)
}

// VerifyMetaSignature checks a Meta webhook signature: HMAC-SHA256 of the
// raw body keyed with the app secret, hex encoded with a "sha256=" prefix.
func VerifyMetaSignature(appSecret, signature string, body []byte) bool {
	if appSecret == "" {
		logrus.Warn("WHATSAPP_APP_SECRET not set, skipping signature verification")
		return true
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *MetaCloudSender) post(ctx context.Context, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", ErrRejected, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	defer httpResp.Body.Close()

	if err := classifyStatus(httpResp); err != nil {
		return err
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: decoding response: %v", ErrTransportError, err)
	}
	return nil
}

// classifyStatus maps a Graph API HTTP status to the canonical sentinels.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: graph api returned 429", ErrThrottled)
	case resp.StatusCode < 500:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: graph api returned %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	default:
		return fmt.Errorf("%w: graph api returned %d", ErrTransportError, resp.StatusCode)
	}
}

// mediaTypeFromURL infers the Graph API media type from the link's file
// extension. Unknown extensions fall back to document.
func mediaTypeFromURL(mediaURL string) string {
	ext := strings.ToLower(strings.TrimPrefix(mediaURL[strings.LastIndex(mediaURL, ".")+1:], "."))
	switch ext {
	case "jpg", "jpeg", "png", "webp":
		return "image"
	case "mp4", "avi", "mov":
		return "video"
	default:
		return "document"
	}
}

// sortedKeys keeps template parameter order stable across sends.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
