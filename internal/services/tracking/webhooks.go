package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MetaWebhookPayload is the Graph API webhook envelope for the
// whatsapp_business_account object.
type MetaWebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string           `json:"field"`
			Value MetaWebhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// MetaWebhookValue carries either message status updates or incoming
// messages, depending on the change.
type MetaWebhookValue struct {
	MessagingProduct string `json:"messaging_product"`
	Statuses         []struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Errors    []struct {
			Code  int    `json:"code"`
			Title string `json:"title"`
		} `json:"errors"`
	} `json:"statuses"`
	Messages []struct {
		From string `json:"from"`
		Type string `json:"type"`
		Text struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
}

// metaEventTypes maps Graph API status strings onto the canonical event
// vocabulary. WhatsApp "read" counts as an open.
var metaEventTypes = map[string]string{
	"delivered":   EventDelivered,
	"read":        EventOpened,
	"failed":      EventFailed,
	"undelivered": EventFailed,
}

// HandleMetaWebhook processes a Meta Cloud API webhook body: status
// updates feed the delivery event path, incoming messages feed the
// reply/opt-in path. Individual failures are logged and do not abort the
// rest of the batch, since Meta retries the whole delivery otherwise.
func (t *Tracker) HandleMetaWebhook(ctx context.Context, body []byte) error {
	var payload MetaWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("invalid webhook payload: %w", err)
	}

	var firstErr error
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for _, status := range value.Statuses {
				eventType, ok := metaEventTypes[status.Status]
				if !ok {
					continue
				}
				var errCode, errMessage string
				if len(status.Errors) > 0 {
					errCode = strconv.Itoa(status.Errors[0].Code)
					errMessage = status.Errors[0].Title
				}
				err := t.HandleDeliveryEvent(ctx, status.ID, eventType, metaTimestamp(status.Timestamp), errCode, errMessage)
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}

			for _, message := range value.Messages {
				err := t.HandleIncomingMessage(ctx, "+"+message.From, message.Text.Body)
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// metaTimestamp parses the unix-seconds string Meta puts on statuses.
func metaTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now()
	}
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(seconds, 0)
}

// twilioEventTypes maps Twilio MessageStatus values onto the canonical
// event vocabulary.
var twilioEventTypes = map[string]string{
	"delivered":   EventDelivered,
	"read":        EventOpened,
	"failed":      EventFailed,
	"undelivered": EventFailed,
}

// HandleTwilioStatus processes one Twilio status callback
// (application/x-www-form-urlencoded MessageSid/MessageStatus pair).
func (t *Tracker) HandleTwilioStatus(ctx context.Context, messageSid, messageStatus, errorCode string) error {
	eventType, ok := twilioEventTypes[messageStatus]
	if !ok {
		return nil
	}
	return t.HandleDeliveryEvent(ctx, messageSid, eventType, time.Now(), errorCode, "")
}

// EmailEvent is one entry in a generic email provider webhook batch.
type EmailEvent struct {
	ProviderMessageID string `json:"provider_message_id"`
	Event             string `json:"event"`
	Timestamp         int64  `json:"timestamp"`
	ErrorCode         string `json:"error_code"`
	ErrorMessage      string `json:"error_message"`
}

// HandleEmailEvents processes a batch of email delivery events
// (delivered, opened, clicked, bounced, unsubscribed, failed).
func (t *Tracker) HandleEmailEvents(ctx context.Context, events []EmailEvent) error {
	var firstErr error
	for _, event := range events {
		occurredAt := time.Now()
		if event.Timestamp > 0 {
			occurredAt = time.Unix(event.Timestamp, 0)
		}
		err := t.HandleDeliveryEvent(ctx, event.ProviderMessageID, event.Event, occurredAt, event.ErrorCode, event.ErrorMessage)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
