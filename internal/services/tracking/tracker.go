// Package tracking processes delivery-provider feedback: status webhooks,
// incoming WhatsApp messages, and email open/click tracking. All paths
// converge on HandleDeliveryEvent, which dedupes, advances the link state
// machine and recomputes campaign counters from the links.
package tracking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
)

// Canonical delivery event types. Providers map their own vocabulary onto
// these before reaching HandleDeliveryEvent.
const (
	EventDelivered    = "delivered"
	EventOpened       = "opened"
	EventClicked      = "clicked"
	EventBounced      = "bounced"
	EventFailed       = "failed"
	EventUnsubscribed = "unsubscribed"
)

// eventTransitions maps event types to link statuses. Events outside this
// map (e.g. a provider echoing "sent") are recorded but move nothing.
var eventTransitions = map[string]models.ContactStatus{
	EventDelivered:    models.StatusDelivered,
	EventOpened:       models.StatusOpened,
	EventClicked:      models.StatusClicked,
	EventBounced:      models.StatusBounced,
	EventFailed:       models.StatusFailed,
	EventUnsubscribed: models.StatusUnsubscribed,
}

// Tracker applies provider feedback to campaign links and contacts.
type Tracker struct {
	campaignRepo *repository.CampaignRepository
	contactRepo  *repository.ContactRepository
	linkRepo     *repository.CampaignContactRepository
	eventRepo    *repository.DeliveryEventRepository
}

func NewTracker(
	campaignRepo *repository.CampaignRepository,
	contactRepo *repository.ContactRepository,
	linkRepo *repository.CampaignContactRepository,
	eventRepo *repository.DeliveryEventRepository,
) *Tracker {
	return &Tracker{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		linkRepo:     linkRepo,
		eventRepo:    eventRepo,
	}
}

// HandleDeliveryEvent applies one provider event. Processing is
// idempotent: a duplicate (message, event) pair is dropped before any
// state changes. Counter updates always go through the full recompute;
// this path never increments counters directly.
func (t *Tracker) HandleDeliveryEvent(ctx context.Context, providerMessageID, eventType string, occurredAt time.Time, errCode, errMessage string) error {
	if providerMessageID == "" || eventType == "" {
		return nil
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	fresh, err := t.eventRepo.RecordOnce(providerMessageID, eventType, errMessage, occurredAt)
	if err != nil {
		return err
	}
	if !fresh {
		logrus.Debugf("Duplicate delivery event dropped: %s %s", providerMessageID, eventType)
		return nil
	}

	link, err := t.linkRepo.FindByProviderMessageID(providerMessageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.Debugf("Delivery event for unknown message %s ignored", providerMessageID)
			return nil
		}
		return err
	}

	return t.applyEvent(link, eventType, occurredAt, errCode, errMessage)
}

// HandleLinkEvent applies an open or click observed directly on a
// tracking endpoint, keyed by the link ID embedded in the URL. Repeat
// hits dedupe on the provider message ID when the link has one, and on
// the link ID otherwise.
func (t *Tracker) HandleLinkEvent(ctx context.Context, linkID, eventType string) error {
	link, err := t.linkRepo.GetByID(linkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	key := link.ProviderMessageID
	if key == "" {
		key = link.ID
	}
	fresh, err := t.eventRepo.RecordOnce(key, eventType, "", time.Now())
	if err != nil {
		return err
	}
	if !fresh {
		logrus.Debugf("Duplicate tracking event dropped: %s %s", key, eventType)
		return nil
	}

	return t.applyEvent(link, eventType, time.Now(), "", "")
}

// applyEvent advances a resolved link for one freshly recorded event and
// refreshes the campaign's counters.
func (t *Tracker) applyEvent(link *models.CampaignContact, eventType string, occurredAt time.Time, errCode, errMessage string) error {
	target, ok := eventTransitions[eventType]
	if !ok {
		logrus.Debugf("Delivery event %s carries no transition", eventType)
		return nil
	}

	err := t.linkRepo.Transition(link.ID, target, repository.LinkFields{
		At:           occurredAt,
		ErrorCode:    errCode,
		ErrorMessage: errMessage,
	})
	if err != nil {
		// Late or out-of-order events lose against the monotonic state
		// machine; the event stays recorded for audit.
		if errors.Is(err, repository.ErrInvalidTransition) {
			logrus.Debugf("Event %s for link %s ignored: %v", eventType, link.ID, err)
		} else {
			return err
		}
	}

	if target == models.StatusUnsubscribed {
		t.recordUnsubscribe(link.ContactID)
	}

	return t.refreshCounters(link.CampaignID)
}

func (t *Tracker) recordUnsubscribe(contactID string) {
	contact, err := t.contactRepo.GetByID(contactID)
	if err != nil {
		return
	}
	contact.IsSubscribed = false
	if err := t.contactRepo.Update(contact); err != nil {
		logrus.Errorf("Failed to unsubscribe contact %s: %v", contactID, err)
	}
}

func (t *Tracker) refreshCounters(campaignID string) error {
	counters, err := t.linkRepo.RecomputeCampaignCounters(campaignID)
	if err != nil {
		return err
	}
	return t.campaignRepo.UpdateCounters(campaignID, counters)
}

// Opt-in vocabulary. A first keyword only marks the contact pending; an
// explicit confirmation while pending records the opt-in.
var (
	optInKeywords   = []string{"subscribe", "opt in", "join", "start", "yes"}
	confirmKeywords = []string{"yes", "confirm"}
	optOutKeywords  = []string{"stop", "unsubscribe", "opt out"}
)

func matchesAny(message string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

// HandleIncomingMessage processes a WhatsApp reply: it is logged as a
// contact interaction, and opt-in state advances through the two-step
// keyword flow. Unknown senders are ignored.
func (t *Tracker) HandleIncomingMessage(ctx context.Context, from, text string) error {
	contact, err := t.contactRepo.FindByPhone(from)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.Debugf("Incoming WhatsApp message from unknown number %s ignored", from)
			return nil
		}
		return err
	}

	summary := text
	if summary == "" {
		summary = "Media received"
	}
	interaction := &models.ContactInteraction{
		ContactID:       contact.ID,
		InteractionType: "whatsapp_reply",
		Summary:         summary,
		OccurredAt:      time.Now(),
	}
	if err := t.contactRepo.AddInteraction(interaction); err != nil {
		logrus.Errorf("Failed to log interaction for contact %s: %v", contact.ID, err)
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case matchesAny(normalized, optOutKeywords):
		logrus.Infof("WhatsApp opt-out recorded for %s", from)
		return t.contactRepo.ClearWhatsAppOptIn(contact.ID)

	case contact.WhatsAppOptInPending && matchesAny(normalized, confirmKeywords):
		logrus.Infof("WhatsApp opt-in confirmed for %s", from)
		return t.contactRepo.ConfirmWhatsAppOptIn(contact.ID)

	case !contact.WhatsAppOptIn && matchesAny(normalized, optInKeywords):
		logrus.Infof("WhatsApp opt-in pending confirmation for %s", from)
		return t.contactRepo.SetWhatsAppOptInPending(contact.ID, true)
	}

	return nil
}
