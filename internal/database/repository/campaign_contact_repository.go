package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/outreachly/outreachly-backend/internal/models"
)

// ErrInvalidTransition is returned when a link status change would move
// backwards through the delivery pipeline.
var ErrInvalidTransition = errors.New("invalid link status transition")

type CampaignContactRepository struct {
	db *gorm.DB
}

func NewCampaignContactRepository(db *gorm.DB) *CampaignContactRepository {
	return &CampaignContactRepository{db: db}
}

// Upsert attaches a contact to a campaign, creating the link in PENDING
// if it does not exist. Idempotent: re-attaching an existing pair leaves
// the link untouched.
func (r *CampaignContactRepository) Upsert(campaignID, contactID string) (*models.CampaignContact, error) {
	link := &models.CampaignContact{
		CampaignID: campaignID,
		ContactID:  contactID,
		Status:     models.StatusPending,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "contact_id"}},
		DoNothing: true,
	}).Create(link).Error
	if err != nil {
		return nil, err
	}

	// Re-read so callers always see the persisted row, whether it was
	// just created or already existed.
	var existing models.CampaignContact
	err = r.db.Where("campaign_id = ? AND contact_id = ?", campaignID, contactID).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// GetByID retrieves a link by its id.
func (r *CampaignContactRepository) GetByID(id string) (*models.CampaignContact, error) {
	var link models.CampaignContact
	if err := r.db.First(&link, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// FindByProviderMessageID locates the link a delivery-provider callback
// refers to.
func (r *CampaignContactRepository) FindByProviderMessageID(providerMessageID string) (*models.CampaignContact, error) {
	var link models.CampaignContact
	err := r.db.Where("provider_message_id = ?", providerMessageID).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// ListByStatus returns a campaign's links in any of the given statuses,
// with contacts preloaded, in attachment order.
func (r *CampaignContactRepository) ListByStatus(campaignID string, statuses ...models.ContactStatus) ([]*models.CampaignContact, error) {
	var links []*models.CampaignContact
	err := r.db.Where("campaign_id = ? AND status IN ?", campaignID, statuses).
		Preload("Contact").Order("created_at ASC").Find(&links).Error
	return links, err
}

// CountByCampaign returns the number of links attached to a campaign.
func (r *CampaignContactRepository) CountByCampaign(campaignID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.CampaignContact{}).
		Where("campaign_id = ?", campaignID).Count(&count).Error
	return count, err
}

// LinkFields carries the optional columns a transition may stamp.
type LinkFields struct {
	PersonalizedSubject string
	PersonalizedBody    string
	HTMLBody            string
	GenerationTimeMs    int64
	ProviderMessageID   string
	ErrorCode           string
	ErrorMessage        string
	IncrementAttempts   bool
	At                  time.Time
}

// Transition advances a link through the delivery pipeline. Transitions
// are monotonic forward; FAILED is reachable from any in-flight state.
// An already-terminal or backwards move returns ErrInvalidTransition.
func (r *CampaignContactRepository) Transition(id string, to models.ContactStatus, fields LinkFields) error {
	link, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if !models.CanTransition(link.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, link.Status, to)
	}

	at := fields.At
	if at.IsZero() {
		at = time.Now()
	}

	updates := map[string]interface{}{"status": to}
	switch to {
	case models.StatusGenerated:
		updates["personalized_subject"] = fields.PersonalizedSubject
		updates["personalized_body"] = fields.PersonalizedBody
		updates["html_body"] = fields.HTMLBody
		updates["generation_time_ms"] = fields.GenerationTimeMs
	case models.StatusSent:
		updates["sent_at"] = &at
		updates["provider_message_id"] = fields.ProviderMessageID
	case models.StatusDelivered:
		updates["delivered_at"] = &at
	case models.StatusOpened:
		updates["opened_at"] = &at
	case models.StatusClicked:
		updates["clicked_at"] = &at
	case models.StatusBounced:
		updates["bounced_at"] = &at
		updates["error_code"] = fields.ErrorCode
		updates["error_message"] = fields.ErrorMessage
	case models.StatusFailed:
		updates["failed_at"] = &at
		updates["error_code"] = fields.ErrorCode
		updates["error_message"] = fields.ErrorMessage
	}
	if fields.IncrementAttempts {
		updates["send_attempts"] = gorm.Expr("send_attempts + 1")
	}

	return r.db.Model(&models.CampaignContact{}).Where("id = ?", id).Updates(updates).Error
}

// RecomputeCampaignCounters derives every campaign counter from a single
// GROUP BY over link status. This is the source of truth for aggregates:
// safe to call repeatedly and concurrently with link updates, it may
// briefly under-count in-flight transitions but converges on the next
// call and never over-counts. The rollup is cumulative — a link that
// reached CLICKED also counts as opened, delivered and sent.
func (r *CampaignContactRepository) RecomputeCampaignCounters(campaignID string) (models.CampaignCounters, error) {
	type statusCount struct {
		Status models.ContactStatus
		Count  int
	}
	var rows []statusCount
	err := r.db.Model(&models.CampaignContact{}).
		Select("status, count(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").Scan(&rows).Error
	if err != nil {
		return models.CampaignCounters{}, err
	}

	var counters models.CampaignCounters
	for _, row := range rows {
		counters.TotalContacts += row.Count
		switch row.Status {
		case models.StatusGenerated, models.StatusQueued:
			counters.Generated += row.Count
		case models.StatusSent:
			counters.Generated += row.Count
			counters.Sent += row.Count
		case models.StatusDelivered:
			counters.Generated += row.Count
			counters.Sent += row.Count
			counters.Delivered += row.Count
		case models.StatusOpened:
			counters.Generated += row.Count
			counters.Sent += row.Count
			counters.Delivered += row.Count
			counters.Opened += row.Count
		case models.StatusClicked:
			counters.Generated += row.Count
			counters.Sent += row.Count
			counters.Delivered += row.Count
			counters.Opened += row.Count
			counters.Clicked += row.Count
		case models.StatusBounced:
			counters.Generated += row.Count
			counters.Sent += row.Count
			counters.Bounced += row.Count
		case models.StatusUnsubscribed:
			counters.Generated += row.Count
			counters.Sent += row.Count
		case models.StatusFailed:
			counters.Failed += row.Count
		}
	}
	return counters, nil
}

// StatusBreakdown returns the raw per-status link counts for analytics.
func (r *CampaignContactRepository) StatusBreakdown(campaignID string) (map[models.ContactStatus]int, error) {
	type statusCount struct {
		Status models.ContactStatus
		Count  int
	}
	var rows []statusCount
	err := r.db.Model(&models.CampaignContact{}).
		Select("status, count(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	breakdown := make(map[models.ContactStatus]int, len(rows))
	for _, row := range rows {
		breakdown[row.Status] = row.Count
	}
	return breakdown, nil
}
