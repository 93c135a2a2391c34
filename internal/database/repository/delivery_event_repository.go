package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/outreachly/outreachly-backend/internal/models"
)

type DeliveryEventRepository struct {
	db *gorm.DB
}

func NewDeliveryEventRepository(db *gorm.DB) *DeliveryEventRepository {
	return &DeliveryEventRepository{db: db}
}

// RecordOnce inserts a delivery event, keyed by (provider message id,
// event type). Returns false when the event was already recorded, so
// callers can skip reprocessing a replayed webhook.
func (r *DeliveryEventRepository) RecordOnce(providerMessageID, eventType, payload string, occurredAt time.Time) (bool, error) {
	event := &models.DeliveryEvent{
		ProviderMessageID: providerMessageID,
		EventType:         eventType,
		Payload:           payload,
		OccurredAt:        occurredAt,
	}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_message_id"}, {Name: "event_type"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
