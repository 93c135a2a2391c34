package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactStatus is the per-recipient delivery state machine. The forward
// chain is PENDING -> GENERATED -> SENT -> DELIVERED -> OPENED/CLICKED;
// FAILED is reachable from any in-flight state, and BOUNCED/UNSUBSCRIBED
// are terminal states set by delivery-provider callbacks.
type ContactStatus string

const (
	StatusPending      ContactStatus = "PENDING"
	StatusGenerated    ContactStatus = "GENERATED"
	StatusQueued       ContactStatus = "QUEUED"
	StatusSent         ContactStatus = "SENT"
	StatusDelivered    ContactStatus = "DELIVERED"
	StatusOpened       ContactStatus = "OPENED"
	StatusClicked      ContactStatus = "CLICKED"
	StatusBounced      ContactStatus = "BOUNCED"
	StatusFailed       ContactStatus = "FAILED"
	StatusUnsubscribed ContactStatus = "UNSUBSCRIBED"
)

// statusRank orders the forward chain so transitions never move a link
// backwards. FAILED, BOUNCED and UNSUBSCRIBED sit outside the chain.
var statusRank = map[ContactStatus]int{
	StatusPending:   0,
	StatusGenerated: 1,
	StatusQueued:    2,
	StatusSent:      3,
	StatusDelivered: 4,
	StatusOpened:    5,
	StatusClicked:   6,
}

// CanTransition reports whether a link may move from one status to
// another. Forward-chain moves must increase rank; FAILED is allowed
// from any non-terminal state; BOUNCED and UNSUBSCRIBED are allowed once
// the message left the system.
func CanTransition(from, to ContactStatus) bool {
	if from == to {
		return false
	}
	switch to {
	case StatusFailed:
		return from != StatusBounced && from != StatusUnsubscribed
	case StatusBounced, StatusUnsubscribed:
		fromRank, ok := statusRank[from]
		return ok && fromRank >= statusRank[StatusSent]
	}
	fromRank, fromOK := statusRank[from]
	toRank, toOK := statusRank[to]
	if fromOK && toOK {
		return toRank > fromRank
	}
	// Retrying a failed link re-enters the chain at GENERATED or QUEUED.
	if from == StatusFailed {
		return to == StatusGenerated || to == StatusQueued
	}
	return false
}

// CampaignContact is the per-recipient unit of work: the join record
// that owns personalization output and the full delivery timeline for
// one contact within one campaign. Exactly one exists per
// (campaign, contact) pair.
type CampaignContact struct {
	ID         string        `json:"id" gorm:"primaryKey;type:uuid"`
	CampaignID string        `json:"campaign_id" gorm:"not null;type:uuid;uniqueIndex:idx_campaign_contact"`
	ContactID  string        `json:"contact_id" gorm:"not null;type:uuid;uniqueIndex:idx_campaign_contact"`
	Status     ContactStatus `json:"status" gorm:"type:varchar(20);not null;index;default:'PENDING'"`

	// Generated content
	PersonalizedSubject string `json:"personalized_subject" gorm:"type:text"`
	PersonalizedBody    string `json:"personalized_body" gorm:"type:text"`
	HTMLBody            string `json:"html_body" gorm:"type:text"`
	GenerationTimeMs    int64  `json:"generation_time_ms" gorm:"default:0"`

	// Delivery metadata
	ProviderMessageID string     `json:"provider_message_id" gorm:"type:varchar(255);index"`
	SentAt            *time.Time `json:"sent_at"`
	DeliveredAt       *time.Time `json:"delivered_at"`
	OpenedAt          *time.Time `json:"opened_at"`
	ClickedAt         *time.Time `json:"clicked_at"`
	BouncedAt         *time.Time `json:"bounced_at"`
	FailedAt          *time.Time `json:"failed_at"`
	ErrorCode         string     `json:"error_code" gorm:"type:varchar(50)"`
	ErrorMessage      string     `json:"error_message" gorm:"type:text"`
	SendAttempts      int        `json:"send_attempts" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Contact Contact `json:"contact,omitempty" gorm:"foreignKey:ContactID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the CampaignContact model
func (CampaignContact) TableName() string {
	return "campaign_contacts"
}

// BeforeCreate assigns a UUID so the model works on both postgres and sqlite.
func (cc *CampaignContact) BeforeCreate(tx *gorm.DB) error {
	if cc.ID == "" {
		cc.ID = uuid.NewString()
	}
	return nil
}

// DeliveryEvent is the dedupe ledger for provider callbacks: one row per
// (provider message id, event type). Reprocessing the same provider
// event is a no-op, which keeps webhook handling idempotent.
type DeliveryEvent struct {
	ID                string    `json:"id" gorm:"primaryKey;type:uuid"`
	ProviderMessageID string    `json:"provider_message_id" gorm:"not null;type:varchar(255);uniqueIndex:idx_event_dedupe"`
	EventType         string    `json:"event_type" gorm:"not null;type:varchar(30);uniqueIndex:idx_event_dedupe"`
	Payload           string    `json:"payload" gorm:"type:text"`
	OccurredAt        time.Time `json:"occurred_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName specifies the table name for the DeliveryEvent model
func (DeliveryEvent) TableName() string {
	return "delivery_events"
}

// BeforeCreate assigns a UUID so the model works on both postgres and sqlite.
func (e *DeliveryEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	return nil
}
