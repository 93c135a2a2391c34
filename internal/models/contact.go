package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact represents a person who may receive campaign content.
// Email campaigns require IsSubscribed; WhatsApp campaigns require an
// explicitly recorded opt-in (WhatsAppOptIn plus timestamp).
type Contact struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string `json:"user_id" gorm:"not null;index;type:uuid"`

	Email            string `json:"email" gorm:"type:varchar(255);not null;index"`
	Phone            string `json:"phone" gorm:"type:varchar(30)"`
	PhoneCountryCode string `json:"phone_country_code" gorm:"type:varchar(6);default:'+1'"`

	// Profile fields used for personalization
	FirstName    string        `json:"first_name" gorm:"type:varchar(100)"`
	LastName     string        `json:"last_name" gorm:"type:varchar(100)"`
	FullName     string        `json:"full_name" gorm:"type:varchar(255)"`
	Company      string        `json:"company" gorm:"type:varchar(255)"`
	JobTitle     string        `json:"job_title" gorm:"type:varchar(255)"`
	Location     string        `json:"location" gorm:"type:varchar(255)"`
	Bio          string        `json:"bio" gorm:"type:text"`
	CustomFields JSONMap       `json:"custom_fields" gorm:"type:text"`
	Tags         StringList    `json:"tags" gorm:"type:text"`
	Social       SocialContext `json:"social" gorm:"type:text"`

	// Channel opt-in
	IsSubscribed         bool       `json:"is_subscribed" gorm:"default:true"`
	WhatsAppOptIn        bool       `json:"whatsapp_opt_in" gorm:"column:whatsapp_opt_in;default:false"`
	WhatsAppOptInAt      *time.Time `json:"whatsapp_opt_in_at" gorm:"column:whatsapp_opt_in_at"`
	WhatsAppOptInPending bool       `json:"whatsapp_opt_in_pending" gorm:"column:whatsapp_opt_in_pending;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Interactions []ContactInteraction `json:"interactions,omitempty" gorm:"foreignKey:ContactID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Contact model
func (Contact) TableName() string {
	return "contacts"
}

// BeforeCreate assigns a UUID so the model works on both postgres and sqlite.
func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// DisplayName returns the best available name for prompts and greetings.
func (c *Contact) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	if c.FirstName != "" {
		return c.FirstName
	}
	return c.Email
}

// EligibleFor reports whether the contact has the identity and opt-in the
// channel requires.
func (c *Contact) EligibleFor(channel CampaignChannel) bool {
	switch channel {
	case ChannelEmail:
		return c.IsSubscribed && strings.Contains(c.Email, "@")
	case ChannelWhatsApp:
		return c.WhatsAppOptIn && c.Phone != ""
	default:
		return false
	}
}

// ContactInteraction is one entry in a contact's interaction history,
// ordered by OccurredAt descending when loaded for personalization.
type ContactInteraction struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	ContactID       string    `json:"contact_id" gorm:"not null;index;type:uuid"`
	InteractionType string    `json:"interaction_type" gorm:"type:varchar(50);not null"`
	Summary         string    `json:"summary" gorm:"type:text"`
	OccurredAt      time.Time `json:"occurred_at" gorm:"index"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for the ContactInteraction model
func (ContactInteraction) TableName() string {
	return "contact_interactions"
}

// BeforeCreate assigns a UUID so the model works on both postgres and sqlite.
func (i *ContactInteraction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.OccurredAt.IsZero() {
		i.OccurredAt = time.Now()
	}
	return nil
}

// SocialContext is recent social-media activity attached to a contact,
// included in prompts when the campaign's include_social_context flag is
// set. Populated by the out-of-scope social import layer and stored as a
// JSON text column.
type SocialContext struct {
	Platform      string   `json:"platform,omitempty"`
	FollowerCount int      `json:"follower_count,omitempty"`
	Interests     []string `json:"interests,omitempty"`
	RecentPosts   []string `json:"recent_posts,omitempty"`
}

// IsZero reports whether no social context has been imported.
func (s SocialContext) IsZero() bool {
	return s.Platform == "" && s.FollowerCount == 0 &&
		len(s.Interests) == 0 && len(s.RecentPosts) == 0
}

// Value implements driver.Valuer
func (s SocialContext) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (s *SocialContext) Scan(value interface{}) error {
	if value == nil {
		*s = SocialContext{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type for SocialContext: %T", value)
	}
}

// CreateContactRequest represents the request to create a contact
type CreateContactRequest struct {
	Email            string            `json:"email" binding:"required,email" example:"jane@acme.io"`
	Phone            string            `json:"phone" example:"+14155551234"`
	PhoneCountryCode string            `json:"phone_country_code" example:"+1"`
	FirstName        string            `json:"first_name" example:"Jane"`
	LastName         string            `json:"last_name" example:"Doe"`
	FullName         string            `json:"full_name" example:"Jane Doe"`
	Company          string            `json:"company" example:"Acme"`
	JobTitle         string            `json:"job_title" example:"VP Engineering"`
	Location         string            `json:"location" example:"Austin, TX"`
	Bio              string            `json:"bio"`
	CustomFields     map[string]string `json:"custom_fields"`
	Tags             []string          `json:"tags"`
}

// AddInteractionRequest appends an interaction record to a contact
type AddInteractionRequest struct {
	InteractionType string     `json:"interaction_type" binding:"required" example:"email_reply"`
	Summary         string     `json:"summary" example:"Asked for pricing details"`
	OccurredAt      *time.Time `json:"occurred_at"`
}
