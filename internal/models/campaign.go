package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignChannel is the delivery transport family for a campaign.
type CampaignChannel string

const (
	ChannelEmail    CampaignChannel = "EMAIL"
	ChannelWhatsApp CampaignChannel = "WHATSAPP"
)

// CampaignStatus is the campaign lifecycle state machine:
// DRAFT -> GENERATING -> READY -> SENDING -> COMPLETED, with FAILED as
// the escape state. A generation error falls back to DRAFT.
type CampaignStatus string

const (
	CampaignDraft      CampaignStatus = "DRAFT"
	CampaignGenerating CampaignStatus = "GENERATING"
	CampaignReady      CampaignStatus = "READY"
	CampaignSending    CampaignStatus = "SENDING"
	CampaignCompleted  CampaignStatus = "COMPLETED"
	CampaignFailed     CampaignStatus = "FAILED"
)

// AIModelType selects the text generation backend for a campaign.
type AIModelType string

const (
	ModelTypeLocalLLM  AIModelType = "LOCAL_LLM"
	ModelTypeOpenAI    AIModelType = "OPENAI"
	ModelTypeAnthropic AIModelType = "ANTHROPIC"
)

// Personalization levels control how much recipient-specific detail is
// woven into generated content.
const (
	PersonalizationLow    = "LOW"
	PersonalizationMedium = "MEDIUM"
	PersonalizationHigh   = "HIGH"
)

// Campaign represents a unit of outbound work over one channel.
// The counter columns are a cache derived from CampaignContact state;
// they are recomputed from the links and are never the source of truth.
type Campaign struct {
	ID      string          `json:"id" gorm:"primaryKey;type:uuid"`
	UserID  string          `json:"user_id" gorm:"not null;index;type:uuid"`
	Name    string          `json:"name" gorm:"type:varchar(255);not null"`
	Channel CampaignChannel `json:"channel" gorm:"type:varchar(20);not null;index;default:'EMAIL'"`
	Status  CampaignStatus  `json:"status" gorm:"type:varchar(20);not null;index;default:'DRAFT'"`

	Description string `json:"description" gorm:"type:text"`

	// AI backend selection
	AIModelType AIModelType `json:"ai_model_type" gorm:"type:varchar(20);default:'LOCAL_LLM'"`
	AIModelName string      `json:"ai_model_name" gorm:"type:varchar(100);default:'llama3'"`

	// Personalization configuration
	SubjectTemplate             string `json:"subject_template" gorm:"type:text"`
	BaseTemplate                string `json:"base_template" gorm:"type:text"`
	CampaignGoal                string `json:"campaign_goal" gorm:"type:text"`
	PersonalizationInstructions string `json:"personalization_instructions" gorm:"type:text"`
	PersonalizationLevel        string `json:"personalization_level" gorm:"type:varchar(10);default:'MEDIUM'"`
	IncludeSocialContext        bool   `json:"include_social_context" gorm:"default:true"`
	IncludeInteractionHistory   bool   `json:"include_interaction_history" gorm:"default:true"`

	// WhatsApp campaigns target opted-in contacts matching these tags and
	// send a pre-approved message template.
	TargetTags       StringList `json:"target_tags" gorm:"type:text"`
	TemplateName     string     `json:"template_name" gorm:"type:varchar(255)"`
	TemplateLanguage string     `json:"template_language" gorm:"type:varchar(10);default:'en'"`

	// Aggregate counters (cache over link state)
	TotalContacts int `json:"total_contacts" gorm:"default:0"`
	Generated     int `json:"generated" gorm:"default:0"`
	Sent          int `json:"sent" gorm:"default:0"`
	Delivered     int `json:"delivered" gorm:"default:0"`
	Opened        int `json:"opened" gorm:"default:0"`
	Clicked       int `json:"clicked" gorm:"default:0"`
	Bounced       int `json:"bounced" gorm:"default:0"`
	Failed        int `json:"failed" gorm:"default:0"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	CampaignContacts []CampaignContact `json:"campaign_contacts,omitempty" gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Campaign model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate assigns a UUID so the model works on both postgres and sqlite.
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// IsEditable reports whether the campaign configuration may still change.
// A campaign is frozen once dispatch has started.
func (c *Campaign) IsEditable() bool {
	return c.Status != CampaignSending && c.Status != CampaignCompleted
}

// CreateCampaignRequest represents the request to create a new campaign
type CreateCampaignRequest struct {
	Name                        string   `json:"name" binding:"required" example:"Spring launch outreach"`
	Channel                     string   `json:"channel" binding:"required,oneof=EMAIL WHATSAPP" example:"EMAIL"`
	Description                 string   `json:"description" example:"Warm leads from the March webinar"`
	SubjectTemplate             string   `json:"subject_template" example:"Quick question about {{company}}"`
	BaseTemplate                string   `json:"base_template" example:"Hi, we just launched..."`
	CampaignGoal                string   `json:"campaign_goal" example:"Book a demo call"`
	AIModelType                 string   `json:"ai_model_type" example:"LOCAL_LLM"`
	AIModelName                 string   `json:"ai_model_name" example:"llama3"`
	PersonalizationInstructions string   `json:"personalization_instructions" example:"Keep it under 120 words"`
	PersonalizationLevel        string   `json:"personalization_level" example:"MEDIUM"`
	IncludeSocialContext        *bool    `json:"include_social_context" example:"true"`
	IncludeInteractionHistory   *bool    `json:"include_interaction_history" example:"true"`
	TargetTags                  []string `json:"target_tags"`
	TemplateName                string   `json:"template_name" example:"spring_launch"`
	TemplateLanguage            string   `json:"template_language" example:"en"`
}

// UpdateCampaignRequest represents the request to update a campaign
type UpdateCampaignRequest struct {
	Name                        string   `json:"name" example:"Spring launch outreach v2"`
	Description                 string   `json:"description"`
	SubjectTemplate             string   `json:"subject_template"`
	BaseTemplate                string   `json:"base_template"`
	CampaignGoal                string   `json:"campaign_goal"`
	AIModelType                 string   `json:"ai_model_type"`
	AIModelName                 string   `json:"ai_model_name"`
	PersonalizationInstructions string   `json:"personalization_instructions"`
	PersonalizationLevel        string   `json:"personalization_level"`
	IncludeSocialContext        *bool    `json:"include_social_context"`
	IncludeInteractionHistory   *bool    `json:"include_interaction_history"`
	TargetTags                  []string `json:"target_tags"`
	TemplateName                string   `json:"template_name"`
	TemplateLanguage            string   `json:"template_language"`
}

// AddContactsRequest attaches contacts to a campaign, either by explicit
// ids or by tags. Contacts lacking the channel's opt-in are skipped.
type AddContactsRequest struct {
	ContactIDs []string `json:"contact_ids"`
	Tags       []string `json:"tags"`
}

// SendCampaignRequest starts dispatch, or sends a single test message
// when a test destination is provided.
type SendCampaignRequest struct {
	TestEmail string `json:"test_email" example:"me@example.com"`
	TestPhone string `json:"test_phone" example:"+14155551234"`
}
