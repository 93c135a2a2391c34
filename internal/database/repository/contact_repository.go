package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/models"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create creates a new contact
func (r *ContactRepository) Create(contact *models.Contact) error {
	return r.db.Create(contact).Error
}

// GetByID retrieves a contact with its most recent interactions.
func (r *ContactRepository) GetByID(id string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Preload("Interactions", func(db *gorm.DB) *gorm.DB {
		return db.Order("occurred_at DESC").Limit(10)
	}).First(&contact, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetByUserIDAndID retrieves a contact scoped to its owner
func (r *ContactRepository) GetByUserIDAndID(userID, contactID string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("user_id = ? AND id = ?", userID, contactID).
		Preload("Interactions", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at DESC").Limit(10)
		}).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetByIDs retrieves contacts by explicit ids, scoped to the owner.
func (r *ContactRepository) GetByIDs(userID string, ids []string) ([]*models.Contact, error) {
	var contacts []*models.Contact
	err := r.db.Where("user_id = ? AND id IN ?", userID, ids).Find(&contacts).Error
	return contacts, err
}

// FindByPhone looks a contact up by phone number in any stored format.
func (r *ContactRepository) FindByPhone(phone string) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.Where("phone = ?", phone).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// ListByUserID retrieves a page of contacts for a user.
func (r *ContactRepository) ListByUserID(userID string, offset, limit int) ([]*models.Contact, int64, error) {
	var total int64
	if err := r.db.Model(&models.Contact{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var contacts []*models.Contact
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").
		Offset(offset).Limit(limit).Find(&contacts).Error
	return contacts, total, err
}

// Update updates a contact
func (r *ContactRepository) Update(contact *models.Contact) error {
	return r.db.Save(contact).Error
}

// Delete deletes a contact
func (r *ContactRepository) Delete(userID, contactID string) error {
	return r.db.Where("user_id = ? AND id = ?", userID, contactID).
		Delete(&models.Contact{}).Error
}

// ListEligible returns the contacts a campaign of the given channel may
// target: subscribed contacts with an address for email, opted-in
// contacts with a phone number for WhatsApp. Tags narrow the set when
// present; tag matching happens in memory because tags live in a JSON
// text column.
func (r *ContactRepository) ListEligible(userID string, channel models.CampaignChannel, tags []string) ([]*models.Contact, error) {
	query := r.db.Where("user_id = ?", userID)
	switch channel {
	case models.ChannelEmail:
		query = query.Where("is_subscribed = ?", true).Where("email <> ''")
	case models.ChannelWhatsApp:
		query = query.Where("whatsapp_opt_in = ?", true).Where("phone <> ''")
	}

	var contacts []*models.Contact
	if err := query.Find(&contacts).Error; err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return contacts, nil
	}

	filtered := make([]*models.Contact, 0, len(contacts))
	for _, c := range contacts {
		for _, tag := range tags {
			if c.Tags.Contains(tag) {
				filtered = append(filtered, c)
				break
			}
		}
	}
	return filtered, nil
}

// SetWhatsAppOptInPending marks a contact as awaiting opt-in confirmation.
func (r *ContactRepository) SetWhatsAppOptInPending(contactID string, pending bool) error {
	return r.db.Model(&models.Contact{}).Where("id = ?", contactID).
		Update("whatsapp_opt_in_pending", pending).Error
}

// ConfirmWhatsAppOptIn records a confirmed opt-in with its timestamp.
func (r *ContactRepository) ConfirmWhatsAppOptIn(contactID string) error {
	now := time.Now()
	return r.db.Model(&models.Contact{}).Where("id = ?", contactID).Updates(map[string]interface{}{
		"whatsapp_opt_in":         true,
		"whatsapp_opt_in_at":      &now,
		"whatsapp_opt_in_pending": false,
	}).Error
}

// ClearWhatsAppOptIn revokes opt-in after a STOP/UNSUBSCRIBE reply.
func (r *ContactRepository) ClearWhatsAppOptIn(contactID string) error {
	return r.db.Model(&models.Contact{}).Where("id = ?", contactID).Updates(map[string]interface{}{
		"whatsapp_opt_in":         false,
		"whatsapp_opt_in_pending": false,
	}).Error
}

// AddInteraction appends an interaction record to a contact's history.
func (r *ContactRepository) AddInteraction(interaction *models.ContactInteraction) error {
	return r.db.Create(interaction).Error
}

// ListInteractions returns a contact's interaction history, newest first.
func (r *ContactRepository) ListInteractions(contactID string, limit int) ([]*models.ContactInteraction, error) {
	var interactions []*models.ContactInteraction
	err := r.db.Where("contact_id = ?", contactID).
		Order("occurred_at DESC").Limit(limit).Find(&interactions).Error
	return interactions, err
}
