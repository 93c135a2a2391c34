package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/models"
)

// ErrCampaignLocked is returned when mutating a campaign that is
// currently sending.
var ErrCampaignLocked = errors.New("campaign is currently sending and cannot be modified")

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign
func (r *CampaignRepository) Create(campaign *models.Campaign) error {
	return r.db.Create(campaign).Error
}

// GetByID retrieves a campaign by ID
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.First(&campaign, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// GetByUserIDAndID retrieves a campaign scoped to its owner
func (r *CampaignRepository) GetByUserIDAndID(userID, campaignID string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.Where("user_id = ? AND id = ?", userID, campaignID).First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// ListByUserID retrieves a page of campaigns for a user, newest first,
// optionally filtered by status.
func (r *CampaignRepository) ListByUserID(userID string, status models.CampaignStatus, offset, limit int) ([]*models.Campaign, int64, error) {
	query := r.db.Model(&models.Campaign{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var campaigns []*models.Campaign
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&campaigns).Error
	return campaigns, total, err
}

// Update saves campaign configuration. Campaigns that have started
// dispatch are locked.
func (r *CampaignRepository) Update(campaign *models.Campaign) error {
	var current models.Campaign
	if err := r.db.Select("status").First(&current, "id = ?", campaign.ID).Error; err != nil {
		return err
	}
	if current.Status == models.CampaignSending {
		return ErrCampaignLocked
	}
	return r.db.Save(campaign).Error
}

// Delete removes a campaign. A campaign mid-dispatch is never deleted.
func (r *CampaignRepository) Delete(userID, campaignID string) error {
	campaign, err := r.GetByUserIDAndID(userID, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status == models.CampaignSending {
		return ErrCampaignLocked
	}
	return r.db.Delete(&models.Campaign{}, "id = ?", campaignID).Error
}

// UpdateStatus transitions the campaign status, stamping lifecycle
// timestamps for the states that carry them.
func (r *CampaignRepository) UpdateStatus(campaignID string, status models.CampaignStatus) error {
	updates := map[string]interface{}{"status": status}
	now := time.Now()
	switch status {
	case models.CampaignGenerating, models.CampaignSending:
		updates["started_at"] = &now
	case models.CampaignCompleted:
		updates["completed_at"] = &now
	}
	return r.db.Model(&models.Campaign{}).Where("id = ?", campaignID).Updates(updates).Error
}

// UpdateCounters writes the derived aggregate counters. Callers obtain
// them from CampaignContactRepository.RecomputeCampaignCounters.
func (r *CampaignRepository) UpdateCounters(campaignID string, counters models.CampaignCounters) error {
	return r.db.Model(&models.Campaign{}).Where("id = ?", campaignID).Updates(map[string]interface{}{
		"generated": counters.Generated,
		"sent":      counters.Sent,
		"delivered": counters.Delivered,
		"opened":    counters.Opened,
		"clicked":   counters.Clicked,
		"bounced":   counters.Bounced,
		"failed":    counters.Failed,
	}).Error
}

// SetTotalContacts refreshes the attached-contact count.
func (r *CampaignRepository) SetTotalContacts(campaignID string, total int) error {
	return r.db.Model(&models.Campaign{}).Where("id = ?", campaignID).
		Update("total_contacts", total).Error
}

// IncrementCounter bumps a single counter column by delta. Only the
// dispatch loop uses this, for its synchronous sent/failed accounting;
// every other path goes through the full recompute.
func (r *CampaignRepository) IncrementCounter(campaignID, column string, delta int) error {
	return r.db.Model(&models.Campaign{}).Where("id = ?", campaignID).
		Update(column, gorm.Expr(column+" + ?", delta)).Error
}
