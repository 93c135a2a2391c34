package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
	"github.com/outreachly/outreachly-backend/internal/services/dispatch"
)

// ErrCampaignNotEditable is returned when a mutation targets a campaign
// that has started sending.
var ErrCampaignNotEditable = errors.New("campaign can no longer be edited")

// CampaignService owns campaign CRUD, audience assembly and the analytics
// view. Lifecycle operations delegate to the dispatch engine.
type CampaignService struct {
	campaignRepo *repository.CampaignRepository
	contactRepo  *repository.ContactRepository
	linkRepo     *repository.CampaignContactRepository
	engine       *dispatch.Engine
}

func NewCampaignService(
	campaignRepo *repository.CampaignRepository,
	contactRepo *repository.ContactRepository,
	linkRepo *repository.CampaignContactRepository,
	engine *dispatch.Engine,
) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		linkRepo:     linkRepo,
		engine:       engine,
	}
}

// CreateCampaign creates a DRAFT campaign for the user.
func (s *CampaignService) CreateCampaign(userID string, req *models.CreateCampaignRequest) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UserID:                      userID,
		Name:                        req.Name,
		Channel:                     models.CampaignChannel(req.Channel),
		Status:                      models.CampaignDraft,
		Description:                 req.Description,
		SubjectTemplate:             req.SubjectTemplate,
		BaseTemplate:                req.BaseTemplate,
		CampaignGoal:                req.CampaignGoal,
		PersonalizationInstructions: req.PersonalizationInstructions,
		TargetTags:                  req.TargetTags,
		TemplateName:                req.TemplateName,
	}

	if req.AIModelType != "" {
		campaign.AIModelType = models.AIModelType(req.AIModelType)
	}
	if req.AIModelName != "" {
		campaign.AIModelName = req.AIModelName
	}
	if req.PersonalizationLevel != "" {
		campaign.PersonalizationLevel = req.PersonalizationLevel
	}
	if req.TemplateLanguage != "" {
		campaign.TemplateLanguage = req.TemplateLanguage
	}
	if req.IncludeSocialContext != nil {
		campaign.IncludeSocialContext = *req.IncludeSocialContext
	} else {
		campaign.IncludeSocialContext = true
	}
	if req.IncludeInteractionHistory != nil {
		campaign.IncludeInteractionHistory = *req.IncludeInteractionHistory
	} else {
		campaign.IncludeInteractionHistory = true
	}

	if err := s.campaignRepo.Create(campaign); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	logrus.Infof("Campaign created: %s (%s)", campaign.ID, campaign.Name)
	return campaign, nil
}

// GetCampaign returns one of the user's campaigns.
func (s *CampaignService) GetCampaign(userID, campaignID string) (*models.Campaign, error) {
	return s.campaignRepo.GetByUserIDAndID(userID, campaignID)
}

// ListCampaigns returns a page of the user's campaigns, optionally
// filtered by status.
func (s *CampaignService) ListCampaigns(userID string, status models.CampaignStatus, offset, limit int) ([]*models.Campaign, int64, error) {
	return s.campaignRepo.ListByUserID(userID, status, offset, limit)
}

// UpdateCampaign applies a partial update to a still-editable campaign.
func (s *CampaignService) UpdateCampaign(userID, campaignID string, req *models.UpdateCampaignRequest) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByUserIDAndID(userID, campaignID)
	if err != nil {
		return nil, err
	}
	if !campaign.IsEditable() {
		return nil, fmt.Errorf("%w: status is %s", ErrCampaignNotEditable, campaign.Status)
	}

	if req.Name != "" {
		campaign.Name = req.Name
	}
	if req.Description != "" {
		campaign.Description = req.Description
	}
	if req.SubjectTemplate != "" {
		campaign.SubjectTemplate = req.SubjectTemplate
	}
	if req.BaseTemplate != "" {
		campaign.BaseTemplate = req.BaseTemplate
	}
	if req.CampaignGoal != "" {
		campaign.CampaignGoal = req.CampaignGoal
	}
	if req.AIModelType != "" {
		campaign.AIModelType = models.AIModelType(req.AIModelType)
	}
	if req.AIModelName != "" {
		campaign.AIModelName = req.AIModelName
	}
	if req.PersonalizationInstructions != "" {
		campaign.PersonalizationInstructions = req.PersonalizationInstructions
	}
	if req.PersonalizationLevel != "" {
		campaign.PersonalizationLevel = req.PersonalizationLevel
	}
	if req.IncludeSocialContext != nil {
		campaign.IncludeSocialContext = *req.IncludeSocialContext
	}
	if req.IncludeInteractionHistory != nil {
		campaign.IncludeInteractionHistory = *req.IncludeInteractionHistory
	}
	if req.TargetTags != nil {
		campaign.TargetTags = req.TargetTags
	}
	if req.TemplateName != "" {
		campaign.TemplateName = req.TemplateName
	}
	if req.TemplateLanguage != "" {
		campaign.TemplateLanguage = req.TemplateLanguage
	}

	if err := s.campaignRepo.Update(campaign); err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return campaign, nil
}

// DeleteCampaign removes a campaign that is not currently sending.
func (s *CampaignService) DeleteCampaign(userID, campaignID string) error {
	return s.campaignRepo.Delete(userID, campaignID)
}

// AddContacts attaches contacts to a campaign, by explicit ids and/or by
// tags. Contacts that do not satisfy the channel's opt-in rules are
// skipped. Returns the number of contacts attached by this call's
// selection (idempotent per pair).
func (s *CampaignService) AddContacts(userID, campaignID string, req *models.AddContactsRequest) (int, error) {
	campaign, err := s.campaignRepo.GetByUserIDAndID(userID, campaignID)
	if err != nil {
		return 0, err
	}
	if !campaign.IsEditable() {
		return 0, fmt.Errorf("%w: status is %s", ErrCampaignNotEditable, campaign.Status)
	}

	seen := make(map[string]bool)
	var candidates []*models.Contact

	if len(req.ContactIDs) > 0 {
		byID, err := s.contactRepo.GetByIDs(userID, req.ContactIDs)
		if err != nil {
			return 0, err
		}
		for _, contact := range byID {
			if !seen[contact.ID] {
				seen[contact.ID] = true
				candidates = append(candidates, contact)
			}
		}
	}

	if len(req.Tags) > 0 {
		byTags, err := s.contactRepo.ListEligible(userID, campaign.Channel, req.Tags)
		if err != nil {
			return 0, err
		}
		for _, contact := range byTags {
			if !seen[contact.ID] {
				seen[contact.ID] = true
				candidates = append(candidates, contact)
			}
		}
	}

	added := 0
	for _, contact := range candidates {
		if !contact.EligibleFor(campaign.Channel) {
			logrus.Debugf("Contact %s not eligible for %s campaign, skipped", contact.ID, campaign.Channel)
			continue
		}
		if _, err := s.linkRepo.Upsert(campaignID, contact.ID); err != nil {
			logrus.Errorf("Failed to attach contact %s to campaign %s: %v", contact.ID, campaignID, err)
			continue
		}
		added++
	}

	total, err := s.linkRepo.CountByCampaign(campaignID)
	if err != nil {
		return added, err
	}
	if err := s.campaignRepo.SetTotalContacts(campaignID, int(total)); err != nil {
		return added, err
	}

	logrus.Infof("Campaign %s audience updated: %d attached, %d total", campaignID, added, total)
	return added, nil
}

// Generate kicks off content generation for the campaign and returns the
// number of recipients queued.
func (s *CampaignService) Generate(ctx context.Context, userID, campaignID string) (int, error) {
	if _, err := s.campaignRepo.GetByUserIDAndID(userID, campaignID); err != nil {
		return 0, err
	}
	return s.engine.StartGeneration(ctx, campaignID)
}

// Send starts campaign dispatch, or sends a single test message when a
// test destination is given.
func (s *CampaignService) Send(ctx context.Context, userID, campaignID, testDestination string) error {
	if _, err := s.campaignRepo.GetByUserIDAndID(userID, campaignID); err != nil {
		return err
	}
	return s.engine.StartDispatch(ctx, campaignID, testDestination)
}

// Analytics recomputes the campaign's counters from the links and returns
// them with derived rates and the raw status breakdown.
func (s *CampaignService) Analytics(userID, campaignID string) (*models.CampaignAnalyticsResponse, error) {
	campaign, err := s.campaignRepo.GetByUserIDAndID(userID, campaignID)
	if err != nil {
		return nil, err
	}

	counters, err := s.linkRepo.RecomputeCampaignCounters(campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute campaign stats: %w", err)
	}
	if err := s.campaignRepo.UpdateCounters(campaignID, counters); err != nil {
		return nil, err
	}

	breakdown, err := s.linkRepo.StatusBreakdown(campaignID)
	if err != nil {
		return nil, err
	}

	return &models.CampaignAnalyticsResponse{
		Campaign: models.CampaignSummary{
			ID:          campaign.ID,
			Name:        campaign.Name,
			Channel:     campaign.Channel,
			Status:      campaign.Status,
			CreatedAt:   campaign.CreatedAt,
			StartedAt:   campaign.StartedAt,
			CompletedAt: campaign.CompletedAt,
		},
		Stats:           counters,
		Rates:           counters.DeriveRates(),
		StatusBreakdown: breakdown,
	}, nil
}

// IsNotFound reports whether err is a missing-record lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
