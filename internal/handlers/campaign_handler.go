package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
	"github.com/outreachly/outreachly-backend/internal/services"
	"github.com/outreachly/outreachly-backend/internal/services/delivery"
	"github.com/outreachly/outreachly-backend/internal/services/dispatch"
	"github.com/outreachly/outreachly-backend/internal/utils"
)

type CampaignHandler struct {
	campaignService *services.CampaignService
}

func NewCampaignHandler(db *gorm.DB, engine *dispatch.Engine) *CampaignHandler {
	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	linkRepo := repository.NewCampaignContactRepository(db)

	campaignService := services.NewCampaignService(campaignRepo, contactRepo, linkRepo, engine)
	return &CampaignHandler{campaignService: campaignService}
}

// CreateCampaign godoc
// @Summary Create a new campaign
// @Description Create a new DRAFT campaign for the authenticated user
// @Tags campaigns
// @Accept json
// @Produce json
// @Param request body models.CreateCampaignRequest true "Create campaign request"
// @Success 201 {object} models.Campaign
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var req models.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	campaign, err := h.campaignService.CreateCampaign(userID, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create campaign", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, campaign)
}

// ListCampaigns godoc
// @Summary List campaigns
// @Description Get a paginated list of the user's campaigns, optionally filtered by status
// @Tags campaigns
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Filter by campaign status"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	page, pageSize := utils.ParsePaginationFromQuery(c.Query("page"), c.Query("page_size"))
	status := models.CampaignStatus(c.Query("status"))

	campaigns, total, err := h.campaignService.ListCampaigns(userID, status, utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list campaigns", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaigns":  campaigns,
		"pagination": utils.CalculatePaginationInfo(int(total), page, pageSize),
	})
}

// GetCampaign godoc
// @Summary Get a campaign
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} models.Campaign
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	campaign, err := h.campaignService.GetCampaign(userID, c.Param("id"))
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get campaign", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// UpdateCampaign godoc
// @Summary Update a campaign
// @Description Update a campaign that has not started sending
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Param request body models.UpdateCampaignRequest true "Update campaign request"
// @Success 200 {object} models.Campaign
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id} [put]
func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var req models.UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	campaign, err := h.campaignService.UpdateCampaign(userID, c.Param("id"), &req)
	if err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		case errors.Is(err, services.ErrCampaignNotEditable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update campaign", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// DeleteCampaign godoc
// @Summary Delete a campaign
// @Description Delete a campaign that is not currently sending
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id} [delete]
func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	if err := h.campaignService.DeleteCampaign(userID, c.Param("id")); err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		case errors.Is(err, repository.ErrCampaignLocked):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete campaign", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Campaign deleted"})
}

// AddContacts godoc
// @Summary Add contacts to a campaign
// @Description Attach contacts by ids or tags; contacts without the channel's opt-in are skipped
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Param request body models.AddContactsRequest true "Contacts selection"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/contacts [post]
func (h *CampaignHandler) AddContacts(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var req models.AddContactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}
	if len(req.ContactIDs) == 0 && len(req.Tags) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Either contact_ids or tags must be provided"})
		return
	}

	added, err := h.campaignService.AddContacts(userID, c.Param("id"), &req)
	if err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		case errors.Is(err, services.ErrCampaignNotEditable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add contacts", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"added": added})
}

// GenerateCampaign godoc
// @Summary Start content generation
// @Description Queue personalized content generation for every pending recipient
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 202 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/generate [post]
func (h *CampaignHandler) GenerateCampaign(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	total, err := h.campaignService.Generate(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		case errors.Is(err, dispatch.ErrInvalidState), errors.Is(err, dispatch.ErrNoRecipients):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start generation", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "generating", "total_contacts": total})
}

// SendCampaign godoc
// @Summary Start campaign dispatch
// @Description Queue dispatch, or send a single test message when test_email/test_phone is set
// @Tags campaigns
// @Accept json
// @Produce json
// @Param id path string true "Campaign ID"
// @Param request body models.SendCampaignRequest false "Optional test destination"
// @Success 202 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/send [post]
func (h *CampaignHandler) SendCampaign(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var req models.SendCampaignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
			return
		}
	}

	testDestination := req.TestEmail
	if testDestination == "" {
		testDestination = req.TestPhone
	}

	err := h.campaignService.Send(c.Request.Context(), userID, c.Param("id"), testDestination)
	if err != nil {
		switch {
		case services.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
		case errors.Is(err, dispatch.ErrInvalidState), errors.Is(err, dispatch.ErrNoRecipients), errors.Is(err, delivery.ErrTemplateRequired):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, delivery.ErrNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sending", "details": err.Error()})
		}
		return
	}

	status := "sending"
	if testDestination != "" {
		status = "test_sent"
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}

// GetCampaignAnalytics godoc
// @Summary Get campaign analytics
// @Description Recompute and return campaign counters, rates and the per-status breakdown
// @Tags campaigns
// @Produce json
// @Param id path string true "Campaign ID"
// @Success 200 {object} models.CampaignAnalyticsResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/campaigns/{id}/analytics [get]
func (h *CampaignHandler) GetCampaignAnalytics(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	analytics, err := h.campaignService.Analytics(userID, c.Param("id"))
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute analytics", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, analytics)
}
