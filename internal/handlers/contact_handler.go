package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
	"github.com/outreachly/outreachly-backend/internal/services"
	"github.com/outreachly/outreachly-backend/internal/utils"
)

type ContactHandler struct {
	contactService *services.ContactService
}

func NewContactHandler(db *gorm.DB) *ContactHandler {
	contactRepo := repository.NewContactRepository(db)
	return &ContactHandler{contactService: services.NewContactService(contactRepo)}
}

// CreateContact godoc
// @Summary Create a contact
// @Tags contacts
// @Accept json
// @Produce json
// @Param request body models.CreateContactRequest true "Create contact request"
// @Success 201 {object} models.Contact
// @Failure 400 {object} map[string]interface{}
// @Router /api/v1/contacts [post]
func (h *ContactHandler) CreateContact(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var req models.CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	contact, err := h.contactService.CreateContact(userID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create contact", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, contact)
}

// ListContacts godoc
// @Summary List contacts
// @Tags contacts
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/contacts [get]
func (h *ContactHandler) ListContacts(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	page, pageSize := utils.ParsePaginationFromQuery(c.Query("page"), c.Query("page_size"))

	contacts, total, err := h.contactService.ListContacts(userID, utils.CalculateOffset(page, pageSize), pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contacts", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts":   contacts,
		"pagination": utils.CalculatePaginationInfo(int(total), page, pageSize),
	})
}

// GetContact godoc
// @Summary Get a contact
// @Tags contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} models.Contact
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/contacts/{id} [get]
func (h *ContactHandler) GetContact(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	contact, err := h.contactService.GetContact(userID, c.Param("id"))
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get contact", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, contact)
}

// UpdateContact godoc
// @Summary Update a contact
// @Tags contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body models.CreateContactRequest true "Update contact request"
// @Success 200 {object} models.Contact
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/contacts/{id} [put]
func (h *ContactHandler) UpdateContact(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var req models.CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	contact, err := h.contactService.UpdateContact(userID, c.Param("id"), &req)
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to update contact", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, contact)
}

// DeleteContact godoc
// @Summary Delete a contact
// @Tags contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/contacts/{id} [delete]
func (h *ContactHandler) DeleteContact(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	if err := h.contactService.DeleteContact(userID, c.Param("id")); err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contact", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contact deleted"})
}

// AddInteraction godoc
// @Summary Add a contact interaction
// @Description Append an interaction record used for personalization context
// @Tags contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param request body models.AddInteractionRequest true "Interaction"
// @Success 201 {object} models.ContactInteraction
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/contacts/{id}/interactions [post]
func (h *ContactHandler) AddInteraction(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	var req models.AddInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	interaction, err := h.contactService.AddInteraction(userID, c.Param("id"), &req)
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add interaction", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, interaction)
}

// ListInteractions godoc
// @Summary List contact interactions
// @Tags contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Param limit query int false "Max interactions to return"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/contacts/{id}/interactions [get]
func (h *ContactHandler) ListInteractions(c *gin.Context) {
	userID := c.MustGet("user_id").(string)

	limit := 20
	if _, ps := utils.ParsePaginationFromQuery("", c.Query("limit")); ps > 0 {
		limit = ps
	}

	interactions, err := h.contactService.ListInteractions(userID, c.Param("id"), limit)
	if err != nil {
		if services.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list interactions", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}
