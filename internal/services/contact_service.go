package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
	"github.com/outreachly/outreachly-backend/internal/utils"
)

// ContactService owns contact CRUD and interaction history.
type ContactService struct {
	contactRepo *repository.ContactRepository
}

func NewContactService(contactRepo *repository.ContactRepository) *ContactService {
	return &ContactService{contactRepo: contactRepo}
}

// CreateContact creates a contact. A provided phone number is normalized
// to E.164 up front so delivery never has to guess.
func (s *ContactService) CreateContact(userID string, req *models.CreateContactRequest) (*models.Contact, error) {
	contact := &models.Contact{
		UserID:       userID,
		Email:        req.Email,
		Phone:        req.Phone,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		FullName:     req.FullName,
		Company:      req.Company,
		JobTitle:     req.JobTitle,
		Location:     req.Location,
		Bio:          req.Bio,
		CustomFields: req.CustomFields,
		Tags:         req.Tags,
		IsSubscribed: true,
	}
	if req.PhoneCountryCode != "" {
		contact.PhoneCountryCode = req.PhoneCountryCode
	}

	if contact.Phone != "" {
		normalized, err := utils.NormalizePhone(contact.Phone, contact.PhoneCountryCode)
		if err != nil {
			return nil, fmt.Errorf("invalid phone number: %w", err)
		}
		contact.Phone = normalized
	}

	if err := s.contactRepo.Create(contact); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}

	logrus.Infof("Contact created: %s (%s)", contact.ID, contact.Email)
	return contact, nil
}

// GetContact returns one of the user's contacts with recent interactions.
func (s *ContactService) GetContact(userID, contactID string) (*models.Contact, error) {
	return s.contactRepo.GetByUserIDAndID(userID, contactID)
}

// ListContacts returns a page of the user's contacts.
func (s *ContactService) ListContacts(userID string, offset, limit int) ([]*models.Contact, int64, error) {
	return s.contactRepo.ListByUserID(userID, offset, limit)
}

// UpdateContact applies a partial update to a contact.
func (s *ContactService) UpdateContact(userID, contactID string, req *models.CreateContactRequest) (*models.Contact, error) {
	contact, err := s.contactRepo.GetByUserIDAndID(userID, contactID)
	if err != nil {
		return nil, err
	}

	if req.Email != "" {
		contact.Email = req.Email
	}
	if req.PhoneCountryCode != "" {
		contact.PhoneCountryCode = req.PhoneCountryCode
	}
	if req.Phone != "" {
		normalized, err := utils.NormalizePhone(req.Phone, contact.PhoneCountryCode)
		if err != nil {
			return nil, fmt.Errorf("invalid phone number: %w", err)
		}
		contact.Phone = normalized
	}
	if req.FirstName != "" {
		contact.FirstName = req.FirstName
	}
	if req.LastName != "" {
		contact.LastName = req.LastName
	}
	if req.FullName != "" {
		contact.FullName = req.FullName
	}
	if req.Company != "" {
		contact.Company = req.Company
	}
	if req.JobTitle != "" {
		contact.JobTitle = req.JobTitle
	}
	if req.Location != "" {
		contact.Location = req.Location
	}
	if req.Bio != "" {
		contact.Bio = req.Bio
	}
	if req.CustomFields != nil {
		contact.CustomFields = req.CustomFields
	}
	if req.Tags != nil {
		contact.Tags = req.Tags
	}

	if err := s.contactRepo.Update(contact); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	return contact, nil
}

// DeleteContact removes a contact and its interactions.
func (s *ContactService) DeleteContact(userID, contactID string) error {
	return s.contactRepo.Delete(userID, contactID)
}

// AddInteraction appends an interaction record to a contact's history.
func (s *ContactService) AddInteraction(userID, contactID string, req *models.AddInteractionRequest) (*models.ContactInteraction, error) {
	contact, err := s.contactRepo.GetByUserIDAndID(userID, contactID)
	if err != nil {
		return nil, err
	}

	interaction := &models.ContactInteraction{
		ContactID:       contact.ID,
		InteractionType: req.InteractionType,
		Summary:         req.Summary,
	}
	if req.OccurredAt != nil {
		interaction.OccurredAt = *req.OccurredAt
	}

	if err := s.contactRepo.AddInteraction(interaction); err != nil {
		return nil, fmt.Errorf("failed to add interaction: %w", err)
	}
	return interaction, nil
}

// ListInteractions returns a contact's most recent interactions.
func (s *ContactService) ListInteractions(userID, contactID string, limit int) ([]*models.ContactInteraction, error) {
	contact, err := s.contactRepo.GetByUserIDAndID(userID, contactID)
	if err != nil {
		return nil, err
	}
	return s.contactRepo.ListInteractions(contact.ID, limit)
}
