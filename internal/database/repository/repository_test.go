package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/outreachly/outreachly-backend/internal/database"
	"github.com/outreachly/outreachly-backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedCampaign(t *testing.T, db *gorm.DB, channel models.CampaignChannel) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{
		UserID:  "user-1",
		Name:    "Launch",
		Channel: channel,
		Status:  models.CampaignDraft,
	}
	require.NoError(t, NewCampaignRepository(db).Create(campaign))
	return campaign
}

func seedContact(t *testing.T, db *gorm.DB, email string) *models.Contact {
	t.Helper()
	contact := &models.Contact{
		UserID:       "user-1",
		Email:        email,
		IsSubscribed: true,
	}
	require.NoError(t, NewContactRepository(db).Create(contact))
	return contact
}
