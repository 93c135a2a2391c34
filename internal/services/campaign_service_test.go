package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/outreachly/outreachly-backend/internal/database"
	"github.com/outreachly/outreachly-backend/internal/database/repository"
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

func newCampaignService(t *testing.T) (*CampaignService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewCampaignService(
		repository.NewCampaignRepository(db),
		repository.NewContactRepository(db),
		repository.NewCampaignContactRepository(db),
		nil,
	), db
}

func TestCreateCampaignDefaults(t *testing.T) {
	svc, _ := newCampaignService(t)

	campaign, err := svc.CreateCampaign("user-1", &models.CreateCampaignRequest{
		Name:    "Launch",
		Channel: "EMAIL",
	})
	require.NoError(t, err)

	assert.Equal(t, models.CampaignDraft, campaign.Status)
	assert.True(t, campaign.IncludeSocialContext)
	assert.True(t, campaign.IncludeInteractionHistory)

	off := false
	campaign, err = svc.CreateCampaign("user-1", &models.CreateCampaignRequest{
		Name:                 "Launch 2",
		Channel:              "EMAIL",
		IncludeSocialContext: &off,
	})
	require.NoError(t, err)
	assert.False(t, campaign.IncludeSocialContext)
}

func TestUpdateCampaignRejectsLocked(t *testing.T) {
	svc, db := newCampaignService(t)

	campaign, err := svc.CreateCampaign("user-1", &models.CreateCampaignRequest{
		Name: "Launch", Channel: "EMAIL",
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(campaign).Update("status", models.CampaignSending).Error)

	_, err = svc.UpdateCampaign("user-1", campaign.ID, &models.UpdateCampaignRequest{Name: "Renamed"})
	assert.ErrorIs(t, err, ErrCampaignNotEditable)
}

func TestAddContactsFiltersAndDeduplicates(t *testing.T) {
	svc, db := newCampaignService(t)
	contactRepo := repository.NewContactRepository(db)

	campaign, err := svc.CreateCampaign("user-1", &models.CreateCampaignRequest{
		Name: "Launch", Channel: "EMAIL",
	})
	require.NoError(t, err)

	subscribed := &models.Contact{
		UserID: "user-1", Email: "sub@acme.io", IsSubscribed: true,
		Tags: models.StringList{"vip"},
	}
	unsubscribed := &models.Contact{
		UserID: "user-1", Email: "unsub@acme.io", IsSubscribed: false,
	}
	tagged := &models.Contact{
		UserID: "user-1", Email: "tagged@acme.io", IsSubscribed: true,
		Tags: models.StringList{"vip"},
	}
	for _, c := range []*models.Contact{subscribed, unsubscribed, tagged} {
		require.NoError(t, contactRepo.Create(c))
	}

	// "subscribed" matches both the explicit id and the tag; it must only
	// count once. The unsubscribed contact is skipped.
	added, err := svc.AddContacts("user-1", campaign.ID, &models.AddContactsRequest{
		ContactIDs: []string{subscribed.ID, unsubscribed.ID},
		Tags:       []string{"vip"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	got, err := svc.GetCampaign("user-1", campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalContacts)

	// Re-adding the same selection leaves the stored links untouched.
	added, err = svc.AddContacts("user-1", campaign.ID, &models.AddContactsRequest{
		Tags: []string{"vip"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	got, err = svc.GetCampaign("user-1", campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalContacts)
}

func TestAddContactsScopedToOwner(t *testing.T) {
	svc, db := newCampaignService(t)
	contactRepo := repository.NewContactRepository(db)

	campaign, err := svc.CreateCampaign("user-1", &models.CreateCampaignRequest{
		Name: "Launch", Channel: "EMAIL",
	})
	require.NoError(t, err)

	foreign := &models.Contact{UserID: "user-2", Email: "other@acme.io", IsSubscribed: true}
	require.NoError(t, contactRepo.Create(foreign))

	added, err := svc.AddContacts("user-1", campaign.ID, &models.AddContactsRequest{
		ContactIDs: []string{foreign.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestAnalyticsDerivesRates(t *testing.T) {
	svc, db := newCampaignService(t)
	contactRepo := repository.NewContactRepository(db)
	linkRepo := repository.NewCampaignContactRepository(db)

	campaign, err := svc.CreateCampaign("user-1", &models.CreateCampaignRequest{
		Name: "Launch", Channel: "EMAIL",
	})
	require.NoError(t, err)

	for i, email := range []string{"a@x.io", "b@x.io"} {
		contact := &models.Contact{UserID: "user-1", Email: email, IsSubscribed: true}
		require.NoError(t, contactRepo.Create(contact))
		link, err := linkRepo.Upsert(campaign.ID, contact.ID)
		require.NoError(t, err)
		require.NoError(t, linkRepo.Transition(link.ID, models.StatusGenerated, repository.LinkFields{}))
		require.NoError(t, linkRepo.Transition(link.ID, models.StatusSent, repository.LinkFields{}))
		if i == 0 {
			require.NoError(t, linkRepo.Transition(link.ID, models.StatusDelivered, repository.LinkFields{}))
			require.NoError(t, linkRepo.Transition(link.ID, models.StatusOpened, repository.LinkFields{}))
		}
	}

	analytics, err := svc.Analytics("user-1", campaign.ID)
	require.NoError(t, err)

	assert.Equal(t, campaign.ID, analytics.Campaign.ID)
	assert.Equal(t, 2, analytics.Stats.Sent)
	assert.Equal(t, 1, analytics.Stats.Delivered)
	assert.InDelta(t, 50.0, analytics.Rates.DeliveryRate, 0.01)
	assert.InDelta(t, 100.0, analytics.Rates.OpenRate, 0.01)
	assert.Equal(t, 1, analytics.StatusBreakdown[models.StatusSent])
	assert.Equal(t, 1, analytics.StatusBreakdown[models.StatusOpened])

	// The recompute also refreshed the stored counter cache.
	got, err := svc.GetCampaign("user-1", campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Sent)
	assert.Equal(t, 1, got.Opened)
}
