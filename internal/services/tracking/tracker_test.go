package tracking

import (
	"context"
	"fmt"
	"testing"
	"time"

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

type trackerEnv struct {
	db           *gorm.DB
	campaignRepo *repository.CampaignRepository
	contactRepo  *repository.ContactRepository
	linkRepo     *repository.CampaignContactRepository
	tracker      *Tracker
}

func newTrackerEnv(t *testing.T) *trackerEnv {
	t.Helper()
	db := newTestDB(t)
	env := &trackerEnv{
		db:           db,
		campaignRepo: repository.NewCampaignRepository(db),
		contactRepo:  repository.NewContactRepository(db),
		linkRepo:     repository.NewCampaignContactRepository(db),
	}
	env.tracker = NewTracker(env.campaignRepo, env.contactRepo, env.linkRepo,
		repository.NewDeliveryEventRepository(db))
	return env
}

// seedSentLink creates a campaign with one link already SENT under the
// given provider message id.
func (env *trackerEnv) seedSentLink(t *testing.T, providerMessageID string) (*models.Campaign, *models.Contact, *models.CampaignContact) {
	t.Helper()
	campaign := &models.Campaign{
		UserID:  "user-1",
		Name:    "Launch",
		Channel: models.ChannelEmail,
		Status:  models.CampaignSending,
	}
	require.NoError(t, env.campaignRepo.Create(campaign))

	contact := &models.Contact{
		UserID:       "user-1",
		Email:        "jane@acme.io",
		Phone:        "+14155551234",
		IsSubscribed: true,
	}
	require.NoError(t, env.contactRepo.Create(contact))

	link, err := env.linkRepo.Upsert(campaign.ID, contact.ID)
	require.NoError(t, err)
	require.NoError(t, env.linkRepo.Transition(link.ID, models.StatusGenerated, repository.LinkFields{}))
	require.NoError(t, env.linkRepo.Transition(link.ID, models.StatusSent, repository.LinkFields{
		ProviderMessageID: providerMessageID,
	}))
	return campaign, contact, link
}

func TestHandleDeliveryEventAdvancesLinkAndCounters(t *testing.T) {
	env := newTrackerEnv(t)
	campaign, _, link := env.seedSentLink(t, "msg-1")

	occurredAt := time.Now().Add(-time.Minute)
	require.NoError(t, env.tracker.HandleDeliveryEvent(context.Background(), "msg-1", EventDelivered, occurredAt, "", ""))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredAt)

	refreshed, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.Sent)
	assert.Equal(t, 1, refreshed.Delivered)
	assert.Equal(t, 0, refreshed.Opened)
}

func TestHandleDeliveryEventIsIdempotent(t *testing.T) {
	env := newTrackerEnv(t)
	_, _, link := env.seedSentLink(t, "msg-1")

	ctx := context.Background()
	require.NoError(t, env.tracker.HandleDeliveryEvent(ctx, "msg-1", EventOpened, time.Now(), "", ""))
	require.NoError(t, env.tracker.HandleDeliveryEvent(ctx, "msg-1", EventOpened, time.Now(), "", ""))
	require.NoError(t, env.tracker.HandleDeliveryEvent(ctx, "msg-1", EventOpened, time.Now(), "", ""))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpened, got.Status)
}

func TestHandleDeliveryEventIgnoresLateDowngrade(t *testing.T) {
	env := newTrackerEnv(t)
	campaign, _, link := env.seedSentLink(t, "msg-1")

	ctx := context.Background()
	require.NoError(t, env.tracker.HandleDeliveryEvent(ctx, "msg-1", EventClicked, time.Now(), "", ""))

	// A delayed delivered callback must not move the link backwards, and
	// must not fail the webhook either.
	require.NoError(t, env.tracker.HandleDeliveryEvent(ctx, "msg-1", EventDelivered, time.Now(), "", ""))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClicked, got.Status)

	refreshed, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.Clicked)
	assert.Equal(t, 1, refreshed.Delivered)
}

func TestHandleDeliveryEventUnknownMessageIgnored(t *testing.T) {
	env := newTrackerEnv(t)
	env.seedSentLink(t, "msg-1")

	err := env.tracker.HandleDeliveryEvent(context.Background(), "never-seen", EventDelivered, time.Now(), "", "")
	assert.NoError(t, err)
}

func TestUnsubscribeEventClearsContactSubscription(t *testing.T) {
	env := newTrackerEnv(t)
	_, contact, link := env.seedSentLink(t, "msg-1")

	require.NoError(t, env.tracker.HandleDeliveryEvent(context.Background(), "msg-1", EventUnsubscribed, time.Now(), "", ""))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnsubscribed, got.Status)

	refreshed, err := env.contactRepo.GetByID(contact.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.IsSubscribed)
}

func TestHandleLinkEventFallsBackToLinkID(t *testing.T) {
	env := newTrackerEnv(t)
	campaign := &models.Campaign{UserID: "user-1", Name: "L", Channel: models.ChannelEmail}
	require.NoError(t, env.campaignRepo.Create(campaign))
	contact := &models.Contact{UserID: "user-1", Email: "a@x.io", IsSubscribed: true}
	require.NoError(t, env.contactRepo.Create(contact))

	link, err := env.linkRepo.Upsert(campaign.ID, contact.ID)
	require.NoError(t, err)
	require.NoError(t, env.linkRepo.Transition(link.ID, models.StatusGenerated, repository.LinkFields{}))
	require.NoError(t, env.linkRepo.Transition(link.ID, models.StatusSent, repository.LinkFields{}))

	// No provider message id recorded: the pixel hit still lands, deduped
	// on the link id.
	ctx := context.Background()
	require.NoError(t, env.tracker.HandleLinkEvent(ctx, link.ID, EventOpened))
	require.NoError(t, env.tracker.HandleLinkEvent(ctx, link.ID, EventOpened))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpened, got.Status)
}

func TestTwoStepWhatsAppOptIn(t *testing.T) {
	env := newTrackerEnv(t)
	contact := &models.Contact{UserID: "user-1", Email: "a@x.io", Phone: "+14155551234"}
	require.NoError(t, env.contactRepo.Create(contact))

	ctx := context.Background()

	// Step one: an opt-in keyword only marks the contact pending.
	require.NoError(t, env.tracker.HandleIncomingMessage(ctx, "+14155551234", "Subscribe please"))
	got, err := env.contactRepo.GetByID(contact.ID)
	require.NoError(t, err)
	assert.False(t, got.WhatsAppOptIn)
	assert.True(t, got.WhatsAppOptInPending)

	// Step two: a confirmation while pending records the opt-in.
	require.NoError(t, env.tracker.HandleIncomingMessage(ctx, "+14155551234", "YES"))
	got, err = env.contactRepo.GetByID(contact.ID)
	require.NoError(t, err)
	assert.True(t, got.WhatsAppOptIn)
	assert.False(t, got.WhatsAppOptInPending)
	require.NotNil(t, got.WhatsAppOptInAt)

	// Opt-out always wins.
	require.NoError(t, env.tracker.HandleIncomingMessage(ctx, "+14155551234", "STOP"))
	got, err = env.contactRepo.GetByID(contact.ID)
	require.NoError(t, err)
	assert.False(t, got.WhatsAppOptIn)
	assert.False(t, got.WhatsAppOptInPending)

	// Each reply was logged as an interaction.
	interactions, err := env.contactRepo.ListInteractions(contact.ID, 10)
	require.NoError(t, err)
	assert.Len(t, interactions, 3)
}

func TestIncomingMessageFromUnknownNumberIgnored(t *testing.T) {
	env := newTrackerEnv(t)
	err := env.tracker.HandleIncomingMessage(context.Background(), "+19999999999", "hello")
	assert.NoError(t, err)
}

func TestHandleMetaWebhook(t *testing.T) {
	env := newTrackerEnv(t)
	_, contact, link := env.seedSentLink(t, "wamid.ABC")

	body := fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "123",
			"changes": [{
				"field": "messages",
				"value": {
					"messaging_product": "whatsapp",
					"statuses": [
						{"id": "wamid.ABC", "status": "delivered", "timestamp": "%d"},
						{"id": "wamid.ABC", "status": "read", "timestamp": "%d"}
					],
					"messages": [
						{"from": "14155551234", "type": "text", "text": {"body": "subscribe"}}
					]
				}
			}]
		}]
	}`, time.Now().Unix()-60, time.Now().Unix())

	require.NoError(t, env.tracker.HandleMetaWebhook(context.Background(), []byte(body)))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	// "read" maps to opened.
	assert.Equal(t, models.StatusOpened, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.OpenedAt)

	refreshed, err := env.contactRepo.GetByID(contact.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.WhatsAppOptInPending)
}

func TestHandleMetaWebhookRejectsGarbage(t *testing.T) {
	env := newTrackerEnv(t)
	err := env.tracker.HandleMetaWebhook(context.Background(), []byte("not json"))
	assert.Error(t, err)
}

func TestHandleTwilioStatus(t *testing.T) {
	env := newTrackerEnv(t)
	_, _, link := env.seedSentLink(t, "SM123")

	require.NoError(t, env.tracker.HandleTwilioStatus(context.Background(), "SM123", "delivered", ""))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)

	// Statuses outside the mapping are ignored.
	require.NoError(t, env.tracker.HandleTwilioStatus(context.Background(), "SM123", "queued", ""))
}

func TestHandleEmailEvents(t *testing.T) {
	env := newTrackerEnv(t)
	campaign, _, link := env.seedSentLink(t, "mid-1")

	events := []EmailEvent{
		{ProviderMessageID: "mid-1", Event: EventDelivered, Timestamp: time.Now().Unix() - 30},
		{ProviderMessageID: "mid-1", Event: EventOpened, Timestamp: time.Now().Unix()},
	}
	require.NoError(t, env.tracker.HandleEmailEvents(context.Background(), events))

	got, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpened, got.Status)

	refreshed, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed.Opened)
}
