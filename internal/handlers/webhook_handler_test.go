package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/outreachly/outreachly-backend/internal/config"
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

func newTrackingRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWebhookHandler(db, config.WhatsAppConfig{})
	r.GET("/t/open/:linkID", h.TrackOpen)
	r.GET("/t/click/:linkID", h.TrackClick)
	return r
}

// seedSentLink creates a campaign with one link already SENT.
func seedSentLink(t *testing.T, db *gorm.DB) *models.CampaignContact {
	t.Helper()
	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	linkRepo := repository.NewCampaignContactRepository(db)

	campaign := &models.Campaign{
		UserID:  "user-1",
		Name:    "Launch",
		Channel: models.ChannelEmail,
		Status:  models.CampaignSending,
	}
	require.NoError(t, campaignRepo.Create(campaign))

	contact := &models.Contact{
		UserID:       "user-1",
		Email:        "jane@acme.io",
		IsSubscribed: true,
	}
	require.NoError(t, contactRepo.Create(contact))

	link, err := linkRepo.Upsert(campaign.ID, contact.ID)
	require.NoError(t, err)
	require.NoError(t, linkRepo.Transition(link.ID, models.StatusGenerated, repository.LinkFields{}))
	require.NoError(t, linkRepo.Transition(link.ID, models.StatusSent, repository.LinkFields{
		ProviderMessageID: "msg-1",
	}))
	return link
}

func TestTrackClickRedirectsAndRecordsClick(t *testing.T) {
	db := newTestDB(t)
	r := newTrackingRouter(db)
	link := seedSentLink(t, db)

	target := "https://example.com/pricing?plan=pro"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/t/click/"+link.ID+"?url="+url.QueryEscape(target), nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, target, w.Header().Get("Location"))

	got, err := repository.NewCampaignContactRepository(db).GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClicked, got.Status)
}

func TestTrackClickRejectsUnsafeTargets(t *testing.T) {
	db := newTestDB(t)
	r := newTrackingRouter(db)

	for _, target := range []string{
		"",
		"javascript:alert(1)",
		"data:text/html,hello",
		"//evil.example/phish",
		"/relative/path",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/t/click/no-such-link?url="+url.QueryEscape(target), nil))

		assert.Equal(t, http.StatusBadRequest, w.Code, "target %q", target)
		assert.Empty(t, w.Header().Get("Location"), "target %q", target)
	}
}

func TestTrackOpenServesPixelAndRecordsOpen(t *testing.T) {
	db := newTestDB(t)
	r := newTrackingRouter(db)
	link := seedSentLink(t, db)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t/open/"+link.ID, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/gif", w.Header().Get("Content-Type"))

	got, err := repository.NewCampaignContactRepository(db).GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpened, got.Status)
}
