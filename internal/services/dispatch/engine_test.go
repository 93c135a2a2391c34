package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/database"
	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
	"github.com/outreachly/outreachly-backend/internal/queue"
	"github.com/outreachly/outreachly-backend/internal/services/composer"
	"github.com/outreachly/outreachly-backend/internal/services/delivery"
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

// captureQueue records published jobs instead of running them, so tests
// drive HandleJob directly and deterministically.
type captureQueue struct {
	jobs []queue.Job
	err  error
}

func (q *captureQueue) Publish(_ context.Context, job queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) StartConsumer(queue.Handler) error { return nil }
func (q *captureQueue) Close() error                      { return nil }

// fakeSender records outgoing messages and fails for addresses in failFor.
type fakeSender struct {
	sent    []delivery.Message
	failFor map[string]error
	nextID  int
}

func (s *fakeSender) Send(_ context.Context, m delivery.Message) (string, error) {
	if err, ok := s.failFor[m.To]; ok {
		return "", err
	}
	s.sent = append(s.sent, m)
	s.nextID++
	return fmt.Sprintf("provider-%d", s.nextID), nil
}

type testEnv struct {
	db           *gorm.DB
	campaignRepo *repository.CampaignRepository
	contactRepo  *repository.ContactRepository
	linkRepo     *repository.CampaignContactRepository
	queue        *captureQueue
	sender       *fakeSender
	engine       *Engine
}

func newTestEnv(t *testing.T, aiCfg config.AIConfig) *testEnv {
	t.Helper()
	db := newTestDB(t)
	env := &testEnv{
		db:           db,
		campaignRepo: repository.NewCampaignRepository(db),
		contactRepo:  repository.NewContactRepository(db),
		linkRepo:     repository.NewCampaignContactRepository(db),
		queue:        &captureQueue{},
		sender:       &fakeSender{},
	}

	generator := composer.NewGenerator(env.campaignRepo, env.contactRepo, aiCfg)
	smtpCfg := config.SMTPConfig{Host: "smtp.test", Port: 587, User: "u", Password: "p", From: "no-reply@test.io"}
	waCfg := config.WhatsAppConfig{Provider: config.ProviderMetaCloud, PhoneNumberID: "123", AccessToken: "tok"}

	env.engine = NewEngine(env.campaignRepo, env.contactRepo, env.linkRepo, generator, env.queue, smtpCfg, waCfg)
	env.engine.newEmailSender = func(config.SMTPConfig) delivery.Sender { return env.sender }
	env.engine.newWhatsAppSender = func(config.WhatsAppConfig) (delivery.Sender, error) { return env.sender, nil }
	env.engine.emailInterval = time.Millisecond
	env.engine.whatsappInterval = time.Millisecond
	return env
}

func (env *testEnv) seedCampaign(t *testing.T, channel models.CampaignChannel, status models.CampaignStatus) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{
		UserID:       "user-1",
		Name:         "Launch",
		Channel:      channel,
		Status:       status,
		BaseTemplate: "Hi there",
		AIModelType:  models.ModelTypeLocalLLM,
		AIModelName:  "llama3",
		TemplateName: "launch_v1",
	}
	require.NoError(t, env.campaignRepo.Create(campaign))
	return campaign
}

func (env *testEnv) seedLink(t *testing.T, campaignID, email string, status models.ContactStatus) *models.CampaignContact {
	t.Helper()
	contact := &models.Contact{
		UserID:       "user-1",
		Email:        email,
		IsSubscribed: true,
	}
	require.NoError(t, env.contactRepo.Create(contact))
	link, err := env.linkRepo.Upsert(campaignID, contact.ID)
	require.NoError(t, err)
	if status == models.StatusGenerated {
		require.NoError(t, env.linkRepo.Transition(link.ID, models.StatusGenerated, repository.LinkFields{
			PersonalizedSubject: "Subject for " + email,
			PersonalizedBody:    "Body for " + email,
			HTMLBody:            "<p>Body for " + email + "</p>",
		}))
	}
	refreshed, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	return refreshed
}

// fakeOllama serves the OpenAI-compatible chat endpoint with a canned,
// well-formed reply.
func fakeOllama(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "model exploded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, reply)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStartGenerationRequiresDraft(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignReady)
	env.seedLink(t, campaign.ID, "jane@acme.io", models.StatusPending)

	_, err := env.engine.StartGeneration(context.Background(), campaign.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, env.queue.jobs)

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignReady, got.Status)
}

func TestStartGenerationRequiresRecipients(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignDraft)

	_, err := env.engine.StartGeneration(context.Background(), campaign.ID)
	assert.ErrorIs(t, err, ErrNoRecipients)

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, got.Status)
}

func TestStartGenerationEnqueues(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignDraft)
	env.seedLink(t, campaign.ID, "a@acme.io", models.StatusPending)
	env.seedLink(t, campaign.ID, "b@acme.io", models.StatusPending)

	total, err := env.engine.StartGeneration(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	require.Len(t, env.queue.jobs, 1)
	assert.Equal(t, queue.JobGenerate, env.queue.jobs[0].Kind)
	assert.Equal(t, campaign.ID, env.queue.jobs[0].CampaignID)

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignGenerating, got.Status)
}

func TestStartGenerationRollsBackWhenPublishFails(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	env.queue.err = queue.ErrQueueClosed
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignDraft)
	env.seedLink(t, campaign.ID, "jane@acme.io", models.StatusPending)

	_, err := env.engine.StartGeneration(context.Background(), campaign.ID)
	assert.ErrorIs(t, err, queue.ErrQueueClosed)

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, got.Status)
}

func TestRunGenerationMarksLinksAndReady(t *testing.T) {
	server := fakeOllama(t, "SUBJECT: Hello\n\nBODY:\nGenerated body.", http.StatusOK)
	env := newTestEnv(t, config.AIConfig{OllamaBaseURL: server.URL + "/v1", OllamaTimeout: 5 * time.Second})

	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignGenerating)
	linkA := env.seedLink(t, campaign.ID, "a@acme.io", models.StatusPending)
	linkB := env.seedLink(t, campaign.ID, "b@acme.io", models.StatusPending)

	err := env.engine.HandleJob(context.Background(), queue.Job{CampaignID: campaign.ID, Kind: queue.JobGenerate})
	require.NoError(t, err)

	for _, id := range []string{linkA.ID, linkB.ID} {
		link, err := env.linkRepo.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusGenerated, link.Status)
		assert.Equal(t, "Hello", link.PersonalizedSubject)
		assert.Equal(t, "Generated body.", link.PersonalizedBody)
		assert.Contains(t, link.HTMLBody, "<p>Generated body.</p>")
	}

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignReady, got.Status)
	assert.Equal(t, 2, got.Generated)
}

func TestRunGenerationFailureFallsBackToDraft(t *testing.T) {
	server := fakeOllama(t, "", http.StatusInternalServerError)
	env := newTestEnv(t, config.AIConfig{OllamaBaseURL: server.URL + "/v1", OllamaTimeout: 5 * time.Second})

	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignGenerating)
	link := env.seedLink(t, campaign.ID, "jane@acme.io", models.StatusPending)

	err := env.engine.HandleJob(context.Background(), queue.Job{CampaignID: campaign.ID, Kind: queue.JobGenerate})
	require.Error(t, err)

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, got.Status)

	// The pending link is untouched and a retry can pick it up.
	refreshed, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, refreshed.Status)
}

func TestStartDispatchEmailRequiresReady(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignDraft)

	err := env.engine.StartDispatch(context.Background(), campaign.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, env.queue.jobs)
}

func TestStartDispatchEmailRequiresSMTPCredentials(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	env.engine.smtpCfg = config.SMTPConfig{}
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignReady)

	err := env.engine.StartDispatch(context.Background(), campaign.ID, "")
	assert.ErrorIs(t, err, delivery.ErrNotConfigured)
	assert.Empty(t, env.queue.jobs)
}

func TestStartDispatchWhatsAppRequiresTemplate(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelWhatsApp, models.CampaignDraft)
	campaign.TemplateName = ""
	require.NoError(t, env.db.Save(campaign).Error)

	err := env.engine.StartDispatch(context.Background(), campaign.ID, "")
	assert.ErrorIs(t, err, delivery.ErrTemplateRequired)
	assert.Empty(t, env.queue.jobs)
}

func TestStartDispatchEnqueues(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignReady)

	require.NoError(t, env.engine.StartDispatch(context.Background(), campaign.ID, ""))
	require.Len(t, env.queue.jobs, 1)
	assert.Equal(t, queue.JobDispatch, env.queue.jobs[0].Kind)
}

func TestRunDispatchEmailCountsSentAndFailed(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	env.sender.failFor = map[string]error{
		"b@acme.io": fmt.Errorf("%w: mailbox does not exist", delivery.ErrRejected),
	}

	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignReady)
	linkA := env.seedLink(t, campaign.ID, "a@acme.io", models.StatusGenerated)
	linkB := env.seedLink(t, campaign.ID, "b@acme.io", models.StatusGenerated)
	linkC := env.seedLink(t, campaign.ID, "c@acme.io", models.StatusGenerated)

	err := env.engine.HandleJob(context.Background(), queue.Job{CampaignID: campaign.ID, Kind: queue.JobDispatch})
	require.NoError(t, err)

	for _, id := range []string{linkA.ID, linkC.ID} {
		link, err := env.linkRepo.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSent, link.Status)
		assert.NotEmpty(t, link.ProviderMessageID)
		assert.Equal(t, 1, link.SendAttempts)
	}

	failedLink, err := env.linkRepo.GetByID(linkB.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failedLink.Status)
	assert.Equal(t, "rejected", failedLink.ErrorCode)

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignCompleted, got.Status)
	assert.Equal(t, 2, got.Sent)
	assert.Equal(t, 1, got.Failed)
	require.NotNil(t, got.CompletedAt)

	// Every recipient got exactly one delivery attempt.
	assert.Len(t, env.sender.sent, 2)
}

func TestSendTestTouchesNoState(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignReady)
	link := env.seedLink(t, campaign.ID, "jane@acme.io", models.StatusGenerated)

	require.NoError(t, env.engine.StartDispatch(context.Background(), campaign.ID, "probe@test.io"))

	require.Len(t, env.sender.sent, 1)
	probe := env.sender.sent[0]
	assert.Equal(t, "probe@test.io", probe.To)
	assert.Equal(t, "[TEST] Subject for jane@acme.io", probe.Subject)

	// Neither the campaign nor the link moved.
	assert.Empty(t, env.queue.jobs)
	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignReady, got.Status)
	assert.Equal(t, 0, got.Sent)

	refreshed, err := env.linkRepo.GetByID(link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerated, refreshed.Status)
}

func TestSendTestEmailRequiresGeneratedContent(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelEmail, models.CampaignReady)

	err := env.engine.StartDispatch(context.Background(), campaign.ID, "probe@test.io")
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestRunDispatchWhatsAppSelectsOptedInContacts(t *testing.T) {
	env := newTestEnv(t, config.AIConfig{})
	campaign := env.seedCampaign(t, models.ChannelWhatsApp, models.CampaignDraft)

	optedIn := &models.Contact{
		UserID: "user-1", Email: "in@acme.io",
		Phone: "+14155550001", WhatsAppOptIn: true,
	}
	require.NoError(t, env.contactRepo.Create(optedIn))
	require.NoError(t, env.contactRepo.Create(&models.Contact{
		UserID: "user-1", Email: "out@acme.io",
		Phone: "+14155550002", WhatsAppOptIn: false,
	}))

	err := env.engine.HandleJob(context.Background(), queue.Job{CampaignID: campaign.ID, Kind: queue.JobDispatch})
	require.NoError(t, err)

	require.Len(t, env.sender.sent, 1)
	msg := env.sender.sent[0]
	assert.Equal(t, "+14155550001", msg.To)
	assert.Equal(t, "launch_v1", msg.TemplateName)

	links, err := env.linkRepo.ListByStatus(campaign.ID, models.StatusSent)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, optedIn.ID, links[0].ContactID)

	got, err := env.campaignRepo.GetByID(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignCompleted, got.Status)
	assert.Equal(t, 1, got.TotalContacts)
	assert.Equal(t, 1, got.Sent)
}
