// Package dispatch runs the campaign lifecycle: it moves campaigns
// through generation and sending, one recipient at a time, and keeps the
// per-link state machine and campaign counters in step.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
	"github.com/outreachly/outreachly-backend/internal/queue"
	"github.com/outreachly/outreachly-backend/internal/services/composer"
	"github.com/outreachly/outreachly-backend/internal/services/delivery"
	"github.com/outreachly/outreachly-backend/internal/utils"
)

var (
	// ErrInvalidState means the campaign's current status does not allow
	// the requested operation. The campaign is left untouched.
	ErrInvalidState = errors.New("campaign is not in a valid state for this operation")

	// ErrNoRecipients means the campaign has no eligible recipients.
	ErrNoRecipients = errors.New("campaign has no eligible recipients")
)

// Pacing between consecutive sends. Email submission is deliberately
// slow; WhatsApp providers tolerate a much higher rate.
const (
	emailSendInterval    = 100 * time.Millisecond
	whatsappSendInterval = 15 * time.Millisecond
)

// Engine coordinates generation and dispatch for campaigns. HTTP handlers
// call the Start* methods, which validate and enqueue; the queue consumer
// calls HandleJob, which does the slow work.
type Engine struct {
	campaignRepo *repository.CampaignRepository
	contactRepo  *repository.ContactRepository
	linkRepo     *repository.CampaignContactRepository
	generator    *composer.Generator
	jobs         queue.JobQueue

	smtpCfg config.SMTPConfig
	waCfg   config.WhatsAppConfig

	// Sender constructors are swappable in tests.
	newEmailSender    func(config.SMTPConfig) delivery.Sender
	newWhatsAppSender func(config.WhatsAppConfig) (delivery.Sender, error)

	emailInterval    time.Duration
	whatsappInterval time.Duration
}

func NewEngine(
	campaignRepo *repository.CampaignRepository,
	contactRepo *repository.ContactRepository,
	linkRepo *repository.CampaignContactRepository,
	generator *composer.Generator,
	jobs queue.JobQueue,
	smtpCfg config.SMTPConfig,
	waCfg config.WhatsAppConfig,
) *Engine {
	return &Engine{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		linkRepo:     linkRepo,
		generator:    generator,
		jobs:         jobs,
		smtpCfg:      smtpCfg,
		waCfg:        waCfg,
		newEmailSender: func(cfg config.SMTPConfig) delivery.Sender {
			return delivery.NewEmailSender(cfg)
		},
		newWhatsAppSender: delivery.NewWhatsAppSender,
		emailInterval:     emailSendInterval,
		whatsappInterval:  whatsappSendInterval,
	}
}

// HandleJob is the queue consumer entry point.
func (e *Engine) HandleJob(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.JobGenerate:
		return e.runGeneration(ctx, job.CampaignID)
	case queue.JobDispatch:
		return e.runDispatch(ctx, job.CampaignID)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// StartGeneration validates the campaign, flips it to GENERATING and
// enqueues the generation job. Returns the number of pending recipients.
func (e *Engine) StartGeneration(ctx context.Context, campaignID string) (int, error) {
	campaign, err := e.campaignRepo.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	if campaign.Status != models.CampaignDraft {
		return 0, fmt.Errorf("%w: cannot generate in status %s", ErrInvalidState, campaign.Status)
	}

	links, err := e.linkRepo.ListByStatus(campaignID, models.StatusPending)
	if err != nil {
		return 0, err
	}
	if len(links) == 0 {
		return 0, ErrNoRecipients
	}

	if err := e.campaignRepo.UpdateStatus(campaignID, models.CampaignGenerating); err != nil {
		return 0, err
	}
	if err := e.jobs.Publish(ctx, queue.Job{CampaignID: campaignID, Kind: queue.JobGenerate}); err != nil {
		// Roll the status back so the operator can retry.
		if rbErr := e.campaignRepo.UpdateStatus(campaignID, models.CampaignDraft); rbErr != nil {
			logrus.Errorf("Failed to roll back campaign %s to DRAFT: %v", campaignID, rbErr)
		}
		return 0, err
	}

	return len(links), nil
}

// runGeneration produces content for every pending link and flips the
// campaign to READY. If nothing could be generated the campaign falls
// back to DRAFT so the operator can fix the configuration and retry.
func (e *Engine) runGeneration(ctx context.Context, campaignID string) error {
	links, err := e.linkRepo.ListByStatus(campaignID, models.StatusPending)
	if err != nil {
		return e.generationFailed(campaignID, err)
	}

	contactIDs := make([]string, 0, len(links))
	linkByContact := make(map[string]*models.CampaignContact, len(links))
	for _, link := range links {
		contactIDs = append(contactIDs, link.ContactID)
		linkByContact[link.ContactID] = link
	}

	results, err := e.generator.BatchGenerate(ctx, campaignID, contactIDs, func(processed, total int) {
		logrus.Debugf("Campaign %s generation progress: %d/%d", campaignID, processed, total)
	})
	if err != nil {
		return e.generationFailed(campaignID, err)
	}
	if len(results) == 0 {
		return e.generationFailed(campaignID, fmt.Errorf("no content generated for %d recipients", len(links)))
	}

	for contactID, content := range results {
		link := linkByContact[contactID]
		err := e.linkRepo.Transition(link.ID, models.StatusGenerated, repository.LinkFields{
			PersonalizedSubject: content.Subject,
			PersonalizedBody:    content.Body,
			HTMLBody:            content.HTMLBody,
			GenerationTimeMs:    content.GenerationTimeMs,
		})
		if err != nil {
			logrus.Errorf("Failed to store generated content for link %s: %v", link.ID, err)
		}
	}

	if err := e.refreshCounters(campaignID); err != nil {
		logrus.Errorf("Failed to refresh counters for campaign %s: %v", campaignID, err)
	}

	logrus.Infof("Campaign %s generation finished: %d/%d succeeded", campaignID, len(results), len(links))
	return e.campaignRepo.UpdateStatus(campaignID, models.CampaignReady)
}

func (e *Engine) generationFailed(campaignID string, cause error) error {
	logrus.Errorf("Campaign %s generation failed: %v", campaignID, cause)
	if err := e.campaignRepo.UpdateStatus(campaignID, models.CampaignDraft); err != nil {
		logrus.Errorf("Failed to return campaign %s to DRAFT: %v", campaignID, err)
	}
	return cause
}

// StartDispatch validates the campaign and its transport, then either
// performs a synchronous test send or enqueues the dispatch job. Invalid
// state and missing credentials surface here, before any state changes.
func (e *Engine) StartDispatch(ctx context.Context, campaignID, testDestination string) error {
	campaign, err := e.campaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}

	switch campaign.Channel {
	case models.ChannelEmail:
		if campaign.Status != models.CampaignReady {
			return fmt.Errorf("%w: email campaigns can only be sent from READY, got %s", ErrInvalidState, campaign.Status)
		}
		if !e.smtpCfg.Configured() {
			return fmt.Errorf("%w: missing SMTP credentials", delivery.ErrNotConfigured)
		}
	case models.ChannelWhatsApp:
		if campaign.Status != models.CampaignDraft && campaign.Status != models.CampaignReady {
			return fmt.Errorf("%w: whatsapp campaigns can only be sent from DRAFT or READY, got %s", ErrInvalidState, campaign.Status)
		}
		if _, err := e.newWhatsAppSender(e.waCfg); err != nil {
			return err
		}
		if campaign.TemplateName == "" {
			return fmt.Errorf("%w: campaign has no message template", delivery.ErrTemplateRequired)
		}
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidState, campaign.Channel)
	}

	if testDestination != "" {
		return e.sendTest(ctx, campaign, testDestination)
	}

	return e.jobs.Publish(ctx, queue.Job{CampaignID: campaignID, Kind: queue.JobDispatch})
}

// sendTest delivers one probe message to an explicit destination without
// touching campaign or link state.
func (e *Engine) sendTest(ctx context.Context, campaign *models.Campaign, destination string) error {
	switch campaign.Channel {
	case models.ChannelEmail:
		msg := delivery.Message{To: destination}
		links, err := e.linkRepo.ListByStatus(campaign.ID, models.StatusGenerated, models.StatusQueued)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			return fmt.Errorf("%w: no generated content to test with", ErrNoRecipients)
		}
		msg.Subject = "[TEST] " + links[0].PersonalizedSubject
		msg.TextBody = links[0].PersonalizedBody
		msg.HTMLBody = links[0].HTMLBody

		_, err = e.newEmailSender(e.smtpCfg).Send(ctx, msg)
		return err

	case models.ChannelWhatsApp:
		sender, err := e.newWhatsAppSender(e.waCfg)
		if err != nil {
			return err
		}
		to, err := utils.NormalizePhone(destination, "")
		if err != nil {
			return fmt.Errorf("%w: %v", delivery.ErrRejected, err)
		}
		_, err = sender.Send(ctx, delivery.Message{
			To:               to,
			TemplateName:     campaign.TemplateName,
			TemplateLanguage: campaign.TemplateLanguage,
		})
		return err
	}
	return fmt.Errorf("%w: unknown channel %q", ErrInvalidState, campaign.Channel)
}

// runDispatch sends the campaign to its eligible recipients, strictly in
// order. Per-recipient failures mark the link FAILED and continue; the
// campaign always ends COMPLETED once the eligible set is exhausted.
func (e *Engine) runDispatch(ctx context.Context, campaignID string) error {
	campaign, err := e.campaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}

	if err := e.campaignRepo.UpdateStatus(campaignID, models.CampaignSending); err != nil {
		return err
	}

	var sender delivery.Sender
	var interval time.Duration
	switch campaign.Channel {
	case models.ChannelEmail:
		sender = e.newEmailSender(e.smtpCfg)
		interval = e.emailInterval
	case models.ChannelWhatsApp:
		sender, err = e.newWhatsAppSender(e.waCfg)
		if err != nil {
			return err
		}
		interval = e.whatsappInterval
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidState, campaign.Channel)
	}

	links, err := e.eligibleLinks(campaign)
	if err != nil {
		return err
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	sent, failed := 0, 0

	for _, link := range links {
		if err := limiter.Wait(ctx); err != nil {
			logrus.Warnf("Campaign %s dispatch interrupted after %d sends: %v", campaignID, sent, err)
			return err
		}

		if err := e.sendOne(ctx, sender, campaign, link); err != nil {
			failed++
		} else {
			sent++
		}
	}

	if err := e.refreshCounters(campaignID); err != nil {
		logrus.Errorf("Failed to refresh counters for campaign %s: %v", campaignID, err)
	}

	logrus.Infof("Campaign %s dispatch finished: %d sent, %d failed", campaignID, sent, failed)
	return e.campaignRepo.UpdateStatus(campaignID, models.CampaignCompleted)
}

// eligibleLinks selects the recipients for this run. Email campaigns
// dispatch their generated links; WhatsApp campaigns select opted-in
// contacts matching the target tags and upsert links on the fly.
func (e *Engine) eligibleLinks(campaign *models.Campaign) ([]*models.CampaignContact, error) {
	if campaign.Channel == models.ChannelEmail {
		return e.linkRepo.ListByStatus(campaign.ID, models.StatusGenerated, models.StatusQueued)
	}

	contacts, err := e.contactRepo.ListEligible(campaign.UserID, models.ChannelWhatsApp, campaign.TargetTags)
	if err != nil {
		return nil, err
	}

	var links []*models.CampaignContact
	for _, contact := range contacts {
		link, err := e.linkRepo.Upsert(campaign.ID, contact.ID)
		if err != nil {
			logrus.Errorf("Failed to attach contact %s to campaign %s: %v", contact.ID, campaign.ID, err)
			continue
		}
		// A link that already left the system stays untouched; this run
		// only picks up recipients that have not been sent to yet.
		switch link.Status {
		case models.StatusPending, models.StatusGenerated, models.StatusQueued:
			link.Contact = *contact
			links = append(links, link)
		}
	}

	if err := e.campaignRepo.SetTotalContacts(campaign.ID, len(links)); err != nil {
		logrus.Errorf("Failed to update total contacts for campaign %s: %v", campaign.ID, err)
	}
	return links, nil
}

// sendOne delivers to a single link and records the outcome. The dispatch
// loop is the only writer of the sent/failed counter increments; webhooks
// always go through the full recompute instead.
func (e *Engine) sendOne(ctx context.Context, sender delivery.Sender, campaign *models.Campaign, link *models.CampaignContact) error {
	msg, err := e.buildMessage(campaign, link)
	if err != nil {
		e.markFailed(campaign.ID, link, err)
		return err
	}

	providerID, err := sender.Send(ctx, msg)
	if err != nil {
		e.markFailed(campaign.ID, link, err)
		return err
	}

	if err := e.linkRepo.Transition(link.ID, models.StatusSent, repository.LinkFields{
		ProviderMessageID: providerID,
		IncrementAttempts: true,
	}); err != nil {
		logrus.Errorf("Failed to mark link %s sent: %v", link.ID, err)
		return err
	}
	if err := e.campaignRepo.IncrementCounter(campaign.ID, "sent", 1); err != nil {
		logrus.Errorf("Failed to increment sent counter for campaign %s: %v", campaign.ID, err)
	}
	return nil
}

func (e *Engine) buildMessage(campaign *models.Campaign, link *models.CampaignContact) (delivery.Message, error) {
	if campaign.Channel == models.ChannelEmail {
		return delivery.Message{
			To:                link.Contact.Email,
			Subject:           link.PersonalizedSubject,
			TextBody:          link.PersonalizedBody,
			HTMLBody:          link.HTMLBody,
			CampaignContactID: link.ID,
		}, nil
	}

	to, err := utils.NormalizePhone(link.Contact.Phone, link.Contact.PhoneCountryCode)
	if err != nil {
		return delivery.Message{}, fmt.Errorf("%w: %v", delivery.ErrRejected, err)
	}
	return delivery.Message{
		To:                to,
		TemplateName:      campaign.TemplateName,
		TemplateLanguage:  campaign.TemplateLanguage,
		CampaignContactID: link.ID,
	}, nil
}

func (e *Engine) markFailed(campaignID string, link *models.CampaignContact, cause error) {
	logrus.Errorf("Failed to send to link %s: %v", link.ID, cause)
	err := e.linkRepo.Transition(link.ID, models.StatusFailed, repository.LinkFields{
		ErrorCode:         errorCodeFor(cause),
		ErrorMessage:      cause.Error(),
		IncrementAttempts: true,
	})
	if err != nil {
		logrus.Errorf("Failed to mark link %s failed: %v", link.ID, err)
	}
	if err := e.campaignRepo.IncrementCounter(campaignID, "failed", 1); err != nil {
		logrus.Errorf("Failed to increment failed counter for campaign %s: %v", campaignID, err)
	}
}

// refreshCounters recomputes the campaign's counter cache from the links.
func (e *Engine) refreshCounters(campaignID string) error {
	counters, err := e.linkRepo.RecomputeCampaignCounters(campaignID)
	if err != nil {
		return err
	}
	return e.campaignRepo.UpdateCounters(campaignID, counters)
}

// errorCodeFor maps the canonical delivery sentinels to stable codes
// stored on failed links.
func errorCodeFor(err error) string {
	switch {
	case errors.Is(err, delivery.ErrRejected):
		return "rejected"
	case errors.Is(err, delivery.ErrThrottled):
		return "throttled"
	case errors.Is(err, delivery.ErrTemplateRequired):
		return "template_required"
	case errors.Is(err, delivery.ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, delivery.ErrTransportError):
		return "transport_error"
	default:
		return "unknown"
	}
}
