package composer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/outreachly/outreachly-backend/internal/config"
	"github.com/outreachly/outreachly-backend/internal/database/repository"
	"github.com/outreachly/outreachly-backend/internal/models"
	"github.com/outreachly/outreachly-backend/internal/services/ai"
)

// generationInterval is the pause between consecutive generation calls, so
// a batch cannot overwhelm a local Ollama server.
const generationInterval = 100 * time.Millisecond

const generationMaxTokens = 1500

// ProgressFunc receives (processed, total) after every contact in a batch.
type ProgressFunc func(processed, total int)

// Generator produces personalized content for campaign recipients. One
// Generator is safe for concurrent use; each batch paces itself with its
// own rate limiter.
type Generator struct {
	campaignRepo *repository.CampaignRepository
	contactRepo  *repository.ContactRepository
	aiConfig     config.AIConfig

	// newBackend is swappable in tests; defaults to ai.NewBackend.
	newBackend func(models.AIModelType, config.AIConfig) (ai.TextBackend, error)
}

func NewGenerator(campaignRepo *repository.CampaignRepository, contactRepo *repository.ContactRepository, aiConfig config.AIConfig) *Generator {
	return &Generator{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		aiConfig:     aiConfig,
		newBackend:   ai.NewBackend,
	}
}

// GenerateFor runs one generation call for a single contact and returns the
// parsed content with the observed latency.
func (g *Generator) GenerateFor(ctx context.Context, backend ai.TextBackend, campaign *models.Campaign, contact *models.Contact) (*GeneratedContent, error) {
	history := make([]models.ContactInteraction, len(contact.Interactions))
	copy(history, contact.Interactions)

	pc := PromptContext{
		Campaign: campaign,
		Contact:  contact,
		History:  history,
	}

	req := ai.GenerateRequest{
		Model:        campaign.AIModelName,
		SystemPrompt: BuildSystemPrompt(campaign),
		UserPrompt:   BuildUserPrompt(pc),
		Temperature:  TemperatureForLevel(campaign.PersonalizationLevel),
		MaxTokens:    generationMaxTokens,
	}

	start := time.Now()
	raw, err := backend.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	subject, body, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}

	return &GeneratedContent{
		Subject:          subject,
		Body:             body,
		HTMLBody:         RenderHTML(body),
		GenerationTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// BatchGenerate generates content for every contact in contactIDs,
// strictly in order. A per-contact failure is logged and skipped so one
// bad recipient never aborts the batch; the result map holds only the
// successes. The batch stops early only on context cancellation or when
// the campaign itself cannot be loaded.
func (g *Generator) BatchGenerate(ctx context.Context, campaignID string, contactIDs []string, onProgress ProgressFunc) (map[string]*GeneratedContent, error) {
	campaign, err := g.campaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign %s not found: %w", campaignID, err)
	}

	backend, err := g.newBackend(campaign.AIModelType, g.aiConfig)
	if err != nil {
		return nil, err
	}

	total := len(contactIDs)
	results := make(map[string]*GeneratedContent, total)

	// Progress reporting runs on its own goroutine with a buffered channel
	// so a slow callback cannot stall the generation loop.
	progress := make(chan int, total)
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		for processed := range progress {
			if onProgress != nil {
				onProgress(processed, total)
			}
		}
	}()
	defer func() {
		close(progress)
		<-reporterDone
	}()

	limiter := rate.NewLimiter(rate.Every(generationInterval), 1)

	for i, contactID := range contactIDs {
		if err := limiter.Wait(ctx); err != nil {
			return results, err
		}

		contact, err := g.contactRepo.GetByID(contactID)
		if err != nil {
			logrus.Warnf("Contact %s not found, skipping: %v", contactID, err)
			progress <- i + 1
			continue
		}

		content, err := g.GenerateFor(ctx, backend, campaign, contact)
		if err != nil {
			logrus.Errorf("Failed to generate content for contact %s in campaign %s: %v", contactID, campaignID, err)
			progress <- i + 1
			continue
		}

		results[contactID] = content
		progress <- i + 1
	}

	return results, nil
}
