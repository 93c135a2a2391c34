// Package composer turns a campaign definition plus one recipient into the
// prompt pair sent to the AI backend, and parses the model's reply back
// into a subject and body. Prompt construction is deterministic: the same
// campaign and contact always produce byte-identical prompts.
package composer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/outreachly/outreachly-backend/internal/models"
)

// ErrUnparsable means the model reply contained neither the SUBJECT:/BODY:
// markers nor a usable blank-line split.
var ErrUnparsable = errors.New("unparsable generation response")

// GeneratedContent is the outcome of one successful generation call.
type GeneratedContent struct {
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	HTMLBody         string `json:"html_body"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
}

// PromptContext carries everything prompt construction may draw on. History
// must already be sorted newest-first; only the campaign flags decide
// whether social context and history actually appear in the prompt.
type PromptContext struct {
	Campaign *models.Campaign
	Contact  *models.Contact
	History  []models.ContactInteraction
}

const systemPromptBase = `You are an expert email marketing copywriter. Your task is to create personalized, engaging emails that feel authentic and tailored to each recipient.

Key principles:
- Write in a natural, conversational tone
- Personalize based on the recipient's profile, interests, and interactions
- Make the email feel like it was written specifically for this person
- Keep the email concise and focused on the campaign goal
- Include a clear call-to-action
- Avoid generic marketing speak
`

// BuildSystemPrompt returns the system prompt for the campaign's
// personalization level. Operator-supplied instructions are always appended
// last so they can override the built-in guidance.
func BuildSystemPrompt(campaign *models.Campaign) string {
	var b strings.Builder
	b.WriteString(systemPromptBase)

	switch strings.ToUpper(campaign.PersonalizationLevel) {
	case models.PersonalizationHigh:
		b.WriteString(`
- Personalization Level: HIGH
- Reference specific details from their profile and recent activity
- Make meaningful connections between their interests and your message
- Use natural, context-specific personalization throughout`)
	case models.PersonalizationMedium:
		b.WriteString(`
- Personalization Level: MEDIUM
- Include key personalization elements (name, company, role)
- Reference relevant interests or activities when appropriate
- Balance personalization with message clarity`)
	default:
		b.WriteString(`
- Personalization Level: LOW
- Use basic personalization (name, company)
- Focus on clear, concise messaging
- Keep it professional and to the point`)
	}

	if campaign.PersonalizationInstructions != "" {
		b.WriteString("\n\nAdditional Instructions:\n")
		b.WriteString(campaign.PersonalizationInstructions)
	}

	return b.String()
}

// BuildUserPrompt renders the recipient context into the user prompt.
// Absent fields are omitted entirely rather than rendered as empty lines,
// so the model never sees placeholder noise.
func BuildUserPrompt(pc PromptContext) string {
	campaign, contact := pc.Campaign, pc.Contact

	goal := campaign.CampaignGoal
	if goal == "" {
		goal = "Engage the recipient"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Create a personalized email for the following campaign:

Campaign: %s
Goal: %s

Recipient Information:
- Name: %s
- Email: %s`, campaign.Name, goal, recipientName(contact), contact.Email)

	if contact.Company != "" {
		fmt.Fprintf(&b, "\n- Company: %s", contact.Company)
	}
	if contact.JobTitle != "" {
		fmt.Fprintf(&b, "\n- Job Title: %s", contact.JobTitle)
	}
	if contact.Location != "" {
		fmt.Fprintf(&b, "\n- Location: %s", contact.Location)
	}
	if contact.Bio != "" {
		fmt.Fprintf(&b, "\n- Bio: %s", contact.Bio)
	}

	if campaign.IncludeSocialContext && !contact.Social.IsZero() {
		social := contact.Social
		b.WriteString("\n\nSocial Media Context:")
		if social.Platform != "" {
			fmt.Fprintf(&b, "\n- Platform: %s", social.Platform)
		}
		if social.FollowerCount > 0 {
			fmt.Fprintf(&b, "\n- Followers: %d", social.FollowerCount)
		}
		if len(social.Interests) > 0 {
			fmt.Fprintf(&b, "\n- Interests: %s", strings.Join(social.Interests, ", "))
		}
		if len(social.RecentPosts) > 0 {
			posts := social.RecentPosts
			if len(posts) > 3 {
				posts = posts[:3]
			}
			fmt.Fprintf(&b, "\n- Recent activity: %s", strings.Join(posts, "; "))
		}
	}

	if campaign.IncludeInteractionHistory && len(pc.History) > 0 {
		history := pc.History
		if len(history) > 5 {
			history = history[:5]
		}
		b.WriteString("\n\nPrevious Interactions:")
		for _, interaction := range history {
			fmt.Fprintf(&b, "\n- %s: %s", interaction.InteractionType, interaction.Summary)
		}
	}

	if len(contact.CustomFields) > 0 {
		b.WriteString("\n\nAdditional Information:")
		for _, key := range contact.CustomFields.SortedKeys() {
			fmt.Fprintf(&b, "\n- %s: %s", key, contact.CustomFields[key])
		}
	}

	fmt.Fprintf(&b, `

Base Template/Structure:
%s

Please generate:
1. A personalized subject line (max 60 characters, engaging and relevant)
2. The email body (concise, personalized, with clear call-to-action)

Format your response EXACTLY as:
SUBJECT: [subject line]

BODY:
[email body]`, campaign.BaseTemplate)

	return b.String()
}

func recipientName(contact *models.Contact) string {
	if name := contact.DisplayName(); name != contact.Email {
		return name
	}
	return "there"
}

var (
	subjectMarkerRe = regexp.MustCompile(`(?i)SUBJECT:\s*(.+)`)
	bodyMarkerRe    = regexp.MustCompile(`(?is)BODY:\s*(.+)`)
	subjectPrefixRe = regexp.MustCompile(`(?i)^SUBJECT:\s*`)
	bodyPrefixRe    = regexp.MustCompile(`(?i)^BODY:\s*`)
)

// ParseResponse extracts subject and body from a model reply. It tries the
// SUBJECT:/BODY: markers first; when a model ignores the format instruction
// it falls back to treating the first blank-line-separated block as the
// subject and the remainder as the body.
func ParseResponse(raw string) (subject, body string, err error) {
	subjectMatch := subjectMarkerRe.FindStringSubmatch(raw)
	bodyMatch := bodyMarkerRe.FindStringSubmatch(raw)

	if subjectMatch != nil && bodyMatch != nil {
		subject = strings.TrimSpace(subjectMatch[1])
		body = strings.TrimSpace(bodyMatch[1])
		// The subject regex is line-anchored only by \s, so it can swallow
		// a "BODY:" that sits on the same line in degenerate replies.
		if idx := strings.Index(strings.ToUpper(subject), "BODY:"); idx >= 0 {
			subject = strings.TrimSpace(subject[:idx])
		}
		if subject != "" && body != "" {
			return subject, body, nil
		}
	}

	parts := strings.SplitN(strings.TrimSpace(raw), "\n\n", 2)
	if len(parts) == 2 {
		subject = strings.TrimSpace(subjectPrefixRe.ReplaceAllString(strings.TrimSpace(parts[0]), ""))
		body = strings.TrimSpace(bodyPrefixRe.ReplaceAllString(strings.TrimSpace(parts[1]), ""))
		if subject != "" && body != "" {
			return subject, body, nil
		}
	}

	return "", "", fmt.Errorf("%w: expected SUBJECT: and BODY: sections", ErrUnparsable)
}

// RenderHTML converts the plain-text body into a minimal standalone HTML
// document: blank lines delimit paragraphs, single newlines become <br>.
// The conversion is deterministic and safe to run more than once on the
// same plain-text input.
func RenderHTML(body string) string {
	var paragraphs []string
	for _, p := range strings.Split(body, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paragraphs = append(paragraphs, "<p>"+strings.ReplaceAll(p, "\n", "<br>")+"</p>")
	}

	return `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    p { margin: 0 0 1em 0; }
    a { color: #0066cc; text-decoration: none; }
    a:hover { text-decoration: underline; }
  </style>
</head>
<body>
` + strings.Join(paragraphs, "\n") + `
</body>
</html>`
}

// TemperatureForLevel maps a personalization level to the sampling
// temperature used for generation. Unknown levels get the MEDIUM default.
func TemperatureForLevel(level string) float32 {
	switch strings.ToUpper(level) {
	case models.PersonalizationHigh:
		return 0.8
	case models.PersonalizationMedium:
		return 0.7
	case models.PersonalizationLow:
		return 0.6
	default:
		return 0.7
	}
}
