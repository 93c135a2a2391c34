package models

import "time"

// CampaignCounters is the aggregate derived by grouping links by status.
// The rollup is cumulative: a CLICKED link also counts as opened,
// delivered and sent.
type CampaignCounters struct {
	TotalContacts int `json:"total_contacts"`
	Generated     int `json:"generated"`
	Sent          int `json:"sent"`
	Delivered     int `json:"delivered"`
	Opened        int `json:"opened"`
	Clicked       int `json:"clicked"`
	Bounced       int `json:"bounced"`
	Failed        int `json:"failed"`
}

// CampaignRates are derived percentages in [0, 100]. A rate whose
// denominator is zero is reported as 0, never NaN or Inf.
type CampaignRates struct {
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
	BounceRate   float64 `json:"bounce_rate"`
}

// DeriveRates computes delivery/open/click/bounce rates from counters.
func (c CampaignCounters) DeriveRates() CampaignRates {
	return CampaignRates{
		DeliveryRate: ratio(c.Delivered, c.Sent),
		OpenRate:     ratio(c.Opened, c.Delivered),
		ClickRate:    ratio(c.Clicked, c.Opened),
		BounceRate:   ratio(c.Bounced, c.Sent),
	}
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

// CampaignAnalyticsResponse is the read-only analytics view of a campaign.
type CampaignAnalyticsResponse struct {
	Campaign        CampaignSummary       `json:"campaign"`
	Stats           CampaignCounters      `json:"stats"`
	Rates           CampaignRates         `json:"rates"`
	StatusBreakdown map[ContactStatus]int `json:"status_breakdown"`
}

// CampaignSummary is the identifying slice of a campaign used in
// analytics responses.
type CampaignSummary struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Channel     CampaignChannel `json:"channel"`
	Status      CampaignStatus  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}
