// Package transport defines the request/response shapes of the attribution
// HTTP surface.
package transport

import (
	"time"

	"wa_attribution_backend/internal/attribution/domain"

	"github.com/google/uuid"
)

// ResolveRequest is the inbound event trigger: the signals available when a
// WhatsApp conversation starts.
type ResolveRequest struct {
	LeadID           *uuid.UUID `json:"leadId"`
	IPAddress        string     `json:"ipAddress"`
	UserAgent        string     `json:"userAgent"`
	Timezone         string     `json:"timezone"`
	ScreenResolution string     `json:"screenResolution"`
	Language         string     `json:"language"`
	CtwaClickID      string     `json:"ctwaClickId"`
	OccurredAt       *time.Time `json:"occurredAt"`
}

// EventContext converts the request into the domain event context.
// Empty strings become nil: unknown, not empty.
func (r ResolveRequest) EventContext() domain.EventContext {
	target := domain.EventContext{
		IPAddress:        nilIfEmpty(r.IPAddress),
		UserAgent:        nilIfEmpty(r.UserAgent),
		Timezone:         nilIfEmpty(r.Timezone),
		ScreenResolution: nilIfEmpty(r.ScreenResolution),
		Language:         nilIfEmpty(r.Language),
		CtwaClickID:      nilIfEmpty(r.CtwaClickID),
	}
	if r.OccurredAt != nil {
		target.OccurredAt = *r.OccurredAt
	}
	return target
}

// ResolveResponse reports the resolution outcome.
type ResolveResponse struct {
	Attributed bool               `json:"attributed"`
	Applied    bool               `json:"applied"`
	Result     *AttributionResult `json:"result,omitempty"`
}

// AttributionResult is the wire form of a domain attribution result.
type AttributionResult struct {
	CampaignID      *uuid.UUID `json:"campaignId,omitempty"`
	CampaignName    string     `json:"campaignName,omitempty"`
	UTMSource       *string    `json:"utmSource,omitempty"`
	UTMMedium       *string    `json:"utmMedium,omitempty"`
	UTMCampaign     *string    `json:"utmCampaign,omitempty"`
	UTMContent      *string    `json:"utmContent,omitempty"`
	UTMTerm         *string    `json:"utmTerm,omitempty"`
	SourceID        *string    `json:"sourceId,omitempty"`
	MediaURL        *string    `json:"mediaUrl,omitempty"`
	MatchType       string     `json:"matchType"`
	ConfidenceScore int        `json:"confidenceScore"`
	TrackingMethod  string     `json:"trackingMethod"`
}

// FromDomain maps a domain result to its wire form.
func FromDomain(result domain.AttributionResult) *AttributionResult {
	return &AttributionResult{
		CampaignID:      result.CampaignID,
		CampaignName:    result.CampaignName,
		UTMSource:       result.UTMSource,
		UTMMedium:       result.UTMMedium,
		UTMCampaign:     result.UTMCampaign,
		UTMContent:      result.UTMContent,
		UTMTerm:         result.UTMTerm,
		SourceID:        result.SourceID,
		MediaURL:        result.MediaURL,
		MatchType:       result.MatchType,
		ConfidenceScore: result.ConfidenceScore,
		TrackingMethod:  result.TrackingMethod(),
	}
}

// RecorrelateRequest selects the batch scope. With no explicit lead ids the
// handler falls back to the configured eligibility window.
type RecorrelateRequest struct {
	LeadIDs    []uuid.UUID `json:"leadIds"`
	WindowDays int         `json:"windowDays" validate:"omitempty,min=1,max=90"`
}

// RecorrelateResponse reports batch counts only; raw error detail stays in
// the logs.
type RecorrelateResponse struct {
	Enqueued  bool `json:"enqueued"`
	Processed int  `json:"processed"`
	Updated   int  `json:"updated"`
	Errors    int  `json:"errors"`
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
