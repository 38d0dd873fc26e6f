// Package ports declares the collaborator interfaces the attribution core
// depends on. Concrete implementations live in internal/tracking,
// internal/leads and internal/campaigns; tests substitute fakes.
package ports

import (
	"context"
	"time"

	"wa_attribution_backend/internal/attribution/domain"

	"github.com/google/uuid"
)

// ClickEventStore is the append-only store of visit fingerprints. The
// attribution core only reads from it; the capture layer writes.
type ClickEventStore interface {
	// Insert persists a fingerprint. Idempotent on SessionID.
	Insert(ctx context.Context, fp domain.TrackingFingerprint) error

	// QueryByCtwaID returns the most recent fingerprint carrying the given
	// click-to-WhatsApp id, or nil when none exists.
	QueryByCtwaID(ctx context.Context, ctwaID string) (*domain.TrackingFingerprint, error)

	// QueryByIPAndUserAgent returns fingerprints matching both fields exactly
	// within [windowStart, windowEnd], newest first, capped at limit.
	QueryByIPAndUserAgent(ctx context.Context, ip, userAgent string, windowStart, windowEnd time.Time, limit int) ([]domain.TrackingFingerprint, error)

	// QueryByIP returns fingerprints matching the IP within
	// [windowStart, windowEnd], newest first, capped at limit.
	QueryByIP(ctx context.Context, ip string, windowStart, windowEnd time.Time, limit int) ([]domain.TrackingFingerprint, error)
}

// CampaignNameReader resolves a campaign's display name.
type CampaignNameReader interface {
	GetCampaignName(ctx context.Context, campaignID uuid.UUID) (*string, error)
}

// DeviceLookup fetches the most recent device/visit signals recorded for a
// phone number. Used by the retroactive correlator to rebuild an event
// context for leads attributed after the fact.
type DeviceLookup interface {
	GetLatestDeviceFingerprint(ctx context.Context, phone string) (*domain.TrackingFingerprint, error)
}

// LeadReader provides the minimal lead data the correlator needs.
type LeadReader interface {
	GetLeadPhone(ctx context.Context, leadID uuid.UUID) (string, error)
}

// LeadAttributionWriter applies an accepted attribution result to a lead.
// Writes are idempotent overwrites of a denormalized field set; a later,
// stronger resolution is allowed to supersede an earlier one.
type LeadAttributionWriter interface {
	ApplyAttribution(ctx context.Context, leadID uuid.UUID, result domain.AttributionResult) error
}

// ClickIDStore is the persisted-identifier provider backing the extractor's
// "arrived on page N, messaged from page N+1" fallback.
type ClickIDStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
