// Package tracking is the visit capture bounded context: it turns raw
// landing-page payloads into canonical tracking fingerprints and persists
// them to the click event store.
package tracking

import (
	"context"
	"net/url"
	"strings"
	"time"

	"wa_attribution_backend/internal/attribution/domain"
	"wa_attribution_backend/internal/attribution/ports"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/platform/logger"
	"wa_attribution_backend/platform/phone"

	"github.com/google/uuid"
)

// Query parameters carrying deterministic click identifiers. ctwa_clid is the
// join key attribution depends on; gclid and fbclid are persisted for the
// visitor but play no part in matching.
const (
	paramCtwaClickID = "ctwa_clid"
	paramGclid       = "gclid"
	paramFbclid      = "fbclid"
)

// RawVisit is the unprocessed payload reported by the landing page.
type RawVisit struct {
	SessionID        string
	VisitorID        string // stable client-persisted id, keys the click-id store
	RemoteIP         string
	UserAgent        string
	PageQuery        url.Values
	ScreenResolution string
	Timezone         string
	Language         string
}

// DeviceRecorder stores the device signals observed when a visitor taps the
// WhatsApp button, keyed by the phone they are about to message.
type DeviceRecorder interface {
	RecordDeviceSnapshot(ctx context.Context, phone string, fp domain.TrackingFingerprint) error
}

// Extractor derives a canonical fingerprint from a raw visit and persists it.
type Extractor struct {
	store    ports.ClickEventStore
	clickIDs ports.ClickIDStore // nil when no persisted-id provider is configured
	devices  DeviceRecorder
	eventBus events.Bus
	log      *logger.Logger
}

// NewExtractor creates a fingerprint extractor. clickIDs may be nil.
func NewExtractor(store ports.ClickEventStore, clickIDs ports.ClickIDStore, devices DeviceRecorder, eventBus events.Bus, log *logger.Logger) *Extractor {
	return &Extractor{store: store, clickIDs: clickIDs, devices: devices, eventBus: eventBus, log: log}
}

// Capture builds the fingerprint and inserts it into the click event store.
// Inserting is idempotent on session id, so replays are harmless.
//
// Absent fields become nil, never "", so scoring can tell "unknown" apart
// from a genuinely empty value.
func (e *Extractor) Capture(ctx context.Context, visit RawVisit) (domain.TrackingFingerprint, error) {
	fp := domain.TrackingFingerprint{
		SessionID:        visit.SessionID,
		IPAddress:        nilIfEmpty(visit.RemoteIP),
		UserAgent:        nilIfEmpty(visit.UserAgent),
		ScreenResolution: nilIfEmpty(visit.ScreenResolution),
		Timezone:         nilIfEmpty(visit.Timezone),
		Language:         nilIfEmpty(visit.Language),
		UTMSource:        queryValue(visit.PageQuery, "utm_source"),
		UTMMedium:        queryValue(visit.PageQuery, "utm_medium"),
		UTMCampaign:      queryValue(visit.PageQuery, "utm_campaign"),
		UTMContent:       queryValue(visit.PageQuery, "utm_content"),
		UTMTerm:          queryValue(visit.PageQuery, "utm_term"),
		SourceID:         queryValue(visit.PageQuery, "source_id"),
		MediaURL:         queryValue(visit.PageQuery, "media_url"),
		CreatedAt:        time.Now().UTC(),
	}

	if raw := queryValue(visit.PageQuery, "campaign_id"); raw != nil {
		if id, err := uuid.Parse(*raw); err == nil {
			fp.CampaignID = &id
		}
	}

	fp.CtwaClickID = e.resolveClickID(ctx, visit, paramCtwaClickID)

	// Secondary ad-platform ids are persisted per visitor so later exports
	// can see them, but they never join clicks to conversations.
	e.persistClickID(ctx, visit, paramGclid)
	e.persistClickID(ctx, visit, paramFbclid)

	if err := e.store.Insert(ctx, fp); err != nil {
		e.log.DatabaseError("tracking.insert", err)
		return domain.TrackingFingerprint{}, err
	}

	e.eventBus.Publish(ctx, events.VisitCaptured{
		BaseEvent:  events.NewBaseEvent(),
		SessionID:  fp.SessionID,
		CampaignID: fp.CampaignID,
		HasCtwaID:  fp.CtwaClickID != nil,
	})

	return fp, nil
}

// RecordWhatsAppClick captures the visit like any other page event, then
// snapshots the device signals against the phone the visitor is about to
// message. The snapshot is what lets the retroactive correlator reconnect
// this phone to its browsing session days later.
func (e *Extractor) RecordWhatsAppClick(ctx context.Context, rawPhone string, visit RawVisit) (domain.TrackingFingerprint, error) {
	fp, err := e.Capture(ctx, visit)
	if err != nil {
		return domain.TrackingFingerprint{}, err
	}

	normalized := phone.NormalizeE164(rawPhone)
	if err := e.devices.RecordDeviceSnapshot(ctx, normalized, fp); err != nil {
		e.log.DatabaseError("tracking.record_device_snapshot", err)
		return domain.TrackingFingerprint{}, err
	}

	return fp, nil
}

// resolveClickID reads a deterministic id from the query string first, then
// falls back to the visitor's persisted copy. Query values are written back
// to the store so subsequent pages in the same visit can recover them.
func (e *Extractor) resolveClickID(ctx context.Context, visit RawVisit, param string) *string {
	if value := queryValue(visit.PageQuery, param); value != nil {
		e.persistClickID(ctx, visit, param)
		return value
	}

	if e.clickIDs == nil || visit.VisitorID == "" {
		return nil
	}

	stored, err := e.clickIDs.Get(ctx, visitorKey(visit.VisitorID, param))
	if err != nil {
		e.log.Warn("click id store read failed", "param", param, "error", err)
		return nil
	}
	return nilIfEmpty(stored)
}

func (e *Extractor) persistClickID(ctx context.Context, visit RawVisit, param string) {
	if e.clickIDs == nil || visit.VisitorID == "" {
		return
	}
	value := queryValue(visit.PageQuery, param)
	if value == nil {
		return
	}
	if err := e.clickIDs.Set(ctx, visitorKey(visit.VisitorID, param), *value); err != nil {
		e.log.Warn("click id store write failed", "param", param, "error", err)
	}
}

func visitorKey(visitorID, param string) string {
	return visitorID + ":" + param
}

func queryValue(q url.Values, key string) *string {
	if q == nil {
		return nil
	}
	return nilIfEmpty(q.Get(key))
}

func nilIfEmpty(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
