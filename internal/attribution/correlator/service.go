// Package correlator re-runs attribution over historical leads. Attribution
// quality improves as fingerprints accumulate, so leads that arrived organic
// or unattributed are periodically re-evaluated against the grown store.
package correlator

import (
	"context"
	"time"

	"wa_attribution_backend/internal/attribution/domain"
	"wa_attribution_backend/internal/attribution/ports"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	applyAttempts = 3
	applyBackoff  = 500 * time.Millisecond
)

// Resolver is the attribution resolution entry point the correlator drives.
// Satisfied by resolver.Service.
type Resolver interface {
	Resolve(ctx context.Context, target domain.EventContext) (*domain.AttributionResult, error)
}

// Report summarizes one batch run.
type Report struct {
	Processed int `json:"processed"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}

// Service runs retroactive correlation batches. Leads are processed one at a
// time with a cooperative throttle between items; the click event store is
// shared with live webhook traffic and batch gentleness beats batch latency.
type Service struct {
	leads    ports.LeadReader
	devices  ports.DeviceLookup
	resolver Resolver
	updater  ports.LeadAttributionWriter
	eventBus events.Bus
	limiter  *rate.Limiter
	backoff  time.Duration // spacing between attribution write retries
	log      *logger.Logger
}

// New creates a correlator. throttle is the minimum spacing between leads;
// zero disables throttling (tests).
func New(leads ports.LeadReader, devices ports.DeviceLookup, res Resolver, updater ports.LeadAttributionWriter, eventBus events.Bus, throttle time.Duration, log *logger.Logger) *Service {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if throttle > 0 {
		limiter = rate.NewLimiter(rate.Every(throttle), 1)
	}

	return &Service{
		leads:    leads,
		devices:  devices,
		resolver: res,
		updater:  updater,
		eventBus: eventBus,
		limiter:  limiter,
		backoff:  applyBackoff,
		log:      log,
	}
}

// RunBatch re-resolves attribution for each lead id. A failure on one lead is
// counted and logged, never aborts the batch. Returns per-item counts only;
// callers surface counts, not raw errors.
func (s *Service) RunBatch(ctx context.Context, leadIDs []uuid.UUID) (Report, error) {
	var report Report

	for _, leadID := range leadIDs {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}

		report.Processed++

		updated, err := s.correlateLead(ctx, leadID)
		if err != nil {
			report.Errors++
			s.log.Error("retroactive correlation failed for lead", "leadId", leadID, "error", err)
			continue
		}
		if updated {
			report.Updated++
		}
	}

	s.log.Info("retroactive correlation batch complete",
		"processed", report.Processed, "updated", report.Updated, "errors", report.Errors)

	return report, nil
}

func (s *Service) correlateLead(ctx context.Context, leadID uuid.UUID) (bool, error) {
	phone, err := s.leads.GetLeadPhone(ctx, leadID)
	if err != nil {
		return false, err
	}

	device, err := s.devices.GetLatestDeviceFingerprint(ctx, phone)
	if err != nil {
		return false, err
	}
	if device == nil {
		s.log.Debug("no device data recorded for lead", "leadId", leadID)
		return false, nil
	}

	result, err := s.resolver.Resolve(ctx, targetFromDevice(*device))
	if err != nil {
		return false, err
	}
	if result == nil || !result.Accepted() {
		return false, nil
	}

	if err := s.applyWithRetry(ctx, leadID, *result); err != nil {
		return false, err
	}

	s.log.AttributionEvent(leadID.String(), result.MatchType, result.ConfidenceScore, true)
	s.eventBus.Publish(ctx, events.LeadAttributed{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         leadID,
		MatchType:      result.MatchType,
		Score:          result.ConfidenceScore,
		CampaignName:   result.CampaignName,
		TrackingMethod: result.TrackingMethod(),
		Retroactive:    true,
	})

	return true, nil
}

// targetFromDevice rebuilds an event context from the lead's last recorded
// device signals. The capture moment anchors the candidate windows: the
// device row is the closest thing to "when this phone was last on our page".
func targetFromDevice(device domain.TrackingFingerprint) domain.EventContext {
	return domain.EventContext{
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		Timezone:         device.Timezone,
		ScreenResolution: device.ScreenResolution,
		Language:         device.Language,
		CtwaClickID:      device.CtwaClickID,
		OccurredAt:       device.CreatedAt,
	}
}

// applyWithRetry writes the attribution with a small bounded retry. The write
// is an idempotent overwrite, so retrying after a transient failure is safe.
func (s *Service) applyWithRetry(ctx context.Context, leadID uuid.UUID, result domain.AttributionResult) error {
	var lastErr error
	for attempt := 1; attempt <= applyAttempts; attempt++ {
		if err := s.updater.ApplyAttribution(ctx, leadID, result); err == nil {
			return nil
		} else {
			lastErr = err
			s.log.Warn("attribution write failed", "leadId", leadID, "attempt", attempt, "error", err)
		}

		if attempt < applyAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}
	}
	return lastErr
}
