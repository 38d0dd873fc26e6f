// Package resolver orchestrates attribution: deterministic click-id
// short-circuit, tiered candidate search and scoring, acceptance threshold,
// campaign name lookup.
package resolver

import (
	"context"
	"time"

	"wa_attribution_backend/internal/attribution/domain"
	"wa_attribution_backend/internal/attribution/ports"
	"wa_attribution_backend/internal/attribution/scoring"
	"wa_attribution_backend/platform/apperr"
	"wa_attribution_backend/platform/logger"
)

// Service resolves which marketing click caused a WhatsApp conversation.
//
// Resolution is synchronous, stateless and never cached: the click event
// store keeps growing, so a later call over the same event may find a better
// candidate than an earlier one.
type Service struct {
	store     ports.ClickEventStore
	campaigns ports.CampaignNameReader
	log       *logger.Logger
}

// New creates a resolver service.
func New(store ports.ClickEventStore, campaigns ports.CampaignNameReader, log *logger.Logger) *Service {
	return &Service{store: store, campaigns: campaigns, log: log}
}

// Resolve returns the accepted attribution for the event, or nil when the
// event cannot be attributed. A nil result with a nil error means there was
// not enough signal or no candidate cleared the acceptance threshold; a
// non-nil error means a backing store failed and the caller must fail closed.
func (s *Service) Resolve(ctx context.Context, target domain.EventContext) (*domain.AttributionResult, error) {
	if target.OccurredAt.IsZero() {
		target.OccurredAt = time.Now().UTC()
	}

	// The ctwa click id is an authenticated ad-platform handoff and always
	// wins over heuristics. When present, no candidate search happens at all.
	if clickID := deref(target.CtwaClickID); clickID != "" {
		return s.resolveDeterministic(ctx, clickID)
	}

	// Without a deterministic id the cascade needs at least an IP to search on.
	if deref(target.IPAddress) == "" {
		s.log.Debug("attribution skipped: no click id and no ip address")
		return nil, nil
	}

	best, err := s.runTiers(ctx, target)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, nil
	}

	score := scoring.FinalAdjust(best.Score, best.Candidate.Fingerprint)
	if score < domain.AcceptanceThreshold {
		// False attribution is worse than no attribution.
		s.log.Debug("attribution rejected below threshold", "score", score, "matchType", best.MatchType)
		return nil, nil
	}

	result := domain.FromFingerprint(best.Candidate.Fingerprint, best.MatchType, score)
	if err := s.resolveCampaignName(ctx, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (s *Service) resolveDeterministic(ctx context.Context, clickID string) (*domain.AttributionResult, error) {
	fp, err := s.store.QueryByCtwaID(ctx, clickID)
	if err != nil {
		s.log.Error("ctwa click id lookup failed", "error", err)
		return nil, apperr.Wrap(apperr.KindUnavailable, "click event store unreachable", err).WithOp("resolver.Resolve")
	}
	if fp == nil {
		// The id is authoritative; an unknown id means the click was never
		// captured, and guessing via heuristics would contradict it.
		s.log.Debug("ctwa click id has no stored fingerprint", "ctwaClickId", clickID)
		return nil, nil
	}

	result := domain.FromFingerprint(*fp, domain.MatchCtwaExact, scoring.DeterministicScore)
	if err := s.resolveCampaignName(ctx, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// runTiers walks the heuristic cascade in descending-specificity order,
// tracking the best scored candidate. A tier is only attempted while the best
// score so far is below its base score.
func (s *Service) runTiers(ctx context.Context, target domain.EventContext) (*scoring.ScoredCandidate, error) {
	var best *scoring.ScoredCandidate

	for _, tier := range scoring.Tiers() {
		bestScore := 0
		if best != nil {
			bestScore = best.Score
		}
		if bestScore >= tier.BaseScore {
			continue
		}

		pool, err := s.searchTier(ctx, tier, target, tier.WindowBefore, tier.WindowAfter)
		if err != nil {
			s.log.Error("candidate search failed", "matchType", tier.MatchType, "error", err)
			return nil, apperr.Wrap(apperr.KindUnavailable, "click event store unreachable", err).WithOp("resolver.Resolve")
		}

		sc := tier.Evaluate(target, pool, bestScore)

		// The tight first pass keeps fresh clicks preferred. When it finds
		// nothing, the tier re-searches its widened window before ceding the
		// event to the less specific tiers below.
		if sc == nil && tier.WidenBefore > 0 {
			pool, err = s.searchTier(ctx, tier, target, tier.WidenBefore, tier.WidenAfter)
			if err != nil {
				s.log.Error("candidate search failed", "matchType", tier.MatchType, "error", err)
				return nil, apperr.Wrap(apperr.KindUnavailable, "click event store unreachable", err).WithOp("resolver.Resolve")
			}
			sc = tier.Evaluate(target, pool, bestScore)
		}

		if sc != nil {
			best = sc
		}
	}

	return best, nil
}

func (s *Service) searchTier(ctx context.Context, tier scoring.Tier, target domain.EventContext, before, after time.Duration) ([]domain.TrackingFingerprint, error) {
	windowStart := target.OccurredAt.Add(-before)
	windowEnd := target.OccurredAt.Add(after)

	if tier.ExactUserAgent {
		if deref(target.UserAgent) == "" {
			return nil, nil
		}
		return s.store.QueryByIPAndUserAgent(ctx, *target.IPAddress, *target.UserAgent, windowStart, windowEnd, tier.Limit)
	}

	return s.store.QueryByIP(ctx, *target.IPAddress, windowStart, windowEnd, tier.Limit)
}

func (s *Service) resolveCampaignName(ctx context.Context, result *domain.AttributionResult) error {
	if result.CampaignID == nil {
		return nil
	}

	name, err := s.campaigns.GetCampaignName(ctx, *result.CampaignID)
	if err != nil {
		s.log.Error("campaign name lookup failed", "campaignId", *result.CampaignID, "error", err)
		return apperr.Wrap(apperr.KindUnavailable, "campaign lookup unreachable", err).WithOp("resolver.Resolve")
	}
	if name != nil {
		result.CampaignName = *name
	}

	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
