// Package webhook is the WhatsApp inbound bounded context: it receives
// conversation-started notifications, finds or creates the lead for the
// sender's phone, and triggers attribution resolution.
package webhook

import (
	"context"
	"time"

	"wa_attribution_backend/internal/attribution/domain"
	"wa_attribution_backend/internal/events"
	leadrepo "wa_attribution_backend/internal/leads/repository"
	"wa_attribution_backend/platform/logger"
	"wa_attribution_backend/platform/phone"

	"github.com/google/uuid"
)

// Referral is the ad-platform handoff block attached to a message when the
// conversation started from a click-to-WhatsApp ad.
type Referral struct {
	CtwaClickID string
	SourceID    string
	SourceURL   string
	MediaURL    string
}

// InboundMessage is a normalized conversation-started notification.
type InboundMessage struct {
	From       string // sender phone, any format
	Name       string
	OccurredAt time.Time // zero means "now"
	Referral   *Referral
}

// Outcome reports what the webhook did for one message.
type Outcome struct {
	LeadID     uuid.UUID
	Phone      string
	Created    bool
	Attributed bool
	Result     *domain.AttributionResult
}

// LeadStore is the lead persistence the webhook needs.
type LeadStore interface {
	FindOrCreateByPhone(ctx context.Context, phone string) (leadrepo.Lead, bool, error)
	ApplyAttribution(ctx context.Context, leadID uuid.UUID, result domain.AttributionResult) error
	GetLatestDeviceFingerprint(ctx context.Context, phone string) (*domain.TrackingFingerprint, error)
}

// Resolver is the attribution entry point. Satisfied by resolver.Service.
type Resolver interface {
	Resolve(ctx context.Context, target domain.EventContext) (*domain.AttributionResult, error)
}

// Service processes inbound WhatsApp notifications.
type Service struct {
	leads    LeadStore
	resolver Resolver
	eventBus events.Bus
	log      *logger.Logger
}

// NewService creates a webhook service.
func NewService(leads LeadStore, resolver Resolver, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{leads: leads, resolver: resolver, eventBus: eventBus, log: log}
}

// HandleInbound finds or creates the lead and attempts attribution.
//
// Attribution failures never fail the webhook: the lead is always persisted
// and the message acknowledged, with attribution reported as absent. Losing a
// lead over a flaky store is worse than losing its attribution.
func (s *Service) HandleInbound(ctx context.Context, msg InboundMessage) (Outcome, error) {
	normalized := phone.NormalizeE164(msg.From)

	lead, created, err := s.leads.FindOrCreateByPhone(ctx, normalized)
	if err != nil {
		s.log.DatabaseError("webhook.find_or_create_lead", err)
		return Outcome{}, err
	}

	outcome := Outcome{LeadID: lead.ID, Phone: normalized, Created: created}

	target, ok, err := s.buildTarget(ctx, normalized, msg)
	if err != nil {
		// Fail closed on lookup errors: lead stays, attribution is skipped.
		s.log.Error("could not build attribution target", "leadId", lead.ID, "error", err)
		return outcome, nil
	}
	if !ok {
		s.log.Debug("no attribution signal for inbound message", "leadId", lead.ID)
		return outcome, nil
	}

	result, err := s.resolver.Resolve(ctx, target)
	if err != nil {
		s.log.Error("attribution resolution failed for inbound message", "leadId", lead.ID, "error", err)
		return outcome, nil
	}
	if result == nil {
		return outcome, nil
	}
	if !result.Accepted() {
		s.log.AttributionEvent(lead.ID.String(), result.MatchType, result.ConfidenceScore, false)
		return outcome, nil
	}

	if err := s.leads.ApplyAttribution(ctx, lead.ID, *result); err != nil {
		s.log.Error("failed to apply attribution to lead", "leadId", lead.ID, "error", err)
		return outcome, nil
	}

	outcome.Attributed = true
	outcome.Result = result

	s.log.AttributionEvent(lead.ID.String(), result.MatchType, result.ConfidenceScore, true)
	s.eventBus.Publish(ctx, events.LeadAttributed{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         lead.ID,
		MatchType:      result.MatchType,
		Score:          result.ConfidenceScore,
		CampaignName:   result.CampaignName,
		TrackingMethod: result.TrackingMethod(),
	})

	return outcome, nil
}

// buildTarget derives the resolution input. A referral click id is used
// directly; otherwise the lead's last recorded device snapshot stands in.
// ok is false when neither source yields a searchable signal.
func (s *Service) buildTarget(ctx context.Context, normalized string, msg InboundMessage) (domain.EventContext, bool, error) {
	occurredAt := msg.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	if msg.Referral != nil && msg.Referral.CtwaClickID != "" {
		clickID := msg.Referral.CtwaClickID
		return domain.EventContext{CtwaClickID: &clickID, OccurredAt: occurredAt}, true, nil
	}

	device, err := s.leads.GetLatestDeviceFingerprint(ctx, normalized)
	if err != nil {
		return domain.EventContext{}, false, err
	}
	if device == nil {
		return domain.EventContext{}, false, nil
	}

	return domain.EventContext{
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		Timezone:         device.Timezone,
		ScreenResolution: device.ScreenResolution,
		Language:         device.Language,
		CtwaClickID:      device.CtwaClickID,
		OccurredAt:       device.CreatedAt,
	}, true, nil
}
