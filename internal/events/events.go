package events

import "github.com/google/uuid"

// VisitCaptured is published when a landing-page visit fingerprint is stored.
type VisitCaptured struct {
	BaseEvent
	SessionID  string
	CampaignID *uuid.UUID
	HasCtwaID  bool
}

// EventName returns the unique event identifier.
func (VisitCaptured) EventName() string { return "tracking.visit_captured" }

// LeadAttributed is published when an attribution result is applied to a lead.
type LeadAttributed struct {
	BaseEvent
	LeadID         uuid.UUID
	MatchType      string
	Score          int
	CampaignName   string
	TrackingMethod string
	Retroactive    bool
}

// EventName returns the unique event identifier.
func (LeadAttributed) EventName() string { return "attribution.lead_attributed" }
