// Package domain defines the core attribution types: tracking fingerprints
// captured at click time, the event context of an inbound WhatsApp message,
// and the attribution result linking the two.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TrackingFingerprint is the bundle of browser and network signals captured
// when a visitor lands on a campaign page. Immutable once written; multiple
// fingerprints may share an IP address.
//
// Unknown fields are nil, never the empty string, so scoring can distinguish
// "field unknown" from "field present but empty".
type TrackingFingerprint struct {
	SessionID        string
	IPAddress        *string
	UserAgent        *string
	ScreenResolution *string
	Timezone         *string
	Language         *string
	CampaignID       *uuid.UUID
	UTMSource        *string
	UTMMedium        *string
	UTMCampaign      *string
	UTMContent       *string
	UTMTerm          *string
	CtwaClickID      *string
	SourceID         *string
	MediaURL         *string
	CreatedAt        time.Time
}

// HasFullUTMSet reports whether source, medium and campaign are all populated.
func (f TrackingFingerprint) HasFullUTMSet() bool {
	return deref(f.UTMSource) != "" && deref(f.UTMMedium) != "" && deref(f.UTMCampaign) != ""
}

// EventContext carries the signals available when a WhatsApp conversation
// starts. It is the input to attribution resolution.
type EventContext struct {
	IPAddress        *string
	UserAgent        *string
	Timezone         *string
	ScreenResolution *string
	Language         *string
	CtwaClickID      *string
	OccurredAt       time.Time
}

// Candidate pairs a stored fingerprint with its age relative to the event
// being attributed. Ephemeral; built fresh on every resolution attempt.
type Candidate struct {
	Fingerprint TrackingFingerprint
	AgeMinutes  float64
}

// NewCandidate computes the candidate's age from the event time.
func NewCandidate(fp TrackingFingerprint, eventTime time.Time) Candidate {
	return Candidate{
		Fingerprint: fp,
		AgeMinutes:  eventTime.Sub(fp.CreatedAt).Minutes(),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
