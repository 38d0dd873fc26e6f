package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Match type tags identify which rule tier produced an attribution.
const (
	MatchCtwaExact        = "ctwa_exact"
	MatchIPUserAgentExact = "ip_user_agent_exact"
	MatchIPUserAgentPart  = "ip_user_agent_partial"
	MatchIPTimezoneScreen = "ip_timezone_screen"
	MatchIPTimezone       = "ip_timezone"
	MatchIPLangBrowser    = "ip_language_browser"
	MatchIPOnlySmart      = "ip_only_smart"
)

// AcceptanceThreshold is the minimum confidence score for an attribution to be
// applied anywhere in the system. Below it the resolver reports no attribution
// rather than a low-confidence guess. Hand-tuned; do not adjust casually.
const AcceptanceThreshold = 60

// AttributionResult is the outcome of one successful resolution. Computed
// fresh on every call and never cached: new fingerprints keep arriving, so a
// later resolution may supersede an earlier, weaker one.
type AttributionResult struct {
	CampaignID      *uuid.UUID
	CampaignName    string
	UTMSource       *string
	UTMMedium       *string
	UTMCampaign     *string
	UTMContent      *string
	UTMTerm         *string
	SourceID        *string
	MediaURL        *string
	MatchType       string
	ConfidenceScore int
}

// Accepted reports whether the result clears the acceptance threshold.
func (r AttributionResult) Accepted() bool {
	return r.ConfidenceScore >= AcceptanceThreshold
}

// TrackingMethod encodes match type and score into the denormalized string
// stored on the lead, e.g. "manual_ip_timezone_75". The deterministic tier is
// not a heuristic guess and carries no manual_ prefix.
func (r AttributionResult) TrackingMethod() string {
	if r.MatchType == MatchCtwaExact {
		return fmt.Sprintf("%s_%d", r.MatchType, r.ConfidenceScore)
	}
	return fmt.Sprintf("manual_%s_%d", r.MatchType, r.ConfidenceScore)
}

// FromFingerprint copies the winning candidate's campaign and UTM fields into
// a result with the given match tag and score.
func FromFingerprint(fp TrackingFingerprint, matchType string, score int) AttributionResult {
	return AttributionResult{
		CampaignID:      fp.CampaignID,
		UTMSource:       fp.UTMSource,
		UTMMedium:       fp.UTMMedium,
		UTMCampaign:     fp.UTMCampaign,
		UTMContent:      fp.UTMContent,
		UTMTerm:         fp.UTMTerm,
		SourceID:        fp.SourceID,
		MediaURL:        fp.MediaURL,
		MatchType:       matchType,
		ConfidenceScore: score,
	}
}
