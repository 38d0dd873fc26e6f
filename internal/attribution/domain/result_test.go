package domain

import (
	"testing"
	"time"
)

func strPtr(s string) *string {
	return &s
}

func TestTrackingMethod_HeuristicCarriesManualPrefix(t *testing.T) {
	result := AttributionResult{MatchType: MatchIPTimezone, ConfidenceScore: 75}
	if got := result.TrackingMethod(); got != "manual_ip_timezone_75" {
		t.Fatalf("expected manual_ip_timezone_75, got %q", got)
	}
}

func TestTrackingMethod_DeterministicHasNoPrefix(t *testing.T) {
	result := AttributionResult{MatchType: MatchCtwaExact, ConfidenceScore: 100}
	if got := result.TrackingMethod(); got != "ctwa_exact_100" {
		t.Fatalf("expected ctwa_exact_100, got %q", got)
	}
}

func TestAccepted(t *testing.T) {
	if (AttributionResult{ConfidenceScore: AcceptanceThreshold - 1}).Accepted() {
		t.Fatal("expected a score below the threshold to be rejected")
	}
	if !(AttributionResult{ConfidenceScore: AcceptanceThreshold}).Accepted() {
		t.Fatal("expected the threshold score to be accepted")
	}
}

func TestHasFullUTMSet(t *testing.T) {
	fp := TrackingFingerprint{
		UTMSource:   strPtr("facebook"),
		UTMMedium:   strPtr("cpc"),
		UTMCampaign: strPtr("winter"),
	}
	if !fp.HasFullUTMSet() {
		t.Fatal("expected full utm set")
	}

	fp.UTMCampaign = nil
	if fp.HasFullUTMSet() {
		t.Fatal("expected incomplete utm set")
	}

	fp.UTMCampaign = strPtr("")
	if fp.HasFullUTMSet() {
		t.Fatal("expected empty campaign to count as missing")
	}
}

func TestNewCandidate_AgeFromEventTime(t *testing.T) {
	eventTime := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	fp := TrackingFingerprint{CreatedAt: eventTime.Add(-30 * time.Minute)}

	cand := NewCandidate(fp, eventTime)
	if cand.AgeMinutes != 30 {
		t.Fatalf("expected age 30 minutes, got %v", cand.AgeMinutes)
	}

	// A fingerprint captured after the event has a negative age.
	future := TrackingFingerprint{CreatedAt: eventTime.Add(10 * time.Minute)}
	if got := NewCandidate(future, eventTime).AgeMinutes; got != -10 {
		t.Fatalf("expected age -10 minutes, got %v", got)
	}
}

func TestFromFingerprint_CopiesAttributionFields(t *testing.T) {
	fp := TrackingFingerprint{
		UTMSource: strPtr("facebook"),
		UTMMedium: strPtr("cpc"),
		SourceID:  strPtr("ad-9"),
		MediaURL:  strPtr("https://example.com/creative.jpg"),
	}

	result := FromFingerprint(fp, MatchIPOnlySmart, 65)
	if result.MatchType != MatchIPOnlySmart || result.ConfidenceScore != 65 {
		t.Fatalf("unexpected result metadata: %+v", result)
	}
	if result.UTMSource == nil || *result.UTMSource != "facebook" {
		t.Fatal("expected utm source copied")
	}
	if result.SourceID == nil || *result.SourceID != "ad-9" {
		t.Fatal("expected source id copied")
	}
}
