// Package scoring implements the tiered confidence scoring cascade that
// matches a WhatsApp event context against stored click fingerprints.
//
// Tiers are ordered by descending specificity. The resolver walks them in
// order and only attempts a tier while the best score so far is below that
// tier's base score, so a strong early match short-circuits the broader,
// cheaper-to-satisfy tiers.
package scoring

import (
	"strings"
	"time"

	"wa_attribution_backend/internal/attribution/domain"
)

// Base scores and bonuses are hand-tuned production constants. They were not
// derived from a model; treat them as configuration, not as values to improve.
const (
	// DeterministicScore is assigned to ctwa click-id matches, which bypass
	// the heuristic cascade entirely.
	DeterministicScore = 100

	tier1Base = 95 // ip + user agent exact
	tier2Base = 85 // ip + user agent token overlap
	tier3Base = 80 // ip + timezone + screen
	tier4Base = 75 // ip + timezone
	tier5Base = 70 // ip + language + browser family
	tier6Base = 60 // ip only, smart scan

	recencyBonus     = 5
	paidTrafficBonus = 5
	fullUTMBonus     = 2

	uaOverlapTokens = 4
)

// Candidate windows widen as the exact tiers are exhausted.
const (
	primaryWindow   = 30 * time.Minute
	secondaryWindow = 2 * time.Hour
	ipOnlyLookback  = 48 * time.Hour
)

// paidTrafficKeywords mark a UTM medium or source as paid acquisition.
var paidTrafficKeywords = []string{"cpc", "paid", "facebook", "google"}

// ScoredCandidate is a candidate fingerprint with its computed confidence.
type ScoredCandidate struct {
	Candidate domain.Candidate
	Score     int
	MatchType string
}

// Tier is one predicate + score rule in the matching cascade.
type Tier struct {
	// MatchType tags results produced by this tier.
	MatchType string
	// BaseScore is the score a bare predicate match earns.
	BaseScore int
	// WindowBefore/WindowAfter bound the candidate search around the event.
	WindowBefore time.Duration
	WindowAfter  time.Duration
	// WidenBefore/WidenAfter, when set, give the tier a second, wider search
	// once the primary window turns up no improving candidate. The exact
	// tiers use this so a strong match outside the tight window still beats
	// the weaker tiers below it.
	WidenBefore time.Duration
	WidenAfter  time.Duration
	// Limit caps how many candidates the tier will score.
	Limit int
	// ExactUserAgent hints that candidate search can use the compound
	// ip + user agent query instead of the ip-only one.
	ExactUserAgent bool

	match func(target domain.EventContext, fp domain.TrackingFingerprint) bool
	score func(target domain.EventContext, c domain.Candidate) int
}

// Evaluate scans the candidate pool (newest first) and returns the first
// candidate whose score exceeds best, or nil. Newest-first input makes the
// newest fingerprint win ties within a tier; the first-improving scan is kept
// deliberately, matching production attribution behavior, even though a later
// candidate in the pool could in theory score higher.
func (t Tier) Evaluate(target domain.EventContext, pool []domain.TrackingFingerprint, best int) *ScoredCandidate {
	scanned := 0
	for _, fp := range pool {
		if scanned >= t.Limit {
			break
		}
		scanned++

		if !t.match(target, fp) {
			continue
		}

		cand := domain.NewCandidate(fp, target.OccurredAt)
		score := t.score(target, cand)
		if score > best {
			return &ScoredCandidate{Candidate: cand, Score: score, MatchType: t.MatchType}
		}
	}
	return nil
}

// Tiers returns the heuristic cascade in strict descending-specificity order.
func Tiers() []Tier {
	return []Tier{
		{
			MatchType:      domain.MatchIPUserAgentExact,
			BaseScore:      tier1Base,
			WindowBefore:   primaryWindow,
			WindowAfter:    primaryWindow,
			WidenBefore:    secondaryWindow,
			WidenAfter:     secondaryWindow,
			Limit:          3,
			ExactUserAgent: true,
			match: func(target domain.EventContext, fp domain.TrackingFingerprint) bool {
				return strEqual(target.IPAddress, fp.IPAddress) && strEqual(target.UserAgent, fp.UserAgent)
			},
			score: recencyScorer(tier1Base, 15),
		},
		{
			MatchType:    domain.MatchIPUserAgentPart,
			BaseScore:    tier2Base,
			WindowBefore: primaryWindow,
			WindowAfter:  primaryWindow,
			WidenBefore:  secondaryWindow,
			WidenAfter:   secondaryWindow,
			Limit:        5,
			match: func(target domain.EventContext, fp domain.TrackingFingerprint) bool {
				return strEqual(target.IPAddress, fp.IPAddress) &&
					userAgentTokensOverlap(target.UserAgent, fp.UserAgent)
			},
			score: recencyScorer(tier2Base, 20),
		},
		{
			MatchType:    domain.MatchIPTimezoneScreen,
			BaseScore:    tier3Base,
			WindowBefore: secondaryWindow,
			WindowAfter:  secondaryWindow,
			Limit:        8,
			match: func(target domain.EventContext, fp domain.TrackingFingerprint) bool {
				return strEqual(target.IPAddress, fp.IPAddress) &&
					strEqual(target.Timezone, fp.Timezone) &&
					strEqual(target.ScreenResolution, fp.ScreenResolution)
			},
			score: recencyScorer(tier3Base, 30),
		},
		{
			MatchType:    domain.MatchIPTimezone,
			BaseScore:    tier4Base,
			WindowBefore: secondaryWindow,
			WindowAfter:  secondaryWindow,
			Limit:        10,
			match: func(target domain.EventContext, fp domain.TrackingFingerprint) bool {
				return strEqual(target.IPAddress, fp.IPAddress) &&
					strEqual(target.Timezone, fp.Timezone)
			},
			score: recencyScorer(tier4Base, 45),
		},
		{
			MatchType:    domain.MatchIPLangBrowser,
			BaseScore:    tier5Base,
			WindowBefore: secondaryWindow,
			WindowAfter:  secondaryWindow,
			Limit:        10,
			match: func(target domain.EventContext, fp domain.TrackingFingerprint) bool {
				return strEqual(target.IPAddress, fp.IPAddress) &&
					strEqual(target.Language, fp.Language) &&
					sameBrowserFamily(target.UserAgent, fp.UserAgent)
			},
			score: recencyScorer(tier5Base, 60),
		},
		{
			MatchType:    domain.MatchIPOnlySmart,
			BaseScore:    tier6Base,
			WindowBefore: ipOnlyLookback,
			WindowAfter:  0,
			Limit:        15,
			match: func(target domain.EventContext, fp domain.TrackingFingerprint) bool {
				return strEqual(target.IPAddress, fp.IPAddress)
			},
			score: scoreIPOnly,
		},
	}
}

// FinalAdjust rewards complete attribution data: a winning candidate carrying
// utm source, medium and campaign earns two extra points, capped at 100.
func FinalAdjust(score int, fp domain.TrackingFingerprint) int {
	if fp.HasFullUTMSet() {
		score += fullUTMBonus
	}
	return Clamp(score)
}

// Clamp bounds a score to the 0-100 range.
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// recencyScorer builds the scorer used by tiers 1-5: base score plus a flat
// bonus when the fingerprint is younger than maxAgeMinutes.
func recencyScorer(base int, maxAgeMinutes float64) func(domain.EventContext, domain.Candidate) int {
	return func(_ domain.EventContext, c domain.Candidate) int {
		score := base
		if c.AgeMinutes < maxAgeMinutes {
			score += recencyBonus
		}
		return Clamp(score)
	}
}

// scoreIPOnly scores the tier-6 fallback: paid-traffic UTM markers and
// recency both nudge the base score upward.
func scoreIPOnly(_ domain.EventContext, c domain.Candidate) int {
	score := tier6Base

	if isPaidTraffic(c.Fingerprint) {
		score += paidTrafficBonus
	}
	if c.AgeMinutes < 90 {
		score += 3
	}
	if c.AgeMinutes < 60 {
		score += 2
	}

	return Clamp(score)
}

func isPaidTraffic(fp domain.TrackingFingerprint) bool {
	for _, field := range []*string{fp.UTMMedium, fp.UTMSource} {
		if field == nil {
			continue
		}
		value := strings.ToLower(*field)
		for _, kw := range paidTrafficKeywords {
			if strings.Contains(value, kw) {
				return true
			}
		}
	}
	return false
}

// strEqual matches only when both sides are known. A nil on either side is
// "field unknown" and never matches, not even another nil.
func strEqual(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// userAgentTokensOverlap compares the leading tokens of two user agent
// strings. Browsers bump trailing version components far more often than the
// platform prefix, so a four-token prefix match still identifies the device.
func userAgentTokensOverlap(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	ta := strings.Fields(*a)
	tb := strings.Fields(*b)
	if len(ta) < uaOverlapTokens || len(tb) < uaOverlapTokens {
		return len(ta) > 0 && len(tb) > 0 && strings.Join(ta, " ") == strings.Join(tb, " ")
	}
	for i := 0; i < uaOverlapTokens; i++ {
		if ta[i] != tb[i] {
			return false
		}
	}
	return true
}

// browserFamilies in detection order: more specific products embed the
// generic ones in their user agent string.
var browserFamilies = []struct {
	family string
	marker string
}{
	{"edge", "Edg"},
	{"opera", "OPR"},
	{"opera", "Opera"},
	{"samsung", "SamsungBrowser"},
	{"firefox", "Firefox"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
}

func browserFamily(ua string) string {
	for _, b := range browserFamilies {
		if strings.Contains(ua, b.marker) {
			return b.family
		}
	}
	return ""
}

func sameBrowserFamily(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	fa := browserFamily(*a)
	return fa != "" && fa == browserFamily(*b)
}
