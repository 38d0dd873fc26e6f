package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"wa_attribution_backend/internal/attribution/domain"
	"wa_attribution_backend/platform/apperr"
	"wa_attribution_backend/platform/logger"

	"github.com/google/uuid"
)

var eventTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	byCtwa map[string]domain.TrackingFingerprint
	pool   []domain.TrackingFingerprint
	err    error
	// enforceWindows makes the fake honor the windowStart/windowEnd query
	// arguments the way the Postgres repository does.
	enforceWindows bool
	ctwaCalls      int
	ipUACalls      int
	ipOnlyCalls    int
}

func (f *fakeStore) Insert(context.Context, domain.TrackingFingerprint) error {
	return nil
}

func (f *fakeStore) QueryByCtwaID(_ context.Context, ctwaID string) (*domain.TrackingFingerprint, error) {
	f.ctwaCalls++
	if f.err != nil {
		return nil, f.err
	}
	if fp, ok := f.byCtwa[ctwaID]; ok {
		return &fp, nil
	}
	return nil, nil
}

func (f *fakeStore) QueryByIPAndUserAgent(_ context.Context, ip, ua string, windowStart, windowEnd time.Time, limit int) ([]domain.TrackingFingerprint, error) {
	f.ipUACalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.filter(windowStart, windowEnd, limit, func(fp domain.TrackingFingerprint) bool {
		return fp.IPAddress != nil && *fp.IPAddress == ip && fp.UserAgent != nil && *fp.UserAgent == ua
	}), nil
}

func (f *fakeStore) QueryByIP(_ context.Context, ip string, windowStart, windowEnd time.Time, limit int) ([]domain.TrackingFingerprint, error) {
	f.ipOnlyCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.filter(windowStart, windowEnd, limit, func(fp domain.TrackingFingerprint) bool {
		return fp.IPAddress != nil && *fp.IPAddress == ip
	}), nil
}

func (f *fakeStore) filter(windowStart, windowEnd time.Time, limit int, keep func(domain.TrackingFingerprint) bool) []domain.TrackingFingerprint {
	out := make([]domain.TrackingFingerprint, 0)
	for _, fp := range f.pool {
		if f.enforceWindows && (fp.CreatedAt.Before(windowStart) || fp.CreatedAt.After(windowEnd)) {
			continue
		}
		if keep(fp) {
			out = append(out, fp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

type fakeCampaigns struct {
	names map[uuid.UUID]string
	err   error
}

func (f *fakeCampaigns) GetCampaignName(_ context.Context, id uuid.UUID) (*string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if name, ok := f.names[id]; ok {
		return &name, nil
	}
	return nil, nil
}

func strPtr(s string) *string {
	return &s
}

func visitAt(age time.Duration) domain.TrackingFingerprint {
	return domain.TrackingFingerprint{
		SessionID:        "sess-1",
		IPAddress:        strPtr("203.0.113.7"),
		UserAgent:        strPtr("Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 Version/17.4 Safari/604.1"),
		ScreenResolution: strPtr("390x844"),
		Timezone:         strPtr("America/Sao_Paulo"),
		Language:         strPtr("pt-BR"),
		CreatedAt:        eventTime.Add(-age),
	}
}

func targetFor(fp domain.TrackingFingerprint) domain.EventContext {
	return domain.EventContext{
		IPAddress:        fp.IPAddress,
		UserAgent:        fp.UserAgent,
		ScreenResolution: fp.ScreenResolution,
		Timezone:         fp.Timezone,
		Language:         fp.Language,
		OccurredAt:       eventTime,
	}
}

func newService(store *fakeStore, campaigns *fakeCampaigns) *Service {
	if campaigns == nil {
		campaigns = &fakeCampaigns{}
	}
	return New(store, campaigns, logger.New("development"))
}

func TestResolve_CtwaClickIDWinsOverHeuristics(t *testing.T) {
	ctwaVisit := visitAt(26 * time.Hour)
	ctwaVisit.CtwaClickID = strPtr("ctwa-abc")
	ctwaVisit.UTMSource = strPtr("facebook")

	// A perfect heuristic candidate is also available; it must be ignored.
	store := &fakeStore{
		byCtwa: map[string]domain.TrackingFingerprint{"ctwa-abc": ctwaVisit},
		pool:   []domain.TrackingFingerprint{visitAt(2 * time.Minute)},
	}

	target := targetFor(visitAt(0))
	target.CtwaClickID = strPtr("ctwa-abc")

	result, err := newService(store, nil).Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected an attribution result")
	}
	if result.MatchType != domain.MatchCtwaExact {
		t.Fatalf("expected match type %q, got %q", domain.MatchCtwaExact, result.MatchType)
	}
	if result.ConfidenceScore != 100 {
		t.Fatalf("expected score 100, got %d", result.ConfidenceScore)
	}
	if store.ipUACalls != 0 || store.ipOnlyCalls != 0 {
		t.Fatalf("expected no candidate search after deterministic match, got %d ip+ua and %d ip calls", store.ipUACalls, store.ipOnlyCalls)
	}
}

func TestResolve_UnknownCtwaClickID_NoFallback(t *testing.T) {
	// The id is authoritative: when it has no stored fingerprint the event
	// stays unattributed even though a heuristic candidate exists.
	store := &fakeStore{pool: []domain.TrackingFingerprint{visitAt(2 * time.Minute)}}

	target := targetFor(visitAt(0))
	target.CtwaClickID = strPtr("ctwa-never-seen")

	result, err := newService(store, nil).Resolve(context.Background(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no attribution, got %+v", result)
	}
	if store.ipUACalls != 0 || store.ipOnlyCalls != 0 {
		t.Fatal("expected no heuristic search for an unknown click id")
	}
}

func TestResolve_NoIPAndNoClickID_NoAttribution(t *testing.T) {
	store := &fakeStore{pool: []domain.TrackingFingerprint{visitAt(2 * time.Minute)}}

	result, err := newService(store, nil).Resolve(context.Background(), domain.EventContext{OccurredAt: eventTime})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no attribution without searchable signal, got %+v", result)
	}
}

func TestResolve_ExactMatchShortCircuitsBroaderTiers(t *testing.T) {
	store := &fakeStore{pool: []domain.TrackingFingerprint{visitAt(5 * time.Minute)}}

	result, err := newService(store, nil).Resolve(context.Background(), targetFor(visitAt(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected an attribution result")
	}
	if result.MatchType != domain.MatchIPUserAgentExact {
		t.Fatalf("expected tier 1 match, got %q", result.MatchType)
	}
	if result.ConfidenceScore != 100 {
		t.Fatalf("expected score 100, got %d", result.ConfidenceScore)
	}
	if store.ipOnlyCalls != 0 {
		t.Fatalf("expected broader tiers to be skipped, got %d ip-only searches", store.ipOnlyCalls)
	}
}

func TestResolve_ExactMatchBeyondPrimaryWindowWidens(t *testing.T) {
	// An identical ip+ua fingerprint 40 minutes old lies outside the tight
	// first-pass window. The exact tier must widen and claim it rather than
	// let the fingerprint fall through to the ip-only fallback.
	fp := visitAt(40 * time.Minute)
	fp.UTMSource = strPtr("facebook")
	fp.UTMMedium = strPtr("cpc")
	fp.UTMCampaign = strPtr("winter-sale")
	store := &fakeStore{pool: []domain.TrackingFingerprint{fp}, enforceWindows: true}

	result, err := newService(store, nil).Resolve(context.Background(), targetFor(visitAt(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected an attribution result")
	}
	if result.MatchType != domain.MatchIPUserAgentExact {
		t.Fatalf("expected tier 1 match after widening, got %q", result.MatchType)
	}
	// 95 base, no recency bonus at 40 minutes, +2 for the full UTM set.
	if result.ConfidenceScore != 97 {
		t.Fatalf("expected score 97, got %d", result.ConfidenceScore)
	}
	if store.ipUACalls != 2 {
		t.Fatalf("expected a second, widened ip+ua search, got %d calls", store.ipUACalls)
	}
	if store.ipOnlyCalls != 0 {
		t.Fatalf("expected broader tiers to be skipped, got %d ip-only searches", store.ipOnlyCalls)
	}
}

func TestResolve_FreshExactMatchSkipsWidenedPass(t *testing.T) {
	store := &fakeStore{pool: []domain.TrackingFingerprint{visitAt(5 * time.Minute)}, enforceWindows: true}

	result, err := newService(store, nil).Resolve(context.Background(), targetFor(visitAt(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || result.MatchType != domain.MatchIPUserAgentExact {
		t.Fatalf("expected tier 1 match, got %+v", result)
	}
	if store.ipUACalls != 1 {
		t.Fatalf("expected no widened search after a primary-window match, got %d calls", store.ipUACalls)
	}
}

func TestResolve_IPOnlyFallbackAtThreshold(t *testing.T) {
	// Candidate shares only the IP and is hours old: bare tier 6 base score,
	// which sits exactly on the acceptance threshold and must be accepted.
	fp := visitAt(3 * time.Hour)
	fp.UserAgent = strPtr("Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/124.0")
	fp.Timezone = strPtr("Europe/Lisbon")
	fp.ScreenResolution = nil
	fp.Language = nil
	store := &fakeStore{pool: []domain.TrackingFingerprint{fp}}

	result, err := newService(store, nil).Resolve(context.Background(), targetFor(visitAt(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected an attribution result at the threshold")
	}
	if result.MatchType != domain.MatchIPOnlySmart {
		t.Fatalf("expected ip-only match, got %q", result.MatchType)
	}
	if result.ConfidenceScore != domain.AcceptanceThreshold {
		t.Fatalf("expected score %d, got %d", domain.AcceptanceThreshold, result.ConfidenceScore)
	}
}

func TestResolve_NoMatchingCandidates_NoAttribution(t *testing.T) {
	other := visitAt(5 * time.Minute)
	other.IPAddress = strPtr("198.51.100.9")
	store := &fakeStore{pool: []domain.TrackingFingerprint{other}}

	result, err := newService(store, nil).Resolve(context.Background(), targetFor(visitAt(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no attribution, got %+v", result)
	}
}

func TestResolve_StoreErrorFailsClosed(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}

	result, err := newService(store, nil).Resolve(context.Background(), targetFor(visitAt(0)))
	if err == nil {
		t.Fatal("expected an error when the store is unreachable")
	}
	if result != nil {
		t.Fatalf("expected no result alongside the error, got %+v", result)
	}
	if apperr.GetKind(err) != apperr.KindUnavailable {
		t.Fatalf("expected kind unavailable, got %v", apperr.GetKind(err))
	}
}

func TestResolve_ResolvesCampaignName(t *testing.T) {
	campaignID := uuid.New()
	fp := visitAt(5 * time.Minute)
	fp.CampaignID = &campaignID
	store := &fakeStore{pool: []domain.TrackingFingerprint{fp}}
	campaigns := &fakeCampaigns{names: map[uuid.UUID]string{campaignID: "Winter Sale"}}

	result, err := newService(store, campaigns).Resolve(context.Background(), targetFor(visitAt(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected an attribution result")
	}
	if result.CampaignName != "Winter Sale" {
		t.Fatalf("expected campaign name resolved, got %q", result.CampaignName)
	}
}

func TestResolve_CampaignLookupErrorFailsClosed(t *testing.T) {
	campaignID := uuid.New()
	fp := visitAt(5 * time.Minute)
	fp.CampaignID = &campaignID
	store := &fakeStore{pool: []domain.TrackingFingerprint{fp}}
	campaigns := &fakeCampaigns{err: errors.New("connection refused")}

	result, err := newService(store, campaigns).Resolve(context.Background(), targetFor(visitAt(0)))
	if err == nil {
		t.Fatal("expected an error when campaign lookup fails")
	}
	if result != nil {
		t.Fatalf("expected no result alongside the error, got %+v", result)
	}
}
