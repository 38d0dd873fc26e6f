package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wa_attribution_backend/internal/attribution/domain"
	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeads struct {
	phones map[uuid.UUID]string
	failOn uuid.UUID
}

func (f *fakeLeads) GetLeadPhone(_ context.Context, leadID uuid.UUID) (string, error) {
	if leadID == f.failOn {
		return "", errors.New("connection refused")
	}
	if phone, ok := f.phones[leadID]; ok {
		return phone, nil
	}
	return "", errors.New("lead not found")
}

type fakeDevices struct {
	byPhone map[string]domain.TrackingFingerprint
}

func (f *fakeDevices) GetLatestDeviceFingerprint(_ context.Context, phone string) (*domain.TrackingFingerprint, error) {
	if fp, ok := f.byPhone[phone]; ok {
		return &fp, nil
	}
	return nil, nil
}

type fakeResolver struct {
	result  *domain.AttributionResult
	targets []domain.EventContext
}

func (f *fakeResolver) Resolve(_ context.Context, target domain.EventContext) (*domain.AttributionResult, error) {
	f.targets = append(f.targets, target)
	return f.result, nil
}

type fakeUpdater struct {
	applied  []uuid.UUID
	failures int // fail this many calls before succeeding
}

func (f *fakeUpdater) ApplyAttribution(_ context.Context, leadID uuid.UUID, _ domain.AttributionResult) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("write conflict")
	}
	f.applied = append(f.applied, leadID)
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(_ context.Context, event events.Event) error {
	b.Publish(context.Background(), event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func strPtr(s string) *string {
	return &s
}

func deviceFor(phone string) domain.TrackingFingerprint {
	return domain.TrackingFingerprint{
		IPAddress: strPtr("203.0.113.7"),
		UserAgent: strPtr("Mozilla/5.0 test agent"),
		CreatedAt: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func acceptedResult() *domain.AttributionResult {
	return &domain.AttributionResult{
		MatchType:       domain.MatchIPUserAgentExact,
		ConfidenceScore: 95,
	}
}

func TestRunBatch_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	ids := make([]uuid.UUID, 5)
	leads := &fakeLeads{phones: map[uuid.UUID]string{}}
	devices := &fakeDevices{byPhone: map[string]domain.TrackingFingerprint{}}
	for i := range ids {
		ids[i] = uuid.New()
		phone := "+55119999900" + string(rune('0'+i))
		leads.phones[ids[i]] = phone
		devices.byPhone[phone] = deviceFor(phone)
	}
	leads.failOn = ids[2]

	updater := &fakeUpdater{}
	svc := New(leads, devices, &fakeResolver{result: acceptedResult()}, updater, &recordingBus{}, 0, logger.New("development"))

	report, err := svc.RunBatch(context.Background(), ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 5 {
		t.Fatalf("expected 5 processed, got %d", report.Processed)
	}
	if report.Errors != 1 {
		t.Fatalf("expected 1 error, got %d", report.Errors)
	}
	if report.Updated != 4 {
		t.Fatalf("expected 4 updated, got %d", report.Updated)
	}
	if len(updater.applied) != 4 {
		t.Fatalf("expected 4 attribution writes, got %d", len(updater.applied))
	}
}

func TestRunBatch_SkipsLeadsWithoutDeviceData(t *testing.T) {
	leadID := uuid.New()
	leads := &fakeLeads{phones: map[uuid.UUID]string{leadID: "+5511999990000"}}
	devices := &fakeDevices{byPhone: map[string]domain.TrackingFingerprint{}}

	resolver := &fakeResolver{result: acceptedResult()}
	svc := New(leads, devices, resolver, &fakeUpdater{}, &recordingBus{}, 0, logger.New("development"))

	report, err := svc.RunBatch(context.Background(), []uuid.UUID{leadID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 1 || report.Updated != 0 || report.Errors != 0 {
		t.Fatalf("expected skip without error, got %+v", report)
	}
	if len(resolver.targets) != 0 {
		t.Fatal("expected no resolution attempt without device data")
	}
}

func TestRunBatch_AnchorsSearchOnDeviceCaptureTime(t *testing.T) {
	leadID := uuid.New()
	phone := "+5511999990000"
	device := deviceFor(phone)
	leads := &fakeLeads{phones: map[uuid.UUID]string{leadID: phone}}
	devices := &fakeDevices{byPhone: map[string]domain.TrackingFingerprint{phone: device}}

	resolver := &fakeResolver{result: acceptedResult()}
	svc := New(leads, devices, resolver, &fakeUpdater{}, &recordingBus{}, 0, logger.New("development"))

	if _, err := svc.RunBatch(context.Background(), []uuid.UUID{leadID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolver.targets) != 1 {
		t.Fatalf("expected 1 resolution attempt, got %d", len(resolver.targets))
	}
	if !resolver.targets[0].OccurredAt.Equal(device.CreatedAt) {
		t.Fatalf("expected search anchored on device capture time %v, got %v", device.CreatedAt, resolver.targets[0].OccurredAt)
	}
}

func TestRunBatch_UnresolvedLeadIsNotUpdated(t *testing.T) {
	leadID := uuid.New()
	phone := "+5511999990000"
	leads := &fakeLeads{phones: map[uuid.UUID]string{leadID: phone}}
	devices := &fakeDevices{byPhone: map[string]domain.TrackingFingerprint{phone: deviceFor(phone)}}

	updater := &fakeUpdater{}
	svc := New(leads, devices, &fakeResolver{result: nil}, updater, &recordingBus{}, 0, logger.New("development"))

	report, err := svc.RunBatch(context.Background(), []uuid.UUID{leadID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Updated != 0 || report.Errors != 0 {
		t.Fatalf("expected no update and no error, got %+v", report)
	}
	if len(updater.applied) != 0 {
		t.Fatal("expected no attribution write for an unresolved lead")
	}
}

func TestRunBatch_PublishesRetroactiveEvent(t *testing.T) {
	leadID := uuid.New()
	phone := "+5511999990000"
	leads := &fakeLeads{phones: map[uuid.UUID]string{leadID: phone}}
	devices := &fakeDevices{byPhone: map[string]domain.TrackingFingerprint{phone: deviceFor(phone)}}
	bus := &recordingBus{}

	svc := New(leads, devices, &fakeResolver{result: acceptedResult()}, &fakeUpdater{}, bus, 0, logger.New("development"))

	if _, err := svc.RunBatch(context.Background(), []uuid.UUID{leadID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(bus.events))
	}
	attributed, ok := bus.events[0].(events.LeadAttributed)
	if !ok {
		t.Fatalf("expected LeadAttributed event, got %T", bus.events[0])
	}
	if !attributed.Retroactive {
		t.Fatal("expected the event to be flagged retroactive")
	}
	if attributed.LeadID != leadID {
		t.Fatalf("expected lead id %v, got %v", leadID, attributed.LeadID)
	}
}

func TestRunBatch_RetriesTransientWriteFailures(t *testing.T) {
	leadID := uuid.New()
	phone := "+5511999990000"
	leads := &fakeLeads{phones: map[uuid.UUID]string{leadID: phone}}
	devices := &fakeDevices{byPhone: map[string]domain.TrackingFingerprint{phone: deviceFor(phone)}}

	updater := &fakeUpdater{failures: 1}
	svc := New(leads, devices, &fakeResolver{result: acceptedResult()}, updater, &recordingBus{}, 0, logger.New("development"))
	svc.backoff = 0

	report, err := svc.RunBatch(context.Background(), []uuid.UUID{leadID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Updated != 1 {
		t.Fatalf("expected the retried write to count as updated, got %+v", report)
	}
	if len(updater.applied) != 1 {
		t.Fatalf("expected 1 successful write after retry, got %d", len(updater.applied))
	}
}

func TestRunBatch_GivesUpAfterBoundedRetries(t *testing.T) {
	leadID := uuid.New()
	phone := "+5511999990000"
	leads := &fakeLeads{phones: map[uuid.UUID]string{leadID: phone}}
	devices := &fakeDevices{byPhone: map[string]domain.TrackingFingerprint{phone: deviceFor(phone)}}

	updater := &fakeUpdater{failures: applyAttempts}
	svc := New(leads, devices, &fakeResolver{result: acceptedResult()}, updater, &recordingBus{}, 0, logger.New("development"))
	svc.backoff = 0

	report, err := svc.RunBatch(context.Background(), []uuid.UUID{leadID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Errors != 1 || report.Updated != 0 {
		t.Fatalf("expected the exhausted retry to count as an error, got %+v", report)
	}
	if len(updater.applied) != 0 {
		t.Fatalf("expected no successful write, got %d", len(updater.applied))
	}
}
