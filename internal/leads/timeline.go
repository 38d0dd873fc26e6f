// Package leads hosts lead-side services built on the leads repository.
package leads

import (
	"context"
	"fmt"

	"wa_attribution_backend/internal/events"
	"wa_attribution_backend/platform/logger"

	"github.com/google/uuid"
)

// TimelineWriter appends entries to a lead's activity timeline. Satisfied by
// the leads repository.
type TimelineWriter interface {
	AddTimelineEntry(ctx context.Context, leadID uuid.UUID, kind, description string) error
}

// TimelineRecorder subscribes to domain events and records them on the lead
// timeline so agents can see how a lead was attributed.
type TimelineRecorder struct {
	writer TimelineWriter
	log    *logger.Logger
}

// NewTimelineRecorder creates a timeline recorder.
func NewTimelineRecorder(writer TimelineWriter, log *logger.Logger) *TimelineRecorder {
	return &TimelineRecorder{writer: writer, log: log}
}

// RegisterHandlers subscribes the recorder on the bus.
func (t *TimelineRecorder) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadAttributed{}.EventName(), events.HandlerFunc(t.handleLeadAttributed))
}

func (t *TimelineRecorder) handleLeadAttributed(ctx context.Context, event events.Event) error {
	attributed, ok := event.(events.LeadAttributed)
	if !ok {
		return nil
	}

	kind := "attribution"
	if attributed.Retroactive {
		kind = "attribution_retroactive"
	}

	description := fmt.Sprintf("attributed via %s (score %d)", attributed.MatchType, attributed.Score)
	if attributed.CampaignName != "" {
		description = fmt.Sprintf("attributed to %q via %s (score %d)", attributed.CampaignName, attributed.MatchType, attributed.Score)
	}

	if err := t.writer.AddTimelineEntry(ctx, attributed.LeadID, kind, description); err != nil {
		t.log.Error("failed to record timeline entry", "leadId", attributed.LeadID, "error", err)
		return err
	}

	return nil
}
