// Package events carries the in-process domain event plumbing. Modules
// publish facts about what happened (a visit was captured, a lead was
// attributed) and subscribers such as the timeline recorder react without the
// publisher knowing about them. Concrete event types live in internal/events;
// this package only defines the contract and the bus.
package events

import (
	"context"
	"time"
)

// Event is anything that can cross the bus. EventName doubles as the
// subscription key, so it must be stable and unique per event type.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp every event embeds.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// OccurredAt implements Event.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// Handler consumes events published under a subscribed name.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events from publishers to subscribed handlers.
type Bus interface {
	// Publish dispatches asynchronously; handler failures are logged by the
	// bus, never surfaced to the publisher.
	Publish(ctx context.Context, event Event)

	// PublishSync dispatches inline and reports the first handler error.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler under an Event.EventName value.
	Subscribe(eventName string, handler Handler)
}
