package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventStep     EventType = "step"
	EventCart     EventType = "cart"
	EventQuote    EventType = "quote"
	EventOrder    EventType = "order"
	EventProof    EventType = "proof"
	EventTracker  EventType = "tracker"
	EventError    EventType = "error"
	EventLeave    EventType = "leave"
	EventRedirect EventType = "redirect"
)

// Event is a one-way notification to the presentation layer.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

func NewEvent(typ EventType, sessionID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		At:        time.Now().UTC(),
		Payload:   payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes every event to all publishers and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
