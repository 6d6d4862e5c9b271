// Package events publishes ledger events after their unit of work has
// committed. Delivery is best effort: a failed publish never undoes the
// ledger change that produced it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeTradeExecuted  = "trade.executed"
	TypeOfferPlaced    = "offer.placed"
	TypeOfferCancelled = "offer.cancelled"
	TypeOrderPlaced    = "order.placed"
	TypeOrderCompleted = "order.completed"
	TypeOrderFailed    = "order.failed"
)

// Event is the envelope written to the event stream.
type Event struct {
	EventID   string `json:"event_id"`
	Type      string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// New creates an Event stamped with at, truncated to the second.
func New(eventType string, at time.Time, data any) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Timestamp: at.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      data,
	}
}

// Publisher delivers events. key selects the partition, so events with
// the same key keep their relative order.
type Publisher interface {
	Publish(ctx context.Context, key string, event Event) error
	Close() error
}

// NopPublisher discards every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }

func (NopPublisher) Close() error { return nil }
