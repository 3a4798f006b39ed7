// Package events publishes pipeline events to the message broker so other
// systems (dashboards, reporting) can follow payments and sessions.
package events

import (
	"context"
	"time"
)

// QueueName is the durable queue every event is routed to.
const QueueName = "poltrona.events"

// Event is one pipeline occurrence. Type reuses the audit action names.
type Event struct {
	Type       string                 `json:"type"`
	ChairID    string                 `json:"chairId,omitempty"`
	PaymentID  string                 `json:"paymentId,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                          { return nil }
