package ports

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventPaymentConfirmed    EventType = "payment_confirmed"
	EventCommissionForwarded EventType = "commission_forwarded"
	EventCommissionManual    EventType = "commission_manual"
	EventOrderExpired        EventType = "order_expired"
)

// Event is emitted by the core on every order state transition. The
// messaging collaborator consumes events and formats human-facing messages,
// the core never does.
type Event struct {
	Type       EventType       `json:"type"`
	OrderId    string          `json:"order_id"`
	Address    string          `json:"address"`
	Amount     decimal.Decimal `json:"amount"`
	Txid       string          `json:"txid,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PubSubService is the notification sink exposed to the out-of-scope
// messaging layer.
type PubSubService interface {
	// Publish delivers the event to every subscriber. It never blocks on a
	// slow consumer.
	Publish(event Event)
	// Subscribe returns a channel receiving the given event types, or all
	// of them when none is specified.
	Subscribe(types ...EventType) <-chan Event
	// Close tears down all subscriptions.
	Close()
}
