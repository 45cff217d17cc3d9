package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys of the domain events.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentCompleted   = "payment.completed"
	EventPaymentFailed      = "payment.failed"
	EventPaymentRefunded    = "payment.refunded"
)

// EventPublisher delivers domain events after the state they describe has
// been committed. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
}

// OrderEvent is the payload of order.* events.
type OrderEvent struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	PrevStatus string          `json:"prev_status,omitempty"`
	Total      decimal.Decimal `json:"total"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// PaymentEvent is the payload of payment.* events.
type PaymentEvent struct {
	PaymentID  string          `json:"payment_id"`
	OrderID    string          `json:"order_id"`
	Provider   string          `json:"provider"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
