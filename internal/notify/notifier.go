package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderEvent is published on order lifecycle transitions so downstream
// consumers (fulfilment, customer messaging) can react. Publishing is
// best-effort: the order store is the source of truth and the webhook path
// never fails because a notification could not be sent.
type OrderEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	OrderID   string          `json:"order_id"`
	Status    string          `json:"status"`
	Email     string          `json:"email,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const (
	EventOrderPaid          = "order.paid"
	EventOrderFailed        = "order.failed"
	EventOrderStatusChanged = "order.status_changed"
)

type Notifier interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

// Noop discards events; used when no broker is configured and in tests.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event OrderEvent) error { return nil }
func (Noop) Close() error                                        { return nil }
