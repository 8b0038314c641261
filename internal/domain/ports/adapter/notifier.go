package adapter

import (
	"context"
	"time"
)

type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionRenewed   EventType = "subscription.renewed"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventSubscriptionExpired   EventType = "subscription.expired"
	EventSubscriptionSuspended EventType = "subscription.suspended"
	EventSubscriptionResumed   EventType = "subscription.resumed"
	EventPaymentDue            EventType = "subscription.payment_due"
	EventWithdrawalPaid        EventType = "withdrawal.paid"
	EventWithdrawalFailed      EventType = "withdrawal.failed"
)

// Event is delivered to a provider's webhook URL.
type Event struct {
	Type           EventType
	SubscriptionID string
	UserID         string
	ServiceID      string
	Data           any
	Timestamp      time.Time
}

// Notifier delivers events asynchronously; delivery failures are not reported
// back to the caller.
type Notifier interface {
	Notify(ctx context.Context, webhookURL string, ev Event)
}
