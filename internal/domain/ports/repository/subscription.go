package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain/model"
)

// AdvanceBilling describes a compare-and-set move of a subscription's billing
// window. It applies only while the stored version equals ExpectedVersion.
type AdvanceBilling struct {
	SubscriptionID  string
	ExpectedVersion int64
	NewEndDate      time.Time
	Amount          decimal.Decimal
	Entry           model.PaymentHistoryEntry
}

// SubscriptionRepository is the port for subscriptions.
type SubscriptionRepository interface {
	// Create fails with domain.ErrDuplicateSubscription when an open
	// subscription already exists for the (user, service) pair.
	Create(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindOpenByUserAndService(ctx context.Context, tx Tx, userID, serviceID string) (*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string, statuses []model.SubscriptionStatus) ([]*model.Subscription, error)
	ListByService(ctx context.Context, tx Tx, serviceID string) ([]*model.Subscription, error)
	ListByStatuses(ctx context.Context, tx Tx, statuses []model.SubscriptionStatus) ([]*model.Subscription, error)
	ListDueForBilling(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error)
	ListExpiring(ctx context.Context, tx Tx, from, until time.Time) ([]*model.Subscription, error)
	CountByServiceAndStatuses(ctx context.Context, tx Tx, serviceID string, statuses []model.SubscriptionStatus) (int, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)

	// AdvanceBilling returns domain.ErrConcurrentUpdate when the version check fails.
	AdvanceBilling(ctx context.Context, tx Tx, p AdvanceBilling) error
	// UpdateStatus moves the subscription to `to` only if its current status is in `from`.
	UpdateStatus(ctx context.Context, tx Tx, id string, from []model.SubscriptionStatus, to model.SubscriptionStatus) (bool, error)
	// Cancel applies only to non-terminal subscriptions.
	Cancel(ctx context.Context, tx Tx, id, reason string, at time.Time) (bool, error)
	// ExpireOverdue marks active and trial subscriptions whose end date is before now as expired.
	ExpireOverdue(ctx context.Context, tx Tx, now time.Time) ([]*model.Subscription, error)
}
