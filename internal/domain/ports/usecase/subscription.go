package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain/model"
)

// RenewRequest carries a settled payment into the lifecycle manager.
type RenewRequest struct {
	SubscriptionID string
	Amount         decimal.Decimal
	TxHash         string
	Payer          string
	Network        string
	// PendingTransactionID, when set, is completed in place instead of
	// inserting a new payment transaction.
	PendingTransactionID string
}

// SubscriptionManager is the slice of the lifecycle manager used by the
// payment gate and background workers.
type SubscriptionManager interface {
	RenewSubscriptionAfterPayment(ctx context.Context, req RenewRequest) (*model.Subscription, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
	GetSubscriptionsDueForBilling(ctx context.Context, now time.Time) ([]*model.Subscription, error)
	GetExpiringSubscriptions(ctx context.Context, daysAhead int) ([]*model.Subscription, error)
}

// PayoutReconciler resolves withdrawals left pending by an interrupted payout.
type PayoutReconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}
