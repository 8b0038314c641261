package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain/model"
)

type PaymentTransactionRepository interface {
	// Create fails with domain.ErrDuplicateTransaction on a reused transaction hash.
	Create(ctx context.Context, tx Tx, p *model.PaymentTransaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentTransaction, error)
	FindByTxHash(ctx context.Context, tx Tx, txHash string) (*model.PaymentTransaction, error)
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string) ([]*model.PaymentTransaction, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.PaymentTransaction, error)

	// SetTxHash records the settlement hash on a pending row so an interrupted
	// renewal can be completed later. Fails with domain.ErrDuplicateTransaction
	// when another row already carries the hash.
	SetTxHash(ctx context.Context, tx Tx, id, txHash string) error
	// Complete flips a pending row to completed.
	Complete(ctx context.Context, tx Tx, id, txHash string, period model.BillingPeriod, processedAt time.Time) (bool, error)
	// MarkFailed flips a pending row to failed.
	MarkFailed(ctx context.Context, tx Tx, id, reason string) (bool, error)

	// ListEligibleByProvider returns completed, unwithdrawn transactions of the
	// provider's services, oldest first.
	ListEligibleByProvider(ctx context.Context, tx Tx, providerID string) ([]model.EligibleTransaction, error)
	SumEligibleByProvider(ctx context.Context, tx Tx, providerID string) (decimal.Decimal, error)
	// ClaimForWithdrawal sets withdrawal_id on the listed rows that are still
	// unclaimed and returns how many rows it touched.
	ClaimForWithdrawal(ctx context.Context, tx Tx, withdrawalID string, ids []string) (int64, error)
	// ReleaseWithdrawal clears withdrawal_id on rows claimed by a failed withdrawal.
	ReleaseWithdrawal(ctx context.Context, tx Tx, withdrawalID string) (int64, error)
}
