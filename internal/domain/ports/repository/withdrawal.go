package repository

import (
	"context"
	"time"

	"x402-subscriptions/internal/domain/model"
)

type WithdrawalRepository interface {
	Create(ctx context.Context, tx Tx, w *model.Withdrawal) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Withdrawal, error)
	ListByProvider(ctx context.Context, tx Tx, providerID string) ([]*model.Withdrawal, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.Withdrawal, error)

	// SetTxHash records a submitted transfer on a pending withdrawal.
	SetTxHash(ctx context.Context, tx Tx, id, txHash string) error
	MarkPaid(ctx context.Context, tx Tx, id, txHash string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, tx Tx, id, reason string) (bool, error)
}
