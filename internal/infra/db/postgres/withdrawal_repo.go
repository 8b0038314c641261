package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
)

var _ repository.WithdrawalRepository = (*withdrawalRepo)(nil)

const withdrawalCols = `id, provider_id, amount, status, transaction_hash, failure_reason, requested_at, paid_at, metadata, updated_at`

type withdrawalRepo struct {
	pool *pgxpool.Pool
}

func NewWithdrawalRepo(pool *pgxpool.Pool) *withdrawalRepo {
	return &withdrawalRepo{pool: pool}
}

func (r *withdrawalRepo) Create(ctx context.Context, tx repository.Tx, w *model.Withdrawal) error {
	const q = `
INSERT INTO withdrawals (` + withdrawalCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10);`
	meta, err := toJSON(w.Metadata)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		w.ID, w.ProviderID, w.Amount, string(w.Status), w.TransactionHash, w.FailureReason, w.RequestedAt, w.PaidAt, meta, w.UpdatedAt)
	return mapErr(err)
}

func (r *withdrawalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Withdrawal, error) {
	q := forUpdate(`SELECT `+withdrawalCols+` FROM withdrawals WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	w, err := scanWithdrawal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return w, err
}

func (r *withdrawalRepo) ListByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]*model.Withdrawal, error) {
	const q = `SELECT ` + withdrawalCols + ` FROM withdrawals WHERE provider_id=$1 ORDER BY requested_at DESC`
	return r.list(ctx, tx, q, providerID)
}

func (r *withdrawalRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Withdrawal, error) {
	const q = `
SELECT ` + withdrawalCols + `
  FROM withdrawals
 WHERE status='pending' AND requested_at < $1
 ORDER BY requested_at ASC
 LIMIT $2`
	return r.list(ctx, tx, q, before, limit)
}

func (r *withdrawalRepo) SetTxHash(ctx context.Context, tx repository.Tx, id, txHash string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE withdrawals SET transaction_hash=$2, updated_at=NOW() WHERE id=$1;`, id, txHash)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *withdrawalRepo) MarkPaid(ctx context.Context, tx repository.Tx, id, txHash string, paidAt time.Time) (bool, error) {
	const q = `
UPDATE withdrawals SET status='paid', transaction_hash=$2, paid_at=$3, updated_at=NOW()
WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, txHash, paidAt)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *withdrawalRepo) MarkFailed(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `
UPDATE withdrawals SET status='failed', failure_reason=$2, updated_at=NOW()
WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, reason)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *withdrawalRepo) list(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Withdrawal, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanWithdrawal(row scanner) (*model.Withdrawal, error) {
	w := &model.Withdrawal{}
	var (
		status string
		meta   []byte
	)
	err := row.Scan(&w.ID, &w.ProviderID, &w.Amount, &status, &w.TransactionHash, &w.FailureReason, &w.RequestedAt, &w.PaidAt, &meta, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	w.Status = model.WithdrawalStatus(status)
	if err := fromJSON(meta, &w.Metadata); err != nil {
		return nil, err
	}
	return w, nil
}
