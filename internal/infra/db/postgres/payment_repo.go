package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
)

var _ repository.PaymentTransactionRepository = (*paymentRepo)(nil)

const txHashIndex = "payment_transactions_tx_hash_key"

const paymentCols = `id, subscription_id, user_id, amount, transaction_hash, status, payment_method,
  billing_period_start, billing_period_end, failure_reason, processed_at, withdrawal_id, payer, network,
  metadata, created_at`

type paymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error {
	const q = `
INSERT INTO payment_transactions (` + paymentCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15::jsonb,$16);`
	meta, err := toJSON(p.Metadata)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.SubscriptionID, p.UserID, p.Amount, p.TransactionHash, string(p.Status), p.PaymentMethod,
		p.PeriodStart, p.PeriodEnd, p.FailureReason, p.ProcessedAt, p.WithdrawalID, p.Payer, p.Network,
		meta, p.CreatedAt)
	if name, ok := uniqueViolation(err); ok && name == txHashIndex {
		return domain.ErrDuplicateTransaction
	}
	return mapErr(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	q := forUpdate(`SELECT `+paymentCols+` FROM payment_transactions WHERE id=$1`, tx)
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByTxHash(ctx context.Context, tx repository.Tx, txHash string) (*model.PaymentTransaction, error) {
	const q = `SELECT ` + paymentCols + ` FROM payment_transactions WHERE transaction_hash=$1`
	return r.queryOne(ctx, tx, q, txHash)
}

func (r *paymentRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.PaymentTransaction, error) {
	const q = `SELECT ` + paymentCols + ` FROM payment_transactions WHERE subscription_id=$1 ORDER BY created_at ASC`
	return r.list(ctx, tx, q, subscriptionID)
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.PaymentTransaction, error) {
	const q = `
SELECT ` + paymentCols + `
  FROM payment_transactions
 WHERE status='pending' AND created_at < $1
 ORDER BY created_at ASC
 LIMIT $2`
	return r.list(ctx, tx, q, before, limit)
}

func (r *paymentRepo) SetTxHash(ctx context.Context, tx repository.Tx, id, txHash string) error {
	const q = `UPDATE payment_transactions SET transaction_hash=$2 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, txHash)
	if name, ok := uniqueViolation(err); ok && name == txHashIndex {
		return domain.ErrDuplicateTransaction
	}
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) Complete(ctx context.Context, tx repository.Tx, id, txHash string, period model.BillingPeriod, processedAt time.Time) (bool, error) {
	const q = `
UPDATE payment_transactions SET
  status='completed', transaction_hash=$2, billing_period_start=$3, billing_period_end=$4, processed_at=$5
WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, txHash, period.Start, period.End, processedAt)
	if name, ok := uniqueViolation(err); ok && name == txHashIndex {
		return false, domain.ErrDuplicateTransaction
	}
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepo) MarkFailed(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	const q = `UPDATE payment_transactions SET status='failed', failure_reason=$2 WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, reason)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Eligible rows are joined through the subscription's denormalized provider
// so that payments outlive a deleted service.
const eligibleWhere = `
  FROM payment_transactions pt
  JOIN subscriptions s ON s.id = pt.subscription_id
 WHERE s.provider_id=$1 AND pt.status='completed' AND pt.withdrawal_id IS NULL`

func (r *paymentRepo) ListEligibleByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]model.EligibleTransaction, error) {
	q := `SELECT pt.id, pt.amount, pt.processed_at` + eligibleWhere + ` ORDER BY pt.processed_at ASC, pt.id ASC`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE OF pt"
	}
	rows, err := queryRows(ctx, r.pool, tx, q, providerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []model.EligibleTransaction
	for rows.Next() {
		var e model.EligibleTransaction
		if err := rows.Scan(&e.ID, &e.Amount, &e.ProcessedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) SumEligibleByProvider(ctx context.Context, tx repository.Tx, providerID string) (decimal.Decimal, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COALESCE(SUM(pt.amount), 0)`+eligibleWhere, providerID)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *paymentRepo) ClaimForWithdrawal(ctx context.Context, tx repository.Tx, withdrawalID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `
UPDATE payment_transactions SET withdrawal_id=$1
WHERE id = ANY($2) AND withdrawal_id IS NULL AND status='completed';`
	tag, err := execSQL(ctx, r.pool, tx, q, withdrawalID, ids)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *paymentRepo) ReleaseWithdrawal(ctx context.Context, tx repository.Tx, withdrawalID string) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE payment_transactions SET withdrawal_id=NULL WHERE withdrawal_id=$1;`, withdrawalID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.PaymentTransaction, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.PaymentTransaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*model.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPayment(row scanner) (*model.PaymentTransaction, error) {
	p := &model.PaymentTransaction{}
	var (
		status string
		meta   []byte
	)
	err := row.Scan(&p.ID, &p.SubscriptionID, &p.UserID, &p.Amount, &p.TransactionHash, &status, &p.PaymentMethod,
		&p.PeriodStart, &p.PeriodEnd, &p.FailureReason, &p.ProcessedAt, &p.WithdrawalID, &p.Payer, &p.Network,
		&meta, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Status = model.PaymentStatus(status)
	if err := fromJSON(meta, &p.Metadata); err != nil {
		return nil, err
	}
	return p, nil
}
