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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

// constraint behind the one-open-subscription-per-(user, service) rule
const openSubscriptionIndex = "subscriptions_open_user_service_uniq"

const subscriptionCols = `id, user_id, service_id, provider_id, status, start_date, end_date, next_billing_date,
  trial_end_date, amount_paid, auto_renew, cancellation_date, cancellation_reason, payment_history,
  metadata, version, created_at, updated_at`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func statusStrings(statuses []model.SubscriptionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *subscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15::jsonb,$16,$17,$18);`
	history, err := toJSON(s.PaymentHistory)
	if err != nil {
		return err
	}
	if s.PaymentHistory == nil {
		history = "[]"
	}
	meta, err := toJSON(s.Metadata)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.ServiceID, s.ProviderID, string(s.Status), s.StartDate, s.EndDate, s.NextBillingDate,
		s.TrialEndDate, s.AmountPaid, s.AutoRenew, s.CancellationDate, s.CancellationReason, history,
		meta, s.Version, s.CreatedAt, s.UpdatedAt)
	if name, ok := uniqueViolation(err); ok && name == openSubscriptionIndex {
		return domain.ErrDuplicateSubscription
	}
	return mapErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := forUpdate(`SELECT `+subscriptionCols+` FROM subscriptions WHERE id=$1`, tx)
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindOpenByUserAndService(ctx context.Context, tx repository.Tx, userID, serviceID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionCols + `
  FROM subscriptions
 WHERE user_id=$1 AND service_id=$2 AND status IN ('pending','active','trial')
 LIMIT 1`
	return r.queryOne(ctx, tx, q, userID, serviceID)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, statuses []model.SubscriptionStatus) ([]*model.Subscription, error) {
	if len(statuses) == 0 {
		const q = `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC`
		return r.list(ctx, tx, q, userID)
	}
	const q = `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE user_id=$1 AND status = ANY($2) ORDER BY created_at DESC`
	return r.list(ctx, tx, q, userID, statusStrings(statuses))
}

func (r *subscriptionRepo) ListByService(ctx context.Context, tx repository.Tx, serviceID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE service_id=$1 ORDER BY created_at DESC`
	return r.list(ctx, tx, q, serviceID)
}

func (r *subscriptionRepo) ListByStatuses(ctx context.Context, tx repository.Tx, statuses []model.SubscriptionStatus) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE status = ANY($1)`
	return r.list(ctx, tx, q, statusStrings(statuses))
}

func (r *subscriptionRepo) ListDueForBilling(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionCols + `
  FROM subscriptions
 WHERE status IN ('active','trial') AND auto_renew AND next_billing_date <= $1
 ORDER BY next_billing_date ASC`
	return r.list(ctx, tx, q, now)
}

func (r *subscriptionRepo) ListExpiring(ctx context.Context, tx repository.Tx, from, until time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionCols + `
  FROM subscriptions
 WHERE status IN ('active','trial') AND end_date >= $1 AND end_date <= $2
 ORDER BY end_date ASC`
	return r.list(ctx, tx, q, from, until)
}

func (r *subscriptionRepo) CountByServiceAndStatuses(ctx context.Context, tx repository.Tx, serviceID string, statuses []model.SubscriptionStatus) (int, error) {
	const q = `SELECT COUNT(*) FROM subscriptions WHERE service_id=$1 AND status = ANY($2)`
	row, err := pickRow(ctx, r.pool, tx, q, serviceID, statusStrings(statuses))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) AdvanceBilling(ctx context.Context, tx repository.Tx, p repository.AdvanceBilling) error {
	const q = `
UPDATE subscriptions SET
  status='active',
  end_date=$2,
  next_billing_date=$2,
  amount_paid=amount_paid + $3,
  payment_history=payment_history || $4::jsonb,
  version=version + 1,
  updated_at=NOW()
WHERE id=$1 AND version=$5 AND status IN ('pending','active','trial');`
	entry, err := toJSON([]model.PaymentHistoryEntry{p.Entry})
	if err != nil {
		return err
	}
	tag, err := execSQL(ctx, r.pool, tx, q, p.SubscriptionID, p.NewEndDate, p.Amount, entry, p.ExpectedVersion)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from []model.SubscriptionStatus, to model.SubscriptionStatus) (bool, error) {
	const q = `
UPDATE subscriptions SET status=$2, version=version + 1, updated_at=NOW()
WHERE id=$1 AND status = ANY($3);`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(to), statusStrings(from))
	if name, ok := uniqueViolation(err); ok && name == openSubscriptionIndex {
		return false, domain.ErrDuplicateSubscription
	}
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) Cancel(ctx context.Context, tx repository.Tx, id, reason string, at time.Time) (bool, error) {
	const q = `
UPDATE subscriptions SET
  status='cancelled', auto_renew=FALSE, cancellation_date=$2, cancellation_reason=$3,
  version=version + 1, updated_at=NOW()
WHERE id=$1 AND status NOT IN ('cancelled','expired');`
	tag, err := execSQL(ctx, r.pool, tx, q, id, at, reason)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	const q = `
UPDATE subscriptions SET status='expired', version=version + 1, updated_at=NOW()
WHERE status IN ('active','trial') AND end_date < $1
RETURNING ` + subscriptionCols
	return r.list(ctx, tx, q, now)
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *subscriptionRepo) list(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row scanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	var (
		status        string
		history, meta []byte
	)
	err := row.Scan(&s.ID, &s.UserID, &s.ServiceID, &s.ProviderID, &status, &s.StartDate, &s.EndDate, &s.NextBillingDate,
		&s.TrialEndDate, &s.AmountPaid, &s.AutoRenew, &s.CancellationDate, &s.CancellationReason, &history,
		&meta, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	s.PaymentHistory = []model.PaymentHistoryEntry{}
	if err := fromJSON(history, &s.PaymentHistory); err != nil {
		return nil, err
	}
	if err := fromJSON(meta, &s.Metadata); err != nil {
		return nil, err
	}
	return s, nil
}
