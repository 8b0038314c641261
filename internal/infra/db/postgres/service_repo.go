package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
)

var _ repository.ServiceRepository = (*serviceRepo)(nil)

const serviceCols = `id, provider_id, name, description, price, billing_cycle, features, trial_period_days,
  status, network, endpoint, metadata, created_at, updated_at`

type serviceRepo struct {
	pool *pgxpool.Pool
}

func NewServiceRepo(pool *pgxpool.Pool) *serviceRepo {
	return &serviceRepo{pool: pool}
}

func (r *serviceRepo) Create(ctx context.Context, tx repository.Tx, s *model.Service) error {
	const q = `
INSERT INTO services (` + serviceCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12::jsonb,$13,$14);`
	features, err := toJSON(s.Features)
	if err != nil {
		return err
	}
	meta, err := toJSON(s.Metadata)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.ProviderID, s.Name, s.Description, s.Pricing.Amount, string(s.Pricing.BillingCycle), features,
		s.TrialPeriodDays, string(s.Status), s.Network, s.Endpoint, meta, s.CreatedAt, s.UpdatedAt)
	return mapErr(err)
}

func (r *serviceRepo) Update(ctx context.Context, tx repository.Tx, s *model.Service) error {
	const q = `
UPDATE services SET
  name=$2, description=$3, price=$4, billing_cycle=$5, features=$6::jsonb, trial_period_days=$7,
  status=$8, network=$9, endpoint=$10, metadata=$11::jsonb, updated_at=$12
WHERE id=$1;`
	features, err := toJSON(s.Features)
	if err != nil {
		return err
	}
	meta, err := toJSON(s.Metadata)
	if err != nil {
		return err
	}
	tag, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.Name, s.Description, s.Pricing.Amount, string(s.Pricing.BillingCycle), features,
		s.TrialPeriodDays, string(s.Status), s.Network, s.Endpoint, meta, s.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *serviceRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM services WHERE id=$1;`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *serviceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Service, error) {
	q := forUpdate(`SELECT `+serviceCols+` FROM services WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	s, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *serviceRepo) ListByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]*model.Service, error) {
	const q = `SELECT ` + serviceCols + ` FROM services WHERE provider_id=$1 ORDER BY created_at ASC`
	return r.list(ctx, tx, q, providerID)
}

func (r *serviceRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `SELECT ` + serviceCols + ` FROM services WHERE id = ANY($1)`
	return r.list(ctx, tx, q, ids)
}

func (r *serviceRepo) list(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Service, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*model.Service
	for rows.Next() {
		s, err := scanService(rows)
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

func scanService(row scanner) (*model.Service, error) {
	s := &model.Service{}
	var (
		cycle, status  string
		features, meta []byte
	)
	err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Description, &s.Pricing.Amount, &cycle, &features,
		&s.TrialPeriodDays, &status, &s.Network, &s.Endpoint, &meta, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Pricing.BillingCycle = model.BillingCycle(cycle)
	s.Status = model.ServiceStatus(status)
	if err := fromJSON(features, &s.Features); err != nil {
		return nil, err
	}
	if err := fromJSON(meta, &s.Metadata); err != nil {
		return nil, err
	}
	return s, nil
}
