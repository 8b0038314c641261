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

var _ repository.ServiceProviderRepository = (*providerRepo)(nil)

const providerCols = `id, name, wallet_address, webhook_url, created_at, updated_at`

type providerRepo struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) *providerRepo {
	return &providerRepo{pool: pool}
}

func (r *providerRepo) Create(ctx context.Context, tx repository.Tx, p *model.ServiceProvider) error {
	const q = `
INSERT INTO service_providers (` + providerCols + `)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.WalletAddress, p.WebhookURL, p.CreatedAt, p.UpdatedAt)
	if _, ok := uniqueViolation(err); ok {
		return domain.ErrWalletTaken
	}
	return mapErr(err)
}

func (r *providerRepo) Update(ctx context.Context, tx repository.Tx, p *model.ServiceProvider) error {
	const q = `UPDATE service_providers SET name=$2, webhook_url=$3, updated_at=$4 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.WebhookURL, p.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *providerRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ServiceProvider, error) {
	q := forUpdate(`SELECT `+providerCols+` FROM service_providers WHERE id=$1`, tx)
	return r.queryOne(ctx, tx, q, id)
}

func (r *providerRepo) FindByWallet(ctx context.Context, tx repository.Tx, wallet string) (*model.ServiceProvider, error) {
	const q = `SELECT ` + providerCols + ` FROM service_providers WHERE lower(wallet_address)=lower($1)`
	return r.queryOne(ctx, tx, q, wallet)
}

func (r *providerRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.ServiceProvider, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p := &model.ServiceProvider{}
	if err := row.Scan(&p.ID, &p.Name, &p.WalletAddress, &p.WebhookURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}
