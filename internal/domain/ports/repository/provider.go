package repository

import (
	"context"

	"x402-subscriptions/internal/domain/model"
)

type ServiceProviderRepository interface {
	Create(ctx context.Context, tx Tx, p *model.ServiceProvider) error
	Update(ctx context.Context, tx Tx, p *model.ServiceProvider) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ServiceProvider, error)
	// FindByWallet matches the wallet address case-insensitively.
	FindByWallet(ctx context.Context, tx Tx, wallet string) (*model.ServiceProvider, error)
}
