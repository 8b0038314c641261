package repository

import (
	"context"

	"x402-subscriptions/internal/domain/model"
)

type ServiceRepository interface {
	Create(ctx context.Context, tx Tx, s *model.Service) error
	Update(ctx context.Context, tx Tx, s *model.Service) error
	Delete(ctx context.Context, tx Tx, id string) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Service, error)
	ListByProvider(ctx context.Context, tx Tx, providerID string) ([]*model.Service, error)
	ListByIDs(ctx context.Context, tx Tx, ids []string) ([]*model.Service, error)
}
