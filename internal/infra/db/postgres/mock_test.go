//go:build !integration

package postgres

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
	red "x402-subscriptions/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerServiceRepo mocks the database repository that the Service decorator wraps.
type mockInnerServiceRepo struct {
	CreateFunc         func(ctx context.Context, tx repository.Tx, s *model.Service) error
	UpdateFunc         func(ctx context.Context, tx repository.Tx, s *model.Service) error
	DeleteFunc         func(ctx context.Context, tx repository.Tx, id string) error
	FindByIDFunc       func(ctx context.Context, tx repository.Tx, id string) (*model.Service, error)
	ListByProviderFunc func(ctx context.Context, tx repository.Tx, providerID string) ([]*model.Service, error)
	ListByIDsFunc      func(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Service, error)
}

func (m *mockInnerServiceRepo) Create(ctx context.Context, tx repository.Tx, s *model.Service) error {
	return m.CreateFunc(ctx, tx, s)
}
func (m *mockInnerServiceRepo) Update(ctx context.Context, tx repository.Tx, s *model.Service) error {
	return m.UpdateFunc(ctx, tx, s)
}
func (m *mockInnerServiceRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	return m.DeleteFunc(ctx, tx, id)
}
func (m *mockInnerServiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Service, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerServiceRepo) ListByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]*model.Service, error) {
	return m.ListByProviderFunc(ctx, tx, providerID)
}
func (m *mockInnerServiceRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Service, error) {
	return m.ListByIDsFunc(ctx, tx, ids)
}

// mockRedisClient implements the RedisClient interface for testing.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = (*mockRedisClient)(nil)

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return "", red.Nil
}
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
func (m *mockRedisClient) Close() error { return nil }

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
