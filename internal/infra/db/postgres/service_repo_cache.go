package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/infra/metrics"
	red "x402-subscriptions/internal/infra/redis"
)

var _ repository.ServiceRepository = (*serviceRepoCacheDecorator)(nil)

type serviceRepoCacheDecorator struct {
	inner repository.ServiceRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

// NewServiceRepoCacheDecorator caches single-service reads outside
// transactions. Transactional reads always hit the database so row locks hold.
func NewServiceRepoCacheDecorator(inner repository.ServiceRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.ServiceRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "ServiceCache").Logger()
	return &serviceRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func serviceKey(id string) string { return "service:" + id }

func (d *serviceRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Service, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := serviceKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var svc model.Service
		if json.Unmarshal([]byte(val), &svc) == nil {
			metrics.IncCacheRequest("service", "hit")
			return &svc, nil
		}
	} else if !errors.Is(err, red.Nil) {
		d.log.Warn().Err(err).Str("key", key).Msg("service cache read failed")
	}

	metrics.IncCacheRequest("service", "miss")
	svc, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(svc); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("service cache write failed")
		}
	}
	return svc, nil
}

func (d *serviceRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, s *model.Service) error {
	return d.inner.Create(ctx, tx, s)
}

// Writes invalidate on both sides of the inner call so a concurrent miss
// cannot park the old row in the cache.
func (d *serviceRepoCacheDecorator) Update(ctx context.Context, tx repository.Tx, s *model.Service) error {
	d.invalidate(ctx, s.ID)
	defer d.invalidate(ctx, s.ID)
	return d.inner.Update(ctx, tx, s)
}

func (d *serviceRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, id string) error {
	d.invalidate(ctx, id)
	defer d.invalidate(ctx, id)
	return d.inner.Delete(ctx, tx, id)
}

func (d *serviceRepoCacheDecorator) ListByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]*model.Service, error) {
	return d.inner.ListByProvider(ctx, tx, providerID)
}

func (d *serviceRepoCacheDecorator) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Service, error) {
	return d.inner.ListByIDs(ctx, tx, ids)
}

func (d *serviceRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if err := d.cache.Del(ctx, serviceKey(id)); err != nil {
		d.log.Warn().Err(err).Str("service_id", id).Msg("service cache invalidation failed")
	}
}
