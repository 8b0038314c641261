package usecase

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/infra/logging"
)

var _ RouteIndex = (*PriceIndex)(nil)

// DefaultMissRebuildInterval bounds how often lookup misses may trigger a
// rebuild from the store.
const DefaultMissRebuildInterval = 5 * time.Second

// PayRoutePrefix is the path every payable subscription is reached under.
const PayRoutePrefix = "/subscriptions-k/pay/"

// RouteKey identifies a protected route, e.g. "GET /subscriptions-k/pay/<id>".
type RouteKey string

func PayRouteKey(subscriptionID string) RouteKey {
	return RouteKey(http.MethodGet + " " + PayRoutePrefix + subscriptionID)
}

// PriceSpec is what a pay route charges.
type PriceSpec struct {
	SubscriptionID string
	ServiceID      string
	ServiceName    string
	Description    string
	Price          decimal.Decimal
	Network        string
}

// BuildPriceIndex derives one pay route per payable subscription whose
// service is known. Subscriptions in other statuses or with a dangling service
// reference are left out.
func BuildPriceIndex(subs []*model.Subscription, services []*model.Service) map[RouteKey]PriceSpec {
	byID := make(map[string]*model.Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}
	out := make(map[RouteKey]PriceSpec, len(subs))
	for _, sub := range subs {
		if !sub.Status.IsOpen() {
			continue
		}
		svc, ok := byID[sub.ServiceID]
		if !ok {
			continue
		}
		out[PayRouteKey(sub.ID)] = priceSpec(sub, svc)
	}
	return out
}

func priceSpec(sub *model.Subscription, svc *model.Service) PriceSpec {
	network := svc.Network
	if network == "" {
		network = model.DefaultNetwork
	}
	return PriceSpec{
		SubscriptionID: sub.ID,
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		Description:    fmt.Sprintf("%s (%s)", svc.Name, svc.Pricing.BillingCycle),
		Price:          svc.Pricing.Amount,
		Network:        network,
	}
}

// PriceIndex is the in-memory route table of the payment gate. Readers see an
// immutable snapshot; writers copy on write.
type PriceIndex struct {
	subs     repository.SubscriptionRepository
	services repository.ServiceRepository
	log      *zerolog.Logger

	mu      sync.RWMutex
	routes  map[RouteKey]PriceSpec
	builtAt time.Time

	rebuildMu    sync.Mutex
	missRebuild  singleflight.Group
	missInterval time.Duration
}

func NewPriceIndex(subs repository.SubscriptionRepository, services repository.ServiceRepository, logger *zerolog.Logger) *PriceIndex {
	l := logger.With().Str("component", "PriceIndex").Logger()
	return &PriceIndex{
		subs:     subs,
		services: services,
		log:          &l,
		routes:       map[RouteKey]PriceSpec{},
		missInterval: DefaultMissRebuildInterval,
	}
}

// SetMissRebuildInterval changes how stale the table must be before a lookup
// miss rebuilds it. Zero rebuilds on every miss.
func (p *PriceIndex) SetMissRebuildInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.missInterval = d
}

// Rebuild replaces the route table with one derived from the store.
func (p *PriceIndex) Rebuild(ctx context.Context) error {
	defer logging.TraceDuration(p.log, "PriceIndex.Rebuild")()

	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	subs, err := p.subs.ListByStatuses(ctx, repository.NoTX, model.OpenStatuses)
	if err != nil {
		return fmt.Errorf("list payable subscriptions: %w", err)
	}
	ids := make([]string, 0, len(subs))
	seen := make(map[string]struct{}, len(subs))
	for _, s := range subs {
		if _, ok := seen[s.ServiceID]; ok {
			continue
		}
		seen[s.ServiceID] = struct{}{}
		ids = append(ids, s.ServiceID)
	}
	services, err := p.services.ListByIDs(ctx, repository.NoTX, ids)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}

	routes := BuildPriceIndex(subs, services)
	p.mu.Lock()
	p.routes = routes
	p.builtAt = time.Now()
	p.mu.Unlock()

	p.log.Info().Int("routes", len(routes)).Msg("price index rebuilt")
	return nil
}

// Lookup returns the price of a subscription's pay route. A miss rebuilds the
// index before giving up with domain.ErrSubscriptionNotFound, unless it was
// rebuilt within the miss interval. Concurrent misses share one rebuild.
func (p *PriceIndex) Lookup(ctx context.Context, subscriptionID string) (PriceSpec, error) {
	key := PayRouteKey(subscriptionID)
	if spec, ok := p.get(key); ok {
		return spec, nil
	}
	if err := p.rebuildForMiss(ctx); err != nil {
		return PriceSpec{}, err
	}
	if spec, ok := p.get(key); ok {
		return spec, nil
	}
	return PriceSpec{}, domain.ErrSubscriptionNotFound
}

func (p *PriceIndex) rebuildForMiss(ctx context.Context) error {
	if p.fresh() {
		return nil
	}
	_, err, _ := p.missRebuild.Do("rebuild", func() (any, error) {
		if p.fresh() {
			return nil, nil
		}
		return nil, p.Rebuild(ctx)
	})
	return err
}

func (p *PriceIndex) fresh() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.builtAt.IsZero() && time.Since(p.builtAt) < p.missInterval
}

func (p *PriceIndex) get(key RouteKey) (PriceSpec, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	spec, ok := p.routes[key]
	return spec, ok
}

func (p *PriceIndex) Upsert(sub *model.Subscription, svc *model.Service) {
	if !sub.Status.IsOpen() || svc == nil {
		p.Remove(sub.ID)
		return
	}
	p.mutate(func(m map[RouteKey]PriceSpec) { m[PayRouteKey(sub.ID)] = priceSpec(sub, svc) })
}

func (p *PriceIndex) Remove(subscriptionID string) {
	p.mutate(func(m map[RouteKey]PriceSpec) { delete(m, PayRouteKey(subscriptionID)) })
}

func (p *PriceIndex) mutate(fn func(map[RouteKey]PriceSpec)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make(map[RouteKey]PriceSpec, len(p.routes)+1)
	for k, v := range p.routes {
		next[k] = v
	}
	fn(next)
	p.routes = next
}

// Snapshot returns a copy of the current route table.
func (p *PriceIndex) Snapshot() map[RouteKey]PriceSpec {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[RouteKey]PriceSpec, len(p.routes))
	for k, v := range p.routes {
		out[k] = v
	}
	return out
}

// BuiltAt is when the table was last rebuilt from the store.
func (p *PriceIndex) BuiltAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.builtAt
}

func (p *PriceIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.routes)
}
