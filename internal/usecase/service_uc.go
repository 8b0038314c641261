package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/x402"
)

var _ ServiceUseCase = (*serviceUC)(nil)

// CreateServiceInput is what a provider submits to publish a service.
type CreateServiceInput struct {
	ProviderID      string
	Name            string
	Description     string
	Pricing         model.Pricing
	Features        []string
	TrialPeriodDays int
	Network         string
	Endpoint        string
	Metadata        map[string]any
}

// ServiceUseCase manages provider services.
type ServiceUseCase interface {
	Create(ctx context.Context, in CreateServiceInput) (*model.Service, error)
	GetByID(ctx context.Context, id string) (*model.Service, error)
	ListByProvider(ctx context.Context, providerID string) ([]*model.Service, error)
	SetStatus(ctx context.Context, id string, status model.ServiceStatus) (*model.Service, error)
	Delete(ctx context.Context, id string) error
}

type serviceUC struct {
	services  repository.ServiceRepository
	providers repository.ServiceProviderRepository
	subs      repository.SubscriptionRepository
	builder   *x402.RequirementBuilder
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

func NewServiceUseCase(
	services repository.ServiceRepository,
	providers repository.ServiceProviderRepository,
	subs repository.SubscriptionRepository,
	builder *x402.RequirementBuilder,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *serviceUC {
	l := logger.With().Str("component", "ServiceUC").Logger()
	return &serviceUC{services: services, providers: providers, subs: subs, builder: builder, tm: tm, log: &l}
}

func (u *serviceUC) Create(ctx context.Context, in CreateServiceInput) (*model.Service, error) {
	if _, err := u.providers.FindByID(ctx, repository.NoTX, in.ProviderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, err
	}
	svc, err := model.NewService(uuid.NewString(), in.ProviderID, in.Name, in.Description, in.Pricing, in.TrialPeriodDays)
	if err != nil {
		return nil, err
	}
	if in.Network != "" {
		svc.Network = in.Network
	}
	// reject prices that could never be quoted on the chosen network
	if u.builder != nil {
		if _, ok := u.builder.Asset(svc.Network); !ok {
			return nil, domain.ErrInvalidPrice
		}
	}
	svc.Features = in.Features
	svc.Endpoint = in.Endpoint
	svc.Metadata = in.Metadata
	if err := u.services.Create(ctx, repository.NoTX, svc); err != nil {
		return nil, err
	}
	u.log.Info().Str("service_id", svc.ID).Str("provider_id", svc.ProviderID).Str("price", svc.Pricing.Amount.String()).Msg("service created")
	return svc, nil
}

func (u *serviceUC) GetByID(ctx context.Context, id string) (*model.Service, error) {
	s, err := u.services.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrServiceNotFound
	}
	return s, err
}

func (u *serviceUC) ListByProvider(ctx context.Context, providerID string) ([]*model.Service, error) {
	return u.services.ListByProvider(ctx, repository.NoTX, providerID)
}

func (u *serviceUC) SetStatus(ctx context.Context, id string, status model.ServiceStatus) (*model.Service, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	if err := u.services.Update(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Delete refuses while active or trial subscriptions still reference the service.
func (u *serviceUC) Delete(ctx context.Context, id string) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.services.FindByID(ctx, tx, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrServiceNotFound
			}
			return err
		}
		n, err := u.subs.CountByServiceAndStatuses(ctx, tx, id, model.BillableStatuses)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrServiceInUse
		}
		return u.services.Delete(ctx, tx, id)
	})
}
