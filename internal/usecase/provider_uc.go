package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/infra/logging"
)

var _ ProviderUseCase = (*providerUC)(nil)

// ProviderUseCase registers and looks up service providers.
type ProviderUseCase interface {
	Register(ctx context.Context, name, wallet string, webhookURL *string) (*model.ServiceProvider, error)
	GetByID(ctx context.Context, id string) (*model.ServiceProvider, error)
	GetByWallet(ctx context.Context, wallet string) (*model.ServiceProvider, error)
	UpdateProfile(ctx context.Context, id string, name, webhookURL *string) (*model.ServiceProvider, error)
}

type providerUC struct {
	providers repository.ServiceProviderRepository
	log       *zerolog.Logger
	dev       bool
}

func NewProviderUseCase(providers repository.ServiceProviderRepository, logger *zerolog.Logger, dev bool) *providerUC {
	l := logger.With().Str("component", "ProviderUC").Logger()
	return &providerUC{providers: providers, log: &l, dev: dev}
}

func (u *providerUC) Register(ctx context.Context, name, wallet string, webhookURL *string) (*model.ServiceProvider, error) {
	p, err := model.NewServiceProvider(uuid.NewString(), name, wallet, webhookURL)
	if err != nil {
		return nil, err
	}
	// the unique index on lower(wallet_address) is the authority; this check
	// only gives a clearer error on the common path
	if existing, err := u.providers.FindByWallet(ctx, repository.NoTX, p.WalletAddress); err == nil && existing != nil {
		return nil, domain.ErrWalletTaken
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err := u.providers.Create(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	u.log.Info().Str("provider_id", p.ID).Str("wallet", logging.Redact(p.WalletAddress, u.dev)).Msg("provider registered")
	return p, nil
}

func (u *providerUC) GetByID(ctx context.Context, id string) (*model.ServiceProvider, error) {
	p, err := u.providers.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProviderNotFound
	}
	return p, err
}

func (u *providerUC) GetByWallet(ctx context.Context, wallet string) (*model.ServiceProvider, error) {
	w := strings.TrimSpace(wallet)
	if w == "" {
		return nil, domain.ErrInvalidAddress
	}
	p, err := u.providers.FindByWallet(ctx, repository.NoTX, w)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProviderNotFound
	}
	return p, err
}

// UpdateProfile changes the display name and webhook. An empty webhook string
// clears it. The wallet is fixed once registered.
func (u *providerUC) UpdateProfile(ctx context.Context, id string, name, webhookURL *string) (*model.ServiceProvider, error) {
	p, err := u.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return nil, domain.ErrInvalidArgument
		}
		p.Name = n
	}
	if webhookURL != nil {
		if h := strings.TrimSpace(*webhookURL); h == "" {
			p.WebhookURL = nil
		} else {
			p.WebhookURL = &h
		}
	}
	p.UpdatedAt = time.Now().UTC()
	if err := u.providers.Update(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	return p, nil
}
