package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/config"
	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/infra/api"
	pg "x402-subscriptions/internal/infra/db/postgres"
	"x402-subscriptions/internal/infra/logging"
	"x402-subscriptions/internal/usecase"
	"x402-subscriptions/internal/x402"
)

const (
	demoProviderName = "Demo Provider"
	demoUserID       = "demo-user"
)

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(config.LogConfig{Level: "warn", Format: "console"}, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	tm := pg.NewTxManager(pool)
	providerRepo := pg.NewProviderRepo(pool)
	serviceRepo := pg.NewServiceRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	builder := x402.NewRequirementBuilder(x402.DefaultNetworks(), cfg.X402.PayTo)

	providerUC := usecase.NewProviderUseCase(providerRepo, logger, cfg.Runtime.Dev)
	serviceUC := usecase.NewServiceUseCase(serviceRepo, providerRepo, subRepo, builder, tm, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, serviceRepo, providerRepo, paymentRepo, tm, nil, nil, logger)

	// The platform pay-to wallet doubles as the demo provider wallet.
	provider, err := providerUC.GetByWallet(ctx, cfg.X402.PayTo)
	switch {
	case errors.Is(err, domain.ErrProviderNotFound):
		provider, err = providerUC.Register(ctx, demoProviderName, cfg.X402.PayTo, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("register provider")
		}
		fmt.Printf("seeded provider %s (wallet=%s)\n", provider.ID, provider.WalletAddress)
	case err != nil:
		logger.Fatal().Err(err).Msg("lookup provider")
	default:
		fmt.Printf("provider %s already present\n", provider.ID)
	}

	existing, err := serviceUC.ListByProvider(ctx, provider.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("list services")
	}
	services := existing
	if len(existing) == 0 {
		seed := []struct {
			Name      string
			Price     string
			Cycle     model.BillingCycle
			TrialDays int
		}{
			{"Starter API", "0.99", model.BillingCycleWeekly, 0},
			{"Pro API", "9.99", model.BillingCycleMonthly, 7},
			{"Ultra API", "99", model.BillingCycleYearly, 14},
		}
		for _, s := range seed {
			svc, err := serviceUC.Create(ctx, usecase.CreateServiceInput{
				ProviderID:      provider.ID,
				Name:            s.Name,
				Description:     "seeded for local testing",
				Pricing:         model.Pricing{Amount: decimal.RequireFromString(s.Price), BillingCycle: s.Cycle},
				TrialPeriodDays: s.TrialDays,
			})
			if err != nil {
				logger.Fatal().Err(err).Str("service", s.Name).Msg("create service")
			}
			fmt.Printf("seeded service %s (id=%s, price=%s/%s)\n", svc.Name, svc.ID, svc.Pricing.Amount, svc.Pricing.BillingCycle)
			services = append(services, svc)
		}
	} else {
		fmt.Printf("%d services already present\n", len(existing))
	}

	sub, err := subUC.CreateSubscription(ctx, demoUserID, services[0].ID, time.Now().UTC(), false)
	switch {
	case errors.Is(err, domain.ErrDuplicateSubscription):
		fmt.Printf("%s already subscribed to %s\n", demoUserID, services[0].Name)
	case err != nil:
		logger.Fatal().Err(err).Msg("create subscription")
	default:
		fmt.Printf("seeded subscription %s, pay at /subscriptions-k/pay/%s\n", sub.ID, sub.ID)
	}

	auth := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	if auth.Enabled() {
		token, err := auth.Mint("seed")
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Printf("admin token: %s\n", token)
	}

	fmt.Println("seeding complete")
}
