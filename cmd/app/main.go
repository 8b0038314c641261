package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/config"
	"x402-subscriptions/internal/domain/ports/adapter"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/infra/api"
	"x402-subscriptions/internal/infra/chain"
	pg "x402-subscriptions/internal/infra/db/postgres"
	"x402-subscriptions/internal/infra/logging"
	"x402-subscriptions/internal/infra/metrics"
	red "x402-subscriptions/internal/infra/redis"
	"x402-subscriptions/internal/infra/sched"
	"x402-subscriptions/internal/infra/webhook"
	"x402-subscriptions/internal/infra/worker"
	"x402-subscriptions/internal/usecase"
	"x402-subscriptions/internal/x402"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis (optional) ----
	var (
		limiter api.Limiter
		lease   adapter.Locker
	)
	var serviceRepo repository.ServiceRepository = pg.NewServiceRepo(pool)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
		lease = red.NewLocker(redisClient)
		serviceRepo = pg.NewServiceRepoCacheDecorator(serviceRepo, redisClient, cfg.Redis.TTL, logger)
	} else {
		logger.Warn().Msg("redis not configured: no service cache, rate limit or withdrawal lease")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	providerRepo := pg.NewProviderRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	withdrawalRepo := pg.NewWithdrawalRepo(pool)

	// ---- x402 ----
	networks := networksFrom(cfg.X402)
	builder := x402.NewRequirementBuilder(networks, cfg.X402.PayTo)
	facilitator := x402.NewFacilitatorClient(x402.FacilitatorConfig{
		URL:               cfg.X402.FacilitatorURL,
		CreateAuthHeaders: x402.BearerAuth(cfg.X402.FacilitatorToken),
	}, &http.Client{Timeout: 2 * time.Minute})

	// ---- Payout signer ----
	signer, err := newPayoutSigner(ctx, cfg, networks, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("payout signer")
	}

	// ---- Webhooks ----
	webhookPool := worker.NewPool(cfg.Webhook.Workers, cfg.Webhook.QueueSize, logger)
	webhookPool.Start(ctx)
	notifier := webhook.NewSender(cfg.Webhook, &http.Client{}, webhookPool, logger)

	// ---- Use cases ----
	index := usecase.NewPriceIndex(subRepo, serviceRepo, logger)
	providerUC := usecase.NewProviderUseCase(providerRepo, logger, cfg.Runtime.Dev)
	serviceUC := usecase.NewServiceUseCase(serviceRepo, providerRepo, subRepo, builder, tm, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, serviceRepo, providerRepo, paymentRepo, tm, notifier, index, logger)
	gateUC := usecase.NewPaymentGateUseCase(index, subRepo, serviceRepo, paymentRepo, subUC, builder, facilitator, logger, cfg.Runtime.Dev)
	withdrawalUC := usecase.NewWithdrawalUseCase(providerRepo, paymentRepo, withdrawalRepo, tm, tm, lease, signer, notifier,
		usecase.WithdrawalConfig{ReceiptTimeout: cfg.Payout.ReceiptTimeout}, logger, cfg.Runtime.Dev)

	if err := index.Rebuild(ctx); err != nil {
		logger.Fatal().Err(err).Msg("build price index")
	}
	logger.Info().Int("routes", index.Len()).Msg("price index ready")

	// ---- Scheduler ----
	scheduler := sched.New(5*time.Minute, logger)
	jobs := []struct {
		spec string
		job  sched.Job
	}{
		{cfg.Scheduler.ExpiryCheckCron, sched.NewExpiryJob(subUC)},
		{cfg.Scheduler.BillingDueCron, sched.NewBillingDueJob(subUC)},
		{cfg.Scheduler.ReconcileCron, sched.NewReconcileJob(gateUC, withdrawalUC, cfg.Scheduler.StaleAfter)},
		{"@every 1m", sched.NewGaugeJob(subRepo)},
	}
	for _, j := range jobs {
		if err := scheduler.Add(j.spec, j.job); err != nil {
			logger.Fatal().Err(err).Msg("scheduler")
		}
	}
	scheduler.Start(ctx)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Providers:     providerUC,
		Services:      serviceUC,
		Subscriptions: subUC,
		Withdrawals:   withdrawalUC,
		Gate:          gateUC,
		Index:         index,
		Limiter:       limiter,
		Auth:          api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL),
	}, api.Options{
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		PublicBaseURL:      cfg.HTTP.PublicBaseURL,
		PayRoutePerMinute:  cfg.RateLimit.PayRoutePerMinute,
		ExpiringWithinDays: cfg.Scheduler.ExpiringWithinDays,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		logger.Info().Str("signal", s.String()).Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	scheduler.Stop()
	webhookPool.Stop()
	cancel()
}

// networksFrom applies configured asset overrides on top of the Base defaults.
func networksFrom(cfg config.X402Config) x402.Networks {
	networks := x402.DefaultNetworks()
	for name, a := range cfg.Assets {
		networks[name] = x402.AssetConfig{
			ChainID:  a.ChainID,
			Address:  a.Address,
			Decimals: a.Decimals,
			Name:     a.Name,
			Version:  a.Version,
		}
	}
	return networks
}

func newPayoutSigner(ctx context.Context, cfg *config.Config, networks x402.Networks, logger *zerolog.Logger) (adapter.PayoutSigner, error) {
	if cfg.Payout.DryRun {
		logger.Warn().Msg("payout dry run: withdrawals are not sent on chain")
		return chain.NewNoopPayoutSigner(), nil
	}
	asset, ok := networks[cfg.X402.Network]
	if !ok {
		return nil, fmt.Errorf("no asset configured for network %q", cfg.X402.Network)
	}
	client, err := ethclient.DialContext(ctx, cfg.Payout.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return chain.NewERC20PayoutSigner(ctx, client, chain.SignerConfig{
		PrivateKeyHex: cfg.Payout.PrivateKey,
		TokenAddress:  asset.Address,
		Decimals:      asset.Decimals,
		GasLimit:      cfg.Payout.GasLimit,
		PollInterval:  cfg.Payout.PollInterval,
	}, logger)
}
