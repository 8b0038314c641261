package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/usecase"
)

// IndexRebuilder is the slice of the pay-route index the admin routes use.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
	Len() int
	BuiltAt() time.Time
}

// Deps are the use cases served over HTTP.
type Deps struct {
	Providers     usecase.ProviderUseCase
	Services      usecase.ServiceUseCase
	Subscriptions usecase.SubscriptionUseCase
	Withdrawals   usecase.WithdrawalUseCase
	Gate          usecase.PaymentGateUseCase
	Index         IndexRebuilder
	Limiter       Limiter
	Auth          *AuthManager
}

type Options struct {
	RequestTimeout     time.Duration
	PublicBaseURL      string
	PayRoutePerMinute  int
	ExpiringWithinDays int
}

// Server exposes the management routes, the x402 pay route and ops endpoints.
type Server struct {
	Deps
	opts Options
	log  *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 90 * time.Second
	}
	if opts.ExpiringWithinDays <= 0 {
		opts.ExpiringWithinDays = 3
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{Deps: deps, opts: opts, log: &l}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout))

		r.Route("/service-providers", func(r chi.Router) {
			r.Post("/new", s.handleRegisterProvider)
			r.Get("/get/by-id/{id}", s.handleGetProvider)
			r.Get("/get/by-wallet/{address}", s.handleGetProviderByWallet)
			r.Put("/update/{id}", s.handleUpdateProvider)
			r.Post("/withdraw", s.handleWithdraw)
			r.Get("/max-payout/{providerId}", s.handleMaxPayout)
			r.Get("/withdrawals/{providerId}", s.handleListWithdrawals)
		})

		r.Route("/services-k", func(r chi.Router) {
			r.Post("/new", s.handleCreateService)
			r.Get("/get/by-provider-id/{id}", s.handleListServices)
			r.Get("/get/by-id/{id}", s.handleGetService)
			r.Patch("/status/{id}", s.handleSetServiceStatus)
			r.Delete("/delete/{id}", s.handleDeleteService)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/new", s.handleCreateSubscription)
			r.Get("/get/by-id/{id}", s.handleGetSubscription)
			r.Get("/get/by-service/{service_id}", s.handleSubscriptionsByService)
			r.Get("/get/by-user/{user_id}", s.handleSubscriptionsByUser)
			r.Get("/get/expiring", s.handleExpiring)
			r.Get("/get/due", s.handleDue)
			r.Post("/cancel/{id}", s.handleCancel)
			r.Get("/transactions/{id}", s.handleTransactions)
		})

		r.With(RateLimit(s.Limiter, s.opts.PayRoutePerMinute, s.log)).
			Get("/subscriptions-k/pay/{subscriptionId}", s.handlePay)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminOnly(s.Auth))
			r.Post("/subscriptions/{id}/suspend", s.handleSuspend)
			r.Post("/subscriptions/{id}/resume", s.handleResume)
			r.Post("/price-index/rebuild", s.handleRebuildIndex)
		})
	})
	return r
}
