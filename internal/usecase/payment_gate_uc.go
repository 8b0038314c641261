package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/adapter"
	"x402-subscriptions/internal/domain/ports/repository"
	ucport "x402-subscriptions/internal/domain/ports/usecase"
	"x402-subscriptions/internal/infra/logging"
	"x402-subscriptions/internal/infra/metrics"
	"x402-subscriptions/internal/x402"
)

var _ PaymentGateUseCase = (*paymentGateUC)(nil)

const (
	ReasonMissingHeader   = "X-PAYMENT header is required"
	ReasonMalformedHeader = "malformed payment header"
	reasonInvalidPayment  = "invalid payment"
	reasonSettleFailed    = "settlement failed"
	reasonOutcomeUnknown  = "settlement outcome unknown"
)

// Quote is a priced pay route, ready to be answered with a 402 or settled.
type Quote struct {
	Subscription *model.Subscription
	Service      *model.Service
	Requirement  x402.PaymentRequirements
}

// Accepts is the requirement list sent back in every 402 body.
func (q *Quote) Accepts() []x402.PaymentRequirements {
	return []x402.PaymentRequirements{q.Requirement}
}

// PaymentResult is returned once settlement succeeded. Settlement is set even
// when the renewal that follows fails, so the receipt can still be returned.
type PaymentResult struct {
	Subscription *model.Subscription
	Service      *model.Service
	Settlement   *x402.SettleResponse
	Transaction  string
}

// PaymentGateUseCase guards the pay routes with x402 verification and settlement.
type PaymentGateUseCase interface {
	// Quote resolves the route price. Unknown or closed subscriptions and
	// dangling services fail with a not-found error before any payment logic.
	Quote(ctx context.Context, subscriptionID, resource string) (*Quote, error)
	// Process runs header decoding, verification, settlement and renewal.
	// Payment failures are returned as *domain.PaymentError.
	Process(ctx context.Context, q *Quote, paymentHeader string) (*PaymentResult, error)
	// ReconcilePending resolves payment transactions left pending by an
	// interrupted request.
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

type paymentGateUC struct {
	index       *PriceIndex
	subs        repository.SubscriptionRepository
	services    repository.ServiceRepository
	payments    repository.PaymentTransactionRepository
	lifecycle   ucport.SubscriptionManager
	builder     *x402.RequirementBuilder
	facilitator adapter.Facilitator
	now         func() time.Time
	log         *zerolog.Logger
	dev         bool
}

// GateOption adjusts a payment gate built by NewPaymentGateUseCase.
type GateOption func(*paymentGateUC)

// WithGateClock sets the clock used to decide whether a quoted billing
// period still lies ahead.
func WithGateClock(now func() time.Time) GateOption {
	return func(u *paymentGateUC) { u.now = now }
}

func NewPaymentGateUseCase(
	index *PriceIndex,
	subs repository.SubscriptionRepository,
	services repository.ServiceRepository,
	payments repository.PaymentTransactionRepository,
	lifecycle ucport.SubscriptionManager,
	builder *x402.RequirementBuilder,
	facilitator adapter.Facilitator,
	logger *zerolog.Logger,
	dev bool,
	opts ...GateOption,
) *paymentGateUC {
	l := logger.With().Str("component", "PaymentGateUC").Logger()
	u := &paymentGateUC{
		index:       index,
		subs:        subs,
		services:    services,
		payments:    payments,
		lifecycle:   lifecycle,
		builder:     builder,
		facilitator: facilitator,
		now:         func() time.Time { return time.Now().UTC() },
		log:         &l,
		dev:         dev,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *paymentGateUC) Quote(ctx context.Context, subscriptionID, resource string) (*Quote, error) {
	defer logging.TraceDuration(u.log, "PaymentGateUC.Quote")()

	spec, err := u.index.Lookup(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.index.Remove(subscriptionID)
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	if !sub.Status.IsOpen() {
		u.index.Remove(subscriptionID)
		return nil, domain.ErrSubscriptionNotFound
	}
	svc, err := u.services.FindByID(ctx, repository.NoTX, spec.ServiceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.index.Remove(subscriptionID)
			return nil, domain.ErrServiceNotFound
		}
		return nil, err
	}
	// Renewal advances from end_date, so a long-unpaid subscription would be
	// sold a period that is already over.
	if period := sub.NextPeriod(svc.Pricing.BillingCycle); !period.End.After(u.now()) {
		metrics.IncPaymentGate("window_passed")
		return nil, domain.ErrBillingWindowPassed
	}
	// keep the route in step with price edits
	u.index.Upsert(sub, svc)

	network := svc.Network
	if network == "" {
		network = model.DefaultNetwork
	}
	req, err := u.builder.Build(svc.Pricing.Amount, network, resource, priceSpec(sub, svc).Description)
	if err != nil {
		return nil, err
	}
	return &Quote{Subscription: sub, Service: svc, Requirement: req}, nil
}

func (u *paymentGateUC) Process(ctx context.Context, q *Quote, paymentHeader string) (*PaymentResult, error) {
	defer logging.TraceDuration(u.log, "PaymentGateUC.Process")()
	log := logging.With(logging.WithSubscriptionID(ctx, q.Subscription.ID), u.log)

	if paymentHeader == "" {
		metrics.IncPaymentGate("missing_header")
		return nil, &domain.PaymentError{Reason: ReasonMissingHeader}
	}
	payload, err := x402.DecodePaymentHeader(paymentHeader)
	if err != nil {
		metrics.IncPaymentGate("malformed")
		log.Debug().Err(err).Msg("payment header rejected")
		return nil, &domain.PaymentError{Reason: ReasonMalformedHeader, Err: err}
	}

	start := time.Now()
	vr, err := u.facilitator.Verify(ctx, *payload, q.Requirement)
	if err != nil {
		metrics.ObserveFacilitator("verify", "error", time.Since(start))
		metrics.IncPaymentGate("invalid")
		log.Warn().Err(err).Msg("facilitator verify failed")
		return nil, &domain.PaymentError{Reason: err.Error(), Err: err}
	}
	payer := deref(vr.Payer)
	if !vr.IsValid {
		metrics.ObserveFacilitator("verify", "invalid", time.Since(start))
		metrics.IncPaymentGate("invalid")
		reason := deref(vr.InvalidReason)
		if reason == "" {
			reason = reasonInvalidPayment
		}
		log.Info().Str("reason", reason).Str("payer", logging.Redact(payer, u.dev)).Msg("payment proof invalid")
		return nil, &domain.PaymentError{Reason: reason, Payer: payer}
	}
	metrics.ObserveFacilitator("verify", "ok", time.Since(start))

	// The pending row makes an interrupted settlement visible to the reconciler.
	period := q.Subscription.NextPeriod(q.Service.Pricing.BillingCycle)
	now := time.Now().UTC()
	pending := &model.PaymentTransaction{
		ID:             uuid.NewString(),
		SubscriptionID: q.Subscription.ID,
		UserID:         q.Subscription.UserID,
		Amount:         q.Service.Pricing.Amount,
		Status:         model.PaymentStatusPending,
		PaymentMethod:  model.PaymentMethodExact,
		PeriodStart:    period.Start,
		PeriodEnd:      period.End,
		Payer:          payer,
		Network:        q.Requirement.Network,
		Metadata:       map[string]any{"resource": q.Requirement.Resource, "atomic_amount": q.Requirement.MaxAmountRequired},
		CreatedAt:      now,
	}
	if err := u.payments.Create(ctx, repository.NoTX, pending); err != nil {
		return nil, fmt.Errorf("record pending payment: %w", err)
	}
	metrics.IncPayment(string(model.PaymentStatusPending))

	start = time.Now()
	sr, err := u.facilitator.Settle(ctx, *payload, q.Requirement)
	if err != nil || sr == nil || !sr.Success {
		reason := reasonSettleFailed
		switch {
		case err != nil:
			reason = err.Error()
		case sr != nil && sr.ErrorReason != nil && *sr.ErrorReason != "":
			reason = *sr.ErrorReason
		}
		metrics.ObserveFacilitator("settle", "error", time.Since(start))
		metrics.IncPaymentGate("settle_failed")
		u.failPending(ctx, log, pending.ID, reason)
		log.Warn().Err(err).Str("reason", reason).Msg("settlement failed")
		return nil, &domain.PaymentError{Reason: reason, Payer: payer, Err: err}
	}
	metrics.ObserveFacilitator("settle", "ok", time.Since(start))
	if sr.Payer == nil && payer != "" {
		sr.Payer = &payer
	}
	if sr.Network == "" {
		sr.Network = q.Requirement.Network
	}

	result := &PaymentResult{Service: q.Service, Settlement: sr, Transaction: sr.Transaction}
	if err := u.payments.SetTxHash(ctx, repository.NoTX, pending.ID, sr.Transaction); err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			u.failPending(ctx, log, pending.ID, "duplicate transaction hash")
		}
		metrics.IncPaymentGate("renew_failed")
		log.Error().Err(err).Str("tx_hash", sr.Transaction).Msg("could not record settlement hash")
		return result, err
	}

	sub, err := u.lifecycle.RenewSubscriptionAfterPayment(ctx, ucport.RenewRequest{
		SubscriptionID:       q.Subscription.ID,
		Amount:               q.Service.Pricing.Amount,
		TxHash:               sr.Transaction,
		Payer:                payer,
		Network:              sr.Network,
		PendingTransactionID: pending.ID,
	})
	if err != nil {
		metrics.IncPaymentGate("renew_failed")
		log.Error().Err(err).Str("tx_hash", sr.Transaction).Msg("settled payment could not renew subscription")
		return result, err
	}

	metrics.IncPaymentGate("settled")
	log.Info().
		Str("tx_hash", sr.Transaction).
		Str("payer", logging.Redact(payer, u.dev)).
		Str("amount", q.Service.Pricing.Amount.String()).
		Msg("payment settled")
	result.Subscription = sub
	return result, nil
}

// ReconcilePending completes stale pending transactions whose settlement hash
// was recorded and fails those that never reached settlement.
func (u *paymentGateUC) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	defer logging.TraceDuration(u.log, "PaymentGateUC.ReconcilePending")()

	stale, err := u.payments.ListPendingOlderThan(ctx, repository.NoTX, time.Now().UTC().Add(-olderThan), 100)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range stale {
		log := logging.With(logging.WithSubscriptionID(ctx, p.SubscriptionID), u.log)
		if p.TransactionHash == nil || *p.TransactionHash == "" {
			u.failPending(ctx, log, p.ID, reasonOutcomeUnknown)
			n++
			continue
		}
		_, err := u.lifecycle.RenewSubscriptionAfterPayment(ctx, ucport.RenewRequest{
			SubscriptionID:       p.SubscriptionID,
			Amount:               p.Amount,
			TxHash:               *p.TransactionHash,
			Payer:                p.Payer,
			Network:              p.Network,
			PendingTransactionID: p.ID,
		})
		switch {
		case err == nil:
			n++
		case errors.Is(err, domain.ErrNotFound):
			// funds arrived for a subscription that can no longer be renewed
			u.failPending(ctx, log, p.ID, "subscription not renewable: "+err.Error())
			n++
		default:
			log.Warn().Err(err).Str("payment_id", p.ID).Msg("pending payment left for next run")
		}
	}
	return n, nil
}

func (u *paymentGateUC) failPending(ctx context.Context, log *zerolog.Logger, id, reason string) {
	if _, err := u.payments.MarkFailed(ctx, repository.NoTX, id, reason); err != nil {
		log.Error().Err(err).Str("payment_id", id).Msg("failed to mark payment as failed")
		return
	}
	metrics.IncPayment(string(model.PaymentStatusFailed))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
