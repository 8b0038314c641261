package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/adapter"
	"x402-subscriptions/internal/domain/ports/repository"
	ucport "x402-subscriptions/internal/domain/ports/usecase"
	"x402-subscriptions/internal/infra/logging"
	"x402-subscriptions/internal/infra/metrics"
)

// Compile-time checks
var (
	_ SubscriptionUseCase        = (*subscriptionUC)(nil)
	_ ucport.SubscriptionManager = (*subscriptionUC)(nil)
)

const defaultExpiringDays = 3

// SubscriptionUseCase is the subscription lifecycle manager.
type SubscriptionUseCase interface {
	CreateSubscription(ctx context.Context, userID, serviceID string, startDate time.Time, trial bool) (*model.Subscription, error)
	RenewSubscriptionAfterPayment(ctx context.Context, req ucport.RenewRequest) (*model.Subscription, error)
	CancelSubscription(ctx context.Context, id, reason string) (*model.Subscription, error)
	SuspendSubscription(ctx context.Context, id string) (*model.Subscription, error)
	ResumeSubscription(ctx context.Context, id string) (*model.Subscription, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
	NotifyPaymentDue(ctx context.Context, now time.Time) (int, error)

	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	GetUserSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error)
	GetActiveUserSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error)
	GetByService(ctx context.Context, serviceID string) ([]*model.Subscription, error)
	GetSubscriptionsDueForBilling(ctx context.Context, now time.Time) ([]*model.Subscription, error)
	GetExpiringSubscriptions(ctx context.Context, daysAhead int) ([]*model.Subscription, error)
	GetSubscriptionTransactions(ctx context.Context, id string) ([]*model.PaymentTransaction, error)
}

// RouteIndex receives payable subscriptions as they appear and disappear.
type RouteIndex interface {
	Upsert(sub *model.Subscription, svc *model.Service)
	Remove(subscriptionID string)
}

type subscriptionUC struct {
	subs      repository.SubscriptionRepository
	services  repository.ServiceRepository
	providers repository.ServiceProviderRepository
	payments  repository.PaymentTransactionRepository
	tm        repository.TransactionManager
	notifier  adapter.Notifier
	index     RouteIndex
	log       *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	services repository.ServiceRepository,
	providers repository.ServiceProviderRepository,
	payments repository.PaymentTransactionRepository,
	tm repository.TransactionManager,
	notifier adapter.Notifier,
	index RouteIndex,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{
		subs:      subs,
		services:  services,
		providers: providers,
		payments:  payments,
		tm:        tm,
		notifier:  notifier,
		index:     index,
		log:       &l,
	}
}

func (u *subscriptionUC) CreateSubscription(ctx context.Context, userID, serviceID string, startDate time.Time, trial bool) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.CreateSubscription")()

	userID = strings.TrimSpace(userID)
	if userID == "" || serviceID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if startDate.IsZero() {
		startDate = time.Now().UTC()
	}

	var (
		sub *model.Subscription
		svc *model.Service
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		svc, err = u.services.FindByID(ctx, tx, serviceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrServiceNotFound
			}
			return err
		}
		if svc.Status != model.ServiceStatusActive {
			return fmt.Errorf("%w: service %s is %s", domain.ErrInvalidArgument, svc.ID, svc.Status)
		}

		existing, err := u.subs.FindOpenByUserAndService(ctx, tx, userID, serviceID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateSubscription
		}

		sub, err = model.NewSubscription(uuid.NewString(), userID, svc, startDate, trial)
		if err != nil {
			return err
		}
		return u.subs.Create(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}

	if u.index != nil {
		u.index.Upsert(sub, svc)
	}
	metrics.IncSubscriptionEvent(string(adapter.EventSubscriptionCreated))
	u.log.Info().
		Str("subscription_id", sub.ID).
		Str("service_id", svc.ID).
		Str("status", string(sub.Status)).
		Time("end_date", sub.EndDate).
		Msg("subscription created")
	u.notify(ctx, sub, adapter.EventSubscriptionCreated, nil)
	return sub, nil
}

// RenewSubscriptionAfterPayment advances the billing window by one cycle from
// the current end date. The subscription row is locked for the duration of the
// transaction and the write is version-checked, so concurrent renewals cannot
// both advance from the same end date. A transaction hash that was already
// recorded yields domain.ErrDuplicateTransaction and leaves the window alone.
func (u *subscriptionUC) RenewSubscriptionAfterPayment(ctx context.Context, req ucport.RenewRequest) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.RenewSubscriptionAfterPayment")()

	if req.SubscriptionID == "" || req.Amount.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(logging.WithSubscriptionID(ctx, req.SubscriptionID), u.log)

	var (
		renewed *model.Subscription
		entry   model.PaymentHistoryEntry
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByID(ctx, tx, req.SubscriptionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrSubscriptionNotFound
			}
			return err
		}
		if !sub.Status.IsOpen() {
			return fmt.Errorf("%w: subscription is %s and cannot be renewed", domain.ErrSubscriptionNotFound, sub.Status)
		}
		svc, err := u.services.FindByID(ctx, tx, sub.ServiceID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrServiceNotFound
			}
			return err
		}

		if req.TxHash != "" {
			prev, err := u.payments.FindByTxHash(ctx, tx, req.TxHash)
			switch {
			case err == nil && prev.ID != req.PendingTransactionID:
				return domain.ErrDuplicateTransaction
			case err != nil && !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}

		period := sub.NextPeriod(svc.Pricing.BillingCycle)
		now := time.Now().UTC()

		txID := req.PendingTransactionID
		if txID != "" {
			ok, err := u.payments.Complete(ctx, tx, txID, req.TxHash, period, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: payment transaction %s is no longer pending", domain.ErrConcurrentUpdate, txID)
			}
		} else {
			txID = uuid.NewString()
			p := &model.PaymentTransaction{
				ID:             txID,
				SubscriptionID: sub.ID,
				UserID:         sub.UserID,
				Amount:         req.Amount,
				Status:         model.PaymentStatusCompleted,
				PaymentMethod:  model.PaymentMethodExact,
				PeriodStart:    period.Start,
				PeriodEnd:      period.End,
				ProcessedAt:    &now,
				Payer:          req.Payer,
				Network:        req.Network,
				CreatedAt:      now,
			}
			if req.TxHash != "" {
				h := req.TxHash
				p.TransactionHash = &h
			}
			if err := u.payments.Create(ctx, tx, p); err != nil {
				return err
			}
		}

		entry = model.PaymentHistoryEntry{
			TransactionID: txID,
			Amount:        req.Amount,
			TxHash:        req.TxHash,
			PaidAt:        now,
			PeriodStart:   period.Start,
			PeriodEnd:     period.End,
		}
		if err := u.subs.AdvanceBilling(ctx, tx, repository.AdvanceBilling{
			SubscriptionID:  sub.ID,
			ExpectedVersion: sub.Version,
			NewEndDate:      period.End,
			Amount:          req.Amount,
			Entry:           entry,
		}); err != nil {
			return err
		}

		sub.Status = model.SubscriptionStatusActive
		sub.EndDate = period.End
		sub.NextBillingDate = period.End
		sub.AmountPaid = sub.AmountPaid.Add(req.Amount)
		sub.PaymentHistory = append(sub.PaymentHistory, entry)
		sub.Version++
		sub.UpdatedAt = now
		renewed = sub
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			log.Warn().Str("tx_hash", req.TxHash).Msg("renewal ignored: transaction already recorded")
		}
		return nil, err
	}

	metrics.IncSubscriptionEvent(string(adapter.EventSubscriptionRenewed))
	metrics.IncPayment(string(model.PaymentStatusCompleted))
	metrics.AddPaymentRevenue(req.Network, req.Amount)
	log.Info().
		Str("tx_hash", req.TxHash).
		Str("amount", req.Amount.String()).
		Time("end_date", renewed.EndDate).
		Msg("subscription renewed")
	u.notify(ctx, renewed, adapter.EventSubscriptionRenewed, map[string]any{
		"transaction_id": entry.TransactionID,
		"amount":         req.Amount.String(),
		"tx_hash":        req.TxHash,
		"period_start":   entry.PeriodStart,
		"period_end":     entry.PeriodEnd,
	})
	return renewed, nil
}

func (u *subscriptionUC) CancelSubscription(ctx context.Context, id, reason string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.CancelSubscription")()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = model.DefaultCancellationReason
	}
	ok, err := u.subs.Cancel(ctx, repository.NoTX, id, reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	sub, err := u.getSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: subscription is already %s", domain.ErrInvalidTransition, sub.Status)
	}

	if u.index != nil {
		u.index.Remove(id)
	}
	metrics.IncSubscriptionEvent(string(adapter.EventSubscriptionCancelled))
	u.log.Info().Str("subscription_id", id).Str("reason", reason).Msg("subscription cancelled")
	u.notify(ctx, sub, adapter.EventSubscriptionCancelled, map[string]any{"reason": reason})
	return sub, nil
}

func (u *subscriptionUC) SuspendSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	from := []model.SubscriptionStatus{model.SubscriptionStatusPending, model.SubscriptionStatusActive, model.SubscriptionStatusTrial}
	sub, err := u.transition(ctx, id, from, model.SubscriptionStatusSuspended, adapter.EventSubscriptionSuspended)
	if err != nil {
		return nil, err
	}
	if u.index != nil {
		u.index.Remove(id)
	}
	return sub, nil
}

// ResumeSubscription returns a suspended subscription to active. It fails with
// domain.ErrDuplicateSubscription when the user opened another subscription
// for the same service in the meantime.
func (u *subscriptionUC) ResumeSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	from := []model.SubscriptionStatus{model.SubscriptionStatusSuspended}
	sub, err := u.transition(ctx, id, from, model.SubscriptionStatusActive, adapter.EventSubscriptionResumed)
	if err != nil {
		return nil, err
	}
	if u.index != nil {
		if svc, err := u.services.FindByID(ctx, repository.NoTX, sub.ServiceID); err == nil {
			u.index.Upsert(sub, svc)
		}
	}
	return sub, nil
}

func (u *subscriptionUC) transition(ctx context.Context, id string, from []model.SubscriptionStatus, to model.SubscriptionStatus, ev adapter.EventType) (*model.Subscription, error) {
	ok, err := u.subs.UpdateStatus(ctx, repository.NoTX, id, from, to)
	if err != nil {
		return nil, err
	}
	sub, err := u.getSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, sub.Status, to)
	}
	metrics.IncSubscriptionEvent(string(ev))
	u.log.Info().Str("subscription_id", id).Str("status", string(to)).Msg("subscription status changed")
	u.notify(ctx, sub, ev, nil)
	return sub, nil
}

// ExpireOverdue moves active and trial subscriptions past their end date to
// expired and returns how many were expired.
func (u *subscriptionUC) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ExpireOverdue")()

	expired, err := u.subs.ExpireOverdue(ctx, repository.NoTX, now.UTC())
	if err != nil {
		return 0, err
	}
	for _, sub := range expired {
		if u.index != nil {
			u.index.Remove(sub.ID)
		}
		u.notify(ctx, sub, adapter.EventSubscriptionExpired, nil)
	}
	metrics.AddSubscriptionEvents(string(adapter.EventSubscriptionExpired), len(expired))
	if len(expired) > 0 {
		u.log.Info().Int("count", len(expired)).Msg("expired overdue subscriptions")
	}
	return len(expired), nil
}

// NotifyPaymentDue tells providers about auto-renewing subscriptions whose next
// billing date has passed. Renewal itself happens when the subscriber pays
// through the pay route.
func (u *subscriptionUC) NotifyPaymentDue(ctx context.Context, now time.Time) (int, error) {
	due, err := u.GetSubscriptionsDueForBilling(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sub := range due {
		if !sub.AutoRenew {
			continue
		}
		u.notify(ctx, sub, adapter.EventPaymentDue, map[string]any{
			"next_billing_date": sub.NextBillingDate,
		})
		n++
	}
	return n, nil
}

func (u *subscriptionUC) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	return u.getSubscription(ctx, id)
}

func (u *subscriptionUC) GetUserSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return u.subs.ListByUser(ctx, repository.NoTX, userID, nil)
}

// GetActiveUserSubscriptions counts trial subscriptions as active.
func (u *subscriptionUC) GetActiveUserSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return u.subs.ListByUser(ctx, repository.NoTX, userID, model.BillableStatuses)
}

func (u *subscriptionUC) GetByService(ctx context.Context, serviceID string) ([]*model.Subscription, error) {
	return u.subs.ListByService(ctx, repository.NoTX, serviceID)
}

func (u *subscriptionUC) GetSubscriptionsDueForBilling(ctx context.Context, now time.Time) ([]*model.Subscription, error) {
	return u.subs.ListDueForBilling(ctx, repository.NoTX, now.UTC())
}

func (u *subscriptionUC) GetExpiringSubscriptions(ctx context.Context, daysAhead int) ([]*model.Subscription, error) {
	if daysAhead <= 0 {
		daysAhead = defaultExpiringDays
	}
	now := time.Now().UTC()
	return u.subs.ListExpiring(ctx, repository.NoTX, now, now.AddDate(0, 0, daysAhead))
}

func (u *subscriptionUC) GetSubscriptionTransactions(ctx context.Context, id string) ([]*model.PaymentTransaction, error) {
	if _, err := u.getSubscription(ctx, id); err != nil {
		return nil, err
	}
	return u.payments.ListBySubscription(ctx, repository.NoTX, id)
}

func (u *subscriptionUC) getSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := u.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// notify delivers ev to the provider's webhook, if it has one. Lookup
// failures are logged and never fail the caller.
func (u *subscriptionUC) notify(ctx context.Context, sub *model.Subscription, typ adapter.EventType, data any) {
	if u.notifier == nil || u.providers == nil {
		return
	}
	p, err := u.providers.FindByID(ctx, repository.NoTX, sub.ProviderID)
	if err != nil {
		u.log.Warn().Err(err).Str("provider_id", sub.ProviderID).Msg("webhook skipped: provider lookup failed")
		return
	}
	if p.WebhookURL == nil || *p.WebhookURL == "" {
		return
	}
	u.notifier.Notify(ctx, *p.WebhookURL, adapter.Event{
		Type:           typ,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		ServiceID:      sub.ServiceID,
		Data:           data,
		Timestamp:      time.Now().UTC(),
	})
}
