package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/infra/metrics"
)

type Reconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// ReconcileJob settles pending payment transactions and withdrawals older than
// staleAfter. Both sides run even if the first one fails.
type ReconcileJob struct {
	payments    Reconciler
	withdrawals Reconciler
	staleAfter  time.Duration
}

func NewReconcileJob(payments, withdrawals Reconciler, staleAfter time.Duration) *ReconcileJob {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &ReconcileJob{payments: payments, withdrawals: withdrawals, staleAfter: staleAfter}
}

func (j *ReconcileJob) Name() string { return "reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) (int, error) {
	var errs []error
	total := 0
	if j.payments != nil {
		n, err := j.payments.ReconcilePending(ctx, j.staleAfter)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("payments: %w", err))
		}
	}
	if j.withdrawals != nil {
		n, err := j.withdrawals.ReconcilePending(ctx, j.staleAfter)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("withdrawals: %w", err))
		}
	}
	return total, errors.Join(errs...)
}

type StatusCounter interface {
	CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error)
}

// GaugeJob refreshes the subscriptions-by-status gauge.
type GaugeJob struct {
	subs StatusCounter
}

func NewGaugeJob(subs StatusCounter) *GaugeJob { return &GaugeJob{subs: subs} }

func (j *GaugeJob) Name() string { return "subscription_gauge" }

func (j *GaugeJob) Run(ctx context.Context) (int, error) {
	counts, err := j.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return 0, err
	}
	metrics.SetSubscriptionsTotal(counts)
	return 0, nil
}
