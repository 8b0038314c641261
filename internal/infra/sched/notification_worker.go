package sched

import (
	"context"
	"time"
)

type DueNotifier interface {
	NotifyPaymentDue(ctx context.Context, now time.Time) (int, error)
}

// BillingDueJob sends payment-due webhooks for subscriptions whose next
// billing date has passed.
type BillingDueJob struct {
	subs DueNotifier
	now  func() time.Time
}

func NewBillingDueJob(subs DueNotifier) *BillingDueJob {
	return &BillingDueJob{subs: subs, now: func() time.Time { return time.Now().UTC() }}
}

func (j *BillingDueJob) Name() string { return "billing_due" }

func (j *BillingDueJob) Run(ctx context.Context) (int, error) {
	return j.subs.NotifyPaymentDue(ctx, j.now())
}
