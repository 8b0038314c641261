package sched

import (
	"context"
	"time"
)

type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// ExpiryJob moves active and trial subscriptions past their end date to expired.
type ExpiryJob struct {
	subs Expirer
	now  func() time.Time
}

func NewExpiryJob(subs Expirer) *ExpiryJob {
	return &ExpiryJob{subs: subs, now: func() time.Time { return time.Now().UTC() }}
}

func (j *ExpiryJob) Name() string { return "expiry" }

func (j *ExpiryJob) Run(ctx context.Context) (int, error) {
	return j.subs.ExpireOverdue(ctx, j.now())
}
