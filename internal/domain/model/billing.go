package model

import (
	"strings"
	"time"

	"x402-subscriptions/internal/domain"
)

type BillingCycle string

const (
	BillingCycleDaily   BillingCycle = "daily"
	BillingCycleWeekly  BillingCycle = "weekly"
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// ParseBillingCycle normalizes and validates a billing cycle name.
func ParseBillingCycle(s string) (BillingCycle, error) {
	c := BillingCycle(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", domain.ErrInvalidArgument
	}
	return c, nil
}

func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleDaily, BillingCycleWeekly, BillingCycleMonthly, BillingCycleYearly:
		return true
	}
	return false
}

// Advance returns t moved forward by one billing-cycle unit. Month and year
// arithmetic follows time.AddDate, so Jan 31 + 1 month normalizes to Mar 2/3.
func (c BillingCycle) Advance(t time.Time) time.Time {
	switch c {
	case BillingCycleDaily:
		return t.AddDate(0, 0, 1)
	case BillingCycleWeekly:
		return t.AddDate(0, 0, 7)
	case BillingCycleMonthly:
		return t.AddDate(0, 1, 0)
	case BillingCycleYearly:
		return t.AddDate(1, 0, 0)
	}
	return t
}

// BillingPeriod is a half-open [Start, End) window covered by one payment.
type BillingPeriod struct {
	Start time.Time
	End   time.Time
}
