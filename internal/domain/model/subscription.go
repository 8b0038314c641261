package model

import (
	"time"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusInactive  SubscriptionStatus = "inactive"
)

// OpenStatuses are the statuses counted by the one-per-(user, service) rule.
var OpenStatuses = []SubscriptionStatus{SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusTrial}

// BillableStatuses are the statuses treated as "active" for billing queries.
var BillableStatuses = []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusTrial}

func (s SubscriptionStatus) IsOpen() bool {
	return s == SubscriptionStatusPending || s == SubscriptionStatusActive || s == SubscriptionStatusTrial
}

func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

const DefaultCancellationReason = "User requested"

// PaymentHistoryEntry is appended to a subscription on every successful renewal.
type PaymentHistoryEntry struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	TxHash        string          `json:"tx_hash"`
	PaidAt        time.Time       `json:"paid_at"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
}

// Subscription binds a user to a service. EndDate and NextBillingDate only
// move through billing-cycle arithmetic.
type Subscription struct {
	ID                 string                `json:"id"`
	UserID             string                `json:"user_id"`
	ServiceID          string                `json:"service_id"`
	ProviderID         string                `json:"provider_id"`
	Status             SubscriptionStatus    `json:"status"`
	StartDate          time.Time             `json:"start_date"`
	EndDate            time.Time             `json:"end_date"`
	NextBillingDate    time.Time             `json:"next_billing_date"`
	TrialEndDate       *time.Time            `json:"trial_end_date,omitempty"`
	AmountPaid         decimal.Decimal       `json:"amount_paid"`
	AutoRenew          bool                  `json:"auto_renew"`
	CancellationDate   *time.Time            `json:"cancellation_date,omitempty"`
	CancellationReason *string               `json:"cancellation_reason,omitempty"`
	PaymentHistory     []PaymentHistoryEntry `json:"payment_history"`
	Metadata           map[string]any        `json:"metadata,omitempty"`
	Version            int64                 `json:"version"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// NewSubscription computes the first billing window for svc starting at start.
// With trial set and a trial configured on the service, the window ends when
// the trial does and the subscription starts in trial status.
func NewSubscription(id, userID string, svc *Service, start time.Time, trial bool) (*Subscription, error) {
	if id == "" || userID == "" || svc == nil {
		return nil, domain.ErrInvalidArgument
	}
	if !svc.Pricing.BillingCycle.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	start = start.UTC()
	s := &Subscription{
		ID:             id,
		UserID:         userID,
		ServiceID:      svc.ID,
		ProviderID:     svc.ProviderID,
		Status:         SubscriptionStatusPending,
		StartDate:      start,
		AmountPaid:     decimal.Zero,
		AutoRenew:      true,
		PaymentHistory: []PaymentHistoryEntry{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if trial && svc.TrialPeriodDays > 0 {
		trialEnd := start.AddDate(0, 0, svc.TrialPeriodDays)
		s.Status = SubscriptionStatusTrial
		s.TrialEndDate = &trialEnd
		s.EndDate = trialEnd
		s.NextBillingDate = trialEnd
		return s, nil
	}
	s.EndDate = svc.Pricing.BillingCycle.Advance(start)
	s.NextBillingDate = s.EndDate
	return s, nil
}

// NextPeriod is the window a payment received now would cover.
func (s *Subscription) NextPeriod(cycle BillingCycle) BillingPeriod {
	return BillingPeriod{Start: s.EndDate, End: cycle.Advance(s.EndDate)}
}
