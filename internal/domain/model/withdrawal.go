package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending WithdrawalStatus = "pending"
	WithdrawalStatusPaid    WithdrawalStatus = "paid"
	WithdrawalStatusFailed  WithdrawalStatus = "failed"
)

// Withdrawal is a payout batch to a provider wallet. Paid and failed are final.
type Withdrawal struct {
	ID              string           `json:"id"`
	ProviderID      string           `json:"provider_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Status          WithdrawalStatus `json:"status"`
	TransactionHash *string          `json:"transaction_hash,omitempty"`
	FailureReason   *string          `json:"failure_reason,omitempty"`
	RequestedAt     time.Time        `json:"requested_at"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// EligibleTransaction is a completed, unwithdrawn payment owned by a provider.
type EligibleTransaction struct {
	ID          string
	Amount      decimal.Decimal
	ProcessedAt time.Time
}
