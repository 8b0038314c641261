package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // proof verified, settlement in flight
	PaymentStatusCompleted PaymentStatus = "completed" // settled on chain
	PaymentStatusFailed    PaymentStatus = "failed"    // settlement rejected or timed out
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethodExact is the only x402 scheme accepted.
const PaymentMethodExact = "exact"

// PaymentTransaction records one settlement attempt. WithdrawalID stays nil
// until the row is swept into a payout.
type PaymentTransaction struct {
	ID              string          `json:"id"`
	SubscriptionID  string          `json:"subscription_id"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionHash *string         `json:"transaction_hash,omitempty"`
	Status          PaymentStatus   `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	PeriodStart     time.Time       `json:"billing_period_start"`
	PeriodEnd       time.Time       `json:"billing_period_end"`
	FailureReason   *string         `json:"failure_reason,omitempty"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	WithdrawalID    *string         `json:"withdrawal_id,omitempty"`
	Payer           string          `json:"payer,omitempty"`
	Network         string          `json:"network,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
