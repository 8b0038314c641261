package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
)

type ServiceStatus string

const (
	ServiceStatusActive     ServiceStatus = "active"
	ServiceStatusInactive   ServiceStatus = "inactive"
	ServiceStatusDeprecated ServiceStatus = "deprecated"
)

func (s ServiceStatus) Valid() bool {
	switch s {
	case ServiceStatusActive, ServiceStatusInactive, ServiceStatusDeprecated:
		return true
	}
	return false
}

const DefaultNetwork = "base-sepolia"

// Pricing is what a subscriber pays per billing cycle, in whole USD units.
type Pricing struct {
	Amount       decimal.Decimal `json:"amount"`
	BillingCycle BillingCycle    `json:"billing_cycle"`
}

// Service is an offering published by a provider.
type Service struct {
	ID              string         `json:"id"`
	ProviderID      string         `json:"provider_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Pricing         Pricing        `json:"pricing"`
	Features        []string       `json:"features,omitempty"`
	TrialPeriodDays int            `json:"trial_period_days"`
	Status          ServiceStatus  `json:"status"`
	Network         string         `json:"network"`
	Endpoint        string         `json:"endpoint,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewService validates and constructs a service in active status.
func NewService(id, providerID, name, description string, pricing Pricing, trialDays int) (*Service, error) {
	name = strings.TrimSpace(name)
	if id == "" || providerID == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if pricing.Amount.IsNegative() || !pricing.BillingCycle.Valid() || trialDays < 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Service{
		ID:              id,
		ProviderID:      providerID,
		Name:            name,
		Description:     description,
		Pricing:         pricing,
		TrialPeriodDays: trialDays,
		Status:          ServiceStatusActive,
		Network:         DefaultNetwork,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
