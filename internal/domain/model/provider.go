package model

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"x402-subscriptions/internal/domain"
)

// ServiceProvider is a seller that gets paid out to WalletAddress.
type ServiceProvider struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	WalletAddress string    `json:"wallet_address"`
	WebhookURL    *string   `json:"webhook_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizeWallet validates an EVM address and returns its checksummed form.
func NormalizeWallet(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", domain.ErrInvalidAddress
	}
	a := common.HexToAddress(addr)
	if a == (common.Address{}) {
		return "", domain.ErrInvalidAddress
	}
	return a.Hex(), nil
}

// NewServiceProvider validates and constructs a provider.
func NewServiceProvider(id, name, wallet string, webhookURL *string) (*ServiceProvider, error) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	if webhookURL != nil && strings.TrimSpace(*webhookURL) == "" {
		webhookURL = nil
	}
	now := time.Now().UTC()
	return &ServiceProvider{
		ID:            id,
		Name:          name,
		WalletAddress: w,
		WebhookURL:    webhookURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
