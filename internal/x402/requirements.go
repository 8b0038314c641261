package x402

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
)

// AssetConfig is the settlement token of a network.
type AssetConfig struct {
	ChainID  int64
	Address  string
	Decimals int32
	Name     string
	Version  string
}

// Networks maps a network identifier to its settlement asset.
type Networks map[string]AssetConfig

// DefaultNetworks returns the USDC deployments on Base.
func DefaultNetworks() Networks {
	return Networks{
		"base": {
			ChainID:  8453,
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Decimals: 6,
			Name:     "USD Coin",
			Version:  "2",
		},
		"base-sepolia": {
			ChainID:  84532,
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Decimals: 6,
			Name:     "USDC",
			Version:  "2",
		},
	}
}

// RequirementBuilder turns prices into payment requirements. It holds only
// static configuration and is safe for concurrent use.
type RequirementBuilder struct {
	networks Networks
	payTo    string
}

func NewRequirementBuilder(networks Networks, payTo string) *RequirementBuilder {
	if networks == nil {
		networks = DefaultNetworks()
	}
	return &RequirementBuilder{networks: networks, payTo: payTo}
}

// Asset returns the settlement asset of network.
func (b *RequirementBuilder) Asset(network string) (AssetConfig, bool) {
	a, ok := b.networks[network]
	return a, ok
}

// Build returns the "exact" requirement for price on network.
func (b *RequirementBuilder) Build(price decimal.Decimal, network, resource, description string) (PaymentRequirements, error) {
	asset, ok := b.networks[network]
	if !ok {
		return PaymentRequirements{}, fmt.Errorf("%w: unknown network %q", domain.ErrInvalidPrice, network)
	}
	atomic, err := ToAtomic(price, asset.Decimals)
	if err != nil {
		return PaymentRequirements{}, err
	}
	return PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           network,
		MaxAmountRequired: atomic,
		Resource:          resource,
		Description:       description,
		MimeType:          "application/json",
		PayTo:             b.payTo,
		MaxTimeoutSeconds: DefaultMaxTimeoutSeconds,
		Asset:             asset.Address,
		Extra:             &PaymentExtra{Name: asset.Name, Version: asset.Version},
	}, nil
}

// ToAtomic converts a whole-unit price into the token's smallest unit,
// truncating anything below one atomic unit.
func ToAtomic(price decimal.Decimal, decimals int32) (string, error) {
	if price.IsNegative() || decimals < 0 {
		return "", domain.ErrInvalidPrice
	}
	return price.Shift(decimals).Truncate(0).String(), nil
}

// FromAtomic converts an atomic amount string back to whole units.
func FromAtomic(atomic string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(atomic)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrInvalidPrice, err)
	}
	return d.Shift(-decimals), nil
}

// ParsePrice accepts money strings such as "$9.99", "9.99" or "0.001".
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, domain.ErrInvalidPrice
	}
	return d, nil
}
