// Package x402 holds the v1 wire types of the x402 payment protocol, the
// requirement builder and an HTTP facilitator client.
package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	Version = 1

	SchemeExact = "exact"

	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"

	// DefaultMaxTimeoutSeconds bounds how long a settlement may take.
	DefaultMaxTimeoutSeconds = 60
)

// PaymentRequirements describes what a client must pay to access a resource.
type PaymentRequirements struct {
	Scheme            string        `json:"scheme"`
	Network           string        `json:"network"`
	MaxAmountRequired string        `json:"maxAmountRequired"`
	Resource          string        `json:"resource"`
	Description       string        `json:"description"`
	MimeType          string        `json:"mimeType,omitempty"`
	PayTo             string        `json:"payTo"`
	MaxTimeoutSeconds int           `json:"maxTimeoutSeconds"`
	Asset             string        `json:"asset"`
	Extra             *PaymentExtra `json:"extra,omitempty"`
}

// PaymentExtra carries the token's EIP-712 domain fields.
type PaymentExtra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PaymentPayload is the decoded X-PAYMENT header. Payload stays opaque; only
// the facilitator interprets the signature.
type PaymentPayload struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     string         `json:"network"`
	Payload     map[string]any `json:"payload"`
}

type VerifyResponse struct {
	IsValid       bool    `json:"isValid"`
	InvalidReason *string `json:"invalidReason,omitempty"`
	Payer         *string `json:"payer,omitempty"`
}

type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason *string `json:"errorReason,omitempty"`
	Transaction string  `json:"transaction"`
	Network     string  `json:"network"`
	Payer       *string `json:"payer,omitempty"`
}

// PaymentRequiredResponse is the body of every 402 answer.
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Payer       string                `json:"payer,omitempty"`
}

// EncodeToBase64String renders the receipt for the X-PAYMENT-RESPONSE header.
func (s *SettleResponse) EncodeToBase64String() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeSettleResponse is the inverse of EncodeToBase64String.
func DecodeSettleResponse(encoded string) (*SettleResponse, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	var s SettleResponse
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal settle response: %w", err)
	}
	return &s, nil
}

// DecodePaymentHeader decodes a base64 JSON payment payload.
func DecodePaymentHeader(encoded string) (*PaymentPayload, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	var p PaymentPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment payload: %w", err)
	}
	if p.Scheme == "" || p.Network == "" || len(p.Payload) == 0 {
		return nil, fmt.Errorf("payment payload is incomplete")
	}
	p.X402Version = Version
	return &p, nil
}

// EncodePaymentHeader is used by clients and tests to build X-PAYMENT values.
func EncodePaymentHeader(p PaymentPayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
