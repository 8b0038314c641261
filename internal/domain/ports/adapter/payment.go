package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/x402"
)

// Facilitator verifies payment proofs and settles them on chain on behalf of
// the payee.
type Facilitator interface {
	Verify(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error)
	Settle(ctx context.Context, payload x402.PaymentPayload, req x402.PaymentRequirements) (*x402.SettleResponse, error)
}

// SignedTransfer is a payout transfer signed but not yet broadcast. Its hash
// is final, so it can be recorded before anything reaches the chain.
type SignedTransfer struct {
	Hash  string
	Raw   []byte
	Nonce uint64
}

// PayoutSigner moves stablecoin from the platform wallet to a provider wallet.
type PayoutSigner interface {
	// SignTransfer builds and signs the transfer without submitting it.
	SignTransfer(ctx context.Context, to string, amount decimal.Decimal) (*SignedTransfer, error)
	// Broadcast submits a signed transfer. A definite refusal wraps
	// domain.ErrTransferRejected; other errors leave the outcome unknown.
	Broadcast(ctx context.Context, t *SignedTransfer) error
	// WaitForReceipt blocks until the transfer is mined or ctx ends. ok reports
	// the receipt status; err is returned when the outcome is still unknown.
	WaitForReceipt(ctx context.Context, txHash string) (ok bool, err error)
}
