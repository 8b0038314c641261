package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain/ports/adapter"
)

var _ adapter.PayoutSigner = (*NoopPayoutSigner)(nil)

// NoopPayoutSigner fakes transfers for local runs without a funded wallet.
// Hashes are deterministic per call sequence and every receipt succeeds.
type NoopPayoutSigner struct {
	mu  sync.Mutex
	seq int64
}

func NewNoopPayoutSigner() *NoopPayoutSigner { return &NoopPayoutSigner{} }

func (s *NoopPayoutSigner) SignTransfer(ctx context.Context, to string, amount decimal.Decimal) (*adapter.SignedTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	seed := fmt.Sprintf("%s|%s|%d|%d", to, amount.String(), s.seq, time.Now().UnixNano())
	return &adapter.SignedTransfer{
		Hash:  crypto.Keccak256Hash([]byte(seed)).Hex(),
		Raw:   []byte(seed),
		Nonce: uint64(s.seq),
	}, nil
}

func (s *NoopPayoutSigner) Broadcast(ctx context.Context, t *adapter.SignedTransfer) error {
	return nil
}

func (s *NoopPayoutSigner) WaitForReceipt(ctx context.Context, txHash string) (bool, error) {
	return true, nil
}
