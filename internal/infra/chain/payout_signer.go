// Package chain sends ERC-20 stablecoin payouts from the platform wallet.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/ports/adapter"
)

var _ adapter.PayoutSigner = (*ERC20PayoutSigner)(nil)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

// transfer(address,uint256) on USDC stays well below this.
const defaultGasLimit = 100_000

// EthClient is the subset of ethclient.Client used for payouts.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type SignerConfig struct {
	PrivateKeyHex string
	TokenAddress  string
	Decimals      int32
	GasLimit      uint64
	PollInterval  time.Duration
}

// ERC20PayoutSigner signs and submits token transfers with a local key.
type ERC20PayoutSigner struct {
	client   EthClient
	key      *ecdsa.PrivateKey
	from     common.Address
	token    common.Address
	decimals int32
	gasLimit uint64
	poll     time.Duration
	chainID  *big.Int
	abi      abi.ABI
	log      *zerolog.Logger
}

func NewERC20PayoutSigner(ctx context.Context, client EthClient, cfg SignerConfig, logger *zerolog.Logger) (*ERC20PayoutSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse payout key: %w", err)
	}
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, fmt.Errorf("%w: token %q", domain.ErrInvalidAddress, cfg.TokenAddress)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = defaultGasLimit
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	l := logger.With().Str("component", "ERC20PayoutSigner").Logger()
	s := &ERC20PayoutSigner{
		client:   client,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		token:    common.HexToAddress(cfg.TokenAddress),
		decimals: cfg.Decimals,
		gasLimit: cfg.GasLimit,
		poll:     cfg.PollInterval,
		chainID:  chainID,
		abi:      parsed,
		log:      &l,
	}
	s.log.Info().Str("from", s.from.Hex()).Str("token", s.token.Hex()).Str("chain_id", chainID.String()).Msg("payout signer ready")
	return s, nil
}

// From is the platform wallet funds are sent from.
func (s *ERC20PayoutSigner) From() string { return s.from.Hex() }

func (s *ERC20PayoutSigner) SignTransfer(ctx context.Context, to string, amount decimal.Decimal) (*adapter.SignedTransfer, error) {
	if !common.IsHexAddress(to) {
		return nil, domain.ErrInvalidAddress
	}
	value := amount.Shift(s.decimals).Truncate(0).BigInt()
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payout amount must be positive", domain.ErrInvalidArgument)
	}
	data, err := s.abi.Pack("transfer", common.HexToAddress(to), value)
	if err != nil {
		return nil, fmt.Errorf("pack transfer: %w", err)
	}
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}
	tx := types.NewTransaction(nonce, s.token, big.NewInt(0), s.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transfer: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	return &adapter.SignedTransfer{Hash: signed.Hash().Hex(), Raw: raw, Nonce: nonce}, nil
}

// Broadcast submits a transfer from SignTransfer. JSON-RPC errors are the
// node refusing the transaction; transport errors may hide a delivered one.
func (s *ERC20PayoutSigner) Broadcast(ctx context.Context, t *adapter.SignedTransfer) error {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(t.Raw); err != nil {
		return fmt.Errorf("%w: decode transfer: %v", domain.ErrTransferRejected, err)
	}
	err := s.client.SendTransaction(ctx, tx)
	var rpcErr rpc.Error
	switch {
	case err == nil:
	case strings.Contains(err.Error(), "already known"):
		s.log.Info().Str("tx_hash", t.Hash).Msg("payout already in the mempool")
	case errors.As(err, &rpcErr):
		return fmt.Errorf("%w: %v", domain.ErrTransferRejected, err)
	default:
		return fmt.Errorf("send transfer: %w", err)
	}
	s.log.Info().Str("tx_hash", t.Hash).Uint64("nonce", t.Nonce).Msg("payout submitted")
	return nil
}

func (s *ERC20PayoutSigner) WaitForReceipt(ctx context.Context, txHash string) (bool, error) {
	hash := common.HexToHash(txHash)
	t := time.NewTicker(s.poll)
	defer t.Stop()
	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt.Status == types.ReceiptStatusSuccessful, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			s.log.Warn().Err(err).Str("tx_hash", txHash).Msg("receipt lookup failed")
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.C:
		}
	}
}
