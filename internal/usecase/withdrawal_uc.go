package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/adapter"
	"x402-subscriptions/internal/domain/ports/repository"
	ucport "x402-subscriptions/internal/domain/ports/usecase"
	"x402-subscriptions/internal/infra/logging"
	"x402-subscriptions/internal/infra/metrics"
)

var (
	_ WithdrawalUseCase       = (*withdrawalUC)(nil)
	_ ucport.PayoutReconciler = (*withdrawalUC)(nil)
)

const (
	withdrawLeaseTTL      = 5 * time.Minute
	reconcileReceiptWait  = 10 * time.Second
	defaultReceiptTimeout = 2 * time.Minute
)

// WithdrawalUseCase pays providers out of their eligible balance.
type WithdrawalUseCase interface {
	// Withdraw returns the withdrawal in paid status, or in pending status when
	// the transfer was submitted but not yet mined. A failed transfer returns
	// the failed withdrawal together with domain.ErrPayoutFailed.
	Withdraw(ctx context.Context, wallet string, amount decimal.Decimal) (*model.Withdrawal, error)
	MaxPayout(ctx context.Context, providerID string) (decimal.Decimal, error)
	ListWithdrawals(ctx context.Context, providerID string) ([]*model.Withdrawal, error)
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

type WithdrawalConfig struct {
	ReceiptTimeout time.Duration
}

type withdrawalUC struct {
	providers   repository.ServiceProviderRepository
	payments    repository.PaymentTransactionRepository
	withdrawals repository.WithdrawalRepository
	tm          repository.TransactionManager
	advisory    repository.AdvisoryLocker
	lease       adapter.Locker
	signer      adapter.PayoutSigner
	notifier    adapter.Notifier
	cfg         WithdrawalConfig
	log         *zerolog.Logger
	dev         bool
}

func NewWithdrawalUseCase(
	providers repository.ServiceProviderRepository,
	payments repository.PaymentTransactionRepository,
	withdrawals repository.WithdrawalRepository,
	tm repository.TransactionManager,
	advisory repository.AdvisoryLocker,
	lease adapter.Locker,
	signer adapter.PayoutSigner,
	notifier adapter.Notifier,
	cfg WithdrawalConfig,
	logger *zerolog.Logger,
	dev bool,
) *withdrawalUC {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	l := logger.With().Str("component", "WithdrawalUC").Logger()
	return &withdrawalUC{
		providers:   providers,
		payments:    payments,
		withdrawals: withdrawals,
		tm:          tm,
		advisory:    advisory,
		lease:       lease,
		signer:      signer,
		notifier:    notifier,
		cfg:         cfg,
		log:         &l,
		dev:         dev,
	}
}

func withdrawKey(providerID string) string { return "withdraw:" + providerID }

// SelectClaim returns the oldest-first prefix of eligible whose sum covers
// amount, and that sum.
func SelectClaim(eligible []model.EligibleTransaction, amount decimal.Decimal) ([]string, decimal.Decimal) {
	ids := make([]string, 0, len(eligible))
	sum := decimal.Zero
	for _, e := range eligible {
		if sum.GreaterThanOrEqual(amount) {
			break
		}
		ids = append(ids, e.ID)
		sum = sum.Add(e.Amount)
	}
	return ids, sum
}

func (u *withdrawalUC) Withdraw(ctx context.Context, wallet string, amount decimal.Decimal) (*model.Withdrawal, error) {
	defer logging.TraceDuration(u.log, "WithdrawalUC.Withdraw")()

	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	provider, err := u.providers.FindByWallet(ctx, repository.NoTX, wallet)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, err
	}
	log := logging.With(logging.WithProviderID(ctx, provider.ID), u.log)

	if u.lease != nil {
		token, err := u.lease.TryLock(ctx, withdrawKey(provider.ID), withdrawLeaseTTL)
		switch {
		case errors.Is(err, domain.ErrLockNotAcquired):
			metrics.IncWithdrawal("rejected")
			return nil, domain.ErrWithdrawalInProgress
		case err != nil:
			// the advisory lock below still serializes the claim
			log.Warn().Err(err).Msg("withdrawal lease unavailable")
		default:
			defer func() {
				if err := u.lease.Unlock(context.WithoutCancel(ctx), withdrawKey(provider.ID), token); err != nil {
					log.Warn().Err(err).Msg("failed to release withdrawal lease")
				}
			}()
		}
	}

	var w *model.Withdrawal
	err = u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.advisory.AdvisoryXactLock(ctx, tx, withdrawKey(provider.ID)); err != nil {
			return err
		}
		eligible, err := u.payments.ListEligibleByProvider(ctx, tx, provider.ID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, e := range eligible {
			total = total.Add(e.Amount)
		}
		if !total.IsPositive() {
			return domain.ErrNoFundsAvailable
		}
		if amount.GreaterThan(total) {
			return &domain.InsufficientFundsError{Requested: amount, Available: total}
		}

		ids, claimed := SelectClaim(eligible, amount)
		now := time.Now().UTC()
		w = &model.Withdrawal{
			ID:          uuid.NewString(),
			ProviderID:  provider.ID,
			Amount:      amount,
			Status:      model.WithdrawalStatusPending,
			RequestedAt: now,
			UpdatedAt:   now,
			Metadata: map[string]any{
				"wallet_address":       provider.WalletAddress,
				"claimed_transactions": len(ids),
				"claimed_total":        claimed.String(),
			},
		}
		if err := u.withdrawals.Create(ctx, tx, w); err != nil {
			return err
		}
		n, err := u.payments.ClaimForWithdrawal(ctx, tx, w.ID, ids)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("%w: claimed %d of %d transactions", domain.ErrConcurrentUpdate, n, len(ids))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			metrics.IncWithdrawal("rejected")
		}
		return nil, err
	}
	metrics.IncWithdrawal("requested")
	log.Info().Str("withdrawal_id", w.ID).Str("amount", amount.String()).Msg("withdrawal claimed eligible transactions")

	// Past this point the claim is committed; finish the bookkeeping even if
	// the caller goes away.
	bg := context.WithoutCancel(ctx)

	signed, err := u.signer.SignTransfer(bg, provider.WalletAddress, amount)
	if err != nil {
		log.Error().Err(err).Str("withdrawal_id", w.ID).Str("to", logging.Redact(provider.WalletAddress, u.dev)).Msg("payout transfer could not be signed")
		u.fail(bg, log, provider, w, err.Error())
		return w, fmt.Errorf("%w: %v", domain.ErrPayoutFailed, err)
	}
	hash := signed.Hash
	// The hash is stored before the broadcast, so a pending withdrawal without
	// one was never sent.
	if err := u.withdrawals.SetTxHash(bg, repository.NoTX, w.ID, hash); err != nil {
		log.Error().Err(err).Str("withdrawal_id", w.ID).Str("tx_hash", hash).Msg("failed to record payout hash, transfer not sent")
		u.fail(bg, log, provider, w, "payout hash could not be recorded")
		return w, fmt.Errorf("%w: %v", domain.ErrPayoutFailed, err)
	}
	w.TransactionHash = &hash

	if err := u.signer.Broadcast(bg, signed); err != nil {
		if errors.Is(err, domain.ErrTransferRejected) {
			log.Error().Err(err).Str("withdrawal_id", w.ID).Str("tx_hash", hash).Msg("payout transfer rejected")
			u.fail(bg, log, provider, w, err.Error())
			return w, fmt.Errorf("%w: %v", domain.ErrPayoutFailed, err)
		}
		// may have reached the node; the claim stays until the hash resolves
		metrics.IncWithdrawal("pending")
		log.Warn().Err(err).Str("withdrawal_id", w.ID).Str("tx_hash", hash).Msg("payout broadcast outcome unknown, left pending")
		return w, nil
	}

	waitCtx, cancel := context.WithTimeout(bg, u.cfg.ReceiptTimeout)
	defer cancel()
	ok, err := u.signer.WaitForReceipt(waitCtx, hash)
	switch {
	case err != nil:
		metrics.IncWithdrawal("pending")
		log.Warn().Err(err).Str("withdrawal_id", w.ID).Str("tx_hash", hash).Msg("payout receipt not available yet, left pending")
		return w, nil
	case !ok:
		log.Error().Str("withdrawal_id", w.ID).Str("tx_hash", hash).Msg("payout transaction reverted")
		u.fail(bg, log, provider, w, "transfer reverted")
		return w, fmt.Errorf("%w: transaction %s reverted", domain.ErrPayoutFailed, hash)
	}

	u.markPaid(bg, log, provider, w, hash)
	return w, nil
}

func (u *withdrawalUC) markPaid(ctx context.Context, log *zerolog.Logger, provider *model.ServiceProvider, w *model.Withdrawal, hash string) {
	now := time.Now().UTC()
	if _, err := u.withdrawals.MarkPaid(ctx, repository.NoTX, w.ID, hash, now); err != nil {
		log.Error().Err(err).Str("withdrawal_id", w.ID).Msg("failed to mark withdrawal paid")
		return
	}
	w.Status = model.WithdrawalStatusPaid
	w.TransactionHash = &hash
	w.PaidAt = &now
	w.UpdatedAt = now
	metrics.IncWithdrawal("paid")
	metrics.AddWithdrawnAmount(w.Amount)
	log.Info().Str("withdrawal_id", w.ID).Str("tx_hash", hash).Msg("withdrawal paid")
	u.notify(ctx, provider, adapter.EventWithdrawalPaid, w)
}

// fail marks the withdrawal failed and returns its claimed transactions to
// the eligible pool in one transaction.
func (u *withdrawalUC) fail(ctx context.Context, log *zerolog.Logger, provider *model.ServiceProvider, w *model.Withdrawal, reason string) {
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.withdrawals.MarkFailed(ctx, tx, w.ID, reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: withdrawal %s is no longer pending", domain.ErrInvalidTransition, w.ID)
		}
		_, err = u.payments.ReleaseWithdrawal(ctx, tx, w.ID)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("withdrawal_id", w.ID).Msg("failed to mark withdrawal failed")
		return
	}
	w.Status = model.WithdrawalStatusFailed
	w.FailureReason = &reason
	w.UpdatedAt = time.Now().UTC()
	metrics.IncWithdrawal("failed")
	u.notify(ctx, provider, adapter.EventWithdrawalFailed, w)
}

func (u *withdrawalUC) MaxPayout(ctx context.Context, providerID string) (decimal.Decimal, error) {
	if _, err := u.findProvider(ctx, providerID); err != nil {
		return decimal.Zero, err
	}
	return u.payments.SumEligibleByProvider(ctx, repository.NoTX, providerID)
}

func (u *withdrawalUC) ListWithdrawals(ctx context.Context, providerID string) ([]*model.Withdrawal, error) {
	if _, err := u.findProvider(ctx, providerID); err != nil {
		return nil, err
	}
	return u.withdrawals.ListByProvider(ctx, repository.NoTX, providerID)
}

// ReconcilePending resolves withdrawals left pending by a crash or a receipt
// timeout. Withdraw records the hash before broadcasting, so a withdrawal
// without one never left and is failed with its transactions released. One
// with a hash is only settled by its receipt; without a receipt it stays
// pending for manual review.
func (u *withdrawalUC) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	defer logging.TraceDuration(u.log, "WithdrawalUC.ReconcilePending")()

	stale, err := u.withdrawals.ListPendingOlderThan(ctx, repository.NoTX, time.Now().UTC().Add(-olderThan), 50)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, w := range stale {
		log := logging.With(logging.WithProviderID(ctx, w.ProviderID), u.log)
		provider, err := u.findProvider(ctx, w.ProviderID)
		if err != nil {
			log.Warn().Err(err).Str("withdrawal_id", w.ID).Msg("reconcile skipped: provider lookup failed")
			continue
		}
		if w.TransactionHash == nil || *w.TransactionHash == "" {
			u.fail(ctx, log, provider, w, "transfer was never submitted")
			n++
			continue
		}
		waitCtx, cancel := context.WithTimeout(ctx, reconcileReceiptWait)
		ok, err := u.signer.WaitForReceipt(waitCtx, *w.TransactionHash)
		cancel()
		switch {
		case err != nil:
			log.Debug().Err(err).Str("withdrawal_id", w.ID).Msg("payout still unconfirmed")
		case ok:
			u.markPaid(ctx, log, provider, w, *w.TransactionHash)
			n++
		default:
			u.fail(ctx, log, provider, w, "transfer reverted")
			n++
		}
	}
	return n, nil
}

func (u *withdrawalUC) findProvider(ctx context.Context, id string) (*model.ServiceProvider, error) {
	p, err := u.providers.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, err
	}
	return p, nil
}

func (u *withdrawalUC) notify(ctx context.Context, p *model.ServiceProvider, typ adapter.EventType, w *model.Withdrawal) {
	if u.notifier == nil || p.WebhookURL == nil || *p.WebhookURL == "" {
		return
	}
	u.notifier.Notify(ctx, *p.WebhookURL, adapter.Event{
		Type:      typ,
		Data:      w,
		Timestamp: time.Now().UTC(),
	})
}
