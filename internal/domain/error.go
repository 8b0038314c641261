package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every specific error below wraps exactly one kind so the
// transport layer can map it with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("entity not found")
	ErrConflict           = errors.New("conflict")
	ErrPaymentProtocol    = errors.New("payment protocol error")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrPersistence        = errors.New("persistence error")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrExternalService    = errors.New("external service error")
)

var (
	// Common domain errors
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrValidation)
	ErrInvalidPrice    = fmt.Errorf("%w: price cannot be converted to an atomic amount", ErrValidation)
	ErrInvalidAddress  = fmt.Errorf("%w: invalid wallet address", ErrValidation)
	ErrAlreadyExists   = fmt.Errorf("%w: entity already exists", ErrConflict)

	ErrProviderNotFound     = fmt.Errorf("%w: service provider not found", ErrNotFound)
	ErrServiceNotFound      = fmt.Errorf("%w: service not found", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription not found", ErrNotFound)
	ErrWithdrawalNotFound   = fmt.Errorf("%w: withdrawal not found", ErrNotFound)

	ErrDuplicateSubscription = fmt.Errorf("%w: user already has a pending, active or trial subscription for this service", ErrConflict)
	ErrWalletTaken           = fmt.Errorf("%w: wallet address already registered", ErrConflict)
	ErrDuplicateTransaction  = fmt.Errorf("%w: transaction hash already recorded", ErrConflict)
	ErrConcurrentUpdate      = fmt.Errorf("%w: record was modified concurrently", ErrConflict)
	ErrServiceInUse          = fmt.Errorf("%w: service has active or trial subscriptions", ErrConflict)
	ErrWithdrawalInProgress  = fmt.Errorf("%w: another withdrawal is in progress for this provider", ErrConflict)
	ErrInvalidTransition     = fmt.Errorf("%w: status transition not allowed", ErrConflict)
	ErrLockNotAcquired       = fmt.Errorf("%w: lock is held elsewhere", ErrConflict)
	ErrBillingWindowPassed   = fmt.Errorf("%w: the next billing period has already ended, create a new subscription", ErrConflict)

	ErrNoFundsAvailable = fmt.Errorf("%w: no funds available for withdrawal", ErrInsufficientFunds)

	ErrPayoutFailed = fmt.Errorf("%w: payout transfer failed", ErrExternalService)
	// ErrTransferRejected means the node refused the transfer, so it is not
	// in flight. Any other broadcast error leaves the outcome unknown.
	ErrTransferRejected = fmt.Errorf("%w: transfer rejected by node", ErrExternalService)

	ErrOperationFailed = fmt.Errorf("%w: operation failed", ErrPersistence)
	ErrReadDatabaseRow = fmt.Errorf("%w: failed to read database row", ErrPersistence)
)

// InsufficientFundsError reports a withdrawal request above the eligible balance.
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, maximum available is %s", e.Requested.String(), e.Available.String())
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// PaymentError carries the reason a payment proof was rejected and, when known,
// the payer address reported by the facilitator.
type PaymentError struct {
	Reason string
	Payer  string
	Err    error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) Is(target error) bool { return target == ErrPaymentProtocol }
