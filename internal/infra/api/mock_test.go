//go:build !integration

package api

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain/model"
	ucport "x402-subscriptions/internal/domain/ports/usecase"
	"x402-subscriptions/internal/usecase"
)

// --- Use case mocks ---

type mockProviderUC struct {
	RegisterFunc    func(ctx context.Context, name, wallet string, webhookURL *string) (*model.ServiceProvider, error)
	GetByIDFunc     func(ctx context.Context, id string) (*model.ServiceProvider, error)
	GetByWalletFunc func(ctx context.Context, wallet string) (*model.ServiceProvider, error)
	UpdateFunc      func(ctx context.Context, id string, name, webhookURL *string) (*model.ServiceProvider, error)
}

func (m *mockProviderUC) Register(ctx context.Context, name, wallet string, webhookURL *string) (*model.ServiceProvider, error) {
	return m.RegisterFunc(ctx, name, wallet, webhookURL)
}
func (m *mockProviderUC) GetByID(ctx context.Context, id string) (*model.ServiceProvider, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockProviderUC) GetByWallet(ctx context.Context, wallet string) (*model.ServiceProvider, error) {
	return m.GetByWalletFunc(ctx, wallet)
}
func (m *mockProviderUC) UpdateProfile(ctx context.Context, id string, name, webhookURL *string) (*model.ServiceProvider, error) {
	return m.UpdateFunc(ctx, id, name, webhookURL)
}

type mockServiceUC struct {
	CreateFunc         func(ctx context.Context, in usecase.CreateServiceInput) (*model.Service, error)
	GetByIDFunc        func(ctx context.Context, id string) (*model.Service, error)
	ListByProviderFunc func(ctx context.Context, providerID string) ([]*model.Service, error)
	SetStatusFunc      func(ctx context.Context, id string, status model.ServiceStatus) (*model.Service, error)
	DeleteFunc         func(ctx context.Context, id string) error
}

func (m *mockServiceUC) Create(ctx context.Context, in usecase.CreateServiceInput) (*model.Service, error) {
	return m.CreateFunc(ctx, in)
}
func (m *mockServiceUC) GetByID(ctx context.Context, id string) (*model.Service, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockServiceUC) ListByProvider(ctx context.Context, providerID string) ([]*model.Service, error) {
	return m.ListByProviderFunc(ctx, providerID)
}
func (m *mockServiceUC) SetStatus(ctx context.Context, id string, status model.ServiceStatus) (*model.Service, error) {
	return m.SetStatusFunc(ctx, id, status)
}
func (m *mockServiceUC) Delete(ctx context.Context, id string) error { return m.DeleteFunc(ctx, id) }

type mockSubscriptionUC struct {
	CreateFunc       func(ctx context.Context, userID, serviceID string, start time.Time, trial bool) (*model.Subscription, error)
	CancelFunc       func(ctx context.Context, id, reason string) (*model.Subscription, error)
	SuspendFunc      func(ctx context.Context, id string) (*model.Subscription, error)
	ResumeFunc       func(ctx context.Context, id string) (*model.Subscription, error)
	GetByIDFunc      func(ctx context.Context, id string) (*model.Subscription, error)
	ByUserFunc       func(ctx context.Context, userID string) ([]*model.Subscription, error)
	ActiveByUserFunc func(ctx context.Context, userID string) ([]*model.Subscription, error)
	ByServiceFunc    func(ctx context.Context, serviceID string) ([]*model.Subscription, error)
	DueFunc          func(ctx context.Context, now time.Time) ([]*model.Subscription, error)
	ExpiringFunc     func(ctx context.Context, days int) ([]*model.Subscription, error)
	TransactionsFunc func(ctx context.Context, id string) ([]*model.PaymentTransaction, error)
}

func (m *mockSubscriptionUC) CreateSubscription(ctx context.Context, userID, serviceID string, start time.Time, trial bool) (*model.Subscription, error) {
	return m.CreateFunc(ctx, userID, serviceID, start, trial)
}
func (m *mockSubscriptionUC) RenewSubscriptionAfterPayment(ctx context.Context, req ucport.RenewRequest) (*model.Subscription, error) {
	return nil, nil
}
func (m *mockSubscriptionUC) CancelSubscription(ctx context.Context, id, reason string) (*model.Subscription, error) {
	return m.CancelFunc(ctx, id, reason)
}
func (m *mockSubscriptionUC) SuspendSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	return m.SuspendFunc(ctx, id)
}
func (m *mockSubscriptionUC) ResumeSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	return m.ResumeFunc(ctx, id)
}
func (m *mockSubscriptionUC) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
func (m *mockSubscriptionUC) NotifyPaymentDue(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
func (m *mockSubscriptionUC) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	return m.GetByIDFunc(ctx, id)
}
func (m *mockSubscriptionUC) GetUserSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return m.ByUserFunc(ctx, userID)
}
func (m *mockSubscriptionUC) GetActiveUserSubscriptions(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return m.ActiveByUserFunc(ctx, userID)
}
func (m *mockSubscriptionUC) GetByService(ctx context.Context, serviceID string) ([]*model.Subscription, error) {
	return m.ByServiceFunc(ctx, serviceID)
}
func (m *mockSubscriptionUC) GetSubscriptionsDueForBilling(ctx context.Context, now time.Time) ([]*model.Subscription, error) {
	return m.DueFunc(ctx, now)
}
func (m *mockSubscriptionUC) GetExpiringSubscriptions(ctx context.Context, days int) ([]*model.Subscription, error) {
	return m.ExpiringFunc(ctx, days)
}
func (m *mockSubscriptionUC) GetSubscriptionTransactions(ctx context.Context, id string) ([]*model.PaymentTransaction, error) {
	return m.TransactionsFunc(ctx, id)
}

type mockWithdrawalUC struct {
	WithdrawFunc  func(ctx context.Context, wallet string, amount decimal.Decimal) (*model.Withdrawal, error)
	MaxPayoutFunc func(ctx context.Context, providerID string) (decimal.Decimal, error)
	ListFunc      func(ctx context.Context, providerID string) ([]*model.Withdrawal, error)
}

func (m *mockWithdrawalUC) Withdraw(ctx context.Context, wallet string, amount decimal.Decimal) (*model.Withdrawal, error) {
	return m.WithdrawFunc(ctx, wallet, amount)
}
func (m *mockWithdrawalUC) MaxPayout(ctx context.Context, providerID string) (decimal.Decimal, error) {
	return m.MaxPayoutFunc(ctx, providerID)
}
func (m *mockWithdrawalUC) ListWithdrawals(ctx context.Context, providerID string) ([]*model.Withdrawal, error) {
	return m.ListFunc(ctx, providerID)
}
func (m *mockWithdrawalUC) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

type mockGateUC struct {
	QuoteFunc   func(ctx context.Context, subscriptionID, resource string) (*usecase.Quote, error)
	ProcessFunc func(ctx context.Context, q *usecase.Quote, header string) (*usecase.PaymentResult, error)
}

func (m *mockGateUC) Quote(ctx context.Context, subscriptionID, resource string) (*usecase.Quote, error) {
	return m.QuoteFunc(ctx, subscriptionID, resource)
}
func (m *mockGateUC) Process(ctx context.Context, q *usecase.Quote, header string) (*usecase.PaymentResult, error) {
	return m.ProcessFunc(ctx, q, header)
}
func (m *mockGateUC) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

type mockIndex struct {
	rebuilds int
	err      error
}

func (m *mockIndex) Rebuild(ctx context.Context) error {
	m.rebuilds++
	return m.err
}
func (m *mockIndex) Len() int           { return 3 }
func (m *mockIndex) BuiltAt() time.Time { return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC) }

type mockLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allow, m.err
}

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
