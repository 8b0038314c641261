//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/usecase"
	"x402-subscriptions/internal/x402"
)

const (
	testWallet  = "0x52908400098527886E0F7030069857D2E4169EE7"
	testPayTo   = "0x8617E340B3D01FA5F11F306F4090FD50E238070D"
	testWebhook = "https://provider.example/hooks"
)

// gateNow is the payment gate's clock: a few days into the first billing
// period of the subscriptions the gate tests create.
var gateNow = date(2024, 1, 20)

// fixture wires every use case against the in-memory repositories.
type fixture struct {
	providers   *MockProviderRepo
	services    *MockServiceRepo
	subs        *MockSubscriptionRepo
	payments    *MockPaymentRepo
	withdrawals *MockWithdrawalRepo
	tm          *MockTxManager
	advisory    *MockAdvisoryLocker
	lease       *MockLocker
	facilitator *MockFacilitator
	signer      *MockSigner
	notifier    *MockNotifier
	builder     *x402.RequirementBuilder
	index       *usecase.PriceIndex

	subUC      usecase.SubscriptionUseCase
	gateUC     usecase.PaymentGateUseCase
	withdrawUC usecase.WithdrawalUseCase
	providerUC usecase.ProviderUseCase
	serviceUC  usecase.ServiceUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := newTestLogger()
	f := &fixture{
		providers:   NewMockProviderRepo(),
		services:    NewMockServiceRepo(),
		subs:        NewMockSubscriptionRepo(),
		withdrawals: NewMockWithdrawalRepo(),
		tm:          NewMockTxManager(),
		advisory:    &MockAdvisoryLocker{},
		lease:       NewMockLocker(),
		facilitator: &MockFacilitator{},
		signer:      &MockSigner{},
		notifier:    &MockNotifier{},
		builder:     x402.NewRequirementBuilder(nil, testPayTo),
	}
	f.payments = NewMockPaymentRepo(f.subs)
	f.index = usecase.NewPriceIndex(f.subs, f.services, log)

	sub := usecase.NewSubscriptionUseCase(f.subs, f.services, f.providers, f.payments, f.tm, f.notifier, f.index, log)
	f.subUC = sub
	f.gateUC = usecase.NewPaymentGateUseCase(f.index, f.subs, f.services, f.payments, sub, f.builder, f.facilitator, log, true,
		usecase.WithGateClock(func() time.Time { return gateNow }))
	f.withdrawUC = usecase.NewWithdrawalUseCase(f.providers, f.payments, f.withdrawals, f.tm, f.advisory, f.lease, f.signer, f.notifier,
		usecase.WithdrawalConfig{ReceiptTimeout: time.Second}, log, true)
	f.providerUC = usecase.NewProviderUseCase(f.providers, log, true)
	f.serviceUC = usecase.NewServiceUseCase(f.services, f.providers, f.subs, f.builder, f.tm, log)
	return f
}

func (f *fixture) seedProvider(t *testing.T, id, wallet string) *model.ServiceProvider {
	t.Helper()
	hook := testWebhook
	p, err := model.NewServiceProvider(id, "Provider "+id, wallet, &hook)
	if err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	if err := f.providers.Create(context.Background(), repository.NoTX, p); err != nil {
		t.Fatalf("seed provider: %v", err)
	}
	return p
}

func (f *fixture) seedService(t *testing.T, id, providerID, price string, cycle model.BillingCycle, trialDays int) *model.Service {
	t.Helper()
	s, err := model.NewService(id, providerID, "Service "+id, "", model.Pricing{Amount: decimal.RequireFromString(price), BillingCycle: cycle}, trialDays)
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if err := f.services.Create(context.Background(), repository.NoTX, s); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return s
}

// seedCompleted stores a completed, unclaimed payment for subscriptionID.
func (f *fixture) seedCompleted(t *testing.T, id, subscriptionID, amount string, processedAt time.Time) {
	t.Helper()
	hash := "0xhash-" + id
	p := &model.PaymentTransaction{
		ID:              id,
		SubscriptionID:  subscriptionID,
		UserID:          "user-1",
		Amount:          decimal.RequireFromString(amount),
		TransactionHash: &hash,
		Status:          model.PaymentStatusCompleted,
		PaymentMethod:   model.PaymentMethodExact,
		ProcessedAt:     &processedAt,
		CreatedAt:       processedAt,
	}
	if err := f.payments.Create(context.Background(), repository.NoTX, p); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
