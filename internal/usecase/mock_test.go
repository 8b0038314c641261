//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/domain/ports/adapter"
	"x402-subscriptions/internal/domain/ports/repository"
	"x402-subscriptions/internal/x402"
)

// =============================
// Repositories
// =============================

// ---- Provider repo ----

type MockProviderRepo struct {
	mu   sync.Mutex
	data map[string]*model.ServiceProvider

	CreateFunc func(ctx context.Context, tx repository.Tx, p *model.ServiceProvider) error
}

var _ repository.ServiceProviderRepository = (*MockProviderRepo)(nil)

func NewMockProviderRepo() *MockProviderRepo {
	return &MockProviderRepo{data: map[string]*model.ServiceProvider{}}
}

func (r *MockProviderRepo) Create(ctx context.Context, tx repository.Tx, p *model.ServiceProvider) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.data {
		if strings.EqualFold(x.WalletAddress, p.WalletAddress) {
			return domain.ErrWalletTaken
		}
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockProviderRepo) Update(ctx context.Context, tx repository.Tx, p *model.ServiceProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockProviderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ServiceProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockProviderRepo) FindByWallet(ctx context.Context, tx repository.Tx, wallet string) (*model.ServiceProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if strings.EqualFold(p.WalletAddress, wallet) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Service repo ----

type MockServiceRepo struct {
	mu   sync.Mutex
	data map[string]*model.Service

	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Service, error)
}

var _ repository.ServiceRepository = (*MockServiceRepo)(nil)

func NewMockServiceRepo() *MockServiceRepo {
	return &MockServiceRepo{data: map[string]*model.Service{}}
}

func (r *MockServiceRepo) Create(ctx context.Context, tx repository.Tx, s *model.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	r.data[s.ID] = &cp
	return nil
}

func (r *MockServiceRepo) Update(ctx context.Context, tx repository.Tx, s *model.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[s.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *s
	r.data[s.ID] = &cp
	return nil
}

func (r *MockServiceRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.data, id)
	return nil
}

func (r *MockServiceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Service, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.data[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockServiceRepo) ListByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]*model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Service
	for _, s := range r.data {
		if s.ProviderID == providerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockServiceRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Service
	for _, id := range ids {
		if s, ok := r.data[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- Subscription repo ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscription

	AdvanceBillingFunc func(ctx context.Context, tx repository.Tx, p repository.AdvanceBilling) error
	Advances           int
	Scans              atomic.Int32
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: map[string]*model.Subscription{}}
}

func cloneSub(s *model.Subscription) *model.Subscription {
	cp := *s
	cp.PaymentHistory = append([]model.PaymentHistoryEntry(nil), s.PaymentHistory...)
	return &cp
}

func hasStatus(statuses []model.SubscriptionStatus, s model.SubscriptionStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

func (r *MockSubscriptionRepo) Create(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.data {
		if x.UserID == s.UserID && x.ServiceID == s.ServiceID && x.Status.IsOpen() {
			return domain.ErrDuplicateSubscription
		}
	}
	r.data[s.ID] = cloneSub(s)
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.data[id]; ok {
		return cloneSub(s), nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) FindOpenByUserAndService(ctx context.Context, tx repository.Tx, userID, serviceID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data {
		if s.UserID == userID && s.ServiceID == serviceID && s.Status.IsOpen() {
			return cloneSub(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) list(pred func(*model.Subscription) bool) []*model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if pred(s) {
			out = append(out, cloneSub(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *MockSubscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, statuses []model.SubscriptionStatus) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool { return s.UserID == userID && hasStatus(statuses, s.Status) }), nil
}

func (r *MockSubscriptionRepo) ListByService(ctx context.Context, tx repository.Tx, serviceID string) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool { return s.ServiceID == serviceID }), nil
}

func (r *MockSubscriptionRepo) ListByStatuses(ctx context.Context, tx repository.Tx, statuses []model.SubscriptionStatus) ([]*model.Subscription, error) {
	r.Scans.Add(1)
	return r.list(func(s *model.Subscription) bool { return hasStatus(statuses, s.Status) }), nil
}

func (r *MockSubscriptionRepo) ListDueForBilling(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool {
		return hasStatus(model.BillableStatuses, s.Status) && s.AutoRenew && !s.NextBillingDate.After(now)
	}), nil
}

func (r *MockSubscriptionRepo) ListExpiring(ctx context.Context, tx repository.Tx, from, until time.Time) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool {
		return hasStatus(model.BillableStatuses, s.Status) && !s.EndDate.Before(from) && !s.EndDate.After(until)
	}), nil
}

func (r *MockSubscriptionRepo) CountByServiceAndStatuses(ctx context.Context, tx repository.Tx, serviceID string, statuses []model.SubscriptionStatus) (int, error) {
	return len(r.list(func(s *model.Subscription) bool { return s.ServiceID == serviceID && hasStatus(statuses, s.Status) })), nil
}

func (r *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range r.data {
		out[s.Status]++
	}
	return out, nil
}

func (r *MockSubscriptionRepo) AdvanceBilling(ctx context.Context, tx repository.Tx, p repository.AdvanceBilling) error {
	if r.AdvanceBillingFunc != nil {
		return r.AdvanceBillingFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[p.SubscriptionID]
	if !ok || s.Version != p.ExpectedVersion || !s.Status.IsOpen() {
		return domain.ErrConcurrentUpdate
	}
	s.Status = model.SubscriptionStatusActive
	s.EndDate = p.NewEndDate
	s.NextBillingDate = p.NewEndDate
	s.AmountPaid = s.AmountPaid.Add(p.Amount)
	s.PaymentHistory = append(s.PaymentHistory, p.Entry)
	s.Version++
	r.Advances++
	return nil
}

func (r *MockSubscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from []model.SubscriptionStatus, to model.SubscriptionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok || !hasStatus(from, s.Status) {
		return false, nil
	}
	if to.IsOpen() {
		for _, x := range r.data {
			if x.ID != id && x.UserID == s.UserID && x.ServiceID == s.ServiceID && x.Status.IsOpen() {
				return false, domain.ErrDuplicateSubscription
			}
		}
	}
	s.Status = to
	s.Version++
	return true, nil
}

func (r *MockSubscriptionRepo) Cancel(ctx context.Context, tx repository.Tx, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok || s.Status.IsTerminal() {
		return false, nil
	}
	s.Status = model.SubscriptionStatusCancelled
	s.AutoRenew = false
	s.CancellationDate = &at
	s.CancellationReason = &reason
	s.Version++
	return true, nil
}

func (r *MockSubscriptionRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if hasStatus(model.BillableStatuses, s.Status) && s.EndDate.Before(now) {
			s.Status = model.SubscriptionStatusExpired
			s.Version++
			out = append(out, cloneSub(s))
		}
	}
	return out, nil
}

// ---- Payment transaction repo ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.PaymentTransaction
	subs *MockSubscriptionRepo

	CreateFunc func(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error
}

var _ repository.PaymentTransactionRepository = (*MockPaymentRepo)(nil)

// NewMockPaymentRepo resolves a transaction's provider through subs.
func NewMockPaymentRepo(subs *MockSubscriptionRepo) *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.PaymentTransaction{}, subs: subs}
}

func (r *MockPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.TransactionHash != nil {
		for _, x := range r.data {
			if x.TransactionHash != nil && *x.TransactionHash == *p.TransactionHash {
				return domain.ErrDuplicateTransaction
			}
		}
	}
	cp := *p
	r.data[p.ID] = &cp
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByTxHash(ctx context.Context, tx repository.Tx, txHash string) (*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.TransactionHash != nil && *p.TransactionHash == txHash {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, p := range r.data {
		if p.SubscriptionID == subscriptionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentTransaction
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(before) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockPaymentRepo) SetTxHash(ctx context.Context, tx repository.Tx, id, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.data {
		if x.ID != id && x.TransactionHash != nil && *x.TransactionHash == txHash {
			return domain.ErrDuplicateTransaction
		}
	}
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.TransactionHash = &txHash
	return nil
}

func (r *MockPaymentRepo) Complete(ctx context.Context, tx repository.Tx, id, txHash string, period model.BillingPeriod, processedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusCompleted
	p.TransactionHash = &txHash
	p.PeriodStart = period.Start
	p.PeriodEnd = period.End
	p.ProcessedAt = &processedAt
	return true, nil
}

func (r *MockPaymentRepo) MarkFailed(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusFailed
	p.FailureReason = &reason
	return true, nil
}

func (r *MockPaymentRepo) eligible(providerID string) []*model.PaymentTransaction {
	var out []*model.PaymentTransaction
	for _, p := range r.data {
		if p.Status != model.PaymentStatusCompleted || p.WithdrawalID != nil {
			continue
		}
		sub, err := r.subs.FindByID(context.Background(), nil, p.SubscriptionID)
		if err != nil || sub.ProviderID != providerID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProcessedAt.Equal(*out[j].ProcessedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ProcessedAt.Before(*out[j].ProcessedAt)
	})
	return out
}

func (r *MockPaymentRepo) ListEligibleByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]model.EligibleTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EligibleTransaction
	for _, p := range r.eligible(providerID) {
		out = append(out, model.EligibleTransaction{ID: p.ID, Amount: p.Amount, ProcessedAt: *p.ProcessedAt})
	}
	return out, nil
}

func (r *MockPaymentRepo) SumEligibleByProvider(ctx context.Context, tx repository.Tx, providerID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, p := range r.eligible(providerID) {
		sum = sum.Add(p.Amount)
	}
	return sum, nil
}

func (r *MockPaymentRepo) ClaimForWithdrawal(ctx context.Context, tx repository.Tx, withdrawalID string, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		p, ok := r.data[id]
		if !ok || p.WithdrawalID != nil || p.Status != model.PaymentStatusCompleted {
			continue
		}
		w := withdrawalID
		p.WithdrawalID = &w
		n++
	}
	return n, nil
}

func (r *MockPaymentRepo) ReleaseWithdrawal(ctx context.Context, tx repository.Tx, withdrawalID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.data {
		if p.WithdrawalID != nil && *p.WithdrawalID == withdrawalID {
			p.WithdrawalID = nil
			n++
		}
	}
	return n, nil
}

// ClaimedBy returns the ids carrying withdrawalID.
func (r *MockPaymentRepo) ClaimedBy(withdrawalID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.data {
		if p.WithdrawalID != nil && *p.WithdrawalID == withdrawalID {
			out = append(out, p.ID)
		}
	}
	sort.Strings(out)
	return out
}

// ---- Withdrawal repo ----

type MockWithdrawalRepo struct {
	mu   sync.Mutex
	data map[string]*model.Withdrawal

	SetTxHashErr error
}

var _ repository.WithdrawalRepository = (*MockWithdrawalRepo)(nil)

func NewMockWithdrawalRepo() *MockWithdrawalRepo {
	return &MockWithdrawalRepo{data: map[string]*model.Withdrawal{}}
}

func (r *MockWithdrawalRepo) Create(ctx context.Context, tx repository.Tx, w *model.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.data[w.ID] = &cp
	return nil
}

func (r *MockWithdrawalRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.data[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockWithdrawalRepo) ListByProvider(ctx context.Context, tx repository.Tx, providerID string) ([]*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Withdrawal
	for _, w := range r.data {
		if w.ProviderID == providerID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockWithdrawalRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Withdrawal
	for _, w := range r.data {
		if w.Status == model.WithdrawalStatusPending && w.RequestedAt.Before(before) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockWithdrawalRepo) SetTxHash(ctx context.Context, tx repository.Tx, id, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SetTxHashErr != nil {
		return r.SetTxHashErr
	}
	w, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	w.TransactionHash = &txHash
	return nil
}

func (r *MockWithdrawalRepo) MarkPaid(ctx context.Context, tx repository.Tx, id, txHash string, paidAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok || w.Status != model.WithdrawalStatusPending {
		return false, nil
	}
	w.Status = model.WithdrawalStatusPaid
	w.TransactionHash = &txHash
	w.PaidAt = &paidAt
	return true, nil
}

func (r *MockWithdrawalRepo) MarkFailed(ctx context.Context, tx repository.Tx, id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.data[id]
	if !ok || w.Status != model.WithdrawalStatusPending {
		return false, nil
	}
	w.Status = model.WithdrawalStatusFailed
	w.FailureReason = &reason
	return true, nil
}

// =============================
// Transactions and locks
// =============================

type MockTxManager struct {
	// Serialize runs every transaction under one mutex, standing in for the
	// row and advisory locks of the real store.
	Serialize bool
	mu        sync.Mutex

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	if m.Serialize {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	return fn(ctx, repository.NoTX)
}

type MockAdvisoryLocker struct {
	mu   sync.Mutex
	Keys []string
}

var _ repository.AdvisoryLocker = (*MockAdvisoryLocker)(nil)

func (l *MockAdvisoryLocker) AdvisoryXactLock(ctx context.Context, tx repository.Tx, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Keys = append(l.Keys, key)
	return nil
}

// ---- In-memory Locker (implements adapter.Locker port) ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return domain.ErrLockNotAcquired
}

// Hold simulates another instance owning key.
func (l *MockLocker) Hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

// =============================
// Adapters
// =============================

type MockFacilitator struct {
	mu          sync.Mutex
	VerifyCalls int
	SettleCalls int

	VerifyFunc func(ctx context.Context, p x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error)
	SettleFunc func(ctx context.Context, p x402.PaymentPayload, req x402.PaymentRequirements) (*x402.SettleResponse, error)
}

var _ adapter.Facilitator = (*MockFacilitator)(nil)

func (f *MockFacilitator) Verify(ctx context.Context, p x402.PaymentPayload, req x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	f.mu.Lock()
	f.VerifyCalls++
	f.mu.Unlock()
	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, p, req)
	}
	payer := "0xPayer"
	return &x402.VerifyResponse{IsValid: true, Payer: &payer}, nil
}

func (f *MockFacilitator) Settle(ctx context.Context, p x402.PaymentPayload, req x402.PaymentRequirements) (*x402.SettleResponse, error) {
	f.mu.Lock()
	f.SettleCalls++
	n := f.SettleCalls
	f.mu.Unlock()
	if f.SettleFunc != nil {
		return f.SettleFunc(ctx, p, req)
	}
	return &x402.SettleResponse{Success: true, Transaction: "0xsettled" + string(rune('0'+n)), Network: req.Network}, nil
}

type MockSigner struct {
	mu        sync.Mutex
	Transfers []struct {
		To     string
		Amount decimal.Decimal
	}
	Broadcasts []string

	SignFunc      func(ctx context.Context, to string, amount decimal.Decimal) (*adapter.SignedTransfer, error)
	BroadcastFunc func(ctx context.Context, t *adapter.SignedTransfer) error
	ReceiptFunc   func(ctx context.Context, txHash string) (bool, error)
}

var _ adapter.PayoutSigner = (*MockSigner)(nil)

// SignTransfer records every requested transfer, whether or not it is later
// broadcast.
func (s *MockSigner) SignTransfer(ctx context.Context, to string, amount decimal.Decimal) (*adapter.SignedTransfer, error) {
	s.mu.Lock()
	s.Transfers = append(s.Transfers, struct {
		To     string
		Amount decimal.Decimal
	}{to, amount})
	s.mu.Unlock()
	if s.SignFunc != nil {
		return s.SignFunc(ctx, to, amount)
	}
	return &adapter.SignedTransfer{Hash: "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")}, nil
}

func (s *MockSigner) Broadcast(ctx context.Context, t *adapter.SignedTransfer) error {
	if s.BroadcastFunc != nil {
		if err := s.BroadcastFunc(ctx, t); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.Broadcasts = append(s.Broadcasts, t.Hash)
	s.mu.Unlock()
	return nil
}

func (s *MockSigner) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Broadcasts)
}

func (s *MockSigner) WaitForReceipt(ctx context.Context, txHash string) (bool, error) {
	if s.ReceiptFunc != nil {
		return s.ReceiptFunc(ctx, txHash)
	}
	return true, nil
}

type MockNotifier struct {
	mu     sync.Mutex
	Events []adapter.Event
	URLs   []string
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (n *MockNotifier) Notify(ctx context.Context, webhookURL string, ev adapter.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, ev)
	n.URLs = append(n.URLs, webhookURL)
}

func (n *MockNotifier) Types() []adapter.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]adapter.EventType, len(n.Events))
	for i, e := range n.Events {
		out[i] = e.Type
	}
	return out
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
