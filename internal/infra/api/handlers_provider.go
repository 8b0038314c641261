package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
)

type registerProviderRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	WalletAddress string  `json:"wallet_address" validate:"required,eth_addr"`
	WebhookURL    *string `json:"webhook_url" validate:"omitempty,url"`
}

func (s *Server) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	var req registerProviderRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	p, err := s.Providers.Register(r.Context(), req.Name, req.WalletAddress, req.WebhookURL)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusCreated, p)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.Providers.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, p)
}

func (s *Server) handleGetProviderByWallet(w http.ResponseWriter, r *http.Request) {
	p, err := s.Providers.GetByWallet(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, p)
}

type updateProviderRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=200"`
	WebhookURL *string `json:"webhook_url" validate:"omitempty,url"`
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	var req updateProviderRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	p, err := s.Providers.UpdateProfile(r.Context(), chi.URLParam(r, "id"), req.Name, req.WebhookURL)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, p)
}

type withdrawRequest struct {
	WalletAddress string          `json:"wallet_address" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if !req.Amount.IsPositive() {
		s.fail(w, r, domain.ErrInvalidArgument, nil)
		return
	}
	wd, err := s.Withdrawals.Withdraw(r.Context(), req.WalletAddress, req.Amount)
	if err != nil {
		if wd != nil {
			s.fail(w, r, err, wd)
			return
		}
		s.fail(w, r, err, nil)
		return
	}
	code := http.StatusOK
	if wd.Status == model.WithdrawalStatusPending {
		// submitted but not mined yet; the reconciler finishes it
		code = http.StatusAccepted
	}
	ok(w, code, wd)
}

type maxPayoutResponse struct {
	ProviderID string          `json:"provider_id"`
	MaxPayout  decimal.Decimal `json:"max_payout"`
}

func (s *Server) handleMaxPayout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "providerId")
	amount, err := s.Withdrawals.MaxPayout(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, maxPayoutResponse{ProviderID: id, MaxPayout: amount})
}

func (s *Server) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := s.Withdrawals.ListWithdrawals(r.Context(), chi.URLParam(r, "providerId"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if list == nil {
		list = []*model.Withdrawal{}
	}
	ok(w, http.StatusOK, list)
}
