package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/usecase"
)

type pricingRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	BillingCycle string          `json:"billing_cycle" validate:"required"`
}

type createServiceRequest struct {
	ProviderID      string         `json:"provider_id" validate:"required"`
	Name            string         `json:"name" validate:"required,max=200"`
	Description     string         `json:"description" validate:"max=2000"`
	Pricing         pricingRequest `json:"pricing"`
	Features        []string       `json:"features"`
	TrialPeriodDays int            `json:"trial_period_days" validate:"gte=0"`
	Network         string         `json:"network"`
	Endpoint        string         `json:"endpoint" validate:"omitempty,url"`
	Metadata        map[string]any `json:"metadata"`
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	cycle, err := model.ParseBillingCycle(req.Pricing.BillingCycle)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	svc, err := s.Services.Create(r.Context(), usecase.CreateServiceInput{
		ProviderID:  req.ProviderID,
		Name:        req.Name,
		Description: req.Description,
		Pricing: model.Pricing{
			Amount:       req.Pricing.Amount,
			BillingCycle: cycle,
		},
		Features:        req.Features,
		TrialPeriodDays: req.TrialPeriodDays,
		Network:         req.Network,
		Endpoint:        req.Endpoint,
		Metadata:        req.Metadata,
	})
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusCreated, svc)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.Services.ListByProvider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if list == nil {
		list = []*model.Service{}
	}
	ok(w, http.StatusOK, list)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.Services.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, svc)
}

type serviceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive deprecated"`
}

func (s *Server) handleSetServiceStatus(w http.ResponseWriter, r *http.Request) {
	var req serviceStatusRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	svc, err := s.Services.SetStatus(r.Context(), chi.URLParam(r, "id"), model.ServiceStatus(req.Status))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, svc)
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Services.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, map[string]string{"id": id})
}
