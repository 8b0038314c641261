package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
	"x402-subscriptions/internal/infra/logging"
	"x402-subscriptions/internal/x402"
)

type payResponse struct {
	Message      string              `json:"message"`
	Service      *model.Service      `json:"service"`
	Subscription *model.Subscription `json:"subscription"`
}

// handlePay is the x402-protected renewal route. Rejections answer 402 with
// the requirement list; a settled payment always carries the receipt header,
// even when the renewal that follows fails.
func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriptionId")
	ctx := logging.WithSubscriptionID(r.Context(), id)

	q, err := s.Gate.Quote(ctx, id, s.resourceURL(r))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}

	res, err := s.Gate.Process(ctx, q, r.Header.Get(x402.HeaderPayment))
	if res != nil && res.Settlement != nil {
		if receipt, encErr := res.Settlement.EncodeToBase64String(); encErr == nil {
			w.Header().Set(x402.HeaderPaymentResponse, receipt)
		}
	}
	if err != nil {
		var pe *domain.PaymentError
		switch {
		case errors.As(err, &pe):
			paymentRequired(w, pe.Reason, pe.Payer, q.Accepts())
		case errors.Is(err, domain.ErrNotFound):
			// the subscription vanished between quote and renewal
			paymentRequired(w, err.Error(), "", q.Accepts())
		default:
			s.fail(w, r, err, nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, payResponse{
		Message:      "payment settled, subscription renewed",
		Service:      res.Service,
		Subscription: res.Subscription,
	})
}

// resourceURL is the absolute URL the client paid for.
func (s *Server) resourceURL(r *http.Request) string {
	if base := strings.TrimRight(s.opts.PublicBaseURL, "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(fwd, ",")[0]))
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
