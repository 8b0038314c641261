package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"x402-subscriptions/internal/domain"
	"x402-subscriptions/internal/domain/model"
)

// createSubscriptionRequest accepts both snake_case and camelCase keys.
type createSubscriptionRequest struct {
	UserID       string `json:"user_id"`
	UserIDAlt    string `json:"userId"`
	ServiceID    string `json:"service_id"`
	ServiceIDAlt string `json:"serviceId"`
	StartDate    string `json:"start_date"`
	StartDateAlt string `json:"startDate"`
	Trial        bool   `json:"trial"`
}

func (req *createSubscriptionRequest) normalize() (userID, serviceID string, start time.Time, err error) {
	userID = firstNonEmpty(req.UserID, req.UserIDAlt)
	serviceID = firstNonEmpty(req.ServiceID, req.ServiceIDAlt)
	if userID == "" || serviceID == "" {
		return "", "", time.Time{}, fmt.Errorf("%w: user_id and service_id are required", domain.ErrValidation)
	}
	raw := firstNonEmpty(req.StartDate, req.StartDateAlt)
	if raw == "" {
		return userID, serviceID, time.Time{}, nil
	}
	start, err = parseDate(raw)
	return userID, serviceID, start, err
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: start date %q is not RFC3339 or YYYY-MM-DD", domain.ErrValidation, s)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	userID, serviceID, start, err := req.normalize()
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	sub, err := s.Subscriptions.CreateSubscription(r.Context(), userID, serviceID, start, req.Trial)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Subscriptions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, sub)
}

func (s *Server) handleSubscriptionsByService(w http.ResponseWriter, r *http.Request) {
	list, err := s.Subscriptions.GetByService(r.Context(), chi.URLParam(r, "service_id"))
	s.writeSubscriptions(w, r, list, err)
}

func (s *Server) handleSubscriptionsByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		list, err := s.Subscriptions.GetActiveUserSubscriptions(r.Context(), userID)
		s.writeSubscriptions(w, r, list, err)
		return
	}
	list, err := s.Subscriptions.GetUserSubscriptions(r.Context(), userID)
	s.writeSubscriptions(w, r, list, err)
}

func (s *Server) handleExpiring(w http.ResponseWriter, r *http.Request) {
	days := s.opts.ExpiringWithinDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.fail(w, r, fmt.Errorf("%w: days must be a positive integer", domain.ErrValidation), nil)
			return
		}
		days = n
	}
	list, err := s.Subscriptions.GetExpiringSubscriptions(r.Context(), days)
	s.writeSubscriptions(w, r, list, err)
}

func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	list, err := s.Subscriptions.GetSubscriptionsDueForBilling(r.Context(), time.Now().UTC())
	s.writeSubscriptions(w, r, list, err)
}

func (s *Server) writeSubscriptions(w http.ResponseWriter, r *http.Request, list []*model.Subscription, err error) {
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if list == nil {
		list = []*model.Subscription{}
	}
	ok(w, http.StatusOK, list)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	// the body is optional
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err, nil)
			return
		}
	}
	sub, err := s.Subscriptions.CancelSubscription(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, sub)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := s.Subscriptions.GetSubscriptionTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	if list == nil {
		list = []*model.PaymentTransaction{}
	}
	ok(w, http.StatusOK, list)
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Subscriptions.SuspendSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, sub)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sub, err := s.Subscriptions.ResumeSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, sub)
}

type indexStatus struct {
	Routes  int       `json:"routes"`
	BuiltAt time.Time `json:"built_at"`
}

func (s *Server) handleRebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.Index.Rebuild(r.Context()); err != nil {
		s.fail(w, r, err, nil)
		return
	}
	ok(w, http.StatusOK, indexStatus{Routes: s.Index.Len(), BuiltAt: s.Index.BuiltAt()})
}
