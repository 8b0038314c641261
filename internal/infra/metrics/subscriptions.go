package metrics

import (
	"x402-subscriptions/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(subscriptionTransitions, subscriptionsByStatus) }

var (
	subscriptionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription lifecycle events (created/renewed/cancelled/expired/suspended/resumed).",
		},
		[]string{"event"},
	)

	subscriptionsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_by_status",
			Help: "Current number of subscriptions per status.",
		},
		[]string{"status"},
	)
)

func IncSubscriptionEvent(event string) {
	subscriptionTransitions.WithLabelValues(norm(event)).Inc()
}

func AddSubscriptionEvents(event string, n int) {
	if n <= 0 {
		return
	}
	subscriptionTransitions.WithLabelValues(norm(event)).Add(float64(n))
}

// SetSubscriptionsTotal resets the gauge for every known status, so statuses
// missing from counts report zero.
func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusPending,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusTrial,
		model.SubscriptionStatusSuspended,
		model.SubscriptionStatusCancelled,
		model.SubscriptionStatusExpired,
		model.SubscriptionStatusInactive,
	}
	for _, status := range statuses {
		subscriptionsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
