package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		facilitatorRequests,
		facilitatorDuration,
		paymentGateOutcomes,
	)
}

var (
	// op: verify|settle, result: ok|invalid|error
	facilitatorRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_facilitator_requests_total",
			Help: "Facilitator calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	facilitatorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "x402_facilitator_duration_seconds",
			Help:    "Facilitator call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"op"},
	)

	// outcome: missing_header|malformed|invalid|settle_failed|settled|renew_failed|window_passed
	paymentGateOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_payment_gate_outcomes_total",
			Help: "Pay-route requests by terminal outcome.",
		},
		[]string{"outcome"},
	)
)

func ObserveFacilitator(op, result string, d time.Duration) {
	facilitatorRequests.WithLabelValues(norm(op), norm(result)).Inc()
	facilitatorDuration.WithLabelValues(norm(op)).Observe(d.Seconds())
}

func IncPaymentGate(outcome string) {
	paymentGateOutcomes.WithLabelValues(norm(outcome)).Inc()
}
