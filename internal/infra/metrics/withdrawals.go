package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() { register(withdrawalsTotal, withdrawnAmountTotal) }

var (
	// status: requested|paid|failed|pending|rejected
	withdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Provider withdrawals by status.",
		},
		[]string{"status"},
	)

	withdrawnAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "withdrawals_paid_amount_total",
			Help: "Total value paid out to providers.",
		},
	)
)

func IncWithdrawal(status string) {
	withdrawalsTotal.WithLabelValues(norm(status)).Inc()
}

func AddWithdrawnAmount(amount decimal.Decimal) {
	withdrawnAmountTotal.Add(amount.InexactFloat64())
}
