package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal, jobAffectedTotal) }

var (
	jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduled job executions, labeled by job and status.",
		},
		[]string{"job", "status"}, // status: 'ok', 'error'
	)

	jobAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_affected_total",
			Help: "Records touched by scheduled jobs.",
		},
		[]string{"job"},
	)
)

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}

func AddJobAffected(job string, n int) {
	if n <= 0 {
		return
	}
	jobAffectedTotal.WithLabelValues(norm(job)).Add(float64(n))
}
