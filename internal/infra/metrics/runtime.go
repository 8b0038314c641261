package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo, dbConnections, serviceCacheLookups) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "x402_subscriptions_build_info",
			Help: "Always 1; labels carry the running version and commit.",
		},
		[]string{"version", "commit"},
	)

	// state: total|idle|acquired
	dbConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "x402_db_connections",
			Help: "pgx pool connections by state.",
		},
		[]string{"state"},
	)

	// cache: service, result: hit|miss
	serviceCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_cache_lookups_total",
			Help: "Read-through cache lookups by cache and result.",
		},
		[]string{"cache", "result"},
	)
)

func SetBuildInfo(version, commit string) {
	if commit == "" {
		commit = "unknown"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}

// SetDBPoolStats mirrors pgxpool.Stat into the connections gauge.
func SetDBPoolStats(total, idle, acquired int32) {
	for state, v := range map[string]int32{"total": total, "idle": idle, "acquired": acquired} {
		dbConnections.WithLabelValues(state).Set(float64(v))
	}
}

func IncCacheRequest(cache, result string) {
	serviceCacheLookups.WithLabelValues(norm(cache), norm(result)).Inc()
}
