package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pending      []prometheus.Collector
	registerOnce sync.Once
)

// register queues collectors from each file's init.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister adds every queued collector to the default registry. Safe to
// call more than once.
func MustRegister() {
	registerOnce.Do(func() {
		for _, c := range pending {
			prometheus.MustRegister(c)
		}
	})
}

// norm keeps label cardinality bounded to lowercase, non-empty values.
func norm(label string) string {
	if label = strings.ToLower(strings.TrimSpace(label)); label != "" {
		return label
	}
	return "unknown"
}
