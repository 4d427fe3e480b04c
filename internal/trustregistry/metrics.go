package trustregistry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks trust registry cache and upstream behavior.
type Metrics struct {
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	UpstreamLookupsTotal  *prometheus.CounterVec
	LookupDurationSeconds prometheus.Histogram
	CircuitOpen           prometheus.Gauge
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxchange_trust_cache_hits_total",
			Help: "Total number of trust status cache hits",
		}),
		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rxchange_trust_cache_misses_total",
			Help: "Total number of trust status cache misses",
		}),
		UpstreamLookupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxchange_trust_upstream_lookups_total",
			Help: "Total number of trust registry upstream lookups by outcome",
		}, []string{"outcome"}),
		LookupDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxchange_trust_lookup_duration_seconds",
			Help:    "Duration of trust status lookups including cache and upstream",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		CircuitOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rxchange_trust_circuit_open",
			Help: "Whether the trust registry circuit breaker is open (1) or closed (0)",
		}),
	}
}
