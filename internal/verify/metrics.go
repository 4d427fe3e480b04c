package verify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks verification runs and per-check outcomes.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	CheckOutcomesTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxchange_verify_runs_total",
			Help: "Total number of verification runs by overall outcome",
		}, []string{"overall"}),
		RunDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxchange_verify_run_duration_seconds",
			Help:    "Duration of full verification runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
		CheckOutcomesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rxchange_verify_check_outcomes_total",
			Help: "Total number of individual check results by check and outcome",
		}, []string{"check", "outcome"}),
	}
}

func (m *Metrics) observeRun(outcome Outcome, seconds float64) {
	m.RunsTotal.WithLabelValues(string(outcome)).Inc()
	m.RunDurationSeconds.Observe(seconds)
}

func (m *Metrics) observeChecks(checks []Check) {
	for _, c := range checks {
		m.CheckOutcomesTotal.WithLabelValues(string(c.Name), string(c.Outcome)).Inc()
	}
}
