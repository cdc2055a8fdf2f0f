package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the background sweeper.
type Metrics struct {
	KeysDeleted   prometheus.Counter
	SweepsFailed  prometheus.Counter
	SweepDuration prometheus.Histogram
}

// NewMetrics creates and registers sweeper metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		KeysDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "scheduler",
			Name:      "keys_deleted_total",
			Help:      "Total expired API keys removed by the sweeper.",
		}),
		SweepsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "scheduler",
			Name:      "sweeps_failed_total",
			Help:      "Total sweep runs that ended in an error.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quill",
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of each expiry sweep run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	reg.MustRegister(
		m.KeysDeleted,
		m.SweepsFailed,
		m.SweepDuration,
	)

	return m
}
