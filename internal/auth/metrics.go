package auth

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for authorization checks.
type Metrics struct {
	ChecksTotal *prometheus.CounterVec
}

// NewMetrics creates and registers authorization metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "authz",
			Name:      "checks_total",
			Help:      "Authorization resolutions by result (allowed, denied_role, denied_type, security_event).",
		}, []string{"result"}),
	}

	reg.MustRegister(m.ChecksTotal)
	return m
}
