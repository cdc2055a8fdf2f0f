package organization

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the organization lifecycle.
type Metrics struct {
	DeletesTotal *prometheus.CounterVec
	RolesDeleted prometheus.Counter
}

// NewMetrics creates and registers lifecycle metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		DeletesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "organization",
			Name:      "deletes_total",
			Help:      "Cascade delete outcomes (committed, rolled_back).",
		}, []string{"outcome"}),
		RolesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quill",
			Subsystem: "organization",
			Name:      "roles_deleted_total",
			Help:      "Role assignments removed by cascade deletes.",
		}),
	}

	reg.MustRegister(m.DeletesTotal, m.RolesDeleted)
	return m
}
