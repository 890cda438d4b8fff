package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NamingMetrics observes naming-server activity. It satisfies the naming
// package's Metrics interface.
type NamingMetrics interface {
	RecordLock(exclusive bool)
	RecordReplication()
	RecordInvalidation(deleted int)
}

type namingMetrics struct {
	lockAdmissions      *prometheus.CounterVec
	replications        prometheus.Counter
	invalidationDeletes prometheus.Counter
}

// NewNamingMetrics creates a Prometheus-backed NamingMetrics instance, or
// a no-op instance when metrics are disabled.
func NewNamingMetrics() NamingMetrics {
	if !IsEnabled() {
		return noopNamingMetrics{}
	}

	reg := GetRegistry()

	return &namingMetrics{
		lockAdmissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "treedfs_naming_lock_admissions_total",
				Help: "Total number of granted lock requests by mode",
			},
			[]string{"mode"},
		),
		replications: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "treedfs_naming_replications_total",
				Help: "Total number of file copies created by the replication policy",
			},
		),
		invalidationDeletes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "treedfs_naming_invalidation_deletes_total",
				Help: "Total number of stale replicas deleted on exclusive unlock",
			},
		),
	}
}

func (m *namingMetrics) RecordLock(exclusive bool) {
	mode := "shared"
	if exclusive {
		mode = "exclusive"
	}
	m.lockAdmissions.WithLabelValues(mode).Inc()
}

func (m *namingMetrics) RecordReplication() {
	m.replications.Inc()
}

func (m *namingMetrics) RecordInvalidation(deleted int) {
	m.invalidationDeletes.Add(float64(deleted))
}

type noopNamingMetrics struct{}

func (noopNamingMetrics) RecordLock(bool)        {}
func (noopNamingMetrics) RecordReplication()     {}
func (noopNamingMetrics) RecordInvalidation(int) {}
