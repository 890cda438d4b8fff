package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StorageMetrics observes storage-server data-plane operations. It
// satisfies the storage package's Metrics interface.
type StorageMetrics interface {
	RecordOp(op string, err error)
}

type storageMetrics struct {
	opsTotal *prometheus.CounterVec
}

// NewStorageMetrics creates a Prometheus-backed StorageMetrics instance,
// or a no-op instance when metrics are disabled.
func NewStorageMetrics() StorageMetrics {
	if !IsEnabled() {
		return noopStorageMetrics{}
	}

	return &storageMetrics{
		opsTotal: promauto.With(GetRegistry()).NewCounterVec(
			prometheus.CounterOpts{
				Name: "treedfs_storage_ops_total",
				Help: "Total number of storage operations by name and status",
			},
			[]string{"op", "status"},
		),
	}
}

func (m *storageMetrics) RecordOp(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.opsTotal.WithLabelValues(op, status).Inc()
}

type noopStorageMetrics struct{}

func (noopStorageMetrics) RecordOp(string, error) {}
