package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RPCMetrics observes calls served by a skeleton. It satisfies the rpc
// package's Metrics interface.
type RPCMetrics interface {
	RecordCall(method string, d time.Duration, err error)
}

type rpcMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewRPCMetrics creates a Prometheus-backed RPCMetrics instance labelled
// with the serving component, or a no-op instance when metrics are
// disabled.
func NewRPCMetrics(component string) RPCMetrics {
	if !IsEnabled() {
		return noopRPCMetrics{}
	}

	reg := GetRegistry()

	return &rpcMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "treedfs_rpc_calls_total",
				Help:        "Total number of RPC calls served by method and status",
				ConstLabels: prometheus.Labels{"component": component},
			},
			[]string{"method", "status"},
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "treedfs_rpc_call_duration_seconds",
				Help:        "Duration of served RPC calls in seconds",
				ConstLabels: prometheus.Labels{"component": component},
				Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"method"},
		),
	}
}

func (m *rpcMetrics) RecordCall(method string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.callsTotal.WithLabelValues(method, status).Inc()
	m.callDuration.WithLabelValues(method).Observe(d.Seconds())
}

type noopRPCMetrics struct{}

func (noopRPCMetrics) RecordCall(string, time.Duration, error) {}
