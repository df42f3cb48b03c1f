package prometheus

import (
	"time"

	"github.com/dendrascience/logfs/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// fsMetrics is the Prometheus implementation of metrics.FSMetrics.
type fsMetrics struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	mounted    prometheus.Gauge
	liveInodes *prometheus.GaugeVec
}

// NewFSMetrics creates Prometheus-backed filesystem metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewFSMetrics() metrics.FSMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &fsMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "logfs_operations_total",
				Help: "Total number of logfs core operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		durations: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logfs_operation_duration_seconds",
				Help:    "Duration of logfs core operations",
				Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us .. ~260ms
			},
			[]string{"op"},
		),
		mounted: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "logfs_mounted_instances",
				Help: "Number of currently mounted logfs instances",
			},
		),
		liveInodes: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "logfs_live_inodes",
				Help: "Number of inodes held by a mounted instance",
			},
			[]string{"device"},
		),
	}
}

func (m *fsMetrics) RecordOperation(op string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.durations.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *fsMetrics) SetMountedInstances(n int) {
	if m == nil {
		return
	}
	m.mounted.Set(float64(n))
}

func (m *fsMetrics) SetLiveInodes(device string, n int64) {
	if m == nil {
		return
	}
	m.liveInodes.WithLabelValues(device).Set(float64(n))
}
