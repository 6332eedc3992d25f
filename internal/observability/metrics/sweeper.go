package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type SweeperMetrics struct {
	registry *prometheus.Registry

	sweepTotal    *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	deletedRows   *prometheus.CounterVec
}

func NewSweeperMetrics(service string) *SweeperMetrics {
	registry := prometheus.NewRegistry()

	sweepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "sweeper",
			Name:      "sweeps_total",
			Help:      "Total cache sweep runs by status.",
		},
		[]string{"service", "status"},
	)
	sweepDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msearch",
			Subsystem: "sweeper",
			Name:      "sweep_duration_seconds",
			Help:      "Cache sweep duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	deletedRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msearch",
			Subsystem: "sweeper",
			Name:      "deleted_rows_total",
			Help:      "Total expired cache rows deleted.",
		},
		[]string{"service"},
	)

	registry.MustRegister(sweepTotal, sweepDuration, deletedRows)

	return &SweeperMetrics{
		registry:      registry,
		sweepTotal:    sweepTotal,
		sweepDuration: sweepDuration,
		deletedRows:   deletedRows,
	}
}

func (m *SweeperMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SweeperMetrics) FinishSweep(service string, deleted int64, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.sweepTotal.WithLabelValues(service, status).Inc()
	m.sweepDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if deleted > 0 {
		m.deletedRows.WithLabelValues(service).Add(float64(deleted))
	}
}
