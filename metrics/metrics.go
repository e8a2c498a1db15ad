package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workflow metrics
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_transitions_total",
			Help: "Applied or rejected inquiry actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	versionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inquiry_version_conflicts_total",
			Help: "Optimistic concurrency conflicts observed while applying actions",
		},
	)

	applyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inquiry_apply_duration_seconds",
			Help:    "End-to-end duration of applying an action, retries included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"action"},
	)

	// Expiry metrics
	expiriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_expiries_total",
			Help: "Implicit rejections materialised after a countdown elapsed",
		},
		[]string{"kind", "source"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inquiry_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Store metrics
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_store_operations_total",
			Help: "Store calls by driver, operation and status",
		},
		[]string{"driver", "operation", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inquiry_store_operation_duration_seconds",
			Help:    "Store call duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"driver", "operation"},
	)
)

// RecordTransition counts one apply outcome; outcome is an error kind or "ok".
func RecordTransition(action, outcome string, d time.Duration) {
	transitionsTotal.WithLabelValues(action, outcome).Inc()
	applyDuration.WithLabelValues(action).Observe(d.Seconds())
}

func RecordVersionConflict() {
	versionConflictsTotal.Inc()
}

// RecordExpiry counts an implicit rejection. kind is "slot" or "coordinator",
// source is "sweep" or "task".
func RecordExpiry(kind, source string) {
	expiriesTotal.WithLabelValues(kind, source).Inc()
}

func RecordSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

// RecordStoreOperation counts a store call and its latency.
func RecordStoreOperation(driver, operation string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	storeOperationsTotal.WithLabelValues(driver, operation, status).Inc()
	storeOperationDuration.WithLabelValues(driver, operation).Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
