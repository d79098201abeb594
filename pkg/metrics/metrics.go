// Package metrics exposes Prometheus instrumentation for the transaction
// engine, the CAS, and the state/rollback engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conary_engine_transactions_total",
			Help: "Total number of transaction-engine operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)

	TransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conary_engine_transaction_duration_seconds",
			Help:    "Duration of a transaction-engine operation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	FileConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conary_engine_file_conflicts_total",
			Help: "Total number of file-ownership conflicts detected during planning",
		},
	)

	// CAS metrics
	CASObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conary_cas_objects_total",
			Help: "Total number of distinct content-addressed blobs on disk",
		},
	)

	CASBytesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conary_cas_bytes_total",
			Help: "Total bytes occupied by the CAS object tree",
		},
	)

	CASEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conary_cas_evictions_total",
			Help: "Total number of blobs evicted from the CAS",
		},
	)

	CASBloomFalsePositives = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conary_cas_bloom_false_positives_total",
			Help: "Approximate count of Bloom filter positives that missed on disk",
		},
	)

	CASStoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "conary_cas_store_duration_seconds",
			Help:    "Duration of CAS store() calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// State/rollback metrics
	StatesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conary_states_total",
			Help: "Total number of recorded states",
		},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conary_rollbacks_total",
			Help: "Total number of rollback operations by outcome",
		},
		[]string{"outcome"},
	)

	// Scriptlet/hook metrics
	HookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conary_hook_duration_seconds",
			Help:    "Duration of a declarative hook or scriptlet phase in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	HookFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conary_hook_failures_total",
			Help: "Total number of hook/scriptlet failures by phase",
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(
		TransactionsTotal,
		TransactionDuration,
		FileConflictsTotal,
		CASObjectsTotal,
		CASBytesTotal,
		CASEvictionsTotal,
		CASBloomFalsePositives,
		CASStoreDuration,
		StatesTotal,
		RollbacksTotal,
		HookDuration,
		HookFailuresTotal,
	)
}

// Handler returns the Prometheus HTTP handler for an external process to serve.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
