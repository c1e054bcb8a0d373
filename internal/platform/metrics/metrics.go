package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	OperationsCommitted prometheus.Counter
	OperationsRejected  *prometheus.CounterVec
	RegistersCreated    prometheus.Counter
	RegistersConsumed   prometheus.Counter
	RegistersArchived   prometheus.Counter
	LocksReclaimed      prometheus.Counter
	GCRuns              prometheus.Counter
	GCBatchDuration     prometheus.Histogram
}

// New creates and registers all ledger metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		OperationsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "causality_operations_committed_total",
			Help: "Total register operations committed.",
		}),
		OperationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "causality_operations_rejected_total",
			Help: "Total register operations rejected, by error code.",
		}, []string{"code"}),
		RegistersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "causality_registers_created_total",
			Help: "Total registers created.",
		}),
		RegistersConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "causality_registers_consumed_total",
			Help: "Total registers consumed.",
		}),
		RegistersArchived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "causality_registers_archived_total",
			Help: "Total registers archived by garbage collection.",
		}),
		LocksReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "causality_locks_reclaimed_total",
			Help: "Total expired register locks reclaimed to active.",
		}),
		GCRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "causality_gc_runs_total",
			Help: "Total garbage collection passes.",
		}),
		GCBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "causality_gc_batch_duration_seconds",
			Help:    "Duration of garbage collection batches.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncRejected counts a rejection under its error code.
func (m *Metrics) IncRejected(code string) {
	if m == nil {
		return
	}
	m.OperationsRejected.WithLabelValues(code).Inc()
}
