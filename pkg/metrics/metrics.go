package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage metrics
	CommittedVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reifydb_committed_version",
			Help: "Highest mvcc version committed to the store",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reifydb_transactions_total",
			Help: "Total number of transactions by outcome (commit, abort, conflict)",
		},
		[]string{"outcome"},
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reifydb_transaction_duration_seconds",
			Help:    "Time from Begin to Commit or Rollback",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CDC metrics
	CdcEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reifydb_cdc_entries_total",
			Help: "Total number of CDC entries appended",
		},
	)

	ConsumerCheckpoint = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reifydb_consumer_checkpoint",
			Help: "Last version consumed by a CDC consumer",
		},
		[]string{"consumer"},
	)

	ConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reifydb_consumer_lag",
			Help: "Difference between the committed version and a consumer's checkpoint",
		},
		[]string{"consumer"},
	)

	// Catalog metrics
	CatalogObjectsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reifydb_catalog_objects_total",
			Help: "Total number of catalog objects by kind",
		},
		[]string{"kind"},
	)

	// Flow engine metrics
	FlowProcessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reifydb_flow_process_duration_seconds",
			Help:    "Time taken to process one CDC version across all flows",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlowProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reifydb_flow_processed_versions_total",
			Help: "Total number of CDC versions processed by the flow engine",
		},
	)

	FlowProcessErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reifydb_flow_process_errors_total",
			Help: "Total number of CDC versions that failed to process and rolled back",
		},
	)

	// Engine (query) metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reifydb_query_duration_seconds",
			Help:    "Time taken to execute a query plan by root operator kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operator"},
	)

	RowsScannedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reifydb_rows_scanned_total",
			Help: "Total number of rows read by table/view scans",
		},
	)

	// Version GC metrics
	VersionsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reifydb_versions_dropped_total",
			Help: "Total number of obsolete row versions reclaimed by the drop worker",
		},
	)

	DropCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reifydb_drop_cycle_duration_seconds",
			Help:    "Time taken for one version-drop worker cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(CommittedVersion)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionDuration)
	prometheus.MustRegister(CdcEntriesTotal)
	prometheus.MustRegister(ConsumerCheckpoint)
	prometheus.MustRegister(ConsumerLag)
	prometheus.MustRegister(CatalogObjectsTotal)
	prometheus.MustRegister(FlowProcessDuration)
	prometheus.MustRegister(FlowProcessedTotal)
	prometheus.MustRegister(FlowProcessErrorsTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(RowsScannedTotal)
	prometheus.MustRegister(VersionsDroppedTotal)
	prometheus.MustRegister(DropCycleDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
