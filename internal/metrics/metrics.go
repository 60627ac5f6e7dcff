package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clu_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clu_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Index store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_db_queries_total",
			Help: "Total number of index store queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clu_db_query_duration_seconds",
			Help:    "Index store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clu_db_transaction_duration_seconds",
			Help:    "Index store transaction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"result"}, // "commit" or "rollback"
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clu_db_rows_affected",
			Help:    "Rows affected by index store write operations",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"operation"},
	)

	IndexEntriesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clu_index_entries",
			Help: "Number of indexed entries by type",
		},
		[]string{"type"},
	)
)

// Reconciler metrics
var (
	RebuildRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clu_rebuild_runs_total",
			Help: "Total number of reconciliation passes",
		},
	)

	RebuildErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clu_rebuild_errors_total",
			Help: "Total number of failed reconciliation passes",
		},
	)

	RebuildIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clu_rebuild_running",
			Help: "Whether a reconciliation pass is in progress (1 = running, 0 = idle)",
		},
	)

	RebuildLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clu_rebuild_last_run_timestamp",
			Help: "Unix timestamp of the last completed reconciliation pass",
		},
	)

	RebuildLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clu_rebuild_last_run_duration_seconds",
			Help: "Duration of the last reconciliation pass in seconds",
		},
	)

	RebuildEntriesDiffed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_rebuild_entries_total",
			Help: "Entries processed by reconciliation, by outcome",
		},
		[]string{"outcome"}, // "added", "removed", "unchanged"
	)
)

// Scanner metrics
var (
	ScannerEntriesScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clu_scanner_entries_scanned_total",
			Help: "Total number of filesystem entries emitted by the scanner",
		},
	)

	ScannerSkippedErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clu_scanner_skipped_errors_total",
			Help: "Total number of unreadable entries skipped during scans",
		},
	)

	ScannerMissingRoots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clu_scanner_missing_roots_total",
			Help: "Total number of scans that found a library root unavailable",
		},
	)
)

// Directory listing cache metrics
var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_listing_cache_hits_total",
			Help: "Total number of directory listing cache hits",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_listing_cache_misses_total",
			Help: "Total number of directory listing cache misses",
		},
		[]string{"namespace"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_listing_cache_evictions_total",
			Help: "Total number of directory listing cache evictions",
		},
		[]string{"reason"}, // "ttl", "capacity", "invalidation", "shrink", "clear"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clu_listing_cache_entries",
			Help: "Number of entries currently held by the directory listing cache",
		},
	)

	CacheCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clu_listing_cache_capacity",
			Help: "Current effective capacity of the directory listing cache",
		},
	)
)

// Invalidation metrics
var (
	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_invalidations_total",
			Help: "Total number of path invalidations by mutation kind",
		},
		[]string{"kind"}, // "invalidate", "create", "delete", "move"
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clu_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clu_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)
)

// Memory metrics
var (
	MemoryUsageMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clu_memory_usage_mb",
			Help: "Current heap allocation in megabytes",
		},
	)

	MemoryShrinksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clu_memory_cache_shrinks_total",
			Help: "Total number of memory-pressure cache shrinks",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clu_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
