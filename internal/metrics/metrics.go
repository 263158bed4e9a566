package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_conversions_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_conversions_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_conversions_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_conversions_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_conversions_total",
			Help: "Total number of conversions attempted",
		},
		[]string{"generator", "status"}, // status: success, error, queued
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_conversions_conversion_duration_seconds",
			Help:    "Time to produce one derived file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"generator"},
	)

	ConversionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_conversion_failures_total",
			Help: "Total number of failed conversions by failure kind",
		},
		[]string{"kind"}, // configuration, source_unavailable, conversion, storage, unknown
	)

	GeneratorSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_generator_selections_total",
			Help: "Total number of times each generator was selected for a media item",
		},
		[]string{"generator"},
	)

	ResponsiveImagesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_responsive_images_generated_total",
			Help: "Total number of responsive renditions written",
		},
		[]string{"kind"}, // rendition, placeholder
	)

	ExternalProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_conversions_external_process_duration_seconds",
			Help:    "Duration of ffmpeg and ffprobe invocations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"binary"},
	)

	MediaTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_conversions_media_total",
			Help: "Number of media records by state",
		},
		[]string{"state"}, // active, trashed
	)
)

// Queue metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_conversions_queue_depth",
			Help: "Number of conversion jobs waiting in the queue",
		},
	)

	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_queue_jobs_total",
			Help: "Total number of queue jobs by outcome",
		},
		[]string{"status"}, // enqueued, success, error, replayed
	)

	QueueWorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_conversions_queue_workers_busy",
			Help: "Number of queue workers currently running a job",
		},
	)
)

// Storage metrics
var (
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_storage_operations_total",
			Help: "Total number of storage operations by driver",
		},
		[]string{"driver", "operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_conversions_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"driver", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_conversions_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors seen",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_conversions_filesystem_retry_duration_seconds",
			Help:    "Total time spent in a retried filesystem operation",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_conversions_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_conversions_memory_paused",
			Help: "Whether queued conversions are held back by memory pressure (1) or not (0)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_conversions_memory_gc_pauses_total",
			Help: "Total number of times memory pressure paused the queue and forced a GC",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_conversions_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
