// Package metrics provides Prometheus instrumentation for the media-conversions service.
//
// All metrics are prefixed with "media_conversions_" and registered with the
// default registry through promauto. They are served on /metrics by the
// metrics server started in cmd/media-conversions.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Database Metrics
//
//   - DBQueryTotal: Counter of queries by operation and status
//   - DBQueryDuration: Histogram of query duration by operation
//   - DBConnectionsOpen: Gauge of open database connections
//
// ## Conversion Metrics
//
//   - ConversionsTotal: Counter of conversions by generator and status
//   - ConversionDuration: Histogram of time to produce one derived file
//   - ConversionFailures: Counter of failures by kind
//   - GeneratorSelections: Counter of generator dispatch decisions
//   - ResponsiveImagesGenerated: Counter of responsive renditions and placeholders
//   - ExternalProcessDuration: Histogram of ffmpeg and ffprobe run time
//   - MediaTotal: Gauge of media records by state, updated by the Collector
//
// ## Queue Metrics
//
//   - QueueDepth: Gauge of pending jobs
//   - QueueJobsTotal: Counter of jobs by outcome
//   - QueueWorkersBusy: Gauge of workers running a job
//
// ## Storage Metrics
//
//   - StorageOperationsTotal / StorageOperationDuration: per driver and operation
//   - FilesystemRetry*: retries of local operations after ESTALE
//
// The filesystem package cannot import this package, so storage metrics are
// recorded through the filesystem.Observer returned by NewFilesystemObserver:
//
//	filesystem.SetObserver(metrics.NewFilesystemObserver())
//
// Call InitializeMetrics once at startup so every label combination is
// exported from the first scrape.
package metrics
