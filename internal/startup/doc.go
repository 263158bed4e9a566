// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// A .env file in the working directory is read first; variables already set
// in the process environment take precedence. The following variables are
// supported:
//
//   - DATABASE_DIR: Directory holding media.db (default: /database)
//   - TEMP_DIR: Parent of per-run scratch directories (default: $TMPDIR/media-conversions)
//   - QUEUE_DIR: Pebble directory of the conversion queue (default: DATABASE_DIR/queue)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - CONVERSIONS_FILE: YAML conversion declarations (default: conversions.yaml)
//   - IMAGE_DRIVER: imaging or vips (default: imaging)
//   - FFMPEG_PATH, FFPROBE_PATH: Video tool binaries (default: from PATH)
//   - QUEUE_CONVERSIONS_BY_DEFAULT: Default of the queued flag (default: true)
//   - CONVERSION_WORKERS: Queue worker count (default: derived from CPUs)
//   - CONVERSION_TIMEOUT: Per-conversion timeout as Go duration (default: 5m)
//   - USE_TINY_PLACEHOLDERS: Generate blurred SVG placeholders (default: true)
//   - DEFAULT_DISK: Disk new media is stored on (default: local)
//
// # Disks
//
// The local disk is always configured from LOCAL_DISK_ROOT and
// LOCAL_DISK_URL. An s3 disk is added when S3_BUCKET is set (S3_REGION,
// S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY, S3_ROOT, S3_DOMAIN) and a gcs
// disk when GCS_BUCKET is set (GCS_CREDENTIALS_FILE, GCS_DOMAIN).
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogDatabaseInit], [LogConversionsInit], [LogGeneratorsInit],
// [LogQueueInit], [LogHTTPRoutes], [LogServerStarted] and the shutdown
// helpers print the sectioned startup log.
package startup
