package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(generators, drivers []string) {
	// --- Conversions per generator ---
	for _, g := range generators {
		for _, status := range []string{"success", "error", "queued"} {
			ConversionsTotal.WithLabelValues(g, status)
		}
		ConversionDuration.WithLabelValues(g)
		GeneratorSelections.WithLabelValues(g)
	}

	for _, kind := range []string{"configuration", "source_unavailable", "conversion", "storage", "unknown"} {
		ConversionFailures.WithLabelValues(kind)
	}

	for _, kind := range []string{"rendition", "placeholder"} {
		ResponsiveImagesGenerated.WithLabelValues(kind)
	}

	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		ExternalProcessDuration.WithLabelValues(bin)
	}

	for _, state := range []string{"active", "trashed"} {
		MediaTotal.WithLabelValues(state)
	}

	// --- Queue ---
	for _, status := range []string{"enqueued", "success", "error", "replayed"} {
		QueueJobsTotal.WithLabelValues(status)
	}

	// --- Storage per driver ---
	storageOps := []string{"put", "open", "delete", "delete_directory", "exists", "list"}
	for _, d := range drivers {
		for _, op := range storageOps {
			StorageOperationDuration.WithLabelValues(d, op)
			StorageOperationsTotal.WithLabelValues(d, op, "success")
			StorageOperationsTotal.WithLabelValues(d, op, "error")
		}
	}

	// --- Filesystem retry metrics (local driver) ---
	for _, op := range []string{"stat", "open", "write"} {
		FilesystemRetryAttempts.WithLabelValues(op, "local")
		FilesystemRetrySuccess.WithLabelValues(op, "local")
		FilesystemRetryFailures.WithLabelValues(op, "local")
		FilesystemStaleErrors.WithLabelValues(op, "local")
		FilesystemRetryDuration.WithLabelValues(op, "local")
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "create", "get", "save", "update",
		"delete", "force_delete", "list_by_model", "list_missing", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
