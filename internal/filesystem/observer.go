package filesystem

// Observer records storage operation metrics. Implementations are provided
// by the metrics package to break the import cycle between filesystem and metrics.
type Observer interface {
	// ObserveOperation records duration and error status for one disk
	// operation. driver is "local", "s3" or "gcs"; operation is one of
	// put, open, delete, delete_directory, exists, list.
	ObserveOperation(driver, operation string, durationSeconds float64, err error)

	// Retry metrics for local disks on NFS. retryOp is stat, open or write.
	ObserveRetryAttempt(retryOp, volume string)
	ObserveRetrySuccess(retryOp, volume string)
	ObserveRetryFailure(retryOp, volume string)
	ObserveRetryDuration(retryOp, volume string, durationSeconds float64)
	ObserveStaleError(retryOp, volume string)
}

// noopObserver is used until SetObserver is called.
type noopObserver struct{}

func (noopObserver) ObserveOperation(string, string, float64, error) {}
func (noopObserver) ObserveRetryAttempt(string, string)              {}
func (noopObserver) ObserveRetrySuccess(string, string)              {}
func (noopObserver) ObserveRetryFailure(string, string)              {}
func (noopObserver) ObserveRetryDuration(string, string, float64)    {}
func (noopObserver) ObserveStaleError(string, string)                {}

// defaultObserver is the package-level observer set at startup.
var defaultObserver Observer = noopObserver{}

// SetObserver sets the package-level metrics observer.
// Call this once at startup after creating the observer implementation.
func SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
