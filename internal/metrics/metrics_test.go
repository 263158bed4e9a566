package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"DBQueryTotal", DBQueryTotal},
		{"DBQueryDuration", DBQueryDuration},
		{"DBConnectionsOpen", DBConnectionsOpen},
		{"ConversionsTotal", ConversionsTotal},
		{"ConversionDuration", ConversionDuration},
		{"ConversionFailures", ConversionFailures},
		{"GeneratorSelections", GeneratorSelections},
		{"ResponsiveImagesGenerated", ResponsiveImagesGenerated},
		{"ExternalProcessDuration", ExternalProcessDuration},
		{"MediaTotal", MediaTotal},
		{"QueueDepth", QueueDepth},
		{"QueueJobsTotal", QueueJobsTotal},
		{"QueueWorkersBusy", QueueWorkersBusy},
		{"StorageOperationsTotal", StorageOperationsTotal},
		{"StorageOperationDuration", StorageOperationDuration},
		{"FilesystemRetryAttempts", FilesystemRetryAttempts},
		{"FilesystemRetrySuccess", FilesystemRetrySuccess},
		{"FilesystemRetryFailures", FilesystemRetryFailures},
		{"FilesystemStaleErrors", FilesystemStaleErrors},
		{"FilesystemRetryDuration", FilesystemRetryDuration},
		{"AppInfo", AppInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.0.0", "abc123", "go1.25")

	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.0.0", "abc123", "go1.25")); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}
}

func TestInitializeMetricsPopulatesLabels(t *testing.T) {
	InitializeMetrics([]string{"image", "video"}, []string{"local"})

	if n := testutil.CollectAndCount(ConversionsTotal); n < 6 {
		t.Errorf("ConversionsTotal series = %d, want at least 6", n)
	}
	if n := testutil.CollectAndCount(StorageOperationsTotal); n < 12 {
		t.Errorf("StorageOperationsTotal series = %d, want at least 12", n)
	}
}

func TestFilesystemObserverRecordsOperations(t *testing.T) {
	o := NewFilesystemObserver()

	before := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("test", "put", "error"))
	o.ObserveOperation("test", "put", 0.01, errors.New("boom"))
	after := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("test", "put", "error"))
	if after-before != 1 {
		t.Errorf("error counter delta = %v, want 1", after-before)
	}

	beforeOK := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("test", "put", "success"))
	o.ObserveOperation("test", "put", 0.01, nil)
	if got := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("test", "put", "success")) - beforeOK; got != 1 {
		t.Errorf("success counter delta = %v, want 1", got)
	}

	o.ObserveRetryAttempt("open", "test")
	o.ObserveRetrySuccess("open", "test")
	o.ObserveRetryFailure("open", "test")
	o.ObserveStaleError("open", "test")
	o.ObserveRetryDuration("open", "test", 0.1)

	if got := testutil.ToFloat64(FilesystemRetryAttempts.WithLabelValues("open", "test")); got != 1 {
		t.Errorf("retry attempts = %v, want 1", got)
	}
}
