package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"DBQueryTotal", DBQueryTotal},
		{"RecordsByStatus", RecordsByStatus},
		{"ScannerRunsTotal", ScannerRunsTotal},
		{"DetectorClassificationsTotal", DetectorClassificationsTotal},
		{"QueueDepth", QueueDepth},
		{"TasksInFlight", TasksInFlight},
		{"TasksTotal", TasksTotal},
		{"VisionRequestsTotal", VisionRequestsTotal},
		{"MetadataWritesTotal", MetadataWritesTotal},
		{"ProgressActive", ProgressActive},
		{"WatcherEventsTotal", WatcherEventsTotal},
		{"SearchIndexOperationsTotal", SearchIndexOperationsTotal},
		{"FilesystemRetryAttempts", FilesystemRetryAttempts},
		{"MemoryUsageRatio", MemoryUsageRatio},
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

func TestInitializeMetricsPopulatesLabels(t *testing.T) {
	InitializeMetrics()

	if n := testutil.CollectAndCount(RecordsByStatus); n != 4 {
		t.Errorf("Expected 4 status series, got %d", n)
	}
	if n := testutil.CollectAndCount(DetectorClassificationsTotal); n != 4 {
		t.Errorf("Expected 4 classification series, got %d", n)
	}
	if n := testutil.CollectAndCount(MetadataWritesTotal); n != 9 {
		t.Errorf("Expected 9 metadata write series, got %d", n)
	}
}

func TestFilesystemObserverRecords(t *testing.T) {
	obs := NewFilesystemObserver()

	before := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("stat", "folders"))
	obs.ObserveStaleError("stat", "folders")
	after := testutil.ToFloat64(FilesystemStaleErrors.WithLabelValues("stat", "folders"))

	if after != before+1 {
		t.Errorf("Expected stale error counter to increase by 1, got %v -> %v", before, after)
	}

	obs.ObserveRetryAttempt("open", "folders")
	obs.ObserveRetrySuccess("open", "folders")
	obs.ObserveRetryFailure("open", "folders")
	obs.ObserveRetryDuration("open", "folders", 0.01)
}
