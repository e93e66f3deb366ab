package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_tagger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_tagger_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_tagger_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"type"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_tagger_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Library metrics, sampled by the Collector
var (
	RecordsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_tagger_records",
			Help: "Processing records by status",
		},
		[]string{"status"},
	)

	FoldersTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_tagger_folders",
			Help: "Registered folders by state",
		},
		[]string{"state"}, // "active", "inactive"
	)

	FingerprintsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_fingerprints",
			Help: "Number of stored file fingerprints",
		},
	)
)

// Scanner metrics
var (
	ScannerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_scanner_runs_total",
			Help: "Total number of folder scans by trigger",
		},
		[]string{"trigger"}, // "manual", "all", "periodic", "startup", "cli"
	)

	ScannerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_tagger_scanner_run_duration_seconds",
			Help:    "Time spent discovering and classifying one folder",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	ScannerFilesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_tagger_scanner_files_discovered_total",
			Help: "Total number of candidate images discovered",
		},
	)

	ScannerFolderErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_tagger_scanner_folder_errors_total",
			Help: "Total number of folders skipped because they were unavailable",
		},
	)

	ScannerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_scanner_running",
			Help: "Number of folder scans currently running",
		},
	)
)

// Change detection metrics
var (
	DetectorClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_detector_classifications_total",
			Help: "Total number of change classifications by result",
		},
		[]string{"class"}, // "new", "modified", "unchanged", "unreadable"
	)

	FingerprintDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_tagger_fingerprint_duration_seconds",
			Help:    "Time spent computing a file fingerprint",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"policy"},
	)
)

// Orchestrator metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_queue_depth",
			Help: "Number of tasks waiting in the processing queue",
		},
	)

	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_tasks_in_flight",
			Help: "Number of paths claimed by the orchestrator (queued, running or backing off)",
		},
	)

	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_workers_busy",
			Help: "Number of workers currently processing a task",
		},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_tasks_total",
			Help: "Total number of task outcomes",
		},
		[]string{"outcome"}, // "completed", "failed", "retried", "coalesced", "unreadable", "requeued", "store_error"
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_tagger_task_duration_seconds",
			Help:    "Processing attempt duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)
)

// Vision backend metrics
var (
	VisionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_vision_requests_total",
			Help: "Total number of describe requests by result",
		},
		[]string{"result"}, // "success", "timeout", "server_error", "malformed_response"
	)

	VisionRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_tagger_vision_request_duration_seconds",
			Help:    "Describe request duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	VisionHealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_vision_health_checks_total",
			Help: "Total number of backend health probes by result",
		},
		[]string{"result"},
	)

	VisionRestartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_vision_restarts_total",
			Help: "Total number of backend restart attempts",
		},
		[]string{"result"}, // "success", "error", "skipped"
	)
)

// Metadata embedding metrics
var (
	MetadataWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_metadata_writes_total",
			Help: "Total number of metadata write attempts by strategy and result",
		},
		[]string{"strategy", "result"}, // result: "success", "error", "unsupported"
	)

	MetadataWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_tagger_metadata_write_duration_seconds",
			Help:    "Metadata write duration by strategy",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"strategy"},
	)
)

// Progress metrics
var (
	ProgressActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_progress_active",
			Help: "Whether a processing run is active (1 = active, 0 = idle)",
		},
	)

	ProgressTotalTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_progress_total_tasks",
			Help: "Total tasks registered in the current run",
		},
	)

	ProgressCompletedTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_progress_completed_tasks",
			Help: "Tasks finished in the current run",
		},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_watcher_events_total",
			Help: "Total number of filesystem watcher events by type",
		},
		[]string{"type"}, // "create", "write", "remove", "rename", "chmod"
	)

	WatcherDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_tagger_watcher_dispatched_total",
			Help: "Total number of debounced paths handed to the dispatcher",
		},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_tagger_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_watched_directories",
			Help: "Number of directories being watched",
		},
	)
)

// Search index metrics
var (
	SearchIndexOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_search_index_operations_total",
			Help: "Total number of description index operations",
		},
		[]string{"operation", "status"},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_tagger_filesystem_retry_duration_seconds",
			Help:    "Filesystem operation duration including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_tagger_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_memory_usage_ratio",
			Help: "Heap usage as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_memory_paused",
			Help: "Whether processing is paused due to memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_tagger_memory_gc_pauses_total",
			Help: "Total number of times processing paused for memory pressure",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_go_mem_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	GoGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_tagger_go_goroutines",
			Help: "Number of goroutines",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_tagger_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
