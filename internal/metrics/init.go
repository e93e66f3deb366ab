package metrics

// InitializeMetrics pre-populates the expected label combinations so every
// metric is exported from the first Prometheus scrape.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"initialize_schema", "get_fingerprint", "upsert_fingerprint", "touch_fingerprint",
		"get_record", "mark_pending", "mark_processing", "mark_completed", "mark_retry", "mark_failed",
		"recover_interrupted", "list_folders", "add_folder", "get_folder", "set_folder_active", "status_counts"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}

	for _, s := range []string{"pending", "processing", "completed", "failed"} {
		RecordsByStatus.WithLabelValues(s)
	}
	FoldersTotal.WithLabelValues("active")
	FoldersTotal.WithLabelValues("inactive")

	for _, trigger := range []string{"manual", "all", "periodic", "startup", "watch", "cli"} {
		ScannerRunsTotal.WithLabelValues(trigger)
	}

	for _, class := range []string{"new", "modified", "unchanged", "unreadable"} {
		DetectorClassificationsTotal.WithLabelValues(class)
	}
	for _, policy := range []string{"sha256", "blake3", "size-mtime"} {
		FingerprintDuration.WithLabelValues(policy)
	}

	for _, outcome := range []string{"completed", "failed", "retried", "coalesced", "unreadable", "requeued", "store_error"} {
		TasksTotal.WithLabelValues(outcome)
	}
	for _, outcome := range []string{"completed", "failed", "retried"} {
		TaskDuration.WithLabelValues(outcome)
	}

	for _, result := range []string{"success", "timeout", "server_error", "malformed_response"} {
		VisionRequestsTotal.WithLabelValues(result)
	}
	VisionHealthChecksTotal.WithLabelValues("healthy")
	VisionHealthChecksTotal.WithLabelValues("unhealthy")
	for _, result := range []string{"success", "error", "skipped"} {
		VisionRestartsTotal.WithLabelValues(result)
	}

	for _, strategy := range []string{"xmp", "exiftool", "exiv2"} {
		for _, result := range []string{"success", "error", "unsupported"} {
			MetadataWritesTotal.WithLabelValues(strategy, result)
		}
		MetadataWriteDuration.WithLabelValues(strategy)
	}

	for _, ev := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}

	for _, op := range []string{"index", "search"} {
		SearchIndexOperationsTotal.WithLabelValues(op, "success")
		SearchIndexOperationsTotal.WithLabelValues(op, "error")
	}

	for _, op := range []string{"stat", "open", "readdir", "write"} {
		for _, vol := range []string{"database", "folders", "unknown"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
