// Package metrics provides Prometheus instrumentation for the image tagger.
//
// All metrics are prefixed with "image_tagger_" and registered through
// promauto at package init. They are grouped by the component that updates
// them:
//
//   - HTTP: request totals, durations and in-flight requests (middleware)
//   - Database: query totals and durations per operation, transaction
//     durations, open connections, SQLite file sizes
//   - Library: records per status, folders, fingerprints (sampled by Collector)
//   - Scanner and detector: scan runs per trigger, discovered files,
//     classifications per result, fingerprint cost per policy
//   - Orchestrator: queue depth, claimed paths, busy workers, task outcomes
//   - Vision: describe results and latency, health probes, backend restarts
//   - Metadata: write attempts per strategy and result
//   - Progress: the live run counters behind /api/processing-status
//   - Watcher: fsnotify events, dispatched paths, watched directories
//   - Filesystem: NFS retry counters per operation and volume
//   - Memory: heap usage ratio and pause state from the memory monitor
//
// InitializeMetrics pre-populates label sets so dashboards see zeros instead
// of missing series. The Collector samples slow-moving totals from a
// StatsProvider (the database) on an interval.
//
// Metrics are served by promhttp on the port configured with METRICS_PORT.
package metrics
