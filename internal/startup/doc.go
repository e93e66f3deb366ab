// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional TOML file named by CONFIG_FILE, then
// environment variables, which take precedence. [ReadConfig] does the same
// without logging or directory checks and is used by the CLI.
//
//   - DATABASE_DIR: database and search index directory (default: /data)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT / METRICS_ENABLED: Prometheus endpoint (default: 9090, true)
//   - WATCH_FOLDERS: comma-separated folders, "path:norecurse" for top level only
//   - SCAN_ON_STARTUP, SCAN_INTERVAL: startup and periodic rescans (default: true, 1h)
//   - WATCH_ENABLED, WATCH_DEBOUNCE: filesystem watching (default: true, 2s)
//   - BATCH_SIZE, BATCH_DELAY: pause between dispatch batches of a scan
//   - PROCESSING_WORKERS, QUEUE_SIZE, MAX_ATTEMPTS, RETRY_BACKOFF, RETRY_BACKOFF_MAX
//   - FINGERPRINT_POLICY: sha256, blake3 or size-mtime (default: sha256)
//   - VISION_MAX_DIMENSION: longest edge of the image sent to the model (default: 1024)
//   - OLLAMA_SERVER, OLLAMA_MODEL, OLLAMA_TIMEOUT, OLLAMA_PROMPT, OLLAMA_TEMPERATURE
//   - OLLAMA_HEALTH_CHECK: probe /api/tags before each request (default: true)
//   - OLLAMA_RESTART_CMD, OLLAMA_RESTART_COOLDOWN: shell command run after backend crashes
//   - WRITE_METADATA, METADATA_STRATEGIES, METADATA_TOOL_TIMEOUT
//   - SEARCH_ENABLED: description search index (default: true)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//
// The file uses the same settings in snake_case, with [ollama] and
// [metadata] tables and a [[folders]] list:
//
//	port = "8080"
//	scan_interval = "30m"
//
//	[ollama]
//	server = "http://127.0.0.1:11434"
//	model = "llama3.2-vision"
//
//	[[folders]]
//	path = "/photos"
//	recursive = true
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
