// Package main provides the entry point for the image tagger server.
//
// The server watches image folders, asks a vision model (Ollama) for a
// description of every new or changed image, derives tags from it, embeds
// both into the file's metadata and keeps a searchable record per image.
// Each image is described once until its content changes.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or cgroup limits
//  2. Configuration Loading: Reads CONFIG_FILE and environment variables
//  3. libvips Initialization: Optional, pure Go decoding is the fallback
//  4. Component Wiring ([image-tagger/internal/app]):
//     - Database: SQLite fingerprints, processing records and folders
//     - Vision client and metadata writer
//     - Orchestrator: worker pool, retry policy and progress reporter
//     - Search index: bleve index over completed descriptions
//     - Folder watcher: fsnotify with per-file debouncing
//  5. Startup: Interrupted records return to Pending, configured folders are
//     registered and watched, then the startup scan runs
//  6. HTTP Server: API and health endpoints, metrics on a separate port
//  7. Graceful Shutdown: Handles SIGINT/SIGTERM
//
// # Endpoints
//
//	GET    /health, /healthz          status, record counts, current progress
//	GET    /livez, /readyz            probes
//	GET    /version                   build information
//	GET    /api/processing-status     progress snapshot, safe to poll
//	GET    /api/folders               folder registry
//	POST   /api/folders               register {"path", "recursive"} and scan it
//	POST   /api/folders/{id}/scan     scan one folder (?force=true reprocesses)
//	DELETE /api/folders/{id}/scan     cancel a folder scan
//	DELETE /api/folders/{id}          deactivate: cancel its scan, stop watching it
//	PUT    /api/folders/{id}/activate reactivate, watch and scan it
//	POST   /api/scan                  scan every active folder
//	GET    /api/images/record?path=   processing record of one image
//	GET    /api/search?q=             search descriptions and tags
//
// # Graceful Shutdown
//
//  1. Stop accepting HTTP requests
//  2. Shutdown metrics server
//  3. Stop the folder watcher (pending debounced changes are dropped)
//  4. Stop the workers; interrupted records stay Pending for the next start
//  5. Close the search index and the database
//
// See [image-tagger/internal/startup] for configuration variables.
package main
