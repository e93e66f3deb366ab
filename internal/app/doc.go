// Package app wires the image tagging pipeline together: the database, the
// vision client, the metadata writer, the orchestrator, the search index,
// the folder watcher and the HTTP handlers.
//
// [Build] constructs everything without starting background work. [App.Start]
// recovers interrupted records, starts the workers, seeds and watches the
// configured folders and schedules the startup and periodic scans.
// [App.Shutdown] stops event sources before the workers and closes storage
// last.
package app
