// Package orchestrator runs the processing pipeline.
//
// Producers (folder scans, the folder watcher, the CLI) classify files and
// call Enqueue. A fixed pool of workers takes tasks from a bounded queue and
// for each one encodes the image, asks the vision backend for a description,
// embeds the description and tags into the file, and persists the result
// together with the file's new fingerprint.
//
// A path is owned by at most one task from the moment it is enqueued until
// it reaches a terminal state, including while it waits for a retry, so
// overlapping scans and watcher events never process the same file twice.
// Transient failures are retried with exponential backoff; the wait happens
// on a timer, not on a worker. If the store rejects the write that settles
// an attempt, the task keeps its result and retries just that write.
//
// A file modified while it was being described is recorded with the
// fingerprint of the content that was described and classified again right
// away. Folders the registry has deactivated get no new tasks.
//
// Every unit of work a producer registers with the progress reporter is
// advanced exactly once: when the task completes or fails, or immediately
// when it is dropped, coalesced or unreadable.
package orchestrator
