/*
Package filesystem wraps the file operations the pipeline performs on watched
folders with retry logic for NFS stale file handle errors, and provides the
atomic replace used when metadata is embedded in place.

Watched folders are frequently network mounts. A file that is being rewritten
by another host can briefly return ESTALE (errno 116); those calls are retried
with capped exponential backoff, every other error fails immediately.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	defer f.Close()

	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())

Defaults: 3 retries, 50ms initial backoff, 500ms cap.

WriteFileAtomic writes to a temp file in the destination directory, syncs it,
keeps the original permission bits and renames it over the target, so a crash
mid-write never leaves a truncated image behind.

Metric recording goes through the Observer interface; the metrics package
supplies the implementation at startup.
*/
package filesystem
