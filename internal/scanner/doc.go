// Package scanner discovers candidate images under a watched folder.
//
// Discover walks the folder (optionally only its top level), keeps files with
// a supported image extension, skips hidden entries, and returns them as a
// Listing ordered newest first. Stat calls are spread over a small worker
// pool using the NFS-aware retry helpers, since on network mounts they
// dominate the walk.
package scanner
