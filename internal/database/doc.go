// Package database provides the SQLite store behind the ingestion pipeline.
//
// It holds:
//   - the folder registry (folders)
//   - one fingerprint per discovered file (fingerprints)
//   - one processing record per image with its status, attempt counters,
//     last error, description and the fingerprint it was processed at
//     (processing_records, record_tags)
//   - small key/value settings (metadata)
//
// Status changes go through the Mark* methods, which check the transition
// against the processing state machine inside the same transaction that
// applies it. An illegal transition returns ErrInvalidTransition and leaves
// the row untouched.
//
// The database uses WAL mode for concurrent reads and creates its schema on
// first open.
package database
