// Package detector decides whether a discovered file needs processing.
//
// Classify compares the file's current fingerprint with the stored one and
// with the fingerprint recorded at the last successful processing:
//
//   - New: never seen, or seen but never finished (no record, or Pending)
//   - Modified: content or attributes changed since last seen or processed
//   - Unchanged: nothing to do
//   - Unreadable: the file cannot be decoded and must not be queued
//
// The stored fingerprint is refreshed as a side effect so the next scan
// compares against what this one saw.
package detector
