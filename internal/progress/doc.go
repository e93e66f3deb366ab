// Package progress tracks the processing run that callers poll.
//
// A run is opened with BeginRun and counts units of work: every task a
// producer registers is later either advanced or retracted. Producers that
// start while a run is active extend it, so concurrent folder scans share
// one progress bar. The run ends only when every registered unit has been
// accounted for.
package progress
