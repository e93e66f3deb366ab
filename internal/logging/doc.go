// Package logging provides a simple leveled logging interface for the
// image tagger.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The level comes from the DEBUG or LOG_LEVEL environment variables and can
// be overridden at runtime with SetLevel (the tagctl --verbose flag does this).
package logging
