// Package handlers provides the HTTP API of the image tagger.
//
// It includes handlers for:
//   - Processing progress polling
//   - Folder registration, activation and scan triggers
//   - Processing record lookup and description search
//   - Health checks, version and metrics
package handlers
