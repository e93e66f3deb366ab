// Package watcher feeds filesystem changes in registered folders into the
// processing pipeline.
//
// fsnotify events for supported image files are debounced per path by a quiet
// period. Timer callbacks only push the path into a single inbox channel,
// which one dispatcher goroutine drains, so at most one classification per
// watcher runs at a time. Subdirectories of recursive folders are watched,
// including ones created after the watcher started.
package watcher
