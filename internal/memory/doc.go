// Package memory keeps the worker pool inside the container's memory budget.
//
// ConfigureFromEnv sets GOMEMLIMIT from MEMORY_LIMIT (bytes, usually passed
// through the Kubernetes Downward API) and MEMORY_RATIO, unless GOMEMLIMIT is
// already set. Call it first thing in main.
//
// Monitor samples heap usage against that limit. Above the critical
// watermark it reports paused and workers block in WaitIfPaused before
// decoding the next image; they resume once usage drops below the high
// watermark. libvips and the external metadata tools allocate outside the Go
// heap, so leave headroom with a ratio below 1.0.
package memory
