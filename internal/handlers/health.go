package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"image-tagger/internal/progress"
	"image-tagger/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Error    string `json:"error,omitempty"`
	LastScan string `json:"lastScan,omitempty"`

	Processing progress.Snapshot `json:"processing"`
	Records    map[string]int    `json:"records"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ready := h.ready.Load()
	response := HealthResponse{
		Ready:        ready,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Processing:   h.orch.Reporter().Snapshot(),
		Records:      map[string]int{},
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}

	if err := h.db.Ping(ctx); err != nil {
		response.Status = statusDegraded
		response.Error = "database unavailable: " + err.Error()
	} else {
		if counts, err := h.db.StatusCounts(ctx); err == nil {
			for status, n := range counts {
				response.Records[string(status)] = n
			}
		}
		if last, err := h.db.GetLastScan(ctx); err == nil && !last.IsZero() {
			response.LastScan = last.Format(time.RFC3339)
		}
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONStatusCode(w, response, statusCode)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when startup has finished and the
// database answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.ready.Load() && h.db.Ping(ctx) == nil {
		writeJSONStatusCode(w, map[string]string{"status": "ready"}, http.StatusOK)
		return
	}
	writeJSONStatusCode(w, map[string]string{"status": "not_ready"}, http.StatusServiceUnavailable)
}
