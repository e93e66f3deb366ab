package handlers

import (
	"net/http"
)

// GetProcessingStatus returns the progress snapshot of the current or last
// processing run. It has no side effects and is safe to poll.
func (h *Handlers) GetProcessingStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, h.orch.Reporter().Snapshot())
}
