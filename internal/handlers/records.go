package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"image-tagger/internal/database"
	"image-tagger/internal/logging"
	"image-tagger/internal/search"
)

// GetRecord returns the processing record for ?path=.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" || !filepath.IsAbs(path) {
		writeJSONError(w, "Query parameter path must be an absolute path", http.StatusBadRequest)
		return
	}

	rec, err := h.db.GetRecord(r.Context(), filepath.Clean(path))
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to get record %s: %v", path, err)
		writeJSONError(w, "Failed to get record", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, rec)
}

// Search queries the description index with ?q= and optional ?limit=.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := search.DefaultLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, 500)
	}

	result, err := h.search.Search(query, limit)
	if errors.Is(err, search.ErrSearchDisabled) {
		writeJSONError(w, "Search is disabled", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		logging.Warn("Search for %q failed: %v", query, err)
		writeJSONError(w, "Invalid search query", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result)
}
