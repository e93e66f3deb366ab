package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"image-tagger/internal/database"
	"image-tagger/internal/logging"
	"image-tagger/internal/orchestrator"
)

// FolderResponse is a registered folder with its scan state.
type FolderResponse struct {
	database.Folder
	Scanning bool `json:"scanning"`
}

// ListFolders returns the folder registry.
func (h *Handlers) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.db.ListFolders(r.Context())
	if err != nil {
		logging.Error("Failed to list folders: %v", err)
		writeJSONError(w, "Failed to list folders", http.StatusInternalServerError)
		return
	}

	out := make([]FolderResponse, 0, len(folders))
	for _, f := range folders {
		out = append(out, FolderResponse{Folder: f, Scanning: h.orch.ScanRunning(f.ID)})
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, out)
}

type addFolderRequest struct {
	Path      string `json:"path"`
	Recursive *bool  `json:"recursive"`
}

// AddFolder registers a folder, starts watching it and scans it.
func (h *Handlers) AddFolder(w http.ResponseWriter, r *http.Request) {
	var req addFolderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" || !filepath.IsAbs(req.Path) {
		writeJSONError(w, "Path must be absolute", http.StatusBadRequest)
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil || !info.IsDir() {
		writeJSONError(w, "Path is not an accessible directory", http.StatusBadRequest)
		return
	}

	recursive := req.Recursive == nil || *req.Recursive
	folder, err := h.db.AddFolder(r.Context(), filepath.Clean(req.Path), recursive)
	if err != nil {
		logging.Error("Failed to add folder %s: %v", req.Path, err)
		writeJSONError(w, "Failed to add folder", http.StatusInternalServerError)
		return
	}
	logging.Info("Registered folder %s (recursive: %v)", folder.Path, folder.Recursive)

	if h.watcher != nil {
		if err := h.watcher.AddFolder(*folder); err != nil {
			logging.Warn("Failed to watch %s: %v", folder.Path, err)
		}
	}
	h.startScan(*folder, orchestrator.TriggerManual, false)

	writeJSONStatusCode(w, folder, http.StatusCreated)
}

// ScanFolder starts a scan of one folder. It answers 409 while that folder
// is already being scanned.
func (h *Handlers) ScanFolder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, "Invalid folder id", http.StatusBadRequest)
		return
	}

	folder, err := h.db.GetFolder(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Folder not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to get folder %d: %v", id, err)
		writeJSONError(w, "Failed to get folder", http.StatusInternalServerError)
		return
	}

	if !folder.Active {
		writeJSONError(w, "Folder is not active", http.StatusConflict)
		return
	}
	if h.orch.ScanRunning(id) {
		writeJSONError(w, "Scan already in progress for this folder", http.StatusConflict)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	h.startScan(*folder, orchestrator.TriggerManual, force)

	writeJSONStatusCode(w, map[string]interface{}{
		"status":   "started",
		"folderId": id,
		"force":    force,
	}, http.StatusAccepted)
}

// CancelScan stops an in-progress scan of one folder.
func (h *Handlers) CancelScan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, "Invalid folder id", http.StatusBadRequest)
		return
	}
	if !h.orch.CancelFolder(id) {
		writeJSONError(w, "No scan in progress for this folder", http.StatusNotFound)
		return
	}
	writeJSONStatusCode(w, map[string]string{"status": "cancelled"}, http.StatusOK)
}

// DeactivateFolder stops watching and scanning a folder. Its records are
// kept; tasks already queued finish.
func (h *Handlers) DeactivateFolder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, "Invalid folder id", http.StatusBadRequest)
		return
	}

	err = h.db.SetFolderActive(r.Context(), id, false)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Folder not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to deactivate folder %d: %v", id, err)
		writeJSONError(w, "Failed to deactivate folder", http.StatusInternalServerError)
		return
	}

	cancelled := h.orch.CancelFolder(id)
	if h.watcher != nil {
		h.watcher.RemoveFolder(id)
	}
	logging.Info("Deactivated folder %d (scan cancelled: %v)", id, cancelled)

	writeJSONStatusCode(w, map[string]interface{}{
		"status":        "deactivated",
		"folderId":      id,
		"scanCancelled": cancelled,
	}, http.StatusOK)
}

// ActivateFolder re-enables a folder, watches it again and scans it.
func (h *Handlers) ActivateFolder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, "Invalid folder id", http.StatusBadRequest)
		return
	}

	err = h.db.SetFolderActive(r.Context(), id, true)
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, "Folder not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to activate folder %d: %v", id, err)
		writeJSONError(w, "Failed to activate folder", http.StatusInternalServerError)
		return
	}
	folder, err := h.db.GetFolder(r.Context(), id)
	if err != nil {
		logging.Error("Failed to get folder %d: %v", id, err)
		writeJSONError(w, "Failed to get folder", http.StatusInternalServerError)
		return
	}
	logging.Info("Activated folder %s", folder.Path)

	if h.watcher != nil {
		if err := h.watcher.AddFolder(*folder); err != nil {
			logging.Warn("Failed to watch %s: %v", folder.Path, err)
		}
	}
	h.startScan(*folder, orchestrator.TriggerManual, false)

	writeJSONStatusCode(w, folder, http.StatusOK)
}

// ScanAll starts a scan of every active folder. It answers 409 while a
// scan of all folders is running.
func (h *Handlers) ScanAll(w http.ResponseWriter, r *http.Request) {
	if h.orch.ScanAllRunning() {
		writeJSONError(w, "Scan already in progress", http.StatusConflict)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.orch.ScanAll(ctx, orchestrator.TriggerAll, force); err != nil {
			if errors.Is(err, orchestrator.ErrScanInProgress) {
				logging.Debug("Scan of all folders already running")
				return
			}
			logging.Error("Scan of all folders failed: %v", err)
		}
	}()

	writeJSONStatusCode(w, map[string]interface{}{"status": "started", "force": force}, http.StatusAccepted)
}

// startScan runs a folder scan in the background. Discovery can take a
// while on large folders, so the request does not wait for it.
func (h *Handlers) startScan(folder database.Folder, trigger string, force bool) {
	go func() {
		if _, err := h.orch.ScanFolder(context.Background(), folder, trigger, force); err != nil {
			if errors.Is(err, orchestrator.ErrScanInProgress) || errors.Is(err, orchestrator.ErrFolderInactive) {
				logging.Debug("Not scanning %s: %v", folder.Path, err)
				return
			}
			logging.Warn("Scan of %s failed: %v", folder.Path, err)
		}
	}()
}
