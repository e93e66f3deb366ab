package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"image-tagger/internal/database"
	"image-tagger/internal/orchestrator"
	"image-tagger/internal/progress"
	"image-tagger/internal/search"
)

type stubDescriber struct{}

func (stubDescriber) Describe(ctx context.Context, image []byte, model, server string, timeout time.Duration) (string, error) {
	return "A lighthouse on a rocky coast", nil
}

type stubWatcher struct {
	mu      sync.Mutex
	folders []database.Folder
	removed []int64
}

func (s *stubWatcher) AddFolder(folder database.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders = append(s.folders, folder)
	return nil
}

func (s *stubWatcher) RemoveFolder(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
}

func (s *stubWatcher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.folders)
}

type testEnv struct {
	h       *Handlers
	db      *database.Database
	orch    *orchestrator.Orchestrator
	idx     *search.Index
	watcher *stubWatcher
	router  *mux.Router
}

func setupHandlers(t *testing.T, withSearch bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	orch := orchestrator.New(orchestrator.Config{Workers: 1}, orchestrator.Deps{
		DB:        db,
		Describer: stubDescriber{},
		Reporter:  progress.New(),
	})
	if err := orch.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(orch.Stop)

	var idx *search.Index
	if withSearch {
		idx, err = search.OpenMemory()
		if err != nil {
			t.Fatalf("OpenMemory() error = %v", err)
		}
		t.Cleanup(func() { idx.Close() })
	}

	w := &stubWatcher{}
	h := New(db, orch, idx, w)

	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/processing-status", h.GetProcessingStatus).Methods("GET")
	api.HandleFunc("/folders", h.ListFolders).Methods("GET")
	api.HandleFunc("/folders", h.AddFolder).Methods("POST")
	api.HandleFunc("/folders/{id}/scan", h.ScanFolder).Methods("POST")
	api.HandleFunc("/folders/{id}/scan", h.CancelScan).Methods("DELETE")
	api.HandleFunc("/folders/{id}", h.DeactivateFolder).Methods("DELETE")
	api.HandleFunc("/folders/{id}/activate", h.ActivateFolder).Methods("PUT")
	api.HandleFunc("/scan", h.ScanAll).Methods("POST")
	api.HandleFunc("/images/record", h.GetRecord).Methods("GET")
	api.HandleFunc("/search", h.Search).Methods("GET")

	return &testEnv{h: h, db: db, orch: orch, idx: idx, watcher: w, router: r}
}

func (e *testEnv) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// waitScans waits for background scans started by a handler to finish.
func (e *testEnv) waitScans(t *testing.T, folderID int64) {
	t.Helper()
	time.Sleep(20 * time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !e.orch.ScanRunning(folderID) && !e.orch.ScanAllRunning() && e.orch.Idle() && !e.orch.Reporter().Active() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for background scan")
}

func completeRecord(t *testing.T, db *database.Database, path, desc string, tags []string) {
	t.Helper()
	ctx := context.Background()
	if err := db.MarkPending(ctx, path, 1); err != nil {
		t.Fatalf("MarkPending() error = %v", err)
	}
	if _, err := db.MarkProcessing(ctx, path); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if err := db.MarkCompleted(ctx, path, database.Outcome{Description: desc, Tags: tags}); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, map[string]int{"count": 3})

	var got map[string]int
	decode(t, w, &got)
	if got["count"] != 3 {
		t.Errorf("Expected count 3, got %d", got["count"])
	}
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSONError(w, "Folder not found", http.StatusNotFound)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	var got map[string]string
	decode(t, w, &got)
	if got["error"] != "Folder not found" {
		t.Errorf("Expected error message, got %v", got)
	}
}

func TestGetProcessingStatus(t *testing.T) {
	env := setupHandlers(t, false)

	rep := env.orch.Reporter()
	rep.BeginRun("scan", 4)
	rep.Advance("/photos/a.jpg")
	t.Cleanup(func() { rep.Abort("test finished") })

	w := env.do(t, http.MethodGet, "/api/processing-status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Expected no-cache, got %q", cc)
	}

	var raw map[string]interface{}
	decode(t, w, &raw)
	for _, key := range []string{"active", "progress", "current_task", "total_tasks", "completed_tasks"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected key %q in %v", key, raw)
		}
	}

	var snap progress.Snapshot
	decode(t, w, &snap)
	if !snap.Active {
		t.Error("Expected active run")
	}
	if snap.TotalTasks != 4 || snap.CompletedTasks != 1 {
		t.Errorf("Expected 1/4, got %d/%d", snap.CompletedTasks, snap.TotalTasks)
	}
	if snap.Progress != 25 {
		t.Errorf("Expected progress 25, got %d", snap.Progress)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	env := setupHandlers(t, false)

	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before ready, got %d", w.Code)
	}
	var resp HealthResponse
	decode(t, w, &resp)
	if resp.Status != statusStarting || resp.Ready {
		t.Errorf("Expected starting, got %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected readiness 503 before ready, got %d", w.Code)
	}

	completeRecord(t, env.db, "/photos/a.jpg", "A dog", []string{"dog"})
	env.h.SetReady(true)

	w = env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 when ready, got %d", w.Code)
	}
	resp = HealthResponse{}
	decode(t, w, &resp)
	if resp.Status != statusHealthy || !resp.Ready {
		t.Errorf("Expected healthy, got %+v", resp)
	}
	if resp.Records[string(database.StatusCompleted)] != 1 {
		t.Errorf("Expected 1 completed record, got %v", resp.Records)
	}
	if resp.GoVersion == "" || resp.NumCPU == 0 {
		t.Error("Expected system info in health response")
	}

	w = env.do(t, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected readiness 200, got %d", w.Code)
	}
}

func TestLivenessCheck(t *testing.T) {
	env := setupHandlers(t, false)

	w := env.do(t, http.MethodGet, "/livez", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "alive") {
		t.Errorf("Expected alive body, got %q", w.Body.String())
	}

	w = env.do(t, http.MethodHead, "/livez", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for HEAD, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body for HEAD, got %q", w.Body.String())
	}
}

func TestGetVersion(t *testing.T) {
	env := setupHandlers(t, false)

	w := env.do(t, http.MethodGet, "/version", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var info map[string]interface{}
	decode(t, w, &info)
	if _, ok := info["version"]; !ok {
		t.Errorf("Expected version field, got %v", info)
	}
}

func TestFolders(t *testing.T) {
	env := setupHandlers(t, false)
	dir := t.TempDir()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing path", `{}`, http.StatusBadRequest},
		{"relative path", `{"path": "photos"}`, http.StatusBadRequest},
		{"missing directory", `{"path": "` + filepath.Join(dir, "nope") + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/folders", []byte(tt.body))
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}

	w := env.do(t, http.MethodPost, "/api/folders", []byte(`{"path": "`+dir+`", "recursive": false}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d (%s)", w.Code, w.Body.String())
	}
	var folder database.Folder
	decode(t, w, &folder)
	if folder.Path != dir || folder.Recursive {
		t.Errorf("Unexpected folder %+v", folder)
	}
	if env.watcher.count() != 1 {
		t.Errorf("Expected folder to be watched, got %d", env.watcher.count())
	}
	env.waitScans(t, folder.ID)

	w = env.do(t, http.MethodGet, "/api/folders", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var list []FolderResponse
	decode(t, w, &list)
	if len(list) != 1 || list[0].ID != folder.ID {
		t.Errorf("Expected the registered folder, got %+v", list)
	}
}

func TestScanFolder(t *testing.T) {
	env := setupHandlers(t, false)
	dir := t.TempDir()
	folder, err := env.db.AddFolder(context.Background(), dir, true)
	if err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"invalid id", http.MethodPost, "/api/folders/abc/scan", http.StatusBadRequest},
		{"unknown folder", http.MethodPost, "/api/folders/999/scan", http.StatusNotFound},
		{"cancel invalid id", http.MethodDelete, "/api/folders/abc/scan", http.StatusBadRequest},
		{"cancel idle folder", http.MethodDelete, "/api/folders/999/scan", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.target, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}

	w := env.do(t, http.MethodPost, "/api/folders/"+strconv.FormatInt(folder.ID, 10)+"/scan?force=true", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d (%s)", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	decode(t, w, &resp)
	if resp["force"] != true {
		t.Errorf("Expected force true, got %v", resp)
	}
	env.waitScans(t, folder.ID)
}

func writeTestJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		img.Set(x, x, color.RGBA{200, 40, 40, 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write JPEG: %v", err)
	}
}

func TestFolderActivation(t *testing.T) {
	env := setupHandlers(t, false)
	ctx := context.Background()
	dir := t.TempDir()
	folder, err := env.db.AddFolder(ctx, dir, true)
	if err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}
	id := strconv.FormatInt(folder.ID, 10)
	path := filepath.Join(dir, "harbor.jpg")
	writeTestJPEG(t, path)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"deactivate invalid id", http.MethodDelete, "/api/folders/abc", http.StatusBadRequest},
		{"deactivate unknown folder", http.MethodDelete, "/api/folders/999", http.StatusNotFound},
		{"activate invalid id", http.MethodPut, "/api/folders/abc/activate", http.StatusBadRequest},
		{"activate unknown folder", http.MethodPut, "/api/folders/999/activate", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.target, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}

	w := env.do(t, http.MethodDelete, "/api/folders/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	got, err := env.db.GetFolder(ctx, folder.ID)
	if err != nil {
		t.Fatalf("GetFolder() error = %v", err)
	}
	if got.Active {
		t.Error("Expected folder to be inactive")
	}
	env.watcher.mu.Lock()
	removed := append([]int64(nil), env.watcher.removed...)
	env.watcher.mu.Unlock()
	if len(removed) != 1 || removed[0] != folder.ID {
		t.Errorf("Expected watcher to drop folder %d, got %v", folder.ID, removed)
	}

	// Neither scans nor watcher events enqueue work for an inactive folder.
	if w := env.do(t, http.MethodPost, "/api/folders/"+id+"/scan", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 scanning an inactive folder, got %d", w.Code)
	}
	if _, err := env.orch.ScanFolder(ctx, *folder, orchestrator.TriggerManual, false); !errors.Is(err, orchestrator.ErrFolderInactive) {
		t.Errorf("Expected ErrFolderInactive, got %v", err)
	}
	if env.orch.ProcessPath(ctx, path, folder.ID, orchestrator.TriggerWatch) {
		t.Error("Expected watcher event for an inactive folder to be dropped")
	}
	env.waitScans(t, folder.ID)
	if _, err := env.db.GetRecord(ctx, path); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected no record for an inactive folder, got %v", err)
	}

	w = env.do(t, http.MethodPut, "/api/folders/"+id+"/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	var activated database.Folder
	decode(t, w, &activated)
	if !activated.Active {
		t.Errorf("Expected active folder, got %+v", activated)
	}
	if env.watcher.count() != 1 {
		t.Errorf("Expected folder to be watched again, got %d", env.watcher.count())
	}
	env.waitScans(t, folder.ID)

	rec, err := env.db.GetRecord(ctx, path)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.Status != database.StatusCompleted {
		t.Errorf("Expected completed after reactivation, got %s (%s)", rec.Status, rec.LastError)
	}
}

func TestScanAll(t *testing.T) {
	env := setupHandlers(t, false)
	if _, err := env.db.AddFolder(context.Background(), t.TempDir(), true); err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/scan", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	env.waitScans(t, 0)

	last, err := env.db.GetLastScan(context.Background())
	if err != nil {
		t.Fatalf("GetLastScan() error = %v", err)
	}
	if last.IsZero() {
		t.Error("Expected last scan to be recorded")
	}
}

func TestGetRecord(t *testing.T) {
	env := setupHandlers(t, false)
	completeRecord(t, env.db, "/photos/lighthouse.jpg", "A lighthouse", []string{"lighthouse"})

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"missing path", "/api/images/record", http.StatusBadRequest},
		{"relative path", "/api/images/record?path=photos/a.jpg", http.StatusBadRequest},
		{"unknown path", "/api/images/record?path=/photos/none.jpg", http.StatusNotFound},
		{"known path", "/api/images/record?path=/photos/lighthouse.jpg", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}

	w := env.do(t, http.MethodGet, "/api/images/record?path=/photos/lighthouse.jpg", nil)
	var rec database.Record
	decode(t, w, &rec)
	if rec.Status != database.StatusCompleted || rec.Description != "A lighthouse" {
		t.Errorf("Unexpected record %+v", rec)
	}
}

func TestSearchDisabled(t *testing.T) {
	env := setupHandlers(t, false)

	w := env.do(t, http.MethodGet, "/api/search?q=dog", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestSearch(t *testing.T) {
	env := setupHandlers(t, true)

	if err := env.idx.IndexDescription("/photos/a.jpg", "A lighthouse on a rocky coast", []string{"lighthouse", "coast"}); err != nil {
		t.Fatalf("IndexDescription() error = %v", err)
	}
	if err := env.idx.IndexDescription("/photos/b.jpg", "A bowl of fruit", []string{"fruit"}); err != nil {
		t.Fatalf("IndexDescription() error = %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/search?q=lighthouse&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	var result search.Result
	decode(t, w, &result)
	if result.Total != 1 || len(result.Hits) != 1 {
		t.Fatalf("Expected 1 hit, got %+v", result)
	}
	if result.Hits[0].Path != "/photos/a.jpg" {
		t.Errorf("Expected /photos/a.jpg, got %s", result.Hits[0].Path)
	}
}

func TestMetricsHandler(t *testing.T) {
	env := setupHandlers(t, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	w := httptest.NewRecorder()
	env.h.MetricsHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("Expected Go runtime metrics in output")
	}
}
