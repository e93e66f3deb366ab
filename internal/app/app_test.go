package app

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"image-tagger/internal/database"
	"image-tagger/internal/fingerprint"
	"image-tagger/internal/startup"
)

func newOllama(t *testing.T, description string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var generates atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			generates.Add(1)
			json.NewEncoder(w).Encode(map[string]interface{}{"response": description, "done": true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &generates
}

func testConfig(t *testing.T, server string, folders ...string) *startup.Config {
	t.Helper()
	dir := t.TempDir()
	config := &startup.Config{
		DatabaseDir:         dir,
		DatabasePath:        filepath.Join(dir, "image-tagger.db"),
		SearchEnabled:       true,
		SearchIndexPath:     filepath.Join(dir, "descriptions.bleve"),
		WatchEnabled:        true,
		WatchDebounce:       50 * time.Millisecond,
		Workers:             2,
		QueueSize:           16,
		MaxAttempts:         3,
		RetryBackoff:        time.Millisecond,
		RetryBackoffMax:     10 * time.Millisecond,
		FingerprintPolicy:   fingerprint.PolicySHA256,
		MaxDimension:        256,
		OllamaServer:        server,
		OllamaModel:         "test-model",
		OllamaTimeout:       5 * time.Second,
		OllamaHealthCheck:   true,
		WriteMetadata:       true,
		MetadataStrategies:  []string{"xmp"},
		MetadataToolTimeout: time.Second,
	}
	for _, f := range folders {
		config.Folders = append(config.Folders, startup.FolderConfig{Path: f, Recursive: true})
	}
	return config
}

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for x := 0; x < 24; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 10), 90, uint8(y * 10), 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode JPEG: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestNewMetadataWriter(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		strategies []string
		want       []string
	}{
		{"disabled", false, []string{"xmp"}, nil},
		{"default order", true, []string{"xmp", "exiftool", "exiv2"}, []string{"xmp", "exiftool", "exiv2"}},
		{"custom order", true, []string{"exiv2", "xmp"}, []string{"exiv2", "xmp"}},
		{"unknown skipped", true, []string{"bogus", "exiftool"}, []string{"exiftool"}},
		{"nothing usable", true, []string{"bogus"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &startup.Config{
				WriteMetadata:       tt.enabled,
				MetadataStrategies:  tt.strategies,
				MetadataToolTimeout: time.Second,
			}
			w := NewMetadataWriter(config)
			if tt.want == nil {
				if w != nil {
					t.Errorf("Expected no writer, got %v", w.Strategies())
				}
				return
			}
			if w == nil {
				t.Fatal("Expected a writer")
			}
			got := w.Strategies()
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestOrchestratorConfig(t *testing.T) {
	config := testConfig(t, "http://ollama:11434")
	config.BatchSize = 10
	config.BatchDelay = time.Second

	oc := OrchestratorConfig(config)
	if oc.Workers != 2 || oc.QueueSize != 16 || oc.MaxAttempts != 3 {
		t.Errorf("Unexpected pool settings %+v", oc)
	}
	if oc.Server != "http://ollama:11434" || oc.Model != "test-model" {
		t.Errorf("Unexpected vision settings %+v", oc)
	}
	if oc.BackoffBase != time.Millisecond || oc.BackoffMax != 10*time.Millisecond {
		t.Errorf("Unexpected backoff %v/%v", oc.BackoffBase, oc.BackoffMax)
	}
	if oc.BatchSize != 10 || oc.BatchDelay != time.Second {
		t.Errorf("Unexpected batching %d/%v", oc.BatchSize, oc.BatchDelay)
	}
}

func TestBuildStartShutdown(t *testing.T) {
	srv, generates := newOllama(t, "A sailboat on a calm blue lake at sunset")
	photos := t.TempDir()
	writeJPEG(t, filepath.Join(photos, "boat.jpg"))

	config := testConfig(t, srv.URL, photos)
	config.ScanOnStartup = true

	ctx := context.Background()
	a, err := Build(ctx, config)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	shutdown := false
	t.Cleanup(func() {
		if !shutdown {
			a.Shutdown()
		}
	})

	if a.Search == nil {
		t.Fatal("Expected search index to be enabled")
	}
	if a.Watcher == nil {
		t.Fatal("Expected watcher to be enabled")
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	boat := filepath.Join(photos, "boat.jpg")
	waitFor(t, "startup scan", func() bool {
		rec, err := a.DB.GetRecord(ctx, boat)
		return err == nil && rec.Status == database.StatusCompleted
	})

	result, err := a.Search.Search("sailboat", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("Expected 1 search hit, got %d", result.Total)
	}

	// A file created after startup is picked up by the watcher.
	lake := filepath.Join(photos, "lake.jpg")
	writeJPEG(t, lake)
	waitFor(t, "watched file", func() bool {
		rec, err := a.DB.GetRecord(ctx, lake)
		return err == nil && rec.Status == database.StatusCompleted
	})

	if n := generates.Load(); n != 2 {
		t.Errorf("Expected 2 generate calls, got %d", n)
	}

	a.Shutdown()
	shutdown = true
}

func TestSeedFolders(t *testing.T) {
	srv, _ := newOllama(t, "unused")
	first, second := t.TempDir(), t.TempDir()
	config := testConfig(t, srv.URL, first, second)
	config.WatchEnabled = false
	config.SearchEnabled = false

	ctx := context.Background()
	a, err := Build(ctx, config)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(a.Shutdown)

	for i := 0; i < 2; i++ {
		folders, err := a.SeedFolders(ctx)
		if err != nil {
			t.Fatalf("SeedFolders() error = %v", err)
		}
		if len(folders) != 2 {
			t.Errorf("Expected 2 folders after seeding %d time(s), got %d", i+1, len(folders))
		}
	}
}

func TestVolumeResolver(t *testing.T) {
	config := &startup.Config{
		DatabaseDir: "/data",
		Folders: []startup.FolderConfig{
			{Path: "/photos", Recursive: true},
			{Path: "/mnt/scans"},
		},
	}
	vr := VolumeResolver(config)

	tests := map[string]string{
		"/data/image-tagger.db": "database",
		"/photos/2024/a.jpg":    "folders",
		"/mnt/scans/b.png":      "folders",
		"/tmp/c.jpg":            "unknown",
	}
	for path, want := range tests {
		if got := vr.Resolve(path); got != want {
			t.Errorf("Resolve(%q): expected %s, got %s", path, want, got)
		}
	}
}
