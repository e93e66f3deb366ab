package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"image-tagger/internal/database"
)

type fakeProcessor struct {
	mu    sync.Mutex
	calls []string
	seen  chan string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{seen: make(chan string, 100)}
}

func (f *fakeProcessor) ProcessPath(ctx context.Context, path string, folderID int64, trigger string) bool {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	f.seen <- path
	return true
}

func (f *fakeProcessor) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == path {
			n++
		}
	}
	return n
}

func setupWatcher(t *testing.T, recursive bool) (*Watcher, *fakeProcessor, string) {
	t.Helper()
	dir := t.TempDir()
	proc := newFakeProcessor()

	w, err := New(Config{Debounce: 50 * time.Millisecond}, proc)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(w.Stop)

	if err := w.AddFolder(database.Folder{ID: 1, Path: dir, Recursive: recursive}); err != nil {
		t.Fatalf("AddFolder() error = %v", err)
	}
	return w, proc, dir
}

func waitForPath(t *testing.T, proc *fakeProcessor, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-proc.seen:
			if got == want {
				return
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s to be dispatched", want)
		}
	}
}

func expectNothing(t *testing.T, proc *fakeProcessor, wait time.Duration) {
	t.Helper()
	select {
	case got := <-proc.seen:
		t.Errorf("Expected no dispatch, got %s", got)
	case <-time.After(wait):
	}
}

func TestDebouncedDispatch(t *testing.T) {
	_, proc, dir := setupWatcher(t, true)
	path := filepath.Join(dir, "photo.jpg")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := f.Write([]byte("chunk")); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.Close()

	waitForPath(t, proc, path)
	expectNothing(t, proc, 200*time.Millisecond)
	if n := proc.count(path); n != 1 {
		t.Errorf("Expected 1 dispatch for %s, got %d", path, n)
	}
}

func TestIgnoredFiles(t *testing.T) {
	_, proc, dir := setupWatcher(t, true)

	for _, name := range []string{"notes.txt", ".hidden.jpg", "movie.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	expectNothing(t, proc, 300*time.Millisecond)
}

func TestNewSubdirectoryIsWatched(t *testing.T) {
	w, proc, dir := setupWatcher(t, true)
	sub := filepath.Join(dir, "2024")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for w.WatchedDirectories() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if w.WatchedDirectories() != 2 {
		t.Fatalf("Expected 2 watched directories, got %d", w.WatchedDirectories())
	}

	path := filepath.Join(sub, "new.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForPath(t, proc, path)
}

func TestMovedInDirectoryIsAnnounced(t *testing.T) {
	_, proc, dir := setupWatcher(t, true)

	staging := filepath.Join(t.TempDir(), "album")
	if err := os.Mkdir(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "a.jpg"), []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(dir, "album")
	if err := os.Rename(staging, target); err != nil {
		t.Skipf("Cannot move directory across temp dirs: %v", err)
	}
	waitForPath(t, proc, filepath.Join(target, "a.jpg"))
}

func TestNonRecursiveIgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	proc := newFakeProcessor()
	w, err := New(Config{Debounce: 50 * time.Millisecond}, proc)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.AddFolder(database.Folder{ID: 1, Path: dir, Recursive: false}); err != nil {
		t.Fatal(err)
	}
	if w.WatchedDirectories() != 1 {
		t.Errorf("Expected only the root watched, got %d", w.WatchedDirectories())
	}

	if err := os.WriteFile(filepath.Join(sub, "deep.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNothing(t, proc, 300*time.Millisecond)

	top := filepath.Join(dir, "top.jpg")
	if err := os.WriteFile(top, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForPath(t, proc, top)
}

func TestRemoveFolder(t *testing.T) {
	w, proc, dir := setupWatcher(t, true)

	w.RemoveFolder(1)
	if w.WatchedDirectories() != 0 {
		t.Errorf("Expected no watched directories, got %d", w.WatchedDirectories())
	}
	if err := os.WriteFile(filepath.Join(dir, "late.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNothing(t, proc, 300*time.Millisecond)
}

func TestAddFolderErrors(t *testing.T) {
	w, err := New(DefaultConfig(), newFakeProcessor())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.AddFolder(database.Folder{ID: 1, Path: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("Expected error for missing folder")
	}

	file := filepath.Join(t.TempDir(), "file.jpg")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.AddFolder(database.Folder{ID: 2, Path: file}); err == nil {
		t.Error("Expected error for a file path")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	w, err := New(DefaultConfig(), newFakeProcessor())
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestGetEventType(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want string
	}{
		{fsnotify.Create, "create"},
		{fsnotify.Write, "write"},
		{fsnotify.Remove, "remove"},
		{fsnotify.Rename, "rename"},
		{fsnotify.Chmod, "chmod"},
		{fsnotify.Create | fsnotify.Write, "create"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		if got := getEventType(tt.op); got != tt.want {
			t.Errorf("getEventType(%v) = %s, expected %s", tt.op, got, tt.want)
		}
	}
}
