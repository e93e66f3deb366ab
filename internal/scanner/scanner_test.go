package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func createFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}
}

func collect(l *Listing) []string {
	var names []string
	for c := range l.All() {
		names = append(names, filepath.Base(c.Path))
	}
	return names
}

func TestDiscoverOrderAndFilter(t *testing.T) {
	root := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	createFile(t, filepath.Join(root, "old.jpg"), base)
	createFile(t, filepath.Join(root, "newest.PNG"), base.Add(30*time.Minute))
	createFile(t, filepath.Join(root, "b_tie.webp"), base.Add(10*time.Minute))
	createFile(t, filepath.Join(root, "a_tie.gif"), base.Add(10*time.Minute))
	createFile(t, filepath.Join(root, "notes.txt"), base.Add(40*time.Minute))
	createFile(t, filepath.Join(root, ".hidden.jpg"), base.Add(50*time.Minute))
	createFile(t, filepath.Join(root, ".cache", "inside.jpg"), base.Add(50*time.Minute))
	createFile(t, filepath.Join(root, "sub", "nested.heic"), base.Add(20*time.Minute))

	s := New(DefaultConfig())

	t.Run("recursive", func(t *testing.T) {
		l, err := s.Discover(context.Background(), root, true)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		want := []string{"newest.PNG", "nested.heic", "a_tie.gif", "b_tie.webp", "old.jpg"}
		if got := collect(l); !slices.Equal(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
		if l.Len() != len(want) {
			t.Errorf("Expected Len %d, got %d", len(want), l.Len())
		}
	})

	t.Run("top level only", func(t *testing.T) {
		l, err := s.Discover(context.Background(), root, false)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		want := []string{"newest.PNG", "a_tie.gif", "b_tie.webp", "old.jpg"}
		if got := collect(l); !slices.Equal(got, want) {
			t.Errorf("Expected %v, got %v", want, got)
		}
	})
}

func TestListingIsRestartable(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "one.jpg"), time.Now())
	createFile(t, filepath.Join(root, "two.jpg"), time.Now().Add(-time.Minute))

	l, err := New(DefaultConfig()).Discover(context.Background(), root, true)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	first := collect(l)
	second := collect(l)
	if !slices.Equal(first, second) || len(first) != 2 {
		t.Errorf("Expected identical passes of 2 items, got %v and %v", first, second)
	}

	// Early break must not disturb later iterations.
	for range l.All() {
		break
	}
	if got := collect(l); !slices.Equal(got, first) {
		t.Errorf("Expected %v after early break, got %v", first, got)
	}
}

func TestDiscoverUnavailableRoot(t *testing.T) {
	s := New(DefaultConfig())

	t.Run("missing", func(t *testing.T) {
		_, err := s.Discover(context.Background(), filepath.Join(t.TempDir(), "missing"), true)
		if !errors.Is(err, ErrFolderUnavailable) {
			t.Errorf("Expected ErrFolderUnavailable, got %v", err)
		}
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file.jpg")
		createFile(t, path, time.Now())
		_, err := s.Discover(context.Background(), path, true)
		if !errors.Is(err, ErrFolderUnavailable) {
			t.Errorf("Expected ErrFolderUnavailable, got %v", err)
		}
	})
}

func TestDiscoverEmptyFolder(t *testing.T) {
	l, err := New(DefaultConfig()).Discover(context.Background(), t.TempDir(), true)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Expected empty listing, got %d", l.Len())
	}
}

func TestDiscoverCancelled(t *testing.T) {
	root := t.TempDir()
	createFile(t, filepath.Join(root, "one.jpg"), time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(DefaultConfig()).Discover(ctx, root, true); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
