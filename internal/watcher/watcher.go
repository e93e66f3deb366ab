package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"image-tagger/internal/database"
	"image-tagger/internal/logging"
	"image-tagger/internal/mediatypes"
	"image-tagger/internal/metrics"
	"image-tagger/internal/orchestrator"
)

const (
	DefaultDebounce  = 2 * time.Second
	DefaultInboxSize = 256
)

// Processor classifies and enqueues one path.
type Processor interface {
	ProcessPath(ctx context.Context, path string, folderID int64, trigger string) bool
}

// Config controls debouncing.
type Config struct {
	Debounce  time.Duration
	InboxSize int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{Debounce: DefaultDebounce, InboxSize: DefaultInboxSize}
}

type change struct {
	path     string
	folderID int64
}

// Watcher watches registered folders.
type Watcher struct {
	config Config
	proc   Processor
	fsw    *fsnotify.Watcher

	mu      sync.Mutex
	folders map[int64]database.Folder
	dirs    map[string]int64
	pending map[string]*time.Timer

	inbox  chan change
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a Watcher and starts its event loop and dispatcher.
func New(config Config, proc Processor) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.InboxSize <= 0 {
		config.InboxSize = DefaultInboxSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		config:  config,
		proc:    proc,
		fsw:     fsw,
		folders: make(map[int64]database.Folder),
		dirs:    make(map[string]int64),
		pending: make(map[string]*time.Timer),
		inbox:   make(chan change, config.InboxSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.dispatch()
	return w, nil
}

// AddFolder starts watching folder. Adding a folder twice refreshes it.
func (w *Watcher) AddFolder(folder database.Folder) error {
	info, err := os.Stat(folder.Path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", folder.Path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", folder.Path)
	}

	w.RemoveFolder(folder.ID)

	w.mu.Lock()
	w.folders[folder.ID] = folder
	w.mu.Unlock()

	n := w.addDirectories(folder, folder.Path, false)
	logging.Info("Watching %s (%d directories, recursive: %v)", folder.Path, n, folder.Recursive)
	return nil
}

// RemoveFolder stops watching folder id and drops its pending changes.
func (w *Watcher) RemoveFolder(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.folders[id]; !ok {
		return
	}
	delete(w.folders, id)

	for dir, owner := range w.dirs {
		if owner != id {
			continue
		}
		if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			logging.Debug("Failed to remove watch on %s: %v", dir, err)
		}
		delete(w.dirs, dir)
	}
	for path, timer := range w.pending {
		if _, ok := w.dirs[filepath.Dir(path)]; !ok {
			timer.Stop()
			delete(w.pending, path)
		}
	}
	metrics.WatchedDirectories.Set(float64(len(w.dirs)))
}

// WatchedDirectories returns the number of watched directories.
func (w *Watcher) WatchedDirectories() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

// Stop closes the watcher and waits for the dispatcher. Pending changes are
// dropped; the next scan picks them up.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		w.cancel()
		if err := w.fsw.Close(); err != nil {
			logging.Error("failed to close file watcher: %v", err)
		}

		w.mu.Lock()
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.wg.Wait()
		metrics.WatchedDirectories.Set(0)
	})
}

// addDirectories watches root and, for recursive folders, every directory
// below it. With announce set, supported files already present are
// dispatched; a directory moved into a watched tree fires no events for its
// contents.
func (w *Watcher) addDirectories(folder database.Folder, root string, announce bool) int {
	watchCount := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != root && (mediatypes.IsHidden(path) || !folder.Recursive) {
				return filepath.SkipDir
			}
			if addErr := w.fsw.Add(path); addErr != nil {
				logging.Warn("failed to add path to watcher %s: %v", path, addErr)
				metrics.WatcherErrors.Inc()
				return nil
			}
			w.mu.Lock()
			w.dirs[path] = folder.ID
			metrics.WatchedDirectories.Set(float64(len(w.dirs)))
			w.mu.Unlock()
			watchCount++
			return nil
		}
		if announce && !mediatypes.IsHidden(path) && mediatypes.IsSupported(path) {
			w.schedule(path, folder.ID)
		}
		return nil
	})
	if err != nil {
		logging.Error("failed to walk %s for watcher: %v", root, err)
		metrics.WatcherErrors.Inc()
	}
	return watchCount
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if mediatypes.IsHidden(event.Name) {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(getEventType(event.Op)).Inc()

	w.mu.Lock()
	folderID, parentWatched := w.dirs[filepath.Dir(event.Name)]
	_, isWatchedDir := w.dirs[event.Name]
	folder := w.folders[folderID]
	w.mu.Unlock()

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if isWatchedDir {
			w.forgetDirectory(event.Name)
		}
		return
	case !parentWatched:
		return
	}

	if event.Op&fsnotify.Create != 0 {
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if folder.Recursive {
				n := w.addDirectories(folder, event.Name, true)
				logging.Debug("Added new directory to watcher: %s (%d directories)", event.Name, n)
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && mediatypes.IsSupported(event.Name) {
		w.schedule(event.Name, folderID)
	}
}

// forgetDirectory drops dir and everything below it. fsnotify removes the
// watches itself.
func (w *Watcher) forgetDirectory(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	metrics.WatchedDirectories.Set(float64(len(w.dirs)))
	logging.Debug("Stopped watching removed directory %s", dir)
}

// schedule (re)starts the quiet period for path.
func (w *Watcher) schedule(path string, folderID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.config.Debounce)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		select {
		case w.inbox <- change{path: path, folderID: folderID}:
		case <-w.ctx.Done():
		}
	})
	w.pending[path] = timer
}

// dispatch hands quiet paths to the processor one at a time.
func (w *Watcher) dispatch() {
	defer w.wg.Done()
	for {
		select {
		case c := <-w.inbox:
			metrics.WatcherDispatchedTotal.Inc()
			logging.Debug("Dispatching changed file %s", c.path)
			w.proc.ProcessPath(w.ctx, c.path, c.folderID, orchestrator.TriggerWatch)
		case <-w.ctx.Done():
			return
		}
	}
}

// getEventType returns a string representation of the fsnotify operation
func getEventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
