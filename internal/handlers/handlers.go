package handlers

import (
	"sync/atomic"
	"time"

	"image-tagger/internal/database"
	"image-tagger/internal/orchestrator"
	"image-tagger/internal/search"
)

// FolderWatcher follows the folder registry.
type FolderWatcher interface {
	AddFolder(folder database.Folder) error
	RemoveFolder(id int64)
}

type Handlers struct {
	db        *database.Database
	orch      *orchestrator.Orchestrator
	search    *search.Index
	watcher   FolderWatcher
	startTime time.Time
	ready     atomic.Bool
}

// New creates the handlers. idx and watcher may be nil.
func New(db *database.Database, orch *orchestrator.Orchestrator, idx *search.Index, watcher FolderWatcher) *Handlers {
	return &Handlers{
		db:        db,
		orch:      orch,
		search:    idx,
		watcher:   watcher,
		startTime: time.Now(),
	}
}

// SetReady marks startup as finished.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}
