package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"image-tagger/internal/database"
	"image-tagger/internal/detector"
	"image-tagger/internal/logging"
	"image-tagger/internal/metrics"
	"image-tagger/internal/scanner"
)

// Scan triggers, used as progress operation and metrics label.
const (
	TriggerManual   = "manual"
	TriggerAll      = "all"
	TriggerPeriodic = "periodic"
	TriggerStartup  = "startup"
	TriggerWatch    = "watch"
	TriggerCLI      = "cli"
)

// ScanResult summarizes one folder scan.
type ScanResult struct {
	FolderID   int64 `json:"folderId"`
	Discovered int   `json:"discovered"`
	Queued     int   `json:"queued"`
	Unchanged  int   `json:"unchanged"`
	Unreadable int   `json:"unreadable"`
	Errors     int   `json:"errors"`
	Cancelled  bool  `json:"cancelled"`
}

// ScanFolder discovers the folder's images newest first and enqueues the
// ones that need processing. It returns once everything is enqueued; the
// work itself continues on the pool. force reprocesses unchanged files.
func (o *Orchestrator) ScanFolder(ctx context.Context, folder database.Folder, trigger string, force bool) (ScanResult, error) {
	result := ScanResult{FolderID: folder.ID}

	o.scanMu.Lock()
	if _, running := o.scans[folder.ID]; running {
		o.scanMu.Unlock()
		return result, fmt.Errorf("folder %d: %w", folder.ID, ErrScanInProgress)
	}
	scanCtx, cancel := context.WithCancel(ctx)
	o.scans[folder.ID] = cancel
	o.scanMu.Unlock()

	defer func() {
		cancel()
		o.scanMu.Lock()
		delete(o.scans, folder.ID)
		o.scanMu.Unlock()
	}()

	// Scans also stop with the orchestrator.
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()

	metrics.ScannerRunsTotal.WithLabelValues(trigger).Inc()
	metrics.ScannerIsRunning.Inc()
	defer metrics.ScannerIsRunning.Dec()

	// The registry may have deactivated the folder since it was read.
	if err := o.folderActive(scanCtx, folder.ID); err != nil {
		return result, err
	}

	logging.Info("Scanning folder %s (recursive: %v, trigger: %s)", folder.Path, folder.Recursive, trigger)
	start := time.Now()

	listing, err := o.deps.Scanner.Discover(scanCtx, folder.Path, folder.Recursive)
	if err != nil {
		if errors.Is(err, scanner.ErrFolderUnavailable) {
			logging.Warn("Skipping folder %s: %v", folder.Path, err)
		}
		return result, err
	}
	result.Discovered = listing.Len()

	o.deps.Reporter.BeginRun(trigger, listing.Len())

	remaining := listing.Len()
	for c := range listing.All() {
		if scanCtx.Err() != nil {
			result.Cancelled = true
			break
		}
		remaining--

		res, err := o.deps.Detector.Classify(scanCtx, c.Path)
		if err != nil {
			result.Errors++
			logging.Warn("Failed to classify %s: %v", c.Path, err)
			o.account(c.Path)
			continue
		}
		if force && res.Class == detector.Unchanged {
			res.Class = detector.Modified
		}

		switch res.Class {
		case detector.Unchanged:
			result.Unchanged++
			o.account(c.Path)
			continue
		case detector.Unreadable:
			result.Unreadable++
		}

		queued := o.Enqueue(scanCtx, Task{
			Path:        c.Path,
			FolderID:    folder.ID,
			Class:       res.Class,
			Fingerprint: res.Fingerprint,
			Operation:   trigger,
			Force:       force,
			Cause:       res.Cause,
		})
		if !queued {
			continue
		}
		result.Queued++

		if o.config.BatchSize > 0 && result.Queued%o.config.BatchSize == 0 && o.config.BatchDelay > 0 {
			logging.Debug("Queued batch of %d from %s, pausing %v", o.config.BatchSize, folder.Path, o.config.BatchDelay)
			sleepContext(scanCtx, o.config.BatchDelay)
		}
	}

	if result.Cancelled {
		// The current candidate was not consumed either.
		o.deps.Reporter.Retract(remaining)
		logging.Info("Scan of %s cancelled, %d candidates withdrawn", folder.Path, remaining)
	}
	o.deps.Reporter.EndRun()

	logging.Info("Scan of %s finished in %v: %d discovered, %d queued, %d unchanged, %d unreadable",
		folder.Path, time.Since(start).Round(time.Millisecond), result.Discovered, result.Queued, result.Unchanged, result.Unreadable)

	if result.Cancelled {
		return result, scanCtx.Err()
	}
	return result, nil
}

// ScanAll scans every active folder concurrently. Unavailable folders are
// logged and skipped. Only one ScanAll runs at a time.
func (o *Orchestrator) ScanAll(ctx context.Context, trigger string, force bool) ([]ScanResult, error) {
	o.scanMu.Lock()
	if o.scanAllRunning {
		o.scanMu.Unlock()
		return nil, ErrScanInProgress
	}
	o.scanAllRunning = true
	o.scanMu.Unlock()

	defer func() {
		o.scanMu.Lock()
		o.scanAllRunning = false
		o.scanMu.Unlock()
	}()

	folders, err := o.deps.DB.ActiveFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []ScanResult
		errs    []error
	)
	for _, f := range folders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.ScanFolder(ctx, f, trigger, force)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			switch {
			case err == nil, errors.Is(err, scanner.ErrFolderUnavailable), errors.Is(err, ErrScanInProgress),
				errors.Is(err, ErrFolderInactive):
			default:
				errs = append(errs, fmt.Errorf("folder %s: %w", f.Path, err))
			}
		}()
	}
	wg.Wait()

	if err := o.deps.DB.SetLastScan(context.WithoutCancel(ctx), time.Now()); err != nil {
		logging.Warn("Failed to record last scan time: %v", err)
	}
	return results, errors.Join(errs...)
}

// ScanAllRunning reports whether a ScanAll is in progress.
func (o *Orchestrator) ScanAllRunning() bool {
	o.scanMu.Lock()
	defer o.scanMu.Unlock()
	return o.scanAllRunning
}

// ScanRunning reports whether folderID is being scanned.
func (o *Orchestrator) ScanRunning(folderID int64) bool {
	o.scanMu.Lock()
	defer o.scanMu.Unlock()
	_, ok := o.scans[folderID]
	return ok
}

// CancelFolder stops an in-progress scan of folderID. Candidates not yet
// enqueued are withdrawn from the run; queued and running tasks finish.
func (o *Orchestrator) CancelFolder(folderID int64) bool {
	o.scanMu.Lock()
	defer o.scanMu.Unlock()
	cancel, ok := o.scans[folderID]
	if ok {
		cancel()
	}
	return ok
}

// folderActive returns an error wrapping ErrFolderInactive unless the
// registry has folder id and it is active.
func (o *Orchestrator) folderActive(ctx context.Context, id int64) error {
	folder, err := o.deps.DB.GetFolder(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("folder %d: %w", id, ErrFolderInactive)
	}
	if err != nil {
		return fmt.Errorf("folder %d: %w", id, err)
	}
	if !folder.Active {
		return fmt.Errorf("folder %d: %w", id, ErrFolderInactive)
	}
	return nil
}

// ProcessPath classifies and enqueues a single file as its own unit of
// progress. The watcher dispatcher uses it.
func (o *Orchestrator) ProcessPath(ctx context.Context, path string, folderID int64, trigger string) bool {
	o.deps.Reporter.BeginRun(trigger, 1)
	return o.classifyAndEnqueue(ctx, path, folderID, trigger)
}

// classifyAndEnqueue consumes one registered unit of progress for path.
// Paths of inactive folders are dropped.
func (o *Orchestrator) classifyAndEnqueue(ctx context.Context, path string, folderID int64, trigger string) bool {
	if err := o.folderActive(ctx, folderID); err != nil {
		logging.Debug("Not processing %s: %v", path, err)
		o.account(path)
		return false
	}

	res, err := o.deps.Detector.Classify(ctx, path)
	if err != nil {
		logging.Debug("Not processing %s: %v", path, err)
		o.account(path)
		return false
	}
	if res.Class == detector.Unchanged {
		o.account(path)
		return false
	}
	return o.Enqueue(ctx, Task{
		Path:        path,
		FolderID:    folderID,
		Class:       res.Class,
		Fingerprint: res.Fingerprint,
		Operation:   trigger,
		Cause:       res.Cause,
	})
}

// RunPeriodic scans all folders every interval until ctx ends.
func (o *Orchestrator) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logging.Info("Periodic rescan every %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := o.ScanAll(ctx, TriggerPeriodic, false); err != nil && !errors.Is(err, ErrScanInProgress) {
				logging.Error("Periodic scan failed: %v", err)
			}
		case <-ctx.Done():
			return
		case <-o.ctx.Done():
			return
		}
	}
}
