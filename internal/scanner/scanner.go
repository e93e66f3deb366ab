package scanner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"image-tagger/internal/filesystem"
	"image-tagger/internal/logging"
	"image-tagger/internal/mediatypes"
	"image-tagger/internal/metrics"
)

// ErrFolderUnavailable is returned when a folder root is missing or unreadable.
var ErrFolderUnavailable = errors.New("folder unavailable")

// Candidate is a discovered image file.
type Candidate struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Listing is the ordered result of one discovery. It can be iterated any
// number of times.
type Listing struct {
	Root       string
	candidates []Candidate
}

// All yields candidates newest first.
func (l *Listing) All() iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for _, c := range l.candidates {
			if !yield(c) {
				return
			}
		}
	}
}

// Len returns the number of candidates.
func (l *Listing) Len() int {
	return len(l.candidates)
}

// Config configures a Scanner.
type Config struct {
	// NumWorkers is the number of parallel stat workers
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// Retry configures NFS retries for stat calls
	Retry filesystem.RetryConfig
}

// DefaultConfig returns defaults that are safe for NFS and still quick locally.
func DefaultConfig() Config {
	return Config{
		NumWorkers:    3,
		ChannelBuffer: 1000,
		Retry:         filesystem.DefaultRetryConfig(),
	}
}

// Scanner walks folders for candidate images.
type Scanner struct {
	config Config
}

// New creates a Scanner.
func New(config Config) *Scanner {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	return &Scanner{config: config}
}

// Discover lists supported images under root. When recursive is false only
// the top level is listed. A missing or unreadable root returns an error
// wrapping ErrFolderUnavailable; unreadable entries below it are logged and
// skipped.
func (s *Scanner) Discover(ctx context.Context, root string, recursive bool) (*Listing, error) {
	start := time.Now()

	info, err := filesystem.StatWithRetry(root, s.config.Retry)
	if err != nil {
		metrics.ScannerFolderErrors.Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrFolderUnavailable, root, err)
	}
	if !info.IsDir() {
		metrics.ScannerFolderErrors.Inc()
		return nil, fmt.Errorf("%w: %s is not a directory", ErrFolderUnavailable, root)
	}

	jobs := make(chan string, s.config.ChannelBuffer)
	results := make(chan Candidate, s.config.ChannelBuffer)

	var (
		wg      sync.WaitGroup
		skipped atomic.Int64
	)
	for i := 0; i < s.config.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				fi, err := filesystem.StatWithRetry(path, s.config.Retry)
				if err != nil {
					skipped.Add(1)
					logging.Warn("Error getting info for %s: %v", path, err)
					continue
				}
				if !fi.Mode().IsRegular() {
					continue
				}
				results <- Candidate{Path: path, Size: fi.Size(), ModTime: fi.ModTime()}
			}
		}()
	}

	var candidates []Candidate
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for c := range results {
			candidates = append(candidates, c)
		}
	}()

	walkErr := s.walk(ctx, root, recursive, jobs)
	close(jobs)
	wg.Wait()
	close(results)
	<-collected

	if walkErr != nil {
		return nil, walkErr
	}

	slices.SortFunc(candidates, func(a, b Candidate) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})

	metrics.ScannerFilesDiscovered.Add(float64(len(candidates)))
	metrics.ScannerRunDuration.Observe(time.Since(start).Seconds())
	logging.Debug("Discovered %d images in %s in %v (skipped: %d)", len(candidates), root, time.Since(start), skipped.Load())

	return &Listing{Root: root, candidates: candidates}, nil
}

// walk sends every supported, non-hidden file path to jobs.
func (s *Scanner) walk(ctx context.Context, root string, recursive bool, jobs chan<- string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				metrics.ScannerFolderErrors.Inc()
				return fmt.Errorf("%w: %s: %w", ErrFolderUnavailable, root, err)
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == root {
			return nil
		}

		if mediatypes.IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if !mediatypes.IsSupported(path) {
			return nil
		}

		select {
		case jobs <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}
