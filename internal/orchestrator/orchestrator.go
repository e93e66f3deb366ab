package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"image-tagger/internal/database"
	"image-tagger/internal/detector"
	"image-tagger/internal/fingerprint"
	"image-tagger/internal/logging"
	"image-tagger/internal/media"
	"image-tagger/internal/memory"
	"image-tagger/internal/metrics"
	"image-tagger/internal/progress"
	"image-tagger/internal/scanner"
	"image-tagger/internal/vision"
	"image-tagger/internal/workers"
)

const (
	DefaultQueueSize   = 256
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = time.Minute
)

// ErrScanInProgress is returned when a scan of the same scope is running.
var ErrScanInProgress = errors.New("scan already in progress")

// ErrFolderInactive is returned for folders the registry has deactivated.
var ErrFolderInactive = errors.New("folder is not active")

// Describer produces a description for an encoded image.
type Describer interface {
	Describe(ctx context.Context, image []byte, model, server string, timeout time.Duration) (string, error)
}

// MetadataWriter embeds a description and tags into a file.
type MetadataWriter interface {
	Write(ctx context.Context, path, description string, tags []string) error
}

// DescriptionSink receives every completed description (the search index).
type DescriptionSink interface {
	IndexDescription(path, description string, tags []string) error
}

// Task is one file to process.
type Task struct {
	Path        string
	FolderID    int64
	Class       detector.Class
	Fingerprint fingerprint.Fingerprint
	Operation   string
	// Force reprocesses files that classified Unchanged.
	Force bool
	// Cause explains an Unreadable class.
	Cause error

	settle *settlement
}

// Config configures the Orchestrator.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	Model          string
	Server         string
	RequestTimeout time.Duration
	MaxDimension   int

	Policy fingerprint.Policy

	// BatchSize pauses a scan for BatchDelay after every BatchSize enqueues.
	BatchSize  int
	BatchDelay time.Duration
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        workers.ForIO(8),
		QueueSize:      DefaultQueueSize,
		MaxAttempts:    DefaultMaxAttempts,
		BackoffBase:    DefaultBackoffBase,
		BackoffMax:     DefaultBackoffMax,
		Model:          vision.DefaultModel,
		Server:         vision.DefaultServer,
		RequestTimeout: vision.DefaultTimeout,
		MaxDimension:   media.DefaultVisionDimension,
		Policy:         fingerprint.DefaultPolicy,
	}
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	DB        *database.Database
	Detector  *detector.Detector
	Scanner   *scanner.Scanner
	Describer Describer
	Writer    MetadataWriter
	Reporter  *progress.Reporter
	Memory    *memory.Monitor
	Sink      DescriptionSink
}

// Orchestrator owns the queue, the worker pool and the in-flight set.
type Orchestrator struct {
	config Config
	deps   Deps
	sleep  SleepFunc
	encode func(path string, maxDim int) ([]byte, error)

	queue chan Task

	mu       sync.Mutex
	inFlight map[string]struct{}

	scanMu         sync.Mutex
	scans          map[int64]context.CancelFunc
	scanAllRunning bool

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	timers  sync.WaitGroup
	started atomic.Bool
	stopped atomic.Bool
}

// New creates an Orchestrator. Call Start before enqueueing.
func New(config Config, deps Deps) *Orchestrator {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaults.BackoffBase
	}
	if config.BackoffMax < config.BackoffBase {
		config.BackoffMax = max(defaults.BackoffMax, config.BackoffBase)
	}
	if config.Policy == "" {
		config.Policy = defaults.Policy
	}
	if deps.Reporter == nil {
		deps.Reporter = progress.New()
	}
	if deps.Detector == nil {
		deps.Detector = detector.New(deps.DB, config.Policy)
	}
	if deps.Scanner == nil {
		deps.Scanner = scanner.New(scanner.DefaultConfig())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		config:   config,
		deps:     deps,
		sleep:    sleepContext,
		encode:   media.EncodeForVision,
		queue:    make(chan Task, config.QueueSize),
		inFlight: make(map[string]struct{}),
		scans:    make(map[int64]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetSleep replaces the backoff wait. Tests use it to skip real delays.
func (o *Orchestrator) SetSleep(fn SleepFunc) {
	o.sleep = fn
}

// SetSink sets the description sink.
func (o *Orchestrator) SetSink(sink DescriptionSink) {
	o.deps.Sink = sink
}

// Reporter returns the progress reporter.
func (o *Orchestrator) Reporter() *progress.Reporter {
	return o.deps.Reporter
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Start recovers records interrupted by a previous crash and starts the
// workers.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("orchestrator already started")
	}

	n, err := o.deps.DB.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted records: %w", err)
	}
	if n > 0 {
		logging.Info("Recovered %d records interrupted during processing", n)
	}

	logging.Info("Starting %d processing workers (queue size %d, max attempts %d)",
		o.config.Workers, o.config.QueueSize, o.config.MaxAttempts)
	for i := 0; i < o.config.Workers; i++ {
		o.workers.Add(1)
		go o.worker(i)
	}
	return nil
}

// Stop cancels scans, in-flight work and pending retries, then waits for the
// workers. Interrupted records are left Pending.
func (o *Orchestrator) Stop() {
	if !o.stopped.CompareAndSwap(false, true) {
		return
	}
	o.cancel()

	o.scanMu.Lock()
	for _, cancel := range o.scans {
		cancel()
	}
	o.scanMu.Unlock()

	o.workers.Wait()
	o.timers.Wait()
	o.deps.Reporter.Abort("shutdown")
	logging.Info("Processing workers stopped")
}

// Idle reports whether no task is queued, running or waiting on a retry.
func (o *Orchestrator) Idle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inFlight) == 0
}

// claim marks path in flight. It returns false if it already was.
func (o *Orchestrator) claim(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[path]; busy {
		return false
	}
	o.inFlight[path] = struct{}{}
	metrics.TasksInFlight.Set(float64(len(o.inFlight)))
	return true
}

func (o *Orchestrator) release(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, path)
	metrics.TasksInFlight.Set(float64(len(o.inFlight)))
}

// account advances progress by one unit and ends the run if it was the last.
func (o *Orchestrator) account(path string) {
	o.deps.Reporter.Advance(path)
	o.deps.Reporter.EndRun()
}

// Enqueue hands task to the worker pool. The caller must have registered
// one unit of progress for it. It returns true if the task was queued;
// coalesced, unreadable and rejected tasks are accounted for immediately and
// return false. Enqueue blocks while the queue is full.
func (o *Orchestrator) Enqueue(ctx context.Context, task Task) bool {
	if !o.claim(task.Path) {
		metrics.TasksTotal.WithLabelValues("coalesced").Inc()
		logging.Debug("Coalesced duplicate task for %s", task.Path)
		o.account(task.Path)
		return false
	}

	if task.Class == detector.Unreadable {
		cause := "unreadable"
		if task.Cause != nil {
			cause = task.Cause.Error()
		}
		if err := o.deps.DB.MarkUnreadable(context.WithoutCancel(ctx), task.Path, task.FolderID, cause); err != nil {
			logging.Error("Failed to mark %s unreadable: %v", task.Path, err)
		}
		metrics.TasksTotal.WithLabelValues("unreadable").Inc()
		logging.Warn("Skipping unreadable image %s: %s", task.Path, cause)
		o.release(task.Path)
		o.account(task.Path)
		return false
	}

	if err := o.deps.DB.MarkPending(context.WithoutCancel(ctx), task.Path, task.FolderID); err != nil {
		logging.Error("Failed to queue %s: %v", task.Path, err)
		o.release(task.Path)
		o.account(task.Path)
		return false
	}

	select {
	case o.queue <- task:
		metrics.QueueDepth.Set(float64(len(o.queue)))
		return true
	case <-ctx.Done():
	case <-o.ctx.Done():
	}

	// Not queued: the record stays Pending and the next scan picks it up.
	o.release(task.Path)
	o.deps.Reporter.Retract(1)
	o.deps.Reporter.EndRun()
	return false
}

// requeue puts a task that is already claimed back on the queue. The record
// is Pending, or still Processing when the task carries an unsaved outcome.
func (o *Orchestrator) requeue(task Task) {
	select {
	case o.queue <- task:
		metrics.TasksTotal.WithLabelValues("requeued").Inc()
		metrics.QueueDepth.Set(float64(len(o.queue)))
	case <-o.ctx.Done():
		o.release(task.Path)
	}
}

func (o *Orchestrator) worker(id int) {
	defer o.workers.Done()
	logging.Debug("Processing worker %d started", id)

	for {
		select {
		case <-o.ctx.Done():
			logging.Debug("Processing worker %d stopped", id)
			return
		case task := <-o.queue:
			metrics.QueueDepth.Set(float64(len(o.queue)))
			if !o.deps.Memory.WaitIfPaused(o.ctx) {
				o.release(task.Path)
				return
			}
			metrics.WorkersBusy.Inc()
			o.process(task)
			metrics.WorkersBusy.Dec()
		}
	}
}
