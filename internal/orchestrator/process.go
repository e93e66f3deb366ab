package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"image-tagger/internal/database"
	"image-tagger/internal/fingerprint"
	"image-tagger/internal/logging"
	"image-tagger/internal/media"
	"image-tagger/internal/metrics"
	"image-tagger/internal/vision"
)

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	var verr *vision.Error
	return errors.As(err, &verr) && !verr.Transient()
}

// settlement is the record write that ends an attempt. It stays with the
// task until the store accepts it.
type settlement struct {
	to      database.Status
	out     database.Outcome
	reason  string
	cycle   int
	changed bool
	tries   int
}

// process runs one attempt for a claimed task and settles its outcome.
func (o *Orchestrator) process(task Task) {
	start := time.Now()
	// Persistence outlives shutdown so interrupted attempts are recorded.
	store := context.WithoutCancel(o.ctx)

	if task.settle != nil {
		o.settle(store, task, start)
		return
	}

	rec, err := o.deps.DB.MarkProcessing(store, task.Path)
	if err != nil {
		if errors.Is(err, database.ErrInvalidTransition) || errors.Is(err, database.ErrNotFound) {
			logging.Warn("Dropping task for %s: %v", task.Path, err)
			o.release(task.Path)
			o.account(task.Path)
			return
		}
		logging.Error("Failed to start processing %s: %v", task.Path, err)
		o.retryLater(task, 1)
		return
	}

	o.deps.Reporter.SetCurrentTask(task.Path)
	logging.Debug("Processing %s (attempt %d, cycle %d/%d)", task.Path, rec.Attempts, rec.CycleAttempts, o.config.MaxAttempts)

	out, changed, err := o.attempt(task)
	switch {
	case err == nil:
		task.settle = &settlement{to: database.StatusCompleted, out: out, cycle: rec.CycleAttempts, changed: changed}

	case o.ctx.Err() != nil:
		// Startup recovery resets the record if this write is lost.
		if err := o.deps.DB.MarkRetry(store, task.Path, "interrupted"); err != nil {
			logging.Error("Failed to release interrupted %s: %v", task.Path, err)
		}
		o.release(task.Path)
		return

	case isPermanent(err) || rec.CycleAttempts >= o.config.MaxAttempts:
		task.settle = &settlement{to: database.StatusFailed, reason: err.Error(), cycle: rec.CycleAttempts}

	default:
		task.settle = &settlement{to: database.StatusPending, reason: err.Error(), cycle: rec.CycleAttempts}
	}
	o.settle(store, task, start)
}

// settle persists the outcome carried by task. A store error keeps the path
// claimed and the record Processing, and the same write is tried again after
// a backoff; the attempt is not repeated.
func (o *Orchestrator) settle(store context.Context, task Task, start time.Time) {
	s := task.settle

	var err error
	switch s.to {
	case database.StatusCompleted:
		err = o.deps.DB.MarkCompleted(store, task.Path, s.out)
	case database.StatusFailed:
		err = o.deps.DB.MarkFailed(store, task.Path, s.reason)
	default:
		err = o.deps.DB.MarkRetry(store, task.Path, s.reason)
	}
	if err != nil {
		if errors.Is(err, database.ErrInvalidTransition) || errors.Is(err, database.ErrNotFound) {
			logging.Warn("Dropping result for %s: %v", task.Path, err)
			o.release(task.Path)
			o.account(task.Path)
			return
		}
		s.tries++
		metrics.TasksTotal.WithLabelValues("store_error").Inc()
		logging.Error("Failed to record %s as %s (try %d), retrying: %v", task.Path, s.to, s.tries, err)
		o.retryLater(task, s.tries)
		return
	}

	switch s.to {
	case database.StatusCompleted:
		if o.deps.Sink != nil {
			if err := o.deps.Sink.IndexDescription(task.Path, s.out.Description, s.out.Tags); err != nil {
				logging.Warn("Failed to index description for %s: %v", task.Path, err)
			}
		}
		metrics.TasksTotal.WithLabelValues("completed").Inc()
		metrics.TaskDuration.WithLabelValues("completed").Observe(time.Since(start).Seconds())
		logging.Info("Completed %s (%d tags, metadata written: %v)", task.Path, len(s.out.Tags), s.out.MetadataWritten)
		if s.changed {
			// Registered first so the run stays open for the follow-up.
			o.deps.Reporter.BeginRun(task.Operation, 1)
		}
		o.release(task.Path)
		o.account(task.Path)
		if s.changed {
			o.followUp(task)
		}

	case database.StatusFailed:
		metrics.TasksTotal.WithLabelValues("failed").Inc()
		metrics.TaskDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		logging.Warn("Failed %s after %d attempt(s): %s", task.Path, s.cycle, s.reason)
		o.release(task.Path)
		o.account(task.Path)

	default:
		metrics.TasksTotal.WithLabelValues("retried").Inc()
		metrics.TaskDuration.WithLabelValues("retried").Observe(time.Since(start).Seconds())
		logging.Warn("Attempt %d/%d for %s failed, retrying: %s", s.cycle, o.config.MaxAttempts, task.Path, s.reason)
		task.settle = nil
		o.retryLater(task, s.cycle)
	}
}

// followUp classifies task's file again after its claim is released, so
// content written during the attempt is processed too. The caller has
// registered the unit of progress it consumes.
func (o *Orchestrator) followUp(task Task) {
	o.timers.Add(1)
	go func() {
		defer o.timers.Done()
		o.classifyAndEnqueue(o.ctx, task.Path, task.FolderID, task.Operation)
	}()
}

// retryLater requeues task after the backoff for attempt n. The path stays
// claimed while it waits.
func (o *Orchestrator) retryLater(task Task, n int) {
	delay := Backoff(n, o.config.BackoffBase, o.config.BackoffMax)
	o.timers.Add(1)
	go func() {
		defer o.timers.Done()
		if !o.sleep(o.ctx, delay) {
			o.release(task.Path)
			return
		}
		o.requeue(task)
	}()
}

// attempt does the work for one task and returns what to persist. changed
// reports that the file was modified while it was being described; the
// outcome then carries the fingerprint of the content that was described.
func (o *Orchestrator) attempt(task Task) (database.Outcome, bool, error) {
	read, err := fingerprint.Compute(task.Path, o.config.Policy)
	if err != nil {
		return database.Outcome{}, false, fmt.Errorf("fingerprint: %w", err)
	}

	image, err := o.encode(task.Path, o.config.MaxDimension)
	if err != nil {
		if errors.Is(err, media.ErrUnreadable) {
			return database.Outcome{}, false, permanent(err)
		}
		return database.Outcome{}, false, fmt.Errorf("encode: %w", err)
	}

	desc, err := o.deps.Describer.Describe(o.ctx, image, o.config.Model, o.config.Server, o.config.RequestTimeout)
	if err != nil {
		return database.Outcome{}, false, err
	}
	tags := vision.ExtractTags(desc)
	out := database.Outcome{Description: desc, Tags: tags, Fingerprint: read}

	current, err := fingerprint.Compute(task.Path, o.config.Policy)
	if err != nil {
		return database.Outcome{}, false, fmt.Errorf("fingerprint before embedding: %w", err)
	}
	if fingerprint.Differs(read, current) {
		logging.Info("%s changed while it was being described, not embedding", task.Path)
		if o.deps.Writer != nil {
			out.MetadataError = "file changed during processing"
		}
		return out, true, nil
	}

	if o.deps.Writer == nil {
		return out, false, nil
	}
	if err := o.deps.Writer.Write(o.ctx, task.Path, desc, tags); err != nil {
		if o.ctx.Err() != nil {
			return database.Outcome{}, false, o.ctx.Err()
		}
		logging.Warn("Metadata not embedded in %s: %v", task.Path, err)
		out.MetadataError = err.Error()
	} else {
		out.MetadataWritten = true
	}

	// Embedding changes the file, so fingerprint what is on disk now.
	fp, err := fingerprint.Compute(task.Path, o.config.Policy)
	if err != nil {
		return database.Outcome{}, false, fmt.Errorf("fingerprint after processing: %w", err)
	}
	out.Fingerprint = fp
	return out, false, nil
}
