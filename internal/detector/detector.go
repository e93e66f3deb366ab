package detector

import (
	"context"
	"errors"
	"fmt"
	"os"

	"image-tagger/internal/database"
	"image-tagger/internal/fingerprint"
	"image-tagger/internal/logging"
	"image-tagger/internal/media"
	"image-tagger/internal/metrics"
)

// Class is the outcome of classifying one file.
type Class string

const (
	New        Class = "new"
	Modified   Class = "modified"
	Unchanged  Class = "unchanged"
	Unreadable Class = "unreadable"
)

// NeedsProcessing reports whether files of this class are enqueued.
func (c Class) NeedsProcessing() bool {
	return c == New || c == Modified
}

// Result carries the classification and the fingerprint computed for it.
// Cause is set for Unreadable.
type Result struct {
	Class       Class
	Fingerprint fingerprint.Fingerprint
	Cause       error
}

// Store is the persistence the detector needs.
type Store interface {
	GetFingerprint(ctx context.Context, path string) (*database.FileFingerprint, error)
	UpsertFingerprint(ctx context.Context, path string, fp fingerprint.Fingerprint) error
	TouchFingerprint(ctx context.Context, path string) error
	GetRecord(ctx context.Context, path string) (*database.Record, error)
}

// Detector classifies files against the store.
type Detector struct {
	store    Store
	policy   fingerprint.Policy
	validate func(path string) (media.Info, error)
}

// New creates a Detector using the given fingerprint policy.
func New(store Store, policy fingerprint.Policy) *Detector {
	if policy == "" {
		policy = fingerprint.DefaultPolicy
	}
	return &Detector{
		store:    store,
		policy:   policy,
		validate: media.Validate,
	}
}

// Policy returns the fingerprint policy in use.
func (d *Detector) Policy() fingerprint.Policy {
	return d.policy
}

// Classify fingerprints path and decides what to do with it. An error is
// returned only when classification itself failed (the file vanished, the
// store is unavailable); unreadable files are a Result, not an error.
func (d *Detector) Classify(ctx context.Context, path string) (Result, error) {
	current, err := fingerprint.Compute(path, d.policy)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return d.unreadable(ctx, path, fingerprint.Fingerprint{}, err)
		}
		return Result{}, fmt.Errorf("fingerprint %s: %w", path, err)
	}

	class, err := d.compare(ctx, path, current)
	if err != nil {
		return Result{}, err
	}

	if class == Unchanged {
		if err := d.store.TouchFingerprint(ctx, path); err != nil {
			logging.Warn("Failed to touch fingerprint for %s: %v", path, err)
		}
		return d.result(Result{Class: Unchanged, Fingerprint: current}), nil
	}

	if _, err := d.validate(path); err != nil {
		if errors.Is(err, media.ErrUnreadable) {
			return d.unreadable(ctx, path, current, err)
		}
		return Result{}, fmt.Errorf("validate %s: %w", path, err)
	}

	if err := d.store.UpsertFingerprint(ctx, path, current); err != nil {
		return Result{}, fmt.Errorf("store fingerprint %s: %w", path, err)
	}
	return d.result(Result{Class: class, Fingerprint: current}), nil
}

func (d *Detector) compare(ctx context.Context, path string, current fingerprint.Fingerprint) (Class, error) {
	stored, err := d.store.GetFingerprint(ctx, path)
	if errors.Is(err, database.ErrNotFound) {
		return New, nil
	}
	if err != nil {
		return "", fmt.Errorf("load fingerprint %s: %w", path, err)
	}
	if fingerprint.Differs(stored.Fingerprint, current) {
		return Modified, nil
	}

	rec, err := d.store.GetRecord(ctx, path)
	if errors.Is(err, database.ErrNotFound) {
		return New, nil
	}
	if err != nil {
		return "", fmt.Errorf("load record %s: %w", path, err)
	}

	switch rec.Status {
	case database.StatusCompleted:
		if fingerprint.Differs(rec.Processed, current) {
			return Modified, nil
		}
	case database.StatusPending:
		return New, nil
	}
	return Unchanged, nil
}

// unreadable stores whatever could be fingerprinted so an unchanged broken
// file classifies as Unchanged (its record is Failed) on later scans.
func (d *Detector) unreadable(ctx context.Context, path string, fp fingerprint.Fingerprint, cause error) (Result, error) {
	if !fp.IsZero() {
		if err := d.store.UpsertFingerprint(ctx, path, fp); err != nil {
			logging.Warn("Failed to store fingerprint for unreadable %s: %v", path, err)
		}
	}
	logging.Debug("Unreadable image %s: %v", path, cause)
	return d.result(Result{Class: Unreadable, Fingerprint: fp, Cause: cause}), nil
}

func (d *Detector) result(r Result) Result {
	metrics.DetectorClassificationsTotal.WithLabelValues(string(r.Class)).Inc()
	return r
}
