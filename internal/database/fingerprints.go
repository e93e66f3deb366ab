package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"image-tagger/internal/fingerprint"
)

// GetFingerprint returns the stored fingerprint for path, or ErrNotFound.
func (d *Database) GetFingerprint(ctx context.Context, path string) (fp *FileFingerprint, err error) {
	start := time.Now()
	defer func() { recordQuery("get_fingerprint", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var size, modTime, lastSeen int64
	result := FileFingerprint{Path: path}
	err = d.db.QueryRowContext(ctx,
		"SELECT checksum, size, mod_time, last_seen FROM fingerprints WHERE path = ?", path,
	).Scan(&result.Checksum, &size, &modTime, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fingerprint %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	result.Size = size
	result.ModTime = nanosOrZero(modTime)
	result.LastSeen = unixOrZero(lastSeen)
	return &result, nil
}

// UpsertFingerprint stores fp for path and marks it seen now.
func (d *Database) UpsertFingerprint(ctx context.Context, path string, fp fingerprint.Fingerprint) (err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_fingerprint", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = upsertFingerprint(ctx, d.db, path, fp)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertFingerprint(ctx context.Context, ex execer, path string, fp fingerprint.Fingerprint) (sql.Result, error) {
	return ex.ExecContext(ctx, `
		INSERT INTO fingerprints (path, checksum, size, mod_time, last_seen)
		VALUES (?, ?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(path) DO UPDATE SET
			checksum = excluded.checksum,
			size = excluded.size,
			mod_time = excluded.mod_time,
			last_seen = excluded.last_seen
	`, path, fp.Checksum, fp.Size, toNanos(fp.ModTime))
}

// TouchFingerprint updates last_seen for path without changing its identity.
func (d *Database) TouchFingerprint(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { recordQuery("touch_fingerprint", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx,
		"UPDATE fingerprints SET last_seen = strftime('%s', 'now') WHERE path = ?", path)
	return err
}
