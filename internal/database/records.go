package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

func currentStatus(ctx context.Context, tx *sql.Tx, path string) (Status, error) {
	var status Status
	err := tx.QueryRowContext(ctx, "SELECT status FROM processing_records WHERE path = ?", path).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return statusNone, nil
	}
	return status, err
}

// GetRecord returns the processing record for path with its tags, or ErrNotFound.
func (d *Database) GetRecord(ctx context.Context, path string) (rec *Record, err error) {
	start := time.Now()
	defer func() { recordQuery("get_record", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var (
		r                                                  Record
		lastAttempted, lastSucceeded, processedMod, update int64
		metadataWritten                                    bool
	)
	err = d.db.QueryRowContext(ctx, `
		SELECT path, folder_id, status, attempts, cycle_attempts, last_error,
		       last_attempted_at, last_succeeded_at, description,
		       processed_checksum, processed_size, processed_mod_time,
		       metadata_written, metadata_error, updated_at
		FROM processing_records WHERE path = ?
	`, path).Scan(
		&r.Path, &r.FolderID, &r.Status, &r.Attempts, &r.CycleAttempts, &r.LastError,
		&lastAttempted, &lastSucceeded, &r.Description,
		&r.Processed.Checksum, &r.Processed.Size, &processedMod,
		&metadataWritten, &r.MetadataError, &update,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	r.LastAttemptedAt = unixOrZero(lastAttempted)
	r.LastSucceededAt = unixOrZero(lastSucceeded)
	r.Processed.ModTime = nanosOrZero(processedMod)
	r.MetadataWritten = metadataWritten
	r.UpdatedAt = unixOrZero(update)

	rows, err := d.db.QueryContext(ctx, "SELECT tag FROM record_tags WHERE path = ? ORDER BY tag", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	r.Tags = []string{}
	for rows.Next() {
		var tag string
		if err = rows.Scan(&tag); err != nil {
			return nil, err
		}
		r.Tags = append(r.Tags, tag)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return &r, nil
}

// MarkPending creates a Pending record for path, or moves a Completed or Failed
// record back to Pending with a fresh attempt cycle. A record that is already
// Pending is left as is.
func (d *Database) MarkPending(ctx context.Context, path string, folderID int64) (err error) {
	start := time.Now()
	defer func() { recordQuery("mark_pending", start, err) }()

	return d.withTx(ctx, func(tx *sql.Tx) error {
		from, err := currentStatus(ctx, tx, path)
		if err != nil {
			return err
		}

		switch from {
		case statusNone:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO processing_records (path, folder_id, status) VALUES (?, ?, ?)
			`, path, folderID, StatusPending)
			return err
		case StatusPending:
			return nil
		}

		if err := checkTransition(path, from, StatusPending); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE processing_records
			SET status = ?, cycle_attempts = 0, last_error = '',
			    folder_id = CASE WHEN ? > 0 THEN ? ELSE folder_id END,
			    updated_at = strftime('%s', 'now')
			WHERE path = ?
		`, StatusPending, folderID, folderID, path)
		return err
	})
}

// MarkProcessing moves a Pending record to Processing and counts the attempt.
// The returned record carries the updated counters.
func (d *Database) MarkProcessing(ctx context.Context, path string) (rec *Record, err error) {
	start := time.Now()
	defer func() { recordQuery("mark_processing", start, err) }()

	r := Record{Path: path, Status: StatusProcessing}
	err = d.withTx(ctx, func(tx *sql.Tx) error {
		from, err := currentStatus(ctx, tx, path)
		if err != nil {
			return err
		}
		if err := checkTransition(path, from, StatusProcessing); err != nil {
			return err
		}

		var lastAttempted int64
		err = tx.QueryRowContext(ctx, `
			UPDATE processing_records
			SET status = ?, attempts = attempts + 1, cycle_attempts = cycle_attempts + 1,
			    last_attempted_at = strftime('%s', 'now'), updated_at = strftime('%s', 'now')
			WHERE path = ?
			RETURNING folder_id, attempts, cycle_attempts, last_attempted_at, description
		`, StatusProcessing, path).Scan(&r.FolderID, &r.Attempts, &r.CycleAttempts, &lastAttempted, &r.Description)
		r.LastAttemptedAt = unixOrZero(lastAttempted)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkCompleted persists a successful attempt: the record moves to Completed
// with its description, tags and processed fingerprint, and the stored file
// fingerprint is updated, all in one transaction.
func (d *Database) MarkCompleted(ctx context.Context, path string, out Outcome) (err error) {
	start := time.Now()
	defer func() { recordQuery("mark_completed", start, err) }()

	return d.withTx(ctx, func(tx *sql.Tx) error {
		from, err := currentStatus(ctx, tx, path)
		if err != nil {
			return err
		}
		if err := checkTransition(path, from, StatusCompleted); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE processing_records
			SET status = ?, last_error = '', description = ?,
			    processed_checksum = ?, processed_size = ?, processed_mod_time = ?,
			    metadata_written = ?, metadata_error = ?,
			    last_succeeded_at = strftime('%s', 'now'), updated_at = strftime('%s', 'now')
			WHERE path = ?
		`, StatusCompleted, out.Description,
			out.Fingerprint.Checksum, out.Fingerprint.Size, toNanos(out.Fingerprint.ModTime),
			out.MetadataWritten, out.MetadataError, path)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM record_tags WHERE path = ?", path); err != nil {
			return fmt.Errorf("clear tags: %w", err)
		}
		for _, tag := range out.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO record_tags (path, tag) VALUES (?, ?)", path, tag); err != nil {
				return fmt.Errorf("insert tag %q: %w", tag, err)
			}
		}

		if _, err := upsertFingerprint(ctx, tx, path, out.Fingerprint); err != nil {
			return fmt.Errorf("update fingerprint: %w", err)
		}
		return nil
	})
}

// MarkRetry returns a Processing record to Pending after a transient failure.
// The cycle attempt counter is kept so the retry ceiling holds.
func (d *Database) MarkRetry(ctx context.Context, path, lastError string) (err error) {
	start := time.Now()
	defer func() { recordQuery("mark_retry", start, err) }()

	return d.setStatus(ctx, path, StatusPending, lastError)
}

// MarkFailed moves a Pending or Processing record to Failed.
func (d *Database) MarkFailed(ctx context.Context, path, lastError string) (err error) {
	start := time.Now()
	defer func() { recordQuery("mark_failed", start, err) }()

	return d.setStatus(ctx, path, StatusFailed, lastError)
}

func (d *Database) setStatus(ctx context.Context, path string, to Status, lastError string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		from, err := currentStatus(ctx, tx, path)
		if err != nil {
			return err
		}
		if from == statusNone {
			return fmt.Errorf("record %s: %w", path, ErrNotFound)
		}
		if err := checkTransition(path, from, to); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE processing_records
			SET status = ?, last_error = ?, updated_at = strftime('%s', 'now')
			WHERE path = ?
		`, to, lastError, path)
		return err
	})
}

// MarkUnreadable records that path could not be read or decoded. The record
// is created as Failed, or a terminal record is cycled through Pending to
// Failed, without consuming an attempt.
func (d *Database) MarkUnreadable(ctx context.Context, path string, folderID int64, cause string) (err error) {
	start := time.Now()
	defer func() { recordQuery("mark_failed", start, err) }()

	return d.withTx(ctx, func(tx *sql.Tx) error {
		from, err := currentStatus(ctx, tx, path)
		if err != nil {
			return err
		}

		if from == statusNone {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO processing_records (path, folder_id, status, last_error) VALUES (?, ?, ?, ?)
			`, path, folderID, StatusFailed, cause)
			return err
		}

		if from == StatusCompleted || from == StatusFailed {
			if err := checkTransition(path, from, StatusPending); err != nil {
				return err
			}
			from = StatusPending
		}
		if err := checkTransition(path, from, StatusFailed); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE processing_records
			SET status = ?, cycle_attempts = 0, last_error = ?, updated_at = strftime('%s', 'now')
			WHERE path = ?
		`, StatusFailed, cause, path)
		return err
	})
}

// RecoverInterrupted returns records left in Processing by a previous run to
// Pending, and reports how many were reset.
func (d *Database) RecoverInterrupted(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { recordQuery("recover_interrupted", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE processing_records
		SET status = ?, last_error = 'interrupted', updated_at = strftime('%s', 'now')
		WHERE status = ?
	`, StatusPending, StatusProcessing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatusCounts returns the number of records per status.
func (d *Database) StatusCounts(ctx context.Context) (counts map[Status]int, err error) {
	start := time.Now()
	defer func() { recordQuery("status_counts", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM processing_records GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts = map[Status]int{}
	for rows.Next() {
		var status Status
		var n int
		if err = rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListDescriptions returns path, description and tags of every Completed record.
func (d *Database) ListDescriptions(ctx context.Context) (out []Description, err error) {
	start := time.Now()
	defer func() { recordQuery("list_descriptions", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT r.path, r.description, COALESCE(group_concat(t.tag, char(31)), '')
		FROM processing_records r
		LEFT JOIN record_tags t ON t.path = r.path
		WHERE r.status = ?
		GROUP BY r.path
		ORDER BY r.path
	`, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var desc Description
		var tags string
		if err = rows.Scan(&desc.Path, &desc.Description, &tags); err != nil {
			return nil, err
		}
		desc.Tags = []string{}
		if tags != "" {
			desc.Tags = strings.Split(tags, "\x1f")
			slices.Sort(desc.Tags)
		}
		out = append(out, desc)
	}
	return out, rows.Err()
}
