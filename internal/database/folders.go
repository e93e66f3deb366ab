package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const folderColumns = "id, path, recursive, active, created_at"

func scanFolder(row interface{ Scan(...any) error }) (Folder, error) {
	var f Folder
	var created int64
	if err := row.Scan(&f.ID, &f.Path, &f.Recursive, &f.Active, &created); err != nil {
		return Folder{}, err
	}
	f.CreatedAt = unixOrZero(created)
	return f, nil
}

// AddFolder registers path (absolute) as a watched folder, or reactivates it
// with the given recursion setting if it already exists.
func (d *Database) AddFolder(ctx context.Context, path string, recursive bool) (folder *Folder, err error) {
	start := time.Now()
	defer func() { recordQuery("add_folder", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	f, err := scanFolder(d.db.QueryRowContext(ctx, `
		INSERT INTO folders (path, recursive, active) VALUES (?, ?, 1)
		ON CONFLICT(path) DO UPDATE SET recursive = excluded.recursive, active = 1
		RETURNING `+folderColumns, path, recursive))
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFolder returns the folder with id, or ErrNotFound.
func (d *Database) GetFolder(ctx context.Context, id int64) (folder *Folder, err error) {
	start := time.Now()
	defer func() { recordQuery("get_folder", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	f, err := scanFolder(d.db.QueryRowContext(ctx, "SELECT "+folderColumns+" FROM folders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFolders returns every registered folder ordered by id.
func (d *Database) ListFolders(ctx context.Context) ([]Folder, error) {
	return d.queryFolders(ctx, "SELECT "+folderColumns+" FROM folders ORDER BY id")
}

// ActiveFolders returns the folders that should be scanned and watched.
func (d *Database) ActiveFolders(ctx context.Context) ([]Folder, error) {
	return d.queryFolders(ctx, "SELECT "+folderColumns+" FROM folders WHERE active = 1 ORDER BY id")
}

func (d *Database) queryFolders(ctx context.Context, query string) (folders []Folder, err error) {
	start := time.Now()
	defer func() { recordQuery("list_folders", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders = []Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// SetFolderActive enables or disables a folder.
func (d *Database) SetFolderActive(ctx context.Context, id int64, active bool) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_folder_active", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "UPDATE folders SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("folder %d: %w", id, ErrNotFound)
	}
	return nil
}
