package store

import (
	"context"
	"database/sql"
	"fmt"
)

// FileEntry is one filesystem path owned by a trove, the unit that file
// conflict detection and ownership lookups operate on.
type FileEntry struct {
	ID          int64
	Path        string
	SHA256Hash  string
	Size        int64
	Permissions uint32
	Owner       sql.NullString
	Group       sql.NullString
	TroveID     int64
	ComponentID sql.NullInt64
}

// InsertFileEntry records a file as owned by TroveID. Path has a unique
// constraint: two troves claiming the same path is a conflict the caller
// must detect with FindFileEntryByPath before inserting, not rely on the
// constraint to reject.
func InsertFileEntry(ctx context.Context, q Querier, f *FileEntry) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO file_entries (path, sha256_hash, size, permissions, owner, "group", trove_id, component_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Path, f.SHA256Hash, f.Size, f.Permissions, f.Owner, f.Group, f.TroveID, f.ComponentID)
	if err != nil {
		return 0, dbErr("InsertFileEntry", err)
	}
	return res.LastInsertId()
}

// FindFileEntryByPath looks up the current owner of path, if any.
func FindFileEntryByPath(ctx context.Context, q Querier, path string) (*FileEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, path, sha256_hash, size, permissions, owner, "group", trove_id, component_id
		FROM file_entries WHERE path = ?`, path)
	f := &FileEntry{}
	if err := row.Scan(&f.ID, &f.Path, &f.SHA256Hash, &f.Size, &f.Permissions, &f.Owner, &f.Group, &f.TroveID, &f.ComponentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("FindFileEntryByPath", err)
	}
	return f, nil
}

// ListFileEntriesByTrove returns every file a trove owns, used to build
// the remove/upgrade file list and config-file diffs.
func ListFileEntriesByTrove(ctx context.Context, q Querier, troveID int64) ([]*FileEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, path, sha256_hash, size, permissions, owner, "group", trove_id, component_id
		FROM file_entries WHERE trove_id = ? ORDER BY path`, troveID)
	if err != nil {
		return nil, dbErr("ListFileEntriesByTrove", err)
	}
	defer rows.Close()

	var out []*FileEntry
	for rows.Next() {
		f := &FileEntry{}
		if err := rows.Scan(&f.ID, &f.Path, &f.SHA256Hash, &f.Size, &f.Permissions, &f.Owner, &f.Group, &f.TroveID, &f.ComponentID); err != nil {
			return nil, dbErr("ListFileEntriesByTrove: scan", err)
		}
		out = append(out, f)
	}
	return out, dbErr("ListFileEntriesByTrove: rows", rows.Err())
}

// DeleteFileEntry removes a single file ownership row, used when an
// upgrade drops a path the previous version shipped.
func DeleteFileEntry(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM file_entries WHERE id = ?`, id)
	if err != nil {
		return dbErr("DeleteFileEntry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("DeleteFileEntry: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("DeleteFileEntry id=%d: %w", id, ErrNotFound)
	}
	return nil
}
