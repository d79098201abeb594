package store

import "context"

// FileAction distinguishes the three things a changeset can do to a path.
type FileAction string

const (
	FileActionAdd    FileAction = "add"
	FileActionModify FileAction = "modify"
	FileActionRemove FileAction = "remove"
)

// FileHistoryEntry records one file-level effect of a changeset, the
// ledger the rollback engine replays in reverse to restore prior content
// from the content-addressable store.
type FileHistoryEntry struct {
	ID          int64
	ChangesetID int64
	Path        string
	Hash        string
	Action      FileAction
}

// InsertFileHistoryEntry appends one file-history row.
func InsertFileHistoryEntry(ctx context.Context, q Querier, e *FileHistoryEntry) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO file_history (changeset_id, path, hash, action) VALUES (?, ?, ?, ?)`,
		e.ChangesetID, e.Path, e.Hash, string(e.Action))
	if err != nil {
		return 0, dbErr("InsertFileHistoryEntry", err)
	}
	return res.LastInsertId()
}

// ListFileHistoryByChangeset returns every file-level effect of a
// changeset, in insertion order, for rollback replay.
func ListFileHistoryByChangeset(ctx context.Context, q Querier, changesetID int64) ([]*FileHistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, changeset_id, path, hash, action FROM file_history WHERE changeset_id = ? ORDER BY id`, changesetID)
	if err != nil {
		return nil, dbErr("ListFileHistoryByChangeset", err)
	}
	defer rows.Close()

	var out []*FileHistoryEntry
	for rows.Next() {
		e := &FileHistoryEntry{}
		var action string
		if err := rows.Scan(&e.ID, &e.ChangesetID, &e.Path, &e.Hash, &action); err != nil {
			return nil, dbErr("ListFileHistoryByChangeset: scan", err)
		}
		e.Action = FileAction(action)
		out = append(out, e)
	}
	return out, dbErr("ListFileHistoryByChangeset: rows", rows.Err())
}
