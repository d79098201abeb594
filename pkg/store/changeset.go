package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ChangesetStatus tracks a changeset through its lifecycle.
type ChangesetStatus string

const (
	ChangesetPending    ChangesetStatus = "pending"
	ChangesetApplied    ChangesetStatus = "applied"
	ChangesetRolledBack ChangesetStatus = "rolled_back"
)

// Changeset is one atomic transaction: an install, remove, upgrade, or
// batch operation, plus the rollback that later reverses it.
type Changeset struct {
	ID                     int64
	Description            string
	Status                 ChangesetStatus
	AppliedAt              sql.NullTime
	RolledBackAt           sql.NullTime
	ReversedByChangesetID  sql.NullInt64
}

// InsertChangeset creates a changeset row in ChangesetPending status.
func InsertChangeset(ctx context.Context, q Querier, description string) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO changesets (description, status) VALUES (?, ?)`, description, string(ChangesetPending))
	if err != nil {
		return 0, dbErr("InsertChangeset", err)
	}
	return res.LastInsertId()
}

// UpdateChangesetStatus transitions a changeset to applied or
// rolled_back, stamping the corresponding timestamp column.
func UpdateChangesetStatus(ctx context.Context, q Querier, id int64, status ChangesetStatus) error {
	var query string
	switch status {
	case ChangesetApplied:
		query = `UPDATE changesets SET status = ?, applied_at = CURRENT_TIMESTAMP WHERE id = ?`
	case ChangesetRolledBack:
		query = `UPDATE changesets SET status = ?, rolled_back_at = CURRENT_TIMESTAMP WHERE id = ?`
	default:
		query = `UPDATE changesets SET status = ? WHERE id = ?`
	}
	res, err := q.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return dbErr("UpdateChangesetStatus", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("UpdateChangesetStatus: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("UpdateChangesetStatus id=%d: %w", id, ErrNotFound)
	}
	return nil
}

// LinkReversal records that reversalID (a new changeset) reverses
// originalID, used by rollback so the state diff can cite which
// changeset undid which.
func LinkReversal(ctx context.Context, q Querier, originalID, reversalID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE changesets SET reversed_by_changeset_id = ? WHERE id = ?`, reversalID, originalID)
	return dbErr("LinkReversal", err)
}

// FindChangesetByID loads a single changeset.
func FindChangesetByID(ctx context.Context, q Querier, id int64) (*Changeset, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, description, status, applied_at, rolled_back_at, reversed_by_changeset_id
		FROM changesets WHERE id = ?`, id)
	c := &Changeset{}
	var status string
	if err := row.Scan(&c.ID, &c.Description, &status, &c.AppliedAt, &c.RolledBackAt, &c.ReversedByChangesetID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("FindChangesetByID", err)
	}
	c.Status = ChangesetStatus(status)
	return c, nil
}
