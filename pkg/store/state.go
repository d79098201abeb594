package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SystemState is one numbered snapshot of the fully-installed trove set,
// the rollback engine's unit of restoration.
type SystemState struct {
	ID           int64
	StateNumber  int64
	Summary      string
	Description  sql.NullString
	PackageCount int
	IsActive     bool
	ChangesetID  sql.NullInt64
}

// StateMember is one trove recorded as part of a state snapshot.
type StateMember struct {
	ID            int64
	StateID       int64
	TroveName     string
	TroveVersion  string
	Architecture  sql.NullString
	InstallReason string
}

// InsertState creates a new state snapshot. The caller is responsible for
// clearing is_active on the previous state within the same transaction
// (ActivateState does both).
func InsertState(ctx context.Context, q Querier, s *SystemState) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO states (state_number, summary, description, package_count, is_active, changeset_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.StateNumber, s.Summary, s.Description, s.PackageCount, s.IsActive, s.ChangesetID)
	if err != nil {
		return 0, dbErr("InsertState", err)
	}
	return res.LastInsertId()
}

// NextStateNumber returns one past the highest existing state_number,
// state numbers are monotonic and never reused even across pruning.
func NextStateNumber(ctx context.Context, q Querier) (int64, error) {
	row := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(state_number), 0) + 1 FROM states`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, dbErr("NextStateNumber", err)
	}
	return n, nil
}

// ActivateState marks stateID active and every other state inactive, the
// exclusivity invariant §4.4 requires ("exactly one state is_active").
func ActivateState(ctx context.Context, q Querier, stateID int64) error {
	if _, err := q.ExecContext(ctx, `UPDATE states SET is_active = 0`); err != nil {
		return dbErr("ActivateState: clear", err)
	}
	res, err := q.ExecContext(ctx, `UPDATE states SET is_active = 1 WHERE id = ?`, stateID)
	if err != nil {
		return dbErr("ActivateState: set", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("ActivateState: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("ActivateState id=%d: %w", stateID, ErrNotFound)
	}
	return nil
}

// FindActiveState returns the single currently-active state.
func FindActiveState(ctx context.Context, q Querier) (*SystemState, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, state_number, summary, description, package_count, is_active, changeset_id
		FROM states WHERE is_active = 1`)
	return scanState(row)
}

// FindStateByNumber loads a state snapshot by its public state_number.
func FindStateByNumber(ctx context.Context, q Querier, number int64) (*SystemState, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, state_number, summary, description, package_count, is_active, changeset_id
		FROM states WHERE state_number = ?`, number)
	return scanState(row)
}

// ListStates returns every snapshot, most recent first.
func ListStates(ctx context.Context, q Querier) ([]*SystemState, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, state_number, summary, description, package_count, is_active, changeset_id
		FROM states ORDER BY state_number DESC`)
	if err != nil {
		return nil, dbErr("ListStates", err)
	}
	defer rows.Close()

	var out []*SystemState
	for rows.Next() {
		s := &SystemState{}
		if err := rows.Scan(&s.ID, &s.StateNumber, &s.Summary, &s.Description, &s.PackageCount, &s.IsActive, &s.ChangesetID); err != nil {
			return nil, dbErr("ListStates: scan", err)
		}
		out = append(out, s)
	}
	return out, dbErr("ListStates: rows", rows.Err())
}

// DeleteState removes a snapshot (its members cascade), used by prune.
// The active state may never be pruned; callers must check before
// calling this.
func DeleteState(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM states WHERE id = ?`, id)
	return dbErr("DeleteState", err)
}

func scanState(row *sql.Row) (*SystemState, error) {
	s := &SystemState{}
	if err := row.Scan(&s.ID, &s.StateNumber, &s.Summary, &s.Description, &s.PackageCount, &s.IsActive, &s.ChangesetID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("scanState", err)
	}
	return s, nil
}

// InsertStateMember records one trove as part of a state snapshot.
func InsertStateMember(ctx context.Context, q Querier, m *StateMember) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO state_members (state_id, trove_name, trove_version, architecture, install_reason)
		VALUES (?, ?, ?, ?, ?)`,
		m.StateID, m.TroveName, m.TroveVersion, m.Architecture, m.InstallReason)
	if err != nil {
		return 0, dbErr("InsertStateMember", err)
	}
	return res.LastInsertId()
}

// ListStateMembers returns every trove recorded in a state snapshot.
func ListStateMembers(ctx context.Context, q Querier, stateID int64) ([]*StateMember, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, state_id, trove_name, trove_version, architecture, install_reason
		FROM state_members WHERE state_id = ? ORDER BY trove_name`, stateID)
	if err != nil {
		return nil, dbErr("ListStateMembers", err)
	}
	defer rows.Close()

	var out []*StateMember
	for rows.Next() {
		m := &StateMember{}
		if err := rows.Scan(&m.ID, &m.StateID, &m.TroveName, &m.TroveVersion, &m.Architecture, &m.InstallReason); err != nil {
			return nil, dbErr("ListStateMembers: scan", err)
		}
		out = append(out, m)
	}
	return out, dbErr("ListStateMembers: rows", rows.Err())
}
