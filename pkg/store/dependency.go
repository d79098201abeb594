package store

import (
	"context"
	"database/sql"
)

// DependencyEntry is one capability a trove requires.
type DependencyEntry struct {
	ID                int64
	TroveID           int64
	DependsOnName     string
	VersionConstraint sql.NullString
	DepType           string
}

// InsertDependencyEntry records a capability a trove requires.
func InsertDependencyEntry(ctx context.Context, q Querier, d *DependencyEntry) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO dependencies (trove_id, depends_on_name, version_constraint, dep_type) VALUES (?, ?, ?, ?)`,
		d.TroveID, d.DependsOnName, d.VersionConstraint, d.DepType)
	if err != nil {
		return 0, dbErr("InsertDependencyEntry", err)
	}
	return res.LastInsertId()
}

// ListDependenciesByTrove returns every capability a trove requires.
func ListDependenciesByTrove(ctx context.Context, q Querier, troveID int64) ([]*DependencyEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, trove_id, depends_on_name, version_constraint, dep_type FROM dependencies WHERE trove_id = ?`, troveID)
	if err != nil {
		return nil, dbErr("ListDependenciesByTrove", err)
	}
	defer rows.Close()

	var out []*DependencyEntry
	for rows.Next() {
		d := &DependencyEntry{}
		if err := rows.Scan(&d.ID, &d.TroveID, &d.DependsOnName, &d.VersionConstraint, &d.DepType); err != nil {
			return nil, dbErr("ListDependenciesByTrove: scan", err)
		}
		out = append(out, d)
	}
	return out, dbErr("ListDependenciesByTrove: rows", rows.Err())
}

// FindReverseDependents returns every trove that depends on capability,
// the check the engine runs before removing a trove (§4.3.5).
func FindReverseDependents(ctx context.Context, q Querier, capability string) ([]*Trove, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.name, t.version, t.type, t.architecture, t.install_source, t.install_reason, t.selection_reason, t.description, t.pinned, t.installed_by_changeset_id
		FROM troves t
		JOIN dependencies d ON d.trove_id = t.id
		WHERE d.depends_on_name = ?`, capability)
	if err != nil {
		return nil, dbErr("FindReverseDependents", err)
	}
	defer rows.Close()

	var out []*Trove
	for rows.Next() {
		t, err := scanTroveRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, dbErr("FindReverseDependents: rows", rows.Err())
}
