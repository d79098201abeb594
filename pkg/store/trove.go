package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InstallSource records how a trove entered the system.
type InstallSource string

const (
	SourceFile          InstallSource = "file"
	SourceRepository    InstallSource = "repository"
	SourceAdoptedTrack  InstallSource = "adopted-track"
	SourceAdoptedFull   InstallSource = "adopted-full"
)

// InstallReason distinguishes explicitly requested troves from those
// pulled in purely to satisfy a dependency, mirroring the distinction
// the state engine needs for the "minimal set to restore" calculation.
type InstallReason string

const (
	ReasonExplicit   InstallReason = "explicit"
	ReasonDependency InstallReason = "dependency"
)

// TroveType distinguishes an installable unit from the components and
// collections that may group them.
type TroveType string

const (
	TrovePackage   TroveType = "package"
	TroveComponent TroveType = "component"
	TroveCollection TroveType = "collection"
)

// Trove is one row of the troves table: an installed package, component,
// or collection.
type Trove struct {
	ID                     int64
	Name                   string
	Version                string
	Type                   TroveType
	Architecture           sql.NullString
	InstallSource          InstallSource
	InstallReason          InstallReason
	SelectionReason         sql.NullString
	Description            sql.NullString
	Pinned                 bool
	InstalledByChangesetID sql.NullInt64
}

// InsertTrove inserts a new trove row and returns its assigned ID.
func InsertTrove(ctx context.Context, q Querier, t *Trove) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO troves (name, version, type, architecture, install_source, install_reason, selection_reason, description, pinned, installed_by_changeset_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.Version, string(t.Type), t.Architecture, string(t.InstallSource), string(t.InstallReason),
		t.SelectionReason, t.Description, t.Pinned, t.InstalledByChangesetID)
	if err != nil {
		return 0, dbErr("InsertTrove", err)
	}
	return res.LastInsertId()
}

// FindTroveByID loads a single trove by primary key.
func FindTroveByID(ctx context.Context, q Querier, id int64) (*Trove, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, version, type, architecture, install_source, install_reason, selection_reason, description, pinned, installed_by_changeset_id
		FROM troves WHERE id = ?`, id)
	return scanTrove(row)
}

// FindTroveByName returns every installed version of name, optionally
// filtered by architecture (empty string matches any). More than one row
// signals an ambiguous reference the engine must resolve (§4.3.4).
func FindTroveByName(ctx context.Context, q Querier, name, architecture string) ([]*Trove, error) {
	var rows *sql.Rows
	var err error
	if architecture == "" {
		rows, err = q.QueryContext(ctx, `
			SELECT id, name, version, type, architecture, install_source, install_reason, selection_reason, description, pinned, installed_by_changeset_id
			FROM troves WHERE name = ? ORDER BY version`, name)
	} else {
		rows, err = q.QueryContext(ctx, `
			SELECT id, name, version, type, architecture, install_source, install_reason, selection_reason, description, pinned, installed_by_changeset_id
			FROM troves WHERE name = ? AND architecture = ? ORDER BY version`, name, architecture)
	}
	if err != nil {
		return nil, dbErr("FindTroveByName", err)
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
	return out, dbErr("FindTroveByName: rows", rows.Err())
}

// ListAllTroves returns every installed trove, ordered by name then
// version, for `conary list` and for state-snapshot creation.
func ListAllTroves(ctx context.Context, q Querier) ([]*Trove, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, version, type, architecture, install_source, install_reason, selection_reason, description, pinned, installed_by_changeset_id
		FROM troves ORDER BY name, version`)
	if err != nil {
		return nil, dbErr("ListAllTroves", err)
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
	return out, dbErr("ListAllTroves: rows", rows.Err())
}

// FindOrphanTroves returns troves installed purely as dependencies
// (ReasonDependency) that nothing currently depends on, the candidate
// set for autoremove.
func FindOrphanTroves(ctx context.Context, q Querier) ([]*Trove, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.id, t.name, t.version, t.type, t.architecture, t.install_source, t.install_reason, t.selection_reason, t.description, t.pinned, t.installed_by_changeset_id
		FROM troves t
		WHERE t.install_reason = 'dependency'
		AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN troves owner ON owner.id = d.trove_id
			JOIN provides p ON p.trove_id = t.id
			WHERE d.depends_on_name = p.capability
		)`)
	if err != nil {
		return nil, dbErr("FindOrphanTroves", err)
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
	return out, dbErr("FindOrphanTroves: rows", rows.Err())
}

// DeleteTrove removes a trove row; ON DELETE CASCADE takes care of its
// files, dependencies, provides, components, and config-file tracking.
func DeleteTrove(ctx context.Context, q Querier, id int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM troves WHERE id = ?`, id)
	if err != nil {
		return dbErr("DeleteTrove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("DeleteTrove: rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("DeleteTrove id=%d: %w", id, ErrNotFound)
	}
	return nil
}

// SetTrovePinned updates the pinned flag used by the engine's
// pinned-package enforcement (§4.3.6).
func SetTrovePinned(ctx context.Context, q Querier, id int64, pinned bool) error {
	_, err := q.ExecContext(ctx, `UPDATE troves SET pinned = ? WHERE id = ?`, pinned, id)
	return dbErr("SetTrovePinned", err)
}

func scanTrove(row *sql.Row) (*Trove, error) {
	t := &Trove{}
	var typ, source, reason string
	if err := row.Scan(&t.ID, &t.Name, &t.Version, &typ, &t.Architecture, &source, &reason,
		&t.SelectionReason, &t.Description, &t.Pinned, &t.InstalledByChangesetID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("scanTrove", err)
	}
	t.Type, t.InstallSource, t.InstallReason = TroveType(typ), InstallSource(source), InstallReason(reason)
	return t, nil
}

func scanTroveRows(rows *sql.Rows) (*Trove, error) {
	t := &Trove{}
	var typ, source, reason string
	if err := rows.Scan(&t.ID, &t.Name, &t.Version, &typ, &t.Architecture, &source, &reason,
		&t.SelectionReason, &t.Description, &t.Pinned, &t.InstalledByChangesetID); err != nil {
		return nil, dbErr("scanTroveRows", err)
	}
	t.Type, t.InstallSource, t.InstallReason = TroveType(typ), InstallSource(source), InstallReason(reason)
	return t, nil
}
