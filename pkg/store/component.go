package store

import "context"

// Component is a named subset of files within a collection trove (e.g.
// "nginx:doc" vs "nginx:runtime"), letting a partial install skip
// documentation or development files.
type Component struct {
	ID            int64
	ParentTroveID int64
	Name          string
}

// InsertComponent creates a component under a parent trove.
func InsertComponent(ctx context.Context, q Querier, c *Component) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO components (parent_trove_id, name) VALUES (?, ?)`, c.ParentTroveID, c.Name)
	if err != nil {
		return 0, dbErr("InsertComponent", err)
	}
	return res.LastInsertId()
}

// ListComponentsByTrove returns every component under a parent trove.
func ListComponentsByTrove(ctx context.Context, q Querier, parentTroveID int64) ([]*Component, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, parent_trove_id, name FROM components WHERE parent_trove_id = ? ORDER BY name`, parentTroveID)
	if err != nil {
		return nil, dbErr("ListComponentsByTrove", err)
	}
	defer rows.Close()

	var out []*Component
	for rows.Next() {
		c := &Component{}
		if err := rows.Scan(&c.ID, &c.ParentTroveID, &c.Name); err != nil {
			return nil, dbErr("ListComponentsByTrove: scan", err)
		}
		out = append(out, c)
	}
	return out, dbErr("ListComponentsByTrove: rows", rows.Err())
}
