package store

import "context"

// Repository is one remote trove source the resolver may consult when
// a requested dependency isn't satisfied locally. Fetching from a
// repository is out of scope (spec.md §1 Non-goals); this only tracks
// configuration for a future resolver to use.
type Repository struct {
	ID             int64
	Name           string
	URL            string
	Enabled        bool
	Priority       int
	GPGCheck       bool
	MetadataExpire int
}

// InsertRepository registers a repository.
func InsertRepository(ctx context.Context, q Querier, r *Repository) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO repositories (name, url, enabled, priority, gpg_check, metadata_expire)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Name, r.URL, r.Enabled, r.Priority, r.GPGCheck, r.MetadataExpire)
	if err != nil {
		return 0, dbErr("InsertRepository", err)
	}
	return res.LastInsertId()
}

// ListRepositories returns every repository ordered by priority, highest
// first.
func ListRepositories(ctx context.Context, q Querier) ([]*Repository, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, url, enabled, priority, gpg_check, metadata_expire FROM repositories ORDER BY priority DESC`)
	if err != nil {
		return nil, dbErr("ListRepositories", err)
	}
	defer rows.Close()

	var out []*Repository
	for rows.Next() {
		r := &Repository{}
		if err := rows.Scan(&r.ID, &r.Name, &r.URL, &r.Enabled, &r.Priority, &r.GPGCheck, &r.MetadataExpire); err != nil {
			return nil, dbErr("ListRepositories: scan", err)
		}
		out = append(out, r)
	}
	return out, dbErr("ListRepositories: rows", rows.Err())
}

// DeleteRepository removes a repository by name.
func DeleteRepository(ctx context.Context, q Querier, name string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM repositories WHERE name = ?`, name)
	if err != nil {
		return dbErr("DeleteRepository", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr("DeleteRepository: rows affected", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
