package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
)

// ProvideEntry is one capability a trove offers, the other half of
// dependency resolution alongside DependencyEntry.
type ProvideEntry struct {
	ID         int64
	TroveID    int64
	Capability string
	Version    sql.NullString
}

// InsertProvideEntry records a capability a trove offers, including the
// implicit self-provide every trove carries (pkgfmt.Package.SelfProvide).
func InsertProvideEntry(ctx context.Context, q Querier, p *ProvideEntry) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO provides (trove_id, capability, version) VALUES (?, ?, ?)`,
		p.TroveID, p.Capability, p.Version)
	if err != nil {
		return 0, dbErr("InsertProvideEntry", err)
	}
	return res.LastInsertId()
}

// FindSatisfyingProvider resolves a dependency's capability name to the
// provide entries that satisfy it, trying progressively looser matches
// in order (§4.3.3):
//
//  1. exact match
//  2. prefix match (capability starts with name followed by '(' or '.',
//     covering soname-style capabilities like "libssl.so.3(OPENSSL_1_1)")
//  3. case-insensitive prefix match, logged at debug since it signals a
//     naming convention mismatch across package ecosystems
//
// It returns as soon as a tier produces at least one match.
func FindSatisfyingProvider(ctx context.Context, q Querier, capability string) ([]*ProvideEntry, error) {
	if rows, err := queryProvides(ctx, q, `SELECT id, trove_id, capability, version FROM provides WHERE capability = ?`, capability); err != nil {
		return nil, err
	} else if len(rows) > 0 {
		return rows, nil
	}

	if rows, err := queryProvides(ctx, q, `SELECT id, trove_id, capability, version FROM provides WHERE capability LIKE ? ESCAPE '\'`, escapeLike(capability)+"%"); err != nil {
		return nil, err
	} else if matched := filterPrefix(rows, capability); len(matched) > 0 {
		return matched, nil
	}

	all, err := queryProvides(ctx, q, `SELECT id, trove_id, capability, version FROM provides`)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(capability)
	var matches []*ProvideEntry
	for _, p := range all {
		if strings.HasPrefix(strings.ToLower(p.Capability), lower) {
			matches = append(matches, p)
		}
	}
	if len(matches) > 0 {
		log.WithComponent("store").Debug().
			Str("capability", capability).
			Int("matches", len(matches)).
			Msg("find_satisfying_provider: fell back to case-insensitive prefix match")
	}
	return matches, nil
}

// filterPrefix keeps only rows whose capability is exactly name or begins
// with name followed by '(' or '.', rejecting accidental substring
// matches the SQL LIKE clause let through (e.g. "libssl" matching
// "libssl-dev").
func filterPrefix(rows []*ProvideEntry, name string) []*ProvideEntry {
	var out []*ProvideEntry
	for _, p := range rows {
		rest := strings.TrimPrefix(p.Capability, name)
		if rest == p.Capability {
			continue
		}
		if rest == "" || strings.HasPrefix(rest, "(") || strings.HasPrefix(rest, ".") {
			out = append(out, p)
		}
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func queryProvides(ctx context.Context, q Querier, query string, args ...any) ([]*ProvideEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("queryProvides", err)
	}
	defer rows.Close()

	var out []*ProvideEntry
	for rows.Next() {
		p := &ProvideEntry{}
		if err := rows.Scan(&p.ID, &p.TroveID, &p.Capability, &p.Version); err != nil {
			return nil, dbErr("queryProvides: scan", err)
		}
		out = append(out, p)
	}
	return out, dbErr("queryProvides: rows", rows.Err())
}

// ListProvidesByTrove returns every capability a trove offers, including
// its self-provide.
func ListProvidesByTrove(ctx context.Context, q Querier, troveID int64) ([]*ProvideEntry, error) {
	return queryProvides(ctx, q, `SELECT id, trove_id, capability, version FROM provides WHERE trove_id = ?`, troveID)
}
