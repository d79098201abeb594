package store

import (
	"context"
	"strings"
)

// TroveScriptlet is a legacy imperative scriptlet carried forward from a
// trove's original package at install time, kept around so remove and
// upgrade can still run the old package's pre-remove/post-remove phases
// (§4.3.4 step 6, §4.3.5) once the original archive is no longer
// available.
type TroveScriptlet struct {
	ID           int64
	TroveID      int64
	Phase        string
	Interpreter  string
	Flags        []string
	Body         string
	SourceFormat string
}

// InsertTroveScriptlet records one scriptlet phase belonging to a trove.
func InsertTroveScriptlet(ctx context.Context, q Querier, s *TroveScriptlet) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO trove_scriptlets (trove_id, phase, interpreter, flags, body, source_format)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.TroveID, s.Phase, s.Interpreter, strings.Join(s.Flags, " "), s.Body, s.SourceFormat)
	if err != nil {
		return 0, dbErr("InsertTroveScriptlet", err)
	}
	return res.LastInsertId()
}

// ListTroveScriptlets returns every scriptlet phase recorded for a trove.
func ListTroveScriptlets(ctx context.Context, q Querier, troveID int64) ([]*TroveScriptlet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, trove_id, phase, interpreter, flags, body, source_format
		FROM trove_scriptlets WHERE trove_id = ?`, troveID)
	if err != nil {
		return nil, dbErr("ListTroveScriptlets", err)
	}
	defer rows.Close()

	var out []*TroveScriptlet
	for rows.Next() {
		s := &TroveScriptlet{}
		var flags string
		if err := rows.Scan(&s.ID, &s.TroveID, &s.Phase, &s.Interpreter, &flags, &s.Body, &s.SourceFormat); err != nil {
			return nil, dbErr("ListTroveScriptlets: scan", err)
		}
		if flags != "" {
			s.Flags = strings.Split(flags, " ")
		}
		out = append(out, s)
	}
	return out, dbErr("ListTroveScriptlets: rows", rows.Err())
}
