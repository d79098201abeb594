package store

import (
	"context"
	"database/sql"
)

// TroveProvenance records the content digest a trove was accepted under,
// independent of whatever repository metadata or signature claimed to
// describe it at install time.
type TroveProvenance struct {
	ID        int64
	TroveID   int64
	Algorithm string
	DigestHex string
}

// InsertTroveProvenance records troveID's content digest. Each trove may
// have at most one provenance row; re-recording (e.g. on upgrade, for the
// new trove row) is a fresh insert since upgrades replace the trove ID.
func InsertTroveProvenance(ctx context.Context, q Querier, p *TroveProvenance) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO trove_provenance (trove_id, algorithm, digest_hex) VALUES (?, ?, ?)`,
		p.TroveID, p.Algorithm, p.DigestHex)
	if err != nil {
		return 0, dbErr("InsertTroveProvenance", err)
	}
	return res.LastInsertId()
}

// FindTroveProvenance returns the content digest recorded for troveID.
func FindTroveProvenance(ctx context.Context, q Querier, troveID int64) (*TroveProvenance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, trove_id, algorithm, digest_hex FROM trove_provenance WHERE trove_id = ?`, troveID)
	p := &TroveProvenance{}
	if err := row.Scan(&p.ID, &p.TroveID, &p.Algorithm, &p.DigestHex); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("FindTroveProvenance", err)
	}
	return p, nil
}
