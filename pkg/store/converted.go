package store

import (
	"context"
	"database/sql"
)

// ConvertedPackage records that a trove originated from an adopted
// legacy package (rpm, dpkg, or pacman), linking it back to the source
// so `conary adopt --verify` and provenance reporting can cite where a
// trove actually came from.
type ConvertedPackage struct {
	ID           int64
	TroveID      int64
	LegacySource string
	LegacyName   string
}

// InsertConvertedPackage records the legacy origin of an adopted trove.
func InsertConvertedPackage(ctx context.Context, q Querier, c *ConvertedPackage) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO converted_packages (trove_id, legacy_source, legacy_name) VALUES (?, ?, ?)`,
		c.TroveID, c.LegacySource, c.LegacyName)
	if err != nil {
		return 0, dbErr("InsertConvertedPackage", err)
	}
	return res.LastInsertId()
}

// FindConvertedPackageByTrove returns the legacy-origin record for a
// trove, if it was adopted rather than installed natively.
func FindConvertedPackageByTrove(ctx context.Context, q Querier, troveID int64) (*ConvertedPackage, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, trove_id, legacy_source, legacy_name FROM converted_packages WHERE trove_id = ?`, troveID)
	c := &ConvertedPackage{}
	if err := row.Scan(&c.ID, &c.TroveID, &c.LegacySource, &c.LegacyName); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("FindConvertedPackageByTrove", err)
	}
	return c, nil
}
