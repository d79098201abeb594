package store

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only schema step. version must be contiguous
// starting at 1; migrate applies every migration whose version is greater
// than the database's current schema_version.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

var migrations = []migration{
	{
		version: 1,
		name:    "baseline schema",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(schema)
			return err
		},
	},
	{
		version: 2,
		name:    "repositories.metadata_expire default backfill",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`UPDATE repositories SET metadata_expire = 21600 WHERE metadata_expire IS NULL`)
			return err
		},
	},
	{
		version: 3,
		name:    "trove_scriptlets for legacy-package remove/upgrade hooks",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS trove_scriptlets (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
					phase TEXT NOT NULL,
					interpreter TEXT NOT NULL DEFAULT '',
					flags TEXT NOT NULL DEFAULT '',
					body TEXT NOT NULL,
					source_format TEXT NOT NULL DEFAULT 'native'
				);
				CREATE INDEX IF NOT EXISTS idx_trove_scriptlets_trove ON trove_scriptlets(trove_id);`)
			return err
		},
	},
	{
		version: 4,
		name:    "trove_provenance for content-digest recording",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS trove_provenance (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					trove_id INTEGER NOT NULL UNIQUE REFERENCES troves(id) ON DELETE CASCADE,
					algorithm TEXT NOT NULL,
					digest_hex TEXT NOT NULL,
					recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				);`)
			return err
		},
	},
}

// migrate brings db up to the latest schema version, applying any
// migrations whose version exceeds the stored version inside a single
// transaction per step. It refuses to run against a database whose
// recorded version is newer than the binary knows about, matching the
// teacher's "never silently downgrade a schema" posture.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return dbErr("migrate: ensure schema_version", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	latest := 0
	for _, m := range migrations {
		if m.version > latest {
			latest = m.version
		}
	}
	if current > latest {
		return ErrMigrationState
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return dbErr("migrate: begin", err)
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return dbErr("migrate: apply "+m.name, err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			tx.Rollback()
			return dbErr("migrate: clear schema_version", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return dbErr("migrate: record schema_version", err)
		}
		if err := tx.Commit(); err != nil {
			return dbErr("migrate: commit "+m.name, err)
		}
	}
	return nil
}

// LatestSchemaVersion returns the highest migration version this binary
// knows how to apply.
func LatestSchemaVersion() int {
	latest := 0
	for _, m := range migrations {
		if m.version > latest {
			latest = m.version
		}
	}
	return latest
}

// SchemaVersion opens path read-only and reports its recorded schema
// version without applying any pending migrations.
func SchemaVersion(path string) (int, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return 0, dbErr("SchemaVersion: open", err)
	}
	defer db.Close()
	return currentVersion(db)
}

func currentVersion(db *sql.DB) (int, error) {
	row := db.QueryRow(`SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, dbErr("currentVersion", err)
	}
	return v, nil
}
