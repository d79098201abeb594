package store

import (
	"context"
	"database/sql"
)

// ConfigFileStatus tracks whether a config file still matches the
// package's shipped content.
type ConfigFileStatus string

const (
	ConfigPristine ConfigFileStatus = "pristine"
	ConfigModified ConfigFileStatus = "modified"
	ConfigMissing  ConfigFileStatus = "missing"
)

// ConfigFile tracks a config path so upgrades can preserve local edits
// instead of overwriting them (the noreplace convention).
type ConfigFile struct {
	ID           int64
	TroveID      int64
	Path         string
	OriginalHash string
	Status       ConfigFileStatus
	NoReplace    bool
}

// ConfigBackup records a saved copy of a config file's prior content,
// taken before an upgrade would otherwise overwrite local edits.
type ConfigBackup struct {
	ID           int64
	ConfigFileID int64
	BackupHash   string
	Reason       string
}

// InsertConfigFile registers a config path for tracking.
func InsertConfigFile(ctx context.Context, q Querier, c *ConfigFile) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO config_files (trove_id, path, original_hash, status, noreplace) VALUES (?, ?, ?, ?, ?)`,
		c.TroveID, c.Path, c.OriginalHash, string(c.Status), c.NoReplace)
	if err != nil {
		return 0, dbErr("InsertConfigFile", err)
	}
	return res.LastInsertId()
}

// FindConfigFileByPath looks up tracking state for a config path.
func FindConfigFileByPath(ctx context.Context, q Querier, path string) (*ConfigFile, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, trove_id, path, original_hash, status, noreplace FROM config_files WHERE path = ?`, path)
	c := &ConfigFile{}
	var status string
	if err := row.Scan(&c.ID, &c.TroveID, &c.Path, &c.OriginalHash, &status, &c.NoReplace); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("FindConfigFileByPath", err)
	}
	c.Status = ConfigFileStatus(status)
	return c, nil
}

// UpdateConfigFileStatus updates the tracked status of a config path,
// e.g. when an upgrade detects the on-disk hash no longer matches
// OriginalHash.
func UpdateConfigFileStatus(ctx context.Context, q Querier, id int64, status ConfigFileStatus) error {
	_, err := q.ExecContext(ctx, `UPDATE config_files SET status = ? WHERE id = ?`, string(status), id)
	return dbErr("UpdateConfigFileStatus", err)
}

// InsertConfigBackup records a saved copy of a config file's content
// before an upgrade overwrites it.
func InsertConfigBackup(ctx context.Context, q Querier, b *ConfigBackup) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO config_backups (config_file_id, backup_hash, reason) VALUES (?, ?, ?)`,
		b.ConfigFileID, b.BackupHash, b.Reason)
	if err != nil {
		return 0, dbErr("InsertConfigBackup", err)
	}
	return res.LastInsertId()
}

// ListConfigBackups returns every backup taken for a config file, most
// recent first.
func ListConfigBackups(ctx context.Context, q Querier, configFileID int64) ([]*ConfigBackup, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, config_file_id, backup_hash, reason FROM config_backups WHERE config_file_id = ? ORDER BY id DESC`, configFileID)
	if err != nil {
		return nil, dbErr("ListConfigBackups", err)
	}
	defer rows.Close()

	var out []*ConfigBackup
	for rows.Next() {
		b := &ConfigBackup{}
		if err := rows.Scan(&b.ID, &b.ConfigFileID, &b.BackupHash, &b.Reason); err != nil {
			return nil, dbErr("ListConfigBackups: scan", err)
		}
		out = append(out, b)
	}
	return out, dbErr("ListConfigBackups: rows", rows.Err())
}
