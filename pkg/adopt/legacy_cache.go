package adopt

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Source identifies which legacy package manager a record was queried from.
type Source string

const (
	SourceRPM    Source = "rpm"
	SourceDpkg   Source = "dpkg"
	SourcePacman Source = "pacman"
)

var buckets = map[Source][]byte{
	SourceRPM:    []byte("rpm"),
	SourceDpkg:   []byte("dpkg"),
	SourcePacman: []byte("pacman"),
}

// LegacyFile describes one file owned by a legacy-tracked package, as
// reported by the host package manager's own query tool.
type LegacyFile struct {
	Path        string `json:"path"`
	Mode        uint32 `json:"mode"`
	Size        int64  `json:"size"`
	IsConfig    bool   `json:"is_config"`
	IsDirectory bool   `json:"is_directory"`
}

// LegacyRecord is a cached snapshot of a legacy package manager's
// knowledge about one installed package.
type LegacyRecord struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Architecture string       `json:"architecture"`
	Description  string       `json:"description"`
	Files        []LegacyFile `json:"files"`
	QueriedAt    time.Time    `json:"queried_at"`
}

// LegacyCache is a bbolt-backed mirror of legacy package-manager records,
// used to verify adopted-track troves without involving the CAS (§3: "a
// trove of adopted-track source has verification against CAS disabled;
// verified against the legacy database instead").
type LegacyCache struct {
	db *bolt.DB
}

// OpenLegacyCache opens (creating if absent) the legacy record cache under
// root/legacy.db, with one bucket pre-created per known source.
func OpenLegacyCache(root string) (*LegacyCache, error) {
	path := filepath.Join(root, "legacy.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open legacy cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &LegacyCache{db: db}, nil
}

// Close closes the underlying database.
func (c *LegacyCache) Close() error {
	return c.db.Close()
}

// Put upserts a legacy record under the given source.
func (c *LegacyCache) Put(source Source, rec *LegacyRecord) error {
	bucket, ok := buckets[source]
	if !ok {
		return fmt.Errorf("unknown legacy source: %s", source)
	}
	rec.QueriedAt = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal legacy record %s: %w", rec.Name, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(rec.Name), data)
	})
}

// Get looks up a cached record by name within one source.
func (c *LegacyCache) Get(source Source, name string) (*LegacyRecord, error) {
	bucket, ok := buckets[source]
	if !ok {
		return nil, fmt.Errorf("unknown legacy source: %s", source)
	}
	var rec LegacyRecord
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(name))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotCached
	}
	return &rec, nil
}

// Delete removes a cached record, e.g. after the trove it backs has been
// converted to a fully-native install.
func (c *LegacyCache) Delete(source Source, name string) error {
	bucket, ok := buckets[source]
	if !ok {
		return fmt.Errorf("unknown legacy source: %s", source)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(name))
	})
}

// List returns every cached record for one source.
func (c *LegacyCache) List(source Source) ([]*LegacyRecord, error) {
	bucket, ok := buckets[source]
	if !ok {
		return nil, fmt.Errorf("unknown legacy source: %s", source)
	}
	var records []*LegacyRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var rec LegacyRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, &rec)
			return nil
		})
	})
	return records, err
}

// VerifyFile reports whether path is still owned by name in the host's
// legacy database snapshot, used in place of a CAS hash comparison for
// adopted-track troves.
func (c *LegacyCache) VerifyFile(source Source, name, path string) (bool, error) {
	rec, err := c.Get(source, name)
	if err != nil {
		return false, err
	}
	for _, f := range rec.Files {
		if f.Path == path {
			return true, nil
		}
	}
	return false, nil
}
