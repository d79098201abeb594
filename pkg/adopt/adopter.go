package adopt

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ConaryLabs/Conary-sub004/pkg/cas"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// AdoptedMarkerHash is the well-known sha256_hash value recorded for
// files an adopted-track trove claims without pulling their content into
// the CAS (§3). It is deliberately not a valid hex-encoded digest of any
// real content, so an accidental CAS lookup against it always misses.
const AdoptedMarkerHash = "adopted-track:no-content-capture"

// Adopter converts a package already installed by the host's legacy
// package manager into a trove, either as a lightweight metadata-only
// record (AdoptTrack) or as a full native install with every file
// pulled into the content-addressable store (AdoptFull).
type Adopter struct {
	Store *store.Store
	CAS   *cas.Store
	Cache *LegacyCache
	PM    SystemPackageManager

	// InstallRoot is where legacy files actually live on disk, needed by
	// AdoptFull to read file content for CAS ingestion.
	InstallRoot string
}

// New returns an Adopter wired to db, c, and the host's detected legacy
// package manager, caching query results under cacheRoot.
func New(db *store.Store, c *cas.Store, cacheRoot, installRoot string) (*Adopter, error) {
	pm, err := DetectSystemPackageManager()
	if err != nil {
		return nil, err
	}
	cache, err := OpenLegacyCache(cacheRoot)
	if err != nil {
		return nil, err
	}
	return &Adopter{Store: db, CAS: c, Cache: cache, PM: pm, InstallRoot: installRoot}, nil
}

// Close releases the legacy cache's underlying database.
func (a *Adopter) Close() error {
	return a.Cache.Close()
}

// queryAndCache resolves name via the host package manager on every call
// (an existing cached record is not consulted) and writes the result to
// the cache so later verification doesn't need to shell out again.
func (a *Adopter) queryAndCache(ctx context.Context, name string) (*LegacyRecord, error) {
	rec, err := a.PM.Query(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("adopt: query %s via %s: %w", name, a.PM.Source(), err)
	}
	if err := a.Cache.Put(a.PM.Source(), rec); err != nil {
		return nil, fmt.Errorf("adopt: cache %s: %w", name, err)
	}
	return rec, nil
}

func (a *Adopter) alreadyTracked(ctx context.Context, name string) (bool, error) {
	existing, err := store.FindTroveByName(ctx, a.Store.DB(), name, "")
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

// AdoptTrack records name as an adopted-track trove: every file it owns
// gets a file_entry with AdoptedMarkerHash, so path-conflict detection
// still sees it, but no content is read or stored and verification for
// these files falls back to the legacy cache instead of the CAS (§3).
func (a *Adopter) AdoptTrack(ctx context.Context, name string) (int64, error) {
	if tracked, err := a.alreadyTracked(ctx, name); err != nil {
		return 0, err
	} else if tracked {
		return 0, ErrAlreadyTracked
	}

	rec, err := a.queryAndCache(ctx, name)
	if err != nil {
		return 0, err
	}

	var troveID int64
	err = a.Store.Transaction(ctx, func(q store.Querier) error {
		id, err := store.InsertTrove(ctx, q, &store.Trove{
			Name:          rec.Name,
			Version:       rec.Version,
			Type:          store.TrovePackage,
			Architecture:  sql.NullString{String: rec.Architecture, Valid: rec.Architecture != ""},
			InstallSource: store.SourceAdoptedTrack,
			InstallReason: store.ReasonExplicit,
			Description:   sql.NullString{String: rec.Description, Valid: rec.Description != ""},
		})
		if err != nil {
			return err
		}
		troveID = id

		for _, f := range rec.Files {
			if f.IsDirectory {
				continue
			}
			if _, err := store.InsertFileEntry(ctx, q, &store.FileEntry{
				Path: f.Path, SHA256Hash: AdoptedMarkerHash, Size: f.Size, Permissions: f.Mode, TroveID: troveID,
			}); err != nil {
				return err
			}
		}
		if _, err := store.InsertProvideEntry(ctx, q, &store.ProvideEntry{TroveID: troveID, Capability: rec.Name}); err != nil {
			return err
		}
		_, err = store.InsertConvertedPackage(ctx, q, &store.ConvertedPackage{
			TroveID: troveID, LegacySource: string(a.PM.Source()), LegacyName: rec.Name,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return troveID, nil
}

// AdoptFull converts an already-tracked (or untracked) legacy package to
// a fully native install: every file is read from InstallRoot, stored in
// the CAS, and recorded exactly as a native install would record it, so
// the trove can be verified, upgraded, and rolled back like any other.
func (a *Adopter) AdoptFull(ctx context.Context, name string) (int64, error) {
	rec, err := a.queryAndCache(ctx, name)
	if err != nil {
		return 0, err
	}

	existing, err := store.FindTroveByName(ctx, a.Store.DB(), name, "")
	if err != nil {
		return 0, err
	}

	var troveID int64
	err = a.Store.Transaction(ctx, func(q store.Querier) error {
		for _, old := range existing {
			if old.InstallSource == store.SourceAdoptedTrack {
				if err := store.DeleteTrove(ctx, q, old.ID); err != nil {
					return err
				}
			}
		}

		id, err := store.InsertTrove(ctx, q, &store.Trove{
			Name:          rec.Name,
			Version:       rec.Version,
			Type:          store.TrovePackage,
			Architecture:  sql.NullString{String: rec.Architecture, Valid: rec.Architecture != ""},
			InstallSource: store.SourceAdoptedFull,
			InstallReason: store.ReasonExplicit,
			Description:   sql.NullString{String: rec.Description, Valid: rec.Description != ""},
		})
		if err != nil {
			return err
		}
		troveID = id

		for _, f := range rec.Files {
			if f.IsDirectory {
				continue
			}
			content, err := os.ReadFile(filepath.Join(a.InstallRoot, f.Path))
			if err != nil {
				return fmt.Errorf("adopt: read %s for CAS ingestion: %w", f.Path, err)
			}
			digest, err := a.CAS.Store(ctx, content)
			if err != nil {
				return fmt.Errorf("adopt: store %s in CAS: %w", f.Path, err)
			}
			if _, err := store.InsertFileEntry(ctx, q, &store.FileEntry{
				Path: f.Path, SHA256Hash: digest, Size: int64(len(content)), Permissions: f.Mode, TroveID: troveID,
			}); err != nil {
				return err
			}
		}
		if _, err := store.InsertProvideEntry(ctx, q, &store.ProvideEntry{TroveID: troveID, Capability: rec.Name}); err != nil {
			return err
		}
		_, err = store.InsertConvertedPackage(ctx, q, &store.ConvertedPackage{
			TroveID: troveID, LegacySource: string(a.PM.Source()), LegacyName: rec.Name,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	if err := a.Cache.Delete(a.PM.Source(), name); err != nil {
		return troveID, fmt.Errorf("adopt: fully adopted %s but failed to clear legacy cache entry: %w", name, err)
	}
	return troveID, nil
}
