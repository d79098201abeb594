package engine

import (
	"context"
	"fmt"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/metrics"
	"github.com/ConaryLabs/Conary-sub004/pkg/pathutil"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// BatchItem is one package within a batch install, carrying the
// install_reason/selection_reason distinction §4.3.3 requires between
// explicitly requested packages and ones pulled in to satisfy a
// dependency.
type BatchItem struct {
	Package         *pkgfmt.Package
	InstallReason   store.InstallReason
	SelectionReason string
}

// BatchResult summarizes a completed batch install.
type BatchResult struct {
	ChangesetID int64
	TroveIDs    []int64
	StateNumber int64
}

// BatchInstall installs every item in items as a single atomic changeset
// (§4.3.3): one cross-package file-conflict sweep before any mutation,
// one database transaction for every trove insert, and exactly one state
// snapshot at the end.
func (e *Engine) BatchInstall(ctx context.Context, items []BatchItem, flags Flags) (*BatchResult, error) {
	timer := metrics.NewTimer()
	outcome := "error"
	defer func() {
		metrics.TransactionsTotal.WithLabelValues("batch-install", outcome).Inc()
		timer.ObserveDurationVec(metrics.TransactionDuration, "batch-install")
	}()

	if e.Authenticator != nil {
		for _, item := range items {
			if err := e.Authenticator.Verify(item.Package); err != nil {
				return nil, &UntrustedPackageError{Name: item.Package.Name, Version: item.Package.Version, Err: err}
			}
		}
	}

	owner := make(map[string]string, 32)
	for _, item := range items {
		for _, f := range item.Package.Files {
			clean, err := pathutil.Sanitize(f.Path)
			if err != nil {
				return nil, &PathTraversalError{Path: f.Path, Err: err}
			}
			if existingOwner, ok := owner[clean]; ok && existingOwner != item.Package.Name {
				return nil, &BatchFileConflictError{Path: clean, FirstOwner: existingOwner, SecondOwner: item.Package.Name}
			}
			owner[clean] = item.Package.Name
		}
	}

	for _, item := range items {
		for _, f := range item.Package.Files {
			clean, _ := pathutil.Sanitize(f.Path)
			existing, err := store.FindFileEntryByPath(ctx, e.Store.DB(), clean)
			if err == store.ErrNotFound {
				continue
			}
			if err != nil {
				return nil, &DatabaseError{Op: "FindFileEntryByPath", Err: err}
			}
			metrics.FileConflictsTotal.Inc()
			return nil, &FileConflictError{Path: clean, Owner: fmt.Sprintf("trove#%d", existing.TroveID)}
		}
	}

	if flags.DryRun {
		outcome = "dry-run"
		return nil, nil
	}

	result := &BatchResult{}
	err := e.Store.Transaction(ctx, func(q store.Querier) error {
		changesetID, err := store.InsertChangeset(ctx, q, fmt.Sprintf("batch install (%d packages)", len(items)))
		if err != nil {
			return err
		}
		result.ChangesetID = changesetID

		for _, item := range items {
			pkg := item.Package
			troveID, err := store.InsertTrove(ctx, q, &store.Trove{
				Name:           pkg.Name,
				Version:        pkg.Version,
				Type:           store.TrovePackage,
				Architecture:   sqlNullString(pkg.Architecture),
				InstallSource:  installSource(flags),
				InstallReason:  item.InstallReason,
				SelectionReason: sqlNullString(item.SelectionReason),
				InstalledByChangesetID: sqlNullInt64(changesetID),
			})
			if err != nil {
				return err
			}
			result.TroveIDs = append(result.TroveIDs, troveID)

			for _, f := range pkg.Files {
				content, err := f.Bytes()
				if err != nil {
					return &CasError{Op: "read file content", Err: err}
				}
				digest, err := e.CAS.Store(ctx, content)
				if err != nil {
					return &CasError{Op: "Store", Err: err}
				}
				clean, _ := pathutil.Sanitize(f.Path)
				if _, err := store.InsertFileEntry(ctx, q, &store.FileEntry{
					Path: clean, SHA256Hash: digest, Size: f.Size, Permissions: f.Mode, TroveID: troveID,
				}); err != nil {
					return err
				}
				if _, err := store.InsertFileHistoryEntry(ctx, q, &store.FileHistoryEntry{
					ChangesetID: changesetID, Path: clean, Action: store.FileActionAdd, Hash: digest,
				}); err != nil {
					return err
				}
			}

			for _, d := range pkg.Dependencies {
				if _, err := store.InsertDependencyEntry(ctx, q, &store.DependencyEntry{
					TroveID: troveID, DependsOnName: NormalizeCapability(d.Name), DepType: string(d.Kind),
				}); err != nil {
					return err
				}
			}

			provides := append([]pkgfmt.Provide{pkg.SelfProvide()}, pkg.Provides...)
			for _, p := range provides {
				if _, err := store.InsertProvideEntry(ctx, q, &store.ProvideEntry{TroveID: troveID, Capability: p.Capability}); err != nil {
					return err
				}
			}

			for _, s := range pkg.Scriptlets {
				if _, err := store.InsertTroveScriptlet(ctx, q, &store.TroveScriptlet{
					TroveID: troveID, Phase: string(s.Phase), Interpreter: s.Interpreter,
					Flags: s.Flags, Body: s.Body, SourceFormat: string(pkg.SourceFormat),
				}); err != nil {
					return err
				}
			}

			if e.Provenance != nil {
				if err := e.Provenance.Record(ctx, q, troveID, pkg); err != nil {
					return err
				}
			}
		}

		return store.UpdateChangesetStatus(ctx, q, changesetID, store.ChangesetApplied)
	})
	if err != nil {
		return nil, err
	}

	if !flags.NoScripts {
		for _, item := range items {
			if err := e.runPreInstall(ctx, item.Package, false); err != nil {
				return nil, &HookFailedError{Phase: "pre-install", Err: err}
			}
		}
	}

	for _, item := range items {
		for _, f := range item.Package.Files {
			content, _ := f.Bytes()
			if err := e.deployFile(f.Path, f.Mode, content, f.Target, string(f.Type)); err != nil {
				log.WithTrove(item.Package.Name, item.Package.Version).Error().Err(err).Msg("batch file deployment failed, database already committed")
				return nil, err
			}
		}
	}

	if !flags.NoScripts {
		for _, item := range items {
			if err := e.runPostInstall(ctx, item.Package, false); err != nil {
				log.WithTrove(item.Package.Name, item.Package.Version).Warn().Err(err).Msg("post-install hook failed")
			}
		}
	}

	state, err := e.States.CreateSnapshot(ctx, fmt.Sprintf("batch install (%d packages)", len(items)), "", result.ChangesetID)
	if err != nil {
		return nil, &DatabaseError{Op: "CreateSnapshot", Err: err}
	}
	result.StateNumber = state.StateNumber

	outcome = "ok"
	return result, nil
}
