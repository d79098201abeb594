package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/metrics"
	"github.com/ConaryLabs/Conary-sub004/pkg/pathutil"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
	"github.com/ConaryLabs/Conary-sub004/pkg/scriptlet"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// Plan is the set of decisions install planning reaches before any
// mutation happens; a dry_run stops here.
type Plan struct {
	Package       *pkgfmt.Package
	IsUpgrade     bool
	OldTroveID    int64
	OldScriptlets []*store.TroveScriptlet
	Missing       []string
}

// Result summarizes a completed install/upgrade.
type Result struct {
	ChangesetID int64
	TroveID     int64
	StateNumber int64
}

// Install runs the single-package install plan (§4.3.2) for an
// already-parsed package. Callers that hold raw archive bytes should
// detect the format and parse to a pkgfmt.Package first; byte-level
// parsing of legacy formats is outside the engine's scope.
func (e *Engine) Install(ctx context.Context, pkg *pkgfmt.Package, flags Flags) (*Result, error) {
	timer := metrics.NewTimer()
	outcome := "error"
	defer func() {
		metrics.TransactionsTotal.WithLabelValues("install", outcome).Inc()
		timer.ObserveDurationVec(metrics.TransactionDuration, "install")
	}()

	plan, err := e.planInstall(ctx, pkg, flags)
	if err != nil {
		return nil, err
	}
	if flags.DryRun {
		outcome = "dry-run"
		return nil, nil
	}

	result, err := e.executeInstall(ctx, plan, flags)
	if err != nil {
		return nil, err
	}
	outcome = "ok"
	return result, nil
}

// planInstall performs §4.3.2 steps 3-5: existing-version check,
// dependency resolution, and file-conflict detection. It never mutates
// the store.
func (e *Engine) planInstall(ctx context.Context, pkg *pkgfmt.Package, flags Flags) (*Plan, error) {
	if e.Authenticator != nil {
		if err := e.Authenticator.Verify(pkg); err != nil {
			return nil, &UntrustedPackageError{Name: pkg.Name, Version: pkg.Version, Err: err}
		}
	}

	plan := &Plan{Package: pkg}

	existing, err := store.FindTroveByName(ctx, e.Store.DB(), pkg.Name, pkg.Architecture)
	if err != nil {
		return nil, &DatabaseError{Op: "FindTroveByName", Err: err}
	}

	for _, old := range existing {
		switch {
		case old.Version == pkg.Version:
			return nil, &AlreadyInstalledError{Name: pkg.Name, Version: pkg.Version}
		case versionLess(pkg.Version, old.Version):
			if !flags.AllowDowngrade {
				return nil, &DowngradeRefusedError{Name: pkg.Name, Installed: old.Version, Requested: pkg.Version}
			}
			plan.IsUpgrade = true
			plan.OldTroveID = old.ID
		default:
			plan.IsUpgrade = true
			plan.OldTroveID = old.ID
		}
	}

	if plan.IsUpgrade {
		old, err := store.ListTroveScriptlets(ctx, e.Store.DB(), plan.OldTroveID)
		if err != nil {
			return nil, &DatabaseError{Op: "ListTroveScriptlets", Err: err}
		}
		plan.OldScriptlets = old
	}

	if !flags.NoDeps {
		for _, dep := range pkg.Dependencies {
			if dep.Kind == pkgfmt.DepOptional && flags.SkipOptional {
				continue
			}
			providers, err := store.FindSatisfyingProvider(ctx, e.Store.DB(), NormalizeCapability(dep.Name))
			if err != nil {
				return nil, &DatabaseError{Op: "FindSatisfyingProvider", Err: err}
			}
			if len(providers) == 0 {
				plan.Missing = append(plan.Missing, dep.Name)
			}
		}
		if len(plan.Missing) > 0 {
			return nil, &MissingDependencyError{Capability: plan.Missing[0], RequiredBy: pkg.Name}
		}
	}

	for _, f := range pkg.Files {
		clean, err := pathutil.Sanitize(f.Path)
		if err != nil {
			return nil, &PathTraversalError{Path: f.Path, Err: err}
		}
		owner, err := store.FindFileEntryByPath(ctx, e.Store.DB(), clean)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, &DatabaseError{Op: "FindFileEntryByPath", Err: err}
		}
		if plan.IsUpgrade && owner.TroveID == plan.OldTroveID {
			continue
		}
		metrics.FileConflictsTotal.Inc()
		return nil, &FileConflictError{Path: clean, Owner: fmt.Sprintf("trove#%d", owner.TroveID)}
	}

	return plan, nil
}

// executeInstall runs §4.3.2 steps 7-17: the database transaction, the
// pre/post-install hooks, file deployment, and the resulting state
// snapshot.
func (e *Engine) executeInstall(ctx context.Context, plan *Plan, flags Flags) (*Result, error) {
	pkg := plan.Package
	result := &Result{}

	err := e.Store.Transaction(ctx, func(q store.Querier) error {
		changesetID, err := store.InsertChangeset(ctx, q, fmt.Sprintf("install %s %s", pkg.Name, pkg.Version))
		if err != nil {
			return err
		}
		result.ChangesetID = changesetID

		if plan.IsUpgrade {
			if err := store.DeleteTrove(ctx, q, plan.OldTroveID); err != nil {
				return err
			}
		}

		troveID, err := store.InsertTrove(ctx, q, &store.Trove{
			Name:                   pkg.Name,
			Version:                pkg.Version,
			Type:                   store.TrovePackage,
			Architecture:           sqlNullString(pkg.Architecture),
			InstallSource:          installSource(flags),
			InstallReason:          flags.installReason(),
			InstalledByChangesetID: sqlNullInt64(changesetID),
		})
		if err != nil {
			return err
		}
		result.TroveID = troveID

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
			action := store.FileActionAdd
			if plan.IsUpgrade {
				action = store.FileActionModify
			}
			if _, err := store.InsertFileHistoryEntry(ctx, q, &store.FileHistoryEntry{
				ChangesetID: changesetID, Path: clean, Action: action, Hash: digest,
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

		return store.UpdateChangesetStatus(ctx, q, changesetID, store.ChangesetApplied)
	})
	if err != nil {
		return nil, err
	}

	if !flags.NoScripts && plan.IsUpgrade {
		if err := e.runOldRemovePhase(ctx, plan.OldScriptlets, "pre-remove", "2"); err != nil {
			return nil, &HookFailedError{Phase: "pre-remove", Err: err}
		}
	}

	if !flags.NoScripts {
		if err := e.runPreInstall(ctx, pkg, plan.IsUpgrade); err != nil {
			return nil, &HookFailedError{Phase: "pre-install", Err: err}
		}
	}

	for _, f := range pkg.Files {
		content, _ := f.Bytes()
		if err := e.deployFile(f.Path, f.Mode, content, f.Target, string(f.Type)); err != nil {
			return nil, err
		}
	}

	if !flags.NoScripts {
		if err := e.runPostInstall(ctx, pkg, plan.IsUpgrade); err != nil {
			log.WithTrove(pkg.Name, pkg.Version).Warn().Err(err).Msg("post-install hook failed")
		}
	}

	if !flags.NoScripts && plan.IsUpgrade {
		if err := e.runOldRemovePhase(ctx, plan.OldScriptlets, "post-remove", "2"); err != nil {
			log.WithTrove(pkg.Name, pkg.Version).Warn().Err(err).Msg("old package post-remove hook failed")
		}
	}

	state, err := e.States.CreateSnapshot(ctx, fmt.Sprintf("install %s %s", pkg.Name, pkg.Version), "", result.ChangesetID)
	if err != nil {
		return nil, &DatabaseError{Op: "CreateSnapshot", Err: err}
	}
	result.StateNumber = state.StateNumber

	return result, nil
}

func (e *Engine) runPreInstall(ctx context.Context, pkg *pkgfmt.Package, isUpgrade bool) error {
	arg := "1"
	if isUpgrade {
		arg = "2"
	}
	phase := scriptlet.Phase(pkg.SourceFormat, "pre-install", isUpgrade)
	return e.runScriptletPhase(ctx, pkg, phase, arg)
}

func (e *Engine) runPostInstall(ctx context.Context, pkg *pkgfmt.Package, isUpgrade bool) error {
	arg := "1"
	if isUpgrade {
		arg = "2"
	}
	phase := scriptlet.Phase(pkg.SourceFormat, "post-install", isUpgrade)
	return e.runScriptletPhase(ctx, pkg, phase, arg)
}

// runOldRemovePhase runs the old package's pre-remove/post-remove
// scriptlets during an upgrade, gated by that package's own platform
// convention (Arch skips both; RPM/DEB run both) per §4.5.
func (e *Engine) runOldRemovePhase(ctx context.Context, scriptlets []*store.TroveScriptlet, step string, arg string) error {
	for _, s := range scriptlets {
		format := pkgfmt.SourceFormat(s.SourceFormat)
		resolved := scriptlet.Phase(format, step, true)
		if resolved == "" || string(resolved) != s.Phase {
			continue
		}
		sc := pkgfmt.Scriptlet{Phase: resolved, Interpreter: s.Interpreter, Flags: s.Flags, Body: s.Body}
		if err := e.Scripts.RunLegacy(ctx, sc, arg); err != nil {
			metrics.HookFailuresTotal.WithLabelValues(string(resolved)).Inc()
			return err
		}
	}
	return nil
}

func (e *Engine) runScriptletPhase(ctx context.Context, pkg *pkgfmt.Package, phase pkgfmt.ScriptletPhase, arg string) error {
	if phase == "" {
		return nil
	}
	for _, s := range pkg.Scriptlets {
		if s.Phase != phase {
			continue
		}
		if err := e.Scripts.RunLegacy(ctx, s, arg); err != nil {
			metrics.HookFailuresTotal.WithLabelValues(string(phase)).Inc()
			return err
		}
	}
	return nil
}

func installSource(flags Flags) store.InstallSource {
	if flags.ConvertToCCS {
		return store.SourceAdoptedFull
	}
	return store.SourceFile
}

func (f Flags) installReason() store.InstallReason {
	if f.InstallReason != "" {
		return f.InstallReason
	}
	return store.ReasonExplicit
}

func sqlNullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func sqlNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
