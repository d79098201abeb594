package engine

import (
	"context"
	"fmt"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/metrics"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// Remove runs the remove procedure (§4.3.4) for the installed trove
// matching name (and, if given, version). architecture may be empty to
// match any.
func (e *Engine) Remove(ctx context.Context, name, version, architecture string, flags Flags) (*Result, error) {
	timer := metrics.NewTimer()
	outcome := "error"
	defer func() {
		metrics.TransactionsTotal.WithLabelValues("remove", outcome).Inc()
		timer.ObserveDurationVec(metrics.TransactionDuration, "remove")
	}()

	trove, err := e.resolveInstalled(ctx, name, version, architecture)
	if err != nil {
		return nil, err
	}

	if trove.Pinned && !flags.Force {
		return nil, &ReverseDependencyError{Trove: name, Blockers: []string{"package is pinned"}}
	}

	provides, err := store.ListProvidesByTrove(ctx, e.Store.DB(), trove.ID)
	if err != nil {
		return nil, &DatabaseError{Op: "ListProvidesByTrove", Err: err}
	}
	if !flags.Force {
		var blockers []string
		seen := map[string]bool{}
		for _, p := range provides {
			dependents, err := store.FindReverseDependents(ctx, e.Store.DB(), p.Capability)
			if err != nil {
				return nil, &DatabaseError{Op: "FindReverseDependents", Err: err}
			}
			for _, d := range dependents {
				if d.ID == trove.ID || seen[d.Name] {
					continue
				}
				seen[d.Name] = true
				blockers = append(blockers, d.Name)
			}
		}
		if len(blockers) > 0 {
			return nil, &ReverseDependencyError{Trove: name, Blockers: blockers}
		}
	}

	files, err := store.ListFileEntriesByTrove(ctx, e.Store.DB(), trove.ID)
	if err != nil {
		return nil, &DatabaseError{Op: "ListFileEntriesByTrove", Err: err}
	}

	scriptlets, err := store.ListTroveScriptlets(ctx, e.Store.DB(), trove.ID)
	if err != nil {
		return nil, &DatabaseError{Op: "ListTroveScriptlets", Err: err}
	}

	result := &Result{}
	err = e.Store.Transaction(ctx, func(q store.Querier) error {
		changesetID, err := store.InsertChangeset(ctx, q, fmt.Sprintf("remove %s %s", trove.Name, trove.Version))
		if err != nil {
			return err
		}
		result.ChangesetID = changesetID

		for _, f := range files {
			if _, err := store.InsertFileHistoryEntry(ctx, q, &store.FileHistoryEntry{
				ChangesetID: changesetID, Path: f.Path, Action: store.FileActionRemove, Hash: f.SHA256Hash,
			}); err != nil {
				return err
			}
		}

		if err := store.DeleteTrove(ctx, q, trove.ID); err != nil {
			return err
		}

		return store.UpdateChangesetStatus(ctx, q, changesetID, store.ChangesetApplied)
	})
	if err != nil {
		return nil, err
	}
	result.TroveID = trove.ID

	if !flags.NoScripts {
		if err := e.runRecordedPhase(ctx, scriptlets, pkgfmt.PhasePreRemove, "0"); err != nil && !flags.Force {
			return nil, &HookFailedError{Phase: "pre-remove", Err: err}
		}
	}

	for _, f := range files {
		if err := e.removeFile(f.Path); err != nil {
			return nil, err
		}
	}

	if !flags.NoScripts {
		if err := e.runRecordedPhase(ctx, scriptlets, pkgfmt.PhasePostRemove, "0"); err != nil {
			log.WithTrove(trove.Name, trove.Version).Warn().Err(err).Msg("post-remove hook failed")
		}
	}

	state, err := e.States.CreateSnapshot(ctx, fmt.Sprintf("remove %s %s", trove.Name, trove.Version), "", result.ChangesetID)
	if err != nil {
		return nil, &DatabaseError{Op: "CreateSnapshot", Err: err}
	}
	result.StateNumber = state.StateNumber

	return result, nil
}

// resolveInstalled looks up an installed trove by name, optionally
// narrowed by version and architecture, failing NotInstalled or
// Ambiguous as §4.3.4 step 1 requires.
func (e *Engine) resolveInstalled(ctx context.Context, name, version, architecture string) (*store.Trove, error) {
	matches, err := store.FindTroveByName(ctx, e.Store.DB(), name, architecture)
	if err != nil {
		return nil, &DatabaseError{Op: "FindTroveByName", Err: err}
	}
	if version != "" {
		var filtered []*store.Trove
		for _, t := range matches {
			if t.Version == version {
				filtered = append(filtered, t)
			}
		}
		matches = filtered
	}
	switch len(matches) {
	case 0:
		return nil, &NotInstalledError{Name: name, Version: version}
	case 1:
		return matches[0], nil
	default:
		var candidates []string
		for _, t := range matches {
			candidates = append(candidates, t.Version)
		}
		return nil, &AmbiguousError{Name: name, Candidates: candidates}
	}
}

// runRecordedPhase runs every scriptlet recorded for a trove at phase
// (there is ordinarily at most one body per phase, but nothing prevents
// a converted package from carrying more).
func (e *Engine) runRecordedPhase(ctx context.Context, scriptlets []*store.TroveScriptlet, phase pkgfmt.ScriptletPhase, arg string) error {
	for _, s := range scriptlets {
		if s.Phase != string(phase) {
			continue
		}
		sc := pkgfmt.Scriptlet{Phase: phase, Interpreter: s.Interpreter, Flags: s.Flags, Body: s.Body}
		if err := e.Scripts.RunLegacy(ctx, sc, arg); err != nil {
			metrics.HookFailuresTotal.WithLabelValues(string(phase)).Inc()
			return err
		}
	}
	return nil
}
