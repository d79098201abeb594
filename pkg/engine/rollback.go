package engine

import (
	"context"
	"fmt"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/metrics"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// RollbackResult summarizes a completed rollback.
type RollbackResult struct {
	ReversalChangesetID int64
	StateNumber         int64
}

// Rollback reverses changesetID (§4.3.6). Only changesets that installed
// troves can be rolled back at the engine level; a pure removal has no
// record of the removed trove's content beyond what the CAS may still
// hold, and re-creating it is the caller's job (reinstall from source).
func (e *Engine) Rollback(ctx context.Context, changesetID int64) (*RollbackResult, error) {
	timer := metrics.NewTimer()
	outcome := "error"
	defer func() {
		metrics.RollbacksTotal.WithLabelValues(outcome).Inc()
		timer.ObserveDurationVec(metrics.TransactionDuration, "rollback")
	}()

	cs, err := store.FindChangesetByID(ctx, e.Store.DB(), changesetID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, &NotInstalledError{Name: fmt.Sprintf("changeset#%d", changesetID)}
		}
		return nil, &DatabaseError{Op: "FindChangesetByID", Err: err}
	}
	if cs.Status == store.ChangesetRolledBack {
		return nil, fmt.Errorf("engine: changeset %d is already rolled back", changesetID)
	}
	if cs.Status == store.ChangesetPending {
		return nil, fmt.Errorf("engine: changeset %d is still pending, cannot roll back", changesetID)
	}

	troves, err := store.ListAllTroves(ctx, e.Store.DB())
	if err != nil {
		return nil, &DatabaseError{Op: "ListAllTroves", Err: err}
	}
	var introduced []*store.Trove
	for _, t := range troves {
		if t.InstalledByChangesetID.Valid && t.InstalledByChangesetID.Int64 == changesetID {
			introduced = append(introduced, t)
		}
	}
	if len(introduced) == 0 {
		return nil, fmt.Errorf("engine: changeset %d introduced no troves, rollback of pure removals is not supported at the engine level", changesetID)
	}

	history, err := store.ListFileHistoryByChangeset(ctx, e.Store.DB(), changesetID)
	if err != nil {
		return nil, &DatabaseError{Op: "ListFileHistoryByChangeset", Err: err}
	}
	var toRemove []string
	for _, h := range history {
		if h.Action == store.FileActionAdd || h.Action == store.FileActionModify {
			toRemove = append(toRemove, h.Path)
		}
	}

	result := &RollbackResult{}
	err = e.Store.Transaction(ctx, func(q store.Querier) error {
		reversalID, err := store.InsertChangeset(ctx, q, fmt.Sprintf("rollback of changeset %d", changesetID))
		if err != nil {
			return err
		}
		result.ReversalChangesetID = reversalID

		for _, t := range introduced {
			if err := store.DeleteTrove(ctx, q, t.ID); err != nil {
				return err
			}
		}

		if err := store.LinkReversal(ctx, q, changesetID, reversalID); err != nil {
			return err
		}
		if err := store.UpdateChangesetStatus(ctx, q, changesetID, store.ChangesetRolledBack); err != nil {
			return err
		}
		return store.UpdateChangesetStatus(ctx, q, reversalID, store.ChangesetApplied)
	})
	if err != nil {
		return nil, err
	}

	for _, path := range toRemove {
		if err := e.removeFile(path); err != nil {
			log.WithComponent("engine").Error().Err(err).Str("path", path).Msg("rollback: failed to remove deployed file")
		}
	}

	state, err := e.States.CreateSnapshot(ctx, fmt.Sprintf("rollback of changeset %d", changesetID), "", result.ReversalChangesetID)
	if err != nil {
		return nil, &DatabaseError{Op: "CreateSnapshot", Err: err}
	}
	result.StateNumber = state.StateNumber

	outcome = "ok"
	return result, nil
}
