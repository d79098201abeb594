package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/metrics"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// Engine maintains and queries state snapshots over one metadata store.
type Engine struct {
	db *store.Store
}

// New returns a state Engine over db.
func New(db *store.Store) *Engine {
	return &Engine{db: db}
}

// CreateSnapshot records the current installed trove set as a new,
// active state (§4.4). changesetID may be zero to record a snapshot not
// tied to a single changeset (e.g. a state taken at first-boot).
func (e *Engine) CreateSnapshot(ctx context.Context, summary, description string, changesetID int64) (*store.SystemState, error) {
	var created *store.SystemState

	err := e.db.Transaction(ctx, func(q store.Querier) error {
		number, err := store.NextStateNumber(ctx, q)
		if err != nil {
			return err
		}

		troves, err := store.ListAllTroves(ctx, q)
		if err != nil {
			return err
		}

		s := &store.SystemState{
			StateNumber:  number,
			Summary:      summary,
			PackageCount: len(troves),
			IsActive:     true,
		}
		if description != "" {
			s.Description = sql.NullString{String: description, Valid: true}
		}
		if changesetID != 0 {
			s.ChangesetID = sql.NullInt64{Int64: changesetID, Valid: true}
		}

		id, err := store.InsertState(ctx, q, s)
		if err != nil {
			return err
		}
		s.ID = id

		if err := store.ActivateState(ctx, q, id); err != nil {
			return err
		}

		for _, t := range troves {
			member := &store.StateMember{
				StateID:       id,
				TroveName:     t.Name,
				TroveVersion:  t.Version,
				InstallReason: string(t.InstallReason),
			}
			if t.Architecture.Valid {
				member.Architecture = t.Architecture
			}
			if _, err := store.InsertStateMember(ctx, q, member); err != nil {
				return err
			}
		}

		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.StatesTotal.Inc()
	log.WithState(created.StateNumber).Info().Int("packages", created.PackageCount).Msg("state snapshot created")
	return created, nil
}

// Member is one trove recorded in a state, identified by name and
// architecture for diff purposes.
type Member struct {
	Name         string
	Version      string
	Architecture string
}

// Diff is the result of comparing two states (§4.4).
type Diff struct {
	Added    []Member
	Removed  []Member
	Upgraded []UpgradePair
}

// UpgradePair is one (name, architecture) present in both states at
// different versions.
type UpgradePair struct {
	Name, Architecture string
	FromVersion        string
	ToVersion          string
}

// Compare returns the diff from the state numbered fromNumber to the
// state numbered toNumber. Comparison key is (name, architecture);
// a version change at the same key is an upgrade.
func (e *Engine) Compare(ctx context.Context, fromNumber, toNumber int64) (*Diff, error) {
	from, err := e.membersOf(ctx, fromNumber)
	if err != nil {
		return nil, err
	}
	to, err := e.membersOf(ctx, toNumber)
	if err != nil {
		return nil, err
	}

	type key struct{ name, arch string }
	fromIdx := make(map[key]Member, len(from))
	for _, m := range from {
		fromIdx[key{m.Name, m.Architecture}] = m
	}
	toIdx := make(map[key]Member, len(to))
	for _, m := range to {
		toIdx[key{m.Name, m.Architecture}] = m
	}

	diff := &Diff{}
	for k, m := range toIdx {
		if prior, ok := fromIdx[k]; !ok {
			diff.Added = append(diff.Added, m)
		} else if prior.Version != m.Version {
			diff.Upgraded = append(diff.Upgraded, UpgradePair{
				Name: k.name, Architecture: k.arch,
				FromVersion: prior.Version, ToVersion: m.Version,
			})
		}
	}
	for k, m := range fromIdx {
		if _, ok := toIdx[k]; !ok {
			diff.Removed = append(diff.Removed, m)
		}
	}
	return diff, nil
}

func (e *Engine) membersOf(ctx context.Context, number int64) ([]Member, error) {
	s, err := store.FindStateByNumber(ctx, e.db.DB(), number)
	if err != nil {
		return nil, err
	}
	rows, err := store.ListStateMembers(ctx, e.db.DB(), s.ID)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(rows))
	for _, r := range rows {
		m := Member{Name: r.TroveName, Version: r.TroveVersion}
		if r.Architecture.Valid {
			m.Architecture = r.Architecture.String
		}
		members = append(members, m)
	}
	return members, nil
}

// Operation is one step of a restore plan.
type Operation struct {
	Kind         string // "install", "remove", "upgrade"
	Name         string
	Architecture string
	FromVersion  string
	ToVersion    string
}

// RestorePlan is the ordered set of operations that would bring the
// active state to match targetNumber. Removes are ordered before
// installs so a rename-like swap (remove A, install B) never transiently
// holds both.
type RestorePlan struct {
	TargetStateNumber int64
	Operations        []Operation
}

// PlanRestore computes the diff from the active state to targetNumber
// and emits the corresponding install/remove/upgrade plan. Execution is
// the transaction engine's responsibility, not this package's.
func (e *Engine) PlanRestore(ctx context.Context, targetNumber int64) (*RestorePlan, error) {
	active, err := store.FindActiveState(ctx, e.db.DB())
	if err != nil {
		return nil, err
	}

	diff, err := e.Compare(ctx, active.StateNumber, targetNumber)
	if err != nil {
		return nil, err
	}

	plan := &RestorePlan{TargetStateNumber: targetNumber}
	for _, m := range diff.Removed {
		plan.Operations = append(plan.Operations, Operation{Kind: "remove", Name: m.Name, Architecture: m.Architecture, FromVersion: m.Version})
	}
	for _, u := range diff.Upgraded {
		plan.Operations = append(plan.Operations, Operation{Kind: "upgrade", Name: u.Name, Architecture: u.Architecture, FromVersion: u.FromVersion, ToVersion: u.ToVersion})
	}
	for _, m := range diff.Added {
		plan.Operations = append(plan.Operations, Operation{Kind: "install", Name: m.Name, Architecture: m.Architecture, ToVersion: m.Version})
	}
	return plan, nil
}

// Prune deletes the oldest non-active states beyond keepCount, the
// active state is never eligible for deletion.
func (e *Engine) Prune(ctx context.Context, keepCount int) (int, error) {
	states, err := store.ListStates(ctx, e.db.DB())
	if err != nil {
		return 0, err
	}

	var eligible []*store.SystemState
	for _, s := range states {
		if !s.IsActive {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) <= keepCount {
		return 0, nil
	}

	toDelete := eligible[keepCount:]
	deleted := 0
	for _, s := range toDelete {
		if err := store.DeleteState(ctx, e.db.DB(), s.ID); err != nil {
			return deleted, fmt.Errorf("state: prune state %d: %w", s.StateNumber, err)
		}
		deleted++
	}

	metrics.StatesTotal.Set(float64(len(states) - deleted))
	log.WithComponent("state").Info().Int("deleted", deleted).Msg("pruned old states")
	return deleted, nil
}
