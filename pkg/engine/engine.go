package engine

import (
	"github.com/ConaryLabs/Conary-sub004/pkg/cas"
	"github.com/ConaryLabs/Conary-sub004/pkg/provenance"
	"github.com/ConaryLabs/Conary-sub004/pkg/scriptlet"
	"github.com/ConaryLabs/Conary-sub004/pkg/state"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// Engine plans and executes transactions against one install root. It
// owns no locking itself; callers are expected to hold pkg/lock's
// process-wide exclusive lock for the duration of an operation (§4.3.7).
type Engine struct {
	Store   *store.Store
	CAS     *cas.Store
	Scripts *scriptlet.Host
	States  *state.Engine

	// Authenticator decides whether a parsed package should be accepted
	// before planning begins. Defaults to provenance.NoopAuthenticator,
	// which accepts everything.
	Authenticator provenance.Authenticator
	Provenance    *provenance.Recorder

	InstallRoot string
}

// New wires the engine's dependencies together. installRoot is the
// target filesystem files are deployed into; scripts must already be
// configured with the same root.
func New(db *store.Store, c *cas.Store, scripts *scriptlet.Host, installRoot string) *Engine {
	return &Engine{
		Store:         db,
		CAS:           c,
		Scripts:       scripts,
		States:        state.New(db),
		Authenticator: provenance.NoopAuthenticator{},
		Provenance:    provenance.NewRecorder(db),
		InstallRoot:   installRoot,
	}
}

// Flags carries the per-operation switches §4.3.2 names.
type Flags struct {
	AllowDowngrade bool
	NoScripts      bool
	NoDeps         bool
	SkipOptional   bool
	DryRun         bool
	SandboxMode    scriptlet.SandboxMode
	InstallReason  store.InstallReason
	ConvertToCCS   bool
	Force          bool
}
