// Package state maintains numbered snapshots of the installed trove set,
// computes diffs between them, and plans restores. Execution of a
// restore plan is delegated back to pkg/engine; this package only
// computes what should change.
package state
