// Package engine plans and executes install, remove, upgrade, batch, and
// rollback operations as atomic changesets over the metadata store, the
// content-addressable store, and the scriptlet host.
package engine

import "fmt"

// Failure taxonomy (§4.3.8). AlreadyInstalled and DowngradeRefused are
// user errors surfaced verbatim; PathTraversal and InvalidPath are
// security errors the caller must log with full context; DatabaseError
// and CasError are infrastructure errors that wrap an underlying cause.
type (
	// AlreadyInstalledError: a trove of the same name and version is
	// already installed and this isn't an upgrade from a newer source.
	AlreadyInstalledError struct {
		Name, Version string
	}

	// DowngradeRefusedError: a newer version is installed and
	// allow_downgrade was not set.
	DowngradeRefusedError struct {
		Name, Installed, Requested string
	}

	// NotInstalledError: the named trove has no installed match.
	NotInstalledError struct {
		Name, Version string
	}

	// AmbiguousError: more than one installed trove matches the given
	// name (and optional version/architecture).
	AmbiguousError struct {
		Name string
		Candidates []string
	}

	// MissingDependencyError: a required capability has no satisfying
	// provider and no_deps was not set.
	MissingDependencyError struct {
		Capability string
		RequiredBy string
	}

	// ReverseDependencyError: removing a trove would break installed
	// dependents, unless force is specified.
	ReverseDependencyError struct {
		Trove    string
		Blockers []string
	}

	// FileConflictError: a path is already owned by a different trove.
	FileConflictError struct {
		Path, Owner string
	}

	// BatchFileConflictError: two packages within the same batch claim
	// the same path.
	BatchFileConflictError struct {
		Path           string
		FirstOwner     string
		SecondOwner    string
	}

	// PathTraversalError: a path failed the sanitization contract.
	PathTraversalError struct {
		Path string
		Err  error
	}

	// InvalidPathError: a path or filename failed validation for a
	// reason other than traversal (e.g. empty, multi-component filename).
	InvalidPathError struct {
		Path string
		Err  error
	}

	// HookFailedError: a scriptlet or declarative hook failed.
	HookFailedError struct {
		Phase string
		Err   error
	}

	// DeployFailedError: writing a file from CAS to the target root
	// failed after the database transaction committed.
	DeployFailedError struct {
		Path string
		Err  error
	}

	// LockBusyError: another process holds the system-wide lock.
	LockBusyError struct{}

	// DatabaseError wraps an underlying metadata-store failure.
	DatabaseError struct {
		Op  string
		Err error
	}

	// CasError wraps an underlying content-addressable-store failure.
	CasError struct {
		Op  string
		Err error
	}

	// UntrustedPackageError: the configured Authenticator rejected pkg
	// before any planning began.
	UntrustedPackageError struct {
		Name, Version string
		Err           error
	}
)

func (e *AlreadyInstalledError) Error() string {
	return fmt.Sprintf("engine: %s %s is already installed", e.Name, e.Version)
}
func (e *DowngradeRefusedError) Error() string {
	return fmt.Sprintf("engine: %s %s is installed, refusing downgrade to %s without allow_downgrade", e.Name, e.Installed, e.Requested)
}
func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("engine: %s %s is not installed", e.Name, e.Version)
}
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("engine: %q matches %d installed troves", e.Name, len(e.Candidates))
}
func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("engine: missing dependency %q required by %s", e.Capability, e.RequiredBy)
}
func (e *ReverseDependencyError) Error() string {
	return fmt.Sprintf("engine: cannot remove %s, depended on by %v", e.Trove, e.Blockers)
}
func (e *FileConflictError) Error() string {
	return fmt.Sprintf("engine: %s is already owned by %s", e.Path, e.Owner)
}
func (e *BatchFileConflictError) Error() string {
	return fmt.Sprintf("engine: %s is claimed by both %s and %s in this batch", e.Path, e.FirstOwner, e.SecondOwner)
}
func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("engine: path traversal in %q: %v", e.Path, e.Err)
}
func (e *PathTraversalError) Unwrap() error { return e.Err }
func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("engine: invalid path %q: %v", e.Path, e.Err)
}
func (e *InvalidPathError) Unwrap() error { return e.Err }
func (e *HookFailedError) Error() string {
	return fmt.Sprintf("engine: hook phase %s failed: %v", e.Phase, e.Err)
}
func (e *HookFailedError) Unwrap() error { return e.Err }
func (e *DeployFailedError) Error() string {
	return fmt.Sprintf("engine: failed to deploy %s: %v", e.Path, e.Err)
}
func (e *DeployFailedError) Unwrap() error { return e.Err }
func (e *LockBusyError) Error() string     { return "engine: system lock held by another process" }
func (e *DatabaseError) Error() string     { return fmt.Sprintf("engine: database error during %s: %v", e.Op, e.Err) }
func (e *DatabaseError) Unwrap() error     { return e.Err }
func (e *CasError) Error() string          { return fmt.Sprintf("engine: cas error during %s: %v", e.Op, e.Err) }
func (e *CasError) Unwrap() error          { return e.Err }
func (e *UntrustedPackageError) Error() string {
	return fmt.Sprintf("engine: %s %s failed trust verification: %v", e.Name, e.Version, e.Err)
}
func (e *UntrustedPackageError) Unwrap() error { return e.Err }
