package pkgfmt

import "io"

// FileType distinguishes the kinds of filesystem entries a package may ship.
type FileType string

const (
	FileRegular   FileType = "regular"
	FileSymlink   FileType = "symlink"
	FileDirectory FileType = "directory"
)

// DependencyKind distinguishes the role a dependency plays.
type DependencyKind string

const (
	DepRuntime  DependencyKind = "runtime"
	DepBuild    DependencyKind = "build"
	DepOptional DependencyKind = "optional"
)

// ScriptletPhase names the point in the transaction lifecycle a legacy
// scriptlet runs at.
type ScriptletPhase string

const (
	PhasePreInstall  ScriptletPhase = "pre-install"
	PhasePostInstall ScriptletPhase = "post-install"
	PhasePreRemove   ScriptletPhase = "pre-remove"
	PhasePostRemove  ScriptletPhase = "post-remove"
	PhasePreUpgrade  ScriptletPhase = "pre-upgrade"
	PhasePostUpgrade ScriptletPhase = "post-upgrade"
)

// File is one filesystem entry shipped by a package.
type File struct {
	Path    string
	Mode    uint32
	Size    int64
	Type    FileType
	Target  string // symlink target, only meaningful when Type == FileSymlink
	Content []byte
	Stream  io.Reader // alternative to Content for large files; mutually exclusive
}

// Bytes returns the file's content, reading Stream if Content is unset.
func (f *File) Bytes() ([]byte, error) {
	if f.Content != nil {
		return f.Content, nil
	}
	if f.Stream == nil {
		return nil, nil
	}
	return io.ReadAll(f.Stream)
}

// Dependency is a capability a package requires.
type Dependency struct {
	Name             string
	VersionConstraint string
	Kind             DependencyKind
}

// Provide is a capability a package offers.
type Provide struct {
	Capability string
	Version    string
}

// Scriptlet is an imperative legacy script carried by a converted package.
type Scriptlet struct {
	Phase       ScriptletPhase
	Interpreter string
	Flags       []string
	Body        string
}

// Package is the abstract representation every format handler (RPM, DEB,
// Arch, or the native manifest format) must produce. The transaction
// engine consumes only this interface.
type Package struct {
	Name         string
	Version      string
	Architecture string
	Description  string
	Files        []File
	Dependencies []Dependency
	Provides     []Provide
	Scriptlets   []Scriptlet

	// SourceFormat records which format handler produced this package,
	// used by the scriptlet host to pick the platform convention for
	// pre/post-install vs pre/post-upgrade phase selection (§4.5).
	SourceFormat SourceFormat

	// Signature, if present, is an ed25519 signature over the SHA-256
	// digest of the package's canonical manifest (pkg/provenance), taken
	// by whatever built or repackaged this manifest.
	Signature []byte
}

// SourceFormat names the legacy package format (or the native format) a
// Package was parsed from.
type SourceFormat string

const (
	FormatNative SourceFormat = "native"
	FormatRPM    SourceFormat = "rpm"
	FormatDEB    SourceFormat = "deb"
	FormatArch   SourceFormat = "arch"
)

// SelfProvide returns the implicit self-provide every installed package
// carries: its own name at its own version (§4.3.2 step 11).
func (p *Package) SelfProvide() Provide {
	return Provide{Capability: p.Name, Version: p.Version}
}
