package provenance

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/ConaryLabs/Conary-sub004/pkg/hash"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// canonicalManifest renders the parts of pkg that define its identity
// into a deterministic byte form: name, version, architecture, every
// file's path, mode, and content hash (sorted by path), and every
// provide's capability and version (sorted by capability), so field
// order in the parsed struct never affects the digest.
func canonicalManifest(pkg *pkgfmt.Package) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "name=%s\nversion=%s\narch=%s\n", pkg.Name, pkg.Version, pkg.Architecture)

	files := make([]pkgfmt.File, len(pkg.Files))
	copy(files, pkg.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	for _, f := range files {
		content, err := f.Bytes()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Path, err)
		}
		digest := hash.SumSHA256(content)
		fmt.Fprintf(&buf, "file=%s mode=%o digest=%s\n", f.Path, f.Mode, digest.String())
	}

	provides := make([]pkgfmt.Provide, len(pkg.Provides))
	copy(provides, pkg.Provides)
	sort.Slice(provides, func(i, j int) bool { return provides[i].Capability < provides[j].Capability })
	for _, p := range provides {
		fmt.Fprintf(&buf, "provides=%s@%s\n", p.Capability, p.Version)
	}

	return buf.Bytes(), nil
}

// Recorder persists the content digest an install was accepted under, so
// a later audit can answer "what exactly did we trust when we installed
// this" independent of whatever mutable repository metadata pointed at
// it at the time.
type Recorder struct {
	Store *store.Store
}

// NewRecorder wraps db for provenance recording.
func NewRecorder(db *store.Store) *Recorder {
	return &Recorder{Store: db}
}

// Record computes pkg's content digest and stores it against troveID, so
// a later `conary verify` or audit can cite exactly what content the
// engine accepted at install time.
func (r *Recorder) Record(ctx context.Context, q store.Querier, troveID int64, pkg *pkgfmt.Package) error {
	digest, err := Digest(pkg)
	if err != nil {
		return err
	}
	_, err = store.InsertTroveProvenance(ctx, q, &store.TroveProvenance{
		TroveID:   troveID,
		Algorithm: string(digest.Algorithm),
		DigestHex: digest.Hex,
	})
	return err
}
