package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ConaryLabs/Conary-sub004/pkg/cas"
	"github.com/ConaryLabs/Conary-sub004/pkg/hash"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
	"github.com/ConaryLabs/Conary-sub004/pkg/scriptlet"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

func mustReadFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	return string(b)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "conary.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c, err := cas.Open(cas.Options{Root: filepath.Join(dir, "cas"), DB: db, Algorithm: hash.SHA256})
	if err != nil {
		t.Fatalf("cas.Open: %v", err)
	}

	root := filepath.Join(dir, "root")
	host := scriptlet.New(root, scriptlet.SandboxNever)

	return New(db, c, host, root)
}

func samplePackage(name, version string, files ...pkgfmt.File) *pkgfmt.Package {
	return &pkgfmt.Package{
		Name:         name,
		Version:      version,
		Architecture: "x86_64",
		Files:        files,
		SourceFormat: pkgfmt.FormatNative,
	}
}

func regularFile(path, content string) pkgfmt.File {
	return pkgfmt.File{
		Path:    path,
		Mode:    0o644,
		Size:    int64(len(content)),
		Type:    pkgfmt.FileRegular,
		Content: []byte(content),
	}
}

func TestInstallFreshPackage(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "binary content"))
	result, err := e.Install(ctx, pkg, Flags{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if result.TroveID == 0 || result.ChangesetID == 0 || result.StateNumber == 0 {
		t.Fatalf("unexpected zero id in result: %+v", result)
	}

	dest := filepath.Join(e.InstallRoot, "usr/sbin/nginx")
	if got := mustReadFile(t, dest); got != "binary content" {
		t.Fatalf("unexpected deployed content: %q", got)
	}

	trove, err := store.FindTroveByID(ctx, e.Store.DB(), result.TroveID)
	if err != nil {
		t.Fatalf("FindTroveByID: %v", err)
	}
	if trove.Name != "nginx" || trove.Version != "1.24.0" {
		t.Fatalf("unexpected trove: %+v", trove)
	}
}

func TestInstallAlreadyInstalled(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "v1"))
	if _, err := e.Install(ctx, pkg, Flags{}); err != nil {
		t.Fatalf("first Install: %v", err)
	}

	_, err := e.Install(ctx, pkg, Flags{})
	if _, ok := err.(*AlreadyInstalledError); !ok {
		t.Fatalf("expected *AlreadyInstalledError, got %T (%v)", err, err)
	}
}

func TestInstallDowngradeRefused(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "v2"))
	if _, err := e.Install(ctx, pkg, Flags{}); err != nil {
		t.Fatalf("install v2: %v", err)
	}

	older := samplePackage("nginx", "1.20.0", regularFile("usr/sbin/nginx", "v1"))
	_, err := e.Install(ctx, older, Flags{})
	if _, ok := err.(*DowngradeRefusedError); !ok {
		t.Fatalf("expected *DowngradeRefusedError, got %T (%v)", err, err)
	}

	result, err := e.Install(ctx, older, Flags{AllowDowngrade: true})
	if err != nil {
		t.Fatalf("install with AllowDowngrade: %v", err)
	}
	if got := mustReadFile(t, filepath.Join(e.InstallRoot, "usr/sbin/nginx")); got != "v1" {
		t.Fatalf("unexpected content after downgrade: %q", got)
	}
	_ = result
}

func TestInstallUpgradeReplacesTrove(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v1 := samplePackage("nginx", "1.20.0", regularFile("usr/sbin/nginx", "v1"))
	first, err := e.Install(ctx, v1, Flags{})
	if err != nil {
		t.Fatalf("install v1: %v", err)
	}

	v2 := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "v2"))
	second, err := e.Install(ctx, v2, Flags{})
	if err != nil {
		t.Fatalf("install v2: %v", err)
	}
	if second.TroveID == first.TroveID {
		t.Fatalf("upgrade should insert a fresh trove row, got same id %d", first.TroveID)
	}

	if _, err := store.FindTroveByID(ctx, e.Store.DB(), first.TroveID); err != store.ErrNotFound {
		t.Fatalf("expected old trove to be gone, got err=%v", err)
	}

	if got := mustReadFile(t, filepath.Join(e.InstallRoot, "usr/sbin/nginx")); got != "v2" {
		t.Fatalf("unexpected content after upgrade: %q", got)
	}
}

func TestInstallMissingDependency(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("webapp", "1.0.0", regularFile("usr/bin/webapp", "bin"))
	pkg.Dependencies = []pkgfmt.Dependency{{Name: "libssl.so.3", Kind: pkgfmt.DepRuntime}}

	_, err := e.Install(ctx, pkg, Flags{})
	missing, ok := err.(*MissingDependencyError)
	if !ok {
		t.Fatalf("expected *MissingDependencyError, got %T (%v)", err, err)
	}
	if missing.RequiredBy != "webapp" {
		t.Fatalf("unexpected RequiredBy: %+v", missing)
	}

	result, err := e.Install(ctx, pkg, Flags{NoDeps: true})
	if err != nil {
		t.Fatalf("install with NoDeps: %v", err)
	}
	if result.TroveID == 0 {
		t.Fatalf("expected a trove to be created")
	}
}

func TestInstallDependencySatisfiedByProvider(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	libssl := samplePackage("openssl", "3.0.0", regularFile("usr/lib/libssl.so.3", "lib"))
	libssl.Provides = []pkgfmt.Provide{{Capability: "libssl.so.3", Version: "3.0.0"}}
	if _, err := e.Install(ctx, libssl, Flags{}); err != nil {
		t.Fatalf("install openssl: %v", err)
	}

	webapp := samplePackage("webapp", "1.0.0", regularFile("usr/bin/webapp", "bin"))
	webapp.Dependencies = []pkgfmt.Dependency{{Name: "libssl.so.3", Kind: pkgfmt.DepRuntime}}

	if _, err := e.Install(ctx, webapp, Flags{}); err != nil {
		t.Fatalf("install webapp: %v", err)
	}
}

func TestInstallFileConflict(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	a := samplePackage("pkg-a", "1.0.0", regularFile("usr/bin/tool", "a"))
	if _, err := e.Install(ctx, a, Flags{}); err != nil {
		t.Fatalf("install pkg-a: %v", err)
	}

	b := samplePackage("pkg-b", "1.0.0", regularFile("usr/bin/tool", "b"))
	_, err := e.Install(ctx, b, Flags{})
	conflict, ok := err.(*FileConflictError)
	if !ok {
		t.Fatalf("expected *FileConflictError, got %T (%v)", err, err)
	}
	if conflict.Path != "usr/bin/tool" {
		t.Fatalf("unexpected conflict path: %+v", conflict)
	}
}

func TestInstallPathTraversalRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("evil", "1.0.0", regularFile("../../etc/passwd", "x"))
	_, err := e.Install(ctx, pkg, Flags{})
	if _, ok := err.(*PathTraversalError); !ok {
		t.Fatalf("expected *PathTraversalError, got %T (%v)", err, err)
	}
}

func TestRemoveDeletesTroveAndFiles(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "bin"))
	installed, err := e.Install(ctx, pkg, Flags{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	result, err := e.Remove(ctx, "nginx", "", "", Flags{})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if result.TroveID != installed.TroveID {
		t.Fatalf("unexpected trove id: %+v", result)
	}

	if _, err := store.FindTroveByID(ctx, e.Store.DB(), installed.TroveID); err != store.ErrNotFound {
		t.Fatalf("expected trove gone, got err=%v", err)
	}
	if pathExists(filepath.Join(e.InstallRoot, "usr/sbin/nginx")) {
		t.Fatalf("expected deployed file to be removed")
	}
}

func TestRemoveNotInstalled(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Remove(ctx, "ghost", "", "", Flags{})
	if _, ok := err.(*NotInstalledError); !ok {
		t.Fatalf("expected *NotInstalledError, got %T (%v)", err, err)
	}
}

func TestRemovePinnedRefused(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "bin"))
	installed, err := e.Install(ctx, pkg, Flags{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := store.SetTrovePinned(ctx, e.Store.DB(), installed.TroveID, true); err != nil {
		t.Fatalf("SetTrovePinned: %v", err)
	}

	_, err = e.Remove(ctx, "nginx", "", "", Flags{})
	if _, ok := err.(*ReverseDependencyError); !ok {
		t.Fatalf("expected *ReverseDependencyError for pinned trove, got %T (%v)", err, err)
	}

	if _, err := e.Remove(ctx, "nginx", "", "", Flags{Force: true}); err != nil {
		t.Fatalf("forced Remove: %v", err)
	}
}

func TestRemoveBlockedByReverseDependency(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	lib := samplePackage("openssl", "3.0.0", regularFile("usr/lib/libssl.so.3", "lib"))
	lib.Provides = []pkgfmt.Provide{{Capability: "libssl.so.3", Version: "3.0.0"}}
	if _, err := e.Install(ctx, lib, Flags{}); err != nil {
		t.Fatalf("install openssl: %v", err)
	}
	app := samplePackage("webapp", "1.0.0", regularFile("usr/bin/webapp", "bin"))
	app.Dependencies = []pkgfmt.Dependency{{Name: "libssl.so.3", Kind: pkgfmt.DepRuntime}}
	if _, err := e.Install(ctx, app, Flags{}); err != nil {
		t.Fatalf("install webapp: %v", err)
	}

	_, err := e.Remove(ctx, "openssl", "", "", Flags{})
	rdep, ok := err.(*ReverseDependencyError)
	if !ok {
		t.Fatalf("expected *ReverseDependencyError, got %T (%v)", err, err)
	}
	if len(rdep.Blockers) != 1 || rdep.Blockers[0] != "webapp" {
		t.Fatalf("unexpected blockers: %+v", rdep.Blockers)
	}

	if _, err := e.Remove(ctx, "openssl", "", "", Flags{Force: true}); err != nil {
		t.Fatalf("forced Remove: %v", err)
	}
}

func TestBatchInstallAtomicOnConflict(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	items := []BatchItem{
		{Package: samplePackage("pkg-a", "1.0.0", regularFile("usr/bin/shared", "a")), InstallReason: store.ReasonExplicit},
		{Package: samplePackage("pkg-b", "1.0.0", regularFile("usr/bin/shared", "b")), InstallReason: store.ReasonExplicit},
	}

	_, err := e.BatchInstall(ctx, items, Flags{})
	if _, ok := err.(*BatchFileConflictError); !ok {
		t.Fatalf("expected *BatchFileConflictError, got %T (%v)", err, err)
	}

	troves, err := store.ListAllTroves(ctx, e.Store.DB())
	if err != nil {
		t.Fatalf("ListAllTroves: %v", err)
	}
	if len(troves) != 0 {
		t.Fatalf("expected no troves committed after a rejected batch, got %d", len(troves))
	}
}

func TestBatchInstallSharesOneChangeset(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	items := []BatchItem{
		{Package: samplePackage("pkg-a", "1.0.0", regularFile("usr/bin/a", "a")), InstallReason: store.ReasonExplicit},
		{Package: samplePackage("pkg-b", "1.0.0", regularFile("usr/bin/b", "b")), InstallReason: store.ReasonDependency, SelectionReason: "required by pkg-a"},
	}

	result, err := e.BatchInstall(ctx, items, Flags{})
	if err != nil {
		t.Fatalf("BatchInstall: %v", err)
	}
	if len(result.TroveIDs) != 2 {
		t.Fatalf("expected 2 troves, got %d", len(result.TroveIDs))
	}
	for _, id := range result.TroveIDs {
		trove, err := store.FindTroveByID(ctx, e.Store.DB(), id)
		if err != nil {
			t.Fatalf("FindTroveByID(%d): %v", id, err)
		}
		if !trove.InstalledByChangesetID.Valid || trove.InstalledByChangesetID.Int64 != result.ChangesetID {
			t.Fatalf("expected trove %d to belong to changeset %d, got %+v", id, result.ChangesetID, trove.InstalledByChangesetID)
		}
	}
}

func TestRollbackReversesInstall(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "bin"))
	installed, err := e.Install(ctx, pkg, Flags{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	_, err = e.Rollback(ctx, installed.ChangesetID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := store.FindTroveByID(ctx, e.Store.DB(), installed.TroveID); err != store.ErrNotFound {
		t.Fatalf("expected trove gone after rollback, got err=%v", err)
	}
	if pathExists(filepath.Join(e.InstallRoot, "usr/sbin/nginx")) {
		t.Fatalf("expected deployed file to be removed by rollback")
	}

	cs, err := store.FindChangesetByID(ctx, e.Store.DB(), installed.ChangesetID)
	if err != nil {
		t.Fatalf("FindChangesetByID: %v", err)
	}
	if cs.Status != store.ChangesetRolledBack {
		t.Fatalf("expected original changeset rolled back, got %v", cs.Status)
	}
}

func TestRollbackOfRemovalRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pkg := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "bin"))
	installed, err := e.Install(ctx, pkg, Flags{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	removed, err := e.Remove(ctx, "nginx", "", "", Flags{})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_ = installed

	_, err = e.Rollback(ctx, removed.ChangesetID)
	if err == nil {
		t.Fatalf("expected Rollback of a pure removal to fail")
	}
}

func TestUpgradeAndDowngradeHelpers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	v1 := samplePackage("nginx", "1.20.0", regularFile("usr/sbin/nginx", "v1"))
	if _, err := e.Install(ctx, v1, Flags{}); err != nil {
		t.Fatalf("install v1: %v", err)
	}

	v2 := samplePackage("nginx", "1.24.0", regularFile("usr/sbin/nginx", "v2"))
	if _, err := e.Upgrade(ctx, v2, Flags{}); err != nil {
		t.Fatalf("Upgrade: %v", err)
	}

	older := samplePackage("nginx", "1.22.0", regularFile("usr/sbin/nginx", "vmid"))
	if _, err := e.Downgrade(ctx, older, Flags{}); err != nil {
		t.Fatalf("Downgrade: %v", err)
	}
	if got := mustReadFile(t, filepath.Join(e.InstallRoot, "usr/sbin/nginx")); got != "vmid" {
		t.Fatalf("unexpected content after Downgrade: %q", got)
	}
}

func TestAmbiguousRemoveRequiresArchitecture(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Two distinct architectures of the same name/version can both be
	// installed; resolveInstalled should refuse to pick one.
	x86 := samplePackage("tool", "1.0.0", regularFile("usr/bin/tool-x86", "a"))
	x86.Architecture = "x86_64"
	arm := samplePackage("tool", "1.0.0", regularFile("usr/bin/tool-arm", "b"))
	arm.Architecture = "aarch64"

	if _, err := e.Install(ctx, x86, Flags{}); err != nil {
		t.Fatalf("install x86: %v", err)
	}
	if _, err := e.Install(ctx, arm, Flags{}); err != nil {
		t.Fatalf("install arm: %v", err)
	}

	_, err := e.Remove(ctx, "tool", "", "", Flags{})
	if _, ok := err.(*AmbiguousError); !ok {
		t.Fatalf("expected *AmbiguousError, got %T (%v)", err, err)
	}

	if _, err := e.Remove(ctx, "tool", "", "x86_64", Flags{}); err != nil {
		t.Fatalf("Remove scoped to x86_64: %v", err)
	}
}
