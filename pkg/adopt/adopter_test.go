package adopt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ConaryLabs/Conary-sub004/pkg/cas"
	"github.com/ConaryLabs/Conary-sub004/pkg/hash"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

type fakePM struct {
	records map[string]*LegacyRecord
}

func (f *fakePM) Source() Source { return SourceRPM }

func (f *fakePM) Query(ctx context.Context, name string) (*LegacyRecord, error) {
	rec, ok := f.records[name]
	if !ok {
		return nil, ErrNotCached
	}
	return rec, nil
}

func newTestAdopter(t *testing.T, pm SystemPackageManager) (*Adopter, string) {
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

	cache, err := OpenLegacyCache(dir)
	if err != nil {
		t.Fatalf("OpenLegacyCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	root := filepath.Join(dir, "root")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	return &Adopter{Store: db, CAS: c, Cache: cache, PM: pm, InstallRoot: root}, root
}

func TestAdoptTrackRecordsFilesWithMarkerHash(t *testing.T) {
	pm := &fakePM{records: map[string]*LegacyRecord{
		"curl": {
			Name: "curl", Version: "8.4.0", Architecture: "x86_64",
			Files: []LegacyFile{{Path: "usr/bin/curl", Mode: 0o755, Size: 200000}},
		},
	}}
	a, _ := newTestAdopter(t, pm)
	ctx := context.Background()

	troveID, err := a.AdoptTrack(ctx, "curl")
	if err != nil {
		t.Fatalf("AdoptTrack: %v", err)
	}

	trove, err := store.FindTroveByID(ctx, a.Store.DB(), troveID)
	if err != nil {
		t.Fatalf("FindTroveByID: %v", err)
	}
	if trove.InstallSource != store.SourceAdoptedTrack {
		t.Fatalf("expected adopted-track install source, got %v", trove.InstallSource)
	}

	file, err := store.FindFileEntryByPath(ctx, a.Store.DB(), "usr/bin/curl")
	if err != nil {
		t.Fatalf("FindFileEntryByPath: %v", err)
	}
	if file.SHA256Hash != AdoptedMarkerHash {
		t.Fatalf("expected marker hash, got %q", file.SHA256Hash)
	}
}

func TestAdoptTrackRejectsAlreadyTracked(t *testing.T) {
	pm := &fakePM{records: map[string]*LegacyRecord{
		"curl": {Name: "curl", Version: "8.4.0", Architecture: "x86_64"},
	}}
	a, _ := newTestAdopter(t, pm)
	ctx := context.Background()

	if _, err := a.AdoptTrack(ctx, "curl"); err != nil {
		t.Fatalf("first AdoptTrack: %v", err)
	}
	if _, err := a.AdoptTrack(ctx, "curl"); err != ErrAlreadyTracked {
		t.Fatalf("expected ErrAlreadyTracked, got %v", err)
	}
}

func TestAdoptFullIngestsContentAndReplacesTrackRecord(t *testing.T) {
	pm := &fakePM{records: map[string]*LegacyRecord{
		"curl": {
			Name: "curl", Version: "8.4.0", Architecture: "x86_64",
			Files: []LegacyFile{{Path: "usr/bin/curl", Mode: 0o755, Size: 4}},
		},
	}}
	a, root := newTestAdopter(t, pm)
	ctx := context.Background()

	trackID, err := a.AdoptTrack(ctx, "curl")
	if err != nil {
		t.Fatalf("AdoptTrack: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(root, "usr/bin"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "usr/bin/curl"), []byte("bin\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fullID, err := a.AdoptFull(ctx, "curl")
	if err != nil {
		t.Fatalf("AdoptFull: %v", err)
	}
	if fullID == trackID {
		t.Fatalf("expected AdoptFull to insert a fresh trove row")
	}

	if _, err := store.FindTroveByID(ctx, a.Store.DB(), trackID); err != store.ErrNotFound {
		t.Fatalf("expected adopted-track trove to be replaced, got err=%v", err)
	}

	file, err := store.FindFileEntryByPath(ctx, a.Store.DB(), "usr/bin/curl")
	if err != nil {
		t.Fatalf("FindFileEntryByPath: %v", err)
	}
	if file.SHA256Hash == AdoptedMarkerHash {
		t.Fatalf("expected a real CAS digest after AdoptFull, got marker hash")
	}

	content, err := a.CAS.Retrieve(ctx, file.SHA256Hash)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(content) != "bin\n" {
		t.Fatalf("unexpected retrieved content: %q", content)
	}
}
