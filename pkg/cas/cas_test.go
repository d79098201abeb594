package cas

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ConaryLabs/Conary-sub004/pkg/hash"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

func openTestCAS(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "conary.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := Open(Options{Root: t.TempDir(), DB: db, Algorithm: hash.SHA256})
	if err != nil {
		t.Fatalf("cas.Open: %v", err)
	}
	return s
}

func TestStoreAndRetrieve(t *testing.T) {
	s := openTestCAS(t)
	ctx := context.Background()

	digest, err := s.Store(ctx, []byte("hello world"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := s.Retrieve(ctx, digest)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestStoreDeduplicates(t *testing.T) {
	s := openTestCAS(t)
	ctx := context.Background()

	d1, err := s.Store(ctx, []byte("same content"))
	if err != nil {
		t.Fatalf("first Store: %v", err)
	}
	d2, err := s.Store(ctx, []byte("same content"))
	if err != nil {
		t.Fatalf("second Store: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("expected identical digests, got %q and %q", d1, d2)
	}
}

func TestRetrieveMissing(t *testing.T) {
	s := openTestCAS(t)
	_, err := s.Retrieve(context.Background(), "sha256:"+fmt.Sprintf("%064d", 0))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProtectExemptsFromEviction(t *testing.T) {
	s := openTestCAS(t)
	ctx := context.Background()

	unprotected, err := s.Store(ctx, []byte("orphaned content"))
	if err != nil {
		t.Fatalf("Store unprotected: %v", err)
	}
	protected, err := s.Store(ctx, []byte("protected content"))
	if err != nil {
		t.Fatalf("Store protected: %v", err)
	}

	// Neither chunk has a live reference yet. Insert a file_entries row
	// citing only "protected", the way the engine does on install, so
	// Evict's pre-sweep reconcile (run against that table, not a
	// manually maintained counter) picks it up as still in use.
	ctx2 := context.Background()
	troveID, err := store.InsertTrove(ctx2, s.db.DB(), &store.Trove{
		Name: "sample", Version: "1.0", Type: store.TrovePackage,
		InstallSource: store.SourceFile, InstallReason: store.ReasonExplicit,
	})
	if err != nil {
		t.Fatalf("InsertTrove: %v", err)
	}
	if _, err := store.InsertFileEntry(ctx2, s.db.DB(), &store.FileEntry{
		Path: "usr/share/protected", SHA256Hash: protected, Size: 17, TroveID: troveID,
	}); err != nil {
		t.Fatalf("InsertFileEntry: %v", err)
	}

	if err := s.Evict(ctx, 0); err != nil {
		t.Fatalf("Evict: %v", err)
	}

	if _, err := s.Retrieve(ctx, protected); err != nil {
		t.Fatalf("expected protected content to survive eviction, got: %v", err)
	}
	if _, err := s.Retrieve(ctx, unprotected); err != ErrNotFound {
		t.Fatalf("expected unprotected content to be evicted, got: %v", err)
	}
}

func TestEvictUnprotectsChunksNoLongerReferenced(t *testing.T) {
	s := openTestCAS(t)
	ctx := context.Background()

	digest, err := s.Store(ctx, []byte("formerly referenced"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	troveID, err := store.InsertTrove(ctx, s.db.DB(), &store.Trove{
		Name: "sample", Version: "1.0", Type: store.TrovePackage,
		InstallSource: store.SourceFile, InstallReason: store.ReasonExplicit,
	})
	if err != nil {
		t.Fatalf("InsertTrove: %v", err)
	}
	fileID, err := store.InsertFileEntry(ctx, s.db.DB(), &store.FileEntry{
		Path: "usr/share/gone", SHA256Hash: digest, Size: 20, TroveID: troveID,
	})
	if err != nil {
		t.Fatalf("InsertFileEntry: %v", err)
	}

	if err := s.Evict(ctx, 0); err != nil {
		t.Fatalf("Evict (protect pass): %v", err)
	}
	if _, err := s.Retrieve(ctx, digest); err != nil {
		t.Fatalf("expected still-referenced content to survive, got: %v", err)
	}

	if _, err := s.db.DB().ExecContext(ctx, `DELETE FROM file_entries WHERE id = ?`, fileID); err != nil {
		t.Fatalf("delete file_entries row: %v", err)
	}

	if err := s.Evict(ctx, 0); err != nil {
		t.Fatalf("Evict (unprotect + sweep pass): %v", err)
	}
	if _, err := s.Retrieve(ctx, digest); err != ErrNotFound {
		t.Fatalf("expected unreferenced content to be evicted once its file_entries row is gone, got: %v", err)
	}
}

func TestChunkedRoundTrip(t *testing.T) {
	s := openTestCAS(t)
	ctx := context.Background()

	content := make([]byte, 200*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}

	root, err := s.StoreChunked(ctx, content)
	if err != nil {
		t.Fatalf("StoreChunked: %v", err)
	}

	manifest, err := s.RetrieveManifest(ctx, root)
	if err != nil {
		t.Fatalf("RetrieveManifest: %v", err)
	}

	var reconstructed []byte
	for _, c := range manifest.Chunks {
		chunk, err := s.Retrieve(ctx, c.Hash)
		if err != nil {
			t.Fatalf("Retrieve chunk: %v", err)
		}
		reconstructed = append(reconstructed, chunk...)
	}
	if len(reconstructed) != len(content) {
		t.Fatalf("reconstructed length %d != original %d", len(reconstructed), len(content))
	}
	for i := range content {
		if reconstructed[i] != content[i] {
			t.Fatalf("byte mismatch at offset %d", i)
		}
	}
}
