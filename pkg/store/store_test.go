package store

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conary.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndFindTrove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var id int64
	err := s.Transaction(ctx, func(q Querier) error {
		var err error
		id, err = InsertTrove(ctx, q, &Trove{
			Name: "nginx", Version: "1.24.0", Type: TrovePackage,
			InstallSource: SourceFile, InstallReason: ReasonExplicit,
		})
		return err
	})
	if err != nil {
		t.Fatalf("InsertTrove: %v", err)
	}

	got, err := FindTroveByID(ctx, s.DB(), id)
	if err != nil {
		t.Fatalf("FindTroveByID: %v", err)
	}
	if got.Name != "nginx" || got.Version != "1.24.0" {
		t.Fatalf("unexpected trove: %+v", got)
	}
}

func TestDeleteTroveCascadesFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var troveID int64
	err := s.Transaction(ctx, func(q Querier) error {
		var err error
		troveID, err = InsertTrove(ctx, q, &Trove{
			Name: "nginx", Version: "1.24.0", Type: TrovePackage,
			InstallSource: SourceFile, InstallReason: ReasonExplicit,
		})
		if err != nil {
			return err
		}
		_, err = InsertFileEntry(ctx, q, &FileEntry{
			Path: "usr/sbin/nginx", SHA256Hash: "abc", TroveID: troveID,
		})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := DeleteTrove(ctx, s.DB(), troveID); err != nil {
		t.Fatalf("DeleteTrove: %v", err)
	}

	if _, err := FindFileEntryByPath(ctx, s.DB(), "usr/sbin/nginx"); err != ErrNotFound {
		t.Fatalf("expected cascade delete of file_entries, got err=%v", err)
	}
}

func TestFindSatisfyingProviderTiers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(q Querier) error {
		troveID, err := InsertTrove(ctx, q, &Trove{
			Name: "openssl", Version: "3.1.0", Type: TrovePackage,
			InstallSource: SourceFile, InstallReason: ReasonExplicit,
		})
		if err != nil {
			return err
		}
		_, err = InsertProvideEntry(ctx, q, &ProvideEntry{TroveID: troveID, Capability: "libssl.so.3(OPENSSL_3.0.0)"})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	exact, err := FindSatisfyingProvider(ctx, s.DB(), "libssl.so.3(OPENSSL_3.0.0)")
	if err != nil || len(exact) != 1 {
		t.Fatalf("expected exact match, got %v, err=%v", exact, err)
	}

	prefix, err := FindSatisfyingProvider(ctx, s.DB(), "libssl.so.3")
	if err != nil || len(prefix) != 1 {
		t.Fatalf("expected prefix match, got %v, err=%v", prefix, err)
	}

	ci, err := FindSatisfyingProvider(ctx, s.DB(), "LIBSSL.SO.3")
	if err != nil || len(ci) != 1 {
		t.Fatalf("expected case-insensitive match, got %v, err=%v", ci, err)
	}

	none, err := FindSatisfyingProvider(ctx, s.DB(), "libcrypto.so.3")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no match, got %v, err=%v", none, err)
	}
}

func TestStateActivationExclusivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var s1, s2 int64
	err := s.Transaction(ctx, func(q Querier) error {
		var err error
		s1, err = InsertState(ctx, q, &SystemState{StateNumber: 1, Summary: "initial", IsActive: true})
		if err != nil {
			return err
		}
		s2, err = InsertState(ctx, q, &SystemState{StateNumber: 2, Summary: "install nginx"})
		return err
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := ActivateState(ctx, s.DB(), s2); err != nil {
		t.Fatalf("ActivateState: %v", err)
	}

	active, err := FindActiveState(ctx, s.DB())
	if err != nil {
		t.Fatalf("FindActiveState: %v", err)
	}
	if active.ID != s2 {
		t.Fatalf("expected state %d active, got %d", s2, active.ID)
	}

	prior, err := FindStateByNumber(ctx, s.DB(), 1)
	if err != nil {
		t.Fatalf("FindStateByNumber: %v", err)
	}
	if prior.ID != s1 || prior.IsActive {
		t.Fatalf("expected prior state inactive, got %+v", prior)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conary.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	s2.Close()
}
