package provenance

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

func samplePackage() *pkgfmt.Package {
	return &pkgfmt.Package{
		Name:         "curl",
		Version:      "8.4.0",
		Architecture: "x86_64",
		SourceFormat: pkgfmt.FormatNative,
		Files: []pkgfmt.File{
			{Path: "usr/bin/curl", Mode: 0o755, Type: pkgfmt.FileRegular, Content: []byte("bin\n")},
		},
		Provides: []pkgfmt.Provide{{Capability: "curl", Version: "8.4.0"}},
	}
}

func TestDigestIsDeterministicRegardlessOfFileOrder(t *testing.T) {
	a := samplePackage()
	a.Files = []pkgfmt.File{
		{Path: "usr/bin/curl", Content: []byte("bin\n")},
		{Path: "usr/share/doc/curl", Content: []byte("doc\n")},
	}
	b := samplePackage()
	b.Files = []pkgfmt.File{
		{Path: "usr/share/doc/curl", Content: []byte("doc\n")},
		{Path: "usr/bin/curl", Content: []byte("bin\n")},
	}

	da, err := Digest(a)
	if err != nil {
		t.Fatalf("Digest a: %v", err)
	}
	db, err := Digest(b)
	if err != nil {
		t.Fatalf("Digest b: %v", err)
	}
	if da.String() != db.String() {
		t.Fatalf("expected equal digests regardless of file order, got %s vs %s", da, db)
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	a := samplePackage()
	b := samplePackage()
	b.Files[0].Content = []byte("different\n")

	da, _ := Digest(a)
	db, _ := Digest(b)
	if da.String() == db.String() {
		t.Fatalf("expected different digests for different content, got matching %s", da)
	}
}

func TestNoopAuthenticatorAcceptsEverything(t *testing.T) {
	pkg := samplePackage()
	if err := (NoopAuthenticator{}).Verify(pkg); err != nil {
		t.Fatalf("NoopAuthenticator.Verify: %v", err)
	}
}

func TestEd25519AuthenticatorRejectsUnsignedPackage(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	auth := Ed25519Authenticator{TrustedKeys: []ed25519.PublicKey{pub}}

	if err := auth.Verify(samplePackage()); err != ErrUnsigned {
		t.Fatalf("expected ErrUnsigned, got %v", err)
	}
}

func TestEd25519AuthenticatorAcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pkg := samplePackage()
	digest, err := Digest(pkg)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	pkg.Signature = ed25519.Sign(priv, []byte(digest.String()))

	auth := Ed25519Authenticator{TrustedKeys: []ed25519.PublicKey{pub}}
	if err := auth.Verify(pkg); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestEd25519AuthenticatorRejectsUntrustedSigner(t *testing.T) {
	_, otherPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	trustedPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	pkg := samplePackage()
	digest, _ := Digest(pkg)
	pkg.Signature = ed25519.Sign(otherPriv, []byte(digest.String()))

	auth := Ed25519Authenticator{TrustedKeys: []ed25519.PublicKey{trustedPub}}
	if err := auth.Verify(pkg); err != ErrUntrusted {
		t.Fatalf("expected ErrUntrusted, got %v", err)
	}
}

func TestRecorderRecordsAndFindsProvenance(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "conary.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	pkg := samplePackage()
	rec := NewRecorder(db)

	var troveID int64
	err = db.Transaction(ctx, func(q store.Querier) error {
		id, err := store.InsertTrove(ctx, q, &store.Trove{
			Name: pkg.Name, Version: pkg.Version, Type: store.TrovePackage,
			InstallSource: store.SourceFile, InstallReason: store.ReasonExplicit,
		})
		if err != nil {
			return err
		}
		troveID = id
		return rec.Record(ctx, q, troveID, pkg)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	got, err := store.FindTroveProvenance(ctx, db.DB(), troveID)
	if err != nil {
		t.Fatalf("FindTroveProvenance: %v", err)
	}
	want, _ := Digest(pkg)
	if got.DigestHex != want.Hex || got.Algorithm != string(want.Algorithm) {
		t.Fatalf("recorded provenance %s:%s, want %s:%s", got.Algorithm, got.DigestHex, want.Algorithm, want.Hex)
	}
}
