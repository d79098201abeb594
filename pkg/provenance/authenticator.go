// Package provenance records where package content came from and gives
// the engine a hook to decide whether to trust it before accepting a
// transaction (§4.3.2 step 1: the engine "parses" input and must decide
// whether to trust it). Archive-format signature schemes themselves are
// out of scope; only the verification contract the engine calls lives
// here.
package provenance

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/ConaryLabs/Conary-sub004/pkg/hash"
	"github.com/ConaryLabs/Conary-sub004/pkg/pkgfmt"
)

// ErrUntrusted is returned when a package's signature does not verify
// against any trusted key.
var ErrUntrusted = errors.New("provenance: package signature does not verify against any trusted key")

// ErrUnsigned is returned when Verify is called on a package carrying no
// signature and the authenticator requires one.
var ErrUnsigned = errors.New("provenance: package carries no signature")

// Authenticator decides whether a parsed package should be trusted
// before the engine accepts it into a transaction.
type Authenticator interface {
	Verify(pkg *pkgfmt.Package) error
}

// NoopAuthenticator accepts every package unverified. It is the default
// when no trusted keys are configured, matching installs from a local
// manifest the operator already trusts by virtue of placing it on disk.
type NoopAuthenticator struct{}

// Verify always succeeds.
func (NoopAuthenticator) Verify(*pkgfmt.Package) error { return nil }

// Ed25519Authenticator verifies a package's signature against a set of
// trusted public keys. The signed message is the SHA-256 digest of the
// package's canonical content manifest (Digest), so a signature produced
// over one format's canonicalization cannot be replayed against another
// package with the same name and version.
type Ed25519Authenticator struct {
	TrustedKeys []ed25519.PublicKey
}

// Verify reports ErrUnsigned if pkg carries no signature, or ErrUntrusted
// if the signature fails against every trusted key.
func (a Ed25519Authenticator) Verify(pkg *pkgfmt.Package) error {
	if len(pkg.Signature) == 0 {
		return ErrUnsigned
	}
	digest, err := Digest(pkg)
	if err != nil {
		return err
	}
	message := []byte(digest.String())
	for _, key := range a.TrustedKeys {
		if ed25519.Verify(key, message, pkg.Signature) {
			return nil
		}
	}
	return ErrUntrusted
}

// Digest computes the SHA-256 content digest of pkg's canonical manifest,
// the value package signatures are taken over and the value recorded as
// a trove's provenance.
func Digest(pkg *pkgfmt.Package) (hash.Digest, error) {
	manifest, err := canonicalManifest(pkg)
	if err != nil {
		return hash.Digest{}, fmt.Errorf("provenance: canonicalize %s-%s: %w", pkg.Name, pkg.Version, err)
	}
	return hash.SumSHA256(manifest), nil
}
