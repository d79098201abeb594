// Package hash computes and parses the two content-identity algorithms the
// core supports: SHA-256 for security-critical identity (signatures, repo
// checksums) and XXH128 for internal content addressing where speed
// matters more than cryptographic strength.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// Algorithm identifies which hash function produced a digest.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	XXH128 Algorithm = "xxh128"
)

// Digest is a hash value tagged with the algorithm that produced it.
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

// String renders the digest in its prefixed wire form, "<algo>:<hex>".
func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Hex
}

// SumSHA256 computes the SHA-256 digest of b.
func SumSHA256(b []byte) Digest {
	sum := sha256.Sum256(b)
	return Digest{Algorithm: SHA256, Hex: hex.EncodeToString(sum[:])}
}

// SumXXH128 computes the XXH3-128 digest of b.
func SumXXH128(b []byte) Digest {
	sum := xxh3.Hash128(b).Bytes()
	return Digest{Algorithm: XXH128, Hex: hex.EncodeToString(sum[:])}
}

// Sum computes a digest of b using the given algorithm.
func Sum(algo Algorithm, b []byte) (Digest, error) {
	switch algo {
	case SHA256:
		return SumSHA256(b), nil
	case XXH128:
		return SumXXH128(b), nil
	default:
		return Digest{}, fmt.Errorf("hash: unsupported algorithm %q", algo)
	}
}

// Parse splits a wire-form hash string into its algorithm and hex digest.
// Unprefixed strings default to SHA-256 for backward compatibility, per
// the core's content-addressing contract.
func Parse(s string) Digest {
	if algo, hexPart, ok := strings.Cut(s, ":"); ok {
		switch Algorithm(algo) {
		case SHA256, XXH128:
			return Digest{Algorithm: Algorithm(algo), Hex: hexPart}
		}
	}
	return Digest{Algorithm: SHA256, Hex: s}
}

// Equal reports whether two wire-form hash strings denote the same digest.
func Equal(a, b string) bool {
	return Parse(a) == Parse(b)
}
