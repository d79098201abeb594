package cas

import (
	"encoding/binary"
	"hash"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/holiman/bloomfilter/v2"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
)

// bloomFilter is the negative-existence fast path ahead of a filesystem
// stat. It is populated by a background scan of the objects tree at
// startup and kept current as new content is stored. A positive from the
// filter only means "might be present"; callers must still confirm
// against disk. The filter itself is safe for concurrent Add/Contains
// (word-level atomic updates per the underlying library); this type
// nevertheless takes mu around Add, MaybeContains, and the swap at the
// end of a rebuild.
type bloomFilter struct {
	mu      sync.Mutex
	filter  *bloomfilter.Filter
	dirty   bool
	fpRate  float64
}

// digestHash64 adapts a precomputed 64-bit value to hash.Hash64, the
// interface the bloom filter library consumes, so a content hash can be
// folded into the filter without rehashing its bytes.
type digestHash64 uint64

func (d digestHash64) Write(p []byte) (int, error) { return len(p), nil }
func (d digestHash64) Sum(b []byte) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(d))
	return append(b, buf[:]...)
}
func (d digestHash64) Reset()         {}
func (d digestHash64) Size() int      { return 8 }
func (d digestHash64) BlockSize() int { return 8 }
func (d digestHash64) Sum64() uint64  { return uint64(d) }

var _ hash.Hash64 = digestHash64(0)

func hashKey(hexDigest string) digestHash64 {
	// First 16 hex chars (8 bytes) of the digest are already
	// uniformly distributed (SHA-256/XXH128 output); no need to rehash.
	clean := hexDigest
	if idx := strings.IndexByte(clean, ':'); idx >= 0 {
		clean = clean[idx+1:]
	}
	if len(clean) < 16 {
		clean = clean + strings.Repeat("0", 16-len(clean))
	}
	var v uint64
	for i := 0; i < 16; i++ {
		v = v<<4 | uint64(hexNibble(clean[i]))
	}
	return digestHash64(v)
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// newBloomFilter sizes a filter for expectedItems at the given false
// positive rate (default 1%, per §4.2).
func newBloomFilter(expectedItems uint64, fpRate float64) (*bloomFilter, error) {
	if expectedItems == 0 {
		expectedItems = 1024
	}
	if fpRate <= 0 {
		fpRate = 0.01
	}
	f, err := bloomfilter.NewOptimal(expectedItems, fpRate)
	if err != nil {
		return nil, err
	}
	return &bloomFilter{filter: f, fpRate: fpRate}, nil
}

// MaybeContains reports whether hexDigest might be in the store. A false
// return is authoritative; a true return requires disk confirmation.
func (b *bloomFilter) MaybeContains(hexDigest string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter.Contains(hashKey(hexDigest))
}

// Add records hexDigest as present and sets dirty. This implementation
// keeps the filter purely in-memory and rebuildable; dirty is cleared by
// Rebuild and is not read anywhere else.
func (b *bloomFilter) Add(hexDigest string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.Add(hashKey(hexDigest))
	b.dirty = true
}

// Rebuild clears and repopulates the filter by walking root/objects,
// skipping .tmp files left by interrupted writes. Called at startup and
// available on demand (e.g. after a bulk eviction sweep).
func (b *bloomFilter) Rebuild(root string, expectedItems uint64) error {
	fresh, err := newBloomFilter(expectedItems, b.fpRate)
	if err != nil {
		return err
	}

	objectsRoot := filepath.Join(root, "objects")
	count := 0
	err = filepath.WalkDir(objectsRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(objectsRoot, path)
		if err != nil {
			return err
		}
		digest := strings.ReplaceAll(rel, string(filepath.Separator), "")
		fresh.filter.Add(hashKey(digest))
		count++
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.filter = fresh.filter
	b.dirty = false
	b.mu.Unlock()

	log.WithComponent("cas").Info().Int("objects", count).Msg("bloom filter rebuilt")
	return nil
}
