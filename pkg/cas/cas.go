package cas

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ConaryLabs/Conary-sub004/pkg/hash"
	"github.com/ConaryLabs/Conary-sub004/pkg/log"
	"github.com/ConaryLabs/Conary-sub004/pkg/metrics"
	"github.com/ConaryLabs/Conary-sub004/pkg/store"
)

// Store is the content-addressable blob store rooted at a directory.
type Store struct {
	root  string
	algo  hash.Algorithm
	db    *store.Store
	bloom *bloomFilter

	// memCache holds recently retrieved blobs in process memory,
	// avoiding a filesystem read for hot content (e.g. shared libraries
	// referenced by many troves in a batch install).
	memCache *lru.Cache

	highWaterBytes int64
	lowWaterBytes  int64

	evictMu sync.Mutex
}

// Options configures a new Store.
type Options struct {
	Root                string
	Algorithm           hash.Algorithm
	DB                  *store.Store
	BloomFalsePositive  float64
	ExpectedObjectCount uint64
	HighWaterBytes      int64
	LowWaterBytes       int64
	MemCacheEntries     int
}

// Open prepares the CAS rooted at opts.Root, creating the objects
// directory if needed and scanning it to populate the Bloom filter.
func Open(opts Options) (*Store, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = hash.SHA256
	}
	if opts.MemCacheEntries == 0 {
		opts.MemCacheEntries = 256
	}

	objectsRoot := filepath.Join(opts.Root, "objects")
	if err := os.MkdirAll(objectsRoot, 0755); err != nil {
		return nil, &IOError{Path: objectsRoot, Err: err}
	}

	bf, err := newBloomFilter(opts.ExpectedObjectCount, opts.BloomFalsePositive)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New(opts.MemCacheEntries)
	if err != nil {
		return nil, err
	}

	s := &Store{
		root:           opts.Root,
		algo:           opts.Algorithm,
		db:             opts.DB,
		bloom:          bf,
		memCache:       cache,
		highWaterBytes: opts.HighWaterBytes,
		lowWaterBytes:  opts.LowWaterBytes,
	}

	go func() {
		if err := s.bloom.Rebuild(s.root, opts.ExpectedObjectCount); err != nil {
			log.WithComponent("cas").Warn().Err(err).Msg("bloom filter startup scan failed")
		}
	}()

	return s, nil
}

func (s *Store) blobPath(digest hash.Digest) string {
	h := digest.Hex
	if len(h) < 2 {
		h = h + "00"
	}
	return filepath.Join(s.root, "objects", h[:2], h[2:])
}

// Store writes content if absent, returning its digest in prefixed wire
// form ("sha256:..." or "xxh128:...").
func (s *Store) Store(ctx context.Context, content []byte) (string, error) {
	digest, err := hash.Sum(s.algo, content)
	if err != nil {
		return "", err
	}
	path := s.blobPath(digest)

	if _, err := os.Stat(path); err == nil {
		s.touch(ctx, digest, int64(len(content)))
		return digest.String(), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", &IOError{Path: filepath.Dir(path), Err: err}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return "", &IOError{Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", &IOError{Path: path, Err: err}
	}

	s.bloom.Add(digest.Hex)
	s.memCache.Add(digest.Hex, content)
	metrics.CASObjectsTotal.Inc()
	metrics.CASBytesTotal.Add(float64(len(content)))

	s.touch(ctx, digest, int64(len(content)))

	if s.highWaterBytes > 0 {
		if total, err := store.SumChunkSizes(ctx, s.db.DB()); err == nil && total > s.highWaterBytes {
			go s.Evict(context.Background(), s.lowWaterBytes)
		}
	}
	return digest.String(), nil
}

func (s *Store) touch(ctx context.Context, digest hash.Digest, size int64) {
	if err := store.TouchChunkAccess(ctx, s.db.DB(), digest.Hex, size); err != nil {
		log.WithComponent("cas").Warn().Err(err).Str("hash", digest.Hex).Msg("chunk_access update failed")
	}
	if err := store.UpsertCASContent(ctx, s.db.DB(), &store.CASContent{
		SHA256Hash: digest.Hex, ContentPath: s.blobPath(digest), Size: size,
	}); err != nil {
		log.WithComponent("cas").Warn().Err(err).Str("hash", digest.Hex).Msg("cas_content update failed")
	}
}

// Retrieve reads content by digest, checking the in-memory cache first.
func (s *Store) Retrieve(ctx context.Context, wireDigest string) ([]byte, error) {
	digest := hash.Parse(wireDigest)

	if v, ok := s.memCache.Get(digest.Hex); ok {
		s.touch(ctx, digest, int64(len(v.([]byte))))
		return v.([]byte), nil
	}

	path := s.blobPath(digest)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &IOError{Path: path, Err: err}
	}
	s.memCache.Add(digest.Hex, content)
	s.touch(ctx, digest, int64(len(content)))
	return content, nil
}

// ComputeHash hashes content without storing it. It returns an empty
// string if the store's configured algorithm is not supported.
func (s *Store) ComputeHash(content []byte) string {
	digest, err := hash.Sum(s.algo, content)
	if err != nil {
		return ""
	}
	return digest.String()
}

// Exists answers the fast negative-existence check: Bloom filter first,
// a filesystem stat only when the filter can't rule the digest out.
func (s *Store) Exists(wireDigest string) (bool, error) {
	digest := hash.Parse(wireDigest)
	if !s.bloom.MaybeContains(digest.Hex) {
		return false, nil
	}
	_, err := os.Stat(s.blobPath(digest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &IOError{Path: s.blobPath(digest), Err: err}
}

// Protect marks hashes as exempt from eviction regardless of recency.
// reconcileProtection calls it at the start of every Evict sweep to cover
// every hash referenced by a currently-installed trove.
func (s *Store) Protect(ctx context.Context, hashes []string) error {
	for _, h := range hashes {
		if err := store.SetChunkProtected(ctx, s.db.DB(), hash.Parse(h).Hex, true); err != nil {
			return err
		}
	}
	return nil
}

// Unprotect clears the protected bit, e.g. after a trove that referenced
// these hashes is removed.
func (s *Store) Unprotect(ctx context.Context, hashes []string) error {
	for _, h := range hashes {
		if err := store.SetChunkProtected(ctx, s.db.DB(), hash.Parse(h).Hex, false); err != nil {
			return err
		}
	}
	return nil
}

// reconcileProtection recomputes the protected bit against a fresh read
// of file_entries before a sweep runs, per §5: "relies on the fact that
// the metadata store reads a consistent snapshot of referenced hashes
// before each sweep." This is what makes Evict safe to call from any of
// its three call sites (CAS ingress, the background loop, the CLI's cas
// evict command) without every engine operation that installs or
// removes a file having to remember to keep a reference count in sync.
func (s *Store) reconcileProtection(ctx context.Context) error {
	referencedWire, err := store.ListReferencedHashes(ctx, s.db.DB())
	if err != nil {
		return err
	}
	referenced := make(map[string]struct{}, len(referencedWire))
	for _, w := range referencedWire {
		referenced[hash.Parse(w).Hex] = struct{}{}
	}

	currentlyProtected, err := store.ListProtectedHashes(ctx, s.db.DB())
	if err != nil {
		return err
	}
	stillProtected := make(map[string]struct{}, len(currentlyProtected))
	for _, h := range currentlyProtected {
		stillProtected[h] = struct{}{}
	}

	var toProtect, toUnprotect []string
	for h := range referenced {
		if _, ok := stillProtected[h]; !ok {
			toProtect = append(toProtect, h)
		}
	}
	for _, h := range currentlyProtected {
		if _, ok := referenced[h]; !ok {
			toUnprotect = append(toUnprotect, h)
		}
	}

	if err := s.Protect(ctx, toProtect); err != nil {
		return err
	}
	return s.Unprotect(ctx, toUnprotect)
}

// Evict runs LRU eviction until the store's tracked size is at or below
// targetLowWater, or there are no more eviction candidates; a
// targetLowWater of zero or less evicts every unprotected candidate. A failure to delete one candidate is
// logged and does not abort the sweep (§4.2 "Eviction is best-effort").
func (s *Store) Evict(ctx context.Context, targetLowWater int64) error {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	if err := s.reconcileProtection(ctx); err != nil {
		return err
	}

	for {
		total, err := store.SumChunkSizes(ctx, s.db.DB())
		if err != nil {
			return err
		}
		if targetLowWater > 0 && total <= targetLowWater {
			return nil
		}

		candidates, err := store.ListEvictionCandidates(ctx, s.db.DB(), 64)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}

		for _, c := range candidates {
			digest := hash.Digest{Algorithm: s.algo, Hex: c.Hash}
			path := s.blobPath(digest)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.WithComponent("cas").Warn().Err(err).Str("hash", c.Hash).Msg("eviction: failed to remove blob")
				continue
			}
			if err := store.DeleteCASContent(ctx, s.db.DB(), c.Hash); err != nil {
				log.WithComponent("cas").Warn().Err(err).Str("hash", c.Hash).Msg("eviction: failed to delete cas_content row")
			}
			if err := store.DeleteChunkAccess(ctx, s.db.DB(), c.Hash); err != nil {
				log.WithComponent("cas").Warn().Err(err).Str("hash", c.Hash).Msg("eviction: failed to delete chunk_access row")
			}
			s.memCache.Remove(c.Hash)
			metrics.CASEvictionsTotal.Inc()
		}
	}
}

// RunEvictionLoop triggers Evict on interval ticks until ctx is
// cancelled, the background loop described in §5 "Background eviction".
func (s *Store) RunEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, err := store.SumChunkSizes(ctx, s.db.DB())
			if err != nil {
				log.WithComponent("cas").Warn().Err(err).Msg("eviction loop: size query failed")
				continue
			}
			if s.highWaterBytes > 0 && total > s.highWaterBytes {
				if err := s.Evict(ctx, s.lowWaterBytes); err != nil {
					log.WithComponent("cas").Warn().Err(err).Msg("eviction loop: sweep failed")
				}
			}
		}
	}
}

// StoreChunked stores large content as a sequence of content-defined
// chunks and returns the manifest's own content hash as the file's root
// hash (§4.2 "Chunking"). Reconstruction is the engine's job via
// RetrieveManifest + Retrieve per chunk.
func (s *Store) StoreChunked(ctx context.Context, content []byte) (string, error) {
	parts := splitChunks(content)
	manifest := Manifest{TotalSize: int64(len(content))}
	var offset int64
	for _, part := range parts {
		h, err := s.Store(ctx, part)
		if err != nil {
			return "", err
		}
		manifest.Chunks = append(manifest.Chunks, ChunkRef{Hash: h, Size: int64(len(part)), Offset: offset})
		offset += int64(len(part))
	}
	encoded := encodeManifest(&manifest)
	return s.Store(ctx, encoded)
}

// RetrieveManifest loads and decodes a chunk manifest previously written
// by StoreChunked.
func (s *Store) RetrieveManifest(ctx context.Context, rootHash string) (*Manifest, error) {
	raw, err := s.Retrieve(ctx, rootHash)
	if err != nil {
		return nil, err
	}
	return decodeManifest(raw)
}

func encodeManifest(m *Manifest) []byte {
	buf := make([]byte, 0, 64*len(m.Chunks))
	buf = appendUvarint(buf, uint64(len(m.Chunks)))
	for _, c := range m.Chunks {
		raw, _ := hex.DecodeString(hash.Parse(c.Hash).Hex)
		buf = appendUvarint(buf, uint64(len(raw)))
		buf = append(buf, raw...)
		buf = appendUvarint(buf, uint64(c.Size))
		buf = appendUvarint(buf, uint64(c.Offset))
	}
	return buf
}

func decodeManifest(raw []byte) (*Manifest, error) {
	m := &Manifest{}
	pos := 0
	n, nn := readUvarint(raw[pos:])
	pos += nn
	for i := uint64(0); i < n; i++ {
		hlen, nn := readUvarint(raw[pos:])
		pos += nn
		h := raw[pos : pos+int(hlen)]
		pos += int(hlen)
		size, nn := readUvarint(raw[pos:])
		pos += nn
		offset, nn := readUvarint(raw[pos:])
		pos += nn
		m.Chunks = append(m.Chunks, ChunkRef{Hash: hex.EncodeToString(h), Size: int64(size), Offset: int64(offset)})
	}
	for _, c := range m.Chunks {
		if c.Offset+c.Size > m.TotalSize {
			m.TotalSize = c.Offset + c.Size
		}
	}
	return m, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [10]byte
	n := 0
	for v >= 0x80 {
		tmp[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	tmp[n] = byte(v)
	n++
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i, b := range buf {
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, i + 1
		}
		shift += 7
	}
	return v, len(buf)
}
