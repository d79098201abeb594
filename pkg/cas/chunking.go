package cas

// ChunkRef is one entry in a chunk manifest: a content-defined chunk's
// hash, size, and offset within the reconstructed whole file (§4.2
// "Chunking").
type ChunkRef struct {
	Hash   string
	Size   int64
	Offset int64
}

// Manifest is the ordered chunk list a large file's root hash resolves
// to. Reconstruction (concatenating chunk bytes in order) is the
// engine's concern; the CAS only stores and retrieves the chunks
// themselves plus this manifest under its own content hash.
type Manifest struct {
	TotalSize int64
	Chunks    []ChunkRef
}

const (
	minChunkSize = 16 * 1024
	avgChunkSize = 64 * 1024
	maxChunkSize = 256 * 1024

	gearPolynomialMask = (1 << 13) - 1 // a cut fires with probability 2^-13 per byte past minChunkSize, so chunks average about 16KiB + 8KiB = 24KiB
)

// gearTable is a fixed pseudo-random table used by the gear-hash rolling
// checksum below. Values are arbitrary but must be stable across runs so
// the same content always splits into the same chunks (required for
// deduplication to find matches).
var gearTable = buildGearTable()

func buildGearTable() [256]uint64 {
	var t [256]uint64
	// A small fixed-seed LCG, not a cryptographic generator: we only
	// need well-distributed, stable constants.
	seed := uint64(0x9E3779B97F4A7C15)
	for i := range t {
		seed = seed*6364136223846793005 + 1442695040888963407
		t[i] = seed
	}
	return t
}

// splitChunks splits data into content-defined chunks using a gear-hash
// rolling checksum (FastCDC family). A chunk boundary is declared when
// the rolling hash's bits selected by gearPolynomialMask are all zero, subject to
// min/max chunk size bounds so pathological input can't produce
// degenerate single-byte or unbounded chunks.
func splitChunks(data []byte) [][]byte {
	if len(data) <= minChunkSize {
		return [][]byte{data}
	}

	var chunks [][]byte
	start := 0
	var hash uint64
	for i := 0; i < len(data); i++ {
		hash = (hash << 1) + gearTable[data[i]]
		size := i - start + 1
		if size < minChunkSize {
			continue
		}
		if size >= maxChunkSize || (hash&gearPolynomialMask) == 0 {
			chunks = append(chunks, data[start:i+1])
			start = i + 1
			hash = 0
		}
	}
	if start < len(data) {
		chunks = append(chunks, data[start:])
	}
	return chunks
}
