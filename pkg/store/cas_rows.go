package store

import (
	"context"
	"database/sql"
	"time"
)

// CASContent maps a content hash to its location under the CAS root,
// the index pkg/cas consults before touching the filesystem.
type CASContent struct {
	SHA256Hash  string
	ContentPath string
	Size        int64
}

// ChunkAccess is the LRU bookkeeping row pkg/cas uses to decide what to
// evict under storage pressure (§4.2): access recency, access count, and
// a protected bit that exempts content currently referenced by an active
// state from eviction regardless of recency. The protected bit is the
// authoritative signal; pkg/cas recomputes it against a live read of
// file_entries immediately before every eviction sweep (§5, "relies on
// the fact that the metadata store reads a consistent snapshot of
// referenced hashes before each sweep"), rather than relying on callers
// to keep a reference count correctly incremented and decremented.
type ChunkAccess struct {
	Hash         string
	Size         int64
	AccessCount  int64
	LastAccessed time.Time
	ReferencedBy int64
	Protected    bool
}

// UpsertCASContent records or updates the on-disk location of a content
// hash.
func UpsertCASContent(ctx context.Context, q Querier, c *CASContent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cas_content (sha256_hash, content_path, size) VALUES (?, ?, ?)
		ON CONFLICT(sha256_hash) DO UPDATE SET content_path = excluded.content_path, size = excluded.size`,
		c.SHA256Hash, c.ContentPath, c.Size)
	return dbErr("UpsertCASContent", err)
}

// FindCASContent looks up the on-disk location of a content hash.
func FindCASContent(ctx context.Context, q Querier, hash string) (*CASContent, error) {
	row := q.QueryRowContext(ctx, `SELECT sha256_hash, content_path, size FROM cas_content WHERE sha256_hash = ?`, hash)
	c := &CASContent{}
	if err := row.Scan(&c.SHA256Hash, &c.ContentPath, &c.Size); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dbErr("FindCASContent", err)
	}
	return c, nil
}

// DeleteCASContent removes the index row for a content hash, called
// after the underlying blob is deleted during eviction.
func DeleteCASContent(ctx context.Context, q Querier, hash string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM cas_content WHERE sha256_hash = ?`, hash)
	return dbErr("DeleteCASContent", err)
}

// TouchChunkAccess bumps the access count and last_accessed timestamp
// for hash, creating the row with referenced_by=1 if it doesn't exist
// yet. Every CAS retrieve and store call goes through this. referenced_by
// is descriptive only; eviction eligibility is decided by the protected
// bit, which pkg/cas reconciles against file_entries before each sweep.
func TouchChunkAccess(ctx context.Context, q Querier, hash string, size int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO chunk_access (hash, size, access_count, last_accessed, referenced_by, protected)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP, 1, 0)
		ON CONFLICT(hash) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed = CURRENT_TIMESTAMP`,
		hash, size)
	return dbErr("TouchChunkAccess", err)
}

// SetChunkProtected marks a chunk as protected (referenced by the active
// state) or eligible for eviction.
func SetChunkProtected(ctx context.Context, q Querier, hash string, protected bool) error {
	_, err := q.ExecContext(ctx, `UPDATE chunk_access SET protected = ? WHERE hash = ?`, protected, hash)
	return dbErr("SetChunkProtected", err)
}

// ListReferencedHashes returns the distinct set of content hashes cited
// by file_entries, in the wire form ("<algo>:<hex>") stored there. This
// is the "consistent snapshot of referenced hashes" §5 requires pkg/cas
// to read before every eviction sweep.
func ListReferencedHashes(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT sha256_hash FROM file_entries`)
	if err != nil {
		return nil, dbErr("ListReferencedHashes", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, dbErr("ListReferencedHashes: scan", err)
		}
		out = append(out, h)
	}
	return out, dbErr("ListReferencedHashes: rows", rows.Err())
}

// ListProtectedHashes returns every chunk_access hash currently marked
// protected, in chunk_access's own bare-hex form.
func ListProtectedHashes(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT hash FROM chunk_access WHERE protected = 1`)
	if err != nil {
		return nil, dbErr("ListProtectedHashes", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, dbErr("ListProtectedHashes: scan", err)
		}
		out = append(out, h)
	}
	return out, dbErr("ListProtectedHashes: rows", rows.Err())
}

// ListEvictionCandidates returns unprotected chunks ordered for LRU
// eviction: least recently accessed first, then by lowest access count,
// up to limit rows. Safety against evicting a still-referenced chunk
// comes from the protected bit, which the caller must have reconciled
// against file_entries first — this query trusts that bit alone.
func ListEvictionCandidates(ctx context.Context, q Querier, limit int) ([]*ChunkAccess, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT hash, size, access_count, last_accessed, referenced_by, protected
		FROM chunk_access
		WHERE protected = 0
		ORDER BY last_accessed ASC, access_count ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, dbErr("ListEvictionCandidates", err)
	}
	defer rows.Close()

	var out []*ChunkAccess
	for rows.Next() {
		c := &ChunkAccess{}
		if err := rows.Scan(&c.Hash, &c.Size, &c.AccessCount, &c.LastAccessed, &c.ReferencedBy, &c.Protected); err != nil {
			return nil, dbErr("ListEvictionCandidates: scan", err)
		}
		out = append(out, c)
	}
	return out, dbErr("ListEvictionCandidates: rows", rows.Err())
}

// DeleteChunkAccess removes the bookkeeping row for an evicted chunk.
func DeleteChunkAccess(ctx context.Context, q Querier, hash string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM chunk_access WHERE hash = ?`, hash)
	return dbErr("DeleteChunkAccess", err)
}

// SumChunkSizes returns the total bytes tracked across all chunks, used
// to decide whether CASHighWaterBytes has been crossed.
func SumChunkSizes(ctx context.Context, q Querier) (int64, error) {
	row := q.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM chunk_access`)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, dbErr("SumChunkSizes", err)
	}
	return total, nil
}
