/*
Package adopt maintains a local cache of legacy package-manager records
(rpm/dpkg/pacman style: name, version, architecture, file list) and uses it
to adopt already-installed legacy packages as troves without re-deploying
their files.

# Architecture

The cache reuses the teacher storage engine's embedded, transactional
key-value store (bbolt) rather than the relational metadata database,
because legacy records are opaque blobs keyed by name with no referential
integrity requirements of their own — exactly the shape BoltDB is good at:

	┌──────────────────── LEGACY CACHE (bbolt) ─────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              LegacyCache                     │          │
	│  │  - File: <root>/legacy.db                    │          │
	│  │  - One bucket per source: rpm, dpkg, pacman  │          │
	│  │  - Key: package name, Value: JSON record     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │               Adopter                        │          │
	│  │  - AdoptTrack: metadata-only trove,          │          │
	│  │    sha256_hash left as an adopted marker,    │          │
	│  │    verified against this cache, not the CAS  │          │
	│  │  - AdoptFull: files pulled into the CAS and  │          │
	│  │    tracked exactly like a native install     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────────┘

AdoptedMarkerHash is the well-known sentinel §3 calls out: "a well-known
'adopted-track' marker hash for files tracked without content capture."
*/
package adopt
