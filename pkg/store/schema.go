package store

// schema is the baseline schema, created by migration version 1. Later
// migrations only add columns/tables/indexes; destructive changes are
// avoided so migrations stay idempotent across upgrades (§4.1: "Migrations
// are additive where possible; destructive migrations must be
// idempotent").
const schema = `
CREATE TABLE IF NOT EXISTS troves (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	type TEXT NOT NULL CHECK(type IN ('package','component','collection')),
	architecture TEXT,
	install_source TEXT NOT NULL DEFAULT 'file' CHECK(install_source IN ('file','repository','adopted-track','adopted-full')),
	install_reason TEXT NOT NULL DEFAULT 'explicit' CHECK(install_reason IN ('explicit','dependency')),
	selection_reason TEXT,
	description TEXT,
	pinned INTEGER NOT NULL DEFAULT 0,
	label_id INTEGER,
	installed_by_changeset_id INTEGER,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(name, version, architecture)
);
CREATE INDEX IF NOT EXISTS idx_troves_name ON troves(name);

CREATE TABLE IF NOT EXISTS components (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	UNIQUE(parent_trove_id, name)
);

CREATE TABLE IF NOT EXISTS file_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	sha256_hash TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	permissions INTEGER NOT NULL DEFAULT 0,
	owner TEXT,
	"group" TEXT,
	trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
	component_id INTEGER REFERENCES components(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_file_entries_trove ON file_entries(trove_id);

CREATE TABLE IF NOT EXISTS provides (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
	capability TEXT NOT NULL,
	version TEXT
);
CREATE INDEX IF NOT EXISTS idx_provides_capability ON provides(capability);
CREATE INDEX IF NOT EXISTS idx_provides_trove ON provides(trove_id);

CREATE TABLE IF NOT EXISTS dependencies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
	depends_on_name TEXT NOT NULL,
	version_constraint TEXT,
	dep_type TEXT NOT NULL DEFAULT 'runtime' CHECK(dep_type IN ('runtime','build','optional'))
);
CREATE INDEX IF NOT EXISTS idx_dependencies_trove ON dependencies(trove_id);

CREATE TABLE IF NOT EXISTS changesets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','applied','rolled_back')),
	applied_at DATETIME,
	rolled_back_at DATETIME,
	reversed_by_changeset_id INTEGER REFERENCES changesets(id),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS file_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	changeset_id INTEGER NOT NULL REFERENCES changesets(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	hash TEXT NOT NULL,
	action TEXT NOT NULL CHECK(action IN ('add','modify','remove')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_file_history_changeset ON file_history(changeset_id);

CREATE TABLE IF NOT EXISTS states (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	state_number INTEGER NOT NULL UNIQUE,
	summary TEXT NOT NULL,
	description TEXT,
	package_count INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 0,
	changeset_id INTEGER REFERENCES changesets(id),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS state_members (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	state_id INTEGER NOT NULL REFERENCES states(id) ON DELETE CASCADE,
	trove_name TEXT NOT NULL,
	trove_version TEXT NOT NULL,
	architecture TEXT,
	install_reason TEXT NOT NULL DEFAULT 'explicit'
);
CREATE INDEX IF NOT EXISTS idx_state_members_state ON state_members(state_id);

CREATE TABLE IF NOT EXISTS config_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	original_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pristine' CHECK(status IN ('pristine','modified','missing')),
	noreplace INTEGER NOT NULL DEFAULT 0,
	UNIQUE(trove_id, path)
);

CREATE TABLE IF NOT EXISTS config_backups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	config_file_id INTEGER NOT NULL REFERENCES config_files(id) ON DELETE CASCADE,
	backup_hash TEXT NOT NULL,
	reason TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cas_content (
	sha256_hash TEXT PRIMARY KEY,
	content_path TEXT NOT NULL,
	size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunk_access (
	hash TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	referenced_by INTEGER NOT NULL DEFAULT 0,
	protected INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chunk_access_lru ON chunk_access(protected, last_accessed, access_count);

CREATE TABLE IF NOT EXISTS repositories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	priority INTEGER NOT NULL DEFAULT 0,
	gpg_check INTEGER NOT NULL DEFAULT 1,
	metadata_expire INTEGER NOT NULL DEFAULT 21600
);

CREATE TABLE IF NOT EXISTS converted_packages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trove_id INTEGER NOT NULL REFERENCES troves(id) ON DELETE CASCADE,
	legacy_source TEXT NOT NULL,
	legacy_name TEXT NOT NULL,
	converted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
`
