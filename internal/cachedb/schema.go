package cachedb

// SchemaVersion is the current cache schema version (§6 "Cache database").
const SchemaVersion = 1

// createSchema mirrors sbuild-cache/src/schema.rs's CREATE_SCHEMA: four
// tables plus schema_info, with the CHECK/UNIQUE/FOREIGN KEY constraints of
// §3's data model.
const createSchema = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	description TEXT
);

CREATE TABLE IF NOT EXISTS packages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pkg_id TEXT NOT NULL,
	pkg_name TEXT NOT NULL,
	pkg_family TEXT,
	build_script TEXT,
	ghcr_pkg TEXT,
	host_triplet TEXT NOT NULL,
	current_version TEXT,
	upstream_version TEXT,
	is_outdated INTEGER NOT NULL DEFAULT 0 CHECK (is_outdated IN (0, 1)),
	recipe_hash TEXT,
	last_build_date TEXT,
	last_build_id TEXT,
	last_build_status TEXT CHECK (last_build_status IN ('success', 'failed', 'pending', 'skipped')),
	ghcr_tag TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (pkg_id, host_triplet)
);

CREATE TABLE IF NOT EXISTS build_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	build_id TEXT NOT NULL,
	version TEXT NOT NULL,
	build_date TEXT NOT NULL,
	build_status TEXT NOT NULL CHECK (build_status IN ('success', 'failed', 'skipped')),
	duration_seconds INTEGER,
	artifact_size_bytes INTEGER,
	ghcr_tag TEXT,
	ghcr_digest TEXT,
	build_log_url TEXT,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS version_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	upstream_source TEXT,
	upstream_version TEXT NOT NULL,
	checked_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	UNIQUE (package_id, upstream_source)
);

CREATE TABLE IF NOT EXISTS failed_packages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	package_id INTEGER NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
	failure_count INTEGER NOT NULL DEFAULT 1 CHECK (failure_count >= 1),
	last_failure_date TEXT NOT NULL,
	last_error_message TEXT,
	next_retry_date TEXT,
	UNIQUE (package_id)
);

CREATE INDEX IF NOT EXISTS idx_packages_host_triplet ON packages(host_triplet);
CREATE INDEX IF NOT EXISTS idx_packages_outdated ON packages(is_outdated) WHERE is_outdated = 1;
CREATE INDEX IF NOT EXISTS idx_packages_last_status ON packages(last_build_status);
CREATE INDEX IF NOT EXISTS idx_packages_name ON packages(pkg_name);
CREATE INDEX IF NOT EXISTS idx_build_history_date ON build_history(build_date);
CREATE INDEX IF NOT EXISTS idx_version_cache_expires ON version_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_failed_packages_retry ON failed_packages(next_retry_date);
`

// createViews mirrors sbuild-cache/src/schema.rs's CREATE_VIEWS.
const createViews = `
CREATE VIEW IF NOT EXISTS v_packages_needing_rebuild AS
SELECT p.*
FROM packages p
LEFT JOIN failed_packages f ON f.package_id = p.id
WHERE (p.is_outdated = 1 OR p.last_build_status IS NULL OR p.last_build_status = 'pending')
  AND (f.next_retry_date IS NULL OR f.next_retry_date <= strftime('%Y-%m-%dT%H:%M:%fZ', 'now'));

CREATE VIEW IF NOT EXISTS v_build_stats AS
SELECT
	host_triplet,
	COUNT(*) AS total_packages,
	SUM(CASE WHEN last_build_status = 'success' THEN 1 ELSE 0 END) AS successful,
	SUM(CASE WHEN last_build_status = 'failed' THEN 1 ELSE 0 END) AS failed,
	SUM(CASE WHEN last_build_status IS NULL OR last_build_status = 'pending' THEN 1 ELSE 0 END) AS pending,
	SUM(CASE WHEN is_outdated = 1 THEN 1 ELSE 0 END) AS outdated
FROM packages
GROUP BY host_triplet;
`
