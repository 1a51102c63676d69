// Package cachedb implements the relational package-lifecycle store of
// §3/§4.D, grounded on sbuild-cache/src/{schema,db}.rs but backed by
// database/sql + github.com/mattn/go-sqlite3 instead of rusqlite, following
// the database/sql idiom already used by distri/cmd/distri-checkupstream.
package cachedb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// DB wraps the underlying *sql.DB with sbuild's cache operations.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite cache database at path and
// ensures the schema is initialized.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "opening cache database", err)
	}
	db := &DB{conn: conn}
	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// OpenInMemory opens a private in-memory database, for tests and one-shot
// CLI invocations.
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite3", "file::memory:?cache=private&_foreign_keys=on")
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "opening in-memory cache database", err)
	}
	db := &DB{conn: conn}
	if err := db.initialize(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// initialize runs CREATE_SCHEMA/CREATE_VIEWS on every open (both use
// IF NOT EXISTS, so repeating them is harmless) and seeds schema_info only
// when it has no rows yet, i.e. the first time the database is opened.
func (db *DB) initialize() error {
	if _, err := db.conn.Exec(createSchema); err != nil {
		return xerrs.Wrap(xerrs.KindCache, "creating schema", err)
	}
	if _, err := db.conn.Exec(createViews); err != nil {
		return xerrs.Wrap(xerrs.KindCache, "creating views", err)
	}
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM schema_info`).Scan(&count); err != nil {
		return xerrs.Wrap(xerrs.KindCache, "checking schema_info", err)
	}
	if count == 0 {
		_, err := db.conn.Exec(
			`INSERT INTO schema_info (version, created_at, description) VALUES (?, ?, ?)`,
			SchemaVersion, timeToStr(time.Now()), "initial schema",
		)
		if err != nil {
			return xerrs.Wrap(xerrs.KindCache, "seeding schema_info", err)
		}
	}
	return nil
}

func scanPackage(row interface{ Scan(...interface{}) error }) (*Package, error) {
	var p Package
	var createdAt, updatedAt string
	var lastBuildDate sql.NullString
	var lastBuildStatus sql.NullString
	var isOutdated int
	err := row.Scan(
		&p.ID, &p.PkgID, &p.PkgName, &p.PkgFamily, &p.BuildScript, &p.GhcrPkg,
		&p.HostTriplet, &p.CurrentVersion, &p.UpstreamVersion, &isOutdated,
		&p.RecipeHash, &lastBuildDate, &p.LastBuildID, &lastBuildStatus,
		&p.GhcrTag, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.IsOutdated = isOutdated != 0
	if p.CreatedAt, err = strToTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = strToTime(updatedAt); err != nil {
		return nil, err
	}
	if lastBuildDate.Valid {
		t, err := strToTime(lastBuildDate.String)
		if err != nil {
			return nil, err
		}
		p.LastBuildDate = &t
	}
	if lastBuildStatus.Valid {
		s := BuildStatus(lastBuildStatus.String)
		p.LastBuildStatus = &s
	}
	return &p, nil
}

const packageColumns = `id, pkg_id, pkg_name, pkg_family, build_script, ghcr_pkg,
	host_triplet, current_version, upstream_version, is_outdated,
	recipe_hash, last_build_date, last_build_id, last_build_status,
	ghcr_tag, created_at, updated_at`

// GetOrCreatePackage idempotently returns the (pkg_id, host) row, creating
// it if absent (§4.D).
func (db *DB) GetOrCreatePackage(pkgID, pkgName, hostTriplet string) (*Package, error) {
	p, err := db.GetPackage(pkgID, hostTriplet)
	if err == nil {
		return p, nil
	}
	if !xerrs.Is(err, xerrs.KindPackageNotFound) {
		return nil, err
	}
	now := timeToStr(time.Now())
	_, err = db.conn.Exec(
		`INSERT INTO packages (pkg_id, pkg_name, host_triplet, is_outdated, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		pkgID, pkgName, hostTriplet, now, now,
	)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "inserting package", err)
	}
	return db.GetPackage(pkgID, hostTriplet)
}

// GetPackage fetches a single (pkg_id, host) row.
func (db *DB) GetPackage(pkgID, hostTriplet string) (*Package, error) {
	row := db.conn.QueryRow(
		`SELECT `+packageColumns+` FROM packages WHERE pkg_id = ? AND host_triplet = ?`,
		pkgID, hostTriplet,
	)
	p, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return nil, xerrs.New(xerrs.KindPackageNotFound, fmt.Sprintf("%s@%s", pkgID, hostTriplet))
	}
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "scanning package", err)
	}
	return p, nil
}

// UpdateBuildResult records a build outcome on the packages row and inserts
// a build_history entry in the same transaction (§4.D).
func (db *DB) UpdateBuildResult(pkgID, hostTriplet, version string, status BuildStatus, buildID string, ghcrTag, recipeHash *string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "beginning transaction", err)
	}
	defer tx.Rollback()

	p, err := scanPackage(tx.QueryRow(
		`SELECT `+packageColumns+` FROM packages WHERE pkg_id = ? AND host_triplet = ?`,
		pkgID, hostTriplet,
	))
	if err == sql.ErrNoRows {
		return xerrs.New(xerrs.KindPackageNotFound, fmt.Sprintf("%s@%s", pkgID, hostTriplet))
	}
	if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "scanning package", err)
	}
	now := timeToStr(time.Now())
	_, err = tx.Exec(
		`UPDATE packages SET current_version = ?, last_build_date = ?, last_build_id = ?,
		 last_build_status = ?, is_outdated = 0, ghcr_tag = COALESCE(?, ghcr_tag),
		 recipe_hash = COALESCE(?, recipe_hash), updated_at = ?
		 WHERE id = ?`,
		version, now, buildID, string(status), ghcrTag, recipeHash, now, p.ID,
	)
	if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "updating package build result", err)
	}
	_, err = tx.Exec(
		`INSERT INTO build_history (package_id, build_id, version, build_date, build_status)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ID, buildID, version, now, string(status),
	)
	if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "inserting build history", err)
	}
	if status == BuildStatusSuccess {
		if _, err := tx.Exec(`DELETE FROM failed_packages WHERE package_id = ?`, p.ID); err != nil {
			return xerrs.Wrap(xerrs.KindCache, "clearing failure on success", err)
		}
	}
	return tx.Commit()
}

// backoffHours implements §4.D's exponential backoff: 1h,2h,4h,...,24h clamp.
func backoffHours(failureCount int) int {
	if failureCount > 5 {
		return 24
	}
	h := 1 << (failureCount - 1)
	if h > 24 {
		h = 24
	}
	return h
}

// RecordFailure upserts failed_packages, incrementing failure_count and
// computing the next_retry_date per the backoff schedule (§4.D, §8
// "Backoff invariant").
func (db *DB) RecordFailure(pkgID, hostTriplet, errMsg string) error {
	p, err := db.GetPackage(pkgID, hostTriplet)
	if err != nil {
		return err
	}
	var existing int
	err = db.conn.QueryRow(`SELECT failure_count FROM failed_packages WHERE package_id = ?`, p.ID).Scan(&existing)
	now := time.Now()
	count := existing + 1
	if err == sql.ErrNoRows {
		count = 1
	} else if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "reading failed_packages", err)
	}
	nextRetry := now.Add(time.Duration(backoffHours(count)) * time.Hour)
	_, err = db.conn.Exec(
		`INSERT INTO failed_packages (package_id, failure_count, last_failure_date, last_error_message, next_retry_date)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(package_id) DO UPDATE SET
			failure_count = excluded.failure_count,
			last_failure_date = excluded.last_failure_date,
			last_error_message = excluded.last_error_message,
			next_retry_date = excluded.next_retry_date`,
		p.ID, count, timeToStr(now), errMsg, timeToStr(nextRetry),
	)
	if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "upserting failed_packages", err)
	}
	_, err = db.conn.Exec(
		`UPDATE packages SET last_build_status = ?, updated_at = ? WHERE id = ?`,
		string(BuildStatusFailed), timeToStr(now), p.ID,
	)
	if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "marking package failed", err)
	}
	return nil
}

// GetFailedPackage reads the failed_packages row for (pkg_id, host), if
// any. It returns (nil, nil) when the package has no recorded failure —
// callers (rebuild policy, report rendering) treat "no row" and "no
// failure" identically rather than as an error.
func (db *DB) GetFailedPackage(pkgID, hostTriplet string) (*FailedPackage, error) {
	p, err := db.GetPackage(pkgID, hostTriplet)
	if xerrs.Is(err, xerrs.KindPackageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fp FailedPackage
	var lastFailureDate string
	var nextRetry sql.NullString
	row := db.conn.QueryRow(
		`SELECT id, package_id, failure_count, last_failure_date, last_error_message, next_retry_date
		 FROM failed_packages WHERE package_id = ?`,
		p.ID,
	)
	err = row.Scan(&fp.ID, &fp.PackageID, &fp.FailureCount, &lastFailureDate, &fp.LastErrorMessage, &nextRetry)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "scanning failed_packages", err)
	}
	if fp.LastFailureDate, err = strToTime(lastFailureDate); err != nil {
		return nil, err
	}
	if nextRetry.Valid {
		t, err := strToTime(nextRetry.String)
		if err != nil {
			return nil, err
		}
		fp.NextRetryDate = &t
	}
	return &fp, nil
}

// ClearFailure removes the failed_packages row for (pkg_id, host), if any.
func (db *DB) ClearFailure(pkgID, hostTriplet string) error {
	p, err := db.GetPackage(pkgID, hostTriplet)
	if err != nil {
		return err
	}
	if _, err := db.conn.Exec(`DELETE FROM failed_packages WHERE package_id = ?`, p.ID); err != nil {
		return xerrs.Wrap(xerrs.KindCache, "deleting failed_packages", err)
	}
	return nil
}

// MarkOutdated sets is_outdated=1 and records the discovered upstream
// version.
func (db *DB) MarkOutdated(pkgID, hostTriplet, upstreamVersion string) error {
	p, err := db.GetPackage(pkgID, hostTriplet)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`UPDATE packages SET is_outdated = 1, upstream_version = ?, updated_at = ? WHERE id = ?`,
		upstreamVersion, timeToStr(time.Now()), p.ID,
	)
	if err != nil {
		return xerrs.Wrap(xerrs.KindCache, "marking package outdated", err)
	}
	return nil
}

// IsRetryAllowed reports whether a build of (pkg_id, host) may proceed now:
// true if no package row exists, if it has no failure entry, or if
// next_retry_date has passed (§4.D).
func (db *DB) IsRetryAllowed(pkgID, hostTriplet string) (bool, error) {
	p, err := db.GetPackage(pkgID, hostTriplet)
	if xerrs.Is(err, xerrs.KindPackageNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	var nextRetry sql.NullString
	err = db.conn.QueryRow(`SELECT next_retry_date FROM failed_packages WHERE package_id = ?`, p.ID).Scan(&nextRetry)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, xerrs.Wrap(xerrs.KindCache, "reading failed_packages", err)
	}
	if !nextRetry.Valid {
		return true, nil
	}
	t, err := strToTime(nextRetry.String)
	if err != nil {
		return false, xerrs.Wrap(xerrs.KindCache, "parsing next_retry_date", err)
	}
	return !time.Now().Before(t), nil
}

// GetPackagesNeedingRebuild returns the rows matching
// v_packages_needing_rebuild for hostTriplet, ordered by pkg_name.
func (db *DB) GetPackagesNeedingRebuild(hostTriplet string) ([]*Package, error) {
	rows, err := db.conn.Query(
		`SELECT `+packageColumns+` FROM v_packages_needing_rebuild WHERE host_triplet = ? ORDER BY pkg_name`,
		hostTriplet,
	)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "querying needing-rebuild view", err)
	}
	defer rows.Close()
	var out []*Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, xerrs.Wrap(xerrs.KindCache, "scanning needing-rebuild row", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPackages implements §4.D's filter combinations over status and
// include_outdated.
func (db *DB) ListPackages(hostTriplet string, status *BuildStatus, includeOutdated bool) ([]*Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE host_triplet = ?`
	args := []interface{}{hostTriplet}
	switch {
	case status != nil && includeOutdated:
		query += ` AND (last_build_status = ? OR is_outdated = 1)`
		args = append(args, string(*status))
	case status != nil && !includeOutdated:
		query += ` AND last_build_status = ?`
		args = append(args, string(*status))
	case status == nil && includeOutdated:
		query += ` AND is_outdated = 1`
	}
	query += ` ORDER BY pkg_name`
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "listing packages", err)
	}
	defer rows.Close()
	var out []*Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, xerrs.Wrap(xerrs.KindCache, "scanning package row", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentBuild pairs a package row with one of its build_history entries.
type RecentBuild struct {
	Package *Package
	History BuildHistory
}

// GetRecentBuilds returns the most recent build_history rows for
// hostTriplet, newest first.
func (db *DB) GetRecentBuilds(hostTriplet string, limit int) ([]RecentBuild, error) {
	rows, err := db.conn.Query(
		`SELECT `+packageColumns+`,
			bh.id, bh.build_id, bh.version, bh.build_date, bh.build_status,
			bh.duration_seconds, bh.artifact_size_bytes, bh.ghcr_tag, bh.ghcr_digest,
			bh.build_log_url, bh.error_message
		 FROM build_history bh
		 JOIN packages p ON p.id = bh.package_id
		 WHERE p.host_triplet = ?
		 ORDER BY bh.build_date DESC
		 LIMIT ?`,
		hostTriplet, limit,
	)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindCache, "querying recent builds", err)
	}
	defer rows.Close()
	var out []RecentBuild
	for rows.Next() {
		var p Package
		var createdAt, updatedAt string
		var lastBuildDate sql.NullString
		var lastBuildStatus sql.NullString
		var isOutdated int
		var h BuildHistory
		var buildDate string
		err := rows.Scan(
			&p.ID, &p.PkgID, &p.PkgName, &p.PkgFamily, &p.BuildScript, &p.GhcrPkg,
			&p.HostTriplet, &p.CurrentVersion, &p.UpstreamVersion, &isOutdated,
			&p.RecipeHash, &lastBuildDate, &p.LastBuildID, &lastBuildStatus,
			&p.GhcrTag, &createdAt, &updatedAt,
			&h.ID, &h.BuildID, &h.Version, &buildDate, &h.BuildStatus,
			&h.DurationSeconds, &h.ArtifactSizeBytes, &h.GhcrTag, &h.GhcrDigest,
			&h.BuildLogURL, &h.ErrorMessage,
		)
		if err != nil {
			return nil, xerrs.Wrap(xerrs.KindCache, "scanning recent build row", err)
		}
		p.IsOutdated = isOutdated != 0
		if p.CreatedAt, err = strToTime(createdAt); err != nil {
			return nil, err
		}
		if p.UpdatedAt, err = strToTime(updatedAt); err != nil {
			return nil, err
		}
		if lastBuildDate.Valid {
			t, _ := strToTime(lastBuildDate.String)
			p.LastBuildDate = &t
		}
		if lastBuildStatus.Valid {
			s := BuildStatus(lastBuildStatus.String)
			p.LastBuildStatus = &s
		}
		if h.BuildDate, err = strToTime(buildDate); err != nil {
			return nil, err
		}
		h.PackageID = p.ID
		out = append(out, RecentBuild{Package: &p, History: h})
	}
	return out, rows.Err()
}

// GetStats reads the v_build_stats view for one host triplet (§8 scenario 2).
func (db *DB) GetStats(hostTriplet string) (Stats, error) {
	var s Stats
	err := db.conn.QueryRow(
		`SELECT total_packages, successful, failed, pending, outdated FROM v_build_stats WHERE host_triplet = ?`,
		hostTriplet,
	).Scan(&s.TotalPackages, &s.Successful, &s.Failed, &s.Pending, &s.Outdated)
	if err == sql.ErrNoRows {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, xerrs.Wrap(xerrs.KindCache, "querying build stats", err)
	}
	return s, nil
}

// PruneHistory deletes all but the most recent keepLastPerPackage
// build_history rows per package, returning the number of rows deleted
// (§4.D, SPEC_FULL supplemented feature #2).
func (db *DB) PruneHistory(keepLastPerPackage int) (int64, error) {
	res, err := db.conn.Exec(
		`DELETE FROM build_history WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY package_id ORDER BY build_date DESC) AS rn
				FROM build_history
			) WHERE rn > ?
		)`,
		keepLastPerPackage,
	)
	if err != nil {
		return 0, xerrs.Wrap(xerrs.KindCache, "pruning build history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, xerrs.Wrap(xerrs.KindCache, "counting pruned rows", err)
	}
	return n, nil
}
