package cachedb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// §8 scenario 1: CRUD on cache.
func TestGetOrCreateAndUpdateBuildResult(t *testing.T) {
	db := openTestDB(t)

	p, err := db.GetOrCreatePackage("github.com.test.pkg", "testpkg", "x86_64-Linux")
	require.NoError(t, err)
	require.Equal(t, "testpkg", p.PkgName)
	require.False(t, p.IsOutdated)

	ghcrTag := "v1.0.0-x86_64-Linux"
	recipeHash := "abc123"
	err = db.UpdateBuildResult(p.PkgID, p.HostTriplet, "1.0.0", BuildStatusSuccess, "build-123", &ghcrTag, &recipeHash)
	require.NoError(t, err)

	got, err := db.GetPackage("github.com.test.pkg", "x86_64-Linux")
	require.NoError(t, err)
	require.NotNil(t, got.CurrentVersion)
	require.Equal(t, "1.0.0", *got.CurrentVersion)
	require.NotNil(t, got.LastBuildStatus)
	require.Equal(t, BuildStatusSuccess, *got.LastBuildStatus)
	require.False(t, got.IsOutdated)
}

// §8 invariant: success clears is_outdated and, after ClearFailure, leaves
// no failed_packages row.
func TestSuccessClearsOutdatedAndFailure(t *testing.T) {
	db := openTestDB(t)
	p, err := db.GetOrCreatePackage("pkg.a", "a", "x86_64-Linux")
	require.NoError(t, err)
	require.NoError(t, db.MarkOutdated(p.PkgID, p.HostTriplet, "2.0.0"))
	require.NoError(t, db.RecordFailure(p.PkgID, p.HostTriplet, "boom"))

	require.NoError(t, db.UpdateBuildResult(p.PkgID, p.HostTriplet, "2.0.0", BuildStatusSuccess, "b1", nil, nil))
	require.NoError(t, db.ClearFailure(p.PkgID, p.HostTriplet))

	got, err := db.GetPackage(p.PkgID, p.HostTriplet)
	require.NoError(t, err)
	require.False(t, got.IsOutdated)

	allowed, err := db.IsRetryAllowed(p.PkgID, p.HostTriplet)
	require.NoError(t, err)
	require.True(t, allowed)
}

// §8 backoff invariant: next_retry - last_failure = min(2^(k-1), 24) hours.
func TestBackoffSchedule(t *testing.T) {
	cases := []struct {
		count int
		hours int
	}{
		{1, 1}, {2, 2}, {3, 4}, {4, 8}, {5, 16}, {6, 24}, {7, 24}, {10, 24},
	}
	for _, c := range cases {
		require.Equal(t, c.hours, backoffHours(c.count), "failure_count=%d", c.count)
	}
}

func TestRecordFailureIncrementsCount(t *testing.T) {
	db := openTestDB(t)
	p, err := db.GetOrCreatePackage("pkg.b", "b", "x86_64-Linux")
	require.NoError(t, err)

	require.NoError(t, db.RecordFailure(p.PkgID, p.HostTriplet, "err1"))
	allowed, err := db.IsRetryAllowed(p.PkgID, p.HostTriplet)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, db.RecordFailure(p.PkgID, p.HostTriplet, "err2"))
	fp, err := db.GetFailedPackage(p.PkgID, p.HostTriplet)
	require.NoError(t, err)
	require.Equal(t, 2, fp.FailureCount)
	got, err := db.GetPackage(p.PkgID, p.HostTriplet)
	require.NoError(t, err)
	require.NotNil(t, got.LastBuildStatus)
	require.Equal(t, BuildStatusFailed, *got.LastBuildStatus)
}

// §8 scenario 2: stats.
func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetOrCreatePackage("pkg1", "pkg1", "x86_64-Linux")
	require.NoError(t, err)
	_, err = db.GetOrCreatePackage("pkg2", "pkg2", "x86_64-Linux")
	require.NoError(t, err)

	require.NoError(t, db.UpdateBuildResult("pkg1", "x86_64-Linux", "1.0.0", BuildStatusSuccess, "b1", nil, nil))

	stats, err := db.GetStats("x86_64-Linux")
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalPackages)
	require.Equal(t, 1, stats.Successful)
	require.Equal(t, 0, stats.Failed)
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, 0, stats.Outdated)
}

func TestGetPackagesNeedingRebuild(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetOrCreatePackage("pkg1", "pkg1", "x86_64-Linux")
	require.NoError(t, err)
	_, err = db.GetOrCreatePackage("pkg2", "pkg2", "x86_64-Linux")
	require.NoError(t, err)
	require.NoError(t, db.UpdateBuildResult("pkg1", "x86_64-Linux", "1.0.0", BuildStatusSuccess, "b1", nil, nil))

	rows, err := db.GetPackagesNeedingRebuild("x86_64-Linux")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "pkg2", rows[0].PkgName)
}

func TestListPackagesFilters(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetOrCreatePackage("pkg1", "pkg1", "x86_64-Linux")
	require.NoError(t, err)
	_, err = db.GetOrCreatePackage("pkg2", "pkg2", "x86_64-Linux")
	require.NoError(t, err)
	require.NoError(t, db.UpdateBuildResult("pkg1", "x86_64-Linux", "1.0.0", BuildStatusSuccess, "b1", nil, nil))
	require.NoError(t, db.MarkOutdated("pkg2", "x86_64-Linux", "2.0.0"))

	success := BuildStatusSuccess
	rows, err := db.ListPackages("x86_64-Linux", &success, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = db.ListPackages("x86_64-Linux", nil, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "pkg2", rows[0].PkgName)

	rows, err = db.ListPackages("x86_64-Linux", nil, false)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestPruneHistory(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetOrCreatePackage("pkg1", "pkg1", "x86_64-Linux")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, db.UpdateBuildResult("pkg1", "x86_64-Linux", "1.0.0", BuildStatusSuccess, "b", nil, nil))
	}
	deleted, err := db.PruneHistory(2)
	require.NoError(t, err)
	require.Equal(t, int64(3), deleted)
}
