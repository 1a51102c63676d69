package cachedb

import "time"

// BuildStatus is the closed set of statuses tracked per package/build (§3).
type BuildStatus string

const (
	BuildStatusSuccess BuildStatus = "success"
	BuildStatusFailed  BuildStatus = "failed"
	BuildStatusPending BuildStatus = "pending"
	BuildStatusSkipped BuildStatus = "skipped"
)

// Package is one row of the packages table, scoped by (pkg_id, host_triplet).
type Package struct {
	ID               int64
	PkgID            string
	PkgName          string
	PkgFamily        *string
	BuildScript      *string
	GhcrPkg          *string
	HostTriplet      string
	CurrentVersion   *string
	UpstreamVersion  *string
	IsOutdated       bool
	RecipeHash       *string
	LastBuildDate    *time.Time
	LastBuildID      *string
	LastBuildStatus  *BuildStatus
	GhcrTag          *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BuildHistory is one row of the build_history table.
type BuildHistory struct {
	ID                int64
	PackageID         int64
	BuildID           string
	Version           string
	BuildDate         time.Time
	BuildStatus       BuildStatus
	DurationSeconds   *int64
	ArtifactSizeBytes *int64
	GhcrTag           *string
	GhcrDigest        *string
	BuildLogURL       *string
	ErrorMessage      *string
}

// VersionCacheEntry is one row of the version_cache table.
type VersionCacheEntry struct {
	ID              int64
	PackageID       int64
	UpstreamSource  *string
	UpstreamVersion string
	CheckedAt       time.Time
	ExpiresAt       time.Time
}

// FailedPackage is one row of the failed_packages table.
type FailedPackage struct {
	ID               int64
	PackageID        int64
	FailureCount     int
	LastFailureDate  time.Time
	LastErrorMessage *string
	NextRetryDate    *time.Time
}

// Stats is the result of GetStats (§4.D, §8 scenario 2).
type Stats struct {
	TotalPackages int
	Successful    int
	Failed        int
	Pending       int
	Outdated      int
}

const rfc3339 = time.RFC3339

func timeToStr(t time.Time) string { return t.UTC().Format(rfc3339) }

func strToTime(s string) (time.Time, error) {
	return time.Parse(rfc3339, s)
}
