package rebuild

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkgforge/sbuild/internal/cachedb"
)

func strp(s string) *string { return &s }

func TestDecideNewPackage(t *testing.T) {
	d := Decide(Input{Package: nil, RecipeHash: "abc"})
	require.True(t, d.ShouldRebuild)
	require.Equal(t, ReasonNewPackage, d.Reason)
}

func TestDecideForced(t *testing.T) {
	pkg := &cachedb.Package{RecipeHash: strp("abc")}
	d := Decide(Input{Package: pkg, RecipeHash: "abc", Forced: true})
	require.True(t, d.ShouldRebuild)
	require.Equal(t, ReasonForced, d.Reason)
}

func TestDecideRecipeChanged(t *testing.T) {
	pkg := &cachedb.Package{RecipeHash: strp("old-hash")}
	d := Decide(Input{Package: pkg, RecipeHash: "new-hash"})
	require.True(t, d.ShouldRebuild)
	require.Equal(t, ReasonRecipeChanged, d.Reason)
}

func TestDecideVersionUpdated(t *testing.T) {
	pkg := &cachedb.Package{RecipeHash: strp("h"), CurrentVersion: strp("1.0.0")}
	d := Decide(Input{Package: pkg, RecipeHash: "h", RecipeVersion: "1.1.0"})
	require.True(t, d.ShouldRebuild)
	require.Equal(t, ReasonVersionUpdated, d.Reason)
}

func TestDecideRetryFailed(t *testing.T) {
	failed := cachedb.BuildStatusFailed
	pkg := &cachedb.Package{
		RecipeHash:      strp("h"),
		CurrentVersion:  strp("1.0.0"),
		LastBuildStatus: &failed,
	}
	d := Decide(Input{
		Package: pkg, RecipeHash: "h", RecipeVersion: "1.0.0", RetryAllowed: true,
		FailureCount: 3, LastError: "boom",
	})
	require.True(t, d.ShouldRebuild)
	require.Equal(t, ReasonRetryFailed, d.Reason)
	require.Equal(t, "attempt 3: boom", d.Detail)
}

func TestDecideRetryNotAllowedFallsThroughToSkip(t *testing.T) {
	failed := cachedb.BuildStatusFailed
	now := time.Now()
	pkg := &cachedb.Package{
		RecipeHash:      strp("h"),
		CurrentVersion:  strp("1.0.0"),
		LastBuildStatus: &failed,
		LastBuildDate:   &now,
	}
	d := Decide(Input{
		Package: pkg, RecipeHash: "h", RecipeVersion: "1.0.0",
		RetryAllowed: false, Now: now,
	})
	require.False(t, d.ShouldRebuild)
	require.Equal(t, ReasonSkip, d.Reason)
}

func TestDecideStaleBuild(t *testing.T) {
	success := cachedb.BuildStatusSuccess
	old := time.Now().Add(-100 * 24 * time.Hour)
	pkg := &cachedb.Package{
		RecipeHash:      strp("h"),
		CurrentVersion:  strp("1.0.0"),
		LastBuildStatus: &success,
		LastBuildDate:   &old,
	}
	d := Decide(Input{
		Package: pkg, RecipeHash: "h", RecipeVersion: "1.0.0",
		StaleThreshold: DefaultStaleDays * 24 * time.Hour, Now: time.Now(),
	})
	require.True(t, d.ShouldRebuild)
	require.Equal(t, ReasonStaleBuild, d.Reason)
}

func TestDecideSkipWhenNothingChanged(t *testing.T) {
	success := cachedb.BuildStatusSuccess
	recent := time.Now().Add(-24 * time.Hour)
	pkg := &cachedb.Package{
		RecipeHash:      strp("h"),
		CurrentVersion:  strp("1.0.0"),
		LastBuildStatus: &success,
		LastBuildDate:   &recent,
	}
	d := Decide(Input{
		Package: pkg, RecipeHash: "h", RecipeVersion: "1.0.0",
		StaleThreshold: DefaultStaleDays * 24 * time.Hour, Now: time.Now(),
	})
	require.False(t, d.ShouldRebuild)
	require.Equal(t, ReasonSkip, d.Reason)
}
