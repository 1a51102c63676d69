package rebuild

import (
	"fmt"
	"time"

	"github.com/pkgforge/sbuild/internal/cachedb"
)

// Reason names why a rebuild was (or wasn't) decided, mirroring the
// decision tree of §4.G.
type Reason string

const (
	ReasonNewPackage     Reason = "new_package"
	ReasonForced         Reason = "forced"
	ReasonRecipeChanged  Reason = "recipe_changed"
	ReasonVersionUpdated Reason = "version_updated"
	ReasonRetryFailed    Reason = "retry_failed"
	ReasonStaleBuild     Reason = "stale_build"
	ReasonSkip           Reason = "skip"
)

// Decision is the outcome of evaluating Decide for one (recipe, cache row)
// pair.
type Decision struct {
	ShouldRebuild bool
	Reason        Reason
	Detail        string
	Priority      int
}

// DefaultStaleDays is the "implementation choice" threshold named in §4.G.
const DefaultStaleDays = 90

// Input bundles the facts Decide needs about one package. FailureCount and
// LastError come from the failed_packages row (cachedb.DB.GetFailedPackage),
// not from Package itself — the packages table carries no per-failure
// detail.
type Input struct {
	Package        *cachedb.Package
	RecipeHash     string
	RecipeVersion  string
	Forced         bool
	RetryAllowed   bool
	FailureCount   int
	LastError      string
	StaleThreshold time.Duration
	Now            time.Time
}

// Decide runs the rebuild decision tree of §4.G in priority order.
func Decide(in Input) Decision {
	if in.Package == nil {
		return Decision{ShouldRebuild: true, Reason: ReasonNewPackage, Priority: 1}
	}
	if in.Forced {
		return Decision{ShouldRebuild: true, Reason: ReasonForced, Priority: 1}
	}
	pkg := in.Package
	if pkg.RecipeHash != nil && *pkg.RecipeHash != in.RecipeHash {
		return Decision{
			ShouldRebuild: true, Reason: ReasonRecipeChanged, Priority: 2,
			Detail: "old=" + *pkg.RecipeHash + " new=" + in.RecipeHash,
		}
	}
	if in.RecipeVersion != "" && pkg.CurrentVersion != nil && *pkg.CurrentVersion != in.RecipeVersion {
		return Decision{
			ShouldRebuild: true, Reason: ReasonVersionUpdated, Priority: 2,
			Detail: "old=" + *pkg.CurrentVersion + " new=" + in.RecipeVersion,
		}
	}
	if pkg.LastBuildStatus != nil && *pkg.LastBuildStatus == cachedb.BuildStatusFailed && in.RetryAllowed {
		return Decision{
			ShouldRebuild: true, Reason: ReasonRetryFailed, Priority: 3,
			Detail: fmt.Sprintf("attempt %d: %s", in.FailureCount, in.LastError),
		}
	}
	threshold := in.StaleThreshold
	if threshold == 0 {
		threshold = DefaultStaleDays * 24 * time.Hour
	}
	if pkg.LastBuildDate != nil {
		age := in.Now.Sub(*pkg.LastBuildDate)
		if age > threshold {
			return Decision{
				ShouldRebuild: true, Reason: ReasonStaleBuild, Priority: 4,
				Detail: age.String(),
			}
		}
	}
	return Decision{ShouldRebuild: false, Reason: ReasonSkip, Priority: 5}
}
