package build

import (
	"os"
	"strings"
)

// passthroughVars are inherited from the invoking process's environment
// only if already present there (§4.B "Environment").
var passthroughVars = []string{
	"USER_AGENT",
	"GITLAB_TOKEN",
	"GL_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"TERM",
}

// ScrubParams are the project-owned values exported in both upper- and
// lower-case form alongside PATH and the passthrough allowlist.
type ScrubParams struct {
	SoarBin string
	Pkg     string
	PkgID   string
	PkgType string
	PkgVer  string
	Outdir  string
	Tmpdir  string
}

// BuildEnv constructs the scrubbed environment a build script runs under:
// nothing from the ambient environment survives except PATH (prefixed with
// soarBin) and the named passthrough variables, plus the project's own
// PKG/PKG_ID/PKG_TYPE/SBUILD_PKG/SBUILD_OUTDIR/SBUILD_TMPDIR/PKG_VER in both
// cases (§4.B "Environment").
func BuildEnv(p ScrubParams) []string {
	env := []string{
		"PATH=" + p.SoarBin + ":" + os.Getenv("PATH"),
	}
	pairs := map[string]string{
		"PKG":            p.Pkg,
		"PKG_ID":         p.PkgID,
		"PKG_TYPE":       p.PkgType,
		"SBUILD_PKG":     p.Pkg,
		"SBUILD_OUTDIR":  p.Outdir,
		"SBUILD_TMPDIR":  p.Tmpdir,
		"PKG_VER":        p.PkgVer,
	}
	for k, v := range pairs {
		env = append(env, k+"="+v)
		env = append(env, strings.ToLower(k)+"="+v)
	}
	for _, name := range passthroughVars {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}
