package build

import (
	"strings"
	"testing"
)

func TestBuildEnvSetsUpperAndLowerCaseVars(t *testing.T) {
	env := BuildEnv(ScrubParams{
		SoarBin: "/soar/bin",
		Pkg:     "ripgrep",
		PkgID:   "ripgrep#github.com.BurntSushi.ripgrep",
		PkgType: "static",
		PkgVer:  "14.1.0",
		Outdir:  "/out",
		Tmpdir:  "/out/SBUILD_TEMP",
	})

	m := map[string]string{}
	for _, kv := range env {
		parts := strings.SplitN(kv, "=", 2)
		m[parts[0]] = parts[1]
	}

	for _, pair := range [][2]string{
		{"PKG", "ripgrep"}, {"pkg", "ripgrep"},
		{"PKG_VER", "14.1.0"}, {"pkg_ver", "14.1.0"},
		{"SBUILD_OUTDIR", "/out"}, {"sbuild_outdir", "/out"},
	} {
		if got := m[pair[0]]; got != pair[1] {
			t.Errorf("%s = %q, want %q", pair[0], got, pair[1])
		}
	}

	if !strings.HasPrefix(m["PATH"], "/soar/bin:") {
		t.Errorf("PATH = %q, want it prefixed with /soar/bin:", m["PATH"])
	}
}

func TestBuildEnvOnlyPassesThroughPresentVars(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	env := BuildEnv(ScrubParams{SoarBin: "/soar/bin"})
	for _, kv := range env {
		if strings.HasPrefix(kv, "HOME=") || strings.HasPrefix(kv, "SHELL=") {
			t.Fatalf("scrubbed environment leaked unrelated host var: %s", kv)
		}
	}
}

func TestBuildEnvPassesThroughAllowlistedVar(t *testing.T) {
	t.Setenv("GH_TOKEN", "secret-token")
	env := BuildEnv(ScrubParams{SoarBin: "/soar/bin"})
	found := false
	for _, kv := range env {
		if kv == "GH_TOKEN=secret-token" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected GH_TOKEN to be passed through")
	}
}
