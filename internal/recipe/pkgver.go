package recipe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// DefaultPkgverTimeout is the linter's default pkgver-probe timeout (§5).
const DefaultPkgverTimeout = 15 * time.Second

// ResolveVersion implements §4.A "Version resolution": pkgver verbatim if
// set, else run x_exec.pkgver under the recipe's shell with a timeout,
// requiring exit 0, empty stderr, and exactly one non-empty stdout line.
// If neither is set, ("", nil) is returned and emitPkgverRequired decides
// whether that is fatal.
func ResolveVersion(ctx context.Context, rec *Recipe, timeout time.Duration, emitPkgverRequired bool) (string, error) {
	if rec.Pkgver != "" {
		return rec.Pkgver, nil
	}
	if rec.XExec.Pkgver == "" {
		if emitPkgverRequired {
			return "", xerrs.New(xerrs.KindPkgverProbe, "neither pkgver nor x_exec.pkgver is set")
		}
		return "", nil
	}

	script := fmt.Sprintf("#!/usr/bin/env %s\n%s", rec.XExec.Shell, rec.XExec.Pkgver)
	f, err := os.CreateTemp("", "sbuild-pkgver-*.sh")
	if err != nil {
		return "", xerrs.Wrap(xerrs.KindIO, "creating pkgver script", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		return "", xerrs.Wrap(xerrs.KindIO, "writing pkgver script", err)
	}
	f.Close()
	if err := os.Chmod(tmp, 0o755); err != nil {
		return "", xerrs.Wrap(xerrs.KindIO, "chmod pkgver script", err)
	}

	cctx, canc := context.WithTimeout(ctx, timeout)
	defer canc()
	cmd := exec.CommandContext(cctx, tmp)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return "", xerrs.New(xerrs.KindPkgverProbe, "pkgver script timed out")
	}
	if err != nil {
		return "", xerrs.Wrap(xerrs.KindPkgverProbe, "pkgver script failed", err)
	}
	if stderr.Len() > 0 {
		return "", xerrs.New(xerrs.KindPkgverProbe, "pkgver script wrote to stderr")
	}
	out := strings.TrimSpace(stdout.String())
	if out == "" {
		if emitPkgverRequired {
			return "", xerrs.New(xerrs.KindPkgverProbe, "pkgver script produced empty output")
		}
		return "", nil
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 1 {
		return "", xerrs.New(xerrs.KindPkgverProbe, "pkgver script produced more than one line")
	}
	return lines[0], nil
}
