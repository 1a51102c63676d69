// Command sbuild drives the per-recipe build pipeline of §4.B against one
// or more recipe files, logging a per-recipe build.log and leaving failed
// outdirs in place for post-mortem.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkgforge/sbuild/internal/ambient"
	"github.com/pkgforge/sbuild/internal/build"
	"github.com/pkgforge/sbuild/internal/finalize"
	"github.com/pkgforge/sbuild/internal/recipe"
)

const help = `sbuild [-flags] <recipe.yaml>...

Build one or more recipes, leaving the outdir in place on failure.

Flags:
  -o, --outdir PATH        cache root to build under (default: $SOAR_CACHE from 'soar env')
  -k, --keep                keep SBUILD_TEMP after a successful build
  --timeout SECS             build script timeout (default 120)
  --timeout-linter SECS      pkgver probe timeout for the pre-build lint (default 15)
  --log-level info|verbose|debug
`

func main() {
	var (
		outdir        string
		keep          bool
		timeoutSecs   int
		linterTimeout int
		logLevel      string
		showHelp      bool
	)
	flag.StringVar(&outdir, "outdir", "", "cache root to build under")
	flag.StringVar(&outdir, "o", "", "cache root to build under (shorthand)")
	flag.BoolVar(&keep, "keep", false, "keep SBUILD_TEMP after a successful build")
	flag.BoolVar(&keep, "k", false, "keep SBUILD_TEMP after a successful build (shorthand)")
	flag.IntVar(&timeoutSecs, "timeout", 120, "build script timeout in seconds")
	flag.IntVar(&linterTimeout, "timeout-linter", 15, "pkgver probe timeout in seconds")
	flag.StringVar(&logLevel, "log-level", "info", "info|verbose|debug")
	flag.BoolVar(&showHelp, "help", false, "show this help")
	flag.BoolVar(&showHelp, "h", false, "show this help (shorthand)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, help) }
	flag.Parse()

	if showHelp || flag.NArg() == 0 {
		fmt.Fprint(os.Stderr, help)
		os.Exit(2)
	}

	ctx, cancel := ambient.InterruptibleContext()
	defer cancel()

	soarCache, soarBin, err := soarEnv(ctx)
	if err != nil {
		log.Fatalf("sbuild: %v", err)
	}
	if outdir == "" {
		outdir = soarCache
	}

	bctx := &build.Ctx{
		CacheRoot:   outdir,
		SoarBin:     soarBin,
		HostTriplet: hostTriplet(),
	}

	var succeeded, failed int
	for _, path := range flag.Args() {
		if logLevel != "info" {
			log.Printf("sbuild: linting %s", path)
		}
		lintResult, err := recipe.Lint(ctx, path, recipe.Options{
			InPlace:           true,
			EmitPkgver:        true,
			PkgverTimeout:     time.Duration(linterTimeout) * time.Second,
			ShellcheckTimeout: 10 * time.Second,
		})
		if err != nil {
			log.Printf("sbuild: %s: lint failed: %v", path, err)
			failed++
			continue
		}

		buildCtx, buildCancel := context.WithTimeout(ctx, time.Duration(timeoutSecs)*time.Second)
		res, err := bctx.Build(buildCtx, lintResult.Recipe)
		buildCancel()
		if err != nil {
			log.Printf("sbuild: %s: build failed at stage %s: %v", path, res.Stage, err)
			failed++
			continue
		}

		if err := finalize.Run(ctx, finalize.Options{
			OutDir:    res.Outdir,
			SbuildPkg: fmt.Sprintf("%s-%s-%s", lintResult.Recipe.Pkg, lintResult.Recipe.Version(), bctx.HostTriplet),
			Pkg:       lintResult.Recipe.Pkg,
			PkgType:   string(lintResult.Recipe.PkgType),
			KeepTemp:  keep,
		}); err != nil {
			log.Printf("sbuild: %s: finalize failed: %v", path, err)
			failed++
			continue
		}

		log.Printf("sbuild: %s: built %s (%s)", path, res.Outdir, res.Kind)
		succeeded++
	}

	fmt.Printf("%d succeeded, %d failed, %d total\n", succeeded, failed, succeeded+failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// soarEnv shells out to `soar env` and parses the SOAR_CACHE/SOAR_BIN lines
// it prints to stdout, per §6 "Requires the host command soar env".
func soarEnv(ctx context.Context) (cache, bin string, err error) {
	cmd := exec.CommandContext(ctx, "soar", "env")
	out, err := cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("running 'soar env': %w (is soar installed and on PATH?)", err)
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "SOAR_CACHE="):
			cache = strings.TrimPrefix(line, "SOAR_CACHE=")
		case strings.HasPrefix(line, "SOAR_BIN="):
			bin = strings.TrimPrefix(line, "SOAR_BIN=")
		}
	}
	if cache == "" || bin == "" {
		return "", "", fmt.Errorf("'soar env' did not report both SOAR_CACHE and SOAR_BIN")
	}
	return cache, bin, nil
}

func hostTriplet() string {
	if v := os.Getenv("SBUILD_HOST_TRIPLET"); v != "" {
		return v
	}
	return "x86_64-Linux"
}
