// Command sbuild-lint validates one or more recipe files, optionally in
// parallel, per §6 "Linter CLI".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkgforge/sbuild/internal/ambient"
	"github.com/pkgforge/sbuild/internal/recipe"
)

const help = `sbuild-lint [-flags] <recipe.yaml>...

Validate one or more recipe files, emitting their canonical form on success.

Flags:
  -p, --pkgver          resolve and emit pkgver (writes {recipe}.pkgver)
  --no-shellcheck        skip the shellcheck pass over x_exec.run
  --parallel N           lint up to N files concurrently (default 1)
  -h, --help             show this help
`

func main() {
	var (
		pkgver        bool
		noShellcheck  bool
		parallel      int
		showHelp      bool
	)
	flag.BoolVar(&pkgver, "pkgver", false, "resolve and emit pkgver")
	flag.BoolVar(&pkgver, "p", false, "resolve and emit pkgver (shorthand)")
	flag.BoolVar(&noShellcheck, "no-shellcheck", false, "skip the shellcheck pass")
	flag.IntVar(&parallel, "parallel", 1, "lint up to N files concurrently")
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

	paths := flag.Args()
	opts := recipe.Options{
		InPlace:           true,
		SkipShellcheck:    noShellcheck,
		EmitPkgver:        pkgver,
		PkgverTimeout:     15 * time.Second,
		ShellcheckTimeout: 10 * time.Second,
	}

	if parallel < 1 {
		parallel = 1
	}
	// A counting semaphore with N permits: each lint task runs on its own
	// goroutine and releases the permit on completion (§5 "Scheduling model").
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	var succeeded, failed int64
	quiet := parallel > 1

	for _, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := recipe.Lint(ctx, path, opts)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				if lintErr, ok := err.(*recipe.LintError); ok {
					fmt.Fprintf(os.Stderr, "%s\n", recipe.RenderReport(lintErr))
				} else {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				}
				return
			}
			atomic.AddInt64(&succeeded, 1)
			if !quiet {
				fmt.Printf("%s: ok\n", path)
			}
		}(path)
	}
	wg.Wait()

	fmt.Printf("%d ok, %d failed, %d total\n", succeeded, failed, len(paths))
	if failed > 0 {
		os.Exit(1)
	}
}
