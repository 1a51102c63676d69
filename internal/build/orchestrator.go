// Package build implements the per-recipe build orchestrator of §4.B: script
// execution under a scrubbed environment, artifact classification, AppImage
// metadata extraction and resource staging, grounded on distri/internal/build's
// exec.CommandContext/io.MultiWriter logging idiom and debug-shell-on-failure
// pattern.
package build

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pkgforge/sbuild/internal/cachedb"
	"github.com/pkgforge/sbuild/internal/recipe"
	"github.com/pkgforge/sbuild/internal/xerrs"
)

// Phase names the state machine position of §4.B, used only for -debug=stage
// shell injection and progress logging.
type Phase string

const (
	PhaseLint            Phase = "lint"
	PhaseVersionResolved Phase = "version-resolved"
	PhaseStaged          Phase = "staged"
	PhaseExecuting       Phase = "executing"
	PhaseClassified      Phase = "classified"
	PhaseFinalized       Phase = "finalized"
	PhaseDone            Phase = "done"
)

// Ctx carries the fixed, per-invocation configuration a build runs under.
type Ctx struct {
	CacheRoot string
	SoarBin   string
	HostTriplet string
	DB        *cachedb.DB
	Debug     Phase // stage name to drop into an interactive shell after, "" disables
}

// Result is the outcome of one Build call.
type Result struct {
	BuildID string
	Outdir  string
	Kind    Kind
	Stage   Phase
}

// Build takes one recipe through Staged → Executing → Classified →
// Finalized → Done (§4.B "Contract"); a failure before staging completes is
// reported with Stage PhaseLint. Build does not lint: rec must already have
// passed linting, with its version resolved into rec.Pkgver. Build does not
// call finalize.Run either; its Finalized phase only records the successful
// build in the cache.
func (b *Ctx) Build(ctx context.Context, rec *recipe.Recipe) (Result, error) {
	buildID := uuid.New().String()
	sbuildPkg := fmt.Sprintf("%s-%s-%s", rec.Pkg, rec.Version(), b.HostTriplet)

	if b.DB != nil {
		if _, err := b.DB.GetOrCreatePackage(rec.PkgID, rec.Pkg, b.HostTriplet); err != nil {
			return Result{BuildID: buildID, Stage: PhaseLint}, xerrs.Wrap(xerrs.KindCache, "registering package", err)
		}
	}

	layout, err := Stage(b.CacheRoot, rec.PkgID, rec)
	if err != nil {
		b.recordFailure(rec, err)
		return Result{BuildID: buildID, Stage: PhaseLint}, err
	}
	res := Result{BuildID: buildID, Outdir: layout.Outdir, Stage: PhaseStaged}

	if err := StageResources(ctx, layout, sbuildPkg, rec); err != nil {
		b.recordFailure(rec, err)
		return res, err
	}
	b.maybeStartDebugShell(PhaseStaged, nil)

	env := BuildEnv(ScrubParams{
		SoarBin: b.SoarBin,
		Pkg:     rec.Pkg,
		PkgID:   rec.PkgID,
		PkgType: string(rec.PkgType),
		PkgVer:  rec.Version(),
		Outdir:  layout.Outdir,
		Tmpdir:  layout.TempDir,
	})

	res.Stage = PhaseExecuting
	logPath := filepath.Join(layout.Outdir, "build.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		werr := xerrs.Wrap(xerrs.KindIO, "creating build log", err)
		b.recordFailure(rec, werr)
		return res, werr
	}
	defer logFile.Close()

	if err := runScript(ctx, layout.ScriptPath, layout.Outdir, env, logFile); err != nil {
		werr := xerrs.Wrap(xerrs.KindBuild, "build script failed", err)
		b.recordFailure(rec, werr)
		return res, werr
	}
	b.maybeStartDebugShell(PhaseExecuting, env)

	artifactPath := filepath.Join(layout.Outdir, rec.Pkg)
	if rec.PkgType != "" {
		artifactPath = filepath.Join(layout.Outdir, fmt.Sprintf("%s.%s", rec.Pkg, rec.PkgType))
	}
	if _, err := os.Stat(artifactPath); err != nil {
		werr := xerrs.New(xerrs.KindBuild, fmt.Sprintf("expected artifact at %s, none produced", artifactPath))
		b.recordFailure(rec, werr)
		return res, werr
	}

	kind, err := Classify(artifactPath)
	if err != nil {
		b.recordFailure(rec, err)
		return res, err
	}
	res.Kind = kind
	res.Stage = PhaseClassified

	if kind == KindAppImage {
		if _, err := ExtractAppImage(artifactPath, layout.Outdir, sbuildPkg); err != nil {
			log.Printf("build %s: AppImage extraction incomplete: %v", rec.Pkg, err)
		}
	}

	res.Stage = PhaseFinalized
	ghcrTag := ""
	if b.DB != nil {
		if err := b.DB.UpdateBuildResult(rec.PkgID, b.HostTriplet, rec.Version(), cachedb.BuildStatusSuccess, buildID, &ghcrTag, nil); err != nil {
			log.Printf("build %s: recording success failed: %v", rec.Pkg, err)
		}
	}
	res.Stage = PhaseDone
	return res, nil
}

func (b *Ctx) recordFailure(rec *recipe.Recipe, cause error) {
	if b.DB == nil {
		return
	}
	if err := b.DB.RecordFailure(rec.PkgID, b.HostTriplet, cause.Error()); err != nil {
		log.Printf("build %s: recording failure failed: %v", rec.Pkg, err)
	}
}

// runScript spawns path with stdin closed and stdout/stderr piped through
// two reader goroutines into a single log sink (§4.B "Execution").
func runScript(ctx context.Context, path, dir string, env []string, sink io.Writer) error {
	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	lines := make(chan string, 64)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { return forwardLines(stdout, lines) })
	g.Go(func() error { return forwardLines(stderr, lines) })

	if err := cmd.Start(); err != nil {
		return xerrs.Wrap(xerrs.KindBuild, "starting build script", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range lines {
			fmt.Fprintln(sink, line)
			fmt.Fprintln(os.Stdout, line)
		}
	}()

	readErr := g.Wait()
	close(lines)
	<-done

	waitErr := cmd.Wait()
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return xerrs.Wrap(xerrs.KindBuild, "build script exited non-zero", waitErr)
	}
	return nil
}

func forwardLines(r io.Reader, out chan<- string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		out <- scanner.Text()
	}
	return scanner.Err()
}
