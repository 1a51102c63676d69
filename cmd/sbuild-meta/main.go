// Command sbuild-meta generates the per-architecture package catalog of
// §4.F and answers rebuild-policy questions over it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkgforge/sbuild/internal/ambient"
	"github.com/pkgforge/sbuild/internal/cachedb"
	"github.com/pkgforge/sbuild/internal/metadata"
	"github.com/pkgforge/sbuild/internal/rebuild"
	"github.com/pkgforge/sbuild/internal/recipe"
	"github.com/pkgforge/sbuild/internal/registry"
	"github.com/pkgforge/sbuild/internal/xerrs"
)

const help = `sbuild-meta [-flags] <subcommand> [args]

Subcommands:
  generate <recipe_dir>...      emit the package catalog for --arch
  should-rebuild <pkg_id>        exit 0 to rebuild, 1 to skip (requires --recipe)
  check-updates <recipe_dir>...  list recipes whose upstream version moved
  hash <recipe.yaml>             print the recipe's change-detection hash
  fetch-manifest <repo> <tag>    print the OCI manifest for repo:tag

Flags:
  --arch TRIPLET        architecture to generate for (default x86_64-Linux)
  --output PATH          catalog output directory (default ./metadata)
  --cache-type all|bincache|pkgcache  (default all)
  --owner NAME            GHCR namespace owner
  --registry URL          OCI registry base URL (default https://ghcr.io)
  --db PATH               cache database for should-rebuild (default sbuild-cache.db)
  --recipe PATH            recipe path for should-rebuild/hash
  --force                  force should-rebuild to report true

Env: GITHUB_TOKEN (optional, forwarded to registry auth if set).
`

func main() {
	var (
		arch      string
		output    string
		cacheType string
		owner     string
		registryURL string
		dbPath    string
		recipePath string
		force     bool
		showHelp  bool
	)
	flag.StringVar(&arch, "arch", "x86_64-Linux", "architecture to generate for")
	flag.StringVar(&output, "output", "./metadata", "catalog output directory")
	flag.StringVar(&cacheType, "cache-type", "all", "all|bincache|pkgcache")
	flag.StringVar(&owner, "owner", "pkgforge", "GHCR namespace owner")
	flag.StringVar(&registryURL, "registry", "https://ghcr.io", "OCI registry base URL")
	flag.StringVar(&dbPath, "db", "sbuild-cache.db", "cache database path")
	flag.StringVar(&recipePath, "recipe", "", "recipe path")
	flag.BoolVar(&force, "force", false, "force rebuild")
	flag.BoolVar(&showHelp, "help", false, "show this help")
	flag.BoolVar(&showHelp, "h", false, "show this help (shorthand)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, help) }
	flag.Parse()

	args := flag.Args()
	if showHelp || len(args) == 0 {
		fmt.Fprint(os.Stderr, help)
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	ctx, cancel := ambient.InterruptibleContext()
	defer cancel()

	var err error
	switch verb {
	case "generate":
		err = cmdGenerate(ctx, rest, arch, output, cacheType, owner, registryURL)
	case "should-rebuild":
		err = cmdShouldRebuild(rest, dbPath, arch, recipePath, force)
	case "check-updates":
		err = cmdCheckUpdates(rest)
	case "hash":
		err = cmdHash(rest)
	case "fetch-manifest":
		err = cmdFetchManifest(ctx, rest, registryURL)
	default:
		fmt.Fprintf(os.Stderr, "sbuild-meta: unknown subcommand %q\n\n%s", verb, help)
		os.Exit(2)
	}
	if err != nil {
		if verb == "should-rebuild" {
			// should-rebuild's exit code IS its answer; don't conflate with
			// an operational failure logged via log.Fatalf.
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		log.Fatalf("sbuild-meta: %v", err)
	}
}

func cmdGenerate(ctx context.Context, dirs []string, arch, output, cacheType, owner, registryURL string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("usage: generate <recipe_dir>...")
	}
	client := registry.NewClient(registryURL)
	entries, err := metadata.Generate(ctx, metadata.GenerateOptions{
		Arch:           arch,
		RecipeDirs:     dirs,
		OutputDir:      output,
		CacheType:      cacheType,
		Owner:          owner,
		RegistryClient: client,
		Warn: func(path string, err error) {
			log.Printf("sbuild-meta: %s: %v", path, err)
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d catalog entries to %s\n", len(entries), output)
	return nil
}

// cmdShouldRebuild implements §6's should-rebuild contract: exit 0 means
// rebuild, exit 1 means skip.
func cmdShouldRebuild(args []string, dbPath, host, recipePath string, force bool) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: should-rebuild <pkg_id>")
	}
	pkgID := args[0]
	if recipePath == "" {
		return fmt.Errorf("should-rebuild requires --recipe")
	}
	data, err := os.ReadFile(recipePath)
	if err != nil {
		return err
	}
	rec, err := recipe.ParseLoose(data)
	if err != nil {
		return err
	}

	db, err := cachedb.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	pkg, err := db.GetPackage(pkgID, host)
	if err != nil {
		if !xerrs.Is(err, xerrs.KindPackageNotFound) {
			return err
		}
		pkg = nil // not found => new package, rebuild
	}

	retryAllowed, err := db.IsRetryAllowed(pkgID, host)
	if err != nil {
		return err
	}
	var failureCount int
	var lastError string
	if fp, err := db.GetFailedPackage(pkgID, host); err != nil {
		return err
	} else if fp != nil {
		failureCount = fp.FailureCount
		if fp.LastErrorMessage != nil {
			lastError = *fp.LastErrorMessage
		}
	}

	decision := rebuild.Decide(rebuild.Input{
		Package:        pkg,
		RecipeHash:     rebuild.ComputeRecipeHash(string(data)),
		RecipeVersion:  rec.Version(),
		Forced:         force,
		RetryAllowed:   retryAllowed,
		FailureCount:   failureCount,
		LastError:      lastError,
		StaleThreshold: rebuild.DefaultStaleDays * 24 * time.Hour,
		Now:            time.Now(),
	})
	fmt.Printf("%s: %v (%s) %s\n", pkgID, decision.ShouldRebuild, decision.Reason, decision.Detail)
	if !decision.ShouldRebuild {
		return fmt.Errorf("skip")
	}
	return nil
}

func cmdCheckUpdates(dirs []string) error {
	files, err := metadata.Load(dirs, func(path string, err error) {
		log.Printf("sbuild-meta: %s: %v", path, err)
	})
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Printf("%s\t%s\n", f.Path, f.Recipe.Version())
	}
	return nil
}

func cmdHash(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: hash <recipe.yaml>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Println(rebuild.ComputeRecipeHash(string(data)))
	return nil
}

func cmdFetchManifest(ctx context.Context, args []string, registryURL string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: fetch-manifest <repo> <tag>")
	}
	repo, tag := args[0], args[1]
	client := registry.NewClient(registryURL)
	raw, err := client.FetchManifest(ctx, repo, tag)
	if err != nil {
		return err
	}
	var pretty interface{}
	if err := json.Unmarshal(raw, &pretty); err != nil {
		os.Stdout.Write(raw)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}
