// Command sbuild-cache inspects and maintains the build cache database of
// §4.D: package/build history, outdated marking and campaign reporting.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkgforge/sbuild/internal/cachedb"
)

const help = `sbuild-cache [-flags] <subcommand> [args]

Subcommands:
  init                                 create/open the cache database
  update <pkg_id> <status> <version>   record a build result
  mark-outdated <pkg_id> <version>     flag pkg_id as needing a rebuild
  stats                                 print aggregate build stats
  list [status]                         list packages, optionally filtered by status
  needs-rebuild                         list packages due for a rebuild
  report markdown|html|json             render a campaign report
  recent [N]                            show the N most recent builds (default 20)
  prune [N]                             keep the N most recent builds per package (default 20)
  get <pkg_id>                          show one package's row
  gh-summary                            append a markdown summary ($GITHUB_STEP_SUMMARY or stdout)

Flags:
  --db PATH           cache database path (default sbuild-cache.db)
  --host TRIPLET       host triplet to scope queries to (default x86_64-Linux)
  --json               emit JSON instead of text where supported
`

func main() {
	var (
		dbPath   string
		host     string
		jsonOut  bool
		showHelp bool
	)
	flag.StringVar(&dbPath, "db", "sbuild-cache.db", "cache database path")
	flag.StringVar(&host, "host", "x86_64-Linux", "host triplet")
	flag.BoolVar(&jsonOut, "json", false, "emit JSON output")
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

	db, err := cachedb.Open(dbPath)
	if err != nil {
		log.Fatalf("sbuild-cache: opening %s: %v", dbPath, err)
	}
	defer db.Close()

	var runErr error
	switch verb {
	case "init":
		fmt.Printf("initialized %s\n", dbPath)
	case "update":
		runErr = cmdUpdate(db, host, rest)
	case "mark-outdated":
		runErr = cmdMarkOutdated(db, host, rest)
	case "stats":
		runErr = cmdStats(db, host, jsonOut)
	case "list":
		runErr = cmdList(db, host, rest, jsonOut)
	case "needs-rebuild":
		runErr = cmdNeedsRebuild(db, host, jsonOut)
	case "report":
		runErr = cmdReport(db, host, rest)
	case "recent":
		runErr = cmdRecent(db, host, rest, jsonOut)
	case "prune":
		runErr = cmdPrune(db, rest)
	case "get":
		runErr = cmdGet(db, host, rest, jsonOut)
	case "gh-summary":
		runErr = cmdGHSummary(db, host)
	default:
		fmt.Fprintf(os.Stderr, "sbuild-cache: unknown subcommand %q\n\n%s", verb, help)
		os.Exit(2)
	}
	if runErr != nil {
		log.Fatalf("sbuild-cache: %v", runErr)
	}
}

func cmdUpdate(db *cachedb.DB, host string, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: update <pkg_id> <status> <version>")
	}
	pkgID, status, version := args[0], args[1], args[2]
	if _, err := db.GetOrCreatePackage(pkgID, pkgID, host); err != nil {
		return err
	}
	buildID := pkgID + "-manual"
	return db.UpdateBuildResult(pkgID, host, version, cachedb.BuildStatus(status), buildID, nil, nil)
}

func cmdMarkOutdated(db *cachedb.DB, host string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: mark-outdated <pkg_id> <upstream_version>")
	}
	return db.MarkOutdated(args[0], host, args[1])
}

func cmdStats(db *cachedb.DB, host string, jsonOut bool) error {
	stats, err := db.GetStats(host)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(stats)
	}
	rate := 0.0
	if stats.TotalPackages > 0 {
		rate = 100 * float64(stats.Successful) / float64(stats.TotalPackages)
	}
	fmt.Printf("total=%d success=%d failed=%d pending=%d outdated=%d rate=%.1f%%\n",
		stats.TotalPackages, stats.Successful, stats.Failed, stats.Pending, stats.Outdated, rate)
	return nil
}

func cmdList(db *cachedb.DB, host string, args []string, jsonOut bool) error {
	var status *cachedb.BuildStatus
	if len(args) > 0 {
		s := cachedb.BuildStatus(args[0])
		status = &s
	}
	pkgs, err := db.ListPackages(host, status, true)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(pkgs)
	}
	for _, p := range pkgs {
		fmt.Printf("%s\t%s\t%v\n", p.PkgID, strOrDash(p.CurrentVersion), p.LastBuildStatus)
	}
	return nil
}

func cmdNeedsRebuild(db *cachedb.DB, host string, jsonOut bool) error {
	pkgs, err := db.GetPackagesNeedingRebuild(host)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(pkgs)
	}
	for _, p := range pkgs {
		fmt.Println(p.PkgID)
	}
	return nil
}

// failedEntry pairs a failed package row with its failed_packages detail,
// since the packages table carries no per-failure error message itself.
type failedEntry struct {
	Package      *cachedb.Package `json:"package"`
	LastError    string           `json:"last_error"`
	FailureCount int              `json:"failure_count"`
}

func loadFailedEntries(db *cachedb.DB, host string) ([]failedEntry, error) {
	pkgs, err := db.ListPackages(host, statusPtr(cachedb.BuildStatusFailed), false)
	if err != nil {
		return nil, err
	}
	out := make([]failedEntry, 0, len(pkgs))
	for _, p := range pkgs {
		fp, err := db.GetFailedPackage(p.PkgID, p.HostTriplet)
		if err != nil {
			return nil, err
		}
		e := failedEntry{Package: p}
		if fp != nil {
			e.FailureCount = fp.FailureCount
			if fp.LastErrorMessage != nil {
				e.LastError = *fp.LastErrorMessage
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func cmdReport(db *cachedb.DB, host string, args []string) error {
	format := "markdown"
	if len(args) > 0 {
		format = args[0]
	}
	stats, err := db.GetStats(host)
	if err != nil {
		return err
	}
	failed, err := loadFailedEntries(db, host)
	if err != nil {
		return err
	}
	switch format {
	case "json":
		return printJSON(map[string]interface{}{"stats": stats, "failed": failed})
	case "html":
		fmt.Print(renderReportHTML(stats, failed))
	default:
		fmt.Print(renderReportMarkdown(stats, failed))
	}
	return nil
}

func cmdRecent(db *cachedb.DB, host string, args []string, jsonOut bool) error {
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err == nil {
			limit = n
		}
	}
	builds, err := db.GetRecentBuilds(host, limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(builds)
	}
	for _, b := range builds {
		fmt.Printf("%s\t%s\t%s\t%s\n", b.History.BuildDate.Format("2006-01-02T15:04:05Z"), b.Package.PkgID, b.History.Version, b.History.BuildStatus)
	}
	return nil
}

func cmdPrune(db *cachedb.DB, args []string) error {
	keep := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err == nil {
			keep = n
		}
	}
	n, err := db.PruneHistory(keep)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d build_history rows\n", n)
	return nil
}

func cmdGet(db *cachedb.DB, host string, args []string, jsonOut bool) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <pkg_id>")
	}
	p, err := db.GetPackage(args[0], host)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(p)
	}
	fmt.Printf("%+v\n", *p)
	return nil
}

// cmdGHSummary implements §6's "GitHub-summary format": a five-column table
// followed by a collapsible list of failed packages (max 50 + overflow
// count), appended to $GITHUB_STEP_SUMMARY if set, else stdout.
func cmdGHSummary(db *cachedb.DB, host string) error {
	stats, err := db.GetStats(host)
	if err != nil {
		return err
	}
	failed, err := loadFailedEntries(db, host)
	if err != nil {
		return err
	}

	rate := 0.0
	if stats.TotalPackages > 0 {
		rate = 100 * float64(stats.Successful) / float64(stats.TotalPackages)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "| Success | Failed | Pending | Total | Rate |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %.1f%% |\n\n", stats.Successful, stats.Failed, stats.Pending, stats.TotalPackages, rate)

	if len(failed) > 0 {
		fmt.Fprintf(&b, "<details><summary>Failed packages (%d)</summary>\n\n", len(failed))
		shown := failed
		overflow := 0
		if len(shown) > 50 {
			overflow = len(shown) - 50
			shown = shown[:50]
		}
		for _, e := range shown {
			fmt.Fprintf(&b, "- %s: %s\n", e.Package.PkgID, strOrDash(&e.LastError))
		}
		if overflow > 0 {
			fmt.Fprintf(&b, "- …and %d more\n", overflow)
		}
		fmt.Fprintf(&b, "\n</details>\n")
	}

	if path := os.Getenv("GITHUB_STEP_SUMMARY"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteString(b.String())
		return err
	}
	fmt.Print(b.String())
	return nil
}

func renderReportMarkdown(stats cachedb.Stats, failed []failedEntry) string {
	var b strings.Builder
	rate := 0.0
	if stats.TotalPackages > 0 {
		rate = 100 * float64(stats.Successful) / float64(stats.TotalPackages)
	}
	fmt.Fprintf(&b, "# Build report\n\n| Success | Failed | Pending | Total | Rate |\n|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %.1f%% |\n", stats.Successful, stats.Failed, stats.Pending, stats.TotalPackages, rate)
	for _, e := range failed {
		fmt.Fprintf(&b, "- %s: %s\n", e.Package.PkgID, strOrDash(&e.LastError))
	}
	return b.String()
}

func renderReportHTML(stats cachedb.Stats, failed []failedEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>Build report</h1><table><tr><th>Success</th><th>Failed</th><th>Pending</th><th>Total</th></tr>")
	fmt.Fprintf(&b, "<tr><td>%d</td><td>%d</td><td>%d</td><td>%d</td></tr></table><ul>", stats.Successful, stats.Failed, stats.Pending, stats.TotalPackages)
	for _, e := range failed {
		fmt.Fprintf(&b, "<li>%s: %s</li>", e.Package.PkgID, strOrDash(&e.LastError))
	}
	fmt.Fprint(&b, "</ul>")
	return b.String()
}

func statusPtr(s cachedb.BuildStatus) *cachedb.BuildStatus { return &s }

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
