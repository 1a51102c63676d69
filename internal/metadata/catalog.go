// Package metadata generates the per-architecture package catalog of §4.F,
// joining recipe data with registry manifests, grounded on
// sbuild-meta/src/{metadata,recipe}.rs.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkgforge/sbuild/internal/recipe"
	"github.com/pkgforge/sbuild/internal/registry"
)

// noteMarkers are the bracketed internal-use markers that flag a note as
// CI/internal-only rather than user-facing (metadata.rs parse_note_flags).
var noteMarkers = []string{"[DEPRECATED]", "[EXTERNAL]", "[NO_INSTALL]", "[UNTRUSTED]", "[DO NOT RUN]"}

// parseNoteFlags reports whether any note carries [DEPRECATED] and returns
// the remaining notes with every marker message filtered out. Only
// [DEPRECATED] sets a flag on the entry; the other four markers exist
// solely to suppress CI/internal notes from the published catalog
// (metadata.rs:356-378) — they never touch desktop-integration, portability,
// or provides-recursion semantics.
func parseNoteFlags(notes []string) (deprecated bool, filtered []string) {
	for _, n := range notes {
		if strings.Contains(n, "[DEPRECATED]") {
			deprecated = true
		}
	}
	for _, n := range notes {
		marked := false
		for _, m := range noteMarkers {
			if strings.Contains(n, m) {
				marked = true
				break
			}
		}
		if !marked {
			filtered = append(filtered, n)
		}
	}
	return deprecated, filtered
}

// Entry is one package catalog record (§3 "Package catalog entry").
type Entry struct {
	Pkg                string            `json:"pkg"`
	PkgID              string            `json:"pkg_id"`
	PkgName            string            `json:"pkg_name"`
	PkgFamily          string            `json:"pkg_family"`
	PkgType            string            `json:"pkg_type,omitempty"`
	Description        string            `json:"description"`
	Version            string            `json:"version"`
	SrcURL             []string          `json:"src_url,omitempty"`
	Homepage           []string          `json:"homepage,omitempty"`
	License             []string         `json:"license,omitempty"`
	Maintainer         []string          `json:"maintainer,omitempty"`
	Note               []string          `json:"note,omitempty"`
	Tag                []string          `json:"tag,omitempty"`
	Category           []string          `json:"category,omitempty"`
	Provides           []string          `json:"provides,omitempty"`
	Disabled           bool              `json:"disabled"`
	DisabledReason     interface{}       `json:"disabled_reason,omitempty"`
	GhcrPkg            string            `json:"ghcr_pkg,omitempty"`
	GhcrPkgBase        string            `json:"ghcr_pkg_base,omitempty"`
	GhcrSize           string            `json:"ghcr_size,omitempty"`
	GhcrSizeRaw        int64             `json:"ghcr_size_raw,omitempty"`
	GhcrFiles          []string          `json:"ghcr_files,omitempty"`
	GhcrBlob           string            `json:"ghcr_blob,omitempty"`
	DownloadURL        string            `json:"download_url,omitempty"`
	ManifestURL        string            `json:"manifest_url,omitempty"`
	WebURL             string            `json:"web_url,omitempty"`
	Deprecated         bool              `json:"deprecated"`
	DesktopIntegration bool              `json:"desktop_integration"`
	Portable           bool              `json:"portable"`
	RecurseProvides    bool              `json:"recurse_provides"`
}

// Valid implements §3's validity rule for a catalog entry.
func (e *Entry) Valid() bool {
	return e.Pkg != "" && e.PkgID != "" && e.PkgName != "" && e.Description != "" &&
		e.Version != "" && e.DownloadURL != ""
}

// formatBytes implements §8's format_bytes test table: 1024-based units,
// two decimals from KB upward.
func formatBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	units := []string{"KB", "MB", "GB", "TB"}
	v := float64(n)
	unit := ""
	for _, u := range units {
		v /= 1024
		unit = u
		if v < 1024 || u == "TB" {
			break
		}
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

// splitProvides implements §4.F step 3: split on "=>", then "==", then ":",
// keeping the leading base name, deduplicated.
func splitProvides(entries []string, fallback string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		base := e
		for _, sep := range []string{"=>", "==", ":"} {
			if idx := strings.Index(base, sep); idx >= 0 {
				base = base[:idx]
			}
		}
		base = strings.TrimSpace(base)
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, base)
	}
	if len(out) == 0 {
		return []string{fallback}
	}
	return out
}

// RecipeFile is one discovered recipe on disk.
type RecipeFile struct {
	Path   string
	Recipe *recipe.Recipe
}

// Load globs every directory for **/*.yaml, parsing each recipe, warning
// (not failing) on parse errors (§4.F step 1).
func Load(dirs []string, warn func(path string, err error)) ([]RecipeFile, error) {
	var out []RecipeFile
	for _, dir := range dirs {
		var matches []string
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".yaml") {
				matches = append(matches, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				warn(path, err)
				continue
			}
			rec, err := recipe.ParseLoose(data)
			if err != nil {
				warn(path, err)
				continue
			}
			out = append(out, RecipeFile{Path: path, Recipe: rec})
		}
	}
	return out, nil
}

// GenerateOptions configures one Generate run.
type GenerateOptions struct {
	Arch       string
	RecipeDirs []string
	OutputDir  string
	CacheType  string // "all", "bincache", or "pkgcache"
	Owner      string
	RegistryClient *registry.Client
	Warn       func(path string, err error)
}

// Generate implements §4.F's full pipeline, returning the sorted entries
// actually written.
func Generate(ctx context.Context, opts GenerateOptions) ([]Entry, error) {
	files, err := Load(opts.RecipeDirs, opts.Warn)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]Entry) // cache_type -> entries

	for _, f := range files {
		rec := f.Recipe
		if rec.Disabled {
			continue
		}
		if len(rec.XExec.Host) > 0 && !containsHost(rec.XExec.Host, opts.Arch) {
			continue
		}

		pkgFamily := filepath.Base(filepath.Dir(f.Path))
		recipeStem := strings.TrimSuffix(filepath.Base(f.Path), ".yaml")
		cacheType := registry.CacheTypeForRecipeDir(f.Path)

		identities := splitProvides(rec.Provides, rec.Pkg)
		for _, identity := range identities {
			if opts.CacheType != "all" && string(cacheType) != opts.CacheType {
				continue
			}
			ghcrPath := registry.GhcrPath(opts.Owner, cacheType, pkgFamily, recipeStem)

			entry := seedEntry(rec, identity, pkgFamily)
			if opts.RegistryClient != nil {
				enrich(ctx, opts.RegistryClient, ghcrPath, opts.Arch, &entry, opts.Warn, f.Path)
			}
			if entry.Valid() {
				grouped[string(cacheType)] = append(grouped[string(cacheType)], entry)
			}
		}
	}

	var all []Entry
	for cacheType, entries := range grouped {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Pkg < entries[j].Pkg })
		if err := writeCatalog(opts.OutputDir, cacheType, opts.Arch, entries); err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Pkg < all[j].Pkg })
	return all, nil
}

func containsHost(hosts []string, arch string) bool {
	for _, h := range hosts {
		if strings.HasPrefix(strings.ToLower(h), strings.ToLower(arch)) {
			return true
		}
	}
	return false
}

func seedEntry(rec *recipe.Recipe, identity, pkgFamily string) Entry {
	deprecated, notes := parseNoteFlags(rec.Note)
	var licenses []string
	for _, l := range rec.License {
		licenses = append(licenses, l.ID)
	}
	e := Entry{
		Pkg:         rec.Pkg,
		PkgID:       rec.PkgID,
		PkgName:     identity,
		PkgFamily:   pkgFamily,
		PkgType:     string(rec.PkgType),
		Description: rec.Description.Default(),
		Version:     rec.Version(),
		SrcURL:      rec.SrcURL,
		Homepage:    rec.Homepage,
		License:     licenses,
		Maintainer:  rec.Maintainer,
		Note:        notes,
		Tag:         rec.Tag,
		Category:    rec.Category,
		Provides:    rec.Provides,
		Disabled:    rec.Disabled,

		Deprecated: deprecated,
	}
	if rec.DisabledReason != nil {
		e.DisabledReason = rec.DisabledReason
	}
	return e
}

func enrich(ctx context.Context, client *registry.Client, repo, arch string, entry *Entry, warn func(string, error), path string) {
	tl, err := client.ListTags(ctx, repo)
	if err != nil {
		warn(path, err)
		return
	}
	tag := registry.LatestForArch(tl.Tags, arch)
	if tag == "" {
		return
	}
	raw, err := client.FetchManifest(ctx, repo, tag)
	if err != nil {
		warn(path, err)
		return
	}
	m, err := registry.ParseManifest(raw)
	if err != nil {
		warn(path, err)
		return
	}
	if pkgJSON, err := m.PackageJSON(); err == nil && pkgJSON != nil {
		mergeJSON(entry, pkgJSON)
	}
	entry.GhcrPkg = m.GhcrPkg()
	entry.GhcrPkgBase = strings.SplitN(entry.GhcrPkg, ":", 2)[0]
	entry.GhcrSizeRaw = m.TotalSize()
	entry.GhcrSize = formatBytes(entry.GhcrSizeRaw)
	entry.GhcrFiles = m.Filenames()
	if len(entry.GhcrFiles) > 0 {
		entry.GhcrBlob = m.GetBlobRef(entry.GhcrPkgBase, entry.GhcrFiles[0])
		entry.DownloadURL = fmt.Sprintf("https://api.ghcr.pkgforge.dev/%s?tag=%s&download=%s", repo, tag, entry.GhcrFiles[0])
	}
	entry.ManifestURL = fmt.Sprintf("https://api.ghcr.pkgforge.dev/%s?tag=%s&manifest", repo, tag)
}

func mergeJSON(entry *Entry, payload map[string]interface{}) {
	if v, ok := payload["version"].(string); ok && v != "" {
		entry.Version = v
	}
}

func writeCatalog(outputDir, cacheType, arch string, entries []Entry) error {
	dir := filepath.Join(outputDir, cacheType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, arch+".json"), data, 0o644)
}
