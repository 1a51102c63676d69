package recipe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/renameio"
	"gopkg.in/yaml.v3"
)

// scalar renders s as a correctly-quoted YAML scalar by round-tripping it
// through the library's own encoder, rather than hand-rolling escaping.
func scalar(s string) string {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Sprintf("%q", s)
	}
	return strings.TrimSuffix(string(out), "\n")
}

func writeFieldComment(b *strings.Builder, comments Comments, field string) {
	for _, line := range comments.FieldComments[field] {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

func writeStringList(b *strings.Builder, indent string, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "%s- %s\n", indent, scalar(item))
	}
}

func writeDistroPkgNode(b *strings.Builder, node *DistroPkg, indent string) {
	if node == nil {
		return
	}
	if node.List != nil {
		writeStringList(b, indent, node.List)
		return
	}
	keys := make([]string, 0, len(node.Inner))
	for k := range node.Inner {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s%s:\n", indent, scalar(k))
		writeDistroPkgNode(b, node.Inner[k], indent+"  ")
	}
}

func writeXExec(b *strings.Builder, x XExec) {
	b.WriteString("x_exec:\n")
	if x.DisableShellcheck {
		fmt.Fprintf(b, "  disable_shellcheck: %v\n", x.DisableShellcheck)
	}
	if x.Pkgver != "" {
		fmt.Fprintf(b, "  pkgver: %s\n", scalar(x.Pkgver))
	}
	fmt.Fprintf(b, "  shell: %s\n", scalar(x.Shell))
	fmt.Fprintf(b, "  run: %s\n", scalar(x.Run))
	if x.Entrypoint != "" {
		fmt.Fprintf(b, "  entrypoint: %s\n", scalar(x.Entrypoint))
	}
	writeOptionalList(b, "  arch", x.Arch)
	writeOptionalList(b, "  os", x.OS)
	writeOptionalList(b, "  host", x.Host)
	writeOptionalList(b, "  conflicts", x.Conflicts)
	writeOptionalList(b, "  depends", x.Depends)
}

func writeOptionalList(b *strings.Builder, field string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", field)
	writeStringList(b, field[:len(field)-len(strings.TrimLeft(field, " "))]+"  ", items)
}

func writeResource(b *strings.Builder, field string, r *Resource) {
	if r == nil {
		return
	}
	fmt.Fprintf(b, "%s:\n", field)
	switch r.Kind() {
	case "url":
		fmt.Fprintf(b, "  url: %s\n", scalar(r.URL))
	case "file":
		fmt.Fprintf(b, "  file: %s\n", scalar(r.File))
	case "dir":
		fmt.Fprintf(b, "  dir: %s\n", scalar(r.Dir))
	}
}

func writeLicense(b *strings.Builder, items []LicenseEntry) {
	if len(items) == 0 {
		return
	}
	b.WriteString("license:\n")
	for _, l := range items {
		if l.File == "" && l.URL == "" {
			fmt.Fprintf(b, "  - %s\n", scalar(l.ID))
			continue
		}
		fmt.Fprintf(b, "  - id: %s\n", scalar(l.ID))
		if l.File != "" {
			fmt.Fprintf(b, "    file: %s\n", scalar(l.File))
		}
		if l.URL != "" {
			fmt.Fprintf(b, "    url: %s\n", scalar(l.URL))
		}
	}
}

func writeBuildAsset(b *strings.Builder, items []BuildAsset) {
	if len(items) == 0 {
		return
	}
	b.WriteString("build_asset:\n")
	for _, a := range items {
		fmt.Fprintf(b, "  - url: %s\n    out: %s\n", scalar(a.URL), scalar(a.Out))
	}
}

func writeDescription(b *strings.Builder, d Description) {
	if d.Map != nil {
		b.WriteString("description:\n")
		keys := make([]string, 0, len(d.Map))
		for k := range d.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "  %s: %s\n", scalar(k), scalar(d.Map[k]))
		}
		return
	}
	fmt.Fprintf(b, "description: %s\n", scalar(d.Simple))
}

func writeDisabledReason(b *strings.Builder, dr *DisabledReason) {
	if dr == nil {
		return
	}
	switch {
	case dr.Map != nil:
		b.WriteString("_disabled_reason:\n")
		keys := make([]string, 0, len(dr.Map))
		for k := range dr.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "  %s:\n", scalar(k))
			for _, entry := range dr.Map[k] {
				fmt.Fprintf(b, "    - date: %s\n", scalar(entry.Date))
				if entry.PkgID != "" {
					fmt.Fprintf(b, "      pkg_id: %s\n", scalar(entry.PkgID))
				}
				fmt.Fprintf(b, "      reason: %s\n", scalar(entry.Reason))
			}
		}
	case dr.List != nil:
		b.WriteString("_disabled_reason:\n")
		writeStringList(b, "  ", dr.List)
	default:
		fmt.Fprintf(b, "_disabled_reason: %s\n", scalar(dr.Simple))
	}
}

// renderCanonical re-serializes rec in CanonicalFieldOrder (§4.A
// "Canonical re-emission"), carrying over header comments and each field's
// preceding comment block from comments.
func renderCanonical(rec *Recipe, comments Comments) string {
	var b strings.Builder
	for _, line := range comments.HeaderComments {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	for _, field := range CanonicalFieldOrder {
		switch field {
		case "_disabled":
			writeFieldComment(&b, comments, field)
			fmt.Fprintf(&b, "_disabled: %v\n", rec.Disabled)
		case "pkg":
			writeFieldComment(&b, comments, field)
			fmt.Fprintf(&b, "pkg: %s\n", scalar(rec.Pkg))
		case "pkg_id":
			if rec.PkgID == "" {
				continue
			}
			writeFieldComment(&b, comments, field)
			fmt.Fprintf(&b, "pkg_id: %s\n", scalar(rec.PkgID))
		case "pkg_type":
			if rec.PkgType == "" {
				continue
			}
			writeFieldComment(&b, comments, field)
			fmt.Fprintf(&b, "pkg_type: %s\n", scalar(string(rec.PkgType)))
		case "pkgver":
			if rec.Pkgver == "" {
				continue
			}
			writeFieldComment(&b, comments, field)
			fmt.Fprintf(&b, "pkgver: %s\n", scalar(rec.Pkgver))
		case "app_id":
			if rec.AppID == "" {
				continue
			}
			writeFieldComment(&b, comments, field)
			fmt.Fprintf(&b, "app_id: %s\n", scalar(rec.AppID))
		case "build_util":
			if len(rec.BuildUtil) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("build_util:\n")
			writeStringList(&b, "  ", rec.BuildUtil)
		case "build_asset":
			if len(rec.BuildAsset) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			writeBuildAsset(&b, rec.BuildAsset)
		case "category":
			writeFieldComment(&b, comments, field)
			b.WriteString("category:\n")
			writeStringList(&b, "  ", rec.Category)
		case "description":
			writeFieldComment(&b, comments, field)
			writeDescription(&b, rec.Description)
		case "distro_pkg":
			if rec.DistroPkg == nil {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("distro_pkg:\n")
			writeDistroPkgNode(&b, rec.DistroPkg, "  ")
		case "homepage":
			if len(rec.Homepage) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("homepage:\n")
			writeStringList(&b, "  ", rec.Homepage)
		case "maintainer":
			if len(rec.Maintainer) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("maintainer:\n")
			writeStringList(&b, "  ", rec.Maintainer)
		case "icon":
			if rec.Icon == nil {
				continue
			}
			writeFieldComment(&b, comments, field)
			writeResource(&b, "icon", rec.Icon)
		case "desktop":
			if rec.Desktop == nil {
				continue
			}
			writeFieldComment(&b, comments, field)
			writeResource(&b, "desktop", rec.Desktop)
		case "license":
			if len(rec.License) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			writeLicense(&b, rec.License)
		case "note":
			if len(rec.Note) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("note:\n")
			writeStringList(&b, "  ", rec.Note)
		case "provides":
			if len(rec.Provides) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("provides:\n")
			writeStringList(&b, "  ", rec.Provides)
		case "repology":
			if len(rec.Repology) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("repology:\n")
			writeStringList(&b, "  ", rec.Repology)
		case "src_url":
			writeFieldComment(&b, comments, field)
			b.WriteString("src_url:\n")
			writeStringList(&b, "  ", rec.SrcURL)
		case "tag":
			if len(rec.Tag) == 0 {
				continue
			}
			writeFieldComment(&b, comments, field)
			b.WriteString("tag:\n")
			writeStringList(&b, "  ", rec.Tag)
		case "x_exec":
			writeFieldComment(&b, comments, field)
			writeXExec(&b, rec.XExec)
		}
	}

	if rec.DisabledReason != nil {
		writeDisabledReason(&b, rec.DisabledReason)
	}

	return b.String()
}

// WriteCanonical atomically writes the canonical re-emission of rec to
// path, using renameio so a crash mid-write never leaves a truncated
// recipe on disk.
func WriteCanonical(path string, rec *Recipe, comments Comments) error {
	content := renderCanonical(rec, comments)
	return renameio.WriteFile(path, []byte(content), 0o644)
}
