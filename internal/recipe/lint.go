package recipe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkgforge/sbuild/internal/xerrs"
	"gopkg.in/yaml.v3"
)

// Options configures a Lint pass (§4.A, §6 "Linter CLI").
type Options struct {
	InPlace           bool
	SkipShellcheck    bool
	EmitPkgver        bool
	PkgverTimeout     time.Duration
	ShellcheckTimeout time.Duration
}

// Result is the outcome of a successful lint pass.
type Result struct {
	Recipe        *Recipe
	Findings      []Finding
	RawLines      []string
	Comments      Comments
	Source        string
	ResolvedVersion string
}

// LintError is returned when a recipe fails validation; Findings holds the
// full accumulated report (§4.A step 7, §7 "all errors are accumulated").
type LintError struct {
	Path     string
	Findings []Finding
	Source   string
}

func (e *LintError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d finding(s)", e.Path, len(e.Findings))
	return b.String()
}

// RenderReport formats the fatal/warning findings with a three-line context
// window around each, per §4.A step 7.
func RenderReport(e *LintError) string {
	var b strings.Builder
	for _, f := range e.Findings {
		fmt.Fprintf(&b, "[%s] %s: %s (line %d)\n", f.Severity, f.Field, f.Message, f.LineNumber)
		for _, line := range contextWindow(e.Source, f.LineNumber, 1) {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	return b.String()
}

// Lint validates the recipe at path and, on success, writes the canonical
// form (and optionally a .pkgver file), per §4.A.
func Lint(ctx context.Context, path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindIO, "reading recipe", err)
	}
	src := string(data)

	var findings []Finding
	firstLine := strings.SplitN(src, "\n", 2)[0]
	if !strings.HasPrefix(strings.TrimSpace(firstLine), "#!/SBUILD") {
		findings = append(findings, Finding{
			Field: "<file>", Message: "first line should be '#!/SBUILD'", LineNumber: 1, Severity: SeverityWarn,
		})
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, xerrs.Wrap(xerrs.KindValidation, "parsing YAML", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, xerrs.New(xerrs.KindValidation, "recipe must be a YAML mapping")
	}
	root := doc.Content[0]
	lineNos := lineNumbers(src)

	r := &report{findings: findings}
	rec := &Recipe{}
	seen := make(map[string]bool)
	versionAlias := ""

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode := root.Content[i]
		valNode := root.Content[i+1]
		key := keyNode.Value
		line := lineNos[key]
		if line == 0 {
			line = keyNode.Line
		}

		if seen[key] {
			r.errorf(key, line, "duplicate top-level key %q", key)
			continue
		}
		seen[key] = true

		spec, ok := LookupField(key)
		if !ok {
			r.warnf(key, line, "unknown field %q", key)
			continue
		}

		switch key {
		case "_disabled":
			var b bool
			if err := valNode.Decode(&b); err != nil {
				r.errorf(key, line, "'_disabled' field must be a boolean")
				continue
			}
			rec.Disabled = b
		case "_disabled_reason":
			rec.DisabledReason = validateDisabledReason(valNode, line, r)
		case "pkg":
			var s string
			if err := valNode.Decode(&s); err != nil || strings.TrimSpace(s) == "" {
				r.errorf(key, line, "'pkg' field must be a non-empty string")
				continue
			}
			rec.Pkg = s
		case "pkg_id":
			var s string
			_ = valNode.Decode(&s)
			rec.PkgID = s
		case "pkg_type":
			var s string
			if err := valNode.Decode(&s); err != nil {
				r.errorf(key, line, "'pkg_type' field must be a string")
				continue
			}
			found := false
			for _, t := range ValidPkgTypes {
				if string(t) == s {
					found = true
					break
				}
			}
			if !found {
				r.errorf(key, line, "invalid pkg_type %q", s)
				continue
			}
			rec.PkgType = PkgType(s)
		case "pkgver":
			var s string
			_ = valNode.Decode(&s)
			rec.Pkgver = s
		case "version":
			_ = valNode.Decode(&versionAlias)
		case "app_id":
			var s string
			_ = valNode.Decode(&s)
			rec.AppID = s
		case "build_util":
			rec.BuildUtil = validateStringArray(valNode, key, line, spec.Required, r)
		case "build_asset":
			rec.BuildAsset = validateBuildAsset(valNode, line, r)
		case "category":
			cats := validateStringArray(valNode, key, line, spec.Required, r)
			for _, c := range cats {
				if !contains(ValidCategories, c) {
					r.errorf(key, line, "invalid category %q", c)
				}
			}
			rec.Category = cats
		case "description":
			if d := validateDescription(valNode, line, r); d != nil {
				rec.Description = *d
			}
		case "distro_pkg":
			rec.DistroPkg = validateDistroPkg(valNode, line, r)
		case "homepage":
			rec.Homepage = validateURLArray(valNode, key, line, spec.Required, r)
		case "maintainer":
			rec.Maintainer = validateStringArray(valNode, key, line, spec.Required, r)
		case "icon":
			rec.Icon = validateResource(valNode, key, line, r)
		case "desktop":
			rec.Desktop = validateResource(valNode, key, line, r)
		case "license":
			rec.License = validateLicense(valNode, line, r)
		case "note":
			rec.Note = validateStringArray(valNode, key, line, spec.Required, r)
		case "provides":
			rec.Provides = validateStringArray(valNode, key, line, spec.Required, r)
		case "repology":
			rec.Repology = validateStringArray(valNode, key, line, spec.Required, r)
		case "src_url":
			rec.SrcURL = validateURLArray(valNode, key, line, spec.Required, r)
		case "tag":
			rec.Tag = validateStringArray(valNode, key, line, spec.Required, r)
		case "x_exec":
			if x := validateXExec(valNode, line, r); x != nil {
				rec.XExec = *x
			}
		}
	}

	// version: alias resolution — pkgver and version are equivalent.
	if rec.Pkgver == "" && versionAlias != "" {
		rec.Pkgver = versionAlias
	}

	// category defaults to ["Utility"] whether the key is absent or empty.
	if len(rec.Category) == 0 {
		rec.Category = []string{"Utility"}
	}

	for _, f := range Schema {
		if f.Required && !seen[f.Name] {
			r.errorf(f.Name, 0, "required field %q is missing", f.Name)
		}
	}

	if len(rec.SrcURL) > 0 {
		if rec.PkgID == "" {
			rec.PkgID = derivePkgID(rec.SrcURL[0])
		}
		if rec.AppID == "" {
			rec.AppID = derivePkgID(rec.SrcURL[0])
		}
	}

	for _, pair := range []struct{ field, val string }{
		{"pkg", rec.Pkg}, {"pkg_id", rec.PkgID}, {"app_id", rec.AppID},
	} {
		if pair.val != "" && !isValidPkgName(pair.val) {
			r.errorf(pair.field, 0, "'%s' contains characters outside [A-Za-z0-9+_.-]: %q", pair.field, pair.val)
		}
	}

	if r.hasErrors() {
		return nil, &LintError{Path: path, Findings: r.findings, Source: src}
	}

	if !opts.SkipShellcheck {
		if err := Shellcheck(rec.XExec.Shell, rec.XExec.Run); err != nil {
			r.findings = append(r.findings, Finding{Field: "x_exec.run", Message: err.Error(), Severity: SeverityError})
		}
		if rec.XExec.Pkgver != "" {
			if err := Shellcheck(rec.XExec.Shell, rec.XExec.Pkgver); err != nil {
				r.findings = append(r.findings, Finding{Field: "x_exec.pkgver", Message: err.Error(), Severity: SeverityError})
			}
		}
		if r.hasErrors() {
			return nil, &LintError{Path: path, Findings: r.findings, Source: src}
		}
	}

	timeout := opts.PkgverTimeout
	if timeout == 0 {
		timeout = DefaultPkgverTimeout
	}
	version, err := ResolveVersion(ctx, rec, timeout, opts.EmitPkgver)
	if err != nil {
		if opts.EmitPkgver {
			return nil, err
		}
	}

	comments := ParseComments(src)

	res := &Result{
		Recipe:          rec,
		Findings:        r.findings,
		Comments:        comments,
		Source:          src,
		ResolvedVersion: version,
	}

	outPath := path
	if !opts.InPlace {
		outPath = path + ".validated"
	}
	if err := WriteCanonical(outPath, rec, comments); err != nil {
		return nil, xerrs.Wrap(xerrs.KindIO, "writing canonical recipe", err)
	}
	if opts.EmitPkgver && version != "" {
		if err := os.WriteFile(path+".pkgver", []byte(version+"\n"), 0o644); err != nil {
			return nil, xerrs.Wrap(xerrs.KindIO, "writing pkgver file", err)
		}
	}

	return res, nil
}
