// Package recipe models an SBUILD YAML recipe (§3 of the design) as a set of
// tagged-union Go types — one explicit constructor per accepted shape,
// instead of threading `interface{}` past the parsing boundary. Each type
// that can appear in more than one shape (Description, License, DistroPkg,
// DisabledReason) implements yaml.Unmarshaler by trying shapes in turn,
// mirroring the serde "untagged enum" visitors in
// sbuild-linter/src/{description,license,distro_pkg,disabled}.rs.
package recipe

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PkgType enumerates the accepted pkg_type values.
type PkgType string

const (
	PkgTypeAppBundle    PkgType = "appbundle"
	PkgTypeAppImage     PkgType = "appimage"
	PkgTypeArchive      PkgType = "archive"
	PkgTypeDynamic      PkgType = "dynamic"
	PkgTypeFlatImage    PkgType = "flatimage"
	PkgTypeGameImage    PkgType = "gameimage"
	PkgTypeNixAppImage  PkgType = "nixappimage"
	PkgTypeRunImage     PkgType = "runimage"
	PkgTypeStatic       PkgType = "static"
)

var ValidPkgTypes = []PkgType{
	PkgTypeAppBundle, PkgTypeAppImage, PkgTypeArchive, PkgTypeDynamic,
	PkgTypeFlatImage, PkgTypeGameImage, PkgTypeNixAppImage, PkgTypeRunImage,
	PkgTypeStatic,
}

// ValidCategories is the closed set accepted for the `category` field.
var ValidCategories = []string{
	"AudioVideo", "Audio", "Video", "Development", "Education", "Game",
	"Graphics", "Network", "Office", "Science", "Settings", "System",
	"Utility",
}

// ValidArch is the closed set of supported CPU architectures.
var ValidArch = []string{"aarch64", "loongarch64", "riscv64", "x86_64"}

// ValidOS is the closed set of supported operating systems.
var ValidOS = []string{"freebsd", "illumos", "linux", "netbsd", "openbsd", "redox"}

// Description is either a plain string, or a mapping of variant name to
// string (with an optional "_default" key), mirroring
// sbuild-linter/src/description.rs.
type Description struct {
	Simple string
	Map    map[string]string // nil if Simple is set
}

func (d *Description) IsMap() bool { return d.Map != nil }

func (d *Description) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Simple = value.Value
		return nil
	}
	if value.Kind == yaml.MappingNode {
		m := make(map[string]string)
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("description: %w", err)
		}
		d.Map = m
		return nil
	}
	return fmt.Errorf("description: expected a string or a mapping, got %v", value.Kind)
}

func (d Description) MarshalYAML() (interface{}, error) {
	if d.Map != nil {
		return d.Map, nil
	}
	return d.Simple, nil
}

// Default returns the description to show when no variant applies:
// Simple value, or Map["_default"] if present, else the empty string.
func (d *Description) Default() string {
	if d.Map == nil {
		return d.Simple
	}
	return d.Map["_default"]
}

// LicenseEntry is either a bare SPDX identifier string, or a mapping
// {id, file?, url?}, mirroring sbuild-linter/src/license.rs.
type LicenseEntry struct {
	ID   string
	File string
	URL  string
}

func (l *LicenseEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		l.ID = value.Value
		return nil
	}
	if value.Kind == yaml.MappingNode {
		var complex struct {
			ID   string `yaml:"id"`
			File string `yaml:"file"`
			URL  string `yaml:"url"`
		}
		if err := value.Decode(&complex); err != nil {
			return fmt.Errorf("license: %w", err)
		}
		l.ID, l.File, l.URL = complex.ID, complex.File, complex.URL
		return nil
	}
	return fmt.Errorf("license: expected a string or a mapping, got %v", value.Kind)
}

func (l LicenseEntry) MarshalYAML() (interface{}, error) {
	if l.File == "" && l.URL == "" {
		return l.ID, nil
	}
	out := map[string]string{"id": l.ID}
	if l.File != "" {
		out["file"] = l.File
	}
	if l.URL != "" {
		out["url"] = l.URL
	}
	return out, nil
}

// Resource is one of {url}, {file}, {dir} — used for icon/desktop fields.
type Resource struct {
	URL  string `yaml:"url,omitempty"`
	File string `yaml:"file,omitempty"`
	Dir  string `yaml:"dir,omitempty"`
}

// Kind reports which of url/file/dir is set ("" if none).
func (r Resource) Kind() string {
	switch {
	case r.URL != "":
		return "url"
	case r.File != "":
		return "file"
	case r.Dir != "":
		return "dir"
	default:
		return ""
	}
}

// BuildAsset is a {url, out} pair downloaded into the build scratch dir.
type BuildAsset struct {
	URL string `yaml:"url"`
	Out string `yaml:"out"`
}

// DistroPkg is a recursive tree: either a leaf list of package names, or a
// nested mapping distro -> DistroPkg, mirroring
// sbuild-linter/src/distro_pkg.rs's DistroPkg enum.
type DistroPkg struct {
	List  []string
	Inner map[string]*DistroPkg // nil if List is set
}

func (d *DistroPkg) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("distro_pkg: %w", err)
		}
		d.List = list
		return nil
	case yaml.MappingNode:
		inner := make(map[string]*DistroPkg)
		if err := value.Decode(&inner); err != nil {
			return fmt.Errorf("distro_pkg: %w", err)
		}
		d.Inner = inner
		return nil
	default:
		return fmt.Errorf("distro_pkg: expected a list or a mapping, got %v", value.Kind)
	}
}

func (d DistroPkg) MarshalYAML() (interface{}, error) {
	if d.Inner != nil {
		return d.Inner, nil
	}
	return d.List, nil
}

// ComplexDisabledReason is one entry of the {pkgname: [{date, pkg_id?, reason}]}
// disabled-reason shape.
type ComplexDisabledReason struct {
	Date   string `yaml:"date"`
	PkgID  string `yaml:"pkg_id,omitempty"`
	Reason string `yaml:"reason"`
}

// DisabledReason is either a plain string, a list of strings, or a mapping
// pkgname -> []ComplexDisabledReason, mirroring
// sbuild-linter/src/disabled.rs's DisabledReason enum.
type DisabledReason struct {
	Simple string
	List   []string
	Map    map[string][]ComplexDisabledReason
}

func (d *DisabledReason) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		d.Simple = value.Value
		return nil
	case yaml.SequenceNode:
		// Only a list of strings is accepted; a sequence of any other
		// shape (e.g. items that are maps) is rejected.
		var list []string
		if err := value.Decode(&list); err == nil {
			d.List = list
			return nil
		}
		return fmt.Errorf("_disabled_reason: unsupported sequence shape")
	case yaml.MappingNode:
		m := make(map[string][]ComplexDisabledReason)
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("_disabled_reason: %w", err)
		}
		d.Map = m
		return nil
	default:
		return fmt.Errorf("_disabled_reason: expected a string, a list, or a mapping, got %v", value.Kind)
	}
}

func (d DisabledReason) MarshalYAML() (interface{}, error) {
	switch {
	case d.Map != nil:
		return d.Map, nil
	case d.List != nil:
		return d.List, nil
	default:
		return d.Simple, nil
	}
}

// XExec is the required build-invocation block.
type XExec struct {
	Shell             string   `yaml:"shell"`
	Run               string   `yaml:"run"`
	Pkgver            string   `yaml:"pkgver,omitempty"`
	Entrypoint        string   `yaml:"entrypoint,omitempty"`
	Arch              []string `yaml:"arch,omitempty"`
	OS                []string `yaml:"os,omitempty"`
	Host              []string `yaml:"host,omitempty"`
	Conflicts         []string `yaml:"conflicts,omitempty"`
	Depends           []string `yaml:"depends,omitempty"`
	DisableShellcheck bool     `yaml:"disable_shellcheck,omitempty"`
}

// Recipe is the fully parsed, validated form of an SBUILD YAML document.
type Recipe struct {
	Disabled       bool            `yaml:"_disabled"`
	DisabledReason *DisabledReason `yaml:"_disabled_reason,omitempty"`

	Pkg         string          `yaml:"pkg"`
	PkgID       string          `yaml:"pkg_id,omitempty"`
	PkgType     PkgType         `yaml:"pkg_type,omitempty"`
	Pkgver      string          `yaml:"pkgver,omitempty"`
	AppID       string          `yaml:"app_id,omitempty"`
	BuildUtil   []string        `yaml:"build_util,omitempty"`
	BuildAsset  []BuildAsset    `yaml:"build_asset,omitempty"`
	Category    []string        `yaml:"category,omitempty"`
	Description Description     `yaml:"description"`
	DistroPkg   *DistroPkg      `yaml:"distro_pkg,omitempty"`
	Homepage    []string        `yaml:"homepage,omitempty"`
	Maintainer  []string        `yaml:"maintainer,omitempty"`
	Icon        *Resource       `yaml:"icon,omitempty"`
	Desktop     *Resource       `yaml:"desktop,omitempty"`
	License     []LicenseEntry  `yaml:"license,omitempty"`
	Note        []string        `yaml:"note,omitempty"`
	Provides    []string        `yaml:"provides,omitempty"`
	Repology    []string        `yaml:"repology,omitempty"`
	SrcURL      []string        `yaml:"src_url"`
	Tag         []string        `yaml:"tag,omitempty"`
	XExec       XExec           `yaml:"x_exec"`
}

// Version returns the explicit version: pkgver if set, else Version alias.
// Both fields are modeled as Pkgver per §3 ("pkgver / version ... alias-equivalent").
func (r *Recipe) Version() string { return r.Pkgver }

// CanonicalFieldOrder is the fixed field order for re-emission (4.A).
var CanonicalFieldOrder = []string{
	"_disabled", "pkg", "pkg_id", "pkg_type", "pkgver", "app_id",
	"build_util", "build_asset", "category", "description", "distro_pkg",
	"homepage", "maintainer", "icon", "desktop", "license", "note",
	"provides", "repology", "src_url", "tag", "x_exec",
}
