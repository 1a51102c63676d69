package recipe

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var pkgNameCharset = func() map[rune]bool {
	allowed := make(map[rune]bool)
	for _, r := range "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+_.-" {
		allowed[r] = true
	}
	return allowed
}()

func isValidPkgName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pkgNameCharset[r] {
			return false
		}
	}
	return true
}

var validURLSchemes = []string{"http", "https", "ftp"}

func isValidRecipeURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return contains(validURLSchemes, strings.ToLower(u.Scheme))
}

// report accumulates findings during a single lint pass, mirroring
// BuildConfigVisitor::record_error in sbuild-linter's validator.rs.
type report struct {
	findings []Finding
}

func (r *report) errorf(field string, line int, format string, args ...interface{}) {
	r.findings = append(r.findings, Finding{
		Field:      field,
		Message:    fmt.Sprintf(format, args...),
		LineNumber: line,
		Severity:   SeverityError,
	})
}

func (r *report) warnf(field string, line int, format string, args ...interface{}) {
	r.findings = append(r.findings, Finding{
		Field:      field,
		Message:    fmt.Sprintf(format, args...),
		LineNumber: line,
		Severity:   SeverityWarn,
	})
}

func (r *report) hasErrors() bool {
	for _, f := range r.findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// validateStringArray decodes value as a sequence of strings, deduplicating
// and warning on removed duplicates, per §4.A step 3.
func validateStringArray(value *yaml.Node, field string, line int, required bool, r *report) []string {
	if value.Kind != yaml.SequenceNode {
		if required {
			r.errorf(field, line, "'%s' field must be an array", field)
		}
		return nil
	}
	var raw []string
	if err := value.Decode(&raw); err != nil {
		r.errorf(field, line, "'%s' field must only contain strings", field)
		return nil
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) != len(raw) {
		r.warnf(field, line, "'%s' field contains duplicates or empty entries; removed automatically", field)
	}
	if len(out) == 0 && required {
		r.errorf(field, line, "'%s' field must contain at least 1 non-empty string", field)
		return nil
	}
	return out
}

// validateURLArray is validateStringArray plus a URL-scheme check on every
// surviving element.
func validateURLArray(value *yaml.Node, field string, line int, required bool, r *report) []string {
	urls := validateStringArray(value, field, line, required, r)
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if !isValidRecipeURL(u) {
			r.errorf(field, line, "'%s' field must contain valid URLs with scheme in {http,https,ftp}: %q", field, u)
			continue
		}
		out = append(out, u)
	}
	return out
}

func validateDescription(value *yaml.Node, line int, r *report) *Description {
	switch value.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(value.Value) == "" {
			r.errorf("description", line, "'description' field cannot be empty")
			return nil
		}
		return &Description{Simple: value.Value}
	case yaml.MappingNode:
		var raw map[string]string
		if err := value.Decode(&raw); err != nil {
			r.errorf("description", line, "'description' field must be either a string or a mapping of strings")
			return nil
		}
		if len(raw) == 0 {
			r.errorf("description", line, "'description' field cannot be empty")
			return nil
		}
		for k, v := range raw {
			if strings.TrimSpace(v) == "" {
				r.errorf("description."+k, line, "description value cannot be empty")
				return nil
			}
		}
		return &Description{Map: raw}
	default:
		r.errorf("description", line, "'description' field must be either a string or a mapping of strings")
		return nil
	}
}

func validateLicense(value *yaml.Node, line int, r *report) []LicenseEntry {
	if value.Kind != yaml.SequenceNode {
		r.errorf("license", line, "'license' field must be an array")
		return nil
	}
	out := make([]LicenseEntry, 0, len(value.Content))
	for _, item := range value.Content {
		var entry LicenseEntry
		if err := entry.UnmarshalYAML(item); err != nil {
			r.errorf("license", line, "%v", err)
			continue
		}
		if entry.ID == "" {
			r.errorf("license", line, "license entry missing 'id'")
			continue
		}
		out = append(out, entry)
	}
	return out
}

func validateResource(value *yaml.Node, field string, line int, r *report) *Resource {
	if value.Kind != yaml.MappingNode {
		r.errorf(field, line, "'%s' field must be a mapping with one of url/file/dir", field)
		return nil
	}
	var res Resource
	if err := value.Decode(&res); err != nil {
		r.errorf(field, line, "'%s' field: %v", field, err)
		return nil
	}
	if res.Kind() == "" {
		r.errorf(field, line, "'%s' field must set one of url, file, or dir", field)
		return nil
	}
	return &res
}

func validateBuildAsset(value *yaml.Node, line int, r *report) []BuildAsset {
	if value.Kind != yaml.SequenceNode {
		r.errorf("build_asset", line, "'build_asset' field must be an array")
		return nil
	}
	out := make([]BuildAsset, 0, len(value.Content))
	for _, item := range value.Content {
		var asset BuildAsset
		if err := item.Decode(&asset); err != nil {
			r.errorf("build_asset", line, "build_asset entry must be a mapping with url and out")
			continue
		}
		if asset.URL == "" || asset.Out == "" {
			r.errorf("build_asset", line, "build_asset entries require both 'url' and 'out'")
			continue
		}
		if !isValidRecipeURL(asset.URL) {
			r.errorf("build_asset", line, "build_asset url must be a valid URL: %q", asset.URL)
			continue
		}
		out = append(out, asset)
	}
	return out
}

func validateDistroPkg(value *yaml.Node, line int, r *report) *DistroPkg {
	var dp DistroPkg
	if err := dp.UnmarshalYAML(value); err != nil {
		r.errorf("distro_pkg", line, "%v", err)
		return nil
	}
	seen := make(map[string]bool)
	var walk func(node *DistroPkg, path string) bool
	walk = func(node *DistroPkg, path string) bool {
		if node.List != nil {
			leafSeen := make(map[string]bool)
			deduped := node.List[:0]
			ok := true
			for _, v := range node.List {
				if leafSeen[v] {
					r.errorf("distro_pkg", line, "duplicate leaf value %q under %q", v, path)
					ok = false
					continue
				}
				leafSeen[v] = true
				deduped = append(deduped, v)
			}
			node.List = deduped
			return ok
		}
		ok := true
		keys := make([]string, 0, len(node.Inner))
		for k := range node.Inner {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			childPath := path + "." + k
			if seen[childPath] {
				r.errorf("distro_pkg", line, "duplicate path %q", childPath)
				ok = false
				continue
			}
			seen[childPath] = true
			if !walk(node.Inner[k], childPath) {
				ok = false
			}
		}
		return ok
	}
	if !walk(&dp, "distro_pkg") {
		return nil
	}
	return &dp
}

func validateDisabledReason(value *yaml.Node, line int, r *report) *DisabledReason {
	var dr DisabledReason
	if err := dr.UnmarshalYAML(value); err != nil {
		r.errorf("_disabled_reason", line, "%v", err)
		return nil
	}
	return &dr
}
