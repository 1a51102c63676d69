package registry

import (
	"encoding/json"
	"fmt"

	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// titleAnnotation is the OCI-standard annotation a layer's filename is read
// from (§3 "Manifest").
const titleAnnotation = "org.opencontainers.image.title"

// Domain-specific annotation keys under the dev.pkgforge.soar.* prefix
// (§3 "Manifest", §4.E "Push").
const (
	AnnotationGhcrPkg  = "dev.pkgforge.soar.ghcr_pkg"
	AnnotationBuildGHA = "dev.pkgforge.soar.build_gha"
	AnnotationBuildID  = "dev.pkgforge.soar.build_id"
	AnnotationJSON     = "dev.pkgforge.soar.json"
)

// Manifest is the OCI image manifest, reusing opencontainers/image-spec's
// wire type directly so round-tripping preserves every field §8's "Manifest
// parse" invariant requires.
type Manifest ociv1.Manifest

// ParseManifest decodes raw JSON into a Manifest.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "parsing manifest JSON", err)
	}
	return &m, nil
}

// GetAnnotation reads a manifest-level annotation, "" if absent.
func (m *Manifest) GetAnnotation(key string) string {
	if m.Annotations == nil {
		return ""
	}
	return m.Annotations[key]
}

// GhcrPkg reads the dev.pkgforge.soar.ghcr_pkg annotation.
func (m *Manifest) GhcrPkg() string { return m.GetAnnotation(AnnotationGhcrPkg) }

// BuildAction reads the dev.pkgforge.soar.build_gha annotation.
func (m *Manifest) BuildAction() string { return m.GetAnnotation(AnnotationBuildGHA) }

// PackageJSON parses the dev.pkgforge.soar.json embedded payload, if
// present.
func (m *Manifest) PackageJSON() (map[string]interface{}, error) {
	raw := m.GetAnnotation(AnnotationJSON)
	if raw == "" {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "parsing embedded package JSON", err)
	}
	return out, nil
}

// Filenames returns, in layer order, each layer's title annotation (§8
// "Manifest parse" scenario).
func (m *Manifest) Filenames() []string {
	out := make([]string, 0, len(m.Layers))
	for _, l := range m.Layers {
		if name, ok := l.Annotations[titleAnnotation]; ok {
			out = append(out, name)
		}
	}
	return out
}

// GetBlobRef builds "{ghcrPkgBase}@{digest}" for the layer whose title
// annotation matches filename, or "" if none match.
func (m *Manifest) GetBlobRef(ghcrPkgBase, filename string) string {
	for _, l := range m.Layers {
		if l.Annotations[titleAnnotation] == filename {
			return fmt.Sprintf("%s@%s", ghcrPkgBase, l.Digest)
		}
	}
	return ""
}

// FirstLayerDigest returns the first layer's digest string, or "".
func (m *Manifest) FirstLayerDigest() string {
	if len(m.Layers) == 0 {
		return ""
	}
	return string(m.Layers[0].Digest)
}

// TotalSize sums every layer's reported size (ghcr_size_raw, §4.F step 7).
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, l := range m.Layers {
		total += l.Size
	}
	return total
}
