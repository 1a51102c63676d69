package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// §8 scenario 5: latest-for-arch.
func TestLatestForArch(t *testing.T) {
	tags := []string{
		"latest",
		"srcbuild-20241227",
		"v1.0.0-x86_64-Linux",
		"v1.0.0-aarch64-Linux",
		"v1.1.0-x86_64-Linux",
	}
	got := LatestForArch(tags, "x86_64-Linux")
	require.Equal(t, "v1.1.0-x86_64-Linux", got)
}

func TestFilterByArchExcludesSrcbuild(t *testing.T) {
	tags := []string{"v1.0.0-X86_64-LINUX", "srcbuild-x86_64-linux-20241227", "v1.0.0-aarch64-linux"}
	got := FilterByArch(tags, "x86_64-Linux")
	require.Equal(t, []string{"v1.0.0-X86_64-LINUX"}, got)
}

func TestLatestForArchEmpty(t *testing.T) {
	require.Equal(t, "", LatestForArch(nil, "x86_64-Linux"))
	require.Equal(t, "", LatestForArch([]string{"latest-x86_64-Linux"}, "x86_64-Linux"))
}

// §8 scenario 4 (cache type derivation) and §4.E tag conventions.
func TestCacheTypeForRecipeDir(t *testing.T) {
	require.Equal(t, CacheTypeBin, CacheTypeForRecipeDir("binaries/bat"))
	require.Equal(t, CacheTypePkg, CacheTypeForRecipeDir("packages/bat"))
	require.Equal(t, CacheTypePkg, CacheTypeForRecipeDir("bat"))
}

func TestGhcrPath(t *testing.T) {
	require.Equal(t, "pkgforge/bincache/bat/static", GhcrPath("pkgforge", CacheTypeBin, "bat", "static"))
}

func TestTag(t *testing.T) {
	require.Equal(t, "v1.1.0-x86_64-linux", Tag("v1.1.0", "X86_64-Linux"))
}

// §8 scenario 6: manifest parse.
func TestManifestParse(t *testing.T) {
	raw := []byte(`{
		"schemaVersion": 2,
		"layers": [
			{
				"mediaType": "application/vnd.oci.image.layer.v1.tar",
				"size": 1024,
				"digest": "sha256:abc123",
				"annotations": {"org.opencontainers.image.title": "mybin"}
			}
		],
		"annotations": {
			"dev.pkgforge.soar.ghcr_pkg": "ghcr.io/pkgforge/mybin:v1.0"
		}
	}`)
	m, err := ParseManifest(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"mybin"}, m.Filenames())
	require.Equal(t, "ghcr.io/pkgforge/mybin:v1.0", m.GhcrPkg())
	require.Equal(t, "ghcr.io/pkgforge/mybin@sha256:abc123", m.GetBlobRef("ghcr.io/pkgforge/mybin", "mybin"))
	require.Equal(t, "sha256:abc123", m.FirstLayerDigest())
	require.Equal(t, int64(1024), m.TotalSize())
}
