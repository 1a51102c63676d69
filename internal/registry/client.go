// Package registry talks OCI Distribution v2 to list tags and fetch
// manifests (§4.E), and shells out to `oras` for the write path,
// grounded on distri/cmd/distri-checkupstream's HTTP-client idiom and on
// mchmarny-cloud-native-stack's pkg/oci for the opencontainers/image-spec +
// distribution/reference combination.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/distribution/reference"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// anonymousBearer is the well-known anonymous token accepted by the host
// registry for public reads (§4.E "Authentication").
const anonymousBearer = "QQ=="

// Client is a cheaply-cloneable OCI v2 reader (§5 "Shared resources").
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a Client against baseURL (e.g. "https://ghcr.io").
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// TagsList is the body of GET /v2/{repo}/tags/list.
type TagsList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ParseRepository validates repo as an OCI repository reference using
// distribution/reference, per the DOMAIN STACK's wiring of that library.
func ParseRepository(repo string) (reference.Named, error) {
	named, err := reference.ParseNormalizedNamed(repo)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "invalid repository reference", err)
	}
	return named, nil
}

// ListTags implements §4.E "List tags".
func (c *Client) ListTags(ctx context.Context, repo string) (*TagsList, error) {
	url := fmt.Sprintf("%s/v2/%s/tags/list", c.BaseURL, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "building tags request", err)
	}
	req.Header.Set("Authorization", "Bearer "+anonymousBearer)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "listing tags", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, xerrs.New(xerrs.KindRegistry, fmt.Sprintf("tags/list: unexpected status %d for %s", resp.StatusCode, repo))
	}
	var tl TagsList
	if err := json.NewDecoder(resp.Body).Decode(&tl); err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "decoding tags/list", err)
	}
	return &tl, nil
}

// manifestAcceptHeader lists every media type §4.E's FetchManifest sends in
// Accept.
var manifestAcceptHeader = strings.Join([]string{
	ociv1.MediaTypeImageManifest,
	ociv1.MediaTypeImageIndex,
	"application/vnd.docker.distribution.manifest.v2+json",
	"application/vnd.docker.distribution.manifest.list.v2+json",
}, ", ")

// FetchManifest implements §4.E "Fetch manifest"; the raw body is returned
// for callers to parse with ParseManifest.
func (c *Client) FetchManifest(ctx context.Context, repo, tag string) ([]byte, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.BaseURL, repo, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "building manifest request", err)
	}
	req.Header.Set("Authorization", "Bearer "+anonymousBearer)
	req.Header.Set("Accept", manifestAcceptHeader)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "fetching manifest", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, xerrs.New(xerrs.KindManifestNotFound, fmt.Sprintf("%s:%s", repo, tag))
	}
	if resp.StatusCode/100 != 2 {
		return nil, xerrs.New(xerrs.KindRegistry, fmt.Sprintf("manifests: unexpected status %d for %s:%s", resp.StatusCode, repo, tag))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrs.Wrap(xerrs.KindRegistry, "reading manifest body", err)
	}
	return body, nil
}

// FilterByArch keeps tags that case-insensitively contain archTriplet and
// do not contain "srcbuild" (§4.E "Filter by arch").
func FilterByArch(tags []string, archTriplet string) []string {
	arch := strings.ToLower(archTriplet)
	var out []string
	for _, t := range tags {
		lower := strings.ToLower(t)
		if strings.Contains(lower, arch) && !strings.Contains(lower, "srcbuild") {
			out = append(out, t)
		}
	}
	return out
}

// LatestForArch implements §4.E "Latest-for-arch": among tags filtered by
// arch, exclude any starting with "latest" and return the lexicographic
// maximum, or "" if none remain.
func LatestForArch(tags []string, archTriplet string) string {
	filtered := FilterByArch(tags, archTriplet)
	var candidates []string
	for _, t := range filtered {
		if strings.HasPrefix(strings.ToLower(t), "latest") {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[len(candidates)-1]
}

// CacheType is the derived publish target, §4.E "Tag conventions" / GLOSSARY.
type CacheType string

const (
	CacheTypeBin CacheType = "bincache"
	CacheTypePkg CacheType = "pkgcache"
)

// CacheTypeForRecipeDir derives cache_type from a recipe's directory
// (binaries/… → bincache, packages/… → pkgcache), per §4.E.
func CacheTypeForRecipeDir(recipeDir string) CacheType {
	parts := strings.Split(strings.Trim(recipeDir, "/"), "/")
	for _, p := range parts {
		switch p {
		case "binaries":
			return CacheTypeBin
		case "packages":
			return CacheTypePkg
		}
	}
	return CacheTypePkg
}

// GhcrPath builds the {owner}/{cache_type}/{pkg_family}/{recipe_stem}
// repository path (§4.E, GLOSSARY "GHCR path").
func GhcrPath(owner string, cacheType CacheType, pkgFamily, recipeStem string) string {
	return fmt.Sprintf("%s/%s/%s/%s", owner, cacheType, pkgFamily, recipeStem)
}

// Tag builds the "{version}-{arch_lower}" tag convention.
func Tag(version, arch string) string {
	return fmt.Sprintf("%s-%s", version, strings.ToLower(arch))
}
