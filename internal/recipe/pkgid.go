package recipe

import (
	"net/url"
	"strings"
)

// derivePkgID implements §3's pkg_id/app_id derivation: take the part of
// the first src_url after "scheme://", discard the query string, and
// replace '/' with '.'.
func derivePkgID(srcURL string) string {
	u, err := url.Parse(srcURL)
	if err != nil {
		return ""
	}
	rest := u.Host + u.Path
	rest = strings.Trim(rest, "/")
	return strings.ReplaceAll(rest, "/", ".")
}
