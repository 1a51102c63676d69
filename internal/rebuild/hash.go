// Package rebuild implements recipe-change hashing and the rebuild-decision
// policy (§4.G), grounded on sbuild-meta/src/hash.rs.
package rebuild

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// ComputeRecipeHash hashes content after stripping blank lines and
// non-shebang comment lines.
func ComputeRecipeHash(content string) string {
	return computeRecipeHashInternal(content, false)
}

// ComputeRecipeHashExcludingVersion additionally drops every line that
// starts with "version:" once surrounding whitespace is trimmed (indented
// ones included), so bumping only the version string does not change the
// hash.
func ComputeRecipeHashExcludingVersion(content string) string {
	return computeRecipeHashInternal(content, true)
}

func computeRecipeHashInternal(content string, excludeVersion bool) string {
	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "#!") {
			continue
		}
		if excludeVersion && strings.HasPrefix(trimmed, "version:") {
			continue
		}
		kept = append(kept, trimmed)
	}
	normalized := strings.Join(kept, "\n")
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether content's hash matches want.
func VerifyHash(content, want string) bool {
	return ComputeRecipeHash(content) == want
}
