package recipe

import (
	"bufio"
	"strings"
)

// Comments holds the header comment lines (the "#!/SBUILD" shebang plus any
// comment lines after the last top-level field) and, per top-level field,
// the comment lines collected since the previous top-level field, scanned
// once over the raw source text. Comment lines are collected whether or not
// they are indented; only non-indented "key:" lines end a block and receive
// it. Ground: sbuild-linter/src/comments.rs.
type Comments struct {
	FieldComments map[string][]string
	HeaderComments []string
}

func extractFieldName(line string) string {
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		return strings.TrimSpace(line[:idx])
	}
	return ""
}

// ParseComments scans src for root-level comment blocks and the shebang.
func ParseComments(src string) Comments {
	c := Comments{FieldComments: make(map[string][]string)}
	var current []string
	shebangAdded := false

	scanner := bufio.NewScanner(strings.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#!/SBUILD") {
			if !shebangAdded {
				c.HeaderComments = append(c.HeaderComments, trimmed)
				shebangAdded = true
			}
			continue
		}

		if strings.HasPrefix(trimmed, "#") {
			current = append(current, line)
			continue
		}
		if trimmed == "" {
			continue
		}
		// Only root-level (non-indented) lines delimit a field.
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		if field := extractFieldName(trimmed); field != "" {
			if len(current) > 0 {
				cp := make([]string, len(current))
				copy(cp, current)
				c.FieldComments[field] = cp
				current = nil
			}
		}
	}
	if len(current) > 0 {
		c.HeaderComments = append(c.HeaderComments, current...)
	}
	return c
}
