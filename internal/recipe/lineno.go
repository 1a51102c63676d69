package recipe

import (
	"bufio"
	"regexp"
	"strings"
)

var topLevelKeyRe = regexp.MustCompile(`^([A-Za-z0-9_]+):`)

// lineNumbers scans src for the first occurrence of each top-level key
// (a line with no leading whitespace followed by "key:"), returning a map
// from key name to 1-based line number. Nested/child keys are not tracked
// independently; callers attribute errors inside a field to the field's own
// line, per §4.A ("nested errors inherit their parent key's line").
func lineNumbers(src string) map[string]int {
	out := make(map[string]int)
	scanner := bufio.NewScanner(strings.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		m := topLevelKeyRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := m[1]
		if _, ok := out[key]; !ok {
			out[key] = lineNo
		}
	}
	return out
}

// contextWindow returns up to 2*radius+1 lines of src centered on
// lineNumber (1-based), for the rendered error report (§4.A step 7).
func contextWindow(src string, lineNumber, radius int) []string {
	lines := strings.Split(src, "\n")
	if lineNumber < 1 || lineNumber > len(lines) {
		return nil
	}
	start := lineNumber - radius
	if start < 1 {
		start = 1
	}
	end := lineNumber + radius
	if end > len(lines) {
		end = len(lines)
	}
	return lines[start-1 : end]
}
