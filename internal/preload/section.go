package preload

import (
	"regexp"
	"strings"
)

var headingRe = regexp.MustCompile(`^(={1,6})(.+?)(={1,6})\s*$`)

// headingLevel returns the level of a heading line, or 0.
func headingLevel(line string) int {
	m := headingRe.FindStringSubmatch(line)
	if m == nil || strings.Trim(m[2], "= ") == "" {
		return 0
	}
	return min(len(m[1]), len(m[3]))
}

// ExtractSection returns section n of wikitext. Section 0 is the text before
// the first heading; section n runs from the n-th heading to the next heading
// of the same or a higher level. It returns false if there is no such section.
func ExtractSection(text string, n int) (string, bool) {
	if n < 0 {
		return "", false
	}
	lines := strings.Split(text, "\n")

	if n == 0 {
		end := len(lines)
		for i, l := range lines {
			if headingLevel(l) > 0 {
				end = i
				break
			}
		}
		return strings.TrimRight(strings.Join(lines[:end], "\n"), "\n"), true
	}

	seen, start, level := 0, -1, 0
	for i, l := range lines {
		lv := headingLevel(l)
		if lv == 0 {
			continue
		}
		if start >= 0 && lv <= level {
			return strings.TrimRight(strings.Join(lines[start:i], "\n"), "\n"), true
		}
		seen++
		if seen == n {
			start, level = i, lv
		}
	}
	if start < 0 {
		return "", false
	}
	return strings.TrimRight(strings.Join(lines[start:], "\n"), "\n"), true
}
