// Package textutil normalizes extracted document text before parsing.
package textutil

import "strings"

// Normalize unifies line endings and collapses runs of horizontal whitespace.
// Line structure is preserved; the CV parser scans line by line.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(line)
	}
	return strings.Join(lines, "\n")
}

// collapseSpaces replaces runs of spaces and tabs with a single space and
// trims the ends of the line.
func collapseSpaces(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	inSpace := false
	for _, r := range line {
		if r == ' ' || r == '\t' || r == ' ' {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
