package domain

import "strings"

// separators in priority order; the first one present wins.
var nameSeparators = []string{" - ", ":"}

// ResolveStudentName extracts the candidate student name from an event
// title. The segment before the first separator is kept, parenthetical
// suffixes like "(Online)" are stripped, and whitespace is collapsed.
// Best effort only: profile lookup on the result stays case-insensitive.
func ResolveStudentName(title string) string {
	candidate := title
	for _, sep := range nameSeparators {
		if idx := strings.Index(candidate, sep); idx >= 0 {
			candidate = candidate[:idx]
			break
		}
	}

	candidate = stripParentheticals(candidate)

	return strings.Join(strings.Fields(candidate), " ")
}

func stripParentheticals(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
