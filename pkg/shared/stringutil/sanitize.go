package stringutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Sanitize collapses runs of whitespace to a single space, strips
// control characters, and truncates to maxBytes without splitting a
// rune. The result is safe to emit as a single chat line.
func Sanitize(text string, maxBytes int) string {
	text = strings.TrimSpace(text)
	text = whitespaceRE.ReplaceAllString(text, " ")
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || !unicode.IsGraphic(r) && r != ' ' {
			return -1
		}
		return r
	}, text)
	return Truncate(text, maxBytes)
}

// Truncate cuts s to at most maxBytes bytes on a rune boundary,
// appending an ellipsis when anything was dropped.
func Truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := 0
	for idx, r := range s {
		if idx+len(string(r)) > maxBytes-len("…") {
			break
		}
		cut = idx + len(string(r))
	}
	return s[:cut] + "…"
}
