// Package sanitizer cleans user supplied text before it goes into a mail body.
package sanitizer

import (
	"strings"
	"unicode"
)

// EmptyPlaceholder replaces a body that is empty after cleaning.
const EmptyPlaceholder = "[Empty message]"

// Clean keeps printable runes plus newline, carriage return and tab, and trims
// surrounding whitespace. Invalid UTF-8 bytes come out as U+FFFD.
func Clean(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		return -1
	}, text)
	return strings.TrimSpace(cleaned)
}

// CleanOr is Clean with placeholder substituted for an empty result.
func CleanOr(text, placeholder string) string {
	if cleaned := Clean(text); cleaned != "" {
		return cleaned
	}
	return placeholder
}

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
