// Package text holds the input normalization applied before tokenization.
package text

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize trims surrounding whitespace and lowercases s using root-locale
// Unicode rules (context-sensitive, e.g. a word-final Σ becomes ς).
// Empty input is valid and yields "".
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// A Caser is stateful, so one is built per call.
	return cases.Lower(language.Und).String(s)
}

// Words splits s on runs of Unicode whitespace. Empty fragments are dropped.
func Words(s string) []string {
	return strings.Fields(s)
}
