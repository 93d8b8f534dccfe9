package session

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds typed text for comparison with a word's canonical form:
// NFC composition, surrounding whitespace trimmed, lower case.
func Normalize(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// Matches reports whether typed text is an accepted answer for canonical
func Matches(typed, canonical string) bool {
	return Normalize(typed) == Normalize(canonical)
}
