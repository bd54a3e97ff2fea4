package synonym

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// Fold removes diacritics: "Hemácias" -> "Hemacias".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize reduces an exam name to a comparison key:
//  1. Strip accents
//  2. Upper-case
//  3. Replace punctuation with spaces
//  4. Collapse whitespace
func Normalize(name string) string {
	name = strings.ToUpper(Fold(name))
	name = punctRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
}

// exactKey is the case-insensitive exact-match key.
func exactKey(name string) string {
	return strings.ToUpper(CleanSpaces(name))
}

// CleanSpaces trims and collapses internal whitespace without touching case.
func CleanSpaces(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}
