package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text for matching: accents removed ("Paracétamol" -> "paracetamol"),
// lower-cased, surrounding space trimmed and inner whitespace collapsed.
func Normalize(s string) string {
	// transform.Chain keeps state, so each call builds its own chain
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
