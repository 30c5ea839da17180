package cache

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text into its cache key: accents are stripped, letters are
// lower-cased, punctuation becomes a space and runs of whitespace collapse to
// one space. It is pure; identical logical inputs always map to the same key.
func Normalize(text string) string {
	// transform chains carry state, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		default:
			space = true
		}
	}
	return b.String()
}

// CollapseSpace trims text and collapses runs of whitespace to one space.
// It is the key function for text whose case and punctuation carry meaning.
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
