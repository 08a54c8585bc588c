// Package textnorm folds free text for tolerant matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var replacer = strings.NewReplacer("’", "'", "‘", "'", "_", " ", "\u00a0", " ")

// Fold lowercases s, strips diacritics, unifies apostrophes and collapses
// whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = replacer.Replace(strings.ToLower(folded))
	return strings.Join(strings.Fields(folded), " ")
}
