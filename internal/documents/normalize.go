package documents

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripAccents removes combining marks so "Facturé" and "FACTURE" compare equal.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeTag folds a legacy free-text type/status value into a canonical
// uppercase, accent-free, single-spaced form.
func normalizeTag(value string) string {
	folded, _, err := transform.String(stripAccents, value)
	if err != nil {
		folded = value
	}
	folded = strings.ToUpper(strings.TrimSpace(folded))
	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := false
	for _, r := range folded {
		switch r {
		case '_', '-', '.', ' ', '\t':
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// normalizeNumber uppercases and trims a document number without touching
// its separators; prefix and sequence/year checks run on this form.
func normalizeNumber(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
