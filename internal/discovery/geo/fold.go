package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/example/cafescout/internal/discovery/domain"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold lowercases and strips combining marks so "Café" matches "cafe".
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// FilterByTerm keeps cafes whose name or address contains the term,
// case- and diacritic-insensitively. An empty term passes everything.
func FilterByTerm(cafes []domain.CafeRecord, term string) []domain.CafeRecord {
	needle := fold(strings.TrimSpace(term))
	if needle == "" {
		return cafes
	}
	out := make([]domain.CafeRecord, 0, len(cafes))
	for _, cafe := range cafes {
		if strings.Contains(fold(cafe.Name), needle) || strings.Contains(fold(cafe.Address), needle) {
			out = append(out, cafe)
		}
	}
	return out
}
