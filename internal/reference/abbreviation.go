// Package reference builds quote reference codes of the form
// <year><client abbreviation><3-digit sequence>, e.g. 2024ACC007.
package reference

import (
	"strings"
	"unicode"
)

// Fallback is used whenever a name yields no usable abbreviation.
const Fallback = "XXX"

// DeriveAbbreviation turns a company or contact name into a short upper-case
// code. It is locale-naive and does not try to avoid collisions between
// clients; distinct clients may share a code.
//
//	"Acme"             -> "ACM"
//	"Acme Corp"        -> "ACC"
//	"Jean Paul Martin" -> "JPM"
func DeriveAbbreviation(name string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, name)
	words := strings.Fields(clean)

	switch len(words) {
	case 0:
		return Fallback
	case 1:
		return strings.ToUpper(prefix(words[0], 3))
	case 2:
		return strings.ToUpper(prefix(words[0], 2) + prefix(words[1], 1))
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteString(prefix(w, 1))
	}
	abbr := prefix(strings.ToUpper(b.String()), 6)
	if abbr == "" {
		return Fallback
	}
	return abbr
}

// NormalizeAbbreviation trims and upper-cases a stored abbreviation,
// substituting Fallback when nothing is left.
func NormalizeAbbreviation(abbr string) string {
	abbr = strings.ToUpper(strings.TrimSpace(abbr))
	if abbr == "" {
		return Fallback
	}
	return abbr
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
