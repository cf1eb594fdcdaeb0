// Package textnorm canonicalizes text before it is stored or analyzed.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the normalized form of *s, or nil when s is nil.
// A removed post body arrives as nil and stays nil.
func Normalize(s *string) *string {
	if s == nil {
		return nil
	}
	out := String(*s)
	return &out
}

// String decomposes s (NFKD) and drops every code point outside ASCII.
// Accented letters keep their base letter; everything else non-ASCII is removed.
func String(s string) string {
	// Chains carry state, so each call builds its own.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(isNonASCII)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return stripNonASCII(norm.NFKD.String(s))
	}
	return out
}

func isNonASCII(r rune) bool {
	return r > unicode.MaxASCII
}

func stripNonASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if isNonASCII(r) {
			return -1
		}
		return r
	}, s)
}
