// Package textnorm canonicalizes inbound chat text before intent matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxInputRunes bounds how much of a message is kept by Sanitize.
const MaxInputRunes = 500

var unsafeChars = strings.NewReplacer("<", "", ">", "", "{", "", "}", "", "$", "", "`", "")

// Normalize lower-cases, strips accents and punctuation, and collapses whitespace.
// It never fails and Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, strings.ToLower(raw))
	if err != nil {
		s = strings.ToLower(raw)
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Sanitize truncates raw to MaxInputRunes and removes characters used for markup
// or template injection. Casing is preserved.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	if r := []rune(raw); len(r) > MaxInputRunes {
		raw = string(r[:MaxInputRunes])
	}
	return strings.TrimSpace(unsafeChars.Replace(raw))
}
