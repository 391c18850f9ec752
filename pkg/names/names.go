// Package names converts human-readable resource and field names into the canonical forms used
// across magicapi: type names (PascalCase), property names (camelCase) and storage identifiers
// (snake_case).
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds accents and drops every rune outside [A-Za-z0-9 _-].
// Whitespace other than a plain space is turned into a space.
func Normalize(raw string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), raw)
	if err != nil {
		folded = raw
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == ' ':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// TypeName returns the PascalCase form of raw: words separated by spaces, underscores or hyphens
// are joined with their first letter upper-cased. The rest of each word is kept as is, so
// TypeName(TypeName(x)) == TypeName(x) and acronyms survive: TypeName("GDP") is "GDP".
func TypeName(raw string) string {
	words := strings.FieldsFunc(Normalize(raw), isSeparator)
	if len(words) == 0 {
		return ""
	}

	caser := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, w := range words {
		b.WriteString(caser.String(w))
	}
	return b.String()
}

// PropertyName is TypeName with a lower-case first letter (camelCase). Only that letter is
// lowered, so PropertyName("GDP") is "gDP".
func PropertyName(raw string) string {
	name := TypeName(raw)
	if name == "" {
		return ""
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// StorageID returns the snake_case identifier used for tables, columns and URL segments.
func StorageID(raw string) string {
	id := strings.TrimSpace(strings.ToLower(Normalize(raw)))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(id)
}

func isSeparator(r rune) bool {
	return r == ' ' || r == '_' || r == '-'
}
