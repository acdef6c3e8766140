// Package lookup loads the vocabulary tables (cities, announcement types,
// company names) and resolves free-text names to integer codes. All tables
// live on an immutable Table; reloads swap the whole table at once.
package lookup

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var trFold = map[rune]rune{
	'ğ': 'g', 'Ğ': 'g', 'ü': 'u', 'Ü': 'u', 'ş': 's', 'Ş': 's',
	'ı': 'i', 'İ': 'i', 'ö': 'o', 'Ö': 'o', 'ç': 'c', 'Ç': 'c',
}

// Normalize folds Turkish accents, lowercases, drops any remaining
// non-ASCII, and collapses runs of non-alphanumerics into single spaces.
// Every lookup key goes through this, so "İZMİR" and "izmir" agree.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true
	for _, r := range s {
		if f, ok := trFold[r]; ok {
			r = f
		}
		r = unicode.ToLower(r)
		if r >= utf8.RuneSelf {
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}
