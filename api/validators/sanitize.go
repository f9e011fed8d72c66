package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeText trims s, drops control characters other than newline and tab, and
// caps it at maxRunes runes. It never splits a multibyte character.
func SanitizeText(s string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	cleaned = strings.TrimSpace(cleaned)
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	n := 0
	for i := range cleaned {
		if n == maxRunes {
			return strings.TrimSpace(cleaned[:i])
		}
		n++
	}
	return cleaned
}
