package utils

import (
	"strings"
	"unicode"
)

const maxNameLength = 100 // Max length for sanitized path components

// SanitizeName reduces s to letters, digits, spaces, hyphens and underscores,
// then trims trailing whitespace. It may return "".
func SanitizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	sanitized := strings.TrimRightFunc(b.String(), unicode.IsSpace)

	if len(sanitized) > maxNameLength {
		// Cut on a rune boundary
		cut := maxNameLength
		for cut > 0 && !isRuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = strings.TrimRightFunc(sanitized[:cut], unicode.IsSpace)
	}
	return sanitized
}

// SanitizeNameOr returns SanitizeName(s), or fallback when that is empty.
func SanitizeNameOr(s, fallback string) string {
	if sanitized := SanitizeName(s); sanitized != "" {
		return sanitized
	}
	return fallback
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
