package fileutil

import "strings"

// SanitizeToken reduces value to a token that is safe inside a file name.
// ASCII letters, digits, hyphens and underscores are kept; every other rune
// becomes an underscore. Empty results yield fallback.
func SanitizeToken(value, fallback string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return fallback
	}
	return out
}
