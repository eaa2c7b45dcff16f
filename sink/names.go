package sink

import (
	"strings"
	"unicode"

	"github.com/quarrydocs/quarry/core"
)

const maxFileNameLen = 120

// SafeFileName converts an arbitrary document identifier (usually a
// URL) into a filesystem-safe stem. Runs of unsafe characters collapse
// to a single underscore and the result is length-capped.
func SafeFileName(id string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range id {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "document"
	}
	if len(name) > maxFileNameLen {
		// Distinct ids sharing a long prefix must not collapse to the
		// same file, so the truncated stem carries a fingerprint of
		// the full id.
		name = name[:maxFileNameLen] + "-" + core.FingerprintText(id)
	}
	return name
}

// SanitizeTitle converts a page title into a lowercase hyphenated
// markdown filename stem.
func SanitizeTitle(title string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "untitled"
	}
	if len(name) > maxFileNameLen {
		name = strings.Trim(name[:maxFileNameLen], "-")
	}
	return name
}
