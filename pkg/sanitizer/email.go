package sanitizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var dotRegex = regexp.MustCompile(`\.+`)

// NormalizeEmail canonicalizes an address for lookups and storage:
// Unicode NFC, trimmed, lower-cased, with runs of dots in the local part
// collapsed. Values without exactly one "@" are returned trimmed and
// lower-cased only.
func NormalizeEmail(email string) string {
	email = norm.NFC.String(strings.ToLower(strings.TrimSpace(email)))

	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return email
	}

	local = dotRegex.ReplaceAllString(local, ".")
	local = strings.Trim(local, ".")

	return local + "@" + domain
}

// MaskEmail hides the local part for log output: "alice@example.com" → "a***@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
