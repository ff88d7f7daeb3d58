package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// SanitizeText strips all markup from free text typed by users (notes,
// reasons, descriptions) and trims surrounding whitespace.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}
	// StrictPolicy escapes what it keeps; store the plain text
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
