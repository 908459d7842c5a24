package service

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// plainText strips all markup and returns unescaped, trimmed text. The result
// is meant for JSON fields that clients render as text.
func plainText(policy *bluemonday.Policy, value string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
}
