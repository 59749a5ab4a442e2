package normalize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// Text strips all markup, leaving trimmed plain text.
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// HTML reduces markup to a safe user-content subset: no scripts, no event
// handlers, no active content.
func HTML(s string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(s))
}
