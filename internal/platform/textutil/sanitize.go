package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips markup and control characters from user supplied text,
// collapses whitespace and truncates to limit runes. limit <= 0 disables truncation.
func PlainText(value string, limit int) string {
	stripped := html.UnescapeString(strictPolicy.Sanitize(value))
	fields := strings.FieldsFunc(stripped, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
	cleaned := strings.Join(fields, " ")
	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			cleaned = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return cleaned
}
