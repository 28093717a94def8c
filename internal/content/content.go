package content

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainPolicy = bluemonday.StrictPolicy()

// MessageText returns the text to store for a message: the input as sent,
// trimmed. ok is false when nothing readable is left once markup is removed.
// Escaping belongs to whatever renders the text as HTML.
func MessageText(input string) (text string, ok bool) {
	text = strings.TrimSpace(input)
	if text == "" {
		return "", false
	}
	return text, PlainText(text) != ""
}

// PlainText strips all markup and returns literal text. Used for profile
// fields.
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(plainPolicy.Sanitize(input)))
}
