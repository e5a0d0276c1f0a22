package nest

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var htmlEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`"`, "&quot;",
	`'`, "&#x27;",
	`/`, "&#x2F;",
)

// EscapeHTML escapes the characters that are unsafe in HTML text and
// attribute values: & < > " ' and /.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// leafFilter returns the transformation applied to Text leaves for cfg.
func leafFilter(cfg *Config) func(string) string {
	switch {
	case cfg.SanitizeHTML:
		return bluemonday.UGCPolicy().Sanitize
	case cfg.EscapeHTML:
		return EscapeHTML
	default:
		return nil
	}
}
