package citation

import (
	"fmt"
	"html"
	"strings"
)

// Style selects how markers are written when a result is flattened to a string
type Style string

const (
	StylePlain    Style = "plain"
	StyleMarkdown Style = "markdown"
	StyleHTML     Style = "html"
)

// ParseStyle maps a user-supplied style name to a Style; empty means plain
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain", "text":
		return StylePlain, nil
	case "markdown", "md":
		return StyleMarkdown, nil
	case "html":
		return StyleHTML, nil
	default:
		return "", fmt.Errorf("unknown render style %q", s)
	}
}

// Render flattens an annotated result into a single string with markers inline.
// HTML output escapes the text spans; plain and markdown output leave them as is.
func Render(r Result, style Style) string {
	if r.Passthrough() {
		if style == StyleHTML {
			return html.EscapeString(r.Text)
		}
		return r.Text
	}

	var b strings.Builder
	for _, s := range r.Spans {
		if !s.IsMarker() {
			if style == StyleHTML {
				b.WriteString(html.EscapeString(s.Text))
			} else {
				b.WriteString(s.Text)
			}
			continue
		}
		switch style {
		case StyleHTML:
			b.WriteString("<sup>")
			b.WriteString(s.Label())
			b.WriteString("</sup>")
		case StyleMarkdown:
			b.WriteByte('^')
			b.WriteString(s.Label())
			b.WriteByte('^')
		default:
			b.WriteString(s.Label())
		}
	}
	return b.String()
}
