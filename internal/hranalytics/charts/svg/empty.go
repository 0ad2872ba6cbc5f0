package svg

import (
	"fmt"
	"html/template"
	"strings"
)

// Empty renders the empty state of a chart with nothing to plot.
func Empty(width, height int, title, message string) template.HTML {
	width, height = viewport(width, height)
	titleID := makeID(title, "empty-title")
	descID := makeID(title, "empty-desc")
	var b strings.Builder
	open(&b, width, height, titleID, descID, fallback(title, "Chart"), fallback(message, "No data"))
	fmt.Fprintf(&b, `<text x="%d" y="%d" fill="#94a3b8" font-size="12" text-anchor="middle">%s</text>`,
		width/2, height/2, template.HTMLEscapeString(fallback(message, "No data")))
	b.WriteString("</svg>")
	return template.HTML(b.String())
}
