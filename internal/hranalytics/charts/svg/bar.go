package svg

import (
	"fmt"
	"html/template"
	"strings"
)

// Bars renders one bar per label, coloured from opts.Colors in order.
func Bars(width, height int, values []float64, labels []string, opts BarOpts) (template.HTML, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("svg: values required")
	}
	if len(values) != len(labels) {
		return "", fmt.Errorf("svg: labels length must match values")
	}
	width, height = viewport(width, height)
	padding := positive(opts.Padding, DefaultPadding)
	tickCount := opts.TickCount
	if tickCount <= 0 {
		tickCount = DefaultTicks
	}
	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#e2e8f0")

	plotW := float64(width) - 2*padding
	plotH := float64(height) - 2*padding
	if plotW <= 0 || plotH <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	maxVal := maxOf(values)
	if maxVal <= 0 {
		maxVal = 1
	}
	scale := plotH / maxVal
	slot := plotW / float64(len(values))
	barW := slot * 0.6

	titleID := makeID(opts.Title, "bar-title")
	descID := makeID(opts.Title, "bar-desc")

	var b strings.Builder
	open(&b, width, height, titleID, descID, fallback(opts.Title, "Bar chart"), fallback(opts.Description, "Category comparison"))
	grid(&b, padding, plotW, plotH, maxVal, tickCount, axisColor, gridColor)

	series := fallback(opts.SeriesLabel, "Value")
	bottom := padding + plotH
	for i, v := range values {
		h := v * scale
		if h < 0 {
			h = 0
		}
		x := padding + float64(i)*slot + (slot-barW)/2
		color := "#0ea5e9"
		if i < len(opts.Colors) && opts.Colors[i] != "" {
			color = opts.Colors[i]
		}
		fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" aria-label="%s %s"><title>%s: %s</title></rect>`,
			x, bottom-h, barW, h, color,
			template.HTMLEscapeString(series), template.HTMLEscapeString(labels[i]),
			template.HTMLEscapeString(labels[i]), formatTick(v))
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`,
			x+barW/2, bottom+14, axisColor, template.HTMLEscapeString(labels[i]))
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}
