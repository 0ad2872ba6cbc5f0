package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Line renders a responsive SVG line chart with an optional filled area.
func Line(width, height int, values []float64, labels []string, opts LineOpts) (template.HTML, error) {
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
	stroke := fallback(opts.StrokeColor, "#6366f1")
	axisColor := fallback(opts.AxisColor, "#475569")
	gridColor := fallback(opts.GridColor, "#e2e8f0")

	plotW := float64(width) - 2*padding
	plotH := float64(height) - 2*padding
	if plotW <= 0 || plotH <= 0 {
		return "", fmt.Errorf("svg: viewport too small")
	}

	maxVal := math.Max(0, maxOf(values))
	if almostEqual(maxVal, 0) {
		maxVal = 1
	}
	scale := plotH / maxVal
	xAt := func(i int) float64 {
		if len(values) == 1 {
			return padding + plotW/2
		}
		return padding + float64(i)*plotW/float64(len(values)-1)
	}
	yAt := func(v float64) float64 {
		return padding + plotH - math.Max(0, v)*scale
	}

	var path strings.Builder
	for i, v := range values {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&path, "%s%.2f %.2f ", cmd, xAt(i), yAt(v))
	}
	line := strings.TrimSpace(path.String())

	titleID := makeID(opts.Title, "line-title")
	descID := makeID(opts.Title, "line-desc")

	var b strings.Builder
	open(&b, width, height, titleID, descID, fallback(opts.Title, "Line chart"), fallback(opts.Description, "Trend data"))
	grid(&b, padding, plotW, plotH, maxVal, tickCount, axisColor, gridColor)

	if opts.FillColor != "" {
		base := padding + plotH
		fmt.Fprintf(&b, `<path d="%s L%.2f %.2f L%.2f %.2f Z" fill="%s" stroke="none" aria-hidden="true"></path>`,
			line, xAt(len(values)-1), base, xAt(0), base, opts.FillColor)
	}
	fmt.Fprintf(&b, `<path d="%s" fill="none" stroke="%s" stroke-width="2" stroke-linejoin="round" stroke-linecap="round"></path>`, line, stroke)

	if opts.ShowDots {
		for i, v := range values {
			fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="3" fill="%s"><title>%s: %s</title></circle>`,
				xAt(i), yAt(v), stroke, template.HTMLEscapeString(labels[i]), formatTick(v))
		}
	}

	every := opts.LabelEvery
	if every <= 0 {
		every = int(math.Ceil(float64(len(labels)) / 10))
	}
	for i, label := range labels {
		if i%every != 0 {
			continue
		}
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="middle">%s</text>`,
			xAt(i), padding+plotH+14, axisColor, template.HTMLEscapeString(label))
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func open(b *strings.Builder, width, height int, titleID, descID, title, desc string) {
	fmt.Fprintf(b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" role="img" aria-labelledby="%s %s">`, width, height, titleID, descID)
	fmt.Fprintf(b, `<title id="%s">%s</title>`, titleID, template.HTMLEscapeString(title))
	fmt.Fprintf(b, `<desc id="%s">%s</desc>`, descID, template.HTMLEscapeString(desc))
}

// grid draws horizontal guides with value ticks and both axes.
func grid(b *strings.Builder, padding, plotW, plotH, maxVal float64, ticks int, axisColor, gridColor string) {
	for i := 0; i <= ticks; i++ {
		ratio := float64(i) / float64(ticks)
		y := padding + plotH - ratio*plotH
		fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="0.5" stroke-dasharray="2,4" aria-hidden="true"></line>`,
			padding, y, padding+plotW, y, gridColor)
		fmt.Fprintf(b, `<text x="%.2f" y="%.2f" fill="%s" font-size="10" text-anchor="end">%s</text>`,
			padding-6, y+4, axisColor, template.HTMLEscapeString(formatTick(maxVal*ratio)))
	}
	fmt.Fprintf(b, `<g stroke="%s" aria-label="Axes">`, axisColor)
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, padding, padding, padding, padding+plotH)
	fmt.Fprintf(b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke-width="1"></line>`, padding, padding+plotH, padding+plotW, padding+plotH)
	b.WriteString("</g>")
}

func viewport(width, height int) (int, int) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return width, height
}

func positive(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func fallback(value, defaultValue string) string {
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	return value
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func makeID(base, suffix string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.ToLower(strings.TrimSpace(base)))
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "chart"
	}
	return cleaned + "-" + suffix
}

func formatTick(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fk", v/1_000)
	case almostEqual(v, math.Round(v)):
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
