package svg

import (
	"fmt"
	"html/template"
	"math"
	"strings"
)

// Donut renders a doughnut with a legend on the right. Non-positive slices
// are skipped.
func Donut(width, height int, values []float64, labels []string, opts DonutOpts) (template.HTML, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("svg: values required")
	}
	if len(values) != len(labels) {
		return "", fmt.Errorf("svg: labels length must match values")
	}
	total := 0.0
	for _, v := range values {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		return "", fmt.Errorf("svg: values must sum above zero")
	}
	width, height = viewport(width, height)
	hole := opts.Hole
	if hole <= 0 || hole >= 1 {
		hole = DefaultHole
	}
	textColor := fallback(opts.TextColor, "#334155")

	radius := math.Min(float64(width)*0.6, float64(height)) / 2 * 0.9
	cx := radius + 12
	cy := float64(height) / 2
	inner := radius * hole

	titleID := makeID(opts.Title, "donut-title")
	descID := makeID(opts.Title, "donut-desc")

	var b strings.Builder
	open(&b, width, height, titleID, descID, fallback(opts.Title, "Doughnut chart"), fallback(opts.Description, "Share by category"))

	angle := -math.Pi / 2
	for i, v := range values {
		if v <= 0 {
			continue
		}
		color := sliceColor(opts.Colors, i)
		sweep := v / total * 2 * math.Pi
		if almostEqual(sweep, 2*math.Pi) {
			// a single full slice cannot be drawn as an arc
			fmt.Fprintf(&b, `<circle cx="%.2f" cy="%.2f" r="%.2f" fill="none" stroke="%s" stroke-width="%.2f"></circle>`,
				cx, cy, (radius+inner)/2, color, radius-inner)
		} else {
			fmt.Fprintf(&b, `<path d="%s" fill="%s"><title>%s: %s</title></path>`,
				arc(cx, cy, radius, inner, angle, angle+sweep), color,
				template.HTMLEscapeString(labels[i]), formatTick(v))
		}
		angle += sweep
	}

	legendX := cx + radius + 24
	for i, label := range labels {
		y := 24 + float64(i)*18
		fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="10" height="10" fill="%s"></rect>`, legendX, y-9, sliceColor(opts.Colors, i))
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" fill="%s" font-size="11">%s (%s)</text>`,
			legendX+16, y, textColor, template.HTMLEscapeString(label), formatTick(values[i]))
	}

	b.WriteString("</svg>")
	return template.HTML(b.String()), nil
}

func arc(cx, cy, outer, inner, from, to float64) string {
	large := 0
	if to-from > math.Pi {
		large = 1
	}
	x0, y0 := cx+outer*math.Cos(from), cy+outer*math.Sin(from)
	x1, y1 := cx+outer*math.Cos(to), cy+outer*math.Sin(to)
	x2, y2 := cx+inner*math.Cos(to), cy+inner*math.Sin(to)
	x3, y3 := cx+inner*math.Cos(from), cy+inner*math.Sin(from)
	return fmt.Sprintf("M%.2f %.2f A%.2f %.2f 0 %d 1 %.2f %.2f L%.2f %.2f A%.2f %.2f 0 %d 0 %.2f %.2f Z",
		x0, y0, outer, outer, large, x1, y1, x2, y2, inner, inner, large, x3, y3)
}

func sliceColor(colors []string, i int) string {
	if i < len(colors) && colors[i] != "" {
		return colors[i]
	}
	return "#94a3b8"
}
