package charts

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// EmptyText is drawn on rasters of specs without points.
const EmptyText = "No data"

// RasterEngine renders PNG charts with go-chart.
type RasterEngine struct {
	Defaults Options
}

// NewRasterEngine builds the engine with the dashboard defaults.
func NewRasterEngine() *RasterEngine {
	return &RasterEngine{Defaults: Options{Width: 800, Height: 400}}
}

func (e *RasterEngine) Name() string { return "chart" }

// Draw renders spec as a PNG bound to surface.
func (e *RasterEngine) Draw(ctx context.Context, surface Surface, spec Spec) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := e.Render(&buf, spec); err != nil {
		return nil, err
	}
	return newDrawn(surface, Fragment{MIME: MIMEPNG, Body: buf.Bytes()}), nil
}

// Image renders spec and decodes it for composition.
func (e *RasterEngine) Image(spec Spec) (image.Image, error) {
	var buf bytes.Buffer
	if err := e.Render(&buf, spec); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// Render writes spec as PNG to w.
func (e *RasterEngine) Render(w io.Writer, spec Spec) error {
	o := spec.Options.Overlay(e.Defaults)
	if spec.Empty() || (spec.Kind == KindDoughnut && total(spec) == 0) {
		return emptyPNG(w, o, spec.Title)
	}
	switch spec.Kind {
	case KindLine:
		return lineChart(spec, o).Render(chart.PNG, w)
	case KindBar:
		return barChart(spec, o).Render(chart.PNG, w)
	case KindDoughnut:
		return donutChart(spec, o).Render(chart.PNG, w)
	default:
		return fmt.Errorf("charts: raster cannot draw %q", spec.Kind)
	}
}

func lineChart(spec Spec, o Options) chart.Chart {
	n := len(spec.Labels)
	xs := make([]float64, n)
	ticks := make([]chart.Tick, n)
	for i, label := range spec.Labels {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: label}
	}
	series := make([]chart.Series, 0, len(spec.Datasets))
	for _, ds := range spec.Datasets {
		series = append(series, chart.ContinuousSeries{
			Name: ds.Label,
			Style: chart.Style{
				StrokeColor: ParseColor(ds.BorderColor),
				FillColor:   ParseColor(ds.FillColor),
				StrokeWidth: 2,
				DotColor:    ParseColor(ds.BorderColor),
				DotWidth:    3,
			},
			XValues: xs,
			YValues: ds.Values,
		})
	}
	return chart.Chart{
		Title:      spec.Title,
		TitleStyle: chart.Style{FontSize: 12, FontColor: drawing.ColorBlack},
		Width:      o.Width,
		Height:     o.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		XAxis: chart.XAxis{
			Name:  o.XAxisName,
			Ticks: ticks,
			Range: &chart.ContinuousRange{Min: -0.5, Max: float64(n) - 0.5},
		},
		YAxis: chart.YAxis{
			Name:  o.YAxisName,
			Range: &chart.ContinuousRange{Min: 0, Max: ceiling(spec)},
		},
		Series: series,
	}
}

func barChart(spec Spec, o Options) chart.BarChart {
	bars := make([]chart.Value, 0, len(spec.Labels))
	if len(spec.Datasets) > 0 {
		ds := spec.Datasets[0]
		for i, v := range ds.Values {
			value := chart.Value{Value: v}
			if i < len(spec.Labels) {
				value.Label = spec.Labels[i]
			}
			if i < len(ds.Colors) {
				c := ParseColor(ds.Colors[i])
				value.Style = chart.Style{FillColor: c, StrokeColor: c}
			}
			bars = append(bars, value)
		}
	}
	barWidth := 40
	if n := len(bars); n > 0 && o.Width/(n*2) < barWidth {
		barWidth = o.Width / (n * 2)
	}
	return chart.BarChart{
		Title:      spec.Title,
		TitleStyle: chart.Style{FontSize: 12, FontColor: drawing.ColorBlack},
		Width:      o.Width,
		Height:     o.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		BarWidth:   barWidth,
		XAxis:      chart.Style{FontSize: 8},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: ceiling(spec)},
		},
		Bars: bars,
	}
}

func donutChart(spec Spec, o Options) chart.DonutChart {
	values := make([]chart.Value, 0, len(spec.Labels))
	if len(spec.Datasets) > 0 {
		ds := spec.Datasets[0]
		for i, v := range ds.Values {
			value := chart.Value{Value: v}
			if i < len(spec.Labels) {
				value.Label = spec.Labels[i]
			}
			if i < len(ds.Colors) {
				value.Style = chart.Style{FillColor: ParseColor(ds.Colors[i])}
			}
			values = append(values, value)
		}
	}
	return chart.DonutChart{
		Title:      spec.Title,
		TitleStyle: chart.Style{FontSize: 12, FontColor: drawing.ColorBlack},
		Width:      o.Width,
		Height:     o.Height,
		Values:     values,
	}
}

func emptyPNG(w io.Writer, o Options, title string) error {
	img := image.NewRGBA(image.Rect(0, 0, o.Width, o.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	DrawText(img, 10, 20, title, color.Black)
	DrawText(img, o.Width/2-len(EmptyText)*7/2, o.Height/2, EmptyText, color.Gray{Y: 0x64})
	return png.Encode(w, img)
}

// DrawText writes text at the baseline (x, y) using the 7x13 bitmap face.
func DrawText(dst draw.Image, x, y int, text string, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// ParseColor accepts #rrggbb, #rgb and rgba(r, g, b, a) notations. Unknown
// values yield the zero colour, which go-chart treats as unset.
func ParseColor(value string) drawing.Color {
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, "#"):
		hex := value[1:]
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) != 6 {
			return drawing.Color{}
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return drawing.Color{}
		}
		return drawing.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	case strings.HasPrefix(value, "rgba(") && strings.HasSuffix(value, ")"):
		parts := strings.Split(value[len("rgba("):len(value)-1], ",")
		if len(parts) != 4 {
			return drawing.Color{}
		}
		var rgb [3]uint8
		for i := 0; i < 3; i++ {
			n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
			if err != nil || n < 0 || n > 255 {
				return drawing.Color{}
			}
			rgb[i] = uint8(n)
		}
		alpha, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || alpha < 0 || alpha > 1 {
			return drawing.Color{}
		}
		return drawing.Color{R: rgb[0], G: rgb[1], B: rgb[2], A: uint8(alpha*255 + 0.5)}
	}
	return drawing.Color{}
}

func ceiling(spec Spec) float64 {
	maxVal := 0.0
	for _, ds := range spec.Datasets {
		for _, v := range ds.Values {
			if v > maxVal {
				maxVal = v
			}
		}
	}
	if maxVal <= 0 {
		return 1
	}
	return maxVal * 1.1
}

func total(spec Spec) float64 {
	sum := 0.0
	for _, ds := range spec.Datasets {
		for _, v := range ds.Values {
			sum += v
		}
	}
	return sum
}
