package charts

import (
	"context"
	"fmt"
	"html/template"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts/svg"
)

// SVGEngine renders inline SVG. The server-rendered page uses it so the
// dashboard shows charts before the websocket connects.
type SVGEngine struct {
	Defaults Options
}

// NewSVGEngine builds the engine with the panel defaults.
func NewSVGEngine() *SVGEngine {
	return &SVGEngine{Defaults: Options{Width: svg.DefaultWidth, Height: svg.DefaultHeight}}
}

func (e *SVGEngine) Name() string { return "svg" }

// Draw renders spec as SVG bound to surface.
func (e *SVGEngine) Draw(ctx context.Context, surface Surface, spec Spec) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	markup, err := e.HTML(spec)
	if err != nil {
		return nil, err
	}
	return newDrawn(surface, Fragment{MIME: MIMESVG, Body: []byte(markup)}), nil
}

// HTML renders spec for direct template embedding.
func (e *SVGEngine) HTML(spec Spec) (template.HTML, error) {
	o := spec.Options.Overlay(e.Defaults)
	if spec.Empty() || len(spec.Datasets) == 0 {
		return svg.Empty(o.Width, o.Height, spec.Title, EmptyText), nil
	}
	ds := spec.Datasets[0]
	switch spec.Kind {
	case KindLine:
		return svg.Line(o.Width, o.Height, ds.Values, spec.Labels, svg.LineOpts{
			Title:       spec.Title,
			Description: ds.Label,
			StrokeColor: ds.BorderColor,
			FillColor:   ds.FillColor,
			ShowDots:    len(ds.Values) <= 31,
		})
	case KindBar:
		return svg.Bars(o.Width, o.Height, ds.Values, spec.Labels, svg.BarOpts{
			Title:       spec.Title,
			Description: ds.Label,
			SeriesLabel: ds.Label,
			Colors:      ds.Colors,
		})
	case KindDoughnut:
		if total(spec) <= 0 {
			return svg.Empty(o.Width, o.Height, spec.Title, EmptyText), nil
		}
		return svg.Donut(o.Width, o.Height, ds.Values, spec.Labels, svg.DonutOpts{
			Title:       spec.Title,
			Description: ds.Label,
			Colors:      ds.Colors,
		})
	default:
		return "", fmt.Errorf("charts: svg cannot draw %q", spec.Kind)
	}
}
