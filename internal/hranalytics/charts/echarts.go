package charts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// EChartsEngine renders interactive HTML charts with go-echarts.
type EChartsEngine struct {
	Theme    string
	Defaults Options
}

// NewEChartsEngine builds the engine with the dashboard defaults.
func NewEChartsEngine() *EChartsEngine {
	return &EChartsEngine{Theme: types.ThemeWesteros, Defaults: Options{Width: 800, Height: 400}}
}

func (e *EChartsEngine) Name() string { return "echarts" }

// Draw renders spec as a standalone HTML document bound to surface.
func (e *EChartsEngine) Draw(ctx context.Context, surface Surface, spec Spec) (Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := e.render(surface.ID(), spec)
	if err != nil {
		return nil, err
	}
	return newDrawn(surface, Fragment{MIME: MIMEHTML, Body: body}), nil
}

func (e *EChartsEngine) render(id string, spec Spec) ([]byte, error) {
	o := spec.Options.Overlay(e.Defaults)
	init := charts.WithInitializationOpts(opts.Initialization{
		ChartID: "hr-" + id,
		Theme:   e.Theme,
		Width:   fmt.Sprintf("%dpx", o.Width),
		Height:  fmt.Sprintf("%dpx", o.Height),
	})
	title := charts.WithTitleOpts(opts.Title{Title: spec.Title})

	var buf bytes.Buffer
	switch spec.Kind {
	case KindLine:
		line := charts.NewLine()
		line.SetGlobalOptions(init, title,
			charts.WithXAxisOpts(opts.XAxis{Name: o.XAxisName}),
			charts.WithYAxisOpts(opts.YAxis{Name: o.YAxisName}),
		)
		line.SetXAxis(spec.Labels)
		for _, ds := range spec.Datasets {
			data := make([]opts.LineData, len(ds.Values))
			for i, v := range ds.Values {
				data[i] = opts.LineData{Value: v}
			}
			line.AddSeries(ds.Label, data,
				charts.WithLineStyleOpts(opts.LineStyle{Color: ds.BorderColor}),
				charts.WithAreaStyleOpts(opts.AreaStyle{Color: ds.FillColor}),
			)
		}
		if err := line.Render(&buf); err != nil {
			return nil, err
		}
	case KindBar:
		bar := charts.NewBar()
		bar.SetGlobalOptions(init, title,
			charts.WithXAxisOpts(opts.XAxis{Name: o.XAxisName}),
			charts.WithYAxisOpts(opts.YAxis{Name: o.YAxisName}),
		)
		bar.SetXAxis(spec.Labels)
		for _, ds := range spec.Datasets {
			data := make([]opts.BarData, len(ds.Values))
			for i, v := range ds.Values {
				data[i] = opts.BarData{Value: v}
				if i < len(ds.Colors) {
					data[i].ItemStyle = &opts.ItemStyle{Color: ds.Colors[i]}
				}
			}
			bar.AddSeries(ds.Label, data)
		}
		if err := bar.Render(&buf); err != nil {
			return nil, err
		}
	case KindDoughnut:
		pie := charts.NewPie()
		pie.SetGlobalOptions(init, title)
		for _, ds := range spec.Datasets {
			data := make([]opts.PieData, 0, len(ds.Values))
			for i, v := range ds.Values {
				item := opts.PieData{Value: v}
				if i < len(spec.Labels) {
					item.Name = spec.Labels[i]
				}
				if i < len(ds.Colors) {
					item.ItemStyle = &opts.ItemStyle{Color: ds.Colors[i]}
				}
				data = append(data, item)
			}
			pie.AddSeries(ds.Label, data, charts.WithPieChartOpts(opts.PieChart{Radius: []string{"45%", "70%"}}))
		}
		if err := pie.Render(&buf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("charts: echarts cannot draw %q", spec.Kind)
	}
	return buf.Bytes(), nil
}
