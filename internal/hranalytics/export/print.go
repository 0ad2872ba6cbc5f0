package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
	"github.com/odyssey-erp/hr-analytics/report"
)

// HTMLRenderer converts an HTML document into PDF bytes.
type HTMLRenderer interface {
	RenderHTML(ctx context.Context, html string, paper report.Paper) ([]byte, error)
}

// PrintExporter produces a print-quality PDF through a headless browser
// instead of the raster pipeline.
type PrintExporter struct {
	Renderer HTMLRenderer
	Charts   *charts.SVGEngine
	Paper    report.Paper
}

// NewPrintExporter prints on A4 landscape.
func NewPrintExporter(r HTMLRenderer) *PrintExporter {
	return &PrintExporter{Renderer: r, Charts: charts.NewSVGEngine(), Paper: report.A4Landscape}
}

type printPanel struct {
	Title string
	Chart template.HTML
}

type printPage struct {
	Title   string
	Period  string
	Filter  string
	Cards   []Card
	Panels  []printPanel
	Message string
}

var printTemplate = template.Must(template.New("print").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:24px;background:#f8fafc;color:#0f172a}
h1{font-size:20px;margin:0 0 4px}
.period{color:#64748b;margin-bottom:16px}
.kpi-cards{display:flex;gap:16px;margin-bottom:16px}
.kpi-card{flex:1;background:#fff;border:1px solid #e2e8f0;border-radius:8px;padding:12px}
.kpi-card span{display:block;color:#64748b;font-size:12px}
.kpi-card strong{font-size:20px}
.chart-grid{display:grid;grid-template-columns:1fr 1fr;gap:16px}
.chart-panel{background:#fff;border:1px solid #e2e8f0;border-radius:8px;padding:12px;break-inside:avoid}
.chart-panel svg{width:100%;height:auto}
</style></head><body>
<h1>{{.Title}}</h1>
<div class="period">{{.Period}}{{with .Filter}} &middot; {{.}}{{end}}</div>
{{with .Message}}<p class="error">{{.}}</p>{{end}}
<div class="kpi-cards">{{range .Cards}}<div class="kpi-card"><span>{{.Title}}</span><strong>{{.Value}}</strong></div>{{end}}</div>
<div class="chart-grid">{{range .Panels}}<div class="chart-panel"><h2>{{.Title}}</h2>{{.Chart}}</div>{{end}}</div>
</body></html>`))

// HTML renders the printable dashboard page.
func (p *PrintExporter) HTML(data hranalytics.DashboardData, f hranalytics.Filters, filterSummary string) (string, error) {
	engine := p.Charts
	if engine == nil {
		engine = charts.NewSVGEngine()
	}
	page := printPage{
		Title:   "HR Analytics Dashboard",
		Period:  hranalytics.FormatDate(f.StartDate) + " to " + hranalytics.FormatDate(f.EndDate),
		Filter:  filterSummary,
		Cards:   Cards(data),
		Message: data.Message,
	}
	for _, panel := range charts.Derive(data) {
		markup, err := engine.HTML(panel.Spec)
		if err != nil {
			return "", fmt.Errorf("chart %s: %w", panel.Surface, err)
		}
		page.Panels = append(page.Panels, printPanel{Title: panel.Spec.Title, Chart: markup})
	}
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, page); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render prints the dashboard to PDF.
func (p *PrintExporter) Render(ctx context.Context, data hranalytics.DashboardData, f hranalytics.Filters, filterSummary string) ([]byte, error) {
	if p == nil || p.Renderer == nil {
		return nil, errors.New("export: print renderer not configured")
	}
	html, err := p.HTML(data, f, filterSummary)
	if err != nil {
		return nil, err
	}
	return p.Renderer.RenderHTML(ctx, html, p.Paper)
}
