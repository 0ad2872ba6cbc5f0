package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
)

// Layout metrics in unscaled pixels.
const (
	pageWidth     = 1200
	viewport      = 800
	pad           = 20
	gap           = 16
	headerHeight  = 48
	filtersHeight = 40
	cardHeight    = 88
	chartHeight   = 300
	chartColumns  = 2
)

var (
	cardFill   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	cardBorder = color.RGBA{R: 0xe2, G: 0xe8, B: 0xf0, A: 0xff}
	mutedText  = color.RGBA{R: 0x64, G: 0x74, B: 0x8b, A: 0xff}
	buttonFill = color.RGBA{R: 0x63, G: 0x66, B: 0xf1, A: 0xff}
)

// ChartImager renders a spec to an image of the given pixel size.
type ChartImager interface {
	Image(spec charts.Spec) (image.Image, error)
}

// LayoutRasterizer paints a Layout node tree: text with a bitmap face and
// chart panels through go-chart.
type LayoutRasterizer struct {
	// Charts overrides the chart renderer; nil uses charts.RasterEngine.
	Charts func(width, height int) ChartImager
}

// Rasterize implements Rasterizer.
func (r *LayoutRasterizer) Rasterize(ctx context.Context, root Element, opts RasterOptions) (image.Image, error) {
	node, ok := root.(*Node)
	if !ok {
		return nil, fmt.Errorf("export: cannot rasterize %T", root)
	}
	scale := opts.Scale
	if scale <= 0 {
		scale = 1
	}
	bg := opts.Background
	if bg == nil {
		bg = color.White
	}

	height := naturalHeight(node)
	if st := node.Style(); st.Height != "auto" && st.Overflow != "visible" && height > viewport {
		height = viewport
	}
	img := image.NewRGBA(image.Rect(0, 0, px(pageWidth, scale), px(height, scale)))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	y := pad
	for _, child := range node.Children {
		if !child.Visible() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h, err := r.drawBlock(img, child, y, scale)
		if err != nil {
			return nil, err
		}
		y += h + gap
	}
	return img, nil
}

func naturalHeight(root *Node) int {
	h := pad
	for _, child := range root.Children {
		if child.Visible() {
			h += blockHeight(child) + gap
		}
	}
	return h - gap + pad
}

func blockHeight(n *Node) int {
	switch n.Class {
	case "dashboard-header":
		return headerHeight
	case "kpi-cards":
		return cardHeight
	case "chart-grid":
		rows := int(math.Ceil(float64(visibleCount(n)) / chartColumns))
		if rows == 0 {
			return 0
		}
		return rows*chartHeight + (rows-1)*gap
	}
	switch n.Kind {
	case NodeFilters:
		return filtersHeight
	case NodeHeading:
		return headerHeight
	}
	return 0
}

func (r *LayoutRasterizer) drawBlock(img *image.RGBA, n *Node, y int, s float64) (int, error) {
	h := blockHeight(n)
	inner := pageWidth - 2*pad
	switch {
	case n.Class == "dashboard-header":
		for _, c := range n.Children {
			if !c.Visible() {
				continue
			}
			switch c.Kind {
			case NodeHeading:
				charts.DrawText(img, px(pad, s), px(y+28, s), c.Text, color.Black)
			case NodeButton:
				x := pad + inner - 140
				fill(img, x, y+8, 140, 32, s, buttonFill)
				charts.DrawText(img, px(x+16, s), px(y+28, s), c.Label(), color.White)
			}
		}
	case n.Kind == NodeFilters:
		fill(img, pad, y, inner, filtersHeight, s, cardBorder)
		charts.DrawText(img, px(pad+12, s), px(y+25, s), n.Text, mutedText)
	case n.Class == "kpi-cards":
		cards := visible(n)
		if len(cards) == 0 {
			break
		}
		w := (inner - gap*(len(cards)-1)) / len(cards)
		for i, c := range cards {
			x := pad + i*(w+gap)
			fill(img, x, y, w, cardHeight, s, cardBorder)
			fill(img, x+1, y+1, w-2, cardHeight-2, s, cardFill)
			charts.DrawText(img, px(x+14, s), px(y+30, s), c.Text, mutedText)
			charts.DrawText(img, px(x+14, s), px(y+62, s), c.Value, color.Black)
		}
	case n.Class == "chart-grid":
		panels := visible(n)
		w := (inner - gap*(chartColumns-1)) / chartColumns
		imager := r.imager(px(w, s), px(chartHeight, s))
		for i, p := range panels {
			x := pad + (i%chartColumns)*(w+gap)
			py := y + (i/chartColumns)*(chartHeight+gap)
			chart, err := imager.Image(p.Spec)
			if err != nil {
				return 0, fmt.Errorf("chart %q: %w", p.Text, err)
			}
			at := image.Pt(px(x, s), px(py, s))
			draw.Draw(img, chart.Bounds().Sub(chart.Bounds().Min).Add(at), chart, chart.Bounds().Min, draw.Over)
		}
	}
	return h, nil
}

func (r *LayoutRasterizer) imager(width, height int) ChartImager {
	if r.Charts != nil {
		return r.Charts(width, height)
	}
	return &charts.RasterEngine{Defaults: charts.Options{Width: width, Height: height}}
}

func visible(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Visible() {
			out = append(out, c)
		}
	}
	return out
}

func visibleCount(n *Node) int {
	return len(visible(n))
}

func fill(img *image.RGBA, x, y, w, h int, s float64, c color.Color) {
	rect := image.Rect(px(x, s), px(y, s), px(x+w, s), px(y+h, s))
	draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func px(v int, s float64) int {
	return int(math.Round(float64(v) * s))
}
