package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"time"
)

// Pipeline defaults.
const (
	RootSelector   = ".o_hr_dashboard"
	ButtonSelector = ".export-pdf-btn"
	FilterSelector = ".filter-section"

	DefaultSettle = time.Second
	DefaultScale  = 1.5

	ButtonLabel     = "Export PDF"
	ButtonBusyLabel = "Exporting..."
)

// Background is the page colour behind the rasterized dashboard.
var Background = color.RGBA{R: 0xf8, G: 0xfa, B: 0xfc, A: 0xff}

// ErrRootMissing is returned when the document has no dashboard root.
var ErrRootMissing = errors.New("export: dashboard root not found")

// RasterOptions tune a rasterization.
type RasterOptions struct {
	Scale      float64
	Background color.Color
}

// Rasterizer captures an element as an image.
type Rasterizer interface {
	Rasterize(ctx context.Context, root Element, opts RasterOptions) (image.Image, error)
}

// Result is a finished export.
type Result struct {
	Filename string
	PDF      []byte
	Pages    int
}

// Pipeline turns a live dashboard document into a paginated PDF.
type Pipeline struct {
	Rasterizer Rasterizer
	Settle     time.Duration
	Scale      float64
	Now        func() time.Time
	Logger     *slog.Logger
}

// NewPipeline returns a pipeline with the default settle delay and scale.
func NewPipeline(r Rasterizer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Rasterizer: r, Settle: DefaultSettle, Scale: DefaultScale, Now: time.Now, Logger: logger}
}

// Export rasterizes doc and paginates the capture onto A4 landscape pages.
// Every style and control change made for the capture is undone before
// Export returns, whatever the outcome.
func (p *Pipeline) Export(ctx context.Context, doc Document) (res Result, err error) {
	button, _ := doc.Query(ButtonSelector).(Control)
	if button != nil {
		label := button.Label()
		button.SetLabel(ButtonBusyLabel)
		button.SetDisabled(true)
		defer func() {
			if label == "" {
				label = ButtonLabel
			}
			button.SetLabel(label)
			button.SetDisabled(false)
			if err != nil {
				button.SetDisplay("flex")
			}
		}()
	}

	img, err := p.capture(ctx, doc)
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	pages, err := Paginate(img, &buf)
	if err != nil {
		return Result{}, fmt.Errorf("export: paginate: %w", err)
	}
	return Result{Filename: Filename(p.now()), PDF: buf.Bytes(), Pages: pages}, nil
}

// capture prepares the document, rasterizes the root and restores the
// document on every exit path, panics included.
func (p *Pipeline) capture(ctx context.Context, doc Document) (img image.Image, err error) {
	root := doc.Query(RootSelector)
	if root == nil {
		return nil, ErrRootMissing
	}

	restore := prepare(doc, root)
	defer restore()
	defer func() {
		if r := recover(); r != nil {
			p.logger().Error("rasterizer panic", slog.Any("panic", r))
			img, err = nil, fmt.Errorf("export: rasterize: panic: %v", r)
		}
	}()

	if err := sleep(ctx, p.Settle); err != nil {
		return nil, err
	}
	if p.Rasterizer == nil {
		return nil, errors.New("export: no rasterizer configured")
	}
	scale := p.Scale
	if scale <= 0 {
		scale = DefaultScale
	}
	img, err = p.Rasterizer.Rasterize(ctx, root, RasterOptions{Scale: scale, Background: Background})
	if err != nil {
		return nil, fmt.Errorf("export: rasterize: %w", err)
	}
	return img, nil
}

// prepare hides the controls and lets the root grow to its natural size.
// The returned func puts everything back.
func prepare(doc Document, root Element) func() {
	type hidden struct {
		el      Element
		display string
	}
	var saved []hidden
	for _, sel := range []string{ButtonSelector, FilterSelector} {
		el := doc.Query(sel)
		if el == nil {
			continue
		}
		saved = append(saved, hidden{el: el, display: el.Display()})
		el.SetDisplay("none")
	}

	style := root.Style()
	root.SetStyle(Style{Height: "auto", Overflow: "visible", OverflowY: "visible"})

	return func() {
		root.SetStyle(style)
		for _, h := range saved {
			h.el.SetDisplay(h.display)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
