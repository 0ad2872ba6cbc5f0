package svg

// LineOpts customises the line chart renderer.
type LineOpts struct {
	Title       string
	Description string
	StrokeColor string
	FillColor   string
	AxisColor   string
	GridColor   string
	Padding     float64
	ShowDots    bool
	TickCount   int
	// LabelEvery thins x labels on long ranges; zero picks a step that keeps
	// roughly ten labels.
	LabelEvery int
}

// BarOpts customises the single series bar renderer.
type BarOpts struct {
	Title       string
	Description string
	SeriesLabel string
	Colors      []string
	AxisColor   string
	GridColor   string
	Padding     float64
	TickCount   int
}

// DonutOpts customises the doughnut renderer.
type DonutOpts struct {
	Title       string
	Description string
	Colors      []string
	TextColor   string
	// Hole is the inner radius as a fraction of the outer radius.
	Hole float64
}

// Defaults for the dashboard charts.
const (
	DefaultWidth   = 720
	DefaultHeight  = 280
	DefaultPadding = 32.0
	DefaultTicks   = 5
	DefaultHole    = 0.55
)
