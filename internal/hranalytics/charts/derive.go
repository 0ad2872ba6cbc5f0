package charts

import (
	"math"
	"time"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
)

// Kind selects how a Spec is drawn.
type Kind string

// Supported chart kinds.
const (
	KindLine     Kind = "line"
	KindBar      Kind = "bar"
	KindDoughnut Kind = "doughnut"
)

// Surface identifiers of the dashboard panels.
const (
	SurfaceAttendance = "attendance"
	SurfaceKPI        = "kpi"
	SurfaceSalary     = "salary"
	SurfaceLeave      = "leave"
)

// Palettes and colours of the dashboard panels.
var (
	KPIPalette    = []string{"#ef4444", "#f97316", "#eab308", "#22c55e", "#06b6d4"}
	SalaryPalette = []string{"#8b5cf6", "#06b6d4", "#10b981", "#f59e0b", "#ef4444"}
)

const (
	AttendanceStroke = "#6366f1"
	AttendanceFill   = "rgba(99, 102, 241, 0.1)"
	LeaveColor       = "#0ea5e9"

	attendanceLabelLayout = "02/01/2006"
)

// Dataset is one labelled run of values.
type Dataset struct {
	Label       string
	Values      []float64
	Colors      []string
	BorderColor string
	FillColor   string
}

// Options overlays engine defaults.
type Options struct {
	Width     int
	Height    int
	XAxisName string
	YAxisName string
}

// Overlay returns o with every zero field taken from base.
func (o Options) Overlay(base Options) Options {
	if o.Width <= 0 {
		o.Width = base.Width
	}
	if o.Height <= 0 {
		o.Height = base.Height
	}
	if o.XAxisName == "" {
		o.XAxisName = base.XAxisName
	}
	if o.YAxisName == "" {
		o.YAxisName = base.YAxisName
	}
	return o
}

// Spec is an engine independent chart description.
type Spec struct {
	Kind     Kind
	Title    string
	Labels   []string
	Datasets []Dataset
	Options  Options
}

// Points returns the number of labelled points.
func (s Spec) Points() int {
	return len(s.Labels)
}

// Empty reports whether the chart has nothing to plot.
func (s Spec) Empty() bool {
	return len(s.Labels) == 0
}

// PaletteColors assigns n colours from palette. When n exceeds the palette
// the colours wrap around.
func PaletteColors(palette []string, n int) []string {
	if len(palette) == 0 || n <= 0 {
		return []string{}
	}
	colors := make([]string, n)
	for i := range colors {
		colors[i] = palette[i%len(palette)]
	}
	return colors
}

// Attendance derives the average worked hours line.
func Attendance(points []hranalytics.AttendancePoint) Spec {
	labels := make([]string, 0, len(points))
	values := make([]float64, 0, len(points))
	for _, p := range points {
		labels = append(labels, attendanceLabel(p.Date))
		values = append(values, p.WorkedHours)
	}
	return Spec{
		Kind:   KindLine,
		Title:  "Attendance Trends",
		Labels: labels,
		Datasets: []Dataset{{
			Label:       "Average Worked Hours",
			Values:      values,
			BorderColor: AttendanceStroke,
			FillColor:   AttendanceFill,
		}},
		Options: Options{XAxisName: "Date", YAxisName: "Hours"},
	}
}

// KPI derives the score distribution bars.
func KPI(buckets []hranalytics.KPIBucket) Spec {
	labels := make([]string, 0, len(buckets))
	values := make([]float64, 0, len(buckets))
	for _, b := range buckets {
		labels = append(labels, b.ScoreRange+" pts")
		values = append(values, float64(b.Count))
	}
	return Spec{
		Kind:   KindBar,
		Title:  "KPI Distribution",
		Labels: labels,
		Datasets: []Dataset{{
			Label:  "Employees",
			Values: values,
			Colors: PaletteColors(KPIPalette, len(values)),
		}},
		Options: Options{XAxisName: "Score", YAxisName: "Employees"},
	}
}

// Salary derives the department doughnut in millions.
func Salary(rows []hranalytics.SalaryRow) Spec {
	labels := make([]string, 0, len(rows))
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		labels = append(labels, r.Department)
		values = append(values, math.Round(r.TotalSalary/1e6))
	}
	return Spec{
		Kind:   KindDoughnut,
		Title:  "Salary by Department",
		Labels: labels,
		Datasets: []Dataset{{
			Label:  "Salary (Million)",
			Values: values,
			Colors: PaletteColors(SalaryPalette, len(values)),
		}},
	}
}

// Leave derives the monthly leave bars.
func Leave(points []hranalytics.LeavePoint) Spec {
	labels := make([]string, 0, len(points))
	values := make([]float64, 0, len(points))
	for _, p := range points {
		labels = append(labels, p.Month)
		values = append(values, float64(p.Count))
	}
	return Spec{
		Kind:   KindBar,
		Title:  "Leave Trends",
		Labels: labels,
		Datasets: []Dataset{{
			Label:  "Leaves",
			Values: values,
			Colors: PaletteColors([]string{LeaveColor}, len(values)),
		}},
		Options: Options{XAxisName: "Month", YAxisName: "Leaves"},
	}
}

// Panel binds a derived spec to the surface it is drawn on.
type Panel struct {
	Surface string
	Spec    Spec
}

// Derive builds every dashboard panel in display order.
func Derive(data hranalytics.DashboardData) []Panel {
	return []Panel{
		{Surface: SurfaceAttendance, Spec: Attendance(data.AttendanceTrends)},
		{Surface: SurfaceKPI, Spec: KPI(data.KPIDistribution)},
		{Surface: SurfaceSalary, Spec: Salary(data.SalaryDistribution)},
		{Surface: SurfaceLeave, Spec: Leave(data.LeaveTrends)},
	}
}

func attendanceLabel(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format(attendanceLabelLayout)
}
