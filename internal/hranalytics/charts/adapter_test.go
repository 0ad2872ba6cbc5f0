package charts

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
)

type countingInstance struct {
	destroyed *int
}

func (c countingInstance) Destroy() { *c.destroyed++ }

type fakeEngine struct {
	created   int
	destroyed int
	fail      error
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Draw(ctx context.Context, surface Surface, spec Spec) (Instance, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.created++
	surface.Draw(Fragment{MIME: MIMEHTML, Body: []byte(spec.Title)})
	return countingInstance{destroyed: &f.destroyed}, nil
}

func registryWith(engine Engine) Registry {
	return Registry{"fake": func() (Engine, error) { return engine, nil }}
}

func sampleSpec() Spec {
	return KPI([]hranalytics.KPIBucket{{ScoreRange: "90-99", Count: 3}})
}

func TestAdapterFallsBackToSecondPath(t *testing.T) {
	engine := &fakeEngine{}
	reg := registryWith(engine)
	reg["broken"] = func() (Engine, error) { return nil, errors.New("not installed") }

	adapter := NewAdapter(reg, "broken", "fake", nil)
	assert.True(t, adapter.Available())
	assert.Equal(t, "fake", adapter.Engine().Name())
}

func TestAdapterUnavailableWhenBothPathsFail(t *testing.T) {
	adapter := NewAdapter(Registry{}, "echarts", "chart", nil)
	assert.False(t, adapter.Available())

	canvas := NewCanvas(SurfaceKPI)
	err := adapter.Render(context.Background(), canvas, sampleSpec())
	assert.ErrorIs(t, err, ErrUnavailable)
	snap := canvas.Snapshot()
	assert.True(t, snap.Hidden)
	assert.Equal(t, PlaceholderText, snap.Placeholder)
}

func TestAdapterDestroysBeforeCreate(t *testing.T) {
	engine := &fakeEngine{}
	adapter := NewAdapter(registryWith(engine), "fake", "", nil)
	canvas := NewCanvas(SurfaceKPI)

	require.NoError(t, adapter.Render(context.Background(), canvas, sampleSpec()))
	require.NoError(t, adapter.Render(context.Background(), canvas, sampleSpec()))
	require.NoError(t, adapter.Render(context.Background(), canvas, sampleSpec()))

	assert.Equal(t, 3, engine.created)
	assert.Equal(t, 2, engine.destroyed)
	assert.Equal(t, []string{SurfaceKPI}, adapter.Bound())

	adapter.DestroyAll()
	assert.Equal(t, 3, engine.destroyed)
	assert.Empty(t, adapter.Bound())
}

func TestAdapterMissingSurface(t *testing.T) {
	engine := &fakeEngine{}
	adapter := NewAdapter(registryWith(engine), "fake", "", nil)

	assert.ErrorIs(t, adapter.Render(context.Background(), nil, sampleSpec()), ErrUnavailable)

	missing := MissingCanvas(SurfaceLeave)
	assert.ErrorIs(t, adapter.Render(context.Background(), missing, sampleSpec()), ErrUnavailable)
	assert.Equal(t, PlaceholderText, missing.Snapshot().Placeholder)
	assert.Zero(t, engine.created)
}

func TestAdapterDrawFailureDegradesSurface(t *testing.T) {
	engine := &fakeEngine{fail: errors.New("bad spec")}
	adapter := NewAdapter(registryWith(engine), "fake", "", nil)
	canvas := NewCanvas(SurfaceSalary)

	err := adapter.Render(context.Background(), canvas, sampleSpec())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, canvas.Snapshot().Hidden)
	assert.Empty(t, adapter.Bound())
}

func TestCanvasRedrawClearsPlaceholder(t *testing.T) {
	canvas := NewCanvas(SurfaceKPI)
	canvas.Hide()
	canvas.Placeholder(PlaceholderText)
	canvas.Draw(Fragment{MIME: MIMESVG, Body: []byte("<svg></svg>")})

	snap := canvas.Snapshot()
	assert.False(t, snap.Hidden)
	assert.Empty(t, snap.Placeholder)
	assert.Equal(t, "<svg></svg>", snap.Body)
}

func TestDefaultEnginesDrawEveryPanel(t *testing.T) {
	data := hranalytics.DashboardData{
		AttendanceTrends:   []hranalytics.AttendancePoint{{Date: "2025-03-01", WorkedHours: 8}, {Date: "2025-03-02", WorkedHours: 7.5}},
		KPIDistribution:    []hranalytics.KPIBucket{{ScoreRange: "90-99", Count: 3}},
		SalaryDistribution: []hranalytics.SalaryRow{{Department: "Engineering", TotalSalary: 25_000_000}},
	}
	for _, path := range []string{"echarts", "chart", "svg"} {
		t.Run(path, func(t *testing.T) {
			adapter := NewAdapter(DefaultRegistry(), path, "", nil)
			require.Equal(t, path, adapter.Engine().Name())
			for _, panel := range Derive(data) {
				canvas := NewCanvas(panel.Surface)
				require.NoError(t, adapter.Render(context.Background(), canvas, panel.Spec), panel.Surface)
				fragment, ok := canvas.Fragment()
				require.True(t, ok, panel.Surface)
				assert.NotEmpty(t, fragment.Body)
			}
			adapter.DestroyAll()
		})
	}
}

func TestRasterEnginePNG(t *testing.T) {
	engine := NewRasterEngine()
	var buf bytes.Buffer
	require.NoError(t, engine.Render(&buf, sampleSpec()))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())

	empty, err := engine.Image(Leave(nil))
	require.NoError(t, err)
	assert.Equal(t, 400, empty.Bounds().Dy())
}

func TestEChartsEngineEmbedsSeries(t *testing.T) {
	canvas := NewCanvas(SurfaceAttendance)
	_, err := NewEChartsEngine().Draw(context.Background(), canvas, Attendance([]hranalytics.AttendancePoint{{Date: "2025-03-01", WorkedHours: 8}}))
	require.NoError(t, err)
	snap := canvas.Snapshot()
	assert.Equal(t, MIMEHTML, snap.MIME)
	assert.True(t, strings.Contains(snap.Body, "hr-attendance"))
}
