package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/export"
	"github.com/odyssey-erp/hr-analytics/internal/notify"
)

type blankImager struct{ w, h int }

func (b blankImager) Image(charts.Spec) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, b.w, b.h)), nil
}

type failingRasterizer struct{}

func (failingRasterizer) Rasterize(context.Context, export.Element, export.RasterOptions) (image.Image, error) {
	return nil, errors.New("canvas tainted")
}

type harness struct {
	session *Session
	fetcher *stubFetcher
	tickers *tickerFactory
	events  *events
	metrics *countingMetrics
}

func newHarness(t *testing.T, rasterizer export.Rasterizer) *harness {
	t.Helper()
	if rasterizer == nil {
		rasterizer = &export.LayoutRasterizer{Charts: func(w, h int) export.ChartImager { return blankImager{w: w, h: h} }}
	}
	h := &harness{fetcher: newStubFetcher(), tickers: &tickerFactory{}, events: &events{}, metrics: &countingMetrics{}}
	pipeline := &export.Pipeline{Rasterizer: rasterizer, Scale: 1, Now: func() time.Time { return fixedNow }}
	h.session = NewSession(context.Background(), uuid.New(), h.fetcher, h.events.publish, Config{
		Departments: stubDepartments{},
		Now:         func() time.Time { return fixedNow },
		NewTicker:   h.tickers.New,
		Adapter:     charts.NewAdapter(charts.DefaultRegistry(), "svg", "", nil),
		Exporter:    pipeline,
		Metrics:     h.metrics,
	})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	h.session.Mount()
	h.fetcher.awaitCall(t)
	h.session.Wait()
}

func TestMountLoadsAndStartsTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	assert.Equal(t, 1, h.fetcher.count())
	assert.Equal(t, 1, h.tickers.active())

	st := h.session.State()
	require.NotNil(t, st.Data)
	assert.False(t, st.Busy())
	assert.Equal(t, day(2025, 3, 1), h.fetcher.last().StartDate)

	chartsEvents := h.events.ofType(EventCharts)
	require.NotEmpty(t, chartsEvents)
	payload := chartsEvents[len(chartsEvents)-1].Payload.(ChartsPayload)
	assert.Equal(t, "svg", payload.Engine)
	require.Len(t, payload.Panels, 4)
	assert.Equal(t, charts.SurfaceAttendance, payload.Panels[0].Surface)
	assert.True(t, strings.HasPrefix(payload.Panels[0].Body, "<svg"))
	assert.NotEmpty(t, h.events.ofType(EventState))
}

func TestEachFilterChangeIssuesOneLoad(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.session.SetFilter(FieldDepartment, "3"))
	got := h.fetcher.awaitCall(t)
	require.NotNil(t, got.DepartmentID)
	assert.Equal(t, int64(3), *got.DepartmentID)

	require.NoError(t, h.session.SetFilter(FieldStartDate, "2025-03-05"))
	got = h.fetcher.awaitCall(t)
	assert.Equal(t, day(2025, 3, 5), got.StartDate)
	assert.Equal(t, int64(3), *got.DepartmentID)

	require.NoError(t, h.session.SetFilter(FieldEndDate, "2025-03-10"))
	got = h.fetcher.awaitCall(t)
	assert.Equal(t, day(2025, 3, 10), got.EndDate)

	// Same value again is not a change.
	require.NoError(t, h.session.SetFilter(FieldEndDate, "2025-03-10"))
	h.fetcher.assertNoCall(t)

	h.session.Wait()
	assert.Equal(t, 4, h.fetcher.count())
	// Filter changes restart the timer without stacking tickers.
	assert.Equal(t, 1, h.tickers.active())
	assert.Equal(t, 4, h.tickers.created())
}

func TestReversedRangeRaisesToastWithoutLoad(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	before := h.session.State().Filters

	require.NoError(t, h.session.SetFilter(FieldStartDate, "2025-04-01"))
	h.fetcher.assertNoCall(t)
	assert.Equal(t, before, h.session.State().Filters)
	assert.Contains(t, h.events.toastMessages(), MsgRangeReversed)
}

func TestInvalidFilterValues(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	err := h.session.SetFilter(FieldDepartment, "abc")
	require.ErrorIs(t, err, hranalytics.ErrInvalidFilter)
	assert.Contains(t, h.events.toastMessages(), "Invalid department_id: abc")

	require.ErrorIs(t, h.session.SetFilter(FieldStartDate, "15/03/2025"), hranalytics.ErrInvalidFilter)
	require.Error(t, h.session.SetFilter("salary", "1"))
	h.fetcher.assertNoCall(t)
}

func TestUnknownDepartmentIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	err := h.session.SetFilter(FieldDepartment, "999")
	require.ErrorIs(t, err, hranalytics.ErrDepartmentNotFound)
	assert.Contains(t, h.events.toastMessages(), "Department 999 does not exist")
	assert.Nil(t, h.session.State().Filters.DepartmentID)
	h.fetcher.assertNoCall(t)
}

func TestWideRangeRaisesToastWithoutLoad(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	before := h.session.State().Filters

	require.NoError(t, h.session.SetFilter(FieldStartDate, "2020-01-01"))
	h.fetcher.assertNoCall(t)
	assert.Equal(t, before, h.session.State().Filters)
	assert.Contains(t, h.events.toastMessages(), "Date range cannot exceed 365 days")
}

func TestDepartmentClearSpellings(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	for _, raw := range []string{"null", "undefined", "false", ""} {
		require.NoError(t, h.session.SetFilter(FieldDepartment, "4"), raw)
		h.fetcher.awaitCall(t)
		h.session.Wait()

		require.NoError(t, h.session.SetFilter(FieldDepartment, raw), raw)
		got := h.fetcher.awaitCall(t)
		assert.Nil(t, got.DepartmentID, raw)
		h.session.Wait()
	}
}

func TestInitialFiltersScopeFirstLoad(t *testing.T) {
	fetcher := newStubFetcher()
	id := int64(2)
	initial := hranalytics.Filters{DepartmentID: &id, StartDate: day(2025, 2, 13), EndDate: day(2025, 3, 15)}
	ev := &events{}
	sess := NewSession(context.Background(), uuid.New(), fetcher, ev.publish, Config{
		Filters:   &initial,
		Now:       func() time.Time { return fixedNow },
		NewTicker: (&tickerFactory{}).New,
		Adapter:   charts.NewAdapter(charts.DefaultRegistry(), "svg", "", nil),
	})
	t.Cleanup(sess.Close)

	sess.Mount()
	got := fetcher.awaitCall(t)
	sess.Wait()
	require.NotNil(t, got.DepartmentID)
	assert.Equal(t, int64(2), *got.DepartmentID)
	assert.Equal(t, day(2025, 2, 13), got.StartDate)

	states := ev.ofType(EventState)
	require.NotEmpty(t, states)
	snap := states[0].Payload.(Snapshot)
	assert.Equal(t, "2025-02-13", snap.StartDate)
	require.NotNil(t, snap.DepartmentID)
	assert.Equal(t, int64(2), *snap.DepartmentID)
}

func TestToggleOffOnLeavesOneTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	h.session.ToggleAutoRefresh()
	assert.Equal(t, 0, h.tickers.active())
	assert.False(t, h.session.Scheduler().Active())

	h.session.ToggleAutoRefresh()
	assert.Equal(t, 1, h.tickers.active())
	assert.True(t, h.session.State().AutoRefresh)

	msgs := h.events.toastMessages()
	assert.Contains(t, msgs, "Auto refresh disabled")
	assert.Contains(t, msgs, "Auto refresh enabled (30s)")
	h.fetcher.assertNoCall(t)
}

func TestFilterChangeWhileDisabledKeepsTimerOff(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	h.session.ToggleAutoRefresh()

	require.NoError(t, h.session.SetFilter(FieldDepartment, "2"))
	h.fetcher.awaitCall(t)
	h.session.Wait()
	assert.Equal(t, 0, h.tickers.active())
}

func TestTicksWhileLoadingAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	gate := make(chan struct{})
	h.fetcher.setGate(gate)

	h.session.Mount()
	h.fetcher.awaitCall(t)
	require.True(t, h.session.State().IsLoading)

	h.tickers.fire(t)
	h.tickers.fire(t)
	eventually(t, func() bool { return h.metrics.dropped.Load() == 2 })
	h.fetcher.assertNoCall(t)

	h.fetcher.setGate(nil)
	close(gate)
	h.session.Wait()
	eventually(t, func() bool { return !h.session.State().Busy() })

	h.tickers.fire(t)
	h.fetcher.awaitCall(t)
	h.session.Wait()
	assert.Equal(t, 2, h.fetcher.count())
	assert.True(t, h.session.State().LastUpdated.Equal(fixedNow))
}

func TestManualRefresh(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.session.HandleCommand(context.Background(), notify.Command{Type: CommandRefresh}))
	h.fetcher.awaitCall(t)
	h.session.Wait()
	assert.Contains(t, h.events.toastMessages(), "Refreshing data...")
}

func TestLoadFailureKeepsChartsAndToasts(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)
	chartsBefore := len(h.events.ofType(EventCharts))

	h.fetcher.setErr(errors.New("timeout"))
	h.session.Refresh()
	h.fetcher.awaitCall(t)
	h.session.Wait()

	st := h.session.State()
	require.NotNil(t, st.Data)
	assert.Equal(t, MsgLoadFailed, st.Error)
	assert.Len(t, h.events.ofType(EventCharts), chartsBefore)
	assert.Contains(t, h.events.toastMessages(), MsgLoadFailed)
}

func TestFilterCommandPayload(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	payload, _ := json.Marshal(FilterCommand{Field: FieldDepartment, Value: "7"})
	require.NoError(t, h.session.HandleCommand(context.Background(), notify.Command{Type: CommandFilter, Payload: payload}))
	got := h.fetcher.awaitCall(t)
	assert.Equal(t, int64(7), *got.DepartmentID)

	err := h.session.HandleCommand(context.Background(), notify.Command{Type: "dance"})
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestExportPublishesPDF(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	res, err := h.session.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HR_Analytics_Dashboard_2025-03-15_10-30-00.pdf", res.Filename)

	ready := h.events.ofType(EventExportReady)
	require.Len(t, ready, 1)
	payload := ready[0].Payload.(ExportPayload)
	assert.Equal(t, res.Filename, payload.Filename)
	assert.NotEmpty(t, payload.PDF)
	assert.Contains(t, h.events.toastMessages(), "PDF exported successfully")
}

func TestExportFailureRaisesToast(t *testing.T) {
	h := newHarness(t, failingRasterizer{})
	h.mount(t)

	_, err := h.session.Export(context.Background())
	require.Error(t, err)
	assert.Empty(t, h.events.ofType(EventExportReady))
	failed := h.events.ofType(EventExportFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "export: rasterize: canvas tainted", failed[0].Payload.(ExportFailedPayload).Error)
	assert.Contains(t, h.events.toastMessages(), "PDF export failed: export: rasterize: canvas tainted")
}

func TestExportCommandRunsInBackground(t *testing.T) {
	h := newHarness(t, nil)
	h.mount(t)

	require.NoError(t, h.session.HandleCommand(context.Background(), notify.Command{Type: CommandExport}))
	h.session.Wait()
	assert.Len(t, h.events.ofType(EventExportReady), 1)
}

func TestCloseCancelsTimerAndWork(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.setGate(make(chan struct{}))
	h.session.Mount()
	h.fetcher.awaitCall(t)

	h.session.Close()
	assert.Equal(t, 0, h.tickers.active())
	assert.Empty(t, h.session.adapter.Bound())
	require.ErrorIs(t, h.session.HandleCommand(context.Background(), notify.Command{Type: CommandRefresh}), ErrClosed)

	h.session.Close()
}

func TestFilterSummary(t *testing.T) {
	id := int64(12)
	f := hranalytics.Filters{DepartmentID: &id, StartDate: day(2025, 1, 1), EndDate: day(2025, 1, 31)}
	assert.Equal(t, "Department #12, 2025-01-01 to 2025-01-31", FilterSummary(f))
	f.DepartmentID = nil
	assert.Equal(t, "All departments, 2025-01-01 to 2025-01-31", FilterSummary(f))
}
