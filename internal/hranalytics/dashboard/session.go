package dashboard

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/export"
	"github.com/odyssey-erp/hr-analytics/internal/notify"
)

// Server pushed event types.
const (
	EventState        = "state"
	EventCharts       = "charts"
	EventExportReady  = "export_ready"
	EventExportFailed = "export_failed"
)

// Browser commands.
const (
	CommandFilter      = "filter"
	CommandRefresh     = "refresh"
	CommandToggle      = "toggle_auto_refresh"
	CommandExport      = "export"
	FieldDepartment    = "department_id"
	FieldStartDate     = "start_date"
	FieldEndDate       = "end_date"
	exportKindRaster   = "raster"
	exportOutcomeOK    = "success"
	exportOutcomeError = "error"
)

var (
	// ErrUnknownCommand is returned for a command type the session does not handle.
	ErrUnknownCommand = errors.New("dashboard: unknown command")
	// ErrClosed is returned once the session has been torn down.
	ErrClosed = errors.New("dashboard: session closed")
	// ErrExportRunning is returned while an export is already in progress.
	ErrExportRunning = errors.New("dashboard: export already running")
)

// FilterCommand is the payload of a filter command.
type FilterCommand struct {
	Field string `json:"field" validate:"required,oneof=department_id start_date end_date"`
	Value string `json:"value" validate:"max=32"`
}

// ChartsPayload is the body of a charts event.
type ChartsPayload struct {
	Engine string            `json:"engine"`
	Panels []charts.Snapshot `json:"panels"`
}

// ExportPayload is the body of an export_ready event.
type ExportPayload struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	PDF      string `json:"pdf"`
}

// ExportFailedPayload is the body of an export_failed event.
type ExportFailedPayload struct {
	Error string `json:"error"`
}

// Config tunes a Session.
type Config struct {
	// Filters is the initial scope; nil means month to date.
	Filters *hranalytics.Filters
	// Departments confirms department filters. Without it any positive id
	// is accepted.
	Departments hranalytics.DepartmentChecker
	Interval    time.Duration
	Now         func() time.Time
	NewTicker   TickerFunc
	Adapter     *charts.Adapter
	Exporter    *export.Pipeline
	Metrics     Metrics
	Logger      *slog.Logger
	Toasts      []notify.CenterOption
}

// Session is the server side of one live dashboard. It owns the state store,
// the loader, exactly one scheduler and the chart surfaces.
type Session struct {
	id          uuid.UUID
	store       *Store
	loader      *Loader
	scheduler   *Scheduler
	toasts      *notify.Center
	adapter     *charts.Adapter
	exporter    *export.Pipeline
	departments hranalytics.DepartmentChecker
	surfaces    map[string]*charts.Canvas
	publish     func(notify.Event)
	metrics     Metrics
	logger      *slog.Logger
	validate    *validator.Validate

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lifeMu    sync.Mutex
	renderMu  sync.Mutex
	closed    atomic.Bool
	exporting atomic.Bool
}

// NewSession wires a session for id. Events go to publish; nothing runs
// until Mount.
func NewSession(parent context.Context, id uuid.UUID, fetcher Fetcher, publish func(notify.Event), cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Adapter == nil {
		cfg.Adapter = charts.NewAdapter(charts.DefaultRegistry(), "echarts", "chart", cfg.Logger)
	}
	if cfg.Exporter == nil {
		cfg.Exporter = export.NewPipeline(&export.LayoutRasterizer{}, cfg.Logger)
	}
	if publish == nil {
		publish = func(notify.Event) {}
	}
	logger := cfg.Logger.With("session", id.String())
	ctx, cancel := context.WithCancel(parent)

	initial := NewState(cfg.Now(), cfg.Interval)
	if cfg.Filters != nil {
		initial = initial.WithFilters(*cfg.Filters)
	}
	s := &Session{
		id:          id,
		store:       NewStore(initial),
		adapter:     cfg.Adapter,
		exporter:    cfg.Exporter,
		departments: cfg.Departments,
		publish:     publish,
		metrics:     cfg.Metrics,
		logger:      logger,
		validate:    validator.New(),
		ctx:         ctx,
		cancel:      cancel,
		surfaces:    make(map[string]*charts.Canvas),
	}
	for _, surface := range []string{charts.SurfaceAttendance, charts.SurfaceKPI, charts.SurfaceSalary, charts.SurfaceLeave} {
		s.surfaces[surface] = charts.NewCanvas(surface)
	}
	s.toasts = notify.NewCenter(publish, cfg.Toasts...)
	s.loader = NewLoader(s.store, fetcher, logger, cfg.Metrics)
	s.loader.now = cfg.Now
	s.scheduler = NewScheduler(s.store.State().Interval, cfg.NewTicker, s.busy, s.reload)
	s.scheduler.OnDrop(func() {
		cfg.Metrics.TickDropped()
		logger.Debug("auto refresh tick dropped while busy")
	})
	s.store.Observe(s.apply)
	return s
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns a copy of the session state.
func (s *Session) State() State { return s.store.State() }

// Scheduler exposes the session timer.
func (s *Session) Scheduler() *Scheduler { return s.scheduler }

// Toasts exposes the session toast center.
func (s *Session) Toasts() *notify.Center { return s.toasts }

// Surface returns the canvas of a chart panel.
func (s *Session) Surface(id string) *charts.Canvas { return s.surfaces[id] }

// Mount publishes the initial state, issues the first load and starts the
// auto-refresh timer.
func (s *Session) Mount() {
	if s.closed.Load() {
		return
	}
	s.publishState()
	s.reload()
	s.scheduler.Start(s.store.State().AutoRefresh)
}

// Dispatch reduces a into the session and runs its effects.
func (s *Session) Dispatch(a Action) Effects {
	if s.closed.Load() {
		return Effects{}
	}
	_, fx := s.store.Dispatch(a)
	return fx
}

// Refresh is a manual refresh; ignored while busy.
func (s *Session) Refresh() { s.Dispatch(RequestRefresh{}) }

// ToggleAutoRefresh flips periodic reloading.
func (s *Session) ToggleAutoRefresh() { s.Dispatch(ToggleAutoRefresh{}) }

// Invalidate reloads quietly after the server side cache moved.
func (s *Session) Invalidate() { s.Dispatch(Invalidate{}) }

// SetFilter applies a raw filter value as sent by the browser. Date ranges
// that are reversed or wider than hranalytics.MaxRangeDays are rejected by
// the reducer with an error toast.
func (s *Session) SetFilter(field, value string) error {
	cmd := FilterCommand{Field: field, Value: strings.TrimSpace(value)}
	if err := s.validate.Struct(cmd); err != nil {
		return fmt.Errorf("dashboard: filter: %w", err)
	}
	switch cmd.Field {
	case FieldDepartment:
		raw := hranalytics.NormaliseDepartment(cmd.Value)
		if raw == "" {
			s.Dispatch(SetDepartment{})
			return nil
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			s.toasts.Error("Invalid department_id: " + cmd.Value)
			return fmt.Errorf("%w: department_id %q", hranalytics.ErrInvalidFilter, cmd.Value)
		}
		if err := s.checkDepartment(id); err != nil {
			return err
		}
		s.Dispatch(SetDepartment{ID: &id})
	case FieldStartDate, FieldEndDate:
		date, err := hranalytics.ParseDate(cmd.Value)
		if err != nil {
			s.toasts.Error("Invalid " + cmd.Field + ": " + cmd.Value)
			return fmt.Errorf("%w: %s %q", hranalytics.ErrInvalidFilter, cmd.Field, cmd.Value)
		}
		if cmd.Field == FieldStartDate {
			s.Dispatch(SetStartDate{Date: date})
		} else {
			s.Dispatch(SetEndDate{Date: date})
		}
	}
	return nil
}

func (s *Session) checkDepartment(id int64) error {
	if s.departments == nil {
		return nil
	}
	ok, err := s.departments.DepartmentExists(s.ctx, id)
	if err != nil {
		s.logger.Error("department lookup failed", slog.Int64("department_id", id), slog.Any("error", err))
		s.toasts.Error(MsgLoadFailed)
		return fmt.Errorf("dashboard: check department: %w", err)
	}
	if !ok {
		msg := fmt.Sprintf("Department %d does not exist", id)
		s.toasts.Error(msg)
		return hranalytics.FilterError{Field: FieldDepartment, Message: msg, Err: hranalytics.ErrDepartmentNotFound}
	}
	return nil
}

// HandleCommand implements notify.CommandHandler.
func (s *Session) HandleCommand(ctx context.Context, cmd notify.Command) error {
	if s.closed.Load() {
		return ErrClosed
	}
	switch cmd.Type {
	case CommandFilter:
		var payload FilterCommand
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return fmt.Errorf("dashboard: filter payload: %w", err)
		}
		return s.SetFilter(payload.Field, payload.Value)
	case CommandRefresh:
		s.Refresh()
	case CommandToggle:
		s.ToggleAutoRefresh()
	case CommandExport:
		if !s.exporting.CompareAndSwap(false, true) {
			return ErrExportRunning
		}
		started := s.spawn(func() {
			defer s.exporting.Store(false)
			_, _ = s.export(s.ctx)
		})
		if !started {
			s.exporting.Store(false)
			return ErrClosed
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

// Export captures the current dashboard as a PDF, raises the outcome toast
// and pushes the file to the browser.
func (s *Session) Export(ctx context.Context) (export.Result, error) {
	if !s.exporting.CompareAndSwap(false, true) {
		return export.Result{}, ErrExportRunning
	}
	defer s.exporting.Store(false)
	return s.export(ctx)
}

func (s *Session) export(ctx context.Context) (export.Result, error) {
	st := s.store.State()
	data := hranalytics.ErrorEnvelope("")
	data.Error = false
	if st.Data != nil {
		data = *st.Data
	}
	layout := export.NewLayout(data, FilterSummary(st.Filters))

	res, err := s.exporter.Export(ctx, layout)
	if err != nil {
		s.metrics.ExportFinished(exportKindRaster, exportOutcomeError)
		s.logger.Error("dashboard export failed", slog.Any("error", err))
		s.publish(notify.Event{Type: EventExportFailed, Payload: ExportFailedPayload{Error: err.Error()}})
		s.toasts.Error(MsgExportFailed + err.Error())
		return export.Result{}, err
	}
	s.metrics.ExportFinished(exportKindRaster, exportOutcomeOK)
	s.publish(notify.Event{Type: EventExportReady, Payload: ExportPayload{
		Filename: res.Filename,
		Pages:    res.Pages,
		PDF:      base64.StdEncoding.EncodeToString(res.PDF),
	}})
	s.toasts.Success(MsgExported)
	return res, nil
}

// FilterSummary describes filters in one line.
func FilterSummary(f hranalytics.Filters) string {
	department := "All departments"
	if f.DepartmentID != nil {
		department = "Department #" + strconv.FormatInt(*f.DepartmentID, 10)
	}
	return department + ", " + hranalytics.FormatDate(f.StartDate) + " to " + hranalytics.FormatDate(f.EndDate)
}

// Wait blocks until in-flight loads and exports have settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close tears the session down: the timer is cancelled unconditionally,
// in-flight work is cancelled and awaited and chart instances are destroyed.
func (s *Session) Close() {
	s.lifeMu.Lock()
	if s.closed.Load() {
		s.lifeMu.Unlock()
		return
	}
	s.closed.Store(true)
	s.lifeMu.Unlock()

	s.scheduler.Stop()
	s.cancel()
	s.wg.Wait()
	s.adapter.DestroyAll()
	s.toasts.Close()
}

func (s *Session) busy() bool {
	return s.store.State().Busy()
}

// reload tags a load synchronously, so the session is busy before the
// fetch goroutine is scheduled.
func (s *Session) reload() {
	if s.closed.Load() {
		return
	}
	req := s.loader.Begin()
	s.spawn(func() {
		_ = s.loader.Fetch(s.ctx, req)
	})
}

// spawn runs fn on a tracked goroutine unless the session is closed.
func (s *Session) spawn(fn func()) bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// apply runs the effects of a transition. It is called without the store
// lock held.
func (s *Session) apply(_ State, fx Effects) {
	if s.closed.Load() {
		return
	}
	if fx.Changed {
		s.publishState()
	}
	if fx.Rendered {
		s.renderCharts()
	}
	if fx.Toast != nil {
		_, _ = s.toasts.Push(fx.Toast.Kind, fx.Toast.Message)
	}
	if fx.StopTimer {
		s.scheduler.Stop()
	}
	if fx.Reload {
		s.reload()
	}
	if fx.RestartTimer {
		s.scheduler.Start(s.store.State().AutoRefresh)
	}
}

func (s *Session) publishState() {
	s.publish(notify.Event{Type: EventState, Payload: s.store.State().Snapshot()})
}

// renderCharts draws the latest data, whichever load delivered it.
func (s *Session) renderCharts() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	st := s.store.State()
	if st.Data == nil {
		return
	}
	panels := charts.Derive(*st.Data)
	payload := ChartsPayload{Engine: s.adapter.Engine().Name(), Panels: make([]charts.Snapshot, 0, len(panels))}
	for _, p := range panels {
		canvas := s.surfaces[p.Surface]
		if err := s.adapter.Render(s.ctx, canvas, p.Spec); err != nil && !errors.Is(err, charts.ErrUnavailable) {
			s.logger.Warn("chart render failed", slog.String("surface", p.Surface), slog.Any("error", err))
		}
		payload.Panels = append(payload.Panels, canvas.Snapshot())
	}
	s.publish(notify.Event{Type: EventCharts, Payload: payload})
}
