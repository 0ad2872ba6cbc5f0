package hrhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/dashboard"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/export"
	"github.com/odyssey-erp/hr-analytics/internal/platform/httpx"
	"github.com/odyssey-erp/hr-analytics/internal/shared"
	"github.com/odyssey-erp/hr-analytics/internal/view"
)

var errPermissionDenied = errors.New("hranalytics: permission denied")

const (
	requestTimeout = 5 * time.Second
	exportTimeout  = 45 * time.Second
)

// Service defines the HR data contract used by the handler.
type Service interface {
	Dashboard(ctx context.Context, filters hranalytics.Filters) (hranalytics.DashboardData, error)
	Departments(ctx context.Context) ([]hranalytics.Department, error)
	DepartmentExists(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context, filters hranalytics.Filters) (hranalytics.Stats, error)
	RefreshStats(ctx context.Context) (int64, error)
}

// RBACService exposes permission resolution for RBAC guards.
type RBACService interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Exporter runs the raster PDF pipeline.
type Exporter interface {
	Export(ctx context.Context, doc export.Document) (export.Result, error)
}

// PrintService renders the print-quality PDF.
type PrintService interface {
	Render(ctx context.Context, data hranalytics.DashboardData, f hranalytics.Filters, filterSummary string) ([]byte, error)
}

// ExportMetrics records export outcomes.
type ExportMetrics interface {
	ExportFinished(kind, outcome string)
}

// Handler coordinates HTTP requests for the HR analytics dashboard.
type Handler struct {
	logger    *slog.Logger
	service   Service
	templates *view.Engine
	charts    *charts.SVGEngine
	exporter  Exporter
	printer   PrintService
	rbac      RBACService
	csrf      *shared.CSRFManager
	live      *Live
	metrics   ExportMetrics
	interval  time.Duration
	csvPool   sync.Pool
	now       func() time.Time
}

// Options carries the optional collaborators of a Handler.
type Options struct {
	Exporter Exporter
	Printer  PrintService
	CSRF     *shared.CSRFManager
	Live     *Live
	Metrics  ExportMetrics
	Interval time.Duration
}

// NewHandler constructs the HR analytics HTTP handler.
func NewHandler(logger *slog.Logger, service Service, templates *view.Engine, rbac RBACService, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = dashboard.DefaultInterval
	}
	h := &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		charts:    charts.NewSVGEngine(),
		exporter:  opts.Exporter,
		printer:   opts.Printer,
		rbac:      rbac,
		csrf:      opts.CSRF,
		live:      opts.Live,
		metrics:   opts.Metrics,
		interval:  opts.Interval,
		now:       time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type pagePanel struct {
	Surface string
	Title   string
	Chart   template.HTML
}

type pageView struct {
	Params      hranalytics.FilterParams
	Departments []hranalytics.Department
	Selected    int64
	Cards       []export.Card
	Panels      []pagePanel
	Summary     string
	Error       string
	Interval    int
	Actions     []string
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsView); err != nil {
		h.respondAuthError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filters, err := h.parseFilters(ctx, queryParams(r))
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	var (
		data        hranalytics.DashboardData
		departments []hranalytics.Department
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data, err = h.service.Dashboard(gctx, filters)
		return err
	})
	g.Go(func() (err error) {
		departments, err = h.service.Departments(gctx)
		return err
	})
	vm := pageView{
		Params: hranalytics.FilterParams{
			StartDate: hranalytics.FormatDate(filters.StartDate),
			EndDate:   hranalytics.FormatDate(filters.EndDate),
		},
		Selected: filters.DepartmentValue(),
		Summary:  dashboard.FilterSummary(filters),
		Interval: int(h.interval / time.Second),
		Actions:  hranalytics.NavigationNames(),
	}
	if err := g.Wait(); err != nil {
		// The page still renders; the live session retries the load.
		h.logError("load dashboard", err)
		data = hranalytics.ErrorEnvelope(dashboard.MsgLoadFailed)
		vm.Error = dashboard.MsgLoadFailed
	}
	vm.Departments = departments
	vm.Cards = export.Cards(data)
	for _, panel := range charts.Derive(data) {
		markup, err := h.charts.HTML(panel.Spec)
		if err != nil {
			h.handleServerError(w, "render charts", err)
			return
		}
		vm.Panels = append(vm.Panels, pagePanel{Surface: panel.Surface, Title: panel.Spec.Title, Chart: markup})
	}

	var flash *shared.FlashMessage
	csrfToken := ""
	if sess != nil {
		flash = sess.PopFlash()
		if h.csrf != nil {
			csrfToken, _ = h.csrf.EnsureToken(r.Context(), sess)
		}
	}

	viewData := view.TemplateData{
		Title:       "HR Analytics",
		Flash:       flash,
		CSRFToken:   csrfToken,
		CurrentPath: r.URL.Path,
		Data:        vm,
	}
	if err := h.templates.Render(w, "pages/hr_dashboard.html", viewData); err != nil {
		h.handleServerError(w, "render template", err)
	}
}

// handleData answers the dashboard payload. Failures of any kind use the
// error envelope with status 200 so clients handle a single shape.
func (h *Handler) handleData(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsView); err != nil {
		h.respondAuthError(w, err)
		return
	}

	params := queryParams(r)
	if r.Method == http.MethodPost {
		if err := httpx.DecodeJSON(r, &params); err != nil {
			httpx.JSON(w, http.StatusOK, hranalytics.ErrorEnvelope("Invalid request body"))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filters, err := h.parseFilters(ctx, params)
	if err != nil {
		h.logger.Warn("dashboard filters rejected", slog.Any("error", err))
		httpx.JSON(w, http.StatusOK, hranalytics.ErrorEnvelope(err.Error()))
		return
	}
	data, err := h.service.Dashboard(ctx, filters)
	if err != nil {
		h.logError("load dashboard", err)
		httpx.JSON(w, http.StatusOK, hranalytics.ErrorEnvelope(err.Error()))
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsView); err != nil {
		h.respondAuthError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	departments, err := h.service.Departments(ctx)
	if err != nil {
		h.handleServerError(w, "list departments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, departments)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsView); err != nil {
		h.respondAuthError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filters, err := h.parseFilters(ctx, queryParams(r))
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	stats, err := h.service.Stats(ctx, filters)
	if err != nil {
		h.handleServerError(w, "compute stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRefreshStats(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsManage); err != nil {
		h.respondAuthError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	version, err := h.service.RefreshStats(ctx)
	if err != nil {
		h.handleServerError(w, "refresh stats", err)
		return
	}
	h.logger.Info("hr analytics cache bumped", slog.Int64("version", version))
	httpx.JSON(w, http.StatusOK, map[string]int64{"version": version})
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsView); err != nil {
		h.respondAuthError(w, err)
		return
	}
	action, err := hranalytics.NavigationAction(chi.URLParam(r, "name"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
		return
	}
	httpx.JSON(w, http.StatusOK, action)
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsExport); err != nil {
		h.respondAuthError(w, err)
		return
	}
	if h.exporter == nil {
		h.handleServerError(w, "pdf exporter", errors.New("pdf exporter not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()

	filters, err := h.parseFilters(ctx, queryParams(r))
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	data, err := h.service.Dashboard(ctx, filters)
	if err != nil {
		h.handleServerError(w, "load dashboard", err)
		return
	}

	res, err := h.exporter.Export(ctx, export.NewLayout(data, dashboard.FilterSummary(filters)))
	if err != nil {
		h.recordExport("raster", "error")
		h.handleServerError(w, "export pdf", err)
		return
	}
	h.recordExport("raster", "success")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", res.Filename))
	w.Header().Set("X-Export-Pages", strconv.Itoa(res.Pages))
	if _, err := w.Write(res.PDF); err != nil {
		h.logError("stream pdf", err)
	}
}

func (h *Handler) handlePrint(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsExport); err != nil {
		h.respondAuthError(w, err)
		return
	}
	if h.printer == nil {
		httpx.RespondError(w, fmt.Errorf("%w: print renderer not configured", httpx.ErrUnavailable))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exportTimeout)
	defer cancel()

	filters, err := h.parseFilters(ctx, queryParams(r))
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	data, err := h.service.Dashboard(ctx, filters)
	if err != nil {
		h.handleServerError(w, "load dashboard", err)
		return
	}
	pdf, err := h.printer.Render(ctx, data, filters, dashboard.FilterSummary(filters))
	if err != nil {
		h.recordExport("print", "error")
		h.handleServerError(w, "render print pdf", err)
		return
	}
	h.recordExport("print", "success")

	filename := fmt.Sprintf("HR_Analytics_Print_%s_%s.pdf", hranalytics.FormatDate(filters.StartDate), hranalytics.FormatDate(filters.EndDate))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(pdf); err != nil {
		h.logError("stream pdf", err)
	}
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsExport); err != nil {
		h.respondAuthError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filters, err := h.parseFilters(ctx, queryParams(r))
	if err != nil {
		h.handleFilterError(w, err)
		return
	}

	var (
		data  hranalytics.DashboardData
		stats hranalytics.Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data, err = h.service.Dashboard(gctx, filters)
		return err
	})
	g.Go(func() (err error) {
		stats, err = h.service.Stats(gctx, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		h.handleServerError(w, "load dashboard", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteDashboardCSV(buf, data, filters); err != nil {
		h.handleServerError(w, "write dashboard csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteStatsCSV(buf, stats); err != nil {
		h.handleServerError(w, "write stats csv", err)
		return
	}
	h.recordExport("csv", "success")

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", export.CSVFilename(filters)))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream csv", err)
	}
}

func (h *Handler) authorize(ctx context.Context, sess *shared.Session, perm string) error {
	if h.rbac == nil {
		return fmt.Errorf("rbac service missing")
	}
	userID, ok := sessionUserID(sess)
	if !ok {
		return errPermissionDenied
	}
	perms, err := h.rbac.EffectivePermissions(ctx, userID)
	if err != nil {
		return err
	}
	required := strings.ToLower(strings.TrimSpace(perm))
	for _, granted := range perms {
		if strings.EqualFold(granted, required) {
			return nil
		}
	}
	return errPermissionDenied
}

func sessionUserID(sess *shared.Session) (int64, bool) {
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (h *Handler) respondAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPermissionDenied) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	h.handleServerError(w, "authorization", err)
}

func queryParams(r *http.Request) hranalytics.FilterParams {
	q := r.URL.Query()
	return hranalytics.FilterParams{
		DepartmentID: hranalytics.DepartmentParam(q.Get("department_id")),
		StartDate:    q.Get("start_date"),
		EndDate:      q.Get("end_date"),
	}
}

func (h *Handler) parseFilters(ctx context.Context, params hranalytics.FilterParams) (hranalytics.Filters, error) {
	return hranalytics.ParseFilters(ctx, params, h.now().UTC(), h.service)
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	if errors.Is(err, hranalytics.ErrInvalidFilter) {
		httpx.RespondError(w, err)
		return
	}
	h.handleServerError(w, "parse filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, context string, err error) {
	h.logError(context, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) logError(context string, err error) {
	if h.logger != nil {
		h.logger.Error(context, slog.Any("error", err))
	}
}

func (h *Handler) recordExport(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.ExportFinished(kind, outcome)
	}
}
