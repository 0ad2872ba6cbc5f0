package hrhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/export"
	"github.com/odyssey-erp/hr-analytics/internal/shared"
	"github.com/odyssey-erp/hr-analytics/internal/view"
)

var fixedNow = time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)

type stubService struct {
	mu      sync.Mutex
	data    hranalytics.DashboardData
	err     error
	last    hranalytics.Filters
	version int64
}

func (s *stubService) Dashboard(ctx context.Context, filters hranalytics.Filters) (hranalytics.DashboardData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = filters
	if s.err != nil {
		return hranalytics.DashboardData{}, s.err
	}
	return s.data, nil
}

func (s *stubService) Departments(ctx context.Context) ([]hranalytics.Department, error) {
	return []hranalytics.Department{{ID: 1, Name: "Engineering"}, {ID: 2, Name: "Sales"}}, nil
}

func (s *stubService) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	return id == 1 || id == 2, nil
}

func (s *stubService) Stats(ctx context.Context, filters hranalytics.Filters) (hranalytics.Stats, error) {
	return hranalytics.Stats{
		Name:           "HR Analytics - 2025-03-15",
		DepartmentID:   filters.DepartmentID,
		DateFrom:       hranalytics.FormatDate(filters.StartDate),
		DateTo:         hranalytics.FormatDate(filters.EndDate),
		TotalEmployees: s.data.TotalEmployees,
	}, nil
}

func (s *stubService) RefreshStats(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	return s.version, nil
}

func (s *stubService) lastFilters() hranalytics.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type stubRBAC struct {
	perms []string
	err   error
}

func (s stubRBAC) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.perms, nil
}

type blankImager struct{ w, h int }

func (b blankImager) Image(charts.Spec) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, b.w, b.h)), nil
}

type stubPrinter struct {
	summary string
}

func (p *stubPrinter) Render(ctx context.Context, data hranalytics.DashboardData, f hranalytics.Filters, filterSummary string) ([]byte, error) {
	p.summary = filterSummary
	return []byte("%PDF-1.7 print"), nil
}

func sampleData() hranalytics.DashboardData {
	return hranalytics.DashboardData{
		TotalEmployees:     1250,
		TurnoverRate:       4.5,
		AvgSalary:          12500000,
		KPIAverage:         78.2,
		AvgKPI:             78.2,
		KPIDistribution:    []hranalytics.KPIBucket{{ScoreRange: "70-79", Count: 40}},
		AttendanceTrends:   []hranalytics.AttendancePoint{{Date: "2025-03-03", WorkedHours: 7.5}},
		SalaryDistribution: []hranalytics.SalaryRow{{Department: "Engineering", TotalSalary: 250000000}},
		LeaveTrends:        []hranalytics.LeavePoint{{Month: "2025-03", Count: 6}},
	}
}

func newTestHandler(t *testing.T, perms []string) (*Handler, *stubService) {
	t.Helper()
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	service := &stubService{data: sampleData()}
	pipeline := &export.Pipeline{
		Rasterizer: &export.LayoutRasterizer{Charts: func(w, h int) export.ChartImager { return blankImager{w: w, h: h} }},
		Scale:      1,
		Now:        func() time.Time { return fixedNow },
	}
	handler := NewHandler(nil, service, templates, stubRBAC{perms: perms}, Options{Exporter: pipeline, Printer: &stubPrinter{}})
	handler.WithNow(func() time.Time { return fixedNow })
	return handler, service
}

func withUser(req *http.Request, user string) *http.Request {
	sess := &shared.Session{}
	sess.SetUser(user)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func userMiddleware(user string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withUser(r, user))
		})
	}
}

func newRouter(h *Handler, user string) chi.Router {
	r := chi.NewRouter()
	r.Use(userMiddleware(user))
	h.MountRoutes(r)
	return r
}

const rangeQuery = "start_date=2025-03-01&end_date=2025-03-15"

func TestDashboardRequiresPermission(t *testing.T) {
	handler, _ := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/hr_analytics", nil)
	rr := httptest.NewRecorder()
	handler.handleDashboard(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestDashboardSuccess(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics?department_id=2&"+rangeQuery, nil), "42")
	rr := httptest.NewRecorder()
	handler.handleDashboard(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"HR Analytics Dashboard", "1,250", "<svg", `<option value="2" selected>Sales</option>`, "Department #2, 2025-03-01 to 2025-03-15", `data-interval="30"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in response", want)
		}
	}
}

func TestDashboardRendersWhenDataFails(t *testing.T) {
	handler, service := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	service.err = errors.New("db down")
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics?"+rangeQuery, nil), "42")
	rr := httptest.NewRecorder()
	handler.handleDashboard(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Could not load dashboard data") {
		t.Fatalf("expected error banner in page")
	}
}

func TestDashboardRejectsInvalidFilter(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics?start_date=2025-03-20&end_date=2025-03-01", nil), "1")
	rr := httptest.NewRecorder()
	handler.handleDashboard(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reversed range, got %d", rr.Code)
	}
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) hranalytics.DashboardData {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var data hranalytics.DashboardData
	if err := json.Unmarshal(rr.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return data
}

func TestDataQuery(t *testing.T) {
	handler, service := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/data?department_id=1&"+rangeQuery, nil), "3")
	rr := httptest.NewRecorder()
	handler.handleData(rr, req)

	data := decodeData(t, rr)
	if data.Error || data.TotalEmployees != 1250 {
		t.Fatalf("unexpected payload %+v", data)
	}
	if got := service.lastFilters(); got.DepartmentValue() != 1 || hranalytics.FormatDate(got.EndDate) != "2025-03-15" {
		t.Fatalf("unexpected filters %+v", got)
	}
}

func TestDataJSONBody(t *testing.T) {
	handler, service := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	body := bytes.NewBufferString(`{"department_id":"false","start_date":"2025-02-01","end_date":"2025-02-28"}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/hr_analytics/data", body), "3")
	rr := httptest.NewRecorder()
	handler.handleData(rr, req)

	decodeData(t, rr)
	got := service.lastFilters()
	if got.DepartmentID != nil {
		t.Fatalf("expected department filter cleared")
	}
	if hranalytics.FormatDate(got.StartDate) != "2025-02-01" {
		t.Fatalf("unexpected start %s", hranalytics.FormatDate(got.StartDate))
	}
}

func TestDataJSONBodyNumericDepartment(t *testing.T) {
	handler, service := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	body := bytes.NewBufferString(`{"department_id":2,"start_date":"2025-02-01","end_date":"2025-02-28"}`)
	req := withUser(httptest.NewRequest(http.MethodPost, "/hr_analytics/data", body), "3")
	rr := httptest.NewRecorder()
	handler.handleData(rr, req)

	data := decodeData(t, rr)
	if data.Error {
		t.Fatalf("unexpected envelope %+v", data)
	}
	if got := service.lastFilters(); got.DepartmentValue() != 2 {
		t.Fatalf("expected department 2, got %+v", got)
	}
}

func TestDataErrorsUseEnvelope(t *testing.T) {
	handler, service := newTestHandler(t, []string{shared.PermHRAnalyticsView})

	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/data?department_id=abc", nil), "3")
	rr := httptest.NewRecorder()
	handler.handleData(rr, req)
	data := decodeData(t, rr)
	if !data.Error || data.Message != "Invalid department_id: abc" {
		t.Fatalf("unexpected envelope %+v", data)
	}
	if data.KPIDistribution == nil || data.AttendanceTrends == nil {
		t.Fatalf("envelope must carry empty series")
	}

	service.err = errors.New("connection refused")
	req = withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/data?"+rangeQuery, nil), "3")
	rr = httptest.NewRecorder()
	handler.handleData(rr, req)
	data = decodeData(t, rr)
	if !data.Error || data.Message != "connection refused" {
		t.Fatalf("unexpected envelope %+v", data)
	}
}

func TestStatsInvalidRangeIsProblem(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/stats?start_date=2025-03-20&end_date=2025-03-01", nil), "3")
	rr := httptest.NewRecorder()
	handler.handleStats(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if !strings.Contains(rr.Body.String(), `"field":"start_date"`) {
		t.Fatalf("expected field in problem: %s", rr.Body.String())
	}
}

func TestRefreshStatsRequiresManage(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	router := newRouter(handler, "5")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/hr_analytics/stats/refresh", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	handler.rbac = stubRBAC{perms: []string{shared.PermHRAnalyticsManage}}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/hr_analytics/stats/refresh", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"version":1`) {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestNavigationActions(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	router := newRouter(handler, "5")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/hr_analytics/actions/employees", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"res_model":"hr.employee"`) || !strings.Contains(rr.Body.String(), `[false,"tree"]`) {
		t.Fatalf("unexpected action %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/hr_analytics/actions/payroll", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCSVExport(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsExport})
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/export.csv?"+rangeQuery, nil), "7")
	rr := httptest.NewRecorder()
	handler.handleCSV(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "HR_Analytics_2025-03-01_2025-03-15.csv") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Section,Label,Value") || !strings.Contains(body, "Metric,Value") {
		t.Fatalf("expected both sections in CSV: %s", body)
	}
}

func TestPDFExport(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsExport})
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/export.pdf?"+rangeQuery, nil), "99")
	rr := httptest.NewRecorder()
	handler.handlePDF(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "HR_Analytics_Dashboard_2025-03-15_09-00-00.pdf") {
		t.Fatalf("unexpected disposition %s", cd)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf body")
	}
}

func TestPDFExportRequiresExportPermission(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsView})
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/export.pdf", nil), "99")
	rr := httptest.NewRecorder()
	handler.handlePDF(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestPrintExport(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsExport})
	printer := &stubPrinter{}
	handler.printer = printer
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/print.pdf?department_id=1&"+rangeQuery, nil), "99")
	rr := httptest.NewRecorder()
	handler.handlePrint(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if printer.summary != "Department #1, 2025-03-01 to 2025-03-15" {
		t.Fatalf("unexpected summary %q", printer.summary)
	}

	handler.printer = nil
	rr = httptest.NewRecorder()
	handler.handlePrint(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without renderer, got %d", rr.Code)
	}
}

func TestExportsAreRateLimited(t *testing.T) {
	handler, _ := newTestHandler(t, []string{shared.PermHRAnalyticsExport})
	router := newRouter(handler, "11")
	var last int
	for i := 0; i < 11; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/hr_analytics/export.csv?"+rangeQuery, nil))
		last = rr.Code
		if i < 10 && rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last)
	}
}

func TestRBACErrorIsServerError(t *testing.T) {
	handler, _ := newTestHandler(t, nil)
	handler.rbac = stubRBAC{err: errors.New("pg down")}
	req := withUser(httptest.NewRequest(http.MethodGet, "/hr_analytics/departments", nil), "1")
	rr := httptest.NewRecorder()
	handler.handleDepartments(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
