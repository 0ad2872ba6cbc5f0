package hrhttp

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/charts"
	"github.com/odyssey-erp/hr-analytics/internal/hranalytics/dashboard"
	"github.com/odyssey-erp/hr-analytics/internal/notify"
	"github.com/odyssey-erp/hr-analytics/internal/shared"
)

// LiveConfig tunes the sessions created for websocket connections.
type LiveConfig struct {
	Session        dashboard.Config
	PrimaryChart   string
	FallbackChart  string
	AllowedOrigins []string
	// AllowAnyOrigin skips the origin check outside production.
	AllowAnyOrigin bool
}

// Live owns one dashboard.Session per connected browser.
type Live struct {
	ctx      context.Context
	hub      *notify.Hub
	fetcher  dashboard.Fetcher
	cfg      LiveConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*dashboard.Session
}

// NewLive builds the registry. Sessions live at most as long as ctx.
func NewLive(ctx context.Context, hub *notify.Hub, fetcher dashboard.Fetcher, cfg LiveConfig, logger *slog.Logger) *Live {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PrimaryChart == "" {
		cfg.PrimaryChart = "echarts"
	}
	if cfg.FallbackChart == "" {
		cfg.FallbackChart = "chart"
	}
	cfg.Session.Logger = logger
	if checker, ok := fetcher.(hranalytics.DepartmentChecker); ok && cfg.Session.Departments == nil {
		cfg.Session.Departments = checker
	}
	l := &Live{
		ctx:      ctx,
		hub:      hub,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   logger.With("component", "hr_live"),
		sessions: make(map[uuid.UUID]*dashboard.Session),
	}
	l.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     l.checkOrigin,
	}
	return l
}

func (l *Live) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || l.cfg.AllowAnyOrigin {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		l.logger.Warn("failed to parse websocket origin", slog.String("origin", origin), slog.Any("error", err))
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	for _, allowed := range l.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == origin || allowed == parsed.Host {
			return true
		}
		if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(parsed.Host, allowed[1:]) {
			return true
		}
	}
	l.logger.Warn("websocket connection rejected due to origin", slog.String("origin", origin))
	return false
}

// initialFilters reads the scope the page was rendered with. Invalid or
// absent values leave the session on its default range.
func (l *Live) initialFilters(r *http.Request) *hranalytics.Filters {
	params := queryParams(r)
	if params.DepartmentID == "" && params.StartDate == "" && params.EndDate == "" {
		return nil
	}
	now := time.Now
	if l.cfg.Session.Now != nil {
		now = l.cfg.Session.Now
	}
	filters, err := hranalytics.ParseFilters(r.Context(), params, now().UTC(), l.cfg.Session.Departments)
	if err != nil {
		l.logger.Warn("ignoring live session filters", slog.Any("error", err))
		return nil
	}
	return &filters
}

// Serve upgrades the request and runs a live session until the socket closes.
// The query may carry department_id, start_date and end_date to continue
// the scope shown by the page.
func (l *Live) Serve(w http.ResponseWriter, r *http.Request) {
	initial := l.initialFilters(r)
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("failed to upgrade websocket connection", slog.Any("error", err))
		return
	}

	id := uuid.New()
	cfg := l.cfg.Session
	cfg.Filters = initial
	cfg.Adapter = charts.NewAdapter(charts.DefaultRegistry(), l.cfg.PrimaryChart, l.cfg.FallbackChart, l.logger)
	sess := dashboard.NewSession(l.ctx, id, l.fetcher, l.hub.Publisher(id), cfg)
	client := notify.NewClient(l.hub, conn, id, sess, l.logger)

	l.mu.Lock()
	l.sessions[id] = sess
	l.mu.Unlock()

	l.hub.Register(l.ctx, client)
	go client.WritePump()
	sess.Mount()
	l.logger.Info("live session opened", slog.String("session", id.String()))

	go func() {
		client.ReadPump(l.ctx)
		l.mu.Lock()
		delete(l.sessions, id)
		l.mu.Unlock()
		sess.Close()
		l.logger.Info("live session closed", slog.String("session", id.String()))
	}()
}

// InvalidateAll asks every idle session to reload. Busy sessions skip it.
func (l *Live) InvalidateAll() {
	for _, sess := range l.snapshot() {
		sess.Invalidate()
	}
}

// Count returns the number of open sessions.
func (l *Live) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// Close tears every session down.
func (l *Live) Close() {
	for _, sess := range l.snapshot() {
		sess.Close()
	}
}

func (l *Live) snapshot() []*dashboard.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*dashboard.Session, 0, len(l.sessions))
	for _, sess := range l.sessions {
		out = append(out, sess)
	}
	return out
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if err := h.authorize(r.Context(), sess, shared.PermHRAnalyticsView); err != nil {
		h.respondAuthError(w, err)
		return
	}
	h.live.Serve(w, r)
}
