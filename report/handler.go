package report

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the print backend's health and a calibration page used to
// check paper size and orientation.
type Handler struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time
}

// NewHandler creates a report handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, logger: logger, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/test-page.pdf", h.testPage)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

var testPage = template.Must(template.New("test").Parse(`<html><head><title>HR Analytics print check</title>
<style>body{font-family:sans-serif;margin:0}div{border:4px dashed #6366f1;height:95vh;box-sizing:border-box;padding:24px}</style>
</head><body><div><h1>HR Analytics</h1><p>A4 landscape, generated at {{.}}</p></div></body></html>`))

func (h *Handler) testPage(w http.ResponseWriter, r *http.Request) {
	var html strings.Builder
	if err := testPage.Execute(&html, h.now().Format(time.RFC1123)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.client.RenderHTML(r.Context(), html.String(), A4Landscape)
	if err != nil {
		h.logger.Error("render test page", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=test-page.pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
