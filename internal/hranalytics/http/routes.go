package hrhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/hr-analytics/internal/shared"
)

// MountRoutes registers HR analytics endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/hr_analytics", func(r chi.Router) {
		r.Get("/", h.handleDashboard)
		r.Get("/data", h.handleData)
		r.Post("/data", h.handleData)
		r.Get("/departments", h.handleDepartments)
		r.Get("/stats", h.handleStats)
		r.Post("/stats/refresh", h.handleRefreshStats)
		r.Get("/actions/{name}", h.handleAction)
		if h.live != nil {
			r.Get("/ws", h.handleLive)
		}
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/export.pdf", h.handlePDF)
			gr.Get("/print.pdf", h.handlePrint)
			gr.Get("/export.csv", h.handleCSV)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
