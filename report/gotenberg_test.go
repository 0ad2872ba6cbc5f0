package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLSendsPaperFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forms/chromium/convert/html" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		assert.Equal(t, "true", r.FormValue("landscape"))
		assert.Equal(t, "8.27", r.FormValue("paperWidth"))
		assert.Equal(t, "11.70", r.FormValue("paperHeight"))
		assert.Equal(t, "1s", r.FormValue("waitDelay"))
		assert.Equal(t, "true", r.FormValue("printBackground"))
		_, _ = w.Write([]byte("PDF"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/").RenderHTML(context.Background(), "<p>hi</p>", A4Landscape)
	require.NoError(t, err)
	assert.Equal(t, "PDF", string(pdf))
}

func TestRenderHTMLReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RenderHTML(context.Background(), "<p/>", Paper{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chromium crashed")
}

func TestRenderHTMLNeedsEndpoint(t *testing.T) {
	_, err := NewClient("").RenderHTML(context.Background(), "<p/>", A4Landscape)
	require.Error(t, err)
}

func TestPingRoute(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	r := chi.NewRouter()
	NewHandler(NewClient(srv.URL), nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	unhealthy.Store(true)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
