package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/rpg-bot/internal/metrics"
	"github.com/sakif/rpg-bot/internal/middleware"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(middleware.Logger(logger))
	r.Post("/telegram/webhook", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	})

	counter := metrics.HTTPRequests.WithLabelValues(http.MethodPost, "/telegram/webhook", "401")
	before := testutil.ToFloat64(counter)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.Contains(t, buf.String(), `"route":"/telegram/webhook"`)
	assert.Contains(t, buf.String(), `"status":401`)
	assert.Contains(t, buf.String(), `"bytes":4`)
}

func TestLogger_UnmatchedRoute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	r := chi.NewRouter()
	r.Use(middleware.Logger(logger))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})

	counter := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
