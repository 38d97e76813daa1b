package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Caller is the outbound interface the handlers need from the upstream client.
type Caller interface {
	Call(ctx context.Context, method, path string, payload interface{}, query url.Values) (int, interface{}, error)
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Upstream       Caller
	MetricsHandler http.Handler
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(slogRequestLogger)

	// Handlers.
	meters := newMetersHandler(deps.Upstream)
	usage := newUsageHandler(deps.Upstream)
	ingest := newIngestHandler(deps.Upstream)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Meter management.
	r.Post("/meters", meters.CreateMeter)
	r.Get("/meters", meters.ListMeters)
	r.Get("/meters/{meterID}", meters.GetMeter)
	r.Put("/meters/{meterID}", meters.UpdateMeter)
	r.Delete("/meters/{meterID}", meters.DeleteMeter)

	// Usage.
	r.Get("/usage/{meterID}", usage.GetUsage)
	r.Delete("/usage", usage.CancelUsage)

	// Synchronous ingestion.
	r.Post("/ingest", ingest.IngestUsage)

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
		)
	})
}
