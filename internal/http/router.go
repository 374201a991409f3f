// Package httpapi assembles the feature routers into the process router.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"anchorid/internal/platform/metrics"
	"anchorid/internal/platform/middleware"
)

// Registrar is the one method a feature handler exposes to the router.
type Registrar interface {
	Register(r chi.Router)
}

// Health reports readiness of a downstream dependency.
type Health func() error

// Config wires the router.
type Config struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Handlers []Registrar
	// Readiness checks run on /readyz; the liveness probe has none.
	Readiness map[string]Health
}

// NewRouter builds the process router: shared middleware chain, feature
// routes, probes, and the Prometheus endpoint.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(cfg.Metrics))

	for _, h := range cfg.Handlers {
		h.Register(r)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		for name, check := range cfg.Readiness {
			if err := check(); err != nil {
				cfg.Logger.WarnContext(req.Context(), "readiness check failed",
					"check", name,
					"error", err.Error(),
				)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(name + " unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
