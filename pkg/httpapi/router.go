// Package httpapi exposes the wired-mode session over HTTP.
package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gregLibert/secure-element/pkg/metrics"
	"github.com/gregLibert/secure-element/pkg/wired"
)

// NewRouter creates the chi router serving the session routes.
func NewRouter(ctrl *wired.Controller, logger zerolog.Logger) *chi.Mux {
	logger = logger.With().Str("component", "http").Logger()

	metrics.Register()

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Metrics)
	r.Use(Recovery(logger))

	h := &SessionHandler{ctrl: ctrl}

	r.Get("/health", Health)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Post("/", h.Open)
		r.Post("/interface", h.Activate)
		r.Delete("/interface", h.Deactivate)
		r.Delete("/{handle}", h.Disconnect)
		r.Post("/{handle}/reset", h.Reset)
		r.Get("/{handle}/atr", h.GetAtr)
		r.Post("/{handle}/transceive", h.Transceive)
	})

	return r
}
