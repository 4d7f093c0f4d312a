package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// throttleBacklog is how many requests may wait for a slot behind the concurrency limit.
const (
	throttleBacklog = 32
	throttleTimeout = 5 * time.Minute
)

// RegisterRoutes wires the health and metrics endpoints and mounts the demo UI.
func RegisterRoutes(r chi.Router, s *Server) {
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.ConcurrencyLimit > 0 {
			r.Use(middleware.ThrottleBacklog(s.cfg.ConcurrencyLimit, throttleBacklog, throttleTimeout))
		}
		Mount(r, s.cfg.BasePath, s.blocks)
	})
}
