package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
					"bytes", ww.BytesWritten(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// handleHealth handles GET /healthz. A configured but unreachable inference
// backend reports "degraded"; the UI itself is always up once mounted.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Demo:          s.blocks.Demo,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Backend:       "unconfigured",
	}
	if s.engine != nil && s.engine.Configured() {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.engine.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.Backend = "unreachable"
			resp.Error = err.Error()
		} else {
			resp.Backend = "ok"
		}
		s.metrics.SetBackendUp(resp.Backend == "ok")
	}
	writeJSON(w, http.StatusOK, resp)
}
