package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudchase/controlnet-deploy/engine"
	"github.com/cloudchase/controlnet-deploy/ui"
)

// Config holds the hosting server settings.
type Config struct {
	Addr string
	// BasePath is where the demo UI is mounted.
	BasePath string
	// ConcurrencyLimit caps in-flight UI requests; 0 means unlimited.
	ConcurrencyLimit int
	ShutdownTimeout  time.Duration
}

// Server hosts one demo UI. It owns the listener; the UI never binds one itself.
type Server struct {
	cfg       Config
	router    *chi.Mux
	logger    *slog.Logger
	blocks    *ui.Blocks
	engine    *engine.Engine
	metrics   *Metrics
	http      *http.Server
	startTime time.Time
}

// NewServer creates a Server with the demo mounted at cfg.BasePath.
func NewServer(cfg Config, blocks *ui.Blocks, eng *engine.Engine, logger *slog.Logger) (*Server, error) {
	if cfg.BasePath == "" {
		cfg.BasePath = "/"
	}
	metrics, err := NewMetrics(prometheus.NewRegistry(), blocks.Demo)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	s := &Server{
		metrics:   metrics,
		cfg:       cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		blocks:    blocks,
		engine:    eng,
		startTime: time.Now(),
	}
	RegisterRoutes(s.router, s)
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Router returns the server's handler.
func (s *Server) Router() http.Handler { return s.router }

// Start listens on cfg.Addr and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server starting", "address", ln.Addr().String(), "demo", s.blocks.Demo, "path", s.cfg.BasePath)
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server and the demo.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("shutting down server", "timeout", timeout)
	defer s.blocks.Close()
	return s.http.Shutdown(shutdownCtx)
}
