package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudchase/controlnet-deploy/api"
	"github.com/cloudchase/controlnet-deploy/engine"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo UI",
		Long: `Load the selected demo's UI without letting it start its own server, and
serve it at the base path of a single HTTP server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx)
		},
	}
	f := cmd.Flags()
	f.String("addr", ":8000", "address to listen on")
	f.String("base-path", "/", "path the demo UI is mounted at")
	f.Int("concurrency-limit", 1, "maximum in-flight UI requests (0 for unlimited)")
	f.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	f.Bool("require-provisioned", false, "fail when the root was not provisioned for the demo")
	f.String("backend-url", "", "inference backend base URL")
	f.Duration("backend-timeout", 10*time.Minute, "inference backend request timeout")
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	srv, err := a.newServer()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *app) newServer() (*api.Server, error) {
	cfg := a.cfg
	if err := a.layout().VerifyRecord(cfg.Demo); err != nil {
		if cfg.Server.RequireProvisioned {
			return nil, err
		}
		a.logger.Warn("demo weights may be missing", "error", err)
	}
	if cfg.Backend.URL == "" {
		a.logger.Warn("no inference backend configured; predictions will fail")
	}

	eng := engine.New(cfg.Backend.URL, cfg.Demo, &http.Client{Timeout: cfg.Backend.Timeout})
	blocks, err := api.LoadDemo(cfg.Demo, eng, a.logger)
	if err != nil {
		if errors.Is(err, api.ErrModuleNotFound) {
			return nil, fmt.Errorf("demo %q has no UI module: %w", cfg.Demo, err)
		}
		return nil, err
	}

	srv, err := api.NewServer(api.Config{
		Addr:             cfg.Server.Addr,
		BasePath:         cfg.Server.BasePath,
		ConcurrencyLimit: cfg.Server.ConcurrencyLimit,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	}, blocks, eng, a.logger)
	if err != nil {
		blocks.Close()
		return nil, err
	}
	return srv, nil
}
