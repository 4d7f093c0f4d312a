package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/cloudchase/controlnet-deploy/ui"
)

// ErrModuleNotFound is matched by every ModuleLoadError caused by an unknown demo.
var ErrModuleNotFound = errors.New("ui module not found")

// ModuleLoadError reports a demo whose UI module could not be loaded.
type ModuleLoadError struct {
	Demo string
	Err  error
}

func (e *ModuleLoadError) Error() string {
	return fmt.Sprintf("load ui module ui_%s: %v", e.Demo, e.Err)
}

func (e *ModuleLoadError) Unwrap() error { return e.Err }

var neutralizeOnce sync.Once

// NeutralizeLaunch replaces the UI launcher with a no-op for the whole process,
// so that demo modules cannot open their own listener. The hosting server owns
// the socket. It is the only place that changes UI launch behaviour and is
// safe to call more than once.
func NeutralizeLaunch(logger *slog.Logger) {
	neutralizeOnce.Do(func() {
		ui.SetLauncher(noopLauncher(logger))
	})
}

// noopLauncher logs to the Blocks' own logger when it has one, else to
// logger, else to the default logger.
func noopLauncher(logger *slog.Logger) ui.Launcher {
	return func(b *ui.Blocks, addr string) error {
		l := b.Logger
		if l == nil {
			l = logger
		}
		if l == nil {
			l = slog.Default()
		}
		l.Info("launch() has been overridden to do nothing", "demo", b.Demo, "addr", addr)
		return nil
	}
}

// LoadDemo imports the UI module for demo with launching neutralized and the
// request queue disabled, ready to be mounted.
func LoadDemo(demo string, gen ui.Generator, logger *slog.Logger) (*ui.Blocks, error) {
	NeutralizeLaunch(logger)

	b, found, err := ui.Import(demo, gen)
	if !found {
		return nil, &ModuleLoadError{Demo: demo, Err: ErrModuleNotFound}
	}
	if err != nil {
		return nil, &ModuleLoadError{Demo: demo, Err: err}
	}

	// Mounted demos serve predictions on /run/predict only.
	b.QueueEnabled = false
	b.Logger = logger
	return b, nil
}

// Mount attaches h to r at path.
func Mount(r chi.Router, path string, h http.Handler) {
	r.Mount(path, h)
}
