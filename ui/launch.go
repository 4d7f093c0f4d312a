package ui

import (
	"net/http"
	"sync"
	"time"
)

// DefaultLaunchAddr is where a demo serves itself when launched standalone.
const DefaultLaunchAddr = "0.0.0.0:7860"

// Launcher starts a server for b on addr.
type Launcher func(b *Blocks, addr string) error

var (
	launcherMu sync.RWMutex
	launcher   Launcher = serveStandalone
)

// SetLauncher replaces the function behind Blocks.Launch for every Blocks in
// the process and returns the previous one.
func SetLauncher(l Launcher) Launcher {
	launcherMu.Lock()
	defer launcherMu.Unlock()
	prev := launcher
	launcher = l
	return prev
}

func currentLauncher() Launcher {
	launcherMu.RLock()
	defer launcherMu.RUnlock()
	return launcher
}

// Launch serves b on addr using the installed Launcher. With the default
// launcher it binds addr and blocks until the server fails.
func (b *Blocks) Launch(addr string) error {
	return currentLauncher()(b, addr)
}

func serveStandalone(b *Blocks, addr string) error {
	b.logger().Info("launching demo", "demo", b.Demo, "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           b,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
