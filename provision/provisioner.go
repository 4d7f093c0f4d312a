// Package provision downloads the weight files a demo needs into the fixed
// directories the ControlNet scripts load them from. It runs once, at image
// build time, and stops at the first failure.
package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"time"

	"github.com/cloudchase/controlnet-deploy/registry"
)

// Artifact is one file to fetch and where it goes.
type Artifact struct {
	Kind Kind
	URL  string
	Path string
}

// Plan resolves the destinations for every artifact of demo, models first,
// each list in declaration order.
func Plan(demo registry.Demo, layout Layout) ([]Artifact, error) {
	plan := make([]Artifact, 0, demo.FileCount())
	add := func(kind Kind, dir string, urls []string) error {
		for _, u := range urls {
			name, err := FileName(u)
			if err != nil {
				return &DownloadError{URL: u, Op: "resolve", Err: err}
			}
			plan = append(plan, Artifact{Kind: kind, URL: u, Path: filepath.Join(dir, name)})
		}
		return nil
	}
	if err := add(KindModel, layout.ModelsDir, demo.ModelFiles()); err != nil {
		return nil, err
	}
	if err := add(KindDetector, layout.DetectorsDir, demo.DetectorFiles()); err != nil {
		return nil, err
	}
	return plan, nil
}

// FileName returns the final path segment of rawURL.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", ErrNoFileName
	}
	return name, nil
}

// Provisioner fetches demo artifacts sequentially.
type Provisioner struct {
	client   *http.Client
	logger   *slog.Logger
	progress ProgressFactory
	now      func() time.Time
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger used for completion messages.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// WithProgress sets how per-file progress is reported.
func WithProgress(f ProgressFactory) Option {
	return func(p *Provisioner) { p.progress = f }
}

// New creates a Provisioner. A nil client means http.DefaultClient, which
// follows redirects.
func New(client *http.Client, opts ...Option) *Provisioner {
	if client == nil {
		client = http.DefaultClient
	}
	p := &Provisioner{
		client:   client,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		progress: NopProgress,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision downloads every artifact of demo into layout and writes the
// provisioning record. Existing files are overwritten. The first error aborts
// the run and no record is written.
func (p *Provisioner) Provision(ctx context.Context, demo registry.Demo, layout Layout) (*Record, error) {
	plan, err := Plan(demo, layout)
	if err != nil {
		return nil, err
	}
	if err := layout.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create destination dirs: %w", err)
	}
	// The old record must not outlive the files this run overwrites.
	if err := layout.RemoveRecord(); err != nil {
		return nil, fmt.Errorf("remove provisioning record: %w", err)
	}

	rec := &Record{Demo: demo.Name(), Files: make([]FileRecord, 0, len(plan))}
	for _, a := range plan {
		n, err := p.download(ctx, a.URL, a.Path)
		if err != nil {
			return nil, err
		}
		p.logger.Info("download complete", "file", filepath.Base(a.Path), "kind", a.Kind, "bytes", n)
		rec.Files = append(rec.Files, FileRecord{Kind: a.Kind, URL: a.URL, Path: a.Path, Size: n})
	}
	rec.CompletedAt = p.now().UTC()

	if err := layout.SaveRecord(rec); err != nil {
		return nil, fmt.Errorf("write provisioning record: %w", err)
	}
	p.logger.Info("finished baking demo files into image",
		"demo", demo.Name(), "files", len(rec.Files), "bytes", rec.TotalSize())
	return rec, nil
}
