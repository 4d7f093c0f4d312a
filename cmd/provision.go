package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cloudchase/controlnet-deploy/provision"
)

func newProvisionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Download the selected demo's weights",
		Long: `Download every model file of the selected demo into <root>/models and every
detector file into <root>/annotator/ckpts. Run at image build time; any
failed download fails the build.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runProvision(ctx)
		},
	}
}

func (a *app) runProvision(ctx context.Context) error {
	demo, err := a.demo(a.cfg.Demo)
	if err != nil {
		return err
	}

	client := a.client
	if client == nil {
		client = &http.Client{}
	}
	p := provision.New(client,
		provision.WithLogger(a.logger),
		provision.WithProgress(a.progress()),
	)

	a.logger.Info("provisioning demo", "demo", demo.Name(), "files", demo.FileCount(), "root", a.cfg.Root)
	rec, err := p.Provision(ctx, demo, a.layout())
	if err != nil {
		return fmt.Errorf("provision %s: %w", demo.Name(), err)
	}
	fmt.Fprintf(a.out, "Provisioned %s: %d files, %s\n", rec.Demo, len(rec.Files), formatSize(rec.TotalSize()))
	return nil
}

// progress draws bars on an interactive stderr and logs otherwise.
func (a *app) progress() provision.ProgressFactory {
	if f, ok := a.errOut.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return provision.BarProgress(f)
	}
	return provision.LogProgress(a.logger)
}
