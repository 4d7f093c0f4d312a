package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudchase/controlnet-deploy/deploy"
)

// appName is the deployment's application name.
const appName = "example-controlnet"

func newManifestCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the deployment manifest",
		Long: `Print the image recipe and function settings of the selected demo, as TOML
or as a Dockerfile.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.runManifest(format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "output format: toml or dockerfile")
	cmd.Flags().Int("concurrency-limit", 1, "platform concurrency limit")
	cmd.Flags().Int("keep-warm", 1, "instances kept warm")
	cmd.Flags().String("base-path", "/", "path the demo UI is mounted at")
	return cmd
}

func (a *app) manifest() deploy.Manifest {
	fn := deploy.DefaultFunction()
	fn.ConcurrencyLimit = a.cfg.Server.ConcurrencyLimit
	fn.KeepWarm = a.cfg.Server.KeepWarm
	fn.MountPath = a.cfg.Server.BasePath
	return deploy.Manifest{
		App:      appName,
		Demo:     a.cfg.Demo,
		Image:    deploy.DefaultImage(a.cfg.Demo, a.cfg.Root),
		Function: fn,
	}
}

func (a *app) runManifest(format string) error {
	m := a.manifest()
	var (
		out string
		err error
	)
	switch format {
	case "toml":
		out, err = m.ToTOML()
	case "dockerfile":
		if err = m.Function.Validate(); err == nil {
			out, err = m.Image.Dockerfile()
		}
	default:
		return fmt.Errorf("unknown format %q (want toml or dockerfile)", format)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(a.out, out)
	return err
}
