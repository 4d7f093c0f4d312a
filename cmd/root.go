package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudchase/controlnet-deploy/config"
	"github.com/cloudchase/controlnet-deploy/provision"
	"github.com/cloudchase/controlnet-deploy/registry"
)

// app is the state shared by every subcommand once the config is loaded.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
	// client is used for model downloads; nil means a client without timeout.
	client *http.Client
}

// NewRootCommand builds the controlnet command tree.
func NewRootCommand() *cobra.Command {
	return newRootCmd(&app{v: config.New(), out: os.Stdout, errOut: os.Stderr})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "controlnet",
		Short: "ControlNet demo deployment",
		Long: `Provision ControlNet model weights into an image and serve one of the
ControlNet demo UIs behind a single HTTP server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./controlnet.toml if present)")
	pf.String("demo", registry.DefaultDemo, "demo to provision or serve (env DEMO_NAME)")
	pf.String("root", "/root", "build root holding models/ and annotator/ckpts/")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := config.BindFlags(a.v, cmd.Flags()); err != nil {
			return err
		}
		cfg, err := config.Load(a.v, a.cfgFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.logger = newLogger(cfg.Log.Level, cfg.Log.Format, a.errOut)
		return nil
	}

	rootCmd.AddCommand(
		newProvisionCmd(a),
		newServeCmd(a),
		newListCmd(a),
		newInfoCmd(a),
		newManifestCmd(a),
		newGenerateCmd(a),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) layout() provision.Layout {
	return provision.DefaultLayout(a.cfg.Root)
}

func (a *app) demo(name string) (registry.Demo, error) {
	d, err := registry.Default().Lookup(name)
	if err != nil {
		return registry.Demo{}, fmt.Errorf("demo: %w", err)
	}
	return d, nil
}
