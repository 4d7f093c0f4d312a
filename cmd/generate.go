package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudchase/controlnet-deploy/engine"
	"github.com/cloudchase/controlnet-deploy/ui"
)

func newGenerateCmd(a *app) *cobra.Command {
	opts := engine.DefaultOptions()
	var outDir string

	cmd := &cobra.Command{
		Use:   "generate <image> <prompt>",
		Short: "Run one prediction against the backend",
		Long: `Send an input image and prompt for the selected demo to the inference
backend and write the returned images as PNG files. The input is resized the
same way the demo UI resizes uploads.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Prompt = strings.Join(args[1:], " ")
			return a.runGenerate(cmd, args[0], outDir, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&outDir, "output", "o", ".", "directory for generated images")
	f.IntVar(&opts.NumSamples, "samples", opts.NumSamples, "images to generate")
	f.IntVar(&opts.ImageResolution, "resolution", opts.ImageResolution, "short side of the working image")
	f.IntVar(&opts.DDIMSteps, "steps", opts.DDIMSteps, "DDIM steps")
	f.Float64Var(&opts.Scale, "scale", opts.Scale, "guidance scale")
	f.Int64Var(&opts.Seed, "seed", opts.Seed, "seed, -1 for random")
	f.BoolVar(&opts.GuessMode, "guess-mode", opts.GuessMode, "guess mode")
	f.String("backend-url", "", "inference backend base URL")
	f.Duration("backend-timeout", 10*time.Minute, "inference backend request timeout")
	return cmd
}

func (a *app) runGenerate(cmd *cobra.Command, input, outDir string, opts engine.GenerateOptions) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read input image: %w", err)
	}
	img, err := ui.PrepareImage(data, opts.ImageResolution)
	if err != nil {
		return err
	}

	client := a.client
	if client == nil {
		client = &http.Client{Timeout: a.cfg.Backend.Timeout}
	}
	eng := engine.New(a.cfg.Backend.URL, a.cfg.Demo, client)
	a.logger.Info("generating", "demo", a.cfg.Demo, "samples", opts.NumSamples, "steps", opts.DDIMSteps)

	images, err := eng.Generate(cmd.Context(), img, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for i, png := range images {
		path := filepath.Join(outDir, fmt.Sprintf("%s-%d.png", a.cfg.Demo, i))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintln(a.out, path)
	}
	return nil
}
