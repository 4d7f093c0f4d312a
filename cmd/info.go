package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloudchase/controlnet-deploy/provision"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info [demo]",
		Short: "Show demo information",
		Long:  "Display the files of a demo, where they are provisioned to, and whether they are present.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := a.cfg.Demo
			if len(args) == 1 {
				name = args[0]
			}
			return a.runInfo(name)
		},
	}
}

func (a *app) runInfo(name string) error {
	demo, err := a.demo(name)
	if err != nil {
		return err
	}
	layout := a.layout()
	plan, err := provision.Plan(demo, layout)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Name:          %s\n", demo.Name())
	fmt.Fprintf(a.out, "Models:        %d\n", len(demo.ModelFiles()))
	fmt.Fprintf(a.out, "Detectors:     %d\n", len(demo.DetectorFiles()))
	fmt.Fprintf(a.out, "Models dir:    %s\n", layout.ModelsDir)
	fmt.Fprintf(a.out, "Detectors dir: %s\n", layout.DetectorsDir)

	if err := layout.VerifyRecord(demo.Name()); err != nil {
		fmt.Fprintf(a.out, "Provisioned:   no (%v)\n", err)
	} else if rec, err := layout.LoadRecord(); err == nil {
		fmt.Fprintf(a.out, "Provisioned:   %s (%s)\n", rec.CompletedAt.Format("2006-01-02 15:04:05"), formatSize(rec.TotalSize()))
	}

	fmt.Fprintln(a.out, "Files:")
	for _, st := range provision.Inspect(plan) {
		status := "missing"
		if st.Present {
			status = formatSize(st.Size)
		}
		fmt.Fprintf(a.out, "  %-8s  %-34s  %-10s  %s\n", st.Kind, filepath.Base(st.Path), status, st.URL)
	}
	return nil
}
