package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cloudchase/controlnet-deploy/provision"
	"github.com/cloudchase/controlnet-deploy/registry"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List available demos",
		Long:    "List every registered demo with its file counts and what is present under the build root.",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return a.runList()
		},
	}
}

func (a *app) runList() error {
	layout := a.layout()
	provisioned := ""
	if rec, err := layout.LoadRecord(); err == nil {
		provisioned = rec.Demo
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODELS\tDETECTORS\tPRESENT\tSIZE")
	for _, d := range registry.Default().All() {
		plan, err := provision.Plan(d, layout)
		if err != nil {
			return err
		}
		present, size := 0, int64(0)
		for _, st := range provision.Inspect(plan) {
			if st.Present {
				present++
				size += st.Size
			}
		}
		name := d.Name()
		if name == provisioned {
			name += " *"
		}
		sizeStr := "-"
		if present > 0 {
			sizeStr = formatSize(size)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d/%d\t%s\n",
			name, len(d.ModelFiles()), len(d.DetectorFiles()), present, len(plan), sizeStr)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if provisioned != "" {
		fmt.Fprintf(a.out, "\n* provisioned under %s\n", layout.Root)
	}
	return nil
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
