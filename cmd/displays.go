package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/deskpilot/internal/display"
)

// listDisplays is swapped in tests, which have no desktop.
var listDisplays = display.ListDisplays

func newDisplaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "displays",
		Short: "List attached monitors and their display.monitor_index values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			displays := listDisplays()
			if len(displays) == 0 {
				return fmt.Errorf("no displays found")
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tORIGIN\tSIZE")
			union := displays[0].Bounds
			for _, d := range displays {
				union = union.Union(d.Bounds)
				fmt.Fprintf(w, "%d\t%d,%d\t%dx%d\n", d.Index, d.Bounds.Min.X, d.Bounds.Min.Y, d.Bounds.Dx(), d.Bounds.Dy())
			}
			fmt.Fprintf(w, "0 (all)\t%d,%d\t%dx%d\n", union.Min.X, union.Min.Y, union.Dx(), union.Dy())
			return w.Flush()
		},
	}
}
