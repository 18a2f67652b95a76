package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BDNK1/stepflow/runtime"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := wire(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSTEPS\tREQUIRED\tDESCRIPTION")
		for _, name := range h.app.Catalog.Names() {
			w, err := h.app.Catalog.Get(name)
			if err != nil {
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
				w.Name, len(w.Steps), strings.Join(runtime.RequiredInputs(w), ","), w.Description)
		}
		return tw.Flush()
	},
}
