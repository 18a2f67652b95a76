package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BDNK1/stepflow/runtime"
)

var toolsFormat string

var toolsCmd = &cobra.Command{
	Use:   "tools [workflow]",
	Short: "Print tool descriptors for agent integration",
	Long: `Tools prints a JSON-schema style descriptor for the named workflow, or
for every loaded workflow when no name is given. Inputs without a default
are listed as required parameters.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := wire(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		if len(args) == 0 {
			return printValue(cmd.OutOrStdout(), toolsFormat, h.app.Catalog.Tools())
		}
		w, err := h.app.Catalog.Get(args[0])
		if err != nil {
			return err
		}
		return printValue(cmd.OutOrStdout(), toolsFormat, runtime.Tool(w))
	},
}

func init() {
	toolsCmd.Flags().StringVarP(&toolsFormat, "format", "f", "json", "output format: json or yaml")
}
