package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	runInputs  []string
	runContext []string
	runFormat  string
	runStrict  bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Execute a workflow and print the resulting context",
	Long: `Run executes every step of the named workflow in order. A failing step
does not stop the run: the failure is recorded under "errors" and the
remaining steps still execute.

Example:
  stepflow run greeting --input who=Ada
  stepflow run report --input limit=10 --context tenant=acme --format yaml
`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "workflow input as key=value (repeatable)")
	runCmd.Flags().StringArrayVarP(&runContext, "context", "c", nil, "extra context value as key=value (repeatable)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "json", "output format: json or yaml")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "exit non-zero when any step failed")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	inputs, err := parseAssignments(runInputs)
	if err != nil {
		return fmt.Errorf("invalid --input: %w", err)
	}
	extra, err := parseAssignments(runContext)
	if err != nil {
		return fmt.Errorf("invalid --context: %w", err)
	}

	ctx := cmd.Context()
	h, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	exec, err := h.app.Execute(ctx, args[0], inputs, extra)
	if err != nil {
		return err
	}

	report := exec.Report()
	if err := printValue(cmd.OutOrStdout(), runFormat, report); err != nil {
		return err
	}
	if runStrict && len(report.Errors) > 0 {
		return fmt.Errorf("workflow %s finished with %d failed step(s)", args[0], len(report.Errors))
	}
	return nil
}
