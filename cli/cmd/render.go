package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BDNK1/stepflow/cli/internal/security"
)

var (
	renderInputs  []string
	renderContext []string
	renderOut     string
)

var renderCmd = &cobra.Command{
	Use:   "render <workflow>",
	Short: "Render a workflow's first render step to HTML",
	Long: `Render compiles only the first render step of the workflow against the
given inputs and writes the resulting HTML. Other steps are not executed.

Example:
  stepflow render profile-card --input name=Ada
  stepflow render profile-card --input name=Ada --out build/card.html
`,
	Args: cobra.ExactArgs(1),
	RunE: renderWorkflow,
}

func init() {
	renderCmd.Flags().StringArrayVarP(&renderInputs, "input", "i", nil, "workflow input as key=value (repeatable)")
	renderCmd.Flags().StringArrayVarP(&renderContext, "context", "c", nil, "extra context value as key=value (repeatable)")
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "write HTML to this file inside the working directory")
}

func renderWorkflow(cmd *cobra.Command, args []string) error {
	inputs, err := parseAssignments(renderInputs)
	if err != nil {
		return fmt.Errorf("invalid --input: %w", err)
	}
	extra, err := parseAssignments(renderContext)
	if err != nil {
		return fmt.Errorf("invalid --context: %w", err)
	}

	var outPath string
	if renderOut != "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		if outPath, err = security.Resolve(wd, renderOut); err != nil {
			return fmt.Errorf("invalid --out: %w", err)
		}
	}

	ctx := cmd.Context()
	h, err := wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer h.Close()

	result, err := h.app.Render(ctx, args[0], inputs, extra)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("workflow %s produced no component", args[0])
	}

	node, err := result.Component(result.Props)
	if err != nil {
		return fmt.Errorf("error invoking component: %w", err)
	}
	var buf bytes.Buffer
	if err := node.Render(&buf); err != nil {
		return fmt.Errorf("error rendering component: %w", err)
	}

	if outPath == "" {
		buf.WriteByte('\n')
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", outPath, err)
	}
	logger.InfoContext(ctx, fmt.Sprintf("Wrote %s", outPath), "bytes", buf.Len())
	return nil
}
