package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BDNK1/stepflow/cli/internal/security"
	"github.com/BDNK1/stepflow/runtime"
	"github.com/BDNK1/stepflow/runtime/engine"
	"github.com/BDNK1/stepflow/runtime/engine/render"
	"github.com/BDNK1/stepflow/runtime/source"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check workflow definitions without running them",
	Long: `Validate loads each definition and reports structural errors. With no
arguments every definition in the configured source is checked; otherwise
only the given files, which must live under the working directory.
Steps naming an engine that is not registered are reported as warnings;
they are skipped at run time.

Example:
  stepflow validate
  stepflow validate workflows/greeting.yaml workflows/report.yml
`,
	RunE: validateDefinitions,
}

func validateDefinitions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var defs []runtime.RawDefinition
	if len(args) == 0 {
		bucket, err := source.Open(ctx, cfg.Workflows.Source, cfg.Workflows.Prefix)
		if err != nil {
			return err
		}
		defer bucket.Close()
		if defs, err = bucket.List(ctx); err != nil {
			return err
		}
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths, err := security.ResolveAll(wd, args...)
		if err != nil {
			return err
		}
		for _, p := range paths {
			text, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read %q: %w", p, err)
			}
			defs = append(defs, runtime.RawDefinition{Text: text, Locator: p})
		}
	}

	loader := runtime.NewLoader(logger)
	engines := engine.NewDispatcher(logger, render.NewService(logger)).Registry()
	out := cmd.OutOrStdout()
	seen := make(map[string]string)
	failed := 0
	for _, def := range defs {
		w, err := loader.Load(def.Text, def.Locator)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s\n     %v\n", def.Locator, err)
			continue
		}
		// the later definition wins at load time
		if prev, dup := seen[w.Name]; dup {
			fmt.Fprintf(out, "warn %s\n     redefines workflow %q from %s\n", def.Locator, w.Name, prev)
		} else {
			fmt.Fprintf(out, "ok   %s (%s, %d steps)\n", def.Locator, w.Name, len(w.Steps))
		}
		seen[w.Name] = def.Locator
		for _, step := range w.Steps {
			if !engines.Registered(step.Engine) {
				fmt.Fprintf(out, "warn %s\n     step %q uses unregistered engine %q\n", def.Locator, step.Name, step.Engine)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d definitions failed validation", failed, len(defs))
	}
	return nil
}
