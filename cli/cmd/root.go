package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BDNK1/stepflow/cli/internal/config"
	"github.com/BDNK1/stepflow/runtime"
)

var (
	cfgFile   string
	sourceDir string
	logLevel  string

	cfg    *runtime.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stepflow",
	Short: "Stepflow - YAML workflow runner",
	Long: `Stepflow loads YAML-defined workflows from a directory or bucket and runs
their steps in order. Script steps run sandboxed Risor code; render steps
build HTML components from expressions.

Configuration is read from stepflow.yaml in the working directory unless
--config is given.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		loaded, err := config.Load(wd, cfgFile)
		if err != nil {
			return err
		}

		// CLI flags override the config file
		if cmd.Flags().Changed("source") {
			loaded.Workflows.Source = sourceDir
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}

		cfg = loaded
		logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./stepflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&sourceDir, "source", "", "workflow directory or bucket URL, overrides workflows.source")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(runCmd, renderCmd, toolsCmd, listCmd, validateCmd, serveCmd)
}

func newLogger(w io.Writer, c runtime.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
