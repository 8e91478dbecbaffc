package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	verbose bool
	logger  *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "specgen",
		Short: "Generate Go tests and benchmarks from describe/it/bench suites",
		Long: `specgen compiles YAML suites of describe, it and bench blocks into
standalone Go test functions. Before and after hooks declared on a describe
are merged into every test and benchmark nested under it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return nil
			}
			config := zap.NewProductionConfig()
			config.Encoding = "console"
			if a.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(newGenerateCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newFetchCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the specgen version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "specgen %s\n", version)
		},
	})
	return root
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
