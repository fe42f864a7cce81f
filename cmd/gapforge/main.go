package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set with -ldflags at release time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "gapforge",
	Short: "gapforge - capability gap detection and tool acquisition",
	Long: `gapforge finds the reasoning capabilities an agent lacks tooling for, decides
whether to build or buy each one, and acquires tools under budget and approval policy.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configPath string
	verbose    bool
	logger     = zap.NewNop()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.gapforge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(gapsCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

// newLogger writes structured logs to stderr; verbose lowers the level to debug.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
