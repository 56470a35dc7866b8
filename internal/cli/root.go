// Package cli wires the composer commands: ingest, reassign, export.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neurocurate/composer/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "composer",
	Short: "Composer - connectivity statement curation pipeline",
	Long: `Composer ingests neuron population records from an oracle export,
validates them against the anatomical-entity catalog, and maintains the
curated connectivity statements: overwrite policy, workflow states,
upstream invalidation, population indexing and CSV export.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("composer v0.3.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./composer.yaml or $HOME/.composer/composer.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

// initConfig layers the config file under the process environment.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		os.Exit(1)
	}
	cfg.Export()
	if verbose {
		os.Setenv("LOG_MODE", "development")
	}
}
