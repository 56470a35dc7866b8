package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/neurocurate/composer/internal/populations"
)

var (
	reassignPopulation string
	reassignDryRun     bool
	reassignNoLock     bool
	reassignTimeout    time.Duration
)

var reassignCmd = &cobra.Command{
	Use:   "reassign",
	Short: "Reassign population indices of exported statements",
	Long: `Reassign rebuilds the per-population index sequence from the legacy
curie identifiers of exported statements. Contested indices go to the
statement with the smallest sequence number; the rest drain into free
indices above the highest one in use.

Example:
  composer reassign --population liver
  composer reassign --dry-run`,
	RunE: runReassign,
}

func init() {
	rootCmd.AddCommand(reassignCmd)

	reassignCmd.Flags().StringVar(&reassignPopulation, "population", "", "population name; empty processes all")
	reassignCmd.Flags().BoolVar(&reassignDryRun, "dry-run", false, "log the plan without writing")
	reassignCmd.Flags().BoolVar(&reassignNoLock, "no-lock", false, "skip the redis lease, even when REDIS_ADDR is set")
	reassignCmd.Flags().DurationVar(&reassignTimeout, "timeout", 10*time.Minute, "overall run timeout")
}

func runReassign(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), reassignTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	var locker populations.Locker
	if !reassignNoLock && os.Getenv("REDIS_ADDR") != "" {
		locker, err = populations.NewRedisLocker(a.log, reassignTimeout)
		if err != nil {
			return err
		}
		defer locker.Close()
	}

	reassigner := populations.NewReassigner(a.db, a.populations, a.statements, locker, a.log)
	results, err := reassigner.Run(ctx, populations.Options{
		Population: reassignPopulation,
		DryRun:     reassignDryRun,
	})
	for _, result := range results {
		fmt.Fprintf(os.Stdout, "%s: statements=%d changed=%d last_used_index=%d\n",
			result.Population, result.Statements, result.Changed, result.LastUsedIndex)
	}
	return err
}
