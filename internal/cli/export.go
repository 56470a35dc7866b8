package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/neurocurate/composer/internal/export"
)

var (
	exportOut     string
	exportTimeout time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write exported statements as flattened CSV rows",
	Long: `Export flattens every exported statement into
predicate-subject-object rows and writes them as one CSV, with one
extra column per exportable tag.

Example:
  composer export --out sckan.csv`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportOut, "out", "export.csv", "output CSV path")
	exportCmd.Flags().DurationVar(&exportTimeout, "timeout", 10*time.Minute, "overall run timeout")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	exporter := export.NewExporter(a.statements, a.lookups, a.log)
	count, err := exporter.WriteFile(ctx, nil, exportOut)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %d statements to %s\n", count, exportOut)
	return nil
}
