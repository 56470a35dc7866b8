package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/neurocurate/composer/internal/ingestion"
	"github.com/neurocurate/composer/internal/neurondm"
	"github.com/neurocurate/composer/internal/workflow"
)

var (
	ingestInput          string
	ingestFromNeo4j      bool
	ingestPopulationFile string
	ingestBatchName      string
	ingestAnomalyLog     string
	ingestUpdateEntities bool
	ingestNoOverwrite    bool
	ingestDryRun         bool
	ingestTimeout        time.Duration
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest neuron populations from an oracle export",
	Long: `Ingest loads neuron population records, reconstructs layers from
partial orders where needed, validates them against the anatomical
catalog, and writes connectivity statements in one batch transaction.

With --population-file the run operates in pre-filtered mode: only the
listed reference URIs are admitted, protected workflow states may be
overwritten, and admitted statements are exported under the system
principal.

Example:
  composer ingest --input neurons.jsonl --batch-name 2026-08
  composer ingest --neo4j --population-file approved.txt
  composer ingest --input neurons.jsonl --dry-run`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "JSON-lines oracle export to ingest")
	ingestCmd.Flags().BoolVar(&ingestFromNeo4j, "neo4j", false, "read neurons from the graph store (NEO4J_* env) instead of a file")
	ingestCmd.Flags().StringVar(&ingestPopulationFile, "population-file", "", "file with one reference URI per line; enables pre-filtered mode")
	ingestCmd.Flags().StringVar(&ingestBatchName, "batch-name", "", "label for sentences created by this run")
	ingestCmd.Flags().StringVar(&ingestAnomalyLog, "anomalies", "anomalies.csv", "anomaly CSV path")
	ingestCmd.Flags().BoolVar(&ingestUpdateEntities, "update-anatomic-entities", false, "allow retyping bare entity metas into region/layer subtypes")
	ingestCmd.Flags().BoolVar(&ingestNoOverwrite, "disable-overwrite", false, "never modify existing statements")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "validate only, write nothing")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 30*time.Minute, "overall run timeout")
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestInput == "" && !ingestFromNeo4j {
		return fmt.Errorf("either --input or --neo4j is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	var source neurondm.Source
	if ingestFromNeo4j {
		neo4jSource, err := neurondm.NewNeo4jSourceFromEnv(a.log)
		if err != nil {
			return err
		}
		defer neo4jSource.Close(ctx)
		source = neo4jSource
	} else {
		source = neurondm.NewJSONLSource(ingestInput, a.log)
	}

	filter, err := neurondm.LoadPopulationFilter(ingestPopulationFile)
	if err != nil {
		return err
	}

	machine := workflow.NewStatementMachine(a.log)
	validator := ingestion.NewValidator(a.entities, a.lookups, a.statements, a.log)
	writer := ingestion.NewWriter(a.sentences, a.statements, a.entities, a.lookups, a.populations, a.notes, a.users, a.log)
	evaluator := ingestion.NewRelationshipEvaluator(a.relationships, a.entities, a.log)
	invalidator := ingestion.NewInvalidator(a.statements, a.notes, a.users, machine, a.log)
	pipeline := ingestion.NewPipeline(a.db, validator, writer, evaluator, invalidator,
		a.statements, a.notes, a.users, machine, a.metrics, a.log)

	result, err := pipeline.Run(ctx, source, ingestion.Options{
		UpdateAnatomicalEntities: ingestUpdateEntities,
		DisableOverwrite:         ingestNoOverwrite,
		Filter:                   filter,
		BatchName:                ingestBatchName,
		AnomalyLogPath:           ingestAnomalyLog,
		DryRun:                   ingestDryRun,
	})
	if result != nil {
		fmt.Fprintf(os.Stdout,
			"total=%d ingested=%d created=%d updated=%d unchanged=%d invalidated=%d skipped=%d anomalies=%d\n",
			result.Total, result.Ingested, result.Created, result.Updated,
			result.Unchanged, result.Invalidated, result.Skipped, len(result.Anomalies))
	}
	return err
}
