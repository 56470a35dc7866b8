package ingestion

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/neurondm"
	"github.com/neurocurate/composer/internal/observability"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/platform/pipeerr"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
	"github.com/neurocurate/composer/internal/workflow"
)

const tracerName = "composer/ingestion"

// Pipeline is the batch orchestrator. Phase one (load, filter,
// reconstruct, validate) never writes; phase two wraps every write in
// one outer transaction. Upstream invalidation runs after the batch
// commits.
type Pipeline struct {
	db          *gorm.DB
	validator   *Validator
	writer      *Writer
	evaluator   *RelationshipEvaluator
	invalidator *Invalidator
	statements  repos.StatementRepo
	notes       repos.NoteRepo
	users       repos.UserRepo
	machine     *workflow.StatementMachine
	metrics     *observability.Metrics
	log         *logger.Logger
}

func NewPipeline(
	db *gorm.DB,
	validator *Validator,
	writer *Writer,
	evaluator *RelationshipEvaluator,
	invalidator *Invalidator,
	statements repos.StatementRepo,
	notes repos.NoteRepo,
	users repos.UserRepo,
	machine *workflow.StatementMachine,
	metrics *observability.Metrics,
	baseLog *logger.Logger,
) *Pipeline {
	return &Pipeline{
		db:          db,
		validator:   validator,
		writer:      writer,
		evaluator:   evaluator,
		invalidator: invalidator,
		statements:  statements,
		notes:       notes,
		users:       users,
		machine:     machine,
		metrics:     metrics,
		log:         baseLog.With("component", "Pipeline"),
	}
}

// Result summarizes one pipeline run.
type Result struct {
	Total       int
	Ingested    int
	Created     int
	Updated     int
	Unchanged   int
	Invalidated int
	Skipped     int
	Anomalies   []Anomaly
}

type writtenNeuron struct {
	neuron *neurondm.Neuron
	result *WriteResult
}

// Run ingests every neuron the source yields. The batch succeeds when
// at least one statement was ingested; the anomaly log is written in
// every case.
func (p *Pipeline) Run(ctx context.Context, source neurondm.Source, opts Options) (result *Result, err error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ingestion.run")
	defer span.End()

	result = &Result{}
	defer func() {
		if opts.AnomalyLogPath == "" {
			return
		}
		if logErr := WriteAnomalyLog(opts.AnomalyLogPath, result.Anomalies); logErr != nil {
			p.log.Error("failed to write anomaly log", "path", opts.AnomalyLogPath, "error", logErr)
		}
	}()

	neurons, err := p.prepare(ctx, source, opts, result)
	if err != nil {
		return result, err
	}
	span.SetAttributes(attribute.Int("neurons.admitted", len(neurons)))
	if len(neurons) == 0 {
		p.log.Info("nothing admitted by the population filter")
		return result, nil
	}
	if opts.DryRun {
		p.recordAnomalies(result)
		p.log.Info("dry run complete", "total", result.Total, "admitted", len(neurons), "anomalies", len(result.Anomalies))
		return result, nil
	}

	var invalidSeeds []*types.ConnectivityStatement
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seeds, txErr := p.writeBatch(ctx, tx, neurons, opts, result)
		invalidSeeds = seeds
		return txErr
	})
	if err != nil {
		result.Anomalies = append(result.Anomalies, errorAnomaly("", "", "batch aborted: "+err.Error()))
		p.recordAnomalies(result)
		return result, pipeerr.Fatal("batch_aborted", err)
	}

	if len(invalidSeeds) > 0 {
		err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			cascaded, cascadeErr := p.invalidator.Cascade(ctx, tx, invalidSeeds)
			result.Invalidated += len(cascaded)
			return cascadeErr
		})
		if err != nil {
			result.Anomalies = append(result.Anomalies, errorAnomaly("", "", "invalidation cascade failed: "+err.Error()))
		}
	}

	p.recordAnomalies(result)
	p.log.Info("ingestion finished",
		"total", result.Total, "ingested", result.Ingested, "created", result.Created,
		"updated", result.Updated, "invalidated", result.Invalidated, "skipped", result.Skipped,
		"anomalies", len(result.Anomalies))
	return result, nil
}

// prepare is the store-free phase: load, filter, reconstruct layers
// from the partial order where the oracle gave none, validate.
func (p *Pipeline) prepare(ctx context.Context, source neurondm.Source, opts Options, result *Result) ([]*neurondm.Neuron, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ingestion.prepare")
	defer span.End()

	loaded, err := source.Neurons(ctx)
	if err != nil {
		return nil, pipeerr.Fatal("source_load", err)
	}
	result.Total = len(loaded)

	neurons := make([]*neurondm.Neuron, 0, len(loaded))
	for _, neuron := range loaded {
		if !opts.Filter.Admits(neuron.ID) {
			continue
		}
		if neuron.Origin == nil && neuron.PartialOrder != nil {
			origin, vias, destinations, recErr := neurondm.Reconstruct(neuron.PartialOrder, neuron.Axioms, &neuron.ValidationErrors)
			if recErr != nil {
				result.Anomalies = append(result.Anomalies, errorAnomaly(neuron.ID, "", "partial order reconstruction failed: "+recErr.Error()))
				result.Skipped++
				continue
			}
			neuron.Origin = origin
			neuron.Vias = vias
			neuron.Destinations = destinations
		}
		neurons = append(neurons, neuron)
	}

	result.Anomalies = append(result.Anomalies, p.validator.ValidateBatch(ctx, neurons, opts)...)
	return neurons, nil
}

// writeBatch is the transactional phase. Each statement write sits in
// its own savepoint so one failure rolls back that statement only, not
// the batch.
func (p *Pipeline) writeBatch(ctx context.Context, tx *gorm.DB, neurons []*neurondm.Neuron, opts Options, result *Result) ([]*types.ConnectivityStatement, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ingestion.write")
	defer span.End()

	var written []writtenNeuron
	for i, neuron := range neurons {
		savepoint := fmt.Sprintf("stmt_%d", i)
		if err := tx.SavePoint(savepoint).Error; err != nil {
			return nil, err
		}
		writeResult, err := p.writer.Write(ctx, tx, neuron, opts)
		if err != nil {
			if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
				return nil, fmt.Errorf("rollback to savepoint after %s: %v (original: %w)", neuron.ID, rbErr, err)
			}
			result.Anomalies = append(result.Anomalies, errorAnomaly(neuron.ID, "", "statement write failed: "+err.Error()))
			result.Skipped++
			p.metrics.IncSkipped()
			continue
		}
		result.Anomalies = append(result.Anomalies, writeResult.Anomalies...)
		if writeResult.SkipReason != "" {
			// The writer may have created sentence or lookup rows
			// before rejecting the neuron; discard them with it.
			if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
				return nil, fmt.Errorf("rollback to savepoint after %s: %w", neuron.ID, rbErr)
			}
			result.Anomalies = append(result.Anomalies, warningAnomaly(neuron.ID, "", writeResult.SkipReason))
			result.Skipped++
			p.metrics.IncSkipped()
			continue
		}

		result.Ingested++
		p.metrics.IncIngested()
		switch {
		case writeResult.Created:
			result.Created++
		case writeResult.Changed:
			result.Updated++
		default:
			result.Unchanged++
		}
		written = append(written, writtenNeuron{neuron: neuron, result: writeResult})
	}

	if len(written) == 0 {
		return nil, errors.New("no statement could be ingested")
	}

	if err := p.linkForwardConnections(ctx, tx, written); err != nil {
		return nil, err
	}

	for _, item := range written {
		result.Anomalies = append(result.Anomalies, p.evaluator.Apply(ctx, tx, item.result.Statement, item.neuron, opts)...)
	}

	return p.applyTransitions(ctx, tx, written, opts, result)
}

// linkForwardConnections is the second pass: every statement of the
// batch exists now, so in-batch references resolve.
func (p *Pipeline) linkForwardConnections(ctx context.Context, tx *gorm.DB, written []writtenNeuron) error {
	for _, item := range written {
		if len(item.neuron.ForwardConnection) == 0 {
			continue
		}
		targets := make([]*types.ConnectivityStatement, 0, len(item.neuron.ForwardConnection))
		for _, uri := range item.neuron.ForwardConnection {
			target, err := p.statements.GetByReferenceURI(ctx, tx, uri)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// Recorded as a validation error already; a missing
					// target is never a hard failure.
					continue
				}
				return err
			}
			targets = append(targets, target)
		}
		if err := p.statements.ReplaceForwardConnections(ctx, tx, item.result.Statement, targets); err != nil {
			return err
		}
		item.result.Statement.ForwardConnections = targets
	}
	return nil
}

// applyTransitions moves each written statement to its post-ingest
// state: invalid when validation failed, exported when the run uses an
// explicit population filter. Returns the statements that became
// invalid, the seeds for the upstream cascade.
func (p *Pipeline) applyTransitions(ctx context.Context, tx *gorm.DB, written []writtenNeuron, opts Options, result *Result) ([]*types.ConnectivityStatement, error) {
	system, err := p.users.System(ctx, tx)
	if err != nil {
		return nil, err
	}

	var invalidSeeds []*types.ConnectivityStatement
	for _, item := range written {
		statement := item.result.Statement

		if item.neuron.ValidationErrors.HasErrors() {
			if statement.State != types.CSStateInvalid {
				if err := p.machine.Do(ctx, tx, workflow.TransitionInvalid, statement, system); err != nil {
					return nil, fmt.Errorf("invalidate %s: %w", statement.ReferenceURI, err)
				}
				if err := p.persistState(ctx, tx, statement); err != nil {
					return nil, err
				}
				result.Invalidated++
				p.metrics.IncInvalidated()
			}
			note := &types.Note{
				UserID:                  &system.ID,
				Type:                    types.NoteTypePlain,
				Text:                    item.neuron.ValidationErrors.Compile(),
				ConnectivityStatementID: &statement.ID,
			}
			if err := p.notes.Create(ctx, tx, note); err != nil {
				return nil, err
			}
			invalidSeeds = append(invalidSeeds, statement)
			continue
		}

		if opts.Filter != nil && opts.Filter.Contains(statement.ReferenceURI) && statement.State != types.CSStateExported {
			err := p.machine.Do(ctx, tx, workflow.TransitionSystemExported, statement, system)
			if err != nil {
				if !errors.Is(err, workflow.ErrConditionNotMet) {
					return nil, fmt.Errorf("export %s: %w", statement.ReferenceURI, err)
				}
				// Guard failure keeps the current state and leaves a
				// transition note instead.
				note := &types.Note{
					UserID:                  &system.ID,
					Type:                    types.NoteTypeTransition,
					Text:                    fmt.Sprintf("export blocked: %v", err),
					ConnectivityStatementID: &statement.ID,
				}
				if noteErr := p.notes.Create(ctx, tx, note); noteErr != nil {
					return nil, noteErr
				}
				continue
			}
			if err := p.persistState(ctx, tx, statement); err != nil {
				return nil, err
			}
		}
	}
	return invalidSeeds, nil
}

// persistState flushes the fields a transition side effect may have
// touched.
func (p *Pipeline) persistState(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement) error {
	updates := map[string]any{
		"state":                       statement.State,
		"has_statement_been_exported": statement.HasStatementBeenExported,
		"curie_id":                    statement.CurieID,
		"reference_uri":               statement.ReferenceURI,
		"population_index":            statement.PopulationIndex,
	}
	return tx.WithContext(ctx).Model(statement).Updates(updates).Error
}

func (p *Pipeline) recordAnomalies(result *Result) {
	for _, anomaly := range result.Anomalies {
		p.metrics.IncAnomaly(string(anomaly.Severity))
	}
}
