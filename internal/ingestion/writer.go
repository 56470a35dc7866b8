package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/journey"
	"github.com/neurocurate/composer/internal/neurondm"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
)

// OverwriteNoteText is appended to a statement whose content was
// replaced by a later ingest run.
const OverwriteNoteText = "Overwritten by manual ingestion"

// circuitTypeByURI maps the oracle's circuit phenotype URIs onto the
// internal enumeration.
var circuitTypeByURI = map[string]types.CircuitType{
	"http://uri.interlex.org/tgbugs/uris/readable/SensoryPhenotype":    types.CircuitTypeSensory,
	"http://uri.interlex.org/tgbugs/uris/readable/MotorPhenotype":      types.CircuitTypeMotor,
	"http://uri.interlex.org/tgbugs/uris/readable/IntrinsicPhenotype":  types.CircuitTypeIntrinsic,
	"http://uri.interlex.org/tgbugs/uris/readable/ProjectionPhenotype": types.CircuitTypeProjection,
	"http://uri.interlex.org/tgbugs/uris/readable/AnaxonicPhenotype":   types.CircuitTypeAnaxonic,
}

// Writer persists one neuron as a connectivity statement: sentence
// find-or-create, upsert by reference URI, change detection, and the
// transactional rebuild of child collections. It never changes state;
// the pipeline runs transitions after the write.
type Writer struct {
	sentences   repos.SentenceRepo
	statements  repos.StatementRepo
	entities    repos.AnatomicalEntityRepo
	lookups     repos.LookupRepo
	populations repos.PopulationRepo
	notes       repos.NoteRepo
	users       repos.UserRepo
	log         *logger.Logger
}

func NewWriter(
	sentences repos.SentenceRepo,
	statements repos.StatementRepo,
	entities repos.AnatomicalEntityRepo,
	lookups repos.LookupRepo,
	populations repos.PopulationRepo,
	notes repos.NoteRepo,
	users repos.UserRepo,
	baseLog *logger.Logger,
) *Writer {
	return &Writer{
		sentences:   sentences,
		statements:  statements,
		entities:    entities,
		lookups:     lookups,
		populations: populations,
		notes:       notes,
		users:       users,
		log:         baseLog.With("component", "Writer"),
	}
}

// WriteResult reports what one neuron write did.
type WriteResult struct {
	Statement  *types.ConnectivityStatement
	Created    bool
	Changed    bool
	SkipReason string
	Anomalies  []Anomaly
}

// Write upserts the neuron's statement inside the supplied batch
// transaction. A non-empty SkipReason means the neuron was rejected,
// by the sentence state or by the overwrite policy; the caller rolls
// back whatever this call wrote for it.
func (w *Writer) Write(ctx context.Context, tx *gorm.DB, neuron *neurondm.Neuron, opts Options) (*WriteResult, error) {
	result := &WriteResult{}

	existing, err := w.findExisting(ctx, tx, neuron.ID)
	if err != nil {
		return nil, err
	}

	sentence, err := w.findOrCreateSentence(ctx, tx, neuron, opts)
	if err != nil {
		return nil, err
	}
	if !SentenceAccepts(sentence) {
		result.SkipReason = fmt.Sprintf("sentence %s is in state %s, not compose_now", sentence.ID, sentence.State)
		return result, nil
	}

	desired, err := w.buildDesired(ctx, tx, neuron, sentence, existing, result)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return w.create(ctx, tx, neuron, desired, result)
	}
	// The change detector runs before the overwrite policy: identical
	// content is a no-op in any state, the policy only gates rewrites.
	if !StatementChanged(existing, desired) {
		result.Statement = existing
		return result, nil
	}
	if ok, reason := CanOverwrite(existing, neuron.ID, opts); !ok {
		result.SkipReason = reason
		return result, nil
	}
	return w.update(ctx, tx, neuron, existing, desired, result)
}

func (w *Writer) findExisting(ctx context.Context, tx *gorm.DB, uri string) (*types.ConnectivityStatement, error) {
	statement, err := w.statements.GetByReferenceURI(ctx, tx, uri)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup statement %s: %w", uri, err)
	}
	return statement, nil
}

func (w *Writer) findOrCreateSentence(ctx context.Context, tx *gorm.DB, neuron *neurondm.Neuron, opts Options) (*types.Sentence, error) {
	doi := sentenceDOI(neuron)
	sentence, err := w.sentences.GetByDOI(ctx, tx, doi)
	if err == nil {
		return sentence, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup sentence %s: %w", doi, err)
	}

	title := neuron.PrefLabel
	if title == "" {
		title = neuron.Label
	}
	if title == "" {
		title = neuron.ID
	}
	fresh := &types.Sentence{
		Title:       title,
		Text:        strings.Join(neuron.SentenceNumber, "; "),
		DOI:         doi,
		BatchName:   opts.BatchName,
		ExternalRef: neuron.ID,
		State:       types.SentenceStateComposeNow,
	}
	return w.sentences.Create(ctx, tx, fresh)
}

// sentenceDOI keys the sentence on the first DOI-shaped provenance,
// falling back to the neuron URI so every neuron deterministically maps
// to one sentence.
func sentenceDOI(neuron *neurondm.Neuron) string {
	for _, uri := range neuron.Provenance {
		lower := strings.ToLower(uri)
		if strings.HasPrefix(lower, "10.") || strings.HasPrefix(lower, "doi:") || strings.Contains(lower, "doi.org/") {
			return uri
		}
	}
	return neuron.ID
}

// buildDesired resolves the neuron into the persisted shape: FK
// targets, entity rows, via and destination layers. Curator-owned
// fields the oracle does not carry are taken from the existing record.
func (w *Writer) buildDesired(ctx context.Context, tx *gorm.DB, neuron *neurondm.Neuron, sentence *types.Sentence, existing *types.ConnectivityStatement, result *WriteResult) (*types.ConnectivityStatement, error) {
	knowledge := neuron.PrefLabel
	if knowledge == "" {
		knowledge = neuron.Label
	}
	desired := &types.ConnectivityStatement{
		SentenceID:         sentence.ID,
		ReferenceURI:       neuron.ID,
		KnowledgeStatement: knowledge,
	}
	if existing != nil {
		desired.Laterality = existing.Laterality
		desired.Projection = existing.Projection
		desired.FunctionalCircuitRoleID = existing.FunctionalCircuitRoleID
	}

	desired.CircuitType = circuitTypeFromURIs(neuron.CircuitType)
	if desired.CircuitType == "" {
		if existing != nil {
			desired.CircuitType = existing.CircuitType
		}
		if len(neuron.CircuitType) > 0 {
			result.Anomalies = append(result.Anomalies, warningAnomaly(neuron.ID, neuron.CircuitType[0], "unrecognized circuit type URI"))
		}
	}

	if len(neuron.Sex) > 0 {
		if sex, err := w.lookups.GetSexByURI(ctx, tx, neuron.Sex[0]); err == nil {
			desired.SexID = &sex.ID
			desired.Sex = sex
		}
	}
	if name := strings.Join(neuron.Phenotypes, ", "); name != "" {
		phenotype, err := w.lookups.GetOrCreatePhenotype(ctx, tx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve phenotype %q: %w", name, err)
		}
		desired.PhenotypeID = &phenotype.ID
		desired.Phenotype = phenotype
	}
	if name := strings.Join(neuron.OtherPhenotypes, ", "); name != "" {
		projection, err := w.lookups.GetOrCreateProjectionPhenotype(ctx, tx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve projection phenotype %q: %w", name, err)
		}
		desired.ProjectionPhenotypeID = &projection.ID
		desired.ProjectionPhenotype = projection
	}
	if neuron.PopulationSet != "" {
		population, err := w.populations.GetOrCreate(ctx, tx, neuron.PopulationSet)
		if err != nil {
			return nil, fmt.Errorf("resolve population %q: %w", neuron.PopulationSet, err)
		}
		desired.PopulationID = &population.ID
		desired.Population = population
	}

	for _, uri := range neuron.Species {
		specie, err := w.lookups.GetSpecieByURI(ctx, tx, uri)
		if err != nil {
			// Missing species were already recorded by the validator.
			continue
		}
		desired.Species = append(desired.Species, *specie)
	}

	if neuron.Origin != nil {
		origins, err := w.resolveEntities(ctx, tx, neuron.Origin.Entities)
		if err != nil {
			return nil, err
		}
		desired.Origins = origins
	}
	for _, via := range neuron.Vias {
		entities, err := w.resolveEntities(ctx, tx, via.Entities)
		if err != nil {
			return nil, err
		}
		from, err := w.resolveEntities(ctx, tx, via.FromEntities)
		if err != nil {
			return nil, err
		}
		desired.Vias = append(desired.Vias, types.Via{
			Order:              via.Order,
			Type:               via.Type,
			AnatomicalEntities: entities,
			FromEntities:       from,
		})
	}
	for _, destination := range neuron.Destinations {
		entities, err := w.resolveEntities(ctx, tx, destination.Entities)
		if err != nil {
			return nil, err
		}
		from, err := w.resolveEntities(ctx, tx, destination.FromEntities)
		if err != nil {
			return nil, err
		}
		desired.Destinations = append(desired.Destinations, types.Destination{
			Type:               destination.Type,
			AnatomicalEntities: entities,
			FromEntities:       from,
		})
	}

	for _, uri := range neuron.ForwardConnection {
		target, err := w.findExisting(ctx, tx, uri)
		if err != nil {
			return nil, err
		}
		if target == nil {
			// In-batch target that does not exist yet; the second pass
			// resolves it after every statement is written.
			target = &types.ConnectivityStatement{ReferenceURI: uri}
		}
		desired.ForwardConnections = append(desired.ForwardConnections, target)
	}

	for _, uri := range neuron.Provenance {
		if !types.ValidProvenanceURI(uri) {
			result.Anomalies = append(result.Anomalies, warningAnomaly(neuron.ID, uri, "provenance URI rejected by grammar"))
			continue
		}
		desired.Provenances = append(desired.Provenances, types.Provenance{URI: uri})
	}

	for _, alert := range neuron.StatementAlerts {
		alertType, err := w.lookups.GetOrCreateAlertType(ctx, tx, alert.URI)
		if err != nil {
			return nil, fmt.Errorf("resolve alert type %s: %w", alert.URI, err)
		}
		desired.StatementAlerts = append(desired.StatementAlerts, types.StatementAlert{
			AlertTypeID: alertType.ID,
			Text:        alert.Text,
		})
	}

	return desired, nil
}

func (w *Writer) resolveEntities(ctx context.Context, tx *gorm.DB, refs []neurondm.EntityRef) ([]types.AnatomicalEntity, error) {
	entities := make([]types.AnatomicalEntity, 0, len(refs))
	for _, ref := range refs {
		var entity *types.AnatomicalEntity
		var err error
		if ref.RegionLayer != nil {
			entity, err = w.entities.GetOrCreateIntersection(ctx, tx, ref.RegionLayer.Region, ref.RegionLayer.Layer)
		} else {
			entity, err = w.entities.GetOrCreateSimple(ctx, tx, ref.URI)
		}
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// No catalog meta for this reference; the validator
				// already recorded it, so the statement persists with
				// the entity missing and transitions to invalid.
				continue
			}
			return nil, fmt.Errorf("resolve entity %s: %w", ref.Key(), err)
		}
		entities = append(entities, *entity)
	}
	return entities, nil
}

func (w *Writer) create(ctx context.Context, tx *gorm.DB, neuron *neurondm.Neuron, desired *types.ConnectivityStatement, result *WriteResult) (*WriteResult, error) {
	desired.State = types.CSStateDraft
	RecomputeDerived(desired)

	created, err := w.statements.Create(ctx, tx, desired)
	if err != nil {
		return nil, fmt.Errorf("create statement %s: %w", neuron.ID, err)
	}
	if err := w.rebuildChildren(ctx, tx, created, desired); err != nil {
		return nil, err
	}

	if len(neuron.NoteAlert) > 0 {
		system, err := w.users.System(ctx, tx)
		if err != nil {
			return nil, err
		}
		for _, text := range neuron.NoteAlert {
			note := &types.Note{
				UserID:                  &system.ID,
				Type:                    types.NoteTypeAlert,
				Text:                    text,
				ConnectivityStatementID: &created.ID,
			}
			if err := w.notes.Create(ctx, tx, note); err != nil {
				return nil, fmt.Errorf("create alert note: %w", err)
			}
		}
	}

	w.log.Debug("created statement", "reference_uri", neuron.ID, "statement_id", created.ID)
	result.Statement = created
	result.Created = true
	result.Changed = true
	return result, nil
}

func (w *Writer) update(ctx context.Context, tx *gorm.DB, neuron *neurondm.Neuron, existing, desired *types.ConnectivityStatement, result *WriteResult) (*WriteResult, error) {
	if !StatementChanged(existing, desired) {
		result.Statement = existing
		return result, nil
	}

	existing.SentenceID = desired.SentenceID
	existing.KnowledgeStatement = desired.KnowledgeStatement
	existing.CircuitType = desired.CircuitType
	existing.SexID = desired.SexID
	existing.PhenotypeID = desired.PhenotypeID
	existing.ProjectionPhenotypeID = desired.ProjectionPhenotypeID
	existing.PopulationID = desired.PopulationID
	existing.Origins = desired.Origins
	existing.Vias = desired.Vias
	existing.Destinations = desired.Destinations
	RecomputeDerived(existing)

	if err := w.statements.Save(ctx, tx, existing); err != nil {
		return nil, fmt.Errorf("update statement %s: %w", neuron.ID, err)
	}
	if err := w.rebuildChildren(ctx, tx, existing, desired); err != nil {
		return nil, err
	}

	system, err := w.users.System(ctx, tx)
	if err != nil {
		return nil, err
	}
	note := &types.Note{
		UserID:                  &system.ID,
		Type:                    types.NoteTypePlain,
		Text:                    OverwriteNoteText,
		ConnectivityStatementID: &existing.ID,
	}
	if err := w.notes.Create(ctx, tx, note); err != nil {
		return nil, fmt.Errorf("create overwrite note: %w", err)
	}

	w.log.Debug("overwrote statement", "reference_uri", neuron.ID, "statement_id", existing.ID)
	result.Statement = existing
	result.Changed = true
	return result, nil
}

// rebuildChildren clears and re-adds every ingested child collection.
// Notes are never touched.
func (w *Writer) rebuildChildren(ctx context.Context, tx *gorm.DB, statement, desired *types.ConnectivityStatement) error {
	if err := w.statements.ReplaceOrigins(ctx, tx, statement, desired.Origins); err != nil {
		return err
	}
	if err := w.statements.ReplaceSpecies(ctx, tx, statement, desired.Species); err != nil {
		return err
	}
	if err := w.statements.ReplaceVias(ctx, tx, statement, desired.Vias); err != nil {
		return err
	}
	if err := w.statements.ReplaceDestinations(ctx, tx, statement, desired.Destinations); err != nil {
		return err
	}
	uris := make([]string, 0, len(desired.Provenances))
	for i := range desired.Provenances {
		uris = append(uris, desired.Provenances[i].URI)
	}
	if err := w.statements.ReplaceProvenances(ctx, tx, statement, uris); err != nil {
		return err
	}
	if err := w.statements.ReplaceExpertConsultants(ctx, tx, statement, desired.ExpertConsultants); err != nil {
		return err
	}
	return w.statements.ReplaceStatementAlerts(ctx, tx, statement, desired.StatementAlerts)
}

func circuitTypeFromURIs(uris []string) types.CircuitType {
	for _, uri := range uris {
		if circuitType, ok := circuitTypeByURI[uri]; ok {
			return circuitType
		}
	}
	return ""
}

// RecomputeDerived refreshes journey_path and the statement prefix and
// suffix from the statement's current layers. It runs once per writer
// commit rather than on every collection change.
func RecomputeDerived(statement *types.ConnectivityStatement) {
	graph := graphFromStatement(statement)
	paths, sentences := journey.Compute(graph)

	if raw, err := json.Marshal(paths); err == nil {
		statement.JourneyPath = raw
	}
	statement.StatementSuffix = strings.Join(sentences, "; ")
	statement.StatementPrefix = statementPrefix(statement)
}

func statementPrefix(statement *types.ConnectivityStatement) string {
	var builder strings.Builder
	builder.WriteString("This")
	if statement.Phenotype != nil {
		builder.WriteString(" " + strings.ToLower(statement.Phenotype.Name))
	}
	builder.WriteString(" connection")
	if len(statement.Species) > 0 {
		names := make([]string, 0, len(statement.Species))
		for i := range statement.Species {
			names = append(names, statement.Species[i].Name)
		}
		sort.Strings(names)
		builder.WriteString(" in " + strings.Join(names, ", "))
	}
	builder.WriteString(" goes")
	return builder.String()
}

func graphFromStatement(statement *types.ConnectivityStatement) *journey.Graph {
	graph := &journey.Graph{}
	for i := range statement.Origins {
		graph.Origins = append(graph.Origins, journeyEntity(&statement.Origins[i]))
	}

	vias := make([]types.Via, len(statement.Vias))
	copy(vias, statement.Vias)
	sort.Slice(vias, func(i, j int) bool { return vias[i].Order < vias[j].Order })
	for i := range vias {
		layer := journey.ViaLayer{Order: vias[i].Order, From: map[string]struct{}{}}
		for j := range vias[i].AnatomicalEntities {
			layer.Entities = append(layer.Entities, journeyEntity(&vias[i].AnatomicalEntities[j]))
		}
		for j := range vias[i].FromEntities {
			layer.From[vias[i].FromEntities[j].IdentifierKey()] = struct{}{}
		}
		graph.Vias = append(graph.Vias, layer)
	}
	for i := range statement.Destinations {
		layer := journey.DestLayer{From: map[string]struct{}{}}
		for j := range statement.Destinations[i].AnatomicalEntities {
			layer.Entities = append(layer.Entities, journeyEntity(&statement.Destinations[i].AnatomicalEntities[j]))
		}
		for j := range statement.Destinations[i].FromEntities {
			layer.From[statement.Destinations[i].FromEntities[j].IdentifierKey()] = struct{}{}
		}
		graph.Destinations = append(graph.Destinations, layer)
	}
	return graph
}

func journeyEntity(entity *types.AnatomicalEntity) journey.Entity {
	return journey.Entity{ID: entity.IdentifierKey(), Label: entity.EntityName()}
}
