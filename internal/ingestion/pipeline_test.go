package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/neurocurate/composer/internal/neurondm"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
	"github.com/neurocurate/composer/internal/workflow"
)

const (
	uriOrigin = "http://purl.obolibrary.org/obo/UBERON_0001"
	uriVia    = "http://purl.obolibrary.org/obo/UBERON_0002"
	uriDest   = "http://purl.obolibrary.org/obo/UBERON_0003"
	uriSex    = "http://purl.obolibrary.org/obo/PATO_0000384"
	uriRat    = "http://purl.obolibrary.org/obo/NCBITaxon_10116"
)

type sliceSource struct {
	neurons []*neurondm.Neuron
}

func (s *sliceSource) Neurons(context.Context) ([]*neurondm.Neuron, error) {
	return s.neurons, nil
}

type testEnv struct {
	db          *gorm.DB
	pipeline    *Pipeline
	statements  repos.StatementRepo
	sentences   repos.SentenceRepo
	users       repos.UserRepo
	invalidator *Invalidator
	machine     *workflow.StatementMachine
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&types.User{}, &types.Sentence{}, &types.Note{},
		&types.AnatomicalEntityMeta{}, &types.AnatomicalEntityIntersection{},
		&types.AnatomicalEntity{}, &types.Synonym{},
		&types.Sex{}, &types.Specie{}, &types.Phenotype{},
		&types.ProjectionPhenotype{}, &types.FunctionalCircuitRole{},
		&types.Tag{}, &types.AlertType{}, &types.StatementAlert{},
		&types.PopulationSet{}, &types.Provenance{},
		&types.ConnectivityStatement{}, &types.Via{}, &types.Destination{},
		&types.ExpertConsultant{},
		&types.Relationship{}, &types.Triple{}, &types.StatementText{},
		&types.StatementEntityRelation{},
	))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	log := logger.NewNop()

	users := repos.NewUserRepo(db, log)
	entities := repos.NewAnatomicalEntityRepo(db, log)
	sentences := repos.NewSentenceRepo(db, log)
	statements := repos.NewStatementRepo(db, log)
	lookups := repos.NewLookupRepo(db, log)
	notes := repos.NewNoteRepo(db, log)
	populations := repos.NewPopulationRepo(db, log)
	relationships := repos.NewRelationshipRepo(db, log)

	machine := workflow.NewStatementMachine(log)
	validator := NewValidator(entities, lookups, statements, log)
	writer := NewWriter(sentences, statements, entities, lookups, populations, notes, users, log)
	evaluator := NewRelationshipEvaluator(relationships, entities, log)
	invalidator := NewInvalidator(statements, notes, users, machine, log)
	pipeline := NewPipeline(db, validator, writer, evaluator, invalidator, statements, notes, users, machine, nil, log)

	return &testEnv{
		db:          db,
		pipeline:    pipeline,
		statements:  statements,
		sentences:   sentences,
		users:       users,
		invalidator: invalidator,
		machine:     machine,
	}
}

func (env *testEnv) seedMeta(t *testing.T, uri, name string) {
	t.Helper()
	require.NoError(t, env.db.Create(&types.AnatomicalEntityMeta{OntologyURI: uri, Name: name}).Error)
}

func (env *testEnv) seedCatalog(t *testing.T) {
	t.Helper()
	env.seedMeta(t, uriOrigin, "superior cervical ganglion")
	env.seedMeta(t, uriVia, "cervical sympathetic trunk")
	env.seedMeta(t, uriDest, "tarsal muscle")
	require.NoError(t, env.db.Create(&types.Sex{Name: "female", OntologyURI: uriSex}).Error)
	require.NoError(t, env.db.Create(&types.Specie{Name: "Rattus norvegicus", OntologyURI: uriRat}).Error)
}

func testNeuron(id string) *neurondm.Neuron {
	return &neurondm.Neuron{
		ID:        id,
		Label:     "neuron " + id,
		PrefLabel: "sympathetic chain neuron",
		Origin: &neurondm.NeuronDMOrigin{
			Entities: []neurondm.EntityRef{{URI: uriOrigin}},
		},
		Vias: []neurondm.NeuronDMVia{{
			Entities: []neurondm.EntityRef{{URI: uriVia}},
			Order:    0,
			Type:     types.ViaTypeAxon,
		}},
		Destinations: []neurondm.NeuronDMDestination{{
			Entities:     []neurondm.EntityRef{{URI: uriDest}},
			FromEntities: []neurondm.EntityRef{{URI: uriVia}},
			Type:         types.DestinationTypeAxonTerminal,
		}},
		Sex:           []string{uriSex},
		Species:       []string{uriRat},
		Provenance:    []string{"PMID: 12345"},
		PopulationSet: "liver",
	}
}

func (env *testEnv) statementByURI(t *testing.T, uri string) *types.ConnectivityStatement {
	t.Helper()
	statement, err := env.statements.GetByReferenceURI(context.Background(), nil, uri)
	require.NoError(t, err)
	return statement
}

func (env *testEnv) notesOf(t *testing.T, statementID string) []types.Note {
	t.Helper()
	var found []types.Note
	require.NoError(t, env.db.Where("connectivity_statement_id = ?", statementID).Find(&found).Error)
	return found
}

func TestPipelineCreatesStatement(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)
	ctx := context.Background()

	uri := "http://uri.interlex.org/composer/neuron/1"
	result, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{testNeuron(uri)}}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Created)
	require.Equal(t, 1, result.Ingested)
	require.Zero(t, result.Invalidated)

	statement := env.statementByURI(t, uri)
	require.Equal(t, types.CSStateDraft, statement.State)
	require.Equal(t, "sympathetic chain neuron", statement.KnowledgeStatement)
	require.Len(t, statement.Origins, 1)
	require.Len(t, statement.Vias, 1)
	require.Len(t, statement.Destinations, 1)
	require.Len(t, statement.Species, 1)
	require.Len(t, statement.Provenances, 1)
	require.NotNil(t, statement.SexID)
	require.NotNil(t, statement.PopulationID)
	require.Contains(t, statement.StatementSuffix, "from superior cervical ganglion to tarsal muscle")
	require.NotEmpty(t, statement.JourneyPath)

	sentence, err := env.sentences.GetByDOI(ctx, nil, uri)
	require.NoError(t, err)
	require.Equal(t, types.SentenceStateComposeNow, sentence.State)
}

func TestPipelineReingestIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)
	ctx := context.Background()

	uri := "http://uri.interlex.org/composer/neuron/2"
	source := &sliceSource{neurons: []*neurondm.Neuron{testNeuron(uri)}}

	first, err := env.pipeline.Run(ctx, source, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	// Same input again: the change detector must short-circuit every
	// write, so no overwrite note appears.
	second, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{testNeuron(uri)}}, Options{})
	require.NoError(t, err)
	require.Zero(t, second.Created)
	require.Zero(t, second.Updated)
	require.Equal(t, 1, second.Unchanged)

	statement := env.statementByURI(t, uri)
	for _, note := range env.notesOf(t, statement.ID.String()) {
		require.NotEqual(t, OverwriteNoteText, note.Text)
	}
}

func TestPipelineUnchangedReingestBypassesOverwriteGate(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)
	ctx := context.Background()

	uri := "http://uri.interlex.org/composer/neuron/6"
	first, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{testNeuron(uri)}}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	// Identical content is a no-op even when overwriting is forbidden:
	// the change detector decides before the overwrite policy does.
	second, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{testNeuron(uri)}}, Options{DisableOverwrite: true})
	require.NoError(t, err)
	require.Equal(t, 1, second.Unchanged)
	require.Zero(t, second.Skipped)

	// Changed content hits the gate and the batch aborts.
	changed := testNeuron(uri)
	changed.PrefLabel = "different content"
	third, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{changed}}, Options{DisableOverwrite: true})
	require.Error(t, err)
	require.Equal(t, 1, third.Skipped)
	require.Equal(t, "sympathetic chain neuron", env.statementByURI(t, uri).KnowledgeStatement)
}

func TestPipelineOverwriteWithPopulationFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)
	ctx := context.Background()

	uri := "http://uri.interlex.org/composer/neuron/3"
	sentence := &types.Sentence{Title: "existing", DOI: uri, State: types.SentenceStateComposeNow}
	require.NoError(t, env.db.Create(sentence).Error)
	existing := &types.ConnectivityStatement{
		SentenceID:         sentence.ID,
		State:              types.CSStateToBeReviewed,
		ReferenceURI:       uri,
		KnowledgeStatement: "stale content",
	}
	require.NoError(t, env.db.Create(existing).Error)

	opts := Options{Filter: neurondm.NewPopulationFilter([]string{uri})}
	result, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{testNeuron(uri)}}, opts)
	require.NoError(t, err)
	require.Equal(t, 1, result.Updated)

	statement := env.statementByURI(t, uri)
	require.Equal(t, types.CSStateExported, statement.State)
	require.Equal(t, "sympathetic chain neuron", statement.KnowledgeStatement)
	require.True(t, statement.HasStatementBeenExported)
	require.NotNil(t, statement.PopulationIndex)
	require.Equal(t, 1, *statement.PopulationIndex)
	require.Equal(t, "neuron type liver 1", statement.CurieID)

	var hasOverwriteNote bool
	for _, note := range env.notesOf(t, statement.ID.String()) {
		if note.Text == OverwriteNoteText {
			hasOverwriteNote = true
		}
	}
	require.True(t, hasOverwriteNote)
}

func TestPipelineSkipsProtectedStates(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)
	ctx := context.Background()

	uri := "http://uri.interlex.org/composer/neuron/4"
	sentence := &types.Sentence{Title: "existing", DOI: uri, State: types.SentenceStateComposeNow}
	require.NoError(t, env.db.Create(sentence).Error)
	existing := &types.ConnectivityStatement{
		SentenceID:         sentence.ID,
		State:              types.CSStateToBeReviewed,
		ReferenceURI:       uri,
		KnowledgeStatement: "curator content",
	}
	require.NoError(t, env.db.Create(existing).Error)

	// No filter: to_be_reviewed may not be overwritten, and a batch
	// with nothing ingested fails as a whole.
	result, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{testNeuron(uri)}}, Options{})
	require.Error(t, err)
	require.Equal(t, 1, result.Skipped)

	statement := env.statementByURI(t, uri)
	require.Equal(t, "curator content", statement.KnowledgeStatement)
	require.Equal(t, types.CSStateToBeReviewed, statement.State)
}

func TestPipelineInvalidatesOnValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedCatalog(t)
	ctx := context.Background()

	uri := "http://uri.interlex.org/composer/neuron/5"
	neuron := testNeuron(uri)
	neuron.Origin.Entities = []neurondm.EntityRef{{URI: "http://purl.obolibrary.org/obo/UBERON_9999"}}

	result, err := env.pipeline.Run(ctx, &sliceSource{neurons: []*neurondm.Neuron{neuron}}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Invalidated)

	statement := env.statementByURI(t, uri)
	require.Equal(t, types.CSStateInvalid, statement.State)
	require.True(t, statement.HasStatementBeenExported)

	var hasReasonNote bool
	for _, note := range env.notesOf(t, statement.ID.String()) {
		if strings.Contains(note.Text, "Invalidated due to the following reason(s):") {
			hasReasonNote = true
		}
	}
	require.True(t, hasReasonNote)
}

func TestInvalidationCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sentence := &types.Sentence{Title: "s", State: types.SentenceStateComposeNow}
	require.NoError(t, env.db.Create(sentence).Error)

	mkStatement := func(name string, seq int64) *types.ConnectivityStatement {
		statement := &types.ConnectivityStatement{
			Seq:          seq,
			SentenceID:   sentence.ID,
			State:        types.CSStateExported,
			ReferenceURI: "http://uri.interlex.org/composer/neuron/cascade/" + name,
		}
		require.NoError(t, env.db.Create(statement).Error)
		return statement
	}
	a := mkStatement("a", 1)
	b := mkStatement("b", 2)
	c := mkStatement("c", 3)

	require.NoError(t, env.statements.ReplaceForwardConnections(ctx, env.db, a, []*types.ConnectivityStatement{b}))
	require.NoError(t, env.statements.ReplaceForwardConnections(ctx, env.db, b, []*types.ConnectivityStatement{c}))

	require.NoError(t, env.db.Model(c).Update("state", types.CSStateInvalid).Error)
	c.State = types.CSStateInvalid

	cascaded, err := env.invalidator.Cascade(ctx, env.db, []*types.ConnectivityStatement{c})
	require.NoError(t, err)
	require.Len(t, cascaded, 2)

	for _, statement := range []*types.ConnectivityStatement{a, b} {
		var reloaded types.ConnectivityStatement
		require.NoError(t, env.db.First(&reloaded, "id = ?", statement.ID).Error)
		require.Equal(t, types.CSStateInvalid, reloaded.State)

		var hasCauseNote bool
		for _, note := range env.notesOf(t, statement.ID.String()) {
			if strings.Contains(note.Text, "is invalid because its forward connection") {
				hasCauseNote = true
			}
		}
		require.True(t, hasCauseNote)
	}

	// A's note names the full chain through B.
	var chained bool
	for _, note := range env.notesOf(t, a.ID.String()) {
		if strings.Contains(note.Text, b.ID.String()) && strings.Contains(note.Text, c.ID.String()) {
			chained = true
		}
	}
	require.True(t, chained)
}

func TestWriteAnomalyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomalies.csv")
	anomalies := []Anomaly{
		warningAnomaly("stmt-1", "entity-1", "multiple sex URIs supplied"),
		errorAnomaly("stmt-2", "", "statement write failed"),
	}
	require.NoError(t, WriteAnomalyLog(path, anomalies))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "severity,statement_id,entity_id,message", lines[0])
	require.Contains(t, lines[1], "warning,stmt-1,entity-1")
	require.Contains(t, lines[2], "error,stmt-2")
}
