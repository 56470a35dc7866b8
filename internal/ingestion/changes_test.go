package ingestion

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/neurocurate/composer/internal/types"
)

func entityWithURI(uri string) types.AnatomicalEntity {
	id := uuid.New()
	return types.AnatomicalEntity{
		ID:             uuid.New(),
		SimpleEntityID: &id,
		SimpleEntity:   &types.AnatomicalEntityMeta{ID: id, OntologyURI: uri, Name: uri},
	}
}

func baseStatement() *types.ConnectivityStatement {
	sexID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	return &types.ConnectivityStatement{
		KnowledgeStatement: "neuron population",
		SexID:              &sexID,
		Species:            []types.Specie{{OntologyURI: "taxon:rat"}},
		Provenances:        []types.Provenance{{URI: "PMID: 12"}},
		Origins:            []types.AnatomicalEntity{entityWithURI("uberon:origin")},
		Vias: []types.Via{{
			Order:              0,
			Type:               types.ViaTypeAxon,
			AnatomicalEntities: []types.AnatomicalEntity{entityWithURI("uberon:via")},
			FromEntities:       []types.AnatomicalEntity{entityWithURI("uberon:origin")},
		}},
		Destinations: []types.Destination{{
			Type:               types.DestinationTypeAxonTerminal,
			AnatomicalEntities: []types.AnatomicalEntity{entityWithURI("uberon:dest")},
		}},
	}
}

func TestStatementChangedEqualShapes(t *testing.T) {
	// Entity rows differ by ID but not by ontology identity.
	require.False(t, StatementChanged(baseStatement(), baseStatement()))
}

func TestStatementChangedDetectsDifferences(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(statement *types.ConnectivityStatement)
	}{
		{"knowledge statement", func(s *types.ConnectivityStatement) { s.KnowledgeStatement = "edited" }},
		{"sex", func(s *types.ConnectivityStatement) { s.SexID = nil }},
		{"species", func(s *types.ConnectivityStatement) { s.Species = append(s.Species, types.Specie{OntologyURI: "taxon:mouse"}) }},
		{"provenances", func(s *types.ConnectivityStatement) { s.Provenances[0].URI = "PMID: 13" }},
		{"origins", func(s *types.ConnectivityStatement) { s.Origins = []types.AnatomicalEntity{entityWithURI("uberon:other")} }},
		{"via count", func(s *types.ConnectivityStatement) { s.Vias = nil }},
		{"via type", func(s *types.ConnectivityStatement) { s.Vias[0].Type = types.ViaTypeDendrite }},
		{"via from entities", func(s *types.ConnectivityStatement) { s.Vias[0].FromEntities = nil }},
		{"destination entities", func(s *types.ConnectivityStatement) {
			s.Destinations[0].AnatomicalEntities = []types.AnatomicalEntity{entityWithURI("uberon:elsewhere")}
		}},
		{"circuit type", func(s *types.ConnectivityStatement) { s.CircuitType = types.CircuitTypeMotor }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desired := baseStatement()
			tt.mutate(desired)
			require.True(t, StatementChanged(baseStatement(), desired))
		})
	}
}

func TestStatementChangedIgnoresInvalidForwardTargets(t *testing.T) {
	existing := baseStatement()
	desired := baseStatement()

	live := &types.ConnectivityStatement{ReferenceURI: "uri:live", State: types.CSStateExported}
	dead := &types.ConnectivityStatement{ReferenceURI: "uri:dead", State: types.CSStateInvalid}

	existing.ForwardConnections = []*types.ConnectivityStatement{live, dead}
	desired.ForwardConnections = []*types.ConnectivityStatement{live}
	require.False(t, StatementChanged(existing, desired))

	desired.ForwardConnections = nil
	require.True(t, StatementChanged(existing, desired))
}

func TestStatementChangedNeverReadsState(t *testing.T) {
	existing := baseStatement()
	existing.State = types.CSStateExported
	desired := baseStatement()
	desired.State = types.CSStateDraft
	require.False(t, StatementChanged(existing, desired))
}
