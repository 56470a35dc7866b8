package export

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/neurocurate/composer/internal/types"
)

func simpleEntity(name, uri string) types.AnatomicalEntity {
	metaID := uuid.New()
	return types.AnatomicalEntity{
		ID:             uuid.New(),
		SimpleEntityID: &metaID,
		SimpleEntity:   &types.AnatomicalEntityMeta{ID: metaID, Name: name, OntologyURI: uri},
	}
}

func exportFixture() *types.ConnectivityStatement {
	origin := simpleEntity("ganglion", "http://x/o1")
	viaOne := simpleEntity("trunk", "http://x/v1")
	viaTwo := simpleEntity("nerve", "http://x/v2")
	dest := simpleEntity("muscle", "http://x/d1")
	hop := simpleEntity("branch point", "http://x/f1")

	sexID := uuid.New()
	return &types.ConnectivityStatement{
		ID:                 uuid.New(),
		CurieID:            "neuron type liver 1",
		ReferenceURI:       "http://x/set/liver/1",
		KnowledgeStatement: "a sympathetic connection",
		State:              types.CSStateExported,
		CircuitType:        types.CircuitTypeMotor,
		Projection:         types.ProjectionIpsi,
		Origins:            []types.AnatomicalEntity{origin},
		Vias: []types.Via{
			{Order: 1, Type: types.ViaTypeAxon, AnatomicalEntities: []types.AnatomicalEntity{viaTwo}, FromEntities: []types.AnatomicalEntity{hop}},
			{Order: 0, Type: types.ViaTypeAxon, AnatomicalEntities: []types.AnatomicalEntity{viaOne}},
		},
		Destinations: []types.Destination{
			{Type: types.DestinationTypeAxonTerminal, AnatomicalEntities: []types.AnatomicalEntity{dest}},
		},
		Species: []types.Specie{{Name: "Rattus norvegicus", OntologyURI: "http://x/rat"}},
		SexID:   &sexID,
		Sex:     &types.Sex{ID: sexID, Name: "female", OntologyURI: "http://x/female"},
		ForwardConnections: []*types.ConnectivityStatement{
			{CurieID: "neuron type liver 2", ReferenceURI: "http://x/set/liver/2"},
		},
		StatementAlerts: []types.StatementAlert{{
			Text:      "needs review",
			AlertType: &types.AlertType{Name: "hasAlert", URI: "http://x/alert"},
		}},
	}
}

func TestFlattenRowOrder(t *testing.T) {
	rows := Flatten(exportFixture())

	predicates := make([]string, 0, len(rows))
	for _, row := range rows {
		predicates = append(predicates, row.Predicate)
	}
	require.Equal(t, []string{
		"knowledge_statement",
		"hasSomaLocatedIn",
		"hasAxonLocatedIn",
		"hasAxonLocatedIn",
		"hasAxonPresynapticElementIn",
		"hasInstanceInTaxon",
		"hasBiologicalSex",
		"hasCircuitRolePhenotype",
		"hasProjectionLaterality",
		"hasForwardConnectionPhenotype",
		"hasAlert",
		"hasComposerUri",
	}, predicates)
}

func TestFlattenLayerNumbers(t *testing.T) {
	rows := Flatten(exportFixture())

	byObject := map[string]Row{}
	for _, row := range rows {
		if row.LayerOrder > 0 {
			byObject[row.ObjectName] = row
		}
	}
	require.Equal(t, 1, byObject["ganglion"].LayerOrder)
	require.Equal(t, 2, byObject["trunk"].LayerOrder)
	require.Equal(t, 3, byObject["nerve"].LayerOrder)
	require.Equal(t, 4, byObject["muscle"].LayerOrder)
}

func TestFlattenConnectedFrom(t *testing.T) {
	rows := Flatten(exportFixture())

	byObject := map[string]Row{}
	for _, row := range rows {
		byObject[row.ObjectName] = row
	}

	// Origins have no feeding layer.
	require.Empty(t, byObject["ganglion"].ConnectedFromNames)

	// First via falls back to the full origin set.
	require.Equal(t, []string{"ganglion"}, byObject["trunk"].ConnectedFromNames)
	require.Equal(t, []string{"http://x/o1"}, byObject["trunk"].ConnectedFromURIs)

	// Second via carries explicit from_entities.
	require.Equal(t, []string{"branch point"}, byObject["nerve"].ConnectedFromNames)

	// The destination falls back to the last via's full entity set,
	// not its from_entities.
	require.Equal(t, []string{"nerve"}, byObject["muscle"].ConnectedFromNames)
}

func TestFlattenForwardAndAlertRows(t *testing.T) {
	rows := Flatten(exportFixture())

	var forward, alert, terminal Row
	for _, row := range rows {
		switch row.Predicate {
		case "hasForwardConnectionPhenotype":
			forward = row
		case "hasAlert":
			alert = row
		case "hasComposerUri":
			terminal = row
		}
	}
	require.Equal(t, "neuron type liver 2", forward.ObjectName)
	require.Equal(t, "http://x/set/liver/2", forward.ObjectURI)
	require.Equal(t, "http://x/alert", alert.PredicateURI)
	require.Equal(t, "needs review", alert.ObjectText)
	require.Contains(t, terminal.ObjectURI, "/statement/")
	require.Equal(t, rows[len(rows)-1], terminal)
}

func TestRecordsCarryStatementColumns(t *testing.T) {
	statement := exportFixture()
	statement.Provenances = []types.Provenance{{URI: "PMID: 1"}, {URI: "PMID: 2"}}
	statement.Tags = []types.Tag{{Name: "sawg-batch"}}

	tags := []types.Tag{{Name: "sawg-batch"}, {Name: "other"}}
	columns := Columns(tags)
	require.Equal(t, len(baseColumns)+2, len(columns))
	require.Equal(t, "sawg-batch", columns[len(baseColumns)])

	records := Records(statement, tags)
	require.Len(t, records, len(Flatten(statement)))
	for _, record := range records {
		require.Len(t, record, len(columns))
		require.Equal(t, "neuron type liver 1", record[0])
		require.Equal(t, "http://x/set/liver/1", record[1])
		require.Equal(t, "PMID: 1; PMID: 2", record[12])
		require.Equal(t, "exported", record[19])
		require.Equal(t, "True", record[len(baseColumns)])
		require.Equal(t, "", record[len(baseColumns)+1])
	}
}
