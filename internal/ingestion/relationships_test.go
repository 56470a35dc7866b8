package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
)

func TestRelationshipEvaluator(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	log := logger.NewNop()

	textRel := &types.Relationship{
		Title:         "summary",
		PredicateName: "hasSummary",
		PredicateURI:  "http://x/hasSummary",
		Type:          types.RelationshipText,
		Snippet:       `fc.pref_label`,
	}
	tripleRel := &types.Relationship{
		Title:         "self triple",
		PredicateName: "hasSelf",
		PredicateURI:  "http://x/hasSelf",
		Type:          types.RelationshipTripleMulti,
		Snippet:       `[{"name": fc.label, "uri": fc.id}]`,
	}
	brokenRel := &types.Relationship{
		Title:         "broken",
		PredicateName: "hasBroken",
		PredicateURI:  "http://x/hasBroken",
		Type:          types.RelationshipText,
		Snippet:       `fc.no_such_field.deeper`,
	}
	silentRel := &types.Relationship{
		Title:         "no snippet",
		PredicateName: "hasNothing",
		PredicateURI:  "http://x/hasNothing",
		Type:          types.RelationshipText,
	}
	for _, relationship := range []*types.Relationship{textRel, tripleRel, brokenRel, silentRel} {
		require.NoError(t, env.db.Create(relationship).Error)
	}

	sentence := &types.Sentence{Title: "s", State: types.SentenceStateComposeNow}
	require.NoError(t, env.db.Create(sentence).Error)
	statement := &types.ConnectivityStatement{
		SentenceID:   sentence.ID,
		State:        types.CSStateDraft,
		ReferenceURI: "http://x/neuron/rel",
	}
	require.NoError(t, env.db.Create(statement).Error)

	evaluator := NewRelationshipEvaluator(
		repos.NewRelationshipRepo(env.db, log),
		repos.NewAnatomicalEntityRepo(env.db, log),
		log,
	)
	neuron := testNeuron("http://x/neuron/rel")
	anomalies := evaluator.Apply(ctx, env.db, statement, neuron, Options{})

	// Only the broken snippet reports, as a warning.
	require.Len(t, anomalies, 1)
	require.Contains(t, anomalies[0].Message, "broken")

	var text types.StatementText
	require.NoError(t, env.db.Where("connectivity_statement_id = ? AND relationship_id = ?", statement.ID, textRel.ID).First(&text).Error)
	require.Equal(t, "sympathetic chain neuron", text.Text)

	var triple types.Triple
	require.NoError(t, env.db.Where("relationship_id = ?", tripleRel.ID).First(&triple).Error)
	require.Equal(t, "neuron http://x/neuron/rel", triple.Name)
	require.Equal(t, "http://x/neuron/rel", triple.URI)

	var bound int64
	require.NoError(t, env.db.Table("statement_triple").Where("triple_id = ?", triple.ID).Count(&bound).Error)
	require.EqualValues(t, 1, bound)

	// Re-running upserts rather than duplicating.
	anomalies = evaluator.Apply(ctx, env.db, statement, neuron, Options{})
	require.Len(t, anomalies, 1)
	var texts int64
	require.NoError(t, env.db.Model(&types.StatementText{}).Where("relationship_id = ?", textRel.ID).Count(&texts).Error)
	require.EqualValues(t, 1, texts)
}
