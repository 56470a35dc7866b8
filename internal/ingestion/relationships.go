package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/neurondm"
	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
)

// RelationshipEvaluator runs administrator-authored snippets against
// each ingested statement. Snippets are restricted expressions over an
// environment holding `fc`, the statement dict, with the raw neuron
// under `fc._neuron`. The expression's value is the result; it is
// classified by the relationship's type. Any evaluation failure is a
// warning anomaly, never a batch failure.
type RelationshipEvaluator struct {
	relationships repos.RelationshipRepo
	entities      repos.AnatomicalEntityRepo
	log           *logger.Logger
}

func NewRelationshipEvaluator(relationships repos.RelationshipRepo, entities repos.AnatomicalEntityRepo, baseLog *logger.Logger) *RelationshipEvaluator {
	return &RelationshipEvaluator{
		relationships: relationships,
		entities:      entities,
		log:           baseLog.With("component", "RelationshipEvaluator"),
	}
}

// Apply evaluates every snippet-bearing relationship for one statement.
func (e *RelationshipEvaluator) Apply(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, neuron *neurondm.Neuron, opts Options) []Anomaly {
	relationships, err := e.relationships.List(ctx, tx)
	if err != nil {
		return []Anomaly{errorAnomaly(neuron.ID, "", "list relationships: "+err.Error())}
	}

	var anomalies []Anomaly
	var env map[string]any
	for _, relationship := range relationships {
		if strings.TrimSpace(relationship.Snippet) == "" {
			continue
		}
		if env == nil {
			env, err = statementEnv(neuron)
			if err != nil {
				return append(anomalies, warningAnomaly(neuron.ID, "", "build snippet environment: "+err.Error()))
			}
		}
		if err := e.applyOne(ctx, tx, statement, relationship, env, opts); err != nil {
			anomalies = append(anomalies, warningAnomaly(neuron.ID, relationship.PredicateURI,
				fmt.Sprintf("relationship %q snippet failed: %v", relationship.Title, err)))
		}
	}
	return anomalies
}

// statementEnv is the snippet's world: the neuron record as a plain
// dict, with the typed record itself reachable at fc._neuron.
func statementEnv(neuron *neurondm.Neuron) (map[string]any, error) {
	raw, err := json.Marshal(neuron)
	if err != nil {
		return nil, err
	}
	fc := map[string]any{}
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, err
	}
	fc["_neuron"] = neuron
	return map[string]any{"fc": fc}, nil
}

func (e *RelationshipEvaluator) applyOne(ctx context.Context, tx *gorm.DB, statement *types.ConnectivityStatement, relationship *types.Relationship, env map[string]any, opts Options) error {
	result, err := expr.Eval(relationship.Snippet, env)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	switch relationship.Type {
	case types.RelationshipTripleSingle, types.RelationshipTripleMulti:
		pairs, err := asNameURIPairs(result, relationship.Type == types.RelationshipTripleSingle)
		if err != nil {
			return err
		}
		for _, pair := range pairs {
			triple, err := e.relationships.UpsertTriple(ctx, tx, relationship.ID, pair.name, pair.uri)
			if err != nil {
				return err
			}
			if err := e.relationships.BindTriple(ctx, tx, statement, triple); err != nil {
				return err
			}
		}
		return nil

	case types.RelationshipText:
		text, err := asText(result)
		if err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		return e.relationships.UpsertStatementText(ctx, tx, statement.ID, relationship.ID, text)

	case types.RelationshipAnatomicalMulti:
		entityIDs, err := e.resolveAnatomicalResult(ctx, tx, result, opts)
		if err != nil {
			return err
		}
		return e.relationships.ReplaceEntityRelations(ctx, tx, statement.ID, relationship.ID, entityIDs)

	default:
		return fmt.Errorf("unknown relationship type %s", relationship.Type)
	}
}

type nameURIPair struct {
	name string
	uri  string
}

func asNameURIPairs(result any, single bool) ([]nameURIPair, error) {
	toPair := func(value any) (nameURIPair, error) {
		dict, ok := value.(map[string]any)
		if !ok {
			return nameURIPair{}, fmt.Errorf("expected {name, uri} dict, got %T", value)
		}
		name, _ := dict["name"].(string)
		uri, _ := dict["uri"].(string)
		if name == "" {
			return nameURIPair{}, errors.New("triple result has no name")
		}
		return nameURIPair{name: name, uri: uri}, nil
	}

	if list, ok := result.([]any); ok {
		if single && len(list) > 1 {
			list = list[:1]
		}
		pairs := make([]nameURIPair, 0, len(list))
		for _, value := range list {
			pair, err := toPair(value)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair)
		}
		return pairs, nil
	}
	pair, err := toPair(result)
	if err != nil {
		return nil, err
	}
	return []nameURIPair{pair}, nil
}

func asText(result any) (string, error) {
	switch value := result.(type) {
	case string:
		return value, nil
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			text, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("text result list holds %T, want string", item)
			}
			parts = append(parts, text)
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", fmt.Errorf("text result is %T, want string or list of strings", result)
	}
}

func (e *RelationshipEvaluator) resolveAnatomicalResult(ctx context.Context, tx *gorm.DB, result any, opts Options) ([]uuid.UUID, error) {
	list, ok := result.([]any)
	if !ok {
		list = []any{result}
	}
	entityIDs := make([]uuid.UUID, 0, len(list))
	for _, value := range list {
		switch ref := value.(type) {
		case string:
			entity, err := e.entities.GetOrCreateSimple(ctx, tx, ref)
			if err != nil {
				return nil, err
			}
			entityIDs = append(entityIDs, entity.ID)
		case map[string]any:
			region, _ := ref["region"].(string)
			layer, _ := ref["layer"].(string)
			if region == "" || layer == "" {
				return nil, fmt.Errorf("anatomical result dict needs region and layer, got %v", ref)
			}
			var entity *types.AnatomicalEntity
			var err error
			if opts.UpdateAnatomicalEntities {
				entity, err = e.entities.GetOrCreateIntersection(ctx, tx, region, layer)
			} else {
				entity, err = e.entities.GetIntersection(ctx, tx, region, layer)
			}
			if err != nil {
				return nil, err
			}
			entityIDs = append(entityIDs, entity.ID)
		default:
			return nil, fmt.Errorf("anatomical result holds %T, want URI or region/layer dict", value)
		}
	}
	return entityIDs, nil
}
