package neurondm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/types"
)

// Neo4jSource materializes neuron records from a graph mirror of the
// knowledge base. Neuron nodes carry the flat axiom edges; the nested
// partial order is stored as a PathNode tree hanging off PATH_ROOT.
type Neo4jSource struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

func NewNeo4jSourceFromEnv(log *logger.Logger) (*Neo4jSource, error) {
	if log == nil {
		return nil, fmt.Errorf("neurondm: logger required")
	}

	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, fmt.Errorf("neurondm: NEO4J_URI not set")
	}
	user := strings.TrimSpace(os.Getenv("NEO4J_USER"))
	if user == "" {
		user = "neo4j"
	}
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neurondm: init neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neurondm: verify neo4j connectivity: %w", err)
	}

	return &Neo4jSource{
		driver:   driver,
		database: database,
		log:      log.With("source", "Neo4jSource"),
	}, nil
}

func (s *Neo4jSource) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jSource) Neurons(ctx context.Context) ([]*Neuron, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*Neuron, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Neuron)
			OPTIONAL MATCH (n)-[:HAS_SOMA_IN]->(o)
			OPTIONAL MATCH (n)-[axon:HAS_AXON_IN]->(v)
			OPTIONAL MATCH (n)-[terminal:HAS_TERMINAL_IN]->(d)
			RETURN n.uri AS uri, n.label AS label, n.pref_label AS pref_label,
			       n.populationset AS populationset,
			       n.species AS species, n.sex AS sex, n.circuit_type AS circuit_type,
			       n.phenotype AS phenotype, n.other_phenotypes AS other_phenotypes,
			       n.forward_connection AS forward_connection,
			       n.provenance AS provenance, n.sentence_number AS sentence_number,
			       collect(DISTINCT o.uri) AS origins,
			       collect(DISTINCT [v.uri, axon.type]) AS vias,
			       collect(DISTINCT [d.uri, terminal.type]) AS destinations
		`, nil)
		if err != nil {
			return nil, err
		}
		var neurons []*Neuron
		for result.Next(ctx) {
			record := result.Record()
			neuron := &Neuron{
				ID:                stringValue(record, "uri"),
				Label:             stringValue(record, "label"),
				PrefLabel:         stringValue(record, "pref_label"),
				PopulationSet:     stringValue(record, "populationset"),
				Species:           stringSlice(record, "species"),
				Sex:               stringSlice(record, "sex"),
				CircuitType:       stringSlice(record, "circuit_type"),
				Phenotypes:        stringSlice(record, "phenotype"),
				OtherPhenotypes:   stringSlice(record, "other_phenotypes"),
				ForwardConnection: stringSlice(record, "forward_connection"),
				Provenance:        stringSlice(record, "provenance"),
				SentenceNumber:    stringSlice(record, "sentence_number"),
				Axioms:            NewAxioms(),
			}
			for _, uri := range stringSlice(record, "origins") {
				neuron.Axioms.Origins[uri] = struct{}{}
			}
			for _, pair := range pairSlice(record, "vias") {
				if pair[0] == "" {
					continue
				}
				neuron.Axioms.Vias[pair[0]] = viaTypeOrDefault(pair[1])
			}
			for _, pair := range pairSlice(record, "destinations") {
				if pair[0] == "" {
					continue
				}
				neuron.Axioms.Destinations[pair[0]] = destinationTypeOrDefault(pair[1])
			}
			neurons = append(neurons, neuron)
		}
		return neurons, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neurondm: query neurons: %w", err)
	}

	for _, neuron := range records {
		po, err := s.partialOrder(ctx, session, neuron.ID)
		if err != nil {
			return nil, err
		}
		neuron.PartialOrder = po
	}
	s.log.Info("loaded neurons from graph store", "neurons", len(records))
	return records, nil
}

func (s *Neo4jSource) partialOrder(ctx context.Context, session neo4j.SessionWithContext, neuronURI string) (*PartialOrder, error) {
	type edge struct {
		parent string
		child  string
	}
	type nodeInfo struct {
		uri    string
		region string
		layer  string
		blank  bool
	}

	nodes := map[string]nodeInfo{}
	var edges []edge
	var rootID string

	_, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Neuron {uri: $uri})-[:PATH_ROOT]->(root:PathNode)
			OPTIONAL MATCH (root)-[:NEXT*0..]->(p:PathNode)
			OPTIONAL MATCH (p)-[:NEXT]->(c:PathNode)
			RETURN elementId(root) AS root_id,
			       elementId(p) AS parent_id, p.uri AS parent_uri,
			       p.region AS parent_region, p.layer AS parent_layer,
			       coalesce(p.blank, false) AS parent_blank,
			       elementId(c) AS child_id
		`, map[string]any{"uri": neuronURI})
		if err != nil {
			return nil, err
		}
		for result.Next(ctx) {
			record := result.Record()
			rootID = stringValue(record, "root_id")
			parentID := stringValue(record, "parent_id")
			if parentID == "" {
				continue
			}
			blank, _ := record.Get("parent_blank")
			nodes[parentID] = nodeInfo{
				uri:    stringValue(record, "parent_uri"),
				region: stringValue(record, "parent_region"),
				layer:  stringValue(record, "parent_layer"),
				blank:  blank == true,
			}
			if childID := stringValue(record, "child_id"); childID != "" {
				edges = append(edges, edge{parent: parentID, child: childID})
			}
		}
		return nil, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neurondm: query partial order for %s: %w", neuronURI, err)
	}
	if rootID == "" {
		return nil, nil
	}

	children := map[string][]string{}
	for _, e := range edges {
		children[e.parent] = append(children[e.parent], e.child)
	}

	var build func(id string) *PartialOrder
	build = func(id string) *PartialOrder {
		info := nodes[id]
		po := &PartialOrder{}
		if !info.blank {
			ref := EntityRef{URI: info.uri}
			if info.region != "" || info.layer != "" {
				ref = EntityRef{RegionLayer: &RegionLayerPair{Region: info.region, Layer: info.layer}}
			}
			po.Node = &ref
		}
		for _, childID := range children[id] {
			po.Children = append(po.Children, build(childID))
		}
		return po
	}
	return build(rootID), nil
}

func stringValue(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	s, _ := value.(string)
	return s
}

func stringSlice(record *neo4j.Record, key string) []string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func pairSlice(record *neo4j.Record, key string) [][2]string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return nil
	}
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	var out [][2]string
	for _, item := range raw {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		first, _ := pair[0].(string)
		second, _ := pair[1].(string)
		out = append(out, [2]string{first, second})
	}
	return out
}

func viaTypeOrDefault(value string) types.ViaType {
	switch types.ViaType(strings.ToUpper(value)) {
	case types.ViaTypeAxon, types.ViaTypeDendrite, types.ViaTypeSensoryAxon:
		return types.ViaType(strings.ToUpper(value))
	default:
		return types.ViaTypeAxon
	}
}

func destinationTypeOrDefault(value string) types.DestinationType {
	switch types.DestinationType(strings.ToUpper(value)) {
	case types.DestinationTypeAxonTerminal, types.DestinationTypeAfferentTerminal:
		return types.DestinationType(strings.ToUpper(value))
	default:
		return types.DestinationTypeUnknown
	}
}
