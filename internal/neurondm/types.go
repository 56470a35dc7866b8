// Package neurondm models the neuron bundles produced by the ontology
// knowledge base: flat predicate axioms, the nested partial order
// describing path structure, and the typed origin/via/destination
// layers reconstructed from the two.
package neurondm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/neurocurate/composer/internal/types"
)

// RegionLayerPair names the intersection of a cortical region and a
// laminar layer. It round-trips through JSON both as an object
// {"region": ..., "layer": ...} and as a two-element array.
type RegionLayerPair struct {
	Region string `json:"region"`
	Layer  string `json:"layer"`
}

func (p *RegionLayerPair) UnmarshalJSON(data []byte) error {
	var obj struct {
		Region string `json:"region"`
		Layer  string `json:"layer"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && (obj.Region != "" || obj.Layer != "") {
		p.Region, p.Layer = obj.Region, obj.Layer
		return nil
	}
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("region-layer pair must have two elements, got %d", len(pair))
		}
		p.Region, p.Layer = pair[0], pair[1]
		return nil
	}
	return fmt.Errorf("cannot decode region-layer pair from %s", string(data))
}

// EntityRef is either a plain ontology URI or a region-layer pair.
type EntityRef struct {
	URI         string           `json:"uri,omitempty"`
	RegionLayer *RegionLayerPair `json:"region_layer,omitempty"`
}

func (e *EntityRef) UnmarshalJSON(data []byte) error {
	var uri string
	if err := json.Unmarshal(data, &uri); err == nil {
		e.URI = uri
		e.RegionLayer = nil
		return nil
	}
	var obj struct {
		URI         string           `json:"uri"`
		RegionLayer *RegionLayerPair `json:"region_layer"`
		Region      string           `json:"region"`
		Layer       string           `json:"layer"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("cannot decode entity ref from %s", string(data))
	}
	if obj.RegionLayer != nil {
		e.RegionLayer = obj.RegionLayer
		return nil
	}
	if obj.Region != "" || obj.Layer != "" {
		e.RegionLayer = &RegionLayerPair{Region: obj.Region, Layer: obj.Layer}
		return nil
	}
	e.URI = obj.URI
	return nil
}

// Key is the stable identity used for set semantics: region:layer for
// pairs, the URI otherwise.
func (e EntityRef) Key() string {
	if e.RegionLayer != nil {
		return e.RegionLayer.Region + ":" + e.RegionLayer.Layer
	}
	return e.URI
}

// PrimaryURI is the region URI for a pair, the plain URI otherwise.
func (e EntityRef) PrimaryURI() string {
	if e.RegionLayer != nil {
		return e.RegionLayer.Region
	}
	return e.URI
}

// SecondaryURI is the layer URI for a pair, empty otherwise.
func (e EntityRef) SecondaryURI() string {
	if e.RegionLayer != nil {
		return e.RegionLayer.Layer
	}
	return ""
}

// Axioms are the flat predicate assignments that complement the
// partial order: which URIs are soma locations, axon locations with a
// via type, and terminal locations with a destination type.
type Axioms struct {
	Origins      map[string]struct{}              `json:"-"`
	Vias         map[string]types.ViaType         `json:"vias"`
	Destinations map[string]types.DestinationType `json:"destinations"`
}

func NewAxioms() Axioms {
	return Axioms{
		Origins:      map[string]struct{}{},
		Vias:         map[string]types.ViaType{},
		Destinations: map[string]types.DestinationType{},
	}
}

func (a Axioms) MarshalJSON() ([]byte, error) {
	origins := make([]string, 0, len(a.Origins))
	for uri := range a.Origins {
		origins = append(origins, uri)
	}
	sort.Strings(origins)
	return json.Marshal(struct {
		Origins      []string                         `json:"origins"`
		Vias         map[string]types.ViaType         `json:"vias"`
		Destinations map[string]types.DestinationType `json:"destinations"`
	}{origins, a.Vias, a.Destinations})
}

func (a *Axioms) UnmarshalJSON(data []byte) error {
	var raw struct {
		Origins      []string                         `json:"origins"`
		Vias         map[string]types.ViaType         `json:"vias"`
		Destinations map[string]types.DestinationType `json:"destinations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = NewAxioms()
	for _, uri := range raw.Origins {
		a.Origins[uri] = struct{}{}
	}
	for uri, viaType := range raw.Vias {
		a.Vias[uri] = viaType
	}
	for uri, destinationType := range raw.Destinations {
		a.Destinations[uri] = destinationType
	}
	return nil
}

// ValidationErrors is the structured per-statement error bag. A
// non-empty bag invalidates the statement but does not abort the
// batch.
type ValidationErrors struct {
	Entities          []string `json:"entities,omitempty"`
	Sex               []string `json:"sex,omitempty"`
	Species           []string `json:"species,omitempty"`
	ForwardConnection []string `json:"forward_connection,omitempty"`
	AxiomNotFound     []string `json:"axiom_not_found,omitempty"`
	NonSpecified      []string `json:"non_specified,omitempty"`
}

func (v *ValidationErrors) AddEntity(id string)            { v.Entities = appendUnique(v.Entities, id) }
func (v *ValidationErrors) AddSex(id string)               { v.Sex = appendUnique(v.Sex, id) }
func (v *ValidationErrors) AddSpecie(id string)            { v.Species = appendUnique(v.Species, id) }
func (v *ValidationErrors) AddForwardConnection(id string) { v.ForwardConnection = appendUnique(v.ForwardConnection, id) }
func (v *ValidationErrors) AddAxiomNotFound(id string)     { v.AxiomNotFound = appendUnique(v.AxiomNotFound, id) }
func (v *ValidationErrors) AddNonSpecified(msg string)     { v.NonSpecified = append(v.NonSpecified, msg) }

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Entities) > 0 || len(v.Sex) > 0 || len(v.Species) > 0 ||
		len(v.ForwardConnection) > 0 || len(v.AxiomNotFound) > 0 || len(v.NonSpecified) > 0
}

// Compile renders the bag as the human-readable note body attached to
// an invalidated statement.
func (v *ValidationErrors) Compile() string {
	var reasons []string
	if len(v.Entities) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing anatomical entities: %s", strings.Join(sortedCopy(v.Entities), ", ")))
	}
	if len(v.Sex) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing sex: %s", strings.Join(sortedCopy(v.Sex), ", ")))
	}
	if len(v.Species) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing species: %s", strings.Join(sortedCopy(v.Species), ", ")))
	}
	if len(v.ForwardConnection) > 0 {
		reasons = append(reasons, fmt.Sprintf("missing forward connection: %s", strings.Join(sortedCopy(v.ForwardConnection), ", ")))
	}
	if len(v.AxiomNotFound) > 0 {
		reasons = append(reasons, fmt.Sprintf("no axiom found for: %s", strings.Join(sortedCopy(v.AxiomNotFound), ", ")))
	}
	reasons = append(reasons, v.NonSpecified...)
	if len(reasons) == 0 {
		return ""
	}
	return "Invalidated due to the following reason(s): " + strings.Join(reasons, "; ")
}

func sortedCopy(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	sort.Strings(out)
	return out
}

// NeuronDMOrigin is the merged origin layer of a reconstructed neuron.
type NeuronDMOrigin struct {
	Entities []EntityRef `json:"anatomical_entities"`
}

// NeuronDMVia is one ordered intermediate layer.
type NeuronDMVia struct {
	Entities     []EntityRef   `json:"anatomical_entities"`
	FromEntities []EntityRef   `json:"from_entities"`
	Order        int           `json:"order"`
	Type         types.ViaType `json:"type"`
}

// NeuronDMDestination is one terminal layer.
type NeuronDMDestination struct {
	Entities     []EntityRef           `json:"anatomical_entities"`
	FromEntities []EntityRef           `json:"from_entities"`
	Type         types.DestinationType `json:"type"`
}

// Alert is one (alert URI, text) tuple carried on a neuron.
type Alert struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

func (a *Alert) UnmarshalJSON(data []byte) error {
	var obj struct {
		URI  string `json:"uri"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.URI != "" {
		a.URI, a.Text = obj.URI, obj.Text
		return nil
	}
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil && len(pair) == 2 {
		a.URI, a.Text = pair[0], pair[1]
		return nil
	}
	return fmt.Errorf("cannot decode statement alert from %s", string(data))
}

// Neuron is one record yielded by the oracle.
type Neuron struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	PrefLabel string `json:"pref_label"`

	PartialOrder *PartialOrder `json:"partial_order,omitempty"`
	Axioms       Axioms        `json:"axioms"`

	Origin       *NeuronDMOrigin       `json:"origins,omitempty"`
	Vias         []NeuronDMVia         `json:"vias,omitempty"`
	Destinations []NeuronDMDestination `json:"destinations,omitempty"`

	Species           []string `json:"species,omitempty"`
	Sex               []string `json:"sex,omitempty"`
	CircuitType       []string `json:"circuit_type,omitempty"`
	Phenotypes        []string `json:"phenotype,omitempty"`
	OtherPhenotypes   []string `json:"other_phenotypes,omitempty"`
	ForwardConnection []string `json:"forward_connection,omitempty"`
	Provenance        []string `json:"provenance,omitempty"`
	SentenceNumber    []string `json:"sentence_number,omitempty"`
	NoteAlert         []string `json:"note_alert,omitempty"`
	StatementAlerts   []Alert  `json:"statement_alerts,omitempty"`
	PopulationSet     string   `json:"populationset,omitempty"`

	ValidationErrors ValidationErrors `json:"validation_errors"`
}
