package neurondm

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/neurocurate/composer/internal/types"
)

func TestRegionLayerPairDecodesBothShapes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want RegionLayerPair
	}{
		{name: "object", in: `{"region":"R1","layer":"L5"}`, want: RegionLayerPair{Region: "R1", Layer: "L5"}},
		{name: "array", in: `["R1","L5"]`, want: RegionLayerPair{Region: "R1", Layer: "L5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got RegionLayerPair
			if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
				t.Fatalf("unmarshal %s: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNeuronRoundTrip(t *testing.T) {
	axioms := NewAxioms()
	axioms.Origins["O"] = struct{}{}
	axioms.Vias["V"] = types.ViaTypeAxon
	axioms.Destinations["D"] = types.DestinationTypeAxonTerminal

	original := &Neuron{
		ID:           "http://example.org/neuron/1",
		Label:        "neuron 1",
		PrefLabel:    "Neuron One",
		PartialOrder: Chain(uriRef("O"), Chain(rlRef("R", "L"), Leaf(uriRef("D")))),
		Axioms:       axioms,
		Origin:       &NeuronDMOrigin{Entities: []EntityRef{uriRef("O")}},
		Vias: []NeuronDMVia{{
			Entities:     []EntityRef{rlRef("R", "L")},
			FromEntities: []EntityRef{uriRef("O")},
			Order:        0,
			Type:         types.ViaTypeAxon,
		}},
		Destinations: []NeuronDMDestination{{
			Entities:     []EntityRef{uriRef("D")},
			FromEntities: []EntityRef{rlRef("R", "L")},
			Type:         types.DestinationTypeAxonTerminal,
		}},
		Species:         []string{"http://example.org/taxon/rat"},
		Sex:             []string{"http://example.org/sex/male"},
		StatementAlerts: []Alert{{URI: "http://example.org/alert/1", Text: "check lamination"}},
		PopulationSet:   "liver",
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Neuron
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.ID != original.ID || decoded.PopulationSet != original.PopulationSet {
		t.Fatalf("identity fields lost: %+v", decoded)
	}
	if !reflect.DeepEqual(decoded.Origin, original.Origin) {
		t.Fatalf("origins differ: %+v vs %+v", decoded.Origin, original.Origin)
	}
	if !reflect.DeepEqual(decoded.Vias, original.Vias) {
		t.Fatalf("vias differ: %+v vs %+v", decoded.Vias, original.Vias)
	}
	if !reflect.DeepEqual(decoded.Destinations, original.Destinations) {
		t.Fatalf("destinations differ: %+v vs %+v", decoded.Destinations, original.Destinations)
	}
	if !reflect.DeepEqual(decoded.StatementAlerts, original.StatementAlerts) {
		t.Fatalf("alerts differ: %+v vs %+v", decoded.StatementAlerts, original.StatementAlerts)
	}

	// The partial order survives including the region-layer node.
	if decoded.PartialOrder == nil || len(decoded.PartialOrder.Children) != 1 {
		t.Fatalf("partial order lost: %+v", decoded.PartialOrder)
	}
	mid := decoded.PartialOrder.Children[0]
	if mid.Node == nil || mid.Node.RegionLayer == nil || mid.Node.Key() != "R:L" {
		t.Fatalf("region-layer node lost: %+v", mid.Node)
	}

	// Axiom sets survive.
	if _, ok := decoded.Axioms.Origins["O"]; !ok {
		t.Fatalf("origin axioms lost: %+v", decoded.Axioms)
	}
	if decoded.Axioms.Vias["V"] != types.ViaTypeAxon {
		t.Fatalf("via axioms lost: %+v", decoded.Axioms)
	}
}

func TestValidationErrorsCompile(t *testing.T) {
	var errs ValidationErrors
	if errs.Compile() != "" {
		t.Fatal("empty bag should compile to empty string")
	}
	errs.AddEntity("http://example.org/uberon/1")
	errs.AddEntity("http://example.org/uberon/1")
	errs.AddSex("http://example.org/sex/x")
	errs.AddNonSpecified("via phantom from axioms not found in partial order")

	compiled := errs.Compile()
	if len(errs.Entities) != 1 {
		t.Fatalf("duplicate entity recorded: %v", errs.Entities)
	}
	for _, want := range []string{
		"Invalidated due to the following reason(s):",
		"missing anatomical entities: http://example.org/uberon/1",
		"missing sex: http://example.org/sex/x",
		"via phantom from axioms not found in partial order",
	} {
		if !strings.Contains(compiled, want) {
			t.Fatalf("compiled %q missing %q", compiled, want)
		}
	}
}
