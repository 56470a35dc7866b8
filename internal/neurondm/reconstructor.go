package neurondm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neurocurate/composer/internal/types"
)

type nodeClass int

const (
	classOrigin nodeClass = iota
	classVia
	classDestination
)

type nodeRecord struct {
	entity       EntityRef
	fromEntities []EntityRef
	order        int
	viaType      types.ViaType
	destType     types.DestinationType
}

// Reconstruct fuses the nested partial order with the flat predicate
// axioms into typed origin, via and destination layers. The axioms
// alone are flat; the partial order alone lacks typing.
func Reconstruct(po *PartialOrder, axioms Axioms, errs *ValidationErrors) (*NeuronDMOrigin, []NeuronDMVia, []NeuronDMDestination, error) {
	if po == nil || (po.IsBlank() && len(po.Children) == 0) {
		return nil, nil, nil, fmt.Errorf("empty partial order")
	}

	w := &walker{axioms: axioms, errs: errs}
	w.visit(po, nil, 0)

	w.crossCheck()

	origin := mergeOrigins(w.origins)
	vias := mergeVias(w.vias)
	destinations := mergeDestinations(w.destinations)
	return origin, vias, destinations, nil
}

type walker struct {
	axioms       Axioms
	errs         *ValidationErrors
	origins      []nodeRecord
	vias         []nodeRecord
	destinations []nodeRecord
}

func (w *walker) visit(po *PartialOrder, fromEntities []EntityRef, depth int) {
	if po.IsBlank() {
		// The blank marker fans siblings out with the caller's
		// from-entities and depth.
		for _, child := range po.Children {
			w.visit(child, fromEntities, depth)
		}
		return
	}

	node := *po.Node
	w.classify(node, fromEntities, depth, len(po.Children) == 0)

	next := []EntityRef{node}
	for _, child := range po.Children {
		w.visit(child, next, depth+1)
	}
}

// axiomMatch holds every axiom set the node's URIs appear in.
type axiomMatch struct {
	isOrigin      bool
	isVia         bool
	isDestination bool
	viaType       types.ViaType
	destType      types.DestinationType
}

func (w *walker) lookup(uri string, match *axiomMatch) bool {
	found := false
	if _, ok := w.axioms.Origins[uri]; ok {
		match.isOrigin = true
		found = true
	}
	if viaType, ok := w.axioms.Vias[uri]; ok {
		if !match.isVia {
			match.viaType = viaType
		}
		match.isVia = true
		found = true
	}
	if destType, ok := w.axioms.Destinations[uri]; ok {
		if !match.isDestination {
			match.destType = destType
		}
		match.isDestination = true
		found = true
	}
	return found
}

func (w *walker) classify(node EntityRef, fromEntities []EntityRef, depth int, leaf bool) {
	var match axiomMatch
	matched := false
	// The layer URI of a region-layer pair takes precedence over the
	// region URI.
	if secondary := node.SecondaryURI(); secondary != "" {
		matched = w.lookup(secondary, &match)
	}
	if !matched {
		matched = w.lookup(node.PrimaryURI(), &match)
	}
	if !matched {
		w.errs.AddAxiomNotFound(node.Key())
		return
	}

	var class nodeClass
	switch {
	case leaf && match.isDestination:
		class = classDestination
	case depth == 0 && match.isOrigin:
		class = classOrigin
	case depth > 0 && match.isVia:
		class = classVia
	case match.isOrigin:
		class = classOrigin
	case match.isVia:
		class = classVia
	default:
		class = classDestination
	}

	record := nodeRecord{
		entity:       node,
		fromEntities: fromEntities,
		order:        depth,
		viaType:      match.viaType,
		destType:     match.destType,
	}
	if record.viaType == "" {
		record.viaType = types.ViaTypeAxon
	}
	if record.destType == "" {
		record.destType = types.DestinationTypeUnknown
	}

	switch class {
	case classOrigin:
		w.origins = append(w.origins, record)
	case classVia:
		w.vias = append(w.vias, record)
	case classDestination:
		w.destinations = append(w.destinations, record)
	}
}

// crossCheck requires the URI sets extracted from bucketed nodes to
// equal the axiom sets; discrepancies land in non_specified.
func (w *walker) crossCheck() {
	seen := func(records []nodeRecord) map[string]struct{} {
		out := map[string]struct{}{}
		for _, record := range records {
			if secondary := record.entity.SecondaryURI(); secondary != "" {
				out[secondary] = struct{}{}
			}
			out[record.entity.PrimaryURI()] = struct{}{}
		}
		return out
	}
	seenOrigins := seen(w.origins)
	seenVias := seen(w.vias)
	seenDestinations := seen(w.destinations)

	for uri := range w.axioms.Origins {
		if _, ok := seenOrigins[uri]; !ok {
			w.errs.AddNonSpecified(fmt.Sprintf("origin %s from axioms not found in partial order", uri))
		}
	}
	for uri := range w.axioms.Vias {
		if _, ok := seenVias[uri]; !ok {
			w.errs.AddNonSpecified(fmt.Sprintf("via %s from axioms not found in partial order", uri))
		}
	}
	for uri := range w.axioms.Destinations {
		if _, ok := seenDestinations[uri]; !ok {
			w.errs.AddNonSpecified(fmt.Sprintf("destination %s from axioms not found in partial order", uri))
		}
	}
}

func entitySetKey(entities []EntityRef) string {
	keys := make([]string, 0, len(entities))
	for _, entity := range entities {
		keys = append(keys, entity.Key())
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

func unionEntities(a, b []EntityRef) []EntityRef {
	seen := map[string]struct{}{}
	var out []EntityRef
	for _, entity := range append(append([]EntityRef{}, a...), b...) {
		key := entity.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func mergeOrigins(records []nodeRecord) *NeuronDMOrigin {
	origin := &NeuronDMOrigin{}
	for _, record := range records {
		origin.Entities = unionEntities(origin.Entities, []EntityRef{record.entity})
	}
	return origin
}

// mergeVias merges in two passes: first by (entity set, type) unioning
// from-entities and keeping the max order, then by (type, from set)
// unioning entities. Orders are reassigned contiguous afterwards.
func mergeVias(records []nodeRecord) []NeuronDMVia {
	vias := make([]NeuronDMVia, 0, len(records))
	for _, record := range records {
		vias = append(vias, NeuronDMVia{
			Entities:     []EntityRef{record.entity},
			FromEntities: unionEntities(nil, record.fromEntities),
			Order:        record.order,
			Type:         record.viaType,
		})
	}

	byEntities := map[string]*NeuronDMVia{}
	var pass1 []*NeuronDMVia
	for i := range vias {
		via := vias[i]
		key := entitySetKey(via.Entities) + "\x00" + string(via.Type)
		if existing, ok := byEntities[key]; ok {
			existing.FromEntities = unionEntities(existing.FromEntities, via.FromEntities)
			if via.Order > existing.Order {
				existing.Order = via.Order
			}
			continue
		}
		copied := via
		byEntities[key] = &copied
		pass1 = append(pass1, &copied)
	}

	byFrom := map[string]*NeuronDMVia{}
	var pass2 []*NeuronDMVia
	for _, via := range pass1 {
		key := string(via.Type) + "\x00" + entitySetKey(via.FromEntities)
		if existing, ok := byFrom[key]; ok {
			existing.Entities = unionEntities(existing.Entities, via.Entities)
			if via.Order > existing.Order {
				existing.Order = via.Order
			}
			continue
		}
		byFrom[key] = via
		pass2 = append(pass2, via)
	}

	sort.SliceStable(pass2, func(i, j int) bool { return pass2[i].Order < pass2[j].Order })
	out := make([]NeuronDMVia, 0, len(pass2))
	for i, via := range pass2 {
		via.Order = i
		out = append(out, *via)
	}
	return out
}

func mergeDestinations(records []nodeRecord) []NeuronDMDestination {
	destinations := make([]NeuronDMDestination, 0, len(records))
	for _, record := range records {
		destinations = append(destinations, NeuronDMDestination{
			Entities:     []EntityRef{record.entity},
			FromEntities: unionEntities(nil, record.fromEntities),
			Type:         record.destType,
		})
	}

	byEntities := map[string]*NeuronDMDestination{}
	var pass1 []*NeuronDMDestination
	for i := range destinations {
		destination := destinations[i]
		key := entitySetKey(destination.Entities) + "\x00" + string(destination.Type)
		if existing, ok := byEntities[key]; ok {
			existing.FromEntities = unionEntities(existing.FromEntities, destination.FromEntities)
			continue
		}
		copied := destination
		byEntities[key] = &copied
		pass1 = append(pass1, &copied)
	}

	byFrom := map[string]*NeuronDMDestination{}
	var pass2 []*NeuronDMDestination
	for _, destination := range pass1 {
		key := string(destination.Type) + "\x00" + entitySetKey(destination.FromEntities)
		if existing, ok := byFrom[key]; ok {
			existing.Entities = unionEntities(existing.Entities, destination.Entities)
			continue
		}
		byFrom[key] = destination
		pass2 = append(pass2, destination)
	}

	out := make([]NeuronDMDestination, 0, len(pass2))
	for _, destination := range pass2 {
		out = append(out, *destination)
	}
	return out
}
