package ingestion

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/neurocurate/composer/internal/types"
)

// StatementChanged compares the persisted statement against the
// incoming shape field by field. It never looks at state: the change
// detector decides whether to write, not where the statement sits in
// the workflow.
func StatementChanged(existing, desired *types.ConnectivityStatement) bool {
	if existing.KnowledgeStatement != desired.KnowledgeStatement {
		return true
	}
	if existing.Laterality != desired.Laterality ||
		existing.Projection != desired.Projection ||
		existing.CircuitType != desired.CircuitType {
		return true
	}
	if !uuidPtrEqual(existing.SexID, desired.SexID) ||
		!uuidPtrEqual(existing.PhenotypeID, desired.PhenotypeID) ||
		!uuidPtrEqual(existing.ProjectionPhenotypeID, desired.ProjectionPhenotypeID) ||
		!uuidPtrEqual(existing.FunctionalCircuitRoleID, desired.FunctionalCircuitRoleID) ||
		!uuidPtrEqual(existing.PopulationID, desired.PopulationID) {
		return true
	}
	if !stringSetsEqual(specieURIs(existing.Species), specieURIs(desired.Species)) {
		return true
	}
	if !stringSetsEqual(provenanceURIs(existing.Provenances), provenanceURIs(desired.Provenances)) {
		return true
	}
	if !stringSetsEqual(forwardURIs(existing.ForwardConnections), forwardURIs(desired.ForwardConnections)) {
		return true
	}
	if !stringSetsEqual(entityKeys(existing.Origins), entityKeys(desired.Origins)) {
		return true
	}
	if viasChanged(existing.Vias, desired.Vias) {
		return true
	}
	return destinationsChanged(existing.Destinations, desired.Destinations)
}

func viasChanged(existing, desired []types.Via) bool {
	if len(existing) != len(desired) {
		return true
	}
	byOrder := func(vias []types.Via) []types.Via {
		sorted := make([]types.Via, len(vias))
		copy(sorted, vias)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
		return sorted
	}
	a, b := byOrder(existing), byOrder(desired)
	for i := range a {
		if a[i].Type != b[i].Type {
			return true
		}
		if !stringSetsEqual(entityKeys(a[i].AnatomicalEntities), entityKeys(b[i].AnatomicalEntities)) {
			return true
		}
		if !stringSetsEqual(entityKeys(a[i].FromEntities), entityKeys(b[i].FromEntities)) {
			return true
		}
	}
	return false
}

func destinationsChanged(existing, desired []types.Destination) bool {
	if len(existing) != len(desired) {
		return true
	}
	canonical := func(destinations []types.Destination) []string {
		keys := make([]string, 0, len(destinations))
		for i := range destinations {
			entities := sortedKeys(entityKeys(destinations[i].AnatomicalEntities))
			from := sortedKeys(entityKeys(destinations[i].FromEntities))
			keys = append(keys, string(destinations[i].Type)+"|"+strings.Join(entities, ",")+"|"+strings.Join(from, ","))
		}
		sort.Strings(keys)
		return keys
	}
	a, b := canonical(existing), canonical(desired)
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func entityKeys(entities []types.AnatomicalEntity) map[string]struct{} {
	keys := make(map[string]struct{}, len(entities))
	for i := range entities {
		keys[entities[i].IdentifierKey()] = struct{}{}
	}
	return keys
}

func specieURIs(species []types.Specie) map[string]struct{} {
	uris := make(map[string]struct{}, len(species))
	for i := range species {
		uris[species[i].OntologyURI] = struct{}{}
	}
	return uris
}

func provenanceURIs(provenances []types.Provenance) map[string]struct{} {
	uris := make(map[string]struct{}, len(provenances))
	for i := range provenances {
		uris[provenances[i].URI] = struct{}{}
	}
	return uris
}

// forwardURIs skips targets already flagged invalid so that a target
// invalidated after the fact does not register as a content change.
func forwardURIs(targets []*types.ConnectivityStatement) map[string]struct{} {
	uris := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		if target == nil || target.State == types.CSStateInvalid {
			continue
		}
		uris[target.ReferenceURI] = struct{}{}
	}
	return uris
}

func stringSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for key := range a {
		if _, ok := b[key]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
