// Package export turns exported connectivity statements into the flat
// predicate-subject-object rows consumed by downstream knowledge bases.
package export

import (
	"sort"

	"github.com/neurocurate/composer/internal/types"
)

const predicateURIBase = "http://uri.interlex.org/tgbugs/uris/readable/"

// composerURIBase prefixes the terminating row that points back at the
// curated record itself.
const composerURIBase = "https://uri.interlex.org/composer/uris/statement"

const (
	predicateKnowledgeStatement = "knowledge_statement"

	predicateSoma            = "hasSomaLocatedIn"
	predicateAxon            = "hasAxonLocatedIn"
	predicateDendrite        = "hasDendriteLocatedIn"
	predicateSensoryAxon     = "hasAxonLeadingToSensorySubcellularElementIn"
	predicateAxonTerminal    = "hasAxonPresynapticElementIn"
	predicateSensoryTerminal = "hasAxonSensorySubcellularElementIn"

	predicateTaxon                 = "hasInstanceInTaxon"
	predicateSex                   = "hasBiologicalSex"
	predicateCircuitRole           = "hasCircuitRolePhenotype"
	predicateProjectionLaterality  = "hasProjectionLaterality"
	predicateSomaPhenotype         = "hasSomaPhenotype"
	predicateSystemPhenotype       = "hasAnatomicalSystemPhenotype"
	predicateProjectionPhenotype   = "hasProjectionPhenotype"
	predicateFunctionalCircuitRole = "hasFunctionalCircuitRolePhenotype"
	predicateForwardConnection     = "hasForwardConnectionPhenotype"
	predicateComposerURI           = "hasComposerUri"
)

// viaPredicates maps each via type onto its export predicate.
var viaPredicates = map[types.ViaType]string{
	types.ViaTypeAxon:        predicateAxon,
	types.ViaTypeDendrite:    predicateDendrite,
	types.ViaTypeSensoryAxon: predicateSensoryAxon,
}

// destinationPredicates maps each destination type onto its export
// predicate. UNKNOWN falls back to the presynaptic predicate.
var destinationPredicates = map[types.DestinationType]string{
	types.DestinationTypeAxonTerminal:     predicateAxonTerminal,
	types.DestinationTypeAfferentTerminal: predicateSensoryTerminal,
	types.DestinationTypeUnknown:          predicateAxonTerminal,
}

var circuitTypeObjects = map[types.CircuitType]string{
	types.CircuitTypeSensory:    "sensory",
	types.CircuitTypeMotor:      "motor",
	types.CircuitTypeIntrinsic:  "intrinsic",
	types.CircuitTypeProjection: "projection",
	types.CircuitTypeAnaxonic:   "anaxonic",
}

var circuitTypeURIs = map[types.CircuitType]string{
	types.CircuitTypeSensory:    predicateURIBase + "SensoryPhenotype",
	types.CircuitTypeMotor:      predicateURIBase + "MotorPhenotype",
	types.CircuitTypeIntrinsic:  predicateURIBase + "IntrinsicPhenotype",
	types.CircuitTypeProjection: predicateURIBase + "ProjectionPhenotype",
	types.CircuitTypeAnaxonic:   predicateURIBase + "AnaxonicPhenotype",
}

var projectionObjects = map[types.Projection]string{
	types.ProjectionIpsi:   "ipsilateral",
	types.ProjectionContra: "contralateral",
	types.ProjectionBi:     "bilateral",
}

var lateralityObjects = map[types.Laterality]string{
	types.LateralityLeft:  "left side",
	types.LateralityRight: "right side",
}

// Row is one flattened (predicate, object) pair of a statement. The
// layer order is nonzero only on anatomical rows; connected-from pairs
// name the entities of the feeding layer.
type Row struct {
	Predicate             string
	PredicateURI          string
	PredicateRelationship string
	ObjectName            string
	ObjectURI             string
	ObjectText            string
	LayerOrder            int
	ConnectedFromNames    []string
	ConnectedFromURIs     []string
}

func predicateURI(predicate string) string {
	return predicateURIBase + predicate
}

// Flatten emits the rows of one statement in the canonical order:
// knowledge statement, origins, vias by order, destinations, species,
// phenotypic rows, forward connections, alerts, composer URI.
func Flatten(statement *types.ConnectivityStatement) []Row {
	rows := []Row{{
		Predicate:  predicateKnowledgeStatement,
		ObjectText: statement.KnowledgeStatement,
	}}

	rows = append(rows, entityRows(predicateSoma, "", statement.Origins, 1, nil)...)

	vias := append([]types.Via(nil), statement.Vias...)
	sort.Slice(vias, func(i, j int) bool { return vias[i].Order < vias[j].Order })

	// Each layer connects from its explicit from_entities when the
	// oracle supplied them, otherwise from the full previous layer.
	previous := statement.Origins
	for _, via := range vias {
		from := via.FromEntities
		if len(from) == 0 {
			from = previous
		}
		predicate := viaPredicates[via.Type]
		if predicate == "" {
			predicate = predicateAxon
		}
		rows = append(rows, entityRows(predicate, string(via.Type), via.AnatomicalEntities, via.Order+2, from)...)
		previous = via.AnatomicalEntities
	}

	destinationLayer := len(vias) + 2
	for _, destination := range statement.Destinations {
		from := destination.FromEntities
		if len(from) == 0 {
			from = previous
		}
		predicate := destinationPredicates[destination.Type]
		if predicate == "" {
			predicate = predicateAxonTerminal
		}
		rows = append(rows, entityRows(predicate, string(destination.Type), destination.AnatomicalEntities, destinationLayer, from)...)
	}

	for _, specie := range statement.Species {
		rows = append(rows, Row{
			Predicate:    predicateTaxon,
			PredicateURI: predicateURI(predicateTaxon),
			ObjectName:   specie.Name,
			ObjectURI:    specie.OntologyURI,
		})
	}

	if statement.Sex != nil {
		rows = append(rows, Row{
			Predicate:    predicateSex,
			PredicateURI: predicateURI(predicateSex),
			ObjectName:   statement.Sex.Name,
			ObjectURI:    statement.Sex.OntologyURI,
		})
	}
	if name, ok := circuitTypeObjects[statement.CircuitType]; ok {
		rows = append(rows, Row{
			Predicate:    predicateCircuitRole,
			PredicateURI: predicateURI(predicateCircuitRole),
			ObjectName:   name,
			ObjectURI:    circuitTypeURIs[statement.CircuitType],
		})
	}
	if name, ok := projectionObjects[statement.Projection]; ok {
		rows = append(rows, Row{
			Predicate:    predicateProjectionLaterality,
			PredicateURI: predicateURI(predicateProjectionLaterality),
			ObjectName:   name,
		})
	}
	if name, ok := lateralityObjects[statement.Laterality]; ok {
		rows = append(rows, Row{
			Predicate:    predicateSomaPhenotype,
			PredicateURI: predicateURI(predicateSomaPhenotype),
			ObjectName:   name,
		})
	}
	if statement.Phenotype != nil {
		rows = append(rows, Row{
			Predicate:    predicateSystemPhenotype,
			PredicateURI: predicateURI(predicateSystemPhenotype),
			ObjectName:   statement.Phenotype.Name,
			ObjectURI:    statement.Phenotype.OntologyURI,
		})
	}
	if statement.ProjectionPhenotype != nil {
		rows = append(rows, Row{
			Predicate:    predicateProjectionPhenotype,
			PredicateURI: predicateURI(predicateProjectionPhenotype),
			ObjectName:   statement.ProjectionPhenotype.Name,
			ObjectURI:    statement.ProjectionPhenotype.OntologyURI,
		})
	}
	if statement.FunctionalCircuitRole != nil {
		rows = append(rows, Row{
			Predicate:    predicateFunctionalCircuitRole,
			PredicateURI: predicateURI(predicateFunctionalCircuitRole),
			ObjectName:   statement.FunctionalCircuitRole.Name,
			ObjectURI:    statement.FunctionalCircuitRole.OntologyURI,
		})
	}

	for _, target := range statement.ForwardConnections {
		rows = append(rows, Row{
			Predicate:    predicateForwardConnection,
			PredicateURI: predicateURI(predicateForwardConnection),
			ObjectName:   target.CurieID,
			ObjectURI:    target.ReferenceURI,
		})
	}

	for _, alert := range statement.StatementAlerts {
		row := Row{ObjectText: alert.Text}
		if alert.AlertType != nil {
			row.Predicate = alert.AlertType.Name
			row.PredicateURI = alert.AlertType.URI
		}
		rows = append(rows, row)
	}

	rows = append(rows, Row{
		Predicate:    predicateComposerURI,
		PredicateURI: predicateURI(predicateComposerURI),
		ObjectURI:    composerURIBase + "/" + statement.ID.String(),
	})
	return rows
}

func entityRows(predicate, relationship string, entities []types.AnatomicalEntity, layer int, from []types.AnatomicalEntity) []Row {
	names := make([]string, 0, len(from))
	uris := make([]string, 0, len(from))
	for i := range from {
		names = append(names, from[i].EntityName())
		uris = append(uris, from[i].IdentifierKey())
	}

	rows := make([]Row, 0, len(entities))
	for i := range entities {
		rows = append(rows, Row{
			Predicate:             predicate,
			PredicateURI:          predicateURI(predicate),
			PredicateRelationship: relationship,
			ObjectName:            entities[i].EntityName(),
			ObjectURI:             entities[i].IdentifierKey(),
			LayerOrder:            layer,
			ConnectedFromNames:    names,
			ConnectedFromURIs:     uris,
		})
	}
	return rows
}
