package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ReferenceURIBase is the prefix under which exported statements are
// minted reference URIs: <base>/<population>/<index>.
const ReferenceURIBase = "https://uri.interlex.org/composer/uris/set"

// ConnectivityStatement is the central curated record: a neuron
// population with origins, an ordered via path, destinations, and
// phenotypic/species metadata.
type ConnectivityStatement struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// Seq is a monotone row number minted at creation (see
	// BeforeCreate). Conflict resolution during population-index
	// reassignment orders by it.
	Seq int64 `gorm:"column:seq;uniqueIndex" json:"seq"`

	SentenceID uuid.UUID `gorm:"type:uuid;not null;index" json:"sentence_id"`
	Sentence   *Sentence `gorm:"foreignKey:SentenceID;references:ID" json:"sentence,omitempty"`

	KnowledgeStatement string `gorm:"column:knowledge_statement" json:"knowledge_statement"`
	StatementPrefix    string `gorm:"column:statement_prefix" json:"statement_prefix"`
	StatementSuffix    string `gorm:"column:statement_suffix" json:"statement_suffix"`

	// JourneyPath holds the consolidated journey paths as JSON; it is
	// recomputed once per writer commit.
	JourneyPath datatypes.JSON `gorm:"type:jsonb;column:journey_path" json:"journey_path"`

	State   CSState    `gorm:"column:state;not null;default:'draft'" json:"state"`
	OwnerID *uuid.UUID `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Owner   *User      `gorm:"foreignKey:OwnerID;references:ID" json:"owner,omitempty"`

	// ReferenceURI is unique among non-deprecated statements; the
	// partial unique index is created in db.AutoMigrateAll.
	ReferenceURI string `gorm:"column:reference_uri;index" json:"reference_uri"`
	CurieID      string `gorm:"column:curie_id" json:"curie_id"`

	Origins      []AnatomicalEntity `gorm:"many2many:connectivity_statement_origin;" json:"origins,omitempty"`
	Vias         []Via              `gorm:"foreignKey:ConnectivityStatementID" json:"vias,omitempty"`
	Destinations []Destination      `gorm:"foreignKey:ConnectivityStatementID" json:"destinations,omitempty"`

	Species []Specie `gorm:"many2many:connectivity_statement_specie;" json:"species,omitempty"`

	SexID                   *uuid.UUID             `gorm:"type:uuid;index" json:"sex_id,omitempty"`
	Sex                     *Sex                   `gorm:"foreignKey:SexID;references:ID" json:"sex,omitempty"`
	PhenotypeID             *uuid.UUID             `gorm:"type:uuid;index" json:"phenotype_id,omitempty"`
	Phenotype               *Phenotype             `gorm:"foreignKey:PhenotypeID;references:ID" json:"phenotype,omitempty"`
	ProjectionPhenotypeID   *uuid.UUID             `gorm:"type:uuid;index" json:"projection_phenotype_id,omitempty"`
	ProjectionPhenotype     *ProjectionPhenotype   `gorm:"foreignKey:ProjectionPhenotypeID;references:ID" json:"projection_phenotype,omitempty"`
	FunctionalCircuitRoleID *uuid.UUID             `gorm:"type:uuid;index" json:"functional_circuit_role_id,omitempty"`
	FunctionalCircuitRole   *FunctionalCircuitRole `gorm:"foreignKey:FunctionalCircuitRoleID;references:ID" json:"functional_circuit_role,omitempty"`

	Laterality  Laterality  `gorm:"column:laterality" json:"laterality"`
	Projection  Projection  `gorm:"column:projection" json:"projection"`
	CircuitType CircuitType `gorm:"column:circuit_type" json:"circuit_type"`

	ForwardConnections []*ConnectivityStatement `gorm:"many2many:forward_connection;joinForeignKey:SourceID;joinReferences:TargetID" json:"forward_connections,omitempty"`

	Provenances       []Provenance       `gorm:"foreignKey:ConnectivityStatementID" json:"provenances,omitempty"`
	Notes             []Note             `gorm:"foreignKey:ConnectivityStatementID" json:"notes,omitempty"`
	Tags              []Tag              `gorm:"many2many:connectivity_statement_tag;" json:"tags,omitempty"`
	StatementAlerts   []StatementAlert   `gorm:"foreignKey:ConnectivityStatementID" json:"statement_alerts,omitempty"`
	ExpertConsultants []ExpertConsultant `gorm:"foreignKey:ConnectivityStatementID" json:"expert_consultants,omitempty"`

	HasStatementBeenExported bool           `gorm:"column:has_statement_been_exported;not null;default:false" json:"has_statement_been_exported"`
	PopulationID             *uuid.UUID     `gorm:"type:uuid;index" json:"population_id,omitempty"`
	Population               *PopulationSet `gorm:"foreignKey:PopulationID;references:ID" json:"population,omitempty"`
	PopulationIndex          *int           `gorm:"column:population_index" json:"population_index,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ConnectivityStatement) TableName() string { return "connectivity_statement" }

// ExportedReferenceURI builds the canonical reference URI for an
// exported statement of the given population and index.
func ExportedReferenceURI(population string, index int) string {
	return fmt.Sprintf("%s/%s/%d", ReferenceURIBase, population, index)
}

// ExportedCurie builds the legacy identifier assigned at export.
func ExportedCurie(population string, index int) string {
	return fmt.Sprintf("neuron type %s %d", population, index)
}

// Via is an ordered intermediate layer on the path between origins and
// destinations. Order values are contiguous in [0, N-1] per statement.
type Via struct {
	ID                      uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectivityStatementID uuid.UUID          `gorm:"type:uuid;not null;index:idx_via_statement_order,unique" json:"connectivity_statement_id"`
	Order                   int                `gorm:"column:ord;not null;index:idx_via_statement_order,unique" json:"order"`
	Type                    ViaType            `gorm:"column:type;not null;default:'AXON'" json:"type"`
	AnatomicalEntities      []AnatomicalEntity `gorm:"many2many:via_anatomical_entity;" json:"anatomical_entities,omitempty"`
	FromEntities            []AnatomicalEntity `gorm:"many2many:via_from_entity;" json:"from_entities,omitempty"`
	CreatedAt               time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time          `gorm:"not null" json:"updated_at"`
}

func (Via) TableName() string { return "via" }

// Destination is a terminal layer. An empty FromEntities means "take
// the previous layer" only when the statement has no vias.
type Destination struct {
	ID                      uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectivityStatementID uuid.UUID          `gorm:"type:uuid;not null;index" json:"connectivity_statement_id"`
	Type                    DestinationType    `gorm:"column:type;not null;default:'UNKNOWN'" json:"type"`
	AnatomicalEntities      []AnatomicalEntity `gorm:"many2many:destination_anatomical_entity;" json:"anatomical_entities,omitempty"`
	FromEntities            []AnatomicalEntity `gorm:"many2many:destination_from_entity;" json:"from_entities,omitempty"`
	CreatedAt               time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time          `gorm:"not null" json:"updated_at"`
}

func (Destination) TableName() string { return "destination" }

// ExpertConsultant records an expert consulted for a statement.
type ExpertConsultant struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectivityStatementID uuid.UUID `gorm:"type:uuid;not null;index" json:"connectivity_statement_id"`
	Name                    string    `gorm:"column:name;not null" json:"name"`
	URI                     string    `gorm:"column:uri" json:"uri"`
	CreatedAt               time.Time `gorm:"not null" json:"created_at"`
}

func (ExpertConsultant) TableName() string { return "expert_consultant" }
