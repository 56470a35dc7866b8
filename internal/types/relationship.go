package types

import (
	"time"

	"github.com/google/uuid"
)

// Relationship is an admin-authored predicate whose value is computed
// per statement by evaluating Snippet (a restricted expression over the
// ingested statement dict) during ingestion.
type Relationship struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string           `gorm:"column:title;not null" json:"title"`
	PredicateName string           `gorm:"column:predicate_name;not null" json:"predicate_name"`
	PredicateURI  string           `gorm:"column:predicate_uri;not null;uniqueIndex" json:"predicate_uri"`
	Type          RelationshipType `gorm:"column:type;not null" json:"type"`
	Snippet       string           `gorm:"column:snippet" json:"snippet"`
	Triples       []Triple         `gorm:"foreignKey:RelationshipID" json:"triples,omitempty"`
	CreatedAt     time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"not null" json:"updated_at"`
}

func (Relationship) TableName() string { return "relationship" }

// Triple is a named object bound to a relationship predicate.
type Triple struct {
	ID             uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	RelationshipID uuid.UUID               `gorm:"type:uuid;not null;index" json:"relationship_id"`
	Name           string                  `gorm:"column:name;not null" json:"name"`
	URI            string                  `gorm:"column:uri" json:"uri"`
	Statements     []ConnectivityStatement `gorm:"many2many:statement_triple;" json:"statements,omitempty"`
	CreatedAt      time.Time               `gorm:"not null" json:"created_at"`
}

func (Triple) TableName() string { return "triple" }

// StatementText holds the TEXT-typed relationship payload for one
// statement.
type StatementText struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectivityStatementID uuid.UUID `gorm:"type:uuid;not null;index:idx_statement_text_rel,unique" json:"connectivity_statement_id"`
	RelationshipID          uuid.UUID `gorm:"type:uuid;not null;index:idx_statement_text_rel,unique" json:"relationship_id"`
	Text                    string    `gorm:"column:text;not null" json:"text"`
	CreatedAt               time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time `gorm:"not null" json:"updated_at"`
}

func (StatementText) TableName() string { return "statement_text" }

// StatementEntityRelation binds anatomical entities produced by an
// ANATOMICAL_MULTI relationship to a statement.
type StatementEntityRelation struct {
	ID                      uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectivityStatementID uuid.UUID         `gorm:"type:uuid;not null;index" json:"connectivity_statement_id"`
	RelationshipID          uuid.UUID         `gorm:"type:uuid;not null;index" json:"relationship_id"`
	AnatomicalEntityID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"anatomical_entity_id"`
	AnatomicalEntity        *AnatomicalEntity `gorm:"foreignKey:AnatomicalEntityID;references:ID" json:"anatomical_entity,omitempty"`
	CreatedAt               time.Time         `gorm:"not null" json:"created_at"`
}

func (StatementEntityRelation) TableName() string { return "statement_entity_relation" }
