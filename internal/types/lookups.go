package types

import (
	"time"

	"github.com/google/uuid"
)

type Sex struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	OntologyURI string    `gorm:"column:ontology_uri;not null;uniqueIndex" json:"ontology_uri"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Sex) TableName() string { return "sex" }

type Specie struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	OntologyURI string    `gorm:"column:ontology_uri;not null;uniqueIndex" json:"ontology_uri"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Specie) TableName() string { return "specie" }

type Phenotype struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	OntologyURI string    `gorm:"column:ontology_uri;uniqueIndex" json:"ontology_uri"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (Phenotype) TableName() string { return "phenotype" }

type ProjectionPhenotype struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	OntologyURI string    `gorm:"column:ontology_uri;uniqueIndex" json:"ontology_uri"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (ProjectionPhenotype) TableName() string { return "projection_phenotype" }

type FunctionalCircuitRole struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	OntologyURI string    `gorm:"column:ontology_uri;uniqueIndex" json:"ontology_uri"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (FunctionalCircuitRole) TableName() string { return "functional_circuit_role" }

type Tag struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Exportable bool      `gorm:"column:exportable;not null;default:false" json:"exportable"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (Tag) TableName() string { return "tag" }

type AlertType struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	URI       string    `gorm:"column:uri;not null;uniqueIndex" json:"uri"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (AlertType) TableName() string { return "alert_type" }

type StatementAlert struct {
	ID                       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AlertTypeID              uuid.UUID  `gorm:"type:uuid;not null;index" json:"alert_type_id"`
	AlertType                *AlertType `gorm:"foreignKey:AlertTypeID;references:ID" json:"alert_type,omitempty"`
	ConnectivityStatementID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"connectivity_statement_id"`
	Text                     string     `gorm:"column:text" json:"text"`
	CreatedAt                time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time  `gorm:"not null" json:"updated_at"`
}

func (StatementAlert) TableName() string { return "statement_alert" }

// PopulationSet is a named group of exported statements that share a
// numeric indexing sequence.
type PopulationSet struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"column:name;not null;uniqueIndex" json:"name"`
	Description   string    `gorm:"column:description" json:"description"`
	LastUsedIndex int       `gorm:"column:last_used_index;not null;default:0" json:"last_used_index"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (PopulationSet) TableName() string { return "population_set" }

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Login     string    `gorm:"column:login;not null;uniqueIndex" json:"login"`
	FirstName string    `gorm:"column:first_name" json:"first_name"`
	LastName  string    `gorm:"column:last_name" json:"last_name"`
	IsStaff   bool      `gorm:"column:is_staff;not null;default:false" json:"is_staff"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (User) TableName() string { return "composer_user" }

// SystemUserLogin is the principal allowed to take privileged
// transitions during ingestion.
const SystemUserLogin = "system"

func (u *User) IsSystem() bool {
	return u != nil && u.Login == SystemUserLogin
}

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	if u.FirstName == "" && u.LastName == "" {
		return u.Login
	}
	return u.FirstName + " " + u.LastName
}
