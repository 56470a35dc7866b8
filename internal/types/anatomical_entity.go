package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnatomicalEntityMeta is a single ontology concept: a URI plus its
// preferred name. Kind is set when the meta has been typed as a region
// or a layer.
type AnatomicalEntityMeta struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OntologyURI string    `gorm:"column:ontology_uri;not null;uniqueIndex" json:"ontology_uri"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Kind        MetaKind  `gorm:"column:kind;not null;default:''" json:"kind"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (AnatomicalEntityMeta) TableName() string { return "anatomical_entity_meta" }

// AnatomicalEntityIntersection names the anatomical structure at the
// intersection of a cortical region and a laminar layer within it.
type AnatomicalEntityIntersection struct {
	ID        uuid.UUID             `gorm:"type:uuid;primaryKey" json:"id"`
	RegionID  uuid.UUID             `gorm:"type:uuid;not null;index" json:"region_id"`
	Region    *AnatomicalEntityMeta `gorm:"foreignKey:RegionID;references:ID" json:"region,omitempty"`
	LayerID   uuid.UUID             `gorm:"type:uuid;not null;index" json:"layer_id"`
	Layer     *AnatomicalEntityMeta `gorm:"foreignKey:LayerID;references:ID" json:"layer,omitempty"`
	CreatedAt time.Time             `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time             `gorm:"not null" json:"updated_at"`
}

func (AnatomicalEntityIntersection) TableName() string { return "anatomical_entity_intersection" }

// AnatomicalEntity is the tagged variant used throughout the pipeline:
// exactly one of SimpleEntity or RegionLayer is populated.
type AnatomicalEntity struct {
	ID             uuid.UUID                     `gorm:"type:uuid;primaryKey" json:"id"`
	SimpleEntityID *uuid.UUID                    `gorm:"type:uuid;index" json:"simple_entity_id,omitempty"`
	SimpleEntity   *AnatomicalEntityMeta         `gorm:"foreignKey:SimpleEntityID;references:ID" json:"simple_entity,omitempty"`
	RegionLayerID  *uuid.UUID                    `gorm:"type:uuid;index" json:"region_layer_id,omitempty"`
	RegionLayer    *AnatomicalEntityIntersection `gorm:"foreignKey:RegionLayerID;references:ID" json:"region_layer,omitempty"`
	Synonyms       []Synonym                     `gorm:"foreignKey:AnatomicalEntityID" json:"synonyms,omitempty"`
	CreatedAt      time.Time                     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time                     `gorm:"not null" json:"updated_at"`
}

func (AnatomicalEntity) TableName() string { return "anatomical_entity" }

var ErrEntityShape = fmt.Errorf("anatomical entity must be exactly one of simple or region-layer")

func (e *AnatomicalEntity) BeforeSave(tx *gorm.DB) error {
	simple := e.SimpleEntityID != nil || e.SimpleEntity != nil
	regionLayer := e.RegionLayerID != nil || e.RegionLayer != nil
	if simple == regionLayer {
		return ErrEntityShape
	}
	return nil
}

// IdentifierKey is the stable identity used for set comparisons:
// "region:layer" for an intersection, the ontology URI otherwise.
func (e *AnatomicalEntity) IdentifierKey() string {
	if e.RegionLayer != nil && e.RegionLayer.Region != nil && e.RegionLayer.Layer != nil {
		return e.RegionLayer.Region.OntologyURI + ":" + e.RegionLayer.Layer.OntologyURI
	}
	if e.SimpleEntity != nil {
		return e.SimpleEntity.OntologyURI
	}
	return e.ID.String()
}

// Name resolves the display name of either variant.
func (e *AnatomicalEntity) EntityName() string {
	if e.RegionLayer != nil && e.RegionLayer.Region != nil && e.RegionLayer.Layer != nil {
		return e.RegionLayer.Region.Name + "/" + e.RegionLayer.Layer.Name
	}
	if e.SimpleEntity != nil {
		return e.SimpleEntity.Name
	}
	return ""
}

type Synonym struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AnatomicalEntityID uuid.UUID `gorm:"type:uuid;not null;index" json:"anatomical_entity_id"`
	Name               string    `gorm:"column:name;not null" json:"name"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
}

func (Synonym) TableName() string { return "synonym" }
