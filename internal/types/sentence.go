package types

import (
	"time"

	"github.com/google/uuid"
)

// Sentence is a literature excerpt that connectivity statements are
// derived from. Ingested statements auto-create a sentence when none
// matches by DOI.
type Sentence struct {
	ID          uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string                  `gorm:"column:title;not null" json:"title"`
	Text        string                  `gorm:"column:text" json:"text"`
	PMID        string                  `gorm:"column:pmid;index" json:"pmid"`
	PMCID       string                  `gorm:"column:pmcid;index" json:"pmcid"`
	DOI         string                  `gorm:"column:doi;index" json:"doi"`
	BatchName   string                  `gorm:"column:batch_name" json:"batch_name"`
	ExternalRef string                  `gorm:"column:external_ref" json:"external_ref"`
	State       SentenceState           `gorm:"column:state;not null;default:'open'" json:"state"`
	OwnerID     *uuid.UUID              `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Owner       *User                   `gorm:"foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	Statements  []ConnectivityStatement `gorm:"foreignKey:SentenceID" json:"statements,omitempty"`
	Notes       []Note                  `gorm:"foreignKey:SentenceID" json:"notes,omitempty"`
	CreatedAt   time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time               `gorm:"not null" json:"updated_at"`
}

func (Sentence) TableName() string { return "sentence" }
