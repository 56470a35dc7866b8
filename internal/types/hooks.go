package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IDs are minted application side so rows created inside bulk
// transactions can be cross referenced before the flush.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (m *AnatomicalEntityMeta) BeforeCreate(*gorm.DB) error         { ensureID(&m.ID); return nil }
func (m *AnatomicalEntityIntersection) BeforeCreate(*gorm.DB) error { ensureID(&m.ID); return nil }
func (m *Synonym) BeforeCreate(*gorm.DB) error                      { ensureID(&m.ID); return nil }
func (m *Sex) BeforeCreate(*gorm.DB) error                          { ensureID(&m.ID); return nil }
func (m *Specie) BeforeCreate(*gorm.DB) error                       { ensureID(&m.ID); return nil }
func (m *Phenotype) BeforeCreate(*gorm.DB) error                    { ensureID(&m.ID); return nil }
func (m *ProjectionPhenotype) BeforeCreate(*gorm.DB) error          { ensureID(&m.ID); return nil }
func (m *FunctionalCircuitRole) BeforeCreate(*gorm.DB) error        { ensureID(&m.ID); return nil }
func (m *Tag) BeforeCreate(*gorm.DB) error                          { ensureID(&m.ID); return nil }
func (m *AlertType) BeforeCreate(*gorm.DB) error                    { ensureID(&m.ID); return nil }
func (m *StatementAlert) BeforeCreate(*gorm.DB) error               { ensureID(&m.ID); return nil }
func (m *PopulationSet) BeforeCreate(*gorm.DB) error                { ensureID(&m.ID); return nil }
func (m *User) BeforeCreate(*gorm.DB) error                         { ensureID(&m.ID); return nil }
func (m *Sentence) BeforeCreate(*gorm.DB) error                     { ensureID(&m.ID); return nil }
func (m *AnatomicalEntity) BeforeCreate(*gorm.DB) error             { ensureID(&m.ID); return nil }
func (m *Note) BeforeCreate(*gorm.DB) error                         { ensureID(&m.ID); return nil }
func (m *Provenance) BeforeCreate(*gorm.DB) error                   { ensureID(&m.ID); return nil }
func (m *Relationship) BeforeCreate(*gorm.DB) error                 { ensureID(&m.ID); return nil }
func (m *Triple) BeforeCreate(*gorm.DB) error                       { ensureID(&m.ID); return nil }
func (m *StatementText) BeforeCreate(*gorm.DB) error                { ensureID(&m.ID); return nil }
func (m *StatementEntityRelation) BeforeCreate(*gorm.DB) error      { ensureID(&m.ID); return nil }
// Seq orders rows by creation for conflict resolution during
// population-index reassignment. Nanosecond timestamps keep it
// monotone across process runs without a database sequence.
func (m *ConnectivityStatement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	if m.Seq == 0 {
		m.Seq = time.Now().UnixNano()
	}
	return nil
}
func (m *Via) BeforeCreate(*gorm.DB) error                          { ensureID(&m.ID); return nil }
func (m *Destination) BeforeCreate(*gorm.DB) error                  { ensureID(&m.ID); return nil }
func (m *ExpertConsultant) BeforeCreate(*gorm.DB) error             { ensureID(&m.ID); return nil }
