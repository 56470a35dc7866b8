package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Note attaches to exactly one of a sentence or a statement.
type Note struct {
	ID                      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                  *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	User                    *User      `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Type                    NoteType   `gorm:"column:type;not null;default:'plain'" json:"type"`
	Text                    string     `gorm:"column:text;not null" json:"text"`
	SentenceID              *uuid.UUID `gorm:"type:uuid;index" json:"sentence_id,omitempty"`
	ConnectivityStatementID *uuid.UUID `gorm:"type:uuid;index" json:"connectivity_statement_id,omitempty"`
	CreatedAt               time.Time  `gorm:"not null" json:"created_at"`
}

func (Note) TableName() string { return "note" }

var ErrNoteParent = fmt.Errorf("note must reference exactly one of sentence or statement")

func (n *Note) BeforeSave(tx *gorm.DB) error {
	if (n.SentenceID == nil) == (n.ConnectivityStatementID == nil) {
		return ErrNoteParent
	}
	return nil
}
