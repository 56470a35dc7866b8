package types

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Provenance is a validated reference URI attached to a statement.
// Accepted grammars: DOI (bare, doi:-prefixed or doi.org URL), PMID
// (PMID: prefix or pubmed URL), PMCID (PMC number or PMC URL), and
// generic http(s) URLs.
type Provenance struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConnectivityStatementID uuid.UUID `gorm:"type:uuid;not null;index" json:"connectivity_statement_id"`
	URI                     string    `gorm:"column:uri;not null" json:"uri"`
	CreatedAt               time.Time `gorm:"not null" json:"created_at"`
}

func (Provenance) TableName() string { return "provenance" }

var provenancePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?i)(doi:\s*)?10\.\d{4,}(\.\d+)*/\S+$`),
	regexp.MustCompile(`^(?i)https?://(dx\.)?doi\.org/10\.\d{4,}(\.\d+)*/\S+$`),
	regexp.MustCompile(`^(?i)PMID:\s*\d+$`),
	regexp.MustCompile(`^(?i)https?://(www\.)?(pubmed\.ncbi\.nlm\.nih\.gov|ncbi\.nlm\.nih\.gov/pubmed)/\d+/?$`),
	regexp.MustCompile(`^(?i)PMC\d+$`),
	regexp.MustCompile(`^(?i)https?://(www\.)?ncbi\.nlm\.nih\.gov/pmc/articles/PMC\d+/?$`),
	regexp.MustCompile(`^https?://\S+$`),
}

// ValidProvenanceURI reports whether uri matches one of the accepted
// reference grammars.
func ValidProvenanceURI(uri string) bool {
	for _, p := range provenancePatterns {
		if p.MatchString(uri) {
			return true
		}
	}
	return false
}

func (p *Provenance) BeforeSave(tx *gorm.DB) error {
	if !ValidProvenanceURI(p.URI) {
		return fmt.Errorf("invalid provenance uri %q", p.URI)
	}
	return nil
}
