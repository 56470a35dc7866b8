package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/neurocurate/composer/internal/platform/logger"
	"github.com/neurocurate/composer/internal/repos"
	"github.com/neurocurate/composer/internal/types"
)

// baseColumns is the fixed column order; one column per exportable tag
// follows it.
var baseColumns = []string{
	"Subject",
	"Subject URI",
	"Predicate",
	"Predicate URI",
	"Predicate Relationship",
	"Object",
	"Object URI",
	"Object Text",
	"Axonal course poset",
	"Connected from",
	"Connected from uri",
	"Curation notes",
	"Reference",
	"Has nerve branches",
	"Approved by SAWG",
	"Review notes",
	"Proposed action",
	"Added to SCKAN (time stamp)",
	"Sentence Number",
	"Statement State",
	"NLP-ID",
	"Neuron population label",
}

// Exporter writes the full exported-statement CSV.
type Exporter struct {
	statements repos.StatementRepo
	lookups    repos.LookupRepo
	log        *logger.Logger
}

func NewExporter(statements repos.StatementRepo, lookups repos.LookupRepo, baseLog *logger.Logger) *Exporter {
	return &Exporter{
		statements: statements,
		lookups:    lookups,
		log:        baseLog.With("component", "Exporter"),
	}
}

// WriteFile exports every exported statement to path and returns the
// number of statements written.
func (e *Exporter) WriteFile(ctx context.Context, tx *gorm.DB, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	count, err := e.Write(ctx, tx, file)
	if err != nil {
		return count, err
	}
	e.log.Info("wrote export", "path", path, "statements", count)
	return count, nil
}

// Write streams the CSV to out.
func (e *Exporter) Write(ctx context.Context, tx *gorm.DB, out io.Writer) (int, error) {
	statements, err := e.statements.ListExported(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("list exported statements: %w", err)
	}
	tags, err := e.lookups.ListExportableTags(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("list exportable tags: %w", err)
	}

	writer := csv.NewWriter(out)
	if err := writer.Write(Columns(tags)); err != nil {
		return 0, err
	}
	for _, statement := range statements {
		for _, record := range Records(statement, tags) {
			if err := writer.Write(record); err != nil {
				return 0, err
			}
		}
	}
	writer.Flush()
	return len(statements), writer.Error()
}

// Columns is the header row: the fixed columns plus one per exportable
// tag.
func Columns(tags []types.Tag) []string {
	columns := append([]string(nil), baseColumns...)
	for _, tag := range tags {
		columns = append(columns, tag.Name)
	}
	return columns
}

// Records renders one statement as CSV records, one per flattened row.
// Statement-level columns repeat on every record.
func Records(statement *types.ConnectivityStatement, tags []types.Tag) [][]string {
	shared := sharedColumns(statement)
	tagged := tagColumns(statement, tags)

	rows := Flatten(statement)
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		layer := ""
		if row.LayerOrder > 0 {
			layer = strconv.Itoa(row.LayerOrder)
		}
		record := []string{
			statement.CurieID,
			statement.ReferenceURI,
			row.Predicate,
			row.PredicateURI,
			row.PredicateRelationship,
			row.ObjectName,
			row.ObjectURI,
			row.ObjectText,
			layer,
			strings.Join(row.ConnectedFromNames, "; "),
			strings.Join(row.ConnectedFromURIs, "; "),
		}
		record = append(record, shared...)
		record = append(record, tagged...)
		records = append(records, record)
	}
	return records
}

// sharedColumns fills the statement-level tail of each record, from
// "Curation notes" through "Neuron population label". The SAWG review
// columns are populated downstream and stay blank here.
func sharedColumns(statement *types.ConnectivityStatement) []string {
	notes := make([]string, 0, len(statement.Notes))
	for _, note := range statement.Notes {
		notes = append(notes, note.Text)
	}
	references := make([]string, 0, len(statement.Provenances))
	for _, provenance := range statement.Provenances {
		references = append(references, provenance.URI)
	}

	sentenceNumber := ""
	nlpID := ""
	if statement.Sentence != nil {
		sentenceNumber = statement.Sentence.Text
		nlpID = statement.Sentence.ExternalRef
	}
	populationLabel := ""
	if statement.Population != nil {
		populationLabel = statement.Population.Name
	}

	return []string{
		strings.Join(notes, "\n"),
		strings.Join(references, "; "),
		"", // Has nerve branches
		"", // Approved by SAWG
		"", // Review notes
		"", // Proposed action
		"", // Added to SCKAN
		sentenceNumber,
		string(statement.State),
		nlpID,
		populationLabel,
	}
}

func tagColumns(statement *types.ConnectivityStatement, tags []types.Tag) []string {
	present := make(map[string]bool, len(statement.Tags))
	for _, tag := range statement.Tags {
		present[tag.Name] = true
	}
	columns := make([]string, 0, len(tags))
	for _, tag := range tags {
		if present[tag.Name] {
			columns = append(columns, "True")
		} else {
			columns = append(columns, "")
		}
	}
	return columns
}
