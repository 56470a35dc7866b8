// Package ingestion drives the batch pipeline that turns oracle neuron
// records into persisted connectivity statements: validation, the
// overwrite policy, change detection, writes, state transitions and
// upstream invalidation.
package ingestion

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/neurocurate/composer/internal/platform/pipeerr"
)

// Anomaly is one non-fatal surprise recorded during a run. Anomalies
// never block ingestion; they are written to the anomaly log even when
// the batch fails.
type Anomaly struct {
	Severity    pipeerr.Severity
	StatementID string
	EntityID    string
	Message     string
}

func warningAnomaly(statementID, entityID, message string) Anomaly {
	return Anomaly{Severity: pipeerr.SeverityWarning, StatementID: statementID, EntityID: entityID, Message: message}
}

func errorAnomaly(statementID, entityID, message string) Anomaly {
	return Anomaly{Severity: pipeerr.SeverityError, StatementID: statementID, EntityID: entityID, Message: message}
}

// WriteAnomalyLog writes the run's anomalies as CSV rows of
// severity,statement_id,entity_id,message.
func WriteAnomalyLog(path string, anomalies []Anomaly) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create anomaly log %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"severity", "statement_id", "entity_id", "message"}); err != nil {
		return err
	}
	for _, anomaly := range anomalies {
		row := []string{string(anomaly.Severity), anomaly.StatementID, anomaly.EntityID, anomaly.Message}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
