package ingestion

import "github.com/neurocurate/composer/internal/neurondm"

// Options control one pipeline run.
type Options struct {
	// UpdateAnatomicalEntities allows bare entity metas to be upgraded
	// in place to the region or layer subtype a statement requires.
	UpdateAnatomicalEntities bool

	// DisableOverwrite rejects every update to an existing statement,
	// regardless of its state or the population filter.
	DisableOverwrite bool

	// Filter restricts ingestion to the listed reference URIs. A nil
	// filter admits everything; a non-nil filter also marks the run as
	// "pre-filtered population" mode, in which admitted statements are
	// exported over arbitrary workflow states.
	Filter *neurondm.PopulationFilter

	// BatchName labels sentences auto-created during this run.
	BatchName string

	// AnomalyLogPath is where the anomaly CSV is written. Empty skips
	// the file.
	AnomalyLogPath string

	// DryRun stops after the store-free phase: load, filter,
	// reconstruct and validate, but write nothing.
	DryRun bool
}
