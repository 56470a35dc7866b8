package ingestion

import (
	"fmt"

	"github.com/neurocurate/composer/internal/types"
)

// CanOverwrite decides whether an incoming statement may replace the
// persisted one. A nil existing statement is always acceptable (new
// record). The returned reason is non-empty only on rejection.
func CanOverwrite(existing *types.ConnectivityStatement, uri string, opts Options) (bool, string) {
	if existing == nil {
		return true, ""
	}
	if opts.DisableOverwrite {
		return false, fmt.Sprintf("overwrite of %s disabled by flag", uri)
	}
	if existing.State == types.CSStateExported || existing.State == types.CSStateInvalid {
		return true, ""
	}
	if opts.Filter != nil && opts.Filter.Contains(uri) {
		// Pre-filtered population mode overrides the state check.
		return true, ""
	}
	return false, fmt.Sprintf("statement %s is in state %s and cannot be overwritten", uri, existing.State)
}

// SentenceAccepts reports whether an existing sentence may take new or
// updated statements. Sentences auto-created by ingestion are born in
// compose-now and always pass.
func SentenceAccepts(sentence *types.Sentence) bool {
	return sentence == nil || sentence.State == types.SentenceStateComposeNow
}
