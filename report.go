package regdelta

import (
	"fmt"
	"time"

	"github.com/regdelta/regdelta/pkg/changelog"
	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/registry"
)

// RunReport summarizes one detection run: what was compared, what
// changed, what looked suspicious in the input, and how persistence
// went. Anomalies never abort a run; they are carried here instead.
type RunReport struct {
	// RunID uniquely identifies this run across log lines and sinks.
	RunID string `json:"run_id"`

	// Date is the snapshot date that was compared against its
	// predecessor.
	Date registry.Date `json:"date"`

	// PriorDate is the snapshot the run compared against. Zero when
	// no prior snapshot existed.
	PriorDate registry.Date `json:"prior_date,omitzero"`

	// PriorMissing reports that no prior snapshot was found, so every
	// record was classified NEW.
	PriorMissing bool `json:"prior_missing,omitempty"`

	// Summary carries the per-kind change counts, including the
	// unchanged count for the partition check.
	Summary differ.Summary `json:"summary"`

	// Rows is the number of usable records in the compared snapshot.
	Rows int `json:"rows"`

	// DuplicateKeys lists keys that appeared more than once in either
	// snapshot, in first-seen order.
	DuplicateKeys []string `json:"duplicate_keys,omitempty"`

	// Duplicates counts extra occurrences beyond the first per key,
	// summed over both snapshots.
	Duplicates int `json:"duplicates,omitempty"`

	// Dropped counts rows that could not be used: unparseable lines
	// and rows with an empty key, summed over both snapshots.
	Dropped int `json:"dropped,omitempty"`

	// Persist describes how writing to the two sinks went. Nil when
	// the run did not persist (dry runs, ad hoc comparisons).
	Persist *changelog.PersistResult `json:"persist,omitempty"`

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration `json:"duration"`
}

// OK reports whether the run completed with both sinks written.
func (r *RunReport) OK() bool {
	return r.Persist != nil && r.Persist.Status == changelog.StatusOK
}

// Status returns the persistence status, or StatusFailed when the run
// never reached persistence.
func (r *RunReport) Status() changelog.Status {
	if r.Persist == nil {
		return changelog.StatusFailed
	}
	return r.Persist.Status
}

// HasAnomalies reports whether the run saw duplicate keys or dropped rows.
func (r *RunReport) HasAnomalies() bool {
	return r.Duplicates > 0 || r.Dropped > 0
}

// String renders a one-line human summary of the run.
func (r *RunReport) String() string {
	return fmt.Sprintf("run %s for %s: %d new, %d modified, %d deleted, %d unchanged (%d duplicates, %d dropped) [%s in %s]",
		r.RunID, r.Date, r.Summary.New, r.Summary.Modified, r.Summary.Deleted, r.Summary.Unchanged,
		r.Duplicates, r.Dropped, r.Status(), r.Duration.Round(time.Millisecond))
}
