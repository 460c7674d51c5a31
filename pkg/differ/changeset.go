// Package differ computes the change log between two registry
// snapshots: which keys are new, which disappeared, and which fields
// changed for the keys present in both.
package differ

import (
	"fmt"
	"strings"

	"github.com/regdelta/regdelta/pkg/registry"
)

// Kind classifies one detected change.
type Kind string

const (
	// KindNew marks a key present only in the newer snapshot.
	KindNew Kind = "NEW"
	// KindModified marks a key present in both snapshots with at least
	// one changed field.
	KindModified Kind = "MODIFIED"
	// KindDeleted marks a key present only in the older snapshot.
	KindDeleted Kind = "DELETED"
)

// kindRank fixes the deterministic output order of kinds.
var kindRank = map[Kind]int{
	KindNew:      0,
	KindModified: 1,
	KindDeleted:  2,
}

// ChangeRecord is one detected NEW/MODIFIED/DELETED event for a key on
// a given date.
type ChangeRecord struct {
	Key  string
	Kind Kind
	Date registry.Date

	// ChangedFields lists the changed field names in schema order.
	// Non-empty if and only if Kind is MODIFIED.
	ChangedFields []string

	// OldValues and NewValues carry the raw values of the changed
	// fields only. A field absent on one side has no entry there.
	OldValues map[string]string
	NewValues map[string]string

	// Record is the full record: the new record for NEW and MODIFIED,
	// the old record for DELETED.
	Record registry.Record
}

// Summary counts one comparison's outcome by kind. Together with
// Unchanged the counts partition the union of both snapshots' keys.
type Summary struct {
	New       int
	Modified  int
	Deleted   int
	Unchanged int
}

// Total returns the number of emitted change records.
func (s Summary) Total() int {
	return s.New + s.Modified + s.Deleted
}

// Changeset is the full result of comparing two snapshots.
type Changeset struct {
	Date    registry.Date
	Records []ChangeRecord
	Summary Summary

	// PriorMissing marks the degraded mark-all-new path taken when no
	// prior snapshot was available.
	PriorMissing bool
}

// HasChanges reports whether the changeset contains any changes.
func (c *Changeset) HasChanges() bool {
	return c.Summary.Total() > 0
}

// IsEmpty reports whether the changeset contains no changes.
func (c *Changeset) IsEmpty() bool {
	return c.Summary.Total() == 0
}

// String returns a human-readable summary of the changeset.
func (c *Changeset) String() string {
	if c.IsEmpty() {
		return fmt.Sprintf("No changes detected for %s", c.Date)
	}

	var parts []string
	if c.Summary.New > 0 {
		parts = append(parts, fmt.Sprintf("%d new", c.Summary.New))
	}
	if c.Summary.Modified > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", c.Summary.Modified))
	}
	if c.Summary.Deleted > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", c.Summary.Deleted))
	}

	return fmt.Sprintf("Changes for %s: %s (total: %d, unchanged: %d)",
		c.Date, strings.Join(parts, ", "), c.Summary.Total(), c.Summary.Unchanged)
}
