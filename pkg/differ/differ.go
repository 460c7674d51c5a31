package differ

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/registry"
	"github.com/regdelta/regdelta/pkg/snapshot"
)

// diffBatchSize is how many intersection keys a worker diffs between
// cancellation checks.
const diffBatchSize = 1024

// Differ handles change detection between two snapshots.
type Differ interface {
	// Compare diffs the old snapshot against the new one. A nil old
	// index is the degraded first-run path: every new record is NEW.
	Compare(ctx context.Context, old, updated *snapshot.Index) (*Changeset, error)
}

// differ is the default implementation of Differ.
type differ struct {
	schema       *registry.Schema
	workers      int
	ignoreFields map[string]bool
}

// New creates a Differ for the given schema.
func New(schema *registry.Schema, opts ...Option) Differ {
	d := &differ{
		schema:       schema,
		workers:      runtime.GOMAXPROCS(0),
		ignoreFields: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Compare classifies every key in the union of both snapshots into
// exactly one of NEW, MODIFIED, DELETED, or unchanged, and emits the
// change records sorted by (kind, key) so the output is deterministic
// regardless of map iteration and worker scheduling.
func (d *differ) Compare(ctx context.Context, old, updated *snapshot.Index) (*Changeset, error) {
	if updated == nil {
		return nil, errors.NewValidationError("updated", nil, "new snapshot index must not be nil")
	}

	changeset := &Changeset{Date: updated.Date}

	if old == nil {
		changeset.PriorMissing = true
		changeset.Records = markAllNew(updated)
		changeset.Summary.New = len(changeset.Records)
		sortRecords(changeset.Records)
		return changeset, nil
	}

	var records []ChangeRecord
	var common []string

	// Single pass over each side classifies NEW and DELETED and
	// collects the intersection, all via hash lookups.
	for key, rec := range updated.Records {
		if _, exists := old.Records[key]; exists {
			common = append(common, key)
			continue
		}
		records = append(records, ChangeRecord{
			Key:    key,
			Kind:   KindNew,
			Date:   updated.Date,
			Record: rec,
		})
	}
	for key, rec := range old.Records {
		if _, exists := updated.Records[key]; exists {
			continue
		}
		records = append(records, ChangeRecord{
			Key:    key,
			Kind:   KindDeleted,
			Date:   updated.Date,
			Record: rec,
		})
	}

	changeset.Summary.New = count(records, KindNew)
	changeset.Summary.Deleted = count(records, KindDeleted)

	modified, err := d.diffCommon(ctx, old, updated, common)
	if err != nil {
		return nil, err
	}
	records = append(records, modified...)
	changeset.Summary.Modified = len(modified)
	changeset.Summary.Unchanged = len(common) - len(modified)

	sortRecords(records)
	changeset.Records = records

	return changeset, nil
}

// diffCommon field-diffs the intersection key set, partitioned across
// workers. Partitions are independent; the caller sorts the merged
// result, so concurrency never leaks into the output order.
func (d *differ) diffCommon(ctx context.Context, old, updated *snapshot.Index, common []string) ([]ChangeRecord, error) {
	if len(common) == 0 {
		return nil, nil
	}

	workers := d.workers
	if workers > len(common) {
		workers = len(common)
	}

	results := make([][]ChangeRecord, workers)
	g, gctx := errgroup.WithContext(ctx)

	chunk := (len(common) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(common) {
			end = len(common)
		}
		w := w
		keys := common[start:end]

		g.Go(func() error {
			var out []ChangeRecord
			for i, key := range keys {
				if i%diffBatchSize == 0 {
					if gctx.Err() != nil {
						return errors.ErrCanceled
					}
				}
				if rec, changed := d.diffRecord(key, old.Records[key], updated.Records[key], updated.Date); changed {
					out = append(out, rec)
				}
			}
			results[w] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []ChangeRecord
	for _, part := range results {
		merged = append(merged, part...)
	}
	return merged, nil
}

// diffRecord compares one key's old and new records field by field
// under canonical comparison, skipping the key and metadata fields.
func (d *differ) diffRecord(key string, oldRec, newRec registry.Record, date registry.Date) (ChangeRecord, bool) {
	var changedFields []string
	var oldValues, newValues map[string]string

	for _, field := range d.schema.DiffFields() {
		if d.ignoreFields[field.Name] {
			continue
		}

		oldRaw, oldOK := oldRec.Value(field.Name)
		newRaw, newOK := newRec.Value(field.Name)
		if !oldOK && !newOK {
			continue
		}
		if registry.Equal(field.Kind, oldRaw, newRaw) {
			continue
		}

		if oldValues == nil {
			oldValues = make(map[string]string)
			newValues = make(map[string]string)
		}
		changedFields = append(changedFields, field.Name)
		if oldOK {
			oldValues[field.Name] = oldRaw
		}
		if newOK {
			newValues[field.Name] = newRaw
		}
	}

	if len(changedFields) == 0 {
		return ChangeRecord{}, false
	}

	return ChangeRecord{
		Key:           key,
		Kind:          KindModified,
		Date:          date,
		ChangedFields: changedFields,
		OldValues:     oldValues,
		NewValues:     newValues,
		Record:        newRec,
	}, true
}

// markAllNew emits a NEW record for every record of the new snapshot.
func markAllNew(updated *snapshot.Index) []ChangeRecord {
	records := make([]ChangeRecord, 0, updated.Len())
	for key, rec := range updated.Records {
		records = append(records, ChangeRecord{
			Key:    key,
			Kind:   KindNew,
			Date:   updated.Date,
			Record: rec,
		})
	}
	return records
}

// sortRecords orders records by (kind, key) for deterministic output.
func sortRecords(records []ChangeRecord) {
	sort.Slice(records, func(i, j int) bool {
		if kindRank[records[i].Kind] != kindRank[records[j].Kind] {
			return kindRank[records[i].Kind] < kindRank[records[j].Kind]
		}
		return records[i].Key < records[j].Key
	})
}

func count(records []ChangeRecord, kind Kind) int {
	n := 0
	for _, r := range records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
