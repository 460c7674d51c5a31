package snapshot

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/registry"
)

// indexBatchSize is how many rows are indexed between cancellation
// checks. Row-level granularity is pointless to interrupt.
const indexBatchSize = 4096

// Reader streams records out of one snapshot file without holding the
// whole dataset in memory.
type Reader struct {
	name    string
	schema  *registry.Schema
	src     io.Closer
	csv     *csv.Reader
	columns []string
	line    int
}

// newReader wraps an open snapshot file, validates its header against
// the schema, and positions the reader at the first data row.
func newReader(src io.ReadCloser, name string, schema *registry.Schema) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1 // row width checked per-row so bad rows can be skipped
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		_ = src.Close()
		if err == io.EOF {
			return nil, errors.NewSchemaMismatchError(name, "", "snapshot file is empty")
		}
		return nil, errors.WrapParse("csv header", name, err)
	}

	hasKey := false
	for _, col := range header {
		if col == schema.KeyField() {
			hasKey = true
			break
		}
	}
	if !hasKey {
		_ = src.Close()
		return nil, errors.NewSchemaMismatchError(name, schema.KeyField(), "missing")
	}

	return &Reader{
		name:    name,
		schema:  schema,
		src:     src,
		csv:     cr,
		columns: header,
		line:    1,
	}, nil
}

// Name identifies the underlying snapshot file in errors and logs.
func (r *Reader) Name() string {
	return r.name
}

// Next returns the next record. It returns io.EOF when the snapshot is
// exhausted. A row that cannot be parsed yields an error wrapping
// ErrCorruptRecord; the reader stays usable and the caller decides
// whether to count and continue.
func (r *Reader) Next() (registry.Record, error) {
	row, err := r.csv.Read()
	r.line++
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.WrapParse("csv row", fmt.Sprintf("%s:%d", r.name, r.line), errors.ErrCorruptRecord)
	}
	if len(row) != len(r.columns) {
		return nil, errors.WrapParse("csv row", fmt.Sprintf("%s:%d", r.name, r.line), errors.ErrCorruptRecord)
	}

	rec := make(registry.Record, len(r.columns))
	for i, col := range r.columns {
		if _, declared := r.schema.Field(col); !declared {
			continue // undeclared columns are ignored, not an error
		}
		rec[col] = row[i]
	}
	return rec, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.src.Close()
}

// Index is a key-indexed, fully materialized view of one snapshot.
type Index struct {
	Date    registry.Date
	Records map[string]registry.Record

	// DuplicateKeys lists keys that appeared more than once, in
	// first-seen order. The first occurrence is kept for comparison;
	// every extra occurrence is counted, never silently dropped.
	DuplicateKeys []string

	// Duplicates counts the extra occurrences beyond the first, across
	// all duplicate keys.
	Duplicates int

	// Dropped counts rows skipped as corrupt or carrying no key.
	Dropped int

	// Rows counts all data rows read, including dropped ones.
	Rows int
}

// Len returns the number of unique keyed records.
func (ix *Index) Len() int {
	return len(ix.Records)
}

// BuildIndex drains a Reader into a key-indexed view. Corrupt rows and
// rows without a key are counted and skipped; duplicate keys keep the
// first occurrence and are recorded. Cancellation is honored between
// row batches.
func BuildIndex(ctx context.Context, date registry.Date, r *Reader) (*Index, error) {
	ix := &Index{
		Date:    date,
		Records: make(map[string]registry.Record),
	}
	seenDup := make(map[string]bool)

	for {
		if ix.Rows%indexBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.ErrCanceled
			}
		}

		rec, err := r.Next()
		if err == io.EOF {
			return ix, nil
		}
		if err != nil {
			ix.Rows++
			ix.Dropped++
			continue
		}
		ix.Rows++

		key := rec.Key(r.schema)
		if key == "" {
			ix.Dropped++
			continue
		}

		if _, exists := ix.Records[key]; exists {
			ix.Duplicates++
			if !seenDup[key] {
				seenDup[key] = true
				ix.DuplicateKeys = append(ix.DuplicateKeys, key)
			}
			continue
		}
		ix.Records[key] = rec
	}
}
