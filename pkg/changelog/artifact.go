// Package changelog persists diff results durably: a flat per-date CSV
// artifact and a queryable SQL store, written by a dual-sink Writer.
// Change records stay structured inside the program; JSON encoding of
// the diff fields happens only at these storage edges.
package changelog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/registry"
)

const (
	artifactPrefix = "changes_"
	artifactSuffix = ".csv"

	artifactFilePermissions = 0o644
)

// fixedColumns lead every artifact row, followed by all schema fields.
var fixedColumns = []string{"key", "change_type", "change_date", "changed_fields", "old_values", "new_values"}

// ArtifactStore reads and writes the flat per-date change artifacts.
type ArtifactStore struct {
	dir    string
	schema *registry.Schema
}

// NewArtifactStore creates an ArtifactStore over a directory, creating
// the directory when needed.
func NewArtifactStore(dir string, schema *registry.Schema) (*ArtifactStore, error) {
	if dir == "" {
		return nil, errors.NewValidationError("dir", dir, "changes directory must not be empty")
	}
	if schema == nil {
		return nil, errors.NewValidationError("schema", nil, "schema must not be nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapIO("create changes dir", dir, err)
	}
	return &ArtifactStore{dir: dir, schema: schema}, nil
}

// ArtifactFilename returns the artifact filename convention for a date.
func ArtifactFilename(date registry.Date) string {
	return artifactPrefix + date.String() + artifactSuffix
}

// Path returns the artifact path for a date.
func (a *ArtifactStore) Path(date registry.Date) string {
	return filepath.Join(a.dir, ArtifactFilename(date))
}

// Write persists one run's change records as the date's artifact. The
// file is written to a temp path and renamed into place, so re-running
// a date replaces the artifact instead of appending to it.
func (a *ArtifactStore) Write(_ context.Context, date registry.Date, records []differ.ChangeRecord) error {
	final := a.Path(date)

	tmp, err := os.CreateTemp(a.dir, artifactPrefix+"*.tmp")
	if err != nil {
		return errors.WrapIO("create artifact", final, err)
	}
	defer func() {
		_ = os.Remove(tmp.Name()) // no-op after successful rename
	}()

	if err := a.encode(tmp, records); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write artifact", final, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("close artifact", final, err)
	}
	if err := os.Chmod(tmp.Name(), artifactFilePermissions); err != nil {
		return errors.WrapIO("chmod artifact", final, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return errors.WrapIO("replace artifact", final, err)
	}
	return nil
}

func (a *ArtifactStore) encode(w io.Writer, records []differ.ChangeRecord) error {
	cw := csv.NewWriter(w)

	header := append(append([]string{}, fixedColumns...), a.schema.Columns()...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := make([]string, 0, len(header))

		changedFields, err := encodeJSONList(rec.ChangedFields)
		if err != nil {
			return err
		}
		oldValues, err := encodeJSONMap(rec.OldValues)
		if err != nil {
			return err
		}
		newValues, err := encodeJSONMap(rec.NewValues)
		if err != nil {
			return err
		}

		row = append(row, rec.Key, string(rec.Kind), rec.Date.String(), changedFields, oldValues, newValues)
		for _, col := range a.schema.Columns() {
			row = append(row, rec.Record[col])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read loads the artifact for a date back into structured change
// records. Returns ErrNotFound when no artifact exists for the date.
func (a *ArtifactStore) Read(_ context.Context, date registry.Date) ([]differ.ChangeRecord, error) {
	path := a.Path(date)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("change artifact", date.String())
		}
		return nil, errors.WrapIO("open artifact", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.WrapParse("csv header", path, err)
	}

	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[col] = i
	}
	for _, required := range fixedColumns {
		if _, ok := colIdx[required]; !ok {
			return nil, errors.WrapParse("csv header", path, errors.NewValidationError("column", required, "missing from artifact"))
		}
	}

	var records []differ.ChangeRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapParse("csv row", path, err)
		}

		rec, err := a.decodeRow(colIdx, row)
		if err != nil {
			return nil, errors.WrapParse("artifact row", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (a *ArtifactStore) decodeRow(colIdx map[string]int, row []string) (differ.ChangeRecord, error) {
	get := func(col string) string {
		i, ok := colIdx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	date, err := registry.ParseDate(get("change_date"))
	if err != nil {
		return differ.ChangeRecord{}, err
	}

	changedFields, err := decodeJSONList(get("changed_fields"))
	if err != nil {
		return differ.ChangeRecord{}, err
	}
	oldValues, err := decodeJSONMap(get("old_values"))
	if err != nil {
		return differ.ChangeRecord{}, err
	}
	newValues, err := decodeJSONMap(get("new_values"))
	if err != nil {
		return differ.ChangeRecord{}, err
	}

	record := make(registry.Record, len(a.schema.Fields))
	for _, col := range a.schema.Columns() {
		if v := get(col); v != "" {
			record[col] = v
		}
	}

	return differ.ChangeRecord{
		Key:           get("key"),
		Kind:          differ.Kind(get("change_type")),
		Date:          date,
		ChangedFields: changedFields,
		OldValues:     oldValues,
		NewValues:     newValues,
		Record:        record,
	}, nil
}

// Dates lists all artifact dates in ascending order.
func (a *ArtifactStore) Dates() ([]registry.Date, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapIO("list artifacts", a.dir, err)
	}

	var dates []registry.Date
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactSuffix) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactSuffix)
		date, err := registry.ParseDate(raw)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Remove deletes the artifact for a date. Removing a missing artifact
// is not an error.
func (a *ArtifactStore) Remove(date registry.Date) error {
	err := os.Remove(a.Path(date))
	if err != nil && !os.IsNotExist(err) {
		return errors.WrapIO("remove artifact", a.Path(date), err)
	}
	return nil
}

// JSON encoding at the storage edge. Empty collections render as the
// empty string, the flat-file equivalent of null.

func encodeJSONList(list []string) (string, error) {
	if len(list) == 0 {
		return "", nil
	}
	data, err := json.Marshal(list)
	return string(data), err
}

func decodeJSONList(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var list []string
	err := json.Unmarshal([]byte(s), &list)
	return list, err
}

func encodeJSONMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	return string(data), err
}

func decodeJSONMap(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	err := json.Unmarshal([]byte(s), &m)
	return m, err
}
