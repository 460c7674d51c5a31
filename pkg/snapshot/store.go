// Package snapshot provides read access to the per-date full-dump
// snapshot files produced by ingestion. Snapshots are immutable once
// written; this package never modifies them.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/registry"
)

const (
	filePrefix = "snapshot_"
	fileSuffix = ".csv"
)

// Store provides read-only access to snapshots by date.
type Store interface {
	// Open returns a streaming reader over the snapshot for the date.
	// Returns ErrNotFound when no snapshot exists for the date.
	Open(ctx context.Context, date registry.Date) (*Reader, error)

	// Load materializes the full snapshot for the date, keyed by record
	// key. For datasets larger than memory prefer Open.
	Load(ctx context.Context, date registry.Date) (*Index, error)

	// Exists reports whether a snapshot exists for the date.
	Exists(date registry.Date) bool

	// Dates lists all snapshot dates in ascending order.
	Dates() ([]registry.Date, error)
}

// fileStore reads snapshot_YYYY-MM-DD.csv files from a directory.
type fileStore struct {
	dir    string
	schema *registry.Schema
}

// NewFileStore creates a Store over a directory of snapshot CSV files.
func NewFileStore(dir string, schema *registry.Schema) (Store, error) {
	if dir == "" {
		return nil, errors.NewValidationError("dir", dir, "snapshot directory must not be empty")
	}
	if schema == nil {
		return nil, errors.NewValidationError("schema", nil, "schema must not be nil")
	}
	return &fileStore{dir: dir, schema: schema}, nil
}

// Filename returns the snapshot filename convention for a date.
func Filename(date registry.Date) string {
	return filePrefix + date.String() + fileSuffix
}

func (s *fileStore) path(date registry.Date) string {
	return filepath.Join(s.dir, Filename(date))
}

func (s *fileStore) Open(_ context.Context, date registry.Date) (*Reader, error) {
	path := s.path(date)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("snapshot", date.String())
		}
		return nil, errors.WrapIO("open snapshot", path, err)
	}
	return newReader(f, filepath.Base(path), s.schema)
}

func (s *fileStore) Load(ctx context.Context, date registry.Date) (*Index, error) {
	r, err := s.Open(ctx, date)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return BuildIndex(ctx, date, r)
}

func (s *fileStore) Exists(date registry.Date) bool {
	_, err := os.Stat(s.path(date))
	return err == nil
}

func (s *fileStore) Dates() ([]registry.Date, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapIO("list snapshots", s.dir, err)
	}

	var dates []registry.Date
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		date, err := registry.ParseDate(raw)
		if err != nil {
			// Stray files in the snapshot directory are not ours to judge.
			continue
		}
		dates = append(dates, date)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// String names the directory this store reads from, for diagnostics.
func (s *fileStore) String() string {
	return fmt.Sprintf("snapshot.FileStore(%s)", s.dir)
}
