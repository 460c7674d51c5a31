// Package regdelta tracks day-over-day changes in a company registry.
// It ingests full-dump snapshots, diffs each against its predecessor,
// and persists the resulting change log to a per-date artifact file and
// a queryable SQLite store.
package regdelta

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/regdelta/regdelta/pkg/changelog"
	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/logging"
	"github.com/regdelta/regdelta/pkg/query"
	"github.com/regdelta/regdelta/pkg/registry"
	"github.com/regdelta/regdelta/pkg/snapshot"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultSnapshotDir = "data/snapshots"
	DefaultChangesDir  = "data/changes"
	defaultDBFile      = "changelog.db"
)

// Tracker is the top-level entry point. It owns the snapshot store,
// the differ, both change-log sinks, and the query service.
type Tracker struct {
	schema    *registry.Schema
	snapshots snapshot.Store
	differ    differ.Differ
	artifacts *changelog.ArtifactStore
	store     *changelog.SQLStore
	ownsDB    bool
	writer    *changelog.Writer
	queries   *query.Service
	logger    *zerolog.Logger
}

// New creates a Tracker with the given options.
func New(opts ...Option) (*Tracker, error) {
	cfg := &config{
		snapshotDir: DefaultSnapshotDir,
		changesDir:  DefaultChangesDir,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying options: %w", err)
		}
	}

	if cfg.logger == nil {
		cfg.logger = logging.Default()
	}
	if cfg.schema == nil {
		if cfg.schemaFile != "" {
			schema, err := registry.LoadSchema(cfg.schemaFile)
			if err != nil {
				return nil, err
			}
			cfg.schema = schema
		} else {
			cfg.schema = registry.DefaultSchema()
		}
	}
	if cfg.dbPath == "" {
		cfg.dbPath = filepath.Join(cfg.changesDir, defaultDBFile)
	}

	snapshots := cfg.store
	if snapshots == nil {
		var err error
		snapshots, err = snapshot.NewFileStore(cfg.snapshotDir, cfg.schema)
		if err != nil {
			return nil, err
		}
	}

	artifacts, err := changelog.NewArtifactStore(cfg.changesDir, cfg.schema)
	if err != nil {
		return nil, err
	}
	var store *changelog.SQLStore
	ownsDB := cfg.db == nil
	if cfg.db != nil {
		store, err = changelog.NewSQLStoreFromDB(cfg.db)
	} else {
		store, err = changelog.OpenSQLStore(cfg.dbPath)
	}
	if err != nil {
		return nil, err
	}
	closeStore := func() {
		if ownsDB {
			_ = store.Close()
		}
	}
	writer, err := changelog.NewWriter(artifacts, store, cfg.logger)
	if err != nil {
		closeStore()
		return nil, err
	}
	queries, err := query.NewService(store, artifacts, cfg.logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	diffOpts := []differ.Option{}
	if cfg.workers > 0 {
		diffOpts = append(diffOpts, differ.WithWorkers(cfg.workers))
	}
	if len(cfg.ignore) > 0 {
		diffOpts = append(diffOpts, differ.WithIgnoreFields(cfg.ignore...))
	}

	return &Tracker{
		schema:    cfg.schema,
		snapshots: snapshots,
		differ:    differ.New(cfg.schema, diffOpts...),
		artifacts: artifacts,
		store:     store,
		ownsDB:    ownsDB,
		writer:    writer,
		queries:   queries,
		logger:    cfg.logger,
	}, nil
}

// Close releases the queryable store. Handles supplied via WithDB are
// left open for their owner.
func (t *Tracker) Close() error {
	if !t.ownsDB {
		return nil
	}
	return t.store.Close()
}

// Schema returns the registry schema the tracker was built with.
func (t *Tracker) Schema() *registry.Schema {
	return t.schema
}

// Snapshots returns the snapshot store.
func (t *Tracker) Snapshots() snapshot.Store {
	return t.snapshots
}

// Query returns the change-log query service.
func (t *Tracker) Query() *query.Service {
	return t.queries
}

// Detect runs one detection cycle for the given snapshot date: load
// the snapshot and its predecessor, diff them, persist the change log,
// and return a report of what happened. Input anomalies (duplicate
// keys, unusable rows) never abort the run; they are carried in the
// report. A single-sink persistence failure also completes the run,
// with status PARTIAL.
func (t *Tracker) Detect(ctx context.Context, date registry.Date) (*RunReport, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)

	logger := t.logger.With().Str("run_id", runID).Str("date", date.String()).Logger()
	logger.Info().Msg("Detection run started")

	report := &RunReport{RunID: runID, Date: date}

	current, err := t.snapshots.Load(ctx, date)
	if err != nil {
		return nil, err
	}

	prior, priorDate, err := t.loadPrior(ctx, date)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		report.PriorMissing = true
		logger.Warn().Msg("No prior snapshot found; every record will be classified NEW")
	} else {
		report.PriorDate = priorDate
	}

	changeset, err := t.differ.Compare(ctx, prior, current)
	if err != nil {
		return nil, err
	}

	report.Summary = changeset.Summary
	report.Rows = current.Len()
	report.DuplicateKeys = append(report.DuplicateKeys, current.DuplicateKeys...)
	report.Duplicates = current.Duplicates
	report.Dropped = current.Dropped
	if prior != nil {
		report.DuplicateKeys = append(report.DuplicateKeys, prior.DuplicateKeys...)
		report.Duplicates += prior.Duplicates
		report.Dropped += prior.Dropped
	}
	if report.HasAnomalies() {
		logger.Warn().
			Int("duplicates", report.Duplicates).
			Int("dropped", report.Dropped).
			Msg("Snapshot anomalies recorded")
	}

	result, persistErr := t.writer.Persist(ctx, date, changeset.Records)
	report.Persist = result
	report.Duration = time.Since(start)

	logger.Info().
		Int("new", report.Summary.New).
		Int("modified", report.Summary.Modified).
		Int("deleted", report.Summary.Deleted).
		Int("unchanged", report.Summary.Unchanged).
		Str("status", string(report.Status())).
		Dur("duration", report.Duration).
		Msg("Detection run finished")

	if persistErr != nil {
		return report, persistErr
	}
	return report, nil
}

// Compare diffs two snapshot dates without persisting anything. Both
// snapshots must exist.
func (t *Tracker) Compare(ctx context.Context, oldDate, newDate registry.Date) (*differ.Changeset, error) {
	if !oldDate.Before(newDate) {
		return nil, errors.NewValidationError("dates", oldDate.String(),
			"old date must precede new date")
	}
	if !t.snapshots.Exists(oldDate) {
		return nil, fmt.Errorf("snapshot %s: %w", oldDate, errors.ErrMissingPriorSnapshot)
	}

	old, err := t.snapshots.Load(ctx, oldDate)
	if err != nil {
		return nil, err
	}
	updated, err := t.snapshots.Load(ctx, newDate)
	if err != nil {
		return nil, err
	}
	return t.differ.Compare(ctx, old, updated)
}

// PurgeResult reports what a retention pass removed.
type PurgeResult struct {
	Cutoff    registry.Date
	Artifacts int
	Rows      int
}

// Purge removes change artifacts and stored records older than
// keepDays days, counting back from today. Snapshot files are left
// alone.
func (t *Tracker) Purge(ctx context.Context, keepDays int) (*PurgeResult, error) {
	if keepDays < 1 {
		return nil, errors.NewValidationError("keepDays", keepDays, "retention must be at least one day")
	}
	cutoff := registry.Today().AddDays(-keepDays)
	result := &PurgeResult{Cutoff: cutoff}

	dates, err := t.artifacts.Dates()
	if err != nil {
		return nil, err
	}
	for _, date := range dates {
		if !date.Before(cutoff) {
			continue
		}
		if err := t.artifacts.Remove(date); err != nil {
			return result, err
		}
		result.Artifacts++
	}

	rows, err := t.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return result, err
	}
	result.Rows = rows

	t.logger.Info().
		Str("cutoff", cutoff.String()).
		Int("artifacts", result.Artifacts).
		Int("rows", result.Rows).
		Msg("Retention pass complete")
	return result, nil
}

// loadPrior finds and loads the most recent snapshot strictly before
// the given date, or returns nil when none exists.
func (t *Tracker) loadPrior(ctx context.Context, date registry.Date) (*snapshot.Index, registry.Date, error) {
	// The common case is yesterday's dump.
	yesterday := date.AddDays(-1)
	if t.snapshots.Exists(yesterday) {
		idx, err := t.snapshots.Load(ctx, yesterday)
		return idx, yesterday, err
	}

	dates, err := t.snapshots.Dates()
	if err != nil {
		return nil, registry.Date{}, err
	}
	var prior registry.Date
	for _, d := range dates {
		if d.Before(date) {
			prior = d
		}
	}
	if prior.IsZero() {
		return nil, registry.Date{}, nil
	}
	idx, err := t.snapshots.Load(ctx, prior)
	return idx, prior, err
}
