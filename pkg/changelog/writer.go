package changelog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/logging"
	"github.com/regdelta/regdelta/pkg/registry"
)

// Status summarizes the outcome of persisting one run.
type Status string

const (
	// StatusOK means both sinks committed.
	StatusOK Status = "OK"
	// StatusPartial means exactly one sink committed. Safe to retry:
	// both sinks are idempotent per date.
	StatusPartial Status = "PARTIAL"
	// StatusFailed means neither sink committed.
	StatusFailed Status = "FAILED"
)

// PersistResult reports what each sink did for one run.
type PersistResult struct {
	Status       Status
	ArtifactPath string
	Inserted     int

	// Per-sink failures; nil for a sink that committed.
	ArtifactErr error
	StoreErr    error
}

// Err returns the combined sink error: nil for OK, ErrPartialPersist
// wrapped with the failing sink's cause for PARTIAL and FAILED.
func (r *PersistResult) Err() error {
	if r.ArtifactErr == nil && r.StoreErr == nil {
		return nil
	}
	if r.ArtifactErr != nil {
		return r.ArtifactErr
	}
	return r.StoreErr
}

// Writer persists diff results to both sinks: the flat per-date
// artifact and the queryable SQL store. The sinks fail independently;
// one failing never blocks the other.
type Writer struct {
	artifacts *ArtifactStore
	store     *SQLStore
	logger    *zerolog.Logger
}

// NewWriter creates a dual-sink writer.
func NewWriter(artifacts *ArtifactStore, store *SQLStore, logger *zerolog.Logger) (*Writer, error) {
	if artifacts == nil {
		return nil, errors.NewValidationError("artifacts", nil, "artifact store must not be nil")
	}
	if store == nil {
		return nil, errors.NewValidationError("store", nil, "sql store must not be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Writer{artifacts: artifacts, store: store, logger: logger}, nil
}

// Persist writes one run's change records for a date to both sinks.
// The returned result carries the per-sink outcome; the error return is
// non-nil only when neither sink committed.
func (w *Writer) Persist(ctx context.Context, date registry.Date, records []differ.ChangeRecord) (*PersistResult, error) {
	result := &PersistResult{
		Status:       StatusOK,
		ArtifactPath: w.artifacts.Path(date),
	}

	if err := w.artifacts.Write(ctx, date, records); err != nil {
		result.ArtifactErr = errors.NewPersistError("artifact", date.String(), err)
		w.logger.Error().Err(err).Str("date", date.String()).Msg("Artifact sink failed")
	} else {
		w.logger.Info().
			Str("date", date.String()).
			Int("records", len(records)).
			Str("path", result.ArtifactPath).
			Msg("Change artifact written")
	}

	inserted, err := w.store.Replace(ctx, date, records)
	if err != nil {
		result.StoreErr = errors.NewPersistError("store", date.String(), err)
		w.logger.Error().Err(err).Str("date", date.String()).Msg("Store sink failed")
	} else {
		result.Inserted = inserted
		w.logger.Info().
			Str("date", date.String()).
			Int("inserted", inserted).
			Msg("Change records stored")
	}

	switch {
	case result.ArtifactErr != nil && result.StoreErr != nil:
		result.Status = StatusFailed
		return result, result.Err()
	case result.ArtifactErr != nil || result.StoreErr != nil:
		result.Status = StatusPartial
		w.logger.Warn().Str("date", date.String()).Msg("Run persisted partially; retry is safe")
	}

	return result, nil
}
