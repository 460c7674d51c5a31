// Package query serves read access over the accumulated change
// history: range and key lookups plus aggregated summaries. The SQL
// store is the primary path; when it is empty or unavailable the
// service falls back to scanning the flat per-date artifacts, with
// identical aggregate results for the same underlying data.
package query

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/regdelta/regdelta/pkg/changelog"
	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/logging"
	"github.com/regdelta/regdelta/pkg/registry"
)

// KindCounts tallies change records by kind.
type KindCounts struct {
	New      int `json:"new"`
	Modified int `json:"modified"`
	Deleted  int `json:"deleted"`
}

// Total returns the sum across kinds.
func (k KindCounts) Total() int {
	return k.New + k.Modified + k.Deleted
}

// Summary aggregates change history over a date window. It is derived
// from stored change records at query time and never persisted.
type Summary struct {
	From   registry.Date         `json:"from"`
	To     registry.Date         `json:"to"`
	Totals KindCounts            `json:"totals"`
	ByDate map[string]KindCounts `json:"by_date"`
}

// Service answers queries over the accumulated change history.
type Service struct {
	store     *changelog.SQLStore
	artifacts *changelog.ArtifactStore
	logger    *zerolog.Logger
}

// NewService creates a query service. The SQL store may be nil, in
// which case every query takes the artifact fallback path.
func NewService(store *changelog.SQLStore, artifacts *changelog.ArtifactStore, logger *zerolog.Logger) (*Service, error) {
	if artifacts == nil {
		return nil, errors.NewValidationError("artifacts", nil, "artifact store must not be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, artifacts: artifacts, logger: logger}, nil
}

// ByDateRange returns all change records with change_date in [from, to],
// ordered by (date, kind, key).
func (s *Service) ByDateRange(ctx context.Context, from, to registry.Date) ([]differ.ChangeRecord, error) {
	if to.Before(from) {
		return nil, errors.NewValidationError("range", nil, "end date precedes start date")
	}

	if s.store != nil {
		records, err := s.store.ByDateRange(ctx, from, to)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("Change store unavailable, scanning artifacts")
		}
	}

	return s.scanArtifacts(ctx, from, to, "")
}

// ByKey returns the full change history of one key, most recent first.
func (s *Service) ByKey(ctx context.Context, key string) ([]differ.ChangeRecord, error) {
	if key == "" {
		return nil, errors.NewValidationError("key", key, "key must not be empty")
	}

	if s.store != nil {
		records, err := s.store.ByKey(ctx, key)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("Change store unavailable, scanning artifacts")
		}
	}

	records, err := s.scanArtifacts(ctx, registry.Date{}, registry.Date{}, key)
	if err != nil {
		return nil, err
	}
	// Most recent first, matching the primary path.
	sort.SliceStable(records, func(i, j int) bool {
		return records[j].Date.Before(records[i].Date)
	})
	return records, nil
}

// Latest returns the most recent change records, up to limit.
func (s *Service) Latest(ctx context.Context, limit int) ([]differ.ChangeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	if s.store != nil {
		records, err := s.store.Recent(ctx, limit)
		if err == nil && len(records) > 0 {
			return records, nil
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("Change store unavailable, scanning artifacts")
		}
	}

	dates, err := s.artifacts.Dates()
	if err != nil {
		return nil, err
	}

	var out []differ.ChangeRecord
	for i := len(dates) - 1; i >= 0 && len(out) < limit; i-- {
		records, err := s.artifacts.Read(ctx, dates[i])
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if len(out) == limit {
				break
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// Summarize aggregates the last windowDays of change history ending
// today.
func (s *Service) Summarize(ctx context.Context, windowDays int) (*Summary, error) {
	if windowDays <= 0 {
		return nil, errors.NewValidationError("windowDays", windowDays, "window must be positive")
	}
	to := registry.Today()
	from := to.AddDays(-windowDays)
	return s.SummarizeRange(ctx, from, to)
}

// SummarizeRange aggregates change history over [from, to].
func (s *Service) SummarizeRange(ctx context.Context, from, to registry.Date) (*Summary, error) {
	records, err := s.ByDateRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return summarize(from, to, records), nil
}

// summarize is the single aggregation used by both the primary and the
// fallback path, so their results cannot drift apart.
func summarize(from, to registry.Date, records []differ.ChangeRecord) *Summary {
	s := &Summary{
		From:   from,
		To:     to,
		ByDate: make(map[string]KindCounts),
	}

	for _, rec := range records {
		day := s.ByDate[rec.Date.String()]
		switch rec.Kind {
		case differ.KindNew:
			s.Totals.New++
			day.New++
		case differ.KindModified:
			s.Totals.Modified++
			day.Modified++
		case differ.KindDeleted:
			s.Totals.Deleted++
			day.Deleted++
		}
		s.ByDate[rec.Date.String()] = day
	}
	return s
}

// scanArtifacts reads per-date artifacts, optionally bounded by a date
// window (zero dates mean unbounded) and filtered by key.
func (s *Service) scanArtifacts(ctx context.Context, from, to registry.Date, key string) ([]differ.ChangeRecord, error) {
	dates, err := s.artifacts.Dates()
	if err != nil {
		return nil, err
	}

	var out []differ.ChangeRecord
	for _, date := range dates {
		if !from.IsZero() && date.Before(from) {
			continue
		}
		if !to.IsZero() && date.After(to) {
			continue
		}

		records, err := s.artifacts.Read(ctx, date)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		for _, rec := range records {
			if key != "" && rec.Key != key {
				continue
			}
			out = append(out, rec)
		}
	}

	// Match the primary path's (date, kind, key) ordering.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})

	return out, nil
}
