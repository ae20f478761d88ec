package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/logger"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/oddsfeed"
	"github.com/yourusername/stall10n/internal/repository"
)

// OddsFetcher fetches live odds, bypassing any read cache
type OddsFetcher interface {
	FetchFresh(ctx context.Context, externalRaceID string, interval models.IntervalLabel) (*oddsfeed.RaceOdds, error)
	Name() string
}

// Recomputer rebuilds a race's probability table
type Recomputer interface {
	Recompute(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error)
}

// CaptureService fetches one interval of odds for a race and stores it
type CaptureService struct {
	fetcher    OddsFetcher
	entries    repository.EntryRepository
	snapshots  repository.SnapshotRepository
	recomputer Recomputer
	validator  *DataValidator
	stats      *CaptureStats
	logger     *logger.CaptureLogger
	now        func() time.Time
}

// NewCaptureService creates a capture service; recomputer may be nil
func NewCaptureService(
	fetcher OddsFetcher,
	entries repository.EntryRepository,
	snapshots repository.SnapshotRepository,
	recomputer Recomputer,
	log *logger.CaptureLogger,
) *CaptureService {
	if log == nil {
		log = logger.NewCaptureLogger(logrus.StandardLogger())
	}
	return &CaptureService{
		fetcher:    fetcher,
		entries:    entries,
		snapshots:  snapshots,
		recomputer: recomputer,
		validator:  NewDataValidator(log),
		stats:      NewCaptureStats(),
		logger:     log,
		now:        time.Now,
	}
}

// Stats returns running capture totals
func (s *CaptureService) Stats() CaptureStatsSnapshot {
	return s.stats.Snapshot()
}

// Capture fetches the race's odds and stores one snapshot per matched entry.
// It returns models.ErrDuplicateSnapshot without fetching when the interval
// is already stored, and after fetching when every row already existed.
func (s *CaptureService) Capture(ctx context.Context, race *models.Race, interval models.IntervalLabel) (models.CaptureResult, error) {
	var result models.CaptureResult

	if !interval.IsValid() {
		return result, fmt.Errorf("%w: %q", models.ErrInvalidInterval, interval)
	}
	if race.ExternalID == "" {
		return result, fmt.Errorf("race %s has no provider race id: %w", race.ID, models.ErrInvalidID)
	}

	start := time.Now()
	raceID := race.ID.String()

	// a stored interval never needs a second provider call
	exists, err := s.snapshots.Exists(ctx, race.ID, interval)
	if err != nil {
		s.stats.RecordError()
		return result, fmt.Errorf("failed to check existing snapshots: %w", err)
	}
	if exists {
		s.logger.LogDuplicate(raceID, interval.String())
		return result, models.ErrDuplicateSnapshot
	}

	odds, err := s.fetcher.FetchFresh(ctx, race.ExternalID, interval)
	if err != nil {
		s.stats.RecordError()
		return result, fmt.Errorf("failed to fetch odds for race %s: %w", raceID, err)
	}

	entries, err := s.entries.GetByRaceID(ctx, race.ID)
	if err != nil {
		s.stats.RecordError()
		return result, fmt.Errorf("failed to load entries: %w", err)
	}
	byNumber := make(map[int]*models.Entry, len(entries))
	for _, e := range entries {
		byNumber[e.ProgramNumber] = e
	}

	for _, m := range odds.Malformed {
		s.logger.LogMalformedEntry(raceID, m.Number, m.Raw, m.Reason)
		result.Malformed++
	}

	capturedAt := s.now().UTC()
	snaps := make([]*models.OddsSnapshot, 0, len(odds.Runners))
	for _, runner := range odds.Runners {
		entry, ok := byNumber[runner.ProgramNumber]
		if !ok {
			s.logger.WithFields(logrus.Fields{
				"race_id":        raceID,
				"program_number": runner.ProgramNumber,
				"name":           runner.Name,
			}).Warn("Provider runner has no matching entry")
			result.Unmatched++
			continue
		}

		snap := &models.OddsSnapshot{
			RaceID:        race.ID,
			EntryID:       entry.ID,
			ProgramNumber: runner.ProgramNumber,
			Interval:      interval,
			CapturedAt:    capturedAt,
			RawOdds:       runner.RawOdds,
			DecimalOdds:   runner.DecimalOdds,
			PoolSize:      runner.PoolSize,
		}
		if problems := s.validator.ValidateSnapshot(snap); len(problems) > 0 {
			s.stats.RecordValidationError()
			s.logger.WithFields(logrus.Fields{
				"race_id":        raceID,
				"program_number": runner.ProgramNumber,
				"problems":       problems,
			}).Warn("Snapshot failed validation")
			result.Malformed++
			continue
		}
		snaps = append(snaps, snap)
	}

	if len(snaps) == 0 {
		s.stats.RecordError()
		return result, oddsfeed.NewFeedError(s.fetcher.Name(), oddsfeed.ErrCodeInvalidData,
			fmt.Sprintf("no provider runner matched the %d entries of race %s", len(entries), raceID), nil)
	}

	batch, err := s.snapshots.SaveBatch(ctx, snaps)
	if err != nil {
		s.stats.RecordError()
		return result, fmt.Errorf("failed to store snapshots: %w", err)
	}
	result.Stored = batch.Stored
	result.Duplicates = batch.Duplicates

	s.stats.RecordCapture(result.Stored, result.Duplicates, result.Malformed, result.Unmatched, capturedAt)
	metrics.RecordSnapshotsStored(interval.String(), result.Stored)

	if result.IsDuplicate() {
		s.logger.LogDuplicate(raceID, interval.String())
		return result, models.ErrDuplicateSnapshot
	}
	s.logger.LogSnapshotCaptured(raceID, interval.String(), result.Stored, result.Duplicates, result.Malformed, time.Since(start))

	if s.recomputer != nil {
		if _, err := s.recomputer.Recompute(ctx, race.ID); err != nil {
			s.logger.WithError(err).WithField("race_id", raceID).Warn("Recompute after capture failed")
		}
	}

	return result, nil
}
