package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/logger"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/probability"
	"github.com/yourusername/stall10n/internal/repository"
)

// Publisher receives every recomputed table
type Publisher interface {
	Publish(raceID uuid.UUID, results []*models.ProbabilityResult)
}

// RecommendationService turns entries and latest odds into a ranked table
type RecommendationService struct {
	engine    *probability.Engine
	entries   repository.EntryRepository
	snapshots repository.SnapshotRepository
	results   repository.ProbabilityRepository
	logger    *logger.RecommendationLogger
	now       func() time.Time

	mu        sync.RWMutex
	publisher Publisher
}

// NewRecommendationService creates a recommendation service
func NewRecommendationService(
	engine *probability.Engine,
	entries repository.EntryRepository,
	snapshots repository.SnapshotRepository,
	results repository.ProbabilityRepository,
	log *logger.RecommendationLogger,
) *RecommendationService {
	if log == nil {
		log = logger.NewRecommendationLogger(logrus.StandardLogger())
	}
	return &RecommendationService{
		engine:    engine,
		entries:   entries,
		snapshots: snapshots,
		results:   results,
		logger:    log,
		now:       time.Now,
	}
}

// SetPublisher installs the live update sink
func (s *RecommendationService) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Recompute ranks the race's field and replaces its current table
func (s *RecommendationService) Recompute(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	start := time.Now()

	entries, err := s.entries.GetByRaceID(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	latest, err := s.snapshots.GetLatest(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest odds: %w", err)
	}

	field, source := probability.BuildField(entries, latest)
	recs, err := s.engine.Rank(field)
	if err != nil {
		return nil, fmt.Errorf("failed to rank race %s: %w", raceID, err)
	}

	computedAt := s.now().UTC()
	results := make([]*models.ProbabilityResult, 0, len(recs))
	withEdge := 0
	for _, rec := range recs {
		res := &models.ProbabilityResult{
			RaceID:             raceID,
			EntryID:            rec.EntryID,
			ProgramNumber:      rec.ProgramNumber,
			Probability:        rec.Probability,
			Components:         rec.Components,
			ImpliedProbability: rec.ImpliedProbability,
			DecimalOdds:        rec.DecimalOdds,
			Edge:               rec.Edge,
			Stake:              rec.Stake,
			ExpectedValue:      rec.ExpectedValue,
			FairOdds:           rec.FairOdds,
			Rank:               rec.Rank,
			SourceInterval:     source,
			ComputedAt:         computedAt,
		}
		if res.HasEdge() {
			withEdge++
		}
		results = append(results, res)
	}

	if err := s.results.SaveResults(ctx, raceID, results); err != nil {
		return nil, fmt.Errorf("failed to save probability table: %w", err)
	}

	sourceLabel := "morning_line"
	if source != nil {
		sourceLabel = source.String()
	}
	metrics.RecordRecompute(raceID.String(), withEdge)
	s.logger.LogTableComputed(raceID.String(), sourceLabel, len(results), withEdge, time.Since(start).Milliseconds())
	for _, res := range results {
		if res.Stake > 0 {
			s.logger.LogRecommendation(raceID.String(), res.ProgramNumber, res.Probability, res.ImpliedProbability, res.Edge, res.Stake)
		}
	}

	s.mu.RLock()
	pub := s.publisher
	s.mu.RUnlock()
	if pub != nil {
		pub.Publish(raceID, results)
	}

	return results, nil
}

// Latest returns the race's current table, computing one if none exists
func (s *RecommendationService) Latest(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	current, err := s.results.GetCurrent(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load probability table: %w", err)
	}
	if len(current) > 0 {
		return current, nil
	}
	return s.Recompute(ctx, raceID)
}

// All returns every stored table row for the race, superseded ones included
func (s *RecommendationService) All(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	results, err := s.results.GetAll(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load probability history: %w", err)
	}
	return results, nil
}
