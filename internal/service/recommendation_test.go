package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/probability"
	"github.com/yourusername/stall10n/internal/repository"
)

func TestRecomputeFromMorningLines(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	results, err := e.recs.Recompute(ctx, e.race.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)

	sum := 0.0
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.Nil(t, r.SourceInterval)
		assert.Greater(t, r.ImpliedProbability, 0.0)
		assert.NotEmpty(t, r.FairOdds)
		sum += r.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// The strongest attributes belong to program 1.
	assert.Equal(t, 1, results[0].ProgramNumber)
}

func TestRecomputeSupersedesAndPublishes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	pub := &MockPublisher{}
	pub.On("Publish", e.race.ID, mock.AnythingOfType("[]*models.ProbabilityResult")).Twice()
	e.recs.SetPublisher(pub)

	_, err := e.recs.Recompute(ctx, e.race.ID)
	require.NoError(t, err)

	snap := &models.OddsSnapshot{
		RaceID:        e.race.ID,
		EntryID:       e.entries[2].ID,
		ProgramNumber: 3,
		Interval:      models.Interval2MinBefore,
		CapturedAt:    postTime,
		RawOdds:       "20/1",
		DecimalOdds:   21.0,
	}
	require.NoError(t, e.repos.Snapshot.Save(ctx, snap))

	results, err := e.recs.Recompute(ctx, e.race.ID)
	require.NoError(t, err)
	require.NotNil(t, results[0].SourceInterval)
	assert.Equal(t, models.Interval2MinBefore, *results[0].SourceInterval)

	all, err := e.repos.Probability.GetAll(ctx, e.race.ID)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	superseded := 0
	for _, r := range all {
		if r.Superseded {
			superseded++
		}
	}
	assert.Equal(t, 3, superseded)

	var drifter *models.ProbabilityResult
	for _, r := range results {
		if r.ProgramNumber == 3 {
			drifter = r
		}
	}
	require.NotNil(t, drifter)
	// Priced at 20/1 the outsider's market share shrinks, so its edge grows.
	assert.Greater(t, drifter.Edge, 0.0)
	assert.Equal(t, 21.0, drifter.DecimalOdds)
	pub.AssertExpectations(t)
}

func TestLatestComputesOnDemand(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	first, err := e.recs.Latest(ctx, e.race.ID)
	require.NoError(t, err)
	require.Len(t, first, 3)

	again, err := e.recs.Latest(ctx, e.race.ID)
	require.NoError(t, err)
	assert.Equal(t, first[0].ComputedAt, again[0].ComputedAt)

	all, err := e.repos.Probability.GetAll(ctx, e.race.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3, "a stored table is reused")
}

func TestRecomputeEmptyField(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	repos := store.Repositories()
	engine, err := probability.NewEngine(probability.DefaultOptions())
	require.NoError(t, err)
	svc := NewRecommendationService(engine, repos.Entry, repos.Snapshot, repos.Probability, nil)

	race := &models.Race{RaceDate: postTime, Track: "Empty Park", RaceNumber: 1}
	require.NoError(t, repos.Race.Create(ctx, race))

	_, err = svc.Recompute(ctx, race.ID)
	assert.ErrorIs(t, err, probability.ErrEmptyField)
}
