package probability

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stall10n/internal/config"
	"github.com/yourusername/stall10n/internal/models"
)

func uniform(v float64) models.FactorScores {
	return models.FactorScores{Form: v, Class: v, Connections: v, Speed: v, Conditions: v, Fitness: v}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(DefaultOptions())
	require.NoError(t, err)
	return engine
}

func sumProbabilities(recs []Recommendation) float64 {
	var total float64
	for _, r := range recs {
		total += r.Probability
	}
	return total
}

func TestDefaultWeightsAreValid(t *testing.T) {
	w := DefaultWeights()
	require.NoError(t, w.Validate())
	assert.InDelta(t, 1.0, w.Sum(), 1e-12)
	assert.Len(t, w.AsMap(), 6)
}

func TestWeightsValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Weights)
	}{
		{"sum above one", func(w *Weights) { w.Fitness = 0.30 }},
		{"sum below one", func(w *Weights) { w.Form = 0.10 }},
		{"negative weight", func(w *Weights) { w.Form, w.Class = -0.05, 0.50 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			tt.mutate(&w)
			err := w.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrConfiguration)

			_, err = NewEngine(Options{Weights: w})
			assert.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}

func TestWeightsWithinTolerance(t *testing.T) {
	w := DefaultWeights()
	w.Fitness += 5e-7
	assert.NoError(t, w.Validate())
}

func TestRankStrongerRunnerWins(t *testing.T) {
	engine := newEngine(t)
	a := Runner{EntryID: uuid.New(), ProgramNumber: 1, Scores: uniform(0.5)}
	b := Runner{EntryID: uuid.New(), ProgramNumber: 2, Scores: uniform(0.8)}

	recs, err := engine.Rank([]Runner{a, b})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 2, recs[0].ProgramNumber)
	assert.InDelta(t, 0.8, recs[0].RawScore, 1e-9)
	assert.InDelta(t, 0.5, recs[1].RawScore, 1e-9)
	assert.Greater(t, recs[0].Probability, recs[1].Probability)
	assert.InDelta(t, 1.0, sumProbabilities(recs), 1e-9)
	assert.Equal(t, 1, recs[0].Rank)
	assert.Equal(t, 2, recs[1].Rank)
}

func TestRankSingleRunner(t *testing.T) {
	recs, err := newEngine(t).Rank([]Runner{{ProgramNumber: 4, Scores: uniform(0.3)}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1.0, recs[0].Probability)
	assert.Equal(t, "1/2", recs[0].FairOdds)
}

func TestRankAllZeroRunnerGetsFloor(t *testing.T) {
	recs, err := newEngine(t).Rank([]Runner{
		{ProgramNumber: 1, Scores: uniform(0.6)},
		{ProgramNumber: 2, Scores: models.FactorScores{}},
	})
	require.NoError(t, err)

	last := recs[1]
	assert.Equal(t, 2, last.ProgramNumber)
	assert.Greater(t, last.Probability, 0.0)
	assert.InDelta(t, DefaultProbabilityFloor, last.RawScore, 1e-12)
	assert.InDelta(t, 1.0, sumProbabilities(recs), 1e-9)
}

func TestRankTiesBreakOnProgramNumber(t *testing.T) {
	recs, err := newEngine(t).Rank([]Runner{
		{ProgramNumber: 7, Scores: uniform(0.5)},
		{ProgramNumber: 3, Scores: uniform(0.5)},
		{ProgramNumber: 5, Scores: uniform(0.5)},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 5, 7}, []int{recs[0].ProgramNumber, recs[1].ProgramNumber, recs[2].ProgramNumber})
}

func TestRankRejectsBadFields(t *testing.T) {
	engine := newEngine(t)

	_, err := engine.Rank(nil)
	assert.ErrorIs(t, err, ErrEmptyField)

	_, err = engine.Rank([]Runner{{ProgramNumber: 1}, {ProgramNumber: 1}})
	assert.ErrorIs(t, err, ErrDuplicateProgram)
}

func TestRankRemovesOverround(t *testing.T) {
	// 2/1 and 4/6 carry 1/3 + 3/5 implied before normalizing
	recs, err := newEngine(t).Rank([]Runner{
		{ProgramNumber: 1, Scores: uniform(0.5), DecimalOdds: 3.0},
		{ProgramNumber: 2, Scores: uniform(0.5), DecimalOdds: 5.0 / 3.0},
	})
	require.NoError(t, err)

	var implied float64
	for _, r := range recs {
		implied += r.ImpliedProbability
		assert.InDelta(t, r.Probability-r.ImpliedProbability, r.Edge, 1e-12)
	}
	assert.InDelta(t, 1.0, implied, 1e-9)
	assert.Equal(t, 3.0, recs[0].DecimalOdds, "the market price is kept alongside the normalized probability")
}

func TestRankUnpricedRunnerHasNoEdge(t *testing.T) {
	recs, err := newEngine(t).Rank([]Runner{
		{ProgramNumber: 1, Scores: uniform(0.9), DecimalOdds: 4.0},
		{ProgramNumber: 2, Scores: uniform(0.9)},
	})
	require.NoError(t, err)

	unpriced := recs[1]
	assert.Equal(t, 2, unpriced.ProgramNumber)
	assert.Zero(t, unpriced.ImpliedProbability)
	assert.Zero(t, unpriced.Edge)
	assert.Zero(t, unpriced.Stake)
}

func TestStakeSizing(t *testing.T) {
	engine := newEngine(t)

	// p=0.4 at 4.0: kelly = (3*0.4-0.6)/3 = 0.2, quarter = 0.05, at the cap
	assert.Equal(t, 50.0, engine.Stake(0.4, 4.0))

	// p=0.3 at 4.0: kelly = (0.9-0.7)/3 = 0.0667, quarter = 0.01667
	assert.Equal(t, 16.67, engine.Stake(0.3, 4.0))

	// p=0.9 at 3.0 is capped at 5% of bankroll
	assert.Equal(t, 50.0, engine.Stake(0.9, 3.0))

	// negative kelly
	assert.Zero(t, engine.Stake(0.2, 4.0))

	// below min stake: kelly = (3*0.2505-0.7495)/3 ~ 0.00067, quarter ~ 0.00017 -> 0.17
	assert.Zero(t, engine.Stake(0.2505, 4.0))

	assert.Zero(t, engine.Stake(0.5, 1.0))
}

func TestRankNoStakeWithoutEdge(t *testing.T) {
	recs, err := newEngine(t).Rank([]Runner{
		{ProgramNumber: 1, Scores: uniform(0.5), DecimalOdds: 1.5},
		{ProgramNumber: 2, Scores: uniform(0.5), DecimalOdds: 3.0},
	})
	require.NoError(t, err)

	for _, r := range recs {
		if r.Edge <= 0 {
			assert.Zero(t, r.Stake, "program %d", r.ProgramNumber)
		}
	}
	// program 1 is favored by the market beyond its 50% chance
	fav := recs[0]
	assert.Equal(t, 1, fav.ProgramNumber)
	assert.Less(t, fav.Edge, 0.0)
	assert.Zero(t, fav.Stake)
}

func TestFairOdds(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0.8, "1/2"},
		{0.5, "1/1"},
		{1.0 / 6.0, "5/1"},
		{0.1, "9/1"},
		{0.01, "99/1"},
		{0, "99/1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FairOdds(tt.p), "p=%v", tt.p)
	}
}

func TestExpectedValue(t *testing.T) {
	assert.InDelta(t, 0.0, ExpectedValue(0.25, 4.0), 1e-12)
	assert.InDelta(t, 0.2, ExpectedValue(0.3, 4.0), 1e-12)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(&config.EngineConfig{
		Weights:          config.WeightsConfig{Form: 0.25, Class: 0.20, Connections: 0.15, Speed: 0.20, Conditions: 0.10, Fitness: 0.10},
		Bankroll:         500,
		KellyFraction:    0.5,
		MaxBetFraction:   0.1,
		MinStake:         1,
		ProbabilityFloor: 0.002,
	})
	assert.Equal(t, DefaultWeights(), opts.Weights)
	assert.Equal(t, 500.0, opts.Stake.Bankroll)
	assert.Equal(t, 0.002, opts.ProbabilityFloor)
}
