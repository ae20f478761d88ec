package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/repository"
)

var post = time.Date(2026, 7, 4, 17, 45, 0, 0, time.UTC)

type env struct {
	repos   *repository.Repositories
	settler *Settler
	hook    *test.Hook
}

func newEnv(t *testing.T) env {
	t.Helper()
	log, hook := test.NewNullLogger()
	repos := repository.NewMemoryStore().Repositories()
	return env{
		repos:   repos,
		settler: NewSettler(repos.Race, repos.Entry, repos.Probability, 100, log),
		hook:    hook,
	}
}

func (e env) race(t *testing.T, number int, postTime time.Time, runners int) (*models.Race, []*models.Entry) {
	t.Helper()
	ctx := context.Background()
	pt := postTime
	race := &models.Race{
		RaceDate:   postTime.Truncate(24 * time.Hour),
		Track:      "Del Mar",
		RaceNumber: number,
		PostTime:   &pt,
		Status:     models.RaceStatusInProgress,
	}
	require.NoError(t, e.repos.Race.Create(ctx, race))

	var entries []*models.Entry
	for i := 1; i <= runners; i++ {
		entry := &models.Entry{RaceID: race.ID, ProgramNumber: i, Name: "Horse " + string(rune('A'+i-1))}
		require.NoError(t, e.repos.Entry.Create(ctx, entry))
		entries = append(entries, entry)
	}
	return race, entries
}

func (e env) table(t *testing.T, race *models.Race, entries []*models.Entry) {
	t.Helper()
	rows := []struct {
		p, implied, stake float64
	}{
		{0.5, 0.4, 10},
		{0.3, 0.25, 5},
		{0.2, 0.35, 0},
	}
	var results []*models.ProbabilityResult
	for i, row := range rows {
		results = append(results, &models.ProbabilityResult{
			EntryID:            entries[i].ID,
			ProgramNumber:      entries[i].ProgramNumber,
			Probability:        row.p,
			ImpliedProbability: row.implied,
			Stake:              row.stake,
			Rank:               i + 1,
		})
	}
	require.NoError(t, e.repos.Probability.SaveResults(context.Background(), race.ID, results))
}

func TestRecordResults(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	race, _ := e.race(t, 4, post, 3)

	payoff := decimal.RequireFromString("6.20")
	require.NoError(t, e.settler.RecordResults(ctx, race.ID, []Finish{
		{ProgramNumber: 1, FinishPosition: 1, WinPayoff: &payoff},
		{ProgramNumber: 2, FinishPosition: 2},
	}))

	got, err := e.repos.Race.GetByID(ctx, race.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusFinished, got.Status)

	entries, err := e.repos.Entry.GetByRaceID(ctx, race.ID)
	require.NoError(t, err)
	require.NotNil(t, entries[0].FinishPosition)
	assert.Equal(t, 1, *entries[0].FinishPosition)
	assert.True(t, entries[0].WinPayoff.Equal(payoff))
	assert.False(t, entries[2].HasResult())

	assert.Equal(t, "Race results recorded", e.hook.LastEntry().Message)

	// Recording again on a finished race is allowed.
	require.NoError(t, e.settler.RecordResults(ctx, race.ID, []Finish{{ProgramNumber: 3, FinishPosition: 3}}))
}

func TestRecordResultsRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	race, _ := e.race(t, 4, post, 2)

	err := e.settler.RecordResults(ctx, race.ID, []Finish{{ProgramNumber: 9, FinishPosition: 1}})
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = e.settler.RecordResults(ctx, race.ID, []Finish{{ProgramNumber: 1, FinishPosition: 0}})
	assert.Error(t, err)

	_, err = e.repos.Race.GetByID(ctx, race.ID)
	require.NoError(t, err)
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	settledRace, settledEntries := e.race(t, 4, post, 3)
	e.table(t, settledRace, settledEntries)
	payoff := decimal.RequireFromString("6.20")
	require.NoError(t, e.settler.RecordResults(ctx, settledRace.ID, []Finish{
		{ProgramNumber: 1, FinishPosition: 1, WinPayoff: &payoff},
		{ProgramNumber: 2, FinishPosition: 2},
		{ProgramNumber: 3, FinishPosition: 3},
	}))

	// Same day, no results yet.
	openRace, openEntries := e.race(t, 5, post.Add(30*time.Minute), 3)
	e.table(t, openRace, openEntries)

	// Next day, outside the window.
	nextDay, nextEntries := e.race(t, 1, post.Add(24*time.Hour), 3)
	e.table(t, nextDay, nextEntries)
	require.NoError(t, e.settler.RecordResults(ctx, nextDay.ID, []Finish{{ProgramNumber: 3, FinishPosition: 1}}))

	from := post.Truncate(24 * time.Hour)
	report, err := e.settler.Evaluate(ctx, from, from.Add(24*time.Hour))
	require.NoError(t, err)

	m := report.Metrics
	assert.Equal(t, 1, m.Races)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Bets, 2, "zero-stake rows are not bets")

	win := report.Bets[0]
	assert.Equal(t, 1, win.ProgramNumber)
	assert.True(t, win.Won)
	assert.Equal(t, 31.0, win.Return)
	assert.Equal(t, 21.0, win.ProfitLoss)
	assert.InDelta(t, 2.5, win.DecimalOdds, 1e-9)

	assert.Equal(t, -5.0, report.Bets[1].ProfitLoss)
	assert.Equal(t, 15.0, m.TotalStaked)
	assert.Equal(t, 16.0, m.NetProfit)
	assert.InDelta(t, 16.0/15.0, m.ROI, 1e-9)
	assert.InDelta(t, 5.0/121.0, m.MaxDrawdown, 1e-9)
	assert.Equal(t, 116.0, report.Equity.Final())
	assert.InDelta(t, 0.38/3, m.BrierScore, 1e-9)
	assert.Equal(t, 1.0, m.TopPickWinRate)

	console := GenerateConsoleReport(report)
	assert.Contains(t, console, "Races Settled: 1 (skipped 1)")
	assert.Contains(t, console, "Net Profit: 16.00")

	path := filepath.Join(t.TempDir(), "out", "bets.csv")
	require.NoError(t, GenerateCSVExport(report, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), ",1,0.5000,2.50,10.00,true,31.00,21.00\n")
}

func TestEvaluateSettlesAtMarketOdds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	// two 4/5 shots: the book is 111% and each fair price is 2.0
	race, entries := e.race(t, 6, post, 2)
	require.NoError(t, e.repos.Probability.SaveResults(ctx, race.ID, []*models.ProbabilityResult{
		{EntryID: entries[0].ID, ProgramNumber: 1, Probability: 0.6, ImpliedProbability: 0.5, DecimalOdds: 1.8, Stake: 10, Rank: 1},
		{EntryID: entries[1].ID, ProgramNumber: 2, Probability: 0.4, ImpliedProbability: 0.5, DecimalOdds: 1.8, Rank: 2},
	}))
	require.NoError(t, e.settler.RecordResults(ctx, race.ID, []Finish{
		{ProgramNumber: 1, FinishPosition: 1},
		{ProgramNumber: 2, FinishPosition: 2},
	}))

	from := post.Truncate(24 * time.Hour)
	report, err := e.settler.Evaluate(ctx, from, from.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, report.Bets, 1)

	bet := report.Bets[0]
	assert.InDelta(t, 1.8, bet.DecimalOdds, 1e-9)
	assert.Equal(t, 18.0, bet.Return)
	assert.Equal(t, 8.0, bet.ProfitLoss)
}
