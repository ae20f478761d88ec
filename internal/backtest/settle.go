package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/repository"
)

// Finish is one entry's official result. WinPayoff is the tote payoff on a
// $2 win ticket and is only meaningful for the winner.
type Finish struct {
	ProgramNumber  int              `json:"program_number"`
	FinishPosition int              `json:"finish_position"`
	WinPayoff      *decimal.Decimal `json:"win_payoff,omitempty"`
}

// Report is the settled performance over a post-time window
type Report struct {
	Metrics Metrics     `json:"metrics"`
	Bets    []Bet       `json:"bets"`
	Equity  EquityCurve `json:"equity"`
	Skipped int         `json:"skipped"`
}

// Settler records results and settles stored recommendations against them
type Settler struct {
	races    repository.RaceRepository
	entries  repository.EntryRepository
	results  repository.ProbabilityRepository
	bankroll float64
	logger   logrus.FieldLogger
}

// NewSettler creates a settler; bankroll seeds the equity curve
func NewSettler(
	races repository.RaceRepository,
	entries repository.EntryRepository,
	results repository.ProbabilityRepository,
	bankroll float64,
	logger logrus.FieldLogger,
) *Settler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Settler{
		races:    races,
		entries:  entries,
		results:  results,
		bankroll: bankroll,
		logger:   logger.WithField("component", "backtest"),
	}
}

// RecordResults attaches official finishes to a race's entries and marks an
// open race finished.
func (s *Settler) RecordResults(ctx context.Context, raceID uuid.UUID, finishes []Finish) error {
	race, err := s.races.GetByID(ctx, raceID)
	if err != nil {
		return err
	}
	entries, err := s.entries.GetByRaceID(ctx, raceID)
	if err != nil {
		return fmt.Errorf("failed to load entries: %w", err)
	}
	byNumber := make(map[int]*models.Entry, len(entries))
	for _, e := range entries {
		byNumber[e.ProgramNumber] = e
	}

	for _, f := range finishes {
		if f.FinishPosition < 1 {
			return fmt.Errorf("program number %d: finish position must be at least 1", f.ProgramNumber)
		}
		entry, ok := byNumber[f.ProgramNumber]
		if !ok {
			return fmt.Errorf("program number %d: %w", f.ProgramNumber, models.ErrNotFound)
		}
		if err := s.entries.AttachResult(ctx, entry.ID, f.FinishPosition, f.WinPayoff); err != nil {
			return fmt.Errorf("failed to attach result for #%d: %w", f.ProgramNumber, err)
		}
	}

	if !race.IsClosed() {
		if err := s.races.UpdateStatus(ctx, raceID, models.RaceStatusFinished); err != nil && !errors.Is(err, models.ErrRaceClosed) {
			return fmt.Errorf("failed to mark race finished: %w", err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"race_id": raceID,
		"results": len(finishes),
	}).Info("Race results recorded")
	return nil
}

// Evaluate settles the current recommendation table of every race posting
// in [from, to) that has results. Races without results or without a table
// are counted as skipped.
func (s *Settler) Evaluate(ctx context.Context, from, to time.Time) (*Report, error) {
	races, err := s.races.ListByPostTime(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}

	report := &Report{}
	var predictions []Prediction
	settled := 0

	for _, race := range races {
		bets, preds, ok, err := s.settleRace(ctx, race)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.Skipped++
			continue
		}
		settled++
		report.Bets = append(report.Bets, bets...)
		predictions = append(predictions, preds...)
	}

	report.Metrics, report.Equity = CalculateMetrics(report.Bets, predictions, settled, s.bankroll, from, to)

	s.logger.WithFields(logrus.Fields{
		"races":      settled,
		"skipped":    report.Skipped,
		"bets":       report.Metrics.TotalBets,
		"net_profit": report.Metrics.NetProfit,
		"roi":        report.Metrics.ROI,
	}).Info("Backtest evaluated")
	return report, nil
}

func (s *Settler) settleRace(ctx context.Context, race *models.Race) ([]Bet, []Prediction, bool, error) {
	entries, err := s.entries.GetByRaceID(ctx, race.ID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load entries: %w", err)
	}
	finished := make(map[uuid.UUID]*models.Entry, len(entries))
	for _, e := range entries {
		if e.HasResult() {
			finished[e.ID] = e
		}
	}
	if len(finished) == 0 {
		return nil, nil, false, nil
	}

	table, err := s.results.GetCurrent(ctx, race.ID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load recommendations: %w", err)
	}
	if len(table) == 0 {
		return nil, nil, false, nil
	}

	var bets []Bet
	var preds []Prediction
	for _, r := range table {
		entry := finished[r.EntryID]
		won := entry != nil && *entry.FinishPosition == 1
		preds = append(preds, Prediction{Probability: r.Probability, Won: won, Rank: r.Rank})

		if r.Stake <= 0 {
			continue
		}
		bet := Bet{
			RaceID:        race.ID,
			ProgramNumber: r.ProgramNumber,
			Probability:   r.Probability,
			Stake:         r.Stake,
			Won:           won,
		}
		if race.PostTime != nil {
			bet.PostTime = *race.PostTime
		}
		switch {
		case r.DecimalOdds > 1:
			bet.DecimalOdds = r.DecimalOdds
		case r.ImpliedProbability > 0:
			// tables stored before market odds were recorded
			bet.DecimalOdds = 1 / r.ImpliedProbability
		}
		if won {
			bet.Return = winReturn(r.Stake, bet.DecimalOdds, entry.WinPayoff)
		}
		bet.ProfitLoss = roundCents(bet.Return - bet.Stake)
		bets = append(bets, bet)
	}
	return bets, preds, true, nil
}

// winReturn pays a winning stake at the tote payoff when known, otherwise
// at the market odds the recommendation was priced from.
func winReturn(stake, decimalOdds float64, payoff *decimal.Decimal) float64 {
	if payoff != nil && payoff.IsPositive() {
		return decimal.NewFromFloat(stake).Mul(*payoff).Div(decimal.NewFromInt(2)).Round(2).InexactFloat64()
	}
	return roundCents(stake * decimalOdds)
}
