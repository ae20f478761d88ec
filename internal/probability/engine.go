package probability

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourusername/stall10n/internal/config"
	"github.com/yourusername/stall10n/internal/models"
)

// DefaultProbabilityFloor keeps an all-zero runner in the field
const DefaultProbabilityFloor = 0.001

var (
	// ErrEmptyField is returned when there is nothing to rank
	ErrEmptyField = errors.New("field has no runners")
	// ErrDuplicateProgram is returned when two runners share a program number
	ErrDuplicateProgram = errors.New("duplicate program number in field")
)

// StakeConfig sizes stakes as a capped fraction of Kelly
type StakeConfig struct {
	Bankroll       float64
	KellyFraction  float64
	MaxBetFraction float64
	MinStake       float64
}

// Options configures an Engine
type Options struct {
	Weights          Weights
	Stake            StakeConfig
	ProbabilityFloor float64
}

// DefaultOptions returns default weights with quarter Kelly capped at 5% of a 1000 bankroll
func DefaultOptions() Options {
	return Options{
		Weights: DefaultWeights(),
		Stake: StakeConfig{
			Bankroll:       1000,
			KellyFraction:  0.25,
			MaxBetFraction: 0.05,
			MinStake:       2.0,
		},
		ProbabilityFloor: DefaultProbabilityFloor,
	}
}

// OptionsFromConfig maps engine configuration
func OptionsFromConfig(cfg *config.EngineConfig) Options {
	return Options{
		Weights: WeightsFromConfig(cfg.Weights),
		Stake: StakeConfig{
			Bankroll:       cfg.Bankroll,
			KellyFraction:  cfg.KellyFraction,
			MaxBetFraction: cfg.MaxBetFraction,
			MinStake:       cfg.MinStake,
		},
		ProbabilityFloor: cfg.ProbabilityFloor,
	}
}

// Runner is one entry's input to the engine. DecimalOdds is zero when the
// entry has no market price.
type Runner struct {
	EntryID       uuid.UUID
	ProgramNumber int
	Scores        models.FactorScores
	DecimalOdds   float64
}

// Recommendation is one ranked row of the output table
type Recommendation struct {
	EntryID            uuid.UUID           `json:"entry_id"`
	ProgramNumber      int                 `json:"program_number"`
	Components         models.FactorScores `json:"components"`
	RawScore           float64             `json:"raw_score"`
	Probability        float64             `json:"probability"`
	ImpliedProbability float64             `json:"implied_probability"`
	DecimalOdds        float64             `json:"decimal_odds"`
	Edge               float64             `json:"edge"`
	Stake              float64             `json:"stake"`
	ExpectedValue      float64             `json:"expected_value"`
	FairOdds           string              `json:"fair_odds"`
	Rank               int                 `json:"rank"`
}

// Engine ranks a field. It is stateless and safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine validates options and creates an engine
func NewEngine(opts Options) (*Engine, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.ProbabilityFloor <= 0 {
		opts.ProbabilityFloor = DefaultProbabilityFloor
	}
	s := opts.Stake
	if s.Bankroll < 0 || s.KellyFraction < 0 || s.KellyFraction > 1 || s.MaxBetFraction < 0 || s.MaxBetFraction > 1 || s.MinStake < 0 {
		return nil, &config.ConfigurationError{Field: "engine", Message: "stake settings out of range"}
	}
	return &Engine{opts: opts}, nil
}

// Options returns the engine's configuration
func (e *Engine) Options() Options {
	return e.opts
}

// Rank scores, normalizes, prices and orders the field. Probabilities sum
// to 1.0; ties are broken by the lower program number.
func (e *Engine) Rank(field []Runner) ([]Recommendation, error) {
	if len(field) == 0 {
		return nil, ErrEmptyField
	}

	seen := make(map[int]bool, len(field))
	recs := make([]Recommendation, len(field))
	var scoreTotal, impliedTotal float64

	for i, r := range field {
		if seen[r.ProgramNumber] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateProgram, r.ProgramNumber)
		}
		seen[r.ProgramNumber] = true

		raw := e.opts.Weights.Score(r.Scores)
		if raw < e.opts.ProbabilityFloor {
			raw = e.opts.ProbabilityFloor
		}
		scoreTotal += raw

		recs[i] = Recommendation{
			EntryID:       r.EntryID,
			ProgramNumber: r.ProgramNumber,
			Components:    r.Scores,
			RawScore:      raw,
		}
		if r.DecimalOdds > 1 {
			impliedTotal += 1 / r.DecimalOdds
		}
	}

	for i := range recs {
		rec := &recs[i]
		if len(recs) == 1 {
			rec.Probability = 1.0
		} else {
			rec.Probability = rec.RawScore / scoreTotal
		}
		rec.FairOdds = FairOdds(rec.Probability)

		odds := field[i].DecimalOdds
		if odds <= 1 || impliedTotal == 0 {
			continue
		}
		rec.DecimalOdds = odds
		// overround removed by normalizing across priced runners
		rec.ImpliedProbability = (1 / odds) / impliedTotal
		rec.Edge = rec.Probability - rec.ImpliedProbability
		rec.ExpectedValue = ExpectedValue(rec.Probability, odds)
		if rec.Edge > 0 {
			rec.Stake = e.Stake(rec.Probability, odds)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Probability != recs[j].Probability {
			return recs[i].Probability > recs[j].Probability
		}
		return recs[i].ProgramNumber < recs[j].ProgramNumber
	})
	for i := range recs {
		recs[i].Rank = i + 1
	}

	return recs, nil
}

// Stake sizes a bet at fractional Kelly, capped at MaxBetFraction of the
// bankroll and rounded to cents. Stakes below MinStake are zero.
func (e *Engine) Stake(probability, decimalOdds float64) float64 {
	b := decimalOdds - 1
	if b <= 0 || probability <= 0 {
		return 0
	}

	s := e.opts.Stake
	kelly := (b*probability - (1 - probability)) / b
	fraction := s.KellyFraction * kelly
	if fraction > s.MaxBetFraction {
		fraction = s.MaxBetFraction
	}
	if fraction <= 0 {
		return 0
	}

	stake := decimal.NewFromFloat(s.Bankroll).Mul(decimal.NewFromFloat(fraction)).Round(2)
	if stake.LessThan(decimal.NewFromFloat(s.MinStake)) {
		return 0
	}
	return stake.InexactFloat64()
}

// ExpectedValue returns the expected profit per unit staked
func ExpectedValue(probability, decimalOdds float64) float64 {
	return probability*(decimalOdds-1) - (1 - probability)
}
