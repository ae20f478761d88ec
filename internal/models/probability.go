package models

import (
	"time"

	"github.com/google/uuid"
)

// FactorScores holds the six handicapping components, each in [0,1]
type FactorScores struct {
	Form        float64 `json:"form"`
	Class       float64 `json:"class"`
	Connections float64 `json:"connections"`
	Speed       float64 `json:"speed"`
	Conditions  float64 `json:"conditions"`
	Fitness     float64 `json:"fitness"`
}

// IsZero reports whether every component is zero
func (f FactorScores) IsZero() bool {
	return f.Form == 0 && f.Class == 0 && f.Connections == 0 &&
		f.Speed == 0 && f.Conditions == 0 && f.Fitness == 0
}

// ProbabilityResult is a persisted row of a race's ranked probability/edge table.
// Earlier results are kept with Superseded set when a race is recomputed.
type ProbabilityResult struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	RaceID             uuid.UUID      `db:"race_id" json:"race_id"`
	EntryID            uuid.UUID      `db:"entry_id" json:"entry_id"`
	ProgramNumber      int            `db:"program_number" json:"program_number"`
	Probability        float64        `db:"probability" json:"probability"`
	Components         FactorScores   `db:"components" json:"components"`
	ImpliedProbability float64        `db:"implied_probability" json:"implied_probability"`
	DecimalOdds        float64        `db:"decimal_odds" json:"decimal_odds"`
	Edge               float64        `db:"edge" json:"edge"`
	Stake              float64        `db:"stake" json:"stake"`
	ExpectedValue      float64        `db:"expected_value" json:"expected_value"`
	FairOdds           string         `db:"fair_odds" json:"fair_odds"`
	Rank               int            `db:"rank" json:"rank"`
	SourceInterval     *IntervalLabel `db:"source_interval" json:"source_interval"`
	ComputedAt         time.Time      `db:"computed_at" json:"computed_at"`
	Superseded         bool           `db:"superseded" json:"superseded"`
}

// HasEdge reports whether the computed probability beats the market
func (p *ProbabilityResult) HasEdge() bool {
	return p.Edge > 0
}
