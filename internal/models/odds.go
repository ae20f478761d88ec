package models

import (
	"time"

	"github.com/google/uuid"
)

// OddsSnapshot is one immutable capture of an entry's odds at a named interval
type OddsSnapshot struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	RaceID        uuid.UUID     `db:"race_id" json:"race_id" validate:"required"`
	EntryID       uuid.UUID     `db:"entry_id" json:"entry_id" validate:"required"`
	ProgramNumber int           `db:"program_number" json:"program_number"`
	Interval      IntervalLabel `db:"interval_label" json:"interval_label" validate:"required"`
	CapturedAt    time.Time     `db:"captured_at" json:"captured_at" validate:"required"`
	RawOdds       string        `db:"raw_odds" json:"raw_odds"`
	DecimalOdds   float64       `db:"decimal_odds" json:"decimal_odds" validate:"gt=1"`
	PoolSize      *float64      `db:"pool_size" json:"pool_size"`
}

// ImpliedProbability returns 1/decimal odds before any field normalization
func (o *OddsSnapshot) ImpliedProbability() float64 {
	if o.DecimalOdds <= 0 {
		return 0
	}
	return 1.0 / o.DecimalOdds
}

// IntervalOdds groups the snapshots captured for a single interval
type IntervalOdds struct {
	Interval   IntervalLabel   `json:"interval"`
	CapturedAt time.Time       `json:"captured_at"`
	Odds       []*OddsSnapshot `json:"odds"`
}

// OddsHistory is a race's captured odds ordered by the fixed interval sequence
type OddsHistory struct {
	RaceID    uuid.UUID      `json:"race_id"`
	Intervals []IntervalOdds `json:"intervals"`
}

// Labels returns the captured interval labels in order
func (h *OddsHistory) Labels() []IntervalLabel {
	labels := make([]IntervalLabel, 0, len(h.Intervals))
	for _, iv := range h.Intervals {
		labels = append(labels, iv.Interval)
	}
	return labels
}

// MovementPoint is one entry's odds at one interval; nil odds mean not captured
type MovementPoint struct {
	Interval    IntervalLabel `json:"interval"`
	RawOdds     string        `json:"raw_odds,omitempty"`
	DecimalOdds *float64      `json:"decimal_odds"`
}

// EntryMovement compares one entry's odds across all intervals
type EntryMovement struct {
	EntryID          uuid.UUID       `json:"entry_id"`
	ProgramNumber    int             `json:"program_number"`
	Points           []MovementPoint `json:"points"`
	EarliestInterval *IntervalLabel  `json:"earliest_interval"`
	LatestInterval   *IntervalLabel  `json:"latest_interval"`
	ChangePct        *float64        `json:"change_pct"`
}
