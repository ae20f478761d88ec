package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry represents a horse entered in a race with its static handicapping attributes
type Entry struct {
	ID                uuid.UUID        `db:"id" json:"id" validate:"required"`
	RaceID            uuid.UUID        `db:"race_id" json:"race_id" validate:"required"`
	ProgramNumber     int              `db:"program_number" json:"program_number" validate:"required,gt=0"`
	Name              string           `db:"name" json:"name" validate:"required"`
	Jockey            string           `db:"jockey" json:"jockey"`
	Trainer           string           `db:"trainer" json:"trainer"`
	MorningLine       string           `db:"morning_line" json:"morning_line"`
	WeightLbs         *int             `db:"weight_lbs" json:"weight_lbs"`
	ClassRating       *float64         `db:"class_rating" json:"class_rating"`
	SpeedFigure       *float64         `db:"speed_figure" json:"speed_figure"`
	HorseWinPct       *float64         `db:"horse_win_pct" json:"horse_win_pct"`
	HorsePlacePct     *float64         `db:"horse_place_pct" json:"horse_place_pct"`
	JockeyWinPct      *float64         `db:"jockey_win_pct" json:"jockey_win_pct"`
	TrainerWinPct     *float64         `db:"trainer_win_pct" json:"trainer_win_pct"`
	DaysSinceLastRace *int             `db:"days_since_last_race" json:"days_since_last_race"`
	Scratched         bool             `db:"scratched" json:"scratched"`
	FinishPosition    *int             `db:"finish_position" json:"finish_position"`
	WinPayoff         *decimal.Decimal `db:"win_payoff" json:"win_payoff"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// HasResult reports whether a finish position has been attached
func (e *Entry) HasResult() bool {
	return e.FinishPosition != nil
}

// DaysOff returns days since last race, or -1 when unknown
func (e *Entry) DaysOff() int {
	if e.DaysSinceLastRace == nil {
		return -1
	}
	return *e.DaysSinceLastRace
}
