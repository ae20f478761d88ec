package probability

import (
	"math"

	"github.com/yourusername/stall10n/internal/models"
)

// Scoring scales and the neutral values used when an attribute is missing
const (
	defaultWinRate      = 0.15
	defaultPlaceRate    = 0.33
	defaultRecentForm   = 0.5
	defaultConnection   = 0.15
	defaultRating       = 0.5
	distanceSuitability = 0.75
	standardWeightLbs   = 126
	weightSpreadLbs     = 50.0
	ratingScale         = 120.0
	speedFigureFloor    = 70.0
	speedFigureRange    = 40.0
)

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}

// ScoreEntry derives the six component scores from an entry's attributes.
// Missing attributes fall back to neutral values; each score lies in [0,1].
func ScoreEntry(e *models.Entry) models.FactorScores {
	recent := defaultRecentForm
	class := defaultRating
	if e.ClassRating != nil {
		recent = clamp01(*e.ClassRating / ratingScale)
		class = recent
	}

	form := 0.4*valueOr(e.HorseWinPct, defaultWinRate) +
		0.3*valueOr(e.HorsePlacePct, defaultPlaceRate) +
		0.3*recent

	connections := 0.5*valueOr(e.JockeyWinPct, defaultConnection) +
		0.5*valueOr(e.TrainerWinPct, defaultConnection)

	speed := defaultRating
	if e.SpeedFigure != nil {
		speed = (*e.SpeedFigure - speedFigureFloor) / speedFigureRange
	}

	weightFactor := 1.0
	if e.WeightLbs != nil {
		weightFactor = 1.0 - math.Abs(float64(*e.WeightLbs-standardWeightLbs))/weightSpreadLbs
	}

	return models.FactorScores{
		Form:        clamp01(form),
		Class:       clamp01(class),
		Connections: clamp01(connections),
		Speed:       clamp01(speed),
		Conditions:  clamp01(0.5*clamp01(weightFactor) + 0.5*distanceSuitability),
		Fitness:     fitness(e.DaysOff()),
	}
}

// fitness scores freshness from days since last race; unknown is neutral
func fitness(days int) float64 {
	switch {
	case days < 0:
		return defaultRecentForm
	case days <= 7:
		return 0.7
	case days <= 45:
		return 1.0
	case days <= 90:
		return 0.8
	case days <= 180:
		return 0.6
	default:
		return 0.4
	}
}
