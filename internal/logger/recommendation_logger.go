package logger

import (
	"github.com/sirupsen/logrus"
)

// RecommendationLogger records probability/edge computations.
type RecommendationLogger struct {
	*logrus.Entry
}

// NewRecommendationLogger creates a recommendation logger.
func NewRecommendationLogger(baseLogger *logrus.Logger) *RecommendationLogger {
	return &RecommendationLogger{
		Entry: baseLogger.WithField("component", "recommendation"),
	}
}

// LogTableComputed logs a recomputed ranked table for a race.
func (rl *RecommendationLogger) LogTableComputed(raceID, sourceInterval string, entries, withEdge int, durationMs int64) {
	rl.WithFields(logrus.Fields{
		"race_id":         raceID,
		"source_interval": sourceInterval,
		"entries":         entries,
		"with_edge":       withEdge,
		"duration_ms":     durationMs,
	}).Info("Probability table recomputed")
}

// LogRecommendation logs a positive-edge entry with its stake.
func (rl *RecommendationLogger) LogRecommendation(raceID string, programNumber int, probability, implied, edge, stake float64) {
	rl.WithFields(logrus.Fields{
		"race_id":        raceID,
		"program_number": programNumber,
		"probability":    probability,
		"implied":        implied,
		"edge":           edge,
		"stake":          stake,
	}).Info("Positive edge found")
}
