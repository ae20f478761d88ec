// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogMonitoringEnabled logs a race being put under odds monitoring.
func (al *AuditLogger) LogMonitoringEnabled(raceID, externalID string, postTime time.Time, changed bool) {
	al.WithFields(logrus.Fields{
		"race_id":     raceID,
		"external_id": externalID,
		"post_time":   postTime.UTC().Format(time.RFC3339),
		"changed":     changed,
	}).Info("Race monitoring enabled")
}

// LogMonitoringDisabled logs a race being removed from odds monitoring.
func (al *AuditLogger) LogMonitoringDisabled(raceID string) {
	al.WithField("race_id", raceID).Info("Race monitoring disabled")
}

// LogPostTimeCorrected logs a post time change on a monitored race.
func (al *AuditLogger) LogPostTimeCorrected(raceID string, oldPost, newPost time.Time) {
	al.WithFields(logrus.Fields{
		"race_id":       raceID,
		"old_post_time": oldPost.UTC().Format(time.RFC3339),
		"new_post_time": newPost.UTC().Format(time.RFC3339),
	}).Info("Post time corrected")
}

// LogWeightsLoaded logs the factor weights the engine runs with.
func (al *AuditLogger) LogWeightsLoaded(weights map[string]float64) {
	al.WithField("weights", weights).Info("Probability weights loaded")
}

// LogDailySummary logs the end-of-day capture summary.
func (al *AuditLogger) LogDailySummary(date time.Time, captured, missed, quotaUsed, quotaLimit int) {
	al.WithFields(logrus.Fields{
		"date":        date.Format("2006-01-02"),
		"captured":    captured,
		"missed":      missed,
		"quota_used":  quotaUsed,
		"quota_limit": quotaLimit,
	}).Info("Daily capture summary")
}
