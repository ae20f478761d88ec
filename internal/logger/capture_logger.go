package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// CaptureLogger records odds capture activity for the scheduler and fetch client.
type CaptureLogger struct {
	*logrus.Entry
}

// NewCaptureLogger creates a capture logger.
func NewCaptureLogger(baseLogger *logrus.Logger) *CaptureLogger {
	return &CaptureLogger{
		Entry: baseLogger.WithField("component", "capture"),
	}
}

// LogSnapshotCaptured logs a stored interval capture.
func (cl *CaptureLogger) LogSnapshotCaptured(raceID, interval string, stored, duplicates, malformed int, latency time.Duration) {
	cl.WithFields(logrus.Fields{
		"race_id":    raceID,
		"interval":   interval,
		"stored":     stored,
		"duplicates": duplicates,
		"malformed":  malformed,
		"latency_ms": latency.Milliseconds(),
	}).Info("Odds snapshot captured")
}

// LogDuplicate logs an interval that was already captured.
func (cl *CaptureLogger) LogDuplicate(raceID, interval string) {
	cl.WithFields(logrus.Fields{
		"race_id":  raceID,
		"interval": interval,
	}).Debug("Interval already captured")
}

// LogStaleInterval logs an interval whose capture window passed.
func (cl *CaptureLogger) LogStaleInterval(raceID, interval string, late time.Duration, consecutiveMisses int) {
	cl.WithFields(logrus.Fields{
		"race_id":            raceID,
		"interval":           interval,
		"late_seconds":       int(late.Seconds()),
		"consecutive_misses": consecutiveMisses,
	}).Warn("Interval skipped as stale")
}

// LogIntervalPassedOver logs a failed interval abandoned because a later one is due.
func (cl *CaptureLogger) LogIntervalPassedOver(raceID, interval, next string) {
	cl.WithFields(logrus.Fields{
		"race_id":  raceID,
		"interval": interval,
		"next":     next,
	}).Warn("Failed interval not retried, later interval due")
}

// LogRaceMissed logs a race abandoned by the scheduler.
func (cl *CaptureLogger) LogRaceMissed(raceID, reason string) {
	cl.WithFields(logrus.Fields{
		"race_id": raceID,
		"reason":  reason,
	}).Warn("Race marked missed")
}

// LogQuotaDeferred logs a capture deferred to the next pass for lack of quota.
func (cl *CaptureLogger) LogQuotaDeferred(raceID, interval string, used, limit int) {
	cl.WithFields(logrus.Fields{
		"race_id":  raceID,
		"interval": interval,
		"used":     used,
		"limit":    limit,
	}).Warn("Daily quota exhausted, deferring capture")
}

// LogFetchFailed logs a provider failure after retries.
func (cl *CaptureLogger) LogFetchFailed(raceID, interval string, err error) {
	cl.WithFields(logrus.Fields{
		"race_id":  raceID,
		"interval": interval,
	}).WithError(err).Error("Odds fetch failed, interval skipped")
}

// LogMalformedEntry logs a runner whose odds could not be parsed.
func (cl *CaptureLogger) LogMalformedEntry(raceID, number, raw, reason string) {
	cl.WithFields(logrus.Fields{
		"race_id":        raceID,
		"program_number": number,
		"raw_odds":       raw,
		"reason":         reason,
	}).Warn("Malformed odds skipped")
}
