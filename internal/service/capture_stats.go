package service

import (
	"fmt"
	"sync"
	"time"
)

// CaptureStats tracks capture totals since the process started
type CaptureStats struct {
	mu               sync.RWMutex
	StartTime        time.Time
	Captures         int
	Stored           int
	Duplicates       int
	Malformed        int
	Unmatched        int
	ValidationErrors int
	Errors           int
	LastCapture      time.Time
}

// NewCaptureStats creates a new stats tracker
func NewCaptureStats() *CaptureStats {
	return &CaptureStats{
		StartTime: time.Now(),
	}
}

// RecordCapture adds one interval capture's counts
func (m *CaptureStats) RecordCapture(stored, duplicates, malformed, unmatched int, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Captures++
	m.Stored += stored
	m.Duplicates += duplicates
	m.Malformed += malformed
	m.Unmatched += unmatched
	m.LastCapture = at
}

// RecordError increments error count
func (m *CaptureStats) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors++
}

// RecordValidationError increments validation error count
func (m *CaptureStats) RecordValidationError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidationErrors++
}

// CaptureStatsSnapshot is a point-in-time copy of CaptureStats
type CaptureStatsSnapshot struct {
	Since            time.Time `json:"since"`
	Captures         int       `json:"captures"`
	Stored           int       `json:"stored"`
	Duplicates       int       `json:"duplicates"`
	Malformed        int       `json:"malformed"`
	Unmatched        int       `json:"unmatched"`
	ValidationErrors int       `json:"validation_errors"`
	Errors           int       `json:"errors"`
	LastCapture      time.Time `json:"last_capture"`
}

// Snapshot returns a copy safe to share
func (m *CaptureStats) Snapshot() CaptureStatsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CaptureStatsSnapshot{
		Since:            m.StartTime,
		Captures:         m.Captures,
		Stored:           m.Stored,
		Duplicates:       m.Duplicates,
		Malformed:        m.Malformed,
		Unmatched:        m.Unmatched,
		ValidationErrors: m.ValidationErrors,
		Errors:           m.Errors,
		LastCapture:      m.LastCapture,
	}
}

// String returns a formatted string representation of the stats
func (m *CaptureStats) String() string {
	s := m.Snapshot()
	return fmt.Sprintf(
		"CaptureStats{Captures=%d, Stored=%d, Duplicates=%d, Malformed=%d, Unmatched=%d, ValidationErrors=%d, Errors=%d}",
		s.Captures, s.Stored, s.Duplicates, s.Malformed, s.Unmatched, s.ValidationErrors, s.Errors,
	)
}
