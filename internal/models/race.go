package models

import (
	"time"

	"github.com/google/uuid"
)

// RaceStatus is the lifecycle state of a race as seen by the odds monitor
type RaceStatus string

const (
	RaceStatusScheduled  RaceStatus = "scheduled"
	RaceStatusInProgress RaceStatus = "in_progress"
	RaceStatusFinished   RaceStatus = "finished"
	RaceStatusMissed     RaceStatus = "missed"
)

// Race represents a race card entry that may be monitored for odds
type Race struct {
	ID                uuid.UUID  `db:"id" json:"id" validate:"required"`
	ExternalID        string     `db:"external_id" json:"external_id"`
	RaceDate          time.Time  `db:"race_date" json:"race_date" validate:"required"`
	Track             string     `db:"track" json:"track" validate:"required"`
	RaceNumber        int        `db:"race_number" json:"race_number" validate:"required,gt=0"`
	PostTime          *time.Time `db:"post_time" json:"post_time"`
	Status            RaceStatus `db:"status" json:"status" validate:"oneof=scheduled in_progress finished missed"`
	MonitoringEnabled bool       `db:"monitoring_enabled" json:"monitoring_enabled"`
	ConsecutiveMisses int        `db:"consecutive_misses" json:"consecutive_misses"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsFinished reports whether the race result is final
func (r *Race) IsFinished() bool {
	return r.Status == RaceStatusFinished
}

// IsClosed reports whether the race will never be scheduled again
func (r *Race) IsClosed() bool {
	return r.Status == RaceStatusFinished || r.Status == RaceStatusMissed
}

// IsMonitorable reports whether the scheduler should consider this race
func (r *Race) IsMonitorable() bool {
	return r.MonitoringEnabled && r.ExternalID != "" && !r.IsClosed()
}

// CanCorrectPostTime reports whether the post time may still be changed
func (r *Race) CanCorrectPostTime() bool {
	return r.Status == RaceStatusScheduled || r.Status == RaceStatusInProgress
}

// DailySummary counts a day's monitored races by capture outcome
type DailySummary struct {
	Date     time.Time `json:"date"`
	Captured int       `json:"captured"`
	Missed   int       `json:"missed"`
	Pending  int       `json:"pending"`
}
