package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourusername/stall10n/internal/models"
)

// RaceRepository defines race catalog access used by the odds monitor.
// Races are created by the ingestion side; the monitor only reads them and
// updates monitoring state.
type RaceRepository interface {
	Create(ctx context.Context, race *models.Race) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Race, error)
	// ListMonitored returns open, monitoring-enabled races whose post time is
	// unknown or falls before now+lookAhead, ordered by post time.
	ListMonitored(ctx context.Context, now time.Time, lookAhead time.Duration) ([]*models.Race, error)
	// EnableMonitoring sets the provider id and post time and turns monitoring on.
	// It reports whether anything changed so repeat calls are no-ops.
	EnableMonitoring(ctx context.Context, id uuid.UUID, externalID string, postTime time.Time) (bool, error)
	DisableMonitoring(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RaceStatus) error
	// AddMisses increments the consecutive missed-interval counter and returns the new value
	AddMisses(ctx context.Context, id uuid.UUID, n int) (int, error)
	ResetMisses(ctx context.Context, id uuid.UUID) error
	// ListByPostTime returns races with post time in [from, to), ordered by post time
	ListByPostTime(ctx context.Context, from, to time.Time) ([]*models.Race, error)
	// Summary counts races with post time in [from, to) by capture outcome
	Summary(ctx context.Context, from, to time.Time) (*models.DailySummary, error)
}

// EntryRepository defines entry access
type EntryRepository interface {
	Create(ctx context.Context, entry *models.Entry) error
	// GetByRaceID returns non-scratched entries ordered by program number
	GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Entry, error)
	AttachResult(ctx context.Context, entryID uuid.UUID, finishPosition int, winPayoff *decimal.Decimal) error
}

// BatchResult reports the outcome of saving one interval's snapshots
type BatchResult struct {
	Stored     int
	Duplicates int
}

// SnapshotRepository is the append-only odds snapshot store. At most one
// snapshot exists per (race, entry, interval); the storage layer enforces it.
type SnapshotRepository interface {
	// Save inserts one snapshot, returning models.ErrDuplicateSnapshot on conflict
	Save(ctx context.Context, snap *models.OddsSnapshot) error
	// SaveBatch inserts snapshots independently; conflicts are counted, not fatal
	SaveBatch(ctx context.Context, snaps []*models.OddsSnapshot) (BatchResult, error)
	Exists(ctx context.Context, raceID uuid.UUID, interval models.IntervalLabel) (bool, error)
	// CapturedIntervals returns the race's captured labels in sequence order
	CapturedIntervals(ctx context.Context, raceID uuid.UUID) ([]models.IntervalLabel, error)
	GetHistory(ctx context.Context, raceID uuid.UUID) (*models.OddsHistory, error)
	GetMovement(ctx context.Context, raceID uuid.UUID) ([]models.EntryMovement, error)
	// GetLatest returns each entry's snapshot from its latest captured interval
	GetLatest(ctx context.Context, raceID uuid.UUID) ([]*models.OddsSnapshot, error)
}

// ProbabilityRepository stores probability/edge tables with superseded history
type ProbabilityRepository interface {
	// SaveResults marks the race's current results superseded and inserts the new table
	SaveResults(ctx context.Context, raceID uuid.UUID, results []*models.ProbabilityResult) error
	// GetCurrent returns the non-superseded table ordered by rank
	GetCurrent(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error)
	// GetAll returns every result for the race, newest first
	GetAll(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error)
}
