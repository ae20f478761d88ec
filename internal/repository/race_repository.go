package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/stall10n/internal/database"
	"github.com/yourusername/stall10n/internal/models"
)

const (
	raceColumns = `id, COALESCE(external_id, ''), race_date, track, race_number, post_time,
		status, monitoring_enabled, consecutive_misses, created_at, updated_at`
	errScanRace = "failed to scan race: %w"
)

// PostgresRaceRepository implements RaceRepository for PostgreSQL
type PostgresRaceRepository struct {
	db *database.DB
}

// NewPostgresRaceRepository creates a new race repository
func NewPostgresRaceRepository(db *database.DB) RaceRepository {
	return &PostgresRaceRepository{db: db}
}

func scanRace(row pgx.Row) (*models.Race, error) {
	race := &models.Race{}
	err := row.Scan(
		&race.ID, &race.ExternalID, &race.RaceDate, &race.Track, &race.RaceNumber, &race.PostTime,
		&race.Status, &race.MonitoringEnabled, &race.ConsecutiveMisses, &race.CreatedAt, &race.UpdatedAt,
	)
	return race, err
}

// Create inserts a new race
func (r *PostgresRaceRepository) Create(ctx context.Context, race *models.Race) error {
	if race.ID == uuid.Nil {
		race.ID = uuid.New()
	}
	if race.Status == "" {
		race.Status = models.RaceStatusScheduled
	}

	query := `
		INSERT INTO races (id, external_id, race_date, track, race_number, post_time, status, monitoring_enabled)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		race.ID, race.ExternalID, race.RaceDate, race.Track, race.RaceNumber,
		race.PostTime, race.Status, race.MonitoringEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to create race: %w", err)
	}

	return nil
}

// GetByID retrieves a race by ID
func (r *PostgresRaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	query := `SELECT ` + raceColumns + ` FROM races WHERE id = $1`

	race, err := scanRace(r.db.Conn(ctx).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}

	return race, nil
}

// ListMonitored retrieves open monitored races inside the look-ahead horizon
func (r *PostgresRaceRepository) ListMonitored(ctx context.Context, now time.Time, lookAhead time.Duration) ([]*models.Race, error) {
	query := `
		SELECT ` + raceColumns + `
		FROM races
		WHERE monitoring_enabled
		  AND external_id <> ''
		  AND status IN ('scheduled', 'in_progress')
		  AND (post_time IS NULL OR post_time <= $1)
		ORDER BY post_time ASC NULLS FIRST, race_number ASC
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, now.Add(lookAhead))
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored races: %w", err)
	}
	defer rows.Close()

	var races []*models.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanRace, err)
		}
		races = append(races, race)
	}

	return races, rows.Err()
}

// EnableMonitoring turns on monitoring; unchanged settings are a no-op
func (r *PostgresRaceRepository) EnableMonitoring(ctx context.Context, id uuid.UUID, externalID string, postTime time.Time) (bool, error) {
	query := `
		UPDATE races
		SET external_id = $2, post_time = $3, monitoring_enabled = TRUE, updated_at = NOW()
		WHERE id = $1
		  AND status IN ('scheduled', 'in_progress')
		  AND (external_id IS DISTINCT FROM $2 OR post_time IS DISTINCT FROM $3 OR NOT monitoring_enabled)
	`

	tag, err := r.db.Conn(ctx).Exec(ctx, query, id, externalID, postTime.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to enable monitoring: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// nothing updated: missing, closed, or already in the requested state
	race, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if race.IsClosed() {
		return false, models.ErrRaceClosed
	}
	return false, nil
}

// DisableMonitoring turns monitoring off
func (r *PostgresRaceRepository) DisableMonitoring(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE races SET monitoring_enabled = FALSE, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Conn(ctx).Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to disable monitoring: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateStatus changes race status; finished races are immutable
func (r *PostgresRaceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RaceStatus) error {
	query := `UPDATE races SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> 'finished'`

	tag, err := r.db.Conn(ctx).Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update race status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return models.ErrRaceClosed
	}
	return nil
}

// AddMisses increments the consecutive miss counter
func (r *PostgresRaceRepository) AddMisses(ctx context.Context, id uuid.UUID, n int) (int, error) {
	query := `
		UPDATE races SET consecutive_misses = consecutive_misses + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING consecutive_misses
	`

	var total int
	err := r.db.Conn(ctx).QueryRow(ctx, query, id, n).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record missed intervals: %w", err)
	}
	return total, nil
}

// ResetMisses clears the consecutive miss counter
func (r *PostgresRaceRepository) ResetMisses(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE races SET consecutive_misses = 0 WHERE id = $1 AND consecutive_misses <> 0`

	if _, err := r.db.Conn(ctx).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to reset missed intervals: %w", err)
	}
	return nil
}

// ListByPostTime retrieves races posting in [from, to)
func (r *PostgresRaceRepository) ListByPostTime(ctx context.Context, from, to time.Time) ([]*models.Race, error) {
	query := `
		SELECT ` + raceColumns + `
		FROM races
		WHERE post_time >= $1 AND post_time < $2
		ORDER BY post_time ASC, race_number ASC
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query races: %w", err)
	}
	defer rows.Close()

	var races []*models.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanRace, err)
		}
		races = append(races, race)
	}

	return races, rows.Err()
}

// Summary counts monitored races in the window by capture outcome
func (r *PostgresRaceRepository) Summary(ctx context.Context, from, to time.Time) (*models.DailySummary, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE r.status <> 'missed' AND EXISTS (
				SELECT 1 FROM odds_snapshots s WHERE s.race_id = r.id)),
			COUNT(*) FILTER (WHERE r.status = 'missed'),
			COUNT(*) FILTER (WHERE r.status <> 'missed' AND NOT EXISTS (
				SELECT 1 FROM odds_snapshots s WHERE s.race_id = r.id))
		FROM races r
		WHERE r.post_time >= $1 AND r.post_time < $2
		  AND (r.monitoring_enabled OR r.status = 'missed')
	`

	summary := &models.DailySummary{Date: from}
	err := r.db.Conn(ctx).QueryRow(ctx, query, from, to).Scan(&summary.Captured, &summary.Missed, &summary.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize races: %w", err)
	}
	return summary, nil
}
