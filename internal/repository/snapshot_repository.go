package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yourusername/stall10n/internal/database"
	"github.com/yourusername/stall10n/internal/models"
)

const (
	uniqueViolation = "23505"

	insertSnapshot = `
		INSERT INTO odds_snapshots (id, race_id, entry_id, program_number, interval_label,
			captured_at, raw_odds, decimal_odds, pool_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
)

// PostgresSnapshotRepository implements SnapshotRepository for PostgreSQL
type PostgresSnapshotRepository struct {
	db *database.DB
}

// NewPostgresSnapshotRepository creates a new snapshot repository
func NewPostgresSnapshotRepository(db *database.DB) SnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func snapshotArgs(snap *models.OddsSnapshot) []any {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	return []any{
		snap.ID, snap.RaceID, snap.EntryID, snap.ProgramNumber, snap.Interval,
		snap.CapturedAt, snap.RawOdds, snap.DecimalOdds, snap.PoolSize,
	}
}

// Save inserts a single snapshot
func (r *PostgresSnapshotRepository) Save(ctx context.Context, snap *models.OddsSnapshot) error {
	_, err := r.db.Conn(ctx).Exec(ctx, insertSnapshot, snapshotArgs(snap)...)
	if isUniqueViolation(err) {
		return models.ErrDuplicateSnapshot
	}
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SaveBatch inserts one interval's snapshots in a single round trip
func (r *PostgresSnapshotRepository) SaveBatch(ctx context.Context, snaps []*models.OddsSnapshot) (BatchResult, error) {
	var result BatchResult
	if len(snaps) == 0 {
		return result, nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(insertSnapshot+` ON CONFLICT ON CONSTRAINT uq_odds_snapshot_interval DO NOTHING`, snapshotArgs(snap)...)
	}

	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		br := r.db.Conn(txCtx).SendBatch(txCtx, batch)
		for range snaps {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to save snapshot batch: %w", err)
			}
			if tag.RowsAffected() == 1 {
				result.Stored++
			} else {
				result.Duplicates++
			}
		}
		return br.Close()
	})
	if err != nil {
		return BatchResult{}, err
	}

	return result, nil
}

// Exists reports whether any snapshot was captured for the race at interval
func (r *PostgresSnapshotRepository) Exists(ctx context.Context, raceID uuid.UUID, interval models.IntervalLabel) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM odds_snapshots WHERE race_id = $1 AND interval_label = $2)`

	var exists bool
	if err := r.db.Conn(ctx).QueryRow(ctx, query, raceID, interval).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check snapshot: %w", err)
	}
	return exists, nil
}

// CapturedIntervals lists captured labels in sequence order
func (r *PostgresSnapshotRepository) CapturedIntervals(ctx context.Context, raceID uuid.UUID) ([]models.IntervalLabel, error) {
	query := `SELECT DISTINCT interval_label FROM odds_snapshots WHERE race_id = $1`

	rows, err := r.db.Conn(ctx).Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query captured intervals: %w", err)
	}
	defer rows.Close()

	var labels []models.IntervalLabel
	for rows.Next() {
		var label models.IntervalLabel
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan interval label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	models.SortIntervals(labels)
	return labels, nil
}

func (r *PostgresSnapshotRepository) listByRace(ctx context.Context, raceID uuid.UUID) ([]*models.OddsSnapshot, error) {
	query := `
		SELECT id, race_id, entry_id, program_number, interval_label, captured_at, raw_odds, decimal_odds, pool_size
		FROM odds_snapshots
		WHERE race_id = $1
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.OddsSnapshot
	for rows.Next() {
		s := &models.OddsSnapshot{}
		if err := rows.Scan(
			&s.ID, &s.RaceID, &s.EntryID, &s.ProgramNumber, &s.Interval,
			&s.CapturedAt, &s.RawOdds, &s.DecimalOdds, &s.PoolSize,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}

	return snaps, rows.Err()
}

// GetHistory returns the race's snapshots grouped in interval sequence
func (r *PostgresSnapshotRepository) GetHistory(ctx context.Context, raceID uuid.UUID) (*models.OddsHistory, error) {
	snaps, err := r.listByRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return buildHistory(raceID, snaps), nil
}

// GetMovement returns per-entry odds movement across intervals
func (r *PostgresSnapshotRepository) GetMovement(ctx context.Context, raceID uuid.UUID) ([]models.EntryMovement, error) {
	snaps, err := r.listByRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return buildMovement(snaps), nil
}

// GetLatest returns each entry's most recent interval snapshot
func (r *PostgresSnapshotRepository) GetLatest(ctx context.Context, raceID uuid.UUID) ([]*models.OddsSnapshot, error) {
	snaps, err := r.listByRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return latestPerEntry(snaps), nil
}
