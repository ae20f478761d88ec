package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourusername/stall10n/internal/database"
	"github.com/yourusername/stall10n/internal/models"
)

// PostgresEntryRepository implements EntryRepository for PostgreSQL
type PostgresEntryRepository struct {
	db *database.DB
}

// NewPostgresEntryRepository creates a new entry repository
func NewPostgresEntryRepository(db *database.DB) EntryRepository {
	return &PostgresEntryRepository{db: db}
}

// Create inserts a new entry
func (r *PostgresEntryRepository) Create(ctx context.Context, entry *models.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO entries (id, race_id, program_number, name, jockey, trainer, morning_line,
			weight_lbs, class_rating, speed_figure, horse_win_pct, horse_place_pct,
			jockey_win_pct, trainer_win_pct, days_since_last_race, scratched)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Conn(ctx).Exec(ctx, query,
		entry.ID, entry.RaceID, entry.ProgramNumber, entry.Name, entry.Jockey, entry.Trainer, entry.MorningLine,
		entry.WeightLbs, entry.ClassRating, entry.SpeedFigure, entry.HorseWinPct, entry.HorsePlacePct,
		entry.JockeyWinPct, entry.TrainerWinPct, entry.DaysSinceLastRace, entry.Scratched,
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	return nil
}

// GetByRaceID retrieves the race's running entries
func (r *PostgresEntryRepository) GetByRaceID(ctx context.Context, raceID uuid.UUID) ([]*models.Entry, error) {
	query := `
		SELECT id, race_id, program_number, name, jockey, trainer, morning_line,
		       weight_lbs, class_rating, speed_figure, horse_win_pct, horse_place_pct,
		       jockey_win_pct, trainer_win_pct, days_since_last_race, scratched,
		       finish_position, win_payoff, created_at, updated_at
		FROM entries
		WHERE race_id = $1 AND NOT scratched
		ORDER BY program_number ASC
	`

	rows, err := r.db.Conn(ctx).Query(ctx, query, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries by race: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		e := &models.Entry{}
		if err := rows.Scan(
			&e.ID, &e.RaceID, &e.ProgramNumber, &e.Name, &e.Jockey, &e.Trainer, &e.MorningLine,
			&e.WeightLbs, &e.ClassRating, &e.SpeedFigure, &e.HorseWinPct, &e.HorsePlacePct,
			&e.JockeyWinPct, &e.TrainerWinPct, &e.DaysSinceLastRace, &e.Scratched,
			&e.FinishPosition, &e.WinPayoff, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// AttachResult records a finish position and optional win payoff
func (r *PostgresEntryRepository) AttachResult(ctx context.Context, entryID uuid.UUID, finishPosition int, winPayoff *decimal.Decimal) error {
	query := `UPDATE entries SET finish_position = $2, win_payoff = $3, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Conn(ctx).Exec(ctx, query, entryID, finishPosition, winPayoff)
	if err != nil {
		return fmt.Errorf("failed to attach result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
