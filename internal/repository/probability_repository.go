package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/yourusername/stall10n/internal/database"
	"github.com/yourusername/stall10n/internal/models"
)

const probabilityColumns = `id, race_id, entry_id, program_number, probability, components,
	implied_probability, decimal_odds, edge, stake, expected_value, fair_odds, rank,
	source_interval, computed_at, superseded`

// PostgresProbabilityRepository implements ProbabilityRepository for PostgreSQL
type PostgresProbabilityRepository struct {
	db *database.DB
}

// NewPostgresProbabilityRepository creates a new probability repository
func NewPostgresProbabilityRepository(db *database.DB) ProbabilityRepository {
	return &PostgresProbabilityRepository{db: db}
}

// SaveResults supersedes the current table and inserts results atomically
func (r *PostgresProbabilityRepository) SaveResults(ctx context.Context, raceID uuid.UUID, results []*models.ProbabilityResult) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		conn := r.db.Conn(txCtx)

		_, err := conn.Exec(txCtx,
			`UPDATE probability_results SET superseded = TRUE WHERE race_id = $1 AND NOT superseded`, raceID)
		if err != nil {
			return fmt.Errorf("failed to supersede probability results: %w", err)
		}
		if len(results) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, res := range results {
			if res.ID == uuid.Nil {
				res.ID = uuid.New()
			}
			res.RaceID = raceID
			res.Superseded = false
			batch.Queue(`INSERT INTO probability_results (`+probabilityColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
				res.ID, res.RaceID, res.EntryID, res.ProgramNumber, res.Probability, res.Components,
				res.ImpliedProbability, res.DecimalOdds, res.Edge, res.Stake, res.ExpectedValue, res.FairOdds, res.Rank,
				res.SourceInterval, res.ComputedAt, res.Superseded,
			)
		}

		br := conn.SendBatch(txCtx, batch)
		for range results {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert probability result: %w", err)
			}
		}
		return br.Close()
	})
}

func (r *PostgresProbabilityRepository) query(ctx context.Context, query string, args ...any) ([]*models.ProbabilityResult, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query probability results: %w", err)
	}
	defer rows.Close()

	var results []*models.ProbabilityResult
	for rows.Next() {
		p := &models.ProbabilityResult{}
		if err := rows.Scan(
			&p.ID, &p.RaceID, &p.EntryID, &p.ProgramNumber, &p.Probability, &p.Components,
			&p.ImpliedProbability, &p.DecimalOdds, &p.Edge, &p.Stake, &p.ExpectedValue, &p.FairOdds, &p.Rank,
			&p.SourceInterval, &p.ComputedAt, &p.Superseded,
		); err != nil {
			return nil, fmt.Errorf("failed to scan probability result: %w", err)
		}
		results = append(results, p)
	}

	return results, rows.Err()
}

// GetCurrent returns the race's current table by rank
func (r *PostgresProbabilityRepository) GetCurrent(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	return r.query(ctx, `SELECT `+probabilityColumns+` FROM probability_results
		WHERE race_id = $1 AND NOT superseded ORDER BY rank ASC`, raceID)
}

// GetAll returns current and superseded results, newest first
func (r *PostgresProbabilityRepository) GetAll(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	return r.query(ctx, `SELECT `+probabilityColumns+` FROM probability_results
		WHERE race_id = $1 ORDER BY computed_at DESC, rank ASC`, raceID)
}
