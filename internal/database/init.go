package database

import (
	"context"
	"fmt"

	"github.com/yourusername/stall10n/internal/config"
)

// requiredTables must exist before the monitor can run
var requiredTables = []string{"races", "entries", "odds_snapshots", "probability_results"}

// Initialize creates a database connection pool and verifies the odds monitor schema is applied
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := VerifySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// VerifySchema checks that every required table exists
func VerifySchema(ctx context.Context, db *DB) error {
	query := `SELECT to_regclass($1) IS NOT NULL`

	var missing []string
	for _, table := range requiredTables {
		var exists bool
		if err := db.pool.QueryRow(ctx, query, "public."+table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema not applied, missing tables %v: run migrations/001_odds_monitor.sql", missing)
	}
	return nil
}
