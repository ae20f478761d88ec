package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/yourusername/stall10n/internal/config"
)

// TestConfigEnv names the config file used by integration tests
const TestConfigEnv = "STALL10N_TEST_CONFIG"

// SetupTestDB connects to the integration database, skipping the test when none is configured
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	path := os.Getenv(TestConfigEnv)
	if path == "" {
		t.Skipf("integration test: set %s to a config file with a reachable database", TestConfigEnv)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Initialize(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}

	t.Cleanup(db.Close)
	return db
}

// TruncateAll empties the odds monitor tables between integration tests
func TruncateAll(t *testing.T, db *DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.pool.Exec(ctx, "TRUNCATE races CASCADE"); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}
