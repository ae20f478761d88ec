package repository

import (
	"fmt"

	"github.com/yourusername/stall10n/internal/database"
)

// Repositories holds all repository implementations
type Repositories struct {
	Race        RaceRepository
	Entry       EntryRepository
	Snapshot    SnapshotRepository
	Probability ProbabilityRepository
}

// NewRepositories creates and returns all repository implementations
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Race:        NewPostgresRaceRepository(db),
		Entry:       NewPostgresEntryRepository(db),
		Snapshot:    NewPostgresSnapshotRepository(db),
		Probability: NewPostgresProbabilityRepository(db),
	}, nil
}
