package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stall10n/internal/logger"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/oddsfeed"
	"github.com/yourusername/stall10n/internal/probability"
	"github.com/yourusername/stall10n/internal/repository"
)

var postTime = time.Date(2026, 7, 4, 17, 45, 0, 0, time.UTC)

// MockOddsFetcher mocks the cached provider
type MockOddsFetcher struct {
	mock.Mock
}

func (m *MockOddsFetcher) FetchFresh(ctx context.Context, externalRaceID string, interval models.IntervalLabel) (*oddsfeed.RaceOdds, error) {
	args := m.Called(ctx, externalRaceID, interval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oddsfeed.RaceOdds), args.Error(1)
}

func (m *MockOddsFetcher) Name() string {
	return "mock"
}

// MockPublisher records published tables
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(raceID uuid.UUID, results []*models.ProbabilityResult) {
	m.Called(raceID, results)
}

type env struct {
	repos   *repository.Repositories
	recs    *RecommendationService
	log     *logrus.Logger
	hook    *test.Hook
	race    *models.Race
	entries []*models.Entry
}

func f64(v float64) *float64 { return &v }

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	log, hook := test.NewNullLogger()
	repos := repository.NewMemoryStore().Repositories()

	engine, err := probability.NewEngine(probability.DefaultOptions())
	require.NoError(t, err)
	recs := NewRecommendationService(engine, repos.Entry, repos.Snapshot, repos.Probability, logger.NewRecommendationLogger(log))

	pt := postTime
	race := &models.Race{
		RaceDate:          postTime.Truncate(24 * time.Hour),
		Track:             "Del Mar",
		RaceNumber:        4,
		PostTime:          &pt,
		ExternalID:        "dmr-20260704-4",
		MonitoringEnabled: true,
	}
	require.NoError(t, repos.Race.Create(ctx, race))

	e := &env{repos: repos, recs: recs, log: log, hook: hook, race: race}
	for i, ml := range []string{"2/1", "7/2", "6/1"} {
		entry := &models.Entry{
			RaceID:        race.ID,
			ProgramNumber: i + 1,
			Name:          []string{"Bold Venture", "Silver Charm", "Quiet Harbor"}[i],
			MorningLine:   ml,
			ClassRating:   f64(100 - float64(i)*10),
			SpeedFigure:   f64(100 - float64(i)*8),
			HorseWinPct:   f64(0.3 - float64(i)*0.08),
		}
		require.NoError(t, repos.Entry.Create(ctx, entry))
		e.entries = append(e.entries, entry)
	}
	return e
}

func board(runners ...oddsfeed.RunnerOdds) *oddsfeed.RaceOdds {
	return &oddsfeed.RaceOdds{ExternalRaceID: "dmr-20260704-4", FetchedAt: postTime, Runners: runners}
}
