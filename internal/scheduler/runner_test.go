package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stall10n/internal/logger"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/oddsfeed"
	"github.com/yourusername/stall10n/internal/repository"
)

type captureCall struct {
	race     string
	interval models.IntervalLabel
}

// fakeCapturer stores one snapshot per entry unless fail returns an error.
type fakeCapturer struct {
	repos *repository.Repositories
	fail  func(race *models.Race, interval models.IntervalLabel) error

	mu    sync.Mutex
	calls []captureCall
}

func (f *fakeCapturer) Capture(ctx context.Context, race *models.Race, interval models.IntervalLabel) (models.CaptureResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, captureCall{race: race.ID.String(), interval: interval})
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(race, interval); err != nil {
			return models.CaptureResult{}, err
		}
	}

	entries, err := f.repos.Entry.GetByRaceID(ctx, race.ID)
	if err != nil {
		return models.CaptureResult{}, err
	}
	snaps := make([]*models.OddsSnapshot, 0, len(entries))
	for _, e := range entries {
		snaps = append(snaps, &models.OddsSnapshot{
			RaceID:        race.ID,
			EntryID:       e.ID,
			ProgramNumber: e.ProgramNumber,
			Interval:      interval,
			CapturedAt:    time.Now(),
			RawOdds:       "2/1",
			DecimalOdds:   3.0,
		})
	}
	res, err := f.repos.Snapshot.SaveBatch(ctx, snaps)
	if err != nil {
		return models.CaptureResult{}, err
	}
	out := models.CaptureResult{Stored: res.Stored, Duplicates: res.Duplicates}
	if out.IsDuplicate() {
		return out, models.ErrDuplicateSnapshot
	}
	return out, nil
}

func (f *fakeCapturer) intervals() []models.IntervalLabel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.IntervalLabel, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.interval)
	}
	return out
}

type harness struct {
	repos    *repository.Repositories
	capturer *fakeCapturer
	runner   *Runner
	logs     *test.Hook
}

func newHarness(t *testing.T, cfg RunnerConfig) *harness {
	t.Helper()
	repos := repository.NewMemoryStore().Repositories()
	capturer := &fakeCapturer{repos: repos}

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	quota := oddsfeed.NewQuotaTracker(oddsfeed.NewMemoryQuotaStore(), 10, time.UTC, log)
	runner, err := NewRunner(repos.Race, repos.Snapshot, capturer, quota, cfg, logger.NewCaptureLogger(log))
	require.NoError(t, err)

	return &harness{repos: repos, capturer: capturer, runner: runner, logs: hook}
}

func (h *harness) addRace(t *testing.T, postTime *time.Time) *models.Race {
	t.Helper()
	ctx := context.Background()
	race := &models.Race{
		RaceDate:          post.Truncate(24 * time.Hour),
		Track:             "Saratoga",
		RaceNumber:        1,
		PostTime:          postTime,
		ExternalID:        "sar-" + fmt.Sprint(time.Now().UnixNano()),
		MonitoringEnabled: true,
	}
	require.NoError(t, h.repos.Race.Create(ctx, race))
	for i := 1; i <= 3; i++ {
		require.NoError(t, h.repos.Entry.Create(ctx, &models.Entry{RaceID: race.ID, ProgramNumber: i, Name: fmt.Sprintf("Horse %d", i)}))
	}
	return race
}

func (h *harness) mustList(t *testing.T) []*models.Race {
	t.Helper()
	races, err := h.repos.Race.ListMonitored(context.Background(), post.Add(-24*time.Hour), 48*time.Hour)
	require.NoError(t, err)
	return races
}

func (h *harness) status(t *testing.T, race *models.Race) models.RaceStatus {
	t.Helper()
	got, err := h.repos.Race.GetByID(context.Background(), race.ID)
	require.NoError(t, err)
	return got.Status
}

func TestRunPassCapturesOnlyDueInterval(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	pt := post
	race := h.addRace(t, &pt)

	report, err := h.runner.RunPass(context.Background(), at(14, 19))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Races)
	assert.Empty(t, h.capturer.intervals())

	report, err = h.runner.RunPass(context.Background(), at(14, 20))
	require.NoError(t, err)
	assert.Equal(t, []models.IntervalLabel{models.Interval10MinBefore}, h.capturer.intervals())
	assert.Equal(t, 1, report.Count(OutcomeCaptured))
	assert.Equal(t, models.RaceStatusInProgress, h.status(t, race))

	// The same instant again finds nothing new to do.
	_, err = h.runner.RunPass(context.Background(), at(14, 20))
	require.NoError(t, err)
	assert.Len(t, h.capturer.intervals(), 1)
}

func TestRunPassCapturesDueIntervalsInOrder(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	pt := post
	h.addRace(t, &pt)

	report, err := h.runner.RunPass(context.Background(), at(14, 29))
	require.NoError(t, err)

	assert.Equal(t, []models.IntervalLabel{
		models.Interval10MinBefore,
		models.Interval5MinBefore,
		models.Interval2MinBefore,
		models.Interval1MinBefore,
	}, h.capturer.intervals())
	assert.Equal(t, 4, report.Count(OutcomeCaptured))
	assert.Empty(t, report.Finished)
}

func TestRunPassFinishesAfterAtPost(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	pt := post
	race := h.addRace(t, &pt)

	metrics.RecordRecompute(race.ID.String(), 2)
	series := testutil.CollectAndCount(metrics.ValueBets)

	report, err := h.runner.RunPass(context.Background(), at(14, 31))
	require.NoError(t, err)

	assert.Len(t, h.capturer.intervals(), 5)
	assert.Equal(t, []string{race.ID.String()}, report.Finished)
	assert.Equal(t, models.RaceStatusFinished, h.status(t, race))
	assert.Empty(t, h.mustList(t))
	assert.Equal(t, series-1, testutil.CollectAndCount(metrics.ValueBets), "a finished race drops its value bets series")
}

func TestRunPassQuotaExhaustedDefersRace(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	h.capturer.fail = func(*models.Race, models.IntervalLabel) error {
		return oddsfeed.NewFeedError("statpal", oddsfeed.ErrCodeQuotaExceeded, "daily quota of 10 reached", nil)
	}
	pt := post
	race := h.addRace(t, &pt)

	report, err := h.runner.RunPass(context.Background(), at(14, 29))
	require.NoError(t, err)

	assert.Len(t, h.capturer.intervals(), 1, "remaining intervals wait for the next pass")
	assert.Equal(t, 1, report.Count(OutcomeDeferred))
	assert.Empty(t, report.Missed)
	assert.Equal(t, models.RaceStatusInProgress, h.status(t, race))

	var deferred bool
	for _, e := range h.logs.AllEntries() {
		if e.Message == "Daily quota exhausted, deferring capture" {
			deferred = true
			assert.Equal(t, 10, e.Data["limit"])
		}
	}
	assert.True(t, deferred)

	// Once quota is back the same intervals are still eligible.
	h.capturer.fail = nil
	_, err = h.runner.RunPass(context.Background(), at(14, 29))
	require.NoError(t, err)
	assert.Len(t, h.capturer.intervals(), 5)
}

func TestRunPassProviderFailureSkipsInterval(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	h.capturer.fail = func(_ *models.Race, interval models.IntervalLabel) error {
		if interval == models.Interval5MinBefore {
			return oddsfeed.NewFeedError("statpal", oddsfeed.ErrCodeServerError, "status 503", nil)
		}
		return nil
	}
	pt := post
	h.addRace(t, &pt)

	report, err := h.runner.RunPass(context.Background(), at(14, 28))
	require.NoError(t, err)

	assert.Equal(t, []models.IntervalLabel{
		models.Interval10MinBefore, models.Interval5MinBefore, models.Interval2MinBefore,
	}, h.capturer.intervals())
	assert.Equal(t, 2, report.Count(OutcomeCaptured))
	require.Equal(t, 1, report.Count(OutcomeFailed))
	for _, o := range report.Outcomes {
		if o.Outcome == OutcomeFailed {
			assert.ErrorIs(t, o.Err, oddsfeed.ErrProviderUnavailable)
		}
	}
}

func TestRunPassNeverRequestsEarlierIntervalAfterLaterOne(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	failedOnce := false
	h.capturer.fail = func(_ *models.Race, interval models.IntervalLabel) error {
		if interval == models.Interval5MinBefore && !failedOnce {
			failedOnce = true
			return oddsfeed.ErrProviderUnavailable
		}
		return nil
	}
	pt := post
	race := h.addRace(t, &pt)

	_, err := h.runner.RunPass(context.Background(), at(14, 28))
	require.NoError(t, err)
	_, err = h.runner.RunPass(context.Background(), at(14, 29))
	require.NoError(t, err)

	assert.Equal(t, []models.IntervalLabel{
		models.Interval10MinBefore,
		models.Interval5MinBefore,
		models.Interval2MinBefore,
		models.Interval1MinBefore,
	}, h.capturer.intervals())

	captured, err := h.repos.Snapshot.CapturedIntervals(context.Background(), race.ID)
	require.NoError(t, err)
	assert.NotContains(t, captured, models.Interval5MinBefore)
}

func TestRunPassRetriesFailedIntervalUntilLaterOneIsDue(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	h.capturer.fail = func(_ *models.Race, interval models.IntervalLabel) error {
		if interval == models.Interval10MinBefore {
			return oddsfeed.ErrProviderUnavailable
		}
		return nil
	}
	pt := post
	h.addRace(t, &pt)

	_, err := h.runner.RunPass(context.Background(), at(14, 20))
	require.NoError(t, err)
	// Still the latest due interval, so it is tried again.
	_, err = h.runner.RunPass(context.Background(), at(14, 22))
	require.NoError(t, err)

	report, err := h.runner.RunPass(context.Background(), at(14, 25))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(OutcomeSkipped))
	assert.Equal(t, 1, report.Count(OutcomeCaptured))

	_, err = h.runner.RunPass(context.Background(), at(14, 26))
	require.NoError(t, err)

	assert.Equal(t, []models.IntervalLabel{
		models.Interval10MinBefore,
		models.Interval10MinBefore,
		models.Interval5MinBefore,
	}, h.capturer.intervals())
}

func TestRunPassDuplicateCountsAsCaptured(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	pt := post
	race := h.addRace(t, &pt)

	_, err := h.capturer.Capture(context.Background(), race, models.IntervalAtPost)
	require.NoError(t, err)
	h.capturer.calls = nil

	// at_post exists already, so a pass right at post only needs the earlier points.
	report, err := h.runner.RunPass(context.Background(), at(14, 30))
	require.NoError(t, err)
	assert.NotContains(t, h.capturer.intervals(), models.IntervalAtPost)
	assert.Equal(t, models.RaceStatusFinished, h.status(t, race))
	assert.Zero(t, report.Count(OutcomeFailed))

	race2 := h.addRace(t, &pt)
	h.capturer.fail = func(r *models.Race, _ models.IntervalLabel) error {
		if r.ID == race2.ID {
			return fmt.Errorf("wrapped: %w", models.ErrDuplicateSnapshot)
		}
		return nil
	}
	report, err = h.runner.RunPass(context.Background(), at(14, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(OutcomeDuplicate))
	assert.Empty(t, report.Errors)
}

func TestRunPassStaleIntervalsCountMisses(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	pt := post
	race := h.addRace(t, &pt)
	h.capturer.fail = func(*models.Race, models.IntervalLabel) error {
		return oddsfeed.ErrProviderUnavailable
	}

	// 10min_before is 17 minutes late.
	report, err := h.runner.RunPass(context.Background(), at(14, 37))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(OutcomeStale))
	got, err := h.repos.Race.GetByID(context.Background(), race.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConsecutiveMisses)

	// Re-evaluating the same instant does not count the miss twice.
	report, err = h.runner.RunPass(context.Background(), at(14, 37))
	require.NoError(t, err)
	assert.Zero(t, report.Count(OutcomeStale))

	h.capturer.fail = nil
	_, err = h.runner.RunPass(context.Background(), at(14, 37))
	require.NoError(t, err)
	got, err = h.repos.Race.GetByID(context.Background(), race.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ConsecutiveMisses)
}

func TestRunPassAbandonsAfterConsecutiveMisses(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.MaxConsecutiveMisses = 2
	h := newHarness(t, cfg)
	pt := post
	race := h.addRace(t, &pt)

	// Three intervals are already stale at 14:44.
	report, err := h.runner.RunPass(context.Background(), at(14, 44))
	require.NoError(t, err)

	assert.Equal(t, []string{race.ID.String()}, report.Missed)
	assert.Equal(t, 3, report.Count(OutcomeStale))
	assert.Empty(t, h.capturer.intervals())
	assert.Equal(t, models.RaceStatusMissed, h.status(t, race))
}

func TestRunPassMarksMissedRaces(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	pt := post
	late := h.addRace(t, &pt)
	unknown := h.addRace(t, nil)

	report, err := h.runner.RunPass(context.Background(), at(15, 1))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{late.ID.String(), unknown.ID.String()}, report.Missed)
	assert.Equal(t, models.RaceStatusMissed, h.status(t, late))
	assert.Equal(t, models.RaceStatusMissed, h.status(t, unknown))
	assert.Empty(t, h.capturer.intervals())
}

func TestRunPassOutsideRacingHours(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.Hours = &RacingHours{Days: []time.Weekday{time.Sunday}, Location: time.UTC}
	h := newHarness(t, cfg)
	pt := post
	h.addRace(t, &pt)

	report, err := h.runner.RunPass(context.Background(), at(14, 20))
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, report.Races)
	assert.Empty(t, h.capturer.intervals())
}

func TestRunPassProcessesRacesConcurrently(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.Workers = 3
	h := newHarness(t, cfg)

	var races []*models.Race
	for i := 0; i < 10; i++ {
		pt := post.Add(time.Duration(i) * time.Second)
		races = append(races, h.addRace(t, &pt))
	}

	report, err := h.runner.RunPass(context.Background(), post.Add(20*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 10, report.Races)
	assert.Len(t, report.Finished, 10)
	assert.Len(t, h.capturer.intervals(), 50)
	for _, r := range races {
		assert.Equal(t, models.RaceStatusFinished, h.status(t, r))
	}
}

func TestRunPassCancelled(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())
	pt := post
	h.addRace(t, &pt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.RunPass(ctx, at(14, 29))
	assert.True(t, errors.Is(err, context.Canceled))
}
