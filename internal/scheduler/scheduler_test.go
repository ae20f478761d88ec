package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// go-redis starts a process-wide clock goroutine from init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.startGlobalTimeCache.func1"))
}

type mockPassRunner struct {
	mock.Mock
}

func (m *mockPassRunner) RunPass(ctx context.Context, now time.Time) (*PassReport, error) {
	args := m.Called(ctx, now)
	report, _ := args.Get(0).(*PassReport)
	return report, args.Error(1)
}

func TestSchedulerRequiresJobs(t *testing.T) {
	s := NewScheduler(&mockPassRunner{}, time.UTC, nil)
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
	assert.True(t, s.GetNextRun().IsZero())
}

func TestSchedulerLifecycle(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewScheduler(&mockPassRunner{}, time.UTC, log)

	require.NoError(t, s.ScheduleCapturePasses(1))
	require.NoError(t, s.ScheduleDailySummary("55 23 * * *", func(context.Context) error { return nil }))
	assert.Error(t, s.ScheduleDailySummary("not a cron", func(context.Context) error { return nil }))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start())
	assert.Error(t, s.ScheduleCapturePasses(30), "jobs cannot be added while running")

	entries := s.Entries()
	require.Len(t, entries, 2)
	next := s.GetNextRun()
	assert.False(t, next.IsZero())
	// Pass period is clamped to the minimum.
	assert.WithinDuration(t, time.Now().Add(MinPassIntervalSeconds*time.Second), next, 2*time.Second)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	require.NoError(t, s.Stop())
}

func TestRunPassNowKeepsLastReport(t *testing.T) {
	log, hook := test.NewNullLogger()
	runner := &mockPassRunner{}
	report := &PassReport{Races: 2, Outcomes: []IntervalOutcome{{Outcome: OutcomeCaptured}}}
	runner.On("RunPass", mock.Anything, mock.AnythingOfType("time.Time")).Return(report, nil).Once()
	runner.On("RunPass", mock.Anything, mock.AnythingOfType("time.Time")).Return(&PassReport{}, errors.New("db down")).Once()

	s := NewScheduler(runner, time.UTC, log)

	got, err := s.RunPassNow(context.Background())
	require.NoError(t, err)
	assert.Same(t, report, got)
	assert.Same(t, report, s.LastReport())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Capture pass completed", hook.LastEntry().Message)
	assert.Equal(t, 1, hook.LastEntry().Data["captured"])

	_, err = s.RunPassNow(context.Background())
	assert.EqualError(t, err, "db down")
	runner.AssertExpectations(t)
}

type slowRunner struct {
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (r *slowRunner) RunPass(ctx context.Context, now time.Time) (*PassReport, error) {
	r.once.Do(func() { close(r.started) })
	time.Sleep(r.delay)
	return &PassReport{StartedAt: now}, nil
}

func TestStopWaitsOnlyForRunningPass(t *testing.T) {
	log, _ := test.NewNullLogger()
	runner := &slowRunner{delay: 500 * time.Millisecond, started: make(chan struct{})}
	s := NewScheduler(runner, time.UTC, log)
	s.minPassInterval = 1
	s.gracefulTimeout = 3 * time.Second

	require.NoError(t, s.ScheduleCapturePasses(1))
	require.NoError(t, s.Start())

	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("capture pass never started")
	}

	begin := time.Now()
	require.NoError(t, s.Stop())
	assert.Less(t, time.Since(begin), 2*time.Second)
	assert.NotNil(t, s.LastReport(), "the in-flight pass completes and records its report")
}
