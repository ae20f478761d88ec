package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/stall10n/internal/config"
	"github.com/yourusername/stall10n/internal/models"
)

var post = time.Date(2026, 6, 6, 14, 30, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2026, 6, 6, hour, minute, 0, 0, time.UTC)
}

func TestEvaluateTenMinutesBeforePost(t *testing.T) {
	ev := Evaluate(post, at(14, 20), nil, DefaultPlan())

	assert.Equal(t, []models.IntervalLabel{models.Interval10MinBefore}, ev.Due)
	assert.Empty(t, ev.Stale)
	assert.Len(t, ev.Pending, 4)
	assert.False(t, ev.Missed)
	assert.False(t, ev.Complete)
}

func TestEvaluateBeforeFirstTarget(t *testing.T) {
	ev := Evaluate(post, at(14, 19), nil, DefaultPlan())

	assert.Empty(t, ev.Due)
	assert.Equal(t, models.AllIntervals(), ev.Pending)
}

func TestEvaluateSkipsCapturedIntervals(t *testing.T) {
	captured := []models.IntervalLabel{models.Interval10MinBefore}
	ev := Evaluate(post, at(14, 28), captured, DefaultPlan())

	assert.Equal(t, []models.IntervalLabel{models.Interval5MinBefore, models.Interval2MinBefore}, ev.Due)
	assert.Equal(t, []models.IntervalLabel{models.Interval1MinBefore, models.IntervalAtPost}, ev.Pending)
}

func TestEvaluateNeverDueBeforeLatestCapture(t *testing.T) {
	// 5min_before was never stored but 2min_before was.
	captured := []models.IntervalLabel{models.Interval10MinBefore, models.Interval2MinBefore}
	ev := Evaluate(post, at(14, 29), captured, DefaultPlan())

	assert.Equal(t, []models.IntervalLabel{models.Interval1MinBefore}, ev.Due)
	assert.Equal(t, []models.IntervalLabel{models.Interval5MinBefore}, ev.Skipped)
	assert.Empty(t, ev.Stale)
	assert.Equal(t, []models.IntervalLabel{models.IntervalAtPost}, ev.Pending)
}

func TestEvaluateStaleBoundary(t *testing.T) {
	// 14:35 is exactly fifteen minutes after the 10min_before target.
	ev := Evaluate(post, at(14, 35), nil, DefaultPlan())
	assert.Contains(t, ev.Due, models.Interval10MinBefore)
	assert.Empty(t, ev.Stale)

	ev = Evaluate(post, at(14, 35).Add(time.Second), nil, DefaultPlan())
	require.Len(t, ev.Stale, 1)
	stale := ev.Stale[0]
	assert.Equal(t, models.Interval10MinBefore, stale.Interval)
	assert.Equal(t, at(14, 20), stale.Target)
	assert.ErrorIs(t, stale, ErrStaleInterval)
	assert.Equal(t, 4, len(ev.Due))
}

func TestEvaluateMissedAfterGrace(t *testing.T) {
	ev := Evaluate(post, at(15, 0), nil, DefaultPlan())
	assert.False(t, ev.Missed, "grace window is inclusive")

	ev = Evaluate(post, at(15, 1), nil, DefaultPlan())
	assert.True(t, ev.Missed)
	assert.True(t, ev.Complete)
	assert.Len(t, ev.Stale, 5)

	ev = Evaluate(post, at(15, 1), []models.IntervalLabel{models.Interval2MinBefore}, DefaultPlan())
	assert.False(t, ev.Missed)
	assert.True(t, ev.Complete)
}

func TestTrailingStale(t *testing.T) {
	captured := []models.IntervalLabel{models.Interval5MinBefore}
	// 2min_before is stale; 10min_before precedes the capture and is skipped.
	ev := Evaluate(post, at(14, 44), captured, DefaultPlan())
	require.Len(t, ev.Stale, 1)
	assert.Equal(t, models.Interval2MinBefore, ev.Stale[0].Interval)
	assert.Equal(t, []models.IntervalLabel{models.Interval10MinBefore}, ev.Skipped)
	assert.Equal(t, 1, TrailingStale(captured, ev))

	ev = Evaluate(post, at(14, 44), nil, DefaultPlan())
	assert.Equal(t, 3, TrailingStale(nil, ev))
}

func TestPlanFromConfig(t *testing.T) {
	cfg := &config.SchedulerConfig{
		Intervals:              []string{"at_post", "10min_before"},
		StalenessWindowMinutes: 5,
		GraceWindowMinutes:     20,
	}
	plan, err := PlanFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []models.IntervalLabel{models.Interval10MinBefore, models.IntervalAtPost}, plan.Intervals)
	assert.Equal(t, 5*time.Minute, plan.StalenessWindow)
	assert.Equal(t, models.IntervalAtPost, plan.Last())

	cfg.Intervals = []string{"3min_before"}
	_, err = PlanFromConfig(cfg)
	assert.ErrorIs(t, err, models.ErrInvalidInterval)

	cfg.Intervals = []string{"at_post", "at_post"}
	_, err = PlanFromConfig(cfg)
	assert.Error(t, err)

	cfg.Intervals = []string{"at_post"}
	cfg.GraceWindowMinutes = 1
	_, err = PlanFromConfig(cfg)
	assert.Error(t, err)
}

func TestRacingHours(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	hours := &RacingHours{
		Days:      []time.Weekday{time.Friday, time.Saturday},
		StartHour: 11,
		EndHour:   23,
		Location:  ny,
	}

	// 2026-06-06 is a Saturday; 14:30 UTC is 10:30 in New York.
	assert.False(t, hours.Allows(at(14, 30)))
	assert.True(t, hours.Allows(at(15, 0)))
	assert.False(t, hours.Allows(at(14, 30).Add(24*time.Hour)), "sunday")

	var none *RacingHours
	assert.True(t, none.Allows(at(3, 0)))

	allDay := &RacingHours{Days: []time.Weekday{time.Saturday}}
	assert.True(t, allDay.Allows(at(3, 0)))
}
