package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/stall10n/internal/config"
	"github.com/yourusername/stall10n/internal/logger"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/oddsfeed"
	"github.com/yourusername/stall10n/internal/repository"
)

// Interval outcomes recorded in pass reports and metrics
const (
	OutcomeCaptured  = "captured"
	OutcomeDuplicate = "duplicate"
	OutcomeDeferred  = "deferred"
	OutcomeFailed    = "failed"
	OutcomeStale     = "stale"
	OutcomeSkipped   = "skipped"
)

// Capturer fetches and stores one interval of odds for a race
type Capturer interface {
	Capture(ctx context.Context, race *models.Race, interval models.IntervalLabel) (models.CaptureResult, error)
}

// QuotaReporter exposes current provider quota usage
type QuotaReporter interface {
	Status(ctx context.Context) (oddsfeed.QuotaStatus, error)
}

// RacingHours restricts passes to configured days and hours
type RacingHours struct {
	Days      []time.Weekday
	StartHour int
	EndHour   int
	Location  *time.Location
}

// RacingHoursFromConfig returns nil when no racing days are configured
func RacingHoursFromConfig(cfg *config.SchedulerConfig) *RacingHours {
	days := cfg.Weekdays()
	if len(days) == 0 {
		return nil
	}
	return &RacingHours{
		Days:      days,
		StartHour: cfg.RacingHoursStart,
		EndHour:   cfg.RacingHoursEnd,
		Location:  cfg.Location(),
	}
}

// Allows reports whether now falls inside racing hours
func (h *RacingHours) Allows(now time.Time) bool {
	if h == nil {
		return true
	}
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	dayOK := len(h.Days) == 0
	for _, d := range h.Days {
		if local.Weekday() == d {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false
	}
	if h.StartHour == 0 && h.EndHour == 0 {
		return true
	}
	return local.Hour() >= h.StartHour && local.Hour() < h.EndHour
}

// RunnerConfig tunes a capture pass
type RunnerConfig struct {
	Plan                 Plan
	Workers              int
	LookAhead            time.Duration
	MaxConsecutiveMisses int
	Hours                *RacingHours
}

// DefaultRunnerConfig returns the built-in pass settings
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Plan:                 DefaultPlan(),
		Workers:              4,
		LookAhead:            3 * time.Hour,
		MaxConsecutiveMisses: 3,
	}
}

// RunnerConfigFromConfig builds pass settings from scheduler configuration
func RunnerConfigFromConfig(cfg *config.SchedulerConfig) (RunnerConfig, error) {
	plan, err := PlanFromConfig(cfg)
	if err != nil {
		return RunnerConfig{}, err
	}
	return RunnerConfig{
		Plan:                 plan,
		Workers:              cfg.Workers,
		LookAhead:            cfg.LookAhead(),
		MaxConsecutiveMisses: cfg.MaxConsecutiveMisses,
		Hours:                RacingHoursFromConfig(cfg),
	}, nil
}

// IntervalOutcome is the result of attempting one interval of one race
type IntervalOutcome struct {
	RaceID   string
	Interval models.IntervalLabel
	Outcome  string
	Result   models.CaptureResult
	Err      error
}

// PassReport summarizes one scheduler pass
type PassReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Skipped   bool
	Races     int
	Outcomes  []IntervalOutcome
	Missed    []string
	Finished  []string
	Errors    []error
}

// Count returns how many intervals ended with outcome
func (r *PassReport) Count(outcome string) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome == outcome {
			n++
		}
	}
	return n
}

// Fields returns the report as structured log fields
func (r *PassReport) Fields() logrus.Fields {
	return logrus.Fields{
		"races":       r.Races,
		"captured":    r.Count(OutcomeCaptured),
		"duplicates":  r.Count(OutcomeDuplicate),
		"deferred":    r.Count(OutcomeDeferred),
		"failed":      r.Count(OutcomeFailed),
		"stale":       r.Count(OutcomeStale),
		"skipped":     r.Count(OutcomeSkipped),
		"missed":      len(r.Missed),
		"finished":    len(r.Finished),
		"errors":      len(r.Errors),
		"duration_ms": r.Duration.Milliseconds(),
	}
}

type raceReport struct {
	outcomes []IntervalOutcome
	missed   bool
	finished bool
	err      error
}

// Runner executes capture passes over monitored races
type Runner struct {
	races     repository.RaceRepository
	snapshots repository.SnapshotRepository
	capturer  Capturer
	quota     QuotaReporter
	cfg       RunnerConfig
	logger    *logger.CaptureLogger

	// failed tracks provider failures per race until the race closes
	mu     sync.Mutex
	failed map[uuid.UUID]map[models.IntervalLabel]attempt
}

type attempt int

const (
	attemptFailed attempt = iota + 1
	attemptAbandoned
)

// NewRunner creates a pass runner; quota may be nil
func NewRunner(
	races repository.RaceRepository,
	snapshots repository.SnapshotRepository,
	capturer Capturer,
	quota QuotaReporter,
	cfg RunnerConfig,
	log *logger.CaptureLogger,
) (*Runner, error) {
	if err := cfg.Plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture plan: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxConsecutiveMisses <= 0 {
		cfg.MaxConsecutiveMisses = DefaultRunnerConfig().MaxConsecutiveMisses
	}
	if log == nil {
		log = logger.NewCaptureLogger(logrus.StandardLogger())
	}
	return &Runner{
		races:     races,
		snapshots: snapshots,
		capturer:  capturer,
		quota:     quota,
		cfg:       cfg,
		logger:    log,
		failed:    make(map[uuid.UUID]map[models.IntervalLabel]attempt),
	}, nil
}

// RunPass evaluates every monitored race at now and captures due intervals.
// Races are processed concurrently up to the worker limit; a race's own
// intervals are always attempted in chronological order.
func (r *Runner) RunPass(ctx context.Context, now time.Time) (*PassReport, error) {
	report := &PassReport{StartedAt: now}
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		metrics.RecordPass(report.Races, report.Duration.Seconds())
	}()

	if !r.cfg.Hours.Allows(now) {
		report.Skipped = true
		r.logger.WithField("at", now).Debug("Outside racing hours, pass skipped")
		return report, nil
	}

	races, err := r.races.ListMonitored(ctx, now, r.cfg.LookAhead)
	if err != nil {
		return report, fmt.Errorf("failed to list monitored races: %w", err)
	}
	report.Races = len(races)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, race := range races {
		race := race
		g.Go(func() error {
			rr := r.processRace(gctx, race, now)

			mu.Lock()
			defer mu.Unlock()
			report.Outcomes = append(report.Outcomes, rr.outcomes...)
			if rr.missed {
				report.Missed = append(report.Missed, race.ID.String())
			}
			if rr.finished {
				report.Finished = append(report.Finished, race.ID.String())
			}
			if rr.err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("race %s: %w", race.ID, rr.err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) processRace(ctx context.Context, race *models.Race, now time.Time) (rr raceReport) {
	raceID := race.ID.String()
	defer func() {
		if rr.missed || rr.finished {
			r.forget(race.ID)
			metrics.ClearRace(raceID)
		}
	}()

	if race.PostTime == nil {
		rr.err = r.markMissed(ctx, race, "post time unknown")
		rr.missed = rr.err == nil
		return rr
	}

	captured, err := r.snapshots.CapturedIntervals(ctx, race.ID)
	if err != nil {
		rr.err = err
		return rr
	}

	ev := Evaluate(*race.PostTime, now, captured, r.cfg.Plan)
	if ev.Missed {
		rr.err = r.markMissed(ctx, race, "no interval captured before grace window closed")
		rr.missed = rr.err == nil
		return rr
	}

	misses := race.ConsecutiveMisses
	if trailing := TrailingStale(captured, ev); trailing > misses {
		newly := ev.Stale[len(ev.Stale)-(trailing-misses):]
		total, err := r.races.AddMisses(ctx, race.ID, len(newly))
		if err != nil {
			rr.err = err
			return rr
		}
		misses = total
		for _, stale := range newly {
			r.logger.LogStaleInterval(raceID, stale.Interval.String(), stale.Late, misses)
			metrics.RecordIntervalOutcome(stale.Interval.String(), OutcomeStale)
			rr.outcomes = append(rr.outcomes, IntervalOutcome{
				RaceID: raceID, Interval: stale.Interval, Outcome: OutcomeStale, Err: stale,
			})
		}
		if misses >= r.cfg.MaxConsecutiveMisses {
			rr.err = r.markMissed(ctx, race, fmt.Sprintf("%d consecutive intervals missed", misses))
			rr.missed = rr.err == nil
			return rr
		}
	}

	due, passedOver := r.retryable(race.ID, ev.Due)
	for _, label := range passedOver {
		r.logger.LogIntervalPassedOver(raceID, label.String(), ev.Due[len(ev.Due)-1].String())
		metrics.RecordIntervalOutcome(label.String(), OutcomeSkipped)
		rr.outcomes = append(rr.outcomes, IntervalOutcome{RaceID: raceID, Interval: label, Outcome: OutcomeSkipped})
	}

	if len(due) > 0 && race.Status == models.RaceStatusScheduled {
		if err := r.races.UpdateStatus(ctx, race.ID, models.RaceStatusInProgress); err != nil {
			rr.err = err
			return rr
		}
	}

	for _, interval := range due {
		if ctx.Err() != nil {
			rr.err = ctx.Err()
			return rr
		}

		outcome := r.captureInterval(ctx, race, interval, now)
		rr.outcomes = append(rr.outcomes, outcome)
		metrics.RecordIntervalOutcome(interval.String(), outcome.Outcome)

		switch outcome.Outcome {
		case OutcomeCaptured, OutcomeDuplicate:
			captured = append(captured, interval)
			if misses > 0 {
				if err := r.races.ResetMisses(ctx, race.ID); err != nil {
					rr.err = err
					return rr
				}
				misses = 0
			}
		case OutcomeFailed:
			r.markFailed(race.ID, interval)
		case OutcomeDeferred:
			// Quota is exhausted; later intervals would fail the same way.
			return rr
		}
	}

	if r.isFinished(*race.PostTime, now, captured) {
		if err := r.races.UpdateStatus(ctx, race.ID, models.RaceStatusFinished); err != nil && !errors.Is(err, models.ErrRaceClosed) {
			rr.err = err
			return rr
		}
		rr.finished = true
	}
	return rr
}

func (r *Runner) isFinished(postTime, now time.Time, captured []models.IntervalLabel) bool {
	last := r.cfg.Plan.Last()
	for _, label := range captured {
		if label == last {
			return true
		}
	}
	return len(captured) > 0 && Evaluate(postTime, now, captured, r.cfg.Plan).Complete
}

// retryable drops due intervals that must not be requested again. An
// interval that already failed is retried only while it is the latest due
// one; once a later interval is due it is abandoned for good, so a race's
// snapshots are always requested in chronological order.
func (r *Runner) retryable(raceID uuid.UUID, due []models.IntervalLabel) (keep, passedOver []models.IntervalLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.failed[raceID]
	if len(state) == 0 {
		return due, nil
	}
	for i, label := range due {
		switch state[label] {
		case attemptAbandoned:
			continue
		case attemptFailed:
			if i < len(due)-1 {
				state[label] = attemptAbandoned
				passedOver = append(passedOver, label)
				continue
			}
		}
		keep = append(keep, label)
	}
	return keep, passedOver
}

func (r *Runner) markFailed(raceID uuid.UUID, interval models.IntervalLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed[raceID] == nil {
		r.failed[raceID] = make(map[models.IntervalLabel]attempt)
	}
	r.failed[raceID][interval] = attemptFailed
}

func (r *Runner) forget(raceID uuid.UUID) {
	r.mu.Lock()
	delete(r.failed, raceID)
	r.mu.Unlock()
}

func (r *Runner) captureInterval(ctx context.Context, race *models.Race, interval models.IntervalLabel, now time.Time) IntervalOutcome {
	raceID := race.ID.String()
	out := IntervalOutcome{RaceID: raceID, Interval: interval}

	result, err := r.capturer.Capture(ctx, race, interval)
	out.Result = result
	out.Err = err

	switch {
	case err == nil:
		out.Outcome = OutcomeCaptured
		metrics.RecordCaptureLag(interval.String(), now.Sub(interval.TargetTime(*race.PostTime)).Seconds())
	case errors.Is(err, models.ErrDuplicateSnapshot):
		out.Outcome = OutcomeDuplicate
		out.Err = nil
		r.logger.LogDuplicate(raceID, interval.String())
	case errors.Is(err, oddsfeed.ErrQuotaExceeded):
		out.Outcome = OutcomeDeferred
		used, limit := r.quotaUsage(ctx)
		r.logger.LogQuotaDeferred(raceID, interval.String(), used, limit)
	default:
		out.Outcome = OutcomeFailed
		r.logger.LogFetchFailed(raceID, interval.String(), err)
	}
	return out
}

func (r *Runner) quotaUsage(ctx context.Context) (int, int) {
	if r.quota == nil {
		return 0, 0
	}
	status, err := r.quota.Status(ctx)
	if err != nil {
		return 0, 0
	}
	return status.Used, status.Limit
}

func (r *Runner) markMissed(ctx context.Context, race *models.Race, reason string) error {
	if err := r.races.UpdateStatus(ctx, race.ID, models.RaceStatusMissed); err != nil {
		if errors.Is(err, models.ErrRaceClosed) {
			return nil
		}
		return fmt.Errorf("failed to mark race missed: %w", err)
	}
	r.logger.LogRaceMissed(race.ID.String(), reason)
	metrics.RecordRaceMissed()
	return nil
}
