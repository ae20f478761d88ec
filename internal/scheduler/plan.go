// Package scheduler decides which odds intervals are due for each monitored
// race and drives the periodic capture passes.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/stall10n/internal/config"
	"github.com/yourusername/stall10n/internal/models"
)

// Default windows used when no configuration is supplied.
const (
	DefaultStalenessWindow = 15 * time.Minute
	DefaultGraceWindow     = 30 * time.Minute
)

// ErrStaleInterval marks an interval whose capture window has passed
var ErrStaleInterval = errors.New("interval capture window has passed")

// StaleIntervalError reports one interval that can no longer be captured
type StaleIntervalError struct {
	Interval models.IntervalLabel
	Target   time.Time
	Late     time.Duration
}

func (e *StaleIntervalError) Error() string {
	return fmt.Sprintf("%s missed: target %s passed %s ago", e.Interval, e.Target.Format(time.RFC3339), e.Late.Round(time.Second))
}

func (e *StaleIntervalError) Unwrap() error {
	return ErrStaleInterval
}

// Plan is the set of intervals to capture and the windows that bound them
type Plan struct {
	Intervals       []models.IntervalLabel
	StalenessWindow time.Duration
	GraceWindow     time.Duration
}

// DefaultPlan captures every interval with the default windows
func DefaultPlan() Plan {
	return Plan{
		Intervals:       models.AllIntervals(),
		StalenessWindow: DefaultStalenessWindow,
		GraceWindow:     DefaultGraceWindow,
	}
}

// PlanFromConfig builds a plan from scheduler configuration
func PlanFromConfig(cfg *config.SchedulerConfig) (Plan, error) {
	plan := Plan{
		StalenessWindow: cfg.StalenessWindow(),
		GraceWindow:     cfg.GraceWindow(),
	}
	for _, name := range cfg.Intervals {
		label, err := models.ParseIntervalLabel(name)
		if err != nil {
			return Plan{}, err
		}
		plan.Intervals = append(plan.Intervals, label)
	}
	if err := plan.Validate(); err != nil {
		return Plan{}, err
	}
	models.SortIntervals(plan.Intervals)
	return plan, nil
}

// Validate checks the plan is usable
func (p Plan) Validate() error {
	if len(p.Intervals) == 0 {
		return fmt.Errorf("plan has no intervals")
	}
	seen := make(map[models.IntervalLabel]bool, len(p.Intervals))
	for _, label := range p.Intervals {
		if !label.IsValid() {
			return fmt.Errorf("%w: %q", models.ErrInvalidInterval, label)
		}
		if seen[label] {
			return fmt.Errorf("interval %s listed twice", label)
		}
		seen[label] = true
	}
	if p.StalenessWindow <= 0 {
		return fmt.Errorf("staleness window must be positive")
	}
	if p.GraceWindow < p.StalenessWindow {
		return fmt.Errorf("grace window %s shorter than staleness window %s", p.GraceWindow, p.StalenessWindow)
	}
	return nil
}

// Last returns the final interval of the plan
func (p Plan) Last() models.IntervalLabel {
	return p.Intervals[len(p.Intervals)-1]
}

// Evaluation classifies every planned interval of one race at one instant
type Evaluation struct {
	Due     []models.IntervalLabel
	Stale   []*StaleIntervalError
	Pending []models.IntervalLabel
	// Skipped holds uncaptured intervals that precede a captured one. They
	// can never be stored without breaking chronological order.
	Skipped []models.IntervalLabel
	// Missed is set when nothing was ever captured and the grace window after post has closed.
	Missed bool
	// Complete is set when no interval can become due again.
	Complete bool
}

// Evaluate decides which intervals are due, stale or still pending.
// An interval is due once its target has passed and it is not yet stale;
// already captured intervals are never due again, and neither is any
// interval earlier than the latest capture.
func Evaluate(postTime, now time.Time, captured []models.IntervalLabel, plan Plan) Evaluation {
	done := make(map[models.IntervalLabel]bool, len(captured))
	latest := -1
	for _, label := range captured {
		done[label] = true
		if o := label.Ordinal(); o > latest {
			latest = o
		}
	}

	var ev Evaluation
	for _, label := range plan.Intervals {
		if done[label] {
			continue
		}
		if label.Ordinal() < latest {
			ev.Skipped = append(ev.Skipped, label)
			continue
		}
		target := label.TargetTime(postTime)
		switch {
		case now.Before(target):
			ev.Pending = append(ev.Pending, label)
		case now.Sub(target) <= plan.StalenessWindow:
			ev.Due = append(ev.Due, label)
		default:
			ev.Stale = append(ev.Stale, &StaleIntervalError{
				Interval: label,
				Target:   target,
				Late:     now.Sub(target),
			})
		}
	}

	ev.Missed = len(captured) == 0 && now.After(postTime.Add(plan.GraceWindow))
	ev.Complete = len(ev.Due) == 0 && len(ev.Pending) == 0
	return ev
}

// TrailingStale counts stale intervals after the last captured one, which is
// the race's current run of consecutive misses.
func TrailingStale(captured []models.IntervalLabel, ev Evaluation) int {
	last := -1
	for _, label := range captured {
		if o := label.Ordinal(); o > last {
			last = o
		}
	}
	n := 0
	for _, s := range ev.Stale {
		if s.Interval.Ordinal() > last {
			n++
		}
	}
	return n
}
