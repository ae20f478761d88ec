package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MinPassIntervalSeconds is the shortest allowed period between passes
const MinPassIntervalSeconds = 5

// PassRunner runs one capture pass
type PassRunner interface {
	RunPass(ctx context.Context, now time.Time) (*PassReport, error)
}

// Scheduler manages the recurring capture pass and daily summary jobs
type Scheduler struct {
	cron            *cron.Cron
	runner          PassRunner
	logger          logrus.FieldLogger
	mu              sync.RWMutex
	isRunning       bool
	jobIDs          []cron.EntryID
	gracefulTimeout time.Duration
	minPassInterval int
	lastReport      atomic.Pointer[PassReport]
}

// NewScheduler creates a scheduler evaluating cron specs in loc
func NewScheduler(runner PassRunner, loc *time.Location, logger logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cronLogger := cron.PrintfLogger(logger)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:          runner,
		logger:          logger.WithField("component", "scheduler"),
		jobIDs:          make([]cron.EntryID, 0),
		gracefulTimeout: 30 * time.Second,
		minPassInterval: MinPassIntervalSeconds,
	}
}

// RunPassNow runs a single pass immediately and records its report
func (s *Scheduler) RunPassNow(ctx context.Context) (*PassReport, error) {
	report, err := s.runner.RunPass(ctx, time.Now())
	if report != nil {
		s.lastReport.Store(report)
	}
	if err != nil {
		return report, err
	}

	entry := s.logger.WithFields(report.Fields())
	switch {
	case report.Skipped:
		entry.Debug("Capture pass skipped")
	case len(report.Errors) > 0:
		for _, e := range report.Errors {
			s.logger.WithError(e).Warn("Capture pass race error")
		}
		entry.Warn("Capture pass completed with errors")
	default:
		entry.Info("Capture pass completed")
	}
	return report, nil
}

// ScheduleCapturePasses runs a capture pass every intervalSeconds
func (s *Scheduler) ScheduleCapturePasses(intervalSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	if intervalSeconds < s.minPassInterval {
		intervalSeconds = s.minPassInterval
	}
	timeout := time.Duration(intervalSeconds)*time.Second - 500*time.Millisecond

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if _, err := s.RunPassNow(ctx); err != nil {
			s.logger.WithError(err).Error("Capture pass failed")
		}
	}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds), jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("interval_seconds", intervalSeconds).Info("Scheduled capture pass job")

	return nil
}

// ScheduleDailySummary runs fn on the given cron expression
func (s *Scheduler) ScheduleDailySummary(cronExpression string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.WithError(err).Error("Daily summary failed")
		}
	}

	entryID, err := s.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("cron", cronExpression).Info("Scheduled daily summary job")

	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop waits for running jobs to finish, up to the graceful timeout
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	stopped := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-stopped.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(s.gracefulTimeout):
		return fmt.Errorf("scheduler jobs still running after %s", s.gracefulTimeout)
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastReport returns the most recent pass report, if any
func (s *Scheduler) LastReport() *PassReport {
	return s.lastReport.Load()
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}

	return entries
}
