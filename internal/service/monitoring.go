package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/logger"
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/oddsfeed"
	"github.com/yourusername/stall10n/internal/repository"
)

// QuotaStatusProvider reports provider quota usage
type QuotaStatusProvider interface {
	Status(ctx context.Context) (oddsfeed.QuotaStatus, error)
}

// LiveOddsReader reads a race's board through the odds cache
type LiveOddsReader interface {
	FetchOdds(ctx context.Context, externalRaceID string, interval models.IntervalLabel) (*oddsfeed.RaceOdds, error)
	Invalidate(externalRaceID string)
}

// LiveOdds is the provider board for the interval a race is currently in
type LiveOdds struct {
	RaceID   uuid.UUID            `json:"race_id"`
	Interval models.IntervalLabel `json:"interval"`
	Odds     *oddsfeed.RaceOdds   `json:"odds"`
}

// RaceHistory is a race with its captured odds and per-entry movement
type RaceHistory struct {
	Race     *models.Race           `json:"race"`
	History  *models.OddsHistory    `json:"history"`
	Movement []models.EntryMovement `json:"movement"`
}

// MonitorStatus is the operator view of the monitor
type MonitorStatus struct {
	GeneratedAt    time.Time             `json:"generated_at"`
	Quota          oddsfeed.QuotaStatus  `json:"quota"`
	MonitoredRaces int                   `json:"monitored_races"`
	Today          *models.DailySummary  `json:"today"`
	Captures       *CaptureStatsSnapshot `json:"captures,omitempty"`
}

// MonitoringService exposes the monitor's query and command operations
type MonitoringService struct {
	races           repository.RaceRepository
	snapshots       repository.SnapshotRepository
	recommendations *RecommendationService
	quota           QuotaStatusProvider
	capture         *CaptureService
	live            LiveOddsReader
	validator       *DataValidator
	audit           *logger.AuditLogger
	loc             *time.Location
	lookAhead       time.Duration
	now             func() time.Time
}

// MonitoringOptions configures MonitoringService
type MonitoringOptions struct {
	Location  *time.Location
	LookAhead time.Duration
	// LiveOdds serves on-demand reads; nil disables them
	LiveOdds LiveOddsReader
}

// NewMonitoringService creates a monitoring service; quota and capture may be nil
func NewMonitoringService(
	races repository.RaceRepository,
	snapshots repository.SnapshotRepository,
	recommendations *RecommendationService,
	quota QuotaStatusProvider,
	capture *CaptureService,
	audit *logger.AuditLogger,
	opts MonitoringOptions,
) *MonitoringService {
	if audit == nil {
		audit = logger.NewAuditLogger(logrus.StandardLogger())
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LookAhead <= 0 {
		opts.LookAhead = 3 * time.Hour
	}
	return &MonitoringService{
		races:           races,
		snapshots:       snapshots,
		recommendations: recommendations,
		quota:           quota,
		capture:         capture,
		live:            opts.LiveOdds,
		validator:       NewDataValidator(audit),
		audit:           audit,
		loc:             opts.Location,
		lookAhead:       opts.LookAhead,
		now:             time.Now,
	}
}

// EnableMonitoring starts or updates monitoring for a race. Repeating the
// same request is a no-op; a new post time corrects the schedule.
func (s *MonitoringService) EnableMonitoring(ctx context.Context, raceID uuid.UUID, externalID string, postTime time.Time) (bool, error) {
	if err := s.validator.ValidateMonitoringRequest(externalID, postTime, s.now()); err != nil {
		return false, err
	}

	before, err := s.races.GetByID(ctx, raceID)
	if err != nil {
		return false, err
	}

	changed, err := s.races.EnableMonitoring(ctx, raceID, externalID, postTime.UTC())
	if err != nil {
		return false, err
	}

	if changed && before.MonitoringEnabled && before.PostTime != nil && !before.PostTime.Equal(postTime) {
		s.audit.LogPostTimeCorrected(raceID.String(), *before.PostTime, postTime)
	}
	s.audit.LogMonitoringEnabled(raceID.String(), externalID, postTime, changed)
	return changed, nil
}

// DisableMonitoring stops scheduling captures for a race
func (s *MonitoringService) DisableMonitoring(ctx context.Context, raceID uuid.UUID) error {
	race, err := s.races.GetByID(ctx, raceID)
	if err != nil {
		return err
	}
	if err := s.races.DisableMonitoring(ctx, raceID); err != nil {
		return err
	}
	if s.live != nil && race.ExternalID != "" {
		s.live.Invalidate(race.ExternalID)
	}
	s.audit.LogMonitoringDisabled(raceID.String())
	return nil
}

// LiveOdds returns the race's current board. Repeat reads within an
// interval are served from cache and spend no quota.
func (s *MonitoringService) LiveOdds(ctx context.Context, raceID uuid.UUID) (*LiveOdds, error) {
	if s.live == nil {
		return nil, errors.New("live odds are not configured")
	}
	race, err := s.races.GetByID(ctx, raceID)
	if err != nil {
		return nil, err
	}
	if race.ExternalID == "" {
		return nil, fmt.Errorf("race %s has no provider race id: %w", raceID, models.ErrInvalidID)
	}

	interval := currentInterval(race.PostTime, s.now())
	odds, err := s.live.FetchOdds(ctx, race.ExternalID, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to read live odds for race %s: %w", raceID, err)
	}
	return &LiveOdds{RaceID: raceID, Interval: interval, Odds: odds}, nil
}

// currentInterval is the latest label whose target has passed, or the
// first label before the window opens
func currentInterval(postTime *time.Time, now time.Time) models.IntervalLabel {
	labels := models.AllIntervals()
	current := labels[0]
	if postTime == nil {
		return current
	}
	for _, label := range labels {
		if label.TargetTime(*postTime).After(now) {
			break
		}
		current = label
	}
	return current
}

// History returns the race's odds history and movement
func (s *MonitoringService) History(ctx context.Context, raceID uuid.UUID) (*RaceHistory, error) {
	race, err := s.races.GetByID(ctx, raceID)
	if err != nil {
		return nil, err
	}
	history, err := s.snapshots.GetHistory(ctx, raceID)
	if err != nil {
		return nil, err
	}
	movement, err := s.snapshots.GetMovement(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return &RaceHistory{Race: race, History: history, Movement: movement}, nil
}

// Recommendations returns the race's current ranked table
func (s *MonitoringService) Recommendations(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	if _, err := s.races.GetByID(ctx, raceID); err != nil {
		return nil, err
	}
	return s.recommendations.Latest(ctx, raceID)
}

// RecommendationHistory returns current and superseded tables, newest first
func (s *MonitoringService) RecommendationHistory(ctx context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	if _, err := s.races.GetByID(ctx, raceID); err != nil {
		return nil, err
	}
	return s.recommendations.All(ctx, raceID)
}

// Status reports quota use, monitored races and today's capture counts
func (s *MonitoringService) Status(ctx context.Context) (*MonitorStatus, error) {
	now := s.now()
	status := &MonitorStatus{GeneratedAt: now.UTC()}

	if s.quota != nil {
		q, err := s.quota.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read quota: %w", err)
		}
		status.Quota = q
	}

	races, err := s.races.ListMonitored(ctx, now, s.lookAhead)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored races: %w", err)
	}
	status.MonitoredRaces = len(races)

	today, err := s.summary(ctx, now)
	if err != nil {
		return nil, err
	}
	status.Today = today

	if s.capture != nil {
		stats := s.capture.Stats()
		status.Captures = &stats
	}
	return status, nil
}

// DailySummary logs and returns the capture summary for the local day containing day
func (s *MonitoringService) DailySummary(ctx context.Context, day time.Time) (*models.DailySummary, error) {
	summary, err := s.summary(ctx, day)
	if err != nil {
		return nil, err
	}

	var used, limit int
	if s.quota != nil {
		q, err := s.quota.Status(ctx)
		if err == nil {
			used, limit = q.Used, q.Limit
		}
	}
	s.audit.LogDailySummary(summary.Date, summary.Captured, summary.Missed, used, limit)
	return summary, nil
}

// RunDailySummary summarizes the current local day; used by the scheduler
func (s *MonitoringService) RunDailySummary(ctx context.Context) error {
	_, err := s.DailySummary(ctx, s.now())
	return err
}

func (s *MonitoringService) summary(ctx context.Context, day time.Time) (*models.DailySummary, error) {
	local := day.In(s.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	to := from.AddDate(0, 0, 1)

	summary, err := s.races.Summary(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize %s: %w", from.Format("2006-01-02"), err)
	}
	summary.Date = from
	return summary, nil
}

// IsNotFound reports whether err means the race does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
