package oddsfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourusername/stall10n/internal/metrics"
)

// QuotaStore holds the per-day call counter. Reserve must check and
// increment atomically so concurrent workers cannot overshoot the limit.
type QuotaStore interface {
	// Reserve increments the counter for day if it is below limit.
	// It returns the counter value and whether the call was granted.
	Reserve(ctx context.Context, day string, limit int, expireAt time.Time) (int, bool, error)
	Used(ctx context.Context, day string) (int, error)
}

// QuotaStatus reports the current day's budget
type QuotaStatus struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// QuotaTracker enforces the provider's daily call budget. The day rolls
// over at local midnight in the configured timezone.
type QuotaTracker struct {
	store  QuotaStore
	limit  int
	loc    *time.Location
	now    func() time.Time
	logger logrus.FieldLogger
}

// NewQuotaTracker creates a tracker; a nil location means UTC
func NewQuotaTracker(store QuotaStore, limit int, loc *time.Location, logger logrus.FieldLogger) *QuotaTracker {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &QuotaTracker{store: store, limit: limit, loc: loc, now: time.Now, logger: logger}
}

// SetClock replaces the time source
func (q *QuotaTracker) SetClock(now func() time.Time) {
	q.now = now
}

func (q *QuotaTracker) period() (string, time.Time) {
	local := q.now().In(q.loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, q.loc)
	return local.Format("2006-01-02"), midnight
}

// Reserve consumes one call from today's budget
func (q *QuotaTracker) Reserve(ctx context.Context) error {
	day, resetAt := q.period()

	used, ok, err := q.store.Reserve(ctx, day, q.limit, resetAt)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	metrics.UpdateQuota(used, q.limit)

	if !ok {
		metrics.RecordQuotaRejection()
		q.logger.WithFields(logrus.Fields{
			"used":     used,
			"limit":    q.limit,
			"reset_at": resetAt,
		}).Warn("Daily provider quota exhausted")
		return NewFeedError("quota", ErrCodeQuotaExceeded,
			fmt.Sprintf("%d of %d calls used, resets at %s", used, q.limit, resetAt.Format(time.RFC3339)), nil)
	}
	return nil
}

// Status returns today's usage
func (q *QuotaTracker) Status(ctx context.Context) (QuotaStatus, error) {
	day, resetAt := q.period()

	used, err := q.store.Used(ctx, day)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("failed to read quota: %w", err)
	}

	remaining := q.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{Used: used, Limit: q.limit, Remaining: remaining, ResetAt: resetAt}, nil
}

// MemoryQuotaStore keeps the counter in process
type MemoryQuotaStore struct {
	mu   sync.Mutex
	day  string
	used int
}

// NewMemoryQuotaStore creates an empty in-process store
func NewMemoryQuotaStore() *MemoryQuotaStore {
	return &MemoryQuotaStore{}
}

func (s *MemoryQuotaStore) rollover(day string) {
	if s.day != day {
		s.day = day
		s.used = 0
	}
}

// Reserve implements QuotaStore
func (s *MemoryQuotaStore) Reserve(_ context.Context, day string, limit int, _ time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollover(day)
	if s.used >= limit {
		return s.used, false, nil
	}
	s.used++
	return s.used, true, nil
}

// Used implements QuotaStore
func (s *MemoryQuotaStore) Used(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.day != day {
		return 0, nil
	}
	return s.used, nil
}

// Set forces today's counter, for restoring state or tests
func (s *MemoryQuotaStore) Set(day string, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.day = day
	s.used = used
}
