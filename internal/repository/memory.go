package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourusername/stall10n/internal/models"
)

type snapshotKey struct {
	race     uuid.UUID
	entry    uuid.UUID
	interval models.IntervalLabel
}

// MemoryStore is an in-process store with the same constraints as the
// PostgreSQL schema. Used by tests and by the CLI when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	races     map[uuid.UUID]*models.Race
	entries   map[uuid.UUID]*models.Entry
	snapshots map[snapshotKey]*models.OddsSnapshot
	results   map[uuid.UUID][]*models.ProbabilityResult
	now       func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		races:     make(map[uuid.UUID]*models.Race),
		entries:   make(map[uuid.UUID]*models.Entry),
		snapshots: make(map[snapshotKey]*models.OddsSnapshot),
		results:   make(map[uuid.UUID][]*models.ProbabilityResult),
		now:       time.Now,
	}
}

// Repositories exposes the store through the repository interfaces
func (m *MemoryStore) Repositories() *Repositories {
	return &Repositories{
		Race:        memoryRaces{m},
		Entry:       memoryEntries{m},
		Snapshot:    memorySnapshots{m},
		Probability: memoryResults{m},
	}
}

// DeleteRace removes a race and everything it owns
func (m *MemoryStore) DeleteRace(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.races, id)
	delete(m.results, id)
	for eid, e := range m.entries {
		if e.RaceID == id {
			delete(m.entries, eid)
		}
	}
	for k := range m.snapshots {
		if k.race == id {
			delete(m.snapshots, k)
		}
	}
}

func copyRace(r *models.Race) *models.Race {
	c := *r
	if r.PostTime != nil {
		t := *r.PostTime
		c.PostTime = &t
	}
	return &c
}

type memoryRaces struct{ m *MemoryStore }

func (r memoryRaces) Create(_ context.Context, race *models.Race) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if race.ID == uuid.Nil {
		race.ID = uuid.New()
	}
	if race.Status == "" {
		race.Status = models.RaceStatusScheduled
	}
	now := r.m.now()
	race.CreatedAt, race.UpdatedAt = now, now
	r.m.races[race.ID] = copyRace(race)
	return nil
}

func (r memoryRaces) GetByID(_ context.Context, id uuid.UUID) (*models.Race, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	race, ok := r.m.races[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyRace(race), nil
}

func (r memoryRaces) ListMonitored(_ context.Context, now time.Time, lookAhead time.Duration) ([]*models.Race, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	horizon := now.Add(lookAhead)
	var out []*models.Race
	for _, race := range r.m.races {
		if !race.IsMonitorable() {
			continue
		}
		if race.PostTime != nil && race.PostTime.After(horizon) {
			continue
		}
		out = append(out, copyRace(race))
	}

	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].PostTime, out[j].PostTime
		switch {
		case pi == nil && pj == nil:
			return out[i].RaceNumber < out[j].RaceNumber
		case pi == nil:
			return true
		case pj == nil:
			return false
		case !pi.Equal(*pj):
			return pi.Before(*pj)
		}
		return out[i].RaceNumber < out[j].RaceNumber
	})
	return out, nil
}

func (r memoryRaces) EnableMonitoring(_ context.Context, id uuid.UUID, externalID string, postTime time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	race, ok := r.m.races[id]
	if !ok {
		return false, models.ErrNotFound
	}

	unchanged := race.MonitoringEnabled && race.ExternalID == externalID &&
		race.PostTime != nil && race.PostTime.Equal(postTime)
	if !race.CanCorrectPostTime() {
		if unchanged {
			return false, nil
		}
		return false, models.ErrRaceClosed
	}
	if unchanged {
		return false, nil
	}

	pt := postTime
	race.ExternalID = externalID
	race.PostTime = &pt
	race.MonitoringEnabled = true
	race.UpdatedAt = r.m.now()
	return true, nil
}

func (r memoryRaces) DisableMonitoring(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	race, ok := r.m.races[id]
	if !ok {
		return models.ErrNotFound
	}
	race.MonitoringEnabled = false
	race.UpdatedAt = r.m.now()
	return nil
}

func (r memoryRaces) UpdateStatus(_ context.Context, id uuid.UUID, status models.RaceStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	race, ok := r.m.races[id]
	if !ok {
		return models.ErrNotFound
	}
	if race.IsFinished() {
		return models.ErrRaceClosed
	}
	race.Status = status
	race.UpdatedAt = r.m.now()
	return nil
}

func (r memoryRaces) AddMisses(_ context.Context, id uuid.UUID, n int) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	race, ok := r.m.races[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	race.ConsecutiveMisses += n
	return race.ConsecutiveMisses, nil
}

func (r memoryRaces) ResetMisses(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if race, ok := r.m.races[id]; ok {
		race.ConsecutiveMisses = 0
	}
	return nil
}

func (r memoryRaces) ListByPostTime(_ context.Context, from, to time.Time) ([]*models.Race, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.Race
	for _, race := range r.m.races {
		if race.PostTime == nil || race.PostTime.Before(from) || !race.PostTime.Before(to) {
			continue
		}
		out = append(out, copyRace(race))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostTime.Equal(*out[j].PostTime) {
			return out[i].PostTime.Before(*out[j].PostTime)
		}
		return out[i].RaceNumber < out[j].RaceNumber
	})
	return out, nil
}

func (r memoryRaces) Summary(_ context.Context, from, to time.Time) (*models.DailySummary, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	captured := make(map[uuid.UUID]bool)
	for k := range r.m.snapshots {
		captured[k.race] = true
	}

	summary := &models.DailySummary{Date: from}
	for _, race := range r.m.races {
		if race.PostTime == nil || race.PostTime.Before(from) || !race.PostTime.Before(to) {
			continue
		}
		switch {
		case race.Status == models.RaceStatusMissed:
			summary.Missed++
		case !race.MonitoringEnabled:
		case captured[race.ID]:
			summary.Captured++
		default:
			summary.Pending++
		}
	}
	return summary, nil
}

type memoryEntries struct{ m *MemoryStore }

func (e memoryEntries) Create(_ context.Context, entry *models.Entry) error {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()

	if _, ok := e.m.races[entry.RaceID]; !ok {
		return models.ErrNotFound
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := e.m.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	c := *entry
	e.m.entries[entry.ID] = &c
	return nil
}

func (e memoryEntries) GetByRaceID(_ context.Context, raceID uuid.UUID) ([]*models.Entry, error) {
	e.m.mu.RLock()
	defer e.m.mu.RUnlock()

	var out []*models.Entry
	for _, entry := range e.m.entries {
		if entry.RaceID == raceID && !entry.Scratched {
			c := *entry
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramNumber < out[j].ProgramNumber })
	return out, nil
}

func (e memoryEntries) AttachResult(_ context.Context, entryID uuid.UUID, finishPosition int, winPayoff *decimal.Decimal) error {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()

	entry, ok := e.m.entries[entryID]
	if !ok {
		return models.ErrNotFound
	}
	pos := finishPosition
	entry.FinishPosition = &pos
	entry.WinPayoff = winPayoff
	entry.UpdatedAt = e.m.now()
	return nil
}

type memorySnapshots struct{ m *MemoryStore }

// check and insert require the write lock
func (s memorySnapshots) check(snap *models.OddsSnapshot) error {
	if _, ok := s.m.entries[snap.EntryID]; !ok {
		return models.ErrNotFound
	}
	if !snap.Interval.IsValid() {
		return models.ErrInvalidInterval
	}
	return nil
}

func (s memorySnapshots) insert(snap *models.OddsSnapshot) error {
	if err := s.check(snap); err != nil {
		return err
	}
	key := snapshotKey{snap.RaceID, snap.EntryID, snap.Interval}
	if _, exists := s.m.snapshots[key]; exists {
		return models.ErrDuplicateSnapshot
	}
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	c := *snap
	s.m.snapshots[key] = &c
	return nil
}

func (s memorySnapshots) Save(_ context.Context, snap *models.OddsSnapshot) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.insert(snap)
}

func (s memorySnapshots) SaveBatch(_ context.Context, snaps []*models.OddsSnapshot) (BatchResult, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	// a bad row rejects the whole batch, as the transactional store does
	for _, snap := range snaps {
		if err := s.check(snap); err != nil {
			return BatchResult{}, err
		}
	}

	var result BatchResult
	for _, snap := range snaps {
		switch err := s.insert(snap); err {
		case nil:
			result.Stored++
		case models.ErrDuplicateSnapshot:
			result.Duplicates++
		default:
			return result, err
		}
	}
	return result, nil
}

func (s memorySnapshots) byRace(raceID uuid.UUID) []*models.OddsSnapshot {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()

	var out []*models.OddsSnapshot
	for k, snap := range s.m.snapshots {
		if k.race == raceID {
			c := *snap
			out = append(out, &c)
		}
	}
	return out
}

func (s memorySnapshots) Exists(_ context.Context, raceID uuid.UUID, interval models.IntervalLabel) (bool, error) {
	for _, snap := range s.byRace(raceID) {
		if snap.Interval == interval {
			return true, nil
		}
	}
	return false, nil
}

func (s memorySnapshots) CapturedIntervals(_ context.Context, raceID uuid.UUID) ([]models.IntervalLabel, error) {
	return distinctIntervals(s.byRace(raceID)), nil
}

func (s memorySnapshots) GetHistory(_ context.Context, raceID uuid.UUID) (*models.OddsHistory, error) {
	return buildHistory(raceID, s.byRace(raceID)), nil
}

func (s memorySnapshots) GetMovement(_ context.Context, raceID uuid.UUID) ([]models.EntryMovement, error) {
	return buildMovement(s.byRace(raceID)), nil
}

func (s memorySnapshots) GetLatest(_ context.Context, raceID uuid.UUID) ([]*models.OddsSnapshot, error) {
	return latestPerEntry(s.byRace(raceID)), nil
}

type memoryResults struct{ m *MemoryStore }

func (p memoryResults) SaveResults(_ context.Context, raceID uuid.UUID, results []*models.ProbabilityResult) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	if _, ok := p.m.races[raceID]; !ok {
		return models.ErrNotFound
	}
	for _, old := range p.m.results[raceID] {
		old.Superseded = true
	}
	for _, res := range results {
		if res.ID == uuid.Nil {
			res.ID = uuid.New()
		}
		res.RaceID = raceID
		res.Superseded = false
		c := *res
		p.m.results[raceID] = append(p.m.results[raceID], &c)
	}
	return nil
}

func (p memoryResults) GetCurrent(_ context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	p.m.mu.RLock()
	defer p.m.mu.RUnlock()

	var out []*models.ProbabilityResult
	for _, res := range p.m.results[raceID] {
		if !res.Superseded {
			c := *res
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (p memoryResults) GetAll(_ context.Context, raceID uuid.UUID) ([]*models.ProbabilityResult, error) {
	p.m.mu.RLock()
	defer p.m.mu.RUnlock()

	stored := p.m.results[raceID]
	out := make([]*models.ProbabilityResult, 0, len(stored))
	// appended oldest first
	for i := len(stored) - 1; i >= 0; i-- {
		c := *stored[i]
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.After(out[j].ComputedAt)
		}
		return out[i].Rank < out[j].Rank
	})
	return out, nil
}
