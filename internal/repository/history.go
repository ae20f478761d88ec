package repository

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yourusername/stall10n/internal/models"
)

// sortSnapshots orders by interval sequence, then program number
func sortSnapshots(snaps []*models.OddsSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		oi, oj := snaps[i].Interval.Ordinal(), snaps[j].Interval.Ordinal()
		if oi != oj {
			return oi < oj
		}
		return snaps[i].ProgramNumber < snaps[j].ProgramNumber
	})
}

// buildHistory groups snapshots by interval in the fixed sequence, independent of insertion order
func buildHistory(raceID uuid.UUID, snaps []*models.OddsSnapshot) *models.OddsHistory {
	sorted := make([]*models.OddsSnapshot, len(snaps))
	copy(sorted, snaps)
	sortSnapshots(sorted)

	history := &models.OddsHistory{RaceID: raceID, Intervals: []models.IntervalOdds{}}
	for _, snap := range sorted {
		n := len(history.Intervals)
		if n == 0 || history.Intervals[n-1].Interval != snap.Interval {
			history.Intervals = append(history.Intervals, models.IntervalOdds{
				Interval:   snap.Interval,
				CapturedAt: snap.CapturedAt,
			})
			n++
		}
		iv := &history.Intervals[n-1]
		if snap.CapturedAt.Before(iv.CapturedAt) {
			iv.CapturedAt = snap.CapturedAt
		}
		iv.Odds = append(iv.Odds, snap)
	}
	return history
}

// buildMovement compares each entry across every interval. Missing points are
// nil; change is measured from the earliest to the latest captured interval.
func buildMovement(snaps []*models.OddsSnapshot) []models.EntryMovement {
	type key struct {
		entry    uuid.UUID
		interval models.IntervalLabel
	}
	byKey := make(map[key]*models.OddsSnapshot, len(snaps))
	programs := make(map[uuid.UUID]int)
	for _, snap := range snaps {
		byKey[key{snap.EntryID, snap.Interval}] = snap
		programs[snap.EntryID] = snap.ProgramNumber
	}

	entryIDs := make([]uuid.UUID, 0, len(programs))
	for id := range programs {
		entryIDs = append(entryIDs, id)
	}
	sort.Slice(entryIDs, func(i, j int) bool {
		return programs[entryIDs[i]] < programs[entryIDs[j]]
	})

	movements := make([]models.EntryMovement, 0, len(entryIDs))
	for _, id := range entryIDs {
		m := models.EntryMovement{EntryID: id, ProgramNumber: programs[id]}
		var first, last *models.OddsSnapshot

		for _, label := range models.AllIntervals() {
			point := models.MovementPoint{Interval: label}
			if snap, ok := byKey[key{id, label}]; ok {
				odds := snap.DecimalOdds
				point.RawOdds = snap.RawOdds
				point.DecimalOdds = &odds
				if first == nil {
					first = snap
				}
				last = snap
			}
			m.Points = append(m.Points, point)
		}

		if first != nil {
			m.EarliestInterval = &first.Interval
			m.LatestInterval = &last.Interval
		}
		if first != nil && first != last && first.DecimalOdds > 0 {
			change := percentChange(first.DecimalOdds, last.DecimalOdds)
			m.ChangePct = &change
		}
		movements = append(movements, m)
	}
	return movements
}

// percentChange returns (to-from)/from*100 rounded to two places
func percentChange(from, to float64) float64 {
	f := decimal.NewFromFloat(from)
	return decimal.NewFromFloat(to).Sub(f).Div(f).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// latestPerEntry keeps each entry's snapshot from its latest interval
func latestPerEntry(snaps []*models.OddsSnapshot) []*models.OddsSnapshot {
	latest := make(map[uuid.UUID]*models.OddsSnapshot)
	for _, snap := range snaps {
		cur, ok := latest[snap.EntryID]
		if !ok || snap.Interval.Ordinal() > cur.Interval.Ordinal() {
			latest[snap.EntryID] = snap
		}
	}

	out := make([]*models.OddsSnapshot, 0, len(latest))
	for _, snap := range latest {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramNumber < out[j].ProgramNumber })
	return out
}

// distinctIntervals returns the captured labels in sequence order
func distinctIntervals(snaps []*models.OddsSnapshot) []models.IntervalLabel {
	seen := make(map[models.IntervalLabel]bool)
	labels := make([]models.IntervalLabel, 0, len(models.AllIntervals()))
	for _, snap := range snaps {
		if !seen[snap.Interval] {
			seen[snap.Interval] = true
			labels = append(labels, snap.Interval)
		}
	}
	models.SortIntervals(labels)
	return labels
}
