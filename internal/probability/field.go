package probability

import (
	"github.com/yourusername/stall10n/internal/models"
	"github.com/yourusername/stall10n/internal/oddsfeed"
)

// BuildField prepares engine input. Each entry is priced from its latest
// live snapshot, falling back to the morning line. The returned interval is
// the latest one any price came from, nil when only morning lines were used.
func BuildField(entries []*models.Entry, latest []*models.OddsSnapshot) ([]Runner, *models.IntervalLabel) {
	live := make(map[int]*models.OddsSnapshot, len(latest))
	for _, snap := range latest {
		live[snap.ProgramNumber] = snap
	}

	var source *models.IntervalLabel
	field := make([]Runner, 0, len(entries))
	for _, e := range entries {
		if e.Scratched {
			continue
		}
		r := Runner{
			EntryID:       e.ID,
			ProgramNumber: e.ProgramNumber,
			Scores:        ScoreEntry(e),
		}

		if snap, ok := live[e.ProgramNumber]; ok && snap.DecimalOdds > 1 {
			r.DecimalOdds = snap.DecimalOdds
			if source == nil || snap.Interval.Ordinal() > source.Ordinal() {
				label := snap.Interval
				source = &label
			}
		} else if odds, err := oddsfeed.ParseOdds(e.MorningLine); err == nil {
			r.DecimalOdds = odds
		}

		field = append(field, r)
	}
	return field, source
}
