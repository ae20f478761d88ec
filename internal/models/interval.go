package models

import (
	"fmt"
	"sort"
	"time"
)

// IntervalLabel names one capture point relative to post time
type IntervalLabel string

const (
	Interval10MinBefore IntervalLabel = "10min_before"
	Interval5MinBefore  IntervalLabel = "5min_before"
	Interval2MinBefore  IntervalLabel = "2min_before"
	Interval1MinBefore  IntervalLabel = "1min_before"
	IntervalAtPost      IntervalLabel = "at_post"
)

// intervalSequence is chronological, furthest from post first.
var intervalSequence = []IntervalLabel{
	Interval10MinBefore,
	Interval5MinBefore,
	Interval2MinBefore,
	Interval1MinBefore,
	IntervalAtPost,
}

var intervalOffsets = map[IntervalLabel]time.Duration{
	Interval10MinBefore: 10 * time.Minute,
	Interval5MinBefore:  5 * time.Minute,
	Interval2MinBefore:  2 * time.Minute,
	Interval1MinBefore:  1 * time.Minute,
	IntervalAtPost:      0,
}

// AllIntervals returns the fixed interval sequence in chronological order
func AllIntervals() []IntervalLabel {
	out := make([]IntervalLabel, len(intervalSequence))
	copy(out, intervalSequence)
	return out
}

// ParseIntervalLabel validates a label string
func ParseIntervalLabel(s string) (IntervalLabel, error) {
	label := IntervalLabel(s)
	if !label.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return label, nil
}

// IsValid reports whether the label belongs to the fixed sequence
func (l IntervalLabel) IsValid() bool {
	_, ok := intervalOffsets[l]
	return ok
}

// Ordinal returns the position of the label in the sequence, or -1
func (l IntervalLabel) Ordinal() int {
	for i, label := range intervalSequence {
		if label == l {
			return i
		}
	}
	return -1
}

// Offset returns how long before post time the interval targets
func (l IntervalLabel) Offset() time.Duration {
	return intervalOffsets[l]
}

// TargetTime returns the capture target for a given post time
func (l IntervalLabel) TargetTime(postTime time.Time) time.Time {
	return postTime.Add(-l.Offset())
}

func (l IntervalLabel) String() string {
	return string(l)
}

// SortIntervals orders labels in place by the fixed sequence
func SortIntervals(labels []IntervalLabel) {
	sort.SliceStable(labels, func(i, j int) bool {
		return labels[i].Ordinal() < labels[j].Ordinal()
	})
}
