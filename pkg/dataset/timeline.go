package dataset

import "fmt"

// Timeline is the ordered, gap-free sequence of period keys the engine
// scrubs through. Historical months come first, predicted months are
// appended after; the boundary drives the prediction-only behavior of
// detail lookups.
type Timeline struct {
	months     []string
	lastActual int // index of the last month with ground-truth transactions; -1 if none
}

// NewTimeline validates and combines the historical and predicted month
// lists. Months must be unique and strictly increasing across the join.
func NewTimeline(historical, predicted []string) (*Timeline, error) {
	months := make([]string, 0, len(historical)+len(predicted))
	months = append(months, historical...)
	months = append(months, predicted...)
	if len(months) == 0 {
		return nil, fmt.Errorf("timeline: no months")
	}
	for i := 1; i < len(months); i++ {
		if months[i] <= months[i-1] {
			return nil, fmt.Errorf("timeline: months not strictly increasing at %q", months[i])
		}
	}
	return &Timeline{months: months, lastActual: len(historical) - 1}, nil
}

func (t *Timeline) Len() int { return len(t.months) }

// Month returns the period key at index i. i must already be in range;
// use Clamp first for untrusted input.
func (t *Timeline) Month(i int) string { return t.months[i] }

// Clamp bounds i to the valid index range.
func (t *Timeline) Clamp(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(t.months) {
		return len(t.months) - 1
	}
	return i
}

// IndexOf returns the index of a period key, or -1.
func (t *Timeline) IndexOf(month string) int {
	for i, m := range t.months {
		if m == month {
			return i
		}
	}
	return -1
}

// IsPredicted reports whether index i lies beyond the last month with
// recorded transactions.
func (t *Timeline) IsPredicted(i int) bool { return i > t.lastActual }

// Root returns the dataset root that holds index i's files.
func (t *Timeline) Root(i int) string {
	if t.IsPredicted(i) {
		return RootPredicted
	}
	return RootHistorical
}
