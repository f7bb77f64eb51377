package pipeline

import (
	"maps"
	"slices"
	"time"
)

// Summary reports what a run did.
type Summary struct {
	RunID    string
	Shards   int
	Sessions int
	Written  int
	// Skipped counts expected skips by reason.
	Skipped map[string]int
	// Failed counts series that hit an unexpected error.
	Failed   int
	Duration time.Duration
}

func newSummary(runID string) *Summary {
	return &Summary{RunID: runID, Skipped: map[string]int{}}
}

// SkippedTotal sums Skipped over all reasons.
func (s *Summary) SkippedTotal() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// SkipReasons returns the skip reasons in sorted order.
func (s *Summary) SkipReasons() []string {
	return slices.Sorted(maps.Keys(s.Skipped))
}
