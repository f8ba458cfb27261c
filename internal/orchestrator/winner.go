package orchestrator

import (
	"sort"

	"sqlbeam/internal/domain"
)

// SelectWinner picks the best candidate from a completed benchmark set.
// It is a pure function of its input: highest speedup among usable
// results (WIN/IMPROVED/NEUTRAL with both match flags set), ties broken
// by lowest candidate id. Returns nil when nothing is usable.
func SelectWinner(candidates []*domain.Candidate) *domain.Candidate {
	usable := make([]*domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c != nil && c.ValidationState == domain.ValidationPassed && c.Result.Usable() {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil
	}
	sort.Slice(usable, func(i, j int) bool {
		if usable[i].Result.Speedup != usable[j].Result.Speedup {
			return usable[i].Result.Speedup > usable[j].Result.Speedup
		}
		return usable[i].ID < usable[j].ID
	})
	return usable[0]
}

// betterThan reports whether a improves on b by more than margin.
// A nil b always loses; a nil a never wins.
func betterThan(a, b *domain.Candidate, margin float64) bool {
	if a == nil || a.Result == nil {
		return false
	}
	if b == nil || b.Result == nil {
		return true
	}
	return a.Result.Speedup > b.Result.Speedup*(1+margin)
}
