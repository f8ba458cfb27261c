// Package router classifies a batch of queries into heavy and light
// buckets to pick an orchestration strategy.
package router

import (
	"sort"

	"sqlbeam/internal/domain"
)

// HeavyShare is the fraction of total batch cost that the heavy bucket
// accumulates. Documented default policy.
const HeavyShare = 0.80

// Classify sorts queries descending by estimated cost and accumulates
// until the running sum reaches HeavyShare of the batch total: everything
// accumulated so far is heavy, the rest light. Ties break by query id so
// identical inputs always classify identically. A non-nil override
// bypasses computation entirely; queries missing from it default to light.
func Classify(costs map[string]float64, override map[string]domain.RouteMode) map[string]domain.RouteMode {
	out := make(map[string]domain.RouteMode, len(costs))
	if override != nil {
		for id := range costs {
			if mode, ok := override[id]; ok {
				out[id] = mode
			} else {
				out[id] = domain.RouteLight
			}
		}
		return out
	}

	type entry struct {
		id   string
		cost float64
	}
	entries := make([]entry, 0, len(costs))
	total := 0.0
	for id, c := range costs {
		entries = append(entries, entry{id, c})
		total += c
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].cost != entries[j].cost {
			return entries[i].cost > entries[j].cost
		}
		return entries[i].id < entries[j].id
	})

	if total <= 0 {
		for _, e := range entries {
			out[e.id] = domain.RouteLight
		}
		return out
	}

	threshold := total * HeavyShare
	sum := 0.0
	crossed := false
	for _, e := range entries {
		if crossed {
			out[e.id] = domain.RouteLight
			continue
		}
		out[e.id] = domain.RouteHeavy
		sum += e.cost
		if sum >= threshold {
			crossed = true
		}
	}
	return out
}

// ModeStrategy maps a route mode onto its orchestration strategy: heavy
// queries get the focused beam, light ones the wide beam.
func ModeStrategy(mode domain.RouteMode) domain.Strategy {
	if mode == domain.RouteHeavy {
		return domain.StrategyFocused
	}
	return domain.StrategyWide
}
