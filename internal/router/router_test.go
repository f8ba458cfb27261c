package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sqlbeam/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		costs map[string]float64
		heavy []string
		light []string
	}{
		{
			name:  "cost_mass_split",
			costs: map[string]float64{"q1": 100, "q2": 50, "q3": 30, "q4": 10, "q5": 5, "q6": 5},
			// total 200, threshold 160: 100+50=150, +30 crosses at 180.
			heavy: []string{"q1", "q2", "q3"},
			light: []string{"q4", "q5", "q6"},
		},
		{
			name:  "single_query_is_heavy",
			costs: map[string]float64{"q1": 42},
			heavy: []string{"q1"},
		},
		{
			name:  "uniform_costs",
			costs: map[string]float64{"a": 10, "b": 10, "c": 10, "d": 10, "e": 10},
			// threshold 40: four accumulate, the fifth is light.
			heavy: []string{"a", "b", "c", "d"},
			light: []string{"e"},
		},
		{
			name:  "zero_total_all_light",
			costs: map[string]float64{"q1": 0, "q2": 0},
			light: []string{"q1", "q2"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			modes := Classify(tc.costs, nil)
			for _, id := range tc.heavy {
				assert.Equal(t, domain.RouteHeavy, modes[id], "query %s", id)
			}
			for _, id := range tc.light {
				assert.Equal(t, domain.RouteLight, modes[id], "query %s", id)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	costs := map[string]float64{"a": 10, "b": 10, "c": 10, "d": 10}
	first := Classify(costs, nil)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Classify(costs, nil), "ties must break identically on every run")
	}
}

func TestClassify_Override(t *testing.T) {
	costs := map[string]float64{"q1": 100, "q2": 1}
	override := map[string]domain.RouteMode{"q2": domain.RouteHeavy}

	modes := Classify(costs, override)
	assert.Equal(t, domain.RouteHeavy, modes["q2"])
	assert.Equal(t, domain.RouteLight, modes["q1"], "queries missing from the override default to light")
}

func TestModeStrategy(t *testing.T) {
	assert.Equal(t, domain.StrategyFocused, ModeStrategy(domain.RouteHeavy))
	assert.Equal(t, domain.StrategyWide, ModeStrategy(domain.RouteLight))
}
