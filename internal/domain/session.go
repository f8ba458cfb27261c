package domain

// Strategy selects the orchestration shape for one query.
type Strategy string

const (
	StrategyWide    Strategy = "wide"
	StrategyFocused Strategy = "focused"
)

// RouteMode is the workload router's verdict for one query.
type RouteMode string

const (
	RouteHeavy RouteMode = "heavy"
	RouteLight RouteMode = "light"
)

// SessionState is the orchestrator's per-query state machine.
type SessionState string

const (
	StateNew          SessionState = "NEW"
	StateGenerating   SessionState = "GENERATING"
	StateValidating   SessionState = "VALIDATING"
	StateBenchmarking SessionState = "BENCHMARKING"
	StateSynthesizing SessionState = "SYNTHESIZING"
	StateDone         SessionState = "DONE"
)

// SortieOutcome is the per-candidate record a synthesis round sees.
type SortieOutcome struct {
	CandidateID     string
	ProducedBy      string
	ValidationState ValidationState
	Classification  Classification
	Speedup         float64
}

// Sortie is one generate-validate-benchmark round. Best is nil when the
// round produced no usable candidate.
type Sortie struct {
	Index    int
	Outcomes []SortieOutcome
	Best     *Candidate
}

// SortieHistory is the immutable record of completed sorties handed by
// value into each synthesis request. Callers must never mutate history
// already passed to a generator call.
type SortieHistory struct {
	Sorties []Sortie
}

// Append returns a new history with s added; the receiver is unchanged.
func (h SortieHistory) Append(s Sortie) SortieHistory {
	out := make([]Sortie, len(h.Sorties), len(h.Sorties)+1)
	copy(out, h.Sorties)
	return SortieHistory{Sorties: append(out, s)}
}

// QuerySession owns one original query's optimization run: its DAG, the
// ordered sorties, and the running best candidate.
type QuerySession struct {
	QueryID     string
	OriginalSQL string
	Strategy    Strategy
	State       SessionState
	Dag         *QueryDag
	Signals     []PlanSignal
	History     SortieHistory
	Best        *Candidate
}
