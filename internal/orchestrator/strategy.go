package orchestrator

import (
	"fmt"

	"sqlbeam/internal/domain"
)

// Default beam shapes. The wide beam spends many cheap, narrowly-scoped
// requests; the focused beam spends few richly-contextualized ones and
// more synthesis rounds.
const (
	DefaultWideRequests     = 12
	DefaultWideSynthesis    = 1
	DefaultWideCompounds    = 3
	DefaultFocusedRequests  = 4
	DefaultFocusedSynthesis = 4

	// DefaultMinImprovement is the negligible-margin threshold: a round
	// that fails to beat the running best by this fraction terminates
	// the session.
	DefaultMinImprovement = 0.01
)

// wideTargets are the hypothesized single-transform scopes handed out one
// per wide-beam request, cycled when there are more requests than
// hypotheses.
var wideTargets = []string{
	"decorrelate a correlated subquery into an explicit join",
	"push filter predicates below joins and aggregations",
	"replace IN (subquery) with a semi join or EXISTS",
	"materialize a repeated subexpression as a CTE",
	"inline a CTE that is referenced exactly once",
	"eliminate a redundant DISTINCT or GROUP BY",
	"reorder joins so the most selective predicate applies first",
	"rewrite OR chains over one column as IN lists",
	"prune columns that are never consumed downstream",
	"convert a scalar subquery in the select list to a join",
	"split a wide aggregation into pre-aggregated parts",
	"replace a self-join with a window function",
}

// focusedTarget is the full structural brief carried by each focused-beam
// request.
func focusedTarget(session *domain.QuerySession) string {
	worst := ""
	for _, sig := range session.Signals {
		if sig.Severity == domain.SeverityMajor || sig.Severity == domain.SeverityCatastrophic {
			worst = fmt.Sprintf(" The planner misestimates node %q (%s, %s misestimate, q-error %.0f): prioritize restructuring it.",
				sig.NodeID, sig.Locus, sig.Direction, sig.QError)
			break
		}
	}
	return "Rewrite the statement for lower execution time while returning byte-identical results. " +
		"You may restructure CTEs, joins, and subqueries freely; every literal and the output column list must survive unchanged." + worst
}

// synthesisTarget asks for compound candidates informed by prior rounds.
func synthesisTarget(round int) string {
	return fmt.Sprintf(
		"Synthesis round %d: combine the transforms that passed or nearly passed in the attached history into compound rewrites; avoid transforms that failed validation.",
		round)
}

// roundPlan shapes one sortie's generator fan-out.
type roundPlan struct {
	targets   []string // one request per entry
	perCall   int      // candidates requested per call
	synthesis bool
}

// planRound decides the sortie shape for the session's strategy.
// synthesisRound is zero for exploration rounds and counts from one for
// synthesis rounds.
func (o *Orchestrator) planRound(session *domain.QuerySession, synthesisRound int) roundPlan {
	if synthesisRound > 0 {
		n := o.cfg.WideCompounds
		if session.Strategy == domain.StrategyFocused {
			n = 2
		}
		return roundPlan{
			targets:   []string{synthesisTarget(synthesisRound)},
			perCall:   n,
			synthesis: true,
		}
	}

	if session.Strategy == domain.StrategyWide {
		targets := make([]string, o.cfg.WideRequests)
		for i := range targets {
			targets[i] = wideTargets[i%len(wideTargets)]
		}
		return roundPlan{targets: targets, perCall: 1}
	}

	targets := make([]string, o.cfg.FocusedRequests)
	for i := range targets {
		targets[i] = focusedTarget(session)
	}
	return roundPlan{targets: targets, perCall: 1}
}

// maxSynthesisRounds is the per-strategy synthesis budget.
func (o *Orchestrator) maxSynthesisRounds(strategy domain.Strategy) int {
	if strategy == domain.StrategyFocused {
		return o.cfg.FocusedSynthesis
	}
	return o.cfg.WideSynthesis
}
