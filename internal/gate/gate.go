// Package gate is the two-stage correctness filter every candidate passes
// before benchmarking: a static structural check, then an execution-based
// semantic check. Each stage allows exactly one retry; a second failure is
// terminal. Correctness dominates performance: a candidate that fails
// semantically is dropped no matter how fast it runs.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"sqlbeam/internal/domain"
	"sqlbeam/internal/sqldag"
)

// Structural rule identifiers surfaced as retry feedback.
const (
	RuleParse    = "candidate-must-parse"
	RuleLiterals = "literals-preserved"
	RuleColumns  = "output-columns-unchanged"
	RuleNodeIDs  = "referenced-nodes-defined"
)

// OriginalProfile is the original query's validation baseline, computed
// once per session and read-only afterwards.
type OriginalProfile struct {
	Literals []string // ordered literal list, raw text
	Columns  []string // terminal output columns as written
	NodeIDs  map[string]struct{}
	Tables   map[string]struct{}

	RowCount int64
	ColCount int
	Checksum string
}

// Gate validates candidates against an original profile.
type Gate struct {
	exec   domain.DatabaseExecutor
	hints  sqldag.SchemaHints
	logger *slog.Logger
	sem    *semaphore.Weighted
}

// Deps holds dependencies for Gate.
type Deps struct {
	Exec          domain.DatabaseExecutor
	Hints         sqldag.SchemaHints
	Logger        *slog.Logger
	MaxConcurrent int64 // concurrent semantic validation executions
}

// New creates a Gate.
func New(deps Deps) *Gate {
	if deps.MaxConcurrent <= 0 {
		deps.MaxConcurrent = 4
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Gate{
		exec:   deps.Exec,
		hints:  deps.Hints,
		logger: deps.Logger,
		sem:    semaphore.NewWeighted(deps.MaxConcurrent),
	}
}

// ProfileOriginal computes the validation baseline for the original query:
// its literals, terminal output columns, node ids, and result fingerprint.
func (g *Gate) ProfileOriginal(ctx context.Context, sql string, dag *domain.QueryDag) (*OriginalProfile, error) {
	prof := &OriginalProfile{
		Literals: sqldag.Literals(sql),
		Columns:  dag.Terminal().OutputColumns,
		NodeIDs:  map[string]struct{}{},
		Tables:   map[string]struct{}{},
	}
	for _, n := range dag.Nodes {
		prof.NodeIDs[strings.ToLower(n.ID)] = struct{}{}
		for t := range n.ReferencedTables {
			prof.Tables[strings.ToLower(t)] = struct{}{}
		}
	}

	count, sum, cols, err := Fingerprint(ctx, g.exec, sql)
	if err != nil {
		return nil, fmt.Errorf("profile original: %w", err)
	}
	prof.RowCount = count
	prof.Checksum = sum
	prof.ColCount = cols
	return prof, nil
}

// Structural runs the static checks. No execution happens here. The
// caller owns the one-retry budget and calls MarkStructuralFail once it
// is spent.
func (g *Gate) Structural(cand *domain.Candidate, prof *OriginalProfile) *domain.StructuralValidationError {
	if err := g.checkStructural(cand, prof); err != nil {
		g.logger.Debug("structural check failed",
			"candidate", cand.ID, "rule", err.Rule, "detail", err.Message)
		return err
	}
	return nil
}

// MarkStructuralFail records the terminal structural failure after the
// retry budget is spent.
func (g *Gate) MarkStructuralFail(cand *domain.Candidate) {
	cand.ValidationState = domain.ValidationStructuralFail
}

func (g *Gate) checkStructural(cand *domain.Candidate, prof *OriginalProfile) *domain.StructuralValidationError {
	candDag, err := sqldag.Build(cand.SourceSQL, g.hints)
	if err != nil {
		return domain.ErrStructural(RuleParse, "candidate does not parse: %v", err)
	}

	// Every literal from the original must survive verbatim. Comparison is
	// token-level after whitespace normalization: 35*0.01 is two number
	// tokens and never equals 0.35.
	remaining := map[string]int{}
	for _, lit := range prof.Literals {
		remaining[lit]++
	}
	for _, lit := range sqldag.Literals(cand.SourceSQL) {
		if remaining[lit] > 0 {
			remaining[lit]--
		}
	}
	var missing []string
	for lit, n := range remaining {
		if n > 0 {
			missing = append(missing, lit)
		}
	}
	if len(missing) > 0 {
		return domain.ErrStructural(RuleLiterals,
			"literal(s) from the original are missing or altered: %s", strings.Join(missing, ", "))
	}

	candCols := candDag.Terminal().OutputColumns
	if len(candCols) != len(prof.Columns) {
		return domain.ErrStructural(RuleColumns,
			"output column count changed: original %d, candidate %d", len(prof.Columns), len(candCols))
	}
	for i := range candCols {
		if !strings.EqualFold(candCols[i], prof.Columns[i]) {
			return domain.ErrStructural(RuleColumns,
				"output column %d renamed: original %q, candidate %q", i, prof.Columns[i], candCols[i])
		}
	}

	// A reference to a name that was a node in the original but is neither
	// defined by the candidate nor a real base table is an undefined node.
	candNodes := map[string]struct{}{}
	for _, n := range candDag.Nodes {
		candNodes[strings.ToLower(n.ID)] = struct{}{}
	}
	for _, n := range candDag.Nodes {
		for t := range n.ReferencedTables {
			lower := strings.ToLower(t)
			_, wasNode := prof.NodeIDs[lower]
			_, isTable := prof.Tables[lower]
			_, defined := candNodes[lower]
			if wasNode && !isTable && !defined {
				return domain.ErrStructural(RuleNodeIDs,
					"candidate references node %q without defining it", t)
			}
		}
	}
	return nil
}

// Semantic executes original-vs-candidate comparison: row counts must be
// equal and the canonical checksums must match. The returned validation
// error carries the observed delta for retry feedback; a non-nil second
// error is an execution failure (including timeout) and is also a
// semantic rejection for this candidate.
func (g *Gate) Semantic(ctx context.Context, cand *domain.Candidate, prof *OriginalProfile) (*domain.SemanticValidationError, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	count, sum, cols, err := Fingerprint(ctx, g.exec, cand.SourceSQL)
	if err != nil {
		return nil, err
	}

	if cols != prof.ColCount {
		delta := fmt.Sprintf("column count: original %d, candidate %d", prof.ColCount, cols)
		return domain.ErrSemantic(delta, "result shape mismatch: %s", delta), nil
	}
	if count != prof.RowCount {
		delta := fmt.Sprintf("row count: original %d, candidate %d", prof.RowCount, count)
		return domain.ErrSemantic(delta, "result mismatch: %s", delta), nil
	}
	if sum != prof.Checksum {
		delta := fmt.Sprintf("row count equal (%d) but row contents differ", count)
		return domain.ErrSemantic(delta, "checksum mismatch: %s", delta), nil
	}
	return nil, nil
}

// MarkSemanticFail records the terminal semantic failure after the retry
// budget is spent. The candidate is dropped even if it would benchmark
// faster than the original.
func (g *Gate) MarkSemanticFail(cand *domain.Candidate) {
	cand.ValidationState = domain.ValidationSemanticFail
}

// MarkPassed promotes a candidate that cleared both stages.
func (g *Gate) MarkPassed(cand *domain.Candidate) {
	cand.ValidationState = domain.ValidationPassed
}
