package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ValidationState is the candidate correctness state machine. All states
// other than pending are terminal.
type ValidationState string

const (
	ValidationPending        ValidationState = "pending"
	ValidationStructuralFail ValidationState = "structural_fail"
	ValidationSemanticFail   ValidationState = "semantic_fail"
	ValidationPassed         ValidationState = "passed"
)

// Classification buckets a benchmark speedup ratio.
type Classification string

const (
	ClassWin        Classification = "WIN"        // >= 1.10
	ClassImproved   Classification = "IMPROVED"   // [1.05, 1.10)
	ClassNeutral    Classification = "NEUTRAL"    // [0.95, 1.05)
	ClassRegression Classification = "REGRESSION" // < 0.95
	ClassError      Classification = "ERROR"      // exception or timeout
)

// BenchmarkResult is computed once for a candidate that passed validation
// and is immutable afterwards.
type BenchmarkResult struct {
	OriginalMS     float64
	CandidateMS    float64
	Speedup        float64
	Classification Classification
	RowsMatch      bool
	ChecksumMatch  bool
}

// Usable reports whether the result may participate in winner selection.
func (r *BenchmarkResult) Usable() bool {
	if r == nil || !r.RowsMatch || !r.ChecksumMatch {
		return false
	}
	switch r.Classification {
	case ClassWin, ClassImproved, ClassNeutral:
		return true
	}
	return false
}

// Candidate is one rewrite attempt. Created at the generator boundary;
// its state is mutated only by the validation gate and its result only by
// the benchmark engine.
type Candidate struct {
	ID              string
	SourceSQL       string
	ProducedBy      string // transform label supplied by the generator
	ValidationState ValidationState
	Result          *BenchmarkResult
}

// CandidateOutput is the generator boundary's tagged union: either a full
// replacement statement or a per-node replacement map. Exactly one of SQL
// and NodeSQL should be set.
type CandidateOutput struct {
	SQL        string
	NodeSQL    map[string]string
	ProducedBy string
}

// NewCandidate decodes a generator output against the session's DAG.
// Unknown node ids are rejected here, at the boundary, rather than
// surfacing downstream as parse failures.
func NewCandidate(out CandidateOutput, dag *QueryDag) (*Candidate, error) {
	src := strings.TrimSpace(out.SQL)
	if len(out.NodeSQL) > 0 {
		if src != "" {
			return nil, ErrGenerator("candidate carries both full SQL and a node map")
		}
		var unknown []string
		for id := range out.NodeSQL {
			if dag.Node(id) == nil {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, ErrGenerator("candidate references undefined node ids: %s", strings.Join(unknown, ", "))
		}
		src = dag.Render(out.NodeSQL)
	}
	if src == "" {
		return nil, ErrGenerator("empty candidate output")
	}
	return &Candidate{
		ID:              uuid.NewString(),
		SourceSQL:       src,
		ProducedBy:      out.ProducedBy,
		ValidationState: ValidationPending,
	}, nil
}
