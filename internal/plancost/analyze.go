package plancost

import (
	"math"
	"strings"

	"sqlbeam/internal/domain"
)

// Q-error severity thresholds. Documented default policy; a q-error below
// SeverityMinorMin is considered accurate.
const (
	SeverityMinorMin        = 2.0
	SeverityModerateMin     = 10.0
	SeverityMajorMin        = 100.0
	SeverityCatastrophicMin = 10000.0
)

// qErrorZeroActual is the sentinel q-error recorded when the actual row
// count is zero and the ratio is undefined.
const qErrorZeroActual = math.MaxFloat64

// OperatorStat is one plan operator after attribution to a DAG node.
type OperatorStat struct {
	NodeType      string
	Locus         domain.PlanLocus
	EstimatedRows int64
	ActualRows    *int64
	Order         int // pre-order position in the plan tree
}

// AttributionPolicy picks the operator that defines a node's locus from
// the operators attributed to it. The slice is non-empty and in pre-order.
type AttributionPolicy func(ops []OperatorStat) OperatorStat

// LargestRowDelta is the default policy: the operator with the largest
// absolute row-count error wins; a 2x error on 1e9 rows outranks a 1000x
// error on 10 rows. Ties break by pre-order position.
func LargestRowDelta(ops []OperatorStat) OperatorStat {
	best := ops[0]
	bestDelta := rowDelta(best)
	for _, op := range ops[1:] {
		if d := rowDelta(op); d > bestDelta {
			best, bestDelta = op, d
		}
	}
	return best
}

func rowDelta(op OperatorStat) int64 {
	if op.ActualRows == nil {
		return 0
	}
	d := op.EstimatedRows - *op.ActualRows
	if d < 0 {
		d = -d
	}
	return d
}

// Analyzer attributes plan operators to DAG nodes and derives signals.
type Analyzer struct {
	// Policy selects the locus-defining operator per node. Nil means
	// LargestRowDelta.
	Policy AttributionPolicy
}

// Analyze walks the plan tree, attributes each operator to the DagNode
// whose base tables or CTE name it matches (operators spanning multiple
// nodes go to their structural parent's node), and derives one PlanSignal
// per DAG node that has at least one actual-bearing operator. Signals are
// ordered by DAG node order.
func (a *Analyzer) Analyze(out *ExplainOutput, dag *domain.QueryDag) []domain.PlanSignal {
	policy := a.Policy
	if policy == nil {
		policy = LargestRowDelta
	}

	byNode := map[string][]OperatorStat{}
	order := 0
	var walk func(n *PlanNode, parentID string)
	walk = func(n *PlanNode, parentID string) {
		id := attributeOperator(n, dag)
		if id == "" {
			id = parentID
		}
		if id == "" {
			id = dag.Terminal().ID
		}
		stat := OperatorStat{
			NodeType:      n.NodeType,
			Locus:         classifyLocus(n.NodeType),
			EstimatedRows: n.PlanRows,
			ActualRows:    n.ActualRows,
			Order:         order,
		}
		order++
		byNode[id] = append(byNode[id], stat)
		for i := range n.Plans {
			walk(&n.Plans[i], id)
		}
	}
	walk(&out.Plan, "")

	var signals []domain.PlanSignal
	for _, node := range dag.Nodes {
		ops := byNode[node.ID]
		measured := ops[:0:0]
		for _, op := range ops {
			if op.ActualRows != nil {
				measured = append(measured, op)
			}
		}
		if len(measured) == 0 {
			continue
		}
		chosen := policy(measured)
		signals = append(signals, buildSignal(node.ID, chosen))
	}
	return signals
}

// buildSignal computes q-error, direction, and severity for one operator.
func buildSignal(nodeID string, op OperatorStat) domain.PlanSignal {
	sig := domain.PlanSignal{
		NodeID:        nodeID,
		Locus:         op.Locus,
		EstimatedRows: op.EstimatedRows,
		ActualRows:    op.ActualRows,
	}
	actual := *op.ActualRows
	switch {
	case actual == 0:
		sig.QError = qErrorZeroActual
		sig.Direction = domain.DirectionZero
		sig.Severity = domain.SeverityCatastrophic
		if op.EstimatedRows == 0 {
			sig.QError = 1
			sig.Severity = domain.SeverityAccurate
		}
	default:
		est := op.EstimatedRows
		if est < 1 {
			est = 1
		}
		hi, lo := float64(est), float64(actual)
		if hi < lo {
			hi, lo = lo, hi
		}
		sig.QError = hi / lo
		if est >= actual {
			sig.Direction = domain.DirectionOver
		} else {
			sig.Direction = domain.DirectionUnder
		}
		sig.Severity = severityFor(sig.QError)
	}
	return sig
}

func severityFor(q float64) domain.Severity {
	switch {
	case q >= SeverityCatastrophicMin:
		return domain.SeverityCatastrophic
	case q >= SeverityMajorMin:
		return domain.SeverityMajor
	case q >= SeverityModerateMin:
		return domain.SeverityModerate
	case q >= SeverityMinorMin:
		return domain.SeverityMinor
	default:
		return domain.SeverityAccurate
	}
}

// attributeOperator matches an operator to a DAG node by CTE name or base
// table. The first matching node in topological order wins; no match
// returns "" and the operator inherits its structural parent's node.
func attributeOperator(n *PlanNode, dag *domain.QueryDag) string {
	cte := n.CTEName
	if cte == "" && strings.HasPrefix(strings.ToLower(n.SubplanName), "cte ") {
		cte = n.SubplanName[4:]
	}
	if cte != "" {
		for _, node := range dag.Nodes {
			if strings.EqualFold(node.ID, cte) {
				return node.ID
			}
		}
	}
	if n.RelationName != "" {
		rel := strings.ToLower(n.RelationName)
		for _, node := range dag.Nodes {
			for t := range node.ReferencedTables {
				parts := strings.Split(strings.ToLower(t), ".")
				if parts[len(parts)-1] == rel || strings.ToLower(t) == rel {
					return node.ID
				}
			}
		}
	}
	return ""
}

// classifyLocus maps an engine operator name onto the locus taxonomy.
// Works for both PostgreSQL ("Hash Join") and DuckDB ("HASH_JOIN") names.
func classifyLocus(nodeType string) domain.PlanLocus {
	t := strings.ToLower(strings.ReplaceAll(nodeType, "_", " "))
	switch {
	case strings.Contains(t, "cte"):
		return domain.LocusCTE
	case strings.Contains(t, "scan") || strings.Contains(t, "get"):
		return domain.LocusScan
	case strings.Contains(t, "join") || strings.Contains(t, "nested loop"):
		return domain.LocusJoin
	case strings.Contains(t, "aggregate") || strings.Contains(t, "group") ||
		strings.Contains(t, "hashagg") || strings.Contains(t, "window"):
		return domain.LocusAggregate
	case strings.Contains(t, "filter"):
		return domain.LocusFilter
	case strings.Contains(t, "project") || strings.Contains(t, "result"):
		return domain.LocusProjection
	default:
		return domain.LocusOther
	}
}
