// Package plancost converts engine execution-plan output into per-node
// cardinality-error signals. Advisory only: signals feed generator context
// and the workload router and never block generation.
package plancost

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PlanNode mirrors the plan operator shape shared by both supported
// engines. PostgreSQL EXPLAIN (FORMAT JSON) decodes into it directly;
// DuckDB profiling output is normalized into the same tree.
type PlanNode struct {
	NodeType     string  `json:"Node Type"`
	PlanRows     int64   `json:"Plan Rows"`
	ActualRows   *int64  `json:"Actual Rows,omitempty"`
	ActualLoops  int64   `json:"Actual Loops,omitempty"`
	TotalCost    float64 `json:"Total Cost,omitempty"`
	RelationName string  `json:"Relation Name,omitempty"`
	Alias        string  `json:"Alias,omitempty"`
	CTEName      string  `json:"CTE Name,omitempty"`
	SubplanName  string  `json:"Subplan Name,omitempty"`

	Plans []PlanNode `json:"Plans,omitempty"`
}

// ExplainOutput is the top-level EXPLAIN JSON document.
type ExplainOutput struct {
	Plan          PlanNode `json:"Plan"`
	PlanningTime  float64  `json:"Planning Time,omitempty"`
	ExecutionTime float64  `json:"Execution Time,omitempty"`
}

// ParsePostgresPlan decodes PostgreSQL EXPLAIN (FORMAT JSON) output,
// which arrives as a one-element array.
func ParsePostgresPlan(data []byte) (*ExplainOutput, error) {
	var plans []ExplainOutput
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("invalid EXPLAIN JSON: %w", err)
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("empty EXPLAIN output")
	}
	return &plans[0], nil
}

// duckNode is the raw shape of DuckDB's JSON profiling output.
type duckNode struct {
	Name                 string            `json:"operator_name"`
	AltName              string            `json:"name"`
	OperatorCardinality  *int64            `json:"operator_cardinality"`
	ExtraInfo            map[string]any    `json:"extra_info"`
	OperatorTimingMS     float64           `json:"operator_timing"`
	Children             []duckNode        `json:"children"`
}

// ParseDuckDBProfile decodes DuckDB profiling JSON (PRAGMA
// enable_profiling = 'json') and normalizes it to the shared plan tree.
func ParseDuckDBProfile(data []byte) (*ExplainOutput, error) {
	var root duckNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid DuckDB profile JSON: %w", err)
	}
	out := &ExplainOutput{Plan: normalizeDuck(root)}
	// The top-level document wraps the real plan in a QUERY pseudo-node.
	if strings.EqualFold(out.Plan.NodeType, "QUERY") && len(out.Plan.Plans) == 1 {
		out.Plan = out.Plan.Plans[0]
	}
	return out, nil
}

func normalizeDuck(n duckNode) PlanNode {
	name := n.Name
	if name == "" {
		name = n.AltName
	}
	pn := PlanNode{
		NodeType:   name,
		ActualRows: n.OperatorCardinality,
	}
	if n.ExtraInfo != nil {
		if est, ok := extraInt(n.ExtraInfo, "Estimated Cardinality"); ok {
			pn.PlanRows = est
		}
		if rel, ok := n.ExtraInfo["Table"].(string); ok {
			pn.RelationName = rel
		}
		if cte, ok := n.ExtraInfo["CTE Name"].(string); ok {
			pn.CTEName = cte
		}
	}
	for _, c := range n.Children {
		pn.Plans = append(pn.Plans, normalizeDuck(c))
	}
	return pn
}

// extraInt reads a numeric extra_info field, which DuckDB emits either as
// a JSON number or as a decimal string.
func extraInt(info map[string]any, key string) (int64, bool) {
	switch v := info[key].(type) {
	case float64:
		return int64(v), true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
