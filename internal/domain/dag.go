package domain

import (
	"fmt"
	"strings"
)

// NodeRole distinguishes CTE nodes from the terminal query body.
type NodeRole string

const (
	RoleCTE  NodeRole = "cte"
	RoleMain NodeRole = "main"
)

// DagNode is one named sub-query in a dependency graph. Built once per
// parse and owned exclusively by its QueryDag; immutable thereafter.
type DagNode struct {
	ID                string
	Role              NodeRole
	SQLText           string
	OutputColumns     []string            // ordered, as written
	ReferencedTables  map[string]struct{} // base tables, resolved through earlier nodes
	ReferencedNodeIDs map[string]struct{}
	IsCorrelated      bool
}

// DagEdge records that dst depends on src.
type DagEdge struct {
	Src string
	Dst string
}

// QueryDag is the dependency graph of one SQL statement. Nodes are in
// topological order: a node references only earlier node ids, and the
// terminal node is always last.
type QueryDag struct {
	Nodes []*DagNode
	Edges []DagEdge
}

// Terminal returns the main query node (always the last node).
func (d *QueryDag) Terminal() *DagNode {
	if len(d.Nodes) == 0 {
		return nil
	}
	return d.Nodes[len(d.Nodes)-1]
}

// Node returns the node with the given id, or nil.
func (d *QueryDag) Node(id string) *DagNode {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Render reassembles a full SQL statement from the DAG, substituting the
// given per-node replacement texts. Unknown ids in overrides are the
// caller's error; Render only reads node order from the DAG.
func (d *QueryDag) Render(overrides map[string]string) string {
	text := func(n *DagNode) string {
		if s, ok := overrides[n.ID]; ok {
			return s
		}
		return n.SQLText
	}

	var ctes []string
	for _, n := range d.Nodes {
		if n.Role == RoleCTE {
			ctes = append(ctes, fmt.Sprintf("%s AS (%s)", n.ID, text(n)))
		}
	}
	terminal := text(d.Terminal())
	if len(ctes) == 0 {
		return terminal
	}
	return "WITH " + strings.Join(ctes, ", ") + " " + terminal
}
