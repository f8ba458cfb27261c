package cli

import (
	"fmt"
	"sort"
	"strings"

	"sqlbeam/internal/domain"
)

// renderDag formats a dependency graph as stable, diff-friendly text.
// Nodes appear in topological order; set members are sorted.
func renderDag(dag *domain.QueryDag) string {
	var b strings.Builder
	for _, n := range dag.Nodes {
		fmt.Fprintf(&b, "node %s role=%s", n.ID, n.Role)
		if n.IsCorrelated {
			b.WriteString(" correlated")
		}
		b.WriteByte('\n')
		if len(n.OutputColumns) > 0 {
			fmt.Fprintf(&b, "  columns: %s\n", strings.Join(n.OutputColumns, ", "))
		}
		if len(n.ReferencedTables) > 0 {
			fmt.Fprintf(&b, "  tables: %s\n", strings.Join(sortedKeys(n.ReferencedTables), ", "))
		}
		if len(n.ReferencedNodeIDs) > 0 {
			fmt.Fprintf(&b, "  depends: %s\n", strings.Join(sortedKeys(n.ReferencedNodeIDs), ", "))
		}
	}
	for _, e := range dag.Edges {
		fmt.Fprintf(&b, "edge %s -> %s\n", e.Src, e.Dst)
	}
	return b.String()
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
