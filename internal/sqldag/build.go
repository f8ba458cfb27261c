package sqldag

import (
	"sort"
	"strings"

	"sqlbeam/internal/domain"
)

// TerminalNodeID is the id assigned to the terminal (main) query node.
const TerminalNodeID = "main"

// SchemaHints supplies column lists for base tables, enabling SELECT *
// expansion over tables the statement itself does not describe. Keys are
// table names as written (optionally schema-qualified), lowercase.
type SchemaHints map[string][]string

// Build decomposes one SQL statement into a QueryDag. It is a pure
// function of the input text and hints: every top-level CTE and the
// terminal query become nodes, in topological order with the terminal
// node last and ties among independent CTEs broken by source order.
func Build(sqlText string, hints SchemaHints) (*domain.QueryDag, error) {
	toks := lexAll(sqlText)
	for _, t := range toks {
		if t.Type == TOKEN_ILLEGAL {
			return nil, domain.ErrParse("unexpected character %q at offset %d", t.Literal, t.Pos)
		}
	}
	for len(toks) > 0 && toks[len(toks)-1].Type == TOKEN_SEMICOLON {
		toks = toks[:len(toks)-1]
	}
	for _, t := range toks {
		if t.Type == TOKEN_SEMICOLON {
			return nil, domain.ErrParse("multiple statements in input")
		}
	}
	if len(toks) == 0 {
		return nil, domain.ErrParse("empty statement")
	}
	if err := checkBalanced(toks); err != nil {
		return nil, err
	}

	b := &builder{src: sqlText, hints: hints, nodeByLower: map[string]*domain.DagNode{}}

	ctes, terminal, err := splitCTEs(toks)
	if err != nil {
		return nil, err
	}

	dag := &domain.QueryDag{}
	for _, c := range ctes {
		node, err := b.buildNode(c.name, domain.RoleCTE, c.body, c.cols)
		if err != nil {
			return nil, err
		}
		dag.Nodes = append(dag.Nodes, node)
		b.nodeByLower[strings.ToLower(c.name)] = node
	}
	term, err := b.buildNode(TerminalNodeID, domain.RoleMain, terminal, nil)
	if err != nil {
		return nil, err
	}
	dag.Nodes = append(dag.Nodes, term)

	for _, n := range dag.Nodes {
		deps := make([]string, 0, len(n.ReferencedNodeIDs))
		for id := range n.ReferencedNodeIDs {
			deps = append(deps, id)
		}
		sort.Strings(deps)
		for _, id := range deps {
			dag.Edges = append(dag.Edges, domain.DagEdge{Src: id, Dst: n.ID})
		}
	}
	return dag, nil
}

type builder struct {
	src         string
	hints       SchemaHints
	nodeByLower map[string]*domain.DagNode // earlier nodes, keyed by lowercase name
}

type cteSpan struct {
	name string
	cols []string
	body []Token
}

// splitCTEs separates the WITH clause's CTE list from the terminal query.
func splitCTEs(toks []Token) ([]cteSpan, []Token, error) {
	if toks[0].Type != TOKEN_WITH {
		return nil, toks, nil
	}
	i := 1
	if i < len(toks) && toks[i].Type == TOKEN_RECURSIVE {
		i++
	}

	var ctes []cteSpan
	for {
		if i >= len(toks) || toks[i].Type != TOKEN_IDENT {
			return nil, nil, domain.ErrParse("expected CTE name at offset %d", offsetAt(toks, i))
		}
		c := cteSpan{name: toks[i].Literal}
		i++

		if i < len(toks) && toks[i].Type == TOKEN_LPAREN {
			close := matchParen(toks, i)
			for j := i + 1; j < close; j++ {
				if toks[j].Type == TOKEN_IDENT {
					c.cols = append(c.cols, toks[j].Literal)
				} else if toks[j].Type != TOKEN_COMMA {
					return nil, nil, domain.ErrParse("invalid column list for CTE %q", c.name)
				}
			}
			i = close + 1
		}

		if i >= len(toks) || toks[i].Type != TOKEN_AS {
			return nil, nil, domain.ErrParse("expected AS after CTE %q", c.name)
		}
		i++
		// NOT MATERIALIZED / MATERIALIZED body hints
		if i < len(toks) && toks[i].Type == TOKEN_NOT {
			i++
		}
		if i < len(toks) && toks[i].Type == TOKEN_MATERIALIZED {
			i++
		}
		if i >= len(toks) || toks[i].Type != TOKEN_LPAREN {
			return nil, nil, domain.ErrParse("expected ( after AS for CTE %q", c.name)
		}
		close := matchParen(toks, i)
		c.body = toks[i+1 : close]
		if len(c.body) == 0 {
			return nil, nil, domain.ErrParse("empty body for CTE %q", c.name)
		}
		ctes = append(ctes, c)
		i = close + 1

		if i < len(toks) && toks[i].Type == TOKEN_COMMA {
			i++
			continue
		}
		break
	}

	terminal := toks[i:]
	if len(terminal) == 0 {
		return nil, nil, domain.ErrParse("missing terminal query after WITH clause")
	}
	switch terminal[0].Type {
	case TOKEN_SELECT, TOKEN_LPAREN, TOKEN_VALUES:
	default:
		return nil, nil, domain.ErrParse("expected SELECT after WITH clause, got %q", terminal[0].Literal)
	}
	return ctes, terminal, nil
}

// buildNode assembles one DagNode from its token span.
func (b *builder) buildNode(id string, role domain.NodeRole, toks []Token, declaredCols []string) (*domain.DagNode, error) {
	node := &domain.DagNode{
		ID:                id,
		Role:              role,
		SQLText:           strings.TrimSpace(b.src[toks[0].Pos:toks[len(toks)-1].End]),
		ReferencedTables:  map[string]struct{}{},
		ReferencedNodeIDs: map[string]struct{}{},
	}

	b.collectRefs(toks, node.ReferencedTables, node.ReferencedNodeIDs)

	// Base tables resolve through referenced nodes: a node that reads an
	// earlier CTE transitively reads that CTE's tables.
	for ref := range node.ReferencedNodeIDs {
		if dep, ok := b.nodeByLower[strings.ToLower(ref)]; ok {
			for t := range dep.ReferencedTables {
				node.ReferencedTables[t] = struct{}{}
			}
		}
	}

	node.IsCorrelated = b.correlated(toks, nil)

	if len(declaredCols) > 0 {
		node.OutputColumns = declaredCols
	} else {
		cols, err := b.selectColumns(toks)
		if err != nil {
			return nil, err
		}
		node.OutputColumns = cols
	}
	return node, nil
}

// collectRefs records base tables and earlier-node references found at any
// depth of the span.
func (b *builder) collectRefs(toks []Token, tables, nodes map[string]struct{}) {
	for _, src := range walkSources(toks, b.nodeByLower) {
		if src.nodeID != "" {
			nodes[src.nodeID] = struct{}{}
		} else if src.table != "" {
			tables[src.table] = struct{}{}
		}
		if src.body != nil {
			b.collectRefs(src.body, tables, nodes)
		}
	}
	// Subqueries outside FROM position (EXISTS, IN, scalar).
	for i := 0; i < len(toks); i++ {
		if toks[i].Type == TOKEN_LPAREN && i+1 < len(toks) && isQueryStart(toks[i+1].Type) {
			close := matchParen(toks, i)
			b.collectRefs(toks[i+1:close], tables, nodes)
			i = close
		}
	}
}

// aliasScope chains the FROM-clause binding names visible to a subquery.
type aliasScope struct {
	names  map[string]bool
	parent *aliasScope
}

func (s *aliasScope) has(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.names[name] {
			return true
		}
	}
	return false
}

// correlated reports whether any nested subquery references a column bound
// outside its own scope. Detection is qualifier-based: a reference q.col
// whose qualifier resolves only in an enclosing block marks the node
// correlated.
func (b *builder) correlated(toks []Token, parents *aliasScope) bool {
	locals := map[string]bool{}
	for _, src := range walkSources(toks, b.nodeByLower) {
		if src.bind != "" {
			locals[strings.ToLower(src.bind)] = true
		}
		if src.table != "" {
			parts := strings.Split(src.table, ".")
			locals[strings.ToLower(parts[len(parts)-1])] = true
		}
		if src.nodeID != "" {
			locals[strings.ToLower(src.nodeID)] = true
		}
	}
	scope := &aliasScope{names: locals, parent: parents}

	result := false
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.Type == TOKEN_LPAREN && i+1 < len(toks) && isQueryStart(toks[i+1].Type) {
			close := matchParen(toks, i)
			if b.correlated(toks[i+1:close], scope) {
				result = true
			}
			i = close
			continue
		}
		if parents == nil {
			continue // outermost block cannot correlate
		}
		if t.Type != TOKEN_IDENT {
			continue
		}
		if i > 0 && (toks[i-1].Type == TOKEN_DOT || toks[i-1].Type == TOKEN_FROM || toks[i-1].Type == TOKEN_JOIN) {
			continue
		}
		if i+1 < len(toks) && toks[i+1].Type == TOKEN_DOT {
			q := strings.ToLower(t.Literal)
			if !locals[q] && parents.has(q) {
				result = true
			}
		}
	}
	return result
}

// selectColumns derives the output column list of a query span as written.
func (b *builder) selectColumns(toks []Token) ([]string, error) {
	toks = unwrapParens(toks)
	if len(toks) == 0 {
		return nil, domain.ErrParse("empty query body")
	}
	if toks[0].Type == TOKEN_VALUES {
		return nil, domain.ErrAmbiguousColumn("VALUES list has no derivable column names")
	}
	if toks[0].Type != TOKEN_SELECT {
		return nil, domain.ErrParse("expected SELECT, got %q", toks[0].Literal)
	}

	i := 1
	for i < len(toks) && (toks[i].Type == TOKEN_DISTINCT || toks[i].Type == TOKEN_ALL) {
		i++
	}

	var items [][]Token
	start := i
	depth := 0
	for ; i < len(toks); i++ {
		switch toks[i].Type {
		case TOKEN_LPAREN, TOKEN_LBRACKET:
			depth++
		case TOKEN_RPAREN, TOKEN_RBRACKET:
			depth--
		case TOKEN_COMMA:
			if depth == 0 {
				items = append(items, toks[start:i])
				start = i + 1
			}
		case TOKEN_FROM, TOKEN_WHERE, TOKEN_GROUP, TOKEN_HAVING, TOKEN_ORDER,
			TOKEN_LIMIT, TOKEN_OFFSET, TOKEN_WINDOW, TOKEN_QUALIFY,
			TOKEN_UNION, TOKEN_EXCEPT, TOKEN_INTERSECT:
			if depth == 0 {
				goto done
			}
		}
	}
done:
	if i > start {
		items = append(items, toks[start:i])
	} else {
		return nil, domain.ErrParse("empty select list")
	}

	sources := walkSources(toks, b.nodeByLower)

	var cols []string
	for _, item := range items {
		if len(item) == 0 {
			return nil, domain.ErrParse("empty select item")
		}
		switch {
		case len(item) == 1 && item[0].Type == TOKEN_STAR:
			expanded, err := b.expandStar(sources)
			if err != nil {
				return nil, err
			}
			cols = append(cols, expanded...)
		case len(item) == 3 && item[0].Type == TOKEN_IDENT && item[1].Type == TOKEN_DOT && item[2].Type == TOKEN_STAR:
			expanded, err := b.expandTableStar(item[0].Literal, sources)
			if err != nil {
				return nil, err
			}
			cols = append(cols, expanded...)
		default:
			cols = append(cols, itemName(item))
		}
	}
	return cols, nil
}

// expandStar resolves `SELECT *` against every source in order.
func (b *builder) expandStar(sources []sourceRef) ([]string, error) {
	if len(sources) == 0 {
		return nil, domain.ErrAmbiguousColumn("SELECT * with no FROM clause")
	}
	var cols []string
	for i := range sources {
		c, err := b.sourceColumns(&sources[i])
		if err != nil {
			return nil, err
		}
		cols = append(cols, c...)
	}
	return cols, nil
}

// expandTableStar resolves `t.*` against the source bound as t.
func (b *builder) expandTableStar(name string, sources []sourceRef) ([]string, error) {
	lower := strings.ToLower(name)
	for i := range sources {
		if strings.ToLower(sources[i].bind) == lower {
			return b.sourceColumns(&sources[i])
		}
	}
	return nil, domain.ErrAmbiguousColumn("star expansion: unknown source %q", name)
}

// sourceColumns resolves a source's column list: earlier node output,
// schema hints, or a derived table's own select list.
func (b *builder) sourceColumns(src *sourceRef) ([]string, error) {
	if src.nodeID != "" {
		if dep, ok := b.nodeByLower[strings.ToLower(src.nodeID)]; ok {
			return dep.OutputColumns, nil
		}
	}
	if src.body != nil {
		return b.selectColumns(src.body)
	}
	if src.table != "" {
		if cols, ok := b.hints[strings.ToLower(src.table)]; ok {
			return cols, nil
		}
		return nil, domain.ErrAmbiguousColumn("SELECT * over table %q with unknown schema (no hints)", src.table)
	}
	return nil, domain.ErrAmbiguousColumn("SELECT * over unresolvable source %q", src.bind)
}

// itemName derives one select item's output name as written: explicit
// alias, trailing identifier of a column reference, implicit alias, or
// the normalized expression text.
func itemName(item []Token) string {
	depth := 0
	for i := 0; i < len(item); i++ {
		switch item[i].Type {
		case TOKEN_LPAREN, TOKEN_LBRACKET:
			depth++
		case TOKEN_RPAREN, TOKEN_RBRACKET:
			depth--
		case TOKEN_AS:
			if depth == 0 && i+1 < len(item) && item[i+1].Type == TOKEN_IDENT {
				return item[i+1].Literal
			}
		}
	}

	dotted := true
	for i, t := range item {
		even := i%2 == 0
		if (even && t.Type != TOKEN_IDENT) || (!even && t.Type != TOKEN_DOT) {
			dotted = false
			break
		}
	}
	if dotted && len(item)%2 == 1 {
		return item[len(item)-1].Literal
	}

	if len(item) >= 2 && item[len(item)-1].Type == TOKEN_IDENT {
		switch item[len(item)-2].Type {
		case TOKEN_IDENT, TOKEN_NUMBER, TOKEN_STRING, TOKEN_RPAREN,
			TOKEN_RBRACKET, TOKEN_TRUE, TOKEN_FALSE, TOKEN_NULL, TOKEN_END:
			return item[len(item)-1].Literal
		}
	}
	return renderTokens(item)
}

// unwrapParens strips parentheses enclosing the whole span.
func unwrapParens(toks []Token) []Token {
	for len(toks) >= 2 && toks[0].Type == TOKEN_LPAREN && matchParen(toks, 0) == len(toks)-1 {
		toks = toks[1 : len(toks)-1]
	}
	return toks
}

// matchParen returns the index of the parenthesis matching toks[open].
func matchParen(toks []Token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// checkBalanced verifies parentheses and brackets are balanced.
func checkBalanced(toks []Token) error {
	paren, bracket := 0, 0
	for _, t := range toks {
		switch t.Type {
		case TOKEN_LPAREN:
			paren++
		case TOKEN_RPAREN:
			paren--
		case TOKEN_LBRACKET:
			bracket++
		case TOKEN_RBRACKET:
			bracket--
		}
		if paren < 0 || bracket < 0 {
			return domain.ErrParse("unbalanced parentheses at offset %d", t.Pos)
		}
	}
	if paren != 0 || bracket != 0 {
		return domain.ErrParse("unbalanced parentheses")
	}
	return nil
}

func isQueryStart(t TokenType) bool {
	return t == TOKEN_SELECT || t == TOKEN_WITH || t == TOKEN_VALUES
}

func offsetAt(toks []Token, i int) int {
	if i < len(toks) {
		return toks[i].Pos
	}
	if len(toks) > 0 {
		return toks[len(toks)-1].End
	}
	return 0
}
