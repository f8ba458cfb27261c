package sqldag

import (
	"strings"

	"sqlbeam/internal/domain"
)

// sourceRef is one table-like source in a FROM clause.
type sourceRef struct {
	bind   string  // name the source is referenced by (alias, or table name)
	nodeID string  // canonical id when it references an earlier DAG node
	table  string  // base table name as written (dotted), empty otherwise
	body   []Token // derived table body, nil otherwise
}

// walkSources collects the FROM-clause sources of the top-level query
// block(s) in the span, in source order. Parenthesized groups that are not
// from-items are skipped, so nested subqueries contribute nothing here;
// callers recurse into sourceRef.body for those.
func walkSources(toks []Token, earlier map[string]*domain.DagNode) []sourceRef {
	var out []sourceRef
	for i := 0; i < len(toks); i++ {
		switch toks[i].Type {
		case TOKEN_LPAREN:
			if close := matchParen(toks, i); close > i {
				i = close
			}
		case TOKEN_EXTRACT, TOKEN_SUBSTRING, TOKEN_TRIM:
			// FROM inside these calls is function syntax, not a source.
			if i+1 < len(toks) && toks[i+1].Type == TOKEN_LPAREN {
				if close := matchParen(toks, i+1); close > i {
					i = close
				}
			}
		case TOKEN_FROM:
			i = parseFromList(toks, i+1, earlier, &out) - 1
		}
	}
	return out
}

// parseFromList consumes one FROM clause's item list starting at i and
// appends each source; it returns the index just past the clause.
func parseFromList(toks []Token, i int, earlier map[string]*domain.DagNode, out *[]sourceRef) int {
	for i < len(toks) {
		i = parseFromItem(toks, i, earlier, out)
		i = skipJoinCondition(toks, i)

		// Comma-separated items and join chains extend the list.
		if i < len(toks) && toks[i].Type == TOKEN_COMMA {
			i++
			continue
		}
		if i < len(toks) && isJoinStarter(toks[i].Type) {
			for i < len(toks) && toks[i].Type != TOKEN_JOIN {
				if !isJoinStarter(toks[i].Type) {
					return i
				}
				i++
			}
			if i < len(toks) {
				i++ // past JOIN
				continue
			}
		}
		break
	}
	return i
}

// parseFromItem consumes one from-item (base table, table function, or
// derived table) plus its optional alias.
func parseFromItem(toks []Token, i int, earlier map[string]*domain.DagNode, out *[]sourceRef) int {
	if i < len(toks) && toks[i].Type == TOKEN_LATERAL {
		i++
	}
	if i >= len(toks) {
		return i
	}

	switch toks[i].Type {
	case TOKEN_LPAREN:
		close := matchParen(toks, i)
		if close < 0 {
			return len(toks)
		}
		body := toks[i+1 : close]
		i = close + 1
		alias, next := parseAlias(toks, i)
		src := sourceRef{bind: alias}
		if len(body) > 0 && isQueryStart(body[0].Type) {
			src.body = unwrapParens(body)
		}
		*out = append(*out, src)
		return next

	case TOKEN_IDENT:
		parts := []string{toks[i].Literal}
		i++
		for i+1 < len(toks) && toks[i].Type == TOKEN_DOT && toks[i+1].Type == TOKEN_IDENT {
			parts = append(parts, toks[i+1].Literal)
			i += 2
		}
		// Table function, record nothing table-wise.
		if i < len(toks) && toks[i].Type == TOKEN_LPAREN {
			close := matchParen(toks, i)
			if close < 0 {
				return len(toks)
			}
			i = close + 1
			alias, next := parseAlias(toks, i)
			if alias == "" {
				alias = parts[len(parts)-1]
			}
			*out = append(*out, sourceRef{bind: alias})
			return next
		}

		name := strings.Join(parts, ".")
		src := sourceRef{}
		if len(parts) == 1 {
			if node, ok := earlier[strings.ToLower(name)]; ok {
				src.nodeID = node.ID
			}
		}
		if src.nodeID == "" {
			src.table = name
		}
		alias, next := parseAlias(toks, i)
		if alias == "" {
			alias = parts[len(parts)-1]
		}
		src.bind = alias
		*out = append(*out, src)
		return next

	default:
		return i
	}
}

// parseAlias consumes an optional `AS name` or bare identifier alias.
func parseAlias(toks []Token, i int) (string, int) {
	if i < len(toks) && toks[i].Type == TOKEN_AS {
		if i+1 < len(toks) && toks[i+1].Type == TOKEN_IDENT {
			return toks[i+1].Literal, i + 2
		}
		return "", i + 1
	}
	if i < len(toks) && toks[i].Type == TOKEN_IDENT {
		return toks[i].Literal, i + 1
	}
	return "", i
}

// skipJoinCondition advances past an ON expression or USING column list.
func skipJoinCondition(toks []Token, i int) int {
	if i < len(toks) && toks[i].Type == TOKEN_USING {
		i++
		if i < len(toks) && toks[i].Type == TOKEN_LPAREN {
			if close := matchParen(toks, i); close > i {
				return close + 1
			}
		}
		return i
	}
	if i >= len(toks) || toks[i].Type != TOKEN_ON {
		return i
	}
	i++
	depth := 0
	for ; i < len(toks); i++ {
		switch toks[i].Type {
		case TOKEN_LPAREN:
			depth++
		case TOKEN_RPAREN:
			depth--
		case TOKEN_COMMA:
			if depth == 0 {
				return i
			}
		default:
			if depth == 0 && (isJoinStarter(toks[i].Type) || isFromTerminator(toks[i].Type)) {
				return i
			}
		}
	}
	return i
}

func isJoinStarter(t TokenType) bool {
	switch t {
	case TOKEN_JOIN, TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FULL, TOKEN_INNER,
		TOKEN_OUTER, TOKEN_CROSS, TOKEN_SEMI, TOKEN_ANTI:
		return true
	}
	return false
}

func isFromTerminator(t TokenType) bool {
	switch t {
	case TOKEN_WHERE, TOKEN_GROUP, TOKEN_HAVING, TOKEN_ORDER, TOKEN_LIMIT,
		TOKEN_OFFSET, TOKEN_WINDOW, TOKEN_QUALIFY, TOKEN_UNION,
		TOKEN_EXCEPT, TOKEN_INTERSECT, TOKEN_SELECT:
		return true
	}
	return false
}
