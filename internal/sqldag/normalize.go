package sqldag

import "strings"

// Normalize returns a whitespace-normalized rendering of sql: comments
// dropped, tokens joined by single spaces, literal text preserved exactly
// as written. Two statements that differ only in whitespace or comments
// normalize identically; `35*0.01` and `0.35` do not.
func Normalize(sql string) string {
	return renderTokens(lexAll(sql))
}

// Literals returns every string and number literal in source order.
// Number text is raw (no arithmetic simplification); string text is the
// unquoted content.
func Literals(sql string) []string {
	var out []string
	for _, t := range lexAll(sql) {
		switch t.Type {
		case TOKEN_NUMBER:
			out = append(out, t.Literal)
		case TOKEN_STRING:
			out = append(out, "'"+t.Literal+"'")
		}
	}
	return out
}

// renderTokens joins tokens with single spaces, re-quoting strings.
func renderTokens(toks []Token) string {
	parts := make([]string, 0, len(toks))
	for _, t := range toks {
		switch t.Type {
		case TOKEN_STRING:
			parts = append(parts, "'"+strings.ReplaceAll(t.Literal, "'", "''")+"'")
		default:
			parts = append(parts, t.Literal)
		}
	}
	return strings.Join(parts, " ")
}
