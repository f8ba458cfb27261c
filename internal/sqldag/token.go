// Package sqldag decomposes a single SQL statement into a dependency graph
// of named sub-query nodes.
//
// It carries its own small lexer and structural scanner rather than a full
// AST: DAG construction needs CTE boundaries, output column lists, table
// references, and correlated-subquery detection, not expression semantics.
// Literal tokens are preserved exactly as written so that downstream
// validation can compare them without arithmetic simplification.
package sqldag

// TokenType represents the type of a lexical token.
type TokenType int

// TOKEN_EOF and friends enumerate all token types produced by the lexer.
const (
	TOKEN_EOF     TokenType = iota // end of input
	TOKEN_ILLEGAL                  // unexpected character

	TOKEN_IDENT  // identifier
	TOKEN_NUMBER // 123, 45.67, 1e10; raw text preserved
	TOKEN_STRING // 'hello'

	TOKEN_PLUS      // +
	TOKEN_MINUS     // -
	TOKEN_STAR      // *
	TOKEN_SLASH     // /
	TOKEN_MOD       // %
	TOKEN_DPIPE     // ||
	TOKEN_EQ        // =
	TOKEN_NE        // != or <>
	TOKEN_LT        // <
	TOKEN_GT        // >
	TOKEN_LE        // <=
	TOKEN_GE        // >=
	TOKEN_DOT       // .
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_LBRACKET  // [
	TOKEN_RBRACKET  // ]
	TOKEN_DCOLON    // :: cast

	// TOKEN_ALL and below are SQL keywords (alphabetical).
	TOKEN_ALL
	TOKEN_AND
	TOKEN_ANTI
	TOKEN_AS
	TOKEN_ASC
	TOKEN_BETWEEN
	TOKEN_BY
	TOKEN_CASE
	TOKEN_CAST
	TOKEN_CROSS
	TOKEN_DESC
	TOKEN_DISTINCT
	TOKEN_ELSE
	TOKEN_END
	TOKEN_EXCEPT
	TOKEN_EXISTS
	TOKEN_EXTRACT
	TOKEN_FALSE
	TOKEN_FIRST
	TOKEN_FROM
	TOKEN_FULL
	TOKEN_GROUP
	TOKEN_HAVING
	TOKEN_IN
	TOKEN_INNER
	TOKEN_INTERSECT
	TOKEN_IS
	TOKEN_JOIN
	TOKEN_LAST
	TOKEN_LATERAL
	TOKEN_LEFT
	TOKEN_LIKE
	TOKEN_LIMIT
	TOKEN_MATERIALIZED
	TOKEN_NOT
	TOKEN_NULL
	TOKEN_NULLS
	TOKEN_OFFSET
	TOKEN_ON
	TOKEN_OR
	TOKEN_ORDER
	TOKEN_OUTER
	TOKEN_QUALIFY
	TOKEN_RECURSIVE
	TOKEN_RIGHT
	TOKEN_SELECT
	TOKEN_SEMI
	TOKEN_SUBSTRING
	TOKEN_THEN
	TOKEN_TRIM
	TOKEN_TRUE
	TOKEN_UNION
	TOKEN_USING
	TOKEN_VALUES
	TOKEN_WHEN
	TOKEN_WHERE
	TOKEN_WINDOW
	TOKEN_WITH
)

// Token is one lexical token with its byte span in the original input.
type Token struct {
	Type    TokenType
	Literal string // identifier/literal text (strings unquoted, numbers raw)
	Pos     int    // byte offset of the token start
	End     int    // byte offset one past the token end
}

// keywords maps lowercase keyword strings to their token types.
var keywords = map[string]TokenType{
	"all":          TOKEN_ALL,
	"and":          TOKEN_AND,
	"anti":         TOKEN_ANTI,
	"as":           TOKEN_AS,
	"asc":          TOKEN_ASC,
	"between":      TOKEN_BETWEEN,
	"by":           TOKEN_BY,
	"case":         TOKEN_CASE,
	"cast":         TOKEN_CAST,
	"cross":        TOKEN_CROSS,
	"desc":         TOKEN_DESC,
	"distinct":     TOKEN_DISTINCT,
	"else":         TOKEN_ELSE,
	"end":          TOKEN_END,
	"except":       TOKEN_EXCEPT,
	"exists":       TOKEN_EXISTS,
	"extract":      TOKEN_EXTRACT,
	"false":        TOKEN_FALSE,
	"first":        TOKEN_FIRST,
	"from":         TOKEN_FROM,
	"full":         TOKEN_FULL,
	"group":        TOKEN_GROUP,
	"having":       TOKEN_HAVING,
	"in":           TOKEN_IN,
	"inner":        TOKEN_INNER,
	"intersect":    TOKEN_INTERSECT,
	"is":           TOKEN_IS,
	"join":         TOKEN_JOIN,
	"last":         TOKEN_LAST,
	"lateral":      TOKEN_LATERAL,
	"left":         TOKEN_LEFT,
	"like":         TOKEN_LIKE,
	"limit":        TOKEN_LIMIT,
	"materialized": TOKEN_MATERIALIZED,
	"not":          TOKEN_NOT,
	"null":         TOKEN_NULL,
	"nulls":        TOKEN_NULLS,
	"offset":       TOKEN_OFFSET,
	"on":           TOKEN_ON,
	"or":           TOKEN_OR,
	"order":        TOKEN_ORDER,
	"outer":        TOKEN_OUTER,
	"qualify":      TOKEN_QUALIFY,
	"recursive":    TOKEN_RECURSIVE,
	"right":        TOKEN_RIGHT,
	"select":       TOKEN_SELECT,
	"semi":         TOKEN_SEMI,
	"substring":    TOKEN_SUBSTRING,
	"then":         TOKEN_THEN,
	"trim":         TOKEN_TRIM,
	"true":         TOKEN_TRUE,
	"union":        TOKEN_UNION,
	"using":        TOKEN_USING,
	"values":       TOKEN_VALUES,
	"when":         TOKEN_WHEN,
	"where":        TOKEN_WHERE,
	"window":       TOKEN_WINDOW,
	"with":         TOKEN_WITH,
}

// lookupKeyword maps a lowercase identifier to its keyword token type.
// Returns TOKEN_IDENT if it's not a keyword.
func lookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TOKEN_IDENT
}

// isKeyword reports whether t is a SQL keyword token.
func isKeyword(t TokenType) bool {
	return t >= TOKEN_ALL
}
