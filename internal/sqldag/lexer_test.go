package sqldag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer_Punctuation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType TokenType
		wantLit  string
	}{
		{"plus", "+", TOKEN_PLUS, "+"},
		{"minus", "-", TOKEN_MINUS, "-"},
		{"star", "*", TOKEN_STAR, "*"},
		{"slash", "/", TOKEN_SLASH, "/"},
		{"mod", "%", TOKEN_MOD, "%"},
		{"eq", "=", TOKEN_EQ, "="},
		{"ne_bang", "!=", TOKEN_NE, "!="},
		{"ne_diamond", "<>", TOKEN_NE, "<>"},
		{"lt", "<", TOKEN_LT, "<"},
		{"gt", ">", TOKEN_GT, ">"},
		{"le", "<=", TOKEN_LE, "<="},
		{"ge", ">=", TOKEN_GE, ">="},
		{"dot", ".", TOKEN_DOT, "."},
		{"comma", ",", TOKEN_COMMA, ","},
		{"semicolon", ";", TOKEN_SEMICOLON, ";"},
		{"lparen", "(", TOKEN_LPAREN, "("},
		{"rparen", ")", TOKEN_RPAREN, ")"},
		{"lbracket", "[", TOKEN_LBRACKET, "["},
		{"rbracket", "]", TOKEN_RBRACKET, "]"},
		{"dcolon", "::", TOKEN_DCOLON, "::"},
		{"dpipe", "||", TOKEN_DPIPE, "||"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			tok := l.NextToken()
			assert.Equal(t, tc.wantType, tok.Type, "token type")
			assert.Equal(t, tc.wantLit, tok.Literal, "token literal")
		})
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLit string
	}{
		{"integer", "123", "123"},
		{"decimal", "45.67", "45.67"},
		{"scientific", "1e10", "1e10"},
		{"scientific_signed", "2.5E-3", "2.5E-3"},
		{"leading_zero", "0.01", "0.01"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			tok := l.NextToken()
			require.Equal(t, TOKEN_NUMBER, tok.Type)
			assert.Equal(t, tc.wantLit, tok.Literal, "raw text must be preserved")
		})
	}
}

func TestLexer_Strings(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLit string
	}{
		{"simple", "'hello'", "hello"},
		{"empty", "''", ""},
		{"escaped_quote", "'it''s'", "it's"},
		{"spaces", "'a b c'", "a b c"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			tok := l.NextToken()
			require.Equal(t, TOKEN_STRING, tok.Type)
			assert.Equal(t, tc.wantLit, tok.Literal)
		})
	}
}

func TestLexer_IdentifiersAndKeywords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType TokenType
		wantLit  string
	}{
		{"keyword_lower", "select", TOKEN_SELECT, "select"},
		{"keyword_upper", "SELECT", TOKEN_SELECT, "SELECT"},
		{"keyword_mixed", "From", TOKEN_FROM, "From"},
		{"ident", "orders", TOKEN_IDENT, "orders"},
		{"ident_underscore", "line_items", TOKEN_IDENT, "line_items"},
		{"quoted_ident", `"Order Total"`, TOKEN_IDENT, "Order Total"},
		{"quoted_keyword", `"select"`, TOKEN_IDENT, "select"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLexer(tc.input)
			tok := l.NextToken()
			assert.Equal(t, tc.wantType, tok.Type)
			assert.Equal(t, tc.wantLit, tok.Literal)
		})
	}
}

func TestLexer_SkipsComments(t *testing.T) {
	toks := lexAll("SELECT 1 -- trailing\n+ /* block\ncomment */ 2")
	require.Len(t, toks, 4)
	assert.Equal(t, TOKEN_SELECT, toks[0].Type)
	assert.Equal(t, "1", toks[1].Literal)
	assert.Equal(t, TOKEN_PLUS, toks[2].Type)
	assert.Equal(t, "2", toks[3].Literal)
}

func TestLexer_ByteSpans(t *testing.T) {
	input := "SELECT  x"
	toks := lexAll(input)
	require.Len(t, toks, 2)
	assert.Equal(t, "SELECT", input[toks[0].Pos:toks[0].End])
	assert.Equal(t, "x", input[toks[1].Pos:toks[1].End])
}

func TestLexer_Illegal(t *testing.T) {
	l := NewLexer("$")
	tok := l.NextToken()
	assert.Equal(t, TOKEN_ILLEGAL, tok.Type)
}
