package lexer

import (
	"testing"

	"toplang/token"
)

func typesOf(tokens []token.Token) []token.Type {
	types := make([]token.Type, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func assertTypes(t *testing.T, src string, want []token.Type) {
	t.Helper()
	got := typesOf(New(src).Scan())
	if len(got) != len(want) {
		t.Fatalf("Scan(%q) = %v, want %v", src, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Scan(%q)[%d] = %s, want %s", src, i, got[i], want[i])
		}
	}
}

func TestDelimitersAndLiterals(t *testing.T) {
	assertTypes(t, `( ) { } , 42 3.5 "hi" true false`, []token.Type{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE, token.COMMA,
		token.NUMBER, token.NUMBER, token.STRING, token.TRUE, token.FALSE, token.EOF,
	})
}

func TestDividedByIsOneToken(t *testing.T) {
	assertTypes(t, "1 divided by 2", []token.Type{
		token.NUMBER, token.DIVIDED, token.NUMBER, token.EOF,
	})
}

func TestModuloRequiresBy(t *testing.T) {
	assertTypes(t, "5 modulo by 2", []token.Type{
		token.NUMBER, token.MODULO, token.NUMBER, token.EOF,
	})
	// Without a following "by", modulo/mod/remainder are ordinary
	// identifiers, not operators (the ambiguity policy from spec.md).
	assertTypes(t, "var modulo is 1", []token.Type{
		token.VAR, token.IDENTIFIER, token.IS, token.NUMBER, token.EOF,
	})
}

func TestGreaterLessWordsAreSeparateTokens(t *testing.T) {
	// "than"/"or"/"equals" resolve at parse time, not lex time.
	assertTypes(t, "x greater than or equals y", []token.Type{
		token.IDENTIFIER, token.GREATER, token.THAN, token.OR, token.EQUALS, token.IDENTIFIER, token.EOF,
	})
}

func TestCommentsAreDiscarded(t *testing.T) {
	assertTypes(t, "1 plus 2 # trailing comment\n3", []token.Type{
		token.NUMBER, token.PLUS, token.NUMBER, token.NUMBER, token.EOF,
	})
}

func TestStringEscapes(t *testing.T) {
	tokens := New(`"a\nb\t\"c\""`).Scan()
	if tokens[0].Literal.(string) != "a\nb\t\"c\"" {
		t.Errorf("got %q", tokens[0].Literal)
	}
}

func TestUnknownCharacterProducesUnknownToken(t *testing.T) {
	assertTypes(t, "1 @ 2", []token.Type{token.NUMBER, token.UNKNOWN, token.NUMBER, token.EOF})
}
