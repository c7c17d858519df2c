package lexer

import (
	"testing"

	"github.com/hassan/kcc/internal/types"
)

func collectTypes(t *testing.T, source string) []TokenType {
	t.Helper()
	l := New(source, "test.c")
	var got []TokenType
	for {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("unexpected lex error: %v", err)
		}
		got = append(got, tok.Type)
		if tok.Type == TokenEOF {
			return got
		}
	}
}

func TestLexer_Keywords(t *testing.T) {
	source := "if else while for break continue return sizeof struct"
	want := []TokenType{
		TokenIf, TokenElse, TokenWhile, TokenFor, TokenBreak, TokenContinue,
		TokenReturn, TokenSizeof, TokenStruct, TokenEOF,
	}

	got := collectTypes(t, source)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexer_TypeKeywords(t *testing.T) {
	l := New("int char void", "test.c")

	expectedTypes := []*types.Type{types.TypeInt, types.TypeChar, types.TypeVoid}
	for i, want := range expectedTypes {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("token %d: unexpected error: %v", i, err)
		}
		if tok.Type != TokenTypeKeyword {
			t.Fatalf("token %d: got %v, want TokenTypeKeyword", i, tok.Type)
		}
		if tok.TypeValue != want {
			t.Errorf("token %d: TypeValue = %v, want %v", i, tok.TypeValue, want)
		}
	}
}

func TestLexer_Identifiers(t *testing.T) {
	source := "foo bar _temp myVar123"
	expected := []string{"foo", "bar", "_temp", "myVar123"}

	l := New(source, "test.c")
	for i, name := range expected {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("token %d: unexpected error: %v", i, err)
		}
		if tok.Type != TokenIdentifier {
			t.Errorf("token %d: got type %v, want TokenIdentifier", i, tok.Type)
		}
		if tok.Lexeme != name {
			t.Errorf("token %d: got lexeme %q, want %q", i, tok.Lexeme, name)
		}
	}
}

func TestLexer_Numbers(t *testing.T) {
	l := New("0 42 123456", "test.c")
	want := []int64{0, 42, 123456}

	for i, v := range want {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("token %d: unexpected error: %v", i, err)
		}
		if tok.Type != TokenNumber {
			t.Fatalf("token %d: got type %v, want TokenNumber", i, tok.Type)
		}
		if tok.NumValue != v {
			t.Errorf("token %d: NumValue = %d, want %d", i, tok.NumValue, v)
		}
	}
}

func TestLexer_String(t *testing.T) {
	l := New(`"hello\nworld"`, "test.c")

	tok, err := l.NextToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Type != TokenString {
		t.Fatalf("got type %v, want TokenString", tok.Type)
	}
	if tok.StrLiteralIndex != 0 {
		t.Errorf("StrLiteralIndex = %d, want 0", tok.StrLiteralIndex)
	}
	if got := l.StringLiterals()[0]; got != "hello\nworld" {
		t.Errorf("pooled literal = %q, want %q", got, "hello\nworld")
	}
}

func TestLexer_StringPoolingDoesNotDeduplicate(t *testing.T) {
	l := New(`"dup" "dup"`, "test.c")

	first, err := l.NextToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := l.NextToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.StrLiteralIndex == second.StrLiteralIndex {
		t.Errorf("expected distinct indices for two identical string literals, got %d and %d",
			first.StrLiteralIndex, second.StrLiteralIndex)
	}
	if len(l.StringLiterals()) != 2 {
		t.Errorf("expected 2 pooled literals, got %d", len(l.StringLiterals()))
	}
}

func TestLexer_Operators(t *testing.T) {
	source := "+ - * / % == != < <= > >= && || ! & | ^ ~ << >> = += -= *= /= %= ++ -- . ->"
	want := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenEqual, TokenNotEqual, TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual,
		TokenLogicalAnd, TokenLogicalOr, TokenNot,
		TokenAmp, TokenPipe, TokenCaret, TokenTilde, TokenShl, TokenShr,
		TokenAssign, TokenPlusEq, TokenMinusEq, TokenStarEq, TokenSlashEq, TokenPercentEq,
		TokenInc, TokenDec, TokenDot, TokenArrow,
		TokenEOF,
	}

	got := collectTypes(t, source)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexer_Delimiters(t *testing.T) {
	source := "( ) { } [ ] ; ,"
	want := []TokenType{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenLeftBracket, TokenRightBracket, TokenSemicolon, TokenComma,
		TokenEOF,
	}

	got := collectTypes(t, source)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexer_Comments(t *testing.T) {
	source := "1 // a line comment\n2 /* a\nblock comment */ 3"
	l := New(source, "test.c")

	want := []int64{1, 2, 3}
	for i, v := range want {
		tok, err := l.NextToken()
		if err != nil {
			t.Fatalf("token %d: unexpected error: %v", i, err)
		}
		if tok.Type != TokenNumber || tok.NumValue != v {
			t.Errorf("token %d: got %v %d, want NUMBER %d", i, tok.Type, tok.NumValue, v)
		}
	}
	eof, err := l.NextToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eof.Type != TokenEOF {
		t.Errorf("got %v, want EOF", eof.Type)
	}
}

func TestLexer_UnterminatedString(t *testing.T) {
	l := New(`"no closing quote`, "test.c")
	if _, err := l.NextToken(); err == nil {
		t.Fatal("expected error for unterminated string, got nil")
	}
}

func TestLexer_UnterminatedBlockComment(t *testing.T) {
	l := New("/* never closes", "test.c")
	if _, err := l.NextToken(); err == nil {
		t.Fatal("expected error for unterminated block comment, got nil")
	}
}

func TestLexer_Positions(t *testing.T) {
	l := New("foo\nbar", "test.c")

	first, err := l.NextToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Position.Line != 1 || first.Position.Column != 1 {
		t.Errorf("first token position = %v, want line 1 col 1", first.Position)
	}

	second, err := l.NextToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Position.Line != 2 || second.Position.Column != 1 {
		t.Errorf("second token position = %v, want line 2 col 1", second.Position)
	}
}

func TestLexer_StructTypeRegistry(t *testing.T) {
	l := New("", "test.c")
	if got := l.LookupStructType("Point"); got != nil {
		t.Fatalf("expected nil before registration, got %v", got)
	}

	point := types.NewStruct("Point", []types.Member{
		{Name: "x", Type: types.TypeInt, Offset: 0},
		{Name: "y", Type: types.TypeInt, Offset: 4},
	})
	l.RegisterStructType(point)

	if got := l.LookupStructType("Point"); got != point {
		t.Errorf("LookupStructType(%q) = %v, want %v", "Point", got, point)
	}
}
