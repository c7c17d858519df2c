package lexer

import "testing"

func TestToken_String(t *testing.T) {
	tests := []struct {
		name     string
		token    Token
		expected string
	}{
		{
			name: "identifier token",
			token: Token{
				Type:     TokenIdentifier,
				Lexeme:   "foo",
				Position: Position{Filename: "test.c", Line: 1, Column: 1},
			},
			expected: "IDENTIFIER(foo) at test.c:1:1",
		},
		{
			name: "number token",
			token: Token{
				Type:     TokenNumber,
				Lexeme:   "42",
				Position: Position{Filename: "test.c", Line: 5, Column: 10},
			},
			expected: "NUMBER(42) at test.c:5:10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.token.String(); result != tt.expected {
				t.Errorf("Token.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestTokenType_String(t *testing.T) {
	tests := []struct {
		name     string
		tt       TokenType
		expected string
	}{
		{"EOF", TokenEOF, "EOF"},
		{"Invalid", TokenInvalid, "INVALID"},
		{"Number", TokenNumber, "NUMBER"},
		{"String", TokenString, "STRING"},
		{"Identifier", TokenIdentifier, "IDENTIFIER"},
		{"TypeKeyword", TokenTypeKeyword, "TYPE"},
		{"If keyword", TokenIf, "IF"},
		{"Plus operator", TokenPlus, "PLUS"},
		{"Left paren", TokenLeftParen, "LPAREN"},
		{"Arrow", TokenArrow, "ARROW"},
		{"Unknown type", TokenType(9999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.tt.String(); result != tt.expected {
				t.Errorf("TokenType.String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLookupKeyword(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		expected   TokenType
	}{
		{"if keyword", "if", TokenIf},
		{"else keyword", "else", TokenElse},
		{"for keyword", "for", TokenFor},
		{"while keyword", "while", TokenWhile},
		{"break keyword", "break", TokenBreak},
		{"continue keyword", "continue", TokenContinue},
		{"return keyword", "return", TokenReturn},
		{"sizeof keyword", "sizeof", TokenSizeof},
		{"struct keyword", "struct", TokenStruct},
		{"extern keyword", "extern", TokenExtern},
		{"not a keyword", "foobar", TokenIdentifier},
		{"case sensitive - If", "If", TokenIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := LookupKeyword(tt.identifier); result != tt.expected {
				t.Errorf("LookupKeyword(%q) = %v, want %v", tt.identifier, result, tt.expected)
			}
		})
	}
}
