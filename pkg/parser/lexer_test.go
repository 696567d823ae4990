package parser

import (
	"reflect"
	"testing"
)

type lexerTestCase struct {
	name      string
	input     string
	mode      lexMode
	expected  []Token
	expectErr bool
}

func lexAll(input string, mode lexMode) []Token {
	l := NewLexer(input)
	var toks []Token
	for {
		t := l.Next(mode)
		if t.Type == TokenEOF {
			return toks
		}
		toks = append(toks, t)
		if t.Type == TokenError {
			return toks
		}
	}
}

func runLexerTests(t *testing.T, tests []lexerTestCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := lexAll(tt.input, tt.mode)
			if tt.expectErr {
				if len(toks) == 0 || toks[len(toks)-1].Type != TokenError {
					t.Fatalf("expected an error token, got %v", toks)
				}
				return
			}
			if len(toks) != len(tt.expected) {
				t.Fatalf("expected %d tokens, got %d: %v", len(tt.expected), len(toks), toks)
			}
			for i, want := range tt.expected {
				got := toks[i]
				if got.Type != want.Type || got.Value != want.Value || got.Position != want.Position {
					t.Errorf("token %d: got %s %q at %d, want %s %q at %d",
						i, got.Type, got.Value, got.Position, want.Type, want.Value, want.Position)
				}
				if want.Vars != nil && !reflect.DeepEqual(got.Vars, want.Vars) {
					t.Errorf("token %d: got vars %v, want %v", i, got.Vars, want.Vars)
				}
			}
		})
	}
}

func TestLexerNamesAndVariables(t *testing.T) {
	runLexerTests(t, []lexerTestCase{
		{
			name:  "call with variables",
			input: "acFoo(*x, $objPath)",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenText, Value: "acFoo", Position: 0},
				{Type: TokenMisc, Value: "(", Position: 5},
				{Type: TokenLocalVar, Value: "*x", Position: 6},
				{Type: TokenMisc, Value: ",", Position: 8},
				{Type: TokenSessionVar, Value: "$objPath", Position: 10},
				{Type: TokenMisc, Value: ")", Position: 18},
			},
		},
		{
			name:  "star before space is multiplication",
			input: "*x * 2",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenLocalVar, Value: "*x", Position: 0},
				{Type: TokenOp, Value: "*", Position: 3},
				{Type: TokenInt, Value: "2", Position: 5},
			},
		},
		{
			name:  "double",
			input: "1.5",
			expected: []Token{
				{Type: TokenDouble, Value: "1.5", Position: 0},
			},
		},
		{
			name:  "backquoted irods type",
			input: "`KeyValPair_PI`",
			expected: []Token{
				{Type: TokenBackquoted, Value: "KeyValPair_PI", Position: 0},
			},
		},
	})
}

func TestLexerOperators(t *testing.T) {
	runLexerTests(t, []lexerTestCase{
		{
			name:  "multi word operator",
			input: "a like regex b",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenText, Value: "a", Position: 0},
				{Type: TokenOp, Value: "like regex", Position: 2},
				{Type: TokenText, Value: "b", Position: 13},
			},
		},
		{
			name:  "alphabetic operator prefix of a name",
			input: "likely log_x",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenText, Value: "likely", Position: 0},
				{Type: TokenText, Value: "log_x", Position: 7},
			},
		},
		{
			name:  "arrows and equality",
			input: "-> => == =",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenMisc, Value: "->", Position: 0},
				{Type: TokenMisc, Value: "=>", Position: 3},
				{Type: TokenOp, Value: "==", Position: 6},
				{Type: TokenOp, Value: "=", Position: 9},
			},
		},
		{
			name:  "or in new syntax",
			input: "a || b",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenText, Value: "a", Position: 0},
				{Type: TokenOp, Value: "||", Position: 2},
				{Type: TokenText, Value: "b", Position: 5},
			},
		},
		{
			name:  "bars in old syntax",
			input: "a||b",
			expected: []Token{
				{Type: TokenText, Value: "a", Position: 0},
				{Type: TokenMisc, Value: "|", Position: 1},
				{Type: TokenMisc, Value: "|", Position: 2},
				{Type: TokenText, Value: "b", Position: 3},
			},
		},
		{
			name:  "recovery separator",
			input: "a:::b",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenText, Value: "a", Position: 0},
				{Type: TokenMisc, Value: ":::", Position: 1},
				{Type: TokenText, Value: "b", Position: 4},
			},
		},
	})
}

func TestLexerComments(t *testing.T) {
	runLexerTests(t, []lexerTestCase{
		{
			name:  "comment in new syntax",
			input: "# note\nx ## more\ny",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenText, Value: "x", Position: 7},
				{Type: TokenText, Value: "y", Position: 17},
			},
		},
		{
			name:  "action separator in old syntax",
			input: "x##y # note",
			expected: []Token{
				{Type: TokenText, Value: "x", Position: 0},
				{Type: TokenMisc, Value: "##", Position: 1},
				{Type: TokenText, Value: "y", Position: 3},
			},
		},
	})
}

func TestLexerStrings(t *testing.T) {
	runLexerTests(t, []lexerTestCase{
		{
			name:  "escapes are decoded",
			input: `"a\tb\"c"`,
			expected: []Token{
				{Type: TokenString, Value: "a\tb\"c", Position: 0},
			},
		},
		{
			name:  "single quotes",
			input: `'it'`,
			expected: []Token{
				{Type: TokenString, Value: "it", Position: 0},
			},
		},
		{
			name:  "interpolated variables",
			input: `"x *y and $z"`,
			expected: []Token{
				{Type: TokenString, Value: "x *y and $z", Position: 0, Vars: []int{2, 9}},
			},
		},
		{
			name:  "escaped star is literal",
			input: `"\*y"`,
			expected: []Token{
				{Type: TokenString, Value: "*y", Position: 0, Vars: []int(nil)},
			},
		},
		{
			name:  "raw string",
			input: "``a\\n*b``",
			expected: []Token{
				{Type: TokenString, Value: `a\n*b`, Position: 0},
			},
		},
		{
			name:      "unterminated string",
			input:     `"hello`,
			expectErr: true,
		},
	})
}

func TestLexerPaths(t *testing.T) {
	runLexerTests(t, []lexerTestCase{
		{
			name:  "path with variable",
			input: "/tempZone/home/*u, x",
			mode:  modeRulegen | modePath,
			expected: []Token{
				{Type: TokenPath, Value: "/tempZone/home/*u", Position: 0, Vars: []int{15}},
				{Type: TokenMisc, Value: ",", Position: 17},
				{Type: TokenText, Value: "x", Position: 19},
			},
		},
		{
			name:  "slash outside path mode",
			input: "/a",
			mode:  modeRulegen,
			expected: []Token{
				{Type: TokenOp, Value: "/", Position: 0},
				{Type: TokenText, Value: "a", Position: 1},
			},
		},
	})
}

func TestLexerReset(t *testing.T) {
	l := NewLexer("a ##\nb")
	first := l.Next(0)
	start := l.Offset()
	if sep := l.Next(0); sep.Value != "##" {
		t.Fatalf("expected ##, got %q", sep.Value)
	}
	l.Reset(start)
	if next := l.Next(modeRulegen); next.Value != "b" {
		t.Fatalf("expected the comment to be skipped after reset, got %q", next.Value)
	}
	if first.Value != "a" {
		t.Fatalf("unexpected first token %q", first.Value)
	}
}

func TestPrecedenceTable(t *testing.T) {
	tests := []struct {
		op     string
		binary int
		unary  int
	}{
		{"-", 6, 10},
		{"*", 7, -1},
		{"=", 1, -1},
		{"!", -1, 10},
		{"like regex", 4, -1},
		{"floor", -1, 10},
		{"@@", 20, -1},
		{"?", -1, -1},
	}
	for _, tt := range tests {
		if got := BinaryPrecedence(tt.op); got != tt.binary {
			t.Errorf("BinaryPrecedence(%q) = %d, want %d", tt.op, got, tt.binary)
		}
		if got := UnaryPrecedence(tt.op); got != tt.unary {
			t.Errorf("UnaryPrecedence(%q) = %d, want %d", tt.op, got, tt.unary)
		}
	}
	if len(operators) != 31 {
		t.Fatalf("expected 31 operators, got %d", len(operators))
	}
}
