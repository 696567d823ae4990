package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const eof = -1

// lexMode selects how ambiguous input is tokenized.
type lexMode uint8

const (
	// modeRulegen lexes new syntax: '#' starts a comment, "||" is an
	// operator and ":::" separates an action from its recovery. Without it
	// "##" delimits actions and '|' is always punctuation.
	modeRulegen lexMode = 1 << iota
	// modePath lexes a leading '/' as a path literal.
	modePath
)

// Lexer converts rule language source into a sequence of tokens.
// The implementation is based on Rob Pike's "Lexical Scanning in Go" technique.
//
// The rule language is not context free at the lexical level: whether '/'
// starts a path and whether '#' starts a comment depend on where the parser
// is. The parser therefore passes a mode to every Next call and may Reset
// the lexer to re-read input in a different mode.
type Lexer struct {
	input   string // Input string being scanned
	length  int    // Length of input string
	start   int    // Start position of current token
	current int    // Current position in input
	width   int    // Width of last rune read
	err     error  // First error encountered
}

// NewLexer creates a new lexer from the provided input string.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		length: len(input),
	}
}

// Offset returns the current read position.
func (l *Lexer) Offset() int {
	return l.current
}

// Reset moves the lexer to offset and clears any error.
func (l *Lexer) Reset(offset int) {
	l.current = offset
	l.start = offset
	l.width = 0
	l.err = nil
}

// Error returns the first error encountered during lexing, if any.
func (l *Lexer) Error() error {
	return l.err
}

// Next returns the next token from the input.
// When the end of the input is reached, Next returns TokenEOF for all subsequent calls.
func (l *Lexer) Next(mode lexMode) Token {
	rulegen := mode&modeRulegen != 0

	for {
		l.acceptAll(isWhitespace)
		l.ignore()
		if l.peek() != '#' {
			break
		}
		l.nextRune()
		if !rulegen && l.acceptRune('#') {
			return l.newToken(TokenMisc)
		}
		l.skipLine()
	}

	ch := l.nextRune()
	switch {
	case ch == eof:
		return l.eof()
	case strings.ContainsRune("{}[](),;?", ch):
		return l.newToken(TokenMisc)
	case ch == '@':
		if l.peek() != '@' {
			return l.newToken(TokenMisc)
		}
	case ch == '|':
		if !rulegen || l.peek() != '|' {
			return l.newToken(TokenMisc)
		}
	case ch == '-' || ch == '=':
		if l.acceptRune('>') {
			return l.newToken(TokenMisc)
		}
	case ch == ':':
		if rulegen && strings.HasPrefix(l.input[l.current:], "::") {
			l.current += 2
		}
		return l.newToken(TokenMisc)
	case ch == '*' || ch == '$':
		if r := l.peek(); r == '_' || isAlpha(r) {
			l.acceptAll(isIdent)
			if ch == '*' {
				return l.newToken(TokenLocalVar)
			}
			return l.newToken(TokenSessionVar)
		}
	case ch == '/' && mode&modePath != 0:
		l.current = l.start
		return l.scanPath()
	}

	l.current = l.start
	if t, ok := l.scanOperator(); ok {
		return t
	}

	ch = l.nextRune()
	switch {
	case isDigit(ch):
		l.acceptAll(func(r rune) bool { return isDigit(r) || r == '.' })
		t := l.newToken(TokenInt)
		if strings.ContainsRune(t.Value, '.') {
			t.Type = TokenDouble
		}
		return t
	case ch == '_' || ch == '~' || isAlpha(ch):
		l.acceptAll(isIdent)
		return l.newToken(TokenText)
	case ch == '"' || ch == '\'':
		return l.scanString(ch)
	case ch == '`':
		if l.acceptRune('`') {
			return l.scanRawString()
		}
		return l.scanBackquoted()
	}
	return l.errorf("unexpected character %q", ch)
}

// scanOperator matches the operator table at the current position.
func (l *Lexer) scanOperator() (Token, bool) {
	rest := l.input[l.current:]
	for _, op := range operators {
		if !strings.HasPrefix(rest, op.text) {
			continue
		}
		if isAlpha(rune(op.text[0])) && len(rest) > len(op.text) && isIdent(rune(rest[len(op.text)])) {
			continue
		}
		l.current += len(op.text)
		return l.newToken(TokenOp), true
	}
	return Token{}, false
}

// scanString reads a quoted string literal. The opening quote has already
// been consumed. Backslash escapes are decoded and the offsets of variable
// references are recorded for interpolation.
func (l *Lexer) scanString(quote rune) Token {
	var sb strings.Builder
	var vars []int
Loop:
	for {
		switch ch := l.nextRune(); ch {
		case quote:
			break Loop
		case eof:
			return l.errorf("unterminated string literal")
		case '\\':
			sb.WriteRune(unescape(l.nextRune()))
		case '*', '$':
			if isAlpha(l.peek()) {
				vars = append(vars, sb.Len())
			}
			sb.WriteRune(ch)
		default:
			sb.WriteRune(ch)
		}
	}
	t := l.newToken(TokenString)
	t.Value = sb.String()
	t.Vars = vars
	return t
}

// scanRawString reads a ``...`` literal. The opening backquotes have
// already been consumed. Nothing inside is escaped or interpolated.
func (l *Lexer) scanRawString() Token {
	from := l.current
	end := strings.Index(l.input[from:], "``")
	if end < 0 {
		l.current = l.length
		return l.errorf("unterminated string literal")
	}
	end += from
	for end+2 < l.length && l.input[end+2] == '`' {
		end++
	}
	l.current = end + 2
	t := l.newToken(TokenString)
	t.Value = l.input[from:end]
	return t
}

// scanBackquoted reads an irods type name. The opening backquote has
// already been consumed.
func (l *Lexer) scanBackquoted() Token {
	var sb strings.Builder
Loop:
	for {
		switch ch := l.nextRune(); ch {
		case '`':
			break Loop
		case eof:
			return l.errorf("unterminated backquoted name")
		case '\\':
			sb.WriteRune(unescape(l.nextRune()))
		default:
			sb.WriteRune(ch)
		}
	}
	t := l.newToken(TokenBackquoted)
	t.Value = sb.String()
	return t
}

// scanPath reads a path literal up to the next delimiter, which is not
// consumed.
func (l *Lexer) scanPath() Token {
	var sb strings.Builder
	var vars []int
Loop:
	for {
		ch := l.nextRune()
		switch {
		case ch == eof:
			break Loop
		case strings.ContainsRune("),; \t\r\n", ch):
			l.backup()
			break Loop
		case ch == '\\':
			sb.WriteRune(unescape(l.nextRune()))
		case (ch == '*' || ch == '$') && isAlpha(l.peek()):
			vars = append(vars, sb.Len())
			sb.WriteRune(ch)
		default:
			sb.WriteRune(ch)
		}
	}
	t := l.newToken(TokenPath)
	t.Value = sb.String()
	t.Vars = vars
	return t
}

func unescape(r rune) rune {
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	}
	return r
}

// Helper methods

func (l *Lexer) eof() Token {
	return Token{
		Type:     TokenEOF,
		Value:    "EOS",
		Position: l.current,
	}
}

func (l *Lexer) errorf(format string, args ...any) Token {
	t := l.newToken(TokenError)
	t.Value = fmt.Sprintf(format, args...)
	if l.err == nil {
		l.err = fmt.Errorf("%s at position %d", t.Value, t.Position)
	}
	return t
}

func (l *Lexer) newToken(tt TokenType) Token {
	t := Token{
		Type:     tt,
		Value:    l.input[l.start:l.current],
		Position: l.start,
	}
	l.width = 0
	l.start = l.current
	return t
}

func (l *Lexer) nextRune() rune {
	if l.current >= l.length {
		l.width = 0
		return eof
	}

	r, w := utf8.DecodeRuneInString(l.input[l.current:])
	l.width = w
	l.current += w
	return r
}

func (l *Lexer) peek() rune {
	r := l.nextRune()
	l.backup()
	return r
}

func (l *Lexer) backup() {
	l.current -= l.width
	l.width = 0
}

func (l *Lexer) ignore() {
	l.start = l.current
}

func (l *Lexer) skipLine() {
	for {
		switch l.nextRune() {
		case '\n', eof:
			l.ignore()
			return
		}
	}
}

func (l *Lexer) acceptRune(r rune) bool {
	return l.accept(func(c rune) bool {
		return c == r
	})
}

func (l *Lexer) accept(isValid func(rune) bool) bool {
	if isValid(l.nextRune()) {
		return true
	}
	l.backup()
	return false
}

func (l *Lexer) acceptAll(isValid func(rune) bool) bool {
	var matched bool
	for l.accept(isValid) {
		matched = true
	}
	return matched
}

// Character classification functions

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdent(r rune) bool {
	return r == '_' || isAlpha(r) || isDigit(r)
}
