package parser

// TokenType represents the type of a lexical token.
type TokenType uint8

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInt        // 42
	TokenDouble     // 4.2
	TokenString     // "text" or 'text', may reference variables
	TokenPath       // /zone/home/user, only where a value is expected
	TokenBackquoted // `KeyValPair_PI`, names an irods type

	// Names
	TokenText       // identifiers and keywords
	TokenLocalVar   // *name
	TokenSessionVar // $name

	// Operators and punctuation
	TokenOp   // entries of the operator table
	TokenMisc // { } [ ] ( ) , @ ; ? | : ::: -> => ##
)

// String returns a string representation of the token type.
func (tt TokenType) String() string {
	switch tt {
	case TokenEOF:
		return "(eof)"
	case TokenError:
		return "(error)"
	case TokenInt:
		return "(integer)"
	case TokenDouble:
		return "(double)"
	case TokenString:
		return "(string)"
	case TokenPath:
		return "(path)"
	case TokenBackquoted:
		return "(backquoted)"
	case TokenText:
		return "(text)"
	case TokenLocalVar:
		return "(local variable)"
	case TokenSessionVar:
		return "(session variable)"
	case TokenOp:
		return "(operator)"
	case TokenMisc:
		return "(punctuation)"
	default:
		return "(unknown)"
	}
}

// Token represents a lexical token with its type, decoded value, and position.
type Token struct {
	Type     TokenType
	Value    string
	Position int // byte offset of the first character

	// Vars holds the offsets in Value of the '*' or '$' of every variable
	// referenced from a string or path literal.
	Vars []int
}

// is reports whether t is an operator, punctuation or text token spelled s.
func (t Token) is(s string) bool {
	switch t.Type {
	case TokenText, TokenOp, TokenMisc:
		return t.Value == s
	}
	return false
}

// operator is an entry of the operator table.
type operator struct {
	text  string
	arity int
	prec  int
}

// operators is scanned in order and the first entry whose text prefixes
// the input wins. Alphabetic operators must not be followed by a letter or
// digit.
var operators = []operator{
	{"-", 1, 10},
	{"++", 2, 6},
	{"+", 2, 6},
	{"-", 2, 6},
	{"*", 2, 7},
	{"/", 2, 7},
	{"&&", 2, 3},
	{"%%", 2, 2},
	{"||", 2, 2},
	{"%", 2, 7},
	{"<=", 2, 5},
	{">=", 2, 5},
	{"<", 2, 5},
	{">", 2, 5},
	{"==", 2, 4},
	{"!=", 2, 4},
	{"!", 1, 10},
	{"like regex", 2, 4},
	{"not like regex", 2, 4},
	{"like", 2, 4},
	{"not like", 2, 4},
	{"^^", 2, 8},
	{"^", 2, 8},
	{".", 2, 8},
	{"floor", 1, 10},
	{"ceiling", 1, 10},
	{"log", 1, 10},
	{"exp", 1, 10},
	{"abs", 1, 10},
	{"=", 2, 1},
	{"@@", 2, 20},
}

const (
	minPrec = 0
	appPrec = 20 // precedence of function application
)

// BinaryPrecedence returns the precedence of the binary operator op, or -1.
func BinaryPrecedence(op string) int {
	for _, o := range operators {
		if o.arity == 2 && o.text == op {
			return o.prec
		}
	}
	return -1
}

// UnaryPrecedence returns the precedence of the unary operator op, or -1.
func UnaryPrecedence(op string) int {
	for _, o := range operators {
		if o.arity == 1 && o.text == op {
			return o.prec
		}
	}
	return -1
}

// keywords cannot name a function in new syntax rules.
var keywords = map[string]bool{
	"in": true, "let": true, "match": true, "with": true,
	"for": true, "forExec": true, "while": true, "whileExec": true,
	"foreach": true, "forEachExec": true, "if": true, "ifExec": true,
	"then": true, "else": true, "data": true, "constructor": true,
	"on": true, "or": true, "oron": true,
}

// IsKeyword reports whether s is a reserved word.
func IsKeyword(s string) bool {
	return keywords[s]
}
