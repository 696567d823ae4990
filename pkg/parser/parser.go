package parser

// Package parser implements the rule language parser.
//
// The parser is a hand-written recursive descent parser with ordered
// choice: every alternative records a checkpoint into the token stream and
// restores it when the alternative fails. The furthest failure across all
// alternatives is the one reported.
//
// # Architecture
//
// The parser consists of three main components:
//   - Lexer: Tokenizes the input in the mode requested by the parser
//   - Parser: Builds rule descriptors and AST nodes from tokens
//   - Printer: Renders nodes, rules and types back to source syntax
//
// # Grammar
//
//	RuleSet    = { Directive | Rule }
//	Directive  = "@backwardCompatible" ("true"|"false"|"auto") | "@include" name
//	Rule       = "data" RuleName [ "=" ["|"] Constr { "|" Constr } ] [";"]
//	           | "constructor" TEXT ":" FuncType
//	           | TEXT ":" FuncType
//	           | RuleName "{" { ("on"|"oron") Term "{" Actions "}" Meta | "or" "{" Actions "}" Meta } "}"
//	           | RuleName "{" Actions "}" Meta
//	           | RuleName "|" [Term] "|" Actions "|" Actions [ "|" INT ]
//	           | RuleName "=" Term [":::" Term] Meta [";"]
//	RuleName   = TEXT [ "(" [ Term [":" Type] { "," Term [":" Type] } ] ")" ] [":" FuncType]
//	Meta       = { "@" "(" STRING "," STRING ["," STRING] ")" }
//	Actions    = { Term [":::" Term] [";"] }
//	Term       = Value { BinOp Term | "(" Args ")" }
//
// Operators bind by the precedence table in tokens.go and associate to the
// left. Operators become applications of functions with the same name,
// except "=" which applies assign and unary "-" which applies neg.
//
// # Example
//
//	set, err := parser.ParseRuleSet(`acPostProcForPut { writeLine("serverLog", $objPath); }`, "core")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range set.Rules {
//	    fmt.Println(parser.FormatRule(r))
//	}

import (
	"github.com/sandrolain/goirl/pkg/types"
)

// ParseRuleSet parses a rule set and returns its rules in source order.
// base names the rule base and is recorded in every node for positions.
func ParseRuleSet(src, base string, opts ...CompileOption) (*types.RuleSet, error) {
	set := types.NewRuleSet()
	if err := ParseInto(set, src, base, opts...); err != nil {
		return nil, err
	}
	return set, nil
}

// ParseInto parses src and appends its rules to set. Nothing is appended
// when parsing fails.
func ParseInto(set *types.RuleSet, src, base string, opts ...CompileOption) error {
	if set.Arena == nil {
		set.Arena = types.NewNodeArena()
	}
	p := NewParser(src, base, set.Arena, opts...)
	rules, err := p.ParseRules()
	if err != nil {
		return err
	}
	for _, r := range rules {
		set.Add(r)
	}
	return nil
}

// ParseExpression parses a single expression.
func ParseExpression(src, base string, opts ...CompileOption) (*types.Expression, error) {
	arena := types.NewNodeArena()
	p := NewParser(src, base, arena, opts...)
	node, err := p.ParseTerm()
	if err != nil {
		return nil, err
	}
	return types.NewExpression(node, src, false, arena), nil
}

// ParseActions parses a sequence of actions with optional recoveries, as
// accepted by irule and eval. The root is an actions-recovery node.
func ParseActions(src, base string, opts ...CompileOption) (*types.Expression, error) {
	arena := types.NewNodeArena()
	p := NewParser(src, base, arena, opts...)
	node, err := p.ParseActionSequence()
	if err != nil {
		return nil, err
	}
	return types.NewExpression(node, src, true, arena), nil
}

// ParseFuncType parses a function signature such as
// "forall X in {integer double}, f X * f X -> X".
func ParseFuncType(sig string) (*types.ExprType, error) {
	p := NewParser(sig, "signature", types.NewNodeArena())
	return p.ParseSignature()
}

// MustParseFuncType is like ParseFuncType but panics on error. It is meant
// for signature tables built at package initialization.
func MustParseFuncType(sig string) *types.ExprType {
	t, err := ParseFuncType(sig)
	if err != nil {
		panic("parser: " + err.Error())
	}
	return t
}

// CompileOption configures parsing behavior.
type CompileOption func(*CompileOptions)

// CompileOptions holds parser configuration.
type CompileOptions struct {
	// MaxDepth limits recursion depth to prevent stack overflow.
	MaxDepth int
	// Includer resolves the rule base named by an @include directive to
	// its source. Includes are rejected when nil.
	Includer func(name string) (string, error)
	// BackwardCompatible sets the initial typing mode of relational rules,
	// as the @backwardCompatible directive does.
	BackwardCompatible Compat
}

// Compat is the value of the @backwardCompatible directive.
type Compat int8

const (
	CompatAuto  Compat = iota // old syntax rules are dynamically typed
	CompatTrue                // all relational rules are dynamically typed
	CompatFalse               // all rules are statically typed
)

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) CompileOption {
	return func(opts *CompileOptions) {
		opts.MaxDepth = depth
	}
}

// WithIncluder sets the resolver used by @include.
func WithIncluder(fn func(name string) (string, error)) CompileOption {
	return func(opts *CompileOptions) {
		opts.Includer = fn
	}
}

// WithBackwardCompatible sets the initial typing mode.
func WithBackwardCompatible(c Compat) CompileOption {
	return func(opts *CompileOptions) {
		opts.BackwardCompatible = c
	}
}
