package types

// Expression is a parsed and typed action sequence or expression that can
// be evaluated many times, for example by eval or by the engine's
// ComputeExpression. It is safe for concurrent use once built.
type Expression struct {
	node    *AstNode
	source  string
	actions bool
	arena   *NodeArena
}

// NewExpression creates a new Expression from a parsed tree.
func NewExpression(node *AstNode, source string, actions bool, arena *NodeArena) *Expression {
	return &Expression{
		node:    node,
		source:  source,
		actions: actions,
		arena:   arena,
	}
}

// AST returns the root node.
func (e *Expression) AST() *AstNode {
	return e.node
}

// Source returns the original source text.
func (e *Expression) Source() string {
	return e.source
}

// IsActions reports whether the root is an action sequence with recovery.
func (e *Expression) IsActions() bool {
	return e.actions
}

// String returns the source text.
func (e *Expression) String() string {
	return e.source
}
