package types

import "strings"

// NodeType identifies the type of an AST node.
type NodeType uint8

// AST node types.
const (
	// Literals
	NodeInt    NodeType = iota // 42
	NodeDouble                 // 4.2
	NodeBool                   // true, false
	NodeString                 // "text"

	// Names
	NodeLocalVar   // *name
	NodeSessionVar // $name
	NodeText       // identifier, function name, operator name

	// Composite
	NodeApplication     // fn(args): children are [fn text, args tuple]
	NodeTuple           // (a, b)
	NodeActions         // action sequence
	NodeActionsRecovery // {actions ::: recovery}: children are [actions, recovery]

	// Queries
	NodeQuery     // select: children are [columns tuple, conditions tuple]
	NodeQueryCol  // column with optional function in Children[0]
	NodeQueryCond // column, op and value expressions

	// Rule structure
	NodeRule     // children are [name, cond, actions, recovery, metadata]
	NodeRuleName // Text is the rule name, Children[0] the params tuple
	NodeMetadata // @("a", "v", "u")*
	NodeAVU      // one metadata triple
)

var nodeTypeNames = [...]string{
	NodeInt:             "int",
	NodeDouble:          "double",
	NodeBool:            "bool",
	NodeString:          "string",
	NodeLocalVar:        "local_var",
	NodeSessionVar:      "session_var",
	NodeText:            "text",
	NodeApplication:     "application",
	NodeTuple:           "tuple",
	NodeActions:         "actions",
	NodeActionsRecovery: "actions_recovery",
	NodeQuery:           "query",
	NodeQueryCol:        "query_col",
	NodeQueryCond:       "query_cond",
	NodeRule:            "rule",
	NodeRuleName:        "rule_name",
	NodeMetadata:        "metadata",
	NodeAVU:             "avu",
}

func (t NodeType) String() string {
	if int(t) < len(nodeTypeNames) {
		return nodeTypeNames[t]
	}
	return "unknown"
}

// AstNode is a node of the parsed program.
//
// The parser builds the tree and the type checker annotates it once
// (ExprType, CoercionType, IO and Coerce) before a rule set is published.
// After that the tree is shared read-only by every evaluation.
type AstNode struct {
	Type     NodeType
	Text     string
	Children []*AstNode
	Position int    // byte offset in Base
	Base     string // rule base or source name

	// Typing annotations
	ExprType     *ExprType
	CoercionType *ExprType // for argument tuples: the expected parameter tuple
	IO           IOType
	Coerce       bool // value must be coerced to CoercionType at run time

	// ConstructTuple marks explicit tuple syntax. A parenthesized single
	// expression is not a tuple.
	ConstructTuple bool
}

// NewAstNode creates a new AST node.
// Prefer NodeArena.Alloc when parsing to reduce per-node heap allocations.
func NewAstNode(nodeType NodeType, text string, position int) *AstNode {
	return &AstNode{
		Type:     nodeType,
		Text:     text,
		Position: position,
		IO:       IOInput,
	}
}

// Degree returns the number of children.
func (n *AstNode) Degree() int {
	return len(n.Children)
}

// IsVariable reports whether n is a local or session variable reference.
func (n *AstNode) IsVariable() bool {
	return n.Type == NodeLocalVar || n.Type == NodeSessionVar
}

// AppName returns the function name of an application node.
func (n *AstNode) AppName() string {
	return n.Children[0].Text
}

// AppArgs returns the argument tuple of an application node.
func (n *AstNode) AppArgs() *AstNode {
	return n.Children[1]
}

// String renders a compact s-expression of the subtree, used in tests and
// debug logs.
func (n *AstNode) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *AstNode) write(sb *strings.Builder) {
	if n == nil {
		sb.WriteString("<nil>")
		return
	}
	switch n.Type {
	case NodeString:
		sb.WriteByte('"')
		sb.WriteString(n.Text)
		sb.WriteByte('"')
		return
	case NodeInt, NodeDouble, NodeBool, NodeLocalVar, NodeSessionVar, NodeText:
		sb.WriteString(n.Text)
		return
	}
	sb.WriteByte('(')
	sb.WriteString(n.Type.String())
	if n.Text != "" {
		sb.WriteByte(' ')
		sb.WriteString(n.Text)
	}
	for _, c := range n.Children {
		sb.WriteByte(' ')
		c.write(sb)
	}
	sb.WriteByte(')')
}

// arenaChunkSize is the number of AstNode values pre-allocated per arena chunk.
const arenaChunkSize = 64

// NodeArena is a bump-pointer allocator for AstNode values.
//
// Instead of allocating each node individually on the heap, the arena
// pre-allocates fixed-size chunks of AstNode structs and returns pointers
// into them.
//
// # Lifetime
//
// The arena MUST stay alive as long as any pointer returned by Alloc is
// reachable. Attaching the arena to the [RuleSet] achieves this: the GC
// collects the arena when the rule set is released, including when a
// snapshot is replaced by a reload.
//
// # Thread safety
//
// NodeArena is NOT thread-safe. Each parser owns its own arena and the
// arena is never shared across goroutines while nodes are allocated.
type NodeArena struct {
	chunks [][]AstNode
	pos    int // next free index in the last chunk
}

// NewNodeArena allocates an arena pre-warmed with one initial chunk.
func NewNodeArena() *NodeArena {
	return &NodeArena{
		chunks: [][]AstNode{make([]AstNode, arenaChunkSize)},
		pos:    0,
	}
}

// Alloc returns a pointer to a zero-valued AstNode inside the arena,
// with Type, Text and Position set and IO defaulting to input.
func (a *NodeArena) Alloc(nodeType NodeType, text string, position int) *AstNode {
	if a.pos >= arenaChunkSize {
		a.chunks = append(a.chunks, make([]AstNode, arenaChunkSize))
		a.pos = 0
	}
	n := &a.chunks[len(a.chunks)-1][a.pos]
	a.pos++
	n.Type = nodeType
	n.Text = text
	n.Position = position
	n.IO = IOInput
	return n
}

// Len returns the number of nodes allocated so far.
func (a *NodeArena) Len() int {
	return (len(a.chunks)-1)*arenaChunkSize + a.pos
}
