// Package types defines the data model shared by the goirl packages.
//
// This package contains type definitions for:
//   - AstNode: parsed rule language syntax, annotated by the type checker
//   - ExprType: structural types, type variables and function signatures
//   - Value: evaluation results
//   - Region: the scoped allocator values live in during evaluation
//   - RuleDesc and RuleSet: compiled rule definitions
//   - Error types: status codes, structured errors and message chains
package types

// RuleKind tags a rule definition.
type RuleKind uint8

const (
	RuleRel    RuleKind = iota // name(params) { on cond { actions } }
	RuleFunc                   // name(params) = expr
	RuleData                   // data Name = ...
	RuleConstr                 // constructor C : T
	RuleExtern                 // name : T
)

var ruleKindTags = [...]string{
	RuleRel:    "",
	RuleFunc:   "@FUNC",
	RuleData:   "@DATA",
	RuleConstr: "@CONSTR",
	RuleExtern: "@EXTERN",
}

// Tag returns the catalog kind tag of the rule kind. Relational rules
// have no tag.
func (k RuleKind) Tag() string {
	return ruleKindTags[k]
}

func (k RuleKind) String() string {
	switch k {
	case RuleRel:
		return "REL"
	case RuleFunc:
		return "FUNC"
	case RuleData:
		return "DATA"
	case RuleConstr:
		return "CONSTR"
	case RuleExtern:
		return "EXTERN"
	}
	return "UNKNOWN"
}

// RuleKindFromTag maps a catalog kind tag back to a rule kind.
func RuleKindFromTag(tag string) (RuleKind, bool) {
	for k, t := range ruleKindTags {
		if t != "" && t == tag {
			return RuleKind(k), true
		}
	}
	return RuleRel, tag == ""
}

// RuleDesc is one compiled rule clause or declaration.
type RuleDesc struct {
	ID   int
	Kind RuleKind
	Name string
	Base string // rule base the clause was loaded from, e.g. "core"

	// Node is the NodeRule tree for RuleRel and RuleFunc; nil for
	// declarations.
	Node *AstNode

	// Type is the declared signature, if any. For declarations it is the
	// declared type; for rules it is set when parameters or the return
	// type are annotated.
	Type *ExprType

	// Dynamic disables static typing of the clause; unknown functions and
	// literals are checked at run time instead.
	Dynamic bool
}

// Params returns the formal parameter nodes of a rule.
func (r *RuleDesc) Params() []*AstNode {
	if r.Node == nil {
		return nil
	}
	return r.Node.Children[0].Children[0].Children
}

// Arity returns the number of formal parameters.
func (r *RuleDesc) Arity() int {
	if r.Node == nil {
		if r.Type != nil && r.Type.Kind == TFunc {
			return r.Type.Params().Arity()
		}
		return 0
	}
	return len(r.Params())
}

// Cond returns the guard condition.
func (r *RuleDesc) Cond() *AstNode { return r.Node.Children[1] }

// Actions returns the action sequence, or the body expression of a
// function rule.
func (r *RuleDesc) Actions() *AstNode { return r.Node.Children[2] }

// Recovery returns the recovery sequence.
func (r *RuleDesc) Recovery() *AstNode { return r.Node.Children[3] }

// Metadata returns the metadata node.
func (r *RuleDesc) Metadata() *AstNode { return r.Node.Children[4] }

// Meta returns the value of the first metadata triple with the given
// attribute.
func (r *RuleDesc) Meta(attr string) (string, bool) {
	if r.Node == nil {
		return "", false
	}
	for _, avu := range r.Metadata().Children {
		if len(avu.Children) >= 2 && avu.Children[0].Text == attr {
			return avu.Children[1].Text, true
		}
	}
	return "", false
}

// RuleSet is an ordered collection of rules and declarations.
type RuleSet struct {
	Rules []*RuleDesc
	Arena *NodeArena
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add appends a rule and returns it.
func (s *RuleSet) Add(r *RuleDesc) *RuleDesc {
	s.Rules = append(s.Rules, r)
	return r
}

// Len returns the number of entries.
func (s *RuleSet) Len() int {
	return len(s.Rules)
}
