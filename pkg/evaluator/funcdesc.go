package evaluator

import (
	"github.com/sandrolain/goirl/pkg/index"
	"github.com/sandrolain/goirl/pkg/types"
)

// FunctionDesc describes a callable name that is not a rule. It is one of
// *Builtin, *Constructor, *Deconstructor or *ExternalFunc.
type FunctionDesc interface {
	Signature() *types.ExprType
	functionDesc()
}

// BuiltinFunc is the calling convention shared by every builtin. Output
// parameters are returned by replacing the corresponding element of args.
type BuiltinFunc func(c *CallContext, args []*types.Value) (*types.Value, error)

// Builtin is a function implemented in Go.
type Builtin struct {
	Name string
	Sig  *types.ExprType
	Fn   BuiltinFunc
}

func (b *Builtin) Signature() *types.ExprType { return b.Sig }
func (*Builtin) functionDesc()                 {}

// Constructor builds a value of a data type declared with
// "constructor C : T1 * T2 -> D".
type Constructor struct {
	Name string
	Type *types.ExprType
}

func (c *Constructor) Signature() *types.ExprType { return c.Type }
func (*Constructor) functionDesc()                 {}

// Deconstructor projects one field out of a constructed value.
type Deconstructor struct {
	Name string
	Type *types.ExprType
	// Proj is the index of the projected field.
	Proj int
}

func (d *Deconstructor) Signature() *types.ExprType { return d.Type }
func (*Deconstructor) functionDesc()                 {}

// ExternalFunc declares the signature of a rule or micro-service that is
// dispatched by name at run time.
type ExternalFunc struct {
	Name string
	Type *types.ExprType
}

func (f *ExternalFunc) Signature() *types.ExprType { return f.Type }
func (*ExternalFunc) functionDesc()                 {}

// RuleBase is one named rule set with its index.
type RuleBase struct {
	Name  string
	Rules *types.RuleSet
	Index *index.Index
}

// NewRuleBase indexes the rules of set.
func NewRuleBase(name string, set *types.RuleSet) *RuleBase {
	if set == nil {
		set = types.NewRuleSet()
	}
	return &RuleBase{Name: name, Rules: set, Index: index.Build(set.Rules)}
}

// Program is the compiled, read-only state evaluation runs against: the
// rule bases in lookup order and the function table built from the
// declarations they contain.
type Program struct {
	Bases []*RuleBase
	Funcs map[string]FunctionDesc
}

// NewProgram returns a program over bases, which are searched in order.
// Data, constructor and extern declarations of every base are entered in
// the function table.
func NewProgram(bases ...*RuleBase) (*Program, error) {
	p := &Program{Funcs: make(map[string]FunctionDesc)}
	for _, b := range bases {
		if err := p.AddBase(b); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddBase appends a rule base and registers its declarations.
func (p *Program) AddBase(b *RuleBase) error {
	p.Bases = append(p.Bases, b)
	for _, r := range b.Rules.Rules {
		var fd FunctionDesc
		switch r.Kind {
		case types.RuleConstr:
			fd = &Constructor{Name: r.Name, Type: r.Type}
		case types.RuleExtern:
			fd = &ExternalFunc{Name: r.Name, Type: r.Type}
		default:
			continue
		}
		if err := p.Define(r.Name, fd); err != nil {
			return types.Errorf(types.ReFunctionRedefinition, "function %s redefined in %s", r.Name, r.Base).
				WithCause(err)
		}
	}
	return nil
}

// Base returns the rule base named name.
func (p *Program) Base(name string) (*RuleBase, bool) {
	for _, b := range p.Bases {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// Define adds a function descriptor. Builtins cannot be shadowed and a
// name can only be defined once.
func (p *Program) Define(name string, fd FunctionDesc) error {
	if _, ok := lookupBuiltin(name); ok {
		return types.Errorf(types.ReFunctionRedefinition, "function %s redefined", name)
	}
	if _, ok := p.Funcs[name]; ok {
		return types.Errorf(types.ReFunctionRedefinition, "function %s redefined", name)
	}
	p.Funcs[name] = fd
	return nil
}

// HasRule reports whether any base has a clause named name.
func (p *Program) HasRule(name string) bool {
	for _, b := range p.Bases {
		if b.Index.Has(name) {
			return true
		}
	}
	return false
}

// Candidates returns the entries of name across every base, in lookup
// order.
func (p *Program) Candidates(name string) []index.Entry {
	var out []index.Entry
	for _, b := range p.Bases {
		if l, ok := b.Index.List(name); ok {
			out = append(out, l.Entries()...)
		}
	}
	return out
}

// Signature returns the declared type of name. Builtins come first, then
// the function table, then the first clause of a rule with a declared
// type. Rules without a declaration are typed dynamically.
func (p *Program) Signature(name string) (*types.ExprType, bool) {
	if b, ok := lookupBuiltin(name); ok {
		return b.Sig, true
	}
	if fd, ok := p.Funcs[name]; ok {
		return fd.Signature(), true
	}
	for _, b := range p.Bases {
		l, ok := b.Index.List(name)
		if !ok {
			continue
		}
		for _, r := range l.Clauses() {
			if r.Type != nil {
				return r.Type, true
			}
		}
	}
	return nil, false
}

// RuleCount returns the number of indexed clauses across every base.
func (p *Program) RuleCount() int {
	n := 0
	for _, b := range p.Bases {
		for _, name := range b.Index.Names() {
			l, _ := b.Index.List(name)
			n += len(l.Clauses())
		}
	}
	return n
}
