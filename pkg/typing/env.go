// Package typing implements the static type checker of the rule language.
//
// Typing a rule collects constraints of the form a < b ("a can be passed
// where b is expected") while walking the tree. Constraints are simplified
// as they are added: composite types are split into their components,
// bounded type variables are narrowed by intersecting their disjunct sets,
// and under a flexible parameter an integer may stand for a double. A
// constraint that can never hold makes the rule ill typed.
//
// Once the constraints are solved the tree is annotated in place: every
// node gets its instantiated type, argument tuples get the parameter types
// they are coerced to, argument nodes get the I/O direction of their
// parameter, and arguments whose static type differs from the parameter
// are flagged for run time coercion.
package typing

import "github.com/sandrolain/goirl/pkg/types"

// Env is the substitution built while typing one rule or expression. It
// maps type variable ids to types and variable names to their types.
type Env struct {
	subst map[int]*types.ExprType
	vars  map[string]*types.ExprType
	gen   int // bumped on every binding
}

// NewEnv returns an empty substitution.
func NewEnv() *Env {
	return &Env{
		subst: make(map[int]*types.ExprType),
		vars:  make(map[string]*types.ExprType),
	}
}

// Bind records that the variable id stands for t.
func (e *Env) Bind(id int, t *types.ExprType) {
	e.subst[id] = t
	e.gen++
}

// Lookup returns the type bound to a variable id.
func (e *Env) Lookup(id int) (*types.ExprType, bool) {
	t, ok := e.subst[id]
	return t, ok
}

// VarType returns the type recorded for a rule variable such as *x.
func (e *Env) VarType(name string) (*types.ExprType, bool) {
	t, ok := e.vars[name]
	return t, ok
}

// SetVarType records the type of a rule variable.
func (e *Env) SetVarType(name string, t *types.ExprType) {
	e.vars[name] = t
}

// Deref follows the bindings of a top level type variable.
func (e *Env) Deref(t *types.ExprType) *types.ExprType {
	for t != nil && t.Kind == types.TVar {
		b, ok := e.subst[t.VarID]
		if !ok {
			return t
		}
		t = b
	}
	return t
}

// Instantiate applies the substitution to every component of t. Free
// variables are kept.
func (e *Env) Instantiate(t *types.ExprType) *types.ExprType {
	if t == nil {
		return nil
	}
	if t.Kind == types.TVar {
		d := e.Deref(t)
		if d == t {
			return t
		}
		return e.Instantiate(d)
	}
	var args []*types.ExprType
	for i, a := range t.Args {
		inst := e.Instantiate(a)
		if inst != a && args == nil {
			args = append([]*types.ExprType(nil), t.Args...)
		}
		if args != nil {
			args[i] = inst
		}
	}
	if args == nil {
		return t
	}
	c := t.Clone()
	c.Args = args
	return c
}

// occurs reports whether the variable v appears in t.
func (e *Env) occurs(v, t *types.ExprType) bool {
	t = e.Deref(t)
	if t.Kind == types.TVar {
		return t.VarID == v.VarID
	}
	for _, a := range t.Args {
		if e.occurs(v, a) {
			return true
		}
	}
	return false
}

// Fresh returns a copy of a declared signature in which every type
// variable is replaced by a new one with the same bounds, so that each use
// of a polymorphic function is typed independently.
func Fresh(t *types.ExprType) *types.ExprType {
	return fresh(t, map[int]*types.ExprType{})
}

func fresh(t *types.ExprType, vars map[int]*types.ExprType) *types.ExprType {
	if t.Kind == types.TVar {
		v, ok := vars[t.VarID]
		if !ok {
			v = types.NewTVar(types.NextTVarID(), t.Disjuncts...)
			vars[t.VarID] = v
		}
		if v.IO == t.IO {
			return v
		}
		return v.WithIO(t.IO)
	}
	if len(t.Args) == 0 {
		return t
	}
	c := t.Clone()
	for i, a := range t.Args {
		c.Args[i] = fresh(a, vars)
	}
	return c
}

// replaceDynamic replaces every dynamic component of a result type with a
// new type variable so that it can be refined by later uses.
func replaceDynamic(t *types.ExprType) *types.ExprType {
	if t.Kind == types.TDynamic {
		v := types.NewTVar(types.NextTVarID())
		v.IO = t.IO
		return v
	}
	if len(t.Args) == 0 {
		return t
	}
	c := t.Clone()
	for i, a := range t.Args {
		c.Args[i] = replaceDynamic(a)
	}
	return c
}
