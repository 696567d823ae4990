package typing

import (
	"strconv"

	"github.com/sandrolain/goirl/pkg/types"
)

// Satisfiability is the outcome of simplifying constraints.
type Satisfiability int8

const (
	Absurdity   Satisfiability = iota // cannot hold
	Tautology                         // always holds
	Contingency                       // holds under remaining constraints
)

func (s Satisfiability) String() string {
	switch s {
	case Absurdity:
		return "ABSURDITY"
	case Tautology:
		return "TAUTOLOGY"
	}
	return "CONTINGENCY"
}

// Constraint is a < b, recorded at the node that produced it.
type Constraint struct {
	A, B *types.ExprType
	Node *types.AstNode
}

// baseTypes is the bound of a free variable constrained by a base type.
var baseTypes = []*types.ExprType{
	types.NewSimpleType(types.TInt),
	types.NewSimpleType(types.TBool),
	types.NewSimpleType(types.TDouble),
	types.NewSimpleType(types.TDatetime),
	types.NewSimpleType(types.TString),
	types.NewSimpleType(types.TPath),
	types.NewIrodsType(""),
}

func isBase(t *types.ExprType) bool {
	return t.Kind.IsBase()
}

func isComposite(t *types.ExprType) bool {
	return t.Kind == types.TCons || t.Kind == types.TTuple || t.Kind == types.TFunc
}

// lessBase reports a < b for base types when an integer may widen.
func lessBase(a, b *types.ExprType) bool {
	switch a.Kind {
	case types.TInt:
		return b.Kind == types.TInt || b.Kind == types.TDouble
	case types.TIrods:
		return b.Kind == types.TIrods && (a.Name == "" || b.Name == "" || a.Name == b.Name)
	}
	return a.Kind == b.Kind
}

func splitBase(a, b *types.ExprType, flex bool) Satisfiability {
	if flex {
		if lessBase(a, b) {
			return Tautology
		}
		return Absurdity
	}
	if a.Kind == types.TIrods && b.Kind == types.TIrods && (a.Name == "" || b.Name == "") {
		return Tautology
	}
	if a.Equal(b) {
		return Tautology
	}
	return Absurdity
}

// solver simplifies one batch of constraints against an Env.
type solver struct {
	env    *Env
	equiv  map[string]*types.ExprType
	simple []Constraint
}

func equivKey(t *types.ExprType) string {
	if isBase(t) {
		return t.Kind.String() + ":" + t.Name
	}
	return "?" + strconv.Itoa(t.VarID)
}

// rep returns the representative of the equivalence class of a variable
// or base type.
func (s *solver) rep(t *types.ExprType) *types.ExprType {
	cur := t
	hops := 0
	for {
		next, ok := s.equiv[equivKey(cur)]
		if !ok {
			break
		}
		cur = next
		hops++
	}
	if hops > 1 {
		s.equiv[equivKey(t)] = cur
	}
	return cur
}

func (s *solver) addEquiv(a, b *types.ExprType) {
	an, bn := s.rep(a), s.rep(b)
	if an.Equal(bn) || isBase(an) && isBase(bn) {
		return
	}
	if isBase(an) {
		s.equiv[equivKey(bn)] = an
	} else {
		s.equiv[equivKey(an)] = bn
	}
}

func (s *solver) simplifyLocally(a, b *types.ExprType, flex bool, node *types.AstNode) Satisfiability {
	switch b.Kind {
	case types.TFlex:
		b = b.Args[0]
		flex = true
	case types.TFixed:
		b = b.Args[0]
	}
	a = s.env.Deref(a)
	b = s.env.Deref(b)

	switch {
	case a.Kind == types.TUnspeced || a.Kind == types.TDynamic || b.Kind == types.TDynamic:
		return Tautology
	case isBase(a) && isBase(b):
		return splitBase(a, b, flex)
	case a.Kind == types.TVar && b.Kind == types.TVar:
		return s.narrow(a, b, flex, node)
	case a.Kind == types.TVar && isBase(b):
		return s.simplifyL(a, b, flex, node)
	case b.Kind == types.TVar && isBase(a):
		return s.simplifyR(a, b, flex, node)
	case a.Kind == types.TVar && isComposite(b):
		return s.splitVar(a, b, true, flex, node)
	case b.Kind == types.TVar && isComposite(a):
		return s.splitVar(b, a, false, flex, node)
	case isComposite(a) && a.Kind == b.Kind:
		return s.splitComposite(a, b, flex, node)
	case a.Equal(b):
		return Tautology
	}
	return Absurdity
}

// splitComposite splits a constraint between two types with the same top
// level constructor into constraints between their components.
func (s *solver) splitComposite(a, b *types.ExprType, flex bool, node *types.AstNode) Satisfiability {
	if a.Kind == types.TCons && a.Name != b.Name || len(a.Args) != len(b.Args) {
		return Absurdity
	}
	ret := Tautology
	for i := range a.Args {
		switch s.simplifyLocally(a.Args[i], b.Args[i], flex, node) {
		case Absurdity:
			return Absurdity
		case Contingency:
			ret = Contingency
		}
	}
	return ret
}

// splitVar binds v to the shape of comp with fresh components and splits
// the constraint. left tells on which side of the constraint v is.
func (s *solver) splitVar(v, comp *types.ExprType, left, flex bool, node *types.AstNode) Satisfiability {
	if len(v.Disjuncts) > 0 || s.env.occurs(v, comp) || isBase(s.rep(v)) {
		return Absurdity
	}
	shape := &types.ExprType{
		Kind:   comp.Kind,
		Name:   comp.Name,
		Args:   make([]*types.ExprType, len(comp.Args)),
		Vararg: comp.Vararg,
		IO:     types.IOInput,
	}
	for i := range shape.Args {
		shape.Args[i] = types.NewTVar(types.NextTVarID())
	}
	s.env.Bind(v.VarID, shape)
	if left {
		return s.splitComposite(shape, comp, flex, node)
	}
	return s.splitComposite(comp, shape, flex, node)
}

func bounds(v *types.ExprType) []*types.ExprType {
	if len(v.Disjuncts) == 0 {
		return baseTypes
	}
	return v.Disjuncts
}

// narrowSets keeps the members of l and r that take part in at least one
// pair satisfying l < r. A nameless irods type adopts the name of its
// partner.
func narrowSets(l, r []*types.ExprType, flex bool) (nl, nr []*types.ExprType) {
	retl := make([]*types.ExprType, len(l))
	retr := make([]*types.ExprType, len(r))
	for k := range r {
		for i := range l {
			if splitBase(l[i], r[k], flex) != Tautology {
				continue
			}
			retl[i], retr[k] = l[i], r[k]
			if l[i].Kind == types.TIrods && l[i].Name == "" {
				retl[i] = retr[k]
			}
			if r[k].Kind == types.TIrods && r[k].Name == "" {
				retr[k] = retl[i]
			}
		}
	}
	for _, t := range retl {
		if t != nil {
			nl = append(nl, t)
		}
	}
	for _, t := range retr {
		if t != nil {
			nr = append(nr, t)
		}
	}
	return nl, nr
}

// restrict binds v to the narrowed set, or to its only member. v itself is
// returned when nothing was removed.
func (s *solver) restrict(v *types.ExprType, set []*types.ExprType) *types.ExprType {
	if len(set) == len(v.Disjuncts) {
		return v
	}
	var t *types.ExprType
	if len(set) == 1 {
		t = set[0]
	} else {
		t = types.NewTVar(types.NextTVarID(), set...)
	}
	s.env.Bind(v.VarID, t)
	s.addEquiv(v, t)
	return t
}

// simplifyL simplifies a < b where a is a variable and b a base type.
func (s *solver) simplifyL(a, b *types.ExprType, flex bool, node *types.AstNode) Satisfiability {
	nl, _ := narrowSets(bounds(a), []*types.ExprType{b}, flex)
	if len(nl) == 0 {
		return Absurdity
	}
	an := s.restrict(a, nl)
	if an == a {
		return Tautology
	}
	return s.simple1(an, b, flex, node)
}

// simplifyR simplifies a < b where a is a base type and b a variable.
func (s *solver) simplifyR(a, b *types.ExprType, flex bool, node *types.AstNode) Satisfiability {
	_, nr := narrowSets([]*types.ExprType{a}, bounds(b), flex)
	if len(nr) == 0 {
		return Absurdity
	}
	bn := s.restrict(b, nr)
	if bn == b {
		return Tautology
	}
	return s.simple1(a, bn, flex, node)
}

func (s *solver) narrow(a, b *types.ExprType, flex bool, node *types.AstNode) Satisfiability {
	if a.VarID == b.VarID {
		return Tautology
	}
	if len(a.Disjuncts) > 0 && len(b.Disjuncts) > 0 {
		nl, nr := narrowSets(a.Disjuncts, b.Disjuncts, flex)
		if len(nl) == 0 || len(nr) == 0 {
			return Absurdity
		}
		a = s.restrict(a, nl)
		b = s.restrict(b, nr)
	}
	return s.simple1(a, b, flex, node)
}

// simple1 records a constraint between a variable and a variable or base
// type. Without flex the variable is bound; with flex the constraint is
// kept for the next round.
func (s *solver) simple1(a, b *types.ExprType, flex bool, node *types.AstNode) Satisfiability {
	if isBase(a) && isBase(b) {
		return Tautology
	}
	s.addEquiv(a, b)
	if flex {
		s.simple = append(s.simple, Constraint{A: a, B: types.NewFlexType(b), Node: node})
		return Contingency
	}
	switch {
	case a.Kind == types.TVar && len(a.Disjuncts) == 0 || isBase(b):
		s.env.Bind(a.VarID, b)
	case b.Kind == types.TVar && len(b.Disjuncts) == 0 || isBase(a):
		s.env.Bind(b.VarID, a)
	default:
		s.env.Bind(a.VarID, b)
	}
	return Tautology
}

// Simplify simplifies cs until no more variables get bound and returns the
// residual constraints, all of which relate a variable to a variable or
// base type. An unsolvable constraint yields Absurdity and a positioned
// RE_TYPE_ERROR.
func (e *Env) Simplify(cs []Constraint) ([]Constraint, Satisfiability, error) {
	s := &solver{env: e, equiv: make(map[string]*types.ExprType)}
	ret := Tautology
	for {
		gen := e.gen
		for _, c := range cs {
			switch s.simplifyLocally(c.A, c.B, false, c.Node) {
			case Contingency:
				ret = Contingency
			case Absurdity:
				return cs, Absurdity, e.unsolvable(c)
			}
		}
		cs, s.simple = s.simple, nil
		if e.gen == gen {
			return cs, ret, nil
		}
	}
}

// SolveConstraints simplifies cs and drops the constraints that relate a
// variable to itself, repeating while that changes anything.
func (e *Env) SolveConstraints(cs []Constraint) ([]Constraint, Satisfiability, error) {
	for {
		var err error
		var sat Satisfiability
		if cs, sat, err = e.Simplify(cs); sat == Absurdity {
			return cs, sat, err
		}
		kept := cs[:0]
		for _, c := range cs {
			a, b := e.Deref(c.A), e.Deref(c.B)
			if b.Kind == types.TFlex || b.Kind == types.TFixed {
				b = e.Deref(b.Args[0])
			}
			if a.Kind == types.TVar && b.Kind == types.TVar && a.VarID == b.VarID {
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == len(cs) {
			if len(kept) == 0 {
				return nil, Tautology, nil
			}
			return kept, Contingency, nil
		}
		cs = kept
	}
}

func (e *Env) unsolvable(c Constraint) error {
	err := types.Errorf(types.ReTypeError, "simplify: unsolvable typing constraint %s < %s",
		e.Instantiate(c.A), e.Instantiate(c.B))
	if c.Node != nil {
		err.At(c.Node.Base, c.Node.Position)
	}
	return err
}
