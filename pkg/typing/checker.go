package typing

import (
	"fmt"

	"github.com/sandrolain/goirl/pkg/types"
)

// Native type tags known to the checker.
const (
	TagKeyValPair  = "KeyValPair_PI"
	TagDataObjInp  = "DataObjInp_PI"
	TagCollInp     = "CollInpNew_PI"
	TagGenQueryInp = "GenQueryInp_PI"
	TagGenQueryOut = "GenQueryOut_PI"
	TagStrArray    = "StrArray_PI"
	TagIntArray    = "IntArray_PI"
)

// Signatures resolves the declared type of a function, micro-service or
// constructor. Names without a signature are typed as variadic functions
// of dynamic parameters.
type Signatures interface {
	Signature(name string) (*types.ExprType, bool)
}

// SignatureFunc adapts a function to the Signatures interface.
type SignatureFunc func(name string) (*types.ExprType, bool)

// Signature calls f(name).
func (f SignatureFunc) Signature(name string) (*types.ExprType, bool) {
	return f(name)
}

// SignatureMap is a fixed table of signatures.
type SignatureMap map[string]*types.ExprType

// Signature returns m[name].
func (m SignatureMap) Signature(name string) (*types.ExprType, bool) {
	t, ok := m[name]
	return t, ok
}

type checker struct {
	sigs        Signatures
	env         *Env
	constraints []Constraint
	dynamic     bool
}

func newChecker(sigs Signatures, dynamic bool) *checker {
	if sigs == nil {
		sigs = SignatureMap(nil)
	}
	return &checker{sigs: sigs, env: NewEnv(), dynamic: dynamic}
}

// CheckRule types the condition, actions and recovery of a rule or
// function clause and annotates their nodes. Dynamically typed clauses
// only type function applications; literals and variables are checked at
// run time.
func CheckRule(rule *types.RuleDesc, sigs Signatures) error {
	if rule.Node == nil {
		return nil
	}
	c := newChecker(sigs, rule.Dynamic)
	if err := c.checkRule(rule); err != nil {
		return inRule(rule, err)
	}
	return nil
}

func (c *checker) checkRule(rule *types.RuleDesc) error {
	cond := rule.Cond()
	t, err := c.typeExpr(cond)
	if err != nil {
		return err
	}
	t = c.env.Deref(t)
	if t.Kind != types.TBool && t.Kind != types.TVar && t.Kind != types.TDynamic {
		return types.Errorf(types.ReTypeError, "the type %s of the rule condition is not supported", t).
			At(cond.Base, cond.Position)
	}
	if _, err := c.typeExpr(rule.Actions()); err != nil {
		return err
	}
	if _, err := c.typeExpr(rule.Recovery()); err != nil {
		return err
	}
	if _, _, err := c.env.SolveConstraints(c.constraints); err != nil {
		return err
	}
	for _, n := range []*types.AstNode{cond, rule.Actions(), rule.Recovery()} {
		c.postProcessCoercion(n)
		postProcessActions(n)
	}
	return nil
}

func inRule(rule *types.RuleDesc, err error) error {
	e := types.Errorf(types.ReTypeError, "type error: in rule %s: %s", rule.Name, message(err))
	e.At(rule.Node.Base, rule.Node.Position)
	if te, ok := err.(*types.Error); ok && te.Position >= 0 {
		e.At(te.Base, te.Position)
	}
	return e.WithCause(err)
}

func message(err error) string {
	if te, ok := err.(*types.Error); ok {
		return te.Message
	}
	return err.Error()
}

// CheckExpression types a standalone expression or action sequence, such
// as the input of irule or eval, and annotates its nodes.
func CheckExpression(node *types.AstNode, sigs Signatures) error {
	c := newChecker(sigs, false)
	if _, err := c.typeExpr(node); err != nil {
		e := types.Errorf(types.ReTypeError, "type error: %s", message(err))
		if te, ok := err.(*types.Error); ok {
			e.At(te.Base, te.Position)
		}
		return e.WithCause(err)
	}
	c.postProcessCoercion(node)
	postProcessActions(node)
	return nil
}

// CheckRuleSet types every rule and function clause of set. Clauses that
// fail are reported in errs and left out of ok; declarations are always
// kept.
func CheckRuleSet(set *types.RuleSet, sigs Signatures) (ok []*types.RuleDesc, errs []error) {
	for _, r := range set.Rules {
		if r.Kind == types.RuleRel || r.Kind == types.RuleFunc {
			if err := CheckRule(r, sigs); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		ok = append(ok, r)
	}
	return ok, errs
}

func (c *checker) typeExpr(n *types.AstNode) (*types.ExprType, error) {
	t, err := c.typeNode(n)
	if err != nil {
		return nil, err
	}
	n.ExprType = t
	return t, nil
}

func (c *checker) typeNode(n *types.AstNode) (*types.ExprType, error) {
	if c.dynamic {
		switch n.Type {
		case types.NodeText, types.NodeTuple, types.NodeApplication, types.NodeActions, types.NodeActionsRecovery:
		default:
			return types.NewSimpleType(types.TDynamic), nil
		}
	}
	switch n.Type {
	case types.NodeBool:
		return types.NewSimpleType(types.TBool), nil
	case types.NodeInt:
		return types.NewSimpleType(types.TInt), nil
	case types.NodeDouble:
		return types.NewSimpleType(types.TDouble), nil
	case types.NodeString:
		return types.NewSimpleType(types.TString), nil
	case types.NodeLocalVar, types.NodeSessionVar:
		t, ok := c.env.VarType(n.Text)
		if !ok {
			t = types.NewTVar(types.NextTVarID())
			c.env.SetVarType(n.Text, t)
		}
		return c.env.Deref(t), nil
	case types.NodeText:
		return c.funcType(n.Text), nil
	case types.NodeTuple:
		comps := make([]*types.ExprType, len(n.Children))
		for i, ch := range n.Children {
			t, err := c.typeExpr(ch)
			if err != nil {
				return nil, err
			}
			comps[i] = t
		}
		if !n.ConstructTuple && len(comps) == 1 {
			return comps[0], nil
		}
		return types.NewTupleType(comps...), nil
	case types.NodeApplication:
		return c.typeApp(n)
	case types.NodeActions:
		res := types.NewSimpleType(types.TInt)
		for _, ch := range n.Children {
			t, err := c.typeExpr(ch)
			if err != nil {
				return nil, err
			}
			res = t
		}
		return res, nil
	case types.NodeActionsRecovery:
		if _, err := c.typeExpr(n.Children[0]); err != nil {
			return nil, err
		}
		return c.typeExpr(n.Children[1])
	case types.NodeQuery, types.NodeQueryCond:
		for _, ch := range n.Children {
			if _, err := c.typeExpr(ch); err != nil {
				return nil, err
			}
		}
		return types.NewSimpleType(types.TDynamic), nil
	case types.NodeQueryCol:
		return types.NewSimpleType(types.TDynamic), nil
	}
	return nil, types.Errorf(types.ReTypeError, "unsupported ast node %s", n.Type).At(n.Base, n.Position)
}

// funcType returns a fresh instance of the signature of name.
func (c *checker) funcType(name string) *types.ExprType {
	if name == "nop" {
		return types.NewFuncType(types.NewTupleType(), types.NewSimpleType(types.TInt), types.VarargOnce)
	}
	if sig, ok := c.sigs.Signature(name); ok && sig != nil {
		return Fresh(sig)
	}
	param := types.NewSimpleType(types.TDynamic).WithIO(types.IODynamic)
	return types.NewFuncType(types.NewTupleType(param), types.NewSimpleType(types.TDynamic), types.VarargStar)
}

func (c *checker) fail(n *types.AstNode, fn, format string, args ...any) *types.Error {
	return types.Errorf(types.ReTypeError, "%s in %s", fmt.Sprintf(format, args...), fn).
		At(n.Base, n.Position)
}

func (c *checker) typeApp(n *types.AstNode) (*types.ExprType, error) {
	fn, args := n.Children[0], n.Children[1]
	switch fn.Text {
	case "foreach":
		return c.typeForeach(n)
	case "foreach2":
		return c.typeForeach2(n)
	}
	ft, err := c.typeExpr(fn)
	if err != nil {
		return nil, err
	}
	args.ConstructTuple = true
	argType, err := c.typeExpr(args)
	if err != nil {
		return nil, err
	}
	ft = c.env.Deref(ft)
	if ft.Kind != types.TFunc {
		return nil, c.fail(n, fn.Text, "the first component of a function application does not have a function type")
	}
	params := c.env.Deref(ft.Params())
	ret := c.env.Deref(ft.Ret())

	if (fn.Text == "assign" || fn.Text == "let") && len(args.Children) > 0 && !isPattern(args.Children[0]) {
		return nil, c.fail(n, fn.Text, "the first argument of microservice %s is not a variable or a pattern", fn.Text)
	}

	t := params
	if ft.Vararg != types.VarargOnce {
		fixed := len(params.Args) - 1
		argN := len(args.Children)
		copies := argN - fixed
		least := 0
		if ft.Vararg == types.VarargPlus {
			least = 1
		}
		if fixed < 0 || copies < least || ft.Vararg == types.VarargOptional && copies > 1 {
			return nil, c.fail(n, fn.Text, "unsolvable vararg typing constraint %s < %s %s",
				c.env.Instantiate(argType), c.env.Instantiate(params), varargMark(ft.Vararg))
		}
		comps := make([]*types.ExprType, argN)
		copy(comps, params.Args[:fixed])
		for i := fixed; i < argN; i++ {
			comps[i] = params.Args[fixed]
		}
		t = types.NewTupleType(comps...)
	}

	c.constraints = append(c.constraints, Constraint{A: argType, B: t, Node: args})
	cs, sat, err := c.env.Simplify(c.constraints)
	if sat == Absurdity {
		return nil, types.Errorf(types.ReTypeError, "parameter type error in %s: %s", fn.Text, message(err)).
			At(args.Base, args.Position).WithCause(err)
	}
	c.constraints = cs

	for i, a := range args.Children {
		if i < len(t.Args) {
			a.IO = t.Args[i].IO
		}
	}
	args.CoercionType = t
	return c.env.Instantiate(replaceDynamic(ret)), nil
}

func varargMark(v types.Vararg) string {
	switch v {
	case types.VarargOptional:
		return "?"
	case types.VarargPlus:
		return "+"
	}
	return "*"
}

// isPattern reports whether n can appear on the left of an assignment.
func isPattern(n *types.AstNode) bool {
	switch n.Type {
	case types.NodeApplication, types.NodeTuple:
		for _, ch := range n.Children {
			if !isPattern(ch) {
				return false
			}
		}
		return true
	case types.NodeText, types.NodeLocalVar, types.NodeSessionVar, types.NodeString,
		types.NodeBool, types.NodeInt, types.NodeDouble:
		return true
	}
	return false
}

// elemType returns the type of the elements of a collection of type coll.
func (c *checker) elemType(coll *types.ExprType, node *types.AstNode) (elem, collType *types.ExprType, ok bool) {
	coll = c.env.Deref(coll)
	switch coll.Kind {
	case types.TCons:
		if coll.IsList() {
			return c.env.Deref(coll.Args[0]), coll, true
		}
	case types.TTuple:
		if len(coll.Args) == 2 && isIrods(c.env.Deref(coll.Args[0]), TagGenQueryInp) &&
			isIrods(c.env.Deref(coll.Args[1]), TagGenQueryOut) {
			return types.NewIrodsType(TagKeyValPair), coll, true
		}
	case types.TIrods:
		switch coll.Name {
		case TagCollInp:
			return types.NewIrodsType(TagDataObjInp), coll, true
		case TagGenQueryOut:
			return types.NewIrodsType(TagKeyValPair), coll, true
		case TagStrArray:
			return types.NewSimpleType(types.TString), coll, true
		case TagIntArray:
			return types.NewSimpleType(types.TInt), coll, true
		}
	case types.TString:
		return types.NewSimpleType(types.TString), coll, true
	case types.TDynamic, types.TUnspeced:
		return types.NewTVar(types.NextTVarID()), coll, true
	case types.TVar:
		if len(coll.Disjuncts) > 0 {
			bound := types.NewTVar(types.NextTVarID(), types.NewSimpleType(types.TString), types.NewIrodsType(TagCollInp))
			cs, sat, _ := c.env.Simplify([]Constraint{{A: coll, B: bound, Node: node}})
			if sat == Absurdity {
				return nil, nil, false
			}
			c.constraints = append(c.constraints, cs...)
			resolved := c.env.Deref(coll)
			if resolved.Kind == types.TString {
				return types.NewSimpleType(types.TString), resolved, true
			}
			return types.NewIrodsType(TagDataObjInp), resolved, true
		}
		elem := types.NewTVar(types.NextTVarID())
		list := types.NewListType(elem)
		c.env.Bind(coll.VarID, list)
		return elem, list, true
	}
	return nil, nil, false
}

func isIrods(t *types.ExprType, name string) bool {
	return t.Kind == types.TIrods && t.Name == name
}

// typeForeach types foreach(*v, actions, recovery), which iterates over
// the collection held by *v and rebinds *v to each element.
func (c *checker) typeForeach(n *types.AstNode) (*types.ExprType, error) {
	args := n.AppArgs()
	if args.Type != types.NodeTuple || len(args.Children) != 3 {
		return nil, c.fail(n, "foreach", "wrong number of arguments to microservice")
	}
	v := args.Children[0]
	if !v.IsVariable() {
		return nil, c.fail(n, "foreach", "argument form error")
	}
	var elem, coll *types.ExprType
	if vt, ok := c.env.VarType(v.Text); ok && !c.dynamic {
		var found bool
		if elem, coll, found = c.elemType(vt, n); !found {
			return nil, c.fail(n, "foreach", "foreach is applied to a non collection type")
		}
	} else {
		elem = types.NewTVar(types.NextTVarID())
		coll = types.NewListType(elem)
	}
	c.env.SetVarType(v.Text, elem)
	v.ExprType = coll
	if _, err := c.typeExpr(args.Children[1]); err != nil {
		return nil, err
	}
	res, err := c.typeExpr(args.Children[2])
	if err != nil {
		return nil, err
	}
	v.IO = types.IOExpression
	args.Children[1].IO = types.IOActions
	args.Children[2].IO = types.IOActions
	args.CoercionType = types.NewTupleType(coll, types.NewTVar(types.NextTVarID()), types.NewTVar(types.NextTVarID()))
	args.ExprType = types.NewTupleType(coll, args.Children[1].ExprType, res)
	c.env.SetVarType(v.Text, coll)
	return res, nil
}

// typeForeach2 types foreach2(*v, collection, actions, recovery).
func (c *checker) typeForeach2(n *types.AstNode) (*types.ExprType, error) {
	args := n.AppArgs()
	if args.Type != types.NodeTuple || len(args.Children) != 4 {
		return nil, c.fail(n, "foreach", "wrong number of arguments to microservice")
	}
	v := args.Children[0]
	if !v.IsVariable() {
		return nil, c.fail(n, "foreach", "argument form error")
	}
	ct, err := c.typeExpr(args.Children[1])
	if err != nil {
		return nil, err
	}
	elem, coll, ok := c.elemType(ct, n)
	if !ok {
		return nil, c.fail(n, "foreach", "foreach is applied to a non collection type")
	}
	if c.dynamic {
		elem = types.NewSimpleType(types.TDynamic)
	}
	if vt, bound := c.env.VarType(v.Text); bound && !c.dynamic {
		c.constraints = append(c.constraints, Constraint{A: elem, B: vt, Node: v})
		cs, sat, err := c.env.Simplify(c.constraints)
		if sat == Absurdity {
			return nil, types.Errorf(types.ReTypeError, "loop variable type error in foreach: %s", message(err)).
				At(v.Base, v.Position).WithCause(err)
		}
		c.constraints = cs
	} else {
		c.env.SetVarType(v.Text, elem)
	}
	v.ExprType = elem
	args.Children[1].ExprType = coll
	if _, err := c.typeExpr(args.Children[2]); err != nil {
		return nil, err
	}
	if _, err := c.typeExpr(args.Children[3]); err != nil {
		return nil, err
	}
	v.IO = types.IOExpression
	args.Children[1].IO = types.IOExpression
	args.Children[2].IO = types.IOActions
	args.Children[3].IO = types.IOActions
	args.CoercionType = types.NewTupleType(elem, coll, types.NewTVar(types.NextTVarID()), types.NewTVar(types.NextTVarID()))
	args.ExprType = types.NewTupleType(elem, coll, args.Children[2].ExprType, args.Children[3].ExprType)
	return types.NewTVar(types.NextTVarID()), nil
}

// postProcessCoercion instantiates the types recorded on the tree and
// flags the arguments whose type differs from their parameter.
func (c *checker) postProcessCoercion(n *types.AstNode) {
	n.CoercionType = c.env.Instantiate(n.CoercionType)
	n.ExprType = c.env.Instantiate(n.ExprType)
	for _, ch := range n.Children {
		c.postProcessCoercion(ch)
	}
	if n.Type != types.NodeTuple || n.CoercionType == nil || n.ExprType == nil {
		return
	}
	for i, ch := range n.Children {
		if i < len(n.CoercionType.Args) {
			ch.Coerce = !ch.ExprType.Equal(n.CoercionType.Args[i])
		}
	}
}

// postProcessActions wraps a single action passed to an actions parameter
// into an action sequence.
func postProcessActions(n *types.AstNode) {
	if n.Type == types.NodeTuple {
		for i, ch := range n.Children {
			if ch.IO&types.IOActions == 0 || ch.Type == types.NodeActions {
				continue
			}
			ch.IO = types.IOInput
			wrap := types.NewAstNode(types.NodeActions, "", ch.Position)
			wrap.Base = ch.Base
			wrap.Children = []*types.AstNode{ch}
			wrap.IO = types.IOActions
			wrap.ExprType = ch.ExprType
			n.Children[i] = wrap
		}
	}
	for _, ch := range n.Children {
		postProcessActions(ch)
	}
}
