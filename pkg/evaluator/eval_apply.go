package evaluator

import (
	"fmt"

	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/types"
)

// evalApp evaluates a function application in a region of its own. The
// result and the written back arguments are copied out before the region
// is freed.
func (e *Evaluator) evalApp(c *CallContext, n *types.AstNode) (*types.Value, error) {
	name := n.AppName()
	argsNode := n.AppArgs()
	argNodes := argsNode.Children

	r := e.newRegion()
	defer r.Free()
	cc := c.with(r, n)

	args := make([]*types.Value, len(argNodes))
	orig := make([]*types.Value, len(argNodes))
	for i, a := range argNodes {
		var target *types.ExprType
		if argsNode.CoercionType != nil && i < len(argsNode.CoercionType.Args) {
			target = argsNode.CoercionType.Args[i]
		}
		v, err := e.evalArg(cc, a, target)
		if err != nil {
			return nil, err
		}
		args[i] = v
		orig[i] = v
	}

	res, err := e.dispatch(cc, name, args)
	if err != nil {
		return nil, err
	}
	for i, a := range argNodes {
		if a.IO&(types.IOOutput|types.IODynamic) == 0 || !a.IsVariable() {
			continue
		}
		v := args[i]
		if v == nil || v.Kind == types.KindUnspeced || v.Equal(orig[i]) {
			continue
		}
		if a.Coerce && argsNode.CoercionType != nil && i < len(argsNode.CoercionType.Args) {
			cv, err := coerce(cc.Region, v, argsNode.CoercionType.Args[i])
			if err != nil {
				return nil, types.Errorf(types.ReDynamicCoercionError, "error: output argument %d of %s: %v", i, name, err).
					At(a.Base, a.Position).WithCause(err)
			}
			v = cv
		}
		if err := e.writeVar(cc, a, v); err != nil {
			return nil, err
		}
	}
	return c.Region.Copy(res), nil
}

// evalArg prepares one argument according to the I/O flags the checker
// recorded on it.
func (e *Evaluator) evalArg(c *CallContext, a *types.AstNode, target *types.ExprType) (*types.Value, error) {
	switch {
	case a.IO&(types.IOExpression|types.IOActions) != 0:
		return c.Region.NewAst(a), nil
	case a.IO&types.IODynamic != 0 && a.IsVariable():
		v, err := e.readVar(c, a)
		if unbound(err) {
			return c.Region.NewUnspeced(), nil
		}
		return v, err
	case a.IO&types.IOOutput != 0 && a.IO&types.IOInput == 0:
		return c.Region.NewUnspeced(), nil
	}
	v, err := e.evalNode(c, a)
	if err != nil {
		return nil, err
	}
	if a.Coerce && target != nil {
		return coerce(c.Region, v, target)
	}
	return v, nil
}

// dispatch calls name: builtins first, then constructors and other
// declared functions, then rules, then micro-services.
func (e *Evaluator) dispatch(c *CallContext, name string, args []*types.Value) (*types.Value, error) {
	if b, ok := lookupBuiltin(name); ok {
		if err := checkArity(c, name, b.Sig, len(args)); err != nil {
			return nil, err
		}
		return b.Fn(c, args)
	}
	if fd, ok := e.prog.Funcs[name]; ok {
		switch f := fd.(type) {
		case *Builtin:
			if err := checkArity(c, name, f.Sig, len(args)); err != nil {
				return nil, err
			}
			return f.Fn(c, args)
		case *Constructor:
			if err := checkArity(c, name, f.Type, len(args)); err != nil {
				return nil, err
			}
			return c.Region.NewCons(f.Name, f.Type.Ret(), args...), nil
		case *Deconstructor:
			return deconstruct(c, f, args)
		}
	}
	if e.prog.HasRule(name) {
		return e.execRule(c, name, args)
	}
	if _, ok := e.opts.Microservices.Lookup(name); ok {
		return e.callMicroservice(c, name, args)
	}
	return nil, c.fail(types.NoRuleOrMsiFunctionFoundErr,
		"error: cannot find rule or micro-service for action %s with %d arguments", name, len(args))
}

func checkArity(c *CallContext, name string, sig *types.ExprType, n int) error {
	if sig == nil || sig.Kind != types.TFunc {
		return nil
	}
	want := sig.Params().Arity()
	ok := false
	switch sig.Vararg {
	case types.VarargOnce:
		ok = n == want
	case types.VarargOptional:
		ok = n == want || n == want-1
	case types.VarargPlus:
		ok = n >= want
	case types.VarargStar:
		ok = n >= want-1
	}
	if !ok {
		return c.fail(types.ActionArgCountMismatch, "error: %s called with %d arguments", name, n)
	}
	return nil
}

func deconstruct(c *CallContext, d *Deconstructor, args []*types.Value) (*types.Value, error) {
	if len(args) != 1 {
		return nil, c.fail(types.ActionArgCountMismatch, "error: deconstructor %s takes one argument", d.Name)
	}
	v := args[0]
	if v.Kind != types.KindCons || d.Proj < 0 || d.Proj >= len(v.Elems) {
		return nil, c.fail(types.ReDynamicTypeError, "error: deconstructor %s applied to %s", d.Name, v.Kind)
	}
	return v.Elems[d.Proj], nil
}

// callMicroservice converts the arguments to parameters, runs the
// micro-service and converts them back so output arguments can be
// written to their variables.
func (e *Evaluator) callMicroservice(c *CallContext, name string, args []*types.Value) (*types.Value, error) {
	params := make([]*msi.Param, len(args))
	for i, a := range args {
		params[i] = msi.ToParam(paramLabel(c.Node, i), a)
	}
	call := &msi.Call{Name: name, Params: params, Session: c.Session.REI}
	if err := e.opts.Microservices.Call(c.Context, call); err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	for i, p := range params {
		args[i] = msi.FromParam(p, c.Region)
	}
	return c.Region.NewInt(0), nil
}

// paramLabel names a parameter after the variable passed in its place.
func paramLabel(n *types.AstNode, i int) string {
	if n != nil {
		if a := n.AppArgs().Children; i < len(a) && a[i].IsVariable() {
			return a[i].Text
		}
	}
	return fmt.Sprintf("*arg%d", i)
}
