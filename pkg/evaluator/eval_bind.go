package evaluator

import (
	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/typing"
	"github.com/sandrolain/goirl/pkg/types"
)

// matchPattern matches v against a pattern and binds its variables.
// Variables are bound in the current frame when fresh is set and updated
// where they are visible otherwise.
func (e *Evaluator) matchPattern(c *CallContext, pat *types.AstNode, v *types.Value, fresh bool) error {
	switch pat.Type {
	case types.NodeLocalVar:
		if fresh {
			c.Env.Bind(pat.Text, v)
		} else {
			c.Env.Update(pat.Text, v)
		}
		return nil
	case types.NodeSessionVar:
		return e.writeSessionVar(c, pat, v)
	case types.NodeInt, types.NodeDouble, types.NodeBool, types.NodeString:
		lit, err := e.evalNode(c, pat)
		if err != nil {
			return err
		}
		if matchLiteral(lit, v) {
			return nil
		}
	case types.NodeTuple:
		if len(pat.Children) == 1 && !pat.ConstructTuple {
			return e.matchPattern(c, pat.Children[0], v, fresh)
		}
		if v.Kind == types.KindTuple && len(v.Elems) == len(pat.Children) {
			return e.matchAll(c, pat.Children, v.Elems, fresh)
		}
	case types.NodeApplication:
		return e.matchApp(c, pat, v, fresh)
	}
	return notMatched(pat, v)
}

func (e *Evaluator) matchAll(c *CallContext, pats []*types.AstNode, vs []*types.Value, fresh bool) error {
	for i, p := range pats {
		if err := e.matchPattern(c, p, vs[i], fresh); err != nil {
			return err
		}
	}
	return nil
}

// matchApp matches the application patterns: kvp.key, constructor
// patterns, patterns with a ~C matcher rule and zero argument functions
// compared by value.
func (e *Evaluator) matchApp(c *CallContext, pat *types.AstNode, v *types.Value, fresh bool) error {
	name := pat.AppName()
	pargs := pat.AppArgs().Children
	if name == "." && len(pargs) == 2 {
		return e.matchKeyValue(c, pargs[0], pargs[1], v)
	}
	if matcher := "~" + name; e.prog.HasRule(matcher) {
		res, err := e.execRule(c, matcher, []*types.Value{v})
		if err != nil {
			return notMatched(pat, v).WithCause(err)
		}
		if len(pargs) == 1 && res.Kind != types.KindTuple {
			return e.matchPattern(c, pargs[0], res, fresh)
		}
		if res.Kind == types.KindTuple && len(res.Elems) == len(pargs) {
			return e.matchAll(c, pargs, res.Elems, fresh)
		}
		return notMatched(pat, v)
	}
	if _, ok := e.prog.Funcs[name].(*Constructor); ok {
		if v.Kind == types.KindCons && v.Str == name && len(v.Elems) == len(pargs) {
			return e.matchAll(c, pargs, v.Elems, fresh)
		}
		return notMatched(pat, v)
	}
	if len(pargs) == 0 {
		want, err := e.evalNode(c, pat)
		if err != nil {
			return err
		}
		if matchLiteral(want, v) {
			return nil
		}
	}
	return notMatched(pat, v)
}

// matchKeyValue implements *kvp.key = value: the key of the pair held by
// the variable is set, creating the pair when the variable is unset.
func (e *Evaluator) matchKeyValue(c *CallContext, holder, keyNode *types.AstNode, v *types.Value) error {
	if !holder.IsVariable() {
		return notMatched(holder, v)
	}
	key, err := e.keyOf(c, keyNode)
	if err != nil {
		return err
	}
	if v.Kind != types.KindString && v.Kind != types.KindPath {
		return types.Errorf(types.ReDynamicTypeError, "error: the value of key %s is %s, not a string", key, v.Kind).
			At(keyNode.Base, keyNode.Position)
	}
	cur, err := e.readVar(c, holder)
	if err != nil && !unbound(err) {
		return err
	}
	if cur != nil {
		if kv, ok := cur.Native.(*msi.KeyValPair); ok && cur.Kind == types.KindIrods {
			kv.Set(key, v.Str)
			return nil
		}
	}
	kv := &msi.KeyValPair{}
	kv.Set(key, v.Str)
	return e.writeVar(c, holder, c.Region.NewIrods(typing.TagKeyValPair, kv))
}

// keyOf returns the key named on the right of a dot: a bare word, a
// string or an expression whose value is the key.
func (e *Evaluator) keyOf(c *CallContext, n *types.AstNode) (string, error) {
	switch n.Type {
	case types.NodeText, types.NodeString:
		return n.Text, nil
	case types.NodeApplication:
		if n.AppArgs().Degree() == 0 {
			return n.AppName(), nil
		}
	}
	v, err := e.evalNode(c, n)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// matchLiteral compares a literal pattern with a value. Integers and
// doubles compare numerically, strings and paths by text.
func matchLiteral(lit, v *types.Value) bool {
	if lit.Equal(v) {
		return true
	}
	switch {
	case isNumber(lit) && isNumber(v):
		return lit.AsDouble() == v.AsDouble()
	case isText(lit) && isText(v):
		return lit.Str == v.Str
	}
	return false
}

func isNumber(v *types.Value) bool {
	return v.Kind == types.KindInt || v.Kind == types.KindDouble
}

func isText(v *types.Value) bool {
	return v.Kind == types.KindString || v.Kind == types.KindPath
}

func notMatched(pat *types.AstNode, v *types.Value) *types.Error {
	return types.Errorf(types.RePatternNotMatched, "error: pattern not matched: %s", v.String()).
		At(pat.Base, pat.Position)
}
