package evaluator

import (
	"strconv"

	"github.com/sandrolain/goirl/pkg/types"
)

// evalNode evaluates a tree node. Results are allocated in c.Region.
func (e *Evaluator) evalNode(c *CallContext, n *types.AstNode) (*types.Value, error) {
	switch n.Type {
	case types.NodeInt:
		i, err := strconv.ParseInt(n.Text, 10, 64)
		if err != nil {
			return nil, types.Errorf(types.ReRuntimeError, "invalid integer literal %s", n.Text).At(n.Base, n.Position)
		}
		return c.Region.NewInt(i), nil
	case types.NodeDouble:
		d, err := strconv.ParseFloat(n.Text, 64)
		if err != nil {
			return nil, types.Errorf(types.ReRuntimeError, "invalid double literal %s", n.Text).At(n.Base, n.Position)
		}
		return c.Region.NewDouble(d), nil
	case types.NodeBool:
		return c.Region.NewBool(n.Text == "true"), nil
	case types.NodeString:
		return c.Region.NewString(n.Text), nil
	case types.NodeLocalVar, types.NodeSessionVar:
		return e.readVar(c, n)
	case types.NodeText:
		return c.Region.NewFuncSym(n.Text), nil
	case types.NodeTuple:
		return e.evalTuple(c, n)
	case types.NodeApplication:
		return e.evalApp(c, n)
	case types.NodeActions:
		return e.evaluateActions(c, n, nil)
	case types.NodeActionsRecovery:
		return e.evaluateActions(c, n.Children[0], n.Children[1])
	case types.NodeQuery:
		return c.Region.NewAst(n), nil
	}
	return nil, types.Errorf(types.ReUnsupportedAstNodeType, "error: unsupported ast node type %s", n.Type).
		At(n.Base, n.Position)
}

func (e *Evaluator) evalTuple(c *CallContext, n *types.AstNode) (*types.Value, error) {
	if len(n.Children) == 1 && !n.ConstructTuple {
		return e.evalNode(c, n.Children[0])
	}
	elems := make([]*types.Value, len(n.Children))
	for i, ch := range n.Children {
		v, err := e.evalNode(c, ch)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return c.Region.NewTuple(elems...), nil
}

// readVar reads a local or session variable.
func (e *Evaluator) readVar(c *CallContext, n *types.AstNode) (*types.Value, error) {
	if n.Type == types.NodeSessionVar {
		v, err := e.opts.VarMap.Get(c.Session.REI, n.Text, c.Region)
		if err != nil {
			if te, ok := err.(*types.Error); ok && te.Position < 0 {
				err = te.At(n.Base, n.Position)
			}
			return nil, err
		}
		return v, nil
	}
	v, ok := c.Env.Lookup(n.Text)
	if !ok {
		return nil, types.Errorf(types.ReUnableToReadLocalVar, "error: unable to read local variable %s", n.Text).
			At(n.Base, n.Position)
	}
	return v, nil
}

// writeVar assigns a local or session variable.
func (e *Evaluator) writeVar(c *CallContext, n *types.AstNode, v *types.Value) error {
	if n.Type == types.NodeSessionVar {
		return e.writeSessionVar(c, n, v)
	}
	c.Env.Update(n.Text, v)
	return nil
}

// WriteSessionVarPolicy is applied to the name of a session variable,
// without the $, before every write. A failing policy refuses the write.
const WriteSessionVarPolicy = "acPreProcForWriteSessionVariable"

func (e *Evaluator) writeSessionVar(c *CallContext, n *types.AstNode, v *types.Value) error {
	if e.prog.HasRule(WriteSessionVarPolicy) {
		cc := *c
		cc.applyAll, cc.applyAllNext = false, false
		if _, err := e.execRule(&cc, WriteSessionVarPolicy, []*types.Value{c.Region.NewString(n.Text)}); err != nil {
			c.Logger().Debug("session variable write refused", "var", n.Text, "error", err)
			return err
		}
	}
	return e.opts.VarMap.Set(c.Session.REI, n.Text, v)
}

func unbound(err error) bool {
	return types.IsCode(err, types.ReUnableToReadLocalVar) || types.IsCode(err, types.NullValueErr)
}
