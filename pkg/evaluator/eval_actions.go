package evaluator

import (
	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/types"
)

// evaluateActions runs an action sequence. A break or succeed marker ends
// the sequence and is returned. When action i fails, recovery actions
// min(len(reco)-1, i) down to 0 run in reverse order and the original
// error is returned. After cut, a failure skips recovery and is returned
// wrapped in CUT_ACTION_PROCESSED so that no other clause is tried.
func (e *Evaluator) evaluateActions(c *CallContext, acts, reco *types.AstNode) (*types.Value, error) {
	cut := false
	cc := *c
	cc.cut = &cut
	var last *types.Value
	for i, a := range acts.Children {
		if err := c.Context.Err(); err != nil {
			return nil, types.Errorf(types.ReRuntimeError, "evaluation cancelled: %v", err).WithCause(err)
		}
		v, err := e.evalNode(&cc, a)
		if err != nil {
			if cut {
				return nil, types.NewError(types.CutActionProcessedErr, "cut action processed").WithCause(err)
			}
			if !types.IsCode(err, types.RetryWithoutRecoveryErr) && !types.IsCode(err, types.CutActionProcessedErr) {
				e.recover(&cc, reco, i)
			}
			return nil, err
		}
		if v.IsControl() {
			return v, nil
		}
		last = v
	}
	if last == nil {
		return c.Region.NewInt(0), nil
	}
	return last, nil
}

// recover runs the recovery actions for a failure at action i. Failing
// recovery actions are logged and recorded; they do not stop the walk.
func (e *Evaluator) recover(c *CallContext, reco *types.AstNode, i int) {
	if reco == nil || len(reco.Children) == 0 {
		return
	}
	j := min(len(reco.Children)-1, i)
	for ; j >= 0; j-- {
		if _, err := e.evalNode(c, reco.Children[j]); err != nil {
			c.Logger().Warn("recovery action failed",
				"action", parser.FormatTerm(reco.Children[j]), "error", err)
			c.Session.Errors.AddError(err)
		}
	}
}

// runBlock runs an actions argument of a builtin together with its
// recovery argument.
func (e *Evaluator) runBlock(c *CallContext, acts, reco *types.AstNode) (*types.Value, error) {
	switch acts.Type {
	case types.NodeActionsRecovery:
		return e.evaluateActions(c, acts.Children[0], acts.Children[1])
	case types.NodeActions:
	default:
		acts = actionsOf(acts)
	}
	if reco != nil && reco.Type != types.NodeActions {
		reco = actionsOf(reco)
	}
	return e.evaluateActions(c, acts, reco)
}

func actionsOf(n *types.AstNode) *types.AstNode {
	wrap := types.NewAstNode(types.NodeActions, "", n.Position)
	wrap.Base = n.Base
	wrap.Children = []*types.AstNode{n}
	return wrap
}
