package evaluator

import (
	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/types"
	"github.com/sandrolain/goirl/pkg/typing"
)

func fnNop(c *CallContext, _ []*types.Value) (*types.Value, error) {
	return c.Region.NewInt(0), nil
}

// run evaluates an expression or actions argument.
func run(c *CallContext, v *types.Value) (*types.Value, error) {
	n := nodeOf(v)
	if n == nil {
		return v, nil
	}
	if n.Type == types.NodeActions || n.Type == types.NodeActionsRecovery {
		return c.Eval.runBlock(c, n, nil)
	}
	return c.Eval.evalNode(c, n)
}

func fnDo(c *CallContext, args []*types.Value) (*types.Value, error) {
	return run(c, args[0])
}

func fnIf(c *CallContext, args []*types.Value) (*types.Value, error) {
	ok, err := evalCond(c, args[0])
	if err != nil {
		return nil, err
	}
	if ok {
		return c.Eval.runBlock(c, args[1].Node, nodeOf(args[3]))
	}
	return c.Eval.runBlock(c, args[2].Node, nodeOf(args[4]))
}

// fnIfExec takes ifExec(cond, then, thenRecovery, else, elseRecovery).
func fnIfExec(c *CallContext, args []*types.Value) (*types.Value, error) {
	return fnIf(c, []*types.Value{args[0], args[1], args[3], args[2], args[4]})
}

func fnIf2(c *CallContext, args []*types.Value) (*types.Value, error) {
	ok, err := evalCond(c, args[0])
	if err != nil {
		return nil, err
	}
	if ok {
		return run(c, args[1])
	}
	return run(c, args[2])
}

func evalCond(c *CallContext, v *types.Value) (bool, error) {
	cond, err := run(c, v)
	if err != nil {
		return false, err
	}
	if cond.Kind != types.KindBool {
		return false, c.fail(types.ReTypeError, "error: condition is %s, not a boolean", cond.Kind)
	}
	return cond.Bool, nil
}

func fnBreak(c *CallContext, _ []*types.Value) (*types.Value, error) {
	return c.Region.NewBreak(), nil
}

func fnSucceed(c *CallContext, _ []*types.Value) (*types.Value, error) {
	return c.Region.NewSuccess(), nil
}

func fnCut(c *CallContext, _ []*types.Value) (*types.Value, error) {
	if c.cut != nil {
		*c.cut = true
	}
	return c.Region.NewInt(0), nil
}

func fnFail(c *CallContext, args []*types.Value) (*types.Value, error) {
	if len(args) == 0 {
		return nil, c.fail(types.FailActionEncounteredErr, "fail action encountered")
	}
	code := args[0].AsInt()
	return nil, c.fail(types.ErrorCode(code), "fail action encountered with code %d", code)
}

func fnFailMsg(c *CallContext, args []*types.Value) (*types.Value, error) {
	return nil, c.fail(types.ErrorCode(args[0].AsInt()), "%s", args[1].Str)
}

// fnAssign matches the value of the second argument against the pattern
// in the first.
func fnAssign(c *CallContext, args []*types.Value) (*types.Value, error) {
	v, err := run(c, args[1])
	if err != nil {
		return nil, err
	}
	if err := c.Eval.matchPattern(c, args[0].Node, v, false); err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	return c.Region.NewInt(0), nil
}

// fnAssignStr assigns the value as a string.
func fnAssignStr(c *CallContext, args []*types.Value) (*types.Value, error) {
	v, err := run(c, args[1])
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case types.KindInt, types.KindDouble, types.KindBool:
		v = c.Region.NewString(v.String())
	}
	if err := c.Eval.matchPattern(c, args[0].Node, v, false); err != nil {
		return nil, err
	}
	return c.Region.NewInt(0), nil
}

// fnLet binds a pattern in a new frame and evaluates the body there.
func fnLet(c *CallContext, args []*types.Value) (*types.Value, error) {
	v, err := run(c, args[1])
	if err != nil {
		return nil, err
	}
	cc := c.frame(NewEnv(c.Env, c.Region), c.Region)
	cc.Node = c.Node
	if err := c.Eval.matchPattern(cc, args[0].Node, v, true); err != nil {
		return nil, err
	}
	return c.Eval.evalNode(cc, args[2].Node)
}

// fnMatch tries each (pattern, expr) case in order in a new frame.
func fnMatch(c *CallContext, args []*types.Value) (*types.Value, error) {
	v, err := run(c, args[0])
	if err != nil {
		return nil, err
	}
	for _, arm := range args[1:] {
		n := arm.Node
		if n == nil || len(n.Children) != 2 {
			continue
		}
		cc := c.frame(NewEnv(c.Env, c.Region), c.Region)
		cc.Node = c.Node
		if err := c.Eval.matchPattern(cc, n.Children[0], v, true); err != nil {
			if types.IsCode(err, types.RePatternNotMatched) {
				continue
			}
			return nil, err
		}
		return c.Eval.evalNode(cc, n.Children[1])
	}
	return nil, c.fail(types.RePatternNotMatched, "error: no case matches %s", v.String())
}

// runStatus evaluates an argument and returns the status code of the
// outcome, 0 on success.
func runStatus(c *CallContext, v *types.Value) int64 {
	if _, err := run(c, v); err != nil {
		return int64(types.CodeOf(err))
	}
	return 0
}

func fnErrorCode(c *CallContext, args []*types.Value) (*types.Value, error) {
	return c.Region.NewInt(runStatus(c, args[0])), nil
}

// fnErrorMsg returns the status like errorcode and moves the accumulated
// messages into its output argument.
func fnErrorMsg(c *CallContext, args []*types.Value) (*types.Value, error) {
	code := runStatus(c, args[0])
	args[1] = c.Region.NewString(c.Session.Errors.String())
	c.Session.Errors.Clear()
	return c.Region.NewInt(code), nil
}

// fnApplyAllRules runs the action in apply-all mode. The second argument
// makes nested rule calls apply-all as well.
func fnApplyAllRules(c *CallContext, args []*types.Value) (*types.Value, error) {
	cc := *c
	cc.applyAllNext = true
	cc.applyAllRec = c.applyAllRec || args[1].AsInt() != 0
	if _, err := run(&cc, args[0]); err != nil {
		return nil, err
	}
	return c.Region.NewInt(0), nil
}

// compile parses and types source text through the evaluator cache.
// actions selects action sequence syntax over a single expression.
func (e *Evaluator) compile(src string, actions bool) (*types.Expression, error) {
	key := "expr:" + src
	if actions {
		key = "actions:" + src
	}
	return e.opts.Cache.GetOrCompile(key, func() (*types.Expression, error) {
		var expr *types.Expression
		var err error
		if actions {
			expr, err = parser.ParseActions(src, "eval")
		} else {
			expr, err = parser.ParseExpression(src, "eval")
		}
		if err != nil {
			return nil, err
		}
		if err := typing.CheckExpression(expr.AST(), e); err != nil {
			return nil, err
		}
		return expr, nil
	})
}

// fnEval parses its argument as actions and runs them in the caller's
// frame.
func fnEval(c *CallContext, args []*types.Value) (*types.Value, error) {
	expr, err := c.Eval.compile(args[0].Str, true)
	if err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	return c.Eval.evalNode(c, expr.AST())
}

// fnEvalRule parses a rule definition and runs its body once, without
// adding it to the program.
func fnEvalRule(c *CallContext, args []*types.Value) (*types.Value, error) {
	set, err := parser.ParseRuleSet(args[0].Str, "eval")
	if err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	for _, rule := range set.Rules {
		if rule.Kind != types.RuleRel && rule.Kind != types.RuleFunc {
			continue
		}
		if err := typing.CheckRule(rule, c.Eval); err != nil {
			c.Session.Errors.AddError(err)
			return nil, err
		}
		params := make([]*types.Value, rule.Arity())
		for i := range params {
			params[i] = c.Region.NewUnspeced()
		}
		return c.Eval.execRuleNode(c, rule, params)
	}
	return nil, c.fail(types.NoRuleFoundErr, "error: no rule in %q", args[0].Str)
}

func fnDelayExec(c *CallContext, args []*types.Value) (*types.Value, error) {
	job := DelayedJob{Condition: args[0].Str, Body: args[1].Str, Recovery: args[2].Str, SessionID: c.Session.ID}
	if err := c.Eval.opts.Scheduler.Schedule(c.Context, job); err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	c.Logger().Debug("delayed execution scheduled", "condition", job.Condition)
	return c.Region.NewInt(0), nil
}

// fnRemoteExec hands the body to the Remote hook, or runs it in the
// caller's frame when there is none.
func fnRemoteExec(c *CallContext, args []*types.Value) (*types.Value, error) {
	host, hint, body, reco := args[0].Str, args[1].Str, args[2].Str, args[3].Str
	if rem := c.Eval.opts.Remote; rem != nil {
		if err := rem.Exec(c.Context, host, hint, body, reco, c.Session.REI); err != nil {
			c.Session.Errors.AddError(err)
			return nil, err
		}
		return c.Region.NewInt(0), nil
	}
	src := body
	if reco != "" {
		src = body + " ::: " + reco
	}
	expr, err := c.Eval.compile(src, true)
	if err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	if _, err := c.Eval.evalNode(c, expr.AST()); err != nil {
		return nil, err
	}
	return c.Region.NewInt(0), nil
}
