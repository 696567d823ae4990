package evaluator

import (
	"errors"

	"github.com/sandrolain/goirl/pkg/index"
	"github.com/sandrolain/goirl/pkg/session"
	"github.com/sandrolain/goirl/pkg/types"
)

// execRule tries the candidates of name in order until one succeeds. A
// failed candidate restores the request state when the session saves it,
// until a candidate fails with RETRY_WITHOUT_RECOVERY: from then on the
// state is kept as it is. In apply-all mode every candidate runs, each
// success becomes the new restore point, and the call succeeds when any
// of them did.
func (e *Evaluator) execRule(c *CallContext, name string, args []*types.Value) (*types.Value, error) {
	s := c.Session
	var saved *session.RuleExecInfo
	if s.SaveREI && s.REI != nil {
		saved = s.REI.Clone()
	}

	tried, succeeded := 0, 0
	retried := false
	var lastErr error
	for _, entry := range e.prog.Candidates(name) {
		if arityOf(entry) != len(args) {
			continue
		}
		if saved != nil && lastErr != nil && !retried {
			s.REI.Restore(saved)
		}
		tried++
		c.Logger().Debug("trying rule", "rule", name, "candidate", tried, "indexed", entry.Cond != nil)

		var res *types.Value
		var err error
		if entry.Cond != nil {
			res, err = e.execCondIndex(c, entry.Cond, args)
		} else {
			res, err = e.execRuleNode(c, entry.Rule, args)
		}
		if err == nil {
			succeeded++
			lastErr = nil
			if !c.applyAll {
				if res.IsControl() {
					return c.Region.NewInt(0), nil
				}
				return res, nil
			}
			if saved != nil && !retried {
				saved = s.REI.Clone()
			}
			continue
		}
		if types.IsCode(err, types.CutActionProcessedErr) {
			return nil, uncut(err)
		}
		if types.IsCode(err, types.RetryWithoutRecoveryErr) {
			retried = true
		}
		lastErr = err
	}

	switch {
	case tried == 0:
		return nil, c.fail(types.NoRuleFoundErr, "error: no rule found for %s with %d arguments", name, len(args))
	case succeeded > 0:
		return c.Region.NewInt(0), nil
	case types.IsCode(lastErr, types.RetryWithoutRecoveryErr):
		return nil, types.Errorf(types.RuleFailedErr, "rule %s failed", name).WithCause(lastErr)
	}
	return nil, lastErr
}

// uncut replaces CUT_ACTION_PROCESSED with the failure that followed the
// cut. The marker never leaves the rule call or top level evaluation it
// was raised in.
func uncut(err error) error {
	if !types.IsCode(err, types.CutActionProcessedErr) {
		return err
	}
	if cause := errors.Unwrap(err); cause != nil {
		return cause
	}
	return types.NewError(types.RuleFailedErr, "failure after cut")
}

func arityOf(entry index.Entry) int {
	if entry.Cond != nil {
		return entry.Cond.Arity()
	}
	return entry.Rule.Arity()
}

// execCondIndex evaluates the shared guard of an indexed run once and
// runs the clause its value selects.
func (e *Evaluator) execCondIndex(c *CallContext, ci *index.CondIndex, args []*types.Value) (*types.Value, error) {
	if len(args) != ci.Arity() {
		return nil, c.fail(types.ActionArgCountMismatch, "error: %s called with %d arguments", ci.Rules[0].Name, len(args))
	}
	r := e.newRegion()
	defer r.Free()
	cc := c.frame(NewEnv(c.Session.Global, r), r)
	for i, p := range ci.Params {
		if err := e.bindParam(cc, p, args[i]); err != nil {
			return nil, types.Errorf(types.RuleFailedErr, "rule %s: parameter %d not matched", ci.Rules[0].Name, i).WithCause(err)
		}
	}
	v, err := e.evalNode(cc, ci.Guard)
	if err != nil {
		return nil, err
	}
	rd, err := ci.Select(v)
	if err != nil {
		if types.IsCode(err, types.NoMoreRulesErr) {
			return nil, types.Errorf(types.RuleFailedErr, "rule %s: no indexed clause applies", ci.Rules[0].Name).WithCause(err)
		}
		c.Session.Errors.AddError(err)
		return nil, err
	}
	return e.execRuleNode(c, rd, args)
}

// execRuleNode runs one clause in a fresh frame whose parent is the
// global frame. Parameters are bound or matched, the condition must be
// true, and the final parameter values are copied back into args.
func (e *Evaluator) execRuleNode(c *CallContext, rule *types.RuleDesc, args []*types.Value) (*types.Value, error) {
	if rule.Arity() != len(args) {
		return nil, c.fail(types.ActionArgCountMismatch, "error: %s called with %d arguments", rule.Name, len(args))
	}
	s := c.Session
	if s.depth >= e.opts.MaxDepth {
		return nil, c.fail(types.ReRuntimeError, "error: maximum rule call depth %d exceeded in %s", e.opts.MaxDepth, rule.Name)
	}
	s.depth++
	defer func() { s.depth-- }()

	r := e.newRegion()
	defer r.Free()
	env := NewEnv(s.Global, r)
	cc := c.frame(env, r)

	params := rule.Params()
	for i, p := range params {
		if err := e.bindParam(cc, p, args[i]); err != nil {
			return nil, types.Errorf(types.RuleFailedErr, "rule %s: parameter %d not matched", rule.Name, i).WithCause(err)
		}
	}

	cond, err := e.evalNode(cc, rule.Cond())
	if err != nil {
		return nil, err
	}
	if cond.Kind != types.KindBool {
		s.Errors.Addf(types.ReTypeError, "error: the condition of rule %s is not a boolean", rule.Name)
		return nil, types.Errorf(types.RuleFailedErr, "rule %s: condition is %s", rule.Name, cond.Kind)
	}
	if !cond.Bool {
		return nil, types.Errorf(types.RuleFailedErr, "rule %s: condition not satisfied", rule.Name)
	}

	var res *types.Value
	if rule.Kind == types.RuleFunc {
		res, err = e.evalNode(cc, rule.Actions())
	} else {
		res, err = e.evaluateActions(cc, rule.Actions(), rule.Recovery())
	}
	if err != nil {
		return nil, err
	}

	for i, p := range params {
		if p.Type != types.NodeLocalVar {
			continue
		}
		if v, ok := env.Own(p.Text); ok {
			args[i] = c.Region.Copy(v)
		}
	}
	return c.Region.Copy(res), nil
}

// bindParam binds a formal parameter in the clause frame. Parameters
// that are not variables are patterns.
func (e *Evaluator) bindParam(c *CallContext, p *types.AstNode, v *types.Value) error {
	if p.Type == types.NodeLocalVar {
		c.Env.Bind(p.Text, v)
		return nil
	}
	return e.matchPattern(c, p, v, true)
}
