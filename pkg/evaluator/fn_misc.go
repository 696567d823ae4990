package evaluator

import (
	"strings"

	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/types"
	"github.com/sandrolain/goirl/pkg/typing"
)

func fnLmsg(c *CallContext, args []*types.Value) (*types.Value, error) {
	c.Logger().Info(args[0].Str, "session", c.Session.ID)
	return c.Region.NewInt(0), nil
}

// fnListVars lists the variables visible from the caller, innermost
// frame first.
func fnListVars(c *CallContext, _ []*types.Value) (*types.Value, error) {
	buf := acquireBuilder()
	defer releaseBuilder(buf)
	for env := c.Env; env != nil; env = env.Parent() {
		for _, name := range env.Names() {
			v, _ := env.Own(name)
			buf.WriteString(name)
			buf.WriteString("=")
			buf.WriteString(v.String())
			buf.WriteString("\n")
		}
	}
	return c.Region.NewString(buf.String()), nil
}

// listRules returns a builtin listing the rule names of a base.
func listRules(base string) BuiltinFunc {
	return func(c *CallContext, _ []*types.Value) (*types.Value, error) {
		strType := types.NewSimpleType(types.TString)
		b, ok := c.Eval.prog.Base(base)
		if !ok {
			return c.Region.NewList(strType), nil
		}
		names := b.Index.Names()
		elems := make([]*types.Value, len(names))
		for i, n := range names {
			elems[i] = c.Region.NewString(n)
		}
		return c.Region.NewList(strType, elems...), nil
	}
}

// fnType names the runtime type of a value.
func fnType(c *CallContext, args []*types.Value) (*types.Value, error) {
	v := args[0]
	var name string
	switch v.Kind {
	case types.KindCons:
		if v.Type != nil {
			name = v.Type.String()
		} else {
			name = v.TypeOf().String()
		}
	case types.KindIrods:
		name = v.Str
	default:
		name = v.TypeOf().String()
	}
	return c.Region.NewString(name), nil
}

// fnArity returns the parameter count of the first clause of a rule.
func fnArity(c *CallContext, args []*types.Value) (*types.Value, error) {
	if cands := c.Eval.prog.Candidates(args[0].Str); len(cands) > 0 {
		return c.Region.NewInt(int64(arityOf(cands[0]))), nil
	}
	return nil, c.fail(types.NoRuleFoundErr, "error: no rule named %s", args[0].Str)
}

// writeFunc returns writeLine or writeString. serverLog goes to the
// logger, stdout and stderr to the ruleExecOut buffers.
func writeFunc(newline bool) BuiltinFunc {
	return func(c *CallContext, args []*types.Value) (*types.Value, error) {
		text := args[1].String()
		if args[1].Kind == types.KindUnspeced {
			text = ""
		}
		switch args[0].Str {
		case "serverLog":
			c.Logger().Info(text, "session", c.Session.ID)
			return c.Region.NewInt(0), nil
		case "stdout", "stderr":
			out := c.Session.REI.ExecOut()
			sb := &out.Stdout
			if args[0].Str == "stderr" {
				sb = &out.Stderr
			}
			sb.WriteString(text)
			if newline {
				sb.WriteString("\n")
			}
			return c.Region.NewInt(0), nil
		}
		return nil, c.fail(types.UserParamTypeErr, "error: unknown output stream %s", args[0].Str)
	}
}

// captureFunc returns getstdout or getstderr: the action argument runs
// and whatever it wrote to the stream is assigned to the output argument.
func captureFunc(stderr bool) BuiltinFunc {
	return func(c *CallContext, args []*types.Value) (*types.Value, error) {
		out := c.Session.REI.ExecOut()
		read := func() string {
			if stderr {
				return out.Stderr.String()
			}
			return out.Stdout.String()
		}
		before := len(read())
		code := runStatus(c, args[0])
		// The buffers may have been replaced by a restored request.
		out = c.Session.REI.ExecOut()
		after := read()
		if before > len(after) {
			before = 0
		}
		args[1] = c.Region.NewString(after[before:])
		return c.Region.NewInt(code), nil
	}
}

// fnExecCmdArg quotes an argument for a shell command line.
func fnExecCmdArg(c *CallContext, args []*types.Value) (*types.Value, error) {
	s := args[0].Str
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return c.Region.NewString(sb.String()), nil
}

func keyValPair(c *CallContext, v *types.Value) (*msi.KeyValPair, error) {
	if kv, ok := v.Native.(*msi.KeyValPair); ok && v.Kind == types.KindIrods {
		return kv, nil
	}
	return nil, c.fail(types.ReDynamicTypeError, "error: %s is not a key value pair", v.Kind)
}

// fnDot reads kvp.key.
func fnDot(c *CallContext, args []*types.Value) (*types.Value, error) {
	kv, err := keyValPair(c, args[0])
	if err != nil {
		return nil, err
	}
	key, err := c.Eval.keyOf(c, args[1].Node)
	if err != nil {
		return nil, err
	}
	v, ok := kv.Get(key)
	if !ok {
		return nil, c.fail(types.UnmatchedKeyOrIndex, "error: unmatched key %s", key)
	}
	return c.Region.NewString(v), nil
}

func fnGetValByKey(c *CallContext, args []*types.Value) (*types.Value, error) {
	kv, err := keyValPair(c, args[0])
	if err != nil {
		return nil, err
	}
	v, ok := kv.Get(args[1].Str)
	if !ok {
		return nil, c.fail(types.UnmatchedKeyOrIndex, "error: unmatched key %s", args[1].Str)
	}
	return c.Region.NewString(v), nil
}

func fnTemporaryStorage(c *CallContext, _ []*types.Value) (*types.Value, error) {
	return c.Region.NewIrods(typing.TagKeyValPair, c.Session.Temp), nil
}

func fnGetGlobalSessionID(c *CallContext, _ []*types.Value) (*types.Value, error) {
	return c.Region.NewString(c.Session.ID), nil
}

func fnSetGlobalSessionID(c *CallContext, args []*types.Value) (*types.Value, error) {
	c.Session.ID = args[0].Str
	return c.Region.NewInt(0), nil
}

// fnQuery evaluates the values of a select statement and runs it against
// the catalog.
func fnQuery(c *CallContext, args []*types.Value) (*types.Value, error) {
	n := nodeOf(args[0])
	if n == nil || n.Type != types.NodeQuery {
		return nil, c.fail(types.ReUnsupportedAstNodeType, "error: query expects a select statement")
	}
	q := &Query{}
	for _, col := range n.Children[0].Children {
		q.Columns = append(q.Columns, queryColumn(col))
	}
	for _, cond := range n.Children[1].Children {
		qc := QueryCond{Column: queryColumn(cond.Children[0]), Junction: cond.Text}
		for _, op := range cond.Children[1:] {
			qo := QueryOp{Op: op.Text}
			for _, vn := range op.Children {
				v, err := c.Eval.evalNode(c, vn)
				if err != nil {
					return nil, err
				}
				qo.Values = append(qo.Values, queryValues(v)...)
			}
			qc.Ops = append(qc.Ops, qo)
		}
		q.Conds = append(q.Conds, qc)
	}
	qr := c.Eval.opts.Querier
	if qr == nil {
		return nil, c.fail(types.SysNotSupported, "error: no catalog to run %s", q)
	}
	res, err := qr.Query(c.Context, q)
	if err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	c.Logger().Debug("query", "statement", q.String(), "rows", len(res.Rows))
	return c.Region.NewTuple(
		c.Region.NewIrods(typing.TagGenQueryInp, q),
		c.Region.NewIrods(typing.TagGenQueryOut, res),
	), nil
}

func queryColumn(n *types.AstNode) QueryColumn {
	return QueryColumn{Func: n.Text, Name: n.Children[0].Text}
}

// queryValues flattens a condition operand: tuples and lists give one
// value per element.
func queryValues(v *types.Value) []string {
	if v.Kind == types.KindTuple || v.IsList() {
		var out []string
		for _, e := range v.Elems {
			out = append(out, queryValues(e)...)
		}
		return out
	}
	return []string{v.String()}
}

func fnCollection(c *CallContext, args []*types.Value) (*types.Value, error) {
	return c.Region.NewIrods(typing.TagCollInp, &CollInp{CollName: args[0].Str}), nil
}
