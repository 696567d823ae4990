package evaluator

import (
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/session"
	"github.com/sandrolain/goirl/pkg/typing"
	"github.com/sandrolain/goirl/pkg/types"
)

// loop moves the variables of the frame a loop runs in to a scratch
// region and runs each step in a region of its own. Once the scratch
// region grows past GCBlockSize its live values are copied to a new one.
type loop struct {
	c       *CallContext
	home    *types.Region
	scratch *types.Region
}

func startLoop(c *CallContext) *loop {
	l := &loop{c: c, home: c.Env.region, scratch: c.Eval.newRegion()}
	c.Env.rehome(l.scratch)
	return l
}

// end moves the frame variables back to their region.
func (l *loop) end() {
	l.c.Env.rehome(l.home)
	l.scratch.Free()
}

// step evaluates fn in a fresh region. Only break and succeed markers
// are returned.
func (l *loop) step(fn func(c *CallContext) (*types.Value, error)) (*types.Value, error) {
	r := l.c.Eval.newRegion()
	defer r.Free()
	v, err := fn(l.c.withRegion(r))
	l.collect()
	if err != nil {
		return nil, err
	}
	if v != nil && v.IsControl() {
		return l.c.Region.Copy(v), nil
	}
	return nil, nil
}

// cond evaluates a loop condition.
func (l *loop) cond(n *types.AstNode) (bool, error) {
	r := l.c.Eval.newRegion()
	defer r.Free()
	v, err := l.c.Eval.evalNode(l.c.withRegion(r), n)
	if err != nil {
		return false, err
	}
	if v.Kind != types.KindBool {
		return false, types.Errorf(types.ReTypeError, "error: loop condition is %s, not a boolean", v.Kind).
			At(n.Base, n.Position)
	}
	return v.Bool, nil
}

func (l *loop) collect() {
	before := l.scratch.Size()
	if before <= l.c.Eval.opts.GCBlockSize {
		return
	}
	next := l.c.Eval.newRegion()
	l.c.Env.rehome(next)
	l.scratch.Free()
	l.scratch = next
	l.c.Logger().Debug("loop region compacted",
		"before", humanize.Bytes(uint64(before)), "after", humanize.Bytes(uint64(next.Size())))
}

// body runs the actions and recovery arguments of a loop builtin.
func (l *loop) body(acts, reco *types.Value) (*types.Value, error) {
	return l.step(func(c *CallContext) (*types.Value, error) {
		return c.Eval.runBlock(c, acts.Node, nodeOf(reco))
	})
}

func nodeOf(v *types.Value) *types.AstNode {
	if v == nil || v.Kind != types.KindAst {
		return nil
	}
	return v.Node
}

// loopResult maps the marker that ended a loop to the loop result: break
// ends the loop with 0 and succeed propagates.
func loopResult(c *CallContext, ctl *types.Value) *types.Value {
	if ctl != nil && ctl.Kind == types.KindSuccess {
		return ctl
	}
	return c.Region.NewInt(0)
}

// fnWhile implements while(cond, actions, recovery).
func fnWhile(c *CallContext, args []*types.Value) (*types.Value, error) {
	l := startLoop(c)
	defer l.end()
	for {
		ok, err := l.cond(args[0].Node)
		if err != nil {
			return nil, err
		}
		if !ok {
			return loopResult(c, nil), nil
		}
		ctl, err := l.body(args[1], args[2])
		if err != nil {
			return nil, err
		}
		if ctl != nil {
			return loopResult(c, ctl), nil
		}
	}
}

// fnFor implements for(init, cond, step, actions, recovery).
func fnFor(c *CallContext, args []*types.Value) (*types.Value, error) {
	l := startLoop(c)
	defer l.end()
	eval := func(n *types.AstNode) error {
		_, err := l.step(func(c *CallContext) (*types.Value, error) {
			return c.Eval.evalNode(c, n)
		})
		return err
	}
	if err := eval(args[0].Node); err != nil {
		return nil, err
	}
	for {
		ok, err := l.cond(args[1].Node)
		if err != nil {
			return nil, err
		}
		if !ok {
			return loopResult(c, nil), nil
		}
		ctl, err := l.body(args[3], args[4])
		if err != nil {
			return nil, err
		}
		if ctl != nil {
			return loopResult(c, ctl), nil
		}
		if err := eval(args[2].Node); err != nil {
			return nil, err
		}
	}
}

// fnForeach implements foreach(*v, actions, recovery): *v holds a
// collection and is bound to each element in turn, then restored.
func fnForeach(c *CallContext, args []*types.Value) (*types.Value, error) {
	v := args[0].Node
	coll, err := c.Eval.readVar(c, v)
	if err != nil {
		return nil, err
	}
	elems, err := elements(c, coll)
	if err != nil {
		return nil, err
	}
	res, err := iterate(c, v, elems, args[1], args[2])
	if err != nil {
		return nil, err
	}
	if err := c.Eval.writeVar(c, v, coll); err != nil {
		return nil, err
	}
	return res, nil
}

// fnForeach2 implements foreach2(*v, collection, actions, recovery). *v
// keeps the last element visited.
func fnForeach2(c *CallContext, args []*types.Value) (*types.Value, error) {
	coll, err := c.Eval.evalNode(c, args[1].Node)
	if err != nil {
		return nil, err
	}
	elems, err := elements(c, coll)
	if err != nil {
		return nil, err
	}
	return iterate(c, args[0].Node, elems, args[2], args[3])
}

func iterate(c *CallContext, v *types.AstNode, elems []*types.Value, acts, reco *types.Value) (*types.Value, error) {
	l := startLoop(c)
	defer l.end()
	for _, el := range elems {
		if err := c.Eval.writeVar(c, v, el); err != nil {
			return nil, err
		}
		ctl, err := l.body(acts, reco)
		if err != nil {
			return nil, err
		}
		if ctl != nil {
			return loopResult(c, ctl), nil
		}
	}
	return loopResult(c, nil), nil
}

// elements lists the members of an iterable value: lists, query
// results, string and integer arrays, collections and comma separated
// strings.
func elements(c *CallContext, coll *types.Value) ([]*types.Value, error) {
	r := c.Region
	switch coll.Kind {
	case types.KindCons:
		if coll.IsList() {
			return coll.Elems, nil
		}
	case types.KindTuple:
		if len(coll.Elems) == 2 && coll.Elems[1].Kind == types.KindIrods {
			return elements(c, coll.Elems[1])
		}
	case types.KindString:
		var out []*types.Value
		for _, s := range strings.Split(coll.Str, ",") {
			out = append(out, r.NewString(s))
		}
		return out, nil
	case types.KindPath:
		return collection(c, coll.Str)
	case types.KindIrods:
		switch n := coll.Native.(type) {
		case *QueryResult:
			out := make([]*types.Value, len(n.Rows))
			for i, row := range n.Rows {
				out[i] = r.NewIrods(typing.TagKeyValPair, row)
			}
			return out, nil
		case []string:
			out := make([]*types.Value, len(n))
			for i, s := range n {
				out[i] = r.NewString(s)
			}
			return out, nil
		case []int64:
			out := make([]*types.Value, len(n))
			for i, x := range n {
				out[i] = r.NewInt(x)
			}
			return out, nil
		case *CollInp:
			return collection(c, n.CollName)
		}
	}
	return nil, c.fail(types.ReUnsupportedOpOrType, "error: foreach is applied to a non collection type %s", coll.Kind)
}

// CollInp is the native value of collection(path).
type CollInp struct {
	CollName string
}

func (in *CollInp) String() string {
	return in.CollName
}

func collection(c *CallContext, name string) ([]*types.Value, error) {
	q := c.Eval.opts.Querier
	if q == nil {
		return nil, c.fail(types.SysNotSupported, "error: no catalog to list collection %s", name)
	}
	paths, err := q.Collection(c.Context, name)
	if err != nil {
		c.Session.Errors.AddError(err)
		return nil, err
	}
	out := make([]*types.Value, len(paths))
	for i, p := range paths {
		out[i] = c.Region.NewIrods(typing.TagDataObjInp, &session.DataObjInp{ObjPath: p, CondInput: &msi.KeyValPair{}})
	}
	return out, nil
}
