// Package index maps rule names to their ordered candidate clauses.
//
// Clauses are tried in load order. A run of consecutive clauses whose
// conditions all read
//
//	shared == "literal"
//
// with the same shared expression and distinct literals is replaced by a
// conditional node: the shared expression is evaluated once and the
// literal selects the only clause that can match.
package index

import (
	"log/slog"

	"github.com/zyedidia/generic"
	"github.com/zyedidia/generic/hashmap"
	"github.com/zyedidia/generic/list"

	"github.com/sandrolain/goirl/pkg/types"
)

// CondIndexThreshold is the shortest run of clauses that gets a
// conditional node.
const CondIndexThreshold = 2

// Entry is a candidate: either a clause or a conditional node.
type Entry struct {
	Rule *types.RuleDesc
	Cond *CondIndex
}

// CondIndex selects one clause of a run by the value of a shared guard
// expression.
type CondIndex struct {
	// Guard is the shared left hand side of the first clause. It refers to
	// the parameters of that clause.
	Guard  *types.AstNode
	Params []*types.AstNode
	Rules  []*types.RuleDesc // the replaced run, in order

	values *hashmap.Map[string, *types.RuleDesc]
}

// Arity returns the number of parameters the guard is evaluated with.
func (c *CondIndex) Arity() int {
	return len(c.Params)
}

// Lookup returns the clause guarded by the literal lit.
func (c *CondIndex) Lookup(lit string) (*types.RuleDesc, bool) {
	return c.values.Get(lit)
}

// Select returns the clause for the evaluated guard value v. A value that
// is not a string is RE_DYNAMIC_TYPE_ERROR and a literal without clause
// is NO_MORE_RULES_ERR.
func (c *CondIndex) Select(v *types.Value) (*types.RuleDesc, error) {
	if v == nil || v.Kind != types.KindString {
		return nil, types.NewError(types.ReDynamicTypeError,
			"error: the lhs of indexed rule condition does not evaluate to a string")
	}
	rd, ok := c.values.Get(v.Str)
	if !ok {
		return nil, types.Errorf(types.NoMoreRulesErr, "no clause of %s for %q", c.Rules[0].Name, v.Str)
	}
	return rd, nil
}

// List is the ordered candidate list of one name.
type List struct {
	Name    string
	entries *list.List[Entry]
	n       int
}

func newList(name string) *List {
	return &List{Name: name, entries: list.New[Entry]()}
}

// Len returns the number of entries.
func (l *List) Len() int {
	return l.n
}

// At returns the i-th entry.
func (l *List) At(i int) (Entry, bool) {
	if i < 0 || i >= l.n {
		return Entry{}, false
	}
	node := l.entries.Front
	for ; i > 0; i-- {
		node = node.Next
	}
	return node.Value, true
}

// Entries returns the entries in order.
func (l *List) Entries() []Entry {
	out := make([]Entry, 0, l.n)
	for node := l.entries.Front; node != nil; node = node.Next {
		out = append(out, node.Value)
	}
	return out
}

// Clauses returns every clause of the list in load order, looking
// through conditional nodes.
func (l *List) Clauses() []*types.RuleDesc {
	var out []*types.RuleDesc
	for node := l.entries.Front; node != nil; node = node.Next {
		if c := node.Value.Cond; c != nil {
			out = append(out, c.Rules...)
		} else {
			out = append(out, node.Value.Rule)
		}
	}
	return out
}

func (l *List) push(e Entry) {
	l.entries.PushBack(e)
	l.n++
}

// Index is the table of candidate lists by name.
type Index struct {
	lists *hashmap.Map[string, *List]
	names []string
}

// New returns an empty index.
func New() *Index {
	return &Index{lists: hashmap.New[string, *List](64, generic.Equals[string], generic.HashString)}
}

// Add appends a rule or function clause to the list of its name.
// Declarations are not indexed.
func (x *Index) Add(r *types.RuleDesc) {
	if r.Kind != types.RuleRel && r.Kind != types.RuleFunc {
		return
	}
	l, ok := x.lists.Get(r.Name)
	if !ok {
		l = newList(r.Name)
		x.lists.Put(r.Name, l)
		x.names = append(x.names, r.Name)
	}
	l.push(Entry{Rule: r})
}

// Build returns an index of rules in order.
func Build(rules []*types.RuleDesc) *Index {
	x := New()
	for _, r := range rules {
		x.Add(r)
	}
	return x
}

// List returns the candidate list of name.
func (x *Index) List(name string) (*List, bool) {
	return x.lists.Get(name)
}

// Has reports whether name has at least one clause.
func (x *Index) Has(name string) bool {
	_, ok := x.lists.Get(name)
	return ok
}

// Names returns the indexed names in first load order.
func (x *Index) Names() []string {
	return x.names
}

// Len returns the number of indexed names.
func (x *Index) Len() int {
	return x.lists.Size()
}

// NextRule returns the entry at position start of the list of name, or
// NO_MORE_RULES_ERR.
func (x *Index) NextRule(name string, start int) (Entry, error) {
	l, ok := x.lists.Get(name)
	if !ok {
		return Entry{}, types.Errorf(types.NoMoreRulesErr, "no more rules for %s", name)
	}
	e, ok := l.At(start)
	if !ok {
		return Entry{}, types.Errorf(types.NoMoreRulesErr, "no more rules for %s", name)
	}
	return e, nil
}

// CreateCondIndex replaces every maximal qualifying run of clauses with a
// conditional node and returns the number of nodes created. Runs broken by
// a repeated literal are left linear and reported on logger at debug
// level. logger may be nil.
func (x *Index) CreateCondIndex(logger *slog.Logger) int {
	created := 0
	for _, name := range x.names {
		l, _ := x.lists.Get(name)
		created += l.condIndex(logger)
	}
	return created
}

func (l *List) condIndex(logger *slog.Logger) int {
	created := 0
	node := l.entries.Front
	for node != nil {
		start := node
		first, ok := guardOf(node.Value)
		if !ok {
			node = node.Next
			continue
		}
		run := []*list.Node[Entry]{start}
		guards := []guard{first}
		seen := map[string]bool{first.lit: true}
		repeated := ""
		for next := start.Next; next != nil; next = next.Next {
			g, ok := guardOf(next.Value)
			if !ok || !sameShape(first, g) {
				break
			}
			if seen[g.lit] {
				repeated = g.lit
				break
			}
			seen[g.lit] = true
			run = append(run, next)
			guards = append(guards, g)
		}
		if repeated != "" && logger != nil {
			logger.Debug("conditional index run ends at a repeated literal",
				"rule", l.Name, "literal", repeated, "run", len(run))
		}
		node = run[len(run)-1].Next
		if len(run) < CondIndexThreshold {
			continue
		}
		ci := &CondIndex{
			Guard:  first.lhs,
			Params: first.rule.Params(),
			values: hashmap.New[string, *types.RuleDesc](uint64(len(run)), generic.Equals[string], generic.HashString),
		}
		for _, g := range guards {
			ci.Rules = append(ci.Rules, g.rule)
			ci.values.Put(g.lit, g.rule)
		}
		start.Value = Entry{Cond: ci}
		for _, n := range run[1:] {
			l.entries.Remove(n)
			l.n--
		}
		created++
	}
	return created
}

type guard struct {
	rule   *types.RuleDesc
	lhs    *types.AstNode
	lit    string
	params map[string]int
}

// guardOf matches a relational clause whose condition is lhs == "lit" and
// whose parameters are all local variables. Pattern parameters would be
// matched against the first clause of the run only.
func guardOf(e Entry) (guard, bool) {
	r := e.Rule
	if r == nil || r.Kind != types.RuleRel || r.Node == nil {
		return guard{}, false
	}
	cond := r.Cond()
	if cond.Type != types.NodeApplication || cond.AppName() != "==" {
		return guard{}, false
	}
	args := cond.AppArgs().Children
	if len(args) != 2 || args[1].Type != types.NodeString {
		return guard{}, false
	}
	params := make(map[string]int)
	for i, p := range r.Params() {
		if p.Type != types.NodeLocalVar {
			return guard{}, false
		}
		params[p.Text] = i
	}
	return guard{rule: r, lhs: args[0], lit: args[1].Text, params: params}, true
}

// sameShape compares the shared expressions of two guards, identifying
// parameters by position.
func sameShape(a, b guard) bool {
	if a.rule.Arity() != b.rule.Arity() {
		return false
	}
	return sameNode(a.lhs, b.lhs, a.params, b.params)
}

func sameNode(a, b *types.AstNode, pa, pb map[string]int) bool {
	if a.Type != b.Type || len(a.Children) != len(b.Children) {
		return false
	}
	if a.Type == types.NodeLocalVar {
		ia, aok := pa[a.Text]
		ib, bok := pb[b.Text]
		if aok || bok {
			return aok && bok && ia == ib
		}
	}
	if a.Text != b.Text {
		return false
	}
	for i := range a.Children {
		if !sameNode(a.Children[i], b.Children[i], pa, pb) {
			return false
		}
	}
	return true
}
