package index

import (
	"testing"

	"github.com/matryer/is"

	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/types"
)

const accessRules = `
checkAccess(*user) { on (*user == "alice") { writeLine("stdout", "a"); } }
checkAccess(*u) { on (*u == "bob") { writeLine("stdout", "b"); } }
checkAccess(*user) { on (*user == "carol") { writeLine("stdout", "c"); } }
checkAccess(*user) { on (*user == "bob") { writeLine("stdout", "b2"); } }
checkAccess(*user) { writeLine("stdout", "default"); }
other(*x) { writeLine("stdout", *x); }
twice(*x) = *x * 2
checkAccess : string -> integer
`

func parseRules(t *testing.T, src string) []*types.RuleDesc {
	t.Helper()
	set, err := parser.ParseRuleSet(src, "core")
	if err != nil {
		t.Fatalf("failed to parse rules: %v", err)
	}
	return set.Rules
}

func literalOf(r *types.RuleDesc) (string, bool) {
	g, ok := guardOf(Entry{Rule: r})
	return g.lit, ok
}

// candidates lists the clauses that evaluation would try for the guard
// value lit, in order.
func candidates(l *List, lit string) []*types.RuleDesc {
	var out []*types.RuleDesc
	for _, e := range l.Entries() {
		if e.Cond != nil {
			if rd, err := e.Cond.Select(&types.Value{Kind: types.KindString, Str: lit}); err == nil {
				out = append(out, rd)
			}
			continue
		}
		if g, ok := literalOf(e.Rule); !ok || g == lit {
			out = append(out, e.Rule)
		}
	}
	return out
}

func TestCondIndexEquivalence(t *testing.T) {
	rules := parseRules(t, accessRules)
	linear := Build(rules)
	indexed := Build(rules)
	if n := indexed.CreateCondIndex(nil); n != 1 {
		t.Fatalf("created %d conditional nodes, want 1", n)
	}

	ll, _ := linear.List("checkAccess")
	il, _ := indexed.List("checkAccess")
	if ll.Len() != 5 || il.Len() != 3 {
		t.Fatalf("got %d linear and %d indexed entries", ll.Len(), il.Len())
	}

	for _, lit := range []string{"alice", "bob", "carol", "dave", ""} {
		t.Run(lit, func(t *testing.T) {
			want := candidates(ll, lit)
			got := candidates(il, lit)
			if len(got) != len(want) {
				t.Fatalf("got %d candidates, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("candidate %d differs", i)
				}
			}
		})
	}
}

func TestCondIndexNode(t *testing.T) {
	is := is.New(t)
	rules := parseRules(t, accessRules)
	x := Build(rules)
	x.CreateCondIndex(nil)

	e, err := x.NextRule("checkAccess", 0)
	is.NoErr(err)
	is.True(e.Cond != nil)
	is.Equal(e.Cond.Arity(), 1)
	is.Equal(len(e.Cond.Rules), 3)
	is.Equal(e.Cond.Guard.Text, "*user")

	rd, ok := e.Cond.Lookup("bob")
	is.True(ok)
	is.Equal(rd, rules[1])

	_, err = e.Cond.Select(&types.Value{Kind: types.KindString, Str: "dave"})
	is.Equal(types.CodeOf(err), types.NoMoreRulesErr)
	_, err = e.Cond.Select(&types.Value{Kind: types.KindInt, Int: 1})
	is.Equal(types.CodeOf(err), types.ReDynamicTypeError)

	e, err = x.NextRule("checkAccess", 1)
	is.NoErr(err)
	is.Equal(e.Rule, rules[3])

	_, err = x.NextRule("checkAccess", 3)
	is.Equal(types.CodeOf(err), types.NoMoreRulesErr)
	_, err = x.NextRule("missing", 0)
	is.Equal(types.CodeOf(err), types.NoMoreRulesErr)
}

func TestIndexNames(t *testing.T) {
	is := is.New(t)
	x := Build(parseRules(t, accessRules))
	is.Equal(x.Names(), []string{"checkAccess", "other", "twice"})
	is.Equal(x.Len(), 3)
	is.True(x.Has("twice"))
	l, _ := x.List("checkAccess")
	is.Equal(len(l.Clauses()), 5) // declarations are not indexed
}

func TestCondIndexShapes(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		created int
	}{
		{
			name: "below threshold",
			src: `r(*a) { on (*a == "x") { nop; } }
r(*a) { nop; }`,
		},
		{
			name: "different shared expression",
			src: `r(*a, *b) { on (*a == "x") { nop; } }
r(*a, *b) { on (*b == "y") { nop; } }`,
		},
		{
			name: "renamed parameters",
			src: `r(*a, *b) { on (*b == "x") { nop; } }
r(*c, *d) { on (*d == "y") { nop; } }`,
			created: 1,
		},
		{
			name: "shared application",
			src: `r(*a) { on (substr(*a, 0, 1) == "x") { nop; } }
r(*b) { on (substr(*b, 0, 1) == "y") { nop; } }
r(*c) { on (substr(*c, 0, 2) == "z") { nop; } }`,
			created: 1,
		},
		{
			name: "repeated literal",
			src: `r(*a) { on (*a == "x") { nop; } }
r(*a) { on (*a == "x") { nop; } }`,
		},
		{
			name: "two runs",
			src: `r(*a) { on (*a == "x") { nop; } }
r(*a) { on (*a == "y") { nop; } }
r(*a) { on (*a == "x") { nop; } }
r(*a) { on (*a == "z") { nop; } }`,
			created: 2,
		},
		{
			name: "literal parameters",
			src: `g("a", *u) { on (*u == "x") { nop; } }
g("b", *u) { on (*u == "y") { nop; } }`,
		},
		{
			name: "different arity",
			src: `r(*a) { on (*a == "x") { nop; } }
r(*a, *b) { on (*a == "y") { nop; } }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := Build(parseRules(t, tt.src))
			if got := x.CreateCondIndex(nil); got != tt.created {
				t.Fatalf("created %d conditional nodes, want %d", got, tt.created)
			}
		})
	}
}
