package goirl

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/sandrolain/goirl/pkg/catalog"
	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/session"
	"github.com/sandrolain/goirl/pkg/types"
)

const accessRules = `
checkAccess(*user) { on (*user == "alice") { writeLine("stdout", "clause 1"); } }
checkAccess(*user) { on (*user == "bob") { writeLine("stdout", "clause 2"); } }
checkAccess(*user) { on (*user == "carol") { writeLine("stdout", "clause 3"); } }
checkAccess(*user) { writeLine("stdout", "fallback"); }
`

func newEngine(t *testing.T, src string, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	if err := e.Load(context.Background(), Source{Base: "core", Text: src}); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	return e
}

func strParam(label, s string) *msi.Param {
	return &msi.Param{Label: label, Type: msi.StrMsT, InOut: s}
}

func stdoutOf(rei *session.RuleExecInfo) string {
	return rei.ExecOut().Stdout.String()
}

func TestCondIndexMatchesLinearScan(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	indexed := newEngine(t, accessRules, WithCondIndex(true))
	linear := newEngine(t, accessRules)
	is.Equal(indexed.Snapshot().CondNodes, 1)
	is.Equal(linear.Snapshot().CondNodes, 0)

	for _, user := range []string{"alice", "bob", "carol", "dave"} {
		var outs [2]string
		for i, e := range []*Engine{indexed, linear} {
			rei := &session.RuleExecInfo{}
			params := &msi.ParamArray{Params: []*msi.Param{strParam("*user", user)}}
			status, err := e.ApplyRule(ctx, "checkAccess", params, rei, false)
			is.NoErr(err)
			is.Equal(status, 0)
			outs[i] = stdoutOf(rei)
		}
		is.Equal(outs[0], outs[1])
	}
}

// The conditional index resolves bob to the second clause.
func TestCondIndexSelectsClause(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, accessRules, WithCondIndex(true))
	rei := &session.RuleExecInfo{}
	params := &msi.ParamArray{Params: []*msi.Param{strParam("*user", "bob")}}

	status, err := e.ApplyRule(context.Background(), "checkAccess", params, rei, false)
	is.NoErr(err)
	is.Equal(status, 0)
	is.Equal(stdoutOf(rei), "clause 2\n")
}

func TestWhileCountsToThree(t *testing.T) {
	is := is.New(t)
	e := New()
	s := e.NewSession(nil)
	defer s.Close()

	res, err := e.Exec(context.Background(), s, "*i = 0; while (*i < 3) { *i = *i + 1; }")
	is.NoErr(err)
	is.Equal(res.Int, int64(0))

	i, err := e.Exec(context.Background(), s, "*i")
	is.NoErr(err)
	is.Equal(i.Int, int64(3))
}

// A failing action runs its recovery and the rule fails with the
// original code.
func TestRecoveryKeepsFailureCode(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, `failing { fail(5) ::: writeLine("stdout", "recovered"); }`)
	rei := &session.RuleExecInfo{}

	status, err := e.ApplyRule(context.Background(), "failing", nil, rei, false)
	is.True(err != nil)
	is.Equal(status, 5)
	is.Equal(stdoutOf(rei), "recovered\n")
}

func TestStringIntConversions(t *testing.T) {
	e := New()
	tests := []struct {
		expr string
		want string
		code types.ErrorCode
	}{
		{`str(42)`, "42", 0},
		{`int("42")`, "42", 0},
		{`int("abc")`, "", types.ReDynamicCoercionError},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := e.ComputeExpression(context.Background(), tt.expr, nil)
			if tt.code != 0 {
				if types.CodeOf(err) != tt.code {
					t.Fatalf("got error %v, want code %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBreakStopsForeach(t *testing.T) {
	is := is.New(t)
	e := New()
	s := e.NewSession(nil)
	defer s.Close()

	res, err := e.Exec(context.Background(), s, "foreach (*x in list(1, 2, 3)) { break; }")
	is.NoErr(err)
	is.Equal(res.Int, int64(0))

	x, err := e.Exec(context.Background(), s, "*x")
	is.NoErr(err)
	is.Equal(x.Int, int64(1))
}

func TestApplyRuleOutputParams(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, `twice(*in, *out) { *out = *in * 2; }`)
	params := &msi.ParamArray{Params: []*msi.Param{
		{Label: "*in", Type: msi.IntMsT, InOut: int64(21)},
		{Label: "*out"},
	}}

	status, err := e.ApplyRule(context.Background(), "twice", params, nil, false)
	is.NoErr(err)
	is.Equal(status, 0)
	out, _ := params.Get("*out")
	is.Equal(out.Type, msi.IntMsT)
	is.Equal(out.InOut, int64(42))
}

func TestApplyRuleSessionVars(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, `acSetRescSchemeForCreate { on ($objPath like "/tempZone/home/*") { $rescName = "demoResc"; } }`)
	rei := &session.RuleExecInfo{DataObj: &session.DataObjInfo{ObjPath: "/tempZone/home/rods/f"}}

	status, err := e.ApplyRule(context.Background(), "acSetRescSchemeForCreate", nil, rei, true)
	is.NoErr(err)
	is.Equal(status, 0)
	is.Equal(rei.RescName, "demoResc")
}

func TestApplyRuleNotFound(t *testing.T) {
	is := is.New(t)
	e := New()
	status, err := e.ApplyRule(context.Background(), "acMissing", nil, nil, false)
	is.True(err != nil)
	is.Equal(status, int(types.NoRuleOrMsiFunctionFoundErr))
}

func TestApplyAllRules(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, `
notify { writeLine("stdout", "first"); }
notify { fail(3); }
notify { writeLine("stdout", "third"); }
`)
	rei := &session.RuleExecInfo{}
	status, err := e.ApplyAllRules(context.Background(), "notify", rei)
	is.NoErr(err)
	is.Equal(status, 0)
	is.Equal(stdoutOf(rei), "first\nthird\n")
}

func TestAddAndClearAppRules(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	e := newEngine(t, `greet { writeLine("stdout", "core"); }`)

	is.NoErr(e.AddRules(ctx, `extra { writeLine("stdout", "app"); }`))
	is.True(e.Snapshot().Program.HasRule("extra"))
	is.True(e.Snapshot().Program.HasRule("greet"))

	is.NoErr(e.ClearAppRules(ctx))
	is.True(!e.Snapshot().Program.HasRule("extra"))
	is.True(e.Snapshot().Program.HasRule("greet"))
}

func TestLoadKeepsSnapshotOnParseError(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, `greet { writeLine("stdout", "core"); }`)
	before := e.Snapshot()

	err := e.Load(context.Background(), Source{Base: "core", Text: `greet { writeLine("stdout", `})
	is.True(err != nil)
	is.Equal(e.Snapshot(), before)
}

func TestRejectedRuleIsNotIndexed(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, `
good { writeLine("stdout", "ok"); }
bad { *x = strlen(1, 2, 3); }
`)
	snap := e.Snapshot()
	is.Equal(len(snap.Rejected), 1)
	is.True(snap.Program.HasRule("good"))
	is.True(!snap.Program.HasRule("bad"))
}

func TestExecRuleText(t *testing.T) {
	is := is.New(t)
	e := newEngine(t, `helper(*x) { writeLine("stdout", "helper *x"); }`)
	s := e.NewSession(nil)
	defer s.Close()

	_, err := e.Exec(context.Background(), s, `main { helper("called"); }`)
	is.NoErr(err)
	is.Equal(stdoutOf(s.REI), "helper called\n")
	is.True(!e.Snapshot().Program.HasRule("main"))
}

func TestCatalogRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	store, err := catalog.Open(ctx, filepath.Join(t.TempDir(), "rules.db"))
	is.NoErr(err)
	defer store.Close()

	e := newEngine(t, accessRules)
	is.NoErr(e.SaveCatalog(ctx, store, "core"))

	loaded := New(WithCondIndex(true))
	is.NoErr(loaded.LoadCatalog(ctx, store, "core"))
	is.Equal(loaded.Snapshot().CondNodes, 1)

	rei := &session.RuleExecInfo{}
	params := &msi.ParamArray{Params: []*msi.Param{strParam("*user", "carol")}}
	_, err = loaded.ApplyRule(ctx, "checkAccess", params, rei, false)
	is.NoErr(err)
	is.Equal(stdoutOf(rei), "clause 3\n")
}

func TestRegionsBalance(t *testing.T) {
	is := is.New(t)
	tracker := &types.Tracker{}
	e := newEngine(t, accessRules, WithTracker(tracker), WithCondIndex(true))

	for _, user := range []string{"alice", "zed"} {
		params := &msi.ParamArray{Params: []*msi.Param{strParam("*user", user)}}
		_, err := e.ApplyRule(context.Background(), "checkAccess", params, nil, true)
		is.NoErr(err)
	}
	_, err := e.ComputeExpression(context.Background(), `int("x")`, nil)
	is.True(err != nil)
	is.Equal(tracker.Live(), int64(0))
	is.True(tracker.Created() > 0)
}

func TestComputeExpressionUsesCache(t *testing.T) {
	is := is.New(t)
	e := New()
	for i := 0; i < 3; i++ {
		got, err := e.ComputeExpression(context.Background(), `"a" ++ "b"`, nil)
		is.NoErr(err)
		is.Equal(got, "ab")
	}
	is.Equal(e.cache.Len(), 1)
	is.NoErr(e.Reload(context.Background()))
	is.Equal(e.cache.Len(), 0)
	is.True(strings.HasPrefix(Version(), "v"))
}
