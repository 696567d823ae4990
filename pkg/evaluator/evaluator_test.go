package evaluator

import (
	"context"
	"testing"

	"github.com/matryer/is"

	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/session"
	"github.com/sandrolain/goirl/pkg/types"
	"github.com/sandrolain/goirl/pkg/typing"
)

// newTestEvaluator parses and types src as the app rule base.
func newTestEvaluator(t *testing.T, src string, opts ...EvalOption) *Evaluator {
	t.Helper()
	set, err := parser.ParseRuleSet(src, "app")
	if err != nil {
		t.Fatalf("failed to parse rules: %v", err)
	}
	prog, err := NewProgram(NewRuleBase("app", set))
	if err != nil {
		t.Fatalf("failed to build program: %v", err)
	}
	ev := New(prog, opts...)
	if _, errs := typing.CheckRuleSet(set, ev); len(errs) > 0 {
		t.Fatalf("failed to type rules: %v", errs[0])
	}
	return ev
}

// evalSrc compiles src as actions and evaluates it in the global frame of s.
func evalSrc(t *testing.T, ev *Evaluator, s *Session, src string) (*types.Value, error) {
	t.Helper()
	expr, err := ev.compile(src, true)
	if err != nil {
		t.Fatalf("failed to compile %q: %v", src, err)
	}
	return ev.Eval(context.Background(), s, expr.AST())
}

func mustRun(t *testing.T, ev *Evaluator, s *Session, src string) *types.Value {
	t.Helper()
	v, err := evalSrc(t, ev, s, src)
	if err != nil {
		t.Fatalf("evaluating %q: %v", src, err)
	}
	return v
}

func stdout(s *Session) string {
	return s.REI.ExecOut().Stdout.String()
}

func TestWhileLoop(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, "")
	s := NewSession(nil, nil)
	defer s.Close()

	res := mustRun(t, ev, s, "*i = 0; while (*i < 3) { *i = *i + 1; }")
	is.Equal(res.Kind, types.KindInt)
	is.Equal(res.Int, int64(0))
	is.Equal(mustRun(t, ev, s, "*i").Int, int64(3))
}

func TestForeachBreakKeepsFirst(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, "")
	s := NewSession(nil, nil)
	defer s.Close()

	res := mustRun(t, ev, s, "foreach (*x in list(1, 2, 3)) { break; }")
	is.Equal(res.Int, int64(0))
	is.Equal(mustRun(t, ev, s, "*x").Int, int64(1))
}

func TestForeachVisitsAll(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, "")
	s := NewSession(nil, nil)
	defer s.Close()

	mustRun(t, ev, s, `foreach (*x in list("a", "b", "c")) { writeLine("stdout", *x); }`)
	is.Equal(stdout(s), "a\nb\nc\n")
}

func TestRecoveryOrder(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
rec {
	writeLine("stdout", "a0") ::: writeLine("stdout", "r0");
	writeLine("stdout", "a1") ::: writeLine("stdout", "r1");
	fail(3) ::: writeLine("stdout", "r2");
	writeLine("stdout", "a3") ::: writeLine("stdout", "r3");
}
`)
	s := NewSession(nil, nil)
	defer s.Close()

	_, err := evalSrc(t, ev, s, "rec")
	is.True(err != nil)
	is.Equal(types.CodeOf(err), types.ErrorCode(3))
	is.Equal(stdout(s), "a0\na1\nr2\nr1\nr0\n")
}

func TestCutSkipsRecovery(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
guarded { cut; fail(7) ::: writeLine("stdout", "recovered"); }
guarded { writeLine("stdout", "second"); }
fallback { fail(7) ::: writeLine("stdout", "recovered"); }
fallback { writeLine("stdout", "second"); }
`)
	s := NewSession(nil, nil)
	defer s.Close()

	_, err := evalSrc(t, ev, s, "guarded")
	is.True(err != nil)
	is.Equal(types.CodeOf(err), types.ErrorCode(7))
	is.Equal(stdout(s), "")

	mustRun(t, ev, s, "fallback")
	is.Equal(stdout(s), "recovered\nsecond\n")
}

func TestApplyAll(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
notify { writeLine("stdout", "1"); }
notify { fail(4); }
notify { writeLine("stdout", "3"); }
`)
	s := NewSession(nil, nil)
	defer s.Close()

	_, err := ev.ApplyAll(context.Background(), s, "notify")
	is.NoErr(err)
	is.Equal(stdout(s), "1\n3\n")
}

func TestSaveREIUndoesFailedClause(t *testing.T) {
	src := `
r { $statusStr = "changed"; fail(-1); }
r { $status = 7; }
`
	for _, save := range []bool{true, false} {
		ev := newTestEvaluator(t, src)
		rei := &session.RuleExecInfo{StatusStr: "orig"}
		s := NewSession(rei, nil)
		s.SaveREI = save
		_, err := ev.Call(context.Background(), s, "r")
		s.Close()
		if err != nil {
			t.Fatalf("save=%v: %v", save, err)
		}
		want := "changed"
		if save {
			want = "orig"
		}
		if rei.StatusStr != want || rei.Status != 7 {
			t.Errorf("save=%v: statusStr=%q status=%d, want %q and 7", save, rei.StatusStr, rei.Status, want)
		}
	}
}

func TestRetryWithoutRecoveryKeepsState(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
r { $statusStr = "kept"; fail(-1088000); }
r { $status = 1; fail(-1); }
r { nop; }
`)
	rei := &session.RuleExecInfo{}
	s := NewSession(rei, nil)
	defer s.Close()
	s.SaveREI = true

	_, err := ev.Call(context.Background(), s, "r")
	is.NoErr(err)
	is.Equal(rei.StatusStr, "kept")
	is.Equal(rei.Status, 1)
}

func TestRetryWithoutRecoverySkipsRecovery(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
r(*code) {
	writeLine("stdout", "a") ::: writeLine("stdout", "recovered");
	fail(*code) ::: nop;
}
`)
	s := NewSession(nil, nil)
	defer s.Close()

	_, err := evalSrc(t, ev, s, "r(-1)")
	is.Equal(types.CodeOf(err), types.ErrorCode(-1))
	is.Equal(stdout(s), "a\nrecovered\n")

	s.REI.ExecOut().Stdout.Reset()
	_, err = evalSrc(t, ev, s, "r(-1088000)")
	is.True(err != nil)
	is.Equal(stdout(s), "a\n")
}

func TestApplyAllKeepsSucceededChanges(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
r { $statusStr = "first"; }
r { $status = 5; fail(-1); }
r { nop; }
`)
	rei := &session.RuleExecInfo{}
	s := NewSession(rei, nil)
	defer s.Close()
	s.SaveREI = true

	_, err := ev.ApplyAll(context.Background(), s, "r")
	is.NoErr(err)
	is.Equal(rei.StatusStr, "first")
	is.Equal(rei.Status, 0) // the failed clause is undone
}

func TestTopLevelCutReturnsCause(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, "")
	s := NewSession(nil, nil)
	defer s.Close()

	_, err := evalSrc(t, ev, s, "cut; fail(-5)")
	is.Equal(types.CodeOf(err), types.ErrorCode(-5))
}

func TestWriteSessionVarPolicy(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
acPreProcForWriteSessionVariable(*var) { on (*var == "status") { succeed; } }
acPreProcForWriteSessionVariable(*var) { failmsg(-1, "session variable update not allowed"); }
`)
	rei := &session.RuleExecInfo{StatusStr: "orig"}
	s := NewSession(rei, nil)
	defer s.Close()

	mustRun(t, ev, s, "$status = 3")
	is.Equal(rei.Status, 3)

	_, err := evalSrc(t, ev, s, `$statusStr = "x"`)
	is.Equal(types.CodeOf(err), types.ErrorCode(-1))
	is.Equal(rei.StatusStr, "orig")
}

func findApp(n *types.AstNode, name string) *types.AstNode {
	if n.Type == types.NodeApplication && n.AppName() == name {
		return n
	}
	for _, ch := range n.Children {
		if a := findApp(ch, name); a != nil {
			return a
		}
	}
	return nil
}

func TestOutputArgumentCoercion(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
twice(*in, *out) { *out = *in * 2; }
`)
	s := NewSession(nil, nil)
	defer s.Close()

	expr, err := ev.compile("twice(21, *r)", true)
	is.NoErr(err)
	args := findApp(expr.AST(), "twice").AppArgs()
	ct := *args.CoercionType
	ct.Args = append([]*types.ExprType(nil), ct.Args...)
	ct.Args[1] = types.NewSimpleType(types.TString)
	args.CoercionType = &ct
	args.Children[1].Coerce = true

	_, err = ev.Eval(context.Background(), s, expr.AST())
	is.NoErr(err)
	r := mustRun(t, ev, s, "*r")
	is.Equal(r.Kind, types.KindString)
	is.Equal(r.Str, "42")
}

func TestMatchRejectingMatcher(t *testing.T) {
	ev := newTestEvaluator(t, `
~pos(*x) = if *x > 0 then *x else fail(-1)
`)
	tests := []struct {
		x    string
		want string
	}{
		{"3", "pos"},
		{"-3", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.x, func(t *testing.T) {
			s := NewSession(nil, nil)
			defer s.Close()
			got := mustRun(t, ev, s, `match `+tt.x+` with | pos(*y) => "pos" | *z => "other"`)
			if got.Str != tt.want {
				t.Fatalf("got %q, want %q", got.Str, tt.want)
			}
		})
	}
}

func TestRuleOutputParameter(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
twice(*in, *out) { *out = *in * 2; }
`)
	s := NewSession(nil, nil)
	defer s.Close()

	mustRun(t, ev, s, "twice(21, *r)")
	is.Equal(mustRun(t, ev, s, "*r").Int, int64(42))
}

func TestCondIndexedRule(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, `
greet(*u) { on (*u == "alice") { writeLine("stdout", "hi alice"); } }
greet(*u) { on (*u == "bob") { writeLine("stdout", "hi bob"); } }
greet(*u) { writeLine("stdout", "who?"); }
`)
	base, _ := ev.Program().Base("app")
	is.Equal(base.Index.CreateCondIndex(nil), 1)
	s := NewSession(nil, nil)
	defer s.Close()

	mustRun(t, ev, s, `greet("bob")`)
	mustRun(t, ev, s, `greet("dave")`)
	is.Equal(stdout(s), "hi bob\nwho?\n")
}

func TestCondIndexKeepsPatternParams(t *testing.T) {
	src := `
g("a", *u) { on (*u == "x") { writeLine("stdout", "c1"); } }
g("b", *u) { on (*u == "y") { writeLine("stdout", "c2"); } }
g(*v, *u) { writeLine("stdout", "c3"); }
`
	for _, indexed := range []bool{false, true} {
		ev := newTestEvaluator(t, src)
		if indexed {
			base, _ := ev.Program().Base("app")
			base.Index.CreateCondIndex(nil)
		}
		s := NewSession(nil, nil)
		mustRun(t, ev, s, `g("b", "y")`)
		mustRun(t, ev, s, `g("a", "y")`)
		if got := stdout(s); got != "c2\nc3\n" {
			t.Errorf("indexed=%v: got %q", indexed, got)
		}
		s.Close()
	}
}

func TestPatternTuple(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, "")
	s := NewSession(nil, nil)
	defer s.Close()

	mustRun(t, ev, s, `(*a, *b) = (1, "x")`)
	is.Equal(mustRun(t, ev, s, "*a").Int, int64(1))
	is.Equal(mustRun(t, ev, s, "*b").Str, "x")

	is.Equal(mustRun(t, ev, s, "let (*p, *q) = (1, 2) in *p + *q").Int, int64(3))
}

func TestMatch(t *testing.T) {
	ev := newTestEvaluator(t, "")
	tests := []struct {
		x    string
		want string
	}{
		{"1", "one"},
		{"2", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.x, func(t *testing.T) {
			s := NewSession(nil, nil)
			defer s.Close()
			mustRun(t, ev, s, "*x = "+tt.x)
			got := mustRun(t, ev, s, `match *x with | 1 => "one" | *y => "other"`)
			if got.Str != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltins(t *testing.T) {
	ev := newTestEvaluator(t, "")
	tests := []struct {
		input string
		want  string
	}{
		{`str(42)`, "42"},
		{`int("42")`, "42"},
		{`1 + 2 * 3`, "7"},
		{`7 / 2`, "3.500000"},
		{`7 % 3`, "1"},
		{`2 ^ 3`, "8"},
		{`-1`, "-1"},
		{`floor(2.7)`, "2"},
		{`max(1, 5, 3)`, "5"},
		{`"ab" ++ "cd"`, "abcd"},
		{`strlen("hello")`, "5"},
		{`substr("hello", 1, 3)`, "el"},
		{`triml("a/b/c", "/")`, "b/c"},
		{`trimr("a/b/c", "/")`, "a/b"},
		{`"abc" like "a*"`, "true"},
		{`"abc" like regex "a.c"`, "true"},
		{`"b" > "a"`, "true"},
		{`size(list(1, 2, 3))`, "3"},
		{`hd(list(1, 2, 3))`, "1"},
		{`elem(list("a", "b"), 1)`, "b"},
		{`split("a,b;c", ",;")`, "[a,b,c]"},
		{`type(1)`, "INTEGER"},
		{`if 1 > 2 then "a" else "b"`, "b"},
		{`timestrf(datetime(0), "%Y-%m-%d")`, "1970-01-01"},
		{`errorcode(fail(9))`, "9"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s := NewSession(nil, nil)
			defer s.Close()
			got := mustRun(t, ev, s, tt.input)
			if got.String() != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuiltinErrors(t *testing.T) {
	ev := newTestEvaluator(t, "")
	tests := []struct {
		input string
		code  types.ErrorCode
	}{
		{`int("abc")`, types.ReDynamicCoercionError},
		{`1 / 0`, types.ReDivisionByZero},
		{`substr("abc", 2, 5)`, types.ReRuntimeError},
		{`elem(list(1), 3)`, types.ReRuntimeError},
		{`"a" like regex "("`, types.InvalidRegexp},
		{`fail()`, types.FailActionEncounteredErr},
		{`noSuchAction(1)`, types.NoRuleOrMsiFunctionFoundErr},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s := NewSession(nil, nil)
			defer s.Close()
			_, err := evalSrc(t, ev, s, tt.input)
			if err == nil {
				t.Fatal("expected an error")
			}
			if code := types.CodeOf(err); code != tt.code {
				t.Fatalf("got %s, want %s", code, tt.code)
			}
			if s.Errors.Len() == 0 {
				t.Fatal("expected the error in the session messages")
			}
		})
	}
}

func TestErrorMsgClearsMessages(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, "")
	s := NewSession(nil, nil)
	defer s.Close()

	code := mustRun(t, ev, s, `errormsg(fail(), *msg)`)
	is.Equal(code.Int, int64(types.FailActionEncounteredErr))
	is.True(mustRun(t, ev, s, "*msg").Str != "")
	is.Equal(s.Errors.Len(), 0)
}

func TestGetStdout(t *testing.T) {
	is := is.New(t)
	ev := newTestEvaluator(t, "")
	s := NewSession(nil, nil)
	defer s.Close()

	mustRun(t, ev, s, `writeLine("stdout", "before")`)
	mustRun(t, ev, s, `getstdout(writeLine("stdout", "inside"), *out)`)
	is.Equal(mustRun(t, ev, s, "*out").Str, "inside\n")
}

func TestDelayExecSchedules(t *testing.T) {
	is := is.New(t)
	q := NewQueue()
	ev := newTestEvaluator(t, "", WithScheduler(q))
	s := NewSession(nil, nil)
	defer s.Close()

	mustRun(t, ev, s, `delay("<PLUSET>1s</PLUSET>") { writeLine("serverLog", "later"); }`)
	jobs := q.Drain()
	is.Equal(len(jobs), 1)
	is.Equal(jobs[0].Condition, "<PLUSET>1s</PLUSET>")
	is.Equal(jobs[0].SessionID, s.ID)
}

func TestRegionBalance(t *testing.T) {
	is := is.New(t)
	tracker := &types.Tracker{}
	ev := newTestEvaluator(t, `
inc(*n, *out) { *out = *n + 1; }
broken { fail(2); }
`, WithTracker(tracker))
	s := NewSession(nil, tracker)

	mustRun(t, ev, s, "*i = 0; while (*i < 50) { inc(*i, *j); *i = *j; }")
	_, err := evalSrc(t, ev, s, "broken")
	is.True(err != nil)
	_, err = evalSrc(t, ev, s, "foreach (*x in list(1, 2)) { fail(1); }")
	is.True(err != nil)
	is.Equal(mustRun(t, ev, s, "*i").Int, int64(50))

	s.Close()
	is.True(tracker.Created() > 0)
	is.Equal(tracker.Live(), int64(0))
}

func TestRegionBalanceCompaction(t *testing.T) {
	is := is.New(t)
	tracker := &types.Tracker{}
	ev := newTestEvaluator(t, "", WithTracker(tracker), WithGCBlockSize(1))
	s := NewSession(nil, tracker)

	mustRun(t, ev, s, `*s = ""; for (*i = 0; *i < 20; *i = *i + 1) { *s = *s ++ "x"; }`)
	is.Equal(mustRun(t, ev, s, "strlen(*s)").Int, int64(20))

	s.Close()
	is.Equal(tracker.Live(), int64(0))
}

func TestCoercion(t *testing.T) {
	r := types.NewRegion(nil)
	defer r.Free()
	tests := []struct {
		name   string
		in     *types.Value
		target types.TypeKind
		want   string
		kind   types.ValueKind
	}{
		{"string to integer", r.NewString("42"), types.TInt, "42", types.KindInt},
		{"double string to integer", r.NewString("2.0"), types.TInt, "2", types.KindInt},
		{"integer to double", r.NewInt(2), types.TDouble, "2", types.KindDouble},
		{"integer to string", r.NewInt(42), types.TString, "42", types.KindString},
		{"string to boolean", r.NewString("true"), types.TBool, "true", types.KindBool},
		{"string to path", r.NewString("/z/a"), types.TPath, "/z/a", types.KindPath},
		{"string to time", r.NewString("1970-01-02 00:00:00"), types.TDatetime, "1970-01-02 00:00:00", types.KindDatetime},
		{"seconds to time", r.NewInt(86400), types.TDatetime, "1970-01-02 00:00:00", types.KindDatetime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(r, tt.in, types.NewSimpleType(tt.target))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.kind || got.String() != tt.want {
				t.Fatalf("got %s %s, want %s %s", got.Kind, got, tt.kind, tt.want)
			}
		})
	}
}

func TestCoercionFailures(t *testing.T) {
	r := types.NewRegion(nil)
	defer r.Free()
	tests := []struct {
		name   string
		in     *types.Value
		target types.TypeKind
	}{
		{"word to integer", r.NewString("abc"), types.TInt},
		{"word to double", r.NewString("abc"), types.TDouble},
		{"word to boolean", r.NewString("maybe"), types.TBool},
		{"unspeced to string", r.NewUnspeced(), types.TString},
		{"integer to path", r.NewInt(1), types.TPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := coerce(r, tt.in, types.NewSimpleType(tt.target))
			if types.CodeOf(err) != types.ReDynamicCoercionError {
				t.Fatalf("got %v, want RE_DYNAMIC_COERCION_ERROR", err)
			}
		})
	}
}

func FuzzCoercionRoundTrip(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(42))
	f.Add(int64(-7))
	f.Fuzz(func(t *testing.T, n int64) {
		r := types.NewRegion(nil)
		defer r.Free()
		s, err := coerce(r, r.NewInt(n), types.NewSimpleType(types.TString))
		if err != nil {
			t.Fatal(err)
		}
		back, err := coerce(r, s, types.NewSimpleType(types.TInt))
		if err != nil {
			t.Fatal(err)
		}
		if back.Int != n {
			t.Fatalf("round trip of %d gave %d", n, back.Int)
		}
	})
}

func TestStrftimeLayout(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"%Y-%m-%d", "2006-01-02"},
		{"%H:%M:%S", "15:04:05"},
		{"100%%", "100%"},
		{"%Q", "%Q"},
	}
	for _, tt := range tests {
		if got := strftimeLayout(tt.in); got != tt.want {
			t.Errorf("strftimeLayout(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
