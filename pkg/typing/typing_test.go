package typing

import (
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/types"
)

var testSigs = SignatureMap{
	"+":         parser.MustParseFuncType("forall X in {integer double}, f X * f X->X"),
	"*":         parser.MustParseFuncType("forall X in {integer double}, f X * f X->X"),
	"++":        parser.MustParseFuncType("f string * f string->string"),
	">":         parser.MustParseFuncType("forall X in {integer double string time}, f X * f X->boolean"),
	"like":      parser.MustParseFuncType("string * string->boolean"),
	"str":       parser.MustParseFuncType("?->string"),
	"assign":    parser.MustParseFuncType("e 0 * e f 0->integer"),
	"if":        parser.MustParseFuncType("e boolean * a ? * a ? * a ? * a ?->?"),
	"foreach2":  parser.MustParseFuncType("forall X, e X * e list X * a ? * a ?->?"),
	"list":      parser.MustParseFuncType("forall X, X*->list X"),
	"max":       parser.MustParseFuncType("f double+->double"),
	"fail":      parser.MustParseFuncType("integer ?->integer"),
	"substr":    parser.MustParseFuncType("string * integer * integer->string"),
	"writeLine": parser.MustParseFuncType("string * ?->integer"),
	"query":     parser.MustParseFuncType("expression ? + -> `GenQueryInp_PI` * `GenQueryOut_PI`"),
	"myloop":    parser.MustParseFuncType("e boolean * a ?->integer"),
}

func checkExpr(t *testing.T, src string) (*types.AstNode, error) {
	t.Helper()
	expr, err := parser.ParseExpression(src, "test")
	if err != nil {
		t.Fatalf("failed to parse %q: %v", src, err)
	}
	return expr.AST(), CheckExpression(expr.AST(), testSigs)
}

func TestVarargArity(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"max(1)", true},
		{"max(1, 2.5, 3)", true},
		{"max()", false},
		{"fail()", true},
		{"fail(1)", true},
		{"fail(1, 2)", false},
		{"list()", true},
		{"list(1, 2, 3)", true},
		{"substr(\"abc\", 1, 2)", true},
		{"substr(\"abc\", 1)", false},
		{"substr(\"abc\", 1, 2, 3)", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := checkExpr(t, tt.input)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected a type error")
				}
				if code := types.CodeOf(err); code != types.ReTypeError {
					t.Fatalf("got code %s, want RE_TYPE_ERROR", code)
				}
			}
		})
	}
}

func TestVarargMessage(t *testing.T) {
	is := is.New(t)
	_, err := checkExpr(t, "fail(1, 2)")
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "unsolvable vararg typing constraint"))
	is.True(strings.Contains(err.Error(), "in fail"))
}

func TestExpressionTypes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2.5", "DOUBLE"},
		{"list(1, 2, 3)", "list (INTEGER)"},
		{`"a" ++ "b"`, "STRING"},
		{"1 > 2", "BOOLEAN"},
		{`substr("abc", 0, 1)`, "STRING"},
		{"max(1, 2)", "DOUBLE"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, err := checkExpr(t, tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if got := n.ExprType.String(); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBoundedResult(t *testing.T) {
	is := is.New(t)
	n, err := checkExpr(t, "1 + 2")
	is.NoErr(err)
	is.Equal(n.ExprType.Kind, types.TVar)
	is.Equal(len(n.ExprType.Disjuncts), 2)
}

func TestTypeErrors(t *testing.T) {
	tests := []string{
		`"a" + 1`,
		`list(1, "a")`,
		`1 like "a"`,
		`substr(1, 0, 1)`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := checkExpr(t, src)
			if err == nil {
				t.Fatal("expected a type error")
			}
			if !types.IsCode(err, types.ReTypeError) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestCoercionFlags(t *testing.T) {
	is := is.New(t)

	n, err := checkExpr(t, `substr("abc", 1, 2)`)
	is.NoErr(err)
	for _, a := range n.AppArgs().Children {
		is.True(!a.Coerce) // exact parameter types
	}
	is.Equal(n.AppArgs().CoercionType.String(), "STRING * INTEGER * INTEGER")

	n, err = checkExpr(t, `writeLine("stdout", 1)`)
	is.NoErr(err)
	args := n.AppArgs().Children
	is.True(!args[0].Coerce)
	is.True(args[1].Coerce) // integer passed to a dynamic parameter

	n, err = checkExpr(t, "1 + 2.5")
	is.NoErr(err)
	is.True(n.AppArgs().Children[0].Coerce) // flexible parameters always coerce
	is.Equal(n.AppArgs().CoercionType.Args[0].Kind, types.TFlex)
	is.Equal(n.AppArgs().CoercionType.Args[0].Args[0].Kind, types.TDouble)
}

func TestIOPropagation(t *testing.T) {
	is := is.New(t)
	n, err := checkExpr(t, "if (1 > 2) { writeLine(\"stdout\", \"a\"); } else { nop; }")
	is.NoErr(err)
	args := n.AppArgs().Children
	is.Equal(args[0].IO, types.IOExpression)
	for _, a := range args[1:] {
		is.Equal(a.IO, types.IOActions)
	}

	n, err = checkExpr(t, "*x = 1")
	is.NoErr(err)
	is.Equal(n.AppArgs().Children[0].IO, types.IOExpression)

	// unknown functions take dynamic parameters
	n, err = checkExpr(t, "msiUnknown(*a, 1)")
	is.NoErr(err)
	for _, a := range n.AppArgs().Children {
		is.Equal(a.IO, types.IODynamic)
	}
}

func TestSingleActionIsWrapped(t *testing.T) {
	is := is.New(t)
	n, err := checkExpr(t, "myloop(true, writeLine(\"stdout\", \"x\"))")
	is.NoErr(err)
	body := n.AppArgs().Children[1]
	is.Equal(body.Type, types.NodeActions)
	is.Equal(body.IO, types.IOActions)
	is.Equal(len(body.Children), 1)
	is.Equal(body.Children[0].AppName(), "writeLine")
	is.Equal(body.Children[0].IO, types.IOInput)
}

func TestAssignRequiresPattern(t *testing.T) {
	is := is.New(t)
	_, err := checkExpr(t, "assign({ nop; }, 3)")
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "not a variable or a pattern"))
}

func parseRule(t *testing.T, src string) *types.RuleDesc {
	t.Helper()
	set, err := parser.ParseRuleSet(src, "core")
	if err != nil {
		t.Fatalf("failed to parse %q: %v", src, err)
	}
	return set.Rules[0]
}

func TestCheckRule(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ok   bool
	}{
		{"assign then add", `acA { *x = 1; *y = *x + 2.5; }`, true},
		{"string then add", `acB { *x = "a"; *y = *x + 1; }`, false},
		{"session var", `acC { on ($objPath like "/z/*") { writeLine("serverLog", $objPath); } }`, true},
		{"session var misuse", `acD { *n = $objPath + 1; *s = substr($objPath, 0, 1); }`, false},
		{"int condition", `acE { on (1) { nop; } }`, false},
		{"function rule", `twice(*x) = *x * 2`, true},
		{"recovery", `acF { *x = 1 ::: *x = 2; }`, true},
		{"foreach list", `acG { *l = list(1, 2); foreach (*e in *l) { *s = *e + 1; } }`, true},
		{"foreach list misuse", `acH { *l = list("a"); foreach (*e in *l) { *s = *e + 1; } }`, false},
		{"foreach query", `acI { foreach (*r in select DATA_NAME where COLL_NAME = '/z') { writeLine("stdout", *r); } }`, true},
		{"foreach in place", `acJ { *l = list(1, 2); foreach (*l) { *s = *l + 1; } }`, true},
		{"interpolation", `acK { *n = 1; writeLine("stdout", "n is *n"); }`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRule(parseRule(t, tt.src), testSigs)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !types.IsCode(err, types.ReTypeError) {
				t.Fatalf("expected a type error, got %v", err)
			}
		})
	}
}

func TestCheckRuleMessage(t *testing.T) {
	is := is.New(t)
	src := `acB { *x = "a"; *y = *x + 1; }`
	err := CheckRule(parseRule(t, src), testSigs)
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "in rule acB"))
	is.True(strings.Contains(err.Error(), "unsolvable typing constraint"))

	te, ok := err.(*types.Error)
	is.True(ok)
	is.Equal(te.Base, "core")
	is.Equal(src[te.Position:te.Position+2], "*x")
}

func TestDynamicRule(t *testing.T) {
	is := is.New(t)
	rule := parseRule(t, `acB { *x = "a"; *y = *x + 1; }`)
	rule.Dynamic = true
	is.NoErr(CheckRule(rule, testSigs))

	// applications are still typed: arity is checked
	rule = parseRule(t, `acC { *s = substr("a", 1); }`)
	rule.Dynamic = true
	is.True(CheckRule(rule, testSigs) != nil)
}

func TestCheckRuleSet(t *testing.T) {
	is := is.New(t)
	set, err := parser.ParseRuleSet(`
acGood { writeLine("stdout", "ok"); }
acBad { *x = "a" + 1; }
maybe : integer -> integer
`, "core")
	is.NoErr(err)
	ok, errs := CheckRuleSet(set, testSigs)
	is.Equal(len(errs), 1)
	is.Equal(len(ok), 2)
	is.Equal(ok[0].Name, "acGood")
	is.Equal(ok[1].Kind, types.RuleExtern)
}
