package evaluator

import (
	"cmp"
	"math"
	"strconv"
	"strings"

	"github.com/sandrolain/goirl/pkg/types"
)

// asNumber returns v as an integer or double. Numeric strings are parsed.
func asNumber(r *types.Region, v *types.Value) (*types.Value, bool) {
	switch v.Kind {
	case types.KindInt, types.KindDouble:
		return v, true
	case types.KindString:
		s := strings.TrimSpace(v.Str)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return r.NewInt(i), true
		}
		if d, err := strconv.ParseFloat(s, 64); err == nil {
			return r.NewDouble(d), true
		}
	}
	return nil, false
}

func numeric(c *CallContext, v *types.Value) (*types.Value, error) {
	if n, ok := asNumber(c.Region, v); ok {
		return n, nil
	}
	return nil, c.fail(types.ReUnsupportedOpOrType, "error: unsupported operand type %s", v.Kind)
}

func operands(c *CallContext, args []*types.Value) (a, b *types.Value, err error) {
	if a, err = numeric(c, args[0]); err != nil {
		return nil, nil, err
	}
	if b, err = numeric(c, args[1]); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// arith applies an operator to two integers or, when either operand is a
// double, to two doubles.
func arith(c *CallContext, args []*types.Value, ints func(x, y int64) int64, doubles func(x, y float64) float64) (*types.Value, error) {
	a, b, err := operands(c, args)
	if err != nil {
		return nil, err
	}
	if a.Kind == types.KindInt && b.Kind == types.KindInt {
		return c.Region.NewInt(ints(a.Int, b.Int)), nil
	}
	return c.Region.NewDouble(doubles(a.AsDouble(), b.AsDouble())), nil
}

func fnAdd(c *CallContext, args []*types.Value) (*types.Value, error) {
	return arith(c, args,
		func(x, y int64) int64 { return x + y },
		func(x, y float64) float64 { return x + y })
}

func fnSub(c *CallContext, args []*types.Value) (*types.Value, error) {
	return arith(c, args,
		func(x, y int64) int64 { return x - y },
		func(x, y float64) float64 { return x - y })
}

func fnMul(c *CallContext, args []*types.Value) (*types.Value, error) {
	return arith(c, args,
		func(x, y int64) int64 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// fnDiv always divides as doubles.
func fnDiv(c *CallContext, args []*types.Value) (*types.Value, error) {
	a, b, err := operands(c, args)
	if err != nil {
		return nil, err
	}
	if b.AsDouble() == 0 {
		return nil, c.fail(types.ReDivisionByZero, "error: division by zero")
	}
	return c.Region.NewDouble(a.AsDouble() / b.AsDouble()), nil
}

func fnMod(c *CallContext, args []*types.Value) (*types.Value, error) {
	a, b, err := operands(c, args)
	if err != nil {
		return nil, err
	}
	if b.AsInt() == 0 {
		return nil, c.fail(types.ReDivisionByZero, "error: division by zero")
	}
	return c.Region.NewInt(a.AsInt() % b.AsInt()), nil
}

func fnPow(c *CallContext, args []*types.Value) (*types.Value, error) {
	a, b, err := operands(c, args)
	if err != nil {
		return nil, err
	}
	return c.Region.NewDouble(math.Pow(a.AsDouble(), b.AsDouble())), nil
}

// fnRoot computes x ^^ y, the y-th root of x.
func fnRoot(c *CallContext, args []*types.Value) (*types.Value, error) {
	a, b, err := operands(c, args)
	if err != nil {
		return nil, err
	}
	if b.AsDouble() == 0 {
		return nil, c.fail(types.ReDivisionByZero, "error: division by zero")
	}
	return c.Region.NewDouble(math.Pow(a.AsDouble(), 1/b.AsDouble())), nil
}

func fnNeg(c *CallContext, args []*types.Value) (*types.Value, error) {
	a, err := numeric(c, args[0])
	if err != nil {
		return nil, err
	}
	if a.Kind == types.KindInt {
		return c.Region.NewInt(-a.Int), nil
	}
	return c.Region.NewDouble(-a.Double), nil
}

var mathFuncs = map[string]func(float64) float64{
	"log":     math.Log,
	"exp":     math.Exp,
	"abs":     math.Abs,
	"floor":   math.Floor,
	"ceiling": math.Ceil,
}

func mathFunc(name string) BuiltinFunc {
	f := mathFuncs[name]
	return func(c *CallContext, args []*types.Value) (*types.Value, error) {
		a, err := numeric(c, args[0])
		if err != nil {
			return nil, err
		}
		return c.Region.NewDouble(f(a.AsDouble())), nil
	}
}

func doubles(c *CallContext, args []*types.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := numeric(c, a)
		if err != nil {
			return nil, err
		}
		out[i] = v.AsDouble()
	}
	return out, nil
}

func fnMax(c *CallContext, args []*types.Value) (*types.Value, error) {
	xs, err := doubles(c, args)
	if err != nil {
		return nil, err
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return c.Region.NewDouble(m), nil
}

func fnMin(c *CallContext, args []*types.Value) (*types.Value, error) {
	xs, err := doubles(c, args)
	if err != nil {
		return nil, err
	}
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return c.Region.NewDouble(m), nil
}

func fnAverage(c *CallContext, args []*types.Value) (*types.Value, error) {
	xs, err := doubles(c, args)
	if err != nil {
		return nil, err
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return c.Region.NewDouble(sum / float64(len(xs))), nil
}

func boolArg(c *CallContext, v *types.Value) (bool, error) {
	if v.Kind != types.KindBool {
		return false, c.fail(types.ReDynamicTypeError, "error: %s is not a boolean", v.Kind)
	}
	return v.Bool, nil
}

func fnNot(c *CallContext, args []*types.Value) (*types.Value, error) {
	b, err := boolArg(c, args[0])
	if err != nil {
		return nil, err
	}
	return c.Region.NewBool(!b), nil
}

func fnAnd(c *CallContext, args []*types.Value) (*types.Value, error) {
	a, err := boolArg(c, args[0])
	if err != nil {
		return nil, err
	}
	b, err := boolArg(c, args[1])
	if err != nil {
		return nil, err
	}
	return c.Region.NewBool(a && b), nil
}

func fnOr(c *CallContext, args []*types.Value) (*types.Value, error) {
	a, err := boolArg(c, args[0])
	if err != nil {
		return nil, err
	}
	b, err := boolArg(c, args[1])
	if err != nil {
		return nil, err
	}
	return c.Region.NewBool(a || b), nil
}

// compare orders two values of comparable kinds. A number and a numeric
// string compare as numbers.
func compare(c *CallContext, a, b *types.Value) (int, error) {
	switch {
	case isNumber(a) || isNumber(b):
		x, okA := asNumber(c.Region, a)
		y, okB := asNumber(c.Region, b)
		if !okA || !okB {
			break
		}
		if x.Kind == types.KindInt && y.Kind == types.KindInt {
			return cmp.Compare(x.Int, y.Int), nil
		}
		return cmp.Compare(x.AsDouble(), y.AsDouble()), nil
	case isText(a) && isText(b):
		return strings.Compare(a.Str, b.Str), nil
	case a.Kind == types.KindDatetime && b.Kind == types.KindDatetime:
		return cmp.Compare(a.Time, b.Time), nil
	case a.Kind == types.KindBool && b.Kind == types.KindBool:
		return cmp.Compare(a.AsInt(), b.AsInt()), nil
	}
	return 0, c.fail(types.ReDynamicTypeError, "error: cannot compare %s with %s", a.Kind, b.Kind)
}

func compareFunc(op string) BuiltinFunc {
	return func(c *CallContext, args []*types.Value) (*types.Value, error) {
		if (op == "==" || op == "!=") && args[0].Kind == args[1].Kind &&
			(args[0].Kind == types.KindCons || args[0].Kind == types.KindTuple || args[0].Kind == types.KindIrods) {
			return c.Region.NewBool(args[0].Equal(args[1]) == (op == "==")), nil
		}
		d, err := compare(c, args[0], args[1])
		if err != nil {
			return nil, err
		}
		var res bool
		switch op {
		case "==":
			res = d == 0
		case "!=":
			res = d != 0
		case "<":
			res = d < 0
		case "<=":
			res = d <= 0
		case ">":
			res = d > 0
		case ">=":
			res = d >= 0
		}
		return c.Region.NewBool(res), nil
	}
}
