package evaluator

import (
	"strconv"
	"strings"
	"time"

	"github.com/sandrolain/goirl/pkg/types"
)

// coerce converts v to the base type the checker chose for a flexible or
// dynamic parameter. Conversions that lose the value fail with
// RE_DYNAMIC_COERCION_ERROR instead of producing a zero.
func coerce(r *types.Region, v *types.Value, target *types.ExprType) (*types.Value, error) {
	t := target.Unwrap()
	switch t.Kind {
	case types.TInt:
		return toInt(r, v)
	case types.TDouble:
		return toDouble(r, v)
	case types.TBool:
		return toBool(r, v)
	case types.TString:
		return toString(r, v)
	case types.TPath:
		if v.Kind == types.KindPath {
			return v, nil
		}
		if v.Kind == types.KindString {
			return r.NewPath(v.Str), nil
		}
	case types.TDatetime:
		return toDatetime(r, v, "")
	default:
		return v, nil
	}
	return nil, coercionError(v, t)
}

func coercionError(v *types.Value, t *types.ExprType) error {
	return types.Errorf(types.ReDynamicCoercionError, "error: dynamic coercion from %s to %s", v.Kind, t)
}

func toInt(r *types.Region, v *types.Value) (*types.Value, error) {
	switch v.Kind {
	case types.KindInt:
		return v, nil
	case types.KindDouble, types.KindBool, types.KindDatetime:
		return r.NewInt(v.AsInt()), nil
	case types.KindString, types.KindPath:
		s := strings.TrimSpace(v.Str)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return r.NewInt(i), nil
		}
		if d, err := strconv.ParseFloat(s, 64); err == nil {
			return r.NewInt(int64(d)), nil
		}
	}
	return nil, coercionError(v, types.NewSimpleType(types.TInt))
}

func toDouble(r *types.Region, v *types.Value) (*types.Value, error) {
	switch v.Kind {
	case types.KindDouble:
		return v, nil
	case types.KindInt, types.KindBool, types.KindDatetime:
		return r.NewDouble(v.AsDouble()), nil
	case types.KindString, types.KindPath:
		if d, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64); err == nil {
			return r.NewDouble(d), nil
		}
	}
	return nil, coercionError(v, types.NewSimpleType(types.TDouble))
}

func toBool(r *types.Region, v *types.Value) (*types.Value, error) {
	switch v.Kind {
	case types.KindBool:
		return v, nil
	case types.KindInt, types.KindDouble:
		return r.NewBool(v.AsDouble() != 0), nil
	case types.KindString:
		switch strings.TrimSpace(v.Str) {
		case "true", "1":
			return r.NewBool(true), nil
		case "false", "0":
			return r.NewBool(false), nil
		}
	}
	return nil, coercionError(v, types.NewSimpleType(types.TBool))
}

func toString(r *types.Region, v *types.Value) (*types.Value, error) {
	switch v.Kind {
	case types.KindString:
		return v, nil
	case types.KindUnspeced, types.KindAst, types.KindBreak, types.KindSuccess:
		return nil, coercionError(v, types.NewSimpleType(types.TString))
	}
	return r.NewString(v.String()), nil
}

// toDatetime converts seconds since the epoch or a formatted time. An
// empty layout tries the default layout and then plain seconds.
func toDatetime(r *types.Region, v *types.Value, layout string) (*types.Value, error) {
	switch v.Kind {
	case types.KindDatetime:
		return v, nil
	case types.KindInt, types.KindDouble:
		return r.NewDatetime(v.AsInt()), nil
	case types.KindString:
		s := strings.TrimSpace(v.Str)
		if layout != "" {
			t, err := time.ParseInLocation(layout, s, time.UTC)
			if err != nil {
				return nil, types.Errorf(types.DateFormatErr, "error: cannot parse %q as a time: %v", s, err)
			}
			return r.NewDatetime(t.Unix()), nil
		}
		if t, err := time.ParseInLocation(types.DatetimeLayout, s, time.UTC); err == nil {
			return r.NewDatetime(t.Unix()), nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return r.NewDatetime(i), nil
		}
	}
	return nil, coercionError(v, types.NewSimpleType(types.TDatetime))
}
