package evaluator

import "github.com/sandrolain/goirl/pkg/types"

// converted records a failed conversion at the call site.
func converted(c *CallContext, v *types.Value, err error) (*types.Value, error) {
	if err != nil {
		return nil, c.fail(types.CodeOf(err), "%s", err.Error())
	}
	return v, nil
}

func fnStr(c *CallContext, args []*types.Value) (*types.Value, error) {
	v := args[0]
	switch v.Kind {
	case types.KindString:
		return v, nil
	case types.KindInt, types.KindDouble, types.KindBool, types.KindPath, types.KindDatetime,
		types.KindCons, types.KindTuple, types.KindIrods:
		return c.Region.NewString(v.String()), nil
	}
	return nil, c.fail(types.ReUnsupportedOpOrType, "error: unsupported type %s for str", v.Kind)
}

func fnDouble(c *CallContext, args []*types.Value) (*types.Value, error) {
	v, err := toDouble(c.Region, args[0])
	return converted(c, v, err)
}

func fnInt(c *CallContext, args []*types.Value) (*types.Value, error) {
	v, err := toInt(c.Region, args[0])
	return converted(c, v, err)
}

func fnBool(c *CallContext, args []*types.Value) (*types.Value, error) {
	v, err := toBool(c.Region, args[0])
	return converted(c, v, err)
}

func fnPath(c *CallContext, args []*types.Value) (*types.Value, error) {
	return c.Region.NewPath(args[0].Str), nil
}

func fnUnspeced(c *CallContext, _ []*types.Value) (*types.Value, error) {
	return c.Region.NewUnspeced(), nil
}
