package evaluator

import "github.com/sandrolain/goirl/pkg/types"

func listArg(c *CallContext, v *types.Value) (*types.Value, error) {
	if !v.IsList() {
		return nil, c.fail(types.ReDynamicTypeError, "error: %s is not a list", v.Kind)
	}
	return v, nil
}

// elemType returns the declared type of l, or the type of its first
// element when l has none.
func elemType(l *types.Value) *types.ExprType {
	if l.Type != nil && len(l.Type.Args) == 1 {
		return l.Type.Args[0]
	}
	if len(l.Elems) > 0 {
		return l.Elems[0].TypeOf()
	}
	return nil
}

func fnList(c *CallContext, args []*types.Value) (*types.Value, error) {
	elems := append([]*types.Value(nil), args...)
	var et *types.ExprType
	if len(elems) > 0 {
		et = elems[0].TypeOf()
	}
	return c.Region.NewList(et, elems...), nil
}

func listIndex(c *CallContext, l *types.Value, i int64) (int, error) {
	if i < 0 || i >= int64(len(l.Elems)) {
		return 0, c.fail(types.ReRuntimeError, "error: index %d out of range 0 to %d", i, len(l.Elems)-1)
	}
	return int(i), nil
}

func fnElem(c *CallContext, args []*types.Value) (*types.Value, error) {
	l, err := listArg(c, args[0])
	if err != nil {
		return nil, err
	}
	i, err := listIndex(c, l, args[1].AsInt())
	if err != nil {
		return nil, err
	}
	return l.Elems[i], nil
}

// fnSetElem returns a copy of the list with one element replaced.
func fnSetElem(c *CallContext, args []*types.Value) (*types.Value, error) {
	l, err := listArg(c, args[0])
	if err != nil {
		return nil, err
	}
	i, err := listIndex(c, l, args[1].AsInt())
	if err != nil {
		return nil, err
	}
	elems := append([]*types.Value(nil), l.Elems...)
	elems[i] = args[2]
	return c.Region.NewList(elemType(l), elems...), nil
}

func fnHd(c *CallContext, args []*types.Value) (*types.Value, error) {
	l, err := listArg(c, args[0])
	if err != nil {
		return nil, err
	}
	if len(l.Elems) == 0 {
		return nil, c.fail(types.ReRuntimeError, "error: hd of an empty list")
	}
	return l.Elems[0], nil
}

func fnTl(c *CallContext, args []*types.Value) (*types.Value, error) {
	l, err := listArg(c, args[0])
	if err != nil {
		return nil, err
	}
	if len(l.Elems) == 0 {
		return nil, c.fail(types.ReRuntimeError, "error: tl of an empty list")
	}
	return c.Region.NewList(elemType(l), append([]*types.Value(nil), l.Elems[1:]...)...), nil
}

func fnCons(c *CallContext, args []*types.Value) (*types.Value, error) {
	l, err := listArg(c, args[1])
	if err != nil {
		return nil, err
	}
	elems := make([]*types.Value, 0, len(l.Elems)+1)
	elems = append(elems, args[0])
	elems = append(elems, l.Elems...)
	et := elemType(l)
	if et == nil {
		et = args[0].TypeOf()
	}
	return c.Region.NewList(et, elems...), nil
}

func fnSize(c *CallContext, args []*types.Value) (*types.Value, error) {
	l, err := listArg(c, args[0])
	if err != nil {
		return nil, err
	}
	return c.Region.NewInt(int64(len(l.Elems))), nil
}
