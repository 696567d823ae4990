package types

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// TypeKind identifies the kind of an ExprType.
type TypeKind uint8

const (
	TUnspeced TypeKind = iota // no value yet
	TDynamic                  // ?, checked at run time
	TInt                      // integer
	TDouble                   // double
	TBool                     // boolean
	TString                   // string
	TPath                     // path
	TDatetime                 // time
	TIrods                    // `Name`, opaque native value
	TCons                     // Name(T, ...), includes list
	TTuple                    // T * U
	TFunc                     // params -> ret
	TVar                      // type variable
	TFlex                     // f T, coercible parameter
	TFixed                    // f T => U, coerce to U
	TType                     // set, the type of types
)

var kindNames = [...]string{
	TUnspeced: "UNSPECED",
	TDynamic:  "DYNAMIC",
	TInt:      "INTEGER",
	TDouble:   "DOUBLE",
	TBool:     "BOOLEAN",
	TString:   "STRING",
	TPath:     "PATH",
	TDatetime: "DATETIME",
	TIrods:    "IRODS",
	TCons:     "CONS",
	TTuple:    "TUPLE",
	TFunc:     "FUNC",
	TVar:      "VAR",
	TFlex:     "FLEX",
	TFixed:    "FIXD",
	TType:     "TYPE",
}

// String returns the upper case kind name.
func (k TypeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "OTHER"
}

// IsBase reports whether the kind is a base type.
func (k TypeKind) IsBase() bool {
	switch k {
	case TInt, TDouble, TBool, TString, TPath, TDatetime, TIrods:
		return true
	}
	return false
}

// IOType is a bit set describing how a parameter is passed.
type IOType uint8

const (
	IOInput      IOType = 0x01
	IOOutput     IOType = 0x02
	IODynamic    IOType = 0x04
	IOExpression IOType = 0x08
	IOActions    IOType = 0x10
)

// Vararg describes how many times the last parameter of a function may repeat.
type Vararg uint8

const (
	VarargOnce     Vararg = iota // exactly once
	VarargOptional               // ?, zero or one
	VarargPlus                   // +, one or more
	VarargStar                   // *, zero or more
)

// ListName is the constructor name used for list types and values.
const ListName = "list"

// ExprType is a structural type.
//
// Composite kinds keep their components in Args: cons and tuple components,
// [params, ret] for functions where params is a tuple, [T] for flex and
// [T, U] for fixed. Type variables carry an id and an optional disjunction
// set of base types; an empty set means the variable is free.
type ExprType struct {
	Kind      TypeKind
	Name      string
	Args      []*ExprType
	VarID     int
	Disjuncts []*ExprType
	Vararg    Vararg
	IO        IOType
}

// NewSimpleType returns a type with no components.
func NewSimpleType(kind TypeKind) *ExprType {
	return &ExprType{Kind: kind, IO: IOInput}
}

// NewIrodsType returns the opaque native type with the given tag.
func NewIrodsType(name string) *ExprType {
	return &ExprType{Kind: TIrods, Name: name, IO: IOInput}
}

// NewConsType returns a named constructor type.
func NewConsType(name string, args ...*ExprType) *ExprType {
	return &ExprType{Kind: TCons, Name: name, Args: args, IO: IOInput}
}

// NewListType returns list elem.
func NewListType(elem *ExprType) *ExprType {
	return NewConsType(ListName, elem)
}

// NewTupleType returns a tuple type. A zero length tuple is unit.
func NewTupleType(args ...*ExprType) *ExprType {
	return &ExprType{Kind: TTuple, Args: args, IO: IOInput}
}

// NewFuncType returns params -> ret. params must be a tuple.
func NewFuncType(params, ret *ExprType, vararg Vararg) *ExprType {
	return &ExprType{Kind: TFunc, Args: []*ExprType{params, ret}, Vararg: vararg, IO: IOInput}
}

var tvarCounter atomic.Int64

// NextTVarID returns a fresh type variable id.
func NextTVarID() int {
	return int(tvarCounter.Add(1))
}

// NewTVar returns a type variable bounded by disjuncts.
func NewTVar(id int, disjuncts ...*ExprType) *ExprType {
	return &ExprType{Kind: TVar, VarID: id, Disjuncts: disjuncts, IO: IOInput}
}

// NewFlexType wraps t as a coercible parameter type.
func NewFlexType(t *ExprType) *ExprType {
	return &ExprType{Kind: TFlex, Args: []*ExprType{t}, IO: t.IO}
}

// NewFixedType returns a parameter accepting t and coerced to u.
func NewFixedType(t, u *ExprType) *ExprType {
	return &ExprType{Kind: TFixed, Args: []*ExprType{t, u}, IO: t.IO}
}

// Params returns the parameter tuple of a function type.
func (t *ExprType) Params() *ExprType {
	return t.Args[0]
}

// Ret returns the return type of a function type.
func (t *ExprType) Ret() *ExprType {
	return t.Args[1]
}

// Arity returns the number of components.
func (t *ExprType) Arity() int {
	return len(t.Args)
}

// IsList reports whether t is list T.
func (t *ExprType) IsList() bool {
	return t != nil && t.Kind == TCons && t.Name == ListName
}

// Clone returns a shallow copy with its own Args and Disjuncts slices.
func (t *ExprType) Clone() *ExprType {
	c := *t
	if t.Args != nil {
		c.Args = append([]*ExprType(nil), t.Args...)
	}
	if t.Disjuncts != nil {
		c.Disjuncts = append([]*ExprType(nil), t.Disjuncts...)
	}
	return &c
}

// WithIO returns a copy of t with the given I/O flags.
func (t *ExprType) WithIO(io IOType) *ExprType {
	c := t.Clone()
	c.IO = io
	return c
}

// Unwrap strips flex and fixed wrappers and returns the coercion target.
func (t *ExprType) Unwrap() *ExprType {
	switch t.Kind {
	case TFlex:
		return t.Args[0]
	case TFixed:
		return t.Args[1]
	}
	return t
}

// Equal reports syntactic equality, ignoring I/O flags.
func (t *ExprType) Equal(u *ExprType) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case TIrods:
		return t.Name == u.Name
	case TVar:
		return t.VarID == u.VarID
	case TCons, TTuple, TFunc, TFlex, TFixed:
		if t.Name != u.Name || len(t.Args) != len(u.Args) || t.Vararg != u.Vararg {
			return false
		}
		for i := range t.Args {
			if !t.Args[i].Equal(u.Args[i]) {
				return false
			}
		}
	}
	return true
}

// String renders the type the way the type builtin reports it, for
// example INTEGER, list (STRING) or INTEGER * DOUBLE.
func (t *ExprType) String() string {
	var sb strings.Builder
	t.write(&sb)
	return strings.TrimRight(sb.String(), " ")
}

func (t *ExprType) write(sb *strings.Builder) {
	if t == nil {
		sb.WriteString("?")
		return
	}
	switch t.Kind {
	case TIrods:
		sb.WriteString(t.Name)
	case TVar:
		sb.WriteString("VAR ")
		sb.WriteString(strconv.Itoa(t.VarID))
		if len(t.Disjuncts) > 0 {
			sb.WriteByte('{')
			for i, d := range t.Disjuncts {
				if i > 0 {
					sb.WriteByte(' ')
				}
				d.write(sb)
			}
			sb.WriteByte('}')
		}
	case TFunc:
		if t.Vararg != VarargOnce {
			sb.WriteString("vararg ")
		}
		sb.WriteByte('(')
		t.Args[0].write(sb)
		sb.WriteString(")->")
		t.Args[1].write(sb)
	case TCons:
		sb.WriteString(t.Name)
		if len(t.Args) > 0 {
			sb.WriteString(" (")
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				a.write(sb)
			}
			sb.WriteByte(')')
		}
	case TTuple:
		switch len(t.Args) {
		case 0:
			sb.WriteString("unit")
		case 1:
			sb.WriteByte('(')
			t.Args[0].write(sb)
			sb.WriteByte(')')
		default:
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteString(" * ")
				}
				a.write(sb)
			}
		}
	case TFlex:
		sb.WriteString("FLEX ")
		t.Args[0].write(sb)
	case TFixed:
		sb.WriteString("FIXD ")
		t.Args[0].write(sb)
		sb.WriteString(" => ")
		t.Args[1].write(sb)
	default:
		sb.WriteString(t.Kind.String())
	}
}
