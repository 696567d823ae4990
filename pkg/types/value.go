package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	KindUnspeced ValueKind = iota // output placeholder, unbound value
	KindInt
	KindDouble
	KindBool
	KindString
	KindPath
	KindDatetime
	KindTuple
	KindCons // constructor value; lists are cons values named "list"
	KindIrods
	KindBreak   // break control marker
	KindSuccess // succeed control marker
	KindAst     // unevaluated expression or action block
	KindFuncSym // function name used as a value
)

var valueKindNames = [...]string{
	KindUnspeced: "unspeced",
	KindInt:      "integer",
	KindDouble:   "double",
	KindBool:     "boolean",
	KindString:   "string",
	KindPath:     "path",
	KindDatetime: "time",
	KindTuple:    "tuple",
	KindCons:     "cons",
	KindIrods:    "irods",
	KindBreak:    "break",
	KindSuccess:  "success",
	KindAst:      "ast",
	KindFuncSym:  "function",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "unknown"
}

// DatetimeLayout is the default rendering of datetime values.
const DatetimeLayout = "2006-01-02 15:04:05"

// Value is an evaluation result.
//
// Values are allocated from a Region. A value that must outlive the region
// it was created in is deep-copied into the destination region with
// Region.Copy.
type Value struct {
	Kind   ValueKind
	Int    int64
	Double float64
	Bool   bool
	Str    string // string and path text, cons name, irods type tag, function name
	Time   int64  // datetime, seconds since the Unix epoch
	Elems  []*Value
	Type   *ExprType // declared type of cons and list values, nil otherwise
	Native any       // payload of irods values
	Node   *AstNode  // unevaluated tree of KindAst values
}

// IsControl reports whether v is a break or success marker.
func (v *Value) IsControl() bool {
	return v.Kind == KindBreak || v.Kind == KindSuccess
}

// IsList reports whether v is a list.
func (v *Value) IsList() bool {
	return v.Kind == KindCons && v.Str == ListName
}

// AsDouble returns the numeric value of an int, double or bool.
func (v *Value) AsDouble() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.Int)
	case KindDouble:
		return v.Double
	case KindBool:
		if v.Bool {
			return 1
		}
	case KindDatetime:
		return float64(v.Time)
	}
	return 0
}

// AsInt returns the integer value of an int, double or bool.
func (v *Value) AsInt() int64 {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindDouble:
		return int64(v.Double)
	case KindBool:
		if v.Bool {
			return 1
		}
	case KindDatetime:
		return v.Time
	}
	return 0
}

// TypeOf returns the runtime type of v.
func (v *Value) TypeOf() *ExprType {
	switch v.Kind {
	case KindInt:
		return NewSimpleType(TInt)
	case KindDouble:
		return NewSimpleType(TDouble)
	case KindBool:
		return NewSimpleType(TBool)
	case KindString:
		return NewSimpleType(TString)
	case KindPath:
		return NewSimpleType(TPath)
	case KindDatetime:
		return NewSimpleType(TDatetime)
	case KindIrods:
		return NewIrodsType(v.Str)
	case KindTuple:
		args := make([]*ExprType, len(v.Elems))
		for i, e := range v.Elems {
			args[i] = e.TypeOf()
		}
		return NewTupleType(args...)
	case KindCons:
		if v.Type != nil {
			return v.Type
		}
		if v.Str == ListName {
			if len(v.Elems) == 0 {
				return NewListType(NewSimpleType(TUnspeced))
			}
			return NewListType(v.Elems[0].TypeOf())
		}
		args := make([]*ExprType, len(v.Elems))
		for i, e := range v.Elems {
			args[i] = e.TypeOf()
		}
		return NewConsType(v.Str, args...)
	case KindUnspeced:
		return NewSimpleType(TUnspeced)
	}
	return NewSimpleType(TDynamic)
}

// String renders v the way str and writeLine print values.
func (v *Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindDouble:
		if v.Double == math.Trunc(v.Double) && !math.IsInf(v.Double, 0) {
			return strconv.FormatInt(int64(v.Double), 10)
		}
		return strconv.FormatFloat(v.Double, 'f', 6, 64)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindString, KindPath:
		return v.Str
	case KindDatetime:
		return time.Unix(v.Time, 0).UTC().Format(DatetimeLayout)
	case KindCons, KindTuple:
		var sb strings.Builder
		lb, rb := "[", "]"
		if v.Kind == KindTuple {
			lb, rb = "(", ")"
		}
		sb.WriteString(lb)
		for i, e := range v.Elems {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(e.String())
		}
		sb.WriteString(rb)
		return sb.String()
	case KindIrods:
		if s, ok := v.Native.(fmt.Stringer); ok {
			return s.String()
		}
		return "<value>"
	case KindUnspeced:
		return "<undefined>"
	case KindAst:
		return v.Node.String()
	case KindFuncSym:
		return v.Str
	}
	return v.Kind.String()
}

// Equal reports whether two values are definitely equal.
func (v *Value) Equal(o *Value) bool {
	if v == o {
		return true
	}
	if v == nil || o == nil || v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindDouble:
		return v.Double == o.Double
	case KindBool:
		return v.Bool == o.Bool
	case KindString, KindPath, KindFuncSym:
		return v.Str == o.Str
	case KindDatetime:
		return v.Time == o.Time
	case KindTuple, KindCons:
		if v.Str != o.Str || len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	case KindIrods:
		return v.Str == o.Str && sameNative(v.Native, o.Native)
	case KindAst:
		return v.Node == o.Node
	}
	return true
}

// sameNative compares irods payloads by identity. Payloads that are not
// comparable are never equal.
func sameNative(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
