package types

import (
	"sync/atomic"
	"unsafe"
)

// regionChunkSize is the number of Value slots pre-allocated per region chunk.
const regionChunkSize = 128

var valueSize = int(unsafe.Sizeof(Value{}))

// Tracker counts region allocations and releases. A balanced tracker
// (Live() == 0) after a top-level call shows that every region created
// during the call was freed on its exit path.
type Tracker struct {
	created atomic.Int64
	freed   atomic.Int64
}

// Created returns the number of regions created.
func (t *Tracker) Created() int64 { return t.created.Load() }

// Freed returns the number of regions freed.
func (t *Tracker) Freed() int64 { return t.freed.Load() }

// Live returns the number of regions created and not yet freed.
func (t *Tracker) Live() int64 { return t.created.Load() - t.freed.Load() }

// Region is a bump allocator scope for evaluation values.
//
// Every call frame allocates its values from its own region and releases
// the whole region when the frame exits:
//
//	r := types.NewRegion(tracker)
//	defer r.Free()
//	v := r.NewInt(42)
//	return caller.Copy(v) // survive the frame
//
// # Lifetime
//
// Values must not be used after their region is freed unless they were
// copied into a live region first. Allocating from a freed region panics.
//
// # Thread safety
//
// Region is NOT thread-safe. A region belongs to exactly one call frame.
//
// A nil *Region is valid and allocates every value on the heap; it is used
// for constants built outside any evaluation.
type Region struct {
	chunks  [][]Value
	pos     int
	bytes   int // payload bytes held by strings and element slices
	tracker *Tracker
	freed   bool
}

// NewRegion creates a region. tracker may be nil.
func NewRegion(tracker *Tracker) *Region {
	if tracker != nil {
		tracker.created.Add(1)
	}
	return &Region{
		chunks:  [][]Value{make([]Value, regionChunkSize)},
		tracker: tracker,
	}
}

// Free releases the region. Calling Free more than once has no effect.
func (r *Region) Free() {
	if r == nil || r.freed {
		return
	}
	r.freed = true
	r.chunks = nil
	if r.tracker != nil {
		r.tracker.freed.Add(1)
	}
}

// Freed reports whether the region has been released.
func (r *Region) Freed() bool {
	return r != nil && r.freed
}

// Size returns the approximate number of bytes held by the region.
func (r *Region) Size() int {
	if r == nil || r.freed {
		return 0
	}
	return ((len(r.chunks)-1)*regionChunkSize+r.pos)*valueSize + r.bytes
}

// Len returns the number of values allocated from the region.
func (r *Region) Len() int {
	if r == nil || r.freed {
		return 0
	}
	return (len(r.chunks)-1)*regionChunkSize + r.pos
}

func (r *Region) alloc(kind ValueKind) *Value {
	if r == nil {
		return &Value{Kind: kind}
	}
	if r.freed {
		panic("types: allocation from a freed region")
	}
	if r.pos >= regionChunkSize {
		r.chunks = append(r.chunks, make([]Value, regionChunkSize))
		r.pos = 0
	}
	v := &r.chunks[len(r.chunks)-1][r.pos]
	r.pos++
	v.Kind = kind
	return v
}

func (r *Region) account(n int) {
	if r != nil {
		r.bytes += n
	}
}

// NewInt allocates an integer.
func (r *Region) NewInt(i int64) *Value {
	v := r.alloc(KindInt)
	v.Int = i
	return v
}

// NewDouble allocates a double.
func (r *Region) NewDouble(d float64) *Value {
	v := r.alloc(KindDouble)
	v.Double = d
	return v
}

// NewBool allocates a boolean.
func (r *Region) NewBool(b bool) *Value {
	v := r.alloc(KindBool)
	v.Bool = b
	return v
}

// NewString allocates a string.
func (r *Region) NewString(s string) *Value {
	v := r.alloc(KindString)
	v.Str = s
	r.account(len(s))
	return v
}

// NewPath allocates a path.
func (r *Region) NewPath(s string) *Value {
	v := r.alloc(KindPath)
	v.Str = s
	r.account(len(s))
	return v
}

// NewDatetime allocates a datetime from Unix seconds.
func (r *Region) NewDatetime(sec int64) *Value {
	v := r.alloc(KindDatetime)
	v.Time = sec
	return v
}

// NewTuple allocates a tuple holding elems.
func (r *Region) NewTuple(elems ...*Value) *Value {
	v := r.alloc(KindTuple)
	v.Elems = elems
	r.account(len(elems) * 8)
	return v
}

// NewList allocates a list. elemType may be nil when elems is not empty.
func (r *Region) NewList(elemType *ExprType, elems ...*Value) *Value {
	v := r.alloc(KindCons)
	v.Str = ListName
	v.Elems = elems
	if elemType != nil {
		v.Type = NewListType(elemType)
	}
	r.account(len(elems) * 8)
	return v
}

// NewCons allocates a constructor value.
func (r *Region) NewCons(name string, typ *ExprType, elems ...*Value) *Value {
	v := r.alloc(KindCons)
	v.Str = name
	v.Type = typ
	v.Elems = elems
	r.account(len(elems) * 8)
	return v
}

// NewIrods allocates an opaque native value with the given type tag.
func (r *Region) NewIrods(tag string, native any) *Value {
	v := r.alloc(KindIrods)
	v.Str = tag
	v.Native = native
	return v
}

// NewUnspeced allocates an unspecified placeholder.
func (r *Region) NewUnspeced() *Value {
	return r.alloc(KindUnspeced)
}

// NewBreak allocates a break marker.
func (r *Region) NewBreak() *Value {
	return r.alloc(KindBreak)
}

// NewSuccess allocates a succeed marker.
func (r *Region) NewSuccess() *Value {
	return r.alloc(KindSuccess)
}

// NewAst wraps an unevaluated tree.
func (r *Region) NewAst(n *AstNode) *Value {
	v := r.alloc(KindAst)
	v.Node = n
	return v
}

// NewFuncSym allocates a function name value.
func (r *Region) NewFuncSym(name string) *Value {
	v := r.alloc(KindFuncSym)
	v.Str = name
	return v
}

// Copy deep-copies v into r. Irods payloads and AST references are shared.
func (r *Region) Copy(v *Value) *Value {
	if v == nil {
		return nil
	}
	c := r.alloc(v.Kind)
	*c = *v
	r.account(len(v.Str))
	if v.Elems != nil {
		c.Elems = make([]*Value, len(v.Elems))
		for i, e := range v.Elems {
			c.Elems[i] = r.Copy(e)
		}
		r.account(len(v.Elems) * 8)
	}
	return c
}
