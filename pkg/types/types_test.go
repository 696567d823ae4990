package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestRegionCopySurvivesFree(t *testing.T) {
	tr := &Tracker{}
	parent := NewRegion(tr)
	defer parent.Free()

	child := NewRegion(tr)
	v := child.NewList(nil, child.NewInt(1), child.NewString("two"))
	kept := parent.Copy(v)
	child.Free()

	if !child.Freed() {
		t.Fatal("expected child region to be freed")
	}
	if got := kept.String(); got != "[1,two]" {
		t.Fatalf("unexpected copy %q", got)
	}
	if kept.Elems[0] == v.Elems[0] {
		t.Fatal("expected a deep copy")
	}
	if got := tr.Live(); got != 1 {
		t.Fatalf("expected 1 live region, got %d", got)
	}
}

func TestRegionDoubleFree(t *testing.T) {
	tr := &Tracker{}
	r := NewRegion(tr)
	r.Free()
	r.Free()
	if tr.Freed() != 1 {
		t.Fatalf("expected one free, got %d", tr.Freed())
	}
}

func TestRegionAllocAfterFreePanics(t *testing.T) {
	r := NewRegion(nil)
	r.Free()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.NewInt(1)
}

func TestRegionGrowsChunks(t *testing.T) {
	r := NewRegion(nil)
	defer r.Free()
	for i := 0; i < regionChunkSize*3+1; i++ {
		r.NewInt(int64(i))
	}
	if got := r.Len(); got != regionChunkSize*3+1 {
		t.Fatalf("expected %d values, got %d", regionChunkSize*3+1, got)
	}
	if r.Size() <= 0 {
		t.Fatal("expected positive size")
	}
}

func TestNilRegionAllocates(t *testing.T) {
	var r *Region
	if v := r.NewBool(true); !v.Bool || v.Kind != KindBool {
		t.Fatalf("unexpected value %+v", v)
	}
	r.Free()
}

func TestValueString(t *testing.T) {
	var r *Region
	tests := []struct {
		name string
		v    *Value
		want string
	}{
		{"int", r.NewInt(42), "42"},
		{"integral double", r.NewDouble(3), "3"},
		{"double", r.NewDouble(2.5), "2.500000"},
		{"bool", r.NewBool(false), "false"},
		{"string", r.NewString("abc"), "abc"},
		{"list", r.NewList(nil, r.NewInt(1), r.NewInt(2)), "[1,2]"},
		{"unspeced", r.NewUnspeced(), "<undefined>"},
		{"datetime", r.NewDatetime(0), "1970-01-01 00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValueTypeOf(t *testing.T) {
	var r *Region
	tests := []struct {
		v    *Value
		want string
	}{
		{r.NewInt(1), "INTEGER"},
		{r.NewString("s"), "STRING"},
		{r.NewList(nil, r.NewInt(1)), "list (INTEGER)"},
		{r.NewList(NewSimpleType(TString)), "list (STRING)"},
		{r.NewTuple(r.NewInt(1), r.NewDouble(1)), "INTEGER * DOUBLE"},
		{r.NewIrods("KeyValPair_PI", nil), "KeyValPair_PI"},
	}
	for _, tt := range tests {
		if got := tt.v.TypeOf().String(); got != tt.want {
			t.Errorf("TypeOf(%s) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestValueEqual(t *testing.T) {
	var r *Region
	a := r.NewTuple(r.NewInt(1), r.NewString("x"))
	b := r.NewTuple(r.NewInt(1), r.NewString("x"))
	c := r.NewTuple(r.NewInt(2), r.NewString("x"))
	if !a.Equal(b) {
		t.Fatal("expected equal tuples")
	}
	if a.Equal(c) {
		t.Fatal("expected different tuples")
	}
	if r.NewIrods("T", []int{1}).Equal(r.NewIrods("T", []int{1})) {
		t.Fatal("uncomparable payloads must not be equal")
	}
}

func TestExprTypeString(t *testing.T) {
	x := NewTVar(3, NewSimpleType(TInt), NewSimpleType(TDouble))
	fn := NewFuncType(NewTupleType(NewFlexType(x), NewFlexType(x)), x, VarargOnce)
	if got := fn.String(); got != "(FLEX VAR 3{INTEGER DOUBLE} * FLEX VAR 3{INTEGER DOUBLE})->VAR 3{INTEGER DOUBLE}" {
		t.Fatalf("unexpected %q", got)
	}
	if got := NewTupleType().String(); got != "unit" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestExprTypeEqual(t *testing.T) {
	a := NewListType(NewSimpleType(TInt))
	b := NewListType(NewSimpleType(TInt).WithIO(IOOutput))
	if !a.Equal(b) {
		t.Fatal("I/O flags must not affect equality")
	}
	if a.Equal(NewListType(NewSimpleType(TString))) {
		t.Fatal("expected different element types")
	}
	if !NewIrodsType("A").Equal(NewIrodsType("A")) || NewIrodsType("A").Equal(NewIrodsType("B")) {
		t.Fatal("irods types compare by tag")
	}
}

func TestErrorCodeOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(RePatternNotMatched, "pattern not matched"))
	if got := CodeOf(err); got != RePatternNotMatched {
		t.Fatalf("unexpected code %s", got)
	}
	if CodeOf(nil) != Success {
		t.Fatal("nil error must be success")
	}
	if CodeOf(errors.New("plain")) != ReUnknownError {
		t.Fatal("plain errors map to RE_UNKNOWN_ERROR")
	}
	if !IsCode(err, RePatternNotMatched) {
		t.Fatal("IsCode mismatch")
	}
}

func TestErrorFormat(t *testing.T) {
	e := NewError(ReParserError, "unexpected token").At("core", 12)
	if got := e.Error(); got != "RE_PARSER_ERROR at core:12: unexpected token" {
		t.Fatalf("unexpected %q", got)
	}
	if got := ErrorCode(-42).String(); got != "-42" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestErrorList(t *testing.T) {
	var l ErrorList
	l.Add(ReTypeError, "first")
	l.AddError(NewError(ReRuntimeError, "second"))
	if l.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", l.Len())
	}
	if got := l.String(); got != "Level 0: first\nLevel 1: RE_RUNTIME_ERROR: second" {
		t.Fatalf("unexpected %q", got)
	}
	l.Clear()
	if l.Len() != 0 {
		t.Fatal("expected empty list")
	}
}

func TestRuleKindTag(t *testing.T) {
	for _, k := range []RuleKind{RuleFunc, RuleData, RuleConstr, RuleExtern, RuleRel} {
		got, ok := RuleKindFromTag(k.Tag())
		if !ok || got != k {
			t.Errorf("round trip of %s failed: %s", k, got)
		}
	}
	if _, ok := RuleKindFromTag("@BOGUS"); ok {
		t.Fatal("unknown tag accepted")
	}
}

func TestNodeArena(t *testing.T) {
	a := NewNodeArena()
	for i := 0; i < arenaChunkSize+5; i++ {
		n := a.Alloc(NodeInt, "1", i)
		if n.IO != IOInput || n.Position != i {
			t.Fatalf("unexpected node %+v", n)
		}
	}
	if a.Len() != arenaChunkSize+5 {
		t.Fatalf("unexpected len %d", a.Len())
	}
}
