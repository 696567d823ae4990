package msi

import (
	"context"
	"testing"

	"github.com/matryer/is"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/sandrolain/goirl/pkg/types"
)

// addModule exports add(i64, i64) -> i64.
var addModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7e, 0x7e, 0x01, 0x7e, // type
	0x03, 0x02, 0x01, 0x00, // function
	0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00, // export
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x7c, 0x0b, // code
}

func TestParamConversion(t *testing.T) {
	tests := []struct {
		name string
		v    *types.Value
		tag  string
	}{
		{"string", &types.Value{Kind: types.KindString, Str: "a"}, StrMsT},
		{"path", &types.Value{Kind: types.KindPath, Str: "/z/a"}, StrMsT},
		{"int", &types.Value{Kind: types.KindInt, Int: 7}, IntMsT},
		{"double", &types.Value{Kind: types.KindDouble, Double: 1.5}, DoubleMsT},
		{"bool", &types.Value{Kind: types.KindBool, Bool: true}, BoolMsT},
		{"datetime", &types.Value{Kind: types.KindDatetime, Time: 1700000000}, DatetimeMsT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ToParam("*x", tt.v)
			if p.Type != tt.tag {
				t.Fatalf("got tag %s, want %s", p.Type, tt.tag)
			}
			back := FromParam(p, nil)
			if tt.v.Kind == types.KindPath {
				if back.Kind != types.KindString || back.Str != tt.v.Str {
					t.Fatalf("got %v", back)
				}
				return
			}
			if !back.Equal(tt.v) {
				t.Fatalf("got %v, want %v", back, tt.v)
			}
		})
	}
}

func TestNativeParams(t *testing.T) {
	is := is.New(t)
	kv := &KeyValPair{}
	kv.Set("a", "1")
	kv.Set("b", "2")
	kv.Set("a", "3")

	v := FromParam(&Param{Type: KeyValPairMsT, InOut: kv}, nil)
	is.Equal(v.Kind, types.KindIrods)
	is.Equal(v.Str, KeyValPairMsT)
	is.Equal(v.String(), "a=3++++b=2")

	p := ToParam("*kv", v)
	is.Equal(p.Type, KeyValPairMsT)
	is.True(p.InOut.(*KeyValPair) == kv) // passed through uncopied

	ts := FromParam(&Param{Type: DatetimeMsT, InOut: timestamppb.New(timestamppb.Now().AsTime())}, nil)
	is.Equal(ts.Kind, types.KindDatetime)

	is.Equal(FromParam(&Param{}, nil).Kind, types.KindUnspeced)
}

func TestParamArray(t *testing.T) {
	is := is.New(t)
	a := &ParamArray{}
	a.Add("*a", StrMsT, "x")
	a.Add("*b", IntMsT, int64(1))
	a.Add("*a", StrMsT, "y")
	is.Equal(a.Len(), 2)
	p, ok := a.Get("*a")
	is.True(ok)
	is.Equal(p.InOut, "y")

	out := &ExecCmdOut{}
	out.Stdout.WriteString("hello")
	a.Add("ruleExecOut", ExecCmdOutMsT, out)
	c := a.Clone()
	out.Stdout.WriteString(" world")
	cp, _ := c.Get("ruleExecOut")
	is.Equal(cp.InOut.(*ExecCmdOut).Stdout.String(), "hello")

	a.Remove("*b")
	is.Equal(a.Len(), 2)
	_, ok = a.Get("*b")
	is.True(!ok)
}

func TestTableCall(t *testing.T) {
	is := is.New(t)
	tab := NewTable()
	tab.Register(Def{Name: "msiConcat", Arity: 3, Fn: func(ctx context.Context, call *Call) error {
		a, _ := call.Params[0].InOut.(string)
		b, _ := call.Params[1].InOut.(string)
		call.Params[2].Type, call.Params[2].InOut = StrMsT, a+b
		return nil
	}})
	tab.Register(Def{Name: "msiFail", Arity: -1, Fn: func(ctx context.Context, call *Call) error {
		return Status(-808000, "%s failed", call.Name)
	}})

	params := []*Param{{Type: StrMsT, InOut: "a"}, {Type: StrMsT, InOut: "b"}, {}}
	is.NoErr(tab.Call(context.Background(), &Call{Name: "msiConcat", Params: params}))
	is.Equal(params[2].InOut, "ab")

	err := tab.Call(context.Background(), &Call{Name: "msiConcat", Params: params[:2]})
	is.Equal(types.CodeOf(err), types.ActionArgCountMismatch)

	err = tab.Call(context.Background(), &Call{Name: "msiFail"})
	is.Equal(int(types.CodeOf(err)), -808000)

	err = tab.Call(context.Background(), &Call{Name: "msiMissing"})
	is.Equal(types.CodeOf(err), types.NoMicroserviceFoundErr)

	is.Equal(tab.Names(), []string{"msiConcat", "msiFail"})
	is.NoErr(Status(0, "ok"))
}

func TestTableRateLimit(t *testing.T) {
	is := is.New(t)
	tab := NewTable(WithRateLimit(1, 1))
	calls := 0
	tab.Register(Def{Name: "tick", Arity: 0, Fn: func(ctx context.Context, call *Call) error {
		calls++
		return nil
	}})
	is.NoErr(tab.Call(context.Background(), &Call{Name: "tick"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tab.Call(ctx, &Call{Name: "tick"})
	is.Equal(types.CodeOf(err), types.ActionFailedErr)
	is.Equal(calls, 1)
}

func TestWasmHost(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	host := NewWasmHost(ctx)
	defer host.Close(ctx)

	tab := NewTable()
	names, err := host.Load(ctx, tab, "arith", addModule)
	is.NoErr(err)
	is.Equal(names, []string{"add"})

	params := []*Param{{Type: IntMsT, InOut: int64(40)}, {Type: IntMsT, InOut: int64(2)}, {}}
	is.NoErr(tab.Call(ctx, &Call{Name: "add", Params: params}))
	is.Equal(params[2].Type, IntMsT)
	is.Equal(params[2].InOut, int64(42))

	params[0] = &Param{Type: StrMsT, InOut: "x"}
	err = tab.Call(ctx, &Call{Name: "add", Params: params})
	is.Equal(types.CodeOf(err), types.UserParamTypeErr)

	_, err = host.Load(ctx, tab, "broken", []byte{0x00, 0x61})
	is.True(err != nil)
}
