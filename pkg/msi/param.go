// Package msi defines the micro-service calling convention: labelled,
// typed parameters exchanged with native and WASM micro-services, and the
// table that dispatches calls by name.
package msi

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/sandrolain/goirl/pkg/types"
)

// Parameter type tags.
const (
	StrMsT        = "STR_MS_T"
	IntMsT        = "INT_MS_T"
	DoubleMsT     = "DOUBLE_MS_T"
	BoolMsT       = "BOOL_MS_T"
	DatetimeMsT   = "DATETIME_MS_T"
	KeyValPairMsT = "KeyValPair_MS_T"
	ExecCmdOutMsT = "ExecCmdOut_PI"
)

// Param is one micro-service argument.
type Param struct {
	Label string
	Type  string
	InOut any
}

func (p *Param) String() string {
	return fmt.Sprintf("%s(%s)=%v", p.Label, p.Type, p.InOut)
}

// ParamArray is the labelled parameter list passed in by the caller of a
// rule and shared with the micro-services it runs.
type ParamArray struct {
	Params []*Param
}

// Add appends a parameter, replacing an existing one with the same label.
func (a *ParamArray) Add(label, typ string, v any) *Param {
	if p, ok := a.Get(label); ok {
		p.Type, p.InOut = typ, v
		return p
	}
	p := &Param{Label: label, Type: typ, InOut: v}
	a.Params = append(a.Params, p)
	return p
}

// Get returns the parameter with the given label.
func (a *ParamArray) Get(label string) (*Param, bool) {
	if a == nil {
		return nil, false
	}
	for _, p := range a.Params {
		if p.Label == label {
			return p, true
		}
	}
	return nil, false
}

// Remove deletes the parameter with the given label.
func (a *ParamArray) Remove(label string) {
	for i, p := range a.Params {
		if p.Label == label {
			a.Params = append(a.Params[:i], a.Params[i+1:]...)
			return
		}
	}
}

// Len returns the number of parameters.
func (a *ParamArray) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Params)
}

// Clone copies the array and its parameters. Key-value pairs and command
// output buffers are copied; other payloads are shared.
func (a *ParamArray) Clone() *ParamArray {
	if a == nil {
		return nil
	}
	c := &ParamArray{Params: make([]*Param, len(a.Params))}
	for i, p := range a.Params {
		cp := *p
		switch v := p.InOut.(type) {
		case *KeyValPair:
			cp.InOut = v.Clone()
		case *ExecCmdOut:
			cp.InOut = v.Clone()
		}
		c.Params[i] = &cp
	}
	return c
}

// KeyValPair is an ordered string map.
type KeyValPair struct {
	Keys   []string
	Values []string
}

// Get returns the value of key.
func (kv *KeyValPair) Get(key string) (string, bool) {
	if kv == nil {
		return "", false
	}
	for i, k := range kv.Keys {
		if k == key {
			return kv.Values[i], true
		}
	}
	return "", false
}

// Set adds key or replaces its value.
func (kv *KeyValPair) Set(key, value string) {
	for i, k := range kv.Keys {
		if k == key {
			kv.Values[i] = value
			return
		}
	}
	kv.Keys = append(kv.Keys, key)
	kv.Values = append(kv.Values, value)
}

// Len returns the number of pairs.
func (kv *KeyValPair) Len() int {
	if kv == nil {
		return 0
	}
	return len(kv.Keys)
}

// Clone copies the pairs.
func (kv *KeyValPair) Clone() *KeyValPair {
	if kv == nil {
		return nil
	}
	return &KeyValPair{
		Keys:   append([]string(nil), kv.Keys...),
		Values: append([]string(nil), kv.Values...),
	}
}

// String renders the pairs as k=v joined by "++++".
func (kv *KeyValPair) String() string {
	parts := make([]string, kv.Len())
	for i := range parts {
		parts[i] = kv.Keys[i] + "=" + kv.Values[i]
	}
	return strings.Join(parts, "++++")
}

// ExecCmdOut collects what writeLine and writeString send to stdout and
// stderr.
type ExecCmdOut struct {
	Stdout strings.Builder
	Stderr strings.Builder
}

// Clone copies the buffers.
func (o *ExecCmdOut) Clone() *ExecCmdOut {
	c := &ExecCmdOut{}
	c.Stdout.WriteString(o.Stdout.String())
	c.Stderr.WriteString(o.Stderr.String())
	return c
}

// ToParam converts an evaluated argument to a parameter. Native values
// pass through under their own type tag.
func ToParam(label string, v *types.Value) *Param {
	p := &Param{Label: label}
	SetParam(p, v)
	return p
}

// SetParam stores v into p, keeping the label.
func SetParam(p *Param, v *types.Value) {
	switch v.Kind {
	case types.KindString, types.KindPath:
		p.Type, p.InOut = StrMsT, v.Str
	case types.KindInt:
		p.Type, p.InOut = IntMsT, v.Int
	case types.KindDouble:
		p.Type, p.InOut = DoubleMsT, v.Double
	case types.KindBool:
		p.Type, p.InOut = BoolMsT, v.Bool
	case types.KindDatetime:
		p.Type, p.InOut = DatetimeMsT, timestamppb.New(time.Unix(v.Time, 0))
	case types.KindIrods:
		p.Type, p.InOut = v.Str, v.Native
	case types.KindUnspeced:
		p.Type, p.InOut = "", nil
	default:
		p.Type, p.InOut = StrMsT, v.String()
	}
}

// FromParam converts a parameter back to a value allocated in r. A
// parameter without a type is unspeced.
func FromParam(p *Param, r *types.Region) *types.Value {
	switch p.Type {
	case "":
		return r.NewUnspeced()
	case StrMsT:
		if s, ok := p.InOut.(string); ok {
			return r.NewString(s)
		}
	case IntMsT:
		switch i := p.InOut.(type) {
		case int64:
			return r.NewInt(i)
		case int:
			return r.NewInt(int64(i))
		case int32:
			return r.NewInt(int64(i))
		}
	case DoubleMsT:
		switch d := p.InOut.(type) {
		case float64:
			return r.NewDouble(d)
		case float32:
			return r.NewDouble(float64(d))
		}
	case BoolMsT:
		if b, ok := p.InOut.(bool); ok {
			return r.NewBool(b)
		}
	case DatetimeMsT:
		if ts, ok := p.InOut.(*timestamppb.Timestamp); ok {
			return r.NewDatetime(ts.AsTime().Unix())
		}
	}
	return r.NewIrods(p.Type, p.InOut)
}
