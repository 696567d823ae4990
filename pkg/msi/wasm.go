package msi

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sandrolain/goirl/pkg/types"
)

// WasmHost runs micro-services exported by WebAssembly modules.
//
// Every exported function with numeric parameters becomes a micro-service
// of the same name. Its inputs are the first parameters of the call, in
// order; a function with a result takes one more parameter, which
// receives the result. Integers travel as i32 or i64 and doubles as f32
// or f64.
type WasmHost struct {
	runtime wazero.Runtime
	modules []api.Module
}

// NewWasmHost creates a host with its own runtime.
func NewWasmHost(ctx context.Context) *WasmHost {
	return &WasmHost{runtime: wazero.NewRuntime(ctx)}
}

// Load compiles and instantiates a module and registers its exported
// functions in t. It returns the names registered.
func (h *WasmHost) Load(ctx context.Context, t *Table, name string, wasm []byte) ([]string, error) {
	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrapf(err, "compile wasm module %s", name)
	}
	mod, err := h.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Wrapf(err, "instantiate wasm module %s", name)
	}
	h.modules = append(h.modules, mod)

	var names []string
	for fname, def := range compiled.ExportedFunctions() {
		if !numeric(def.ParamTypes()) || len(def.ResultTypes()) > 1 || !numeric(def.ResultTypes()) {
			continue
		}
		fn := mod.ExportedFunction(fname)
		arity := len(def.ParamTypes()) + len(def.ResultTypes())
		t.Register(Def{Name: fname, Arity: arity, Fn: wasmFunc(fname, fn, def)})
		names = append(names, fname)
	}
	return names, nil
}

// Close releases every module of the host.
func (h *WasmHost) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

func numeric(ts []api.ValueType) bool {
	for _, t := range ts {
		switch t {
		case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64:
		default:
			return false
		}
	}
	return true
}

func wasmFunc(name string, fn api.Function, def api.FunctionDefinition) Func {
	params := def.ParamTypes()
	results := def.ResultTypes()
	return func(ctx context.Context, call *Call) error {
		in := make([]uint64, len(params))
		for i, pt := range params {
			v, err := encode(call.Params[i], pt)
			if err != nil {
				return types.Errorf(types.UserParamTypeErr, "%s: argument %d: %v", name, i+1, err)
			}
			in[i] = v
		}
		out, err := fn.Call(ctx, in...)
		if err != nil {
			return types.Errorf(types.ActionFailedErr, "%s: %v", name, err).WithCause(err)
		}
		if len(results) == 1 {
			decode(call.Params[len(params)], results[0], out[0])
		}
		return nil
	}
}

func encode(p *Param, t api.ValueType) (uint64, error) {
	var i int64
	var d float64
	switch v := p.InOut.(type) {
	case int64:
		i, d = v, float64(v)
	case int:
		i, d = int64(v), float64(v)
	case int32:
		i, d = int64(v), float64(v)
	case float64:
		i, d = int64(v), v
	case bool:
		if v {
			i, d = 1, 1
		}
	default:
		return 0, errors.Errorf("%s is not numeric", p.Type)
	}
	switch t {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(i)), nil
	case api.ValueTypeF32:
		return api.EncodeF32(float32(d)), nil
	case api.ValueTypeF64:
		return api.EncodeF64(d), nil
	}
	return api.EncodeI64(i), nil
}

func decode(p *Param, t api.ValueType, v uint64) {
	switch t {
	case api.ValueTypeI32:
		p.Type, p.InOut = IntMsT, int64(api.DecodeI32(v))
	case api.ValueTypeF32:
		p.Type, p.InOut = DoubleMsT, float64(api.DecodeF32(v))
	case api.ValueTypeF64:
		p.Type, p.InOut = DoubleMsT, api.DecodeF64(v)
	default:
		p.Type, p.InOut = IntMsT, int64(v)
	}
}
