package msi

import (
	"context"
	"sort"

	"golang.org/x/time/rate"

	"github.com/sandrolain/goirl/pkg/types"
)

// Func is a micro-service implementation. It reads its inputs from
// call.Params and writes its outputs back into them. A failure is
// reported as an error carrying the micro-service status code.
type Func func(ctx context.Context, call *Call) error

// Call is one micro-service invocation.
type Call struct {
	Name   string
	Params []*Param

	// Session is the rule execution info of the caller, passed through
	// opaquely.
	Session any
}

// Def describes a micro-service.
type Def struct {
	Name string
	// Arity is the number of parameters, or -1 for any.
	Arity int
	Fn    Func
}

// Status returns the error reported by a micro-service that returned a
// negative status. A status of zero or more is success.
func Status(code int, format string, args ...any) error {
	if code >= 0 {
		return nil
	}
	return types.Errorf(types.ErrorCode(code), format, args...)
}

// Table dispatches micro-service calls by name.
//
// Register all micro-services before the table is shared; lookups and
// calls are safe for concurrent use afterwards.
type Table struct {
	defs    map[string]Def
	limiter *rate.Limiter
}

// TableOption configures a Table.
type TableOption func(*Table)

// WithRateLimit throttles calls to perSecond with the given burst. A non
// positive rate disables throttling.
func WithRateLimit(perSecond float64, burst int) TableOption {
	return func(t *Table) {
		if perSecond <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewTable returns an empty table.
func NewTable(opts ...TableOption) *Table {
	t := &Table{defs: make(map[string]Def)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds or replaces micro-services.
func (t *Table) Register(defs ...Def) {
	for _, d := range defs {
		t.defs[d.Name] = d
	}
}

// Lookup returns the micro-service registered under name.
func (t *Table) Lookup(name string) (Def, bool) {
	if t == nil {
		return Def{}, false
	}
	d, ok := t.defs[name]
	return d, ok
}

// Names returns the registered names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.defs))
	for n := range t.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call runs the micro-service named call.Name, waiting for the rate
// limiter first.
func (t *Table) Call(ctx context.Context, call *Call) error {
	d, ok := t.Lookup(call.Name)
	if !ok {
		return types.Errorf(types.NoMicroserviceFoundErr, "no micro-service found for %s", call.Name)
	}
	if d.Arity >= 0 && d.Arity != len(call.Params) {
		return types.Errorf(types.ActionArgCountMismatch,
			"micro-service %s expects %d arguments, got %d", call.Name, d.Arity, len(call.Params))
	}
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return types.Errorf(types.ActionFailedErr, "micro-service %s: %v", call.Name, err).WithCause(err)
		}
	}
	return d.Fn(ctx, call)
}
