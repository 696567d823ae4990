package evaluator

import (
	"sort"

	"github.com/sandrolain/goirl/pkg/types"
)

// Env is one variable frame. Lookups walk the parent chain up to the
// global frame. Values stored in a frame live in its region.
type Env struct {
	vars   map[string]*types.Value
	parent *Env
	region *types.Region
}

// NewEnv returns an empty frame allocating in r.
func NewEnv(parent *Env, r *types.Region) *Env {
	return &Env{vars: make(map[string]*types.Value), parent: parent, region: r}
}

// Parent returns the enclosing frame.
func (e *Env) Parent() *Env {
	return e.parent
}

// Region returns the region the frame stores values in.
func (e *Env) Region() *types.Region {
	return e.region
}

// Lookup finds name in this frame or an enclosing one.
func (e *Env) Lookup(name string) (*types.Value, bool) {
	for f := e; f != nil; f = f.parent {
		if v, ok := f.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Own returns name only if it is bound in this frame.
func (e *Env) Own(name string) (*types.Value, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Update assigns name in the frame where it is visible, or binds it in
// this frame.
func (e *Env) Update(name string, v *types.Value) {
	for f := e; f != nil; f = f.parent {
		if _, ok := f.vars[name]; ok {
			f.vars[name] = f.region.Copy(v)
			return
		}
	}
	e.vars[name] = e.region.Copy(v)
}

// Bind assigns name in this frame, shadowing enclosing frames.
func (e *Env) Bind(name string, v *types.Value) {
	e.vars[name] = e.region.Copy(v)
}

// Names returns the names bound in this frame in sorted order.
func (e *Env) Names() []string {
	names := make([]string, 0, len(e.vars))
	for n := range e.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// rehome copies every value of the frame into r and makes r the frame
// region. The previous region can be freed afterwards.
func (e *Env) rehome(r *types.Region) {
	for n, v := range e.vars {
		e.vars[n] = r.Copy(v)
	}
	e.region = r
}
