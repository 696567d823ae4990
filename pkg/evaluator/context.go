package evaluator

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/session"
	"github.com/sandrolain/goirl/pkg/types"
)

// Session is the state of one top level invocation and of everything it
// calls: the request, the global frame and the error messages. A Session
// is used by one goroutine at a time.
type Session struct {
	REI    *session.RuleExecInfo
	Errors *types.ErrorList
	Global *Env

	// ID is returned by getGlobalSessionId.
	ID string
	// Temp backs temporaryStorage.
	Temp *msi.KeyValPair
	// SaveREI snapshots the request before each rule candidate and
	// restores it when the candidate fails.
	SaveREI bool

	region *types.Region
	depth  int
}

// NewSession returns a session over rei with an empty global frame. rei
// may be nil. Close releases the global region.
func NewSession(rei *session.RuleExecInfo, tracker *types.Tracker) *Session {
	if rei == nil {
		rei = &session.RuleExecInfo{}
	}
	r := types.NewRegion(tracker)
	return &Session{
		REI:    rei,
		Errors: &types.ErrorList{},
		Global: NewEnv(nil, r),
		ID:     uuid.NewString(),
		Temp:   &msi.KeyValPair{},
		region: r,
	}
}

// Region returns the region global values live in.
func (s *Session) Region() *types.Region {
	return s.region
}

// Close frees the session region. It is safe to call more than once.
func (s *Session) Close() {
	s.region.Free()
}

// CallContext is what a builtin sees of the evaluation in progress. Env
// is the frame of the caller: builtins read and write its variables.
// Region is released when the builtin returns; values that must survive
// are copied by the evaluator.
type CallContext struct {
	Context context.Context
	Eval    *Evaluator
	Session *Session
	Env     *Env
	Region  *types.Region
	// Node is the application being evaluated, nil for API calls.
	Node *types.AstNode

	// applyAll makes the rule dispatched with this context run every
	// applicable clause. applyAllNext sets it for the next application
	// only and applyAllRec for every nested one.
	applyAll     bool
	applyAllNext bool
	applyAllRec  bool
	cut          *bool
}

// Logger returns the evaluator logger.
func (c *CallContext) Logger() *slog.Logger {
	return c.Eval.logger
}

func (c *CallContext) with(r *types.Region, n *types.AstNode) *CallContext {
	cc := *c
	cc.Region = r
	cc.Node = n
	cc.applyAll = c.applyAllNext || c.applyAllRec
	cc.applyAllNext = false
	return &cc
}

func (c *CallContext) withRegion(r *types.Region) *CallContext {
	cc := *c
	cc.Region = r
	return &cc
}

func (c *CallContext) frame(env *Env, r *types.Region) *CallContext {
	cc := *c
	cc.Env = env
	cc.Region = r
	cc.applyAll = false
	cc.applyAllNext = false
	cc.cut = nil
	return &cc
}

// fail records a runtime error in the session message chain and returns
// it positioned at the current application.
func (c *CallContext) fail(code types.ErrorCode, format string, args ...any) error {
	err := types.Errorf(code, format, args...)
	if c.Node != nil {
		err = err.At(c.Node.Base, c.Node.Position)
	}
	c.Session.Errors.AddError(err)
	return err
}
