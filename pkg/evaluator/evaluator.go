package evaluator

// Package evaluator runs rule language actions, rules and expressions.
//
// The evaluator receives trees produced by the parser and annotated by the
// type checker, and evaluates them against a Session: the request state,
// the global variable frame and the accumulated error messages. It
// supports:
//   - Action sequences with recovery, break, succeed and cut
//   - Rule dispatch over ordered candidate clauses with condition indexes
//   - Builtins, constructors, micro-services and patterns
//   - Region scoped allocation, freed on every exit path
//   - Cancellation via context.Context, checked between actions
//
// # Example
//
//	prog, _ := evaluator.NewProgram(evaluator.NewRuleBase("core", set))
//	ev := evaluator.New(prog, evaluator.WithLogger(logger))
//	s := evaluator.NewSession(rei, nil)
//	defer s.Close()
//	result, err := ev.Call(ctx, s, "acPostProcForPut")

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandrolain/goirl/pkg/cache"
	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/session"
	"github.com/sandrolain/goirl/pkg/types"
)

// Defaults of EvalOptions.
const (
	DefaultGCBlockSize = 65536
	DefaultMaxDepth    = 1000
)

// Evaluator evaluates rules and actions of a Program. It holds no per
// request state and can be shared by concurrent sessions.
type Evaluator struct {
	prog   *Program
	opts   EvalOptions
	logger *slog.Logger
}

// EvalOptions configures evaluator behavior.
type EvalOptions struct {
	// Logger for structured logging. writeLine("serverLog", ...) writes
	// here at Info level.
	Logger *slog.Logger
	// GCBlockSize is the size in bytes above which a loop compacts the
	// region holding its variables.
	GCBlockSize int
	// MaxDepth limits nested rule calls.
	MaxDepth int
	// Tracker counts created and freed regions when non-nil.
	Tracker *types.Tracker
	// VarMap resolves session variables. Defaults to session.DefaultVarMap.
	VarMap *session.VarMap
	// Microservices is the table unknown names are dispatched to.
	Microservices *msi.Table
	// Scheduler receives delayExec bodies. Defaults to an in-memory queue.
	Scheduler Scheduler
	// Remote runs remoteExec bodies. When nil they run in place.
	Remote Remote
	// Querier answers select queries and collection listings.
	Querier Querier
	// Cache holds compiled eval and remoteExec bodies.
	Cache *cache.Cache
	// Now returns the current time for the time builtin.
	Now func() time.Time
}

// EvalOption configures an Evaluator.
type EvalOption func(*EvalOptions)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EvalOption {
	return func(o *EvalOptions) { o.Logger = l }
}

// WithGCBlockSize sets the loop compaction threshold in bytes.
func WithGCBlockSize(n int) EvalOption {
	return func(o *EvalOptions) { o.GCBlockSize = n }
}

// WithMaxDepth sets the rule call depth limit.
func WithMaxDepth(n int) EvalOption {
	return func(o *EvalOptions) { o.MaxDepth = n }
}

// WithTracker counts regions in t.
func WithTracker(t *types.Tracker) EvalOption {
	return func(o *EvalOptions) { o.Tracker = t }
}

// WithVarMap sets the session variable map.
func WithVarMap(m *session.VarMap) EvalOption {
	return func(o *EvalOptions) { o.VarMap = m }
}

// WithMicroservices sets the micro-service table.
func WithMicroservices(t *msi.Table) EvalOption {
	return func(o *EvalOptions) { o.Microservices = t }
}

// WithScheduler sets the delayExec hook.
func WithScheduler(s Scheduler) EvalOption {
	return func(o *EvalOptions) { o.Scheduler = s }
}

// WithRemote sets the remoteExec hook.
func WithRemote(r Remote) EvalOption {
	return func(o *EvalOptions) { o.Remote = r }
}

// WithQuerier sets the query hook.
func WithQuerier(q Querier) EvalOption {
	return func(o *EvalOptions) { o.Querier = q }
}

// WithCache sets the compiled expression cache.
func WithCache(c *cache.Cache) EvalOption {
	return func(o *EvalOptions) { o.Cache = c }
}

// WithClock sets the clock used by the time builtin.
func WithClock(now func() time.Time) EvalOption {
	return func(o *EvalOptions) { o.Now = now }
}

// New creates an Evaluator over prog.
func New(prog *Program, opts ...EvalOption) *Evaluator {
	options := EvalOptions{
		GCBlockSize: DefaultGCBlockSize,
		MaxDepth:    DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.GCBlockSize <= 0 {
		options.GCBlockSize = DefaultGCBlockSize
	}
	if options.MaxDepth <= 0 {
		options.MaxDepth = DefaultMaxDepth
	}
	if options.VarMap == nil {
		options.VarMap = session.DefaultVarMap()
	}
	if options.Microservices == nil {
		options.Microservices = msi.NewTable()
	}
	if options.Scheduler == nil {
		options.Scheduler = NewQueue()
	}
	if options.Cache == nil {
		options.Cache = cache.New(cache.DefaultCapacity)
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if prog == nil {
		prog, _ = NewProgram()
	}
	initBuiltinFunctions()
	return &Evaluator{prog: prog, opts: options, logger: options.Logger}
}

// Program returns the program the evaluator runs.
func (e *Evaluator) Program() *Program {
	return e.prog
}

// Options returns the effective options.
func (e *Evaluator) Options() EvalOptions {
	return e.opts
}

// Logger returns the evaluator logger.
func (e *Evaluator) Logger() *slog.Logger {
	return e.logger
}

// Signature resolves function types for the type checker.
func (e *Evaluator) Signature(name string) (*types.ExprType, bool) {
	return e.prog.Signature(name)
}

// CompileActions parses and types an action sequence. Results are
// cached by source text.
func (e *Evaluator) CompileActions(src string) (*types.Expression, error) {
	return e.compile(src, true)
}

// CompileExpression parses and types a single expression.
func (e *Evaluator) CompileExpression(src string) (*types.Expression, error) {
	return e.compile(src, false)
}

func (e *Evaluator) newRegion() *types.Region {
	return types.NewRegion(e.opts.Tracker)
}

// Eval evaluates a typed tree in the global frame of s. The result is
// copied into the session region and stays valid until s is closed.
func (e *Evaluator) Eval(ctx context.Context, s *Session, node *types.AstNode) (*types.Value, error) {
	r := e.newRegion()
	defer r.Free()
	c := e.callContext(ctx, s, s.Global, r)
	v, err := e.evalNode(c, node)
	if err != nil {
		return nil, uncut(err)
	}
	return s.region.Copy(v), nil
}

// Call invokes the function, rule or micro-service name with evaluated
// arguments. Output arguments are written back into args.
func (e *Evaluator) Call(ctx context.Context, s *Session, name string, args ...*types.Value) (*types.Value, error) {
	r := e.newRegion()
	defer r.Free()
	c := e.callContext(ctx, s, s.Global, r)
	for i, a := range args {
		args[i] = r.Copy(a)
	}
	v, err := e.dispatch(c, name, args)
	for i, a := range args {
		args[i] = s.region.Copy(a)
	}
	if err != nil {
		return nil, uncut(err)
	}
	return s.region.Copy(v), nil
}

// ApplyAll runs every applicable clause of name instead of the first one
// that succeeds.
func (e *Evaluator) ApplyAll(ctx context.Context, s *Session, name string, args ...*types.Value) (*types.Value, error) {
	r := e.newRegion()
	defer r.Free()
	c := e.callContext(ctx, s, s.Global, r)
	c.applyAll = true
	v, err := e.execRule(c, name, args)
	if err != nil {
		return nil, err
	}
	return s.region.Copy(v), nil
}

func (e *Evaluator) callContext(ctx context.Context, s *Session, env *Env, r *types.Region) *CallContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &CallContext{Context: ctx, Eval: e, Session: s, Env: env, Region: r}
}
