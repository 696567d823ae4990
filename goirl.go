// Package goirl is a Go implementation of the iRODS rule language engine.
//
// An Engine loads rule bases, checks their types, indexes their clauses and
// runs rules on behalf of the server: policy enforcement points such as
// acPostProcForPut are applied with ApplyRule, and standalone action
// sequences (the input of irule) with Exec.
//
// # Quick Start
//
//	eng := goirl.New(goirl.WithLogger(logger), goirl.WithCondIndex(true))
//	err := eng.Load(ctx,
//	    goirl.Source{Base: "core", Text: coreRules},
//	    goirl.Source{Base: "app", Text: appRules},
//	)
//
//	rei := &session.RuleExecInfo{DataObj: &session.DataObjInfo{ObjPath: "/tempZone/home/rods/f"}}
//	status, err := eng.ApplyRule(ctx, "acPostProcForPut", nil, rei, true)
//
// # Concurrency
//
// The loaded rules form an immutable Snapshot shared by every caller.
// Reload, AddRules and ClearAppRules build a new snapshot and swap it in
// atomically; calls already running keep the snapshot they started with.
// A Session belongs to one goroutine.
//
// # More Information
//
//   - Parser: github.com/sandrolain/goirl/pkg/parser
//   - Type checker: github.com/sandrolain/goirl/pkg/typing
//   - Rule index: github.com/sandrolain/goirl/pkg/index
//   - Evaluator: github.com/sandrolain/goirl/pkg/evaluator
//   - Micro-services: github.com/sandrolain/goirl/pkg/msi
//   - Rule catalog: github.com/sandrolain/goirl/pkg/catalog
package goirl

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/sandrolain/goirl/pkg/cache"
	"github.com/sandrolain/goirl/pkg/catalog"
	"github.com/sandrolain/goirl/pkg/evaluator"
	"github.com/sandrolain/goirl/pkg/index"
	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/session"
	"github.com/sandrolain/goirl/pkg/types"
	"github.com/sandrolain/goirl/pkg/typing"
)

// Version returns the current version of goirl.
func Version() string {
	return "v0.1.0-dev"
}

// AppBase is the rule base AddRules appends to and ClearAppRules empties.
const AppBase = "app"

// Source is the text of one rule base.
type Source struct {
	Base string
	Text string
}

// Options configures an Engine.
type Options struct {
	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
	// CondIndex builds conditional indexes over runs of clauses guarded by
	// distinct literals.
	CondIndex bool
	// CacheSize is the capacity of the compiled expression cache.
	CacheSize int
	// Tracker counts regions when non-nil.
	Tracker *types.Tracker
	// Microservices is the micro-service table. Defaults to an empty one.
	Microservices *msi.Table
	// ParseOptions are passed to the parser for every rule base.
	ParseOptions []parser.CompileOption
	// EvalOptions are passed to every evaluator the engine creates.
	EvalOptions []evaluator.EvalOption
}

// Option configures an Engine.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithCondIndex enables or disables conditional indexing.
func WithCondIndex(enabled bool) Option {
	return func(o *Options) { o.CondIndex = enabled }
}

// WithCacheSize sets the compiled expression cache capacity.
func WithCacheSize(n int) Option {
	return func(o *Options) { o.CacheSize = n }
}

// WithTracker counts created and freed regions in t.
func WithTracker(t *types.Tracker) Option {
	return func(o *Options) { o.Tracker = t }
}

// WithMicroservices sets the micro-service table.
func WithMicroservices(t *msi.Table) Option {
	return func(o *Options) { o.Microservices = t }
}

// WithParseOptions adds parser options.
func WithParseOptions(opts ...parser.CompileOption) Option {
	return func(o *Options) { o.ParseOptions = append(o.ParseOptions, opts...) }
}

// WithEvalOptions adds evaluator options.
func WithEvalOptions(opts ...evaluator.EvalOption) Option {
	return func(o *Options) { o.EvalOptions = append(o.EvalOptions, opts...) }
}

// Snapshot is an immutable compiled state: the rule bases, the function
// table built from their declarations and the evaluator running them.
type Snapshot struct {
	Sources  []Source
	Program  *evaluator.Program
	Eval     *evaluator.Evaluator
	Rejected []error
	// CondNodes is the number of conditional index nodes built.
	CondNodes int
	Loaded    time.Time
}

// Engine owns the current Snapshot.
type Engine struct {
	snap  atomic.Pointer[Snapshot]
	mu    sync.Mutex // serializes snapshot writers
	opts  Options
	cache *cache.Cache
}

// New creates an engine with no rules.
func New(opts ...Option) *Engine {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Microservices == nil {
		options.Microservices = msi.NewTable()
	}
	e := &Engine{opts: options, cache: cache.New(options.CacheSize)}
	snap, _ := e.build(nil)
	e.snap.Store(snap)
	return e
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.opts.Logger
}

// Snapshot returns the current snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Microservices returns the micro-service table.
func (e *Engine) Microservices() *msi.Table {
	return e.opts.Microservices
}

// Load replaces the rules with sources, searched in order. A source that
// does not parse fails the whole load and keeps the current snapshot;
// clauses rejected by the type checker are left out and reported in
// Snapshot.Rejected.
func (e *Engine) Load(ctx context.Context, sources ...Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.swap(ctx, sources)
}

// Reload builds the current sources again.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.swap(ctx, e.Snapshot().Sources)
}

// LoadFiles loads rule files in order. The base of each file is its name
// without the extension, so core.re becomes the "core" base.
func (e *Engine) LoadFiles(ctx context.Context, paths ...string) error {
	sources := make([]Source, 0, len(paths))
	for _, p := range paths {
		src, err := ReadSource(p)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	return e.Load(ctx, sources...)
}

// ReadSource reads a rule file.
func ReadSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, errors.Wrapf(err, "read rule base %s", path)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Source{Base: base, Text: string(data)}, nil
}

// LoadCatalog loads the given bases from store, in order, replacing the
// current rules.
func (e *Engine) LoadCatalog(ctx context.Context, store *catalog.Store, bases ...string) error {
	sources := make([]Source, 0, len(bases))
	for _, b := range bases {
		rows, err := store.Load(ctx, b)
		if err != nil {
			return err
		}
		sources = append(sources, Source{Base: b, Text: catalog.RuleSource(rows)})
	}
	return e.Load(ctx, sources...)
}

// SaveCatalog writes the rules of base to store.
func (e *Engine) SaveCatalog(ctx context.Context, store *catalog.Store, base string) error {
	b, ok := e.Snapshot().Program.Base(base)
	if !ok {
		return errors.Errorf("no rule base %s", base)
	}
	return store.Save(ctx, base, catalog.RowsFromRuleSet(base, b.Rules))
}

// AddRules appends src to the app base, creating it when missing, and
// rebuilds the snapshot.
func (e *Engine) AddRules(ctx context.Context, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sources := append([]Source(nil), e.Snapshot().Sources...)
	found := false
	for i, s := range sources {
		if s.Base == AppBase {
			sources[i].Text = s.Text + "\n" + src
			found = true
		}
	}
	if !found {
		sources = append(sources, Source{Base: AppBase, Text: src})
	}
	return e.swap(ctx, sources)
}

// ClearAppRules empties the app base.
func (e *Engine) ClearAppRules(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var sources []Source
	for _, s := range e.Snapshot().Sources {
		if s.Base != AppBase {
			sources = append(sources, s)
		}
	}
	return e.swap(ctx, sources)
}

func (e *Engine) swap(ctx context.Context, sources []Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := e.build(sources)
	if err != nil {
		return err
	}
	e.cache.Clear()
	old := e.snap.Swap(snap)
	e.opts.Logger.Info("rules loaded",
		"bases", len(sources), "rules", snap.Program.RuleCount(),
		"rejected", len(snap.Rejected), "cond_nodes", snap.CondNodes)
	if old != nil {
		e.opts.Logger.Debug("snapshot swapped", "previous", old.Loaded)
	}
	return nil
}

// build parses, types and indexes sources into a new snapshot.
func (e *Engine) build(sources []Source) (*Snapshot, error) {
	bases := make([]*evaluator.RuleBase, 0, len(sources))
	for _, src := range sources {
		set, err := parser.ParseRuleSet(src.Text, src.Base, e.opts.ParseOptions...)
		if err != nil {
			return nil, errors.Wrapf(err, "parse rule base %s", src.Base)
		}
		bases = append(bases, evaluator.NewRuleBase(src.Base, set))
	}
	prog, err := evaluator.NewProgram(bases...)
	if err != nil {
		return nil, errors.Wrap(err, "build program")
	}
	snap := &Snapshot{
		Sources: sources,
		Program: prog,
		Eval:    evaluator.New(prog, e.evalOptions()...),
		Loaded:  time.Now(),
	}
	for _, b := range bases {
		ok, errs := typing.CheckRuleSet(b.Rules, snap.Eval)
		for _, err := range errs {
			e.opts.Logger.Warn("rule rejected", "base", b.Name, "error", err)
		}
		if len(errs) > 0 {
			snap.Rejected = append(snap.Rejected, errs...)
			b.Index = index.Build(ok)
		}
	}
	if e.opts.CondIndex {
		for _, b := range bases {
			snap.CondNodes += b.Index.CreateCondIndex(e.opts.Logger)
		}
	}
	return snap, nil
}

func (e *Engine) evalOptions() []evaluator.EvalOption {
	opts := []evaluator.EvalOption{
		evaluator.WithLogger(e.opts.Logger),
		evaluator.WithCache(e.cache),
		evaluator.WithMicroservices(e.opts.Microservices),
	}
	if e.opts.Tracker != nil {
		opts = append(opts, evaluator.WithTracker(e.opts.Tracker))
	}
	return append(opts, e.opts.EvalOptions...)
}

// NewSession returns a session over rei for use with Exec. The caller
// closes it.
func (e *Engine) NewSession(rei *session.RuleExecInfo) *evaluator.Session {
	return evaluator.NewSession(rei, e.opts.Tracker)
}

// ApplyRule runs the rule name with the parameters of params, mutating rei
// and writing output parameters back into params. It returns 0 on success
// and the negative status of the failure otherwise. With saveREI a failed
// clause has its changes to rei undone before the next clause is tried.
func (e *Engine) ApplyRule(ctx context.Context, name string, params *msi.ParamArray, rei *session.RuleExecInfo, saveREI bool) (int, error) {
	snap := e.Snapshot()
	s := e.NewSession(rei)
	defer s.Close()
	s.SaveREI = saveREI

	var ps []*msi.Param
	if params != nil {
		ps = params.Params
	}
	args := make([]*types.Value, len(ps))
	for i, p := range ps {
		args[i] = msi.FromParam(p, s.Region())
	}
	_, err := snap.Eval.Call(ctx, s, name, args...)
	for i, p := range ps {
		msi.SetParam(p, args[i])
	}
	if err != nil {
		e.opts.Logger.Debug("rule failed", "rule", name, "messages", s.Errors.String())
		return int(types.CodeOf(err)), err
	}
	return 0, nil
}

// ApplyAllRules is like ApplyRule but runs every applicable clause of
// name. It succeeds when any clause succeeded.
func (e *Engine) ApplyAllRules(ctx context.Context, name string, rei *session.RuleExecInfo) (int, error) {
	s := e.NewSession(rei)
	defer s.Close()
	if _, err := e.Snapshot().Eval.ApplyAll(ctx, s, name); err != nil {
		return int(types.CodeOf(err)), err
	}
	return 0, nil
}

// ComputeExpression evaluates an expression against rei and renders the
// result.
func (e *Engine) ComputeExpression(ctx context.Context, expr string, rei *session.RuleExecInfo) (string, error) {
	ev := e.Snapshot().Eval
	compiled, err := ev.CompileExpression(expr)
	if err != nil {
		return "", err
	}
	s := e.NewSession(rei)
	defer s.Close()
	v, err := ev.Eval(ctx, s, compiled.AST())
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// Exec runs src in the global frame of s. src is either an action
// sequence or, as accepted by irule, a rule set whose first rule is run
// with no arguments after the rule set is added in front of the loaded
// bases for this call only.
func (e *Engine) Exec(ctx context.Context, s *evaluator.Session, src string) (*types.Value, error) {
	snap := e.Snapshot()
	if set, err := parser.ParseRuleSet(src, "irule", e.opts.ParseOptions...); err == nil && firstRule(set) != nil {
		return e.execRuleSet(ctx, snap, s, set)
	}
	compiled, err := snap.Eval.CompileActions(src)
	if err != nil {
		return nil, err
	}
	return snap.Eval.Eval(ctx, s, compiled.AST())
}

func (e *Engine) execRuleSet(ctx context.Context, snap *Snapshot, s *evaluator.Session, set *types.RuleSet) (*types.Value, error) {
	bases := append([]*evaluator.RuleBase{evaluator.NewRuleBase("irule", set)}, snap.Program.Bases...)
	prog, err := evaluator.NewProgram(bases...)
	if err != nil {
		return nil, err
	}
	ev := evaluator.New(prog, append(e.evalOptions(), evaluator.WithCache(cache.New(0)))...)
	if _, errs := typing.CheckRuleSet(set, ev); len(errs) > 0 {
		return nil, errs[0]
	}
	return ev.Call(ctx, s, firstRule(set).Name)
}

func firstRule(set *types.RuleSet) *types.RuleDesc {
	for _, r := range set.Rules {
		if r.Kind == types.RuleRel && r.Arity() == 0 {
			return r
		}
	}
	return nil
}
