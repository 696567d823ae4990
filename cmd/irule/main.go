// Command irule runs rule language actions and rules against a local
// engine, like the iRODS irule command.
//
// Usage:
//
//	irule [flags] 'writeLine("stdout", "hello")'
//	irule [flags] -f rule.r
//	irule [flags] -repl
//
// Rule sets named in the configuration, or with -r, are loaded first, in
// order. The input is either an action sequence or a rule set whose first
// rule without parameters is run.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/sandrolain/goirl"
	"github.com/sandrolain/goirl/pkg/catalog"
	"github.com/sandrolain/goirl/pkg/config"
	"github.com/sandrolain/goirl/pkg/evaluator"
	"github.com/sandrolain/goirl/pkg/msi"
	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/types"
)

type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, ",") }
func (l *listFlag) Set(s string) error { *l = append(*l, s); return nil }

type options struct {
	file     string
	config   string
	rulesets listFlag
	list     bool
	dump     bool
	repl     bool
	stats    bool
	verbose  bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("irule", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.file, "f", "", "read the rule text from `file`")
	fs.StringVar(&o.config, "config", "", "load engine configuration from `irule.yaml`")
	fs.Var(&o.rulesets, "r", "load the rule set `file` (repeatable)")
	fs.BoolVar(&o.list, "list", false, "list the loaded rules")
	fs.BoolVar(&o.dump, "dump", false, "dump the parsed input")
	fs.BoolVar(&o.repl, "repl", false, "start an interactive session")
	fs.BoolVar(&o.stats, "stats", false, "print region statistics")
	fs.BoolVar(&o.verbose, "v", false, "log at debug level")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if o.config != "" {
		c, err := config.Load(o.config)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		cfg = c
	}
	level, _ := cfg.Level()
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	tracker := &types.Tracker{}
	table := msi.NewTable(cfg.TableOptions()...)
	eng := goirl.New(append(cfg.EngineOptions(),
		goirl.WithLogger(logger),
		goirl.WithTracker(tracker),
		goirl.WithMicroservices(table),
	)...)

	host := msi.NewWasmHost(ctx)
	defer host.Close(ctx)
	if err := loadMicroservices(ctx, host, table, cfg.Microservices.Wasm, logger); err != nil {
		fmt.Fprintln(stderr, errorBox(err, ""))
		return 1
	}
	if err := loadRules(ctx, eng, cfg, o.rulesets); err != nil {
		fmt.Fprintln(stderr, errorBox(err, ""))
		return 1
	}
	if o.list {
		fmt.Fprintln(stdout, ruleTable(eng.Snapshot().Program))
	}

	var code int
	switch {
	case o.repl:
		code = repl(ctx, eng, stdout, stderr)
	default:
		src, err := input(o.file, fs.Args(), stdin, o.list)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
		if src == "" {
			break
		}
		if o.dump {
			dump(stdout, src)
		}
		code = execute(ctx, eng, src, stdout, stderr)
	}
	if o.stats {
		fmt.Fprintf(stdout, "regions: %s created, %s freed, %s live\n",
			humanize.Comma(tracker.Created()), humanize.Comma(tracker.Freed()), humanize.Comma(tracker.Live()))
	}
	return code
}

func loadMicroservices(ctx context.Context, host *msi.WasmHost, table *msi.Table, paths []string, logger *slog.Logger) error {
	for _, p := range paths {
		wasm, err := os.ReadFile(p)
		if err != nil {
			return errors.Wrap(err, "read micro-service module")
		}
		names, err := host.Load(ctx, table, p, wasm)
		if err != nil {
			return err
		}
		logger.Info("micro-services loaded", "module", p, "names", names, "size", humanize.Bytes(uint64(len(wasm))))
	}
	return nil
}

func loadRules(ctx context.Context, eng *goirl.Engine, cfg *config.Config, extra []string) error {
	var sources []goirl.Source
	if cfg.Catalog != "" {
		store, err := catalog.Open(ctx, cfg.Catalog)
		if err != nil {
			return err
		}
		defer store.Close()
		bases, err := store.Bases(ctx)
		if err != nil {
			return err
		}
		for _, b := range bases {
			rows, err := store.Load(ctx, b)
			if err != nil {
				return err
			}
			sources = append(sources, goirl.Source{Base: b, Text: catalog.RuleSource(rows)})
		}
	}
	for _, p := range append(append([]string(nil), cfg.RuleSets...), extra...) {
		src, err := goirl.ReadSource(p)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil
	}
	return eng.Load(ctx, sources...)
}

// input returns the rule text from -f, the arguments, or stdin when the
// argument is "-". Listing rules needs no input.
func input(file string, args []string, stdin io.Reader, optional bool) (string, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), errors.Wrap(err, "read rule file")
	case len(args) == 1 && args[0] == "-":
		data, err := io.ReadAll(stdin)
		return string(data), errors.Wrap(err, "read stdin")
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case optional:
		return "", nil
	}
	return "", errors.New("no rule text given; use -f, an argument or -repl")
}

func dump(w io.Writer, src string) {
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	if set, err := parser.ParseRuleSet(src, "irule"); err == nil && set.Len() > 0 {
		for _, r := range set.Rules {
			fmt.Fprintln(w, parser.FormatRule(r))
			if r.Node != nil {
				cfg.Fdump(w, r.Node)
			}
		}
		return
	}
	if expr, err := parser.ParseActions(src, "irule"); err == nil {
		cfg.Fdump(w, expr.AST())
	}
}

func execute(ctx context.Context, eng *goirl.Engine, src string, stdout, stderr io.Writer) int {
	s := eng.NewSession(nil)
	defer s.Close()
	_, err := eng.Exec(ctx, s, src)
	flush(s, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, errorBox(err, src))
		if s.Errors.Len() > 0 {
			fmt.Fprintln(stderr, s.Errors.String())
		}
		return 1
	}
	return 0
}

// flush writes and resets the buffered output of writeLine.
func flush(s *evaluator.Session, stdout, stderr io.Writer) {
	out := s.REI.ExecOut()
	io.WriteString(stdout, out.Stdout.String())
	io.WriteString(stderr, out.Stderr.String())
	out.Stdout.Reset()
	out.Stderr.Reset()
}
