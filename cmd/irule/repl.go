package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/sandrolain/goirl"
	"github.com/sandrolain/goirl/pkg/evaluator"
)

const (
	historyFile = ".irule_history"
	promptMain  = "irule> "
	promptCont  = "  ...> "
)

// repl evaluates lines against one session until EOF or :quit. Input is
// read until braces and parentheses balance.
func repl(ctx context.Context, eng *goirl.Engine, stdout, stderr io.Writer) int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	s := eng.NewSession(nil)
	defer s.Close()
	for {
		src, ok := readBalanced(ln)
		if !ok {
			fmt.Fprintln(stdout)
			return 0
		}
		src = strings.TrimSpace(src)
		switch src {
		case "":
			continue
		case ":quit":
			return 0
		case ":vars":
			for _, n := range s.Global.Names() {
				v, _ := s.Global.Lookup(n)
				fmt.Fprintf(stdout, "%s = %s\n", n, v)
			}
			continue
		case ":rules":
			fmt.Fprintln(stdout, ruleTable(eng.Snapshot().Program))
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		evalLine(ctx, eng, s, src, stdout, stderr)
	}
}

func evalLine(ctx context.Context, eng *goirl.Engine, s *evaluator.Session, src string, stdout, stderr io.Writer) {
	s.Errors.Clear()
	v, err := eng.Exec(ctx, s, src)
	flush(s, stdout, stderr)
	if err != nil {
		fmt.Fprintln(stderr, errorBox(err, src))
		return
	}
	fmt.Fprintln(stdout, v)
}

func readBalanced(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if depth(b.String()) <= 0 {
			return b.String(), true
		}
	}
}

// depth counts unclosed braces and parentheses outside string literals.
func depth(src string) int {
	d := 0
	quote := rune(0)
	escaped := false
	for _, r := range src {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '{' || r == '(':
			d++
		case r == '}' || r == ')':
			d--
		}
	}
	return d
}
