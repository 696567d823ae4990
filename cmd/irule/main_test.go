package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sandrolain/goirl/pkg/types"
)

func runIrule(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &out, &errb)
	return code, out.String(), errb.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	core := writeFile(t, "core.re", `greet(*who) { writeLine("stdout", "hello *who"); }`)
	rule := writeFile(t, "hello.r", `main { greet("file"); }`)

	tests := []struct {
		name  string
		stdin string
		args  []string
		code  int
		out   string
	}{
		{"actions", "", []string{`writeLine("stdout", "hi")`}, 0, "hi\n"},
		{"ruleset", "", []string{"-r", core, `greet("world")`}, 0, "hello world\n"},
		{"rule file", "", []string{"-r", core, "-f", rule}, 0, "hello file\n"},
		{"stdin", `writeLine("stdout", 1 + 2)`, []string{"-"}, 0, "3\n"},
		{"failure", "", []string{`writeLine("stdout", "before"); fail(3)`}, 1, "before\n"},
		{"no input", "", nil, 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runIrule(t, tt.stdin, tt.args...)
			if code != tt.code {
				t.Fatalf("exit code %d, want %d; stderr:\n%s", code, tt.code, errOut)
			}
			if out != tt.out {
				t.Fatalf("stdout %q, want %q", out, tt.out)
			}
		})
	}
}

func TestRunList(t *testing.T) {
	core := writeFile(t, "core.re", `
acPostProcForPut { on ($rescName == "demoResc") { nop; } }
acPostProcForPut { nop; }
`)
	code, out, errOut := runIrule(t, "", "-r", core, "-list")
	if code != 0 {
		t.Fatalf("exit code %d; stderr:\n%s", code, errOut)
	}
	if strings.Count(out, "acPostProcForPut") != 2 || !strings.Contains(out, "core") {
		t.Fatalf("unexpected listing:\n%s", out)
	}
}

func TestRunDumpAndStats(t *testing.T) {
	code, out, errOut := runIrule(t, "", "-dump", "-stats", `*x = 1`)
	if code != 0 {
		t.Fatalf("exit code %d; stderr:\n%s", code, errOut)
	}
	if !strings.Contains(out, "AstNode") {
		t.Fatalf("missing dump:\n%s", out)
	}
	if !strings.Contains(out, " 0 live") {
		t.Fatalf("missing region statistics:\n%s", out)
	}
}

func TestRunConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "core.re"), []byte(`hi { writeLine("stdout", "configured"); }`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "irule.yaml")
	if err := os.WriteFile(cfg, []byte("rulesets: [core.re]\nlog_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runIrule(t, "", "-config", cfg, "hi")
	if code != 0 || out != "configured\n" {
		t.Fatalf("exit code %d, stdout %q; stderr:\n%s", code, out, errOut)
	}

	bad := writeFile(t, "bad.yaml", "max_depth: -1\n")
	if code, _, _ := runIrule(t, "", "-config", bad, "nop"); code != 2 {
		t.Fatalf("exit code %d for an invalid config, want 2", code)
	}
}

func TestCaret(t *testing.T) {
	err := types.Errorf(types.ReParserError, "unexpected token").At("irule", 4)
	got := caret(err, "ab\ncd")
	want := "1 | ab\n2 | cd\n  |  ^"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if caret(err, "") != "" {
		t.Fatal("expected no snippet without source")
	}
}

func TestDepth(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{`writeLine("stdout", "x")`, 0},
		{`main {`, 1},
		{`main { writeLine("stdout", "}"); }`, 0},
		{`if (*x) {`, 1},
		{`"\"{"`, 0},
	}
	for _, tt := range tests {
		if got := depth(tt.src); got != tt.want {
			t.Errorf("depth(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}
