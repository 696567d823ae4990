package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/matryer/is"

	"github.com/sandrolain/goirl/pkg/parser"
)

const coreRules = `
data color = | red : color | green : color
concat3 : string * string * string -> string
acPostProcForPut {
	on ($rescName == "demoResc") {
		writeLine("serverLog", "put") ::: writeLine("serverLog", "undo");
		msiSetDataType(*t, "generic");
	}
}
acPostProcForPut { nop; } @("id", "40")
twice(*x : integer) : integer = *x * 2
acLegacy||nop|nop
`

func rowsOf(t *testing.T, src string) []Row {
	t.Helper()
	set, err := parser.ParseRuleSet(src, "core")
	if err != nil {
		t.Fatalf("failed to parse rules: %v", err)
	}
	return RowsFromRuleSet("core", set)
}

func TestRowsFromRuleSet(t *testing.T) {
	is := is.New(t)
	rows := rowsOf(t, coreRules)

	tags := make([]string, len(rows))
	for i, r := range rows {
		tags[i] = r.Recovery
		is.Equal(r.Priority, i+1)
	}
	is.Equal(tags, []string{"@DATA", "@CONSTR", "@CONSTR", "@EXTERN", RelTag, RelTag, "@FUNC", RelTag})

	is.Equal(rows[4].Cond, `$rescName == "demoResc"`)
	is.Equal(rows[4].ID, int64(41))
	is.Equal(rows[5].ID, int64(40))
	is.Equal(rows[6].Head, "twice(*x : integer) : integer")
	is.Equal(rows[6].Action, "*x * 2")
	is.Equal(rows[3].Action, "string * string * string -> string")
}

// Rules rebuilt from rows give the same rows.
func TestSourceRoundTrip(t *testing.T) {
	is := is.New(t)
	rows := rowsOf(t, coreRules)

	again := rowsOf(t, RuleSource(rows))
	is.Equal(len(again), len(rows))
	for i := range rows {
		is.Equal(again[i], rows[i])
	}
}

func TestSourceOldSyntax(t *testing.T) {
	is := is.New(t)
	r := Row{Head: "acOld", Cond: "", Action: "nop", Recovery: "nop"}
	is.Equal(r.Source(), "acOld||nop|nop\n")

	set, err := parser.ParseRuleSet(r.Source(), "app")
	is.NoErr(err)
	is.Equal(set.Len(), 1)
	is.Equal(set.Rules[0].Name, "acOld")
}

func TestStore(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	s, err := Open(ctx, filepath.Join(t.TempDir(), "rules.db"))
	is.NoErr(err)
	defer s.Close()

	rows := rowsOf(t, coreRules)
	is.NoErr(s.Save(ctx, "core", rows))
	is.NoErr(s.Save(ctx, "app", rows[:2]))

	got, err := s.Load(ctx, "core")
	is.NoErr(err)
	is.Equal(got, rows)

	bases, err := s.Bases(ctx)
	is.NoErr(err)
	is.Equal(bases, []string{"app", "core"})

	// Saving again replaces the base.
	is.NoErr(s.Save(ctx, "core", rows[:1]))
	got, err = s.Load(ctx, "core")
	is.NoErr(err)
	is.Equal(len(got), 1)

	is.NoErr(s.Clear(ctx, "core"))
	got, err = s.Load(ctx, "core")
	is.NoErr(err)
	is.Equal(len(got), 0)
}
