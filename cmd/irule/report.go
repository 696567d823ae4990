package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	box "github.com/Delta456/box-cli-maker/v2"
	"github.com/alexeyco/simpletable"

	"github.com/sandrolain/goirl/pkg/evaluator"
	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/types"
)

// errorBox renders err in a box. When err carries a position into src, a
// snippet of src with a caret under the position is included.
func errorBox(err error, src string) string {
	b := box.New(box.Config{Px: 2, Py: 1, Type: "Round", Color: "Red", TitlePos: "Top", ContentAlign: "Left"})
	title := "ERROR"
	var te *types.Error
	if errors.As(err, &te) {
		title = fmt.Sprintf("%s (%d)", te.Code, int(te.Code))
	}
	content := err.Error()
	if snippet := caret(err, src); snippet != "" {
		content += "\n\n" + snippet
	}
	return b.String(title, content)
}

// caret renders the line of src holding the error position, with the
// previous line as context and a caret under the column.
func caret(err error, src string) string {
	var te *types.Error
	if src == "" || !errors.As(err, &te) || te.Position < 0 || te.Position > len(src) {
		return ""
	}
	line := strings.Count(src[:te.Position], "\n")
	col := te.Position - (strings.LastIndex(src[:te.Position], "\n") + 1)
	lines := strings.Split(src, "\n")
	width := len(strconv.Itoa(line + 1))

	var sb strings.Builder
	for i := max(0, line-1); i <= line; i++ {
		fmt.Fprintf(&sb, "%*d | %s\n", width, i+1, lines[i])
	}
	fmt.Fprintf(&sb, "%s | %s^", strings.Repeat(" ", width), strings.Repeat(" ", col))
	return sb.String()
}

// ruleTable lists the indexed clauses of every base in lookup order.
func ruleTable(prog *evaluator.Program) string {
	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Base"},
			{Align: simpletable.AlignCenter, Text: "#"},
			{Align: simpletable.AlignCenter, Text: "Rule"},
			{Align: simpletable.AlignCenter, Text: "Kind"},
			{Align: simpletable.AlignCenter, Text: "Condition"},
		},
	}
	for _, b := range prog.Bases {
		n := 0
		for _, name := range b.Index.Names() {
			l, _ := b.Index.List(name)
			for _, r := range l.Clauses() {
				n++
				table.Body.Cells = append(table.Body.Cells, []*simpletable.Cell{
					{Text: b.Name},
					{Align: simpletable.AlignRight, Text: strconv.Itoa(n)},
					{Text: parser.FormatRuleHead(r)},
					{Text: r.Kind.String()},
					{Text: parser.FormatTerm(r.Cond())},
				})
			}
		}
	}
	table.SetStyle(simpletable.StyleUnicode)
	return table.String()
}
