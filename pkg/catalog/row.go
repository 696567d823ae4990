// Package catalog stores rule bases as rows, the way the iRODS catalog
// keeps them, and turns rows back into rule source.
//
// Each rule clause or declaration becomes one row. The recovery column of
// a row either holds the recovery actions of an old syntax rule or a kind
// tag such as "@REL" or "@DATA" that tells Source how to rebuild the rule.
package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sandrolain/goirl/pkg/parser"
	"github.com/sandrolain/goirl/pkg/types"
)

// RelTag marks a relational rule row.
const RelTag = "@REL"

// Row is one catalog entry.
type Row struct {
	Base     string
	Priority int
	Name     string
	Head     string
	Cond     string
	Action   string
	Recovery string
	ID       int64
}

// RowsFromRuleSet converts every rule of set into a row of base, in
// order. Rules without an "id" metadata entry get ids following the
// largest id seen so far.
func RowsFromRuleSet(base string, set *types.RuleSet) []Row {
	var next int64
	for _, r := range set.Rules {
		if int64(r.ID) > next {
			next = int64(r.ID)
		}
	}
	rows := make([]Row, 0, set.Len())
	for i, r := range set.Rules {
		row := Row{Base: base, Priority: i + 1, Name: r.Name}
		switch r.Kind {
		case types.RuleRel, types.RuleFunc:
			row.Head = parser.FormatRuleHead(r)
			row.Cond = parser.FormatTerm(r.Cond())
			row.ID = int64(r.ID)
			if row.ID == 0 {
				next++
				row.ID = next
			}
			if r.Kind == types.RuleFunc {
				row.Recovery = r.Kind.Tag()
				row.Action = parser.FormatTerm(r.Actions())
			} else {
				row.Recovery = RelTag
				row.Action = "{\n" + parser.FormatActions(r.Actions(), r.Recovery()) + "}"
			}
		case types.RuleData:
			row.Head = r.Name
			row.Recovery = r.Kind.Tag()
		default:
			row.Head = r.Name
			row.Action = parser.FormatType(r.Type)
			row.Recovery = r.Kind.Tag()
		}
		rows = append(rows, row)
	}
	return rows
}

// Source rebuilds the rule text of the row.
func (r Row) Source() string {
	if !strings.HasPrefix(r.Recovery, "@") {
		return fmt.Sprintf("%s|%s|%s|%s\n", r.Head, r.Cond, r.Action, r.Recovery)
	}
	id := parser.FormatString(strconv.FormatInt(r.ID, 10))
	switch r.Recovery {
	case types.RuleData.Tag():
		return fmt.Sprintf("data %s\n", r.Head)
	case types.RuleConstr.Tag():
		return fmt.Sprintf("constructor %s : %s\n", r.Head, r.Action)
	case types.RuleExtern.Tag():
		return fmt.Sprintf("%s : %s\n", r.Head, r.Action)
	case types.RuleFunc.Tag():
		return fmt.Sprintf("%s = %s\n @(\"id\", %s)\n", r.Head, r.Action, id)
	}
	return fmt.Sprintf("%s {\n on %s %s @(\"id\", %s)\n}\n", r.Head, r.Cond, r.Action, id)
}

// RuleSource concatenates the source of rows.
func RuleSource(rows []Row) string {
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(r.Source())
	}
	return sb.String()
}
