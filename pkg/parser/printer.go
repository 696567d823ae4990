package parser

import (
	"strconv"
	"strings"

	"github.com/sandrolain/goirl/pkg/types"
)

// FormatTerm renders an expression in source syntax. Parsing the result
// yields an equivalent tree.
func FormatTerm(n *types.AstNode) string {
	var sb strings.Builder
	writeTerm(&sb, n, minPrec, "")
	return sb.String()
}

// FormatActions renders an action list with its recoveries, one action per
// line, without enclosing braces. reco may be nil.
func FormatActions(acts, reco *types.AstNode) string {
	var sb strings.Builder
	writeActionList(&sb, acts, reco, "")
	return sb.String()
}

// FormatRuleHead renders the name and parameters of a rule, with type
// annotations when the rule declares a signature.
func FormatRuleHead(r *types.RuleDesc) string {
	var sb strings.Builder
	sb.WriteString(r.Name)
	params := r.Params()
	var sig *types.ExprType
	names := map[int]string{}
	if r.Type != nil && r.Type.Kind == types.TFunc && r.Type.Params().Arity() == len(params) {
		sig = r.Type
	}
	if len(params) > 0 {
		sb.WriteByte('(')
		for i, prm := range params {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeTerm(&sb, prm, minPrec, "")
			if sig != nil && sig.Params().Args[i].Kind != types.TDynamic {
				sb.WriteString(" : ")
				writeType(&sb, sig.Params().Args[i], 1, names)
			}
		}
		sb.WriteByte(')')
	}
	if sig != nil && sig.Ret().Kind != types.TDynamic {
		sb.WriteString(" : ")
		writeType(&sb, sig.Ret(), 0, names)
	}
	return sb.String()
}

// FormatRule renders a rule or declaration in source syntax.
func FormatRule(r *types.RuleDesc) string {
	var sb strings.Builder
	switch r.Kind {
	case types.RuleData:
		sb.WriteString("data ")
		sb.WriteString(r.Name)
	case types.RuleConstr:
		sb.WriteString("constructor ")
		sb.WriteString(r.Name)
		sb.WriteString(" : ")
		sb.WriteString(FormatType(r.Type))
	case types.RuleExtern:
		sb.WriteString(r.Name)
		sb.WriteString(" : ")
		sb.WriteString(FormatType(r.Type))
	case types.RuleFunc:
		sb.WriteString(FormatRuleHead(r))
		sb.WriteString(" = ")
		writeTerm(&sb, r.Actions(), minPrec, "")
		if !isNop(r.Recovery()) {
			sb.WriteString(" ::: ")
			writeTerm(&sb, r.Recovery(), minPrec, "")
		}
		writeMetadata(&sb, r.Metadata())
	default:
		sb.WriteString(FormatRuleHead(r))
		sb.WriteString(" {\n")
		indent := "    "
		if isTrue(r.Cond()) {
			indent = "  "
		} else {
			sb.WriteString("  on ")
			writeTerm(&sb, r.Cond(), minPrec, "  ")
			sb.WriteString(" {\n")
		}
		writeActionList(&sb, r.Actions(), r.Recovery(), indent)
		if !isTrue(r.Cond()) {
			sb.WriteString("  }")
			writeMetadata(&sb, r.Metadata())
			sb.WriteString("\n}")
		} else {
			sb.WriteString("}")
			writeMetadata(&sb, r.Metadata())
		}
	}
	return sb.String()
}

// FormatType renders a type in the signature syntax accepted by
// ParseFuncType.
func FormatType(t *types.ExprType) string {
	var sb strings.Builder
	writeType(&sb, t, 0, map[int]string{})
	return sb.String()
}

// FormatString quotes s as a string literal.
func FormatString(s string) string {
	var sb strings.Builder
	writeString(&sb, s)
	return sb.String()
}

func isTrue(n *types.AstNode) bool {
	return n.Type == types.NodeBool && n.Text == "true"
}

func isNop(n *types.AstNode) bool {
	if n.Type == types.NodeActions {
		return len(n.Children) == 0 || len(n.Children) == 1 && isNop(n.Children[0])
	}
	return n.Type == types.NodeApplication && n.AppName() == "nop" && n.AppArgs().Degree() == 0
}

func writeMetadata(sb *strings.Builder, meta *types.AstNode) {
	for _, avu := range meta.Children {
		sb.WriteString(" @(")
		for i, c := range avu.Children {
			if i == 2 && c.Text == "" {
				break
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			writeString(sb, c.Text)
		}
		sb.WriteByte(')')
	}
}

func writeActionList(sb *strings.Builder, acts, reco *types.AstNode, indent string) {
	for i, a := range acts.Children {
		sb.WriteString(indent)
		writeTerm(sb, a, minPrec, indent)
		if reco != nil && i < len(reco.Children) && !isNop(reco.Children[i]) {
			sb.WriteString(" ::: ")
			writeTerm(sb, reco.Children[i], minPrec, indent)
		}
		sb.WriteString(";\n")
	}
}

func writeBlock(sb *strings.Builder, acts, reco *types.AstNode, indent string) {
	sb.WriteString("{\n")
	writeActionList(sb, acts, reco, indent+"  ")
	sb.WriteString(indent)
	sb.WriteByte('}')
}

func writeString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\t':
			sb.WriteString(`\t`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '$', '*', '\\', '"', '\'':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
}

func writeTerm(sb *strings.Builder, n *types.AstNode, prec int, indent string) {
	switch n.Type {
	case types.NodeString:
		writeString(sb, n.Text)
	case types.NodeInt, types.NodeDouble, types.NodeBool, types.NodeLocalVar, types.NodeSessionVar, types.NodeText:
		sb.WriteString(n.Text)
	case types.NodeTuple:
		writeTuple(sb, n.Children, indent)
	case types.NodeActionsRecovery:
		writeBlock(sb, n.Children[0], n.Children[1], indent)
	case types.NodeActions:
		writeBlock(sb, n, nil, indent)
	case types.NodeApplication:
		writeApp(sb, n, prec, indent)
	case types.NodeQuery:
		writeQuery(sb, n)
	default:
		sb.WriteString(n.String())
	}
}

func writeTuple(sb *strings.Builder, elems []*types.AstNode, indent string) {
	sb.WriteByte('(')
	for i, e := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeTerm(sb, e, minPrec, indent)
	}
	sb.WriteByte(')')
}

func writeApp(sb *strings.Builder, n *types.AstNode, prec int, indent string) {
	fn := n.Children[0]
	args := n.AppArgs().Children
	name := fn.Text
	if fn.Type != types.NodeText {
		writeTerm(sb, fn, appPrec, indent)
		writeTuple(sb, args, indent)
		return
	}

	op := name
	if op == "assign" {
		op = "="
	}
	if bp := BinaryPrecedence(op); bp >= 0 && len(args) == 2 {
		if bp < prec {
			sb.WriteByte('(')
		}
		writeTerm(sb, args[0], bp, indent)
		sb.WriteByte(' ')
		sb.WriteString(op)
		sb.WriteByte(' ')
		writeTerm(sb, args[1], bp+1, indent)
		if bp < prec {
			sb.WriteByte(')')
		}
		return
	}
	if name == "neg" {
		op = "-"
	}
	if up := UnaryPrecedence(op); up >= 0 && len(args) == 1 {
		if up < prec {
			sb.WriteByte('(')
		}
		sb.WriteString(op)
		if isAlpha(rune(op[0])) {
			writeTuple(sb, args, indent)
		} else {
			writeTerm(sb, args[0], up, indent)
		}
		if up < prec {
			sb.WriteByte(')')
		}
		return
	}

	switch {
	case name == "if" && len(args) == 5 && isActionsArg(args[1]) && isActionsArg(args[2]):
		sb.WriteString("if ")
		writeTuple(sb, args[:1], indent)
		sb.WriteString(" then ")
		writeBlock(sb, args[1], args[3], indent)
		if !isNop(args[2]) {
			sb.WriteString(" else ")
			writeBlock(sb, args[2], args[4], indent)
		}
		return
	case name == "if2" && len(args) == 5:
		if minPrec < prec {
			sb.WriteByte('(')
		}
		sb.WriteString("if ")
		writeTerm(sb, args[0], minPrec, indent)
		sb.WriteString(" then ")
		writeTerm(sb, args[1], minPrec, indent)
		sb.WriteString(" else ")
		writeTerm(sb, args[2], minPrec, indent)
		if minPrec < prec {
			sb.WriteByte(')')
		}
		return
	case name == "while" && len(args) == 3 && isActionsArg(args[1]):
		sb.WriteString("while ")
		writeTuple(sb, args[:1], indent)
		sb.WriteByte(' ')
		writeBlock(sb, args[1], args[2], indent)
		return
	case name == "foreach" && len(args) == 3 && isActionsArg(args[1]):
		sb.WriteString("foreach ")
		writeTuple(sb, args[:1], indent)
		sb.WriteByte(' ')
		writeBlock(sb, args[1], args[2], indent)
		return
	case name == "foreach2" && len(args) == 4:
		sb.WriteString("foreach (")
		writeTerm(sb, args[0], minPrec, indent)
		sb.WriteString(" in ")
		writeTerm(sb, args[1], minPrec, indent)
		sb.WriteString(") ")
		writeBlock(sb, args[2], args[3], indent)
		return
	case name == "for" && len(args) == 5 && isActionsArg(args[3]):
		sb.WriteString("for (")
		for i := 0; i < 3; i++ {
			if i > 0 {
				sb.WriteString("; ")
			}
			writeTerm(sb, args[i], minPrec, indent)
		}
		sb.WriteString(") ")
		writeBlock(sb, args[3], args[4], indent)
		return
	case name == "let" && len(args) == 3:
		if minPrec < prec {
			sb.WriteByte('(')
		}
		sb.WriteString("let ")
		writeTerm(sb, args[0], 2, indent)
		sb.WriteString(" = ")
		writeTerm(sb, args[1], minPrec, indent)
		sb.WriteString(" in ")
		writeTerm(sb, args[2], minPrec, indent)
		if minPrec < prec {
			sb.WriteByte(')')
		}
		return
	case name == "match" && len(args) > 1 && matchCases(args[1:]):
		if minPrec < prec {
			sb.WriteByte('(')
		}
		sb.WriteString("match ")
		writeTerm(sb, args[0], 2, indent)
		sb.WriteString(" with")
		for _, c := range args[1:] {
			sb.WriteString(" | ")
			writeTerm(sb, c.Children[0], minPrec, indent)
			sb.WriteString(" => ")
			writeTerm(sb, c.Children[1], minPrec, indent)
		}
		if minPrec < prec {
			sb.WriteByte(')')
		}
		return
	case name == "query" && len(args) == 1 && args[0].Type == types.NodeQuery:
		writeQuery(sb, args[0])
		return
	}

	sb.WriteString(name)
	if len(args) > 0 || IsKeyword(name) {
		writeTuple(sb, args, indent)
	}
}

func matchCases(cases []*types.AstNode) bool {
	for _, c := range cases {
		if c.Type != types.NodeTuple || len(c.Children) != 2 {
			return false
		}
	}
	return true
}

func isActionsArg(n *types.AstNode) bool {
	return n.Type == types.NodeActions
}

func writeQuery(sb *strings.Builder, q *types.AstNode) {
	sb.WriteString("select ")
	for i, c := range q.Children[0].Children {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeQueryCol(sb, c)
	}
	conds := q.Children[1].Children
	if len(conds) == 0 {
		return
	}
	sb.WriteString(" where ")
	for i, c := range conds {
		if i > 0 {
			sb.WriteString(" and ")
		}
		writeQueryCol(sb, c.Children[0])
		for j, op := range c.Children[1:] {
			if j > 0 {
				sb.WriteByte(' ')
				sb.WriteString(c.Text)
			}
			sb.WriteByte(' ')
			sb.WriteString(op.Text)
			for _, v := range op.Children {
				sb.WriteByte(' ')
				writeTerm(sb, v, appPrec, "")
			}
		}
	}
}

func writeQueryCol(sb *strings.Builder, c *types.AstNode) {
	if c.Text == "" {
		sb.WriteString(c.Children[0].Text)
		return
	}
	sb.WriteString(c.Text)
	sb.WriteByte('(')
	sb.WriteString(c.Children[0].Text)
	sb.WriteByte(')')
}

// writeType renders t. names maps the variables already printed to their
// names; only the first occurrence of a variable carries its bound set.
func writeType(sb *strings.Builder, t *types.ExprType, prec int, names map[int]string) {
	switch {
	case t.IO&types.IOActions != 0:
		sb.WriteString("a ")
	case t.IO&types.IOExpression != 0:
		sb.WriteString("e ")
	case t.IO&types.IODynamic != 0:
		sb.WriteString("d ")
	case t.IO == types.IOOutput:
		sb.WriteString("o ")
	case t.IO == types.IOInput|types.IOOutput:
		sb.WriteString("i o ")
	}
	switch t.Kind {
	case types.TDynamic:
		sb.WriteByte('?')
	case types.TInt:
		sb.WriteString("integer")
	case types.TDouble:
		sb.WriteString("double")
	case types.TBool:
		sb.WriteString("boolean")
	case types.TString:
		sb.WriteString("string")
	case types.TPath:
		sb.WriteString("path")
	case types.TDatetime:
		sb.WriteString("time")
	case types.TType:
		sb.WriteString("type")
	case types.TIrods:
		sb.WriteByte('`')
		sb.WriteString(t.Name)
		sb.WriteByte('`')
	case types.TVar:
		if name, ok := names[t.VarID]; ok {
			sb.WriteString(name)
			return
		}
		name := typeVarName(len(names))
		names[t.VarID] = name
		sb.WriteString(name)
		if len(t.Disjuncts) > 0 {
			sb.WriteString(" {")
			for i, d := range t.Disjuncts {
				if i > 0 {
					sb.WriteByte(' ')
				}
				writeType(sb, d, 1, names)
			}
			sb.WriteByte('}')
		}
	case types.TFlex:
		sb.WriteString("f ")
		writeType(sb, t.Args[0], 1, names)
	case types.TFixed:
		sb.WriteString("f ")
		writeType(sb, t.Args[0], 1, names)
		sb.WriteString(" => ")
		writeType(sb, t.Args[1], 1, names)
	case types.TFunc:
		if prec > 0 {
			sb.WriteByte('(')
		}
		params := t.Params()
		switch params.Arity() {
		case 0:
		case 1:
			writeType(sb, params.Args[0], 1, names)
		default:
			writeType(sb, params, 0, names)
		}
		switch t.Vararg {
		case types.VarargStar:
			sb.WriteString(" *")
		case types.VarargPlus:
			sb.WriteString(" +")
		case types.VarargOptional:
			sb.WriteString(" ?")
		}
		if params.Arity() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("-> ")
		writeType(sb, t.Ret(), 0, names)
		if prec > 0 {
			sb.WriteByte(')')
		}
	case types.TTuple:
		switch t.Arity() {
		case 0:
			sb.WriteString("unit")
		case 1:
			sb.WriteByte('<')
			writeType(sb, t.Args[0], 0, names)
			sb.WriteByte('>')
		default:
			if prec > 0 {
				sb.WriteByte('(')
			}
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteString(" * ")
				}
				writeType(sb, a, 1, names)
			}
			if prec > 0 {
				sb.WriteByte(')')
			}
		}
	case types.TCons:
		if t.IsList() {
			sb.WriteString("list ")
			writeType(sb, t.Args[0], 1, names)
			return
		}
		sb.WriteString(t.Name)
		if len(t.Args) > 0 {
			sb.WriteByte('(')
			for i, a := range t.Args {
				if i > 0 {
					sb.WriteString(", ")
				}
				writeType(sb, a, 0, names)
			}
			sb.WriteByte(')')
		}
	default:
		sb.WriteString(t.Kind.String())
	}
}

// typeVarName names the i-th variable of a signature: A, B, ..., Z, A1, ...
func typeVarName(i int) string {
	letter := string(rune('A' + i%26))
	if n := i / 26; n > 0 {
		return letter + strconv.Itoa(n)
	}
	return letter
}
