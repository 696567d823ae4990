package parser

import (
	"github.com/sandrolain/goirl/pkg/types"
)

// parseTerm parses a value followed by binary operators binding tighter
// than prec and by argument lists.
func (p *Parser) parseTerm(rg bool, prec int) (*types.AstNode, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > p.opts.MaxDepth {
		return nil, p.fail(p.peek(modeOf(rg)), "maximum nesting depth of %d exceeded", p.opts.MaxDepth)
	}

	left, err := p.parseValue(rg)
	if err != nil {
		return nil, err
	}
	for {
		mark := p.mark()
		t := p.next(modeOf(rg))
		if t.Type == TokenOp {
			if bp := BinaryPrecedence(t.Value); bp >= 0 {
				if prec >= bp {
					p.reset(mark)
					return left, nil
				}
				right, err := p.parseTerm(rg, bp)
				if err != nil {
					return nil, err
				}
				fn := t.Value
				if fn == "=" {
					fn = "assign"
				}
				left = p.app(fn, left.Position, left, right)
				continue
			}
		}
		if t.is("(") && left.Type == types.NodeText {
			args, err := p.parseTuple(rg, t)
			if err != nil {
				return nil, err
			}
			args.ConstructTuple = true
			left = p.node(types.NodeApplication, "", left.Position, left, args)
			continue
		}
		p.reset(mark)
		return left, nil
	}
}

// parseValue parses a literal, variable, tuple, action block, unary
// operation, query, path, special form or function name.
func (p *Parser) parseValue(rg bool) (*types.AstNode, error) {
	t := p.next(modeOf(rg) | modePath)
	switch t.Type {
	case TokenLocalVar:
		return p.node(types.NodeLocalVar, t.Value, t.Position), nil
	case TokenSessionVar:
		return p.node(types.NodeSessionVar, t.Value, t.Position), nil
	case TokenInt:
		return p.node(types.NodeInt, t.Value, t.Position), nil
	case TokenDouble:
		return p.node(types.NodeDouble, t.Value, t.Position), nil
	case TokenString:
		return p.stringExpr(t), nil
	case TokenPath:
		return p.app("path", t.Position, p.stringExpr(t)), nil
	case TokenOp:
		if up := UnaryPrecedence(t.Value); up >= 0 {
			arg, err := p.parseTerm(rg, up)
			if err != nil {
				return nil, err
			}
			fn := t.Value
			if fn == "-" {
				fn = "neg"
			}
			return p.app(fn, t.Position, arg), nil
		}
	case TokenMisc:
		switch t.Value {
		case "(":
			tuple, err := p.parseTuple(rg, t)
			if err != nil {
				return nil, err
			}
			if !tuple.ConstructTuple {
				return tuple.Children[0], nil
			}
			return tuple, nil
		case "{":
			return p.parseBlock(rg, t)
		}
	case TokenText:
		return p.parseName(rg, t)
	}
	return nil, p.unexpected(t, "a value")
}

// parseTuple parses the elements of a parenthesized tuple after "(". A
// single element is a grouping and the tuple is not marked constructed.
func (p *Parser) parseTuple(rg bool, open Token) (*types.AstNode, error) {
	tuple := p.node(types.NodeTuple, "", open.Position)
	if p.accept(rg, ")") {
		tuple.ConstructTuple = true
		return tuple, nil
	}
	for {
		e, err := p.parseTerm(rg, minPrec)
		if err != nil {
			return nil, err
		}
		tuple.Children = append(tuple.Children, e)
		sep, err := p.expect(rg, ",", ")")
		if err != nil {
			return nil, err
		}
		if sep.is(")") {
			break
		}
	}
	if len(tuple.Children) > 1 {
		tuple.ConstructTuple = true
	}
	return tuple, nil
}

// parseBlock parses "{ actions }" after "{".
func (p *Parser) parseBlock(rg bool, open Token) (*types.AstNode, error) {
	if !rg {
		acts, err := p.parseLegacyActions()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(false, "}"); err != nil {
			return nil, err
		}
		return acts, nil
	}
	acts, reco, err := p.parseActions()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, "}"); err != nil {
		return nil, err
	}
	return p.node(types.NodeActionsRecovery, "", open.Position, acts, reco), nil
}

// parseName parses everything that starts with a bare word.
func (p *Parser) parseName(rg bool, t Token) (*types.AstNode, error) {
	switch t.Value {
	case "true", "false":
		return p.node(types.NodeBool, t.Value, t.Position), nil
	case "select", "SELECT":
		mark := p.mark()
		if q, err := p.parseQuery(t); err == nil {
			return q, nil
		}
		p.reset(mark)
	}
	mark := p.mark()
	var n *types.AstNode
	var ok bool
	var err error
	if rg {
		n, ok, err = p.parseKeywordForm(t)
	} else {
		n, ok, err = p.parseLegacyForm(t)
	}
	if ok && err == nil {
		return n, nil
	}
	p.reset(mark)
	if rg && IsKeyword(t.Value) {
		if err == nil {
			err = p.fail(t, "syntax error: %q is a reserved word", t.Value)
		}
		return nil, err
	}
	name := p.node(types.NodeText, t.Value, t.Position)
	if la := p.peek(modeOf(rg)); la.is("(") || la.is("[") {
		return name, nil
	}
	return p.app(t.Value, t.Position), nil
}

// parseKeywordForm parses the new syntax control forms. ok is false when t
// does not start one.
func (p *Parser) parseKeywordForm(t Token) (n *types.AstNode, ok bool, err error) {
	switch t.Value {
	case "if":
		mark := p.mark()
		if n, err = p.parseIf(t); err == nil {
			return n, true, nil
		}
		p.reset(mark)
		n, err = p.parseIfExpr(t)
		return n, true, err
	case "while", "whileExec":
		n, err = p.parseWhile(t)
		return n, true, err
	case "foreach", "forEachExec":
		n, err = p.parseForeach(t)
		return n, true, err
	case "for", "forExec":
		n, err = p.parseFor(t)
		return n, true, err
	case "remote":
		n, err = p.parseRemote(t)
		return n, true, err
	case "delay":
		n, err = p.parseDelay(t)
		return n, true, err
	case "let":
		n, err = p.parseLet(t)
		return n, true, err
	case "match":
		n, err = p.parseMatch(t)
		return n, true, err
	}
	return nil, false, nil
}

// parseBody parses "{ actions }" and returns actions and recoveries.
func (p *Parser) parseBody() (*types.AstNode, *types.AstNode, error) {
	if _, err := p.expect(true, "{"); err != nil {
		return nil, nil, err
	}
	acts, reco, err := p.parseActions()
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.expect(true, "}"); err != nil {
		return nil, nil, err
	}
	return acts, reco, nil
}

// parseParenTerm parses "( term )".
func (p *Parser) parseParenTerm() (*types.AstNode, error) {
	if _, err := p.expect(true, "("); err != nil {
		return nil, err
	}
	n, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, ")"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseIf parses "if (cond) [then] { ... } [else if ... | else { ... }]".
func (p *Parser) parseIf(t Token) (*types.AstNode, error) {
	cond, err := p.parseParenTerm()
	if err != nil {
		return nil, err
	}
	p.accept(true, "then")
	acts, reco, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	elseActs, elseReco := p.nopActions(t.Position), p.nopActions(t.Position)
	if p.accept(true, "else") {
		if p.lookahead(true, "if") {
			nested, err := p.parseTerm(true, minPrec)
			if err != nil {
				return nil, err
			}
			elseActs = p.node(types.NodeActions, "", nested.Position, nested)
		} else if elseActs, elseReco, err = p.parseBody(); err != nil {
			return nil, err
		}
	}
	return p.app("if", t.Position, cond, acts, elseActs, reco, elseReco), nil
}

// parseIfExpr parses "if cond then expr else expr".
func (p *Parser) parseIfExpr(t Token) (*types.AstNode, error) {
	cond, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, "then"); err != nil {
		return nil, err
	}
	then, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, "else"); err != nil {
		return nil, err
	}
	els, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	return p.app("if2", t.Position, cond, then, els, p.nop(t.Position), p.nop(t.Position)), nil
}

func (p *Parser) parseWhile(t Token) (*types.AstNode, error) {
	cond, err := p.parseParenTerm()
	if err != nil {
		return nil, err
	}
	acts, reco, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return p.app("while", t.Position, cond, acts, reco), nil
}

// parseForeach parses "foreach (*v) { ... }" and "foreach (*v in coll) { ... }".
func (p *Parser) parseForeach(t Token) (*types.AstNode, error) {
	if _, err := p.expect(true, "("); err != nil {
		return nil, err
	}
	v, err := p.expectType(true, TokenLocalVar)
	if err != nil {
		return nil, err
	}
	loopVar := p.node(types.NodeLocalVar, v.Value, v.Position)
	var coll *types.AstNode
	if p.accept(true, "in") {
		if coll, err = p.parseTerm(true, minPrec); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(true, ")"); err != nil {
		return nil, err
	}
	acts, reco, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	if coll != nil {
		return p.app("foreach2", t.Position, loopVar, coll, acts, reco), nil
	}
	return p.app("foreach", t.Position, loopVar, acts, reco), nil
}

// parseFor parses "for (init; cond; step) { ... }".
func (p *Parser) parseFor(t Token) (*types.AstNode, error) {
	if _, err := p.expect(true, "("); err != nil {
		return nil, err
	}
	var parts [3]*types.AstNode
	for i, sep := range []string{";", ";", ")"} {
		n, err := p.parseTerm(true, minPrec)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(true, sep); err != nil {
			return nil, err
		}
		parts[i] = n
	}
	acts, reco, err := p.parseBody()
	if err != nil {
		return nil, err
	}
	return p.app("for", t.Position, parts[0], parts[1], parts[2], acts, reco), nil
}

// parseSourceBody parses "{ actions }" and returns the source text between
// the braces.
func (p *Parser) parseSourceBody() (*types.AstNode, error) {
	open, err := p.expect(true, "{")
	if err != nil {
		return nil, err
	}
	if _, _, err := p.parseActions(); err != nil {
		return nil, err
	}
	end, err := p.expect(true, "}")
	if err != nil {
		return nil, err
	}
	return p.node(types.NodeString, p.lexer.input[open.Position+1:end.Position], open.Position+1), nil
}

// parseRemote parses "remote(host, hint) { ... }".
func (p *Parser) parseRemote(t Token) (*types.AstNode, error) {
	if _, err := p.expect(true, "("); err != nil {
		return nil, err
	}
	host, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, ","); err != nil {
		return nil, err
	}
	hint, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, ")"); err != nil {
		return nil, err
	}
	body, err := p.parseSourceBody()
	if err != nil {
		return nil, err
	}
	return p.app("remoteExec", t.Position, host, hint, body, p.node(types.NodeString, "", t.Position)), nil
}

// parseDelay parses "delay(cond) { ... }".
func (p *Parser) parseDelay(t Token) (*types.AstNode, error) {
	cond, err := p.parseParenTerm()
	if err != nil {
		return nil, err
	}
	body, err := p.parseSourceBody()
	if err != nil {
		return nil, err
	}
	return p.app("delayExec", t.Position, cond, body, p.node(types.NodeString, "", t.Position)), nil
}

// parseLet parses "let pattern = value in body".
func (p *Parser) parseLet(t Token) (*types.AstNode, error) {
	pat, err := p.parseTerm(true, 2)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, "="); err != nil {
		return nil, err
	}
	val, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, "in"); err != nil {
		return nil, err
	}
	body, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	return p.app("let", t.Position, pat, val, body), nil
}

// parseMatch parses "match value with | pattern => expr ...".
func (p *Parser) parseMatch(t Token) (*types.AstNode, error) {
	val, err := p.parseTerm(true, 2)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, "with"); err != nil {
		return nil, err
	}
	p.accept(true, "|")
	args := []*types.AstNode{val}
	for {
		pat, err := p.parseTerm(true, minPrec)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(true, "=>"); err != nil {
			return nil, err
		}
		e, err := p.parseTerm(true, minPrec)
		if err != nil {
			return nil, err
		}
		c := p.node(types.NodeTuple, "", pat.Position, pat, e)
		c.ConstructTuple = true
		args = append(args, c)
		if !p.accept(true, "|") {
			break
		}
	}
	return p.app("match", t.Position, args...), nil
}

// parseLegacyForm parses the old syntax control micro-services whose
// arguments are "##" separated action lists. ok is false when t does not
// start one.
func (p *Parser) parseLegacyForm(t Token) (n *types.AstNode, ok bool, err error) {
	var fn string
	var shape []bool // true for action list arguments
	switch t.Value {
	case "ifExec":
		fn, shape = "if", []bool{false, true, true, true, true}
	case "whileExec":
		fn, shape = "while", []bool{false, true, true}
	case "forEachExec":
		fn, shape = "foreach", []bool{false, true, true}
	case "forExec":
		fn, shape = "for", []bool{false, false, false, true, true}
	default:
		return nil, false, nil
	}
	if _, err := p.expect(false, "("); err != nil {
		return nil, true, err
	}
	args := make([]*types.AstNode, len(shape))
	for i, acts := range shape {
		if acts {
			args[i], err = p.parseLegacyActions()
		} else {
			args[i], err = p.parseTerm(false, minPrec)
		}
		if err != nil {
			return nil, true, err
		}
		sep := ","
		if i == len(shape)-1 {
			sep = ")"
		}
		if _, err := p.expect(false, sep); err != nil {
			return nil, true, err
		}
	}
	if fn == "if" {
		// ifExec(cond, then, thenRecovery, else, elseRecovery)
		args[2], args[3] = args[3], args[2]
	}
	return p.app(fn, t.Position, args...), true, nil
}

// parseQuery parses "select col, ... [where cond and ...]".
func (p *Parser) parseQuery(t Token) (*types.AstNode, error) {
	cols := p.node(types.NodeTuple, "", t.Position)
	for {
		c, err := p.parseQueryCol()
		if err != nil {
			return nil, err
		}
		cols.Children = append(cols.Children, c)
		if !p.accept(true, ",") {
			break
		}
	}
	conds := p.node(types.NodeTuple, "", t.Position)
	if p.accept(true, "where") || p.accept(true, "WHERE") {
		for {
			c, err := p.parseQueryCond()
			if err != nil {
				return nil, err
			}
			conds.Children = append(conds.Children, c)
			if !p.accept(true, "and") && !p.accept(true, "AND") {
				break
			}
		}
	}
	q := p.node(types.NodeQuery, "", t.Position, cols, conds)
	return p.app("query", t.Position, q), nil
}

var queryFuncs = map[string]string{
	"count": "count", "COUNT": "count",
	"sum": "sum", "SUM": "sum",
	"order": "order", "ORDER": "order",
	"order_asc": "order", "ORDER_ASC": "order",
	"order_desc": "order_desc", "ORDER_DESC": "order_desc",
}

// parseQueryCol parses "COL" or "func(COL)".
func (p *Parser) parseQueryCol() (*types.AstNode, error) {
	t, err := p.expectType(true, TokenText)
	if err != nil {
		return nil, err
	}
	if fn, ok := queryFuncs[t.Value]; ok && p.accept(true, "(") {
		c, err := p.expectType(true, TokenText)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(true, ")"); err != nil {
			return nil, err
		}
		return p.node(types.NodeQueryCol, fn, t.Position, p.node(types.NodeText, c.Value, c.Position)), nil
	}
	return p.node(types.NodeQueryCol, "", t.Position, p.node(types.NodeText, t.Value, t.Position)), nil
}

// parseQueryCond parses a column followed by one or more comparisons
// joined by "||" or "&&". The node text is the junction.
func (p *Parser) parseQueryCond() (*types.AstNode, error) {
	col, err := p.parseQueryCol()
	if err != nil {
		return nil, err
	}
	cond := p.node(types.NodeQueryCond, "", col.Position, col)
	for {
		op, err := p.parseQueryOp()
		if err != nil {
			return nil, err
		}
		cond.Children = append(cond.Children, op)
		if cond.Text == "" || cond.Text == "||" {
			if p.accept(true, "||") {
				cond.Text = "||"
				continue
			}
		}
		if cond.Text == "" || cond.Text == "&&" {
			if p.accept(true, "&&") {
				cond.Text = "&&"
				continue
			}
		}
		return cond, nil
	}
}

// parseQueryOp parses one comparison. The node text is the operator and
// its children the operand values.
func (p *Parser) parseQueryOp() (*types.AstNode, error) {
	t := p.next(modeRulegen)
	var op string
	arity := 1
	switch {
	case t.is("=") || t.is("=="):
		op = "="
	case t.is("<>") || t.is("!="):
		op = "<>"
	case t.is("<"):
		op = "<"
		if p.accept(true, ">") {
			op = "<>"
		}
	case t.is(">"), t.is(">="), t.is("<="):
		op = t.Value
	case t.is("in") || t.is("IN"):
		op = "in"
	case t.is("between") || t.is("BETWEEN"):
		op, arity = "between", 2
	case t.is("like") || t.is("LIKE"):
		op = "like"
	case t.is("not like"):
		op = "not like"
	case t.is("not") || t.is("NOT"):
		if _, err := p.expect(true, "like", "LIKE"); err != nil {
			return nil, err
		}
		op = "not like"
	default:
		return nil, p.unexpected(t, "a query operator")
	}
	n := p.node(types.NodeQueryCond, op, t.Position)
	for i := 0; i < arity; i++ {
		v, err := p.parseValue(true)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, v)
	}
	return n, nil
}

// stringExpr builds the node of a string or path literal. Referenced
// variables are converted with str and concatenated with ++.
func (p *Parser) stringExpr(t Token) *types.AstNode {
	s := t.Value
	if len(t.Vars) == 0 {
		return p.node(types.NodeString, s, t.Position)
	}
	n := p.node(types.NodeString, s[:t.Vars[0]], t.Position)
	for i, vs := range t.Vars {
		ve := vs + 1
		for ve < len(s) && isIdent(rune(s[ve])) {
			ve++
		}
		vt := types.NodeLocalVar
		if s[vs] == '$' {
			vt = types.NodeSessionVar
		}
		v := p.node(vt, s[vs:ve], t.Position)
		n = p.app("++", t.Position, n, p.app("str", t.Position, v))
		end := len(s)
		if i+1 < len(t.Vars) {
			end = t.Vars[i+1]
		}
		n = p.app("++", t.Position, n, p.node(types.NodeString, s[ve:end], t.Position))
	}
	return n
}
