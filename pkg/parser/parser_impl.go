package parser

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/sandrolain/goirl/pkg/types"
)

// Parser implements a backtracking recursive descent parser for the rule
// language. Alternatives save the token position with mark and restore it
// with reset when they fail.
type Parser struct {
	lexer *Lexer
	base  string
	arena *types.NodeArena
	opts  CompileOptions

	// tokens read so far, with the mode each was lexed in and the offset
	// the lexer started from. A token requested in an incompatible mode is
	// lexed again from its offset.
	tokens []Token
	modes  []lexMode
	starts []int
	pos    int

	depth   int
	err     *types.Error // furthest failure
	compat  Compat
	symtab  map[string]*types.ExprType // type variables of the current signature
	visited map[string]bool            // rule bases on the include stack
}

// NewParser creates a parser over input. Nodes are allocated from arena and
// carry base as their source name.
func NewParser(input, base string, arena *types.NodeArena, opts ...CompileOption) *Parser {
	options := CompileOptions{
		MaxDepth: 500,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if arena == nil {
		arena = types.NewNodeArena()
	}
	return &Parser{
		lexer:   NewLexer(input),
		base:    base,
		arena:   arena,
		opts:    options,
		compat:  options.BackwardCompatible,
		visited: map[string]bool{base: true},
	}
}

// ParseRules parses the whole input as a rule set.
func (p *Parser) ParseRules() ([]*types.RuleDesc, error) {
	var rules []*types.RuleDesc
	for {
		t := p.peek(modeRulegen)
		switch {
		case t.Type == TokenEOF:
			return rules, nil
		case t.is("@"):
			included, err := p.parseDirective()
			if err != nil {
				return nil, p.failure(err)
			}
			rules = append(rules, included...)
			continue
		}
		p.err = nil
		rs, err := p.parseRule()
		if err != nil {
			return nil, p.failure(err)
		}
		rules = append(rules, rs...)
	}
}

// ParseTerm parses the whole input as one expression.
func (p *Parser) ParseTerm() (*types.AstNode, error) {
	n, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, p.failure(err)
	}
	if err := p.expectEnd(modeRulegen); err != nil {
		return nil, err
	}
	return n, nil
}

// ParseActionSequence parses the whole input as actions with recoveries.
func (p *Parser) ParseActionSequence() (*types.AstNode, error) {
	pos := p.peek(modeRulegen).Position
	acts, reco, err := p.parseActions()
	if err != nil {
		return nil, p.failure(err)
	}
	if err := p.expectEnd(modeRulegen); err != nil {
		return nil, err
	}
	return p.node(types.NodeActionsRecovery, "", pos, acts, reco), nil
}

// ParseSignature parses the whole input as a function type.
func (p *Parser) ParseSignature() (*types.ExprType, error) {
	p.symtab = map[string]*types.ExprType{}
	t, err := p.parseFuncType()
	if err != nil {
		return nil, p.failure(err)
	}
	if err := p.expectEnd(modeRulegen); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Parser) expectEnd(mode lexMode) error {
	t := p.peek(mode)
	if t.Type != TokenEOF {
		return types.Errorf(types.ReUnparsedSuffix, "unparsed suffix starting at %s", describe(t)).At(p.base, t.Position)
	}
	return nil
}

// failure returns the error to report for a failed parse: the furthest
// syntax error seen, or err itself when it is not a syntax error.
func (p *Parser) failure(err error) error {
	if _, ok := err.(*types.Error); ok && p.err != nil {
		return p.err
	}
	return err
}

// Token stream

func modeOf(rulegen bool) lexMode {
	if rulegen {
		return modeRulegen
	}
	return 0
}

// next returns the token at the current position lexed in mode and
// advances past it.
func (p *Parser) next(mode lexMode) Token {
	if p.pos < len(p.tokens) {
		if p.compatible(p.pos, mode) {
			t := p.tokens[p.pos]
			p.pos++
			return t
		}
		p.lexer.Reset(p.starts[p.pos])
		p.tokens = p.tokens[:p.pos]
		p.modes = p.modes[:p.pos]
		p.starts = p.starts[:p.pos]
	}
	start := p.lexer.Offset()
	t := p.lexer.Next(mode)
	p.tokens = append(p.tokens, t)
	p.modes = append(p.modes, mode)
	p.starts = append(p.starts, start)
	p.pos++
	return t
}

// compatible reports whether the cached token i reads the same in mode.
// Path mode only changes how '/' is read.
func (p *Parser) compatible(i int, mode lexMode) bool {
	m := p.modes[i]
	if m == mode {
		return true
	}
	if m&modeRulegen != mode&modeRulegen {
		return false
	}
	t := p.tokens[i]
	return t.Type != TokenPath && !(t.Type == TokenOp && t.Value == "/")
}

func (p *Parser) peek(mode lexMode) Token {
	t := p.next(mode)
	p.pos--
	return t
}

func (p *Parser) mark() int {
	return p.pos
}

func (p *Parser) reset(mark int) {
	p.pos = mark
}

// accept consumes the next token if it is spelled s.
func (p *Parser) accept(rg bool, s string) bool {
	mark := p.mark()
	if p.next(modeOf(rg)).is(s) {
		return true
	}
	p.reset(mark)
	return false
}

// lookahead reports whether the next token is spelled s.
func (p *Parser) lookahead(rg bool, s string) bool {
	return p.peek(modeOf(rg)).is(s)
}

// expect consumes a token spelled as one of alts.
func (p *Parser) expect(rg bool, alts ...string) (Token, error) {
	t := p.next(modeOf(rg))
	for _, s := range alts {
		if t.is(s) {
			return t, nil
		}
	}
	return t, p.unexpected(t, quoteAll(alts))
}

// expectType consumes a token of type tt.
func (p *Parser) expectType(rg bool, tt TokenType) (Token, error) {
	t := p.next(modeOf(rg))
	if t.Type != tt {
		return t, p.unexpected(t, tt.String())
	}
	return t, nil
}

// fail records a syntax error at t and returns it.
func (p *Parser) fail(t Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if t.Type == TokenError {
		msg = t.Value
	}
	e := types.NewError(types.ReParserError, msg).At(p.base, t.Position)
	if p.err == nil || t.Position > p.err.Position {
		p.err = e
	}
	return e
}

func (p *Parser) unexpected(t Token, want string) error {
	return p.fail(t, "syntax error: unexpected %s, expected %s", describe(t), want)
}

func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenString:
		return "string " + strconv.Quote(t.Value)
	}
	return strconv.Quote(t.Value)
}

func quoteAll(alts []string) string {
	s := ""
	for i, a := range alts {
		if i > 0 {
			s += " or "
		}
		s += strconv.Quote(a)
	}
	return s
}

// Node construction

func (p *Parser) node(nt types.NodeType, text string, pos int, children ...*types.AstNode) *types.AstNode {
	n := p.arena.Alloc(nt, text, pos)
	n.Base = p.base
	n.Children = children
	return n
}

// app builds the application fn(args...).
func (p *Parser) app(fn string, pos int, args ...*types.AstNode) *types.AstNode {
	tuple := p.node(types.NodeTuple, "", pos, args...)
	tuple.ConstructTuple = true
	return p.node(types.NodeApplication, "", pos, p.node(types.NodeText, fn, pos), tuple)
}

func (p *Parser) nop(pos int) *types.AstNode {
	return p.app("nop", pos)
}

func (p *Parser) nopActions(pos int) *types.AstNode {
	return p.node(types.NodeActions, "", pos, p.nop(pos))
}

func (p *Parser) boolTrue(pos int) *types.AstNode {
	return p.node(types.NodeBool, "true", pos)
}

// Rules

// parseDirective parses @backwardCompatible and @include.
func (p *Parser) parseDirective() ([]*types.RuleDesc, error) {
	if _, err := p.expect(true, "@"); err != nil {
		return nil, err
	}
	t := p.next(modeRulegen)
	switch {
	case t.is("backwardCompatible"):
		v := p.next(modeRulegen)
		if v.Type != TokenText && v.Type != TokenString {
			return nil, p.unexpected(v, `"true", "false" or "auto"`)
		}
		switch v.Value {
		case "true":
			p.compat = CompatTrue
		case "false":
			p.compat = CompatFalse
		case "auto":
			p.compat = CompatAuto
		default:
			return nil, p.unexpected(v, `"true", "false" or "auto"`)
		}
		return nil, nil
	case t.is("include"):
		v := p.next(modeRulegen)
		if v.Type != TokenText && v.Type != TokenString {
			return nil, p.unexpected(v, "rule base name")
		}
		return p.include(v)
	}
	return nil, p.unexpected(t, `"backwardCompatible" or "include"`)
}

func (p *Parser) include(t Token) ([]*types.RuleDesc, error) {
	name := t.Value
	if p.opts.Includer == nil {
		return nil, types.Errorf(types.SysNotSupported, "cannot include %q: no includer configured", name).At(p.base, t.Position)
	}
	if p.visited[name] {
		return nil, types.Errorf(types.ReParserError, "recursive include of %q", name).At(p.base, t.Position)
	}
	src, err := p.opts.Includer(name)
	if err != nil {
		return nil, errors.Wrapf(err, "include %s", name)
	}
	opts := p.opts
	opts.BackwardCompatible = p.compat
	sub := NewParser(src, name, p.arena)
	sub.opts = opts
	sub.compat = p.compat
	for b := range p.visited {
		sub.visited[b] = true
	}
	rules, err := sub.ParseRules()
	if err != nil {
		return nil, errors.Wrapf(err, "include %s", name)
	}
	return rules, nil
}

// parseRule parses one rule, declaration or data type. A data type
// declaration yields the type and one entry per constructor.
func (p *Parser) parseRule() ([]*types.RuleDesc, error) {
	mark := p.mark()
	t := p.peek(0)
	switch {
	case t.is("data"):
		return p.parseDataDef()
	case t.is("constructor"):
		r, err := p.parseConstructorDef()
		if err != nil {
			return nil, err
		}
		return []*types.RuleDesc{r}, nil
	}
	if r, err := p.parseExternDef(); err == nil {
		return []*types.RuleDesc{r}, nil
	}
	p.reset(mark)
	return p.parseRuleDef()
}

func (p *Parser) parseDataDef() ([]*types.RuleDesc, error) {
	if _, err := p.expect(false, "data"); err != nil {
		return nil, err
	}
	name, _, err := p.parseRuleName()
	if err != nil {
		return nil, err
	}
	rules := []*types.RuleDesc{{Kind: types.RuleData, Name: name.Text, Base: p.base, Type: types.NewConsType(name.Text)}}
	if p.accept(true, "=") {
		p.accept(true, "|")
		for {
			c, err := p.expectType(true, TokenText)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(true, ":"); err != nil {
				return nil, err
			}
			p.symtab = map[string]*types.ExprType{}
			ft, err := p.parseFuncType()
			if err != nil {
				return nil, err
			}
			rules = append(rules, &types.RuleDesc{Kind: types.RuleConstr, Name: c.Value, Base: p.base, Type: ft})
			if !p.accept(true, "|") {
				break
			}
		}
	}
	p.accept(true, ";")
	return rules, nil
}

func (p *Parser) parseConstructorDef() (*types.RuleDesc, error) {
	if _, err := p.expect(false, "constructor"); err != nil {
		return nil, err
	}
	c, err := p.expectType(true, TokenText)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, ":"); err != nil {
		return nil, err
	}
	p.symtab = map[string]*types.ExprType{}
	ft, err := p.parseFuncType()
	if err != nil {
		return nil, err
	}
	return &types.RuleDesc{Kind: types.RuleConstr, Name: c.Value, Base: p.base, Type: ft}, nil
}

func (p *Parser) parseExternDef() (*types.RuleDesc, error) {
	name, err := p.expectType(false, TokenText)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(false, ":"); err != nil {
		return nil, err
	}
	p.symtab = map[string]*types.ExprType{}
	ft, err := p.parseFuncType()
	if err != nil {
		return nil, err
	}
	return &types.RuleDesc{Kind: types.RuleExtern, Name: name.Value, Base: p.base, Type: ft}, nil
}

func (p *Parser) parseRuleDef() ([]*types.RuleDesc, error) {
	name, sig, err := p.parseRuleName()
	if err != nil {
		return nil, err
	}
	t := p.next(0)
	switch {
	case t.is("{"):
		return p.parseRelBody(name, sig)
	case t.is("|"):
		r, err := p.parseOldRule(name, sig)
		if err != nil {
			return nil, err
		}
		return []*types.RuleDesc{r}, nil
	case t.is("="):
		r, err := p.parseFuncBody(name, sig)
		if err != nil {
			return nil, err
		}
		return []*types.RuleDesc{r}, nil
	}
	return nil, p.unexpected(t, `"{", "|" or "="`)
}

// parseRelBody parses the clauses of a new syntax rule after its "{".
func (p *Parser) parseRelBody(name *types.AstNode, sig *types.ExprType) ([]*types.RuleDesc, error) {
	var rules []*types.RuleDesc
	dynamic := p.compat == CompatTrue
	for {
		mark := p.mark()
		t := p.next(modeRulegen)
		var cond *types.AstNode
		switch {
		case t.is("on") || t.is("ON") || t.is("oron") || t.is("ORON"):
			c, err := p.parseTerm(true, minPrec)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(true, "{"); err != nil {
				return nil, err
			}
			cond = c
		case t.is("or") || t.is("OR"):
			if _, err := p.expect(true, "{"); err != nil {
				return nil, err
			}
			cond = p.boolTrue(t.Position)
		case t.is("}") && len(rules) > 0:
			return rules, nil
		case len(rules) == 0:
			p.reset(mark)
			cond = p.boolTrue(t.Position)
			r, err := p.parseClause(name, sig, cond, dynamic)
			if err != nil {
				return nil, err
			}
			return []*types.RuleDesc{r}, nil
		default:
			return nil, p.unexpected(t, `"on", "or" or "}"`)
		}
		r, err := p.parseClause(name, sig, cond, dynamic)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
}

// parseClause parses "Actions } Metadata".
func (p *Parser) parseClause(name *types.AstNode, sig *types.ExprType, cond *types.AstNode, dynamic bool) (*types.RuleDesc, error) {
	acts, reco, err := p.parseActions()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(true, "}"); err != nil {
		return nil, err
	}
	meta, err := p.parseMetadata()
	if err != nil {
		return nil, err
	}
	return p.ruleDesc(types.RuleRel, name, sig, cond, acts, reco, meta, dynamic), nil
}

// parseOldRule parses "[cond] | actions | recoveries [| id]" after the
// first "|".
func (p *Parser) parseOldRule(name *types.AstNode, sig *types.ExprType) (*types.RuleDesc, error) {
	var cond *types.AstNode
	if t := p.peek(0); t.is("|") {
		p.next(0)
		cond = p.boolTrue(t.Position)
	} else {
		c, err := p.parseTerm(false, minPrec)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(false, "|"); err != nil {
			return nil, err
		}
		cond = c
	}
	acts, err := p.parseLegacyActions()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(false, "|"); err != nil {
		return nil, err
	}
	reco, err := p.parseLegacyActions()
	if err != nil {
		return nil, err
	}
	meta := p.node(types.NodeMetadata, "", name.Position)
	if p.accept(false, "|") {
		id, err := p.expectType(false, TokenInt)
		if err != nil {
			return nil, err
		}
		meta.Children = append(meta.Children, p.avu(id.Position, "id", id.Value, ""))
	}
	return p.ruleDesc(types.RuleRel, name, sig, cond, acts, reco, meta, p.compat != CompatFalse), nil
}

// parseFuncBody parses "expr [::: recovery] Metadata [;]" after the "=".
func (p *Parser) parseFuncBody(name *types.AstNode, sig *types.ExprType) (*types.RuleDesc, error) {
	body, err := p.parseTerm(true, minPrec)
	if err != nil {
		return nil, err
	}
	reco := p.nop(body.Position)
	if p.accept(true, ":::") {
		if reco, err = p.parseTerm(true, minPrec); err != nil {
			return nil, err
		}
	}
	meta, err := p.parseMetadata()
	if err != nil {
		return nil, err
	}
	p.accept(true, ";")
	return p.ruleDesc(types.RuleFunc, name, sig, p.boolTrue(name.Position), body, reco, meta, false), nil
}

func (p *Parser) ruleDesc(kind types.RuleKind, name *types.AstNode, sig *types.ExprType, cond, acts, reco, meta *types.AstNode, dynamic bool) *types.RuleDesc {
	node := p.node(types.NodeRule, name.Text, name.Position, name, cond, acts, reco, meta)
	r := &types.RuleDesc{
		Kind:    kind,
		Name:    name.Text,
		Base:    p.base,
		Node:    node,
		Type:    sig,
		Dynamic: dynamic,
	}
	if id, ok := r.Meta("id"); ok {
		r.ID, _ = strconv.Atoi(id)
	}
	return r
}

// parseRuleName parses a rule head in old syntax lexing mode. The returned
// signature is nil unless a parameter or the result is annotated.
func (p *Parser) parseRuleName() (*types.AstNode, *types.ExprType, error) {
	t, err := p.expectType(false, TokenText)
	if err != nil {
		return nil, nil, err
	}
	p.symtab = map[string]*types.ExprType{}
	params := p.node(types.NodeTuple, "", t.Position)
	params.ConstructTuple = true
	var ptypes []*types.ExprType
	annotated := false
	if p.accept(false, "(") {
		if !p.accept(false, ")") {
			for {
				param, err := p.parseTerm(false, minPrec)
				if err != nil {
					return nil, nil, err
				}
				var pt *types.ExprType
				if p.accept(false, ":") {
					if pt, err = p.parseTypeExpr(0, false); err != nil {
						return nil, nil, err
					}
					annotated = true
				}
				params.Children = append(params.Children, param)
				ptypes = append(ptypes, pt)
				sep, err := p.expect(false, ",", ")")
				if err != nil {
					return nil, nil, err
				}
				if sep.is(")") {
					break
				}
			}
		}
	}
	var ret *types.ExprType
	if p.accept(false, ":") {
		ft, err := p.parseFuncType()
		if err != nil {
			return nil, nil, err
		}
		if ft.Params().Arity() > 0 && !annotated {
			ptypes = ft.Params().Args
		}
		ret = ft.Ret()
		annotated = true
	}
	name := p.node(types.NodeRuleName, t.Value, t.Position, params)
	if !annotated {
		return name, nil, nil
	}
	args := make([]*types.ExprType, len(params.Children))
	for i := range args {
		if i < len(ptypes) && ptypes[i] != nil {
			args[i] = ptypes[i]
		} else {
			args[i] = types.NewSimpleType(types.TDynamic)
		}
	}
	if ret == nil {
		ret = types.NewSimpleType(types.TDynamic)
	}
	return name, types.NewFuncType(types.NewTupleType(args...), ret, types.VarargOnce), nil
}

// parseMetadata parses any number of @("attr", "value"[, "unit"]).
func (p *Parser) parseMetadata() (*types.AstNode, error) {
	meta := p.node(types.NodeMetadata, "", p.peek(modeRulegen).Position)
	for {
		mark := p.mark()
		avu, ok := p.parseAVU()
		if !ok {
			p.reset(mark)
			return meta, nil
		}
		meta.Children = append(meta.Children, avu)
	}
}

func (p *Parser) parseAVU() (*types.AstNode, bool) {
	at, err := p.expect(true, "@")
	if err != nil {
		return nil, false
	}
	if _, err := p.expect(true, "("); err != nil {
		return nil, false
	}
	var parts [3]string
	n := 0
	for n < 3 {
		s, err := p.expectType(true, TokenString)
		if err != nil {
			return nil, false
		}
		parts[n] = s.Value
		n++
		sep, err := p.expect(true, ",", ")")
		if err != nil {
			return nil, false
		}
		if sep.is(")") {
			break
		}
	}
	if n < 2 {
		return nil, false
	}
	return p.avu(at.Position, parts[0], parts[1], parts[2]), true
}

func (p *Parser) avu(pos int, a, v, u string) *types.AstNode {
	return p.node(types.NodeAVU, "", pos,
		p.node(types.NodeString, a, pos),
		p.node(types.NodeString, v, pos),
		p.node(types.NodeString, u, pos))
}

// parseActions parses new syntax actions up to a closing brace or the end
// of input and returns the actions and their recoveries.
func (p *Parser) parseActions() (*types.AstNode, *types.AstNode, error) {
	pos := p.peek(modeRulegen).Position
	acts := p.node(types.NodeActions, "", pos)
	reco := p.node(types.NodeActions, "", pos)
	for {
		t := p.peek(modeRulegen)
		if t.is("}") || t.Type == TokenEOF {
			return acts, reco, nil
		}
		a, err := p.parseTerm(true, minPrec)
		if err != nil {
			return nil, nil, err
		}
		r := p.nop(a.Position)
		if p.accept(true, ":::") {
			if r, err = p.parseTerm(true, minPrec); err != nil {
				return nil, nil, err
			}
		}
		acts.Children = append(acts.Children, a)
		reco.Children = append(reco.Children, r)
		p.accept(true, ";")
	}
}

// parseLegacyActions parses "##" separated actions.
func (p *Parser) parseLegacyActions() (*types.AstNode, error) {
	pos := p.peek(0).Position
	acts := p.node(types.NodeActions, "", pos)
	if t := p.peek(0); t.is("|") || t.Type == TokenEOF {
		acts.Children = append(acts.Children, p.nop(pos))
		return acts, nil
	}
	for {
		a, err := p.parseTerm(false, minPrec)
		if err != nil {
			return nil, err
		}
		acts.Children = append(acts.Children, a)
		if !p.accept(false, "##") {
			return acts, nil
		}
	}
}
