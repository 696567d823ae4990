package parser

import (
	"unicode"

	"github.com/sandrolain/goirl/pkg/types"
)

// Type grammar
//
//	FuncType  = Type [ "*" | "+" | "?" ] "->" Type | Type
//	Type      = Component { "*" Component }
//	Component = "forall" VAR [ "in" Set ] "," Component
//	          | VAR [Set] | "?" | "integer" | "double" | "boolean" | "time" | "string" | "path"
//	          | "list" Component | "unit" | "(" Type ")" | "<" Type ">" | "`" name "`"
//	          | "f" Component [ "=>" Component ]
//	          | ("o"|"output"|"i"|"input"|"e"|"expression"|"a"|"actions"|"d"|"dynamic") Component
//	          | "type" | "set" | NAME [ "(" Type { "," Type } ")" ]
//	Set       = "{" Component { Component } "}"
//
// Type variables are upper case names or integers; every occurrence in a
// signature refers to the same variable.

// parseFuncType parses a function signature in its own type variable scope.
func (p *Parser) parseFuncType() (*types.ExprType, error) {
	if p.symtab == nil {
		p.symtab = map[string]*types.ExprType{}
	}
	mark := p.mark()
	saved := cloneSymtab(p.symtab)
	if ft, err := p.parseArrow(); err == nil {
		return ft, nil
	}
	p.reset(mark)
	p.symtab = saved
	ret, err := p.parseTypeExpr(0, false)
	if err != nil {
		return nil, err
	}
	return types.NewFuncType(types.NewTupleType(), ret, types.VarargOnce), nil
}

func (p *Parser) parseArrow() (*types.ExprType, error) {
	params, err := p.parseTypeExpr(0, true)
	if err != nil {
		return nil, err
	}
	vararg := types.VarargOnce
	switch {
	case p.accept(true, "*"):
		vararg = types.VarargStar
	case p.accept(true, "+"):
		vararg = types.VarargPlus
	case p.accept(true, "?"):
		vararg = types.VarargOptional
	}
	if _, err := p.expect(true, "->"); err != nil {
		return nil, err
	}
	ret, err := p.parseTypeExpr(0, false)
	if err != nil {
		return nil, err
	}
	return types.NewFuncType(params, ret, vararg), nil
}

// parseTypeExpr parses a type. With prec 1 only one component is read.
// lifted forces a tuple even for a single component.
func (p *Parser) parseTypeExpr(prec int, lifted bool) (*types.ExprType, error) {
	if prec != 1 {
		t := p.peek(modeRulegen)
		if t.is("->") || t.is("=>") || t.is(")") || t.is(">") || t.Type == TokenEOF {
			return types.NewTupleType(), nil
		}
	}
	var comps []*types.ExprType
	for {
		c, quantifier, err := p.parseTypeComponent()
		if err != nil {
			return nil, err
		}
		mark := p.mark()
		if p.accept(true, ":") {
			if _, err := p.parseTypeExpr(1, false); err != nil {
				p.reset(mark)
			}
		}
		if quantifier {
			continue
		}
		comps = append(comps, c)
		if prec == 1 {
			break
		}
		mark = p.mark()
		if !p.accept(true, "*") {
			break
		}
		if p.lookahead(true, "->") {
			p.reset(mark)
			break
		}
	}
	if len(comps) == 1 && !lifted {
		return comps[0], nil
	}
	return types.NewTupleType(comps...), nil
}

// parseTypeComponent parses one component. quantifier is true when a
// forall binding was read and the component still follows.
func (p *Parser) parseTypeComponent() (t *types.ExprType, quantifier bool, err error) {
	tok := p.next(modeRulegen)
	switch tok.Type {
	case TokenBackquoted:
		return types.NewIrodsType(tok.Value), false, nil
	case TokenInt:
		t, err = p.typeVar(tok.Value)
		return t, false, err
	case TokenText:
		if unicode.IsUpper(rune(tok.Value[0])) {
			t, err = p.typeVar(tok.Value)
			return t, false, err
		}
	case TokenMisc, TokenOp:
	default:
		return nil, false, p.unexpected(tok, "a type")
	}

	switch tok.Value {
	case "?":
		return types.NewSimpleType(types.TDynamic), false, nil
	case "integer", "int":
		return types.NewSimpleType(types.TInt), false, nil
	case "double":
		return types.NewSimpleType(types.TDouble), false, nil
	case "boolean":
		return types.NewSimpleType(types.TBool), false, nil
	case "time":
		return types.NewSimpleType(types.TDatetime), false, nil
	case "string":
		return types.NewSimpleType(types.TString), false, nil
	case "path":
		return types.NewSimpleType(types.TPath), false, nil
	case "unit":
		return types.NewTupleType(), false, nil
	case "type", "set":
		return types.NewSimpleType(types.TType), false, nil
	case "list":
		elem, err := p.parseTypeExpr(1, false)
		if err != nil {
			return nil, false, err
		}
		return types.NewListType(elem), false, nil
	case "(":
		inner, err := p.parseTypeExpr(0, false)
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expect(true, ")"); err != nil {
			return nil, false, err
		}
		return inner, false, nil
	case "<":
		inner, err := p.parseTypeExpr(0, true)
		if err != nil {
			return nil, false, err
		}
		if _, err := p.expect(true, ">"); err != nil {
			return nil, false, err
		}
		return inner, false, nil
	case "forall":
		name := p.next(modeRulegen)
		if name.Type != TokenText || !unicode.IsUpper(rune(name.Value[0])) {
			return nil, false, p.unexpected(name, "a type variable")
		}
		var disjuncts []*types.ExprType
		if p.accept(true, "in") {
			if disjuncts, err = p.parseTypeSet(); err != nil {
				return nil, false, err
			}
		}
		if _, err := p.expect(true, ","); err != nil {
			return nil, false, err
		}
		p.symtab[name.Value] = types.NewTVar(types.NextTVarID(), disjuncts...)
		return nil, true, nil
	case "f":
		inner, err := p.parseTypeExpr(1, false)
		if err != nil {
			return nil, false, err
		}
		if p.accept(true, "=>") {
			target, err := p.parseTypeExpr(1, false)
			if err != nil {
				return nil, false, err
			}
			return types.NewFixedType(inner, target), false, nil
		}
		return types.NewFlexType(inner), false, nil
	case "output", "o", "input", "i", "expression", "e", "actions", "a", "dynamic", "d":
		inner, err := p.parseTypeExpr(1, false)
		if err != nil {
			return nil, false, err
		}
		return inner.WithIO(ioFlag(tok.Value, inner.IO)), false, nil
	}

	if tok.Type != TokenText {
		return nil, false, p.unexpected(tok, "a type")
	}
	var args []*types.ExprType
	if p.accept(true, "(") {
		for {
			a, err := p.parseTypeExpr(0, false)
			if err != nil {
				return nil, false, err
			}
			args = append(args, a)
			sep, err := p.expect(true, ",", ")")
			if err != nil {
				return nil, false, err
			}
			if sep.is(")") {
				break
			}
		}
	}
	return types.NewConsType(tok.Value, args...), false, nil
}

func ioFlag(word string, cur types.IOType) types.IOType {
	switch word {
	case "output", "o":
		return types.IOOutput
	case "input", "i":
		return types.IOInput | cur&types.IOOutput
	case "expression", "e":
		return types.IOExpression
	case "actions", "a":
		return types.IOActions
	}
	return types.IODynamic
}

// typeVar returns the variable named name in the current signature,
// declaring it with an optional bound set on first use.
func (p *Parser) typeVar(name string) (*types.ExprType, error) {
	if v, ok := p.symtab[name]; ok {
		return v, nil
	}
	var disjuncts []*types.ExprType
	if p.lookahead(true, "{") {
		var err error
		if disjuncts, err = p.parseTypeSet(); err != nil {
			return nil, err
		}
	}
	v := types.NewTVar(types.NextTVarID(), disjuncts...)
	p.symtab[name] = v
	return v, nil
}

// parseTypeSet parses "{ T T ... }".
func (p *Parser) parseTypeSet() ([]*types.ExprType, error) {
	if _, err := p.expect(true, "{"); err != nil {
		return nil, err
	}
	var set []*types.ExprType
	for {
		t, err := p.parseTypeExpr(1, false)
		if err != nil {
			return nil, err
		}
		set = append(set, t)
		if p.accept(true, "}") {
			return set, nil
		}
	}
}

func cloneSymtab(m map[string]*types.ExprType) map[string]*types.ExprType {
	c := make(map[string]*types.ExprType, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
