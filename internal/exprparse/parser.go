/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package exprparse

import (
	"fmt"

	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/evaluator"
)

// Params is the placeholder substitution table carried alongside every
// expression string in the wire protocol (ExpressionAttributeNames and
// ExpressionAttributeValues).
type Params struct {
	Names  map[string]string
	Values map[string]attrval.Value
}

type parser struct {
	toks   []token
	pos    int
	params Params
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	t := p.peek()
	if t.kind != k {
		return t, fmt.Errorf("exprparse: expected %s at offset %d, got %q", what, t.pos, t.text)
	}
	return p.next(), nil
}

// ParseCondition parses a ConditionExpression (also used for
// FilterExpression/KeyConditionExpression shapes, which share this
// grammar) into an evaluator.Cond.
func ParseCondition(src string, params Params) (*evaluator.Cond, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, params: params}
	cond, err := p.parseOrExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("exprparse: unexpected trailing input at offset %d", p.peek().pos)
	}
	return cond, nil
}

func (p *parser) parseOrExpr() (*evaluator.Cond, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	children := []*evaluator.Cond{left}
	for p.peek().kind == tokIdent && keywordEq(p.peek().text, "OR") {
		p.next()
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return evaluator.Or(children...), nil
}

func (p *parser) parseAndExpr() (*evaluator.Cond, error) {
	left, err := p.parseNotExpr()
	if err != nil {
		return nil, err
	}
	children := []*evaluator.Cond{left}
	for p.peek().kind == tokIdent && keywordEq(p.peek().text, "AND") {
		p.next()
		right, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return evaluator.And(children...), nil
}

func (p *parser) parseNotExpr() (*evaluator.Cond, error) {
	if p.peek().kind == tokIdent && keywordEq(p.peek().text, "NOT") {
		p.next()
		child, err := p.parseNotExpr()
		if err != nil {
			return nil, err
		}
		return evaluator.Not(child), nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (*evaluator.Cond, error) {
	if p.peek().kind == tokLParen {
		p.next()
		cond, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return cond, nil
	}

	if p.peek().kind == tokIdent {
		switch {
		case keywordEq(p.peek().text, "attribute_exists"):
			p.next()
			path, err := p.parseCallPath()
			if err != nil {
				return nil, err
			}
			return evaluator.AttributeExists(path), nil
		case keywordEq(p.peek().text, "attribute_not_exists"):
			p.next()
			path, err := p.parseCallPath()
			if err != nil {
				return nil, err
			}
			return evaluator.AttributeNotExists(path), nil
		case keywordEq(p.peek().text, "attribute_type"):
			p.next()
			if _, err := p.expect(tokLParen, "("); err != nil {
				return nil, err
			}
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, ","); err != nil {
				return nil, err
			}
			val, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			if val.Literal == nil || val.Literal.Kind() != attrval.KindString {
				return nil, fmt.Errorf("exprparse: attribute_type's second argument must resolve to a string")
			}
			return evaluator.AttributeType(path, val.Literal.AsString()), nil
		case keywordEq(p.peek().text, "begins_with"):
			p.next()
			if _, err := p.expect(tokLParen, "("); err != nil {
				return nil, err
			}
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, ","); err != nil {
				return nil, err
			}
			prefix, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return evaluator.BeginsWith(path, prefix), nil
		case keywordEq(p.peek().text, "contains"):
			p.next()
			if _, err := p.expect(tokLParen, "("); err != nil {
				return nil, err
			}
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokComma, ","); err != nil {
				return nil, err
			}
			needle, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRParen, ")"); err != nil {
				return nil, err
			}
			return evaluator.Contains(path, needle), nil
		}
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	if p.peek().kind == tokIdent && keywordEq(p.peek().text, "BETWEEN") {
		p.next()
		lo, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if !(p.peek().kind == tokIdent && keywordEq(p.peek().text, "AND")) {
			return nil, fmt.Errorf("exprparse: expected AND in BETWEEN at offset %d", p.peek().pos)
		}
		p.next()
		hi, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return evaluator.Between(left, lo, hi), nil
	}
	if p.peek().kind == tokIdent && keywordEq(p.peek().text, "IN") {
		p.next()
		if _, err := p.expect(tokLParen, "("); err != nil {
			return nil, err
		}
		var set []evaluator.Operand
		for {
			o, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			set = append(set, o)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			break
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		return evaluator.In(left, set), nil
	}

	t := p.peek()
	switch t.kind {
	case tokEq:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return evaluator.Eq(left, right), nil
	case tokNe:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return evaluator.Ne(left, right), nil
	case tokLt:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return evaluator.Lt(left, right), nil
	case tokLe:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return evaluator.Le(left, right), nil
	case tokGt:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return evaluator.Gt(left, right), nil
	case tokGe:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return evaluator.Ge(left, right), nil
	default:
		return nil, fmt.Errorf("exprparse: expected a comparator, BETWEEN, or IN at offset %d, got %q", t.pos, t.text)
	}
}

// parseCallPath parses "(" path ")" for the single-argument functions.
func (p *parser) parseCallPath() (evaluator.Path, error) {
	if _, err := p.expect(tokLParen, "("); err != nil {
		return nil, err
	}
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return path, nil
}

// parsePath parses a dotted/indexed attribute path, resolving "#name"
// placeholders via params.Names.
func (p *parser) parsePath() (evaluator.Path, error) {
	var path evaluator.Path
	seg, err := p.parsePathHead()
	if err != nil {
		return nil, err
	}
	path = append(path, seg)
	for {
		switch p.peek().kind {
		case tokDot:
			p.next()
			seg, err := p.parsePathHead()
			if err != nil {
				return nil, err
			}
			path = append(path, seg)
		case tokLBracket:
			p.next()
			idxTok, err := p.expect(tokNumber, "an index")
			if err != nil {
				return nil, err
			}
			idx, err := parseIndex(idxTok.text)
			if err != nil {
				return nil, fmt.Errorf("exprparse: invalid index %q: %w", idxTok.text, err)
			}
			if _, err := p.expect(tokRBracket, "]"); err != nil {
				return nil, err
			}
			path = append(path, evaluator.I(idx))
		default:
			return path, nil
		}
	}
}

func (p *parser) parsePathHead() (evaluator.PathSegment, error) {
	t := p.peek()
	switch t.kind {
	case tokNamePlaceholder:
		p.next()
		name, ok := p.params.Names[t.text]
		if !ok {
			return evaluator.PathSegment{}, fmt.Errorf("exprparse: no ExpressionAttributeNames entry for %q", t.text)
		}
		return evaluator.K(name), nil
	case tokIdent:
		p.next()
		return evaluator.K(t.text), nil
	default:
		return evaluator.PathSegment{}, fmt.Errorf("exprparse: expected an attribute name at offset %d, got %q", t.pos, t.text)
	}
}

// parseOperand parses a path reference, a "size(path)" call, or a
// ":value" placeholder, resolving the placeholder via params.Values.
func (p *parser) parseOperand() (evaluator.Operand, error) {
	if p.peek().kind == tokValuePlaceholder {
		t := p.next()
		v, ok := p.params.Values[t.text]
		if !ok {
			return evaluator.Operand{}, fmt.Errorf("exprparse: no ExpressionAttributeValues entry for %q", t.text)
		}
		return evaluator.Lit(v), nil
	}
	if p.peek().kind == tokIdent && keywordEq(p.peek().text, "size") {
		p.next()
		path, err := p.parseCallPath()
		if err != nil {
			return evaluator.Operand{}, err
		}
		return evaluator.SizeOf(path), nil
	}
	path, err := p.parsePath()
	if err != nil {
		return evaluator.Operand{}, err
	}
	return evaluator.Ref(path), nil
}

// ParseUpdate parses an UpdateExpression into an evaluator.UpdateExpr,
// rejecting (per spec.md §4.3) any path referenced by more than one
// clause.
func ParseUpdate(src string, params Params) (*evaluator.UpdateExpr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, params: params}
	var clauses []evaluator.UpdateClause
	for p.peek().kind != tokEOF {
		t := p.peek()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("exprparse: expected SET/REMOVE/ADD/DELETE at offset %d", t.pos)
		}
		switch {
		case keywordEq(t.text, "SET"):
			p.next()
			cs, err := p.parseSetClauses()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, cs...)
		case keywordEq(t.text, "REMOVE"):
			p.next()
			cs, err := p.parseRemoveClauses()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, cs...)
		case keywordEq(t.text, "ADD"):
			p.next()
			cs, err := p.parseAddOrDeleteClauses(evaluator.ClauseAdd)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, cs...)
		case keywordEq(t.text, "DELETE"):
			p.next()
			cs, err := p.parseAddOrDeleteClauses(evaluator.ClauseDelete)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, cs...)
		default:
			return nil, fmt.Errorf("exprparse: unknown update clause keyword %q at offset %d", t.text, t.pos)
		}
	}

	seen := make(map[string]bool, len(clauses))
	for _, c := range clauses {
		key := pathKey(c.Path)
		if seen[key] {
			return nil, fmt.Errorf("exprparse: attribute path %q is referenced by more than one clause", key)
		}
		seen[key] = true
	}

	return &evaluator.UpdateExpr{Clauses: clauses}, nil
}

func pathKey(path evaluator.Path) string {
	s := ""
	for _, seg := range path {
		if seg.IsIndex {
			s += fmt.Sprintf("[%d]", seg.Index)
		} else {
			s += "." + seg.Key
		}
	}
	return s
}

func (p *parser) parseSetClauses() ([]evaluator.UpdateClause, error) {
	var out []evaluator.UpdateClause
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokEq, "="); err != nil {
			return nil, err
		}
		val, err := p.parseSetOperand()
		if err != nil {
			return nil, err
		}
		out = append(out, evaluator.UpdateClause{Kind: evaluator.ClauseSet, Path: path, Value: val})
		if p.peek().kind == tokComma && !p.nextIsClauseKeywordAfterComma() {
			p.next()
			continue
		}
		break
	}
	return out, nil
}

// nextIsClauseKeywordAfterComma never applies within SET (commas always
// separate SET actions, never clauses), but is kept symmetric with the
// REMOVE/ADD/DELETE loops below for readability.
func (p *parser) nextIsClauseKeywordAfterComma() bool { return false }

func (p *parser) parseSetOperand() (evaluator.Operand, error) {
	left, err := p.parseOperand()
	if err != nil {
		return evaluator.Operand{}, err
	}
	switch p.peek().kind {
	case tokPlus:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return evaluator.Operand{}, err
		}
		return evaluator.Operand{Plus: &evaluator.BinaryOperand{Left: left, Right: right}}, nil
	case tokMinus:
		p.next()
		right, err := p.parseOperand()
		if err != nil {
			return evaluator.Operand{}, err
		}
		return evaluator.Operand{Minus: &evaluator.BinaryOperand{Left: left, Right: right}}, nil
	default:
		return left, nil
	}
}

func (p *parser) parseRemoveClauses() ([]evaluator.UpdateClause, error) {
	var out []evaluator.UpdateClause
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		out = append(out, evaluator.UpdateClause{Kind: evaluator.ClauseRemove, Path: path})
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	return out, nil
}

func (p *parser) parseAddOrDeleteClauses(kind evaluator.UpdateClauseKind) ([]evaluator.UpdateClause, error) {
	var out []evaluator.UpdateClause
	for {
		path, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		val, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		out = append(out, evaluator.UpdateClause{Kind: kind, Path: path, Value: val})
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	return out, nil
}
