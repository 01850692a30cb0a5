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

package evaluator

import (
	"fmt"

	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/shopspring/decimal"
)

var zeroDecimal = decimal.NewFromInt(0)

// Item is the attribute-name to attribute-value mapping an op reads and
// writes. It is always a fresh copy — Apply* functions never mutate the
// map or Values passed to them.
type Item map[string]attrval.Value

func (it Item) clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Resolve walks path against item, returning the addressed value and
// whether it is present. A path through a wrong-shaped container (e.g. an
// index segment into a map) resolves as absent, never an error.
func Resolve(item Item, path Path) (attrval.Value, bool) {
	if len(path) == 0 || path[0].IsIndex {
		return attrval.Value{}, false
	}
	v, ok := item[path[0].Key]
	if !ok {
		return attrval.Value{}, false
	}
	for _, seg := range path[1:] {
		if seg.IsIndex {
			if v.Kind() != attrval.KindList {
				return attrval.Value{}, false
			}
			list := v.AsList()
			if seg.Index < 0 || seg.Index >= len(list) {
				return attrval.Value{}, false
			}
			v = list[seg.Index]
		} else {
			if v.Kind() != attrval.KindMap {
				return attrval.Value{}, false
			}
			child, ok := v.Field(seg.Key)
			if !ok {
				return attrval.Value{}, false
			}
			v = child
		}
	}
	return v, true
}

func resolveOperand(item Item, op Operand) (attrval.Value, bool) {
	switch {
	case op.Literal != nil:
		return *op.Literal, true
	case op.Size != nil:
		v, ok := Resolve(item, op.Size)
		if !ok {
			return attrval.Value{}, false
		}
		n := v.Len()
		if n < 0 {
			return attrval.Value{}, false
		}
		return attrval.Number(decimal.NewFromInt(int64(n))), true
	case op.Plus != nil:
		l, lok := resolveOperand(item, op.Plus.Left)
		r, rok := resolveOperand(item, op.Plus.Right)
		if !lok || !rok || l.Kind() != attrval.KindNumber || r.Kind() != attrval.KindNumber {
			return attrval.Value{}, false
		}
		return attrval.Add(l, r), true
	case op.Minus != nil:
		l, lok := resolveOperand(item, op.Minus.Left)
		r, rok := resolveOperand(item, op.Minus.Right)
		if !lok || !rok || l.Kind() != attrval.KindNumber || r.Kind() != attrval.KindNumber {
			return attrval.Value{}, false
		}
		return attrval.Subtract(l, r), true
	default:
		return Resolve(item, op.Ref)
	}
}

// EvalCond evaluates a condition AST against an item image. A comparison
// against a missing path or a type mismatch is false, never an error
// (spec.md §4.3).
func EvalCond(item Item, c *Cond) bool {
	if c == nil {
		return true
	}
	switch c.Op {
	case CondEq, CondNe, CondLt, CondLe, CondGt, CondGe:
		return evalComparison(item, c)
	case CondBetween:
		v, ok := resolveOperand(item, c.Left)
		lo, lok := resolveOperand(item, c.Lower)
		hi, hok := resolveOperand(item, c.Upper)
		if !ok || !lok || !hok {
			return false
		}
		cl, okl := attrval.Compare(v, lo)
		ch, okh := attrval.Compare(v, hi)
		return okl && okh && cl >= 0 && ch <= 0
	case CondIn:
		v, ok := resolveOperand(item, c.Left)
		if !ok {
			return false
		}
		for _, s := range c.Set {
			sv, sok := resolveOperand(item, s)
			if sok && attrval.Equal(v, sv) {
				return true
			}
		}
		return false
	case CondAttributeExists:
		_, ok := Resolve(item, c.Path)
		return ok
	case CondAttributeNotExists:
		_, ok := Resolve(item, c.Path)
		return !ok
	case CondAttributeType:
		v, ok := Resolve(item, c.Path)
		return ok && v.Kind().String() == c.TypeTag
	case CondBeginsWith:
		v, ok := Resolve(item, c.Path)
		prefix, pok := resolveOperand(item, c.Right)
		return ok && pok && attrval.BeginsWith(v, prefix)
	case CondContains:
		v, ok := Resolve(item, c.Path)
		needle, nok := resolveOperand(item, c.Right)
		return ok && nok && attrval.Contains(v, needle)
	case CondAnd:
		for _, child := range c.Children {
			if !EvalCond(item, child) {
				return false
			}
		}
		return true
	case CondOr:
		for _, child := range c.Children {
			if EvalCond(item, child) {
				return true
			}
		}
		return false
	case CondNot:
		return !EvalCond(item, c.Children[0])
	default:
		return false
	}
}

func evalComparison(item Item, c *Cond) bool {
	l, lok := resolveOperand(item, c.Left)
	r, rok := resolveOperand(item, c.Right)
	if !lok || !rok {
		return false
	}
	if c.Op == CondEq {
		return attrval.Equal(l, r)
	}
	if c.Op == CondNe {
		return !attrval.Equal(l, r)
	}
	cmp, ok := attrval.Compare(l, r)
	if !ok {
		return false
	}
	switch c.Op {
	case CondLt:
		return cmp < 0
	case CondLe:
		return cmp <= 0
	case CondGt:
		return cmp > 0
	case CondGe:
		return cmp >= 0
	default:
		return false
	}
}

// ValidateUpdate rejects an UpdateExpr whose clauses reference the same
// attribute path more than once — spec.md §4.3 calls this undefined
// behavior and requires a validation error rather than a best-effort
// resolution.
func ValidateUpdate(u *UpdateExpr) error {
	seen := make(map[string]bool, len(u.Clauses))
	for _, cl := range u.Clauses {
		key := pathKey(cl.Path)
		if seen[key] {
			return apierr.New(apierr.ValidationException, "update expression references path %q more than once", key)
		}
		seen[key] = true
	}
	return nil
}

func pathKey(p Path) string {
	s := ""
	for _, seg := range p {
		if seg.IsIndex {
			s += fmt.Sprintf("[%d]", seg.Index)
		} else {
			s += "." + seg.Key
		}
	}
	return s
}

// ApplyUpdate applies every clause of an already-validated UpdateExpr to
// item, returning a new image. Clauses are applied in the order given,
// and each clause's operands resolve against the image produced by the
// clauses before it; ValidateUpdate guarantees no two clauses target the
// same path.
func ApplyUpdate(item Item, u *UpdateExpr) (Item, error) {
	cur := item.clone()
	for _, cl := range u.Clauses {
		var err error
		switch cl.Kind {
		case ClauseSet:
			cur, err = applySet(cur, cl)
		case ClauseRemove:
			cur = applyRemove(cur, cl.Path)
		case ClauseAdd:
			cur, err = applyAdd(cur, cl)
		case ClauseDelete:
			cur, err = applyDelete(cur, cl)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

func applySet(item Item, cl UpdateClause) (Item, error) {
	if len(cl.Path) == 0 {
		return item, apierr.New(apierr.ValidationException, "SET requires a non-empty path")
	}
	val, ok := resolveOperand(item, cl.Value)
	if !ok {
		return item, apierr.New(apierr.ValidationException, "SET %s: operand does not resolve", pathKey(cl.Path))
	}
	out := item.clone()
	top := cl.Path[0].Key
	child, err := setAt(out[top], cl.Path[1:], val)
	if err != nil {
		return item, err
	}
	out[top] = child
	return out, nil
}

func setAt(container attrval.Value, rest Path, newVal attrval.Value) (attrval.Value, error) {
	if len(rest) == 0 {
		return newVal, nil
	}
	seg := rest[0]
	if seg.IsIndex {
		var list []attrval.Value
		if container.Kind() == attrval.KindList {
			list = append([]attrval.Value(nil), container.AsList()...)
		} else if !container.IsNull() {
			return attrval.Value{}, apierr.New(apierr.ValidationException, "cannot index into a non-list attribute")
		}
		for seg.Index >= len(list) {
			list = append(list, attrval.Null())
		}
		child, err := setAt(list[seg.Index], rest[1:], newVal)
		if err != nil {
			return attrval.Value{}, err
		}
		list[seg.Index] = child
		return attrval.List(list), nil
	}
	var m map[string]attrval.Value
	if container.Kind() == attrval.KindMap {
		m = make(map[string]attrval.Value, len(container.AsMap()))
		for k, v := range container.AsMap() {
			m[k] = v
		}
	} else if container.IsNull() {
		m = make(map[string]attrval.Value)
	} else {
		return attrval.Value{}, apierr.New(apierr.ValidationException, "cannot set a field on a non-map attribute")
	}
	child, err := setAt(m[seg.Key], rest[1:], newVal)
	if err != nil {
		return attrval.Value{}, err
	}
	m[seg.Key] = child
	return attrval.Map(m), nil
}

func applyRemove(item Item, path Path) Item {
	if len(path) == 0 {
		return item
	}
	out := item.clone()
	top := path[0].Key
	if len(path) == 1 {
		delete(out, top)
		return out
	}
	child, ok := out[top]
	if !ok {
		return out
	}
	out[top] = removeAt(child, path[1:])
	return out
}

func removeAt(container attrval.Value, rest Path) attrval.Value {
	seg := rest[0]
	if len(rest) == 1 {
		if seg.IsIndex {
			if container.Kind() != attrval.KindList {
				return container
			}
			list := container.AsList()
			if seg.Index < 0 || seg.Index >= len(list) {
				return container
			}
			out := make([]attrval.Value, 0, len(list)-1)
			out = append(out, list[:seg.Index]...)
			out = append(out, list[seg.Index+1:]...)
			return attrval.List(out)
		}
		if container.Kind() != attrval.KindMap {
			return container
		}
		m := make(map[string]attrval.Value, len(container.AsMap()))
		for k, v := range container.AsMap() {
			m[k] = v
		}
		delete(m, seg.Key)
		return attrval.Map(m)
	}
	if seg.IsIndex {
		if container.Kind() != attrval.KindList {
			return container
		}
		list := append([]attrval.Value(nil), container.AsList()...)
		if seg.Index < 0 || seg.Index >= len(list) {
			return container
		}
		list[seg.Index] = removeAt(list[seg.Index], rest[1:])
		return attrval.List(list)
	}
	if container.Kind() != attrval.KindMap {
		return container
	}
	child, ok := container.Field(seg.Key)
	if !ok {
		return container
	}
	m := make(map[string]attrval.Value, len(container.AsMap()))
	for k, v := range container.AsMap() {
		m[k] = v
	}
	m[seg.Key] = removeAt(child, rest[1:])
	return attrval.Map(m)
}

func applyAdd(item Item, cl UpdateClause) (Item, error) {
	operand, ok := resolveOperand(item, cl.Value)
	if !ok {
		return item, apierr.New(apierr.ValidationException, "ADD %s: operand does not resolve", pathKey(cl.Path))
	}
	current, exists := Resolve(item, cl.Path)
	if !exists {
		current = zeroOfKind(operand.Kind())
	}
	var result attrval.Value
	switch {
	case current.Kind() == attrval.KindNumber && operand.Kind() == attrval.KindNumber:
		result = attrval.Add(current, operand)
	case isSetKind(current.Kind()) && current.Kind() == operand.Kind():
		result = attrval.Add(current, operand)
	default:
		return item, apierr.New(apierr.ValidationException, "ADD %s: incompatible operand type", pathKey(cl.Path))
	}
	out := item.clone()
	top := cl.Path[0].Key
	child, err := setAt(out[top], cl.Path[1:], result)
	if err != nil {
		return item, err
	}
	out[top] = child
	return out, nil
}

func applyDelete(item Item, cl UpdateClause) (Item, error) {
	operand, ok := resolveOperand(item, cl.Value)
	if !ok {
		return item, apierr.New(apierr.ValidationException, "DELETE %s: operand does not resolve", pathKey(cl.Path))
	}
	current, exists := Resolve(item, cl.Path)
	if !exists {
		return item, nil
	}
	if !isSetKind(current.Kind()) || current.Kind() != operand.Kind() {
		return item, apierr.New(apierr.ValidationException, "DELETE %s: attribute is not a matching set type", pathKey(cl.Path))
	}
	result := attrval.Subtract(current, operand)
	out := item.clone()
	top := cl.Path[0].Key
	child, err := setAt(out[top], cl.Path[1:], result)
	if err != nil {
		return item, err
	}
	out[top] = child
	return out, nil
}

func isSetKind(k attrval.Kind) bool {
	return k == attrval.KindStringSet || k == attrval.KindNumberSet || k == attrval.KindBinarySet
}

func zeroOfKind(k attrval.Kind) attrval.Value {
	switch k {
	case attrval.KindNumber:
		return attrval.Number(zeroDecimal)
	case attrval.KindStringSet:
		return attrval.StringSet(nil)
	case attrval.KindNumberSet:
		return attrval.NumberSet(nil)
	case attrval.KindBinarySet:
		return attrval.BinarySet(nil)
	default:
		return attrval.Null()
	}
}
