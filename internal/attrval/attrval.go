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

// Package attrval implements the tagged-variant attribute value type item
// attributes are built from: string, number (decimal, stored textually),
// binary, boolean, null, and the set/list/map container kinds.
package attrval

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Kind discriminates the attribute value variants. Exactly one of the
// corresponding fields on Value is meaningful for a given Kind.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBinary
	KindBool
	KindStringSet
	KindNumberSet
	KindBinarySet
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindString:
		return "S"
	case KindNumber:
		return "N"
	case KindBinary:
		return "B"
	case KindBool:
		return "BOOL"
	case KindStringSet:
		return "SS"
	case KindNumberSet:
		return "NS"
	case KindBinarySet:
		return "BS"
	case KindList:
		return "L"
	case KindMap:
		return "M"
	default:
		return "?"
	}
}

// Value is a DynamoDB-style attribute value. Must not be constructed by hand
// outside this package's constructors: callers should not fall back to an
// untyped map for item attributes (spec design note).
type Value struct {
	kind Kind

	s    string
	n    decimal.Decimal
	b    []byte
	bl   bool
	ss   []string
	ns   []decimal.Decimal
	bs   [][]byte
	list []Value
	m    map[string]Value
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func Null() Value { return Value{kind: KindNull} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, n: d} }

// NumberFromString parses a decimal number the way the wire protocol presents
// it: as a string preserving precision.
func NumberFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}, fmt.Errorf("attrval: invalid number %q: %w", s, err)
	}
	return Number(d), nil
}

func Binary(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBinary, b: cp}
}

func Bool(b bool) Value { return Value{kind: KindBool, bl: b} }

func StringSet(ss []string) Value {
	cp := append([]string(nil), ss...)
	return Value{kind: KindStringSet, ss: cp}
}

func NumberSet(ns []decimal.Decimal) Value {
	cp := append([]decimal.Decimal(nil), ns...)
	return Value{kind: KindNumberSet, ns: cp}
}

func BinarySet(bs [][]byte) Value {
	cp := make([][]byte, len(bs))
	for i, b := range bs {
		cp[i] = append([]byte(nil), b...)
	}
	return Value{kind: KindBinarySet, bs: cp}
}

func List(items []Value) Value {
	cp := append([]Value(nil), items...)
	return Value{kind: KindList, list: cp}
}

func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Accessors panic if called on the wrong Kind, mirroring the teacher's
// scm.Scmer accessors (scm/scmer.go) which assume the caller has already
// checked the tag.

func (v Value) AsString() string { v.mustBe(KindString); return v.s }
func (v Value) AsNumber() decimal.Decimal { v.mustBe(KindNumber); return v.n }
func (v Value) AsBinary() []byte { v.mustBe(KindBinary); return v.b }
func (v Value) AsBool() bool { v.mustBe(KindBool); return v.bl }
func (v Value) AsStringSet() []string { v.mustBe(KindStringSet); return v.ss }
func (v Value) AsNumberSet() []decimal.Decimal { v.mustBe(KindNumberSet); return v.ns }
func (v Value) AsBinarySet() [][]byte { v.mustBe(KindBinarySet); return v.bs }
func (v Value) AsList() []Value { v.mustBe(KindList); return v.list }
func (v Value) AsMap() map[string]Value { v.mustBe(KindMap); return v.m }

func (v Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("attrval: value is %s, not %s", v.kind, k))
	}
}

// Field returns the named child of a map value; ok is false for non-map
// values or a missing key.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	child, ok := v.m[name]
	return child, ok
}

// Len returns the size() of a value per the evaluator's size(path) function:
// string/binary length, set/list cardinality, map field count. -1 for kinds
// with no defined size (number, bool, null).
func (v Value) Len() int {
	switch v.kind {
	case KindString:
		return len([]rune(v.s))
	case KindBinary:
		return len(v.b)
	case KindStringSet:
		return len(v.ss)
	case KindNumberSet:
		return len(v.ns)
	case KindBinarySet:
		return len(v.bs)
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	default:
		return -1
	}
}

// Equal implements attribute-value equality (used by comparison operators,
// contains(), and the DynamoDB "=" semantics): same kind, same content.
// Equality never holds across differing kinds, even for related numeric
// representations — the spec requires this (§4.3 "values of different base
// types never compare equal").
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindString:
		return a.s == b.s
	case KindNumber:
		return a.n.Equal(b.n)
	case KindBinary:
		return string(a.b) == string(b.b)
	case KindBool:
		return a.bl == b.bl
	case KindStringSet:
		return equalSet(a.ss, b.ss, func(x, y string) bool { return x == y })
	case KindNumberSet:
		return equalSet(a.ns, b.ns, func(x, y decimal.Decimal) bool { return x.Equal(y) })
	case KindBinarySet:
		return equalSet(a.bs, b.bs, func(x, y []byte) bool { return string(x) == string(y) })
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalSet[T any](a, b []T, eq func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
outer:
	for _, x := range a {
		for i, y := range b {
			if used[i] {
				continue
			}
			if eq(x, y) {
				used[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// Compare orders two values of the SAME kind. ok is false for kinds with no
// natural ordering (bool, null, set, list, map) or mismatched kinds — the
// caller (evaluator) must treat that as "comparison is false", never an
// error, per spec §4.3.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindNumber:
		return a.n.Cmp(b.n), true
	case KindString:
		return compareBytes([]byte(a.s), []byte(b.s)), true
	case KindBinary:
		return compareBytes(a.b, b.b), true
	default:
		return 0, false
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Contains implements the contains(path, operand) condition function:
// substring test for strings, membership test for sets and lists.
func Contains(haystack, needle Value) bool {
	switch haystack.kind {
	case KindString:
		if needle.kind != KindString {
			return false
		}
		return indexOf(haystack.s, needle.s) >= 0
	case KindStringSet:
		if needle.kind != KindString {
			return false
		}
		for _, s := range haystack.ss {
			if s == needle.s {
				return true
			}
		}
		return false
	case KindNumberSet:
		if needle.kind != KindNumber {
			return false
		}
		for _, n := range haystack.ns {
			if n.Equal(needle.n) {
				return true
			}
		}
		return false
	case KindBinarySet:
		if needle.kind != KindBinary {
			return false
		}
		for _, b := range haystack.bs {
			if string(b) == string(needle.b) {
				return true
			}
		}
		return false
	case KindList:
		for _, item := range haystack.list {
			if Equal(item, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func indexOf(haystack, needle string) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// BeginsWith implements begins_with(path, prefix) — string and binary only.
func BeginsWith(v, prefix Value) bool {
	if v.kind != prefix.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return len(v.s) >= len(prefix.s) && v.s[:len(prefix.s)] == prefix.s
	case KindBinary:
		return len(v.b) >= len(prefix.b) && string(v.b[:len(prefix.b)]) == string(prefix.b)
	default:
		return false
	}
}

// Add implements ADD semantics: numeric arithmetic or set union. Operand
// kinds must match (number+number or matching set kinds); mismatches panic
// since the evaluator validates clause shape before calling this.
func Add(a, b Value) Value {
	switch a.kind {
	case KindNumber:
		return Number(a.n.Add(b.n))
	case KindStringSet:
		return StringSet(unionStrings(a.ss, b.ss))
	case KindNumberSet:
		return NumberSet(unionNumbers(a.ns, b.ns))
	case KindBinarySet:
		return BinarySet(unionBinaries(a.bs, b.bs))
	default:
		panic("attrval: ADD not supported for kind " + a.kind.String())
	}
}

// Subtract implements DELETE (set subtraction) and SET path - value
// (numeric subtraction).
func Subtract(a, b Value) Value {
	switch a.kind {
	case KindNumber:
		return Number(a.n.Sub(b.n))
	case KindStringSet:
		return StringSet(minusStrings(a.ss, b.ss))
	case KindNumberSet:
		return NumberSet(minusNumbers(a.ns, b.ns))
	case KindBinarySet:
		return BinarySet(minusBinaries(a.bs, b.bs))
	default:
		panic("attrval: DELETE/subtract not supported for kind " + a.kind.String())
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func minusStrings(a, b []string) []string {
	rm := make(map[string]bool, len(b))
	for _, s := range b {
		rm[s] = true
	}
	out := make([]string, 0, len(a))
	for _, s := range a {
		if !rm[s] {
			out = append(out, s)
		}
	}
	return out
}

func unionNumbers(a, b []decimal.Decimal) []decimal.Decimal {
	out := append([]decimal.Decimal(nil), a...)
	for _, n := range b {
		found := false
		for _, x := range out {
			if x.Equal(n) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, n)
		}
	}
	return out
}

func minusNumbers(a, b []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(a))
	for _, n := range a {
		skip := false
		for _, x := range b {
			if x.Equal(n) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, n)
		}
	}
	return out
}

func unionBinaries(a, b [][]byte) [][]byte {
	out := append([][]byte(nil), a...)
	for _, bb := range b {
		found := false
		for _, x := range out {
			if string(x) == string(bb) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, bb)
		}
	}
	return out
}

func minusBinaries(a, b [][]byte) [][]byte {
	out := make([][]byte, 0, len(a))
	for _, bb := range a {
		skip := false
		for _, x := range b {
			if string(x) == string(bb) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, bb)
		}
	}
	return out
}
