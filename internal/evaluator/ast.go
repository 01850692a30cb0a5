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

// Package evaluator walks pre-built condition and update ASTs against an
// item image. It never parses source text — the expression parser that
// turns a DynamoDB expression string into these ASTs is an external
// collaborator (spec.md §1).
package evaluator

import "github.com/launix-de/dynokv/internal/attrval"

// PathSegment addresses either a map field (by name) or a list element (by
// index) within a path. The AST builder (the out-of-scope expression
// parser) resolves "#name" placeholders and "[i]" index syntax before
// producing these — the evaluator never sees raw expression text.
type PathSegment struct {
	Key     string
	Index   int
	IsIndex bool
}

// K builds a map-field path segment.
func K(key string) PathSegment { return PathSegment{Key: key} }

// I builds a list-index path segment.
func I(index int) PathSegment { return PathSegment{Index: index, IsIndex: true} }

// Path is a dotted/indexed attribute path — e.g. K("metadata"), K("tags"),
// I(0) addresses metadata.tags[0]. The first segment always indexes the
// top-level item and must be a Key, never an Index.
type Path []PathSegment

// Operand is one argument of a condition or SET/ADD/DELETE clause: exactly
// one of Literal, Ref, Size, or Plus/Minus (for the SET "path + value" shape)
// is set.
type Operand struct {
	Literal *attrval.Value
	Ref     Path
	Size    Path
	Plus    *BinaryOperand
	Minus   *BinaryOperand
}

// BinaryOperand is the left/right pair of a SET path +/- value clause.
type BinaryOperand struct {
	Left  Operand
	Right Operand
}

func Lit(v attrval.Value) Operand { return Operand{Literal: &v} }
func Ref(p Path) Operand          { return Operand{Ref: p} }

// SizeOf builds the size(path) operand — a number equal to p's cardinality
// (string/binary length, set/list/map size). Resolves as absent if p itself
// is absent or is a kind with no defined size (number, bool, null).
func SizeOf(p Path) Operand { return Operand{Size: p} }

// CondOp is a condition AST node kind.
type CondOp int

const (
	CondEq CondOp = iota
	CondNe
	CondLt
	CondLe
	CondGt
	CondGe
	CondBetween
	CondIn
	CondAttributeExists
	CondAttributeNotExists
	CondAttributeType
	CondBeginsWith
	CondContains
	CondAnd
	CondOr
	CondNot
)

// Cond is a condition expression AST node. Exactly the fields relevant to
// Op are populated.
type Cond struct {
	Op CondOp

	// CondEq/Ne/Lt/Le/Gt/Ge, CondBeginsWith, CondContains: Left/Right.
	Left  Operand
	Right Operand

	// CondBetween: Left BETWEEN Lower AND Upper.
	Lower Operand
	Upper Operand

	// CondIn: Left IN Set.
	Set []Operand

	// CondAttributeExists/NotExists/Type/BeginsWith/Contains: Path.
	Path Path

	// CondAttributeType: the expected type tag (S, N, B, BOOL, NULL, SS, NS, BS, L, M).
	TypeTag string

	// CondAnd/Or: Children. CondNot: Children[0].
	Children []*Cond
}

func Eq(l, r Operand) *Cond      { return &Cond{Op: CondEq, Left: l, Right: r} }
func Ne(l, r Operand) *Cond      { return &Cond{Op: CondNe, Left: l, Right: r} }
func Lt(l, r Operand) *Cond      { return &Cond{Op: CondLt, Left: l, Right: r} }
func Le(l, r Operand) *Cond      { return &Cond{Op: CondLe, Left: l, Right: r} }
func Gt(l, r Operand) *Cond      { return &Cond{Op: CondGt, Left: l, Right: r} }
func Ge(l, r Operand) *Cond      { return &Cond{Op: CondGe, Left: l, Right: r} }
func Between(v, lo, hi Operand) *Cond {
	return &Cond{Op: CondBetween, Left: v, Lower: lo, Upper: hi}
}
func In(v Operand, set []Operand) *Cond { return &Cond{Op: CondIn, Left: v, Set: set} }
func AttributeExists(p Path) *Cond      { return &Cond{Op: CondAttributeExists, Path: p} }
func AttributeNotExists(p Path) *Cond   { return &Cond{Op: CondAttributeNotExists, Path: p} }
func AttributeType(p Path, tag string) *Cond {
	return &Cond{Op: CondAttributeType, Path: p, TypeTag: tag}
}
func BeginsWith(p Path, prefix Operand) *Cond {
	return &Cond{Op: CondBeginsWith, Path: p, Right: prefix}
}
func Contains(p Path, needle Operand) *Cond {
	return &Cond{Op: CondContains, Path: p, Right: needle}
}
func And(children ...*Cond) *Cond { return &Cond{Op: CondAnd, Children: children} }
func Or(children ...*Cond) *Cond  { return &Cond{Op: CondOr, Children: children} }
func Not(child *Cond) *Cond       { return &Cond{Op: CondNot, Children: []*Cond{child}} }

// UpdateClauseKind is one of the four update-expression clause types.
type UpdateClauseKind int

const (
	ClauseSet UpdateClauseKind = iota
	ClauseRemove
	ClauseAdd
	ClauseDelete
)

// UpdateClause is a single SET/REMOVE/ADD/DELETE entry. Value is unused for
// REMOVE.
type UpdateClause struct {
	Kind  UpdateClauseKind
	Path  Path
	Value Operand
}

// UpdateExpr is an UpdateExpression AST: any subset of the four clause
// kinds, in any order, each naming distinct attribute paths.
type UpdateExpr struct {
	Clauses []UpdateClause
}
