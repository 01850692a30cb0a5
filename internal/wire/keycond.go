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

package wire

import (
	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/evaluator"
	"github.com/launix-de/dynokv/internal/exprparse"
	"github.com/launix-de/dynokv/internal/shardstore"
)

func exprparseUpdate(expr string, params exprparse.Params) (*evaluator.UpdateExpr, error) {
	update, err := exprparse.ParseUpdate(expr, params)
	if err != nil {
		return nil, apierr.New(apierr.ValidationException, "UpdateExpression: %v", err)
	}
	return update, nil
}

func literalOf(op evaluator.Operand) attrval.Value {
	if op.Literal != nil {
		return *op.Literal
	}
	return attrval.Value{}
}

// parseKeyCondition interprets a KeyConditionExpression, a narrower grammar
// than a general ConditionExpression: exactly a partition-key equality,
// optionally AND-ed with one sort-key comparison. It is parsed with the
// same exprparse.ParseCondition used for ConditionExpression (the two
// grammars overlap completely for this shape) and then read back out of the
// resulting AST rather than needing a second parser.
func parseKeyCondition(expr string, params exprparse.Params) (attrval.Value, *shardstore.SortKeyCondition, error) {
	cond, err := exprparse.ParseCondition(expr, params)
	if err != nil {
		return attrval.Value{}, nil, apierr.New(apierr.ValidationException, "KeyConditionExpression: %v", err)
	}

	pkCond, skCondNode := cond, (*evaluator.Cond)(nil)
	if cond.Op == evaluator.CondAnd && len(cond.Children) == 2 {
		pkCond, skCondNode = cond.Children[0], cond.Children[1]
	}
	if pkCond.Op != evaluator.CondEq || pkCond.Right.Literal == nil {
		return attrval.Value{}, nil, apierr.New(apierr.ValidationException, "KeyConditionExpression: partition key condition must be an equality against a value")
	}
	pk := literalOf(pkCond.Right)
	if skCondNode == nil {
		return pk, nil, nil
	}
	skCond, err := sortKeyConditionOf(skCondNode)
	if err != nil {
		return attrval.Value{}, nil, err
	}
	return pk, skCond, nil
}

func sortKeyConditionOf(c *evaluator.Cond) (*shardstore.SortKeyCondition, error) {
	switch c.Op {
	case evaluator.CondEq:
		return &shardstore.SortKeyCondition{Op: shardstore.SKEq, Value: literalOf(c.Right)}, nil
	case evaluator.CondLt:
		return &shardstore.SortKeyCondition{Op: shardstore.SKLt, Value: literalOf(c.Right)}, nil
	case evaluator.CondLe:
		return &shardstore.SortKeyCondition{Op: shardstore.SKLe, Value: literalOf(c.Right)}, nil
	case evaluator.CondGt:
		return &shardstore.SortKeyCondition{Op: shardstore.SKGt, Value: literalOf(c.Right)}, nil
	case evaluator.CondGe:
		return &shardstore.SortKeyCondition{Op: shardstore.SKGe, Value: literalOf(c.Right)}, nil
	case evaluator.CondBetween:
		return &shardstore.SortKeyCondition{Op: shardstore.SKBetween, Value: literalOf(c.Lower), Upper: literalOf(c.Upper)}, nil
	case evaluator.CondBeginsWith:
		return &shardstore.SortKeyCondition{Op: shardstore.SKBeginsWith, Value: literalOf(c.Right)}, nil
	default:
		return nil, apierr.New(apierr.ValidationException, "KeyConditionExpression: unsupported sort key condition")
	}
}
