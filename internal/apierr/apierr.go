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

// Package apierr defines the typed error kinds the wire layer maps onto the
// DynamoDB-style JSON error shape. Internal code always returns one of
// these (via New or a wrapped %w) instead of an ad-hoc error or a panic, so
// the public contract layer never has to guess what HTTP status and error
// code a failure corresponds to.
package apierr

import (
	"errors"
	"fmt"

	"github.com/launix-de/dynokv/internal/attrval"
)

// Kind is one of the error codes the wire protocol exposes.
type Kind string

const (
	ValidationException         Kind = "ValidationException"
	ResourceNotFoundException    Kind = "ResourceNotFoundException"
	ResourceInUseException       Kind = "ResourceInUseException"
	ConditionalCheckFailed       Kind = "ConditionalCheckFailedException"
	TransactionConflict          Kind = "TransactionConflictException"
	TransactionCanceledException Kind = "TransactionCanceledException"
	InternalServerError          Kind = "InternalServerError"
)

// Error is a typed API error carrying the wire error code, a human message,
// and — for TransactionCanceledException only — one CancellationReason per
// item in the failed transaction, mirroring the real API's shape.
type Error struct {
	Kind    Kind
	Message string
	Reasons []CancellationReason
}

// CancellationReason reports why one item within a cancelled transaction did
// or did not participate in the cancellation. Code is "None" for items that
// were not the cause.
type CancellationReason struct {
	Code    string `json:"Code"`
	Message string `json:"Message,omitempty"`
	// Item carries the current committed image when a failed op requested
	// ReturnValuesOnConditionCheckFailure = ALL_OLD; nil otherwise.
	Item map[string]attrval.Value `json:"Item,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a plain typed error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Canceled builds a TransactionCanceledException carrying per-item reasons.
func Canceled(reasons []CancellationReason) *Error {
	return &Error{
		Kind:    TransactionCanceledException,
		Message: "Transaction cancelled",
		Reasons: reasons,
	}
}

// As extracts an *Error from err, following the error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or InternalServerError if err is not (or
// does not wrap) an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return InternalServerError
}
