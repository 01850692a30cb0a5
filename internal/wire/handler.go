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

// Package wire is the HTTP transport: it speaks the DynamoDB 2012-08-10
// JSON protocol (a single POST endpoint dispatching on the X-Amz-Target
// header) and translates every request into a call against
// internal/engine.Engine, the only layer below this one it ever touches.
package wire

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/engine"
	"github.com/launix-de/dynokv/internal/evaluator"
	"github.com/launix-de/dynokv/internal/exprparse"
	"github.com/launix-de/dynokv/internal/log"
)

const targetPrefix = "DynamoDB_20120810."

// Handler dispatches DynamoDB-protocol requests to an Engine.
type Handler struct {
	eng *engine.Engine
}

func New(eng *engine.Engine) *Handler {
	return &Handler{eng: eng}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")
	op := strings.TrimPrefix(target, targetPrefix)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apierr.New(apierr.ValidationException, "reading request body: %v", err))
		return
	}

	var (
		resp any
		opErr error
	)
	switch op {
	case "CreateTable":
		resp, opErr = h.createTable(body)
	case "DeleteTable":
		resp, opErr = h.deleteTable(body)
	case "ListTables":
		resp, opErr = h.listTables(body)
	case "DescribeTable":
		resp, opErr = h.describeTable(body)
	case "PutItem":
		resp, opErr = h.putItem(r, body)
	case "GetItem":
		resp, opErr = h.getItem(body)
	case "DeleteItem":
		resp, opErr = h.deleteItem(r, body)
	case "UpdateItem":
		resp, opErr = h.updateItem(r, body)
	case "Query":
		resp, opErr = h.query(body)
	case "TransactWriteItems":
		resp, opErr = h.transactWriteItems(r, body)
	case "TransactGetItems":
		resp, opErr = h.transactGetItems(body)
	default:
		opErr = apierr.New(apierr.ValidationException, "unknown operation %q", target)
	}

	if opErr != nil {
		writeError(w, opErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(status)
	if v == nil {
		w.Write([]byte("{}"))
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("wire").Error().Err(err).Msg("encoding response failed")
	}
}

// writeError maps an apierr.Kind to the wire's {"__type", "message"} shape
// and the corresponding HTTP status, mirroring the real service's
// client-error-vs-server-error split: every Kind except InternalServerError
// is a 400.
func writeError(w http.ResponseWriter, err error) {
	e, ok := apierr.As(err)
	if !ok {
		e = apierr.New(apierr.InternalServerError, "%v", err)
	}
	status := http.StatusBadRequest
	if e.Kind == apierr.InternalServerError {
		status = http.StatusInternalServerError
	}
	resp := errorResponse{
		Type:    "com.amazonaws.dynamodb.v20120810#" + string(e.Kind),
		Message: e.Message,
	}
	for _, cr := range e.Reasons {
		resp.CancellationReasons = append(resp.CancellationReasons, cancellationReason{
			Code:    cr.Code,
			Message: cr.Message,
			Item:    cr.Item,
		})
	}
	writeJSON(w, status, resp)
}

// decode parses a request body leniently: real DynamoDB clients send
// fields this implementation does not act on (ReturnConsumedCapacity,
// ReturnItemCollectionMetrics, and similar), so unknown fields are ignored
// rather than rejected.
func decode(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apierr.New(apierr.ValidationException, "parsing request body: %v", err)
	}
	return nil
}

// exprParams builds an exprparse.Params from a request's
// ExpressionAttributeNames/Values, the shared shape every operation with an
// expression string carries.
func exprParams(names map[string]string, values map[string]attrval.Value) exprparse.Params {
	return exprparse.Params{Names: names, Values: values}
}

func parseCondition(expr string, names map[string]string, values map[string]attrval.Value) (*evaluator.Cond, error) {
	if expr == "" {
		return nil, nil
	}
	cond, err := exprparse.ParseCondition(expr, exprParams(names, values))
	if err != nil {
		return nil, apierr.New(apierr.ValidationException, "ConditionExpression: %v", err)
	}
	return cond, nil
}

func returnValuesWantsOld(rv string) bool {
	return rv == "ALL_OLD"
}
