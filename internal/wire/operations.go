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
	"net/http"

	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/engine"
	"github.com/launix-de/dynokv/internal/schema"
	"github.com/launix-de/dynokv/internal/shardstore"
	"github.com/launix-de/dynokv/internal/txn"
)

func describeTableOf(t *schema.Table) tableDescription {
	keys := []keySchemaElement{{AttributeName: t.PartitionKey.Name, KeyType: "HASH"}}
	attrs := []attributeDefinition{{AttributeName: t.PartitionKey.Name, AttributeType: string(t.PartitionKey.Type)}}
	if t.HasSortKey() {
		keys = append(keys, keySchemaElement{AttributeName: t.SortKey.Name, KeyType: "RANGE"})
		attrs = append(attrs, attributeDefinition{AttributeName: t.SortKey.Name, AttributeType: string(t.SortKey.Type)})
	}
	return tableDescription{
		TableName:            t.Name,
		TableStatus:          "ACTIVE",
		AttributeDefinitions: attrs,
		KeySchema:             keys,
		CreationDateTime:      float64(t.CreatedAt.Unix()),
	}
}

func keyAttributeOf(defs []attributeDefinition, keys []keySchemaElement, keyType string) (schema.KeyAttribute, bool) {
	for _, k := range keys {
		if k.KeyType != keyType {
			continue
		}
		for _, d := range defs {
			if d.AttributeName == k.AttributeName {
				return schema.KeyAttribute{Name: d.AttributeName, Type: schema.ScalarType(d.AttributeType)}, true
			}
		}
	}
	return schema.KeyAttribute{}, false
}

func (h *Handler) createTable(body []byte) (any, error) {
	var req createTableRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	pk, ok := keyAttributeOf(req.AttributeDefinitions, req.KeySchema, "HASH")
	if !ok {
		return nil, apierr.New(apierr.ValidationException, "KeySchema must name a HASH key present in AttributeDefinitions")
	}
	var sk *schema.KeyAttribute
	if rk, ok := keyAttributeOf(req.AttributeDefinitions, req.KeySchema, "RANGE"); ok {
		sk = &rk
	}
	t, err := h.eng.CreateTable(req.TableName, pk, sk)
	if err != nil {
		return nil, err
	}
	return createTableResponse{TableDescription: describeTableOf(t)}, nil
}

func (h *Handler) deleteTable(body []byte) (any, error) {
	var req deleteTableRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	t, err := h.eng.DeleteTable(req.TableName)
	if err != nil {
		return nil, err
	}
	return deleteTableResponse{TableDescription: describeTableOf(t)}, nil
}

func (h *Handler) listTables(body []byte) (any, error) {
	var req listTablesRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	return listTablesResponse{TableNames: h.eng.ListTables()}, nil
}

func (h *Handler) describeTable(body []byte) (any, error) {
	var req describeTableRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	t, err := h.eng.DescribeTable(req.TableName)
	if err != nil {
		return nil, err
	}
	return describeTableResponse{Table: describeTableOf(t)}, nil
}

func (h *Handler) putItem(r *http.Request, body []byte) (any, error) {
	var req putItemRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	cond, err := parseCondition(req.ConditionExpression, req.ExpressionAttributeNames, req.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	err = h.eng.PutItem(r.Context(), req.TableName, req.Item, cond, returnValuesWantsOld(req.ReturnValuesOnConditionCheckFailure), req.ClientRequestToken)
	if err != nil {
		return nil, err
	}
	return putItemResponse{}, nil
}

func (h *Handler) getItem(body []byte) (any, error) {
	var req getItemRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	item, ok, err := h.eng.GetItem(req.TableName, req.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return getItemResponse{}, nil
	}
	return getItemResponse{Item: item}, nil
}

func (h *Handler) deleteItem(r *http.Request, body []byte) (any, error) {
	var req deleteItemRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	cond, err := parseCondition(req.ConditionExpression, req.ExpressionAttributeNames, req.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	err = h.eng.DeleteItem(r.Context(), req.TableName, req.Key, cond, returnValuesWantsOld(req.ReturnValuesOnConditionCheckFailure), req.ClientRequestToken)
	if err != nil {
		return nil, err
	}
	return deleteItemResponse{}, nil
}

func (h *Handler) updateItem(r *http.Request, body []byte) (any, error) {
	var req updateItemRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	params := exprParams(req.ExpressionAttributeNames, req.ExpressionAttributeValues)
	update, err := exprparseUpdate(req.UpdateExpression, params)
	if err != nil {
		return nil, err
	}
	cond, err := parseCondition(req.ConditionExpression, req.ExpressionAttributeNames, req.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	err = h.eng.UpdateItem(r.Context(), req.TableName, req.Key, update, cond, returnValuesWantsOld(req.ReturnValuesOnConditionCheckFailure), req.ClientRequestToken)
	if err != nil {
		return nil, err
	}
	return updateItemResponse{}, nil
}

func (h *Handler) query(body []byte) (any, error) {
	var req queryRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	params := exprParams(req.ExpressionAttributeNames, req.ExpressionAttributeValues)
	pk, skCond, err := parseKeyCondition(req.KeyConditionExpression, params)
	if err != nil {
		return nil, err
	}
	forward := true
	if req.ScanIndexForward != nil {
		forward = *req.ScanIndexForward
	}
	t, err := h.eng.DescribeTable(req.TableName)
	if err != nil {
		return nil, err
	}
	var exclusiveStart *shardstore.Key
	if len(req.ExclusiveStartKey) > 0 {
		k := shardstore.Key{Table: req.TableName, HasSortKey: t.HasSortKey()}
		if v, ok := req.ExclusiveStartKey[t.PartitionKey.Name]; ok {
			k.PK = v
		}
		if t.HasSortKey() {
			if v, ok := req.ExclusiveStartKey[t.SortKey.Name]; ok {
				k.SK = v
			}
		}
		exclusiveStart = &k
	}
	page, err := h.eng.Query(req.TableName, pk, skCond, forward, req.Limit, exclusiveStart)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]attrval.Value, len(page.Rows))
	for i, row := range page.Rows {
		items[i] = row.Item
	}
	resp := queryResponse{Items: items, Count: len(items)}
	if page.LastEvaluatedKey != nil {
		resp.LastEvaluatedKey = lastKeyAttrs(t, *page.LastEvaluatedKey)
	}
	return resp, nil
}

func lastKeyAttrs(t *schema.Table, key shardstore.Key) map[string]attrval.Value {
	attrs := map[string]attrval.Value{t.PartitionKey.Name: key.PK}
	if t.HasSortKey() {
		attrs[t.SortKey.Name] = key.SK
	}
	return attrs
}

func (h *Handler) transactWriteItems(r *http.Request, body []byte) (any, error) {
	var req transactWriteItemsRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	items := make([]engine.WriteItem, len(req.TransactItems))
	for i, ti := range req.TransactItems {
		wi, err := transactWriteItemOf(ti)
		if err != nil {
			return nil, err
		}
		items[i] = wi
	}
	if err := h.eng.TransactWriteItems(r.Context(), items, req.ClientRequestToken); err != nil {
		return nil, err
	}
	return transactWriteItemsResponse{}, nil
}

func transactWriteItemOf(ti transactWriteItem) (engine.WriteItem, error) {
	switch {
	case ti.Put != nil:
		cond, err := parseCondition(ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues)
		if err != nil {
			return engine.WriteItem{}, err
		}
		return engine.WriteItem{
			Table:                                ti.Put.TableName,
			Kind:                                 txn.KindPut,
			Item:                                 ti.Put.Item,
			Cond:                                 cond,
			ReturnValuesOnConditionCheckFailure:  returnValuesWantsOld(ti.Put.ReturnValuesOnConditionCheckFailure),
		}, nil
	case ti.Update != nil:
		cond, err := parseCondition(ti.Update.ConditionExpression, ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues)
		if err != nil {
			return engine.WriteItem{}, err
		}
		params := exprParams(ti.Update.ExpressionAttributeNames, ti.Update.ExpressionAttributeValues)
		update, err := exprparseUpdate(ti.Update.UpdateExpression, params)
		if err != nil {
			return engine.WriteItem{}, err
		}
		return engine.WriteItem{
			Table:                                ti.Update.TableName,
			Kind:                                 txn.KindUpdate,
			Item:                                 ti.Update.Key,
			Update:                               update,
			Cond:                                 cond,
			ReturnValuesOnConditionCheckFailure:  returnValuesWantsOld(ti.Update.ReturnValuesOnConditionCheckFailure),
		}, nil
	case ti.Delete != nil:
		cond, err := parseCondition(ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues)
		if err != nil {
			return engine.WriteItem{}, err
		}
		return engine.WriteItem{
			Table:                                ti.Delete.TableName,
			Kind:                                 txn.KindDelete,
			Item:                                 ti.Delete.Key,
			Cond:                                 cond,
			ReturnValuesOnConditionCheckFailure:  returnValuesWantsOld(ti.Delete.ReturnValuesOnConditionCheckFailure),
		}, nil
	case ti.ConditionCheck != nil:
		cond, err := parseCondition(ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues)
		if err != nil {
			return engine.WriteItem{}, err
		}
		return engine.WriteItem{
			Table:                                ti.ConditionCheck.TableName,
			Kind:                                 txn.KindConditionCheck,
			Item:                                 ti.ConditionCheck.Key,
			Cond:                                 cond,
			ReturnValuesOnConditionCheckFailure:  returnValuesWantsOld(ti.ConditionCheck.ReturnValuesOnConditionCheckFailure),
		}, nil
	default:
		return engine.WriteItem{}, apierr.New(apierr.ValidationException, "TransactWriteItem must set exactly one of Put/Update/Delete/ConditionCheck")
	}
}

func (h *Handler) transactGetItems(body []byte) (any, error) {
	var req transactGetItemsRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	refs := make([]engine.GetItemRef, len(req.TransactItems))
	for i, ti := range req.TransactItems {
		refs[i] = engine.GetItemRef{Table: ti.Get.TableName, Key: ti.Get.Key}
	}
	items, found, err := h.eng.TransactGetItems(refs)
	if err != nil {
		return nil, err
	}
	resp := transactGetItemsResponse{Responses: make([]itemResponseEnvelope, len(items))}
	for i := range items {
		if found[i] {
			resp.Responses[i] = itemResponseEnvelope{Item: items[i]}
		}
	}
	return resp, nil
}
