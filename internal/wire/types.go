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

import "github.com/launix-de/dynokv/internal/attrval"

// Request/response shapes below conform to the DynamoDB 2012-08-10 JSON API
// for exactly the operations spec.md §6.1 names; attrval.Value's own
// MarshalJSON/UnmarshalJSON (the {"S": "..."} / {"N": "..."} wire shape)
// handles every attribute value field without this package needing its own
// codec.

type attributeDefinition struct {
	AttributeName string `json:"AttributeName"`
	AttributeType string `json:"AttributeType"`
}

type keySchemaElement struct {
	AttributeName string `json:"AttributeName"`
	KeyType       string `json:"KeyType"` // HASH or RANGE
}

type createTableRequest struct {
	TableName            string                `json:"TableName"`
	AttributeDefinitions []attributeDefinition `json:"AttributeDefinitions"`
	KeySchema            []keySchemaElement    `json:"KeySchema"`
}

type tableDescription struct {
	TableName            string                `json:"TableName"`
	TableStatus          string                `json:"TableStatus"`
	AttributeDefinitions []attributeDefinition `json:"AttributeDefinitions"`
	KeySchema            []keySchemaElement    `json:"KeySchema"`
	CreationDateTime      float64              `json:"CreationDateTime"`
}

type createTableResponse struct {
	TableDescription tableDescription `json:"TableDescription"`
}

type deleteTableRequest struct {
	TableName string `json:"TableName"`
}

type deleteTableResponse struct {
	TableDescription tableDescription `json:"TableDescription"`
}

type listTablesRequest struct {
	ExclusiveStartTableName string `json:"ExclusiveStartTableName,omitempty"`
	Limit                   int    `json:"Limit,omitempty"`
}

type listTablesResponse struct {
	TableNames []string `json:"TableNames"`
}

type describeTableRequest struct {
	TableName string `json:"TableName"`
}

type describeTableResponse struct {
	Table tableDescription `json:"Table"`
}

type putItemRequest struct {
	TableName                          string                    `json:"TableName"`
	Item                                map[string]attrval.Value `json:"Item"`
	ConditionExpression                 string                    `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames            map[string]string         `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues            map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValuesOnConditionCheckFailure string                    `json:"ReturnValuesOnConditionCheckFailure,omitempty"`
	ClientRequestToken                   string                    `json:"ClientRequestToken,omitempty"`
}

type putItemResponse struct{}

type getItemRequest struct {
	TableName string                    `json:"TableName"`
	Key       map[string]attrval.Value `json:"Key"`
}

type getItemResponse struct {
	Item map[string]attrval.Value `json:"Item,omitempty"`
}

type deleteItemRequest struct {
	TableName                          string                    `json:"TableName"`
	Key                                 map[string]attrval.Value `json:"Key"`
	ConditionExpression                 string                    `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames            map[string]string         `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues            map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValuesOnConditionCheckFailure string                    `json:"ReturnValuesOnConditionCheckFailure,omitempty"`
	ClientRequestToken                   string                    `json:"ClientRequestToken,omitempty"`
}

type deleteItemResponse struct{}

type updateItemRequest struct {
	TableName                          string                    `json:"TableName"`
	Key                                 map[string]attrval.Value `json:"Key"`
	UpdateExpression                    string                    `json:"UpdateExpression"`
	ConditionExpression                 string                    `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames            map[string]string         `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues            map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValuesOnConditionCheckFailure string                    `json:"ReturnValuesOnConditionCheckFailure,omitempty"`
	ClientRequestToken                   string                    `json:"ClientRequestToken,omitempty"`
}

type updateItemResponse struct{}

type queryRequest struct {
	TableName                 string                    `json:"TableName"`
	KeyConditionExpression     string                    `json:"KeyConditionExpression"`
	ExpressionAttributeNames  map[string]string         `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
	ScanIndexForward           *bool                     `json:"ScanIndexForward,omitempty"`
	Limit                      int                       `json:"Limit,omitempty"`
	ExclusiveStartKey          map[string]attrval.Value `json:"ExclusiveStartKey,omitempty"`
}

type queryResponse struct {
	Items            []map[string]attrval.Value `json:"Items"`
	Count            int                         `json:"Count"`
	LastEvaluatedKey map[string]attrval.Value   `json:"LastEvaluatedKey,omitempty"`
}

type transactWriteItem struct {
	Put *struct {
		TableName                          string                    `json:"TableName"`
		Item                                 map[string]attrval.Value `json:"Item"`
		ConditionExpression                 string                    `json:"ConditionExpression,omitempty"`
		ExpressionAttributeNames            map[string]string         `json:"ExpressionAttributeNames,omitempty"`
		ExpressionAttributeValues            map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
		ReturnValuesOnConditionCheckFailure string                    `json:"ReturnValuesOnConditionCheckFailure,omitempty"`
	} `json:"Put,omitempty"`
	Update *struct {
		TableName                          string                    `json:"TableName"`
		Key                                 map[string]attrval.Value `json:"Key"`
		UpdateExpression                    string                    `json:"UpdateExpression"`
		ConditionExpression                 string                    `json:"ConditionExpression,omitempty"`
		ExpressionAttributeNames            map[string]string         `json:"ExpressionAttributeNames,omitempty"`
		ExpressionAttributeValues            map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
		ReturnValuesOnConditionCheckFailure string                    `json:"ReturnValuesOnConditionCheckFailure,omitempty"`
	} `json:"Update,omitempty"`
	Delete *struct {
		TableName                          string                    `json:"TableName"`
		Key                                 map[string]attrval.Value `json:"Key"`
		ConditionExpression                 string                    `json:"ConditionExpression,omitempty"`
		ExpressionAttributeNames            map[string]string         `json:"ExpressionAttributeNames,omitempty"`
		ExpressionAttributeValues            map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
		ReturnValuesOnConditionCheckFailure string                    `json:"ReturnValuesOnConditionCheckFailure,omitempty"`
	} `json:"Delete,omitempty"`
	ConditionCheck *struct {
		TableName                          string                    `json:"TableName"`
		Key                                 map[string]attrval.Value `json:"Key"`
		ConditionExpression                 string                    `json:"ConditionExpression"`
		ExpressionAttributeNames            map[string]string         `json:"ExpressionAttributeNames,omitempty"`
		ExpressionAttributeValues            map[string]attrval.Value `json:"ExpressionAttributeValues,omitempty"`
		ReturnValuesOnConditionCheckFailure string                    `json:"ReturnValuesOnConditionCheckFailure,omitempty"`
	} `json:"ConditionCheck,omitempty"`
}

type transactWriteItemsRequest struct {
	TransactItems      []transactWriteItem `json:"TransactItems"`
	ClientRequestToken string               `json:"ClientRequestToken,omitempty"`
}

type transactWriteItemsResponse struct{}

type transactGetItem struct {
	Get struct {
		TableName string                    `json:"TableName"`
		Key       map[string]attrval.Value `json:"Key"`
	} `json:"Get"`
}

type transactGetItemsRequest struct {
	TransactItems []transactGetItem `json:"TransactItems"`
}

type itemResponseEnvelope struct {
	Item map[string]attrval.Value `json:"Item,omitempty"`
}

type transactGetItemsResponse struct {
	Responses []itemResponseEnvelope `json:"Responses"`
}

type errorResponse struct {
	Type                string                `json:"__type"`
	Message             string                `json:"message"`
	CancellationReasons []cancellationReason `json:"CancellationReasons,omitempty"`
}

type cancellationReason struct {
	Code    string                    `json:"Code"`
	Message string                    `json:"Message,omitempty"`
	Item    map[string]attrval.Value `json:"Item,omitempty"`
}
