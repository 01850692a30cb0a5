package wire

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/launix-de/dynokv/internal/config"
	"github.com/launix-de/dynokv/internal/engine"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.ShardCount = 4
	e, err := engine.Open(cfg)
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return New(e)
}

func doRequest(t *testing.T, h *Handler, op string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	req.Header.Set("X-Amz-Target", targetPrefix+op)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestCreateTablePutGetItem(t *testing.T) {
	h := newTestHandler(t)

	rec, _ := doRequest(t, h, "CreateTable", map[string]any{
		"TableName": "accounts",
		"AttributeDefinitions": []map[string]string{
			{"AttributeName": "id", "AttributeType": "S"},
		},
		"KeySchema": []map[string]string{
			{"AttributeName": "id", "KeyType": "HASH"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("CreateTable: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, _ = doRequest(t, h, "PutItem", map[string]any{
		"TableName": "accounts",
		"Item": map[string]any{
			"id":      map[string]string{"S": "alice"},
			"balance": map[string]string{"N": "100"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("PutItem: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, out := doRequest(t, h, "GetItem", map[string]any{
		"TableName": "accounts",
		"Key": map[string]any{
			"id": map[string]string{"S": "alice"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("GetItem: status %d body %s", rec.Code, rec.Body.String())
	}
	item, ok := out["Item"].(map[string]any)
	if !ok {
		t.Fatalf("expected an Item in response, got %v", out)
	}
	balance, ok := item["balance"].(map[string]any)
	if !ok || balance["N"] != "100" {
		t.Fatalf("unexpected balance field: %v", item["balance"])
	}
}

func TestPutItemConditionFailureReturnsConditionalCheckFailed(t *testing.T) {
	h := newTestHandler(t)
	doRequest(t, h, "CreateTable", map[string]any{
		"TableName": "accounts",
		"AttributeDefinitions": []map[string]string{
			{"AttributeName": "id", "AttributeType": "S"},
		},
		"KeySchema": []map[string]string{
			{"AttributeName": "id", "KeyType": "HASH"},
		},
	})

	rec, out := doRequest(t, h, "PutItem", map[string]any{
		"TableName":           "accounts",
		"ConditionExpression": "attribute_exists(id)",
		"Item": map[string]any{
			"id": map[string]string{"S": "bob"},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
	}
	if out["__type"] != "com.amazonaws.dynamodb.v20120810#ConditionalCheckFailedException" {
		t.Fatalf("unexpected error type: %v", out["__type"])
	}
}

func TestUpdateItemAndQuery(t *testing.T) {
	h := newTestHandler(t)
	doRequest(t, h, "CreateTable", map[string]any{
		"TableName": "events",
		"AttributeDefinitions": []map[string]string{
			{"AttributeName": "pk", "AttributeType": "S"},
			{"AttributeName": "sk", "AttributeType": "N"},
		},
		"KeySchema": []map[string]string{
			{"AttributeName": "pk", "KeyType": "HASH"},
			{"AttributeName": "sk", "KeyType": "RANGE"},
		},
	})

	for i := 1; i <= 3; i++ {
		rec, _ := doRequest(t, h, "PutItem", map[string]any{
			"TableName": "events",
			"Item": map[string]any{
				"pk": map[string]string{"S": "device-1"},
				"sk": map[string]string{"N": itoa(i)},
			},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("PutItem %d: status %d body %s", i, rec.Code, rec.Body.String())
		}
	}

	rec, _ := doRequest(t, h, "UpdateItem", map[string]any{
		"TableName": "events",
		"Key": map[string]any{
			"pk": map[string]string{"S": "device-1"},
			"sk": map[string]string{"N": "1"},
		},
		"UpdateExpression":          "SET #s = :v",
		"ExpressionAttributeNames":  map[string]string{"#s": "status"},
		"ExpressionAttributeValues": map[string]any{":v": map[string]string{"S": "seen"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("UpdateItem: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, out := doRequest(t, h, "Query", map[string]any{
		"TableName":                 "events",
		"KeyConditionExpression":    "pk = :pk",
		"ExpressionAttributeValues": map[string]any{":pk": map[string]string{"S": "device-1"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Query: status %d body %s", rec.Code, rec.Body.String())
	}
	items, ok := out["Items"].([]any)
	if !ok || len(items) != 3 {
		t.Fatalf("expected 3 items, got %v", out["Items"])
	}
}

func TestTransactWriteItemsAndGetItems(t *testing.T) {
	h := newTestHandler(t)
	doRequest(t, h, "CreateTable", map[string]any{
		"TableName": "accounts",
		"AttributeDefinitions": []map[string]string{
			{"AttributeName": "id", "AttributeType": "S"},
		},
		"KeySchema": []map[string]string{
			{"AttributeName": "id", "KeyType": "HASH"},
		},
	})

	rec, _ := doRequest(t, h, "TransactWriteItems", map[string]any{
		"TransactItems": []map[string]any{
			{"Put": map[string]any{
				"TableName": "accounts",
				"Item": map[string]any{
					"id":      map[string]string{"S": "carol"},
					"balance": map[string]string{"N": "50"},
				},
			}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("TransactWriteItems: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, out := doRequest(t, h, "TransactGetItems", map[string]any{
		"TransactItems": []map[string]any{
			{"Get": map[string]any{
				"TableName": "accounts",
				"Key":       map[string]any{"id": map[string]string{"S": "carol"}},
			}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("TransactGetItems: status %d body %s", rec.Code, rec.Body.String())
	}
	responses, ok := out["Responses"].([]any)
	if !ok || len(responses) != 1 {
		t.Fatalf("expected 1 response, got %v", out["Responses"])
	}
}

func itoa(i int) string {
	return [...]string{"0", "1", "2", "3", "4", "5"}[i]
}
