package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/launix-de/dynokv/internal/attrval"
)

func TestAsUnwrapsWrappedError(t *testing.T) {
	inner := New(ValidationException, "bad table name %q", "Foo!")
	wrapped := fmt.Errorf("create table: %w", inner)
	got, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find the wrapped *Error")
	}
	if got.Kind != ValidationException {
		t.Fatalf("expected ValidationException, got %v", got.Kind)
	}
}

func TestKindOfDefaultsToInternalServerError(t *testing.T) {
	if KindOf(errors.New("boom")) != InternalServerError {
		t.Fatal("expected a plain error to default to InternalServerError")
	}
}

func TestCanceledCarriesPerOpReasons(t *testing.T) {
	reasons := []CancellationReason{
		{Code: "None"},
		{Code: "ConditionalCheckFailed", Item: map[string]attrval.Value{"id": attrval.String("x")}},
	}
	err := Canceled(reasons)
	if err.Kind != TransactionCanceledException {
		t.Fatalf("expected TransactionCanceledException, got %v", err.Kind)
	}
	if len(err.Reasons) != 2 || err.Reasons[1].Item["id"].AsString() != "x" {
		t.Fatalf("unexpected reasons: %+v", err.Reasons)
	}
}
