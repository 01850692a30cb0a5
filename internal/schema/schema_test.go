package schema

import (
	"path/filepath"
	"testing"

	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
)

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "metadata.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestCreateAndGet(t *testing.T) {
	c := mustCatalog(t)
	_, err := c.Create("orders", KeyAttribute{Name: "userId", Type: TypeString}, &KeyAttribute{Name: "timestamp", Type: TypeNumber})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	tbl, err := c.Get("orders")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !tbl.HasSortKey() || tbl.SortKey.Name != "timestamp" {
		t.Fatalf("sort key not persisted: %+v", tbl)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	c := mustCatalog(t)
	if _, err := c.Create("orders", KeyAttribute{Name: "id", Type: TypeString}, nil); err != nil {
		t.Fatal(err)
	}
	_, err := c.Create("orders", KeyAttribute{Name: "id", Type: TypeString}, nil)
	if apierr.KindOf(err) != apierr.ResourceInUseException {
		t.Fatalf("expected ResourceInUseException, got %v", err)
	}
}

func TestGetMissingFails(t *testing.T) {
	c := mustCatalog(t)
	_, err := c.Get("nope")
	if apierr.KindOf(err) != apierr.ResourceNotFoundException {
		t.Fatalf("expected ResourceNotFoundException, got %v", err)
	}
}

func TestDeleteThenGetFails(t *testing.T) {
	c := mustCatalog(t)
	if _, err := c.Create("t", KeyAttribute{Name: "id", Type: TypeString}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete("t"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("t"); apierr.KindOf(err) != apierr.ResourceNotFoundException {
		t.Fatalf("expected ResourceNotFoundException after delete, got %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create("orders", KeyAttribute{Name: "userId", Type: TypeString}, nil); err != nil {
		t.Fatal(err)
	}
	c2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c2.Get("orders"); err != nil {
		t.Fatalf("expected table to survive reopen: %v", err)
	}
}

func TestValidateKeyRejectsWrongType(t *testing.T) {
	tbl := &Table{Name: "t", PartitionKey: KeyAttribute{Name: "id", Type: TypeString}}
	item := map[string]attrval.Value{"id": attrval.Bool(true)}
	if _, _, err := tbl.ValidateKey(item); apierr.KindOf(err) != apierr.ValidationException {
		t.Fatalf("expected ValidationException, got %v", err)
	}
}

func TestValidateKeyRejectsMissingSortKey(t *testing.T) {
	tbl := &Table{
		Name:         "t",
		PartitionKey: KeyAttribute{Name: "id", Type: TypeString},
		SortKey:      &KeyAttribute{Name: "ts", Type: TypeNumber},
	}
	item := map[string]attrval.Value{"id": attrval.String("a")}
	if _, _, err := tbl.ValidateKey(item); apierr.KindOf(err) != apierr.ValidationException {
		t.Fatalf("expected ValidationException for missing sort key, got %v", err)
	}
}
