package attrval

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func mustNum(t *testing.T, s string) Value {
	t.Helper()
	v, err := NumberFromString(s)
	if err != nil {
		t.Fatalf("NumberFromString(%q): %v", s, err)
	}
	return v
}

func TestEqualAcrossKindsAlwaysFalse(t *testing.T) {
	if Equal(mustNum(t, "1"), String("1")) {
		t.Fatal("number and string must never compare equal")
	}
}

func TestEqualSetIgnoresOrder(t *testing.T) {
	a := StringSet([]string{"x", "y"})
	b := StringSet([]string{"y", "x"})
	if !Equal(a, b) {
		t.Fatal("expected sets with same members to be equal regardless of order")
	}
}

func TestCompareNumberDecimalPrecision(t *testing.T) {
	a := mustNum(t, "1.50")
	b := mustNum(t, "1.5")
	cmp, ok := Compare(a, b)
	if !ok || cmp != 0 {
		t.Fatalf("expected 1.50 == 1.5, got cmp=%d ok=%v", cmp, ok)
	}
}

func TestCompareMismatchedKindNotOK(t *testing.T) {
	_, ok := Compare(mustNum(t, "1"), String("1"))
	if ok {
		t.Fatal("expected ok=false comparing across kinds")
	}
}

func TestContainsString(t *testing.T) {
	if !Contains(String("hello world"), String("wor")) {
		t.Fatal("expected substring match")
	}
	if Contains(String("hello"), String("xyz")) {
		t.Fatal("expected no match")
	}
}

func TestBeginsWith(t *testing.T) {
	if !BeginsWith(String("hello"), String("he")) {
		t.Fatal("expected prefix match")
	}
	if BeginsWith(String("hello"), String("xe")) {
		t.Fatal("expected no prefix match")
	}
}

func TestAddNumeric(t *testing.T) {
	r := Add(mustNum(t, "2"), mustNum(t, "3"))
	if r.AsNumber().String() != "5" {
		t.Fatalf("expected 5, got %s", r.AsNumber().String())
	}
}

func TestAddSetUnion(t *testing.T) {
	r := Add(StringSet([]string{"a"}), StringSet([]string{"a", "b"}))
	if r.Len() != 2 {
		t.Fatalf("expected union of size 2, got %d", r.Len())
	}
}

func TestSubtractSetDifference(t *testing.T) {
	r := Subtract(StringSet([]string{"a", "b", "c"}), StringSet([]string{"b"}))
	if r.Len() != 2 || Contains(r, String("b")) {
		t.Fatalf("expected {a,c}, got len=%d", r.Len())
	}
}

func TestJSONRoundTripAllKinds(t *testing.T) {
	values := []Value{
		Null(),
		String("hello"),
		mustNum(t, "123.456"),
		Binary([]byte{1, 2, 3}),
		Bool(true),
		StringSet([]string{"a", "b"}),
		NumberSet([]decimal.Decimal{mustNum(t, "1").AsNumber(), mustNum(t, "2").AsNumber()}),
		BinarySet([][]byte{{1}, {2}}),
		List([]Value{String("a"), mustNum(t, "1")}),
		Map(map[string]Value{"k": String("v")}),
	}
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %v: %v", v.Kind(), err)
		}
		var out Value
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal %v: %v", v.Kind(), err)
		}
		if !Equal(v, out) {
			t.Fatalf("roundtrip mismatch for kind %v: %s", v.Kind(), data)
		}
	}
}

func TestJSONMapFieldShape(t *testing.T) {
	v := Map(map[string]Value{"name": String("alice")})
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	if _, ok := generic["M"]; !ok {
		t.Fatalf("expected top-level M key in %s", data)
	}
}
