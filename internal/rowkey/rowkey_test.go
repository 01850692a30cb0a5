package rowkey

import (
	"bytes"
	"testing"

	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/shopspring/decimal"
)

func mustNum(t *testing.T, s string) attrval.Value {
	t.Helper()
	v, err := attrval.NumberFromString(s)
	if err != nil {
		t.Fatalf("NumberFromString(%q): %v", s, err)
	}
	return v
}

func TestEncodeNumberOrdering(t *testing.T) {
	t.Helper()
	values := []string{"-1000", "-12.3", "-0.123", "-0.12", "0", "0.12", "0.123", "1", "12.3", "1000"}
	var prev []byte
	for i, s := range values {
		enc, err := EncodeComponent(mustNum(t, s))
		if err != nil {
			t.Fatalf("encode %q: %v", s, err)
		}
		if i > 0 && bytes.Compare(prev, enc) >= 0 {
			t.Fatalf("ordering violated at %q: prev=%x enc=%x", s, prev, enc)
		}
		prev = enc
	}
}

func TestEncodeNumberEqualRepresentations(t *testing.T) {
	a, _ := EncodeComponent(mustNum(t, "1.50"))
	b, _ := EncodeComponent(mustNum(t, "1.5"))
	if !bytes.Equal(a, b) {
		t.Fatalf("expected equal encodings for 1.50 and 1.5, got %x vs %x", a, b)
	}
}

func TestEncodeStringOrdering(t *testing.T) {
	lo, _ := EncodeComponent(attrval.String("apple"))
	hi, _ := EncodeComponent(attrval.String("banana"))
	if bytes.Compare(lo, hi) >= 0 {
		t.Fatalf("expected apple < banana, got %x vs %x", lo, hi)
	}
}

func TestEncodeStringPrefixOrdering(t *testing.T) {
	short, _ := EncodeComponent(attrval.String("ab"))
	long, _ := EncodeComponent(attrval.String("abc"))
	if bytes.Compare(short, long) >= 0 {
		t.Fatalf("expected 'ab' < 'abc', got %x vs %x", short, long)
	}
}

func TestKeyWithoutSortKey(t *testing.T) {
	pk := attrval.String("user1")
	key, err := Key(pk, attrval.Value{}, false)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := EncodeComponent(pk)
	if !bytes.Equal(key, want) {
		t.Fatalf("expected key to equal bare partition component, got %x vs %x", key, want)
	}
}

func TestKeyOrderingWithinPartition(t *testing.T) {
	pk := attrval.String("user1")
	k1, err := Key(pk, attrval.Number(decimal.NewFromInt(100)), true)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := Key(pk, attrval.Number(decimal.NewFromInt(200)), true)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Compare(k1, k2) >= 0 {
		t.Fatalf("expected timestamp 100 key < timestamp 200 key")
	}
}

func TestEncodeComponentRejectsNonScalar(t *testing.T) {
	_, err := EncodeComponent(attrval.Bool(true))
	if err == nil {
		t.Fatal("expected error encoding BOOL as a key component")
	}
}
