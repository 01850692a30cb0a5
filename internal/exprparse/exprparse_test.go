package exprparse

import (
	"testing"

	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/evaluator"
)

func mustNum(t *testing.T, s string) attrval.Value {
	t.Helper()
	v, err := attrval.NumberFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestParseConditionSimpleComparison(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{":bal": mustNum(t, "100")}}
	cond, err := ParseCondition("balance > :bal", params)
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	item := evaluator.Item{"balance": mustNum(t, "150")}
	if !evaluator.EvalCond(item, cond) {
		t.Fatal("expected 150 > 100 to hold")
	}
	item2 := evaluator.Item{"balance": mustNum(t, "50")}
	if evaluator.EvalCond(item2, cond) {
		t.Fatal("expected 50 > 100 to fail")
	}
}

func TestParseConditionNamePlaceholder(t *testing.T) {
	params := Params{
		Names:  map[string]string{"#s": "status"},
		Values: map[string]attrval.Value{":v": attrval.String("active")},
	}
	cond, err := ParseCondition("#s = :v", params)
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	if !evaluator.EvalCond(evaluator.Item{"status": attrval.String("active")}, cond) {
		t.Fatal("expected status = active to hold")
	}
}

func TestParseConditionAndOrNotPrecedence(t *testing.T) {
	// NOT binds tighter than AND, which binds tighter than OR.
	params := Params{Values: map[string]attrval.Value{
		":a": mustNum(t, "1"),
		":b": mustNum(t, "2"),
	}}
	cond, err := ParseCondition("a = :a AND NOT b = :b OR a = :b", params)
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	// a=1, b=1: (1=1 AND NOT 1=2) OR 1=2 -> (true AND true) OR false -> true
	if !evaluator.EvalCond(evaluator.Item{"a": mustNum(t, "1"), "b": mustNum(t, "1")}, cond) {
		t.Fatal("expected condition to hold")
	}
	// a=2, b=2: (2=1 AND NOT 2=2) OR 2=2 -> false OR true -> true
	if !evaluator.EvalCond(evaluator.Item{"a": mustNum(t, "2"), "b": mustNum(t, "2")}, cond) {
		t.Fatal("expected condition to hold via the OR branch")
	}
	// a=3, b=4: (3=1 AND NOT 4=2) OR 3=2 -> false OR false -> false
	if evaluator.EvalCond(evaluator.Item{"a": mustNum(t, "3"), "b": mustNum(t, "4")}, cond) {
		t.Fatal("expected condition to fail")
	}
}

func TestParseConditionFunctions(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{":p": attrval.String("ab")}}
	cond, err := ParseCondition("attribute_exists(tag) AND begins_with(tag, :p)", params)
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	if !evaluator.EvalCond(evaluator.Item{"tag": attrval.String("abcdef")}, cond) {
		t.Fatal("expected begins_with(tag, ab) to hold")
	}
	if evaluator.EvalCond(evaluator.Item{"tag": attrval.String("zzz")}, cond) {
		t.Fatal("expected begins_with(tag, ab) to fail")
	}
	if evaluator.EvalCond(evaluator.Item{}, cond) {
		t.Fatal("expected attribute_exists(tag) to fail on a missing attribute")
	}
}

func TestParseConditionBetweenAndIn(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{
		":lo": mustNum(t, "10"),
		":hi": mustNum(t, "20"),
		":x":  mustNum(t, "1"),
		":y":  mustNum(t, "2"),
	}}
	between, err := ParseCondition("n BETWEEN :lo AND :hi", params)
	if err != nil {
		t.Fatalf("ParseCondition BETWEEN: %v", err)
	}
	if !evaluator.EvalCond(evaluator.Item{"n": mustNum(t, "15")}, between) {
		t.Fatal("expected 15 BETWEEN 10 AND 20 to hold")
	}

	in, err := ParseCondition("n IN (:x, :y)", params)
	if err != nil {
		t.Fatalf("ParseCondition IN: %v", err)
	}
	if !evaluator.EvalCond(evaluator.Item{"n": mustNum(t, "2")}, in) {
		t.Fatal("expected 2 IN (1, 2) to hold")
	}
	if evaluator.EvalCond(evaluator.Item{"n": mustNum(t, "3")}, in) {
		t.Fatal("expected 3 IN (1, 2) to fail")
	}
}

func TestParseConditionSizeFunction(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{":n": mustNum(t, "3")}}
	cond, err := ParseCondition("size(tags) = :n", params)
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	item := evaluator.Item{"tags": attrval.StringSet([]string{"a", "b", "c"})}
	if !evaluator.EvalCond(item, cond) {
		t.Fatal("expected size(tags) = 3 to hold")
	}
}

func TestParseConditionNestedPath(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{":v": attrval.String("x")}}
	cond, err := ParseCondition("meta.tags[0] = :v", params)
	if err != nil {
		t.Fatalf("ParseCondition: %v", err)
	}
	item := evaluator.Item{"meta": attrval.Map(map[string]attrval.Value{
		"tags": attrval.List([]attrval.Value{attrval.String("x"), attrval.String("y")}),
	})}
	if !evaluator.EvalCond(item, cond) {
		t.Fatal("expected meta.tags[0] = x to hold")
	}
}

func TestParseConditionMissingPlaceholderIsError(t *testing.T) {
	if _, err := ParseCondition("a = :missing", Params{}); err == nil {
		t.Fatal("expected an error for an unresolved value placeholder")
	}
	if _, err := ParseCondition("#missing = :v", Params{Values: map[string]attrval.Value{":v": attrval.String("x")}}); err == nil {
		t.Fatal("expected an error for an unresolved name placeholder")
	}
}

func TestParseUpdateSetRemoveAddDelete(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{
		":inc":  mustNum(t, "5"),
		":name": attrval.String("bob"),
		":tag":  attrval.StringSet([]string{"x"}),
	}}
	u, err := ParseUpdate("SET #n = :name ADD balance :inc REMOVE obsolete DELETE tags :tag", Params{
		Names:  map[string]string{"#n": "name"},
		Values: params.Values,
	})
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if len(u.Clauses) != 4 {
		t.Fatalf("expected 4 clauses, got %d", len(u.Clauses))
	}

	item := evaluator.Item{
		"name":     attrval.String("alice"),
		"balance":  mustNum(t, "10"),
		"obsolete": attrval.String("gone-soon"),
		"tags":     attrval.StringSet([]string{"x", "y"}),
	}
	out, err := evaluator.ApplyUpdate(item, u)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if out["name"].AsString() != "bob" {
		t.Fatalf("expected name=bob, got %v", out["name"])
	}
	if out["balance"].AsNumber().String() != "15" {
		t.Fatalf("expected balance=15, got %v", out["balance"])
	}
	if _, ok := out["obsolete"]; ok {
		t.Fatal("expected obsolete to be removed")
	}
	if got := out["tags"].AsStringSet(); len(got) != 1 || got[0] != "y" {
		t.Fatalf("expected tags={y}, got %v", got)
	}
}

func TestParseUpdateSetWithArithmetic(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{":d": mustNum(t, "7")}}
	u, err := ParseUpdate("SET balance = balance - :d", params)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	item := evaluator.Item{"balance": mustNum(t, "20")}
	out, err := evaluator.ApplyUpdate(item, u)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if out["balance"].AsNumber().String() != "13" {
		t.Fatalf("expected balance=13, got %v", out["balance"])
	}
}

func TestParseUpdateDuplicatePathIsRejected(t *testing.T) {
	params := Params{Values: map[string]attrval.Value{":a": mustNum(t, "1"), ":b": mustNum(t, "2")}}
	if _, err := ParseUpdate("SET n = :a SET n = :b", params); err == nil {
		t.Fatal("expected a duplicate-path update expression to be rejected")
	}
	if _, err := ParseUpdate("SET n = :a REMOVE n", params); err == nil {
		t.Fatal("expected SET n / REMOVE n in the same expression to be rejected")
	}
}

func TestLexUnexpectedCharacter(t *testing.T) {
	if _, err := lex("a = @b"); err == nil {
		t.Fatal("expected an error for an unsupported character")
	}
}
