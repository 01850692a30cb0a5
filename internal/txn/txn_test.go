package txn

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/evaluator"
	"github.com/launix-de/dynokv/internal/idempotency"
	"github.com/launix-de/dynokv/internal/lockmgr"
	"github.com/launix-de/dynokv/internal/router"
	"github.com/launix-de/dynokv/internal/shardstore"
)

// newTestCoordinator opens n real shard stores (in temp directories) so
// a test can exercise ops that genuinely land on different shards.
func newTestCoordinator(t *testing.T, n int) (*Coordinator, []*shardstore.Store) {
	t.Helper()
	r, err := router.New(n)
	if err != nil {
		t.Fatal(err)
	}
	shards := make([]*shardstore.Store, n)
	for i := 0; i < n; i++ {
		s, err := shardstore.Open(filepath.Join(t.TempDir(), "shard.db"), i, 30*time.Second)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		shards[i] = s
	}
	idem := idempotency.New(10 * time.Minute)
	t.Cleanup(idem.Close)
	return New(r, shards, idem), shards
}

// pkOnShard searches small integers for a partition key value that the
// router assigns to the given shard index, so cross-shard tests can pick
// two keys guaranteed to land on different shards.
func pkOnShard(t *testing.T, r *router.Router, shard int, avoid map[string]bool) attrval.Value {
	t.Helper()
	for i := 0; i < 10000; i++ {
		v := attrval.String(itoa(i))
		if avoid != nil && avoid[v.AsString()] {
			continue
		}
		si, err := r.ShardOf(v)
		if err != nil {
			t.Fatal(err)
		}
		if si == shard {
			return v
		}
	}
	t.Fatalf("no key found mapping to shard %d", shard)
	return attrval.Value{}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	return string(buf)
}

func routerOf(t *testing.T, c *Coordinator) *router.Router {
	t.Helper()
	return c.router
}

func TestPutItemThenGetItem(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)
	key := shardstore.Key{Table: "Accounts", PK: attrval.String("a1")}
	op := WriteOp{
		Table: "Accounts",
		Key:   key,
		Item:  shardstore.Item{"accountId": key.PK, "balance": mustNum(t, "100")},
	}
	if err := c.PutItem(context.Background(), op, ""); err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	item, ok, err := c.GetItem("Accounts", key)
	if err != nil || !ok {
		t.Fatalf("GetItem: ok=%v err=%v", ok, err)
	}
	if item["balance"].AsNumber().String() != "100" {
		t.Fatalf("unexpected item: %v", item)
	}
}

func mustNum(t *testing.T, s string) attrval.Value {
	t.Helper()
	v, err := attrval.NumberFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func setBalance(key shardstore.Key, table string, amount attrval.Value) WriteOp {
	return WriteOp{
		Table: table,
		Key:   key,
		Kind:  KindUpdate,
		Update: &evaluator.UpdateExpr{Clauses: []evaluator.UpdateClause{
			{Kind: evaluator.ClauseSet, Path: evaluator.Path{evaluator.K("balance")}, Value: evaluator.Lit(amount)},
		}},
		KeyAttributes: map[string]attrval.Value{"accountId": key.PK},
	}
}

func addToBalance(key shardstore.Key, table string, delta attrval.Value) WriteOp {
	return WriteOp{
		Table: table,
		Key:   key,
		Kind:  KindUpdate,
		Update: &evaluator.UpdateExpr{Clauses: []evaluator.UpdateClause{
			{Kind: evaluator.ClauseAdd, Path: evaluator.Path{evaluator.K("balance")}, Value: evaluator.Lit(delta)},
		}},
		KeyAttributes: map[string]attrval.Value{"accountId": key.PK},
	}
}

// TestAtomicCrossShardTransfer mirrors spec.md's canonical transaction
// example: debit one account, credit another, where the two accounts live
// on different shards. Both writes must land, or neither must.
func TestAtomicCrossShardTransfer(t *testing.T) {
	c, _ := newTestCoordinator(t, 4)
	r := routerOf(t, c)
	pkA := pkOnShard(t, r, 0, nil)
	pkB := pkOnShard(t, r, 1, map[string]bool{pkA.AsString(): true})

	keyA := shardstore.Key{Table: "Accounts", PK: pkA}
	keyB := shardstore.Key{Table: "Accounts", PK: pkB}

	if err := c.PutItem(context.Background(), WriteOp{Table: "Accounts", Key: keyA, Item: shardstore.Item{"accountId": pkA, "balance": mustNum(t, "100")}}, ""); err != nil {
		t.Fatal(err)
	}
	if err := c.PutItem(context.Background(), WriteOp{Table: "Accounts", Key: keyB, Item: shardstore.Item{"accountId": pkB, "balance": mustNum(t, "0")}}, ""); err != nil {
		t.Fatal(err)
	}

	ops := []WriteOp{
		addToBalance(keyA, "Accounts", mustNum(t, "-30")),
		addToBalance(keyB, "Accounts", mustNum(t, "30")),
	}
	if err := c.TransactWriteItems(context.Background(), ops, ""); err != nil {
		t.Fatalf("TransactWriteItems: %v", err)
	}

	a, _, _ := c.GetItem("Accounts", keyA)
	b, _, _ := c.GetItem("Accounts", keyB)
	if a["balance"].AsNumber().String() != "70" {
		t.Fatalf("account A: expected 70, got %s", a["balance"].AsNumber().String())
	}
	if b["balance"].AsNumber().String() != "30" {
		t.Fatalf("account B: expected 30, got %s", b["balance"].AsNumber().String())
	}
}

// TestConditionFailureAbortsWholeTransaction: one op's condition fails, so
// no op's write — including the other op's, whose condition passes — may
// land.
func TestConditionFailureAbortsWholeTransaction(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)
	keyA := shardstore.Key{Table: "Accounts", PK: attrval.String("a1")}
	keyB := shardstore.Key{Table: "Accounts", PK: attrval.String("a2")}
	if err := c.PutItem(context.Background(), WriteOp{Table: "Accounts", Key: keyA, Item: shardstore.Item{"accountId": keyA.PK, "balance": mustNum(t, "10")}}, ""); err != nil {
		t.Fatal(err)
	}
	if err := c.PutItem(context.Background(), WriteOp{Table: "Accounts", Key: keyB, Item: shardstore.Item{"accountId": keyB.PK, "balance": mustNum(t, "10")}}, ""); err != nil {
		t.Fatal(err)
	}

	failingCond := evaluator.Ge(evaluator.Ref(evaluator.Path{evaluator.K("balance")}), evaluator.Lit(mustNum(t, "1000")))
	passingOp := setBalance(keyA, "Accounts", mustNum(t, "999"))
	failingOp := setBalance(keyB, "Accounts", mustNum(t, "999"))
	failingOp.Cond = failingCond

	err := c.TransactWriteItems(context.Background(), []WriteOp{passingOp, failingOp}, "")
	if err == nil {
		t.Fatal("expected TransactionCanceledException")
	}

	a, _, _ := c.GetItem("Accounts", keyA)
	b, _, _ := c.GetItem("Accounts", keyB)
	if a["balance"].AsNumber().String() != "10" {
		t.Fatalf("op A must not have applied: got %s", a["balance"].AsNumber().String())
	}
	if b["balance"].AsNumber().String() != "10" {
		t.Fatalf("op B must not have applied: got %s", b["balance"].AsNumber().String())
	}
}

// TestIdempotentRetryReplaysFirstOutcome: a retried call with the same
// client_request_token never re-applies a second ADD.
func TestIdempotentRetryReplaysFirstOutcome(t *testing.T) {
	c, _ := newTestCoordinator(t, 1)
	key := shardstore.Key{Table: "Accounts", PK: attrval.String("a1")}
	if err := c.PutItem(context.Background(), WriteOp{Table: "Accounts", Key: key, Item: shardstore.Item{"accountId": key.PK, "balance": mustNum(t, "10")}}, ""); err != nil {
		t.Fatal(err)
	}

	token := "req-1"
	op := addToBalance(key, "Accounts", mustNum(t, "5"))
	if err := c.TransactWriteItems(context.Background(), []WriteOp{op}, token); err != nil {
		t.Fatal(err)
	}
	if err := c.TransactWriteItems(context.Background(), []WriteOp{op}, token); err != nil {
		t.Fatal(err)
	}

	got, _, _ := c.GetItem("Accounts", key)
	if got["balance"].AsNumber().String() != "15" {
		t.Fatalf("expected a single ADD to apply once (15), got %s", got["balance"].AsNumber().String())
	}
}

// TestConcurrentConflictSingleWinner: eight goroutines race to ADD 1 to the
// same row. The row lock admits a single winner at a time; a loser retries
// under backoff and either succeeds later or returns a TransactionConflict
// once the backoff budget runs out. The row must show exactly one ADD per
// call that returned success, with no torn/partial state.
func TestConcurrentConflictSingleWinner(t *testing.T) {
	c, _ := newTestCoordinator(t, 1)
	key := shardstore.Key{Table: "Counters", PK: attrval.String("c1")}
	if err := c.PutItem(context.Background(), WriteOp{Table: "Counters", Key: key, Item: shardstore.Item{"id": key.PK, "value": mustNum(t, "0")}}, ""); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			op := addToBalanceField(key, "Counters", mustNum(t, "1"))
			if err := c.TransactWriteItems(context.Background(), []WriteOp{op}, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, ok, err := c.GetItem("Counters", key)
	if err != nil || !ok {
		t.Fatalf("GetItem: ok=%v err=%v", ok, err)
	}
	v := got["value"].AsNumber()
	if v.LessThan(mustNum(t, "0").AsNumber()) || v.GreaterThan(mustNum(t, "8").AsNumber()) {
		t.Fatalf("value out of expected range: %s", v.String())
	}
	if v.String() != itoa(succeeded) {
		t.Fatalf("expected one ADD per successful call (%d), got %s", succeeded, v.String())
	}
}

func addToBalanceField(key shardstore.Key, table string, delta attrval.Value) WriteOp {
	return WriteOp{
		Table: table,
		Key:   key,
		Kind:  KindUpdate,
		Update: &evaluator.UpdateExpr{Clauses: []evaluator.UpdateClause{
			{Kind: evaluator.ClauseAdd, Path: evaluator.Path{evaluator.K("value")}, Value: evaluator.Lit(delta)},
		}},
		KeyAttributes: map[string]attrval.Value{"id": key.PK},
	}
}

// TestReaderNeverSeesStagedImage asserts that a reader racing a concurrent
// transaction only ever observes the row fully before or fully after the
// transaction, never a staged write (spec.md §4.7).
func TestReaderNeverSeesStagedImage(t *testing.T) {
	c, shards := newTestCoordinator(t, 1)
	key := shardstore.Key{Table: "Accounts", PK: attrval.String("a1")}
	if err := c.PutItem(context.Background(), WriteOp{Table: "Accounts", Key: key, Item: shardstore.Item{"accountId": key.PK, "balance": mustNum(t, "10")}}, ""); err != nil {
		t.Fatal(err)
	}

	txid := "external-tx"
	if _, _, err := shards[0].AcquireLock(txid, key, lockmgr.Write); err != nil {
		t.Fatal(err)
	}
	if _, err := shards[0].StageWrite(txid, key, shardstore.OpPut, shardstore.Item{"accountId": key.PK, "balance": mustNum(t, "999")}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := c.GetItem("Accounts", key)
	if err != nil || !ok {
		t.Fatalf("GetItem: ok=%v err=%v", ok, err)
	}
	if got["balance"].AsNumber().String() != "10" {
		t.Fatalf("reader must see the pre-transaction image while a write is staged, got %s", got["balance"].AsNumber().String())
	}
}

func TestTransactWriteItemsRejectsDuplicateKey(t *testing.T) {
	c, _ := newTestCoordinator(t, 1)
	key := shardstore.Key{Table: "Accounts", PK: attrval.String("a1")}
	op1 := WriteOp{Table: "Accounts", Key: key, Item: shardstore.Item{"accountId": key.PK}}
	op2 := setBalance(key, "Accounts", mustNum(t, "1"))
	if err := c.TransactWriteItems(context.Background(), []WriteOp{op1, op2}, ""); err == nil {
		t.Fatal("expected a ValidationException for duplicate target keys")
	}
}

func TestTransactWriteItemsRejectsEmptyOrOversizedBatch(t *testing.T) {
	c, _ := newTestCoordinator(t, 1)
	if err := c.TransactWriteItems(context.Background(), nil, ""); err == nil {
		t.Fatal("expected a ValidationException for zero ops")
	}
	ops := make([]WriteOp, maxOps+1)
	for i := range ops {
		ops[i] = WriteOp{Table: "T", Key: shardstore.Key{PK: attrval.String(itoa(i))}, Item: shardstore.Item{}}
	}
	if err := c.TransactWriteItems(context.Background(), ops, ""); err == nil {
		t.Fatal("expected a ValidationException for more than 100 ops")
	}
}
