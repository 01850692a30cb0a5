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

// Package txn is the cross-shard transaction coordinator: two-phase commit
// over a set of per-shard shardstore.Store instances, grounded directly on
// spec.md §4.5's state machine (INIT -> LOCKED -> PREPARED -> COMMITTED, or
// ABORTED from LOCKED or PREPARED). Lock-acquisition conflicts are retried
// with backoff; condition and validation failures are not.
package txn

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/evaluator"
	"github.com/launix-de/dynokv/internal/idempotency"
	"github.com/launix-de/dynokv/internal/lockmgr"
	"github.com/launix-de/dynokv/internal/log"
	"github.com/launix-de/dynokv/internal/metrics"
	"github.com/launix-de/dynokv/internal/router"
	"github.com/launix-de/dynokv/internal/shardstore"
)

// OpKind is the kind of mutation a WriteOp performs.
type OpKind int

const (
	KindPut OpKind = iota
	KindUpdate
	KindDelete
	KindConditionCheck
)

// WriteOp is one item within a TransactWriteItems call.
type WriteOp struct {
	Table string
	Key   shardstore.Key
	Kind  OpKind

	// Item is the full new image for KindPut.
	Item shardstore.Item
	// Update is the SET/REMOVE/ADD/DELETE clause list for KindUpdate.
	Update *evaluator.UpdateExpr
	// Cond is an optional condition expression, valid for every Kind
	// (ConditionCheck requires one; the others treat a nil Cond as
	// unconditional).
	Cond *evaluator.Cond

	// KeyAttributes are the table's key attribute name->value pairs for
	// Key, always merged into the op's resulting image so the row carries
	// its declared key regardless of what Item/Update otherwise produce.
	KeyAttributes map[string]attrval.Value

	// ReturnValuesOnConditionCheckFailure requests that a failing
	// condition attach the row's current committed image (or none, if the
	// row did not exist) to its CancellationReason.
	ReturnValuesOnConditionCheckFailure bool
}

// GetOp is one item within a TransactGetItems call.
type GetOp struct {
	Table string
	Key   shardstore.Key
}

// Coordinator runs transactions across a fixed set of shard stores.
type Coordinator struct {
	router *router.Router
	shards []*shardstore.Store
	idem   *idempotency.Cache
}

const (
	minOps = 1
	maxOps = 100

	backoffInitial    = 5 * time.Millisecond
	backoffMax        = 200 * time.Millisecond
	backoffMaxElapsed = time.Second
)

// New builds a Coordinator. shards must be indexed by shard index, i.e.
// shards[i].ShardIndex() == i, and len(shards) == r.N().
func New(r *router.Router, shards []*shardstore.Store, idem *idempotency.Cache) *Coordinator {
	return &Coordinator{router: r, shards: shards, idem: idem}
}

func newTxid() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString())
}

// opEntry binds a WriteOp to its owning shard and canonical row bytes, for
// the grouping and sorting steps of spec.md §4.5.
type opEntry struct {
	idx      int // position within the caller's original ops slice
	op       *WriteOp
	rowBytes []byte
	shardIdx int
	store    *shardstore.Store
}

// TransactWriteItems runs ops as a single atomic cross-shard transaction.
// clientRequestToken, if non-empty, makes the call idempotent: a repeated
// call with the same token replays the first call's terminal outcome
// instead of re-evaluating conditions (spec.md §4.6).
func (c *Coordinator) TransactWriteItems(ctx context.Context, ops []WriteOp, clientRequestToken string) error {
	if clientRequestToken != "" {
		if outcome, ok := c.idem.Get(clientRequestToken); ok {
			metrics.IdempotencyHits.Inc()
			return outcome.Err
		}
	}

	err := c.transactWrite(ctx, ops)

	if clientRequestToken != "" {
		c.idem.Put(clientRequestToken, idempotency.Outcome{Err: err})
	}
	return err
}

func (c *Coordinator) transactWrite(ctx context.Context, ops []WriteOp) error {
	if len(ops) < minOps || len(ops) > maxOps {
		return apierr.New(apierr.ValidationException, "TransactWriteItems requires between %d and %d items, got %d", minOps, maxOps, len(ops))
	}

	entries := make([]*opEntry, len(ops))
	seen := make(map[string]int, len(ops))
	byShard := make(map[int][]*opEntry)

	for i := range ops {
		op := &ops[i]
		rb, err := op.Key.RowBytes()
		if err != nil {
			return apierr.New(apierr.ValidationException, "item %d: %v", i, err)
		}
		if prev, dup := seen[string(rb)]; dup {
			return apierr.New(apierr.ValidationException, "items %d and %d target the same primary key", prev, i)
		}
		seen[string(rb)] = i

		shardIdx, err := c.router.ShardOf(op.Key.PK)
		if err != nil {
			return apierr.New(apierr.ValidationException, "item %d: %v", i, err)
		}
		if shardIdx < 0 || shardIdx >= len(c.shards) {
			return apierr.New(apierr.InternalServerError, "item %d: shard %d out of range", i, shardIdx)
		}

		e := &opEntry{idx: i, op: op, rowBytes: rb, shardIdx: shardIdx, store: c.shards[shardIdx]}
		entries[i] = e
		byShard[shardIdx] = append(byShard[shardIdx], e)
	}

	shardIdxs := make([]int, 0, len(byShard))
	for si := range byShard {
		shardIdxs = append(shardIdxs, si)
	}
	sort.Ints(shardIdxs)
	for _, si := range shardIdxs {
		group := byShard[si]
		sort.Slice(group, func(i, j int) bool {
			return bytes.Compare(group[i].rowBytes, group[j].rowBytes) < 0
		})
	}

	txid := newTxid()

	conflictIdx, err := c.acquireAllWithBackoff(txid, shardIdxs, byShard)
	if err != nil {
		return err
	}
	if conflictIdx >= 0 {
		reasons := make([]apierr.CancellationReason, len(ops))
		for i := range reasons {
			if i == conflictIdx {
				reasons[i] = apierr.CancellationReason{Code: "TransactionConflict", Message: "transaction could not acquire all locks"}
			} else {
				reasons[i] = apierr.CancellationReason{Code: "None"}
			}
		}
		metrics.TransactionsAborted.WithLabelValues("conflict").Inc()
		return apierr.Canceled(reasons)
	}

	// LOCKED: evaluate every op's condition against the committed image
	// held under its lock, and compute the image each op would write.
	type plan struct {
		ok       bool
		reason   apierr.CancellationReason
		newImage shardstore.Item
		op       Op
	}
	plans := make([]plan, len(ops))
	anyFailed := false

	for i := range ops {
		e := entries[i]
		op := e.op
		current, existed, err := e.store.Get(op.Key)
		if err != nil {
			c.abortAll(txid, shardIdxs, byShard)
			return apierr.New(apierr.InternalServerError, "item %d: %v", i, err)
		}

		condItem := evaluator.Item(current)
		if condItem == nil {
			condItem = evaluator.Item{}
		}
		if op.Cond != nil && !evaluator.EvalCond(condItem, op.Cond) {
			anyFailed = true
			reason := apierr.CancellationReason{Code: "ConditionalCheckFailed"}
			if op.ReturnValuesOnConditionCheckFailure && existed {
				reason.Item = cloneAttrs(current)
			}
			plans[i] = plan{ok: false, reason: reason}
			continue
		}

		switch op.Kind {
		case KindConditionCheck:
			plans[i] = plan{ok: true, reason: apierr.CancellationReason{Code: "None"}}
		case KindPut:
			newImage := cloneAttrs(op.Item)
			mergeKeyAttrs(newImage, op.KeyAttributes)
			plans[i] = plan{ok: true, reason: apierr.CancellationReason{Code: "None"}, newImage: newImage, op: toStoreOp(op.Kind)}
		case KindDelete:
			plans[i] = plan{ok: true, reason: apierr.CancellationReason{Code: "None"}, op: toStoreOp(op.Kind)}
		case KindUpdate:
			base := evaluator.Item(cloneAttrs(current))
			if base == nil {
				base = evaluator.Item{}
			}
			for k, v := range op.KeyAttributes {
				base[k] = v
			}
			updated, err := evaluator.ApplyUpdate(base, op.Update)
			if err != nil {
				anyFailed = true
				plans[i] = plan{ok: false, reason: apierr.CancellationReason{Code: "ValidationError", Message: err.Error()}}
				continue
			}
			newImage := shardstore.Item(updated)
			mergeKeyAttrs(newImage, op.KeyAttributes)
			plans[i] = plan{ok: true, reason: apierr.CancellationReason{Code: "None"}, newImage: newImage, op: toStoreOp(op.Kind)}
		default:
			anyFailed = true
			plans[i] = plan{ok: false, reason: apierr.CancellationReason{Code: "ValidationError", Message: "unknown op kind"}}
		}
	}

	if anyFailed {
		c.abortAll(txid, shardIdxs, byShard)
		reasons := make([]apierr.CancellationReason, len(ops))
		for i, p := range plans {
			reasons[i] = p.reason
		}
		metrics.TransactionsAborted.WithLabelValues("condition").Inc()
		return apierr.Canceled(reasons)
	}

	// PREPARED: stage every mutating op.
	for i := range ops {
		op := entries[i].op
		if op.Kind == KindConditionCheck {
			continue
		}
		if _, err := entries[i].store.StageWrite(txid, op.Key, plans[i].op, plans[i].newImage); err != nil {
			c.abortAll(txid, shardIdxs, byShard)
			metrics.TransactionsAborted.WithLabelValues("internal").Inc()
			return apierr.New(apierr.InternalServerError, "item %d: stage: %v", i, err)
		}
	}

	// COMMITTED: apply every shard's staged writes and release its locks,
	// in parallel across shards (spec.md §4.5 step 3).
	g, _ := errgroup.WithContext(ctx)
	for _, si := range shardIdxs {
		si := si
		group := byShard[si]
		g.Go(func() error {
			store := group[0].store
			keys := make([]shardstore.Key, len(group))
			for i, e := range group {
				keys[i] = e.op.Key
			}
			if err := store.CommitStaged(txid, keys); err != nil {
				return fmt.Errorf("shard %d commit: %w", si, err)
			}
			return store.ReleaseAllLocks(txid, keys)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.TransactionsAborted.WithLabelValues("internal").Inc()
		return apierr.New(apierr.InternalServerError, "%v", err)
	}

	metrics.TransactionsCommitted.Inc()
	return nil
}

// acquireAllWithBackoff runs spec.md §4.5 step 1: acquire every op's lock,
// shard-ascending then key-ascending, releasing and retrying the whole
// attempt on any Conflict, with bounded exponential backoff. It returns the
// index (into the caller's original ops slice) of the op that ultimately
// could not acquire its lock, or -1 on success.
func (c *Coordinator) acquireAllWithBackoff(txid string, shardIdxs []int, byShard map[int][]*opEntry) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = backoffInitial
	bo.MaxInterval = backoffMax
	bo.MaxElapsedTime = backoffMaxElapsed
	bo.Reset()

	for {
		conflictIdx, acquired, err := c.tryAcquireOnce(txid, shardIdxs, byShard)
		if err != nil {
			c.releaseAcquired(txid, acquired)
			return -1, err
		}
		if conflictIdx < 0 {
			return -1, nil
		}
		c.releaseAcquired(txid, acquired)
		metrics.LockConflicts.Inc()

		d := bo.NextBackOff()
		if d == backoff.Stop {
			return conflictIdx, nil
		}
		time.Sleep(d)
	}
}

type acquiredLock struct {
	store *shardstore.Store
	key   shardstore.Key
}

// tryAcquireOnce makes a single attempt to acquire every op's lock in
// canonical order, stopping at the first Conflict. It returns the
// conflicting op's original index (-1 if every lock was acquired) along
// with everything acquired during this attempt, so the caller can release
// it before retrying.
func (c *Coordinator) tryAcquireOnce(txid string, shardIdxs []int, byShard map[int][]*opEntry) (int, []acquiredLock, error) {
	var acquired []acquiredLock
	for _, si := range shardIdxs {
		for _, e := range byShard[si] {
			res, prevOwner, err := e.store.AcquireLock(txid, e.op.Key, lockmgr.Write)
			if err != nil {
				return -1, acquired, err
			}
			switch res {
			case lockmgr.Conflict:
				return e.idx, acquired, nil
			case lockmgr.Stolen:
				if prevOwner != "" {
					if err := e.store.DiscardStagedForKey(e.op.Key); err != nil {
						log.WithComponent("txn").Warn().Err(err).Str("prev_owner", prevOwner).Msg("failed to discard stolen lock's staged write")
					}
				}
				acquired = append(acquired, acquiredLock{store: e.store, key: e.op.Key})
			default:
				acquired = append(acquired, acquiredLock{store: e.store, key: e.op.Key})
			}
		}
	}
	return -1, acquired, nil
}

func (c *Coordinator) releaseAcquired(txid string, acquired []acquiredLock) {
	byStore := make(map[*shardstore.Store][]shardstore.Key)
	for _, a := range acquired {
		byStore[a.store] = append(byStore[a.store], a.key)
	}
	for store, keys := range byStore {
		if err := store.ReleaseAllLocks(txid, keys); err != nil {
			log.WithComponent("txn").Warn().Err(err).Msg("failed to release locks after conflict")
		}
	}
}

// abortAll discards every staged write and releases every lock this txid
// holds across all participating shards (spec.md §4.5 step 4).
func (c *Coordinator) abortAll(txid string, shardIdxs []int, byShard map[int][]*opEntry) {
	for _, si := range shardIdxs {
		group := byShard[si]
		store := group[0].store
		keys := make([]shardstore.Key, len(group))
		for i, e := range group {
			keys[i] = e.op.Key
		}
		if err := store.DiscardStaged(txid, keys); err != nil {
			log.WithComponent("txn").Warn().Err(err).Msg("failed to discard staged writes on abort")
		}
		if err := store.ReleaseAllLocks(txid, keys); err != nil {
			log.WithComponent("txn").Warn().Err(err).Msg("failed to release locks on abort")
		}
	}
}

// TransactGetItems reads the committed image of each key, without locking.
// Individual reads are each of a committed image, but the set as a whole is
// not a consistent snapshot across concurrent commits (spec.md §4.5's
// transact_get semantics).
func (c *Coordinator) TransactGetItems(gets []GetOp) ([]shardstore.Item, []bool, error) {
	if len(gets) < minOps || len(gets) > maxOps {
		return nil, nil, apierr.New(apierr.ValidationException, "TransactGetItems requires between %d and %d items, got %d", minOps, maxOps, len(gets))
	}
	items := make([]shardstore.Item, len(gets))
	found := make([]bool, len(gets))
	for i, g := range gets {
		shardIdx, err := c.router.ShardOf(g.Key.PK)
		if err != nil {
			return nil, nil, apierr.New(apierr.ValidationException, "item %d: %v", i, err)
		}
		item, ok, err := c.shards[shardIdx].Get(g.Key)
		if err != nil {
			return nil, nil, apierr.New(apierr.InternalServerError, "item %d: %v", i, err)
		}
		items[i], found[i] = item, ok
	}
	return items, found, nil
}

// PutItem, UpdateItem, and DeleteItem run a single op as a one-item
// transaction, reusing the same lock/condition/commit path as
// TransactWriteItems rather than a separate fast path (spec.md §4.2).
func (c *Coordinator) PutItem(ctx context.Context, op WriteOp, clientRequestToken string) error {
	op.Kind = KindPut
	return c.TransactWriteItems(ctx, []WriteOp{op}, clientRequestToken)
}

func (c *Coordinator) UpdateItem(ctx context.Context, op WriteOp, clientRequestToken string) error {
	op.Kind = KindUpdate
	return c.TransactWriteItems(ctx, []WriteOp{op}, clientRequestToken)
}

func (c *Coordinator) DeleteItem(ctx context.Context, op WriteOp, clientRequestToken string) error {
	op.Kind = KindDelete
	return c.TransactWriteItems(ctx, []WriteOp{op}, clientRequestToken)
}

// GetItem reads a single committed item outside of any transaction.
func (c *Coordinator) GetItem(table string, key shardstore.Key) (shardstore.Item, bool, error) {
	items, found, err := c.TransactGetItems([]GetOp{{Table: table, Key: key}})
	if err != nil {
		return nil, false, err
	}
	return items[0], found[0], nil
}

// Query runs a single-partition range query against the owning shard.
func (c *Coordinator) Query(table string, pk attrval.Value, hasSortKey bool, cond *shardstore.SortKeyCondition, forward bool, limit int, exclusiveStart *shardstore.Key) (shardstore.Page, error) {
	shardIdx, err := c.router.ShardOf(pk)
	if err != nil {
		return shardstore.Page{}, apierr.New(apierr.ValidationException, "%v", err)
	}
	return c.shards[shardIdx].Query(table, pk, hasSortKey, cond, forward, limit, exclusiveStart)
}

func toStoreOp(k OpKind) Op {
	switch k {
	case KindPut:
		return shardstore.OpPut
	case KindUpdate:
		return shardstore.OpUpdate
	case KindDelete:
		return shardstore.OpDelete
	default:
		return shardstore.OpPut
	}
}

// Op is an alias so toStoreOp's signature reads naturally alongside the
// shardstore.Op values it returns.
type Op = shardstore.Op

func cloneAttrs(it map[string]attrval.Value) map[string]attrval.Value {
	if it == nil {
		return nil
	}
	cp := make(map[string]attrval.Value, len(it))
	for k, v := range it {
		cp[k] = v
	}
	return cp
}

func mergeKeyAttrs(item map[string]attrval.Value, keyAttrs map[string]attrval.Value) {
	for k, v := range keyAttrs {
		item[k] = v
	}
}
