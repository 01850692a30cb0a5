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

// Package engine is the public contract layer (spec.md §2): it owns the
// table catalog, the shard stores, the router and the transaction
// coordinator, and translates table-and-item-shaped requests into the
// lower layers' calls. Nothing above this package touches shardstore,
// router, or txn directly.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/config"
	"github.com/launix-de/dynokv/internal/evaluator"
	"github.com/launix-de/dynokv/internal/idempotency"
	"github.com/launix-de/dynokv/internal/router"
	"github.com/launix-de/dynokv/internal/schema"
	"github.com/launix-de/dynokv/internal/shardstore"
	"github.com/launix-de/dynokv/internal/snapshot"
	"github.com/launix-de/dynokv/internal/txn"
)

// Engine is the process's single point of entry into the keyspace: one
// catalog, one router, N shard stores, and the coordinator that ties them
// together.
type Engine struct {
	cfg     config.Config
	catalog *schema.Catalog
	router  *router.Router
	shards  []*shardstore.Store
	idem    *idempotency.Cache
	coord   *txn.Coordinator
	snaps   *snapshot.Snapshotter
}

// Open brings up a full Engine from cfg: the metadata catalog, one
// shardstore.Store per shard, and the transaction coordinator wiring them
// together. Each shard gets its own bbolt file under cfg.DataDir, the way
// the teacher gives each database its own directory under its data root
// (storage/database.go's LoadDatabase).
func Open(cfg config.Config) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("engine: creating data dir: %w", err)
	}

	catalog, err := schema.Open(filepath.Join(cfg.DataDir, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("engine: opening catalog: %w", err)
	}

	r, err := router.New(cfg.ShardCount)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	shards := make([]*shardstore.Store, cfg.ShardCount)
	for i := 0; i < cfg.ShardCount; i++ {
		path := filepath.Join(cfg.DataDir, fmt.Sprintf("shard-%d.db", i))
		s, err := shardstore.Open(path, i, cfg.LockLease)
		if err != nil {
			for _, opened := range shards[:i] {
				opened.Close()
			}
			return nil, fmt.Errorf("engine: opening shard %d: %w", i, err)
		}
		shards[i] = s
	}

	idem := idempotency.New(cfg.IdempotencyTTL)
	coord := txn.New(r, shards, idem)

	var snaps *snapshot.Snapshotter
	if cfg.S3Enabled {
		backend := snapshot.NewS3Backend(snapshot.S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		shardInterfaces := make([]snapshot.Shard, len(shards))
		for i, s := range shards {
			shardInterfaces[i] = s
		}
		snaps = snapshot.New(shardInterfaces, backend, cfg.SnapshotInterval)
		snaps.Start(context.Background())
	}

	return &Engine{
		cfg:     cfg,
		catalog: catalog,
		router:  r,
		shards:  shards,
		idem:    idem,
		coord:   coord,
		snaps:   snaps,
	}, nil
}

// Close releases every shard's bbolt file and stops the idempotency
// cache's reaper. It returns the first error encountered, if any, but
// still attempts to close every shard.
func (e *Engine) Close() error {
	if e.snaps != nil {
		e.snaps.Stop()
	}
	e.idem.Close()
	var firstErr error
	for _, s := range e.shards {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// --- Table catalog operations ---

// CreateTable registers a new table with the given key schema.
func (e *Engine) CreateTable(name string, pk schema.KeyAttribute, sk *schema.KeyAttribute) (*schema.Table, error) {
	return e.catalog.Create(name, pk, sk)
}

// DeleteTable removes a table and every row it holds across all shards
// (spec.md §3). The catalog entry is only dropped once every shard has
// successfully cleared its rows, so a failure part-way through leaves the
// table present (and therefore retryable) rather than orphaning rows under
// a name nothing can address.
func (e *Engine) DeleteTable(name string) (*schema.Table, error) {
	t, err := e.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	for _, s := range e.shards {
		if err := s.DeleteTable(name); err != nil {
			return nil, apierr.New(apierr.InternalServerError, "deleting table %q: %v", name, err)
		}
	}
	if err := e.catalog.Delete(name); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTables returns every table name currently registered.
func (e *Engine) ListTables() []string {
	return e.catalog.List()
}

// DescribeTable returns a table's key schema.
func (e *Engine) DescribeTable(name string) (*schema.Table, error) {
	return e.catalog.Get(name)
}

// --- Item size enforcement ---

// checkItemSize enforces ITEM_MAX_BYTES against item's DynamoDB wire-shape
// JSON encoding. This is an approximation of the real item-size accounting
// rules (which weigh attribute names and structural overhead differently);
// it is deliberately conservative rather than exact, documented as such in
// DESIGN.md.
func (e *Engine) checkItemSize(item map[string]attrval.Value) error {
	data, err := json.Marshal(item)
	if err != nil {
		return apierr.New(apierr.InternalServerError, "encoding item: %v", err)
	}
	if int64(len(data)) > e.cfg.ItemMaxBytes {
		return apierr.New(apierr.ValidationException, "item size %d bytes exceeds the %d byte limit", len(data), e.cfg.ItemMaxBytes)
	}
	return nil
}

// --- Key resolution shared by every item operation ---

func (e *Engine) keyOf(table string, item map[string]attrval.Value) (*schema.Table, shardstore.Key, error) {
	t, err := e.catalog.Get(table)
	if err != nil {
		return nil, shardstore.Key{}, err
	}
	pk, sk, err := t.ValidateKey(item)
	if err != nil {
		return nil, shardstore.Key{}, err
	}
	return t, shardstore.Key{Table: table, PK: pk, SK: sk, HasSortKey: t.HasSortKey()}, nil
}

func keyAttrsOf(t *schema.Table, key shardstore.Key) map[string]attrval.Value {
	attrs := map[string]attrval.Value{t.PartitionKey.Name: key.PK}
	if t.HasSortKey() {
		attrs[t.SortKey.Name] = key.SK
	}
	return attrs
}

// --- Single-item operations ---

// PutItem writes a complete item, replacing whatever (if anything) is
// stored at its key.
func (e *Engine) PutItem(ctx context.Context, table string, item map[string]attrval.Value, cond *evaluator.Cond, returnOldOnFailure bool, clientRequestToken string) error {
	if err := e.checkItemSize(item); err != nil {
		return err
	}
	t, key, err := e.keyOf(table, item)
	if err != nil {
		return err
	}
	op := txn.WriteOp{
		Table:                                table,
		Key:                                  key,
		Item:                                 item,
		Cond:                                 cond,
		KeyAttributes:                        keyAttrsOf(t, key),
		ReturnValuesOnConditionCheckFailure:  returnOldOnFailure,
	}
	return e.coord.PutItem(ctx, op, clientRequestToken)
}

// GetItem reads a single committed item by its full key.
func (e *Engine) GetItem(table string, key map[string]attrval.Value) (map[string]attrval.Value, bool, error) {
	_, k, err := e.keyOf(table, key)
	if err != nil {
		return nil, false, err
	}
	return e.coord.GetItem(table, k)
}

// UpdateItem applies an update expression to the row at key, creating it
// first if absent. keyItem need only carry the table's key attributes.
func (e *Engine) UpdateItem(ctx context.Context, table string, keyItem map[string]attrval.Value, update *evaluator.UpdateExpr, cond *evaluator.Cond, returnOldOnFailure bool, clientRequestToken string) error {
	t, key, err := e.keyOf(table, keyItem)
	if err != nil {
		return err
	}
	op := txn.WriteOp{
		Table:                                table,
		Key:                                  key,
		Kind:                                 txn.KindUpdate,
		Update:                               update,
		Cond:                                 cond,
		KeyAttributes:                        keyAttrsOf(t, key),
		ReturnValuesOnConditionCheckFailure:  returnOldOnFailure,
	}
	return e.coord.UpdateItem(ctx, op, clientRequestToken)
}

// DeleteItem removes the row at key, if present.
func (e *Engine) DeleteItem(ctx context.Context, table string, keyItem map[string]attrval.Value, cond *evaluator.Cond, returnOldOnFailure bool, clientRequestToken string) error {
	t, key, err := e.keyOf(table, keyItem)
	if err != nil {
		return err
	}
	op := txn.WriteOp{
		Table:                                table,
		Key:                                  key,
		Kind:                                 txn.KindDelete,
		Cond:                                 cond,
		KeyAttributes:                        keyAttrsOf(t, key),
		ReturnValuesOnConditionCheckFailure:  returnOldOnFailure,
	}
	return e.coord.DeleteItem(ctx, op, clientRequestToken)
}

// Query runs a single-partition range scan, optionally narrowed to a
// contiguous sort-key range.
func (e *Engine) Query(table string, pk attrval.Value, cond *shardstore.SortKeyCondition, forward bool, limit int, exclusiveStart *shardstore.Key) (shardstore.Page, error) {
	t, err := e.catalog.Get(table)
	if err != nil {
		return shardstore.Page{}, err
	}
	return e.coord.Query(table, pk, t.HasSortKey(), cond, forward, limit, exclusiveStart)
}

// --- Cross-shard transactions ---

// WriteItem is one item within a TransactWriteItems call, named by table
// rather than by pre-resolved shard key.
type WriteItem struct {
	Table string
	Kind  txn.OpKind

	// Item is the full new image for KindPut, or just the key attributes
	// (plus whatever else the caller wants ValidateKey to see) for every
	// other kind.
	Item   map[string]attrval.Value
	Update *evaluator.UpdateExpr
	Cond   *evaluator.Cond

	ReturnValuesOnConditionCheckFailure bool
}

func (e *Engine) resolveWriteOp(wi WriteItem) (txn.WriteOp, error) {
	if wi.Kind == txn.KindPut {
		if err := e.checkItemSize(wi.Item); err != nil {
			return txn.WriteOp{}, err
		}
	}
	t, key, err := e.keyOf(wi.Table, wi.Item)
	if err != nil {
		return txn.WriteOp{}, err
	}
	return txn.WriteOp{
		Table:                                wi.Table,
		Key:                                  key,
		Kind:                                 wi.Kind,
		Item:                                 wi.Item,
		Update:                               wi.Update,
		Cond:                                 wi.Cond,
		KeyAttributes:                        keyAttrsOf(t, key),
		ReturnValuesOnConditionCheckFailure:  wi.ReturnValuesOnConditionCheckFailure,
	}, nil
}

// TransactWriteItems runs up to 100 writes across any number of tables and
// shards as one atomic transaction (spec.md §4.5).
func (e *Engine) TransactWriteItems(ctx context.Context, items []WriteItem, clientRequestToken string) error {
	ops := make([]txn.WriteOp, len(items))
	for i, wi := range items {
		op, err := e.resolveWriteOp(wi)
		if err != nil {
			return err
		}
		ops[i] = op
	}
	return e.coord.TransactWriteItems(ctx, ops, clientRequestToken)
}

// GetItemRef is one item within a TransactGetItems call.
type GetItemRef struct {
	Table string
	Key   map[string]attrval.Value
}

// TransactGetItems reads the committed image of each referenced item.
func (e *Engine) TransactGetItems(refs []GetItemRef) ([]map[string]attrval.Value, []bool, error) {
	gets := make([]txn.GetOp, len(refs))
	for i, ref := range refs {
		_, key, err := e.keyOf(ref.Table, ref.Key)
		if err != nil {
			return nil, nil, err
		}
		gets[i] = txn.GetOp{Table: ref.Table, Key: key}
	}
	return e.coord.TransactGetItems(gets)
}
