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

// Package schema is the metadata catalog: table name to key schema. It is
// the process's only source of truth for which tables exist and how their
// primary key is shaped, persisted as a single metadata.json file the way
// the teacher's database.save() persists a schema.json per database
// (storage/database.go), generalized from one file per database to one file
// for the whole (single) keyspace this process owns.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/launix-de/dynokv/internal/apierr"
	"github.com/launix-de/dynokv/internal/attrval"
)

// ScalarType is one of the three attribute types a key component may have.
type ScalarType string

const (
	TypeString ScalarType = "S"
	TypeNumber ScalarType = "N"
	TypeBinary ScalarType = "B"
)

// Valid reports whether t is one of the three key-eligible scalar types.
func (t ScalarType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBinary:
		return true
	default:
		return false
	}
}

// Matches reports whether an attribute value's kind matches this key type.
func (t ScalarType) Matches(v attrval.Value) bool {
	switch t {
	case TypeString:
		return v.Kind() == attrval.KindString
	case TypeNumber:
		return v.Kind() == attrval.KindNumber
	case TypeBinary:
		return v.Kind() == attrval.KindBinary
	default:
		return false
	}
}

// KeyAttribute names one component of a table's primary key.
type KeyAttribute struct {
	Name string     `json:"name"`
	Type ScalarType `json:"type"`
}

// Table describes one table's key schema. Tables are otherwise schemaless:
// only the key attributes are ever validated against the schema.
type Table struct {
	Name         string        `json:"table_name"`
	PartitionKey KeyAttribute  `json:"partition_key"`
	SortKey      *KeyAttribute `json:"sort_key,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// HasSortKey reports whether this table defines a sort key component.
func (t *Table) HasSortKey() bool { return t.SortKey != nil }

// Catalog is the process-wide table registry, persisted to a single JSON
// file on every mutation (create/delete), mirroring the teacher's
// save-on-every-schema-change discipline (storage/database.go's db.save()
// called inside CreateTable/DropTable under the schema lock).
type Catalog struct {
	mu   sync.RWMutex
	path string
	tbl  map[string]*Table
}

type catalogFile struct {
	Tables []*Table `json:"tables"`
}

// Open loads the catalog from path if present, or starts an empty one.
func Open(path string) (*Catalog, error) {
	c := &Catalog{path: path, tbl: make(map[string]*Table)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("schema: reading %s: %w", path, err)
	}
	var cf catalogFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("schema: parsing %s: %w", path, err)
	}
	for _, t := range cf.Tables {
		c.tbl[t.Name] = t
	}
	return c, nil
}

func (c *Catalog) save() error {
	cf := catalogFile{Tables: make([]*Table, 0, len(c.tbl))}
	for _, t := range c.tbl {
		cf.Tables = append(cf.Tables, t)
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("schema: marshal: %w", err)
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("schema: mkdir: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("schema: write: %w", err)
	}
	return os.Rename(tmp, c.path)
}

// Create registers a new table. Returns ResourceInUseException if a table
// with this name already exists.
func (c *Catalog) Create(name string, pk KeyAttribute, sk *KeyAttribute) (*Table, error) {
	if !pk.Type.Valid() {
		return nil, apierr.New(apierr.ValidationException, "partition key type %q is not a valid scalar type", pk.Type)
	}
	if sk != nil && !sk.Type.Valid() {
		return nil, apierr.New(apierr.ValidationException, "sort key type %q is not a valid scalar type", sk.Type)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tbl[name]; ok {
		return nil, apierr.New(apierr.ResourceInUseException, "table %q already exists", name)
	}
	t := &Table{Name: name, PartitionKey: pk, SortKey: sk, CreatedAt: time.Now().UTC()}
	c.tbl[name] = t
	if err := c.save(); err != nil {
		delete(c.tbl, name)
		return nil, err
	}
	return t, nil
}

// Delete removes a table from the catalog. Returns ResourceNotFoundException
// if it does not exist. The caller (internal/engine) is responsible for
// deleting the table's rows from every shard before or after calling this.
func (c *Catalog) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tbl[name]; !ok {
		return apierr.New(apierr.ResourceNotFoundException, "table %q does not exist", name)
	}
	removed := c.tbl[name]
	delete(c.tbl, name)
	if err := c.save(); err != nil {
		c.tbl[name] = removed
		return err
	}
	return nil
}

// Get returns the table schema, or ResourceNotFoundException.
func (c *Catalog) Get(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tbl[name]
	if !ok {
		return nil, apierr.New(apierr.ResourceNotFoundException, "table %q does not exist", name)
	}
	return t, nil
}

// List returns all table names, sorted by the caller (order is irrelevant
// to the catalog itself) — returned here as encountered in the map.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tbl))
	for name := range c.tbl {
		names = append(names, name)
	}
	return names
}

// ValidateKey checks that an item carries its table's key attributes with
// matching types, and returns the extracted (partition, sort) values.
func (t *Table) ValidateKey(item map[string]attrval.Value) (pk attrval.Value, sk attrval.Value, err error) {
	pkv, ok := item[t.PartitionKey.Name]
	if !ok {
		return pk, sk, apierr.New(apierr.ValidationException, "missing partition key attribute %q", t.PartitionKey.Name)
	}
	if !t.PartitionKey.Type.Matches(pkv) {
		return pk, sk, apierr.New(apierr.ValidationException, "partition key attribute %q has wrong type", t.PartitionKey.Name)
	}
	pk = pkv
	if t.SortKey != nil {
		skv, ok := item[t.SortKey.Name]
		if !ok {
			return pk, sk, apierr.New(apierr.ValidationException, "missing sort key attribute %q", t.SortKey.Name)
		}
		if !t.SortKey.Type.Matches(skv) {
			return pk, sk, apierr.New(apierr.ValidationException, "sort key attribute %q has wrong type", t.SortKey.Name)
		}
		sk = skv
	}
	return pk, sk, nil
}
