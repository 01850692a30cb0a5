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

// Package router maps a partition key to its owning shard. The shard count
// is fixed at process start; there is no reshard operation.
package router

import (
	"fmt"
	"hash/crc32"

	"github.com/launix-de/dynokv/internal/attrval"
	"github.com/launix-de/dynokv/internal/rowkey"
)

// Router holds the fixed shard count N used by ShardOf.
type Router struct {
	n uint32
}

// New builds a Router for a fixed shard count. n must be at least 1.
func New(n int) (*Router, error) {
	if n < 1 {
		return nil, fmt.Errorf("router: shard count must be >= 1, got %d", n)
	}
	return &Router{n: uint32(n)}, nil
}

// N returns the fixed shard count.
func (r *Router) N() int { return int(r.n) }

// ShardOf computes shard_of(partition_key) = crc32.ChecksumIEEE(bytes) % N,
// where bytes is the canonical serialization of the partition key value.
// The sort key never affects routing — a Query scoped to one partition key
// is always local to a single shard.
func (r *Router) ShardOf(pk attrval.Value) (int, error) {
	b, err := rowkey.PartitionPrefix(pk)
	if err != nil {
		return 0, fmt.Errorf("router: %w", err)
	}
	return int(crc32.ChecksumIEEE(b) % r.n), nil
}
