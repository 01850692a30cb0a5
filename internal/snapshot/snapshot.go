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

// Package snapshot ships periodic whole-shard backups to a remote backend,
// grounded on the teacher's storage.PersistenceEngine interface
// (storage/persistence.go) generalized from "the durable store itself" to
// "an optional, slower, out-of-band copy of it" (§11.4 of this
// repository's expanded spec): shardstore's bbolt files remain the only
// source of truth, this is a disaster-recovery path layered on top.
package snapshot

import (
	"context"
	"io"
	"time"

	"github.com/launix-de/dynokv/internal/log"
)

// Backend receives one shard's full bbolt file content per snapshot tick.
// The no-op NullBackend stands in when New is given a nil backend;
// S3Backend is the only other implementation in this tree.
type Backend interface {
	Upload(ctx context.Context, shardIndex int, r io.Reader) error
}

// NullBackend discards every snapshot. New substitutes it for a nil
// backend, so a Snapshotter always has a Backend to call; the engine builds
// a Snapshotter only when S3 is enabled.
type NullBackend struct{}

func (NullBackend) Upload(ctx context.Context, shardIndex int, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// Shard is the subset of shardstore.Store a Snapshotter needs: enough to
// take a consistent snapshot without this package importing shardstore
// directly (shardstore does not need to know snapshot exists).
type Shard interface {
	Snapshot(w io.Writer) error
	ShardIndex() int
}

// Snapshotter periodically snapshots every shard and ships the result to a
// Backend. It never blocks normal request traffic: Store.Snapshot reads
// through a bbolt read transaction that does not contend with writers.
type Snapshotter struct {
	shards   []Shard
	backend  Backend
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func New(shards []Shard, backend Backend, interval time.Duration) *Snapshotter {
	if backend == nil {
		backend = NullBackend{}
	}
	return &Snapshotter{
		shards:   shards,
		backend:  backend,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the periodic snapshot loop in its own goroutine until Stop is
// called. A failed snapshot logs and is retried on the next tick rather
// than aborting the loop — a backup failure must never affect serving
// traffic.
func (s *Snapshotter) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it to do so.
func (s *Snapshotter) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Snapshotter) runOnce(ctx context.Context) {
	lg := log.WithComponent("snapshot")
	for _, sh := range s.shards {
		pr, pw := io.Pipe()
		errCh := make(chan error, 1)
		go func() {
			errCh <- s.backend.Upload(ctx, sh.ShardIndex(), pr)
		}()
		writeErr := sh.Snapshot(pw)
		pw.CloseWithError(writeErr)
		uploadErr := <-errCh
		if writeErr != nil {
			lg.Warn().Err(writeErr).Int("shard", sh.ShardIndex()).Msg("snapshot: reading shard failed")
			continue
		}
		if uploadErr != nil {
			lg.Warn().Err(uploadErr).Int("shard", sh.ShardIndex()).Msg("snapshot: upload failed")
			continue
		}
		lg.Debug().Int("shard", sh.ShardIndex()).Msg("snapshot: uploaded")
	}
}
