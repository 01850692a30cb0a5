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

// Package lockmgr is a per-shard exclusive row lock manager. It is
// deliberately not a fair queue: a conflicting request returns immediately
// with Conflict and the caller (the transaction coordinator) decides
// whether to retry or abort.
package lockmgr

import (
	"sync"
	"time"
)

// Intent is the kind of access a lock request wants.
type Intent int

const (
	Read Intent = iota
	Write
)

// record is one held lock.
type record struct {
	owner      string // txid
	intent     Intent
	acquiredAt time.Time
}

// Manager holds the lock table for one shard.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*record
	lease time.Duration
}

// New builds a lock manager with the given lease duration — a lock older
// than lease is considered abandoned and may be stolen by a new requester
// (spec.md §4.4's liveness mechanism against crashed coordinators).
func New(lease time.Duration) *Manager {
	return &Manager{locks: make(map[string]*record), lease: lease}
}

// Result is the outcome of an Acquire call.
type Result int

const (
	Acquired Result = iota
	Conflict
	// Stolen reports that this acquire succeeded by breaking a previous,
	// lease-expired owner's lock. The caller must treat that owner's staged
	// writes for this key as aborted.
	Stolen
)

// Acquire attempts to take key under the given intent on behalf of txid.
// A WRITE request conflicts with any held lock (read or write); a READ
// request conflicts only with a held WRITE lock. Re-acquiring a lock this
// same txid already holds always succeeds.
func (m *Manager) Acquire(txid, key string, intent Intent) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, held := m.locks[key]
	if held && existing.owner == txid {
		if intent == Write && existing.intent == Read {
			existing.intent = Write
		}
		return Acquired
	}

	if held {
		if time.Since(existing.acquiredAt) > m.lease {
			m.locks[key] = &record{owner: txid, intent: intent, acquiredAt: time.Now()}
			return Stolen
		}
		if intent == Write || existing.intent == Write {
			return Conflict
		}
		// both READ: shared, no record change needed beyond bookkeeping.
		return Acquired
	}

	m.locks[key] = &record{owner: txid, intent: intent, acquiredAt: time.Now()}
	return Acquired
}

// Release drops txid's lock on key, if txid is in fact the owner. Releasing
// a lock you don't hold is a no-op (it may already have been stolen).
func (m *Manager) Release(txid, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.locks[key]; ok && existing.owner == txid {
		delete(m.locks, key)
	}
}

// ReleaseAll drops txid's lock on each of keys, skipping keys it does not
// hold —
// used at commit/abort to unconditionally unwind a transaction's locks.
func (m *Manager) ReleaseAll(txid string, keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		if existing, ok := m.locks[key]; ok && existing.owner == txid {
			delete(m.locks, key)
		}
	}
}

// OwnerOf reports the current lock holder of key, if any, for diagnostics
// and tests.
func (m *Manager) OwnerOf(key string) (txid string, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.locks[key]
	if !ok {
		return "", false
	}
	return r.owner, true
}

// Reset clears every lock — called once at process start: every lease is
// implicitly expired after a restart (spec.md §6.2).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]*record)
}
