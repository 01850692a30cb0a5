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

// Package idempotency caches the terminal outcome of a TransactWriteItems
// call keyed by its client request token, so a retried call with the same
// token never re-executes. Grounded on the teacher's cacheMap
// (storage/cachemap.go): one map of entries, each holding its outcome and
// expiry time, looked up under a read lock, generalized from
// memory-budget LRU eviction to TTL expiry plus a periodic reaper —
// matching this cache's "singleton, process-wide, started at process init"
// shape (storage/cache.go's CacheManager).
package idempotency

import (
	"sync"
	"time"
)

// Outcome is the cached terminal result of a transaction: either it
// committed (Err is nil) or it was cancelled/failed (Err holds the typed
// error, e.g. *apierr.Error wrapping TransactionCanceledException). Both
// outcomes are cached, per spec.md §4.6's recommended policy.
type Outcome struct {
	Err error
	Val any
}

type entry struct {
	outcome   Outcome
	expiresAt time.Time
}

// Cache is a TTL map from client_request_token to Outcome.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration

	stop chan struct{}
	once sync.Once
}

// New creates a cache with the given TTL and starts its background reaper,
// sweeping expired entries once a minute.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.reapLoop()
	return c
}

// Get returns the cached outcome for token, if present and not expired.
func (c *Cache) Get(token string) (Outcome, bool) {
	if token == "" {
		return Outcome{}, false
	}
	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return Outcome{}, false
	}
	return e.outcome, true
}

// Put stores the terminal outcome for token, resetting its TTL.
func (c *Cache) Put(token string, outcome Outcome) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = &entry{outcome: outcome, expiresAt: time.Now().Add(c.ttl)}
}

func (c *Cache) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for token, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, token)
		}
	}
}

// Close stops the background reaper. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Len reports the current entry count, including not-yet-reaped expired
// entries — for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
