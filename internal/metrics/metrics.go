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

// Package metrics exposes a small set of Prometheus gauges/counters/
// histograms over the coordinator and lock manager's internal behavior.
// This is process introspection only — not streams/CDC, which stays out of
// scope.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransactionsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynokv_transactions_committed_total",
		Help: "Total number of transactions that reached COMMITTED.",
	})

	TransactionsAborted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dynokv_transactions_aborted_total",
		Help: "Total number of transactions that reached ABORTED, by reason.",
	}, []string{"reason"})

	LockConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynokv_lock_conflicts_total",
		Help: "Total number of lock acquisition attempts that found the row already held.",
	})

	LockWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dynokv_lock_wait_duration_seconds",
		Help:    "Time spent waiting to acquire a row lock.",
		Buckets: prometheus.DefBuckets,
	})

	ShardOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dynokv_shard_op_duration_seconds",
		Help:    "Latency of a single-shard storage operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	IdempotencyHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dynokv_idempotency_cache_hits_total",
		Help: "Total number of TransactWriteItems calls served from the idempotency cache.",
	})

	ItemsStored = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dynokv_items_stored",
		Help: "Current number of committed items per shard.",
	}, []string{"shard"})
)

func init() {
	prometheus.MustRegister(
		TransactionsCommitted,
		TransactionsAborted,
		LockConflicts,
		LockWaitDuration,
		ShardOpDuration,
		IdempotencyHits,
		ItemsStored,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation for ShardOpDuration-style histograms.
type Timer struct{ start time.Time }

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveSeconds(h prometheus.Observer) {
	h.Observe(time.Since(t.start).Seconds())
}
