// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package retryafter implements the process-wide Retry-After cache of
// spec.md §3 "Retry-after cache entry" / §4.1 PreCheck. It remembers, per
// caller-chosen cache id, the earliest time a retry should be attempted
// again and whether a call is already "pending" against that id so
// concurrent callers can fail fast instead of hammering a cooling-down
// endpoint.
package retryafter

import (
	"sync"
	"time"
)

// Entry is one cached failure/cooldown record.
type Entry struct {
	EarliestRetryTime time.Time
	LastStatusCode    uint32
	CallPending       bool
}

// Cache is a mutex-protected map from cache id to Entry.
type Cache struct {
	mu      sync.Mutex
	entries map[uint32]Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[uint32]Entry)}
}

// Get returns a copy of the entry for id, and whether it exists.
func (c *Cache) Get(id uint32) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// Set overwrites (or inserts) the entry for id.
func (c *Cache) Set(id uint32, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = e
}

// Clear removes the entry for id entirely.
func (c *Cache) Clear(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Decision is the outcome of consulting the cache from PreCheck.
type Decision int

const (
	// Proceed means perform the attempt now (delay is zero or already
	// elapsed).
	Proceed Decision = iota
	// Wait means perform the attempt after Delay, having claimed the
	// pending slot.
	Wait
	// FailFast means short-circuit with StatusCode without contacting the
	// transport at all — either the window hasn't elapsed and someone else
	// already claimed the pending slot, or the deadline can't accommodate
	// the wait.
	FailFast
)

// PreCheckResult is what the call engine needs from Cache.PreCheck to
// decide its next step.
type PreCheckResult struct {
	Decision   Decision
	Delay      time.Duration
	StatusCode uint32
}

// PreCheck implements spec.md §4.1's PreCheck policy for a non-zero cache
// id. now is the current time, deadline is performStartTime+timeoutWindow.
func (c *Cache) PreCheck(id uint32, now, deadline time.Time) PreCheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || e.LastStatusCode < 400 {
		return PreCheckResult{Decision: Proceed}
	}
	if !now.Before(e.EarliestRetryTime) {
		delete(c.entries, id)
		return PreCheckResult{Decision: Proceed}
	}

	remaining := e.EarliestRetryTime.Sub(now)
	if e.CallPending || e.EarliestRetryTime.After(deadline) {
		return PreCheckResult{Decision: FailFast, StatusCode: e.LastStatusCode}
	}

	e.CallPending = true
	c.entries[id] = e
	return PreCheckResult{Decision: Wait, Delay: remaining}
}

// Update records a server-instructed cooldown for id, per spec.md §4.3 step
// 6: called when a retry decision is made with a Retry-After header and
// statusCode > 400.
func (c *Cache) Update(id uint32, earliestRetryTime time.Time, statusCode uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = Entry{
		EarliestRetryTime: earliestRetryTime,
		LastStatusCode:    statusCode,
		CallPending:       true,
	}
}

// Resolve clears the pending flag for id once the attempt that claimed it
// (via Wait) has completed, regardless of outcome. This implements the
// spec.md §9 open-question recommendation: callPending must not leak
// forever once its attempt finishes.
func (c *Cache) Resolve(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	e.CallPending = false
	c.entries[id] = e
}
