// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package retryafter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPreCheckProceedsWhenNoEntry(t *testing.T) {
	c := New()
	now := time.Now()
	r := c.PreCheck(7, now, now.Add(20*time.Second))
	assert.Equal(t, Proceed, r.Decision)
}

func TestPreCheckProceedsWhenLastStatusBelow400(t *testing.T) {
	c := New()
	now := time.Now()
	c.Set(7, Entry{LastStatusCode: 200, EarliestRetryTime: now.Add(time.Minute)})
	r := c.PreCheck(7, now, now.Add(20*time.Second))
	assert.Equal(t, Proceed, r.Decision)
}

func TestPreCheckProceedsAndClearsWhenWindowElapsed(t *testing.T) {
	c := New()
	now := time.Now()
	c.Set(7, Entry{LastStatusCode: 429, EarliestRetryTime: now.Add(-time.Second)})
	r := c.PreCheck(7, now, now.Add(20*time.Second))
	assert.Equal(t, Proceed, r.Decision)
	_, ok := c.Get(7)
	assert.False(t, ok)
}

func TestPreCheckFailsFastWhenAnotherCallPending(t *testing.T) {
	c := New()
	now := time.Now()
	c.Set(7, Entry{LastStatusCode: 429, EarliestRetryTime: now.Add(30 * time.Second), CallPending: true})
	r := c.PreCheck(7, now, now.Add(60*time.Second))
	assert.Equal(t, FailFast, r.Decision)
	assert.Equal(t, uint32(429), r.StatusCode)
}

func TestPreCheckFailsFastWhenDeadlineTooSoon(t *testing.T) {
	c := New()
	now := time.Now()
	c.Set(7, Entry{LastStatusCode: 503, EarliestRetryTime: now.Add(30 * time.Second)})
	r := c.PreCheck(7, now, now.Add(10*time.Second))
	assert.Equal(t, FailFast, r.Decision)
}

func TestPreCheckWaitsAndClaimsPendingSlot(t *testing.T) {
	c := New()
	now := time.Now()
	c.Set(7, Entry{LastStatusCode: 503, EarliestRetryTime: now.Add(5 * time.Second)})
	r := c.PreCheck(7, now, now.Add(60*time.Second))
	assert.Equal(t, Wait, r.Decision)
	assert.InDelta(t, 5*time.Second, r.Delay, float64(50*time.Millisecond))

	e, ok := c.Get(7)
	assert.True(t, ok)
	assert.True(t, e.CallPending)

	// A second concurrent caller must now fail fast.
	r2 := c.PreCheck(7, now, now.Add(60*time.Second))
	assert.Equal(t, FailFast, r2.Decision)
}

func TestResolveClearsPendingFlag(t *testing.T) {
	c := New()
	c.Update(7, time.Now().Add(time.Minute), 429)
	e, _ := c.Get(7)
	assert.True(t, e.CallPending)

	c.Resolve(7)
	e, _ = c.Get(7)
	assert.False(t, e.CallPending)
}
