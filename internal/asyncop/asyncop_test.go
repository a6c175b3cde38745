// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package asyncop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncOpCompletesExactlyOnce(t *testing.T) {
	completion := NewQueue(context.Background())
	defer completion.Terminate()

	var calls int
	var mu sync.Mutex
	done := make(chan struct{}, 1)

	op := New(completion, func(status Status, result any) {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	})

	op.Complete(StatusOK, "first")
	op.Complete(StatusAbort, "second") // must be ignored

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired")
	}

	status, result := op.GetResult()
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, "first", result)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestSubmitDelayedRunsAfterDelay(t *testing.T) {
	q := NewQueue(context.Background())
	defer q.Terminate()

	start := time.Now()
	done := make(chan time.Duration, 1)
	q.SubmitDelayed(50*time.Millisecond, func(context.Context) {
		done <- time.Since(start)
	})

	select {
	case elapsed := <-done:
		assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed work never ran")
	}
}

func TestTerminateSkipsFutureSubmits(t *testing.T) {
	q := NewQueue(context.Background())
	q.Terminate()

	ran := false
	q.Submit(func(context.Context) { ran = true })
	q.Wait()
	assert.False(t, ran)
}

func TestTerminateCancelsPendingDelayedWork(t *testing.T) {
	q := NewQueue(context.Background())
	ran := make(chan struct{}, 1)
	q.SubmitDelayed(200*time.Millisecond, func(context.Context) {
		ran <- struct{}{}
	})
	q.Terminate()
	q.Wait()

	select {
	case <-ran:
		t.Fatal("delayed work ran after Terminate")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestAsyncOpIDsAreUnique(t *testing.T) {
	completion := NewQueue(context.Background())
	defer completion.Terminate()
	op1 := New(completion, nil)
	op2 := New(completion, nil)
	require.NotEqual(t, op1.ID, op2.ID)
}
