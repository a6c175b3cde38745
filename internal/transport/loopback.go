// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package transport

import (
	"context"
	"sync"
)

// Loopback is an in-process Transport used by engine and wsconn unit tests
// that need fine control over attempt-by-attempt responses without a real
// socket. Each call to Perform consumes the next queued Result (or returns
// a zero Result and a nil error once the queue is drained), the same
// "canned sequence" idea httptest
// handlers use, just without the HTTP plumbing.
type Loopback struct {
	mu        sync.Mutex
	results   []Result
	errs      []error
	performed []Request
}

// NewLoopback builds an empty Loopback.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// QueueResult appends a canned Result (and optional error) returned on the
// next Perform call.
func (l *Loopback) QueueResult(r Result, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
	l.errs = append(l.errs, err)
}

// Attempts returns every Request handed to Perform so far, in order.
func (l *Loopback) Attempts() []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Request, len(l.performed))
	copy(out, l.performed)
	return out
}

func (l *Loopback) Perform(ctx context.Context, req Request) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.performed = append(l.performed, req)
	if len(l.results) == 0 {
		return Result{}, nil
	}
	r, err := l.results[0], l.errs[0]
	l.results = l.results[1:]
	l.errs = l.errs[1:]
	return r, err
}

func (l *Loopback) WebSocketConnect(ctx context.Context, req Request, subProtocol string) (WSConn, Result, error) {
	return nil, Result{StatusCode: 101}, nil
}

func (l *Loopback) SetGlobalProxy(uri string) error { return nil }
