// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package mockreg implements the LIFO mock matcher of spec.md §3 "Mock
// call" / §4.2. It is process-wide global state guarded by a single plain
// mutex; matching releases it before invoking the mock's OnMatched
// callback, so that callback may itself register or remove mocks.
package mockreg

import (
	"bytes"
	"strings"
	"sync"

	"github.com/develeap/rtnet/internal/headers"
)

// Response is what a matched mock copies onto the intercepted call.
type Response struct {
	StatusCode       uint32
	Headers          *headers.Map
	Body             []byte
	NetworkErrorCode int32
}

// Mock is one registered interception rule plus its canned response.
type Mock struct {
	Method    string // empty = match any
	URLPrefix string // empty = match any
	Body      []byte // empty = match any
	Response  Response
	OnMatched func(method, url string, body []byte)
}

// matches reports whether m intercepts a call with the given method/url/body.
func (m *Mock) matches(method, url string, body []byte) bool {
	if m.Method != "" && !strings.EqualFold(m.Method, method) {
		return false
	}
	if m.URLPrefix != "" && !strings.HasPrefix(url, m.URLPrefix) {
		return false
	}
	if len(m.Body) != 0 && !bytes.Equal(m.Body, body) {
		return false
	}
	return true
}

// Registry is the process-wide mock list. Iteration order is insertion
// order; selection is LIFO (most recently added match wins), per spec.md
// §4.2 and testable property 7.
type Registry struct {
	mu    sync.Mutex
	mocks []*Mock
}

// NewRegistry creates an empty registry. The default global instance lives
// in package rtnet; tests can construct an isolated Registry directly.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers m, most-recent-first for matching purposes.
func (r *Registry) Add(m *Mock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mocks = append(r.mocks, m)
}

// Remove deregisters m if present.
func (r *Registry) Remove(m *Mock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.mocks {
		if existing == m {
			r.mocks = append(r.mocks[:i], r.mocks[i+1:]...)
			return
		}
	}
}

// Clear removes every registered mock.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mocks = nil
}

// Len reports how many mocks are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mocks)
}

// TryMatch walks mocks from most-recently-added to oldest and returns the
// first match, invoking its OnMatched callback outside the registry lock to
// allow re-entrant Add/Remove calls from within the callback.
func (r *Registry) TryMatch(method, url string, body []byte) (*Mock, bool) {
	r.mu.Lock()
	var matched *Mock
	for i := len(r.mocks) - 1; i >= 0; i-- {
		if r.mocks[i].matches(method, url, body) {
			matched = r.mocks[i]
			break
		}
	}
	r.mu.Unlock()

	if matched == nil {
		return nil, false
	}
	if matched.OnMatched != nil {
		matched.OnMatched(method, url, body)
	}
	return matched, true
}
