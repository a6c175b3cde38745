// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package headers implements the case-insensitive, insertion-ordered header
// multimap described in spec.md §3 "Header map" / §4.7. Setting a name that
// already exists concatenates with ", " rather than overwriting, matching
// HTTP's multi-value header semantics.
package headers

import "strings"

// pair is one stored (original-case name, value) entry.
type pair struct {
	name  string
	value string
}

// Map is an ordered, case-insensitive header store. Zero value is usable.
type Map struct {
	order []pair
	index map[string]int // lower(name) -> index into order
}

func (m *Map) ensure() {
	if m.index == nil {
		m.index = make(map[string]int)
	}
}

// Set inserts name/value, or appends ", "+value to an existing entry with
// the same name (case-insensitive).
func (m *Map) Set(name, value string) {
	m.ensure()
	key := strings.ToLower(name)
	if i, ok := m.index[key]; ok {
		m.order[i].value = m.order[i].value + ", " + value
		return
	}
	m.index[key] = len(m.order)
	m.order = append(m.order, pair{name: name, value: value})
}

// Get returns the stored value for name, case-insensitively.
func (m *Map) Get(name string) (string, bool) {
	if m.index == nil {
		return "", false
	}
	i, ok := m.index[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return m.order[i].value, true
}

// Len returns the number of distinct header names.
func (m *Map) Len() int {
	return len(m.order)
}

// At returns the name/value pair at the given insertion-order index.
func (m *Map) At(i int) (name, value string, ok bool) {
	if i < 0 || i >= len(m.order) {
		return "", "", false
	}
	return m.order[i].name, m.order[i].value, true
}

// Range calls fn for every header in insertion order. Stops early if fn
// returns false.
func (m *Map) Range(fn func(name, value string) bool) {
	for _, p := range m.order {
		if !fn(p.name, p.value) {
			return
		}
	}
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	c := &Map{}
	m.Range(func(name, value string) bool {
		c.Set(name, value)
		return true
	})
	return c
}

// Delete removes name (case-insensitively) if present.
func (m *Map) Delete(name string) {
	if m.index == nil {
		return
	}
	key := strings.ToLower(name)
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.order = append(m.order[:i], m.order[i+1:]...)
	delete(m.index, key)
	for k, v := range m.index {
		if v > i {
			m.index[k] = v - 1
		}
	}
}
