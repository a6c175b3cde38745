// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetConcatenatesDuplicateNames(t *testing.T) {
	var m Map
	m.Set("X-Trace", "v1")
	m.Set("X-Trace", "v2")

	v, ok := m.Get("X-Trace")
	require.True(t, ok)
	assert.Equal(t, "v1, v2", v)
	assert.Equal(t, 1, m.Len())
}

func TestGetIsCaseInsensitive(t *testing.T) {
	var m Map
	m.Set("Content-Type", "application/json")

	v, ok := m.Get("CONTENT-TYPE")
	require.True(t, ok)
	assert.Equal(t, "application/json", v)
}

func TestIterationOrderIsInsertionOrder(t *testing.T) {
	var m Map
	m.Set("Z-First", "1")
	m.Set("A-Second", "2")
	m.Set("M-Third", "3")

	var names []string
	m.Range(func(name, value string) bool {
		names = append(names, name)
		return true
	})
	assert.Equal(t, []string{"Z-First", "A-Second", "M-Third"}, names)
}

func TestCloneIsIndependent(t *testing.T) {
	var m Map
	m.Set("A", "1")
	c := m.Clone()
	c.Set("A", "2")

	v, _ := m.Get("A")
	assert.Equal(t, "1", v)
	cv, _ := c.Get("A")
	assert.Equal(t, "1, 2", cv)
}

func TestDeleteRemovesAndReindexes(t *testing.T) {
	var m Map
	m.Set("A", "1")
	m.Set("B", "2")
	m.Set("C", "3")

	m.Delete("B")
	_, ok := m.Get("B")
	assert.False(t, ok)

	name, value, ok := m.At(1)
	require.True(t, ok)
	assert.Equal(t, "C", name)
	assert.Equal(t, "3", value)
}
