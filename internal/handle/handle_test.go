// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableCreateGetClose(t *testing.T) {
	tbl := New[string]()

	h := tbl.Create("call-payload")
	v, ok := tbl.Get(h)
	require.True(t, ok)
	assert.Equal(t, "call-payload", v)
	assert.Equal(t, int32(1), tbl.RefCount(h))

	freed := tbl.Close(h)
	assert.True(t, freed)
	_, ok = tbl.Get(h)
	assert.False(t, ok)
}

func TestTableDuplicateKeepsEntryAliveUntilAllClosed(t *testing.T) {
	tbl := New[int]()
	h := tbl.Create(42)

	require.True(t, tbl.Duplicate(h))
	assert.Equal(t, int32(2), tbl.RefCount(h))

	assert.False(t, tbl.Close(h)) // still one ref left
	v, ok := tbl.Get(h)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	assert.True(t, tbl.Close(h)) // last ref
	_, ok = tbl.Get(h)
	assert.False(t, ok)
}

func TestTableDistinctKindsDoNotCollide(t *testing.T) {
	calls := New[string]()
	mocks := New[string]()

	hc := calls.Create("a call")
	hm := mocks.Create("a mock")

	// Handle[string] values from distinct tables are not comparable across
	// tables by construction: each table only recognizes its own ids.
	_, okInMocks := mocks.Get(Handle[string](hc))
	assert.False(t, okInMocks)
	_, okInCalls := calls.Get(Handle[string](hm))
	assert.False(t, okInCalls)
}

func TestCloseUnknownHandleIsNoop(t *testing.T) {
	tbl := New[int]()
	assert.False(t, tbl.Close(Handle[int](999)))
	assert.False(t, tbl.Duplicate(Handle[int](999)))
}

func TestErrInvalidHandleMessage(t *testing.T) {
	err := ErrInvalidHandle[int]{Handle: Handle[int](7)}
	assert.Contains(t, err.Error(), "7")
}
