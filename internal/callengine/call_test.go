// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package callengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallDefaults(t *testing.T) {
	c := New(1)
	assert.Equal(t, int64(1), c.ID())
	assert.Equal(t, 2, c.RetryDelayBaseSeconds)
	assert.Equal(t, 20, c.TimeoutWindowSeconds)
	assert.Equal(t, ErrSuccess, c.NetworkErrorCode)
	assert.False(t, c.PerformCalled())
}

func TestRequestMutatorsFailAfterPerformCalled(t *testing.T) {
	c := New(1)
	require.NoError(t, c.SetURL("GET", "https://example.test"))
	require.NoError(t, c.BeginPerform(time.Now()))

	assert.ErrorIs(t, c.SetURL("POST", "https://other"), ErrPerformAlreadyCalled)
	assert.ErrorIs(t, c.SetHeader("X-Foo", "bar"), ErrPerformAlreadyCalled)
	assert.ErrorIs(t, c.SetRequestBodyBytes([]byte("x")), ErrPerformAlreadyCalled)
}

func TestBeginPerformOnlyOnce(t *testing.T) {
	c := New(1)
	require.NoError(t, c.BeginPerform(time.Now()))
	assert.ErrorIs(t, c.BeginPerform(time.Now()), ErrPerformAlreadyCalled)
}

func TestRequestBodyMaterializesReader(t *testing.T) {
	c := New(1)
	require.NoError(t, c.SetRequestBodyBytes([]byte("payload")))
	body, err := c.RequestBody()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestResponseBodyWriteFunctionOverridesDefaultBuffer(t *testing.T) {
	c := New(1)
	var captured []byte
	c.SetResponseBodyWriteFunction(func(chunk []byte) error {
		captured = append(captured, chunk...)
		return nil
	})
	require.NoError(t, c.setResponse(200, nil, []byte("hello"), ErrSuccess, 0, ""))
	assert.Equal(t, "hello", string(captured))
	assert.Empty(t, c.ResponseBodyBytes())
}

func TestDeadlineIsPerformStartPlusTimeoutWindow(t *testing.T) {
	c := New(1)
	c.TimeoutWindowSeconds = 5
	start := time.Now()
	require.NoError(t, c.BeginPerform(start))
	assert.WithinDuration(t, start.Add(5*time.Second), c.Deadline(), time.Millisecond)
}

func TestResetResponseForAttemptIncrementsAndClears(t *testing.T) {
	c := New(1)
	require.NoError(t, c.setResponse(500, nil, []byte("err"), 7, 1, "boom"))
	c.resetResponseForAttempt()
	assert.Equal(t, 1, c.AttemptNumber())
	assert.Equal(t, uint32(0), c.StatusCode)
	assert.Equal(t, ErrSuccess, c.NetworkErrorCode)
	assert.Empty(t, c.ResponseBodyBytes())
}
