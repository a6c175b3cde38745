// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package mockreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryMatchIsLIFO(t *testing.T) {
	r := NewRegistry()
	a := &Mock{URLPrefix: "https://example/test", Response: Response{StatusCode: 200}}
	b := &Mock{URLPrefix: "https://example/test", Response: Response{StatusCode: 201}}

	r.Add(a)
	r.Add(b)

	m, ok := r.TryMatch("GET", "https://example/test", nil)
	require.True(t, ok)
	assert.Equal(t, b, m)

	r.Remove(b)
	m, ok = r.TryMatch("GET", "https://example/test", nil)
	require.True(t, ok)
	assert.Equal(t, a, m)
}

func TestTryMatchEmptyFieldsMeanMatchAny(t *testing.T) {
	r := NewRegistry()
	m := &Mock{Response: Response{StatusCode: 204}}
	r.Add(m)

	matched, ok := r.TryMatch("DELETE", "https://anything", []byte("body"))
	require.True(t, ok)
	assert.Equal(t, m, matched)
}

func TestTryMatchBodyEqualityRequired(t *testing.T) {
	r := NewRegistry()
	m := &Mock{Body: []byte("expected")}
	r.Add(m)

	_, ok := r.TryMatch("POST", "https://x", []byte("other"))
	assert.False(t, ok)

	_, ok = r.TryMatch("POST", "https://x", []byte("expected"))
	assert.True(t, ok)
}

func TestOnMatchedCallbackFires(t *testing.T) {
	r := NewRegistry()
	var gotMethod, gotURL string
	var gotBody []byte
	m := &Mock{
		OnMatched: func(method, url string, body []byte) {
			gotMethod, gotURL, gotBody = method, url, body
		},
	}
	r.Add(m)

	_, ok := r.TryMatch("PUT", "https://host/path", []byte("payload"))
	require.True(t, ok)
	assert.Equal(t, "PUT", gotMethod)
	assert.Equal(t, "https://host/path", gotURL)
	assert.Equal(t, []byte("payload"), gotBody)
}

func TestClearRemovesAllMocks(t *testing.T) {
	r := NewRegistry()
	r.Add(&Mock{})
	r.Add(&Mock{})
	require.Equal(t, 2, r.Len())

	r.Clear()
	assert.Equal(t, 0, r.Len())
	_, ok := r.TryMatch("GET", "https://x", nil)
	assert.False(t, ok)
}

func TestNoMatchReturnsFalse(t *testing.T) {
	r := NewRegistry()
	r.Add(&Mock{URLPrefix: "https://only-this"})
	_, ok := r.TryMatch("GET", "https://other", nil)
	assert.False(t, ok)
}
