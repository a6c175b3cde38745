// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v3/recorder"
)

type staticHeaders map[string]string

func (h staticHeaders) Range(fn func(name, value string) bool) {
	for k, v := range h {
		if !fn(k, v) {
			return
		}
	}
}

func TestHTTPTransportPerformAgainstLocalServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Served-By", "loopback")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	// Record the interaction through go-vcr so the reference transport's
	// test coverage exercises the same recorded-interaction tooling the
	// module's contract tests use, grounded on
	// internal/provider/testutil/vcr.go's NewVCRRecorder.
	cassettePath := filepath.Join(t.TempDir(), "http_transport_perform")
	rec, err := recorder.NewWithOptions(&recorder.Options{
		CassetteName:       cassettePath,
		Mode:               recorder.ModeRecordOnly,
		SkipRequestLatency: true,
	})
	require.NoError(t, err)
	defer rec.Stop() //nolint:errcheck

	tr := NewHTTPTransport(&http.Client{Transport: rec})

	result, err := tr.Perform(context.Background(), Request{
		Method:  "GET",
		URL:     srv.URL + "/test",
		Headers: staticHeaders{},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, "hello", string(result.Body))
	assert.Equal(t, int32(0), result.NetworkErrorCode)
}

func TestHTTPTransportPerformNetworkError(t *testing.T) {
	tr := NewHTTPTransport(nil)
	result, err := tr.Perform(context.Background(), Request{
		Method:  "GET",
		URL:     "http://127.0.0.1:1", // nothing listens here
		Headers: staticHeaders{},
	})
	require.NoError(t, err) // transport-level failures are not Go errors here
	assert.NotEqual(t, int32(0), result.NetworkErrorCode)
}

func TestLoopbackQueuesResultsInOrder(t *testing.T) {
	lb := NewLoopback()
	lb.QueueResult(Result{StatusCode: 503}, nil)
	lb.QueueResult(Result{StatusCode: 200}, nil)

	r1, _ := lb.Perform(context.Background(), Request{Method: "GET", URL: "https://x", Headers: staticHeaders{}})
	r2, _ := lb.Perform(context.Background(), Request{Method: "GET", URL: "https://x", Headers: staticHeaders{}})

	assert.Equal(t, 503, r1.StatusCode)
	assert.Equal(t, 200, r2.StatusCode)
	assert.Len(t, lb.Attempts(), 2)
}
