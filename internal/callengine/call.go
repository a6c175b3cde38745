// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package callengine implements spec.md §3 "Call" / §4.1 "Call engine (the
// core state machine)" / §4.3 "Retry policy". Call is the refcounted,
// single-in-flight request/response object; Engine drives one logical HTTP
// call through PreCheck -> Compress -> SubmitAttempt -> ClassifyOutcome ->
// Complete.
package callengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/develeap/rtnet/internal/compress"
	"github.com/develeap/rtnet/internal/headers"
)

// ErrSuccess is the sentinel "no error" value for NetworkErrorCode, per
// spec.md §3 ("networkErrorCode (success sentinel until set)").
const ErrSuccess int32 = 0

// ReadFunc mirrors spec.md's request-body reader contract:
// {fn, size, ctx}. A fixed byte buffer is represented by NewByteReader,
// which is exactly spec.md's "a fixed byte buffer is represented as a
// reader that serves that buffer".
type ReadFunc func() ([]byte, error)

// WriteFunc is the response-body write hook (spec.md §3
// responseBodyWriter). The default hook appends to an internal buffer.
type WriteFunc func(chunk []byte) error

// NewByteReader wraps a fixed buffer as a ReadFunc.
func NewByteReader(buf []byte) ReadFunc {
	return func() ([]byte, error) { return buf, nil }
}

// Call is the request/response object of spec.md §3. It is not safe for
// concurrent request mutation once PerformCalled; the engine is the sole
// mutator of response fields during a perform operation, matching §5's
// "written only by the engine while performCalled = true".
type Call struct {
	mu sync.Mutex

	id int64

	// Request
	Method            string
	URL               string
	RequestHeaders    headers.Map
	requestBodyReader ReadFunc

	RetryAllowed          bool
	RetryDelayBaseSeconds int
	TimeoutSeconds        int
	TimeoutWindowSeconds  int
	RetryAfterCacheID     uint32
	CompressionLevel      compress.Level
	CompressedResponseExpected bool
	SSLValidation         bool
	TraceCall             bool

	// Response
	StatusCode              uint32
	NetworkErrorCode        int32
	PlatformNetworkErrorCode   int32
	PlatformNetworkErrorMessage string
	ResponseHeaders         headers.Map
	responseBody            []byte
	responseWriter          WriteFunc

	// Engine state
	performCalled    bool
	performStartTime time.Time
	attemptNumber    int
	Context          any
}

// New creates a Call with spec.md's documented defaults.
func New(id int64) *Call {
	c := &Call{
		id:                    id,
		RetryDelayBaseSeconds: 2,
		TimeoutWindowSeconds:  20,
		NetworkErrorCode:      ErrSuccess,
	}
	c.requestBodyReader = NewByteReader(nil)
	return c
}

// ID returns the call's process-wide monotonic identity.
func (c *Call) ID() int64 { return c.id }

// ErrPerformAlreadyCalled is returned by request mutators once the call has
// begun performing, per spec.md's invariant: "performCalled is monotonic
// false->true; request mutators return InvalidState after it flips."
var ErrPerformAlreadyCalled = fmt.Errorf("call: request mutated after perform already called")

// checkMutable returns ErrPerformAlreadyCalled if performCalled is set.
func (c *Call) checkMutable() error {
	if c.performCalled {
		return ErrPerformAlreadyCalled
	}
	return nil
}

// SetURL sets method/url. Fails once PerformCalled.
func (c *Call) SetURL(method, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.Method, c.URL = method, url
	return nil
}

// SetRequestBodyBytes sets a fixed-buffer request body.
func (c *Call) SetRequestBodyBytes(body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.requestBodyReader = NewByteReader(body)
	return nil
}

// SetRequestBodyReadFunction installs a streaming body reader.
func (c *Call) SetRequestBodyReadFunction(fn ReadFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.requestBodyReader = fn
	return nil
}

// RequestBody materializes the full request body by invoking the reader.
func (c *Call) RequestBody() ([]byte, error) {
	c.mu.Lock()
	reader := c.requestBodyReader
	c.mu.Unlock()
	if reader == nil {
		return nil, nil
	}
	return reader()
}

// SetHeader sets a request header, concatenating on duplicate names.
func (c *Call) SetHeader(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMutable(); err != nil {
		return err
	}
	c.RequestHeaders.Set(name, value)
	return nil
}

// SetResponseBodyWriteFunction redirects response bytes to a client sink,
// per spec.md §6.1 CallResponseSetResponseBodyWriteFunction.
func (c *Call) SetResponseBodyWriteFunction(fn WriteFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseWriter = fn
}

// BeginPerform flips performCalled and records the start time. Returns
// ErrPerformAlreadyCalled if already in flight. Matches spec.md §4.1
// "Begin": "sets performCalled, records performStartTime".
func (c *Call) BeginPerform(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.performCalled {
		return ErrPerformAlreadyCalled
	}
	c.performCalled = true
	c.performStartTime = now
	return nil
}

// PerformCalled reports whether BeginPerform has run.
func (c *Call) PerformCalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.performCalled
}

// PerformStartTime returns when BeginPerform ran.
func (c *Call) PerformStartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.performStartTime
}

// Deadline returns performStartTime + timeoutWindowSeconds.
func (c *Call) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.performStartTime.Add(time.Duration(c.TimeoutWindowSeconds) * time.Second)
}

// AttemptNumber returns the number of physical attempts made so far.
func (c *Call) AttemptNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptNumber
}

// resetResponseForAttempt clears response fields and bumps attemptNumber,
// per spec.md §4.1 SubmitAttempt: "increments attemptNumber, resets all
// response fields".
func (c *Call) resetResponseForAttempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attemptNumber++
	c.StatusCode = 0
	c.NetworkErrorCode = ErrSuccess
	c.PlatformNetworkErrorCode = 0
	c.PlatformNetworkErrorMessage = ""
	c.ResponseHeaders = headers.Map{}
	c.responseBody = nil
}

// setResponse populates response fields after a transport attempt (or a
// mock match), routing body bytes through the response writer hook if one
// is set, defaulting to appending into responseBody.
func (c *Call) setResponse(statusCode uint32, h *headers.Map, body []byte, networkErr int32, platformCode int32, platformMsg string) error {
	c.mu.Lock()
	c.StatusCode = statusCode
	if h != nil {
		c.ResponseHeaders = *h
	}
	c.NetworkErrorCode = networkErr
	c.PlatformNetworkErrorCode = platformCode
	c.PlatformNetworkErrorMessage = platformMsg
	writer := c.responseWriter
	c.mu.Unlock()

	if writer != nil {
		return writer(body)
	}
	c.mu.Lock()
	c.responseBody = append(c.responseBody, body...)
	c.mu.Unlock()
	return nil
}

// ResponseBodyBytes returns the accumulated default-buffer response body.
// Empty if a custom response writer was installed.
func (c *Call) ResponseBodyBytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.responseBody))
	copy(out, c.responseBody)
	return out
}

// replaceResponseBody overwrites the default buffer, used by Decompress.
func (c *Call) replaceResponseBody(body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseBody = body
}

// replaceRequestForCompression swaps in the compressed body and the
// Content-Encoding header, per spec.md §4.1 CompressBody.
func (c *Call) replaceRequestForCompression(compressed []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestBodyReader = NewByteReader(compressed)
	c.RequestHeaders.Set("Content-Encoding", "gzip")
}
