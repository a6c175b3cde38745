// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package rtnet

import (
	"context"

	"github.com/develeap/rtnet/internal/asyncop"
	"github.com/develeap/rtnet/internal/callengine"
	"github.com/develeap/rtnet/internal/compress"
	"github.com/develeap/rtnet/internal/errcat"
)

// CallCreate allocates a new Call with a single reference, per spec.md §6.1
// "CallCreate() -> CallHandle".
func CallCreate() (CallHandle, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	g.nextCallID++
	id := g.nextCallID
	g.mu.Unlock()
	return g.calls.Create(callengine.New(id)), nil
}

// CallDuplicateHandle increments h's refcount, returning the same handle
// value (handles are plain ids, so duplication never allocates a new one).
func CallDuplicateHandle(h CallHandle) (CallHandle, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	if !g.calls.Duplicate(h) {
		return 0, errcat.New(errcat.InvalidArg, "invalid call handle", errcat.WithOp("CallDuplicateHandle"))
	}
	return h, nil
}

// CallCloseHandle decrements h's refcount, freeing the Call at zero.
func CallCloseHandle(h CallHandle) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.calls.Close(h)
	return nil
}

func lookupCall(g *global, h CallHandle) (*callengine.Call, error) {
	c, ok := g.calls.Get(h)
	if !ok {
		return nil, errcat.New(errcat.InvalidArg, "invalid call handle", errcat.WithOp("Call"))
	}
	return c, nil
}

// CallRequestSetUrl sets the request method and URL.
func CallRequestSetUrl(h CallHandle, method, url string) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	return c.SetURL(method, url)
}

// CallRequestSetRequestBodyBytes sets a fixed-buffer request body.
func CallRequestSetRequestBodyBytes(h CallHandle, body []byte) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	return c.SetRequestBodyBytes(body)
}

// CallRequestSetRequestBodyString sets a fixed string request body, per
// spec.md's CallRequestSetRequestBodyString.
func CallRequestSetRequestBodyString(h CallHandle, body string) error {
	return CallRequestSetRequestBodyBytes(h, []byte(body))
}

// CallRequestSetRequestBodyReadFunction installs a streaming request body
// reader, per spec.md's CallRequestSetRequestBodyReadFunction(fn, size, ctx).
func CallRequestSetRequestBodyReadFunction(h CallHandle, fn callengine.ReadFunc) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	return c.SetRequestBodyReadFunction(fn)
}

// CallRequestSetHeader sets a request header.
func CallRequestSetHeader(h CallHandle, name, value string) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	return c.SetHeader(name, value)
}

// CallRequestSetRetryAllowed toggles whether the engine may retry this
// call's failed attempts.
func CallRequestSetRetryAllowed(h CallHandle, allowed bool) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	if c.PerformCalled() {
		return callengine.ErrPerformAlreadyCalled
	}
	c.RetryAllowed = allowed
	return nil
}

// CallRequestSetRetryCacheId sets the cache id used to consult the
// process-wide retry-after cache. 0 means "no cache participation".
func CallRequestSetRetryCacheId(h CallHandle, id uint32) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	if c.PerformCalled() {
		return callengine.ErrPerformAlreadyCalled
	}
	c.RetryAfterCacheID = id
	return nil
}

// CallRequestSetRetryDelay sets the base seconds used by the exponential
// backoff schedule.
func CallRequestSetRetryDelay(h CallHandle, seconds int) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	if c.PerformCalled() {
		return callengine.ErrPerformAlreadyCalled
	}
	c.RetryDelayBaseSeconds = seconds
	return nil
}

// CallRequestSetTimeout sets the single-attempt timeout in seconds.
func CallRequestSetTimeout(h CallHandle, seconds int) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	if c.PerformCalled() {
		return callengine.ErrPerformAlreadyCalled
	}
	c.TimeoutSeconds = seconds
	return nil
}

// CallRequestSetTimeoutWindow sets the overall deadline window in seconds,
// measured from BeginPerform.
func CallRequestSetTimeoutWindow(h CallHandle, seconds int) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	if c.PerformCalled() {
		return callengine.ErrPerformAlreadyCalled
	}
	c.TimeoutWindowSeconds = seconds
	return nil
}

// CallRequestSetSslValidation toggles certificate validation for transports
// that honor it.
func CallRequestSetSslValidation(h CallHandle, enabled bool) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	if c.PerformCalled() {
		return callengine.ErrPerformAlreadyCalled
	}
	c.SSLValidation = enabled
	return nil
}

// CallRequestSetEnableGzipCompression sets the request compression level
// and whether a compressed response is expected back.
func CallRequestSetEnableGzipCompression(h CallHandle, level compress.Level, expectCompressedResponse bool) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	if c.PerformCalled() {
		return callengine.ErrPerformAlreadyCalled
	}
	c.CompressionLevel = level
	c.CompressedResponseExpected = expectCompressedResponse
	return nil
}

// CallRequestGetUrl returns the method and URL previously set on h.
func CallRequestGetUrl(h CallHandle) (method, url string, err error) {
	g, err := current()
	if err != nil {
		return "", "", err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return "", "", err
	}
	return c.Method, c.URL, nil
}

// CallRequestGetHeader returns a request header by name, the
// CallRequestSetHeader symmetric getter of spec.md §6.1.
func CallRequestGetHeader(h CallHandle, name string) (string, bool, error) {
	g, err := current()
	if err != nil {
		return "", false, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return "", false, err
	}
	v, ok := c.RequestHeaders.Get(name)
	return v, ok, nil
}

// CallRequestGetRetryAllowed returns whether the engine may retry h.
func CallRequestGetRetryAllowed(h CallHandle) (bool, error) {
	g, err := current()
	if err != nil {
		return false, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return false, err
	}
	return c.RetryAllowed, nil
}

// CallRequestGetRetryCacheId returns h's retry-after cache id, 0 if unset.
func CallRequestGetRetryCacheId(h CallHandle) (uint32, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return c.RetryAfterCacheID, nil
}

// CallRequestGetRetryDelay returns h's exponential backoff base seconds.
func CallRequestGetRetryDelay(h CallHandle) (int, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return c.RetryDelayBaseSeconds, nil
}

// CallRequestGetTimeout returns h's single-attempt timeout in seconds.
func CallRequestGetTimeout(h CallHandle) (int, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return c.TimeoutSeconds, nil
}

// CallRequestGetTimeoutWindow returns h's overall deadline window in
// seconds.
func CallRequestGetTimeoutWindow(h CallHandle) (int, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return c.TimeoutWindowSeconds, nil
}

// CallRequestGetSslValidation returns whether h validates certificates.
func CallRequestGetSslValidation(h CallHandle) (bool, error) {
	g, err := current()
	if err != nil {
		return false, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return false, err
	}
	return c.SSLValidation, nil
}

// CallRequestGetEnableGzipCompression returns h's request compression level
// and whether a compressed response is expected.
func CallRequestGetEnableGzipCompression(h CallHandle) (compress.Level, bool, error) {
	g, err := current()
	if err != nil {
		return compress.None, false, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return compress.None, false, err
	}
	return c.CompressionLevel, c.CompressedResponseExpected, nil
}

// CallResponseSetResponseBodyWriteFunction redirects response bytes to a
// client-provided sink, per spec.md's streaming response hook.
func CallResponseSetResponseBodyWriteFunction(h CallHandle, fn callengine.WriteFunc) error {
	g, err := current()
	if err != nil {
		return err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return err
	}
	c.SetResponseBodyWriteFunction(fn)
	return nil
}

// CallResponseGetStatusCode returns the call's last-received status code, 0
// if no response has arrived yet.
func CallResponseGetStatusCode(h CallHandle) (uint32, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return c.StatusCode, nil
}

// CallResponseGetNetworkErrorCode returns the last transport-level error
// code, 0 on success.
func CallResponseGetNetworkErrorCode(h CallHandle) (int32, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return c.NetworkErrorCode, nil
}

// CallResponseGetPlatformNetworkErrorMessage returns the sanitized,
// transport-native diagnostic string for the last attempt.
func CallResponseGetPlatformNetworkErrorMessage(h CallHandle) (string, error) {
	g, err := current()
	if err != nil {
		return "", err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return "", err
	}
	return errcat.Sanitize(c.PlatformNetworkErrorMessage), nil
}

// CallResponseGetResponseBodyBytes returns the accumulated response body.
func CallResponseGetResponseBodyBytes(h CallHandle) ([]byte, error) {
	g, err := current()
	if err != nil {
		return nil, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return nil, err
	}
	return c.ResponseBodyBytes(), nil
}

// CallResponseGetResponseBodyBytesSize returns the length of the
// accumulated response body, per spec.md §6.1. It takes the length of a
// copy of the body, so the cost grows with the body size.
func CallResponseGetResponseBodyBytesSize(h CallHandle) (int, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return len(c.ResponseBodyBytes()), nil
}

// CallResponseGetResponseString returns the accumulated response body
// decoded as UTF-8 text, per spec.md §6.3's "all public strings are UTF-8".
func CallResponseGetResponseString(h CallHandle) (string, error) {
	body, err := CallResponseGetResponseBodyBytes(h)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// CallResponseGetHeader returns a response header by name.
func CallResponseGetHeader(h CallHandle, name string) (string, bool, error) {
	g, err := current()
	if err != nil {
		return "", false, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return "", false, err
	}
	v, ok := c.ResponseHeaders.Get(name)
	return v, ok, nil
}

// CallResponseGetNumHeaders returns the number of distinct response
// headers.
func CallResponseGetNumHeaders(h CallHandle) (int, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return 0, err
	}
	return c.ResponseHeaders.Len(), nil
}

// CallResponseGetHeaderAtIndex returns the name/value pair at a given
// insertion-order index, for iterating all response headers.
func CallResponseGetHeaderAtIndex(h CallHandle, index int) (name, value string, ok bool, err error) {
	g, err := current()
	if err != nil {
		return "", "", false, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return "", "", false, err
	}
	name, value, ok = c.ResponseHeaders.At(index)
	return name, value, ok, nil
}

// HttpCallPerformAsync schedules h's perform loop on the engine's work
// queue and completes the returned AsyncOp once the call has a final
// response (or an engine-level error), per spec.md §6.1.
func HttpCallPerformAsync(ctx context.Context, h CallHandle, completion *asyncop.Queue, callback func(asyncop.Status, any)) (*asyncop.AsyncOp, error) {
	g, err := current()
	if err != nil {
		return nil, err
	}
	c, err := lookupCall(g, h)
	if err != nil {
		return nil, err
	}

	op := asyncop.New(completion, callback)
	g.engine.Work.Submit(func(workCtx context.Context) {
		if perr := g.perform(ctx, c); perr != nil {
			op.Complete(asyncop.StatusFailed, perr)
			return
		}
		op.Complete(asyncop.StatusOK, c)
	})
	return op, nil
}
