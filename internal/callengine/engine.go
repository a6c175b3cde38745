// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package callengine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/develeap/rtnet/internal/asyncop"
	"github.com/develeap/rtnet/internal/compress"
	"github.com/develeap/rtnet/internal/errcat"
	"github.com/develeap/rtnet/internal/headers"
	"github.com/develeap/rtnet/internal/metrics"
	"github.com/develeap/rtnet/internal/mockreg"
	"github.com/develeap/rtnet/internal/retryafter"
	"github.com/develeap/rtnet/internal/trace"
	"github.com/develeap/rtnet/internal/transport"
)

// Clock abstracts time.Now so tests can drive deterministic deadlines.
type Clock func() time.Time

// Engine drives the state machine of spec.md §4.1: PreCheck -> CompressBody
// -> SubmitAttempt -> transport.Perform -> ClassifyOutcome -> (retry loop or
// Decompress) -> Complete. One Engine is shared process-wide, the way the
// teacher shares one *Client across every resource/data-source.
type Engine struct {
	Transport transport.Transport
	Mocks     *mockreg.Registry
	RetryAfterCache *retryafter.Cache
	Compress  *compress.Bridge
	Tracer    *trace.Dispatcher
	Metrics   metrics.Recorder
	Work      *asyncop.Queue

	Now Clock

	// breakers holds one gobreaker.CircuitBreaker per host, lazily created.
	// This supplements (never replaces) the Retry-After cache's PreCheck
	// fail-fast gate: the cache is the spec-mandated per-id cooldown memory,
	// the breaker is an additional ambient reliability layer that trips on
	// sustained failure independent of any single call's cache id, per
	// SPEC_FULL.md §4 "Domain Stack".
	breakers map[string]*gobreaker.CircuitBreaker
}

// New builds an Engine. Any of Compress/Tracer/Metrics/Work may be left
// nil/zero-valued by the caller; RetryAfterCache and Mocks must be supplied
// by the facade layer (they are process-wide shared state, not Engine's to
// own multiple copies of).
func New(tr transport.Transport, mocks *mockreg.Registry, cache *retryafter.Cache) *Engine {
	return &Engine{
		Transport:       tr,
		Mocks:           mocks,
		RetryAfterCache: cache,
		Compress:        compress.NewBridge(nil),
		Tracer:          trace.NewDispatcher(),
		Work:            asyncop.NewQueue(context.Background()),
		Now:             time.Now,
		breakers:        make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

func (e *Engine) breakerFor(host string) *gobreaker.CircuitBreaker {
	if cb, ok := e.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if e.Metrics != nil {
				e.Metrics.RecordCircuitBreakerState(name, to.String())
			}
			e.Tracer.Emit(trace.AreaHTTPClient, trace.Information, 0,
				"circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	e.breakers[host] = cb
	return cb
}

// Perform runs call's full retry loop synchronously to completion and
// returns once the call has a final response (or an engine-level error).
// HttpCallPerformAsync (the public facade) wraps this in an AsyncOp
// dispatched onto a Work queue so the caller observes it asynchronously.
func (e *Engine) Perform(ctx context.Context, call *Call) error {
	if err := call.BeginPerform(e.now()); err != nil {
		return errcat.New(errcat.PerformAlreadyCalled, "perform already called", errcat.WithOp("HttpCallPerformAsync"))
	}

	host := hostOf(call.URL)
	deadline := call.Deadline()

	for {
		if call.RetryAfterCacheID != 0 {
			pre := e.RetryAfterCache.PreCheck(call.RetryAfterCacheID, e.now(), deadline)
			switch pre.Decision {
			case retryafter.FailFast:
				if e.Metrics != nil {
					e.Metrics.RecordFailFast(host)
				}
				_ = call.setResponse(pre.StatusCode, nil, nil, ErrSuccess, 0, "")
				return nil
			case retryafter.Wait:
				if err := e.sleep(ctx, pre.Delay); err != nil {
					e.RetryAfterCache.Resolve(call.RetryAfterCacheID)
					return e.timeoutError(err)
				}
			}
		}

		call.resetResponseForAttempt()

		if err := e.compressBody(call); err != nil {
			return err
		}

		attemptStart := e.now()
		result, attemptErr := e.submitAttempt(ctx, call, host)
		attemptEnd := e.now()
		if attemptErr != nil {
			if call.RetryAfterCacheID != 0 {
				e.RetryAfterCache.Resolve(call.RetryAfterCacheID)
			}
			return attemptErr
		}

		if e.Metrics != nil {
			e.Metrics.RecordAttempt(call.Method, host, result.StatusCode, attemptEnd.Sub(attemptStart).Milliseconds())
		}
		if call.TraceCall {
			e.Tracer.Emit(trace.AreaHTTPClient, trace.Verbose, 0, "%s %s -> %d (attempt %d)",
				call.Method, call.URL, result.StatusCode, call.AttemptNumber())
		}

		h := &headers.Map{}
		for _, hf := range result.Headers {
			h.Set(hf.Name, hf.Value)
		}
		if err := call.setResponse(uint32(result.StatusCode), h, result.Body, result.NetworkErrorCode, result.PlatformErrorCode, result.PlatformErrorString); err != nil {
			return errcat.New(errcat.Internal, "response body write hook failed", errcat.WithOp("HttpCallPerformAsync"), errcat.WithUnderlying(err))
		}

		retryAfterHeader, _ := h.Get("Retry-After")
		outcome := ClassifyOutcome(
			call.RetryAllowed,
			uint32(result.StatusCode),
			result.NetworkErrorCode,
			call.AttemptNumber(),
			call.RetryDelayBaseSeconds,
			retryAfterHeader,
			attemptEnd,
			deadline,
		)

		if call.RetryAfterCacheID != 0 {
			if !outcome.Retry {
				e.RetryAfterCache.Resolve(call.RetryAfterCacheID)
			} else if seconds, ok := parseRetryAfter(retryAfterHeader); ok && result.StatusCode > 400 {
				e.RetryAfterCache.Update(call.RetryAfterCacheID, attemptEnd.Add(time.Duration(seconds)*time.Second), uint32(result.StatusCode))
			}
		}

		if !outcome.Retry {
			break
		}

		if e.Metrics != nil {
			e.Metrics.RecordRetry(call.Method, host, call.AttemptNumber())
		}
		if err := e.sleep(ctx, outcome.Delay); err != nil {
			return e.timeoutError(err)
		}
	}

	return e.decompress(call)
}

// submitAttempt performs one physical attempt, preferring a registered mock
// over the transport, per spec.md §4.2: "a matched mock fully substitutes
// for the transport for that attempt". Transport invocation is wrapped in
// the host's circuit breaker.
func (e *Engine) submitAttempt(ctx context.Context, call *Call, host string) (transport.Result, error) {
	body, err := call.RequestBody()
	if err != nil {
		return transport.Result{}, err
	}

	if e.Mocks != nil {
		if mock, ok := e.Mocks.TryMatch(call.Method, call.URL, body); ok {
			return transport.Result{
				StatusCode:       int(mock.Response.StatusCode),
				Headers:          headerFieldsFrom(mock.Response.Headers),
				Body:             mock.Response.Body,
				NetworkErrorCode: mock.Response.NetworkErrorCode,
			}, nil
		}
	}

	if e.Transport == nil {
		return transport.Result{}, errcat.New(errcat.NotSupported, "no transport configured and no mock matched", errcat.WithOp("HttpCallPerformAsync"))
	}

	req := transport.Request{
		Method:        call.Method,
		URL:           call.URL,
		Headers:       &call.RequestHeaders,
		Body:          body,
		Timeout:       time.Duration(call.TimeoutSeconds) * time.Second,
		SSLValidation: call.SSLValidation,
	}

	cb := e.breakerFor(host)
	raw, err := cb.Execute(func() (interface{}, error) {
		res, perr := e.Transport.Perform(ctx, req)
		if perr != nil {
			return res, perr
		}
		if res.NetworkErrorCode != 0 {
			// Transport-level failures count against the breaker even
			// though they aren't Go errors, matching spec.md's treatment
			// of them as response state rather than engine errors.
			return res, fmt.Errorf("transport network error %d", res.NetworkErrorCode)
		}
		return res, nil
	})
	if result, ok := raw.(transport.Result); ok {
		return result, nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return transport.Result{NetworkErrorCode: NetworkErrorNoNetwork, PlatformErrorString: err.Error()}, nil
	}
	return transport.Result{}, err
}

func headerFieldsFrom(h *headers.Map) []transport.HeaderField {
	if h == nil {
		return nil
	}
	var out []transport.HeaderField
	h.Range(func(name, value string) bool {
		out = append(out, transport.HeaderField{Name: name, Value: value})
		return true
	})
	return out
}

// compressBody gzip-compresses the request body in place when the call
// requests it and a backend is available, per spec.md §4.1 CompressBody:
// "only if compressionLevel != none and a compression backend is
// available" — absence of a backend is not an error, compression is simply
// skipped.
func (e *Engine) compressBody(call *Call) error {
	if call.CompressionLevel == compress.None || !e.Compress.Available() {
		return nil
	}
	body, err := call.RequestBody()
	if err != nil {
		return err
	}
	compressed, err := e.Compress.Compress(call.CompressionLevel, body)
	if err != nil {
		return nil // degrade silently, matching Bridge's "absence is normal" contract
	}
	call.replaceRequestForCompression(compressed)
	return nil
}

// decompress gunzips the final response body when Content-Encoding: gzip is
// present and the caller opted in via CompressedResponseExpected, per
// spec.md §4.1 Decompress.
func (e *Engine) decompress(call *Call) error {
	if !call.CompressedResponseExpected || !e.Compress.Available() {
		return nil
	}
	enc, _ := call.ResponseHeaders.Get("Content-Encoding")
	if enc != "gzip" {
		return nil
	}
	body := call.ResponseBodyBytes()
	decompressed, err := e.Compress.Decompress(body)
	if err != nil {
		return nil // leave the raw (possibly truncated) body rather than fail the whole call
	}
	call.replaceResponseBody(decompressed)
	return nil
}

// sleep waits for d, honoring ctx cancellation.
func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) timeoutError(cause error) error {
	return errcat.New(errcat.Timeout, "call canceled while waiting for retry backoff",
		errcat.WithOp("HttpCallPerformAsync"), errcat.WithUnderlying(cause))
}

// PerformAsync wraps Perform in an AsyncOp dispatched through completion,
// per spec.md §6.1 HttpCallPerformAsync. callback receives the terminal
// status and, on success, the call itself (already populated with the
// response) as the AsyncOp result.
func (e *Engine) PerformAsync(ctx context.Context, call *Call, completion *asyncop.Queue, callback func(asyncop.Status, any)) *asyncop.AsyncOp {
	op := asyncop.New(completion, callback)
	e.Work.Submit(func(workCtx context.Context) {
		err := e.Perform(ctx, call)
		if err != nil {
			op.Complete(asyncop.StatusFailed, err)
			return
		}
		op.Complete(asyncop.StatusOK, call)
	})
	return op
}
