// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package rtnet is the public facade of spec.md §6.1: global lifecycle,
// handle-based Call/Mock/WebSocket operations, and tracing controls, all
// backed by the internal/ packages that implement the call engine, retry
// policy, mock matcher, and WebSocket connection lifecycle.
package rtnet

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/develeap/rtnet/internal/callengine"
	"github.com/develeap/rtnet/internal/errcat"
	"github.com/develeap/rtnet/internal/handle"
	"github.com/develeap/rtnet/internal/metrics"
	"github.com/develeap/rtnet/internal/mockreg"
	"github.com/develeap/rtnet/internal/retryafter"
	"github.com/develeap/rtnet/internal/trace"
	"github.com/develeap/rtnet/internal/transport"
	"github.com/develeap/rtnet/internal/wsconn"
)

// version is stamped at release time. Format matches spec.md §6.1:
// "YYYY.MM.YYYYMMDD.rev".
const version = "2026.08.20260801.1"

// CallHandle and WsHandle are the opaque handle types spec.md's public
// surface hands to callers instead of pointers, per internal/handle's
// rationale: the host may hold these across completions on threads Go does
// not control the lifetime of.
type CallHandle = handle.Handle[*callengine.Call]
type WsHandle = handle.Handle[*wsconn.Connection]

// RoutedHandlerToken identifies a registered CallRoutedHandler for removal.
type RoutedHandlerToken int64

// CallRoutedHandler observes every call once its perform loop finishes,
// matching spec.md's `AddCallRoutedHandler` diagnostic hook.
type CallRoutedHandler func(call *callengine.Call)

// global holds all process-wide state a library-style API needs, mirroring
// spec.md §5's description of the call engine, mock registry, and
// retry-after cache as process-wide singletons. It is nil until Initialize
// succeeds.
type global struct {
	engine   *callengine.Engine
	calls    *handle.Table[*callengine.Call]
	sockets  *handle.Table[*wsconn.Connection]
	mocks    *mockreg.Registry
	cache    *retryafter.Cache
	tracer   *trace.Dispatcher
	recorder metrics.Recorder

	transport transport.Transport

	mu            sync.RWMutex
	performHook   func(*callengine.Call) bool
	routedHandler map[RoutedHandlerToken]CallRoutedHandler
	nextToken     atomic.Int64

	nextCallID int64
}

var (
	stateMu sync.RWMutex
	state   *global
)

// ErrNotInitialized is returned by any operation invoked before Initialize
// or after Cleanup, matching spec.md §7's NotInitialized kind.
var ErrNotInitialized = errcat.New(errcat.NotInitialized, "rtnet: library not initialized", errcat.WithOp("Initialize"))

// ErrAlreadyInitialized is returned by a second Initialize call without an
// intervening Cleanup.
var ErrAlreadyInitialized = errcat.New(errcat.AlreadyInitialized, "rtnet: already initialized", errcat.WithOp("Initialize"))

// Initialize brings up the library's process-wide state: the call engine,
// mock registry, retry-after cache, and tracer, wired to tr (the host's
// platform transport — spec.md §6.2's externally-supplied collaborator).
// A nil tr is valid for mock-only test builds, matching spec.md's "mocks
// fully substitute for the transport" design.
func Initialize(tr transport.Transport) error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if state != nil {
		return ErrAlreadyInitialized
	}

	cache := retryafter.New()
	mocks := mockreg.NewRegistry()
	engine := callengine.New(tr, mocks, cache)

	state = &global{
		engine:        engine,
		calls:         handle.New[*callengine.Call](),
		sockets:       handle.New[*wsconn.Connection](),
		mocks:         mocks,
		cache:         cache,
		tracer:        engine.Tracer,
		transport:     tr,
		routedHandler: make(map[RoutedHandlerToken]CallRoutedHandler),
	}
	return nil
}

// Cleanup tears down process-wide state. Outstanding handles become
// invalid; it is the caller's responsibility to have closed them first,
// matching spec.md §5's handle-table ownership model.
func Cleanup() {
	stateMu.Lock()
	defer stateMu.Unlock()
	if state != nil && state.engine != nil && state.engine.Work != nil {
		state.engine.Work.Terminate()
	}
	state = nil
}

// current returns the active global state or ErrNotInitialized.
func current() (*global, error) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	if state == nil {
		return nil, ErrNotInitialized
	}
	return state, nil
}

// GetLibVersion returns the library's release version string, per spec.md
// §6.1.
func GetLibVersion() string { return version }

// SetMetricsRecorder wires an instrumentation backend (e.g.
// metrics.NewCollector for Prometheus) into the call engine and every
// WebSocket connection created afterward. Not part of spec.md's public
// surface directly, but the natural Go equivalent of the host-supplied
// Metrics collaborator the teacher's client.Option pattern configures at
// construction time.
func SetMetricsRecorder(r metrics.Recorder) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.recorder = r
	g.mu.Unlock()
	g.engine.Metrics = r
	return nil
}

// SetHttpPerformCallback installs a host hook invoked once per
// HttpCallPerformAsync, before the engine runs; returning true tells the
// library the hook has fully handled the call (populated its response), and
// the engine is then skipped for that call: no Retry-After check, mock
// match, transport attempt or retry. The hook is not invoked per attempt.
// This mirrors libHttpClient's HCSetHttpCallPerformFunction override
// mechanism. Pass nil to remove it.
func SetHttpPerformCallback(fn func(call *callengine.Call) bool) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.performHook = fn
	g.mu.Unlock()
	return nil
}

// GetHttpPerformCallback returns the currently installed hook, or nil.
func GetHttpPerformCallback() (func(call *callengine.Call) bool, error) {
	g, err := current()
	if err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.performHook, nil
}

// AddCallRoutedHandler registers fn to observe every completed call, per
// spec.md's AddCallRoutedHandler. The ctx parameter from spec.md's C-ABI
// signature is modeled by closing over whatever state fn needs, which is
// the idiomatic Go equivalent of a void* context pointer.
func AddCallRoutedHandler(fn CallRoutedHandler) (RoutedHandlerToken, error) {
	g, err := current()
	if err != nil {
		return 0, err
	}
	token := RoutedHandlerToken(g.nextToken.Add(1))
	g.mu.Lock()
	g.routedHandler[token] = fn
	g.mu.Unlock()
	return token, nil
}

// RemoveCallRoutedHandler deregisters a handler added by
// AddCallRoutedHandler.
func RemoveCallRoutedHandler(token RoutedHandlerToken) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.mu.Lock()
	delete(g.routedHandler, token)
	g.mu.Unlock()
	return nil
}

// notifyRouted invokes every registered CallRoutedHandler with panics
// swallowed, matching trace.Dispatcher.safeTrace's "a misbehaving client
// hook must not take down the engine" contract.
func (g *global) notifyRouted(call *callengine.Call) {
	g.mu.RLock()
	handlers := make([]CallRoutedHandler, 0, len(g.routedHandler))
	for _, h := range g.routedHandler {
		handlers = append(handlers, h)
	}
	g.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(call)
		}()
	}
}

// perform runs the engine's perform loop, first giving an installed
// HttpPerformCallback the chance to fully handle the call.
func (g *global) perform(ctx context.Context, call *callengine.Call) error {
	g.mu.RLock()
	hook := g.performHook
	g.mu.RUnlock()

	if hook != nil && hook(call) {
		g.notifyRouted(call)
		return nil
	}
	err := g.engine.Perform(ctx, call)
	g.notifyRouted(call)
	return err
}
