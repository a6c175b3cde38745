// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package trace implements spec.md §4.8: structured trace events tagged by
// area, each independently verbosity-controlled, fanned out to a debugger
// sink and an optional client-registered callback. Emission must never
// block the engine (spec.md §4.8): each Emit reads the area level and the
// client sink under a read lock, and invokes the sinks after releasing it.
package trace

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Level is trace verbosity, ordered least to most chatty.
type Level int

const (
	Off Level = iota
	Error
	Warning
	Important
	Information
	Verbose
)

// Area is a named trace subsystem, e.g. "HTTPCLIENT" or "WEBSOCKET".
type Area string

const (
	AreaHTTPClient Area = "HTTPCLIENT"
	AreaWebSocket  Area = "WEBSOCKET"
)

// Event is one emitted trace record.
type Event struct {
	Area      Area
	Level     Level
	ThreadID  int64
	Timestamp time.Time
	Message   string
}

// Sink receives trace events. Implementations must not block or panic;
// Dispatcher recovers from panics but the recovery itself is not free.
type Sink interface {
	Trace(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Trace(e Event) { f(e) }

// StdSink writes events to a standard library *log.Logger, used as the
// default "debugger sink" from spec.md §4.8.
type StdSink struct {
	Logger *log.Logger
}

func (s StdSink) Trace(e Event) {
	l := s.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf("[%s] %s %s", e.Area, levelName(e.Level), e.Message)
}

func levelName(l Level) string {
	switch l {
	case Off:
		return "OFF"
	case Error:
		return "ERROR"
	case Warning:
		return "WARNING"
	case Important:
		return "IMPORTANT"
	case Information:
		return "INFORMATION"
	case Verbose:
		return "VERBOSE"
	default:
		return "UNKNOWN"
	}
}

// Dispatcher holds the area verbosity table and the two sinks (debugger +
// client callback), and is the entry point every other package emits
// through.
type Dispatcher struct {
	mu sync.RWMutex

	levels        map[Area]Level
	defaultLevel  Level
	toDebugger    atomic.Bool
	debuggerSink  Sink
	clientSink    Sink
	hasClientSink atomic.Bool
}

// NewDispatcher creates a Dispatcher with debugger tracing enabled at
// Important level for all areas, matching libHttpClient's default.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		levels:       make(map[Area]Level),
		defaultLevel: Important,
		debuggerSink: StdSink{},
	}
	d.toDebugger.Store(true)
	return d
}

// SetTraceToDebugger toggles the debugger sink on/off.
func (d *Dispatcher) SetTraceToDebugger(enabled bool) {
	d.toDebugger.Store(enabled)
}

// SetClientCallback installs (or, if sink is nil, removes) the
// client-registered sink.
func (d *Dispatcher) SetClientCallback(sink Sink) {
	d.mu.Lock()
	d.clientSink = sink
	d.mu.Unlock()
	d.hasClientSink.Store(sink != nil)
}

// SetLevel sets the default verbosity applied to areas with no per-area
// override.
func (d *Dispatcher) SetLevel(level Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultLevel = level
}

// SetAreaLevel sets verbosity for a single area.
func (d *Dispatcher) SetAreaLevel(area Area, level Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels[area] = level
}

func (d *Dispatcher) levelFor(area Area) Level {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if l, ok := d.levels[area]; ok {
		return l
	}
	return d.defaultLevel
}

// Emit dispatches an event if level is enabled for area. It is safe to call
// from any goroutine, including engine hot paths.
func (d *Dispatcher) Emit(area Area, level Level, threadID int64, format string, args ...interface{}) {
	if level > d.levelFor(area) || level == Off {
		return
	}
	event := Event{
		Area:      area,
		Level:     level,
		ThreadID:  threadID,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf(format, args...),
	}
	if d.toDebugger.Load() {
		d.safeTrace(d.debuggerSink, event)
	}
	if d.hasClientSink.Load() {
		d.mu.RLock()
		sink := d.clientSink
		d.mu.RUnlock()
		if sink != nil {
			d.safeTrace(sink, event)
		}
	}
}

// safeTrace invokes sink.Trace, swallowing panics per spec.md's "exceptions
// swallowed" requirement for call-routed handlers and sinks alike.
func (d *Dispatcher) safeTrace(sink Sink, event Event) {
	defer func() { _ = recover() }()
	sink.Trace(event)
}
