// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package rtnet

import "github.com/develeap/rtnet/internal/trace"

// TraceSetClientCallback installs (or, given nil, removes) a
// client-registered trace sink, per spec.md §6.1/§4.8.
func TraceSetClientCallback(fn func(area trace.Area, level trace.Level, message string)) error {
	g, err := current()
	if err != nil {
		return err
	}
	if fn == nil {
		g.tracer.SetClientCallback(nil)
		return nil
	}
	g.tracer.SetClientCallback(trace.SinkFunc(func(e trace.Event) {
		fn(e.Area, e.Level, e.Message)
	}))
	return nil
}

// TraceSetTraceToDebugger toggles the built-in debugger sink.
func TraceSetTraceToDebugger(enabled bool) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.tracer.SetTraceToDebugger(enabled)
	return nil
}

// SettingsSetTraceLevel sets the default verbosity applied to areas with no
// per-area override.
func SettingsSetTraceLevel(level trace.Level) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.tracer.SetLevel(level)
	return nil
}

// SettingsSetTraceLevelForArea sets verbosity for a single trace area, per
// spec.md §4.8's "independently verbosity-controlled" per-area setters.
func SettingsSetTraceLevelForArea(area trace.Area, level trace.Level) error {
	g, err := current()
	if err != nil {
		return err
	}
	g.tracer.SetAreaLevel(area, level)
	return nil
}
