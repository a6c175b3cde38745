// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package metrics provides the optional instrumentation hook the engine and
// WebSocket connection report through, plus a Prometheus-backed
// implementation. The Recorder interface mirrors the teacher's
// client.Metrics interface (internal/client/client.go) — narrow enough that
// a host can back it with Prometheus, CloudWatch, Datadog or nothing at
// all.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the instrumentation contract Engine and wsconn.Connection
// accept. A nil Recorder is always valid; callers must nil-check before
// invoking, matching the teacher's `if c.metrics != nil` guard style.
type Recorder interface {
	RecordAttempt(method, host string, statusCode int, durationMs int64)
	RecordRetry(method, host string, attempt int)
	RecordFailFast(host string)
	RecordCircuitBreakerState(host, state string)
	RecordWebSocketSend(host string, bytesLen int, ok bool)
	RecordWebSocketReceive(host string, bytesLen int, fragment bool)
}

// Collector is a Prometheus-backed Recorder.
type Collector struct {
	attempts      *prometheus.CounterVec
	attemptDurMs  *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	failFasts     *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	wsSends       *prometheus.CounterVec
	wsSendBytes   *prometheus.CounterVec
	wsReceives    *prometheus.CounterVec
	wsRecvBytes   *prometheus.CounterVec
}

// NewCollector builds a Collector and registers its metrics with reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtnet",
			Name:      "http_attempts_total",
			Help:      "Total physical HTTP attempts performed, by method/host/status.",
		}, []string{"method", "host", "status"}),
		attemptDurMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rtnet",
			Name:      "http_attempt_duration_ms",
			Help:      "Duration of a single physical HTTP attempt in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"method", "host"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtnet",
			Name:      "http_retries_total",
			Help:      "Total retry attempts scheduled, by method/host.",
		}, []string{"method", "host"}),
		failFasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtnet",
			Name:      "http_fail_fast_total",
			Help:      "Calls short-circuited by the retry-after cache, by host.",
		}, []string{"host"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtnet",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed,1=half-open,2=open), by host.",
		}, []string{"host"}),
		wsSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtnet",
			Name:      "ws_sends_total",
			Help:      "WebSocket send operations, by host/outcome.",
		}, []string{"host", "outcome"}),
		wsSendBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtnet",
			Name:      "ws_send_bytes_total",
			Help:      "WebSocket bytes sent, by host.",
		}, []string{"host"}),
		wsReceives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtnet",
			Name:      "ws_receives_total",
			Help:      "WebSocket receive events, by host/kind.",
		}, []string{"host", "kind"}),
		wsRecvBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtnet",
			Name:      "ws_receive_bytes_total",
			Help:      "WebSocket bytes received, by host.",
		}, []string{"host"}),
	}
	reg.MustRegister(c.attempts, c.attemptDurMs, c.retries, c.failFasts,
		c.breakerState, c.wsSends, c.wsSendBytes, c.wsReceives, c.wsRecvBytes)
	return c
}

func (c *Collector) RecordAttempt(method, host string, statusCode int, durationMs int64) {
	c.attempts.WithLabelValues(method, host, statusText(statusCode)).Inc()
	c.attemptDurMs.WithLabelValues(method, host).Observe(float64(durationMs))
}

func (c *Collector) RecordRetry(method, host string, attempt int) {
	c.retries.WithLabelValues(method, host).Inc()
}

func (c *Collector) RecordFailFast(host string) {
	c.failFasts.WithLabelValues(host).Inc()
}

func (c *Collector) RecordCircuitBreakerState(host, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	c.breakerState.WithLabelValues(host).Set(v)
}

func (c *Collector) RecordWebSocketSend(host string, bytesLen int, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.wsSends.WithLabelValues(host, outcome).Inc()
	c.wsSendBytes.WithLabelValues(host).Add(float64(bytesLen))
}

func (c *Collector) RecordWebSocketReceive(host string, bytesLen int, fragment bool) {
	kind := "message"
	if fragment {
		kind = "fragment"
	}
	c.wsReceives.WithLabelValues(host, kind).Inc()
	c.wsRecvBytes.WithLabelValues(host).Add(float64(bytesLen))
}

func statusText(code int) string {
	if code == 0 {
		return "none"
	}
	return strconv.Itoa(code)
}
