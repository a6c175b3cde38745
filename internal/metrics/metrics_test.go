// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsAttemptsAndRetries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAttempt("GET", "api.example.com", 200, 42)
	c.RecordRetry("GET", "api.example.com", 1)
	c.RecordFailFast("api.example.com")
	c.RecordCircuitBreakerState("api.example.com", "open")
	c.RecordWebSocketSend("ws.example.com", 128, true)
	c.RecordWebSocketReceive("ws.example.com", 4096, true)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]*dto.MetricFamily{}
	for _, f := range families {
		names[f.GetName()] = f
	}

	require.Contains(t, names, "rtnet_http_attempts_total")
	require.Contains(t, names, "rtnet_http_retries_total")
	require.Contains(t, names, "rtnet_http_fail_fast_total")
	require.Contains(t, names, "rtnet_circuit_breaker_state")
	require.Contains(t, names, "rtnet_ws_sends_total")
	require.Contains(t, names, "rtnet_ws_receives_total")

	breaker := names["rtnet_circuit_breaker_state"]
	require.Len(t, breaker.Metric, 1)
	require.Equal(t, float64(2), breaker.Metric[0].GetGauge().GetValue())
}
