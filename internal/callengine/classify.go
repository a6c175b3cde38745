// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

package callengine

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Outcome is the pure decision ClassifyOutcome reaches for one completed
// attempt, per spec.md §4.3 "Retry policy".
type Outcome struct {
	Retry bool
	Delay time.Duration

	// RetryAfterResolved is set when a Retry-After response header was
	// present and parsed; Delay is then the larger of the computed
	// exponential delay and the jittered Retry-After delay.
	RetryAfterResolved bool
}

// retryableStatus reports whether statusCode is one of the exact set
// spec.md §4.3 step 3 names as worth retrying: 408, 429, 500, 502, 503, 504.
func retryableStatus(statusCode uint32) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// NetworkErrorNoNetwork is the distinguished HRESULT-shaped NetworkErrorCode
// value spec.md §6.3/§7 calls "NoNetwork": a permanent condition the retry
// policy never retries, unlike any other non-zero transport-level failure.
// The call engine's circuit-breaker-open path reports this value, since an
// open breaker means the same thing to a caller as no network path existing.
const NetworkErrorNoNetwork int32 = -3

// isRetryableNetworkError reports whether a non-zero transport-level
// NetworkErrorCode represents a transient condition worth retrying.
// NetworkErrorNoNetwork is permanent per spec.md §4.3 step 2.
func isRetryableNetworkError(code int32) bool {
	return code != 0 && code != NetworkErrorNoNetwork
}

// jitterFraction derives a deterministic pseudo-random fraction in [0,1)
// from the attempt's response-received timestamp, per spec.md §4.3: "jitter
// derived from responseReceivedTime.epochNanos % 10000" — deterministic so
// retry timing is reproducible under mocked/replayed clocks instead of
// depending on math/rand.
func jitterFraction(responseReceivedTime time.Time) float64 {
	return float64(responseReceivedTime.UnixNano()%10000) / 10000.0
}

// maxBackoff is the 60 second ceiling spec.md §4.3 step 4 places on
// delayMs, regardless of how large attemptNumber grows.
const maxBackoff = 60 * time.Second

// calculateBackoff computes the exponential-with-jitter delay for the
// attemptNumber-th retry (1-indexed: the first retry is attemptNumber==1):
// a point between baseSeconds^attemptNumber and
// baseSeconds^(attemptNumber+1) seconds chosen by the deterministic jitter
// fraction, capped at maxBackoff. Grounded on the teacher's
// calculateBackoff (internal/client/client.go) generalized to spec.md's
// base-seconds-per-call and deterministic jitter.
func calculateBackoff(baseSeconds, attemptNumber int, responseReceivedTime time.Time) time.Duration {
	if baseSeconds <= 0 {
		baseSeconds = 1
	}
	lo := math.Pow(float64(baseSeconds), float64(attemptNumber))
	hi := math.Pow(float64(baseSeconds), float64(attemptNumber+1))
	seconds := lo + (hi-lo)*jitterFraction(responseReceivedTime)
	if math.IsNaN(seconds) || seconds >= maxBackoff.Seconds() {
		return maxBackoff
	}
	return time.Duration(seconds * float64(time.Second))
}

// parseRetryAfter parses an HTTP Retry-After header value, returning the
// raw delay-seconds count. Only the delay-seconds form is supported; the
// HTTP-date form is explicitly deferred (see SPEC_FULL.md Open Question
// Decisions). Grounded on the teacher's parseRetryAfter
// (internal/client/client.go).
func parseRetryAfter(header string) (int, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return seconds, true
}

// retryAfterDelay jitters a parsed Retry-After seconds value into
// spec.md §4.3 step 4's [ra*1000, ra*1200] millisecond window, using the
// same deterministic jitter source as calculateBackoff.
func retryAfterDelay(seconds int, responseReceivedTime time.Time) time.Duration {
	base := time.Duration(seconds) * time.Second
	spread := time.Duration(float64(base) * 0.2 * jitterFraction(responseReceivedTime))
	return base + spread
}

// ClassifyOutcome implements spec.md §4.3's retry decision for one
// completed attempt. now is the current time, deadline is
// performStartTime+timeoutWindow. retryAfterHeader is the raw header value
// ("" if absent).
func ClassifyOutcome(
	retryAllowed bool,
	statusCode uint32,
	networkErrorCode int32,
	attemptNumber int,
	retryDelayBaseSeconds int,
	retryAfterHeader string,
	responseReceivedTime time.Time,
	deadline time.Time,
) Outcome {
	if !retryAllowed {
		return Outcome{Retry: false}
	}

	retryable := (networkErrorCode != 0 && isRetryableNetworkError(networkErrorCode)) ||
		(networkErrorCode == 0 && retryableStatus(statusCode))
	if !retryable {
		return Outcome{Retry: false}
	}

	backoff := calculateBackoff(retryDelayBaseSeconds, attemptNumber, responseReceivedTime)

	delay := backoff
	resolved := false
	if seconds, ok := parseRetryAfter(retryAfterHeader); ok {
		// spec.md §4.3 step 4: combine as max(backoff, raMs), never just
		// substitute the header for the computed schedule.
		if ra := retryAfterDelay(seconds, responseReceivedTime); ra > delay {
			delay = ra
		}
		resolved = true
	}

	// spec.md §4.3 step 4: a bare 500 always waits at least 10s, even if
	// backoff/Retry-After would otherwise allow a faster retry.
	if statusCode == 500 && delay < 10*time.Second {
		delay = 10 * time.Second
	}

	remaining := deadline.Sub(responseReceivedTime)
	const safetyMargin = 5 * time.Second
	if remaining <= safetyMargin || remaining < delay+safetyMargin {
		return Outcome{Retry: false}
	}

	return Outcome{Retry: true, Delay: delay, RetryAfterResolved: resolved}
}
