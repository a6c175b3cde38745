// Copyright (c) 2026 Develeap
// SPDX-License-Identifier: MPL-2.0

// Package errcat implements the error taxonomy of spec.md §7: a closed set
// of Kind values, a functional-options constructor for attaching context
// (the operation, the platform-native error code/message), and message
// sanitization so transport diagnostics never leak request bodies or
// Authorization headers into logs. The functional-options shape mirrors the
// teacher's internal/errors.EnhanceError/EnhancementOption pattern, pared
// down from CLI-diagnostic formatting (suggestions, doc links, commands) to
// the flat Kind+Code+message shape an embedding host actually inspects.
package errcat

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind is the closed error taxonomy from spec.md §7.
type Kind int

const (
	Unknown Kind = iota
	InvalidArg
	NotInitialized
	AlreadyInitialized
	PerformAlreadyCalled
	ConnectAlreadyCalled
	NoNetwork
	NetworkError
	Timeout
	OutOfMemory
	NotSupported
	Aborted
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidArg:
		return "InvalidArg"
	case NotInitialized:
		return "NotInitialized"
	case AlreadyInitialized:
		return "AlreadyInitialized"
	case PerformAlreadyCalled:
		return "PerformAlreadyCalled"
	case ConnectAlreadyCalled:
		return "ConnectAlreadyCalled"
	case NoNetwork:
		return "NoNetwork"
	case NetworkError:
		return "NetworkError"
	case Timeout:
		return "Timeout"
	case OutOfMemory:
		return "OutOfMemory"
	case NotSupported:
		return "NotSupported"
	case Aborted:
		return "Aborted"
	case Internal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across the public surface.
type Error struct {
	Kind Kind

	// PlatformCode/PlatformMessage carry the transport's native diagnostic
	// for NetworkError, sanitized before storage.
	PlatformCode    int32
	PlatformMessage string

	Op         string // the operation that failed, e.g. "CallPerform"
	underlying error
}

// Option customizes an Error at construction.
type Option func(*Error)

// WithOp records which public operation produced the error.
func WithOp(op string) Option {
	return func(e *Error) { e.Op = op }
}

// WithPlatform records a transport-native code/message, sanitized.
func WithPlatform(code int32, message string) Option {
	return func(e *Error) {
		e.PlatformCode = code
		e.PlatformMessage = Sanitize(message)
	}
}

// WithUnderlying wraps an existing error for errors.Unwrap.
func WithUnderlying(err error) Option {
	return func(e *Error) { e.underlying = err }
}

// New builds an *Error of the given kind.
func New(kind Kind, msg string, opts ...Option) *Error {
	e := &Error{Kind: kind, underlying: errors.New(Sanitize(msg))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Error) Error() string {
	base := fmt.Sprintf("rtnet: %s", e.Kind)
	if e.Op != "" {
		base = fmt.Sprintf("%s: %s", e.Op, base)
	}
	if e.underlying != nil {
		base = fmt.Sprintf("%s: %s", base, e.underlying.Error())
	}
	if e.PlatformMessage != "" {
		base = fmt.Sprintf("%s (platform code %d: %s)", base, e.PlatformCode, e.PlatformMessage)
	}
	return base
}

func (e *Error) Unwrap() error { return e.underlying }

// Is matches against a Kind sentinel wrapped via KindSentinel, letting
// callers write errors.Is(err, errcat.KindSentinel(errcat.Timeout)).
func (e *Error) Is(target error) bool {
	var ks kindSentinel
	if errors.As(target, &ks) {
		return e.Kind == Kind(ks)
	}
	return false
}

type kindSentinel Kind

func (k kindSentinel) Error() string { return Kind(k).String() }

// KindSentinel returns a sentinel error usable with errors.Is to test an
// *Error's Kind without a type assertion.
func KindSentinel(k Kind) error { return kindSentinel(k) }

// Compiled once; mirrors the teacher's sanitizeMessage regex set
// (internal/client/errors.go) generalized beyond Hyperping's own key
// prefixes to any bearer/basic token and embedded URL credentials that
// could appear in a transport error string.
var (
	bearerPattern  = regexp.MustCompile(`(?i)bearer\s+[^\s]+`)
	basicPattern   = regexp.MustCompile(`(?i)basic\s+[A-Za-z0-9+/=]+`)
	urlCredPattern = regexp.MustCompile(`://[^\s/:@]+:[^\s/@]+@`)
)

// Sanitize strips tokens and embedded URL credentials from a diagnostic
// string before it is ever stored in an Error, traced, or logged.
func Sanitize(msg string) string {
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ***REDACTED***")
	msg = basicPattern.ReplaceAllString(msg, "Basic ***REDACTED***")
	msg = urlCredPattern.ReplaceAllString(msg, "://***REDACTED***@")
	return msg
}
